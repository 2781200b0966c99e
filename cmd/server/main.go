package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jengzang/trails-backend-go/internal/app"
	"github.com/jengzang/trails-backend-go/internal/config"
)

func main() {
	var configFile string

	cmd := &cobra.Command{
		Use:          "server",
		Short:        "Run the trails backend HTTP server",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configFile)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			signals := make(chan os.Signal, 1)
			signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
			return run(context.Background(), cfg, signals)
		},
	}
	cmd.Flags().StringVar(&configFile, "config", "", "optional config file")

	if err := cmd.Execute(); err != nil {
		log.Fatal("Server exited with error: ", err)
	}
}

// run serves until a signal arrives, then shuts down and flushes state
func run(ctx context.Context, cfg *config.Config, signals <-chan os.Signal) error {
	a, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Printf("Failed to close app: %v", err)
		}
	}()

	if restored, err := a.Recording.Restore(ctx); err != nil {
		log.Printf("Failed to restore recording session: %v", err)
	} else if restored {
		log.Printf("Recording session restored: %s", a.Recording.GetRecordingState().State)
	}

	syncCtx, stopSync := context.WithCancel(ctx)
	defer stopSync()
	go a.Sync.Run(syncCtx)

	srv := &http.Server{
		Addr:    cfg.Port,
		Handler: a.Router(),
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("Server starting on port %s", cfg.Port)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-signals:
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := a.Snapshots.Flush(shutdownCtx); err != nil {
		log.Printf("Failed to flush recording snapshot: %v", err)
	}
	log.Printf("Server stopped")
	return nil
}
