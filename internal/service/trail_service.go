package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jengzang/trails-backend-go/internal/metrics"
	"github.com/jengzang/trails-backend-go/internal/models"
	"github.com/jengzang/trails-backend-go/internal/repository"
)

var gatewayTracer = otel.Tracer("trails.gateway")

// SaveSource names the store that accepted a save
type SaveSource string

const (
	SourcePrimary SaveSource = "primary"
	SourceOffline SaveSource = "offline"
	SourceNone    SaveSource = "none"
)

// SaveOutcome describes how a save was persisted
type SaveOutcome struct {
	Source   SaveSource
	Attempts int
}

// GatewayConfig tunes the primary retry budget
type GatewayConfig struct {
	MaxAttempts int
	RetryDelay  time.Duration
}

// DefaultGatewayConfig returns three attempts with a 200ms initial delay
func DefaultGatewayConfig() GatewayConfig {
	return GatewayConfig{MaxAttempts: 3, RetryDelay: 200 * time.Millisecond}
}

// TrailService persists trails to the primary store and falls back to the
// offline store when the primary is unavailable. primary may be nil on a
// device without a configured primary store.
type TrailService struct {
	primary repository.TrailStore
	offline repository.OfflineStore
	cfg     GatewayConfig
	now     func() time.Time
	sleep   func(ctx context.Context, d time.Duration) error
}

// NewTrailService creates a new trail service
func NewTrailService(primary repository.TrailStore, offline repository.OfflineStore, cfg GatewayConfig) *TrailService {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	return &TrailService{
		primary: primary,
		offline: offline,
		cfg:     cfg,
		now:     time.Now,
		sleep:   sleepContext,
	}
}

// SaveTrail persists the trail and returns the stored copy
func (s *TrailService) SaveTrail(ctx context.Context, trail *models.Trail) (*models.Trail, error) {
	saved, _, err := s.Save(ctx, trail)
	return saved, err
}

// Save persists the trail and reports which store accepted it. Only
// models.ErrDualStoreFailure and validation errors are returned.
func (s *TrailService) Save(ctx context.Context, trail *models.Trail) (*models.Trail, SaveOutcome, error) {
	if trail == nil {
		return nil, SaveOutcome{Source: SourceNone}, fmt.Errorf("trail is required")
	}

	t := trail.Clone()
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	now := s.now().UTC()
	normalizeTrailTimes(t, now)
	t.Version++
	t.UpdatedAt = now

	ctx, span := gatewayTracer.Start(ctx, "TrailService.Save",
		trace.WithAttributes(
			attribute.String("trail.id", t.ID),
			attribute.Int("trail.points", len(t.Points)),
		))
	defer span.End()

	t.SyncStatus = models.SyncStatusSynced
	t.LocalOnly = false
	if err := t.Validate(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid trail")
		return nil, SaveOutcome{Source: SourceNone}, fmt.Errorf("invalid trail: %w", err)
	}

	attempts, primaryErr := s.upsertPrimary(ctx, t)
	if primaryErr == nil {
		metrics.TrailSaves.WithLabelValues(string(SourcePrimary)).Inc()
		if _, err := s.offline.DeleteTrailVersion(ctx, t.ID, t.Version); err != nil {
			log.Printf("Failed to remove stale offline copy of trail %s: %v", t.ID, err)
		}
		span.SetAttributes(attribute.String("save.source", string(SourcePrimary)), attribute.Int("save.attempts", attempts))
		return t, SaveOutcome{Source: SourcePrimary, Attempts: attempts}, nil
	}

	log.Printf("Warning: primary store unavailable for trail %s after %d attempts, saving offline: %v", t.ID, attempts, primaryErr)

	t.SyncStatus = models.SyncStatusPending
	t.LocalOnly = true
	start := time.Now()
	offlineErr := s.offline.UpsertTrail(ctx, t)
	observeStore("offline", "upsert", start, offlineErr)
	if offlineErr != nil {
		metrics.TrailSaves.WithLabelValues(string(SourceNone)).Inc()
		err := fmt.Errorf("%w: %w", models.ErrDualStoreFailure, errors.Join(primaryErr, offlineErr))
		span.RecordError(err)
		span.SetStatus(codes.Error, "both stores failed")
		return nil, SaveOutcome{Source: SourceNone, Attempts: attempts}, err
	}

	metrics.TrailSaves.WithLabelValues(string(SourceOffline)).Inc()
	span.SetAttributes(attribute.String("save.source", string(SourceOffline)), attribute.Int("save.attempts", attempts))
	return t, SaveOutcome{Source: SourceOffline, Attempts: attempts}, nil
}

// upsertPrimary writes to the primary store with exponential retry delay
func (s *TrailService) upsertPrimary(ctx context.Context, t *models.Trail) (int, error) {
	if s.primary == nil {
		return 0, fmt.Errorf("%w: no primary store configured", models.ErrStoreUnavailable)
	}

	var lastErr error
	for attempt := 1; attempt <= s.cfg.MaxAttempts; attempt++ {
		start := time.Now()
		err := s.primary.UpsertTrail(ctx, t)
		observeStore("primary", "upsert", start, err)
		if err == nil {
			return attempt, nil
		}
		lastErr = err

		if attempt == s.cfg.MaxAttempts {
			return attempt, fmt.Errorf("%w: %w", models.ErrStoreUnavailable, lastErr)
		}
		metrics.PrimaryRetries.Inc()
		log.Printf("Primary upsert of trail %s failed (attempt %d/%d): %v", t.ID, attempt, s.cfg.MaxAttempts, err)
		if err := s.sleep(ctx, s.cfg.RetryDelay<<(attempt-1)); err != nil {
			return attempt, fmt.Errorf("%w: %w", models.ErrStoreUnavailable, errors.Join(lastErr, err))
		}
	}
	return s.cfg.MaxAttempts, fmt.Errorf("%w: %w", models.ErrStoreUnavailable, lastErr)
}

// GetAllTrails returns the primary trails merged with the offline ones. A
// pending offline edit replaces the primary row it supersedes. When the
// primary fails the offline list is returned.
func (s *TrailService) GetAllTrails(ctx context.Context) ([]models.Trail, error) {
	ctx, span := gatewayTracer.Start(ctx, "TrailService.GetAllTrails")
	defer span.End()

	offline, offlineErr := s.offline.GetTrails(ctx)
	if offlineErr != nil {
		log.Printf("Failed to read offline trails: %v", offlineErr)
	}

	if s.primary == nil {
		return offline, offlineErr
	}

	start := time.Now()
	trails, err := s.primary.GetTrails(ctx)
	observeStore("primary", "list", start, err)
	if err != nil {
		log.Printf("Warning: primary store unavailable, listing offline trails: %v", err)
		if offlineErr != nil {
			err = fmt.Errorf("%w: %w", models.ErrDualStoreFailure, errors.Join(err, offlineErr))
			span.RecordError(err)
			return nil, err
		}
		return offline, nil
	}

	index := make(map[string]int, len(trails))
	for i := range trails {
		index[trails[i].ID] = i
	}
	for i := range offline {
		j, ok := index[offline[i].ID]
		if !ok {
			trails = append(trails, offline[i])
			continue
		}
		if preferOffline(&trails[j], &offline[i]) {
			trails[j] = offline[i]
		}
	}
	return trails, nil
}

// preferOffline reports whether a pending offline copy supersedes the
// primary row of the same trail
func preferOffline(primary, offline *models.Trail) bool {
	return offline.NeedsSync() && offline.Version >= primary.Version
}

// GetTrailByID reads both stores and returns the primary copy unless a
// pending offline edit supersedes it. It returns nil, nil when neither store
// has the trail.
func (s *TrailService) GetTrailByID(ctx context.Context, id string) (*models.Trail, error) {
	ctx, span := gatewayTracer.Start(ctx, "TrailService.GetTrailByID",
		trace.WithAttributes(attribute.String("trail.id", id)))
	defer span.End()

	var (
		primaryTrail *models.Trail
		primaryErr   error
	)
	if s.primary != nil {
		start := time.Now()
		primaryTrail, primaryErr = s.primary.GetTrailByID(ctx, id)
		observeStore("primary", "get", start, primaryErr)
		if primaryErr != nil {
			log.Printf("Warning: primary lookup of trail %s failed, trying offline: %v", id, primaryErr)
		}
	}

	local, err := s.offline.GetTrailByID(ctx, id)
	if err != nil {
		if primaryErr != nil {
			return nil, fmt.Errorf("%w: %w", models.ErrDualStoreFailure, errors.Join(primaryErr, err))
		}
		if primaryTrail != nil {
			log.Printf("Failed to read offline copy of trail %s: %v", id, err)
			return primaryTrail, nil
		}
		return nil, fmt.Errorf("failed to get offline trail: %w", err)
	}

	if primaryTrail == nil {
		return local, nil
	}
	if local != nil && preferOffline(primaryTrail, local) {
		return local, nil
	}
	return primaryTrail, nil
}

// UpdateTrail applies user edits to a stored trail and saves it again
func (s *TrailService) UpdateTrail(ctx context.Context, id string, update models.TrailUpdate) (*models.Trail, error) {
	trail, err := s.GetTrailByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if trail == nil {
		return nil, models.ErrTrailNotFound
	}
	trail.Apply(update)
	return s.SaveTrail(ctx, trail)
}

// DeleteTrail removes the trail from both stores. A primary failure leaves
// only the offline removal.
func (s *TrailService) DeleteTrail(ctx context.Context, id string) error {
	ctx, span := gatewayTracer.Start(ctx, "TrailService.DeleteTrail",
		trace.WithAttributes(attribute.String("trail.id", id)))
	defer span.End()

	var primaryErr error
	if s.primary != nil {
		start := time.Now()
		primaryErr = s.primary.DeleteTrail(ctx, id)
		observeStore("primary", "delete", start, primaryErr)
		if primaryErr != nil {
			log.Printf("Warning: primary delete of trail %s failed, removing offline copy only: %v", id, primaryErr)
		}
	}

	if err := s.offline.DeleteTrail(ctx, id); err != nil {
		if primaryErr != nil {
			err = fmt.Errorf("%w: %w", models.ErrDualStoreFailure, errors.Join(primaryErr, err))
			span.RecordError(err)
			return err
		}
		return fmt.Errorf("failed to delete offline trail: %w", err)
	}
	return nil
}

// ClearAllTrails removes every trail from both stores
func (s *TrailService) ClearAllTrails(ctx context.Context) error {
	var errs []error
	if s.primary != nil {
		if err := s.primary.ClearTrails(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to clear primary trails: %w", err))
		}
	}
	if err := s.offline.ClearTrails(ctx); err != nil {
		errs = append(errs, fmt.Errorf("failed to clear offline trails: %w", err))
	}
	return errors.Join(errs...)
}

// ListTrails filters and paginates GetAllTrails
func (s *TrailService) ListTrails(ctx context.Context, filter models.TrailFilter) (*models.TrailsResponse, error) {
	trails, err := s.GetAllTrails(ctx)
	if err != nil {
		return nil, err
	}

	matched := make([]models.Trail, 0, len(trails))
	for i := range trails {
		if filter.Matches(&trails[i]) {
			matched = append(matched, trails[i])
		}
	}

	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize < 1 {
		filter.PageSize = 20
	}
	if filter.PageSize > 100 {
		filter.PageSize = 100
	}

	total := len(matched)
	from := (filter.Page - 1) * filter.PageSize
	if from > total {
		from = total
	}
	to := from + filter.PageSize
	if to > total {
		to = total
	}

	return &models.TrailsResponse{
		Data:       matched[from:to],
		Total:      int64(total),
		Page:       filter.Page,
		PageSize:   filter.PageSize,
		TotalPages: (total + filter.PageSize - 1) / filter.PageSize,
	}, nil
}

func normalizeTrailTimes(t *models.Trail, now time.Time) {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.CreatedAt = t.CreatedAt.UTC()
	t.StartTime = t.StartTime.UTC()
	if t.EndTime != nil {
		end := t.EndTime.UTC()
		t.EndTime = &end
	}
	for i := range t.Points {
		t.Points[i].TrailID = t.ID
		t.Points[i].Timestamp = t.Points[i].Timestamp.UTC()
	}
}

func observeStore(store, op string, start time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.StoreOperationDuration.WithLabelValues(store, op, status).Observe(time.Since(start).Seconds())
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
	}
	return nil
}
