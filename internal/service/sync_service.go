package service

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/jengzang/trails-backend-go/internal/metrics"
	"github.com/jengzang/trails-backend-go/internal/models"
	"github.com/jengzang/trails-backend-go/internal/repository"
)

// SyncConfig controls the reconciliation loop
type SyncConfig struct {
	Interval    time.Duration
	BackoffBase time.Duration
	BackoffMax  time.Duration
}

// DefaultSyncConfig returns a one minute interval with 1s..5m backoff
func DefaultSyncConfig() SyncConfig {
	return SyncConfig{Interval: time.Minute, BackoffBase: time.Second, BackoffMax: 5 * time.Minute}
}

// SyncReport summarizes one reconciliation cycle
type SyncReport struct {
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
	Pending    int       `json:"pending"`
	Synced     int       `json:"synced"`
	Failed     int       `json:"failed"`
	FailedIDs  []string  `json:"failedIds,omitempty"`
}

// SyncStatus is the reconciler state exposed to callers
type SyncStatus struct {
	LastReport          *SyncReport       `json:"lastReport,omitempty"`
	ConsecutiveFailures int               `json:"consecutiveFailures"`
	NextDelay           time.Duration     `json:"nextDelay"`
	TrailStatus         map[string]string `json:"trailStatus"`
	TrailFailures       map[string]int    `json:"trailFailures"`
}

// SyncService pushes offline trails to the primary store. An offline copy is
// removed only after the primary acknowledged the write.
type SyncService struct {
	primary repository.TrailStore
	offline repository.OfflineStore
	cfg     SyncConfig
	now     func() time.Time
	trigger chan struct{}

	runMu sync.Mutex

	mu            sync.Mutex
	lastReport    *SyncReport
	failures      int
	trailFailures map[string]int
}

// NewSyncService creates a new sync service
func NewSyncService(primary repository.TrailStore, offline repository.OfflineStore, cfg SyncConfig) *SyncService {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = time.Second
	}
	if cfg.BackoffMax < cfg.BackoffBase {
		cfg.BackoffMax = cfg.BackoffBase
	}
	return &SyncService{
		primary:       primary,
		offline:       offline,
		cfg:           cfg,
		now:           time.Now,
		trigger:       make(chan struct{}, 1),
		trailFailures: make(map[string]int),
	}
}

// RunOnce reconciles every pending offline trail. The returned error is set
// when the offline store could not be read or at least one trail failed.
func (s *SyncService) RunOnce(ctx context.Context) (SyncReport, error) {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	ctx, span := gatewayTracer.Start(ctx, "SyncService.RunOnce")
	defer span.End()

	report := SyncReport{StartedAt: s.now().UTC()}
	pending, err := s.offline.PendingTrails(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "read offline trails failed")
		metrics.SyncCycles.WithLabelValues("error").Inc()
		s.recordCycle(&report, false)
		return report, fmt.Errorf("failed to read pending trails: %w", err)
	}
	report.Pending = len(pending)
	metrics.PendingTrails.Set(float64(len(pending)))

	if s.primary == nil {
		s.recordCycle(&report, false)
		return report, fmt.Errorf("%w: no primary store configured", models.ErrStoreUnavailable)
	}

	for i := range pending {
		if ctx.Err() != nil {
			break
		}
		trail := pending[i]
		if err := s.push(ctx, &trail); err != nil {
			report.Failed++
			report.FailedIDs = append(report.FailedIDs, trail.ID)
			s.markTrail(trail.ID, false)
			metrics.SyncedTrails.WithLabelValues("error").Inc()
			log.Printf("Failed to sync trail %s: %v", trail.ID, err)
			continue
		}
		report.Synced++
		s.markTrail(trail.ID, true)
		metrics.SyncedTrails.WithLabelValues("ok").Inc()
	}

	span.SetAttributes(
		attribute.Int("sync.pending", report.Pending),
		attribute.Int("sync.synced", report.Synced),
		attribute.Int("sync.failed", report.Failed),
	)
	metrics.PendingTrails.Set(float64(report.Pending - report.Synced))

	ok := report.Failed == 0 && ctx.Err() == nil
	s.recordCycle(&report, ok)
	if !ok {
		metrics.SyncCycles.WithLabelValues("error").Inc()
		if err := ctx.Err(); err != nil {
			return report, err
		}
		return report, fmt.Errorf("%w: %d of %d trails failed to sync", models.ErrStoreUnavailable, report.Failed, report.Pending)
	}
	metrics.SyncCycles.WithLabelValues("ok").Inc()
	if report.Synced > 0 {
		log.Printf("Synced %d offline trails", report.Synced)
	}
	return report, nil
}

// push writes one trail to the primary store and removes the offline copy
// after acknowledgment, unless a newer version was written offline meanwhile
func (s *SyncService) push(ctx context.Context, trail *models.Trail) error {
	synced := trail.Clone()
	synced.SyncStatus = models.SyncStatusSynced
	synced.LocalOnly = false

	start := time.Now()
	err := s.primary.UpsertTrail(ctx, synced)
	observeStore("primary", "sync", start, err)
	if err != nil {
		return err
	}

	removed, err := s.offline.DeleteTrailVersion(ctx, trail.ID, trail.Version)
	if err != nil {
		// The primary already has it; the next cycle upserts again, which is idempotent
		log.Printf("Failed to remove synced offline trail %s: %v", trail.ID, err)
		return nil
	}
	if !removed {
		log.Printf("Offline trail %s changed during sync, keeping newer copy", trail.ID)
	}
	return nil
}

// Run reconciles on every interval until ctx ends. Failed cycles back off
// exponentially; Trigger starts a cycle immediately.
func (s *SyncService) Run(ctx context.Context) {
	delay := s.cfg.Interval
	timer := time.NewTimer(delay)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		case <-s.trigger:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
		}

		if _, err := s.RunOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			delay = s.nextDelay()
			log.Printf("Sync cycle failed, retrying in %s: %v", delay, err)
		} else {
			delay = s.cfg.Interval
		}
		timer.Reset(delay)
	}
}

// Trigger requests an immediate cycle, for example when connectivity returns
func (s *SyncService) Trigger() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

// Status returns the last report and failure bookkeeping
func (s *SyncService) Status() SyncStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := SyncStatus{
		ConsecutiveFailures: s.failures,
		NextDelay:           s.cfg.Interval,
		TrailStatus:         make(map[string]string, len(s.trailFailures)),
		TrailFailures:       make(map[string]int, len(s.trailFailures)),
	}
	if s.failures > 0 {
		status.NextDelay = s.backoffLocked()
	}
	if s.lastReport != nil {
		report := *s.lastReport
		report.FailedIDs = append([]string(nil), s.lastReport.FailedIDs...)
		status.LastReport = &report
	}
	for id, n := range s.trailFailures {
		status.TrailFailures[id] = n
		status.TrailStatus[id] = models.SyncStatusFailed
	}
	return status
}

func (s *SyncService) nextDelay() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.backoffLocked()
}

// backoffLocked is base * 2^(failures-1), capped
func (s *SyncService) backoffLocked() time.Duration {
	delay := s.cfg.BackoffBase
	for i := 1; i < s.failures; i++ {
		delay *= 2
		if delay >= s.cfg.BackoffMax {
			return s.cfg.BackoffMax
		}
	}
	if delay > s.cfg.BackoffMax {
		return s.cfg.BackoffMax
	}
	return delay
}

func (s *SyncService) recordCycle(report *SyncReport, ok bool) {
	report.FinishedAt = s.now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()
	r := *report
	s.lastReport = &r
	if ok {
		s.failures = 0
	} else {
		s.failures++
	}
}

func (s *SyncService) markTrail(id string, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ok {
		delete(s.trailFailures, id)
	} else {
		s.trailFailures[id]++
	}
}
