package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jengzang/trails-backend-go/internal/metrics"
	"github.com/jengzang/trails-backend-go/internal/models"
	"github.com/jengzang/trails-backend-go/internal/spatial"
)

// LocationSource delivers location samples until ctx is cancelled.
// Subscribe returns models.ErrPermissionDenied when access is refused.
type LocationSource interface {
	Subscribe(ctx context.Context) (<-chan models.LocationPoint, error)
}

// TrailSaver persists a finished trail
type TrailSaver interface {
	SaveTrail(ctx context.Context, trail *models.Trail) (*models.Trail, error)
}

// StateBroadcaster receives every recording state change. Broadcast must not block.
type StateBroadcaster interface {
	Broadcast(state models.RecordingSnapshot)
}

// RecordingConfig controls snapshot cadence
type RecordingConfig struct {
	SnapshotEvery    int
	SnapshotInterval time.Duration
}

type startOptions struct {
	userID      string
	description string
	tags        []string
}

// StartOption customizes a new recording
type StartOption func(*startOptions)

// WithOwner sets the user the recorded trail belongs to
func WithOwner(userID string) StartOption {
	return func(o *startOptions) { o.userID = userID }
}

// WithDescription sets the trail description
func WithDescription(description string) StartOption {
	return func(o *startOptions) { o.description = description }
}

// WithTags sets the trail tags
func WithTags(tags ...string) StartOption {
	return func(o *startOptions) { o.tags = tags }
}

// RecordingService owns the single active recording session of the device
type RecordingService struct {
	saver       TrailSaver
	snapshots   *SnapshotService
	source      LocationSource
	broadcaster StateBroadcaster
	cfg         RecordingConfig
	now         func() time.Time

	mu           sync.Mutex
	state        models.RecordingState
	session      *models.RecordingSession
	lastAltitude *float64
	subGen       uint64
	cancelSub    context.CancelFunc
	cancelTicker context.CancelFunc
}

// NewRecordingService creates an idle recorder. snapshots, source and
// broadcaster may be nil.
func NewRecordingService(saver TrailSaver, snapshots *SnapshotService, source LocationSource, broadcaster StateBroadcaster, cfg RecordingConfig) *RecordingService {
	if cfg.SnapshotEvery <= 0 {
		cfg.SnapshotEvery = 10
	}
	return &RecordingService{
		saver:       saver,
		snapshots:   snapshots,
		source:      source,
		broadcaster: broadcaster,
		cfg:         cfg,
		now:         time.Now,
		state:       models.StateIdle,
	}
}

// StartRecording begins a new session. It returns false without side effects
// when a session already exists.
func (s *RecordingService) StartRecording(ctx context.Context, name string, opts ...StartOption) (bool, error) {
	s.mu.Lock()
	if s.state != models.StateIdle {
		s.mu.Unlock()
		log.Printf("Ignoring start in state %s: %v", s.state, models.ErrInvalidTransition)
		return false, nil
	}

	var o startOptions
	for _, opt := range opts {
		opt(&o)
	}

	now := s.now().UTC()
	name = strings.TrimSpace(name)
	if name == "" {
		name = "Trail " + now.Format("2006-01-02 15:04")
	}

	if err := s.subscribe(ctx); err != nil {
		s.mu.Unlock()
		return false, err
	}

	trail := &models.Trail{
		ID:          uuid.NewString(),
		Name:        name,
		Description: o.description,
		UserID:      o.userID,
		Points:      []models.TrackPoint{},
		Tags:        o.tags,
		SyncStatus:  models.SyncStatusPending,
		LocalOnly:   true,
		StartTime:   now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.session = &models.RecordingSession{
		State:     models.StateRecording,
		Trail:     trail,
		StartTime: now,
	}
	s.lastAltitude = nil
	s.transition(models.StateRecording)
	s.startTicker()
	s.snapshotLocked()
	state := s.stateLocked()
	s.mu.Unlock()

	s.broadcast(state)
	log.Printf("Recording started: trail %s (%s)", trail.ID, trail.Name)
	return true, nil
}

// AddLocationPoint ingests one sample. It reports whether the point was recorded.
func (s *RecordingService) AddLocationPoint(p models.LocationPoint) bool {
	return s.addPoint(0, p)
}

func (s *RecordingService) addPoint(gen uint64, p models.LocationPoint) bool {
	s.mu.Lock()

	// samples from a cancelled subscription
	if gen != 0 && gen != s.subGen {
		s.mu.Unlock()
		return false
	}

	if s.state != models.StateRecording {
		s.mu.Unlock()
		metrics.PointsIngested.WithLabelValues("ignored").Inc()
		log.Printf("Ignoring location point in state %s", s.state)
		return false
	}

	session := s.session
	trail := session.Trail
	tp := p.ToTrackPoint(trail.ID)
	tp.Timestamp = tp.Timestamp.UTC()
	if err := s.checkPoint(tp); err != nil {
		s.mu.Unlock()
		metrics.PointsIngested.WithLabelValues("malformed").Inc()
		log.Printf("Skipping location point: %v", err)
		return false
	}

	if n := len(trail.Points); n > 0 {
		last := trail.Points[n-1]
		step := spatial.Distance(last, tp)
		if tp.Heading == nil && step > 0 {
			tp.Heading = models.Float(spatial.Bearing(last.Latitude, last.Longitude, tp.Latitude, tp.Longitude))
		}
		session.Distance += step
	}
	trail.Points = append(trail.Points, tp)

	if tp.Altitude != nil {
		if s.lastAltitude != nil {
			delta := *tp.Altitude - *s.lastAltitude
			if delta > 0 {
				trail.Metadata.ElevationGain += delta
			} else {
				trail.Metadata.ElevationLoss -= delta
			}
		}
		s.lastAltitude = models.Float(*tp.Altitude)
	}
	if tp.Speed != nil && *tp.Speed > trail.Metadata.MaxSpeed {
		trail.Metadata.MaxSpeed = *tp.Speed
	}
	s.updateDurationLocked()

	session.SinceSnapshot++
	if session.SinceSnapshot >= s.cfg.SnapshotEvery {
		s.snapshotLocked()
	}

	state := s.stateLocked()
	s.mu.Unlock()

	metrics.PointsIngested.WithLabelValues("recorded").Inc()
	s.broadcast(state)
	return true
}

func (s *RecordingService) checkPoint(tp models.TrackPoint) error {
	if err := tp.Validate(); err != nil {
		return err
	}
	points := s.session.Trail.Points
	if n := len(points); n > 0 && tp.Timestamp.Before(points[n-1].Timestamp) {
		return fmt.Errorf("%w: timestamp %s precedes last point %s",
			models.ErrMalformedPoint, tp.Timestamp.Format(time.RFC3339), points[n-1].Timestamp.Format(time.RFC3339))
	}
	return nil
}

// PauseRecording suspends ingestion and keeps the accumulated state
func (s *RecordingService) PauseRecording() bool {
	s.mu.Lock()
	if s.state != models.StateRecording {
		s.mu.Unlock()
		log.Printf("Ignoring pause in state %s: %v", s.state, models.ErrInvalidTransition)
		return false
	}

	s.cancelStreamsLocked()
	now := s.now().UTC()
	s.session.PausedAt = &now
	s.updateDurationLocked()
	s.transition(models.StatePaused)
	s.snapshotLocked()
	state := s.stateLocked()
	s.mu.Unlock()

	s.broadcast(state)
	return true
}

// ResumeRecording continues a paused session
func (s *RecordingService) ResumeRecording(ctx context.Context) (bool, error) {
	s.mu.Lock()
	if s.state != models.StatePaused {
		s.mu.Unlock()
		log.Printf("Ignoring resume in state %s: %v", s.state, models.ErrInvalidTransition)
		return false, nil
	}

	if err := s.subscribe(ctx); err != nil {
		s.mu.Unlock()
		return false, err
	}

	now := s.now().UTC()
	if s.session.PausedAt != nil {
		s.session.PausedTotal += now.Sub(*s.session.PausedAt)
		s.session.PausedAt = nil
	}
	s.transition(models.StateRecording)
	s.startTicker()
	s.updateDurationLocked()
	s.snapshotLocked()
	state := s.stateLocked()
	s.mu.Unlock()

	s.broadcast(state)
	return true, nil
}

// StopRecording finalizes and saves the session. It returns nil, nil when no
// session is active. When both stores reject the trail the session stays
// paused with its snapshot and the error is returned.
func (s *RecordingService) StopRecording(ctx context.Context) (*models.Trail, error) {
	s.mu.Lock()
	if !s.state.Active() {
		s.mu.Unlock()
		log.Printf("Ignoring stop in state %s: %v", s.state, models.ErrInvalidTransition)
		return nil, nil
	}

	s.cancelStreamsLocked()
	s.transition(models.StateStopping)

	end := s.now().UTC()
	if s.session.PausedAt != nil {
		end = *s.session.PausedAt
	} else {
		s.session.PausedAt = &end
	}
	s.updateDurationLocked()
	trail := s.finalizeLocked(end)
	s.transition(models.StateSaving)
	state := s.stateLocked()
	s.mu.Unlock()

	s.broadcast(state)

	saved, err := s.saver.SaveTrail(ctx, trail)

	s.mu.Lock()
	if err != nil {
		s.transition(models.StatePaused)
		s.snapshotLocked()
		state = s.stateLocked()
		s.mu.Unlock()
		s.broadcast(state)
		log.Printf("Failed to save trail %s, session kept paused: %v", trail.ID, err)
		return nil, err
	}

	s.session = nil
	s.lastAltitude = nil
	s.transition(models.StateIdle)
	if s.snapshots != nil {
		s.snapshots.ScheduleDelete()
	}
	state = s.stateLocked()
	s.mu.Unlock()

	s.broadcast(state)
	log.Printf("Recording stopped: trail %s saved with %d points", saved.ID, len(saved.Points))
	return saved, nil
}

// finalizeLocked builds the trail to persist from the session
func (s *RecordingService) finalizeLocked(end time.Time) *models.Trail {
	trail := s.session.Trail.Clone()
	trail.EndTime = &end

	elevation := spatial.ElevationStats(trail.Points)
	trail.Elevation = elevation
	trail.Metadata.ElevationGain = elevation.Gain
	trail.Metadata.ElevationLoss = elevation.Loss

	speed := spatial.ComputeSpeedStats(trail.Points, s.session.Duration)
	trail.Metadata.Distance = s.session.Distance
	trail.Metadata.Duration = s.session.Duration
	trail.Metadata.MaxSpeed = speed.Max
	if s.session.Duration > 0 {
		trail.Metadata.AvgSpeed = s.session.Distance / s.session.Duration
	} else {
		trail.Metadata.AvgSpeed = 0
	}
	return trail
}

// GetRecordingState returns a deep copy of the current state
func (s *RecordingService) GetRecordingState() models.RecordingSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

// Restore rebuilds the session from the stored snapshot after a restart.
// It reports whether a session was restored.
func (s *RecordingService) Restore(ctx context.Context) (bool, error) {
	if s.snapshots == nil {
		return false, nil
	}

	session, err := s.snapshots.Load(ctx)
	if errors.Is(err, models.ErrSnapshotNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to load recording snapshot: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != models.StateIdle {
		return false, nil
	}

	s.session = session
	s.session.SinceSnapshot = 0
	s.lastAltitude = nil
	for i := len(session.Trail.Points) - 1; i >= 0; i-- {
		if alt := session.Trail.Points[i].Altitude; alt != nil {
			s.lastAltitude = models.Float(*alt)
			break
		}
	}

	if session.State == models.StatePaused {
		if session.PausedAt == nil {
			now := s.now().UTC()
			session.PausedAt = &now
		}
		s.transition(models.StatePaused)
	} else {
		session.PausedAt = nil
		if err := s.subscribe(ctx); err != nil {
			log.Printf("Failed to resubscribe restored recording, keeping it paused: %v", err)
			now := s.now().UTC()
			session.PausedAt = &now
			s.transition(models.StatePaused)
		} else {
			s.transition(models.StateRecording)
			s.startTicker()
		}
	}
	s.updateDurationLocked()
	s.snapshotLocked()
	log.Printf("Restored %s recording of trail %s with %d points", s.state, session.Trail.ID, len(session.Trail.Points))
	return true, nil
}

// Consume feeds points from ch until it closes or ctx ends
func (s *RecordingService) Consume(ctx context.Context, ch <-chan models.LocationPoint) {
	s.consume(ctx, 0, ch)
}

func (s *RecordingService) consume(ctx context.Context, gen uint64, ch <-chan models.LocationPoint) {
	for {
		select {
		case <-ctx.Done():
			return
		case p, ok := <-ch:
			if !ok {
				return
			}
			s.addPoint(gen, p)
		}
	}
}

// subscribe attaches to the location source. The subscription outlives the
// caller's request and ends when the session pauses or stops.
func (s *RecordingService) subscribe(ctx context.Context) error {
	if s.source == nil {
		return nil
	}

	subCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	ch, err := s.source.Subscribe(subCtx)
	if err != nil {
		cancel()
		if errors.Is(err, models.ErrPermissionDenied) {
			return err
		}
		return fmt.Errorf("failed to subscribe to location source: %w", err)
	}

	s.subGen++
	s.cancelSub = cancel
	go s.consume(subCtx, s.subGen, ch)
	return nil
}

func (s *RecordingService) startTicker() {
	if s.cfg.SnapshotInterval <= 0 || s.snapshots == nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancelTicker = cancel
	go func() {
		ticker := time.NewTicker(s.cfg.SnapshotInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.mu.Lock()
				if s.state == models.StateRecording && ctx.Err() == nil {
					s.updateDurationLocked()
					s.snapshotLocked()
				}
				s.mu.Unlock()
			}
		}
	}()
}

func (s *RecordingService) cancelStreamsLocked() {
	if s.cancelSub != nil {
		s.cancelSub()
		s.cancelSub = nil
	}
	// invalidate samples already read from the cancelled subscription
	s.subGen++
	if s.cancelTicker != nil {
		s.cancelTicker()
		s.cancelTicker = nil
	}
}

func (s *RecordingService) transition(to models.RecordingState) {
	s.state = to
	if s.session != nil {
		s.session.State = to
	}
	metrics.RecordingTransitions.WithLabelValues(string(to)).Inc()
}

// updateDurationLocked refreshes the clock-based duration and the speed
// average derived from it
func (s *RecordingService) updateDurationLocked() {
	session := s.session
	session.Duration = session.Elapsed(s.now()).Seconds()
	session.Trail.Metadata.Distance = session.Distance
	session.Trail.Metadata.Duration = session.Duration
	if session.Duration > 0 {
		session.Trail.Metadata.AvgSpeed = session.Distance / session.Duration
	} else {
		session.Trail.Metadata.AvgSpeed = 0
	}
}

func (s *RecordingService) snapshotLocked() {
	if s.session == nil {
		return
	}
	s.session.SinceSnapshot = 0
	if s.snapshots != nil {
		s.snapshots.Schedule(s.session)
	}
}

func (s *RecordingService) stateLocked() models.RecordingSnapshot {
	snap := models.RecordingSnapshot{State: s.state}
	if s.session == nil {
		return snap
	}

	session := s.session
	trail := session.Trail.Clone()
	duration := session.Elapsed(s.now()).Seconds()
	if s.state == models.StateStopping || s.state == models.StateSaving {
		duration = session.Duration
	}
	start := session.StartTime

	snap.Trail = trail
	snap.PointCount = len(trail.Points)
	snap.StartTime = &start
	snap.Distance = session.Distance
	snap.Duration = duration
	snap.MaxSpeed = trail.Metadata.MaxSpeed
	if duration > 0 {
		snap.AvgSpeed = session.Distance / duration
	}
	if n := len(trail.Points); n > 0 && trail.Points[n-1].Speed != nil {
		snap.CurrentSpeed = *trail.Points[n-1].Speed
	}
	return snap
}

func (s *RecordingService) broadcast(state models.RecordingSnapshot) {
	if s.broadcaster != nil {
		s.broadcaster.Broadcast(state)
	}
}
