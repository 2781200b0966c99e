package service

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/jengzang/trails-backend-go/internal/metrics"
	"github.com/jengzang/trails-backend-go/internal/models"
)

// SnapshotStore persists a single recording session
type SnapshotStore interface {
	Save(ctx context.Context, session *models.RecordingSession) error
	Load(ctx context.Context) (*models.RecordingSession, error)
	Delete(ctx context.Context) error
}

type snapshotOp struct {
	session *models.RecordingSession
	remove  bool
}

// SnapshotService writes recording snapshots from one background goroutine.
// Only the latest scheduled operation is kept, so callers never block on I/O
// and a slow store only ever sees the freshest session.
type SnapshotService struct {
	store   SnapshotStore
	timeout time.Duration

	mu       sync.Mutex
	pending  *snapshotOp
	seq      uint64
	done     uint64
	progress chan struct{}

	wake    chan struct{}
	stop    chan struct{}
	stopped chan struct{}
	once    sync.Once
}

// NewSnapshotService creates the service and starts its writer
func NewSnapshotService(store SnapshotStore) *SnapshotService {
	s := &SnapshotService{
		store:    store,
		timeout:  5 * time.Second,
		progress: make(chan struct{}),
		wake:     make(chan struct{}, 1),
		stop:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	go s.run()
	return s
}

// Schedule queues a copy of session for writing, replacing any write not yet started
func (s *SnapshotService) Schedule(session *models.RecordingSession) {
	if session == nil {
		return
	}
	s.enqueue(&snapshotOp{session: session.Clone()})
}

// ScheduleDelete queues removal of the stored snapshot
func (s *SnapshotService) ScheduleDelete() {
	s.enqueue(&snapshotOp{remove: true})
}

func (s *SnapshotService) enqueue(op *snapshotOp) {
	s.mu.Lock()
	s.pending = op
	s.seq++
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Load reads the stored snapshot directly from the store
func (s *SnapshotService) Load(ctx context.Context) (*models.RecordingSession, error) {
	return s.store.Load(ctx)
}

// Flush waits until every operation scheduled before the call has been applied
func (s *SnapshotService) Flush(ctx context.Context) error {
	s.mu.Lock()
	target := s.seq
	for s.done < target {
		ch := s.progress
		s.mu.Unlock()
		select {
		case <-ch:
		case <-s.stopped:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
		s.mu.Lock()
	}
	s.mu.Unlock()
	return nil
}

// Close applies the pending operation and stops the writer
func (s *SnapshotService) Close() {
	s.once.Do(func() { close(s.stop) })
	<-s.stopped
}

func (s *SnapshotService) run() {
	defer close(s.stopped)
	for {
		select {
		case <-s.wake:
			s.drain()
		case <-s.stop:
			s.drain()
			return
		}
	}
}

func (s *SnapshotService) drain() {
	for {
		s.mu.Lock()
		op, seq := s.pending, s.seq
		s.pending = nil
		s.mu.Unlock()
		if op == nil {
			return
		}

		s.apply(op)

		s.mu.Lock()
		s.done = seq
		close(s.progress)
		s.progress = make(chan struct{})
		s.mu.Unlock()
	}
}

func (s *SnapshotService) apply(op *snapshotOp) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	if op.remove {
		if err := s.store.Delete(ctx); err != nil {
			metrics.SnapshotWrites.WithLabelValues("error").Inc()
			log.Printf("Failed to delete recording snapshot: %v", err)
			return
		}
		metrics.SnapshotWrites.WithLabelValues("deleted").Inc()
		return
	}

	if err := s.store.Save(ctx, op.session); err != nil {
		metrics.SnapshotWrites.WithLabelValues("error").Inc()
		log.Printf("Failed to write recording snapshot: %v", err)
		return
	}
	metrics.SnapshotWrites.WithLabelValues("ok").Inc()
}
