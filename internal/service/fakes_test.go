package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jengzang/trails-backend-go/internal/models"
)

var errUnavailable = errors.New("connection refused")

// memStore is an in-memory TrailStore whose writes can be made to fail
type memStore struct {
	mu      sync.Mutex
	trails  map[string]*models.Trail
	order   []string
	fail    bool
	upserts int
	deletes int

	// beforeUpsert runs ahead of every upsert, outside the lock
	beforeUpsert func(*models.Trail)
}

func newMemStore() *memStore {
	return &memStore{trails: make(map[string]*models.Trail)}
}

func (m *memStore) setFail(fail bool) {
	m.mu.Lock()
	m.fail = fail
	m.mu.Unlock()
}

func (m *memStore) UpsertTrail(_ context.Context, trail *models.Trail) error {
	if m.beforeUpsert != nil {
		m.beforeUpsert(trail)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upserts++
	if m.fail {
		return errUnavailable
	}
	if _, ok := m.trails[trail.ID]; !ok {
		m.order = append(m.order, trail.ID)
	}
	m.trails[trail.ID] = trail.Clone()
	return nil
}

func (m *memStore) GetTrails(context.Context) ([]models.Trail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return nil, errUnavailable
	}
	trails := []models.Trail{}
	for _, id := range m.order {
		if t, ok := m.trails[id]; ok {
			trails = append(trails, *t.Clone())
		}
	}
	return trails, nil
}

func (m *memStore) GetTrailByID(_ context.Context, id string) (*models.Trail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return nil, errUnavailable
	}
	if t, ok := m.trails[id]; ok {
		return t.Clone(), nil
	}
	return nil, nil
}

func (m *memStore) DeleteTrail(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deletes++
	if m.fail {
		return errUnavailable
	}
	delete(m.trails, id)
	return nil
}

func (m *memStore) DeleteTrailVersion(_ context.Context, id string, version int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deletes++
	if m.fail {
		return false, errUnavailable
	}
	t, ok := m.trails[id]
	if !ok || t.Version > version {
		return false, nil
	}
	delete(m.trails, id)
	return true, nil
}

func (m *memStore) ClearTrails(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errUnavailable
	}
	m.trails = make(map[string]*models.Trail)
	m.order = nil
	return nil
}

func (m *memStore) PendingTrails(ctx context.Context) ([]models.Trail, error) {
	trails, err := m.GetTrails(ctx)
	if err != nil {
		return nil, err
	}
	pending := []models.Trail{}
	for _, t := range trails {
		if t.NeedsSync() {
			pending = append(pending, t)
		}
	}
	return pending, nil
}

func (m *memStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.trails)
}

// fakeClock is a manually advanced clock
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// fakeSource hands out channels the test writes to
type fakeSource struct {
	mu        sync.Mutex
	err       error
	channels  []chan models.LocationPoint
	cancelled int
}

func (f *fakeSource) Subscribe(ctx context.Context) (<-chan models.LocationPoint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	ch := make(chan models.LocationPoint, 16)
	f.channels = append(f.channels, ch)
	go func() {
		<-ctx.Done()
		f.mu.Lock()
		f.cancelled++
		f.mu.Unlock()
	}()
	return ch, nil
}

func (f *fakeSource) latest() chan models.LocationPoint {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.channels[len(f.channels)-1]
}

func (f *fakeSource) cancelledCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cancelled
}

// recordingBroadcaster keeps every broadcast state
type recordingBroadcaster struct {
	mu     sync.Mutex
	states []models.RecordingSnapshot
}

func (b *recordingBroadcaster) Broadcast(state models.RecordingSnapshot) {
	b.mu.Lock()
	b.states = append(b.states, state)
	b.mu.Unlock()
}

func (b *recordingBroadcaster) last() models.RecordingSnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.states[len(b.states)-1]
}

// failingSaver rejects every trail with a dual store failure
type failingSaver struct{}

func (failingSaver) SaveTrail(context.Context, *models.Trail) (*models.Trail, error) {
	return nil, models.ErrDualStoreFailure
}

func noSleep(context.Context, time.Duration) error { return nil }
