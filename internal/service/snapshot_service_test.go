package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jengzang/trails-backend-go/internal/models"
)

// blockingSnapshotStore records saves and can hold the writer inside Save
type blockingSnapshotStore struct {
	mu      sync.Mutex
	saved   []*models.RecordingSession
	deletes int
	gate    chan struct{}
	fail    bool
}

func (b *blockingSnapshotStore) Save(_ context.Context, session *models.RecordingSession) error {
	if b.gate != nil {
		<-b.gate
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.fail {
		return errUnavailable
	}
	b.saved = append(b.saved, session)
	return nil
}

func (b *blockingSnapshotStore) Load(context.Context) (*models.RecordingSession, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.saved) == 0 {
		return nil, models.ErrSnapshotNotFound
	}
	return b.saved[len(b.saved)-1], nil
}

func (b *blockingSnapshotStore) Delete(context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.deletes++
	b.saved = nil
	return nil
}

func (b *blockingSnapshotStore) savedCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.saved)
}

func sessionWithDistance(d float64) *models.RecordingSession {
	return &models.RecordingSession{
		State:    models.StateRecording,
		Trail:    &models.Trail{ID: "t1"},
		Distance: d,
	}
}

func TestSnapshotScheduleIsLatestWins(t *testing.T) {
	store := &blockingSnapshotStore{gate: make(chan struct{})}
	svc := NewSnapshotService(store)
	defer svc.Close()

	svc.Schedule(sessionWithDistance(1))
	// the writer is now parked inside Save for distance 1
	time.Sleep(10 * time.Millisecond)
	for d := 2.0; d <= 5; d++ {
		svc.Schedule(sessionWithDistance(d))
	}
	close(store.gate)

	require.NoError(t, svc.Flush(context.Background()))
	assert.LessOrEqual(t, store.savedCount(), 2, "intermediate sessions are skipped")

	latest, err := svc.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5.0, latest.Distance)
}

func TestSnapshotScheduleCopiesSession(t *testing.T) {
	store := &blockingSnapshotStore{}
	svc := NewSnapshotService(store)
	defer svc.Close()

	session := sessionWithDistance(1)
	svc.Schedule(session)
	session.Distance = 99
	session.Trail.Name = "mutated"

	require.NoError(t, svc.Flush(context.Background()))
	saved, err := svc.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1.0, saved.Distance)
	assert.Empty(t, saved.Trail.Name)
}

func TestSnapshotDelete(t *testing.T) {
	store := &blockingSnapshotStore{}
	svc := NewSnapshotService(store)
	defer svc.Close()

	svc.Schedule(sessionWithDistance(1))
	svc.ScheduleDelete()
	require.NoError(t, svc.Flush(context.Background()))

	_, err := svc.Load(context.Background())
	assert.ErrorIs(t, err, models.ErrSnapshotNotFound)
}

func TestSnapshotWriteFailureIsNotFatal(t *testing.T) {
	store := &blockingSnapshotStore{fail: true}
	svc := NewSnapshotService(store)
	defer svc.Close()

	svc.Schedule(sessionWithDistance(1))
	require.NoError(t, svc.Flush(context.Background()))
	assert.Zero(t, store.savedCount())

	store.mu.Lock()
	store.fail = false
	store.mu.Unlock()
	svc.Schedule(sessionWithDistance(2))
	require.NoError(t, svc.Flush(context.Background()))
	assert.Equal(t, 1, store.savedCount())
}

func TestSnapshotFlushHonorsContext(t *testing.T) {
	store := &blockingSnapshotStore{gate: make(chan struct{})}
	svc := NewSnapshotService(store)
	defer func() {
		close(store.gate)
		svc.Close()
	}()

	svc.Schedule(sessionWithDistance(1))
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, svc.Flush(ctx), context.DeadlineExceeded)
}

func TestSnapshotCloseDrainsPending(t *testing.T) {
	store := &blockingSnapshotStore{}
	svc := NewSnapshotService(store)

	svc.Schedule(sessionWithDistance(7))
	svc.Close()

	latest, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7.0, latest.Distance)
	assert.NoError(t, svc.Flush(context.Background()))
}
