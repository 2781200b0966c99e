package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jengzang/trails-backend-go/internal/models"
)

func newGateway(primary, offline *memStore) (*TrailService, *[]time.Duration) {
	svc := NewTrailService(primary, offline, GatewayConfig{MaxAttempts: 3, RetryDelay: 100 * time.Millisecond})
	var delays []time.Duration
	svc.sleep = func(_ context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}
	return svc, &delays
}

func trailWithPoints(id, name string, n int) *models.Trail {
	start := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	points := make([]models.TrackPoint, n)
	for i := range points {
		points[i] = models.TrackPoint{
			Latitude:  46.0 + float64(i)*0.001,
			Longitude: 7.0,
			Timestamp: start.Add(time.Duration(i) * 10 * time.Second),
			Altitude:  models.Float(1000 + float64(i)),
		}
	}
	return &models.Trail{
		ID:         id,
		Name:       name,
		Points:     points,
		SyncStatus: models.SyncStatusPending,
		StartTime:  start,
		Metadata:   models.TrailMetadata{Distance: float64(n) * 111},
	}
}

func TestSaveTrailPrimarySuccess(t *testing.T) {
	primary, offline := newMemStore(), newMemStore()
	svc, delays := newGateway(primary, offline)

	// stale offline copy from an earlier failed save
	require.NoError(t, offline.UpsertTrail(context.Background(), trailWithPoints("t1", "old", 1)))

	saved, outcome, err := svc.Save(context.Background(), trailWithPoints("t1", "Ridge", 3))
	require.NoError(t, err)
	assert.Equal(t, SaveOutcome{Source: SourcePrimary, Attempts: 1}, outcome)
	assert.Equal(t, models.SyncStatusSynced, saved.SyncStatus)
	assert.False(t, saved.LocalOnly)
	assert.Equal(t, int64(1), saved.Version)
	assert.False(t, saved.UpdatedAt.IsZero())
	assert.Empty(t, *delays)

	assert.Equal(t, 1, primary.count())
	assert.Zero(t, offline.count(), "stale offline copy removed")
}

func TestSaveTrailAssignsID(t *testing.T) {
	svc, _ := newGateway(newMemStore(), newMemStore())

	trail := trailWithPoints("", "no id", 2)
	saved, err := svc.SaveTrail(context.Background(), trail)
	require.NoError(t, err)
	assert.NotEmpty(t, saved.ID)
	assert.Empty(t, trail.ID, "caller's trail is not mutated")
	for _, p := range saved.Points {
		assert.Equal(t, saved.ID, p.TrailID)
	}
}

func TestSaveTrailUpsertReplaces(t *testing.T) {
	primary, offline := newMemStore(), newMemStore()
	svc, _ := newGateway(primary, offline)
	ctx := context.Background()

	_, err := svc.SaveTrail(ctx, trailWithPoints("t1", "first", 5))
	require.NoError(t, err)

	second := trailWithPoints("t1", "second", 2)
	second.Metadata.Distance = 42
	_, err = svc.SaveTrail(ctx, second)
	require.NoError(t, err)

	got, err := svc.GetTrailByID(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "second", got.Name)
	assert.Equal(t, 42.0, got.Metadata.Distance)
	assert.Len(t, got.Points, 2)

	all, err := svc.GetAllTrails(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestSaveTrailRetriesThenFallsBack(t *testing.T) {
	primary, offline := newMemStore(), newMemStore()
	primary.setFail(true)
	svc, delays := newGateway(primary, offline)
	ctx := context.Background()

	original := trailWithPoints("t1", "Fjord", 4)
	saved, outcome, err := svc.Save(ctx, original)
	require.NoError(t, err)
	assert.Equal(t, SaveOutcome{Source: SourceOffline, Attempts: 3}, outcome)
	assert.Equal(t, 3, primary.upserts)
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}, *delays)

	assert.Equal(t, models.SyncStatusPending, saved.SyncStatus)
	assert.True(t, saved.LocalOnly)

	all, err := svc.GetAllTrails(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	got := all[0]
	assert.Equal(t, original.ID, got.ID)
	assert.Equal(t, original.Name, got.Name)
	assert.Equal(t, original.Metadata, got.Metadata)
	assert.Equal(t, models.SyncStatusPending, got.SyncStatus)
	assert.True(t, got.LocalOnly)
	require.Len(t, got.Points, len(original.Points))
	for i := range got.Points {
		assert.Equal(t, original.Points[i].Latitude, got.Points[i].Latitude)
		assert.True(t, original.Points[i].Timestamp.Equal(got.Points[i].Timestamp))
		assert.Equal(t, original.Points[i].Altitude, got.Points[i].Altitude)
	}
}

func TestSaveTrailDualStoreFailure(t *testing.T) {
	primary, offline := newMemStore(), newMemStore()
	primary.setFail(true)
	offline.setFail(true)
	svc, _ := newGateway(primary, offline)

	saved, outcome, err := svc.Save(context.Background(), trailWithPoints("t1", "x", 1))
	assert.Nil(t, saved)
	assert.Equal(t, SourceNone, outcome.Source)
	assert.ErrorIs(t, err, models.ErrDualStoreFailure)
	assert.ErrorIs(t, err, models.ErrStoreUnavailable)
	assert.ErrorIs(t, err, errUnavailable)
}

func TestSaveTrailWithoutPrimary(t *testing.T) {
	offline := newMemStore()
	svc := NewTrailService(nil, offline, DefaultGatewayConfig())

	_, outcome, err := svc.Save(context.Background(), trailWithPoints("t1", "x", 1))
	require.NoError(t, err)
	assert.Equal(t, SourceOffline, outcome.Source)
	assert.Equal(t, 1, offline.count())
}

func TestSaveTrailRejectsInvalidTrail(t *testing.T) {
	primary, offline := newMemStore(), newMemStore()
	svc, _ := newGateway(primary, offline)

	trail := trailWithPoints("t1", "bad", 2)
	trail.Points[1].Timestamp = trail.Points[0].Timestamp.Add(-time.Second)
	_, err := svc.SaveTrail(context.Background(), trail)
	assert.ErrorIs(t, err, models.ErrMalformedPoint)
	assert.Zero(t, primary.upserts)
	assert.Zero(t, offline.upserts)
}

func TestGetAllTrailsMergesOffline(t *testing.T) {
	primary, offline := newMemStore(), newMemStore()
	svc, _ := newGateway(primary, offline)
	ctx := context.Background()

	current := trailWithPoints("a", "a", 1)
	current.Version = 2
	stale := trailWithPoints("a", "a-offline", 1)
	stale.Version = 1
	require.NoError(t, primary.UpsertTrail(ctx, current))
	require.NoError(t, offline.UpsertTrail(ctx, stale))
	require.NoError(t, offline.UpsertTrail(ctx, trailWithPoints("b", "b", 1)))

	all, err := svc.GetAllTrails(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "a", all[0].Name, "primary copy wins over an older offline one")
	assert.Equal(t, "b", all[1].ID)

	edited := trailWithPoints("a", "a-edited", 1)
	edited.Version = 3
	edited.LocalOnly = true
	require.NoError(t, offline.UpsertTrail(ctx, edited))
	all, err = svc.GetAllTrails(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "a-edited", all[0].Name, "pending offline edit supersedes primary")

	primary.setFail(true)
	all, err = svc.GetAllTrails(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2, "offline list when primary fails")

	offline.setFail(true)
	_, err = svc.GetAllTrails(ctx)
	assert.ErrorIs(t, err, models.ErrDualStoreFailure)
}

func TestGetTrailByIDFallsBackToOffline(t *testing.T) {
	primary, offline := newMemStore(), newMemStore()
	svc, _ := newGateway(primary, offline)
	ctx := context.Background()

	require.NoError(t, offline.UpsertTrail(ctx, trailWithPoints("b", "offline", 1)))

	got, err := svc.GetTrailByID(ctx, "b")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "offline", got.Name)

	primary.setFail(true)
	got, err = svc.GetTrailByID(ctx, "b")
	require.NoError(t, err)
	assert.NotNil(t, got)

	got, err = svc.GetTrailByID(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestUpdateTrail(t *testing.T) {
	primary, offline := newMemStore(), newMemStore()
	svc, _ := newGateway(primary, offline)
	ctx := context.Background()

	_, err := svc.SaveTrail(ctx, trailWithPoints("t1", "before", 2))
	require.NoError(t, err)

	name := "after"
	public := true
	updated, err := svc.UpdateTrail(ctx, "t1", models.TrailUpdate{Name: &name, IsPublic: &public, Tags: []string{"lake"}})
	require.NoError(t, err)
	assert.Equal(t, "after", updated.Name)
	assert.True(t, updated.IsPublic)
	assert.Equal(t, []string{"lake"}, updated.Tags)
	assert.Equal(t, int64(2), updated.Version)
	assert.Len(t, updated.Points, 2)

	_, err = svc.UpdateTrail(ctx, "missing", models.TrailUpdate{Name: &name})
	assert.ErrorIs(t, err, models.ErrTrailNotFound)
}

func TestUpdateTrailKeepsPendingOfflineEdit(t *testing.T) {
	primary, offline := newMemStore(), newMemStore()
	svc, _ := newGateway(primary, offline)
	ctx := context.Background()

	saved, err := svc.SaveTrail(ctx, trailWithPoints("t1", "ridge", 2))
	require.NoError(t, err)

	primary.setFail(true)
	saved.Description = "edited offline"
	_, outcome, err := svc.Save(ctx, saved)
	require.NoError(t, err)
	assert.Equal(t, SourceOffline, outcome.Source)

	primary.setFail(false)
	got, err := svc.GetTrailByID(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "edited offline", got.Description)

	public := true
	updated, err := svc.UpdateTrail(ctx, "t1", models.TrailUpdate{IsPublic: &public})
	require.NoError(t, err)
	assert.Equal(t, "edited offline", updated.Description)
	assert.Equal(t, int64(3), updated.Version)

	stored, err := primary.GetTrailByID(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "edited offline", stored.Description)
	assert.True(t, stored.IsPublic)
	assert.Zero(t, offline.count(), "superseded offline copy removed")
}

func TestSaveTrailKeepsNewerOfflineCopy(t *testing.T) {
	primary, offline := newMemStore(), newMemStore()
	svc, _ := newGateway(primary, offline)
	ctx := context.Background()

	newer := trailWithPoints("t1", "newer", 1)
	newer.Version = 5
	newer.LocalOnly = true
	require.NoError(t, offline.UpsertTrail(ctx, newer))

	_, outcome, err := svc.Save(ctx, trailWithPoints("t1", "older", 1))
	require.NoError(t, err)
	assert.Equal(t, SourcePrimary, outcome.Source)

	kept, err := offline.GetTrailByID(ctx, "t1")
	require.NoError(t, err)
	require.NotNil(t, kept)
	assert.Equal(t, "newer", kept.Name)
}

func TestDeleteTrail(t *testing.T) {
	primary, offline := newMemStore(), newMemStore()
	svc, _ := newGateway(primary, offline)
	ctx := context.Background()

	require.NoError(t, primary.UpsertTrail(ctx, trailWithPoints("t1", "x", 1)))
	require.NoError(t, offline.UpsertTrail(ctx, trailWithPoints("t1", "x", 1)))

	require.NoError(t, svc.DeleteTrail(ctx, "t1"))
	assert.Zero(t, primary.count())
	assert.Zero(t, offline.count())

	require.NoError(t, offline.UpsertTrail(ctx, trailWithPoints("t2", "x", 1)))
	primary.setFail(true)
	require.NoError(t, svc.DeleteTrail(ctx, "t2"), "primary failure falls back to offline removal")
	assert.Zero(t, offline.count())

	offline.setFail(true)
	err := svc.DeleteTrail(ctx, "t3")
	assert.True(t, errors.Is(err, models.ErrDualStoreFailure))
}

func TestClearAllTrails(t *testing.T) {
	primary, offline := newMemStore(), newMemStore()
	svc, _ := newGateway(primary, offline)
	ctx := context.Background()

	require.NoError(t, primary.UpsertTrail(ctx, trailWithPoints("a", "a", 1)))
	require.NoError(t, offline.UpsertTrail(ctx, trailWithPoints("b", "b", 1)))

	require.NoError(t, svc.ClearAllTrails(ctx))
	assert.Zero(t, primary.count())
	assert.Zero(t, offline.count())

	primary.setFail(true)
	assert.ErrorIs(t, svc.ClearAllTrails(ctx), errUnavailable)
}

func TestListTrailsPaginates(t *testing.T) {
	primary, offline := newMemStore(), newMemStore()
	svc, _ := newGateway(primary, offline)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		trail := trailWithPoints(id, id, 1)
		trail.UserID = "u1"
		require.NoError(t, primary.UpsertTrail(ctx, trail))
	}
	other := trailWithPoints("d", "d", 1)
	other.UserID = "u2"
	require.NoError(t, primary.UpsertTrail(ctx, other))

	page, err := svc.ListTrails(ctx, models.TrailFilter{UserID: "u1", Page: 2, PageSize: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(3), page.Total)
	assert.Equal(t, 2, page.TotalPages)
	require.Len(t, page.Data, 1)
	assert.Equal(t, "c", page.Data[0].ID)
}

func TestSleepContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sleepContext(ctx, time.Hour), context.Canceled)
	assert.NoError(t, sleepContext(context.Background(), time.Millisecond))
}
