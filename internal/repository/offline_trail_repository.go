package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/jengzang/trails-backend-go/internal/kvstore"
	"github.com/jengzang/trails-backend-go/internal/models"
)

// OfflineTrailsKey is the KV key holding the serialized offline trail list
const OfflineTrailsKey = "offline_trails"

// OfflineTrailRepository keeps complete trails as one JSON list in the
// device-local key-value store. Every write rewrites the whole list.
type OfflineTrailRepository struct {
	store kvstore.Store
	mu    sync.Mutex
}

// NewOfflineTrailRepository creates an offline repository over store
func NewOfflineTrailRepository(store kvstore.Store) *OfflineTrailRepository {
	return &OfflineTrailRepository{store: store}
}

func (r *OfflineTrailRepository) load(ctx context.Context) ([]models.Trail, error) {
	data, err := r.store.Get(ctx, OfflineTrailsKey)
	if errors.Is(err, kvstore.ErrNotFound) {
		return []models.Trail{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read offline trails: %w", err)
	}

	var trails []models.Trail
	if err := json.Unmarshal(data, &trails); err != nil {
		return nil, fmt.Errorf("failed to decode offline trails: %w", err)
	}
	if trails == nil {
		trails = []models.Trail{}
	}
	return trails, nil
}

func (r *OfflineTrailRepository) save(ctx context.Context, trails []models.Trail) error {
	data, err := json.Marshal(trails)
	if err != nil {
		return fmt.Errorf("failed to encode offline trails: %w", err)
	}
	if err := r.store.Set(ctx, OfflineTrailsKey, data); err != nil {
		return fmt.Errorf("failed to write offline trails: %w", err)
	}
	return nil
}

// UpsertTrail replaces the trail with the same id or appends it
func (r *OfflineTrailRepository) UpsertTrail(ctx context.Context, trail *models.Trail) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	trails, err := r.load(ctx)
	if err != nil {
		return err
	}

	replaced := false
	for i := range trails {
		if trails[i].ID == trail.ID {
			trails[i] = *trail.Clone()
			replaced = true
			break
		}
	}
	if !replaced {
		trails = append(trails, *trail.Clone())
	}
	return r.save(ctx, trails)
}

func (r *OfflineTrailRepository) GetTrails(ctx context.Context) ([]models.Trail, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.load(ctx)
}

func (r *OfflineTrailRepository) GetTrailByID(ctx context.Context, id string) (*models.Trail, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	trails, err := r.load(ctx)
	if err != nil {
		return nil, err
	}
	for i := range trails {
		if trails[i].ID == id {
			return &trails[i], nil
		}
	}
	return nil, nil
}

// PendingTrails returns the trails that still have to reach the primary store
func (r *OfflineTrailRepository) PendingTrails(ctx context.Context) ([]models.Trail, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	trails, err := r.load(ctx)
	if err != nil {
		return nil, err
	}
	pending := make([]models.Trail, 0, len(trails))
	for _, t := range trails {
		if t.NeedsSync() {
			pending = append(pending, t)
		}
	}
	return pending, nil
}

// DeleteTrail removes the trail from the list; a missing id is not an error
func (r *OfflineTrailRepository) DeleteTrail(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	trails, err := r.load(ctx)
	if err != nil {
		return err
	}
	kept := trails[:0]
	for _, t := range trails {
		if t.ID != id {
			kept = append(kept, t)
		}
	}
	if len(kept) == len(trails) {
		return nil
	}
	return r.save(ctx, kept)
}

// DeleteTrailVersion removes the trail unless the stored copy is newer than
// version. It reports whether an entry was removed.
func (r *OfflineTrailRepository) DeleteTrailVersion(ctx context.Context, id string, version int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	trails, err := r.load(ctx)
	if err != nil {
		return false, err
	}
	for i := range trails {
		if trails[i].ID != id {
			continue
		}
		if trails[i].Version > version {
			return false, nil
		}
		trails = append(trails[:i], trails[i+1:]...)
		return true, r.save(ctx, trails)
	}
	return false, nil
}

func (r *OfflineTrailRepository) ClearTrails(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.store.Delete(ctx, OfflineTrailsKey); err != nil {
		return fmt.Errorf("failed to clear offline trails: %w", err)
	}
	return nil
}
