package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jengzang/trails-backend-go/internal/kvstore"
	"github.com/jengzang/trails-backend-go/internal/models"
)

// SnapshotKey is the KV key holding the in-progress recording session
const SnapshotKey = "recording_session"

// SnapshotRepository persists the recording session for crash recovery
type SnapshotRepository struct {
	store kvstore.Store
}

// NewSnapshotRepository creates a snapshot repository over store
func NewSnapshotRepository(store kvstore.Store) *SnapshotRepository {
	return &SnapshotRepository{store: store}
}

// Save overwrites the stored session
func (r *SnapshotRepository) Save(ctx context.Context, session *models.RecordingSession) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	if err := r.store.Set(ctx, SnapshotKey, data); err != nil {
		return fmt.Errorf("failed to write session: %w", err)
	}
	return nil
}

// Load returns the stored session or models.ErrSnapshotNotFound
func (r *SnapshotRepository) Load(ctx context.Context) (*models.RecordingSession, error) {
	data, err := r.store.Get(ctx, SnapshotKey)
	if errors.Is(err, kvstore.ErrNotFound) {
		return nil, models.ErrSnapshotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session: %w", err)
	}

	var session models.RecordingSession
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}
	if session.Trail == nil {
		return nil, fmt.Errorf("%w: snapshot has no trail", models.ErrSnapshotNotFound)
	}
	return &session, nil
}

// Delete removes the stored session
func (r *SnapshotRepository) Delete(ctx context.Context) error {
	if err := r.store.Delete(ctx, SnapshotKey); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}
