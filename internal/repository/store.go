package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jengzang/trails-backend-go/internal/models"
)

// TrailStore is implemented by every backing store of the trail gateway.
// UpsertTrail replaces the stored point set of the trail wholesale.
// GetTrailByID returns nil, nil when the trail does not exist.
type TrailStore interface {
	UpsertTrail(ctx context.Context, trail *models.Trail) error
	GetTrails(ctx context.Context) ([]models.Trail, error)
	GetTrailByID(ctx context.Context, id string) (*models.Trail, error)
	DeleteTrail(ctx context.Context, id string) error
	ClearTrails(ctx context.Context) error
}

// OfflineStore is the device-local trail store the gateway falls back to.
// DeleteTrailVersion removes the trail only while its stored Version is at
// most version, so an edit written after the primary acknowledged an older
// copy survives.
type OfflineStore interface {
	TrailStore
	PendingTrails(ctx context.Context) ([]models.Trail, error)
	DeleteTrailVersion(ctx context.Context, id string, version int64) (bool, error)
}

// trailColumns holds the encoded structured columns of a trails row
type trailColumns struct {
	Metadata  string
	Elevation string
	Tags      string
}

func encodeTrailColumns(t *models.Trail) (trailColumns, error) {
	metadata, err := json.Marshal(t.Metadata)
	if err != nil {
		return trailColumns{}, fmt.Errorf("failed to encode metadata: %w", err)
	}
	elevation, err := json.Marshal(t.Elevation)
	if err != nil {
		return trailColumns{}, fmt.Errorf("failed to encode elevation: %w", err)
	}
	tags := t.Tags
	if tags == nil {
		tags = []string{}
	}
	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return trailColumns{}, fmt.Errorf("failed to encode tags: %w", err)
	}
	return trailColumns{Metadata: string(metadata), Elevation: string(elevation), Tags: string(tagsJSON)}, nil
}

func decodeTrailColumns(t *models.Trail, metadata, elevation, tags []byte) error {
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &t.Metadata); err != nil {
			return fmt.Errorf("failed to decode metadata: %w", err)
		}
	}
	if len(elevation) > 0 {
		if err := json.Unmarshal(elevation, &t.Elevation); err != nil {
			return fmt.Errorf("failed to decode elevation: %w", err)
		}
	}
	if len(tags) > 0 {
		if err := json.Unmarshal(tags, &t.Tags); err != nil {
			return fmt.Errorf("failed to decode tags: %w", err)
		}
		if len(t.Tags) == 0 {
			t.Tags = nil
		}
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse time %q: %w", s, err)
	}
	return t.UTC(), nil
}

func nullableFloat(valid bool, v float64) *float64 {
	if !valid {
		return nil
	}
	return models.Float(v)
}
