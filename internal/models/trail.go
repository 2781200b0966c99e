package models

import (
	"fmt"
	"time"
)

// SyncStatus values
const (
	SyncStatusPending = "PENDING"
	SyncStatusSynced  = "SYNCED"
	SyncStatusFailed  = "FAILED"
)

// Trail is a named, ordered collection of track points plus derived metadata
type Trail struct {
	ID          string        `json:"id" db:"id"`
	Name        string        `json:"name" db:"name"`
	Description string        `json:"description" db:"description"`
	UserID      string        `json:"userId" db:"user_id"`
	Points      []TrackPoint  `json:"points" db:"-"`
	IsPublic    bool          `json:"isPublic" db:"is_public"`
	Metadata    TrailMetadata `json:"metadata" db:"metadata"`
	Elevation   Elevation     `json:"elevation" db:"elevation"`
	Tags        []string      `json:"tags,omitempty" db:"tags"`

	// Sync bookkeeping
	SyncStatus string `json:"syncStatus" db:"sync_status"`
	LocalOnly  bool   `json:"localOnly" db:"local_only"`
	Version    int64  `json:"version" db:"version"`

	StartTime time.Time  `json:"startTime" db:"start_time"`
	EndTime   *time.Time `json:"endTime,omitempty" db:"end_time"`
	CreatedAt time.Time  `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time  `json:"updatedAt" db:"updated_at"`
}

// TrailMetadata holds the derived statistics of a trail
type TrailMetadata struct {
	Distance      float64 `json:"distance"`      // meters
	Duration      float64 `json:"duration"`      // seconds
	ElevationGain float64 `json:"elevationGain"` // meters
	ElevationLoss float64 `json:"elevationLoss"` // meters
	AvgSpeed      float64 `json:"avgSpeed"`      // m/s
	MaxSpeed      float64 `json:"maxSpeed"`      // m/s
}

// Elevation is the structured elevation column of the trails table
type Elevation struct {
	Gain float64  `json:"gain"`
	Loss float64  `json:"loss"`
	Max  *float64 `json:"max,omitempty"`
	Min  *float64 `json:"min,omitempty"`
}

// TrailUpdate carries the user-editable fields of a trail
type TrailUpdate struct {
	Name        *string  `json:"name"`
	Description *string  `json:"description"`
	IsPublic    *bool    `json:"isPublic"`
	Tags        []string `json:"tags"`
}

// TrailsResponse represents a paginated response of trails
type TrailsResponse struct {
	Data       []Trail `json:"data"`
	Total      int64   `json:"total"`
	Page       int     `json:"page"`
	PageSize   int     `json:"pageSize"`
	TotalPages int     `json:"totalPages"`
}

// Validate checks the invariants a trail must hold before it is written
func (t *Trail) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("trail id is required")
	}
	switch t.SyncStatus {
	case SyncStatusPending, SyncStatusSynced, SyncStatusFailed:
	default:
		return fmt.Errorf("invalid sync status %q", t.SyncStatus)
	}
	for i := range t.Points {
		if err := t.Points[i].Validate(); err != nil {
			return fmt.Errorf("point %d: %w", i, err)
		}
		if i > 0 && t.Points[i].Timestamp.Before(t.Points[i-1].Timestamp) {
			return fmt.Errorf("%w: point %d is older than its predecessor", ErrMalformedPoint, i)
		}
	}
	return nil
}

// Apply merges an update into the trail. A synced trail becomes pending again
// because the edit has not reached the primary store yet.
func (t *Trail) Apply(u TrailUpdate) {
	if u.Name != nil {
		t.Name = *u.Name
	}
	if u.Description != nil {
		t.Description = *u.Description
	}
	if u.IsPublic != nil {
		t.IsPublic = *u.IsPublic
	}
	if u.Tags != nil {
		t.Tags = append([]string(nil), u.Tags...)
	}
	t.SyncStatus = SyncStatusPending
}

// Clone returns a deep copy of the trail including its points
func (t *Trail) Clone() *Trail {
	if t == nil {
		return nil
	}
	c := *t
	if t.Points != nil {
		c.Points = make([]TrackPoint, len(t.Points))
		for i, p := range t.Points {
			c.Points[i] = p.Clone()
		}
	}
	if t.Tags != nil {
		c.Tags = append([]string(nil), t.Tags...)
	}
	c.Elevation.Max = copyFloat(t.Elevation.Max)
	c.Elevation.Min = copyFloat(t.Elevation.Min)
	if t.EndTime != nil {
		end := *t.EndTime
		c.EndTime = &end
	}
	return &c
}

// NeedsSync reports whether the trail still has to reach the primary store
func (t *Trail) NeedsSync() bool {
	return t.LocalOnly || t.SyncStatus == SyncStatusPending
}
