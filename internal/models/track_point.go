package models

import (
	"fmt"
	"math"
	"time"
)

// TrackPoint is one timestamped GPS sample belonging to a trail
type TrackPoint struct {
	ID        int64     `json:"id,omitempty" db:"id"`
	TrailID   string    `json:"trailId,omitempty" db:"trail_id"`
	Latitude  float64   `json:"latitude" db:"latitude"`
	Longitude float64   `json:"longitude" db:"longitude"`
	Timestamp time.Time `json:"timestamp" db:"timestamp"`

	// Optional sensor readings; nil means the provider did not report them
	Accuracy *float64 `json:"accuracy,omitempty" db:"accuracy"`
	Altitude *float64 `json:"altitude,omitempty" db:"elevation"`
	Speed    *float64 `json:"speed,omitempty" db:"speed"`     // m/s
	Heading  *float64 `json:"heading,omitempty" db:"heading"` // degrees, 0 = north
}

// LocationPoint is a raw sample as delivered by the location provider
type LocationPoint struct {
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Altitude  *float64  `json:"altitude,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Accuracy  *float64  `json:"accuracy,omitempty"`
	Speed     *float64  `json:"speed,omitempty"`
	Heading   *float64  `json:"heading,omitempty"`
}

// ToTrackPoint converts a provider sample into a track point for the given trail
func (p LocationPoint) ToTrackPoint(trailID string) TrackPoint {
	return TrackPoint{
		TrailID:   trailID,
		Latitude:  p.Latitude,
		Longitude: p.Longitude,
		Timestamp: p.Timestamp,
		Accuracy:  copyFloat(p.Accuracy),
		Altitude:  copyFloat(p.Altitude),
		Speed:     copyFloat(p.Speed),
		Heading:   copyFloat(p.Heading),
	}
}

// Validate reports ErrMalformedPoint for coordinates or timestamps that cannot be recorded
func (p TrackPoint) Validate() error {
	if math.IsNaN(p.Latitude) || math.IsNaN(p.Longitude) ||
		math.IsInf(p.Latitude, 0) || math.IsInf(p.Longitude, 0) {
		return fmt.Errorf("%w: non-finite coordinate", ErrMalformedPoint)
	}
	if p.Latitude < -90 || p.Latitude > 90 {
		return fmt.Errorf("%w: latitude %f out of range", ErrMalformedPoint, p.Latitude)
	}
	if p.Longitude < -180 || p.Longitude > 180 {
		return fmt.Errorf("%w: longitude %f out of range", ErrMalformedPoint, p.Longitude)
	}
	if p.Timestamp.IsZero() {
		return fmt.Errorf("%w: missing timestamp", ErrMalformedPoint)
	}
	for name, v := range map[string]*float64{"accuracy": p.Accuracy, "altitude": p.Altitude, "speed": p.Speed, "heading": p.Heading} {
		if v != nil && (math.IsNaN(*v) || math.IsInf(*v, 0)) {
			return fmt.Errorf("%w: non-finite %s", ErrMalformedPoint, name)
		}
	}
	return nil
}

// Clone returns a deep copy that shares no pointers with p
func (p TrackPoint) Clone() TrackPoint {
	c := p
	c.Accuracy = copyFloat(p.Accuracy)
	c.Altitude = copyFloat(p.Altitude)
	c.Speed = copyFloat(p.Speed)
	c.Heading = copyFloat(p.Heading)
	return c
}

// Float returns a pointer to v, for optional sensor fields
func Float(v float64) *float64 {
	return &v
}

func copyFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
