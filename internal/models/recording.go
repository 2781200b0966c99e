package models

import "time"

// RecordingState is a state of the recording lifecycle
type RecordingState string

// Recording states
const (
	StateIdle      RecordingState = "idle"
	StateRecording RecordingState = "recording"
	StatePaused    RecordingState = "paused"
	StateStopping  RecordingState = "stopping"
	StateSaving    RecordingState = "saving"
)

// Active reports whether a session exists in this state
func (s RecordingState) Active() bool {
	return s == StateRecording || s == StatePaused
}

// RecordingSession is the in-progress recording. It is owned by the
// recording service and never handed out directly.
type RecordingSession struct {
	State     RecordingState `json:"state"`
	Trail     *Trail         `json:"trail"`
	StartTime time.Time      `json:"startTime"`
	Distance  float64        `json:"distance"` // meters, never decreases
	Duration  float64        `json:"duration"` // seconds, excludes paused time

	// Pause bookkeeping for the clock-based duration
	PausedAt    *time.Time    `json:"pausedAt,omitempty"`
	PausedTotal time.Duration `json:"pausedTotal"`

	// Points ingested since the last snapshot
	SinceSnapshot int `json:"sinceSnapshot"`
}

// Clone returns a deep copy of the session
func (s *RecordingSession) Clone() *RecordingSession {
	if s == nil {
		return nil
	}
	c := *s
	c.Trail = s.Trail.Clone()
	if s.PausedAt != nil {
		at := *s.PausedAt
		c.PausedAt = &at
	}
	return &c
}

// Elapsed returns the recorded time at now, excluding pauses
func (s *RecordingSession) Elapsed(now time.Time) time.Duration {
	end := now
	if s.PausedAt != nil {
		end = *s.PausedAt
	}
	d := end.Sub(s.StartTime) - s.PausedTotal
	if d < 0 {
		return 0
	}
	return d
}

// RecordingSnapshot is an immutable view of the recording state for readers
type RecordingSnapshot struct {
	State        RecordingState `json:"state"`
	Trail        *Trail         `json:"trail,omitempty"`
	PointCount   int            `json:"pointCount"`
	StartTime    *time.Time     `json:"startTime,omitempty"`
	Distance     float64        `json:"distance"`
	Duration     float64        `json:"duration"`
	CurrentSpeed float64        `json:"currentSpeed"`
	AvgSpeed     float64        `json:"avgSpeed"`
	MaxSpeed     float64        `json:"maxSpeed"`
}
