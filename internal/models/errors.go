package models

import "errors"

var (
	// ErrPermissionDenied is returned when the location provider refuses access
	ErrPermissionDenied = errors.New("location permission denied")

	// ErrMalformedPoint marks a sample with invalid coordinates or timestamp
	ErrMalformedPoint = errors.New("malformed track point")

	// ErrStoreUnavailable marks a failed primary store operation
	ErrStoreUnavailable = errors.New("primary store unavailable")

	// ErrDualStoreFailure is returned when both the primary and offline writes fail
	ErrDualStoreFailure = errors.New("primary and offline stores both failed")

	// ErrTrailNotFound is returned when no store holds the requested trail
	ErrTrailNotFound = errors.New("trail not found")

	// ErrInvalidTransition is logged when a lifecycle call arrives in the wrong state
	ErrInvalidTransition = errors.New("invalid recording state transition")

	// ErrSnapshotNotFound is returned when no recording snapshot is stored
	ErrSnapshotNotFound = errors.New("recording snapshot not found")
)
