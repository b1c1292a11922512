package domain

import (
	"errors"
	"fmt"
	"os"
)

// Entry failure causes.
var (
	ErrPermissionDenied   = errors.New("permission denied")
	ErrDeviceBusy         = errors.New("device busy")
	ErrDeviceAbsent       = errors.New("device absent")
	ErrNetworkUnreachable = errors.New("network unreachable")
)

var (
	ErrNotSoleParticipant = errors.New("not the sole active participant")
	ErrSessionNotActive   = errors.New("session not active")
	ErrSessionExists      = errors.New("community already has an active session")
	ErrSessionNotFound    = errors.New("session not found")
	ErrArtifactNotFound   = errors.New("artifact not found")
)

// EntryError is returned when a session cannot be entered.
type EntryError struct {
	Cause error
	Err   error
}

func (e *EntryError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("session entry failed: %v", e.Cause)
	}
	return fmt.Sprintf("session entry failed: %v: %v", e.Cause, e.Err)
}

func (e *EntryError) Unwrap() []error { return []error{e.Cause, e.Err} }

// Classify maps low level device errors onto an entry cause.
func Classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrPermissionDenied), errors.Is(err, os.ErrPermission):
		return ErrPermissionDenied
	case errors.Is(err, ErrDeviceBusy):
		return ErrDeviceBusy
	case errors.Is(err, ErrNetworkUnreachable):
		return ErrNetworkUnreachable
	default:
		return ErrDeviceAbsent
	}
}

func NewEntryError(err error) *EntryError {
	return &EntryError{Cause: Classify(err), Err: err}
}
