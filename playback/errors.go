package playback

import (
	"errors"
	"fmt"
)

// Common errors for the playback system.
var (
	// ErrSourceUnavailable means the content has neither a recording nor
	// narration text, or a track was submitted without a locator.
	ErrSourceUnavailable = errors.New("no audio source available")
	// ErrOpenFailure means the engine could not open or prepare a locator.
	ErrOpenFailure = errors.New("audio source could not be opened")
	// ErrEngineFailure means an engine failed after it was started.
	ErrEngineFailure = errors.New("audio engine failure")
	// ErrReleased is returned for calls made after Release.
	ErrReleased = errors.New("playback component has been released")

	// ErrInvalidConfig is returned by Config.Validate.
	ErrInvalidConfig = errors.New("invalid playback configuration")
)

// IsRecoverableError reports whether a retry or a downgrade may succeed
// after err.
func IsRecoverableError(err error) bool {
	if err == nil {
		return true
	}
	switch {
	case errors.Is(err, ErrReleased), errors.Is(err, ErrInvalidConfig):
		return false
	}
	return true
}

// Error carries the context of a playback failure. Kind is one of the
// sentinel errors above so errors.Is matches on it.
type Error struct {
	Kind      error  // Sentinel classifying the failure
	Component string // coordinator, narration, policy, engine name
	Action    string // Action being performed when the error occurred
	Locator   string // Path or URL involved, if any
	Err       error  // Underlying cause, may be nil
}

// NewError creates a playback error.
func NewError(kind error, component, action string, cause error) *Error {
	return &Error{
		Kind:      kind,
		Component: component,
		Action:    action,
		Err:       cause,
	}
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Component + ": " + e.Action
	if e.Locator != "" {
		msg += fmt.Sprintf(" %q", e.Locator)
	}
	if e.Kind != nil {
		msg += ": " + e.Kind.Error()
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As.
func (e *Error) Unwrap() []error {
	var errs []error
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// IsRecoverable checks if the error is recoverable.
func (e *Error) IsRecoverable() bool {
	return IsRecoverableError(e.Kind)
}

// WithLocator records the locator involved in the failure.
func (e *Error) WithLocator(locator string) *Error {
	e.Locator = locator
	return e
}
