package editor

import "errors"

// ErrSubmissionInFlight guards the at-most-one pending edit rule: a new edit
// cannot be submitted until the previous one resolves.
var ErrSubmissionInFlight = errors.New("an edit is already in flight")

// ValidationError blocks a submission before any request is sent: missing
// source image, empty prompt, or an empty selection.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + e.Reason
}

// MaskError means mask compositing could not proceed because the drawing
// surface was never initialized. A caller error, recovered locally.
type MaskError struct {
	Err error
}

func (e *MaskError) Error() string {
	return "mask compositing failed: " + e.Err.Error()
}

func (e *MaskError) Unwrap() error { return e.Err }

// ServiceError wraps a failure of the external edit call. The session rolls
// back to its pre-submission state; the user retries explicitly.
type ServiceError struct {
	Err error
}

func (e *ServiceError) Error() string {
	return "edit service failed: " + e.Err.Error()
}

func (e *ServiceError) Unwrap() error { return e.Err }

// DecodeError means uploaded or restored bytes are not a usable image.
// Surfaced before any session state changes.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return "image decode failed: " + e.Err.Error()
}

func (e *DecodeError) Unwrap() error { return e.Err }
