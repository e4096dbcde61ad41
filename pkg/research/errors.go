package research

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidConfig        = errors.New("invalid research config")
	ErrEmptyTopic           = errors.New("research topic is empty")
	ErrMalformedModelOutput = errors.New("malformed model output")
	ErrEmptyFinalAnswer     = errors.New("model returned an empty final answer")
	ErrUnknownMarker        = errors.New("unknown citation marker")
)

// MalformedOutputError reports model output that failed decoding or validation.
type MalformedOutputError struct {
	Stage string
	Raw   string
	Err   error
}

func (e *MalformedOutputError) Error() string {
	return fmt.Sprintf("%s: %v: %v", e.Stage, ErrMalformedModelOutput, e.Err)
}

func (e *MalformedOutputError) Unwrap() []error {
	return []error{ErrMalformedModelOutput, e.Err}
}

// UnknownMarkerError means a citation marker has no registered source. This is
// a bookkeeping bug, never a normal runtime condition.
type UnknownMarkerError struct {
	Marker string
}

func (e *UnknownMarkerError) Error() string {
	return fmt.Sprintf("%v: %s", ErrUnknownMarker, e.Marker)
}

func (e *UnknownMarkerError) Is(target error) bool {
	return target == ErrUnknownMarker
}
