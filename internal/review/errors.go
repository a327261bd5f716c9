package review

import "errors"

var (
	ErrNoSelection      = errors.New("no event selected")
	ErrAnalysisInFlight = errors.New("analysis already in progress for this event")
	ErrDispatchInFlight = errors.New("alert dispatch already in progress for this event")
	ErrNotCritical      = errors.New("alerts can only be dispatched for CRITICAL events")
	ErrStaleReview      = errors.New("result belongs to a review that is no longer selected")
)

// ClassificationError is returned when the backend fails to classify an event.
// Its message is the backend's message, unchanged.
type ClassificationError struct {
	Err error
}

func (e *ClassificationError) Error() string {
	return e.Err.Error()
}

func (e *ClassificationError) Unwrap() error {
	return e.Err
}

// DispatchError is returned when an alert send fails. The review stays eligible for a retry.
type DispatchError struct {
	Err error
}

func (e *DispatchError) Error() string {
	return e.Err.Error()
}

func (e *DispatchError) Unwrap() error {
	return e.Err
}
