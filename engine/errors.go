package engine

import "errors"

// Error taxonomy. Callers discriminate with errors.Is; messages carry the
// specifics via fmt.Errorf("%w") wrapping.
var (
	// ErrNotFound: sequence, enrollment, prospect, or required contact info absent
	ErrNotFound = errors.New("not found")
	// ErrInvalidState: enrolling into a non-active sequence, duplicate active enrollment
	ErrInvalidState = errors.New("invalid state")
	// ErrConfiguration: missing from-address or channel credentials; fails one dispatch
	ErrConfiguration = errors.New("configuration error")
	// ErrChannelSend: provider rejected the send; caught inside step execution
	ErrChannelSend = errors.New("channel send failed")
)
