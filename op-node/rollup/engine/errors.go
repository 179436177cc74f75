package engine

import (
	"errors"
	"fmt"
)

// ErrChannelClosed is returned by Actor.Run when one of its mandatory
// inbound channels (reset, unsafe block, attributes, runtime config) is
// closed out from under it. Grounded on kona's EngineError::ChannelClosed,
// returned from the same arms in actors/engine.rs's select loop.
var ErrChannelClosed = errors.New("engine actor: mandatory inbound channel closed")

// TaskErrorKind classifies an EngineTaskError for the actor's drain loop:
// Reset errors trigger an engine reset, Flush errors ask derivation to
// flush its current channel, Temporary errors are logged as warnings,
// and anything else is fatal and logged at error level. No kind stops
// the actor: Run keeps looping, and the failed task stays at the head of
// the queue for the next drain.
type TaskErrorKind int

const (
	ResetKind TaskErrorKind = iota
	FlushKind
	TemporaryKind
	FatalKind
)

func (k TaskErrorKind) String() string {
	switch k {
	case ResetKind:
		return "reset"
	case FlushKind:
		return "flush"
	case TemporaryKind:
		return "temporary"
	default:
		return "fatal"
	}
}

// EngineTaskError wraps an underlying cause with the classification that
// determines how the engine actor reacts to it.
type EngineTaskError struct {
	Kind  TaskErrorKind
	cause error
}

func (e *EngineTaskError) Error() string {
	return fmt.Sprintf("%s engine task error: %v", e.Kind, e.cause)
}

func (e *EngineTaskError) Unwrap() error { return e.cause }

func NewResetError(cause error) *EngineTaskError {
	return &EngineTaskError{Kind: ResetKind, cause: cause}
}

func NewFlushError(cause error) *EngineTaskError {
	return &EngineTaskError{Kind: FlushKind, cause: cause}
}

func NewTemporaryError(cause error) *EngineTaskError {
	return &EngineTaskError{Kind: TemporaryKind, cause: cause}
}

func NewFatalError(cause error) *EngineTaskError {
	return &EngineTaskError{Kind: FatalKind, cause: cause}
}

// ConsolidateTaskError describes why ConsolidateTask.Execute could not
// consolidate. ErrFailedToFetchUnsafeL2Block is returned wrapped in a
// Temporary EngineTaskError when the block fetch fails.
// ErrMissingUnsafeL2Block is not returned by ConsolidateTask: a missing
// unsafe block makes it fall back to a BuildTask instead.
type ConsolidateTaskError struct {
	msg string
}

func (e *ConsolidateTaskError) Error() string { return e.msg }

func ErrMissingUnsafeL2Block(number uint64) error {
	return &ConsolidateTaskError{msg: fmt.Sprintf("missing unsafe l2 block at number %d", number)}
}

var ErrFailedToFetchUnsafeL2Block = &ConsolidateTaskError{msg: "failed to fetch unsafe l2 block for consolidation"}
