package driver

import (
	"context"

	"github.com/ethereum/go-ethereum/core/types"

	"github.com/ethereum-optimism/optimism/op-node/rollup/cursor"
	"github.com/ethereum-optimism/optimism/op-service/eth"
)

// ExecutionOutcome is what the executor capability hands back after
// running a set of attributes: the resulting header, the (possibly
// trimmed, on Holocene retry) transaction list that produced it, and the
// output root committing to post-state.
type ExecutionOutcome struct {
	Header       *types.Header
	Transactions types.Transactions
	OutputRoot   eth.OutputV0
}

// ExecutionError reports that the executor failed to execute a set of
// attributes. It carries only a message; the driver applies its
// Holocene deposit-only retry to any ExecutePayload error, whatever its
// type.
type ExecutionError struct {
	msg string
}

func (e *ExecutionError) Error() string { return e.msg }

func NewExecutionError(msg string) *ExecutionError {
	return &ExecutionError{msg: msg}
}

// Executor is the executor capability (C4) consumed by the driver: it
// executes attributes against the current safe head and computes output
// roots. External to this module's scope; only the interface and a
// deterministic fake (internal/derivetest) are provided.
type Executor interface {
	// UpdateSafeHead re-anchors the executor on header before the next
	// ExecutePayload call.
	UpdateSafeHead(ctx context.Context, header cursor.HeaderRef) error
	// ExecutePayload runs attrs against the current safe head and
	// returns the resulting outcome, or an *ExecutionError on failure.
	ExecutePayload(ctx context.Context, attrs *eth.PayloadAttributes) (*ExecutionOutcome, error)
}
