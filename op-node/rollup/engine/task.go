package engine

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/log"

	"github.com/ethereum-optimism/optimism/op-node/rollup"
	"github.com/ethereum-optimism/optimism/op-node/rollup/derive"
	"github.com/ethereum-optimism/optimism/op-service/eth"
)

// TaskEnv bundles the immutable configuration and capabilities every
// EngineTask executes against, plus the single EngineState it mutates.
// Per spec, each task "carries an immutable configuration reference and
// a borrowed mutable reference to EngineState during execution" — TaskEnv
// is that borrow, passed by the queue rather than embedded in the task.
type TaskEnv struct {
	Config  *rollup.Config
	State   *EngineState
	API     API
	L2      L2Provider
	Metrics Metrics
	Log     log.Logger
}

// EngineTask is the sealed set of task variants the queue can execute:
// InsertUnsafeTask, ConsolidateTask, BuildTask, ForkchoiceTask.
type EngineTask interface {
	Execute(ctx context.Context, env *TaskEnv) error
	Label() string
}

// InsertUnsafeTask inserts a gossip-observed payload as the new unsafe
// head.
type InsertUnsafeTask struct {
	Envelope *eth.OpNetworkPayloadEnvelope
}

func (t *InsertUnsafeTask) Label() string { return InsertUnsafeTaskLabel }

func (t *InsertUnsafeTask) Execute(ctx context.Context, env *TaskEnv) error {
	payload := t.Envelope.ExecutionPayload
	status, err := env.API.NewPayload(ctx, payload, t.Envelope.ParentBeaconBlockRoot)
	if err != nil {
		return NewTemporaryError(fmt.Errorf("engine_newPayload failed: %w", err))
	}
	switch status.Status {
	case eth.ExecutionValid, eth.ExecutionAccepted:
		ref := buildL2BlockInfo(payload, env.State.UnsafeHead())
		env.State.SetUnsafeHead(ref)
		if !env.State.ELSyncFinished() && status.Status == eth.ExecutionValid {
			env.State.SetELSyncFinished(true)
		}
		env.Metrics.RecordEngineTask(t.Label())
		return nil
	case eth.ExecutionSyncing:
		env.State.SetBackupUnsafeHead(env.State.UnsafeHead())
		return NewTemporaryError(fmt.Errorf("execution client syncing, buffered unsafe payload %s", payload.ID()))
	default:
		return NewResetError(fmt.Errorf("engine_newPayload rejected payload %s: %s", payload.ID(), status.Status))
	}
}

// ConsolidateTask reconciles derived attributes against an already
// observed unsafe block. Grounded on kona's
// ConsolidateTask::execute (original_source/crates/node/engine/src/
// task_queue/tasks/consolidate/task.rs).
type ConsolidateTask struct {
	Attrs               eth.OpAttributesWithParent
	IsAttributesDerived bool
}

func (t *ConsolidateTask) Label() string { return ConsolidateTaskLabel }

func (t *ConsolidateTask) Execute(ctx context.Context, env *TaskEnv) error {
	state := env.State
	if state.SafeHead().Number >= state.UnsafeHead().Number {
		return (&BuildTask{Attrs: t.Attrs}).Execute(ctx, env)
	}

	wantNumber := t.Attrs.Parent.Number + 1
	block, err := env.L2.BlockByNumber(ctx, wantNumber)
	if err != nil {
		return NewTemporaryError(fmt.Errorf("%w: %v", ErrFailedToFetchUnsafeL2Block, err))
	}
	if block == nil {
		env.Log.Warn("unsafe l2 block missing for consolidation, falling back to build", "number", wantNumber)
		return (&BuildTask{Attrs: t.Attrs}).Execute(ctx, env)
	}

	result := CheckAttributesMatch(env.Config, t.Attrs, block)
	if !result.IsMatch() {
		env.Log.Debug("attributes do not match unsafe block, falling back to build", "reason", result)
		return (&BuildTask{Attrs: t.Attrs}).Execute(ctx, env)
	}

	// Q1: a structural failure to build L2BlockInfo from the matched block
	// is treated like a mismatch, not a retryable error, since no state
	// has been mutated yet.
	ref, err := derive.L2BlockInfoFromBlockAndGenesis(block, env.Config.Genesis)
	if err != nil {
		env.Log.Warn("failed to construct L2BlockInfo from matched block, falling back to build", "err", err)
		return (&BuildTask{Attrs: t.Attrs}).Execute(ctx, env)
	}

	state.SetLocalSafeHead(ref)
	state.SetSafeHead(ref)
	env.Metrics.RecordEngineTask(t.Label())

	if t.Attrs.IsLastInSpan {
		return (&ForkchoiceTask{}).Execute(ctx, env)
	}
	return nil
}

// BuildTask drives the execution client through a local block-building
// reorg: forkchoiceUpdated(attrs) -> getPayload -> newPayload ->
// forkchoiceUpdated(new head).
type BuildTask struct {
	Attrs eth.OpAttributesWithParent
}

func (t *BuildTask) Label() string { return BuildTaskLabel }

func (t *BuildTask) Execute(ctx context.Context, env *TaskEnv) error {
	state := env.State
	parent := t.Attrs.Parent

	fc := &eth.ForkchoiceState{
		HeadBlockHash:      parent.Hash,
		SafeBlockHash:      state.SafeHead().Hash,
		FinalizedBlockHash: state.FinalizedHead().Hash,
	}
	fcResult, err := env.API.ForkchoiceUpdate(ctx, fc, t.Attrs.Attributes)
	if err != nil {
		return NewTemporaryError(fmt.Errorf("engine_forkchoiceUpdated(attrs) failed: %w", err))
	}
	if err := t.checkStatus(env, fcResult.PayloadStatus); err != nil {
		return err
	}
	if fcResult.PayloadID == nil {
		return NewTemporaryError(fmt.Errorf("forkchoiceUpdated accepted attributes but returned no payload id"))
	}

	payload, err := env.API.GetPayload(ctx, *fcResult.PayloadID)
	if err != nil {
		return NewTemporaryError(fmt.Errorf("engine_getPayload failed: %w", err))
	}

	status, err := env.API.NewPayload(ctx, payload, t.Attrs.Attributes.ParentBeaconBlockRoot)
	if err != nil {
		return NewTemporaryError(fmt.Errorf("engine_newPayload(built) failed: %w", err))
	}
	if err := t.checkStatus(env, *status); err != nil {
		return err
	}

	ref := buildL2BlockInfo(payload, parent)

	promote := &eth.ForkchoiceState{
		HeadBlockHash:      ref.Hash,
		SafeBlockHash:      ref.Hash,
		FinalizedBlockHash: state.FinalizedHead().Hash,
	}
	if _, err := env.API.ForkchoiceUpdate(ctx, promote, nil); err != nil {
		return NewTemporaryError(fmt.Errorf("engine_forkchoiceUpdated(promote) failed: %w", err))
	}

	state.SetUnsafeHead(ref)
	state.SetLocalSafeHead(ref)
	state.SetSafeHead(ref)
	env.Metrics.RecordEngineTask(t.Label())
	return nil
}

// checkStatus maps an INVALID payload status to a Flush error on the
// Holocene deposit-only-retry path, or a fatal error pre-Holocene, per
// the Holocene deposit-only-retry path and the fatal-error table.
func (t *BuildTask) checkStatus(env *TaskEnv, status eth.PayloadStatusV1) error {
	switch status.Status {
	case eth.ExecutionValid, eth.ExecutionAccepted:
		return nil
	case eth.ExecutionSyncing:
		return NewTemporaryError(fmt.Errorf("execution client syncing during build"))
	case eth.ExecutionInvalid, eth.ExecutionInvalidBlockHash:
		if env.Config.IsHoloceneActive(t.Attrs.Attributes.Timestamp) {
			return NewFlushError(fmt.Errorf("invalid payload during build: %s", statusErr(status)))
		}
		return NewFatalError(fmt.Errorf("invalid payload during build: %s", statusErr(status)))
	default:
		return NewFatalError(fmt.Errorf("unexpected payload status during build: %s", status.Status))
	}
}

func statusErr(status eth.PayloadStatusV1) string {
	if status.ValidationError != nil {
		return *status.ValidationError
	}
	return string(status.Status)
}

// ForkchoiceTask issues engine_forkchoiceUpdated with the current
// (unsafe, safe, finalized) heads and no attributes.
type ForkchoiceTask struct{}

func (t *ForkchoiceTask) Label() string { return ForkchoiceTaskLabel }

func (t *ForkchoiceTask) Execute(ctx context.Context, env *TaskEnv) error {
	state := env.State
	fc := &eth.ForkchoiceState{
		HeadBlockHash:      state.UnsafeHead().Hash,
		SafeBlockHash:      state.SafeHead().Hash,
		FinalizedBlockHash: state.FinalizedHead().Hash,
	}
	result, err := env.API.ForkchoiceUpdate(ctx, fc, nil)
	if err != nil {
		return NewTemporaryError(fmt.Errorf("engine_forkchoiceUpdated failed: %w", err))
	}
	switch result.PayloadStatus.Status {
	case eth.ExecutionValid:
		env.Metrics.RecordEngineTask(t.Label())
		return nil
	case eth.ExecutionSyncing:
		// Q2: SYNCING is non-terminal; rely on subsequent events rather
		// than advancing heads or retrying here.
		return nil
	default:
		return NewResetError(fmt.Errorf("forkchoiceUpdated rejected current heads: %s", statusErr(result.PayloadStatus)))
	}
}

// buildL2BlockInfo derives an L2BlockInfo from a freshly produced
// ExecutionPayload without re-fetching the block: the L1 origin is
// copied from parent, and the sequence number is parent's plus one, or
// zero when the payload's parent hash is not parent's hash. The L1
// origin is not decoded from the payload's deposit transaction, so a
// payload from a new L1 origin is not detected here.
func buildL2BlockInfo(payload *eth.ExecutionPayload, parent eth.L2BlockInfo) eth.L2BlockInfo {
	info := eth.BlockInfo{
		Hash:       payload.BlockHash,
		ParentHash: payload.ParentHash,
		Number:     payload.BlockNumber,
		Time:       payload.Timestamp,
	}
	seq := parent.SequenceNumber + 1
	if payload.ParentHash != parent.Hash {
		seq = 0
	}
	return eth.L2BlockInfo{BlockInfo: info, L1Origin: parent.L1Origin, SequenceNumber: seq}
}
