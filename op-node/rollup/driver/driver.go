package driver

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"

	"github.com/ethereum-optimism/optimism/op-node/rollup"
	"github.com/ethereum-optimism/optimism/op-node/rollup/cursor"
	"github.com/ethereum-optimism/optimism/op-node/rollup/derive"
	"github.com/ethereum-optimism/optimism/op-service/eth"
)

// DriverError classifies a fatal failure out of AdvanceToTarget, mirroring
// the EngineTaskError taxonomy's fatal case (`DriverError::Executor`).
type DriverError struct {
	msg   string
	cause error
}

func (e *DriverError) Error() string { return fmt.Sprintf("%s: %v", e.msg, e.cause) }
func (e *DriverError) Unwrap() error { return e.cause }

func newExecutorDriverError(cause error) *DriverError {
	return &DriverError{msg: "executor error", cause: cause}
}

// Driver drives the pipeline and executor capabilities to advance the L2
// tip, owning the pipeline proxy, the executor, and a read/write handle
// to the shared PipelineCursor. Grounded on kona's
// Driver::advance_to_target (original_source/crates/protocol/driver/src/
// core.rs) and op-node's SyncDeriver step loop
// (op-node/rollup/driver/state.go) for logging idiom.
type Driver struct {
	log      log.Logger
	cfg      *rollup.Config
	pipeline derive.Pipeline
	executor Executor
	cursor   *cursor.PipelineCursor
}

func NewDriver(l log.Logger, cfg *rollup.Config, pipeline derive.Pipeline, executor Executor, c *cursor.PipelineCursor) *Driver {
	return &Driver{log: l, cfg: cfg, pipeline: pipeline, executor: executor, cursor: c}
}

// AdvanceToTarget drives the pipeline+executor until the cursor's tip
// reaches target (or the pipeline is exhausted, capping target to the
// current tip), returning the new tip and its output root.
//
// Loop invariant: at the start of every iteration, the cursor's tip is a
// valid L2 block whose output root is tip.L2SafeHeadOutputRoot.
func (d *Driver) AdvanceToTarget(ctx context.Context, target *uint64) (eth.L2BlockInfo, eth.OutputV0, error) {
	for {
		tip := d.cursor.Tip()
		if target != nil && tip.L2SafeHead.Number >= *target {
			return tip.L2SafeHead, tip.L2SafeHeadOutputRoot, nil
		}

		attrs, err := d.pipeline.ProducePayload(ctx, tip.L2SafeHead)
		if errors.Is(err, derive.ErrEndOfSource) {
			if target != nil {
				capped := tip.L2SafeHead.Number
				target = &capped
			}
			if d.cfg.IsInteropActive(tip.L2SafeHead.Time) {
				return eth.L2BlockInfo{}, eth.OutputV0{}, newExecutorDriverError(fmt.Errorf("end of source with interop active: %w", err))
			}
			continue
		}
		if err != nil {
			return eth.L2BlockInfo{}, eth.OutputV0{}, newExecutorDriverError(err)
		}

		if err := d.executor.UpdateSafeHead(ctx, tip.L2SafeHeadHeader); err != nil {
			return eth.L2BlockInfo{}, eth.OutputV0{}, newExecutorDriverError(err)
		}

		outcome, err := d.executor.ExecutePayload(ctx, attrs.Attributes)
		if err != nil {
			outcome, err = d.recoverExecutionFailure(ctx, attrs, err)
			if err != nil {
				return eth.L2BlockInfo{}, eth.OutputV0{}, err
			}
			if outcome == nil {
				// Pre-Holocene: discard the attributes and continue.
				continue
			}
		}

		block := types.NewBlockWithHeader(outcome.Header).WithBody(types.Body{Transactions: outcome.Transactions})
		ref, err := derive.L2BlockInfoFromBlockAndGenesis(block, d.cfg.Genesis)
		if err != nil {
			return eth.L2BlockInfo{}, eth.OutputV0{}, newExecutorDriverError(fmt.Errorf("failed to construct L2BlockInfo: %w", err))
		}

		origin := tip.L2SafeHead.BlockInfo
		if o := d.pipeline.Origin(); o != nil {
			origin = *o
		}
		newTip := cursor.NewTipCursor(ref, ref.BlockInfo, [32]byte(outcome.OutputRoot.Hash()))
		d.cursor.Advance(origin, newTip)
		d.log.Info("advanced l2 safe head", "number", ref.Number, "hash", ref.Hash, "origin", origin)
	}
}

// recoverExecutionFailure implements the Holocene deposit-only retry: on
// execution failure, if Holocene is active at the attributes' timestamp,
// flush the pipeline's current channel, strip every non-deposit
// transaction, and retry once; a second failure is fatal. Pre-Holocene,
// the attributes are simply discarded (nil outcome, nil error).
func (d *Driver) recoverExecutionFailure(ctx context.Context, attrs eth.OpAttributesWithParent, cause error) (*ExecutionOutcome, error) {
	if !d.cfg.IsHoloceneActive(attrs.Attributes.Timestamp) {
		d.log.Warn("discarding attributes after execution failure", "err", cause)
		return nil, nil
	}

	if err := d.pipeline.Signal(ctx, derive.Signal{Kind: derive.FlushChannelSignal}); err != nil {
		return nil, newExecutorDriverError(fmt.Errorf("failed to flush channel after execution failure: %w", err))
	}

	retryAttrs := *attrs.Attributes
	retryAttrs.Transactions = depositOnly(attrs.Attributes.Transactions)
	outcome, err := d.executor.ExecutePayload(ctx, &retryAttrs)
	if err != nil {
		return nil, newExecutorDriverError(fmt.Errorf("deposit-only retry also failed: %w", err))
	}
	return outcome, nil
}

// depositOnly keeps only transactions whose first byte is the deposit
// transaction type discriminator.
func depositOnly(txs []eth.Data) []eth.Data {
	var kept []eth.Data
	for _, tx := range txs {
		if len(tx) > 0 && tx[0] == rollup.DepositTxType {
			kept = append(kept, tx)
		}
	}
	return kept
}
