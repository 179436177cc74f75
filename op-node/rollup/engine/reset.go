package engine

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/log"

	"github.com/ethereum-optimism/optimism/op-service/eth"
)

// DefaultResetWalkbackDepth bounds how far ResetWalkback will walk back
// from the current tip before giving up, to avoid an unbounded scan on a
// badly corrupted chain.
const DefaultResetWalkbackDepth = 10_000

// ResetWalkback finds a consistent (l2_safe_head, l1_origin) pairing by
// walking back from the current tip. Grounded on op-supervisor's
// resetTracker bisection
// (op-supervisor/supervisor/backend/syncnode/reset_tracker.go), simplified
// to a linear walkback since this module does not track a local-safe
// database to bisect against — each candidate's L1 origin is checked
// directly against the L1 provider's canonical chain at that height.
type ResetWalkback struct {
	L2    L2Provider
	L1    L1Provider
	Log   log.Logger
	Depth uint64
}

func NewResetWalkback(l2 L2Provider, l1 L1Provider, log log.Logger) *ResetWalkback {
	return &ResetWalkback{L2: l2, L1: l1, Log: log, Depth: DefaultResetWalkbackDepth}
}

// FindConsistentHead walks back from from, one L2 block at a time, until
// it finds a block whose recorded L1 origin is still canonical on L1, or
// reaches genesis (number 0), which is consistent by definition.
func (w *ResetWalkback) FindConsistentHead(ctx context.Context, from eth.L2BlockInfo) (eth.L2BlockInfo, error) {
	cur := from
	depth := w.Depth
	if depth == 0 {
		depth = DefaultResetWalkbackDepth
	}
	for i := uint64(0); i < depth; i++ {
		if cur.Number == 0 {
			return cur, nil
		}
		canonical, err := w.L1.L1BlockRefByNumber(ctx, cur.L1Origin.Number)
		if err == nil && canonical.Hash == cur.L1Origin.Hash {
			return cur, nil
		}
		w.Log.Warn("l2 block's l1 origin is no longer canonical, walking back", "block", cur, "origin", cur.L1Origin)
		prev, err := w.L2.L2BlockRefByNumber(ctx, cur.Number-1)
		if err != nil {
			return eth.L2BlockInfo{}, fmt.Errorf("failed to fetch l2 block %d during reset walkback: %w", cur.Number-1, err)
		}
		cur = prev
	}
	return eth.L2BlockInfo{}, fmt.Errorf("reset walkback exceeded max depth %d starting from %s", depth, from)
}
