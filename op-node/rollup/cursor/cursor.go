// Package cursor tracks the derivation pipeline's current L1 origin and L2
// safe-head tip as a single atomically-advanced unit, readable
// concurrently by many goroutines and written exclusively by the
// derivation driver.
package cursor

import (
	"sync"

	"github.com/ethereum-optimism/optimism/op-service/eth"
)

// TipCursor is the L2 side of a PipelineCursor snapshot: the safe head the
// driver has derived so far, its header, and the output root committing
// to its state.
type TipCursor struct {
	L2SafeHead           eth.L2BlockInfo
	L2SafeHeadHeader      HeaderRef
	L2SafeHeadOutputRoot [32]byte
}

// HeaderRef is the minimal header handle the executor capability needs to
// re-anchor block building on the current safe head; its shape is owned
// by the executor (C4), this package only threads it through.
type HeaderRef = eth.BlockInfo

// NewTipCursor builds a TipCursor from its three components.
func NewTipCursor(l2SafeHead eth.L2BlockInfo, header HeaderRef, outputRoot [32]byte) TipCursor {
	return TipCursor{
		L2SafeHead:           l2SafeHead,
		L2SafeHeadHeader:     header,
		L2SafeHeadOutputRoot: outputRoot,
	}
}

// PipelineCursor pairs the derivation pipeline's current L1 origin with
// the L2 tip cursor, updated atomically by advance. Reorgs are expressed
// by external reset messages that replace the cursor wholesale, never by
// the cursor rolling itself back.
type PipelineCursor struct {
	mu     sync.RWMutex
	origin eth.BlockInfo
	tip    TipCursor
}

// NewPipelineCursor seeds a cursor at the given origin and tip, typically
// the rollup genesis or the result of a reset walkback.
func NewPipelineCursor(origin eth.BlockInfo, tip TipCursor) *PipelineCursor {
	return &PipelineCursor{origin: origin, tip: tip}
}

// Origin returns the pipeline's current L1 origin.
func (c *PipelineCursor) Origin() eth.BlockInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.origin
}

// Tip returns a consistent snapshot of the current L2 tip cursor.
func (c *PipelineCursor) Tip() TipCursor {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tip
}

// Advance atomically replaces both the origin and the tip cursor. Callers
// must ensure origin and tip are derived together so readers never
// observe an origin paired with a tip from a different derivation step.
func (c *PipelineCursor) Advance(origin eth.BlockInfo, tip TipCursor) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.origin = origin
	c.tip = tip
}
