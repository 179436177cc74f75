package derive

import (
	"context"
	"errors"

	"github.com/ethereum-optimism/optimism/op-node/rollup"
	"github.com/ethereum-optimism/optimism/op-service/eth"
)

// ErrEndOfSource is returned by Pipeline.ProducePayload when no further
// attributes can be produced from the currently available L1 data; the
// driver caps its target to the current tip rather than treating this as
// a failure.
var ErrEndOfSource = errors.New("end of source: no more l1 data available yet")

// SignalKind names the signal variants the driver/actor send down into
// the pipeline: Reset, FlushChannel, ProvideBlock.
type SignalKind int

const (
	ResetSignal SignalKind = iota
	FlushChannelSignal
	ProvideBlockSignal
)

// Signal carries a pipeline control message. ProvideBlockSignal carries
// the unsafe block being provided as a hint for span-batch fast paths;
// the other two kinds carry no payload.
type Signal struct {
	Kind  SignalKind
	Block *eth.L2BlockInfo
}

// Pipeline is the derivation-pipeline capability consumed by the driver:
// L1 data in, payload attributes out. Only the interface is defined
// here, plus small deterministic fakes under internal/derivetest for
// driver tests.
type Pipeline interface {
	// ProducePayload advances the pipeline past parent and returns the
	// next attribute set, or ErrEndOfSource if no more L1 data is
	// currently available.
	ProducePayload(ctx context.Context, parent eth.L2BlockInfo) (eth.OpAttributesWithParent, error)
	Signal(ctx context.Context, sig Signal) error
	Origin() *eth.BlockInfo
	RollupConfig() *rollup.Config
}
