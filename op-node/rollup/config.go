package rollup

import (
	"github.com/ethereum-optimism/optimism/op-service/eth"
)

// Genesis anchors the rollup to a specific L1 block and the corresponding
// first L2 block.
type Genesis struct {
	L1     eth.BlockID
	L2     eth.BlockID
	L2Time uint64
}

// Config carries the hardfork activation schedule and genesis anchoring
// needed to interpret L1 data and gate protocol-upgrade behavior.
//
// Activation times are L2 block timestamps; a nil pointer means the fork
// is not scheduled. This mirrors op-node's rollup.Config shape, trimmed to
// the forks this module's consolidation and driver logic gate on.
type Config struct {
	Genesis Genesis

	BlockTime uint64

	FjordTime     *uint64
	HoloceneTime  *uint64
	InteropTime   *uint64

	L2ChainID uint64
}

func activeAt(t *uint64, timestamp uint64) bool {
	return t != nil && timestamp >= *t
}

// IsFjordActive returns true if the Fjord hardfork is active at timestamp.
func (c *Config) IsFjordActive(timestamp uint64) bool {
	return activeAt(c.FjordTime, timestamp)
}

// IsHoloceneActive returns true if the Holocene hardfork is active at
// timestamp. Holocene introduces deposit-only retry on execution failure.
func (c *Config) IsHoloceneActive(timestamp uint64) bool {
	return activeAt(c.HoloceneTime, timestamp)
}

// IsInteropActive returns true if the Interop hardfork is active at
// timestamp. Interop requires cross-chain message validation and turns
// pipeline exhaustion into a critical error rather than a quiet halt.
func (c *Config) IsInteropActive(timestamp uint64) bool {
	return activeAt(c.InteropTime, timestamp)
}

// MaxRLPBytesPerChannel returns the per-channel RLP decode byte cap for
// the fork active at the channel's open-block timestamp.
func (c *Config) MaxRLPBytesPerChannel(timestamp uint64) uint64 {
	if c.IsFjordActive(timestamp) {
		return FjordMaxRLPBytesPerChannel
	}
	return MaxRLPBytesPerChannel
}

const (
	// MaxRLPBytesPerChannel is the maximum amount of bytes read from a
	// channel when decoding its RLP, pre-Fjord.
	MaxRLPBytesPerChannel = 10_000_000

	// FjordMaxRLPBytesPerChannel is the maximum amount of bytes read from
	// a channel when decoding its RLP, once Fjord is active.
	FjordMaxRLPBytesPerChannel = 100_000_000

	// DepositTxType is the first-byte discriminator of a deposit
	// transaction's RLP/binary encoding. Deposit transactions are always
	// included in a block irrespective of execution failure.
	DepositTxType = 0x7E
)
