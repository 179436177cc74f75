package eth

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Bytes32 is a fixed 32-byte value, used for JWT secrets and similar
// opaque 32-byte fields that are not addresses or hashes.
type Bytes32 [32]byte

// Data is a single RLP-encoded transaction, as carried in a payload's
// transaction list and in channel-derived batches.
type Data = hexutil.Bytes

// PayloadAttributes are the deterministic inputs to block construction
// derived from L1, as produced by the derivation pipeline capability (C3)
// and consumed by the executor capability (C4).
type PayloadAttributes struct {
	Timestamp             uint64         `json:"timestamp"`
	PrevRandao            common.Hash    `json:"prevRandao"`
	SuggestedFeeRecipient common.Address `json:"suggestedFeeRecipient"`
	Transactions          []Data         `json:"transactions,omitempty"`
	NoTxPool              bool           `json:"noTxPool,omitempty"`
	GasLimit              *uint64        `json:"gasLimit,omitempty"`
	ParentBeaconBlockRoot *common.Hash   `json:"parentBeaconBlockRoot,omitempty"`

	// EIP1559Params carries the post-Holocene dynamic EIP-1559 denominator
	// and elasticity parameters, encoded per the Holocene extra-data format.
	EIP1559Params *[8]byte `json:"eip1559Params,omitempty"`
}

// OpAttributesWithParent pairs payload attributes with the parent L2 block
// they build on top of, plus span-batch and derivation-origin metadata.
type OpAttributesWithParent struct {
	Attributes    *PayloadAttributes
	Parent        L2BlockInfo
	IsLastInSpan  bool
	DerivedFrom   BlockInfo
}

// BlockNumber is the L2 block number this attribute set will produce,
// i.e. one past its parent.
func (a OpAttributesWithParent) BlockNumber() uint64 {
	return a.Parent.Number + 1
}

// ExecutionStatus mirrors the engine_newPayload / engine_forkchoiceUpdated
// status values returned by the execution client capability.
type ExecutionStatus string

const (
	ExecutionValid          ExecutionStatus = "VALID"
	ExecutionInvalid        ExecutionStatus = "INVALID"
	ExecutionSyncing        ExecutionStatus = "SYNCING"
	ExecutionAccepted       ExecutionStatus = "ACCEPTED"
	ExecutionInvalidBlockHash ExecutionStatus = "INVALID_BLOCK_HASH"
)

// PayloadStatusV1 is the response shape for engine_newPayload and the
// payload-status half of engine_forkchoiceUpdated.
type PayloadStatusV1 struct {
	Status          ExecutionStatus `json:"status"`
	LatestValidHash *common.Hash    `json:"latestValidHash,omitempty"`
	ValidationError *string         `json:"validationError,omitempty"`
}

// ForkchoiceState names the three heads the execution client should use
// for its canonical-chain bookkeeping.
type ForkchoiceState struct {
	HeadBlockHash      common.Hash `json:"headBlockHash"`
	SafeBlockHash      common.Hash `json:"safeBlockHash"`
	FinalizedBlockHash common.Hash `json:"finalizedBlockHash"`
}

// ForkchoiceUpdatedResult is the combined response of
// engine_forkchoiceUpdated: a payload status plus an optional payload ID
// when attributes were supplied and accepted.
type ForkchoiceUpdatedResult struct {
	PayloadStatus PayloadStatusV1 `json:"payloadStatus"`
	PayloadID     *PayloadID      `json:"payloadId,omitempty"`
}

// PayloadID identifies a block-building job opened via
// engine_forkchoiceUpdated with attributes, to be retrieved later with
// engine_getPayload.
type PayloadID [8]byte

// OpNetworkPayloadEnvelope wraps an execution payload as gossiped over
// the P2P network, with the hash the network message committed to so it
// can be checked against the locally computed block hash.
type OpNetworkPayloadEnvelope struct {
	ExecutionPayload       *ExecutionPayload
	ParentBeaconBlockRoot  *common.Hash
	PayloadHash            common.Hash
}

// ExecutionPayload is the subset of the execution-layer block body needed
// to reconstruct a block for engine_newPayload and for building
// L2BlockInfo from the result.
type ExecutionPayload struct {
	ParentHash    common.Hash    `json:"parentHash"`
	FeeRecipient  common.Address `json:"feeRecipient"`
	StateRoot     common.Hash    `json:"stateRoot"`
	BlockNumber   uint64         `json:"blockNumber"`
	GasLimit      uint64         `json:"gasLimit"`
	GasUsed       uint64         `json:"gasUsed"`
	Timestamp     uint64         `json:"timestamp"`
	PrevRandao    common.Hash    `json:"prevRandao"`
	Transactions  []Data         `json:"transactions"`
	BlockHash     common.Hash    `json:"blockHash"`
}

func (p *ExecutionPayload) ID() BlockID {
	return BlockID{Hash: p.BlockHash, Number: p.BlockNumber}
}
