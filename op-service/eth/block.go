package eth

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// BlockID is a block reference, by number and hash.
// Empty if the number and hash are both zero.
type BlockID struct {
	Hash   common.Hash `json:"hash"`
	Number uint64      `json:"number"`
}

func (id BlockID) String() string {
	return fmt.Sprintf("%s:%d", id.Hash, id.Number)
}

// BlockLabel identifies well-known block references such as "unsafe" or
// "finalized", mirroring the execution-engine forkchoice labels.
type BlockLabel string

const (
	Unsafe       BlockLabel = "latest"
	Safe         BlockLabel = "safe"
	Finalized    BlockLabel = "finalized"
	CrossUnsafe  BlockLabel = "cross-unsafe"
	LocalSafe    BlockLabel = "local-safe"
	PendingSafe  BlockLabel = "pending-safe"
)

// BlockInfo is a minimal block header summary, as described by the
// L1/L2 provider capabilities: enough to link a block to its parent and
// place it in time, without committing to a full header encoding.
type BlockInfo struct {
	Hash       common.Hash `json:"hash"`
	ParentHash common.Hash `json:"parentHash"`
	Number     uint64      `json:"number"`
	Time       uint64      `json:"timestamp"`
}

func (b BlockInfo) ID() BlockID {
	return BlockID{Hash: b.Hash, Number: b.Number}
}

func (b BlockInfo) String() string {
	return fmt.Sprintf("%s:%d", b.Hash, b.Number)
}

// L1BlockRef is an alias for BlockInfo: an L1 reference does not carry
// any additional linkage beyond number/hash/parent/time.
type L1BlockRef = BlockInfo

// L2BlockInfo is an L2 block header summary plus the L1 origin it was
// derived from, and the sequence number within that origin's span.
type L2BlockInfo struct {
	BlockInfo

	L1Origin       BlockID `json:"l1Origin"`
	SequenceNumber uint64  `json:"sequenceNumber"`
}

// L2BlockRef is an alias for L2BlockInfo, matching op-node's naming for
// L2 chain references returned by the L2 provider capability.
type L2BlockRef = L2BlockInfo

func (r L2BlockInfo) String() string {
	return fmt.Sprintf("%s:%d (origin %s)", r.Hash, r.Number, r.L1Origin)
}

// OutputV0 is the commitment summarizing L2 state at a block, as computed
// by the executor capability (C4) after a block is built or consolidated.
type OutputV0 struct {
	StateRoot                common.Hash
	MessagePasserStorageRoot common.Hash
	BlockHash                common.Hash
}

// outputVersionV0 is the single leading version byte of the output root
// preimage, left-padded to 32 bytes.
var outputVersionV0 common.Hash

// Hash computes the 32-byte output root commitment: keccak256 of the
// version byte followed by the state root, message-passer storage root,
// and block hash, each 32 bytes.
func (o OutputV0) Hash() common.Hash {
	var buf [128]byte
	copy(buf[0:32], outputVersionV0[:])
	copy(buf[32:64], o.StateRoot[:])
	copy(buf[64:96], o.MessagePasserStorageRoot[:])
	copy(buf[96:128], o.BlockHash[:])
	return crypto.Keccak256Hash(buf[:])
}
