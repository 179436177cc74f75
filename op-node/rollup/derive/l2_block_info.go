package derive

import (
	"encoding/binary"
	"fmt"

	"github.com/ethereum/go-ethereum/core/types"

	"github.com/ethereum-optimism/optimism/op-node/rollup"
	"github.com/ethereum-optimism/optimism/op-service/eth"
)

// setL1BlockValuesSelector is the 4-byte selector of the Bedrock-era
// L1Block.setL1BlockValues deposit call, used to recover an L2 block's L1
// origin and sequence number from its first (always-present) deposit
// transaction.
//
// TODO: decode the Ecotone/Isthmus packed setL1BlockValuesEcotone
// encoding too; only the Bedrock standard-ABI layout is handled here.
var setL1BlockValuesSelector = [4]byte{0x01, 0x5d, 0x8e, 0xb9}

// L2BlockInfoFromBlockAndGenesis computes the L2BlockInfo for block,
// deriving its L1 origin and sequence number from the L1 attributes
// deposit transaction that must be the block's first transaction, unless
// block is the rollup's genesis block.
func L2BlockInfoFromBlockAndGenesis(block *types.Block, genesis rollup.Genesis) (eth.L2BlockInfo, error) {
	header := block.Header()
	info := eth.BlockInfo{
		Hash:       header.Hash(),
		ParentHash: header.ParentHash,
		Number:     header.Number.Uint64(),
		Time:       header.Time,
	}

	if info.Number == genesis.L2.Number {
		if info.Hash != genesis.L2.Hash {
			return eth.L2BlockInfo{}, fmt.Errorf("genesis block hash mismatch: have %s, want %s", info.Hash, genesis.L2.Hash)
		}
		return eth.L2BlockInfo{BlockInfo: info, L1Origin: genesis.L1, SequenceNumber: 0}, nil
	}

	txs := block.Transactions()
	if len(txs) == 0 {
		return eth.L2BlockInfo{}, fmt.Errorf("block %s has no transactions, cannot recover L1 origin", info)
	}
	origin, sequenceNumber, err := decodeL1BlockInfo(txs[0].Data())
	if err != nil {
		return eth.L2BlockInfo{}, fmt.Errorf("failed to decode L1 attributes deposit: %w", err)
	}

	return eth.L2BlockInfo{BlockInfo: info, L1Origin: origin, SequenceNumber: sequenceNumber}, nil
}

// decodeL1BlockInfo parses the standard-ABI-encoded calldata of
// L1Block.setL1BlockValues(uint64,uint64,uint256,bytes32,uint64,bytes32,
// uint256,uint256), returning the L1 block id and sequence number.
func decodeL1BlockInfo(data []byte) (eth.BlockID, uint64, error) {
	const wordLen = 32
	const numWords = 8
	if len(data) < 4+numWords*wordLen {
		return eth.BlockID{}, 0, fmt.Errorf("deposit calldata too short: have %d bytes", len(data))
	}
	if [4]byte(data[:4]) != setL1BlockValuesSelector {
		return eth.BlockID{}, 0, fmt.Errorf("unexpected deposit selector: %x", data[:4])
	}
	word := func(i int) []byte {
		off := 4 + i*wordLen
		return data[off : off+wordLen]
	}

	number := binary.BigEndian.Uint64(word(0)[wordLen-8:])
	var hash [32]byte
	copy(hash[:], word(3))
	sequenceNumber := binary.BigEndian.Uint64(word(4)[wordLen-8:])

	return eth.BlockID{Hash: hash, Number: number}, sequenceNumber, nil
}
