package engine

import (
	"bytes"
	"fmt"

	"github.com/ethereum/go-ethereum/core/types"

	"github.com/ethereum-optimism/optimism/op-node/rollup"
	"github.com/ethereum-optimism/optimism/op-service/eth"
)

// MatchResult is the outcome of comparing a derived attribute set against
// an already-observed unsafe block: either they agree on every
// deterministic field, or they disagree on a named one.
type MatchResult struct {
	Field string // empty when IsMatch() is true
}

func (r MatchResult) IsMatch() bool { return r.Field == "" }

func (r MatchResult) String() string {
	if r.IsMatch() {
		return "match"
	}
	return fmt.Sprintf("mismatch(%s)", r.Field)
}

var matched = MatchResult{}

func mismatch(field string) MatchResult {
	return MatchResult{Field: field}
}

// CheckAttributesMatch is a pure function deciding whether attrs
// deterministically produced block: every field comparison that can
// affect block contents must agree, in the order a real mismatch is most
// likely to show up first (parent linkage, then timestamp-derived block
// parameters, then the transaction list itself).
func CheckAttributesMatch(cfg *rollup.Config, attrs eth.OpAttributesWithParent, block *types.Block) MatchResult {
	header := block.Header()

	if header.ParentHash != attrs.Parent.Hash {
		return mismatch("parent_hash")
	}
	if header.Time != attrs.Attributes.Timestamp {
		return mismatch("timestamp")
	}
	if header.MixDigest != attrs.Attributes.PrevRandao {
		return mismatch("randao")
	}
	if header.Coinbase != attrs.Attributes.SuggestedFeeRecipient {
		return mismatch("fee_recipient")
	}
	if attrs.Attributes.GasLimit != nil && header.GasLimit != *attrs.Attributes.GasLimit {
		return mismatch("gas_limit")
	}

	if cfg.IsHoloceneActive(attrs.Attributes.Timestamp) {
		if r := checkEIP1559Params(attrs, header); !r.IsMatch() {
			return r
		}
	}

	if r := checkTransactions(attrs.Attributes.Transactions, block.Transactions()); !r.IsMatch() {
		return r
	}

	return matched
}

// checkEIP1559Params compares the Holocene-encoded dynamic EIP-1559
// denominator/elasticity parameters carried in the block's extra data
// against the attributes' expectation.
func checkEIP1559Params(attrs eth.OpAttributesWithParent, header *types.Header) MatchResult {
	if attrs.Attributes.EIP1559Params == nil {
		return matched
	}
	if len(header.Extra) < 9 {
		return mismatch("eip1559_params")
	}
	// Holocene extra data: 1 version byte followed by 8 bytes of
	// denominator/elasticity parameters.
	if !bytes.Equal(header.Extra[1:9], attrs.Attributes.EIP1559Params[:]) {
		return mismatch("eip1559_params")
	}
	return matched
}

// checkTransactions compares the attributes' transaction list against the
// block's, order-sensitively: a span batch replaying in a different order
// would produce a different block hash.
func checkTransactions(attrsTxs []eth.Data, blockTxs types.Transactions) MatchResult {
	if len(attrsTxs) != len(blockTxs) {
		return mismatch("transactions_length")
	}
	for i, want := range attrsTxs {
		got, err := blockTxs[i].MarshalBinary()
		if err != nil {
			return mismatch("transactions")
		}
		if !bytes.Equal(want, got) {
			return mismatch(fmt.Sprintf("transactions[%d]", i))
		}
	}
	return matched
}
