// Package derivetest provides small deterministic fakes of the
// Pipeline (C3) and Executor (C4) capabilities, for unit-testing the
// derivation driver without a live L1 source or execution client.
package derivetest

import (
	"context"
	"encoding/binary"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/core/types"

	"github.com/ethereum-optimism/optimism/op-node/rollup"
	"github.com/ethereum-optimism/optimism/op-node/rollup/cursor"
	"github.com/ethereum-optimism/optimism/op-node/rollup/derive"
	"github.com/ethereum-optimism/optimism/op-node/rollup/driver"
	"github.com/ethereum-optimism/optimism/op-service/eth"
)

// FakePipeline replays a canned sequence of attribute sets, per its
// Attrs queue, returning derive.ErrEndOfSource once exhausted.
type FakePipeline struct {
	Attrs    []eth.OpAttributesWithParent
	next     int
	cfg      *rollup.Config
	origin   *eth.BlockInfo
	Signals  []derive.Signal
}

func NewFakePipeline(cfg *rollup.Config, attrs []eth.OpAttributesWithParent) *FakePipeline {
	return &FakePipeline{Attrs: attrs, cfg: cfg}
}

func (p *FakePipeline) ProducePayload(_ context.Context, _ eth.L2BlockInfo) (eth.OpAttributesWithParent, error) {
	if p.next >= len(p.Attrs) {
		return eth.OpAttributesWithParent{}, derive.ErrEndOfSource
	}
	a := p.Attrs[p.next]
	p.next++
	return a, nil
}

func (p *FakePipeline) Signal(_ context.Context, sig derive.Signal) error {
	p.Signals = append(p.Signals, sig)
	return nil
}

func (p *FakePipeline) Origin() *eth.BlockInfo { return p.origin }

func (p *FakePipeline) SetOrigin(o eth.BlockInfo) { p.origin = &o }

func (p *FakePipeline) RollupConfig() *rollup.Config { return p.cfg }

// FakeExecutor deterministically "executes" attributes by synthesizing a
// header chained off the last UpdateSafeHead call, with a single deposit
// transaction encoding Origin so derive.L2BlockInfoFromBlockAndGenesis
// can recover it.
type FakeExecutor struct {
	Origin    eth.BlockID
	safeHead  cursor.HeaderRef
	FailNext  bool
}

func NewFakeExecutor(origin eth.BlockID) *FakeExecutor {
	return &FakeExecutor{Origin: origin}
}

func (e *FakeExecutor) UpdateSafeHead(_ context.Context, header cursor.HeaderRef) error {
	e.safeHead = header
	return nil
}

func (e *FakeExecutor) ExecutePayload(_ context.Context, attrs *eth.PayloadAttributes) (*driver.ExecutionOutcome, error) {
	if e.FailNext {
		e.FailNext = false
		return nil, driver.NewExecutionError("synthetic execution failure")
	}
	header := &types.Header{
		ParentHash: e.safeHead.Hash,
		Number:     new(big.Int).SetUint64(e.safeHead.Number + 1),
		Time:       attrs.Timestamp,
		MixDigest:  attrs.PrevRandao,
		Coinbase:   attrs.SuggestedFeeRecipient,
		GasLimit:   30_000_000,
	}
	deposit := depositTx(e.Origin)
	txs := types.Transactions{deposit}
	for _, raw := range attrs.Transactions {
		var tx types.Transaction
		if err := tx.UnmarshalBinary(raw); err != nil {
			return nil, errors.New("fake executor: invalid transaction encoding")
		}
		txs = append(txs, &tx)
	}
	return &driver.ExecutionOutcome{
		Header:       header,
		Transactions: txs,
		OutputRoot:   eth.OutputV0{StateRoot: header.Hash()},
	}, nil
}

func depositTx(origin eth.BlockID) *types.Transaction {
	data := make([]byte, 4+8*32)
	copy(data[:4], []byte{0x01, 0x5d, 0x8e, 0xb9})
	binary.BigEndian.PutUint64(data[4+32-8:4+32], origin.Number)
	copy(data[4+3*32:4+4*32], origin.Hash[:])
	return types.NewTx(&types.LegacyTx{Data: data})
}
