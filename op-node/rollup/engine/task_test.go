package engine

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/params"
	"github.com/stretchr/testify/require"

	"github.com/ethereum-optimism/optimism/op-node/rollup"
	"github.com/ethereum-optimism/optimism/op-service/eth"
)

// fakeAPI implements API against an in-memory script, letting each test
// program the ForkchoiceUpdate/GetPayload/NewPayload responses it needs.
type fakeAPI struct {
	forkchoiceUpdate func(state *eth.ForkchoiceState, attrs *eth.PayloadAttributes) (*eth.ForkchoiceUpdatedResult, error)
	getPayload       func(id eth.PayloadID) (*eth.ExecutionPayload, error)
	newPayload       func(payload *eth.ExecutionPayload) (*eth.PayloadStatusV1, error)
}

func (f *fakeAPI) NewPayload(_ context.Context, payload *eth.ExecutionPayload, _ *common.Hash) (*eth.PayloadStatusV1, error) {
	return f.newPayload(payload)
}

func (f *fakeAPI) ForkchoiceUpdate(_ context.Context, state *eth.ForkchoiceState, attrs *eth.PayloadAttributes) (*eth.ForkchoiceUpdatedResult, error) {
	return f.forkchoiceUpdate(state, attrs)
}

func (f *fakeAPI) GetPayload(_ context.Context, id eth.PayloadID) (*eth.ExecutionPayload, error) {
	return f.getPayload(id)
}

func (f *fakeAPI) SignalSuperchainV1(_ context.Context, _, _ params.ProtocolVersion) (params.ProtocolVersion, error) {
	return params.ProtocolVersion{}, nil
}

// fakeL2Provider serves a fixed set of blocks by number.
type fakeL2Provider struct {
	blocks map[uint64]*types.Block
	err    error
}

func (f *fakeL2Provider) L2BlockRefByLabel(context.Context, eth.BlockLabel) (eth.L2BlockInfo, error) {
	return eth.L2BlockInfo{}, nil
}
func (f *fakeL2Provider) L2BlockRefByNumber(context.Context, uint64) (eth.L2BlockInfo, error) {
	return eth.L2BlockInfo{}, nil
}
func (f *fakeL2Provider) BlockByNumber(_ context.Context, num uint64) (*types.Block, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.blocks[num], nil
}
func (f *fakeL2Provider) FetchReceipts(context.Context, common.Hash) (types.Receipts, error) {
	return nil, nil
}
func (f *fakeL2Provider) OutputV0AtTimestamp(context.Context, uint64) (*eth.OutputV0, error) {
	return nil, nil
}
func (f *fakeL2Provider) PendingOutputV0AtTimestamp(context.Context, uint64) (*eth.OutputV0, error) {
	return nil, nil
}
func (f *fakeL2Provider) L2BlockRefByTimestamp(context.Context, uint64) (eth.L2BlockInfo, error) {
	return eth.L2BlockInfo{}, nil
}

var testGenesis = rollup.Genesis{
	L1: eth.BlockID{Number: 0, Hash: common.HexToHash("0xaa")},
	L2: eth.BlockID{Number: 0, Hash: common.HexToHash("0xbb")},
}

func testConfig() *rollup.Config {
	return &rollup.Config{Genesis: testGenesis, BlockTime: 2}
}

func newTestEnv(cfg *rollup.Config, state *EngineState, api API, l2 L2Provider) *TaskEnv {
	return &TaskEnv{
		Config:  cfg,
		State:   state,
		API:     api,
		L2:      l2,
		Metrics: NoopMetrics{},
		Log:     log.New(),
	}
}

func depositTxBytes(l1Number uint64, l1Hash common.Hash) eth.Data {
	data := make([]byte, 4+8*32)
	copy(data[:4], setL1BlockValuesSelector[:])
	word := func(i int) []byte { return data[4+i*32 : 4+(i+1)*32] }
	putUint64BE(word(0), l1Number)
	copy(word(3), l1Hash[:])
	return eth.Data(data)
}

func putUint64BE(word []byte, v uint64) {
	for i := 0; i < 8; i++ {
		word[len(word)-1-i] = byte(v >> (8 * i))
	}
}

// buildTestBlock constructs a block whose first transaction is a deposit
// encoding the given L1 origin, matching what L2BlockInfoFromBlockAndGenesis
// expects to decode, and returns the matching attrs.Transactions encoding
// so AttributesMatch's transaction-list comparison agrees with it.
func buildTestBlock(t *testing.T, number uint64, parentHash common.Hash, timestamp uint64, origin eth.BlockID, randao common.Hash, feeRecipient common.Address, gasLimit uint64) (*types.Block, []eth.Data) {
	t.Helper()
	header := &types.Header{
		ParentHash: parentHash,
		Number:     new(big.Int).SetUint64(number),
		Time:       timestamp,
		MixDigest:  randao,
		Coinbase:   feeRecipient,
		GasLimit:   gasLimit,
	}
	depositData := depositTxBytes(origin.Number, origin.Hash)
	depositTx := types.NewTx(&types.LegacyTx{Nonce: 0, Data: depositData})
	block := types.NewBlockWithHeader(header).WithBody(types.Body{Transactions: types.Transactions{depositTx}})
	raw, err := depositTx.MarshalBinary()
	require.NoError(t, err)
	return block, []eth.Data{raw}
}

func TestConsolidateAdvancesSafeHead(t *testing.T) {
	// S3: unsafe_head.number=100, safe_head.number=90; consolidate attrs
	// whose parent is block 90; fetched block 91 matches; not last in span.
	cfg := testConfig()
	parent := eth.L2BlockInfo{BlockInfo: eth.BlockInfo{Number: 90, Hash: common.HexToHash("0x90")}, L1Origin: testGenesis.L1}
	state := NewEngineState(parent)
	state.SetUnsafeHead(eth.L2BlockInfo{BlockInfo: eth.BlockInfo{Number: 100}})

	attrs := eth.OpAttributesWithParent{
		Parent: parent,
		Attributes: &eth.PayloadAttributes{
			Timestamp:             parent.Time + cfg.BlockTime,
			PrevRandao:            common.HexToHash("0xr"),
			SuggestedFeeRecipient: common.HexToAddress("0xfee"),
		},
		IsLastInSpan: false,
	}
	block, txs := buildTestBlock(t, 91, parent.Hash, attrs.Attributes.Timestamp, testGenesis.L1, attrs.Attributes.PrevRandao, attrs.Attributes.SuggestedFeeRecipient, 30_000_000)
	attrs.Attributes.Transactions = txs

	l2 := &fakeL2Provider{blocks: map[uint64]*types.Block{91: block}}
	api := &fakeAPI{
		forkchoiceUpdate: func(*eth.ForkchoiceState, *eth.PayloadAttributes) (*eth.ForkchoiceUpdatedResult, error) {
			t.Fatal("forkchoice should not be called when is_last_in_span is false")
			return nil, nil
		},
	}
	env := newTestEnv(cfg, state, api, l2)

	task := &ConsolidateTask{Attrs: attrs}
	require.NoError(t, task.Execute(context.Background(), env))
	require.Equal(t, uint64(91), state.SafeHead().Number)
}

func TestConsolidateMismatchFallsBackToBuild(t *testing.T) {
	// S4: same preconditions as S3 but attrs.randao != block.mix_hash.
	cfg := testConfig()
	parent := eth.L2BlockInfo{BlockInfo: eth.BlockInfo{Number: 90, Hash: common.HexToHash("0x90")}, L1Origin: testGenesis.L1}
	state := NewEngineState(parent)
	state.SetUnsafeHead(eth.L2BlockInfo{BlockInfo: eth.BlockInfo{Number: 100}})

	attrs := eth.OpAttributesWithParent{
		Parent: parent,
		Attributes: &eth.PayloadAttributes{
			Timestamp:             parent.Time + cfg.BlockTime,
			PrevRandao:            common.HexToHash("0xdead"),
			SuggestedFeeRecipient: common.HexToAddress("0xfee"),
		},
		IsLastInSpan: false,
	}
	// Block's mix digest differs from attrs' randao -> mismatch.
	block, _ := buildTestBlock(t, 91, parent.Hash, attrs.Attributes.Timestamp, testGenesis.L1, common.HexToHash("0xbeef"), attrs.Attributes.SuggestedFeeRecipient, 30_000_000)

	l2 := &fakeL2Provider{blocks: map[uint64]*types.Block{91: block}}
	builtPayload := &eth.ExecutionPayload{ParentHash: parent.Hash, BlockNumber: 91, BlockHash: common.HexToHash("0x91built")}
	api := &fakeAPI{
		forkchoiceUpdate: func(state *eth.ForkchoiceState, attrs *eth.PayloadAttributes) (*eth.ForkchoiceUpdatedResult, error) {
			if attrs != nil {
				id := eth.PayloadID{1}
				return &eth.ForkchoiceUpdatedResult{PayloadStatus: eth.PayloadStatusV1{Status: eth.ExecutionValid}, PayloadID: &id}, nil
			}
			return &eth.ForkchoiceUpdatedResult{PayloadStatus: eth.PayloadStatusV1{Status: eth.ExecutionValid}}, nil
		},
		getPayload: func(eth.PayloadID) (*eth.ExecutionPayload, error) { return builtPayload, nil },
		newPayload: func(*eth.ExecutionPayload) (*eth.PayloadStatusV1, error) {
			return &eth.PayloadStatusV1{Status: eth.ExecutionValid}, nil
		},
	}
	env := newTestEnv(cfg, state, api, l2)

	task := &ConsolidateTask{Attrs: attrs}
	require.NoError(t, task.Execute(context.Background(), env))
	require.Equal(t, uint64(91), state.SafeHead().Number)
	require.Equal(t, common.HexToHash("0x91built"), state.UnsafeHead().Hash)
}

func TestConsolidateMissingBlockFallsBackToBuild(t *testing.T) {
	cfg := testConfig()
	parent := eth.L2BlockInfo{BlockInfo: eth.BlockInfo{Number: 90}, L1Origin: testGenesis.L1}
	state := NewEngineState(parent)
	state.SetUnsafeHead(eth.L2BlockInfo{BlockInfo: eth.BlockInfo{Number: 100}})

	attrs := eth.OpAttributesWithParent{
		Parent:       parent,
		Attributes:   &eth.PayloadAttributes{Timestamp: parent.Time + cfg.BlockTime},
		IsLastInSpan: false,
	}
	l2 := &fakeL2Provider{blocks: map[uint64]*types.Block{}} // block 91 missing
	builtPayload := &eth.ExecutionPayload{ParentHash: parent.Hash, BlockNumber: 91, BlockHash: common.HexToHash("0x91")}
	api := &fakeAPI{
		forkchoiceUpdate: func(_ *eth.ForkchoiceState, attrs *eth.PayloadAttributes) (*eth.ForkchoiceUpdatedResult, error) {
			if attrs != nil {
				id := eth.PayloadID{1}
				return &eth.ForkchoiceUpdatedResult{PayloadStatus: eth.PayloadStatusV1{Status: eth.ExecutionValid}, PayloadID: &id}, nil
			}
			return &eth.ForkchoiceUpdatedResult{PayloadStatus: eth.PayloadStatusV1{Status: eth.ExecutionValid}}, nil
		},
		getPayload: func(eth.PayloadID) (*eth.ExecutionPayload, error) { return builtPayload, nil },
		newPayload: func(*eth.ExecutionPayload) (*eth.PayloadStatusV1, error) {
			return &eth.PayloadStatusV1{Status: eth.ExecutionValid}, nil
		},
	}
	env := newTestEnv(cfg, state, api, l2)

	task := &ConsolidateTask{Attrs: attrs}
	require.NoError(t, task.Execute(context.Background(), env))
	require.Equal(t, uint64(91), state.SafeHead().Number)
}

func TestConsolidateFetchErrorIsTemporary(t *testing.T) {
	cfg := testConfig()
	parent := eth.L2BlockInfo{BlockInfo: eth.BlockInfo{Number: 90}}
	state := NewEngineState(parent)
	state.SetUnsafeHead(eth.L2BlockInfo{BlockInfo: eth.BlockInfo{Number: 100}})

	attrs := eth.OpAttributesWithParent{Parent: parent, Attributes: &eth.PayloadAttributes{}}
	l2err := &fakeL2Provider{err: errBoom}
	env := newTestEnv(cfg, state, &fakeAPI{}, l2err)

	task := &ConsolidateTask{Attrs: attrs}
	err := task.Execute(context.Background(), env)
	require.Error(t, err)
	var taskErr *EngineTaskError
	require.ErrorAs(t, err, &taskErr)
	require.Equal(t, TemporaryKind, taskErr.Kind)
}

func TestConsolidateNothingToConsolidateDefersToBuild(t *testing.T) {
	cfg := testConfig()
	parent := eth.L2BlockInfo{BlockInfo: eth.BlockInfo{Number: 100}}
	state := NewEngineState(parent)
	// safe_head.number (100) >= unsafe_head.number (100): nothing to do,
	// defers straight to Build.
	builtPayload := &eth.ExecutionPayload{ParentHash: parent.Hash, BlockNumber: 101, BlockHash: common.HexToHash("0x101")}
	api := &fakeAPI{
		forkchoiceUpdate: func(_ *eth.ForkchoiceState, attrs *eth.PayloadAttributes) (*eth.ForkchoiceUpdatedResult, error) {
			if attrs != nil {
				id := eth.PayloadID{1}
				return &eth.ForkchoiceUpdatedResult{PayloadStatus: eth.PayloadStatusV1{Status: eth.ExecutionValid}, PayloadID: &id}, nil
			}
			return &eth.ForkchoiceUpdatedResult{PayloadStatus: eth.PayloadStatusV1{Status: eth.ExecutionValid}}, nil
		},
		getPayload: func(eth.PayloadID) (*eth.ExecutionPayload, error) { return builtPayload, nil },
		newPayload: func(*eth.ExecutionPayload) (*eth.PayloadStatusV1, error) {
			return &eth.PayloadStatusV1{Status: eth.ExecutionValid}, nil
		},
	}
	env := newTestEnv(cfg, state, api, &fakeL2Provider{})

	attrs := eth.OpAttributesWithParent{Parent: parent, Attributes: &eth.PayloadAttributes{Timestamp: 1}}
	task := &ConsolidateTask{Attrs: attrs}
	require.NoError(t, task.Execute(context.Background(), env))
	require.Equal(t, uint64(101), state.SafeHead().Number)
}

func TestBuildHoloceneInvalidEmitsFlush(t *testing.T) {
	// S5: post-Holocene Consolidate resulting in Build; execution returns
	// INVALID -> non-fatal Flush task error.
	holoceneTime := uint64(0)
	cfg := &rollup.Config{Genesis: testGenesis, HoloceneTime: &holoceneTime}
	parent := eth.L2BlockInfo{BlockInfo: eth.BlockInfo{Number: 90}}
	state := NewEngineState(parent)

	api := &fakeAPI{
		forkchoiceUpdate: func(_ *eth.ForkchoiceState, attrs *eth.PayloadAttributes) (*eth.ForkchoiceUpdatedResult, error) {
			id := eth.PayloadID{1}
			return &eth.ForkchoiceUpdatedResult{PayloadStatus: eth.PayloadStatusV1{Status: eth.ExecutionValid}, PayloadID: &id}, nil
		},
		getPayload: func(eth.PayloadID) (*eth.ExecutionPayload, error) {
			return &eth.ExecutionPayload{ParentHash: parent.Hash, BlockNumber: 91}, nil
		},
		newPayload: func(*eth.ExecutionPayload) (*eth.PayloadStatusV1, error) {
			return &eth.PayloadStatusV1{Status: eth.ExecutionInvalid}, nil
		},
	}
	env := newTestEnv(cfg, state, api, &fakeL2Provider{})

	task := &BuildTask{Attrs: eth.OpAttributesWithParent{Parent: parent, Attributes: &eth.PayloadAttributes{Timestamp: 100}}}
	err := task.Execute(context.Background(), env)
	require.Error(t, err)
	var taskErr *EngineTaskError
	require.ErrorAs(t, err, &taskErr)
	require.Equal(t, FlushKind, taskErr.Kind)
}

func TestForkchoiceSyncingIsNonTerminal(t *testing.T) {
	cfg := testConfig()
	state := NewEngineState(eth.L2BlockInfo{})
	api := &fakeAPI{
		forkchoiceUpdate: func(*eth.ForkchoiceState, *eth.PayloadAttributes) (*eth.ForkchoiceUpdatedResult, error) {
			return &eth.ForkchoiceUpdatedResult{PayloadStatus: eth.PayloadStatusV1{Status: eth.ExecutionSyncing}}, nil
		},
	}
	env := newTestEnv(cfg, state, api, &fakeL2Provider{})
	require.NoError(t, (&ForkchoiceTask{}).Execute(context.Background(), env))
}

func TestTaskOrderingPreservesObservedState(t *testing.T) {
	// Task ordering property: t2's observed EngineState on entry equals
	// t1's state on exit.
	cfg := testConfig()
	state := NewEngineState(eth.L2BlockInfo{BlockInfo: eth.BlockInfo{Number: 0}})
	api := &fakeAPI{
		newPayload: func(p *eth.ExecutionPayload) (*eth.PayloadStatusV1, error) {
			return &eth.PayloadStatusV1{Status: eth.ExecutionValid}, nil
		},
	}
	env := newTestEnv(cfg, state, api, &fakeL2Provider{})

	q := NewTaskQueue()
	q.Enqueue(&InsertUnsafeTask{Envelope: &eth.OpNetworkPayloadEnvelope{ExecutionPayload: &eth.ExecutionPayload{BlockNumber: 1, BlockHash: common.HexToHash("0x1")}}})
	q.Enqueue(&InsertUnsafeTask{Envelope: &eth.OpNetworkPayloadEnvelope{ExecutionPayload: &eth.ExecutionPayload{ParentHash: common.HexToHash("0x1"), BlockNumber: 2, BlockHash: common.HexToHash("0x2")}}})

	require.NoError(t, q.Drain(context.Background(), env))
	require.Equal(t, uint64(2), state.UnsafeHead().Number)
	// t2 built on the unsafe head t1 left (hash 0x1, sequence number 1),
	// so its sequence number continues from it.
	require.Equal(t, uint64(2), state.UnsafeHead().SequenceNumber)
}

var errBoom = &fetchError{}

type fetchError struct{}

func (*fetchError) Error() string { return "boom" }
