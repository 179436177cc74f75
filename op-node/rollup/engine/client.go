package engine

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/params"

	"github.com/ethereum-optimism/optimism/op-service/eth"
)

// API is the execution-client capability consumed by the engine task
// queue: engine_newPayload, engine_forkchoiceUpdated, engine_getPayload
// and the superchain-signal endpoint, named after op-node's
// RollupAPI/EngineAPI surface in op-node/rollup/engine/api.go.
type API interface {
	NewPayload(ctx context.Context, payload *eth.ExecutionPayload, parentBeaconBlockRoot *common.Hash) (*eth.PayloadStatusV1, error)
	ForkchoiceUpdate(ctx context.Context, state *eth.ForkchoiceState, attrs *eth.PayloadAttributes) (*eth.ForkchoiceUpdatedResult, error)
	GetPayload(ctx context.Context, id eth.PayloadID) (*eth.ExecutionPayload, error)
	SignalSuperchainV1(ctx context.Context, recommended, required params.ProtocolVersion) (params.ProtocolVersion, error)
}

// L2Provider is the L2 chain-provider capability, named after op-node's
// L2Chain interface: lookups by label or number, receipts, and output
// root computation.
type L2Provider interface {
	L2BlockRefByLabel(ctx context.Context, label eth.BlockLabel) (eth.L2BlockInfo, error)
	L2BlockRefByNumber(ctx context.Context, num uint64) (eth.L2BlockInfo, error)
	BlockByNumber(ctx context.Context, num uint64) (*types.Block, error)
	FetchReceipts(ctx context.Context, blockHash common.Hash) (types.Receipts, error)
	OutputV0AtTimestamp(ctx context.Context, timestamp uint64) (*eth.OutputV0, error)
	PendingOutputV0AtTimestamp(ctx context.Context, timestamp uint64) (*eth.OutputV0, error)
	L2BlockRefByTimestamp(ctx context.Context, timestamp uint64) (eth.L2BlockInfo, error)
}

// L1Provider is the L1 chain-provider capability: block references by
// number or hash, named after op-node's L1Chain interface.
type L1Provider interface {
	L1BlockRefByNumber(ctx context.Context, num uint64) (eth.L1BlockRef, error)
	L1BlockRefByHash(ctx context.Context, hash common.Hash) (eth.L1BlockRef, error)
}

// RPCClient is the subset of *rpc.Client the engine client needs, kept as
// an interface so tests can fake it without a live JWT-authenticated
// endpoint (the JWT/transport wiring itself is out of scope).
type RPCClient interface {
	CallContext(ctx context.Context, result interface{}, method string, args ...interface{}) error
}

// EngineClient implements API by calling the engine_* JSON-RPC methods
// over an authenticated RPCClient, following the status-switch idiom of
// op-node/rollup/engine/api.go's EngineController.
type EngineClient struct {
	rpc RPCClient
}

var _ API = (*EngineClient)(nil)

func NewEngineClient(rpc RPCClient) *EngineClient {
	return &EngineClient{rpc: rpc}
}

func (c *EngineClient) NewPayload(ctx context.Context, payload *eth.ExecutionPayload, parentBeaconBlockRoot *common.Hash) (*eth.PayloadStatusV1, error) {
	var result eth.PayloadStatusV1
	method := "engine_newPayloadV2"
	args := []interface{}{payload}
	if parentBeaconBlockRoot != nil {
		method = "engine_newPayloadV3"
		args = append(args, []common.Hash{}, *parentBeaconBlockRoot)
	}
	if err := c.rpc.CallContext(ctx, &result, method, args...); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *EngineClient) ForkchoiceUpdate(ctx context.Context, state *eth.ForkchoiceState, attrs *eth.PayloadAttributes) (*eth.ForkchoiceUpdatedResult, error) {
	var result eth.ForkchoiceUpdatedResult
	method := "engine_forkchoiceUpdatedV2"
	if attrs != nil && attrs.ParentBeaconBlockRoot != nil {
		method = "engine_forkchoiceUpdatedV3"
	}
	if err := c.rpc.CallContext(ctx, &result, method, state, attrs); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *EngineClient) GetPayload(ctx context.Context, id eth.PayloadID) (*eth.ExecutionPayload, error) {
	var result eth.ExecutionPayload
	if err := c.rpc.CallContext(ctx, &result, "engine_getPayloadV3", id); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *EngineClient) SignalSuperchainV1(ctx context.Context, recommended, required params.ProtocolVersion) (params.ProtocolVersion, error) {
	var result params.ProtocolVersion
	signal := struct {
		Recommended params.ProtocolVersion `json:"recommended"`
		Required    params.ProtocolVersion `json:"required"`
	}{recommended, required}
	if err := c.rpc.CallContext(ctx, &result, "engine_signalSuperchainV1", signal); err != nil {
		return params.ProtocolVersion{}, err
	}
	return result, nil
}
