package engine

import (
	"context"

	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/params"

	"github.com/ethereum-optimism/optimism/op-node/rollup/derive"
	"github.com/ethereum-optimism/optimism/op-service/eth"
)

// RuntimeConfig carries the superchain protocol-version signal the L1
// provider capability surfaces.
type RuntimeConfig struct {
	RecommendedProtocolVersion params.ProtocolVersion
	RequiredProtocolVersion    params.ProtocolVersion
}

// QueryKind names the snapshot an EngineQuery asks the query task (D3)
// to answer.
type QueryKind int

const (
	QuerySafeHead QueryKind = iota
	QueryUnsafeHead
	QueryFinalizedHead
)

// EngineQuery is a request on the actor's optional bounded query port,
// answered by the concurrent query task (D3) rather than the actor
// goroutine itself, by a separate query task.
type EngineQuery struct {
	Kind QueryKind
	Resp chan<- eth.L2BlockInfo
}

// Observer receives best-effort notifications of actor activity, in place
// of a gossip/event-bus subscription: a plain interface with no delivery
// guarantees beyond best-effort, synchronous calls from the actor
// goroutine. Implementations must not block.
type Observer interface {
	OnUnsafeBlock(eth.L2BlockInfo)
	OnSafeHead(eth.L2BlockInfo)
	// OnReset reports the outcome of a reset walkback: nil on success, the
	// failure otherwise.
	OnReset(error)
}

// NoopObserver discards every notification.
type NoopObserver struct{}

func (NoopObserver) OnUnsafeBlock(eth.L2BlockInfo) {}
func (NoopObserver) OnSafeHead(eth.L2BlockInfo)    {}
func (NoopObserver) OnReset(error)                 {}

// Actor owns the engine task queue and EngineState: a single goroutine
// running a hand-written priority select loop, since Go
// has no cooperative single-threaded runtime to express the biased
// `select` the original describes directly. Grounded on kona's
// EngineActor::start biased tokio::select! loop (original_source/crates/
// node/service/src/actors/engine.rs), including that loop's Some/None
// else-branch on each mandatory channel receive, and op-node's driver
// event loop (op-node/rollup/driver/state.go) for the Go idiom of a
// for/select pump.
type Actor struct {
	log      log.Logger
	env      *TaskEnv
	queue    *TaskQueue
	pipeline derive.Pipeline
	walkback *ResetWalkback
	observer Observer

	resetCh         chan struct{}
	unsafeBlockCh   chan *eth.OpNetworkPayloadEnvelope
	attributesCh    chan eth.OpAttributesWithParent
	runtimeConfigCh chan RuntimeConfig
	queriesCh       chan EngineQuery

	syncComplete chan struct{}
	closeOnce    bool
}

// NewActor wires an Actor over env/queue/pipeline. The caller retains the
// send side of every returned channel's counterpart; Actor owns the
// receive side and closes syncComplete exactly once, on the first
// check_sync after EL sync finishes.
func NewActor(l log.Logger, env *TaskEnv, queue *TaskQueue, pipeline derive.Pipeline, walkback *ResetWalkback, observer Observer) *Actor {
	if observer == nil {
		observer = NoopObserver{}
	}
	return &Actor{
		log:             l,
		env:             env,
		queue:           queue,
		pipeline:        pipeline,
		walkback:        walkback,
		observer:        observer,
		resetCh:         make(chan struct{}, 1),
		unsafeBlockCh:   make(chan *eth.OpNetworkPayloadEnvelope, 64),
		attributesCh:    make(chan eth.OpAttributesWithParent, 64),
		runtimeConfigCh: make(chan RuntimeConfig, 4),
		queriesCh:       make(chan EngineQuery, 16),
		syncComplete:    make(chan struct{}),
	}
}

// RequestReset sends a ResetRequest. Non-blocking:
// a pending reset request coalesces with any already queued.
func (a *Actor) RequestReset() {
	select {
	case a.resetCh <- struct{}{}:
	default:
	}
}

func (a *Actor) SubmitUnsafeBlock(env *eth.OpNetworkPayloadEnvelope) { a.unsafeBlockCh <- env }
func (a *Actor) SubmitAttributes(attrs eth.OpAttributesWithParent)    { a.attributesCh <- attrs }
func (a *Actor) SubmitRuntimeConfig(rc RuntimeConfig)                 { a.runtimeConfigCh <- rc }
func (a *Actor) Queries() chan<- EngineQuery                          { return a.queriesCh }
func (a *Actor) SyncComplete() <-chan struct{}                        { return a.syncComplete }

// Run executes the priority select loop until ctx is cancelled: cancellation
// takes precedence over everything else; reset, unsafe-block, attributes,
// and runtime-config requests are drained non-blocking in that priority
// order each iteration; the task queue is drained whenever it is non-empty;
// otherwise the loop blocks on every channel at once so it wakes on the
// next event. Every receive on a mandatory inbound channel (reset,
// unsafe-block, attributes, runtime-config) checks the channel's ok value:
// a closed channel is fatal and cancels the node, rather than spinning
// forever on zero values, mirroring the Some/None else-branch kona's
// EngineActor::start uses for the same four channels.
func (a *Actor) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, ok := <-a.resetCh:
			if !ok {
				return a.fatalClosedChannel("reset")
			}
			a.handleReset(ctx)
			continue
		default:
		}

		select {
		case env, ok := <-a.unsafeBlockCh:
			if !ok {
				return a.fatalClosedChannel("unsafe block")
			}
			a.handleUnsafeBlock(env)
			continue
		default:
		}

		select {
		case attrs, ok := <-a.attributesCh:
			if !ok {
				return a.fatalClosedChannel("attributes")
			}
			a.queue.Enqueue(&ConsolidateTask{Attrs: attrs, IsAttributesDerived: true})
			continue
		default:
		}

		select {
		case rc, ok := <-a.runtimeConfigCh:
			if !ok {
				return a.fatalClosedChannel("runtime config")
			}
			a.handleRuntimeConfig(ctx, rc)
			continue
		default:
		}

		if a.queue.Len() > 0 {
			a.drain(ctx)
			continue
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, ok := <-a.resetCh:
			if !ok {
				return a.fatalClosedChannel("reset")
			}
			a.handleReset(ctx)
		case env, ok := <-a.unsafeBlockCh:
			if !ok {
				return a.fatalClosedChannel("unsafe block")
			}
			a.handleUnsafeBlock(env)
		case attrs, ok := <-a.attributesCh:
			if !ok {
				return a.fatalClosedChannel("attributes")
			}
			a.queue.Enqueue(&ConsolidateTask{Attrs: attrs, IsAttributesDerived: true})
		case rc, ok := <-a.runtimeConfigCh:
			if !ok {
				return a.fatalClosedChannel("runtime config")
			}
			a.handleRuntimeConfig(ctx, rc)
		}
	}
}

// fatalClosedChannel logs and returns the fatal error Run surfaces when one
// of its mandatory inbound channels closes out from under it.
func (a *Actor) fatalClosedChannel(name string) error {
	a.log.Error("mandatory inbound channel closed, exiting actor", "channel", name)
	return ErrChannelClosed
}

// handleReset finds a consistent (l2_safe_head, l1_origin) pairing by
// walking back from the current tip, then signals derivation to reset
// from it. If the walkback or the signal fails, the error is logged and
// reported to the observer; the actor keeps running and the node is not
// cancelled.
func (a *Actor) handleReset(ctx context.Context) {
	from := a.env.State.SafeHead()
	target, err := a.walkback.FindConsistentHead(ctx, from)
	if err != nil {
		a.log.Error("reset walkback failed", "err", err)
		a.observer.OnReset(err)
		return
	}
	a.log.Info("reset walkback found consistent head", "target", target)
	if err := a.pipeline.Signal(ctx, derive.Signal{Kind: derive.ResetSignal, Block: &target}); err != nil {
		a.log.Error("failed to send reset signal to derivation", "err", err)
		a.observer.OnReset(err)
		return
	}
	a.observer.OnReset(nil)
}

// handleUnsafeBlock enqueues an InsertUnsafeTask, then checks whether EL
// sync has just finished.
func (a *Actor) handleUnsafeBlock(env *eth.OpNetworkPayloadEnvelope) {
	a.queue.Enqueue(&InsertUnsafeTask{Envelope: env})
	a.checkSync()
}

// checkSync, once EL sync has finished, requests an initial reset and
// closes syncComplete exactly once to let derivation start. The close
// happens immediately: the reset walkback itself runs on a later
// iteration of Run, after syncComplete is already closed.
func (a *Actor) checkSync() {
	if a.closeOnce || !a.env.State.ELSyncFinished() {
		return
	}
	a.closeOnce = true
	a.RequestReset()
	close(a.syncComplete)
}

// handleRuntimeConfig signals the protocol version asynchronously; a
// failure is a warning since the endpoint is optional.
func (a *Actor) handleRuntimeConfig(ctx context.Context, rc RuntimeConfig) {
	go func() {
		if _, err := a.env.API.SignalSuperchainV1(ctx, rc.RecommendedProtocolVersion, rc.RequiredProtocolVersion); err != nil {
			a.log.Warn("engine_signalSuperchainV1 failed", "err", err)
		}
	}()
}

// drain runs the queue until empty or error, classifies any error, and
// publishes the safe head if it changed.
func (a *Actor) drain(ctx context.Context) {
	safeBefore := a.env.State.SafeHead()
	unsafeBefore := a.env.State.UnsafeHead()
	err := a.queue.Drain(ctx, a.env)
	if safeAfter := a.env.State.SafeHead(); safeAfter != safeBefore {
		a.observer.OnSafeHead(safeAfter)
	}
	if unsafeAfter := a.env.State.UnsafeHead(); unsafeAfter != unsafeBefore {
		a.observer.OnUnsafeBlock(unsafeAfter)
	}
	if err == nil {
		return
	}
	var taskErr *EngineTaskError
	if !asEngineTaskError(err, &taskErr) {
		a.log.Warn("engine task failed with unclassified error", "err", err)
		return
	}
	switch taskErr.Kind {
	case ResetKind:
		a.log.Warn("engine task requested reset", "err", err)
		a.RequestReset()
	case FlushKind:
		a.log.Warn("engine task requested channel flush", "err", err)
		if sigErr := a.pipeline.Signal(ctx, derive.Signal{Kind: derive.FlushChannelSignal}); sigErr != nil {
			a.log.Error("failed to send flush signal to derivation", "err", sigErr)
		}
	case TemporaryKind:
		a.log.Warn("engine task failed temporarily", "err", err)
	default:
		a.log.Error("engine task failed fatally", "err", err)
	}
}

func asEngineTaskError(err error, target **EngineTaskError) bool {
	for err != nil {
		if e, ok := err.(*EngineTaskError); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

