package engine

import (
	"context"
)

// RunQueryTask answers EngineQueries from EngineState's accessors,
// running as its own goroutine independent of the actor's event loop: a
// concurrent reader running in a separate cooperative task, aborted on
// shutdown. Grounded on kona's
// EngineActor::start_query_task (original_source/crates/node/service/src/
// actors/engine.rs), reimplemented with a goroutine and ctx.Done() in place of a
// spawned cooperative task and an abort handle.
//
// EngineState's accessors already take an RWMutex, so this goroutine
// reads state directly rather than needing its own private snapshot; the
// Subscribe channel only exists to let it react to safe-head changes
// without polling.
func (a *Actor) RunQueryTask(ctx context.Context) {
	sub := a.env.State.Subscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case <-sub:
			// Safe head changed; nothing to do until a query arrives, since
			// reads go through EngineState directly.
		case q, ok := <-a.queriesCh:
			if !ok {
				return
			}
			a.answerQuery(q)
		}
	}
}

func (a *Actor) answerQuery(q EngineQuery) {
	var ref = a.env.State.SafeHead()
	switch q.Kind {
	case QuerySafeHead:
		ref = a.env.State.SafeHead()
	case QueryUnsafeHead:
		ref = a.env.State.UnsafeHead()
	case QueryFinalizedHead:
		ref = a.env.State.FinalizedHead()
	}
	q.Resp <- ref
}
