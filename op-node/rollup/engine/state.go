package engine

import (
	"sync"

	"github.com/ethereum-optimism/optimism/op-service/eth"
)

// EngineState holds the execution engine's view of the L2 chain: the
// unsafe (gossip-observed), cross-unsafe, local-safe, safe
// (derived-from-L1), and finalized heads, plus EL-sync status.
//
// EngineState is single-writer: only the engine actor's goroutine ever
// calls a Set* mutator. Every accessor takes the RWMutex, so readers in
// other goroutines share that lock with the writer. Subscribe delivers
// only safe-head changes, not snapshots of the whole state.
type EngineState struct {
	mu sync.RWMutex

	unsafeHead       eth.L2BlockInfo
	crossUnsafeHead  eth.L2BlockInfo
	localSafeHead    eth.L2BlockInfo
	safeHead         eth.L2BlockInfo
	finalizedHead    eth.L2BlockInfo
	backupUnsafeHead *eth.L2BlockInfo
	elSyncFinished   bool

	subs   []chan eth.L2BlockInfo
	subsMu sync.Mutex
}

// NewEngineState seeds an EngineState with every head at genesis.
func NewEngineState(genesis eth.L2BlockInfo) *EngineState {
	return &EngineState{
		unsafeHead:      genesis,
		crossUnsafeHead: genesis,
		localSafeHead:   genesis,
		safeHead:        genesis,
		finalizedHead:   genesis,
	}
}

func (s *EngineState) UnsafeHead() eth.L2BlockInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.unsafeHead
}

func (s *EngineState) CrossUnsafeHead() eth.L2BlockInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.crossUnsafeHead
}

func (s *EngineState) LocalSafeHead() eth.L2BlockInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.localSafeHead
}

func (s *EngineState) SafeHead() eth.L2BlockInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.safeHead
}

func (s *EngineState) FinalizedHead() eth.L2BlockInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.finalizedHead
}

func (s *EngineState) BackupUnsafeHead() (eth.L2BlockInfo, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.backupUnsafeHead == nil {
		return eth.L2BlockInfo{}, false
	}
	return *s.backupUnsafeHead, true
}

func (s *EngineState) ELSyncFinished() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.elSyncFinished
}

func (s *EngineState) SetUnsafeHead(ref eth.L2BlockInfo) {
	s.mu.Lock()
	s.unsafeHead = ref
	s.mu.Unlock()
}

func (s *EngineState) SetCrossUnsafeHead(ref eth.L2BlockInfo) {
	s.mu.Lock()
	s.crossUnsafeHead = ref
	s.mu.Unlock()
}

func (s *EngineState) SetLocalSafeHead(ref eth.L2BlockInfo) {
	s.mu.Lock()
	s.localSafeHead = ref
	s.mu.Unlock()
}

// SetSafeHead updates the safe head and notifies subscribers of the new
// value. This is the only head update that query handlers care about
// observing promptly.
func (s *EngineState) SetSafeHead(ref eth.L2BlockInfo) {
	s.mu.Lock()
	s.safeHead = ref
	s.mu.Unlock()
	s.notify(ref)
}

func (s *EngineState) SetFinalizedHead(ref eth.L2BlockInfo) {
	s.mu.Lock()
	s.finalizedHead = ref
	s.mu.Unlock()
}

func (s *EngineState) SetBackupUnsafeHead(ref eth.L2BlockInfo) {
	s.mu.Lock()
	s.backupUnsafeHead = &ref
	s.mu.Unlock()
}

func (s *EngineState) ClearBackupUnsafeHead() {
	s.mu.Lock()
	s.backupUnsafeHead = nil
	s.mu.Unlock()
}

func (s *EngineState) SetELSyncFinished(v bool) {
	s.mu.Lock()
	s.elSyncFinished = v
	s.mu.Unlock()
}

// Subscribe returns a channel that receives the safe head every time it
// changes. The channel is buffered to depth 1 and lossy: a slow
// subscriber only ever sees the latest value, never a backlog, since
// query handlers only need the current safe head, not every
// intermediate value.
func (s *EngineState) Subscribe() <-chan eth.L2BlockInfo {
	ch := make(chan eth.L2BlockInfo, 1)
	s.subsMu.Lock()
	s.subs = append(s.subs, ch)
	s.subsMu.Unlock()
	return ch
}

func (s *EngineState) notify(ref eth.L2BlockInfo) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- ref:
		default:
			// Drain the stale value and replace it so subscribers always
			// observe the latest safe head.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- ref:
			default:
			}
		}
	}
}
