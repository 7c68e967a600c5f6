// Package monitoring holds the in-memory per-chain health snapshot
// that backs GET /v0/monitoring. Grounded on
// original_source/worker/src/types/monitoring.rs's Monitoring/Event
// structs and original_source/src/services/providers.rs's
// lock-update-unlock access pattern.
package monitoring

import (
	"sync"
	"time"
)

// EventStatus tracks the last time a given event kind was observed for
// a chain, and how many times.
type EventStatus struct {
	Event            string    `json:"event"`
	LastUpdate       time.Time `json:"last_update"`
	UpdateBlock      uint64    `json:"update_block"`
	LastUpdateMillis int64     `json:"update_duration_ms"`
	Count            uint64    `json:"count"`
}

// Snapshot is one chain's current health, as served by the monitoring
// endpoint.
type Snapshot struct {
	ChainName       string                  `json:"chain_name"`
	CurrentBlock    uint64                  `json:"current_block"`
	SocketCreatedAt time.Time               `json:"socket_create_time"`
	Events          map[string]EventStatus  `json:"events"`
}

// Store is a thread-safe map of chain id to Snapshot.
type Store struct {
	mu        sync.Mutex
	snapshots map[int64]Snapshot
}

// New returns an empty Store.
func New() *Store {
	return &Store{snapshots: make(map[int64]Snapshot)}
}

// SetChainRuntime records the chain connection supervisor's view:
// current block, chain name and socket creation time.
func (s *Store) SetChainRuntime(chainID int64, chainName string, currentBlock uint64, socketCreatedAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, ok := s.snapshots[chainID]
	if !ok {
		snap = Snapshot{Events: make(map[string]EventStatus)}
	}
	snap.ChainName = chainName
	snap.CurrentBlock = currentBlock
	snap.SocketCreatedAt = socketCreatedAt
	s.snapshots[chainID] = snap
}

// RecordEvent updates the per-event counters the watcher reports:
// last observed time and block, and a running count.
func (s *Store) RecordEvent(chainID int64, eventName string, updateBlock uint64, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, ok := s.snapshots[chainID]
	if !ok {
		snap = Snapshot{Events: make(map[string]EventStatus)}
	}
	if snap.Events == nil {
		snap.Events = make(map[string]EventStatus)
	}
	ev := snap.Events[eventName]
	ev.Event = eventName
	ev.LastUpdate = at
	ev.UpdateBlock = updateBlock
	ev.Count++
	snap.Events[eventName] = ev
	s.snapshots[chainID] = snap
}

// Snapshot returns a copy of the current state, safe to serialize
// outside the lock.
func (s *Store) Snapshot() map[int64]Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[int64]Snapshot, len(s.snapshots))
	for k, v := range s.snapshots {
		evCopy := make(map[string]EventStatus, len(v.Events))
		for ek, ev := range v.Events {
			evCopy[ek] = ev
		}
		v.Events = evCopy
		out[k] = v
	}
	return out
}
