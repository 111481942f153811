package calendar

import (
	"context"
	"sync"
)

// MemStore is an in-memory Store for library embedding and tests. Each
// Save replaces the provider's snapshot wholesale, matching the
// atomicity the Store contract requires.
type MemStore struct {
	mu        sync.RWMutex
	snapshots map[string]*Snapshot
}

func NewMemStore() *MemStore {
	return &MemStore{snapshots: make(map[string]*Snapshot)}
}

func (m *MemStore) Load(ctx context.Context, providerID string) (*Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	snap, ok := m.snapshots[providerID]
	if !ok {
		return &Snapshot{ProviderID: providerID}, nil
	}
	return copySnapshot(snap), nil
}

func (m *MemStore) Save(ctx context.Context, snap *Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots[snap.ProviderID] = copySnapshot(snap)
	return nil
}

func copySnapshot(snap *Snapshot) *Snapshot {
	out := &Snapshot{ProviderID: snap.ProviderID}
	out.Sessions = append(out.Sessions, snap.Sessions...)
	out.Unavailable = append(out.Unavailable, snap.Unavailable...)
	out.Rules = append(out.Rules, snap.Rules...)
	return out
}

// LocalLocker serializes per-provider mutations with in-process mutexes.
// Suitable for a single instance owning all aggregates; multi-instance
// deployments use the redis locker instead.
type LocalLocker struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{locks: make(map[string]*sync.Mutex)}
}

func (l *LocalLocker) WithProviderLock(ctx context.Context, providerID string, fn func(ctx context.Context) error) error {
	l.mu.Lock()
	m, ok := l.locks[providerID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[providerID] = m
	}
	l.mu.Unlock()

	m.Lock()
	defer m.Unlock()
	return fn(ctx)
}
