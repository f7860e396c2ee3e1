package storage

import (
	"encoding/json"
	"log/slog"
	"sync"

	"client-portal/contract"
)

// List is a JSON array kept under one local-storage key.
// Every Save rewrites the whole array, keeping only the last limit items.
type List[T any] struct {
	store contract.LocalStorage
	log   *slog.Logger
	key   string
	limit int
	locks *keyLocks
}

// keyLocks serializes the writers of one key, shared by every scope of a list.
type keyLocks struct {
	m sync.Map
}

func (k *keyLocks) lock(key string) func() {
	v, _ := k.m.LoadOrStore(key, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

func NewList[T any](store contract.LocalStorage, log *slog.Logger, key string, limit int) *List[T] {
	return &List[T]{store: store, log: log, key: key, limit: limit, locks: &keyLocks{}}
}

// Scoped returns the same list under key:suffix, one per user when the
// store is shared by several clients.
func (l *List[T]) Scoped(suffix string) *List[T] {
	return &List[T]{store: l.store, log: l.log, key: l.key + ":" + suffix, limit: l.limit, locks: l.locks}
}

func (l *List[T]) Load() []T {
	raw, ok := l.store.GetItem(l.key)
	if !ok {
		return nil
	}
	var items []T
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		l.log.Warn("Local list corrupted, dropping it", "key", l.key, "error", err)
		_ = l.store.RemoveItem(l.key)
		return nil
	}
	return items
}

// Save never fails the caller, a write error is only logged.
func (l *List[T]) Save(items []T) {
	defer l.locks.lock(l.key)()
	l.save(items)
}

func (l *List[T]) save(items []T) {
	if l.limit > 0 && len(items) > l.limit {
		items = items[len(items)-l.limit:]
	}
	data, err := json.Marshal(items)
	if err != nil {
		l.log.Warn("Local list serialization failed", "key", l.key, "error", err)
		return
	}
	if err = l.store.SetItem(l.key, string(data)); err != nil {
		l.log.Warn("Local list write failed", "key", l.key, "error", err)
	}
}

// Append reads and rewrites the list under the key lock, so concurrent
// appends all land.
func (l *List[T]) Append(item T) {
	defer l.locks.lock(l.key)()
	l.save(append(l.Load(), item))
}

func (l *List[T]) Clear() {
	defer l.locks.lock(l.key)()
	if err := l.store.RemoveItem(l.key); err != nil {
		l.log.Warn("Local list removal failed", "key", l.key, "error", err)
	}
}
