package storage

import (
	"errors"
	"sync"

	"github.com/dgraph-io/badger/v4"
)

// Fixed local-storage keys.
const (
	SessionKey       = "portal.session"
	MessagesKey      = "portal.messages"
	ConversationsKey = "portal.conversations"
)

const localPrefix = "local:"

// LocalStore keeps client-durable strings in BadgerDB, the way a browser
// keeps them in local storage.
type LocalStore struct {
	db *badger.DB
}

func NewLocalStore(db *badger.DB) *LocalStore {
	return &LocalStore{db: db}
}

func (l *LocalStore) GetItem(key string) (string, bool) {
	var value string
	err := l.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(localPrefix + key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			value = string(val)
			return nil
		})
	})
	if err != nil {
		return "", false
	}
	return value, true
}

func (l *LocalStore) SetItem(key, value string) error {
	return l.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(localPrefix+key), []byte(value))
	})
}

func (l *LocalStore) RemoveItem(key string) error {
	err := l.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(localPrefix + key))
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil
	}
	return err
}

// MemoryStore is the non-persistent LocalStorage used by tests and
// short-lived clients.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string]string)}
}

func (m *MemoryStore) GetItem(key string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	value, ok := m.items[key]
	return value, ok
}

func (m *MemoryStore) SetItem(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[key] = value
	return nil
}

func (m *MemoryStore) RemoveItem(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, key)
	return nil
}
