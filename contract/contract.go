//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"
	"reflect"
	"time"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

type WorkerName string

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// Used for logging during supervision lifecycle events.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// Cache is the ephemeral key-value layer with per-key expiry.
// It never returns errors: failures are logged and reported as false.
type Cache interface {
	Set(key, value string, ttl time.Duration) bool
	Get(key string) (string, bool)
	Delete(key string) bool
}

// Subscription is the handle returned by Subscribe.
type Subscription interface {
	Unsubscribe()
}

type Publisher interface {
	Publish(channel, message string) bool
}

// Broker is the in-process publish/subscribe channel registry.
type Broker interface {
	Publisher
	Subscribe(channel string, fn func(message string)) Subscription
}

// LocalStorage is the client-durable string store holding the session
// token and the cached message lists.
type LocalStorage interface {
	GetItem(key string) (string, bool)
	SetItem(key, value string) error
	RemoveItem(key string) error
}
