package runtime

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"client-portal/contract"
)

type subscriber struct {
	id uint64
	fn func(message string)
}

// Registry is the in-process publish/subscribe channel registry.
//
// Delivery is synchronous, best-effort and in-memory only: a subscriber
// registered after a Publish never sees that message. Subscribers of a
// channel are invoked in registration order.
//
// Registry is safe for concurrent use by multiple goroutines. The subscriber
// set of a channel is copied under the read lock and callbacks run outside
// of it, so a callback may publish, subscribe or unsubscribe freely.
type Registry struct {
	mu       sync.RWMutex
	log      *slog.Logger
	nextID   uint64
	channels map[string][]subscriber
}

func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{
		log:      log,
		channels: make(map[string][]subscriber),
	}
}

// Publish delivers message to every callback currently subscribed to channel.
// A panicking callback is recovered and logged, the remaining subscribers
// still receive the message and the publisher never sees the failure.
// It returns false only for an empty channel name.
func (r *Registry) Publish(channel, message string) bool {
	if channel == "" {
		r.log.Warn("Publish rejected, empty channel name")
		return false
	}

	r.mu.RLock()
	subscribers := make([]subscriber, len(r.channels[channel]))
	copy(subscribers, r.channels[channel])
	r.mu.RUnlock()

	for _, s := range subscribers {
		r.deliver(channel, s, message)
	}
	return true
}

func (r *Registry) deliver(channel string, s subscriber, message string) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("Subscriber panicked, skipping",
				"channel", channel, "subscriber", s.id, "panic", fmt.Sprint(rec))
		}
	}()
	s.fn(message)
}

// Subscribe registers fn on channel. The returned handle removes exactly
// this registration, calling it more than once is harmless.
func (r *Registry) Subscribe(channel string, fn func(message string)) contract.Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	id := r.nextID
	r.channels[channel] = append(r.channels[channel], subscriber{id: id, fn: fn})

	return &subscription{cancel: func() { r.unsubscribe(channel, id) }}
}

// unsubscribe removes one registration and drops the channel entry once
// its last subscriber leaves, so empty channels do not accumulate.
func (r *Registry) unsubscribe(channel string, id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	subscribers, ok := r.channels[channel]
	if !ok {
		return
	}
	kept := make([]subscriber, 0, len(subscribers))
	for _, s := range subscribers {
		if s.id != id {
			kept = append(kept, s)
		}
	}
	if len(kept) == 0 {
		delete(r.channels, channel)
		return
	}
	r.channels[channel] = kept
}

func (r *Registry) SubscriberCount(channel string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.channels[channel])
}

// Channels lists the channels having at least one subscriber, sorted.
func (r *Registry) Channels() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.channels))
	for name := range r.channels {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type subscription struct {
	once   sync.Once
	cancel func()
}

func (s *subscription) Unsubscribe() {
	s.once.Do(s.cancel)
}
