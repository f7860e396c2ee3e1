// Package sink buffers pub/sub messages between the registry callbacks and
// a long-lived connection (gRPC stream, websocket) that drains them.
package sink

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Event is one message received on a subscribed channel.
type Event struct {
	Channel string `json:"channel"`
	Payload string `json:"payload"`
}

// StreamSink never blocks the publisher longer than its delivery timeout:
// a slow reader loses messages, the room keeps going.
type StreamSink struct {
	log             *slog.Logger
	events          chan Event
	done            chan struct{}
	closeOnce       sync.Once
	deliveryTimeout time.Duration
	dropped         atomic.Uint64
}

func NewStreamSink(log *slog.Logger, bufferSize int, deliveryTimeout time.Duration) *StreamSink {
	return &StreamSink{
		log:             log,
		events:          make(chan Event, bufferSize),
		done:            make(chan struct{}),
		deliveryTimeout: deliveryTimeout,
	}
}

// Consume returns the callback to register on channel.
func (s *StreamSink) Consume(channel string) func(message string) {
	return func(message string) {
		s.push(Event{Channel: channel, Payload: message})
	}
}

func (s *StreamSink) push(evt Event) {
	select {
	case <-s.done:
		return
	case s.events <- evt:
		return
	default:
	}
	if s.deliveryTimeout <= 0 {
		s.drop(evt)
		return
	}
	timer := time.NewTimer(s.deliveryTimeout)
	defer timer.Stop()
	select {
	case s.events <- evt:
	case <-s.done:
	case <-timer.C:
		s.drop(evt)
	}
}

func (s *StreamSink) drop(evt Event) {
	s.dropped.Add(1)
	s.log.Warn("Backpressure, event dropped", "channel", evt.Channel, "dropped", s.dropped.Load())
}

// Events is drained by the connection until Close.
func (s *StreamSink) Events() <-chan Event { return s.events }

// Done is closed by Close.
func (s *StreamSink) Done() <-chan struct{} { return s.done }

func (s *StreamSink) Dropped() uint64 { return s.dropped.Load() }

// Close stops accepting events, it is safe to call more than once.
func (s *StreamSink) Close() {
	s.closeOnce.Do(func() { close(s.done) })
}
