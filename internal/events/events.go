package events

import (
	"sync"

	"masterd/internal/logger"
	"masterd/internal/models"
)

// Publisher is the abstract event channel the core publishes to. Delivery
// is best-effort and at-most-once; nothing in the pipeline gates on it.
type Publisher interface {
	Publish(event models.Event)
}

// Bus is a bounded, non-blocking Publisher backed by a channel. When the
// buffer is full the event is dropped rather than stalling a producer.
type Bus struct {
	ch      chan models.Event
	logger  logger.Logger
	mutex   sync.Mutex
	closed  bool
	dropped int64
}

// NewBus creates a bus with the given buffer size.
func NewBus(buffer int, log logger.Logger) *Bus {
	if buffer <= 0 {
		buffer = 64
	}
	return &Bus{
		ch:     make(chan models.Event, buffer),
		logger: log,
	}
}

// Publish enqueues the event if there is room, otherwise drops it.
func (b *Bus) Publish(event models.Event) {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	if b.closed {
		return
	}
	select {
	case b.ch <- event:
	default:
		b.dropped++
		b.logger.Debugf("Event bus full, dropped %s event for session %s", event.Type, event.SessionID)
	}
}

// Events exposes the receive side for an external transport to drain.
func (b *Bus) Events() <-chan models.Event {
	return b.ch
}

// Dropped returns how many events were discarded due to backpressure.
func (b *Bus) Dropped() int64 {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return b.dropped
}

// Close stops accepting events and closes the channel.
func (b *Bus) Close() {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	if !b.closed {
		b.closed = true
		close(b.ch)
	}
}

// LogSink drains a bus and writes events to the log. Useful as the default
// transport when no external client is attached.
func LogSink(b *Bus, log logger.Logger) {
	for ev := range b.Events() {
		log.Debugf("Event %s session=%s payload=%v", ev.Type, ev.SessionID, ev.Payload)
	}
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(models.Event) {}
