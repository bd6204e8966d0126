// Package bus is the publish/subscribe fan-out for push events. Publish
// never blocks: a subscriber whose sink is full has the event dropped for
// it alone, with a per-subscriber counter incremented — the same shape as
// the teacher's own "write to every client subscribed to a region, log and
// move on if one write fails" broadcast loop, generalized into a reusable
// non-blocking channel send instead of a blocking websocket write.
package bus

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/dreadnought-systems/airwatch/internal/metrics"
	"github.com/dreadnought-systems/airwatch/internal/model"
)

// DefaultBufferSize is the default per-subscriber channel depth.
const DefaultBufferSize = 64

// DefaultGraceWindow is how long a subscriber may remain saturated (sink
// full on every publish) before it is disconnected.
const DefaultGraceWindow = 30 * time.Second

// Subscription is the handle returned by Subscribe. Events is the sink the
// caller should range over; the cancel func Subscribe returns alongside it
// releases the subscription and closes Events.
type Subscription struct {
	ID     uuid.UUID
	Events <-chan model.PushEvent
}

// subscriber's bookkeeping fields are atomics, not plain ints/bools:
// Publish only takes b.mu.RLock() (so it can run concurrently across the
// many goroutines one per in-flight ingest request), and multiple
// concurrent Publish calls can race on the same subscriber's fields.
type subscriber struct {
	id          uuid.UUID
	ch          chan model.PushEvent
	dropCount   atomic.Int64
	isSaturated atomic.Bool
	saturatedAt atomic.Int64 // UnixNano; valid only while isSaturated is true
}

// Bus owns the subscriber set. Safe for concurrent use: publish takes a
// read lock over the set and a non-blocking send per subscriber; Subscribe
// and Unsubscribe take a write lock only to mutate the set itself.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[uuid.UUID]*subscriber
	bufferSize  int
	grace       time.Duration
}

// New constructs a Bus with the given per-subscriber buffer size and
// saturation grace window. Zero values fall back to the package defaults.
func New(bufferSize int, grace time.Duration) *Bus {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	if grace <= 0 {
		grace = DefaultGraceWindow
	}
	return &Bus{
		subscribers: make(map[uuid.UUID]*subscriber),
		bufferSize:  bufferSize,
		grace:       grace,
	}
}

// Subscribe registers a new subscriber and returns its cancellable handle.
func (b *Bus) Subscribe() (*Subscription, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := uuid.New()
	sub := &subscriber{id: id, ch: make(chan model.PushEvent, b.bufferSize)}
	b.subscribers[id] = sub
	metrics.SubscribersConnected.Set(float64(len(b.subscribers)))

	cancel := func() { b.unsubscribe(id) }
	return &Subscription{ID: id, Events: sub.ch}, cancel
}

func (b *Bus) unsubscribe(id uuid.UUID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if sub, ok := b.subscribers[id]; ok {
		close(sub.ch)
		delete(b.subscribers, id)
		metrics.SubscribersConnected.Set(float64(len(b.subscribers)))
	}
}

// Publish delivers ev to every current subscriber without blocking. Events
// delivered to a single subscriber preserve publication order (each
// subscriber has its own ordered channel); no cross-subscriber ordering is
// implied or needed.
func (b *Bus) Publish(ev model.PushEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	now := time.Now()
	for _, sub := range b.subscribers {
		select {
		case sub.ch <- ev:
			sub.isSaturated.Store(false)
		default:
			sub.dropCount.Add(1)
			metrics.SubscriberDrops.Inc()
			if !sub.isSaturated.Swap(true) {
				sub.saturatedAt.Store(now.UnixNano())
			}
		}
	}
}

// DropCount returns how many events have been dropped for a given
// subscriber, for metrics/diagnostics.
func (b *Bus) DropCount(id uuid.UUID) int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if sub, ok := b.subscribers[id]; ok {
		return sub.dropCount.Load()
	}
	return 0
}

// SweepSaturated disconnects every subscriber that has remained saturated
// (sink full on every publish since) longer than the configured grace
// window, returning the ids removed so callers can close their transport
// connections too.
func (b *Bus) SweepSaturated(now time.Time) []uuid.UUID {
	b.mu.Lock()
	defer b.mu.Unlock()

	var removed []uuid.UUID
	for id, sub := range b.subscribers {
		if sub.isSaturated.Load() && now.Sub(time.Unix(0, sub.saturatedAt.Load())) > b.grace {
			close(sub.ch)
			delete(b.subscribers, id)
			removed = append(removed, id)
		}
	}
	if len(removed) > 0 {
		metrics.SubscribersConnected.Set(float64(len(b.subscribers)))
	}
	return removed
}

// SubscriberCount reports the current number of live subscribers.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
