package hub

import (
	"sync"

	"github.com/yanun0323/logs"

	"signaltrack/internal/model"
	"signaltrack/internal/obs"
	"signaltrack/pkg/exception"
)

// Snapshotter provides the current price of every known instrument.
type Snapshotter interface {
	Snapshot() []model.PriceSample
}

// Hub fans price samples out to registered subscribers.
// Publish never blocks on a slow subscriber.
type Hub struct {
	mu      sync.Mutex
	cache   Snapshotter
	subs    map[Handle]*Subscriber
	metrics *obs.Metrics
}

func New(cache Snapshotter, metrics *obs.Metrics) *Hub {
	return &Hub{
		cache:   cache,
		subs:    make(map[Handle]*Subscriber),
		metrics: metrics,
	}
}

// Register adds sub and enqueues the latest cached sample of each instrument
// it accepts. Publish cannot interleave, so the subscriber never sees an
// older sample after a newer one nor the same sample twice.
func (h *Hub) Register(sub *Subscriber) Handle {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.subs[sub.id] = sub
	if h.cache != nil {
		for _, sample := range h.cache.Snapshot() {
			if !h.deliverLocked(sub, sample) {
				break
			}
		}
	}
	h.metrics.SetHubSubscribers(len(h.subs))
	return sub.id
}

// Unregister removes the subscriber and closes its queue. Unknown handles are ignored.
func (h *Hub) Unregister(handle Handle) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(handle, exception.ErrSubscriberClosed)
}

// Publish delivers sample to every subscriber that accepts its instrument.
// A subscriber that cannot take the sample is removed; the others are unaffected.
func (h *Hub) Publish(sample model.PriceSample) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, sub := range h.subs {
		h.deliverLocked(sub, sample)
	}
}

// Len returns the number of registered subscribers.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close unregisters every subscriber.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for handle := range h.subs {
		h.removeLocked(handle, exception.ErrSubscriberClosed)
	}
}

func (h *Hub) deliverLocked(sub *Subscriber, sample model.PriceSample) bool {
	if !sub.accepts(sample.Instrument) {
		return true
	}
	if sample.Seq != 0 && sample.Seq <= sub.lastSeq[sample.Instrument] {
		return true
	}

	switch sub.queue.push(sample) {
	case pushOK:
	case pushDroppedOldest:
		h.metrics.IncHubDrop("drop_oldest")
	case pushFull:
		logs.Warnf("hub: subscriber %s queue full, disconnecting", sub.id)
		h.metrics.IncHubDrop("disconnect")
		h.removeLocked(sub.id, exception.ErrSubscriberOverflow)
		return false
	case pushClosed:
		h.removeLocked(sub.id, exception.ErrSubscriberClosed)
		return false
	}
	sub.lastSeq[sample.Instrument] = sample.Seq
	return true
}

func (h *Hub) removeLocked(handle Handle, reason error) {
	sub, ok := h.subs[handle]
	if !ok {
		return
	}
	delete(h.subs, handle)
	sub.queue.close(reason)
	h.metrics.SetHubSubscribers(len(h.subs))
}
