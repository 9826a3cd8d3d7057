// Package events is the in-process broadcast bus connecting the pollers and
// the job pipeline to websocket clients.
package events

import "sync"

const (
	// Per-subscriber buffer. A subscriber that falls this far behind starts
	// losing events rather than stalling publishers.
	subscriberBuffer = 32

	maxSubscribers = 200
)

// Kind distinguishes event types on the wire.
type Kind string

const (
	KindCatalogSnapshot Kind = "catalog_snapshot"
	KindJobCreated      Kind = "job_created"
	KindJobUpdated      Kind = "job_updated"
	KindJobError        Kind = "job_error"
	KindCaptureComplete Kind = "capture_complete"
	KindClipComplete    Kind = "clip_complete"
	KindPreviewComplete Kind = "preview_complete"
	KindUploadComplete  Kind = "upload_complete"
)

// Event is one broadcast message. Payload must be JSON-marshalable.
type Event struct {
	Kind    Kind `json:"type"`
	Payload any  `json:"payload"`
}

// Bus broadcasts events to all subscribers.
type Bus struct {
	mu   sync.Mutex
	subs map[chan Event]struct{}
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[chan Event]struct{})}
}

// Subscribe returns a channel that receives every published event, and an
// unsubscribe function. When the subscriber cap is hit the returned channel
// is already closed.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)

	b.mu.Lock()
	if len(b.subs) >= maxSubscribers {
		b.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	unsubscribe := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if _, ok := b.subs[ch]; ok {
			delete(b.subs, ch)
			close(ch)
		}
	}

	return ch, unsubscribe
}

// Publish delivers evt to every subscriber without blocking; slow
// subscribers drop events. The lock is held across the sends so that an
// unsubscribe cannot close a channel mid-broadcast; the sends never block,
// so holding it is cheap.
func (b *Bus) Publish(evt Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs {
		select {
		case ch <- evt:
		default:
		}
	}
}
