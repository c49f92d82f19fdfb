package api

import (
	crand "crypto/rand"
	"encoding/hex"
	"sync"

	"github.com/banshee-data/dmxcam/internal/controller"
)

// DefaultHistory is how many frame events the hub keeps for charts.
const DefaultHistory = 512

// FrameHub fans controller frame events out to tail subscribers and keeps a
// ring of recent events. Publish never blocks the control loop: a subscriber
// that is not keeping up misses events.
type FrameHub struct {
	mu          sync.Mutex
	subscribers map[string]chan controller.FrameEvent
	ring        []controller.FrameEvent
	next        int
	full        bool
	missed      uint64
}

// NewFrameHub keeps the last history events. history <= 0 uses DefaultHistory.
func NewFrameHub(history int) *FrameHub {
	if history <= 0 {
		history = DefaultHistory
	}
	return &FrameHub{
		subscribers: make(map[string]chan controller.FrameEvent),
		ring:        make([]controller.FrameEvent, history),
	}
}

func randomID() string {
	b := make([]byte, 8)
	_, _ = crand.Read(b)
	return hex.EncodeToString(b)
}

// Subscribe returns an ID for Unsubscribe and a buffered event channel.
func (h *FrameHub) Subscribe() (string, <-chan controller.FrameEvent) {
	id := randomID()
	ch := make(chan controller.FrameEvent, 16)
	h.mu.Lock()
	h.subscribers[id] = ch
	h.mu.Unlock()
	return id, ch
}

// Unsubscribe closes and forgets the subscriber's channel.
func (h *FrameHub) Unsubscribe(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ch, ok := h.subscribers[id]; ok {
		close(ch)
		delete(h.subscribers, id)
	}
}

// Publish records ev and offers it to every subscriber. It is shaped to be
// used directly as controller.Options.OnFrame.
func (h *FrameHub) Publish(ev controller.FrameEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ring[h.next] = ev
	h.next = (h.next + 1) % len(h.ring)
	if h.next == 0 {
		h.full = true
	}
	for _, ch := range h.subscribers {
		select {
		case ch <- ev:
		default:
			h.missed++
		}
	}
}

// Recent returns the retained events, oldest first.
func (h *FrameHub) Recent() []controller.FrameEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.full {
		return append([]controller.FrameEvent(nil), h.ring[:h.next]...)
	}
	out := make([]controller.FrameEvent, 0, len(h.ring))
	out = append(out, h.ring[h.next:]...)
	return append(out, h.ring[:h.next]...)
}

// Missed counts events dropped for slow subscribers.
func (h *FrameHub) Missed() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.missed
}

// Close closes every subscriber channel.
func (h *FrameHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, ch := range h.subscribers {
		close(ch)
		delete(h.subscribers, id)
	}
}
