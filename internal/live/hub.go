// Package live fans out change notifications for the comments under one
// insight, so an open viewing session can re-fetch the approved list whenever
// a comment is added, approved, unapproved, or deleted.
package live

import "sync"

// Hub tracks one notification channel per active subscription. Channels carry
// no payload: a tick means "the comment set changed, re-fetch".
type Hub struct {
	mu   sync.Mutex
	subs map[string]map[chan struct{}]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[chan struct{}]struct{})}
}

// Subscribe registers interest in one insight's comments. The returned cancel
// func must be called when the viewer leaves the page; a forgotten cancel
// leaks one channel per navigation.
func (h *Hub) Subscribe(insightID string) (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)

	h.mu.Lock()
	if h.subs[insightID] == nil {
		h.subs[insightID] = make(map[chan struct{}]struct{})
	}
	h.subs[insightID][ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if set, ok := h.subs[insightID]; ok {
			delete(set, ch)
			if len(set) == 0 {
				delete(h.subs, insightID)
			}
		}
		h.mu.Unlock()
	}
	return ch, cancel
}

// Notify wakes every subscriber of the given insight. A subscriber that
// already has a pending tick is not queued twice: one tick triggers one full
// re-fetch, which observes every change made up to that point.
func (h *Hub) Notify(insightID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs[insightID] {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// SubscriberCount reports how many live subscriptions are open for one
// insight. Used by readiness reporting and tests.
func (h *Hub) SubscriberCount(insightID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[insightID])
}
