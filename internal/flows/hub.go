package flows

import "sync"

const subscriberBuffer = 8

// Hub fans flow views out to live subscribers.
type Hub struct {
	mu   sync.Mutex
	subs map[string]map[chan View]struct{}
}

// NewHub constructs an empty Hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[chan View]struct{})}
}

// Subscribe registers for views of flow id. The returned cancel func is safe
// to call more than once. The channel is closed on cancel or Close(id).
func (h *Hub) Subscribe(id string) (<-chan View, func()) {
	ch := make(chan View, subscriberBuffer)
	h.mu.Lock()
	if h.subs[id] == nil {
		h.subs[id] = make(map[chan View]struct{})
	}
	h.subs[id][ch] = struct{}{}
	h.mu.Unlock()

	return ch, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if set, ok := h.subs[id]; ok {
			if _, ok := set[ch]; ok {
				delete(set, ch)
				close(ch)
				if len(set) == 0 {
					delete(h.subs, id)
				}
			}
		}
	}
}

// Publish sends v to every subscriber of v.ID. Slow subscribers lose their
// oldest pending view rather than block the publisher.
func (h *Hub) Publish(v View) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs[v.ID] {
		select {
		case ch <- v:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- v:
			default:
			}
		}
	}
}

// Close disconnects all subscribers of flow id.
func (h *Hub) Close(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs[id] {
		close(ch)
	}
	delete(h.subs, id)
}

// Subscribers reports how many subscribers flow id has.
func (h *Hub) Subscribers(id string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[id])
}
