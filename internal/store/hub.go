package store

import (
	"context"
	"strings"
	"sync"
)

type subscriber struct {
	segs []string
	ch   chan Event
}

// hub fans committed document changes out to path subscribers
type hub struct {
	mu   sync.Mutex
	subs map[*subscriber]struct{}
}

func newHub() *hub {
	return &hub{subs: make(map[*subscriber]struct{})}
}

func (h *hub) subscribe(ctx context.Context, segs []string) <-chan Event {
	sub := &subscriber{segs: segs, ch: make(chan Event, 1)}

	h.mu.Lock()
	h.subs[sub] = struct{}{}
	h.mu.Unlock()

	go func() {
		<-ctx.Done()
		h.remove(sub)
	}()
	return sub.ch
}

func (h *hub) remove(sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[sub]; ok {
		delete(h.subs, sub)
		close(sub.ch)
	}
}

func (h *hub) publish(keys []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subs {
		for _, k := range keys {
			if !overlaps(sub.segs, strings.Split(k, "/")) {
				continue
			}
			select {
			case sub.ch <- Event{Path: k}:
			default:
				// an event is already pending for this subscriber
			}
			break
		}
	}
}

func (h *hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subs {
		delete(h.subs, sub)
		close(sub.ch)
	}
}
