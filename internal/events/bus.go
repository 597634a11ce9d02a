// Package events fans pipeline events out to in-process observers and to
// the websocket hub serving external log viewers.
package events

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/snipekit/engine/internal/store"
)

var nowFn = time.Now

// Bus fans events out to subscribers. Publishing never blocks the pipeline:
// a subscriber that cannot keep up drops events.
type Bus struct {
	mu   sync.Mutex
	subs []chan store.Event
	next int
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe returns a buffered channel receiving every event published after
// this call.
func (b *Bus) Subscribe() <-chan store.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan store.Event, 256)
	b.subs = append(b.subs, ch)
	return ch
}

// Publish stamps the event with an id and timestamp if unset and delivers it
// to every subscriber.
func (b *Bus) Publish(e store.Event) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Time.IsZero() {
		e.Time = nowFn()
	}

	b.mu.Lock()
	subs := b.subs
	b.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- e:
		default:
			slog.Warn("event_dropped", "kind", e.Kind)
		}
	}
}
