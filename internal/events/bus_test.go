package events

import (
	"testing"

	"github.com/snipekit/engine/internal/store"
)

func TestBusFansOutToAllSubscribers(t *testing.T) {
	b := NewBus()
	a := b.Subscribe()
	c := b.Subscribe()

	b.Publish(store.Event{Kind: store.EventRuleMatched, Message: "m"})

	for _, ch := range []<-chan store.Event{a, c} {
		select {
		case e := <-ch:
			if e.Kind != store.EventRuleMatched {
				t.Errorf("kind = %q", e.Kind)
			}
			if e.ID == "" || e.Time.IsZero() {
				t.Error("event not stamped with id and time")
			}
		default:
			t.Fatal("subscriber did not receive the event")
		}
	}
}

func TestBusDropsWhenSubscriberFull(t *testing.T) {
	b := NewBus()
	ch := b.Subscribe()

	// Fill well past the subscriber buffer; Publish must never block.
	for i := 0; i < 600; i++ {
		b.Publish(store.Event{Kind: store.EventPollCycle})
	}

	received := 0
	for {
		select {
		case <-ch:
			received++
			continue
		default:
		}
		break
	}
	if received == 0 || received >= 600 {
		t.Errorf("received = %d, want buffered subset", received)
	}
}
