package event

import (
	"sync"
	"testing"
)

func TestBus_Publish(t *testing.T) {
	bus := NewBus()

	var received Event
	bus.Subscribe(TypeTxCommitted, func(e Event) {
		received = e
	})

	bus.Publish(NewTxCommittedEvent("tx-1", 2))

	if received == nil {
		t.Fatal("Handler should have received the event")
	}
	committed, ok := received.(TxCommittedEvent)
	if !ok {
		t.Fatalf("Expected TxCommittedEvent, got %T", received)
	}
	if committed.TxID != "tx-1" || committed.Files != 2 {
		t.Errorf("Unexpected payload: %+v", committed)
	}
}

func TestBus_PublishNoMatchingHandlers(t *testing.T) {
	bus := NewBus()

	bus.Subscribe(TypeTxRolledBack, func(e Event) {
		t.Error("Handler should not be called for non-matching event type")
	})

	bus.Publish(NewTxCommittedEvent("tx-1", 0))
}

func TestBus_SpecificBeforeWildcard(t *testing.T) {
	bus := NewBus()

	var order []string
	bus.SubscribeAll(func(e Event) {
		order = append(order, "wildcard")
	})
	bus.Subscribe(TypeTxBegan, func(e Event) {
		order = append(order, "specific")
	})

	bus.Publish(NewTxBeganEvent("tx-1", "snap", false))

	if len(order) != 2 || order[0] != "specific" || order[1] != "wildcard" {
		t.Errorf("Unexpected dispatch order: %v", order)
	}
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := NewBus()

	calls := make(map[string]int)
	id1 := bus.Subscribe("test.event", func(e Event) { calls["first"]++ })
	bus.Subscribe("test.event", func(e Event) { calls["second"]++ })

	if !bus.Unsubscribe(id1) {
		t.Fatal("Unsubscribe should return true when subscription exists")
	}
	if bus.Unsubscribe(id1) {
		t.Error("Unsubscribe should return false the second time")
	}

	bus.Publish(newBaseEvent("test.event"))

	if calls["first"] != 0 {
		t.Error("first handler should not be called after unsubscribing")
	}
	if calls["second"] != 1 {
		t.Error("second handler should still be called")
	}
	if bus.SubscriptionCount() != 1 {
		t.Errorf("Expected 1 subscription, got %d", bus.SubscriptionCount())
	}
}

func TestBus_HandlerPanicRecovery(t *testing.T) {
	bus := NewBus()

	calls := 0
	bus.Subscribe("test.event", func(e Event) {
		calls++
		panic("handler panic")
	})
	bus.Subscribe("test.event", func(e Event) {
		calls++
	})

	bus.Publish(newBaseEvent("test.event"))

	if calls != 2 {
		t.Errorf("Expected both handlers to be called despite panic, got %d calls", calls)
	}
}

func TestBus_ConcurrentRecord(t *testing.T) {
	bus := NewBus()

	var mu sync.Mutex
	calls := 0
	bus.SubscribeAll(func(e Event) {
		mu.Lock()
		calls++
		mu.Unlock()
	})

	var rec Recorder = bus
	var wg sync.WaitGroup
	for range 100 {
		wg.Go(func() {
			rec.Record(NewFileWrittenEvent("tx", "f", 1))
		})
	}
	wg.Wait()

	if calls != 100 {
		t.Errorf("Expected 100 calls, got %d", calls)
	}
}

func TestBus_UniqueIDs(t *testing.T) {
	bus := NewBus()

	ids := make(map[string]bool)
	for range 100 {
		id := bus.Subscribe("test.event", func(e Event) {})
		if ids[id] {
			t.Errorf("Duplicate subscription ID: %s", id)
		}
		ids[id] = true
	}
}
