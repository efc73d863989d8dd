package bus

import (
	"testing"
	"time"
)

func TestPublishSubscribe(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("stream.", 10)
	defer unsub()

	b.Publish(Event{Kind: KindStreamStatusChanged, Timestamp: time.Now(), Payload: "test"})

	select {
	case evt := <-ch:
		if evt.Kind != KindStreamStatusChanged {
			t.Errorf("got kind %q, want %q", evt.Kind, KindStreamStatusChanged)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestNamespaceFiltering(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("sync.", 10)
	defer unsub()

	b.Publish(Event{Kind: KindStreamStatusChanged})
	b.Publish(Event{Kind: KindSyncRequested})

	select {
	case evt := <-ch:
		if evt.Kind != KindSyncRequested {
			t.Errorf("got kind %q, want %q", evt.Kind, KindSyncRequested)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}

	// Ensure stream event was not delivered.
	select {
	case evt := <-ch:
		t.Errorf("unexpected event: %v", evt)
	case <-time.After(50 * time.Millisecond):
		// Expected: no more events.
	}
}

func TestUnsubscribe(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("store.", 10)
	unsub()

	b.Publish(Event{Kind: KindMessageUpserted})

	select {
	case evt := <-ch:
		t.Errorf("received event after unsubscribe: %v", evt)
	case <-time.After(50 * time.Millisecond):
		// Expected.
	}
}

func TestDropOnFullBuffer(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("test.", 1)
	defer unsub()

	// Fill buffer.
	b.Publish(Event{Kind: "test.one"})
	// This should be dropped (non-blocking).
	b.Publish(Event{Kind: "test.two"})

	evt := <-ch
	if evt.Kind != "test.one" {
		t.Errorf("got %q, want test.one", evt.Kind)
	}
}

func TestEmitStampsTimestamp(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("store.", 10)
	defer unsub()

	before := time.Now()
	b.Emit(KindMessageUpserted, MessageRef{ChatID: "c1", MessageID: "m1"})

	evt := <-ch
	if evt.Timestamp.Before(before) {
		t.Errorf("timestamp %v is before publish time %v", evt.Timestamp, before)
	}
	ref, ok := evt.Payload.(MessageRef)
	if !ok {
		t.Fatalf("payload type = %T, want MessageRef", evt.Payload)
	}
	if ref.ChatID != "c1" || ref.MessageID != "m1" {
		t.Errorf("ref = %+v", ref)
	}
}
