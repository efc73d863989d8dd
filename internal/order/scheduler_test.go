package order

import (
	"context"
	"slices"
	"testing"
	"time"

	"github.com/matheus3301/chatdeck/internal/bus"
	"github.com/matheus3301/chatdeck/internal/store"
)

func seededStore(t *testing.T, b *bus.Bus) *store.Store {
	t.Helper()
	s := store.New(b, nil)
	s.ReplaceAll([]*store.Chat{
		{ID: "c1", Messages: []*store.Message{{ID: "m1", Timestamp: 1000}}},
		{ID: "c2", Messages: []*store.Message{{ID: "m2", Timestamp: 2000}}},
	})
	return s
}

func waitForOrder(t *testing.T, s *store.Store, want []string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if slices.Equal(s.Order(), want) {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("order = %v, want %v", s.Order(), want)
}

func TestSchedulerAppliesOrderOnKick(t *testing.T) {
	b := bus.New()
	s := seededStore(t, b)
	sched := NewScheduler(s, b, nil, time.Hour)
	sched.Start(context.Background())
	defer sched.Stop()

	sched.Kick()
	waitForOrder(t, s, []string{"c2", "c1"})
}

func TestSchedulerReactsToStoreMutations(t *testing.T) {
	b := bus.New()
	s := seededStore(t, b)
	sched := NewScheduler(s, b, nil, time.Hour)
	sched.Start(context.Background())
	defer sched.Stop()

	sched.Kick()
	waitForOrder(t, s, []string{"c2", "c1"})

	// A newer message in c1 must flip the order without an explicit kick.
	s.AppendMessage("c1", &store.Message{ID: "m3", Timestamp: 3000})
	waitForOrder(t, s, []string{"c1", "c2"})
}

func TestNoReorderWhileInteracting(t *testing.T) {
	b := bus.New()
	s := seededStore(t, b)
	sched := NewScheduler(s, b, nil, time.Hour)
	sched.Start(context.Background())
	defer sched.Stop()

	sched.Kick()
	waitForOrder(t, s, []string{"c2", "c1"})

	sched.SetInteracting(true)
	s.AppendMessage("c1", &store.Message{ID: "m3", Timestamp: 3000})
	sched.Kick()
	time.Sleep(100 * time.Millisecond)

	if got := s.Order(); !slices.Equal(got, []string{"c2", "c1"}) {
		t.Fatalf("order changed during interaction: %v", got)
	}

	// Releasing the flag applies the deferred reorder.
	sched.SetInteracting(false)
	waitForOrder(t, s, []string{"c1", "c2"})
}

func TestReorderPublishesBusEvent(t *testing.T) {
	b := bus.New()
	s := seededStore(t, b)
	sched := NewScheduler(s, b, nil, time.Hour)

	ch, unsub := b.Subscribe(bus.KindChatsReordered, 10)
	defer unsub()

	sched.Start(context.Background())
	defer sched.Stop()
	sched.Kick()

	select {
	case evt := <-ch:
		ids, ok := evt.Payload.([]string)
		if !ok {
			t.Fatalf("payload type = %T, want []string", evt.Payload)
		}
		if !slices.Equal(ids, []string{"c2", "c1"}) {
			t.Errorf("ids = %v, want [c2 c1]", ids)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for reorder event")
	}
}
