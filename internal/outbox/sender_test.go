package outbox

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/matheus3301/chatdeck/internal/bus"
	"github.com/matheus3301/chatdeck/internal/dedup"
	"github.com/matheus3301/chatdeck/internal/store"
)

type fakeAPI struct {
	failText bool
	echo     *store.Message
}

func (f *fakeAPI) SendText(_ context.Context, chatID, content string) (*store.Message, error) {
	if f.failText {
		return nil, errors.New("backend rejected send")
	}
	if f.echo != nil {
		return f.echo, nil
	}
	return &store.Message{ID: "srv-1", ChatID: chatID, Content: content, Timestamp: time.Now().UnixMilli(), FromMe: true}, nil
}

func (f *fakeAPI) SendMedia(_ context.Context, chatID string, image io.Reader, filename, caption string) (*store.Message, error) {
	if _, err := io.ReadAll(image); err != nil {
		return nil, err
	}
	return &store.Message{ID: "srv-media-1", ChatID: chatID, Content: caption, MediaPath: filename, IsMedia: true, FromMe: true}, nil
}

func newFixture(t *testing.T, api API) (*Sender, *store.Store, *dedup.Ledger, *bus.Bus) {
	t.Helper()
	b := bus.New()
	st := store.New(b, nil)
	st.ReplaceAll([]*store.Chat{{ID: "c1", Name: "Alice", Messages: []*store.Message{}}})
	ledger := dedup.New(10 * time.Second)
	return NewSender(api, st, ledger, b, nil, 0), st, ledger, b
}

func findMessage(c *store.Chat, id string) *store.Message {
	for _, m := range c.Messages {
		if m.ID == id {
			return m
		}
	}
	return nil
}

func TestEnqueueInsertsOptimisticMessage(t *testing.T) {
	s, st, _, _ := newFixture(t, &fakeAPI{})
	// Not started: the optimistic insert must not depend on the drain loop.

	id := s.Enqueue("c1", "hello")

	m := findMessage(st.Chat("c1"), id)
	if m == nil {
		t.Fatal("optimistic message not inserted")
	}
	if m.Status != store.StatusSending || !m.FromMe || m.Content != "hello" {
		t.Errorf("optimistic message = %+v", m)
	}
}

func TestSendSuccessConfirmsAndRecordsEcho(t *testing.T) {
	s, st, ledger, b := newFixture(t, &fakeAPI{})
	ch, unsub := b.Subscribe(bus.KindSendAck, 1)
	defer unsub()

	s.Start(context.Background())
	defer s.Stop()

	clientID := s.Enqueue("c1", "hello")

	select {
	case evt := <-ch:
		payload := evt.Payload.(map[string]string)
		if payload["client_msg_id"] != clientID || payload["server_msg_id"] != "srv-1" {
			t.Errorf("ack payload = %v", payload)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no send ack")
	}

	m := findMessage(st.Chat("c1"), "srv-1")
	if m == nil {
		t.Fatal("echo id not applied to optimistic message")
	}
	if m.Status != store.StatusSent {
		t.Errorf("status = %q, want sent", m.Status)
	}
	if findMessage(st.Chat("c1"), clientID) != nil {
		t.Error("optimistic id still present after confirm")
	}
	// Stream redelivery of the echo must now be suppressible.
	if !ledger.Seen("c1", "srv-1") {
		t.Error("echo id not recorded in dedup ledger")
	}
}

func TestSendFailureMarksMessageFailed(t *testing.T) {
	s, st, _, b := newFixture(t, &fakeAPI{failText: true})
	ch, unsub := b.Subscribe(bus.KindSendFailed, 1)
	defer unsub()

	s.Start(context.Background())
	defer s.Stop()

	clientID := s.Enqueue("c1", "hello")

	select {
	case evt := <-ch:
		payload := evt.Payload.(map[string]string)
		if payload["client_msg_id"] != clientID || payload["error"] == "" {
			t.Errorf("failure payload = %v", payload)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no send failure event")
	}

	m := findMessage(st.Chat("c1"), clientID)
	if m == nil {
		t.Fatal("optimistic message gone after failure")
	}
	if m.Status != store.StatusFailed {
		t.Errorf("status = %q, want failed", m.Status)
	}
}

func TestFullQueueFailsImmediately(t *testing.T) {
	b := bus.New()
	st := store.New(b, nil)
	st.ReplaceAll([]*store.Chat{{ID: "c1", Messages: []*store.Message{}}})
	s := NewSender(&fakeAPI{}, st, dedup.New(time.Second), b, nil, 1)
	// Never started, so the first enqueue occupies the only slot.

	first := s.Enqueue("c1", "one")
	second := s.Enqueue("c1", "two")

	if m := findMessage(st.Chat("c1"), first); m == nil || m.Status != store.StatusSending {
		t.Errorf("first message = %+v, want sending", m)
	}
	if m := findMessage(st.Chat("c1"), second); m == nil || m.Status != store.StatusFailed {
		t.Errorf("second message = %+v, want failed on full queue", m)
	}
}

func TestEnqueueMediaMissingFileFails(t *testing.T) {
	s, st, _, b := newFixture(t, &fakeAPI{})
	ch, unsub := b.Subscribe(bus.KindSendFailed, 1)
	defer unsub()

	s.Start(context.Background())
	defer s.Stop()

	clientID := s.EnqueueMedia("c1", "/nonexistent/photo.jpg", "look")

	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("no failure for missing media file")
	}
	m := findMessage(st.Chat("c1"), clientID)
	if m == nil || m.Status != store.StatusFailed || !m.IsMedia {
		t.Errorf("media message = %+v, want failed media", m)
	}
}
