package stream

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/matheus3301/chatdeck/internal/store"
)

// ErrUnknownEvent is returned by Decode for event types this client does
// not understand. Callers drop the event without tearing down the stream.
var ErrUnknownEvent = errors.New("unknown stream event type")

// Event is the decoded form of a stream wire frame. The concrete types
// below are the full set of kinds the server emits.
type Event interface {
	Kind() string
}

// NewMessage announces a message appended to a chat.
type NewMessage struct {
	ChatID  string
	Message *store.Message
}

// MessageEdited announces a content change to an existing message.
type MessageEdited struct {
	ChatID    string
	MessageID string
	Content   string
}

// MessageDeleted announces a message deletion.
type MessageDeleted struct {
	ChatID    string
	MessageID string
}

// ChatUpdated announces changed chat metadata. Chat objects arriving on
// the stream are not guaranteed complete, so consumers treat this as a
// metadata-only signal.
type ChatUpdated struct {
	ChatID        string
	Name          string
	ProfileImage  string
	LastMessageAt int64
}

// Ping is the keepalive frame, sent in both directions.
type Ping struct {
	Timestamp int64
}

func (*NewMessage) Kind() string     { return "new_message" }
func (*MessageEdited) Kind() string  { return "message_edited" }
func (*MessageDeleted) Kind() string { return "message_deleted" }
func (*ChatUpdated) Kind() string    { return "chat_updated" }
func (*Ping) Kind() string           { return "ping" }

type frame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Decode parses a wire frame into a typed event.
func Decode(data []byte) (Event, error) {
	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}

	switch f.Type {
	case "new_message":
		var p struct {
			ChatID  string         `json:"chatId"`
			Message *store.Message `json:"message"`
		}
		if err := json.Unmarshal(f.Payload, &p); err != nil {
			return nil, fmt.Errorf("decode new_message: %w", err)
		}
		if p.Message == nil {
			return nil, errors.New("new_message without message")
		}
		if p.ChatID == "" {
			p.ChatID = p.Message.ChatID
		}
		return &NewMessage{ChatID: p.ChatID, Message: p.Message}, nil

	case "message_edited":
		var p struct {
			ChatID    string `json:"chatId"`
			MessageID string `json:"messageId"`
			Content   string `json:"content"`
		}
		if err := json.Unmarshal(f.Payload, &p); err != nil {
			return nil, fmt.Errorf("decode message_edited: %w", err)
		}
		return &MessageEdited{ChatID: p.ChatID, MessageID: p.MessageID, Content: p.Content}, nil

	case "message_deleted":
		var p struct {
			ChatID    string `json:"chatId"`
			MessageID string `json:"messageId"`
		}
		if err := json.Unmarshal(f.Payload, &p); err != nil {
			return nil, fmt.Errorf("decode message_deleted: %w", err)
		}
		return &MessageDeleted{ChatID: p.ChatID, MessageID: p.MessageID}, nil

	case "chat_updated":
		var p struct {
			ID            string `json:"id"`
			Name          string `json:"name"`
			ProfileImage  string `json:"profileImage"`
			LastMessageAt int64  `json:"lastMessageTimestamp"`
		}
		if err := json.Unmarshal(f.Payload, &p); err != nil {
			return nil, fmt.Errorf("decode chat_updated: %w", err)
		}
		return &ChatUpdated{ChatID: p.ID, Name: p.Name, ProfileImage: p.ProfileImage, LastMessageAt: p.LastMessageAt}, nil

	case "ping":
		var p struct {
			Timestamp int64 `json:"timestamp"`
		}
		// Payload is optional on keepalives.
		if len(f.Payload) > 0 {
			if err := json.Unmarshal(f.Payload, &p); err != nil {
				return nil, fmt.Errorf("decode ping: %w", err)
			}
		}
		return &Ping{Timestamp: p.Timestamp}, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, f.Type)
	}
}
