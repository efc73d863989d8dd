// Package ingest dispatches decoded stream events into the chat store.
package ingest

import (
	"github.com/matheus3301/chatdeck/internal/bus"
	"github.com/matheus3301/chatdeck/internal/dedup"
	"github.com/matheus3301/chatdeck/internal/store"
	"github.com/matheus3301/chatdeck/internal/stream"
	"go.uber.org/zap"
)

// Engine applies stream events to the store through the dedup ledger. It
// implements stream.Handler, so events arrive strictly in receipt order.
type Engine struct {
	store  *store.Store
	ledger *dedup.Ledger
	bus    *bus.Bus
	logger *zap.Logger
}

// NewEngine creates an ingest engine.
func NewEngine(st *store.Store, ledger *dedup.Ledger, b *bus.Bus, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		store:  st,
		ledger: ledger,
		bus:    b,
		logger: logger,
	}
}

// HandleEvent applies one stream event.
func (e *Engine) HandleEvent(evt stream.Event) {
	switch ev := evt.(type) {
	case *stream.NewMessage:
		e.handleNewMessage(ev)

	case *stream.MessageEdited:
		e.store.EditMessage(ev.ChatID, ev.MessageID, ev.Content)

	case *stream.MessageDeleted:
		e.store.MarkDeleted(ev.ChatID, ev.MessageID)

	case *stream.ChatUpdated:
		e.handleChatUpdated(ev)

	case *stream.Ping:
		// Keepalive, nothing to apply.

	default:
		e.logger.Debug("ignoring unhandled stream event", zap.String("kind", evt.Kind()))
	}
}

func (e *Engine) handleNewMessage(ev *stream.NewMessage) {
	if ev.ChatID == "" || ev.Message.ID == "" {
		e.logger.Warn("new_message without ids dropped")
		return
	}
	if e.ledger.Seen(ev.ChatID, ev.Message.ID) {
		e.logger.Debug("duplicate stream message suppressed",
			zap.String("chat_id", ev.ChatID), zap.String("msg_id", ev.Message.ID))
		return
	}
	if e.store.HasMessage(ev.ChatID, ev.Message.ID) {
		return
	}
	e.store.AppendMessage(ev.ChatID, ev.Message)
	e.ledger.Record(ev.ChatID, ev.Message.ID)
}

// handleChatUpdated merges metadata for known chats. Stream chat objects
// are not guaranteed complete, so an unknown chat triggers a full resync
// instead of a partial merge.
func (e *Engine) handleChatUpdated(ev *stream.ChatUpdated) {
	if e.store.Chat(ev.ChatID) == nil {
		e.logger.Info("chat_updated for unknown chat, requesting resync",
			zap.String("chat_id", ev.ChatID))
		e.bus.Emit(bus.KindSyncRequested, ev.ChatID)
		return
	}
	e.store.UpsertChat(&store.Chat{
		ID:            ev.ChatID,
		Name:          ev.Name,
		ProfileImage:  ev.ProfileImage,
		LastMessageAt: ev.LastMessageAt,
	})
}
