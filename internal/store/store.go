package store

import (
	"sort"
	"sync"

	"github.com/matheus3301/chatdeck/internal/bus"
	"go.uber.org/zap"
)

// Store is the single source of truth for chat and message data. All
// mutations go through it so referential equality is preserved for chats
// that did not change. Lookups on unknown ids are non-fatal: transient
// races between the stream and the chat list are expected, so they are
// logged and the state is left untouched.
type Store struct {
	mu      sync.RWMutex
	chats   map[string]*Chat
	order   []string
	nextSeq int
	bus     *bus.Bus
	logger  *zap.Logger
}

// New creates an empty store.
func New(b *bus.Bus, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		chats:  make(map[string]*Chat),
		bus:    b,
		logger: logger,
	}
}

func (s *Store) emit(kind string, payload any) {
	if s.bus != nil {
		s.bus.Emit(kind, payload)
	}
}

// ReplaceAll applies a full resync result. Chats whose incoming record
// carries no messages, or whose last-message timestamp is unchanged, keep
// their existing message slice (same reference) so downstream consumers
// never refetch or re-render them. Chats absent from the input are dropped.
func (s *Store) ReplaceAll(chats []*Chat) {
	s.mu.Lock()
	next := make(map[string]*Chat, len(chats))
	for _, in := range chats {
		cur, known := s.chats[in.ID]
		if known && (in.Messages == nil || (in.LastMessageAt == cur.LastMessageAt && len(cur.Messages) > 0)) {
			// Metadata-only merge, message array untouched.
			if in.Name != "" {
				cur.Name = in.Name
			}
			if in.ProfileImage != "" {
				cur.ProfileImage = in.ProfileImage
			}
			next[cur.ID] = cur
			continue
		}
		in.ensureIndex()
		in.refreshTail()
		if known {
			in.seq = cur.seq
			in.UnreadCount = cur.UnreadCount
		} else {
			in.seq = s.nextSeq
			s.nextSeq++
		}
		next[in.ID] = in
	}
	s.chats = next

	// Drop removed chats from the applied display order.
	kept := s.order[:0]
	for _, id := range s.order {
		if _, ok := next[id]; ok {
			kept = append(kept, id)
		}
	}
	s.order = kept
	s.mu.Unlock()

	s.emit(bus.KindStoreResynced, len(chats))
}

// UpsertChat merges chat metadata, leaving messages untouched unless the
// caller supplies a fresher list (last-message timestamp advanced).
func (s *Store) UpsertChat(in *Chat) {
	s.mu.Lock()
	cur, known := s.chats[in.ID]
	if !known {
		in.ensureIndex()
		in.refreshTail()
		in.seq = s.nextSeq
		s.nextSeq++
		s.chats[in.ID] = in
	} else {
		if in.Name != "" {
			cur.Name = in.Name
		}
		if in.ProfileImage != "" {
			cur.ProfileImage = in.ProfileImage
		}
		if in.Messages != nil && in.LastMessageAt > cur.LastMessageAt {
			cur.Messages = in.Messages
			cur.index = nil
			cur.ensureIndex()
			cur.LastMessageAt = in.LastMessageAt
			cur.refreshTail()
		}
	}
	s.mu.Unlock()

	s.emit(bus.KindChatUpserted, in.ID)
}

// AppendMessage appends a message to a chat. It is a no-op if a message
// with the same id already exists in that chat.
func (s *Store) AppendMessage(chatID string, msg *Message) {
	s.mu.Lock()
	cur, known := s.chats[chatID]
	if !known {
		s.mu.Unlock()
		s.logger.Warn("append to unknown chat",
			zap.String("chat_id", chatID), zap.String("msg_id", msg.ID))
		return
	}
	cur.ensureIndex()
	if _, dup := cur.index[msg.ID]; dup {
		s.mu.Unlock()
		return
	}
	msg.ChatID = chatID
	cur.Messages = append(cur.Messages, msg)
	cur.index[msg.ID] = msg
	cur.LastMessage = msg
	if msg.Timestamp > cur.LastMessageAt {
		cur.LastMessageAt = msg.Timestamp
	}
	if !msg.FromMe {
		cur.UnreadCount++
	}
	s.mu.Unlock()

	s.emit(bus.KindMessageUpserted, bus.MessageRef{ChatID: chatID, MessageID: msg.ID})
}

// EditMessage replaces a message's content and marks it edited. Edits to
// deleted messages are ignored so the tombstone is never overwritten.
func (s *Store) EditMessage(chatID, msgID, content string) {
	s.mu.Lock()
	msg, ok := s.lookup(chatID, msgID)
	if !ok {
		s.mu.Unlock()
		s.logger.Warn("edit of unknown message",
			zap.String("chat_id", chatID), zap.String("msg_id", msgID))
		return
	}
	if msg.IsDeleted {
		s.mu.Unlock()
		s.logger.Debug("ignoring edit of deleted message",
			zap.String("chat_id", chatID), zap.String("msg_id", msgID))
		return
	}
	msg.Content = content
	msg.IsEdited = true
	s.mu.Unlock()

	s.emit(bus.KindMessageEdited, bus.MessageRef{ChatID: chatID, MessageID: msgID})
}

// MarkDeleted tombstones a message in place. The entry stays in the list
// so edit/delete history survives at-least-once redelivery.
func (s *Store) MarkDeleted(chatID, msgID string) {
	s.mu.Lock()
	msg, ok := s.lookup(chatID, msgID)
	if !ok {
		s.mu.Unlock()
		s.logger.Warn("delete of unknown message",
			zap.String("chat_id", chatID), zap.String("msg_id", msgID))
		return
	}
	msg.IsDeleted = true
	msg.Content = DeletedPlaceholder
	s.mu.Unlock()

	s.emit(bus.KindMessageDeleted, bus.MessageRef{ChatID: chatID, MessageID: msgID})
}

// ConfirmSent replaces an optimistic outgoing message with the server echo.
// If the echo already arrived through the stream, the optimistic entry is
// dropped instead.
func (s *Store) ConfirmSent(chatID, clientMsgID string, echo *Message) {
	s.mu.Lock()
	cur, known := s.chats[chatID]
	if !known {
		s.mu.Unlock()
		s.logger.Warn("send confirm for unknown chat", zap.String("chat_id", chatID))
		return
	}
	cur.ensureIndex()
	msg, ok := cur.index[clientMsgID]
	if !ok {
		s.mu.Unlock()
		s.logger.Warn("send confirm for unknown message",
			zap.String("chat_id", chatID), zap.String("client_msg_id", clientMsgID))
		return
	}

	if _, exists := cur.index[echo.ID]; exists && echo.ID != clientMsgID {
		// Stream delivery won the race; drop the optimistic entry.
		delete(cur.index, clientMsgID)
		for i, m := range cur.Messages {
			if m == msg {
				cur.Messages = append(cur.Messages[:i], cur.Messages[i+1:]...)
				break
			}
		}
		cur.refreshTail()
		s.mu.Unlock()
		s.emit(bus.KindMessageUpserted, bus.MessageRef{ChatID: chatID, MessageID: echo.ID})
		return
	}

	delete(cur.index, clientMsgID)
	msg.ID = echo.ID
	if echo.Timestamp > 0 {
		msg.Timestamp = echo.Timestamp
	}
	if echo.SenderName != "" {
		msg.SenderName = echo.SenderName
	}
	if echo.MediaPath != "" {
		msg.IsMedia = true
		msg.MediaPath = echo.MediaPath
	}
	msg.Status = StatusSent
	cur.index[msg.ID] = msg
	if msg.Timestamp > cur.LastMessageAt {
		cur.LastMessageAt = msg.Timestamp
	}
	s.mu.Unlock()

	s.emit(bus.KindMessageUpserted, bus.MessageRef{ChatID: chatID, MessageID: echo.ID})
}

// MarkSendFailed flags an optimistic outgoing message as failed.
func (s *Store) MarkSendFailed(chatID, clientMsgID string) {
	s.mu.Lock()
	msg, ok := s.lookup(chatID, clientMsgID)
	if !ok {
		s.mu.Unlock()
		s.logger.Warn("send failure for unknown message",
			zap.String("chat_id", chatID), zap.String("client_msg_id", clientMsgID))
		return
	}
	msg.Status = StatusFailed
	s.mu.Unlock()

	s.emit(bus.KindMessageUpserted, bus.MessageRef{ChatID: chatID, MessageID: clientMsgID})
}

// MarkRead clears a chat's unread counter.
func (s *Store) MarkRead(chatID string) {
	s.mu.Lock()
	cur, known := s.chats[chatID]
	if !known {
		s.mu.Unlock()
		return
	}
	cur.UnreadCount = 0
	s.mu.Unlock()

	s.emit(bus.KindChatUpserted, chatID)
}

// lookup must be called with the lock held.
func (s *Store) lookup(chatID, msgID string) (*Message, bool) {
	cur, known := s.chats[chatID]
	if !known {
		return nil, false
	}
	cur.ensureIndex()
	msg, ok := cur.index[msgID]
	return msg, ok
}

// Chat returns the chat with the given id, or nil.
func (s *Store) Chat(id string) *Chat {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.chats[id]
}

// HasMessage reports whether the chat already holds a message with that id.
func (s *Store) HasMessage(chatID, msgID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.lookup(chatID, msgID)
	return ok
}

// Len returns the number of chats.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chats)
}

// ChatsBySeq returns all chats in insertion order.
func (s *Store) ChatsBySeq() []*Chat {
	s.mu.RLock()
	defer s.mu.RUnlock()
	chats := make([]*Chat, 0, len(s.chats))
	for _, c := range s.chats {
		chats = append(chats, c)
	}
	sort.Slice(chats, func(i, j int) bool { return chats[i].seq < chats[j].seq })
	return chats
}

// Chats returns all chats in the applied display order. Chats not yet
// covered by the applied order trail in insertion order.
func (s *Store) Chats() []*Chat {
	s.mu.RLock()
	defer s.mu.RUnlock()

	chats := make([]*Chat, 0, len(s.chats))
	seen := make(map[string]bool, len(s.order))
	for _, id := range s.order {
		if c, ok := s.chats[id]; ok {
			chats = append(chats, c)
			seen[id] = true
		}
	}
	rest := make([]*Chat, 0, len(s.chats)-len(chats))
	for id, c := range s.chats {
		if !seen[id] {
			rest = append(rest, c)
		}
	}
	sort.Slice(rest, func(i, j int) bool { return rest[i].seq < rest[j].seq })
	return append(chats, rest...)
}

// Order returns a copy of the applied display order.
func (s *Store) Order() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// SetOrder applies a new display order. Callers are expected to defer the
// call past any in-progress user interaction; the store applies it as-is.
func (s *Store) SetOrder(ids []string) {
	s.mu.Lock()
	s.order = make([]string, len(ids))
	copy(s.order, ids)
	s.mu.Unlock()
}
