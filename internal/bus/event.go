package bus

import "time"

// Event represents a domain event published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}

// Event kinds published by the engine. Subscribers filter by namespace
// prefix, e.g. "store." receives every store mutation.
const (
	KindMessageUpserted = "store.message_upserted"
	KindMessageEdited   = "store.message_edited"
	KindMessageDeleted  = "store.message_deleted"
	KindChatUpserted    = "store.chat_upserted"
	KindStoreResynced   = "store.resynced"
	KindChatsReordered  = "store.reordered"

	KindStreamStatusChanged = "stream.status_changed"
	KindStreamTerminalError = "stream.terminal_error"

	KindSyncRequested = "sync.requested"
	KindSyncOK        = "sync.ok"
	KindSyncError     = "sync.error"

	KindSendAck    = "outbox.send_ack"
	KindSendFailed = "outbox.send_failed"
)

// MessageRef identifies a single message within a chat. It is the payload
// for the store.message_* event kinds.
type MessageRef struct {
	ChatID    string
	MessageID string
}
