package store

// DeletedPlaceholder is the tombstone content kept for deleted messages.
// Deleted messages are never removed from the list, only rewritten.
const DeletedPlaceholder = "(This message has been deleted)"

// Message delivery status for locally originated messages.
const (
	StatusSending = "sending"
	StatusSent    = "sent"
	StatusFailed  = "failed"
)

// Message represents a single chat message. The json tags are the wire
// contract shared by the REST API and the event stream.
type Message struct {
	ID               string `json:"id"`
	ChatID           string `json:"chatId"`
	SenderName       string `json:"senderName"`
	Content          string `json:"content"`
	Timestamp        int64  `json:"timestamp"`
	IsMedia          bool   `json:"isMedia"`
	MediaPath        string `json:"mediaPath,omitempty"`
	IsEdited         bool   `json:"isEdited"`
	IsDeleted        bool   `json:"isDeleted"`
	ReplyToMessageID string `json:"replyToMessageId,omitempty"`
	FromMe           bool   `json:"fromMe,omitempty"`

	// Status tracks local delivery state for optimistic sends and is
	// never sent over the wire.
	Status string `json:"-"`
}

// Chat represents a synced chat. Instances are owned by the Store; the UI
// holds read references only and must never mutate them directly.
type Chat struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	ProfileImage  string     `json:"profileImage,omitempty"`
	Messages      []*Message `json:"messages"`
	LastMessage   *Message   `json:"lastMessage"`
	LastMessageAt int64      `json:"lastMessageTimestamp"`
	UnreadCount   int        `json:"unreadCount"`

	index map[string]*Message
	seq   int
}

func (c *Chat) ensureIndex() {
	if c.index == nil {
		c.index = make(map[string]*Message, len(c.Messages))
		for _, m := range c.Messages {
			c.index[m.ID] = m
		}
	}
}

// refreshTail re-derives LastMessage and LastMessageAt from the message list.
func (c *Chat) refreshTail() {
	if len(c.Messages) == 0 {
		c.LastMessage = nil
		return
	}
	c.LastMessage = c.Messages[len(c.Messages)-1]
	if c.LastMessage.Timestamp > c.LastMessageAt {
		c.LastMessageAt = c.LastMessage.Timestamp
	}
}
