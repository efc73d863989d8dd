// Package outbox sends outgoing messages with optimistic local inserts.
package outbox

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/matheus3301/chatdeck/internal/bus"
	"github.com/matheus3301/chatdeck/internal/dedup"
	"github.com/matheus3301/chatdeck/internal/store"
	"go.uber.org/zap"
)

// DefaultQueueSize bounds the number of pending sends. Enqueue never
// blocks: past this the message fails immediately.
const DefaultQueueSize = 64

// ErrQueueFull is reported on the failed message when the outbox is at
// capacity.
var ErrQueueFull = errors.New("outbox queue full")

// API is the REST surface the sender needs.
type API interface {
	SendText(ctx context.Context, chatID, content string) (*store.Message, error)
	SendMedia(ctx context.Context, chatID string, image io.Reader, filename, caption string) (*store.Message, error)
}

type job struct {
	chatID      string
	clientMsgID string
	content     string
	mediaPath   string
	caption     string
}

// Sender drains queued messages one at a time. Each enqueue inserts an
// optimistic message into the store under a client-generated id; on
// success the server echo replaces it and the echo id is recorded in the
// dedup ledger so the stream redelivery is suppressed.
type Sender struct {
	api    API
	store  *store.Store
	ledger *dedup.Ledger
	bus    *bus.Bus
	logger *zap.Logger
	queue  chan job
	cancel context.CancelFunc
}

// NewSender creates an outbox sender. queueSize <= 0 uses DefaultQueueSize.
func NewSender(api API, st *store.Store, ledger *dedup.Ledger, b *bus.Bus, logger *zap.Logger, queueSize int) *Sender {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sender{
		api:    api,
		store:  st,
		ledger: ledger,
		bus:    b,
		logger: logger,
		queue:  make(chan job, queueSize),
	}
}

// Start begins draining the queue.
func (s *Sender) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	go s.loop(ctx)
}

// Stop stops the drain loop. Queued messages stay in sending state.
func (s *Sender) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
}

// Enqueue queues a text message and returns the client message id of the
// optimistic insert.
func (s *Sender) Enqueue(chatID, content string) string {
	return s.push(job{chatID: chatID, content: content})
}

// EnqueueMedia queues an image send. The file is read at send time, not
// at enqueue time.
func (s *Sender) EnqueueMedia(chatID, path, caption string) string {
	return s.push(job{chatID: chatID, mediaPath: path, caption: caption})
}

func (s *Sender) push(j job) string {
	j.clientMsgID = "pending-" + uuid.NewString()

	msg := &store.Message{
		ID:        j.clientMsgID,
		ChatID:    j.chatID,
		Content:   j.content,
		Timestamp: time.Now().UnixMilli(),
		FromMe:    true,
		Status:    store.StatusSending,
	}
	if j.mediaPath != "" {
		msg.IsMedia = true
		msg.MediaPath = j.mediaPath
		msg.Content = j.caption
	}
	s.store.AppendMessage(j.chatID, msg)

	select {
	case s.queue <- j:
	default:
		s.logger.Warn("outbox full, failing message",
			zap.String("chat_id", j.chatID), zap.String("client_msg_id", j.clientMsgID))
		s.fail(j, ErrQueueFull)
	}
	return j.clientMsgID
}

func (s *Sender) loop(ctx context.Context) {
	for {
		select {
		case j := <-s.queue:
			s.send(ctx, j)
		case <-ctx.Done():
			return
		}
	}
}

func (s *Sender) send(ctx context.Context, j job) {
	var (
		echo *store.Message
		err  error
	)
	if j.mediaPath != "" {
		echo, err = s.sendMedia(ctx, j)
	} else {
		echo, err = s.api.SendText(ctx, j.chatID, j.content)
	}
	if err != nil {
		s.logger.Error("send failed", zap.Error(err),
			zap.String("chat_id", j.chatID), zap.String("client_msg_id", j.clientMsgID))
		s.fail(j, err)
		return
	}

	// Record before confirming so a stream echo racing in right after the
	// HTTP response is already suppressed.
	s.ledger.Record(j.chatID, echo.ID)
	s.store.ConfirmSent(j.chatID, j.clientMsgID, echo)

	s.logger.Info("message sent",
		zap.String("chat_id", j.chatID),
		zap.String("client_msg_id", j.clientMsgID),
		zap.String("server_msg_id", echo.ID))
	s.bus.Emit(bus.KindSendAck, map[string]string{
		"chat_id":       j.chatID,
		"client_msg_id": j.clientMsgID,
		"server_msg_id": echo.ID,
	})
}

func (s *Sender) sendMedia(ctx context.Context, j job) (*store.Message, error) {
	f, err := os.Open(j.mediaPath)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return s.api.SendMedia(ctx, j.chatID, f, filepath.Base(j.mediaPath), j.caption)
}

func (s *Sender) fail(j job, err error) {
	s.store.MarkSendFailed(j.chatID, j.clientMsgID)
	s.bus.Emit(bus.KindSendFailed, map[string]string{
		"chat_id":       j.chatID,
		"client_msg_id": j.clientMsgID,
		"error":         err.Error(),
	})
}
