// Package syncer reconciles the local store with REST truth.
package syncer

import (
	"context"
	"fmt"
	"time"

	"github.com/matheus3301/chatdeck/internal/bus"
	"github.com/matheus3301/chatdeck/internal/rest"
	"github.com/matheus3301/chatdeck/internal/store"
	"github.com/matheus3301/chatdeck/internal/throttle"
	"go.uber.org/zap"
)

// DefaultInterval is the fixed polling interval. Polling does not back
// off: a failed cycle is simply retried on the next tick.
const DefaultInterval = 30 * time.Second

// API is the REST surface the synchronizer needs.
type API interface {
	ListChats(ctx context.Context) ([]rest.ChatSummary, error)
	ListMessages(ctx context.Context, chatID string) ([]*store.Message, error)
}

// Synchronizer performs full and partial resynchronization against the
// REST API, deciding per chat whether a message refetch is needed and
// merging results into the store.
type Synchronizer struct {
	api      API
	store    *store.Store
	gate     *throttle.Gate
	bus      *bus.Bus
	logger   *zap.Logger
	interval time.Duration
	cancel   context.CancelFunc
}

// New creates a synchronizer. interval <= 0 uses DefaultInterval.
func New(api API, st *store.Store, gate *throttle.Gate, b *bus.Bus, logger *zap.Logger, interval time.Duration) *Synchronizer {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Synchronizer{
		api:      api,
		store:    st,
		gate:     gate,
		bus:      b,
		logger:   logger,
		interval: interval,
	}
}

// Start runs the polling loop. It also services sync.requested bus events
// (e.g. the stream saw a chat we do not know yet).
func (s *Synchronizer) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	ch, unsub := s.bus.Subscribe(bus.KindSyncRequested, 8)

	go func() {
		defer unsub()
		s.runCycle(ctx)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.runCycle(ctx)
			case <-ch:
				s.runCycle(ctx)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops the polling loop.
func (s *Synchronizer) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
}

func (s *Synchronizer) runCycle(ctx context.Context) {
	synced, err := s.Resync(ctx)
	if err != nil {
		s.logger.Warn("resync failed", zap.Error(err))
		s.bus.Emit(bus.KindSyncError, err.Error())
		return
	}
	if synced {
		s.bus.Emit(bus.KindSyncOK, nil)
	}
}

// Resync reconciles once. Returns (false, nil) when skipped because a
// resync is already in flight or the global throttle window is still
// closed. On failure the last-known-good state is always retained.
func (s *Synchronizer) Resync(ctx context.Context) (bool, error) {
	if !s.gate.TryBeginResync() {
		return false, nil
	}
	defer s.gate.EndResync()

	if !s.gate.ShouldFetch(throttle.GlobalScope) {
		return false, nil
	}
	s.gate.RecordFetch(throttle.GlobalScope)

	summaries, err := s.api.ListChats(ctx)
	if err != nil {
		return false, fmt.Errorf("fetch chat list: %w", err)
	}

	changed := len(summaries) != s.store.Len()
	refetch := make(map[string]bool)
	for _, sum := range summaries {
		cur := s.store.Chat(sum.ID)
		switch {
		case cur == nil:
			changed = true
			refetch[sum.ID] = true
		case sum.LastMessageAt > cur.LastMessageAt:
			refetch[sum.ID] = true
		case len(cur.Messages) == 0 && sum.LastMessageAt > 0:
			// Summary-only chat we never filled in.
			refetch[sum.ID] = true
		}
	}

	if !changed && len(refetch) == 0 {
		// Cheap path: nothing moved, merge metadata only.
		for _, sum := range summaries {
			s.store.UpsertChat(&store.Chat{
				ID:           sum.ID,
				Name:         sum.Name,
				ProfileImage: sum.ProfileImage,
			})
		}
		return true, nil
	}

	chats := make([]*store.Chat, 0, len(summaries))
	fetched := 0
	for _, sum := range summaries {
		c := &store.Chat{
			ID:            sum.ID,
			Name:          sum.Name,
			ProfileImage:  sum.ProfileImage,
			LastMessageAt: sum.LastMessageAt,
		}
		if refetch[sum.ID] && s.gate.ShouldFetch(sum.ID) {
			s.gate.RecordFetch(sum.ID)
			msgs, err := s.api.ListMessages(ctx, sum.ID)
			if err != nil {
				return false, fmt.Errorf("fetch messages for %s: %w", sum.ID, err)
			}
			if msgs == nil {
				msgs = []*store.Message{}
			}
			c.Messages = msgs
			fetched++
		}
		// Chats without a fresh fetch keep their existing message slice
		// through ReplaceAll's reference-preserving merge.
		chats = append(chats, c)
	}
	s.store.ReplaceAll(chats)
	s.logger.Info("resync applied",
		zap.Int("chats", len(chats)), zap.Int("refetched", fetched))
	return true, nil
}
