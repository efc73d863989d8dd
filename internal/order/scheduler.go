package order

import (
	"context"
	"slices"
	"sync/atomic"
	"time"

	"github.com/matheus3301/chatdeck/internal/bus"
	"github.com/matheus3301/chatdeck/internal/store"
	"go.uber.org/zap"
)

// DefaultInterval is the periodic re-evaluation interval that corrects
// ordering drift even when no new messages arrive.
const DefaultInterval = 60 * time.Second

// Scheduler applies newly computed orders to the store. Application always
// happens on the scheduler's own goroutine, never inside the mutation that
// triggered it, and is suppressed entirely while the user is interacting
// with the chat list.
type Scheduler struct {
	store       *store.Store
	bus         *bus.Bus
	logger      *zap.Logger
	interval    time.Duration
	interacting atomic.Bool
	kick        chan struct{}
	cancel      context.CancelFunc
}

// NewScheduler creates a scheduler. interval <= 0 uses DefaultInterval.
func NewScheduler(st *store.Store, b *bus.Bus, logger *zap.Logger, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		store:    st,
		bus:      b,
		logger:   logger,
		interval: interval,
		kick:     make(chan struct{}, 1),
	}
}

// SetInteracting flags whether the user is actively scrolled into the chat
// list. While true, no reorder is applied.
func (s *Scheduler) SetInteracting(v bool) {
	s.interacting.Store(v)
	if !v {
		s.Kick()
	}
}

// Kick requests a reorder check. Non-blocking; coalesces with any pending
// request.
func (s *Scheduler) Kick() {
	select {
	case s.kick <- struct{}{}:
	default:
	}
}

// Start launches the scheduler loop. It reacts to store mutations on the
// bus, to Kick, and to the periodic drift-correction tick.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	ch, unsub := s.bus.Subscribe("store.", 64)

	go func() {
		defer unsub()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case evt := <-ch:
				if evt.Kind == bus.KindChatsReordered {
					continue
				}
				s.apply()
			case <-s.kick:
				s.apply()
			case <-ticker.C:
				s.apply()
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops the scheduler loop.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
}

func (s *Scheduler) apply() {
	if s.interacting.Load() {
		return
	}
	next := Compute(s.store.ChatsBySeq())
	if slices.Equal(next, s.store.Order()) {
		return
	}
	s.store.SetOrder(next)
	s.logger.Debug("chat order applied", zap.Int("chats", len(next)))
	s.bus.Emit(bus.KindChatsReordered, next)
}
