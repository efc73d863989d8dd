// Package daemon composes the chatdeck engine with fx.
package daemon

import (
	"context"

	"github.com/matheus3301/chatdeck/internal/bus"
	"github.com/matheus3301/chatdeck/internal/config"
	"github.com/matheus3301/chatdeck/internal/dedup"
	"github.com/matheus3301/chatdeck/internal/ingest"
	"github.com/matheus3301/chatdeck/internal/logging"
	"github.com/matheus3301/chatdeck/internal/order"
	"github.com/matheus3301/chatdeck/internal/outbox"
	"github.com/matheus3301/chatdeck/internal/rest"
	"github.com/matheus3301/chatdeck/internal/store"
	"github.com/matheus3301/chatdeck/internal/stream"
	"github.com/matheus3301/chatdeck/internal/syncer"
	"github.com/matheus3301/chatdeck/internal/throttle"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Params holds the startup configuration passed to the fx module.
type Params struct {
	ConfigPath string // empty = ~/.chatdeck/config.toml
}

// Module returns the fx module for the daemon, composing all providers and
// lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideConfig,
			provideLogger,
			provideBus,
			provideStore,
			provideLedger,
			provideGate,
			provideRESTClient,
			provideStateMachine,
			provideIngest,
			provideManager,
			provideScheduler,
			provideSynchronizer,
			provideSender,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideConfig(p Params) (*config.Config, error) {
	path := p.ConfigPath
	if path == "" {
		var err error
		if path, err = config.DefaultPath(); err != nil {
			return nil, err
		}
	}
	return config.Load(path)
}

func provideLogger(cfg *config.Config) (*zap.Logger, error) {
	return logging.New(cfg.LogPath)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideStore(b *bus.Bus, logger *zap.Logger) *store.Store {
	return store.New(b, logger)
}

func provideLedger(cfg *config.Config) *dedup.Ledger {
	return dedup.New(cfg.LedgerTTL())
}

func provideGate(cfg *config.Config) *throttle.Gate {
	return throttle.New(cfg.GlobalThrottle(), cfg.ChatThrottle())
}

func provideRESTClient(cfg *config.Config, logger *zap.Logger) *rest.Client {
	return rest.NewClient(rest.Options{
		BaseURL:         cfg.API.BaseURL,
		Timeout:         cfg.RequestTimeout(),
		RPS:             cfg.API.RPS,
		Burst:           cfg.API.Burst,
		BreakerFailures: cfg.API.BreakerFailures,
		BreakerTimeout:  cfg.BreakerTimeout(),
	}, logger)
}

func provideStateMachine(b *bus.Bus) *stream.Machine {
	return stream.NewMachine(b)
}

func provideIngest(st *store.Store, ledger *dedup.Ledger, b *bus.Bus, logger *zap.Logger) *ingest.Engine {
	return ingest.NewEngine(st, ledger, b, logger)
}

func provideManager(cfg *config.Config, machine *stream.Machine, engine *ingest.Engine, b *bus.Bus, logger *zap.Logger) *stream.Manager {
	return stream.NewManager(stream.Options{
		URL:         cfg.API.StreamURL,
		DialTimeout: cfg.DialTimeout(),
		Heartbeat:   cfg.Heartbeat(),
		BackoffBase: cfg.BackoffBase(),
		BackoffCap:  cfg.BackoffCap(),
		MaxAttempts: cfg.Stream.MaxAttempts,
	}, machine, engine, b, logger)
}

func provideScheduler(cfg *config.Config, st *store.Store, b *bus.Bus, logger *zap.Logger) *order.Scheduler {
	return order.NewScheduler(st, b, logger, cfg.ReorderInterval())
}

func provideSynchronizer(cfg *config.Config, client *rest.Client, st *store.Store, gate *throttle.Gate, b *bus.Bus, logger *zap.Logger) *syncer.Synchronizer {
	return syncer.New(client, st, gate, b, logger, cfg.PollInterval())
}

func provideSender(cfg *config.Config, client *rest.Client, st *store.Store, ledger *dedup.Ledger, b *bus.Bus, logger *zap.Logger) *outbox.Sender {
	return outbox.NewSender(client, st, ledger, b, logger, cfg.Stream.OutboxQueue)
}

func registerLifecycle(
	lc fx.Lifecycle,
	scheduler *order.Scheduler,
	sync *syncer.Synchronizer,
	sender *outbox.Sender,
	manager *stream.Manager,
	logger *zap.Logger,
) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			// Reorder scheduler first so the initial resync already lands in
			// a consistent display order.
			scheduler.Start(context.Background())
			sync.Start(context.Background())
			sender.Start(context.Background())
			manager.Connect()
			logger.Info("daemon started")
			return nil
		},
		OnStop: func(_ context.Context) error {
			manager.Close()
			sender.Stop()
			sync.Stop()
			scheduler.Stop()
			logger.Info("daemon stopped")
			return nil
		},
	})
}
