package daemon

import (
	"context"
	"errors"
	"io/fs"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/linguachat/lingua/internal/bus"
	"github.com/linguachat/lingua/internal/config"
	"github.com/linguachat/lingua/internal/conn"
	"github.com/linguachat/lingua/internal/creds"
	"github.com/linguachat/lingua/internal/lock"
	"github.com/linguachat/lingua/internal/logging"
	"github.com/linguachat/lingua/internal/notify"
	"github.com/linguachat/lingua/internal/outbound"
	"github.com/linguachat/lingua/internal/presence"
	"github.com/linguachat/lingua/internal/session"
	"github.com/linguachat/lingua/internal/status"
	"github.com/linguachat/lingua/internal/store"
	intsync "github.com/linguachat/lingua/internal/sync"
	"github.com/linguachat/lingua/internal/translate"
	"github.com/linguachat/lingua/internal/wire"
)

// Params holds the resolved session configuration passed to the fx module.
type Params struct {
	SessionName string
}

// Module returns the fx module for the daemon, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideLogger,
			provideConfig,
			provideBus,
			provideStateMachine,
			provideLock,
			provideStore,
			provideNotifier,
			provideCredentials,
			provideDialer,
			provideManager,
			provideOutboundChannel,
			providePresenceTracker,
			provideTranslator,
			provideTranslationMachine,
			provideSyncEngine,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(session.LogPath(p.SessionName), p.SessionName)
}

func provideConfig(logger *zap.Logger) (*config.Config, error) {
	cfg, err := config.Load(session.ConfigPath())
	if errors.Is(err, fs.ErrNotExist) {
		logger.Info("no config file, using defaults")
		return config.Default(), nil
	}
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideStateMachine(b *bus.Bus) *status.Machine {
	return status.NewMachine(b)
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := session.EnsureDir(p.SessionName); err != nil {
		return nil, err
	}
	logger.Info("acquiring session lock", zap.String("session", p.SessionName))
	l, err := lock.Acquire(session.Dir(p.SessionName))
	if err != nil {
		return nil, err
	}
	logger.Info("session lock acquired")
	return l, nil
}

func provideStore(p Params, logger *zap.Logger) (*store.DB, error) {
	dbPath := session.AppDBPath(p.SessionName)
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, err
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if result.Changed {
		logger.Info("migrations applied", zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("store initialized", zap.String("path", dbPath))
	return db, nil
}

func provideNotifier(b *bus.Bus, logger *zap.Logger) notify.Notifier {
	return notify.New(b, logger)
}

func provideCredentials(p Params) creds.Accessor {
	return creds.NewFileAccessor(session.CredentialsPath(p.SessionName))
}

func provideDialer() wire.Dialer {
	return wire.WebsocketDialer{}
}

func provideManager(cfg *config.Config, d wire.Dialer, acc creds.Accessor, machine *status.Machine, b *bus.Bus, n notify.Notifier, logger *zap.Logger) *conn.Manager {
	return conn.NewManager(d, cfg.RelayURL, acc, machine, b, n, logger)
}

func provideOutboundChannel(m *conn.Manager, n notify.Notifier, logger *zap.Logger) *outbound.Channel {
	return outbound.NewChannel(m, n, logger)
}

func providePresenceTracker(b *bus.Bus, logger *zap.Logger) *presence.Tracker {
	return presence.NewTracker(b, logger)
}

func provideTranslator(cfg *config.Config) translate.Translator {
	return translate.NewHTTPTranslator(cfg.TranslatorURL)
}

func provideTranslationMachine(t translate.Translator, db *store.DB, b *bus.Bus, n notify.Notifier, logger *zap.Logger) *translate.Machine {
	return translate.NewMachine(t, db, b, n, logger)
}

func provideSyncEngine(db *store.DB, b *bus.Bus, logger *zap.Logger) *intsync.Engine {
	return intsync.NewEngine(db, b, logger)
}

func registerLifecycle(lc fx.Lifecycle, p Params, manager *conn.Manager, channel *outbound.Channel, tracker *presence.Tracker, machine *translate.Machine, engine *intsync.Engine, db *store.DB, lk *lock.Lock, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			// Consumers subscribe before the connection can publish.
			engine.Start()
			tracker.Start()
			machine.Start()

			manager.SetAckResolver(channel)
			manager.SetIdentity(p.SessionName)
			logger.Info("daemon started", zap.String("session", p.SessionName))
			return nil
		},
		OnStop: func(_ context.Context) error {
			manager.Teardown()
			machine.Stop()
			tracker.Stop()
			engine.Stop()
			if err := db.Close(); err != nil {
				logger.Warn("error closing store", zap.Error(err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			return nil
		},
	})
}
