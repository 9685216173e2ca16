package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"faycoin_go/internal/domain"
	"faycoin_go/internal/engine"
	"faycoin_go/internal/event"
	"faycoin_go/internal/infra"
	"faycoin_go/internal/infra/broadcast"
	"faycoin_go/internal/infra/storage"
	"faycoin_go/internal/mirror"

	"github.com/jackc/pgx/v5/pgxpool"
)

const connectWait = 2 * time.Second

// Bootstrap orchestrates the startup sequence of one execution context.
type Bootstrap struct {
	Config  *infra.Config
	Store   domain.KVStore
	Metrics *infra.Metrics
	Bus     *event.Bus
	Sync    *engine.Synchronizer
	Mirror  *mirror.Observer

	// Hub backs channel.transport=memory. Set it before Initialize to share
	// one channel between several bootstraps in the same process.
	Hub *broadcast.Hub

	closeStore func() error
	pgPool     *pgxpool.Pool
}

// NewBootstrap creates a new Bootstrap instance
func NewBootstrap() *Bootstrap {
	return &Bootstrap{}
}

// Initialize loads configPath (a missing file falls back to defaults), then
// builds storage, the channel opener, the synchronizer and the optional mirror.
func (b *Bootstrap) Initialize(ctx context.Context, configPath string) error {
	// 1. Load Config
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	b.Config = cfg

	// 2. Setup Logger
	slog.SetDefault(infra.NewLogger(cfg))
	slog.Info("🚀 Bootstrapping Fay coin context...", slog.String("config", configPath))

	// 3. Initialize Storage
	if err := b.openStore(); err != nil {
		return err
	}
	slog.Info("✅ Storage initialized", slog.String("driver", cfg.Storage.Driver))

	// 4. Synchronizer
	if b.Metrics == nil {
		b.Metrics = infra.GlobalMetrics
	}
	if b.Bus == nil {
		b.Bus = event.NewBus()
	}
	b.Sync = engine.NewSynchronizer(ctx, engine.Options{
		Store:      b.Store,
		StorageKey: cfg.Storage.Key,
		Opener:     b.opener(),
		Channel:    cfg.Channel.Name,
		Bus:        b.Bus,
		Metrics:    b.Metrics,
	})

	// 5. Optional remote mirror
	if cfg.Mirror.Enabled {
		if err := b.startMirror(ctx); err != nil {
			b.Close()
			return err
		}
		slog.Info("✅ Balance mirror attached", slog.String("user", cfg.Identity.UserEmail))
	}

	return nil
}

func loadConfig(path string) (*infra.Config, error) {
	if path == "" {
		return infra.DefaultConfig(), nil
	}
	cfg, err := infra.LoadConfig(path)
	if errors.Is(err, domain.ErrConfigNotFound) {
		cfg = infra.DefaultConfig()
		return cfg, cfg.Validate()
	}
	return cfg, err
}

func (b *Bootstrap) openStore() error {
	switch b.Config.Storage.Driver {
	case infra.StorageMemory:
		b.Store = storage.NewMemory()
		b.closeStore = func() error { return nil }
	default:
		db, err := storage.NewSQLite(b.Config.Storage.Path)
		if err != nil {
			return fmt.Errorf("open storage: %w", err)
		}
		b.Store = db
		b.closeStore = db.Close
	}
	return nil
}

func (b *Bootstrap) opener() domain.TransportOpener {
	ch := b.Config.Channel
	switch ch.Transport {
	case infra.TransportMemory:
		if b.Hub == nil {
			b.Hub = broadcast.NewHub(ch.InboxSize)
		}
		return b.Hub.Open
	case infra.TransportWebSocket:
		// Short-lived CLI contexts would otherwise broadcast before the first connect.
		return broadcast.WebSocketOpener(ch.RelayURL, ch.InboxSize, connectWait)
	default:
		return nil
	}
}

func (b *Bootstrap) startMirror(ctx context.Context) error {
	m := b.Config.Mirror
	pool, err := mirror.NewPool(ctx, m.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect mirror database: %w", err)
	}
	b.pgPool = pool

	if m.Migrate {
		if err := mirror.RunMigrations(ctx, pool); err != nil {
			return fmt.Errorf("mirror migrations: %w", err)
		}
	}

	b.Mirror = mirror.NewObserver(mirror.NewBalances(pool), b.Config.Identity.UserEmail, b.Sync.Origin(), m.Workers)
	b.Sync.AddListener(b.Mirror)
	return nil
}

// Close tears everything down in reverse order. Pending writes are drained first.
func (b *Bootstrap) Close() error {
	var errs []error
	if b.Sync != nil {
		if b.Mirror != nil {
			b.Sync.RemoveListener(b.Mirror)
		}
		errs = append(errs, b.Sync.Close())
	}
	if b.Mirror != nil {
		b.Mirror.Close()
	}
	if b.pgPool != nil {
		b.pgPool.Close()
	}
	if b.closeStore != nil {
		errs = append(errs, b.closeStore())
	}
	slog.Info("👋 Context shut down")
	return errors.Join(errs...)
}
