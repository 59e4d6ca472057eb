package main

import (
	"context"
	"fmt"
	"os"
	"sync"

	"matchvault/internal/archive"
	"matchvault/internal/catalog"
	"matchvault/internal/config"
	"matchvault/internal/lcu"
	"matchvault/internal/metrics"
	"matchvault/internal/pvp"
	"matchvault/internal/queue"
	"matchvault/internal/session"

	"github.com/rs/zerolog"
)

// App wires the local client connection, the session tracker and the archiver
type App struct {
	conf    *config.Config
	logger  zerolog.Logger
	metrics *metrics.Metrics

	queue    *queue.Queue
	pvp      *pvp.Client
	archiver *archive.Archiver
	catalog  catalog.Store
	wsClient *lcu.WebSocketClient

	mu       sync.Mutex
	tracker  *session.Tracker
	runCtx   context.Context
	inFlight map[string]bool
	archives sync.WaitGroup
}

// NewApp builds the application from conf. Nothing connects until Run.
func NewApp(ctx context.Context, conf *config.Config, logger zerolog.Logger) (*App, error) {
	a := &App{
		conf:     conf,
		logger:   logger,
		metrics:  metrics.New(),
		runCtx:   ctx,
		inFlight: make(map[string]bool),
	}

	a.queue = queue.New(
		queue.WithInterval(conf.Queue.Interval),
		queue.WithCapacity(conf.Queue.Capacity),
		queue.WithObserver(a.metrics),
		queue.WithLogger(logger),
	)

	a.pvp = pvp.NewClient(conf.Region, a.queue, pvp.NewCapturer(conf.Paths.Errors),
		pvp.WithClientIdentity(conf.Client.Platform, conf.Client.Version),
		pvp.WithHistoryPageSize(conf.History.PageSize),
		pvp.WithMatchCache(conf.Cache.SizeMB*1024*1024),
		pvp.WithObserver(a.metrics),
		pvp.WithLogger(logger),
	)

	store, err := catalog.Open(ctx, conf.Catalog.Driver, conf.Catalog.DSN, conf.Paths.Out)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}
	a.catalog = store

	opts := []archive.Option{
		archive.WithObserver(a.metrics),
		archive.WithLogger(logger),
	}
	if store != nil {
		opts = append(opts, archive.WithCatalog(store))
		if n, err := store.Count(ctx); err == nil {
			logger.Info().Str("driver", conf.Catalog.Driver).Int("entries", n).Msg("catalog opened")
		}
	}
	a.archiver = archive.NewArchiver(a.pvp, archive.NewWriter(conf.Paths.Out, logger), opts...)

	a.wsClient = lcu.NewWebSocketClient(a.handleEvent, logger)
	return a, nil
}

// Run connects to the local client and archives finished matches until ctx
// is done, then waits for running archives to stop
func (a *App) Run(ctx context.Context) error {
	a.mu.Lock()
	a.runCtx = ctx
	a.mu.Unlock()

	if err := os.MkdirAll(a.conf.Paths.Out, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	go func() {
		if err := a.queue.Run(ctx); err != nil && ctx.Err() == nil {
			a.logger.Error().Err(err).Msg("request queue stopped")
		}
	}()

	if addr := a.conf.Metrics.Listen; addr != "" {
		go func() {
			if err := a.metrics.Serve(ctx, addr, a.logger); err != nil {
				a.logger.Error().Err(err).Msg("metrics server failed")
			}
		}()
	}

	lockfilePath := a.conf.Paths.Lockfile
	if lockfilePath == "" {
		path, err := lcu.DefaultLockfilePath()
		if err != nil {
			return err
		}
		lockfilePath = path
	}

	err := a.connectionLoop(ctx, lockfilePath)

	a.wsClient.Disconnect()
	a.archives.Wait()
	return err
}

// Close releases the catalog
func (a *App) Close() {
	if a.catalog != nil {
		if err := a.catalog.Close(); err != nil {
			a.logger.Warn().Err(err).Msg("failed to close catalog")
		}
		a.catalog = nil
	}
}
