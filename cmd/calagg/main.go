package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/arborcal/calagg/internal/adapter"
	"github.com/arborcal/calagg/internal/adapter/caldavadapter"
	"github.com/arborcal/calagg/internal/adapter/icaladapter"
	"github.com/arborcal/calagg/internal/config"
	"github.com/arborcal/calagg/internal/eventcache"
	"github.com/arborcal/calagg/internal/fetch"
	"github.com/arborcal/calagg/internal/health"
	"github.com/arborcal/calagg/internal/logging"
	"github.com/arborcal/calagg/internal/manager"
	"github.com/arborcal/calagg/internal/model"
	"github.com/arborcal/calagg/internal/status"
	"github.com/arborcal/calagg/internal/storage/sqlite"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := logging.New(cfg.LogLevel)

	store, err := sqlite.New(cfg.DatabasePath, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("persistent index init failed")
	}

	cache := eventcache.New(store, cfg.Cache.MaxMemoryEvents, cfg.Cache.MemoryTTL, cfg.Cache.PersistentTTL, cfg.Cache.CleanupInterval)
	defer cache.Close()

	registry := adapter.NewRegistry()
	registry.Register(icaladapter.New(nil))
	registry.Register(caldavadapter.New(nil))

	coord := fetch.New(fetch.Config{
		MaxConcurrentFetches: cfg.Fetch.MaxConcurrentFetches,
		FetchTimeout:         cfg.Fetch.FetchTimeout,
		RetryAttempts:        cfg.Fetch.RetryAttempts,
		RetryDelay:           cfg.Fetch.RetryDelay,
	})

	mgr := manager.New(registry, cache, coord)
	monitor := health.New(mgr, registry, coord)
	statusPub := status.NewPublisher()
	statusPub.AddStatusListener(func(s status.Snapshot) {
		logger.Info().
			Str("server_status", string(s.ServerStatus)).
			Int("sources", len(s.Sources)).
			Msg("status snapshot")
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Server.AutoStart {
		go runRefreshLoop(ctx, mgr, monitor, statusPub, cfg.Server.CacheTimeout, logger)
	}

	logger.Info().Int("port", cfg.Server.Port).Msg("core ready; external bridge owns the listening socket")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info().Msg("shutting down")
}

// runRefreshLoop periodically refreshes every enabled source and
// publishes a status snapshot, standing in for the external HTTP bridge's
// own scheduling until one is wired up.
func runRefreshLoop(ctx context.Context, mgr *manager.Manager, monitor *health.Monitor, pub *status.Publisher, interval time.Duration, logger zerolog.Logger) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			refreshSources(ctx, mgr, logger)
			publishSnapshot(ctx, mgr, monitor, pub)
		}
	}
}

// refreshSources refreshes every enabled source's usual window, logging
// (rather than propagating) per-source failures so one broken source
// never stops the rest of the tick from refreshing.
func refreshSources(ctx context.Context, mgr *manager.Manager, logger zerolog.Logger) {
	now := time.Now()
	usualRange := model.DateRange{Start: now.AddDate(0, 0, -30), End: now.AddDate(1, 0, 0)}
	for _, s := range mgr.GetSources() {
		if !s.Enabled {
			continue
		}
		if _, err := mgr.RefreshSource(ctx, s.ID, usualRange); err != nil {
			logger.Warn().Err(err).Str("source_id", s.ID).Msg("refresh failed")
		}
	}
}

func publishSnapshot(ctx context.Context, mgr *manager.Manager, monitor *health.Monitor, pub *status.Publisher) {
	healthResults := monitor.GetSourcesHealth(ctx)
	healthByID := make(map[string]*model.HealthStatus, len(healthResults))
	for _, h := range healthResults {
		if h != nil {
			healthByID[h.SourceID] = h
		}
	}

	snapshot := status.Snapshot{Timestamp: time.Now(), ServerStatus: status.ServerRunning}
	for _, s := range mgr.GetSources() {
		entry := status.SourceSnapshot{ID: s.ID, Name: s.Name, Status: string(s.Status)}
		if h, ok := healthByID[s.ID]; ok {
			entry.LastSync = &h.LastCheck
			entry.Error = h.ErrorMessage
		}
		snapshot.Sources = append(snapshot.Sources, entry)
	}
	pub.Publish(snapshot)
}
