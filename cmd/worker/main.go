// Package main provides the HTTP worker entry point for wallroll.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	gormlogger "gorm.io/gorm/logger"

	"github.com/thebtf/wallroll/internal/config"
	"github.com/thebtf/wallroll/internal/db/gorm"
	"github.com/thebtf/wallroll/internal/dialog"
	"github.com/thebtf/wallroll/internal/metrics"
	"github.com/thebtf/wallroll/internal/prompts"
	"github.com/thebtf/wallroll/internal/session"
	"github.com/thebtf/wallroll/internal/watcher"
	"github.com/thebtf/wallroll/internal/worker"
)

// Version is set at build time via ldflags.
var Version = "dev"

func main() {
	dataDir := flag.String("data-dir", "", "Data directory (default: ~/.wallroll)")
	messages := flag.String("messages", "", "YAML file overriding reply wording")
	port := flag.Int("port", 0, "Listen port (overrides settings)")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	if *dataDir != "" {
		os.Setenv("WALLROLL_DATA_DIR", *dataDir)
	}

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	if err := config.EnsureAll(); err != nil {
		log.Fatal().Err(err).Msg("Failed to ensure data directory")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Warn().Err(err).Msg("Failed to load config, using defaults")
		cfg = config.Default()
	}
	if *messages != "" {
		cfg.MessagesPath = *messages
	}
	if *port > 0 {
		cfg.WorkerPort = *port
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	setLogLevel(cfg.LogLevel, *debug)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	catalog, err := prompts.Load(cfg.MessagesPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.MessagesPath).Msg("Failed to load messages")
	}

	ctrl := dialog.NewController(dialog.Options{
		Catalog:       catalog,
		RestartTokens: cfg.RestartTokens,
		MaxOpenings:   cfg.MaxOpenings,
	})

	g, gctx := errgroup.WithContext(ctx)

	var store session.Store
	switch cfg.SessionBackend {
	case config.BackendRedis:
		redisStore, err := session.NewRedisStore(ctx, session.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			TTL:      cfg.SessionTTL,
		})
		if err != nil {
			log.Fatal().Err(err).Str("addr", cfg.RedisAddr).Msg("Failed to connect to Redis")
		}
		defer redisStore.Close()
		store = redisStore
	default:
		memStore := session.NewMemoryStore(session.MemoryConfig{
			TTL:         cfg.SessionTTL,
			MaxSessions: cfg.MaxSessions,
		})
		g.Go(func() error {
			return memStore.Run(gctx, session.CleanupInterval)
		})
		store = memStore
	}
	log.Info().Str("backend", cfg.SessionBackend).Dur("ttl", cfg.SessionTTL).Msg("Session store ready")

	manager := session.NewManager(store, ctrl)

	var stats *gorm.ChatStatStore
	if cfg.StatsDriver != config.StatsDisabled {
		dbStore, err := gorm.NewStore(gorm.Config{
			Driver:   cfg.StatsDriver,
			Path:     cfg.StatsDSN,
			DSN:      cfg.StatsDSN,
			MaxConns: cfg.MaxConns,
			LogLevel: gormlogger.Silent,
		})
		if err != nil {
			log.Fatal().Err(err).Str("driver", cfg.StatsDriver).Msg("Failed to open statistics database")
		}
		defer dbStore.Close()
		stats = gorm.NewChatStatStore(dbStore)
	}

	var recorder *metrics.PrometheusRecorder
	if cfg.MetricsEnabled {
		recorder = metrics.NewPrometheusRecorder()
	}

	svc := worker.NewService(worker.Options{
		Version: Version,
		Config:  cfg,
		Manager: manager,
		Stats:   stats,
		Metrics: recorder,
	})

	startWatchers(gctx, g, cfg, ctrl)

	g.Go(func() error {
		return svc.Run(gctx)
	})

	if err := g.Wait(); err != nil {
		log.Fatal().Err(err).Msg("Worker stopped with error")
	}
	log.Info().Msg("Worker stopped")
}

// startWatchers reloads the message catalog and reports settings edits.
func startWatchers(ctx context.Context, g *errgroup.Group, cfg *config.Config, ctrl *dialog.Controller) {
	if cfg.MessagesPath != "" {
		w, err := watcher.New(cfg.MessagesPath, func(path string) {
			cat, err := prompts.Load(path)
			if err != nil {
				log.Error().Err(err).Str("path", path).Msg("Keeping previous messages, reload failed")
				return
			}
			ctrl.SetCatalog(cat)
			log.Info().Str("path", path).Msg("Messages reloaded")
		})
		if err != nil {
			log.Warn().Err(err).Msg("Failed to create messages watcher")
		} else {
			g.Go(func() error { return w.Run(ctx) })
		}
	}

	w, err := watcher.New(config.SettingsPath(), func(path string) {
		log.Warn().Str("path", path).Msg("Settings changed, restart the worker to apply them")
	})
	if err != nil {
		log.Warn().Err(err).Msg("Failed to create settings watcher")
		return
	}
	g.Go(func() error { return w.Run(ctx) })
}

func setLogLevel(name string, debug bool) {
	level, err := zerolog.ParseLevel(name)
	if err != nil || name == "" {
		level = zerolog.InfoLevel
	}
	if debug {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)
}
