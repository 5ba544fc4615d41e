package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/pbaille/winewize/internal/cache"
	"github.com/pbaille/winewize/internal/config"
	"github.com/pbaille/winewize/internal/pairing"
	"github.com/pbaille/winewize/internal/scan"
	"github.com/pbaille/winewize/internal/session"
	"github.com/pbaille/winewize/internal/sommelier"
	"github.com/pbaille/winewize/internal/store"
	"github.com/pbaille/winewize/pkg/logger"
)

// app holds the components shared by every command
type app struct {
	cfg       *config.Config
	store     *store.Store
	cache     cache.Cache
	memory    *cache.Memory
	sommelier *sommelier.Client
	log       *zap.Logger
	closers   []func() error
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}
	if dbPath != "" {
		cfg.Database.Path = dbPath
	}

	if err := logger.Init(cfg.Server.LogLevel, cfg.Server.LogFormat); err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	a := &app{cfg: cfg, log: logger.Logger()}
	logger.Debug("config loaded", zap.String("database", cfg.Database.Path), zap.String("addr", cfg.Server.Addr))

	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	a.store, err = store.New(cfg.Database.Path)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, a.store.Close)

	ttls := map[string]time.Duration{
		cache.NamespacePairings:    cfg.Cache.PairingTTL,
		cache.NamespaceExtractions: cfg.Cache.ExtractionTTL,
	}
	if cfg.HasRedis() {
		rc, err := cache.NewRedis(ctx, cache.RedisOptions{
			Addr:       cfg.Cache.Redis.Address,
			Password:   cfg.Cache.Redis.Password,
			DB:         cfg.Cache.Redis.DB,
			DefaultTTL: cfg.Cache.DefaultTTL,
			TTLs:       ttls,
			Logger:     logger.WithModule("cache"),
		})
		if err != nil {
			a.close()
			return nil, err
		}
		a.cache = rc
		a.closers = append(a.closers, rc.Close)
		logger.Info("using redis cache", zap.String("address", cfg.Cache.Redis.Address))
	} else {
		opts := []cache.MemoryOption{cache.WithLogger(logger.WithModule("cache"))}
		for ns, ttl := range ttls {
			opts = append(opts, cache.WithNamespaceTTL(ns, ttl))
		}
		a.memory = cache.NewMemory(cfg.Cache.DefaultTTL, opts...)
		a.cache = a.memory
	}

	if cfg.HasAnthropic() {
		a.sommelier, err = sommelier.New(sommelier.Options{
			APIKey:    cfg.Anthropic.APIKey,
			BaseURL:   cfg.Anthropic.BaseURL,
			Model:     cfg.Anthropic.Model,
			MaxTokens: cfg.Anthropic.MaxTokens,
			Timeout:   cfg.Anthropic.Timeout,
			Logger:    logger.WithModule("sommelier"),
		})
		if err != nil {
			a.close()
			return nil, err
		}
	} else {
		logger.Warn("ANTHROPIC_API_KEY not set; scanning and new pairings are disabled")
	}

	return a, nil
}

func (a *app) close() {
	var err error
	for i := len(a.closers) - 1; i >= 0; i-- {
		err = multierr.Append(err, a.closers[i]())
	}
	if err != nil {
		logger.Warn("shutdown", zap.Error(err))
	}
	_ = logger.Sync()
}

// sessions returns a session manager. The server keeps session state in
// memory; one-shot CLI commands keep it in the database so it outlives the
// process.
func (a *app) sessions(durable bool) *session.Manager {
	var short session.Storage = a.store
	if !durable {
		short = session.NewMemoryStorage(a.cfg.Session.TTL)
	}
	return session.NewManager(short, a.store, logger.WithModule("session"))
}

// scanner is nil when no AI provider is configured
func (a *app) scanner() *scan.Scanner {
	if a.sommelier == nil {
		return nil
	}
	return scan.New(a.sommelier, scan.Options{
		BatchSize: a.cfg.Scan.BatchSize,
		Cache:     a.cache,
		Logger:    logger.WithModule("scan"),
	})
}

func (a *app) pairing(sessions *session.Manager) *pairing.Service {
	var advisor pairing.Advisor
	if a.sommelier != nil {
		advisor = a.sommelier
	}
	return pairing.NewService(advisor, sessions, a.cache, a.store, logger.WithModule("pairing"))
}
