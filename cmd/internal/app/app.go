// Package app wires the Gold Coast Financial server runtime: config,
// logging, HTTP routes, the websocket fan-out gateway, and the quote and
// training services.
//
// It is intentionally small and deterministic to keep CI gates strict and
// behavior predictable.
package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/guy4carbs/goldcoastfinancial-sub000/cmd/internal/notify"
	"github.com/guy4carbs/goldcoastfinancial-sub000/cmd/internal/quote"
	"github.com/guy4carbs/goldcoastfinancial-sub000/cmd/internal/realtime"
	"github.com/guy4carbs/goldcoastfinancial-sub000/cmd/internal/training"
	"github.com/guy4carbs/goldcoastfinancial-sub000/cmd/internal/webapi"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
)

// Store is a small app-level lifecycle abstraction.
// It exists to allow DB-backed resources to be closed gracefully.
type Store interface {
	Close(ctx context.Context) error
}

// nopStore is used for in-memory store mode.
type nopStore struct{}

func (nopStore) Close(_ context.Context) error { return nil }

// App is the server runtime: it owns HTTP server wiring and the
// dependencies of the realtime gateway and domain services.
type App struct {
	cfg Config
	log Logger

	store Store

	dbPool    *pgxpool.Pool
	dbEnabled bool

	ws  *realtime.Gateway
	api *webapi.Handler

	bus   notify.Bus
	redis *redis.Client

	metrics *prometheus.Registry
}

// New constructs a fully wired App instance from config and logger.
func New(cfg Config, log Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel)
	}

	st, dbPool, dbEnabled, stores, err := newStore(context.Background(), cfg, log)
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	registry := realtime.NewRegistry(log)
	realtime.RegisterSessionsGauge(reg, registry)
	ws := realtime.NewGateway(log, registry, stores.chat, realtime.NewMetrics(reg), realtime.GatewayOptions{
		WriteTimeout:     cfg.WSWriteTimeout,
		ReadIdleTimeout:  cfg.WSReadIdleTimeout,
		SendQueueSize:    cfg.WSSendQueueSize,
		HeartbeatEvery:   cfg.WSHeartbeatEvery,
		HeartbeatTimeout: cfg.WSHeartbeatTimeout,
		RateFrames:       cfg.WSRateFrames,
		RateWindow:       cfg.WSRateWindow,
		OriginRequired:   cfg.WSOriginRequired,
		AllowedOrigins:   cfg.WSAllowedOrigins,
		DevInsecure:      cfg.WSDevInsecure,
	})

	// Notifications ride the same websocket connections the chat frames
	// use; the broadcaster is the direct-delivery sink for both.
	var bus notify.Bus
	if cfg.NATSURL != "" {
		nb, err := notify.NewNATSBus(log, cfg.NATSURL, ws.Broadcaster())
		if err != nil {
			_ = st.Close(context.Background())
			return nil, err
		}
		bus = nb
		log.Info("notify.bus.nats", "url", cfg.NATSURL)
	} else {
		bus = notify.NewLocalBus(log, ws.Broadcaster())
		log.Info("notify.bus.local")
	}

	var redisClient *redis.Client
	var leaderboard training.Leaderboard
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		leaderboard = training.NewRedisLeaderboard(redisClient)
		log.Info("training.leaderboard.redis", "addr", cfg.RedisAddr)
	} else {
		leaderboard = training.NewStoreLeaderboard(stores.training)
		log.Info("training.leaderboard.store")
	}

	quoteSvc := quote.NewService(log, stores.quote)
	trainingSvc := training.NewService(log, stores.training, leaderboard, bus)

	return &App{
		cfg:       cfg,
		log:       log,
		store:     st,
		dbPool:    dbPool,
		dbEnabled: dbEnabled,
		ws:        ws,
		api:       webapi.NewHandler(log, quoteSvc, trainingSvc),
		bus:       bus,
		redis:     redisClient,
		metrics:   reg,
	}, nil
}

// Run starts the HTTP server and blocks until context cancellation or fatal server error.
func (a *App) Run(ctx context.Context) error {
	mux := http.NewServeMux()

	registerHTTP(mux, a.log, a.cfg, a.dbPool, a.dbEnabled, a.ws, a.api, a.metrics)

	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           WithRequestLogging(mux, a.log),
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 15*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.WriteTimeout, 15*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
	}

	a.log.Info("server.start", "addr", a.cfg.HTTPAddr, "db_enabled", a.dbEnabled)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		a.log.Info("server.stop", "reason", "context_done")
	case err := <-errCh:
		a.log.Error("server.fail", "err", err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error("server.shutdown.fail", "err", err)
		return err
	}

	if err := a.bus.Close(); err != nil {
		a.log.Error("notify.bus.close.fail", "err", err)
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.log.Error("redis.close.fail", "err", err)
		}
	}
	if err := a.store.Close(shutdownCtx); err != nil {
		a.log.Error("store.close.fail", "err", err)
	}

	a.log.Info("server.stopped")
	return nil
}

func nonZeroDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func nonZeroInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// domainStores groups the per-domain persistence handles built by newStore.
type domainStores struct {
	chat     realtime.ChatStore
	quote    quote.Store
	training training.ProgressStore
}

// newStore decides between Postgres-backed persistence and in-memory dev stores.
func newStore(ctx context.Context, cfg Config, log Logger) (Store, *pgxpool.Pool, bool, domainStores, error) {
	if cfg.DatabaseURL == "" {
		log.Info("db.disabled.inmemory_store")
		return nopStore{}, nil, false, domainStores{
			chat:     realtime.NewInMemoryChatStore(),
			quote:    quote.NewInMemoryStore(),
			training: training.NewInMemoryStore(),
		}, nil
	}

	pool, err := NewDBPool(ctx, cfg)
	if err != nil {
		return nil, nil, false, domainStores{}, err
	}

	log.Info("db.enabled.postgres_store")

	// Ownership model:
	// - app owns pool lifecycle
	// - store Close() methods are no-ops (pool is owned here)
	chatStore, err := realtime.NewPostgresChatStore(pool)
	if err != nil {
		pool.Close()
		return nil, nil, false, domainStores{}, err
	}
	quoteStore, err := quote.NewPostgresStore(pool)
	if err != nil {
		pool.Close()
		return nil, nil, false, domainStores{}, err
	}
	trainingStore, err := training.NewPostgresStore(pool)
	if err != nil {
		pool.Close()
		return nil, nil, false, domainStores{}, err
	}

	stores := domainStores{chat: chatStore, quote: quoteStore, training: trainingStore}
	return dbStore{pool: pool, stores: stores}, pool, true, stores, nil
}

type dbStore struct {
	pool   *pgxpool.Pool
	stores domainStores
}

func (s dbStore) Close(_ context.Context) error {
	if s.stores.chat != nil {
		_ = s.stores.chat.Close()
	}
	if s.stores.quote != nil {
		_ = s.stores.quote.Close()
	}
	if s.stores.training != nil {
		_ = s.stores.training.Close()
	}
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}
