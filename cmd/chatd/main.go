// Command chatd runs the DriftThreads moderation service: the HTTP
// submission API, the in-process retention purger, and the metrics
// endpoint.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/DriftThreads/DriftThreads/internal/bancache"
	"github.com/DriftThreads/DriftThreads/internal/chat"
	"github.com/DriftThreads/DriftThreads/internal/config"
	"github.com/DriftThreads/DriftThreads/internal/httpapi"
	"github.com/DriftThreads/DriftThreads/internal/logging"
	"github.com/DriftThreads/DriftThreads/internal/messaging"
	"github.com/DriftThreads/DriftThreads/internal/metrics"
	"github.com/DriftThreads/DriftThreads/internal/policy"
	"github.com/DriftThreads/DriftThreads/internal/profanity"
	"github.com/DriftThreads/DriftThreads/internal/purge"
	"github.com/DriftThreads/DriftThreads/internal/store"
	"github.com/DriftThreads/DriftThreads/internal/store/postgres"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	logger := logging.New(cfg.LogLevel)

	// --- Postgres ---
	db, err := postgres.New(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect postgres")
	}
	defer db.Close()
	if err := db.Migrate(); err != nil {
		logger.Fatal().Err(err).Msg("apply migrations")
	}

	// --- Abuse policy ---
	pol := policy.New(policy.Config{
		Cooldown:    cfg.Cooldown,
		BurstWindow: cfg.BurstWindow,
		BurstLimit:  cfg.BurstLimit,
		BanDuration: cfg.BanDuration,
	}, db)

	// --- Redis ban cache (optional) ---
	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			logger.Fatal().Err(err).Str("addr", cfg.RedisAddr).Msg("connect redis")
		}
		defer rdb.Close()
		pol.UseCache(bancache.New(rdb, logger))
		logger.Info().Str("addr", cfg.RedisAddr).Msg("ban cache enabled")
	}

	// --- NATS events (optional) ---
	var pub *messaging.NATSPublisher
	if cfg.NATSURL != "" {
		natsCfg := messaging.DefaultNATSConfig()
		natsCfg.URL = cfg.NATSURL
		natsCfg.Name = "driftthreads-chatd"
		pub, err = messaging.NewNATSPublisher(natsCfg, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("connect nats")
		}
		defer pub.Close()
	}

	pol.OnBanIssued(func(ban *store.BanRecord) {
		metrics.BansIssuedTotal.Inc()
		pub.BanIssued(ban)
		logger.Info().
			Str("user_id", ban.UserID).
			Time("until", ban.Until).
			Str("reason", ban.Reason).
			Msg("ban issued")
	})

	// --- Sanitizer ---
	loadCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	sanitizer, err := profanity.NewSanitizer(loadCtx, db, nil)
	cancel()
	if err != nil {
		logger.Fatal().Err(err).Msg("load profanity ruleset")
	}
	logger.Info().Int("rules", sanitizer.RuleCount()).Msg("profanity ruleset loaded")

	// --- Admission service ---
	var events chat.Publisher
	if pub != nil {
		events = pub
	}
	svc := chat.NewService(db, db, pol, sanitizer, events, logger)

	// --- Retention purger ---
	purger := purge.New(db, db, cfg.RetentionHorizon, cfg.PurgeInterval, logger)
	runCtx, stopPurger := context.WithCancel(context.Background())
	go purger.Run(runCtx)

	// --- HTTP server ---
	api := httpapi.New(svc, purger, sanitizer, logger)
	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           api.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info().
			Str("addr", cfg.ListenAddr).
			Dur("cooldown", cfg.Cooldown).
			Dur("burst_window", cfg.BurstWindow).
			Int("burst_limit", cfg.BurstLimit).
			Dur("ban_duration", cfg.BanDuration).
			Dur("retention", cfg.RetentionHorizon).
			Msg("chatd listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server")
		}
	}()

	// Graceful shutdown.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info().Str("signal", sig.String()).Msg("shutting down")

	stopPurger()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown")
	}
}
