package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"golang.org/x/sync/errgroup"

	"everkeep/internal/audit"
	"everkeep/internal/authorization"
	"everkeep/internal/consent"
	"everkeep/internal/gate"
	"everkeep/internal/platform/config"
	"everkeep/internal/platform/httpserver"
	"everkeep/internal/platform/logger"
	"everkeep/internal/platform/metrics"
	"everkeep/internal/platform/middleware"
	platformredis "everkeep/internal/platform/redis"
	"everkeep/internal/ratelimit"
	transport "everkeep/internal/transport/http"
	"everkeep/internal/voice"
	"everkeep/pkg/keylock"
	"everkeep/pkg/platform/tx"
)

func main() {
	// Missing .env is fine; containers get real env vars.
	_ = godotenv.Load()

	cfg := config.FromEnv()
	log := logger.New(cfg.Environment)
	slog.SetDefault(log)

	if err := run(cfg, log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := metrics.New()

	var (
		db           *sql.DB
		auditStore   audit.Store
		consentStore consent.Store
		voiceStore   voice.Store
		healthChecks []transport.HealthCheck
	)
	var txRunner tx.Runner = tx.PassthroughRunner{}
	if cfg.DatabaseURL != "" {
		var err error
		db, err = sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer db.Close()
		if err := db.PingContext(ctx); err != nil {
			return fmt.Errorf("ping database: %w", err)
		}
		auditStore = audit.NewPostgres(db)
		consentStore = consent.NewPostgres(db)
		voiceStore = voice.NewPostgres(db)
		txRunner = tx.NewSQLRunner(db)
		healthChecks = append(healthChecks, transport.HealthCheck{
			Name:  "postgres",
			Check: db.PingContext,
		})
		log.Info("using postgres stores")
	} else {
		auditStore = audit.NewInMemoryStore()
		consentStore = consent.NewInMemoryStore()
		voiceStore = voice.NewInMemoryStore()
		log.Info("using in-memory stores")
	}

	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	var limiter ratelimit.Limiter
	if redisClient != nil {
		defer redisClient.Close()
		limiter = ratelimit.NewRedisLimiter(redisClient.Client)
		healthChecks = append(healthChecks, transport.HealthCheck{
			Name:  "redis",
			Check: redisClient.Health,
		})
		log.Info("using redis rate limiter")
	} else {
		limiter = ratelimit.NewMemoryLimiter()
		log.Info("using in-memory rate limiter")
	}

	auditOpts := []audit.Option{audit.WithLogger(log), audit.WithMetrics(m)}
	if len(cfg.KafkaBrokers) > 0 {
		mirror, err := audit.NewKafkaMirror(cfg.KafkaBrokers, cfg.KafkaTopic, log)
		if err != nil {
			return fmt.Errorf("connect kafka: %w", err)
		}
		defer mirror.Close()
		auditOpts = append(auditOpts, audit.WithMirror(mirror))
		log.Info("audit mirror enabled", "topic", cfg.KafkaTopic)
	}
	audits := audit.New(auditStore, cfg.AuditAnonymizationKey, auditOpts...)

	consentLocks := keylock.New()
	consents := consent.New(consentStore, consent.DefaultVersions(), audits, consentLocks,
		consent.WithLogger(log), consent.WithTxRunner(txRunner))
	// Voice locks nest around consent locks, so they need their own shard
	// space.
	voiceLocks := keylock.New()
	voices := voice.New(voiceStore, audits, consents, limiter, voiceLocks,
		voice.WithLogger(log), voice.WithMetrics(m), voice.WithTxRunner(txRunner))
	workflow := authorization.New(consents, voices, audits,
		authorization.WithLogger(log), authorization.WithTxRunner(txRunner))
	gatekeeper := gate.New(consents, voices, audits,
		gate.WithLogger(log), gate.WithMetrics(m))

	router := transport.NewRouter(transport.Dependencies{
		Consents:       consents,
		Workflow:       workflow,
		Voices:         voices,
		Audits:         audits,
		Gate:           gatekeeper,
		Validator:      middleware.NewHMACValidator(cfg.JWTSigningKey),
		Logger:         log,
		Metrics:        m,
		RequestTimeout: cfg.RequestTimeout,
		Health:         healthChecks,
	})

	server := httpserver.New(cfg.Addr, router)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("listening", "addr", cfg.Addr, "environment", cfg.Environment)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
