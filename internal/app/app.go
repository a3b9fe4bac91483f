// Package app wires configuration, storage, and the routing core into a
// runnable server process.
package app

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/modelgate/modelgate/internal/config"
	"github.com/modelgate/modelgate/internal/db"
	"github.com/modelgate/modelgate/internal/eval"
	internalhttp "github.com/modelgate/modelgate/internal/http"
	"github.com/modelgate/modelgate/internal/logging"
	"github.com/modelgate/modelgate/internal/metrics"
	"github.com/modelgate/modelgate/internal/policy"
	"github.com/modelgate/modelgate/internal/quota"
	"github.com/modelgate/modelgate/internal/router"
	"github.com/modelgate/modelgate/internal/selector"
	"github.com/modelgate/modelgate/internal/tier"
)

// Migrate opens the database and runs schema migrations.
func Migrate(configPath string) error {
	cfg, errLoad := config.Load(configPath)
	if errLoad != nil {
		return errLoad
	}
	conn, errOpen := db.Open(cfg.DatabaseDSN)
	if errOpen != nil {
		return errOpen
	}
	return db.Migrate(conn)
}

// RunServer boots the routing server and blocks until ctx is cancelled or
// the listener fails.
func RunServer(ctx context.Context, configPath string) error {
	cfg, errLoad := config.Load(configPath)
	if errLoad != nil {
		return errLoad
	}
	logging.Setup(cfg.Log)

	conn, errOpen := db.Open(cfg.DatabaseDSN)
	if errOpen != nil {
		return errOpen
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		return errMigrate
	}

	policyStore := policy.NewStore(conn)
	if errActive := policyStore.LoadActive(ctx); errActive != nil {
		return fmt.Errorf("load active policy table: %w", errActive)
	}
	reconciler := policy.NewReconciler(policyStore, cfg.ReconcileInterval)
	reconciler.OnResult(func(err error) {
		status := "ok"
		if err != nil {
			status = "error"
		}
		metrics.PolicyReloads.WithLabelValues(status).Inc()
	})
	reconciler.Start(ctx)

	matcher := policy.NewMatcher(policyStore, policy.MergeStrategy(cfg.Routing.MergeStrategy))

	usageStore := buildUsageStore(cfg, conn)
	resolver := tier.NewGormResolver(conn, cfg.Quota.DefaultTier)
	ledger := quota.NewLedger(usageStore, resolver, buildLimits(cfg.Tiers), cfg.Quota.DefaultTier, quota.LimitResolution(cfg.Quota.LimitResolution))

	resetTask := quota.NewResetTask(usageStore, cfg.Quota.ResetHourUTC, cfg.Quota.UsageRetentionDays)
	resetTask.Start(ctx)

	registry := eval.NewRegistry(conn, eval.NewGormDatasetStore(conn))

	core := router.New(matcher, ledger, registry, buildCatalog(cfg.Providers), cfg.Routing.AccuracyThresholdPct, cfg.Routing.ClassifierMinAccuracy)

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	server := &internalhttp.Server{
		Router:      core,
		PolicyStore: policyStore,
		Ledger:      ledger,
		Registry:    registry,
		AdminSecret: cfg.AdminSecret,
	}
	server.Register(engine)

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if errShutdown := httpServer.Shutdown(shutdownCtx); errShutdown != nil {
			log.WithError(errShutdown).Warn("server shutdown")
		}
	}()

	log.Infof("listening on %s", cfg.ListenAddr)
	if errServe := httpServer.ListenAndServe(); errServe != nil && !errors.Is(errServe, http.ErrServerClosed) {
		return errServe
	}
	return nil
}

// buildUsageStore picks the quota backend: redis when an address is
// configured, otherwise the relational store.
func buildUsageStore(cfg *config.Config, conn *gorm.DB) quota.Store {
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		log.Infof("quota ledger backed by redis at %s", cfg.RedisAddr)
		return quota.NewRedisStore(client)
	}
	return quota.NewGormStore(conn)
}

func buildLimits(tiers map[string]config.TierLimits) map[string]quota.Limits {
	out := make(map[string]quota.Limits, len(tiers))
	for name, t := range tiers {
		out[name] = quota.Limits{
			Level1:     t.Level1DailyLimit,
			Level2:     t.Level2DailyLimit,
			Tokens:     t.DailyTokenLimit,
			CostMicros: usdToMicros(t.DailyCostUSD),
		}
	}
	return out
}

func buildCatalog(providers []config.Provider) []selector.Candidate {
	out := make([]selector.Candidate, 0, len(providers))
	for _, p := range providers {
		out = append(out, selector.Candidate{
			Provider:    p.Provider,
			Model:       p.Model,
			Accuracy:    p.Accuracy,
			CostPerUnit: p.CostPerUnit,
			LatencyMS:   p.LatencyMS,
			NoRetention: p.NoRetention,
		})
	}
	return out
}

func usdToMicros(usd float64) int64 {
	if usd <= 0 {
		return 0
	}
	return int64(math.Round(usd * 1_000_000))
}
