package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/redis/go-redis/v9"

	"github.com/agencyos/leadpool/internal/api"
	"github.com/agencyos/leadpool/internal/config"
	"github.com/agencyos/leadpool/internal/domain"
	"github.com/agencyos/leadpool/internal/pkg/distlock"
	"github.com/agencyos/leadpool/internal/pkg/logger"
	"github.com/agencyos/leadpool/internal/ratelimit"
	"github.com/agencyos/leadpool/internal/repository/postgres"
	"github.com/agencyos/leadpool/internal/scoring"
	"github.com/agencyos/leadpool/internal/service/allocator"
	"github.com/agencyos/leadpool/internal/service/jit"
	"github.com/agencyos/leadpool/internal/service/ledger"
	"github.com/agencyos/leadpool/internal/service/pool"
	"github.com/agencyos/leadpool/internal/worker"
)

// checkPortAvailable verifies that the target port is not already in use,
// so a stale process never silently shadows the real server.
func checkPortAvailable(host string, port int) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("port %d is already in use (addr %s): %v", port, addr, err)
	}
	ln.Close()
	return nil
}

func main() {
	cfg, err := config.LoadFromEnv("config/config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger.SetLevel(logger.ParseLevel(cfg.LogLevel))

	if err := checkPortAvailable(cfg.Server.Host, cfg.Server.Port); err != nil {
		log.Fatalf("Pre-flight failed: %v", err)
	}

	if cfg.Database.URL == "" {
		log.Fatal("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(time.Duration(cfg.Database.ConnMaxLifetime) * time.Minute)
	if err := db.Ping(); err != nil {
		log.Fatalf("Failed to ping database: %v", err)
	}
	defer db.Close()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Fatalf("Failed to ping redis: %v", err)
	}
	defer redisClient.Close()

	// Repositories
	leadRepo := postgres.NewLeadRepo(db)
	assignmentRepo := postgres.NewAssignmentRepo(db)
	scoreRepo := postgres.NewScoreRepo(db)
	reportRepo := postgres.NewReportRepo(db)

	// Services
	poolSvc := pool.NewService(leadRepo)
	ledgerSvc := ledger.NewService(assignmentRepo)
	allocSvc := allocator.NewService(poolSvc, ledgerSvc, allocator.Config{
		MaxBatchSize:    cfg.Allocator.MaxBatchSize,
		OverfetchFactor: cfg.Allocator.OverfetchFactor,
	})

	registry := ratelimit.NewRegistry(redisClient)
	limiter := ratelimit.NewLimiter(redisClient)

	jitCfg := jit.Config{
		MinTouchGap:     cfg.Cadence.MinTouchGap(),
		ChannelCooldown: cooldowns(cfg.Cadence.CooldownDays),
	}
	validator := jit.NewValidator(poolSvc, ledgerSvc, scoreRepo, registry, limiter, jitCfg)

	weights := scoring.Weights{
		Completeness: cfg.Scoring.CompletenessWeight,
		Authority:    cfg.Scoring.AuthorityWeight,
		CompanyFit:   cfg.Scoring.CompanyFitWeight,
		Timing:       cfg.Scoring.TimingWeight,
		Risk:         cfg.Scoring.RiskWeight,
	}

	// Background sweeps
	rescorer := worker.NewRescorer(reportRepo, scoreRepo, poolSvc, scoreRepo,
		distlock.NewLock(redisClient, db, "rescore-sweep", 30*time.Minute),
		worker.RescoreConfig{
			Interval:    time.Duration(cfg.Workers.RescoreIntervalHours) * time.Hour,
			StaleAfter:  time.Duration(cfg.Workers.RescoreStaleAfterDays) * 24 * time.Hour,
			BatchSize:   cfg.Workers.RescoreBatchSize,
			Concurrency: cfg.Workers.RescoreConcurrency,
			Weights:     weights,
		})
	go rescorer.Run(ctx)

	graduator := worker.NewWarmupGraduator(registry,
		distlock.NewLock(redisClient, db, "warmup-sweep", 10*time.Minute),
		time.Duration(cfg.Workers.WarmupSweepMinutes)*time.Minute)
	go graduator.Run(ctx)

	if len(cfg.TopUp.Targets) > 0 {
		topup := worker.NewTopUp(reportRepo, allocSvc,
			distlock.NewLock(redisClient, db, "topup-sweep", 10*time.Minute),
			time.Duration(cfg.TopUp.SweepMinutes)*time.Minute, cfg.TopUp.Targets)
		go topup.Run(ctx)
	}

	// HTTP server
	handlers := api.NewHandlers(poolSvc, ledgerSvc, allocSvc, validator,
		scoreRepo, registry, limiter, reportRepo, weights)
	server := api.NewServer(handlers)

	go func() {
		addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		logger.Info("server listening", "addr", addr)
		if err := server.ListenAndServe(addr); err != nil {
			logger.Error("server stopped", "error", err.Error())
			cancel()
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case s := <-sig:
		logger.Info("shutting down", "signal", s.String())
	case <-ctx.Done():
	}

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err.Error())
	}
}

func cooldowns(days map[string]int) map[domain.Channel]time.Duration {
	out := make(map[domain.Channel]time.Duration, len(days))
	for ch, d := range days {
		out[domain.Channel(ch)] = time.Duration(d) * 24 * time.Hour
	}
	return out
}
