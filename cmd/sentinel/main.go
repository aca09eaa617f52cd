package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/sentinelops/sentinel/internal/admin"
	"github.com/sentinelops/sentinel/internal/audit"
	"github.com/sentinelops/sentinel/internal/config"
	"github.com/sentinelops/sentinel/internal/detector"
	"github.com/sentinelops/sentinel/internal/enforce"
	"github.com/sentinelops/sentinel/internal/ledger"
	"github.com/sentinelops/sentinel/internal/monitor"
	"github.com/sentinelops/sentinel/internal/notify"
	"github.com/sentinelops/sentinel/internal/response"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync() //nolint:errcheck

	if err := run(logger); err != nil {
		logger.Fatal("sentinel exited with error", zap.Error(err))
	}
}

func run(logger *zap.Logger) error {
	cfg, err := config.Load("configs", "/etc/sentinel")
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Audit backend ────────────────────────────────────────────────────────
	var auditLog audit.Log
	var pool *pgxpool.Pool
	switch cfg.AuditBackend {
	case "postgres":
		pool, err = pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("connect to postgres: %w", err)
		}
		defer pool.Close()
		if err := pool.Ping(ctx); err != nil {
			return fmt.Errorf("ping postgres: %w", err)
		}
		pg := audit.NewPostgresLog(pool, logger)
		if err := pg.Init(ctx); err != nil {
			return fmt.Errorf("init audit log: %w", err)
		}
		auditLog = pg
		logger.Info("audit log: postgres")
	default:
		auditLog = audit.NewMemoryLog()
		logger.Info("audit log: in-memory (records are lost on restart)")
	}

	if err := auditLog.Verify(ctx); err != nil {
		logger.Warn("audit log integrity check FAILED", zap.Error(err))
	} else {
		n, _ := auditLog.Len(ctx)
		root, _ := auditLog.Root(ctx)
		logger.Info("audit log verified", zap.Int("records", n), zap.String("root", root))
	}

	// ── Enforcement ──────────────────────────────────────────────────────────
	var enforcer enforce.Adapter
	if cfg.EnforcementMode == "http" {
		enforcer = enforce.NewHTTPAdapter(cfg.EnforcementURL, cfg.EnforcementAPIKey, cfg.EnforceTimeout)
		logger.Info("enforcement: http", zap.String("url", cfg.EnforcementURL))
		// Blocks live only in memory. A restart forgets them while the
		// enforcement point keeps denying, until an operator clears the rules.
		logger.Warn("block ledger is in-memory; enforcement rules survive a restart unreconciled")
	} else {
		enforcer = enforce.NewNoopAdapter(logger)
		logger.Info("enforcement: noop (set enforcement.mode=http to enable)")
	}

	// ── Notifiers ────────────────────────────────────────────────────────────
	channels := []notify.Notifier{notify.NewConsoleNotifier(logger)}
	if cfg.SMTPHost != "" {
		minLevel, err := cfg.SMTPMinRiskLevel()
		if err != nil {
			return err
		}
		channels = append(channels, notify.NewSMTPNotifier(
			cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword,
			cfg.SMTPFrom, cfg.SMTPRecipients, minLevel,
		))
		logger.Info("notifier: smtp", zap.String("host", cfg.SMTPHost))
	}
	if cfg.WebhookURL != "" {
		channels = append(channels, notify.NewWebhookNotifier(
			cfg.WebhookURL, cfg.WebhookSecret, 10*time.Second, logger,
		))
		logger.Info("notifier: webhook", zap.String("url", cfg.WebhookURL))
	}
	notifier := notify.NewMulti(channels...)

	// ── Control loop ─────────────────────────────────────────────────────────
	counters := audit.NewCounters(time.Now())
	blockLedger := ledger.New(time.Now)
	engine := response.New(blockLedger, enforcer, notifier, auditLog, counters, cfg.BlockTimeout, logger)

	network := detector.NewHTTPProvider(cfg.NetworkDetectorURL, cfg.DetectorTimeout)
	var behavior detector.BehaviorProvider
	if cfg.BehaviorDetectorURL != "" {
		behavior = detector.NewHTTPProvider(cfg.BehaviorDetectorURL, cfg.DetectorTimeout)
	}
	collector := detector.NewCollector(network, behavior, cfg.DetectorTimeout, logger)

	scheduler := monitor.New(
		monitor.Config{
			Interval:        cfg.PollInterval,
			EnforceTimeout:  cfg.EnforceTimeout,
			NeutralBehavior: cfg.NeutralBehavior,
			StatsEveryTicks: cfg.StatsEveryTicks,
		},
		collector, engine, blockLedger, enforcer, auditLog, counters,
		cfg.Weights(), time.Now, logger,
	)

	// ── Operator API ─────────────────────────────────────────────────────────
	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())

	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "Accept"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: !containsWildcard(cfg.CORSOrigins),
		MaxAge:           12 * time.Hour,
	}))

	router.Use(func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, 1<<20)
		c.Next()
	})
	if cfg.AdminRateLimitRPS > 0 {
		router.Use(admin.RateLimit(cfg.AdminRateLimitRPS, cfg.AdminRateLimitRPS*2))
	}
	router.Use(requestLogger(logger))

	tokens := admin.NewTokenIssuer(cfg.AdminTokenSecret, cfg.AdminTokenTTL)
	handler := admin.NewHandler(
		scheduler, blockLedger, engine, auditLog, counters,
		tokens, cfg.AdminPasswordHash, time.Now, logger,
	)
	handler.Register(router)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.AdminPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("operator API listening", zap.Int("port", cfg.AdminPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP listen error", zap.Error(err))
		}
	}()

	// ── Run until signalled ──────────────────────────────────────────────────
	done := make(chan struct{})
	go func() {
		scheduler.Run(ctx)
		close(done)
	}()
	logger.Info("sentinel started",
		zap.Duration("poll_interval", cfg.PollInterval),
		zap.Duration("block_timeout", cfg.BlockTimeout),
	)

	<-ctx.Done()
	logger.Info("shutting down sentinel...")

	// The scheduler finishes its in-flight tick before stopping.
	select {
	case <-done:
	case <-time.After(30 * time.Second):
		logger.Warn("scheduler did not stop within 30s")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown error", zap.Error(err))
	}

	logger.Info("sentinel stopped", zap.Int("active_blocks", blockLedger.Len()))
	return nil
}

// containsWildcard returns true if origins includes "*".
func containsWildcard(origins []string) bool {
	for _, o := range origins {
		if strings.TrimSpace(o) == "*" {
			return true
		}
	}
	return false
}

// requestLogger returns a Gin middleware that logs each request with zap.
func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}
