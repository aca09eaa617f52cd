// Package admin exposes the operator HTTP API: runtime status, active block
// inspection, manual release, and audit log access.
package admin

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/sentinelops/sentinel/internal/audit"
	"github.com/sentinelops/sentinel/internal/ledger"
	"github.com/sentinelops/sentinel/internal/monitor"
)

// Releaser lifts an active block ahead of its expiry.
type Releaser interface {
	Release(ctx context.Context, subject string) (ledger.BlockRecord, error)
}

// Handler serves the operator API.
type Handler struct {
	scheduler *monitor.Scheduler
	ledger    *ledger.Ledger
	releaser  Releaser
	log       audit.Log
	counters  *audit.Counters
	tokens    *TokenIssuer
	clock     ledger.Clock

	passwordHash string
	logger       *zap.Logger
}

// NewHandler creates the operator API handler.
func NewHandler(
	scheduler *monitor.Scheduler,
	blockLedger *ledger.Ledger,
	releaser Releaser,
	auditLog audit.Log,
	counters *audit.Counters,
	tokens *TokenIssuer,
	passwordHash string,
	clock ledger.Clock,
	logger *zap.Logger,
) *Handler {
	if clock == nil {
		clock = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		scheduler:    scheduler,
		ledger:       blockLedger,
		releaser:     releaser,
		log:          auditLog,
		counters:     counters,
		tokens:       tokens,
		clock:        clock,
		passwordHash: passwordHash,
		logger:       logger,
	}
}

// Register mounts the operator routes on the router.
func (h *Handler) Register(r *gin.Engine) {
	r.GET("/healthz", h.Health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/api/v1")
	v1.POST("/auth/login", h.Login)
	v1.GET("/status", h.Status)
	v1.GET("/blocks", h.Blocks)
	v1.GET("/audit", h.AuditTail)
	v1.GET("/audit/verify", h.AuditVerify)

	protected := v1.Group("")
	protected.Use(h.RequireAuth())
	protected.DELETE("/blocks/:subject", h.ReleaseBlock)
}

// Health handles GET /healthz.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"state":  h.scheduler.State().String(),
	})
}

// Status handles GET /api/v1/status.
func (h *Handler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"state":         h.scheduler.State().String(),
		"active_blocks": h.ledger.Len(),
		"stats":         h.counters.Snapshot(h.clock()),
	})
}

// Blocks handles GET /api/v1/blocks.
func (h *Handler) Blocks(c *gin.Context) {
	records := h.ledger.Active()
	c.JSON(http.StatusOK, gin.H{
		"count":  len(records),
		"blocks": records,
	})
}

// ReleaseBlock handles DELETE /api/v1/blocks/:subject.
func (h *Handler) ReleaseBlock(c *gin.Context) {
	subject := c.Param("subject")
	record, err := h.releaser.Release(c.Request.Context(), subject)
	if err != nil {
		if errors.Is(err, ledger.ErrNotActive) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no active block for subject"})
			return
		}
		h.logger.Error("release block", zap.String("subject", subject), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "release failed"})
		return
	}
	h.logger.Info("block released by operator",
		zap.String("subject", subject),
		zap.String("ip", c.ClientIP()))
	c.JSON(http.StatusOK, gin.H{"released": record})
}

// AuditTail handles GET /api/v1/audit?limit=N.
func (h *Handler) AuditTail(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 1000 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and 1000"})
			return
		}
		limit = n
	}
	records, err := h.log.Tail(c.Request.Context(), limit)
	if err != nil {
		h.logger.Error("audit tail", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read audit log"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"count":   len(records),
		"records": records,
	})
}

// AuditVerify handles GET /api/v1/audit/verify.
func (h *Handler) AuditVerify(c *gin.Context) {
	if err := h.log.Verify(c.Request.Context()); err != nil {
		c.JSON(http.StatusConflict, gin.H{
			"valid": false,
			"error": err.Error(),
		})
		return
	}
	root, err := h.log.Root(c.Request.Context())
	if err != nil {
		h.logger.Error("audit root", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read audit log"})
		return
	}
	length, err := h.log.Len(c.Request.Context())
	if err != nil {
		h.logger.Error("audit length", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read audit log"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"valid":   true,
		"root":    root,
		"records": length,
	})
}
