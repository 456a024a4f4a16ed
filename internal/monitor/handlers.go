package monitor

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// Handler provides HTTP endpoints for the monitor.
type Handler struct {
	monitor *Monitor
	store   AlertStore
	baseCtx context.Context
}

// NewHandler creates a monitor handler. baseCtx outlives any request and
// scopes the poll loop started over HTTP; server shutdown cancels it.
func NewHandler(m *Monitor, store AlertStore, baseCtx context.Context) *Handler {
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	return &Handler{monitor: m, store: store, baseCtx: baseCtx}
}

// RegisterRoutes sets up public (read-only) monitor routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/monitor/status", h.Status)
	r.GET("/monitor/alerts", h.ListAlerts)
}

// RegisterAdminRoutes sets up admin-only monitor mutations.
func (h *Handler) RegisterAdminRoutes(r *gin.RouterGroup) {
	r.POST("/monitor/start", h.Start)
	r.POST("/monitor/stop", h.Stop)
	r.POST("/monitor/accounts/:address", h.Track)
	r.DELETE("/monitor/accounts/:address", h.Untrack)
	r.POST("/monitor/alerts/:id/ack", h.AcknowledgeAlert)
}

// Status handles GET /v1/monitor/status
func (h *Handler) Status(c *gin.Context) {
	tracked := h.monitor.Tracked()
	c.JSON(http.StatusOK, gin.H{
		"running":  h.monitor.Running(),
		"interval": h.monitor.Interval().String(),
		"tracked":  tracked,
		"count":    len(tracked),
	})
}

// Start handles POST /v1/monitor/start
func (h *Handler) Start(c *gin.Context) {
	if err := h.monitor.Start(h.baseCtx); err != nil {
		if errors.Is(err, ErrAlreadyRunning) {
			c.JSON(http.StatusConflict, gin.H{
				"error":   "already_running",
				"message": "Monitor is already running",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "started"})
}

// Stop handles POST /v1/monitor/stop
func (h *Handler) Stop(c *gin.Context) {
	if err := h.monitor.Stop(); err != nil {
		if errors.Is(err, ErrNotRunning) {
			c.JSON(http.StatusConflict, gin.H{
				"error":   "not_running",
				"message": "Monitor is not running",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "stopped"})
}

// Track handles POST /v1/monitor/accounts/:address
func (h *Handler) Track(c *gin.Context) {
	address := c.Param("address")
	if err := h.monitor.Track(c.Request.Context(), address); err != nil {
		if errors.Is(err, ErrInvalidAddress) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_address",
				"message": "Account address is not a valid 0x address",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "tracked", "account": address})
}

// Untrack handles DELETE /v1/monitor/accounts/:address
func (h *Handler) Untrack(c *gin.Context) {
	address := c.Param("address")
	h.monitor.Untrack(address)
	c.JSON(http.StatusOK, gin.H{"status": "untracked", "account": address})
}

// ListAlerts handles GET /v1/monitor/alerts
func (h *Handler) ListAlerts(c *gin.Context) {
	limit := 50
	if l := c.Query("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 500 {
			limit = parsed
		}
	}

	alerts, err := h.store.List(c.Request.Context(), c.Query("account"), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"alerts": alerts, "count": len(alerts)})
}

// AcknowledgeAlert handles POST /v1/monitor/alerts/:id/ack
func (h *Handler) AcknowledgeAlert(c *gin.Context) {
	id := c.Param("id")
	if err := h.store.Acknowledge(c.Request.Context(), id); err != nil {
		if errors.Is(err, ErrAlertNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": "No alert with this id",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "acknowledged", "id": id})
}
