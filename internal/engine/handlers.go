package engine

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// Handler provides HTTP endpoints for assessments.
type Handler struct {
	engine *Engine
}

// NewHandler creates a new assessment handler.
func NewHandler(e *Engine) *Handler {
	return &Handler{engine: e}
}

// RegisterRoutes sets up public assessment routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/accounts/:address/assess", h.Assess)
	r.GET("/accounts/:address/recommendations", h.GetRecommendations)
	r.GET("/accounts/:address/assessments", h.ListAssessments)
	r.GET("/cache/stats", h.CacheStats)
}

// RegisterAdminRoutes sets up admin-only cache management routes.
func (h *Handler) RegisterAdminRoutes(r *gin.RouterGroup) {
	r.DELETE("/cache", h.ClearAllCaches)
	r.DELETE("/cache/:address", h.ClearAccountCache)
}

// assessRequest is the optional POST body for an assessment.
type assessRequest struct {
	UpdateOnLedger bool `json:"updateOnLedger"`
	UseCachedData  bool `json:"useCachedData"`
}

// Assess handles POST /v1/accounts/:address/assess
func (h *Handler) Assess(c *gin.Context) {
	address := c.Param("address")

	var req assessRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Request body must be JSON with updateOnLedger/useCachedData flags",
		})
		return
	}

	a, err := h.engine.Assess(c.Request.Context(), address, AssessOptions(req))
	if err != nil {
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

	c.JSON(http.StatusOK, gin.H{"assessment": a})
}

// GetRecommendations handles GET /v1/accounts/:address/recommendations
func (h *Handler) GetRecommendations(c *gin.Context) {
	address := c.Param("address")

	recs, err := h.engine.GetRecommendations(c.Request.Context(), address)
	if err != nil {
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

	c.JSON(http.StatusOK, gin.H{
		"account":         address,
		"recommendations": recs,
		"count":           len(recs),
	})
}

// ListAssessments handles GET /v1/accounts/:address/assessments
func (h *Handler) ListAssessments(c *gin.Context) {
	address := c.Param("address")

	limit := DefaultHistoryLimit
	if l := c.Query("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 500 {
			limit = parsed
		}
	}

	history, err := h.engine.History(c.Request.Context(), address, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"account":     address,
		"assessments": history,
		"count":       len(history),
	})
}

// CacheStats handles GET /v1/cache/stats
func (h *Handler) CacheStats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"caches": h.engine.CacheStats()})
}

// ClearAllCaches handles DELETE /v1/cache
func (h *Handler) ClearAllCaches(c *gin.Context) {
	h.engine.ClearAllCaches()
	c.JSON(http.StatusOK, gin.H{"status": "cleared"})
}

// ClearAccountCache handles DELETE /v1/cache/:address
func (h *Handler) ClearAccountCache(c *gin.Context) {
	address := c.Param("address")
	h.engine.ClearCache(address)
	c.JSON(http.StatusOK, gin.H{"status": "cleared", "account": address})
}
