package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"geosync/internal/config"
	"geosync/internal/service"
)

// PositionHandler handles position ingest and queries
type PositionHandler struct {
	positionService *service.PositionService
	childService    *service.ChildService
	config          *config.Config
}

// NewPositionHandler creates a new position handler
func NewPositionHandler(positionService *service.PositionService, childService *service.ChildService, cfg *config.Config) *PositionHandler {
	return &PositionHandler{
		positionService: positionService,
		childService:    childService,
		config:          cfg,
	}
}

func (h *PositionHandler) requireOwnership(c *gin.Context, serial string) bool {
	userID := getUserIDFromContext(c)
	owns, err := h.childService.OwnsBackpack(c.Request.Context(), userID, serial)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return false
	}
	if !owns {
		c.JSON(http.StatusForbidden, gin.H{"error": "backpack is not bound to one of your children"})
		return false
	}
	return true
}

// Ingest accepts a position reading from a backpack
// @Summary Ingest position
// @Description Record a position reading reported by a backpack
// @Tags Positions
// @Accept json
// @Produce json
// @Param X-API-Key header string false "Device ingest key"
// @Param position body service.PositionMessage true "Position reading"
// @Success 202 {object} map[string]string
// @Failure 400 {object} map[string]string
// @Failure 401 {object} map[string]string
// @Router /ingest/positions [post]
func (h *PositionHandler) Ingest(c *gin.Context) {
	if h.config.IngestKey != "" && c.GetHeader("X-API-Key") != h.config.IngestKey {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid ingest key"})
		return
	}

	var msg service.PositionMessage
	if err := c.ShouldBindJSON(&msg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.positionService.Ingest(c.Request.Context(), &msg); err != nil {
		if errors.Is(err, service.ErrInvalidPosition) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}

// GetLatest returns the most recent position of a backpack
// @Summary Latest position
// @Description Get the most recent recorded position of a backpack
// @Tags Positions
// @Produce json
// @Security BearerAuth
// @Param serial path string true "Backpack serial"
// @Success 200 {object} model.Position
// @Failure 404 {object} map[string]string
// @Router /backpacks/{serial}/positions/latest [get]
func (h *PositionHandler) GetLatest(c *gin.Context) {
	serial := c.Param("serial")
	if !h.requireOwnership(c, serial) {
		return
	}

	position, err := h.positionService.GetLatest(c.Request.Context(), serial)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no positions for backpack"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, position)
}

// GetHistory returns position history for a backpack
// @Summary Position history
// @Description Get position history for a backpack within a time range
// @Tags Positions
// @Produce json
// @Security BearerAuth
// @Param serial path string true "Backpack serial"
// @Param start query string false "Start time (RFC3339, default 24h ago)"
// @Param end query string false "End time (RFC3339, default now)"
// @Param limit query int false "Max readings" default(1000)
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} map[string]string
// @Router /backpacks/{serial}/positions [get]
func (h *PositionHandler) GetHistory(c *gin.Context) {
	serial := c.Param("serial")
	if !h.requireOwnership(c, serial) {
		return
	}

	start, end, err := parseTimeRange(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "1000"))

	positions, err := h.positionService.GetHistory(c.Request.Context(), serial, start, end, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":  positions,
		"total": len(positions),
		"start": start,
		"end":   end,
	})
}

// Replay re-reads persisted position messages from JetStream
// @Summary Replay positions
// @Description Replay the persisted position stream of a backpack
// @Tags Positions
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param serial path string true "Backpack serial"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} map[string]string
// @Failure 503 {object} map[string]string
// @Router /backpacks/{serial}/positions/replay [post]
func (h *PositionHandler) Replay(c *gin.Context) {
	serial := c.Param("serial")
	if !h.requireOwnership(c, serial) {
		return
	}

	var req struct {
		StartTime time.Time `json:"start_time" binding:"required"`
		EndTime   time.Time `json:"end_time" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	messages, err := h.positionService.Replay(c.Request.Context(), serial, req.StartTime, req.EndTime)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":  messages,
		"count": len(messages),
	})
}
