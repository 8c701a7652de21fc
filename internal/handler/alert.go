package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"geosync/internal/model"
	"geosync/internal/service"
)

// AlertHandler handles alert queries. All queries are scoped to the
// backpacks bound to the guardian's children.
type AlertHandler struct {
	alertService *service.AlertService
	childService *service.ChildService
}

// NewAlertHandler creates a new alert handler
func NewAlertHandler(alertService *service.AlertService, childService *service.ChildService) *AlertHandler {
	return &AlertHandler{alertService: alertService, childService: childService}
}

// ownedSerials returns the backpack serials visible to the caller
func (h *AlertHandler) ownedSerials(c *gin.Context) ([]string, bool) {
	userID := getUserIDFromContext(c)
	serials, err := h.childService.BackpackSerials(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return nil, false
	}
	return serials, true
}

// List returns alerts for the guardian's backpacks
// @Summary List alerts
// @Description Get alerts for the guardian's backpacks with pagination and filters
// @Tags Alerts
// @Produce json
// @Security BearerAuth
// @Param backpack_id query string false "Filter by backpack serial"
// @Param type query string false "Filter by alert type"
// @Param status query string false "Filter by status (unread/read)"
// @Param page query int false "Page number" default(1)
// @Param page_size query int false "Page size" default(20)
// @Success 200 {object} map[string]interface{}
// @Router /alerts [get]
func (h *AlertHandler) List(c *gin.Context) {
	serials, ok := h.ownedSerials(c)
	if !ok {
		return
	}
	if len(serials) == 0 {
		c.JSON(http.StatusOK, gin.H{"data": []model.Alert{}, "total": 0, "page": 1})
		return
	}

	var q model.AlertListQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	alerts, total, err := h.alertService.List(c.Request.Context(), serials, &q)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":  alerts,
		"total": total,
		"page":  q.Page,
	})
}

// GetUnreadCount returns the number of unread alerts
// @Summary Unread count
// @Description Get the number of unread alerts for the guardian's backpacks
// @Tags Alerts
// @Produce json
// @Security BearerAuth
// @Success 200 {object} map[string]int64
// @Router /alerts/unread-count [get]
func (h *AlertHandler) GetUnreadCount(c *gin.Context) {
	serials, ok := h.ownedSerials(c)
	if !ok {
		return
	}
	if len(serials) == 0 {
		c.JSON(http.StatusOK, gin.H{"count": 0})
		return
	}

	count, err := h.alertService.UnreadCount(c.Request.Context(), serials)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"count": count})
}

// MarkAsRead marks a single alert as read
// @Summary Mark alert read
// @Description Mark a single alert as read
// @Tags Alerts
// @Security BearerAuth
// @Param id path int true "Alert ID"
// @Success 200 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /alerts/{id}/read [post]
func (h *AlertHandler) MarkAsRead(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}

	if err := h.alertService.MarkRead(c.Request.Context(), uint(id)); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "alert not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// BatchRead marks a set of alerts as read
// @Summary Batch mark read
// @Description Mark a set of alerts as read
// @Tags Alerts
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param ids body model.BatchReadRequest true "Alert IDs"
// @Success 200 {object} map[string]string
// @Failure 400 {object} map[string]string
// @Router /alerts/batch-read [post]
func (h *AlertHandler) BatchRead(c *gin.Context) {
	var req model.BatchReadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.alertService.BatchRead(c.Request.Context(), req.IDs); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Clear deletes all alerts for the guardian's backpacks
// @Summary Clear alerts
// @Description Delete all alerts for the guardian's backpacks
// @Tags Alerts
// @Security BearerAuth
// @Success 204
// @Router /alerts [delete]
func (h *AlertHandler) Clear(c *gin.Context) {
	serials, ok := h.ownedSerials(c)
	if !ok {
		return
	}
	if len(serials) == 0 {
		c.JSON(http.StatusNoContent, nil)
		return
	}

	if err := h.alertService.Clear(c.Request.Context(), serials); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusNoContent, nil)
}
