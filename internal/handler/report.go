package handler

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"geosync/internal/service"
)

const excelContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// ReportHandler serves Excel exports
type ReportHandler struct {
	reportService *service.ReportService
	childService  *service.ChildService
}

// NewReportHandler creates a new report handler
func NewReportHandler(reportService *service.ReportService, childService *service.ChildService) *ReportHandler {
	return &ReportHandler{reportService: reportService, childService: childService}
}

// PositionReport exports a backpack's position history as Excel
// @Summary Position report
// @Description Download a backpack's position history as an Excel file
// @Tags Reports
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Security BearerAuth
// @Param serial path string true "Backpack serial"
// @Param start query string false "Start time (RFC3339, default 24h ago)"
// @Param end query string false "End time (RFC3339, default now)"
// @Success 200 {file} binary
// @Failure 403 {object} map[string]string
// @Router /reports/backpacks/{serial}/positions [get]
func (h *ReportHandler) PositionReport(c *gin.Context) {
	serial := c.Param("serial")

	userID := getUserIDFromContext(c)
	owns, err := h.childService.OwnsBackpack(c.Request.Context(), userID, serial)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if !owns {
		c.JSON(http.StatusForbidden, gin.H{"error": "backpack is not bound to one of your children"})
		return
	}

	start, end, err := parseTimeRange(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	buf, err := h.reportService.PositionReport(c.Request.Context(), serial, start, end)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	filename := fmt.Sprintf("positions_%s_%s.xlsx", serial, time.Now().Format("20060102"))
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	c.Data(http.StatusOK, excelContentType, buf.Bytes())
}

// AlertReport exports the alert log of the guardian's backpacks as Excel
// @Summary Alert report
// @Description Download the alert log of the guardian's backpacks as an Excel file
// @Tags Reports
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Security BearerAuth
// @Param start query string false "Start time (RFC3339, default 24h ago)"
// @Param end query string false "End time (RFC3339, default now)"
// @Success 200 {file} binary
// @Router /reports/alerts [get]
func (h *ReportHandler) AlertReport(c *gin.Context) {
	userID := getUserIDFromContext(c)
	serials, err := h.childService.BackpackSerials(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	start, end, err := parseTimeRange(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	buf, err := h.reportService.AlertReport(c.Request.Context(), serials, start, end)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	filename := fmt.Sprintf("alerts_%s.xlsx", time.Now().Format("20060102"))
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	c.Data(http.StatusOK, excelContentType, buf.Bytes())
}
