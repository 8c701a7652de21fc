package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"geosync/internal/model"
	"geosync/internal/service"
)

// BackpackHandler handles backpack registry requests
type BackpackHandler struct {
	backpackService *service.BackpackService
	positionService *service.PositionService
	childService    *service.ChildService
}

// NewBackpackHandler creates a new backpack handler
func NewBackpackHandler(backpackService *service.BackpackService, positionService *service.PositionService, childService *service.ChildService) *BackpackHandler {
	return &BackpackHandler{
		backpackService: backpackService,
		positionService: positionService,
		childService:    childService,
	}
}

// requireOwnership aborts the request unless one of the guardian's
// children carries the backpack. Returns true when the caller may proceed.
func (h *BackpackHandler) requireOwnership(c *gin.Context, serial string) bool {
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

// List returns registered backpacks
// @Summary List backpacks
// @Description Get a paginated list of registered backpacks
// @Tags Backpacks
// @Produce json
// @Security BearerAuth
// @Param page query int false "Page number" default(1)
// @Param page_size query int false "Page size" default(20)
// @Success 200 {object} map[string]interface{}
// @Router /backpacks [get]
func (h *BackpackHandler) List(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	backpacks, total, err := h.backpackService.List(c.Request.Context(), page, pageSize)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":  backpacks,
		"total": total,
		"page":  page,
	})
}

// Get returns a single backpack
// @Summary Get backpack
// @Description Get a backpack by serial
// @Tags Backpacks
// @Produce json
// @Security BearerAuth
// @Param serial path string true "Backpack serial"
// @Success 200 {object} model.Backpack
// @Failure 404 {object} map[string]string
// @Router /backpacks/{serial} [get]
func (h *BackpackHandler) Get(c *gin.Context) {
	serial := c.Param("serial")

	backpack, err := h.backpackService.GetBySerial(c.Request.Context(), serial)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "backpack not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, backpack)
}

// Create registers a backpack
// @Summary Register backpack
// @Description Register a single backpack
// @Tags Backpacks
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param backpack body model.Backpack true "Backpack data"
// @Success 201 {object} model.Backpack
// @Failure 400 {object} map[string]string
// @Router /backpacks [post]
func (h *BackpackHandler) Create(c *gin.Context) {
	var backpack model.Backpack
	if err := c.ShouldBindJSON(&backpack); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if backpack.Serial == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "serial is required"})
		return
	}
	if backpack.Status == 0 {
		backpack.Status = 1
	}

	if err := h.backpackService.Create(c.Request.Context(), &backpack); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, backpack)
}

// GetShadow returns the cached real-time state of a backpack
// @Summary Get backpack shadow
// @Description Get the last known position and battery of a backpack
// @Tags Backpacks
// @Produce json
// @Security BearerAuth
// @Param serial path string true "Backpack serial"
// @Success 200 {object} model.BackpackShadow
// @Failure 404 {object} map[string]string
// @Router /backpacks/{serial}/shadow [get]
func (h *BackpackHandler) GetShadow(c *gin.Context) {
	serial := c.Param("serial")
	if !h.requireOwnership(c, serial) {
		return
	}

	shadow, err := h.positionService.GetShadow(c.Request.Context(), serial)
	if err != nil {
		if errors.Is(err, redis.Nil) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no shadow for backpack"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, shadow)
}

// DownloadImportTemplate serves the Excel template for bulk registration
// @Summary Import template
// @Description Download the Excel template for bulk backpack registration
// @Tags Backpacks
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Security BearerAuth
// @Success 200 {file} binary
// @Router /backpacks/import-template [get]
func (h *BackpackHandler) DownloadImportTemplate(c *gin.Context) {
	buf, err := h.backpackService.ImportTemplate()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.Header("Content-Disposition", `attachment; filename="backpack_import_template.xlsx"`)
	c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", buf.Bytes())
}

// Import registers backpacks in bulk from an uploaded Excel file
// @Summary Import backpacks
// @Description Register backpacks in bulk from an Excel file
// @Tags Backpacks
// @Accept multipart/form-data
// @Produce json
// @Security BearerAuth
// @Param file formData file true "Excel file"
// @Success 200 {object} model.ImportResult
// @Failure 400 {object} map[string]string
// @Router /backpacks/import [post]
func (h *BackpackHandler) Import(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}

	f, err := file.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	defer f.Close()

	result, err := h.backpackService.Import(c.Request.Context(), f)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, result)
}

// parseTimeRange reads start/end query params, defaulting to the last 24 hours
func parseTimeRange(c *gin.Context) (time.Time, time.Time, error) {
	now := time.Now()
	start := now.Add(-24 * time.Hour)
	end := now

	if v := c.Query("start"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return start, end, fmt.Errorf("invalid start time: %w", err)
		}
		start = t
	}
	if v := c.Query("end"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return start, end, fmt.Errorf("invalid end time: %w", err)
		}
		end = t
	}
	return start, end, nil
}
