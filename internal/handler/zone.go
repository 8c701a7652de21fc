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

// ZoneHandler handles safe zone requests. All routes are nested under a
// backpack serial and require that the caller's child carries the backpack.
type ZoneHandler struct {
	zoneService  *service.ZoneService
	childService *service.ChildService
}

// NewZoneHandler creates a new zone handler
func NewZoneHandler(zoneService *service.ZoneService, childService *service.ChildService) *ZoneHandler {
	return &ZoneHandler{zoneService: zoneService, childService: childService}
}

func (h *ZoneHandler) requireOwnership(c *gin.Context, serial string) bool {
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

// zoneForBackpack loads a zone and checks it belongs to the serial in the path
func (h *ZoneHandler) zoneForBackpack(c *gin.Context, serial string) (*model.SafeZone, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return nil, false
	}

	zone, err := h.zoneService.GetByID(c.Request.Context(), uint(id))
	if err != nil || zone.BackpackID != serial {
		c.JSON(http.StatusNotFound, gin.H{"error": "zone not found"})
		return nil, false
	}
	return zone, true
}

// List returns the safe zones of a backpack
// @Summary List safe zones
// @Description Get all safe zones configured for a backpack
// @Tags Zones
// @Produce json
// @Security BearerAuth
// @Param serial path string true "Backpack serial"
// @Success 200 {object} map[string]interface{}
// @Failure 403 {object} map[string]string
// @Router /backpacks/{serial}/zones [get]
func (h *ZoneHandler) List(c *gin.Context) {
	serial := c.Param("serial")
	if !h.requireOwnership(c, serial) {
		return
	}

	zones, err := h.zoneService.ListByBackpack(c.Request.Context(), serial)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":  zones,
		"total": len(zones),
		"limit": model.MaxZonesPerBackpack,
	})
}

// Get returns a single safe zone
// @Summary Get safe zone
// @Description Get a safe zone by ID
// @Tags Zones
// @Produce json
// @Security BearerAuth
// @Param serial path string true "Backpack serial"
// @Param id path int true "Zone ID"
// @Success 200 {object} model.SafeZone
// @Failure 404 {object} map[string]string
// @Router /backpacks/{serial}/zones/{id} [get]
func (h *ZoneHandler) Get(c *gin.Context) {
	serial := c.Param("serial")
	if !h.requireOwnership(c, serial) {
		return
	}

	zone, ok := h.zoneForBackpack(c, serial)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, zone)
}

// Create creates a safe zone for a backpack
// @Summary Create safe zone
// @Description Create a safe zone for a backpack (at most 5 per backpack)
// @Tags Zones
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param serial path string true "Backpack serial"
// @Param zone body model.CreateZoneRequest true "Zone data"
// @Success 201 {object} model.SafeZone
// @Failure 400 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Router /backpacks/{serial}/zones [post]
func (h *ZoneHandler) Create(c *gin.Context) {
	serial := c.Param("serial")
	if !h.requireOwnership(c, serial) {
		return
	}

	var req model.CreateZoneRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	zone, err := h.zoneService.Create(c.Request.Context(), serial, &req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrZoneLimit):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		case errors.Is(err, service.ErrInvalidZone):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	c.JSON(http.StatusCreated, zone)
}

// Update updates a safe zone
// @Summary Update safe zone
// @Description Update a safe zone's name, geometry or status
// @Tags Zones
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param serial path string true "Backpack serial"
// @Param id path int true "Zone ID"
// @Param zone body model.UpdateZoneRequest true "Zone data"
// @Success 200 {object} model.SafeZone
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /backpacks/{serial}/zones/{id} [put]
func (h *ZoneHandler) Update(c *gin.Context) {
	serial := c.Param("serial")
	if !h.requireOwnership(c, serial) {
		return
	}

	zone, ok := h.zoneForBackpack(c, serial)
	if !ok {
		return
	}

	var req model.UpdateZoneRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	updated, err := h.zoneService.Update(c.Request.Context(), zone.ID, &req)
	if err != nil {
		if errors.Is(err, service.ErrInvalidZone) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, updated)
}

// Delete deletes a safe zone
// @Summary Delete safe zone
// @Description Delete a safe zone
// @Tags Zones
// @Security BearerAuth
// @Param serial path string true "Backpack serial"
// @Param id path int true "Zone ID"
// @Success 204
// @Failure 404 {object} map[string]string
// @Router /backpacks/{serial}/zones/{id} [delete]
func (h *ZoneHandler) Delete(c *gin.Context) {
	serial := c.Param("serial")
	if !h.requireOwnership(c, serial) {
		return
	}

	zone, ok := h.zoneForBackpack(c, serial)
	if !ok {
		return
	}

	if err := h.zoneService.Delete(c.Request.Context(), zone.ID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "zone not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusNoContent, nil)
}
