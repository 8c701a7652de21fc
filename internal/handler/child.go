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

// ChildHandler handles child profile requests
type ChildHandler struct {
	childService *service.ChildService
}

// NewChildHandler creates a new child handler
func NewChildHandler(childService *service.ChildService) *ChildHandler {
	return &ChildHandler{childService: childService}
}

// List returns the guardian's children
// @Summary List children
// @Description Get all child profiles of the authenticated guardian
// @Tags Children
// @Produce json
// @Security BearerAuth
// @Success 200 {object} map[string]interface{}
// @Failure 401 {object} map[string]string
// @Router /children [get]
func (h *ChildHandler) List(c *gin.Context) {
	userID := getUserIDFromContext(c)

	children, err := h.childService.List(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":  children,
		"total": len(children),
	})
}

// Get returns a single child profile
// @Summary Get child
// @Description Get a child profile by ID
// @Tags Children
// @Produce json
// @Security BearerAuth
// @Param id path int true "Child ID"
// @Success 200 {object} model.Child
// @Failure 404 {object} map[string]string
// @Router /children/{id} [get]
func (h *ChildHandler) Get(c *gin.Context) {
	userID := getUserIDFromContext(c)
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}

	child, err := h.childService.GetByID(c.Request.Context(), userID, uint(id))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "child not found"})
		return
	}

	c.JSON(http.StatusOK, child)
}

// Create creates a child profile
// @Summary Create child
// @Description Create a child profile, optionally binding a backpack by serial
// @Tags Children
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param child body model.CreateChildRequest true "Child data"
// @Success 201 {object} model.Child
// @Failure 400 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Router /children [post]
func (h *ChildHandler) Create(c *gin.Context) {
	userID := getUserIDFromContext(c)

	var req model.CreateChildRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	child, err := h.childService.Create(c.Request.Context(), userID, &req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrBackpackTaken):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		case errors.Is(err, gorm.ErrRecordNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "backpack not found"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	c.JSON(http.StatusCreated, child)
}

// Update updates a child profile
// @Summary Update child
// @Description Update a child profile
// @Tags Children
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Child ID"
// @Param child body model.UpdateChildRequest true "Child data"
// @Success 200 {object} model.Child
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /children/{id} [put]
func (h *ChildHandler) Update(c *gin.Context) {
	userID := getUserIDFromContext(c)
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}

	var req model.UpdateChildRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	child, err := h.childService.Update(c.Request.Context(), userID, uint(id), &req)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "child not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, child)
}

// Delete deletes a child profile
// @Summary Delete child
// @Description Delete a child profile
// @Tags Children
// @Security BearerAuth
// @Param id path int true "Child ID"
// @Success 204
// @Failure 404 {object} map[string]string
// @Router /children/{id} [delete]
func (h *ChildHandler) Delete(c *gin.Context) {
	userID := getUserIDFromContext(c)
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}

	if err := h.childService.Delete(c.Request.Context(), userID, uint(id)); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "child not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusNoContent, nil)
}

// BindBackpack binds a backpack to a child
// @Summary Bind backpack
// @Description Bind a free backpack (by serial) to a child
// @Tags Children
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Child ID"
// @Param binding body model.BindBackpackRequest true "Backpack serial"
// @Success 200 {object} model.Child
// @Failure 404 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Router /children/{id}/backpack [post]
func (h *ChildHandler) BindBackpack(c *gin.Context) {
	userID := getUserIDFromContext(c)
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}

	var req model.BindBackpackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	child, err := h.childService.BindBackpack(c.Request.Context(), userID, uint(id), req.Serial)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrBackpackTaken):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		case errors.Is(err, gorm.ErrRecordNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "child or backpack not found"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	c.JSON(http.StatusOK, child)
}

// UnbindBackpack removes the backpack binding from a child
// @Summary Unbind backpack
// @Description Remove the backpack binding from a child
// @Tags Children
// @Security BearerAuth
// @Param id path int true "Child ID"
// @Success 204
// @Failure 404 {object} map[string]string
// @Router /children/{id}/backpack [delete]
func (h *ChildHandler) UnbindBackpack(c *gin.Context) {
	userID := getUserIDFromContext(c)
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}

	if err := h.childService.UnbindBackpack(c.Request.Context(), userID, uint(id)); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "child not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusNoContent, nil)
}
