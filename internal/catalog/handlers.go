package catalog

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Handler provides HTTP endpoints for browsing and managing the
// service catalog.
type Handler struct {
	service *Service
}

// NewHandler creates a new catalog handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes sets up user-facing catalog routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/services", h.ListServices)
	r.GET("/services/:id", h.GetService)
}

// RegisterAdminRoutes sets up operator catalog routes.
func (h *Handler) RegisterAdminRoutes(r *gin.RouterGroup) {
	r.POST("/services", h.CreateService)
	r.POST("/services/:id/active", h.SetServiceActive)
}

// ListServices handles GET /v1/services
func (h *Handler) ListServices(c *gin.Context) {
	items, err := h.service.List(c.Request.Context(), c.Query("platform"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"services": items, "count": len(items)})
}

// GetService handles GET /v1/services/:id
func (h *Handler) GetService(c *gin.Context) {
	item, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, ErrItemNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": "service not found",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"service": item})
}

// CreateService handles POST /v1/admin/services
func (h *Handler) CreateService(c *gin.Context) {
	var req struct {
		Platform          string `json:"platform" binding:"required"`
		ServiceType       string `json:"serviceType"`
		Name              string `json:"name" binding:"required"`
		Rate              string `json:"rate" binding:"required"`
		MinQuantity       int    `json:"minQuantity" binding:"required"`
		MaxQuantity       int    `json:"maxQuantity" binding:"required"`
		ProviderServiceID string `json:"providerServiceId"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": err.Error(),
		})
		return
	}

	item, err := h.service.Create(c.Request.Context(), CreateItemParams{
		Platform:          req.Platform,
		ServiceType:       req.ServiceType,
		Name:              req.Name,
		Rate:              req.Rate,
		MinQuantity:       req.MinQuantity,
		MaxQuantity:       req.MaxQuantity,
		ProviderServiceID: req.ProviderServiceID,
	})
	if err != nil {
		if errors.Is(err, ErrInvalidItem) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_item",
				"message": err.Error(),
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"service": item})
}

// SetServiceActive handles POST /v1/admin/services/:id/active
func (h *Handler) SetServiceActive(c *gin.Context) {
	var req struct {
		Active *bool `json:"active" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": err.Error(),
		})
		return
	}

	item, err := h.service.SetActive(c.Request.Context(), c.Param("id"), *req.Active)
	if err != nil {
		if errors.Is(err, ErrItemNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": "service not found",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"service": item})
}
