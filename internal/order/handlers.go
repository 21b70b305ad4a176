package order

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/boostlab/boostpanel/internal/ledger"
)

// Handler provides HTTP endpoints for orders.
type Handler struct {
	service *Service
}

// NewHandler creates a new order handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes sets up user-facing order routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/orders", h.CreateOrder)
	r.GET("/orders/:id", h.GetOrder)
	r.GET("/orders/:id/history", h.GetOrderHistory)
	r.GET("/users/:id/orders", h.ListUserOrders)
}

// RegisterAdminRoutes sets up operator order routes.
func (h *Handler) RegisterAdminRoutes(r *gin.RouterGroup) {
	r.POST("/orders/:id/status", h.SetOrderStatus)
	r.POST("/orders/:id/refund", h.RefundOrder)
}

// CreateOrder handles POST /v1/orders
func (h *Handler) CreateOrder(c *gin.Context) {
	var req struct {
		UserID    string `json:"userId" binding:"required"`
		ServiceID string `json:"serviceId" binding:"required"`
		Link      string `json:"link" binding:"required"`
		Quantity  int    `json:"quantity" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": err.Error(),
		})
		return
	}

	o, err := h.service.Create(c.Request.Context(), req.UserID, req.ServiceID, req.Link, req.Quantity)
	if err != nil {
		switch {
		case errors.Is(err, ErrServiceNotFound):
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "service_not_found",
				"message": "no such service",
			})
		case errors.Is(err, ErrServiceInactive):
			c.JSON(http.StatusUnprocessableEntity, gin.H{
				"error":   "service_inactive",
				"message": err.Error(),
			})
		case errors.Is(err, ErrInvalidQuantity):
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_quantity",
				"message": err.Error(),
			})
		case errors.Is(err, ledger.ErrInsufficientBalance):
			c.JSON(http.StatusPaymentRequired, gin.H{
				"error":   "insufficient_balance",
				"message": "balance does not cover the order cost",
			})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":   "internal_error",
				"message": err.Error(),
			})
		}
		return
	}
	c.JSON(http.StatusCreated, gin.H{"order": o})
}

// GetOrder handles GET /v1/orders/:id
func (h *Handler) GetOrder(c *gin.Context) {
	o, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": "order not found",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"order": o})
}

// GetOrderHistory handles GET /v1/orders/:id/history
func (h *Handler) GetOrderHistory(c *gin.Context) {
	history, err := h.service.History(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"history": history, "count": len(history)})
}

// ListUserOrders handles GET /v1/users/:id/orders
func (h *Handler) ListUserOrders(c *gin.Context) {
	limit := 50
	if l := c.Query("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	orders, err := h.service.List(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders, "count": len(orders)})
}

// SetOrderStatus handles POST /v1/admin/orders/:id/status
func (h *Handler) SetOrderStatus(c *gin.Context) {
	var req struct {
		Status string `json:"status" binding:"required"`
		Actor  string `json:"actor"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": err.Error(),
		})
		return
	}

	o, err := h.service.SetStatus(c.Request.Context(), c.Param("id"), req.Status, req.Actor)
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": "order not found",
			})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_status",
			"message": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"order": o})
}

// RefundOrder handles POST /v1/admin/orders/:id/refund
func (h *Handler) RefundOrder(c *gin.Context) {
	var req struct {
		Override bool   `json:"override"`
		Actor    string `json:"actor"`
	}
	// Body is optional; an empty refund request uses defaults.
	_ = c.ShouldBindJSON(&req)

	result, err := h.service.Refund(c.Request.Context(), c.Param("id"), req.Override, req.Actor)
	if err != nil {
		var refundErr *RefundFailedError
		switch {
		case errors.Is(err, ErrOrderNotFound):
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": "order not found",
			})
		case errors.Is(err, ErrAlreadyRefunded):
			c.JSON(http.StatusConflict, gin.H{
				"error":   "already_refunded",
				"message": err.Error(),
			})
		case errors.As(err, &refundErr):
			c.JSON(http.StatusBadGateway, gin.H{
				"error":         "refund_failed",
				"message":       refundErr.Error(),
				"creditApplied": refundErr.CreditApplied,
			})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":   "internal_error",
				"message": err.Error(),
			})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"refund": result})
}
