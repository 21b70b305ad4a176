package ledger

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/boostlab/boostpanel/internal/money"
)

// Handler provides HTTP endpoints for balances and deposits.
type Handler struct {
	service *Service
}

// NewHandler creates a new ledger handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes sets up user-facing balance routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/users/:id/balance", h.GetBalance)
	r.GET("/users/:id/transactions", h.GetTransactions)
	r.POST("/users/:id/deposits", h.RequestDeposit)
}

// RegisterAdminRoutes sets up operator deposit routes.
func (h *Handler) RegisterAdminRoutes(r *gin.RouterGroup) {
	r.GET("/deposits", h.ListPendingDeposits)
	r.POST("/deposits/:id/approve", h.ApproveDeposit)
	r.POST("/deposits/:id/reject", h.RejectDeposit)
}

// GetBalance handles GET /v1/users/:id/balance
func (h *Handler) GetBalance(c *gin.Context) {
	balance, err := h.service.Balance(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"balance": balance.Format()})
}

// GetTransactions handles GET /v1/users/:id/transactions
func (h *Handler) GetTransactions(c *gin.Context) {
	txs, err := h.service.History(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"transactions": txs, "count": len(txs)})
}

// RequestDeposit handles POST /v1/users/:id/deposits
func (h *Handler) RequestDeposit(c *gin.Context) {
	var req struct {
		Amount string `json:"amount" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": err.Error(),
		})
		return
	}

	amount, ok := money.Parse(req.Amount)
	if !ok || amount <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_amount",
			"message": "amount must be a positive decimal string",
		})
		return
	}

	tx, err := h.service.RequestDeposit(c.Request.Context(), c.Param("id"), amount)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"transaction": tx})
}

// ListPendingDeposits handles GET /v1/admin/deposits
func (h *Handler) ListPendingDeposits(c *gin.Context) {
	limit := 50
	if l := c.Query("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	deposits, err := h.service.PendingDeposits(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deposits": deposits, "count": len(deposits)})
}

// ApproveDeposit handles POST /v1/admin/deposits/:id/approve
func (h *Handler) ApproveDeposit(c *gin.Context) {
	result, err := h.service.Approve(c.Request.Context(), c.Param("id"))
	if err != nil {
		var approvalErr *ApprovalFailedError
		switch {
		case errors.Is(err, ErrTransactionNotFound):
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": "transaction not found",
			})
		case errors.Is(err, ErrAlreadyProcessed):
			c.JSON(http.StatusConflict, gin.H{
				"error":   "already_processed",
				"message": err.Error(),
			})
		case errors.As(err, &approvalErr):
			c.JSON(http.StatusBadGateway, gin.H{
				"error":   "approval_failed",
				"message": approvalErr.Error(),
			})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":   "internal_error",
				"message": err.Error(),
			})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"approval": result})
}

// RejectDeposit handles POST /v1/admin/deposits/:id/reject
func (h *Handler) RejectDeposit(c *gin.Context) {
	tx, err := h.service.Reject(c.Request.Context(), c.Param("id"))
	if err != nil {
		switch {
		case errors.Is(err, ErrTransactionNotFound):
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": "transaction not found",
			})
		case errors.Is(err, ErrAlreadyProcessed):
			c.JSON(http.StatusConflict, gin.H{
				"error":   "already_processed",
				"message": err.Error(),
			})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":   "internal_error",
				"message": err.Error(),
			})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"transaction": tx})
}
