package verifier

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/boostlab/boostpanel/internal/ledger"
)

// Handler provides operator endpoints for the verifier.
type Handler struct {
	service *Service
}

// NewHandler creates a new verifier handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterAdminRoutes sets up operator verification routes.
func (h *Handler) RegisterAdminRoutes(r *gin.RouterGroup) {
	r.POST("/verifications/:id", h.VerifyTransaction)
	r.POST("/verifications/:id/repair", h.RepairTransaction)
}

// VerifyTransaction handles POST /v1/admin/verifications/:id
func (h *Handler) VerifyTransaction(c *gin.Context) {
	result, err := h.service.Verify(c.Request.Context(), c.Param("id"))
	if err != nil {
		switch {
		case errors.Is(err, ledger.ErrTransactionNotFound):
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": "transaction not found",
			})
		case errors.Is(err, ErrNotVerifiable):
			c.JSON(http.StatusUnprocessableEntity, gin.H{
				"error":   "not_verifiable",
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
	c.JSON(http.StatusOK, gin.H{"verification": result})
}

// RepairTransaction handles POST /v1/admin/verifications/:id/repair
func (h *Handler) RepairTransaction(c *gin.Context) {
	newBalance, err := h.service.Repair(c.Request.Context(), c.Param("id"))
	if err != nil {
		switch {
		case errors.Is(err, ledger.ErrTransactionNotFound):
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": "transaction not found",
			})
		case errors.Is(err, ErrNotVerifiable):
			c.JSON(http.StatusUnprocessableEntity, gin.H{
				"error":   "not_verifiable",
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
	c.JSON(http.StatusOK, gin.H{"newBalance": newBalance.Format()})
}
