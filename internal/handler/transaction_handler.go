package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/voemax/passenger-api/internal/dto"
	"github.com/voemax/passenger-api/internal/models"
	appErrors "github.com/voemax/passenger-api/pkg/errors"
	"github.com/voemax/passenger-api/pkg/response"
)

type transactionService interface {
	GetTransactionDetail(ctx context.Context, transactionID string, actor *models.JWTClaims) (*dto.TransactionDetail, error)
	ListPassengers(ctx context.Context, transactionID string, actor *models.JWTClaims) ([]models.Passenger, error)
}

// TransactionHandler exposes transaction detail endpoints.
type TransactionHandler struct {
	service transactionService
}

// NewTransactionHandler constructs the handler.
func NewTransactionHandler(service transactionService) *TransactionHandler {
	return &TransactionHandler{service: service}
}

// Get godoc
// @Summary Get transaction detail with edit window state
// @Tags Transactions
// @Produce json
// @Param id path string true "Transaction ID"
// @Success 200 {object} response.Envelope
// @Router /transactions/{id} [get]
func (h *TransactionHandler) Get(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "transaction service not configured"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	detail, err := h.service.GetTransactionDetail(c.Request.Context(), c.Param("id"), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail, nil)
}

// ListPassengers godoc
// @Summary List passengers on a transaction
// @Tags Transactions
// @Produce json
// @Param id path string true "Transaction ID"
// @Success 200 {object} response.Envelope
// @Router /transactions/{id}/passengers [get]
func (h *TransactionHandler) ListPassengers(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "transaction service not configured"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	passengers, err := h.service.ListPassengers(c.Request.Context(), c.Param("id"), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, passengers, nil)
}
