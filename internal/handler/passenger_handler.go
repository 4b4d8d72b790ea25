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

type passengerService interface {
	SubmitEdit(ctx context.Context, transactionID, passengerID string, req dto.SubmitEditRequest, actor *models.JWTClaims) (*dto.SubmitEditResult, error)
	SubmitNewPassengers(ctx context.Context, transactionID string, req dto.SubmitNewPassengersRequest, actor *models.JWTClaims) (*dto.SubmitNewPassengersResult, error)
}

// PassengerHandler exposes buyer-facing passenger mutation endpoints.
type PassengerHandler struct {
	service passengerService
}

// NewPassengerHandler constructs the handler.
func NewPassengerHandler(service passengerService) *PassengerHandler {
	return &PassengerHandler{service: service}
}

// SubmitEdit godoc
// @Summary Submit a passenger data edit
// @Description Normal changes inside the free window apply immediately; critical or late changes queue for seller approval.
// @Tags Passengers
// @Accept json
// @Produce json
// @Param id path string true "Transaction ID"
// @Param passengerId path string true "Passenger ID"
// @Param payload body dto.SubmitEditRequest true "Fields to change"
// @Success 200 {object} response.Envelope
// @Success 202 {object} response.Envelope
// @Router /transactions/{id}/passengers/{passengerId}/edits [post]
func (h *PassengerHandler) SubmitEdit(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "passenger service not configured"))
		return
	}
	var req dto.SubmitEditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid edit payload"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	result, err := h.service.SubmitEdit(c.Request.Context(), c.Param("id"), c.Param("passengerId"), req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	status := http.StatusOK
	if !result.Applied {
		status = http.StatusAccepted
	}
	response.JSON(c, status, result, nil)
}

// SubmitNewPassengers godoc
// @Summary Add passengers to a transaction
// @Description Inside the free window passengers are created directly; outside it each becomes an approval request. The batch fails atomically when it would exceed the passenger limit.
// @Tags Passengers
// @Accept json
// @Produce json
// @Param id path string true "Transaction ID"
// @Param payload body dto.SubmitNewPassengersRequest true "Passengers to add"
// @Success 201 {object} response.Envelope
// @Success 202 {object} response.Envelope
// @Router /transactions/{id}/passengers [post]
func (h *PassengerHandler) SubmitNewPassengers(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "passenger service not configured"))
		return
	}
	var req dto.SubmitNewPassengersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid passengers payload"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	result, err := h.service.SubmitNewPassengers(c.Request.Context(), c.Param("id"), req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	status := http.StatusCreated
	if result.AppliedCount == 0 {
		status = http.StatusAccepted
	}
	response.JSON(c, status, result, nil)
}
