package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/voemax/passenger-api/internal/dto"
	"github.com/voemax/passenger-api/internal/models"
	"github.com/voemax/passenger-api/internal/service"
	appErrors "github.com/voemax/passenger-api/pkg/errors"
	"github.com/voemax/passenger-api/pkg/response"
)

type approvalService interface {
	List(ctx context.Context, query dto.ApprovalQuery, actor *models.JWTClaims) ([]models.ApprovalRequest, error)
	Get(ctx context.Context, requestID string, actor *models.JWTClaims) (*models.ApprovalRequest, error)
	Decide(ctx context.Context, requestID string, req dto.DecideApprovalRequest, actor *models.JWTClaims) (*dto.DecideApprovalResult, error)
}

type exportService interface {
	ExportDecided(ctx context.Context, format service.ExportFormat, sellerID string, actor *models.JWTClaims) (*service.ExportResult, error)
	Download(ctx context.Context, token string, actor *models.JWTClaims) (*service.ExportResult, error)
}

// ApprovalHandler exposes the seller approval queue endpoints.
type ApprovalHandler struct {
	service approvalService
	exports exportService
}

// NewApprovalHandler constructs the handler.
func NewApprovalHandler(svc approvalService, exports exportService) *ApprovalHandler {
	return &ApprovalHandler{service: svc, exports: exports}
}

// List godoc
// @Summary List approval requests
// @Tags Approvals
// @Produce json
// @Param status query string false "Comma separated statuses"
// @Param type query string false "Request type"
// @Param transactionId query string false "Transaction ID"
// @Param limit query int false "Page size"
// @Param offset query int false "Page offset"
// @Success 200 {object} response.Envelope
// @Router /approvals [get]
func (h *ApprovalHandler) List(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "approval service not configured"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	query := dto.ApprovalQuery{
		TransactionID: strings.TrimSpace(c.Query("transactionId")),
	}
	if rawType := c.Query("type"); rawType != "" {
		query.Type = models.ApprovalType(strings.ToUpper(rawType))
	}
	if rawStatus := c.Query("status"); rawStatus != "" {
		parts := strings.Split(rawStatus, ",")
		statuses := make([]models.ApprovalStatus, 0, len(parts))
		for _, part := range parts {
			part = strings.ToUpper(strings.TrimSpace(part))
			if part == "" {
				continue
			}
			statuses = append(statuses, models.ApprovalStatus(part))
		}
		query.Status = statuses
	}
	query.Limit, _ = strconv.Atoi(c.Query("limit"))
	query.Offset, _ = strconv.Atoi(c.Query("offset"))

	requests, err := h.service.List(c.Request.Context(), query, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, requests, nil)
}

// Get godoc
// @Summary Get approval request detail
// @Tags Approvals
// @Produce json
// @Param id path string true "Approval request ID"
// @Success 200 {object} response.Envelope
// @Router /approvals/{id} [get]
func (h *ApprovalHandler) Get(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "approval service not configured"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	request, err := h.service.Get(c.Request.Context(), c.Param("id"), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, request, nil)
}

// Decide godoc
// @Summary Approve or reject a pending request
// @Tags Approvals
// @Accept json
// @Produce json
// @Param id path string true "Approval request ID"
// @Param payload body dto.DecideApprovalRequest true "Decision"
// @Success 200 {object} response.Envelope
// @Router /approvals/{id}/decision [post]
func (h *ApprovalHandler) Decide(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "approval service not configured"))
		return
	}
	var req dto.DecideApprovalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid decision payload"))
		return
	}
	req.Action = models.ApprovalAction(strings.ToUpper(string(req.Action)))
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	result, err := h.service.Decide(c.Request.Context(), c.Param("id"), req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Export godoc
// @Summary Export decided approval requests
// @Tags Approvals
// @Produce text/csv
// @Produce application/pdf
// @Param format query string false "csv or pdf" default(csv)
// @Param sellerId query string false "Seller ID (admin only)"
// @Success 200 {file} file
// @Router /approvals/export [get]
func (h *ApprovalHandler) Export(c *gin.Context) {
	if h.exports == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "export service not configured"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	format := service.ExportFormat(strings.ToLower(c.DefaultQuery("format", "csv")))
	result, err := h.exports.ExportDecided(c.Request.Context(), format, c.Query("sellerId"), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	if result.DownloadToken != "" {
		c.Header("X-Download-Token", result.DownloadToken)
	}
	c.Header("Content-Disposition", "attachment; filename="+result.Filename)
	c.Data(http.StatusOK, result.ContentType, result.Body)
}

// Download godoc
// @Summary Download a previously exported file
// @Tags Approvals
// @Produce text/csv
// @Produce application/pdf
// @Param token query string true "Signed download token"
// @Success 200 {file} file
// @Router /approvals/export/download [get]
func (h *ApprovalHandler) Download(c *gin.Context) {
	if h.exports == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "export service not configured"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	result, err := h.exports.Download(c.Request.Context(), c.Query("token"), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", "attachment; filename="+result.Filename)
	c.Data(http.StatusOK, result.ContentType, result.Body)
}
