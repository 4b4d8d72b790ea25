package service

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/voemax/passenger-api/internal/models"
	"github.com/voemax/passenger-api/pkg/config"
	appErrors "github.com/voemax/passenger-api/pkg/errors"
	"github.com/voemax/passenger-api/pkg/export"
	"github.com/voemax/passenger-api/pkg/storage"
)

// ExportFormat enumerates supported export encodings.
type ExportFormat string

const (
	ExportFormatCSV ExportFormat = "csv"
	ExportFormatPDF ExportFormat = "pdf"
)

// ExportResult carries rendered bytes plus the response headers to serve
// them with. DownloadToken is set when the export was archived; the file can
// be fetched again through the download endpoint until the token expires.
type ExportResult struct {
	ContentType string
	Filename    string
	Body        []byte

	DownloadToken  string
	TokenExpiresAt *time.Time
}

var approvalExportHeaders = []string{
	"Request ID", "Transaction ID", "Type", "Status", "Reason", "Changes", "Created At", "Decided At", "Decided By", "Decision Note",
}

// ExportService renders a seller's decided approval history as CSV or PDF
// for record keeping.
type ExportService struct {
	approvals approvalStore
	csv       *export.CSVExporter
	pdf       *export.PDFExporter
	archive   *storage.ExportArchive
	signer    *storage.DownloadSigner
	enabled   bool
	maxRows   int
	logger    *zap.Logger
}

// NewExportService constructs the service. Archive and signer are optional;
// without them exports stream inline only.
func NewExportService(approvals approvalStore, archive *storage.ExportArchive, signer *storage.DownloadSigner, cfg config.ExportsConfig, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	maxRows := cfg.MaxRows
	if maxRows <= 0 {
		maxRows = 1000
	}
	return &ExportService{
		approvals: approvals,
		csv:       export.NewCSVExporter(),
		pdf:       export.NewPDFExporter(),
		archive:   archive,
		signer:    signer,
		enabled:   cfg.Enabled,
		maxRows:   maxRows,
		logger:    logger,
	}
}

// ExportDecided renders the actor's decided approval requests. Sellers export
// their own queue history; admins may export any seller's by passing its id.
func (s *ExportService) ExportDecided(ctx context.Context, format ExportFormat, sellerID string, actor *models.JWTClaims) (*ExportResult, error) {
	if !s.enabled {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "approval exports are disabled")
	}
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	switch actor.Role {
	case models.RoleAdmin:
		if sellerID == "" {
			sellerID = actor.UserID
		}
	case models.RoleSeller:
		sellerID = actor.UserID
	default:
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only sellers may export approval history")
	}
	if format != ExportFormatCSV && format != ExportFormatPDF {
		return nil, appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
	}

	requests, err := s.approvals.List(ctx, models.ApprovalFilter{
		SellerID: sellerID,
		Status:   []models.ApprovalStatus{models.ApprovalStatusApproved, models.ApprovalStatusRejected},
		Limit:    s.maxRows,
	})
	if err != nil {
		return nil, appErrors.Infrastructure(err, "failed to load decided approvals")
	}

	dataset := export.Dataset{Headers: approvalExportHeaders, Rows: make([]map[string]string, 0, len(requests))}
	for _, request := range requests {
		dataset.Rows = append(dataset.Rows, approvalExportRow(request))
	}

	stamp := time.Now().UTC().Format("20060102_150405")
	result := &ExportResult{}
	switch format {
	case ExportFormatPDF:
		body, err := s.pdf.Render(dataset, "Approval decisions")
		if err != nil {
			return nil, appErrors.Infrastructure(err, "failed to render pdf export")
		}
		result.ContentType = "application/pdf"
		result.Filename = fmt.Sprintf("approval_decisions_%s.pdf", stamp)
		result.Body = body
	default:
		body, err := s.csv.Render(dataset)
		if err != nil {
			return nil, appErrors.Infrastructure(err, "failed to render csv export")
		}
		result.ContentType = "text/csv"
		result.Filename = fmt.Sprintf("approval_decisions_%s.csv", stamp)
		result.Body = body
	}
	s.archiveExport(sellerID, result)
	return result, nil
}

// archiveExport stores the rendered file and attaches a signed download
// token. Archiving is best effort; the inline response is unaffected when it
// fails.
func (s *ExportService) archiveExport(sellerID string, result *ExportResult) {
	if s.archive == nil || s.signer == nil {
		return
	}
	relPath := fmt.Sprintf("%s/%s", sellerID, result.Filename)
	if _, err := s.archive.Store(relPath, result.Body); err != nil {
		s.logger.Warn("failed to archive export", zap.Error(err))
		return
	}
	token, expiresAt, err := s.signer.Generate(sellerID, relPath)
	if err != nil {
		s.logger.Warn("failed to sign export download token", zap.Error(err))
		return
	}
	result.DownloadToken = token
	result.TokenExpiresAt = &expiresAt
}

// Download serves a previously archived export referenced by a signed token.
// The token owner must match the actor unless the actor is an admin.
func (s *ExportService) Download(ctx context.Context, token string, actor *models.JWTClaims) (*ExportResult, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if s.archive == nil || s.signer == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "export downloads are not available")
	}
	ownerID, relPath, _, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid or expired download token")
	}
	if actor.Role != models.RoleAdmin && actor.UserID != ownerID {
		return nil, appErrors.ErrForbidden
	}
	body, err := s.archive.Read(relPath)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "export no longer available")
	}
	filename := filepath.Base(relPath)
	contentType := "text/csv"
	if strings.HasSuffix(filename, ".pdf") {
		contentType = "application/pdf"
	}
	return &ExportResult{ContentType: contentType, Filename: filename, Body: body}, nil
}

func approvalExportRow(request models.ApprovalRequest) map[string]string {
	row := map[string]string{
		"Request ID":     request.ID,
		"Transaction ID": request.TransactionID,
		"Type":           string(request.Type),
		"Status":         string(request.Status),
		"Reason":         request.Reason,
		"Changes":        summarizeChanges(request),
		"Created At":     request.CreatedAt.Format(time.RFC3339),
	}
	if request.DecidedAt != nil {
		row["Decided At"] = request.DecidedAt.Format(time.RFC3339)
	}
	if request.DecidedBy != nil {
		row["Decided By"] = *request.DecidedBy
	}
	if request.DecisionNote != nil {
		row["Decision Note"] = *request.DecisionNote
	}
	return row
}

// summarizeChanges flattens the stored mutation into one readable cell.
func summarizeChanges(request models.ApprovalRequest) string {
	if request.Type == models.ApprovalTypeEditPassenger {
		var changes []models.ChangeRecord
		if err := json.Unmarshal(request.Changes, &changes); err != nil {
			return ""
		}
		parts := make([]string, 0, len(changes))
		for _, change := range changes {
			parts = append(parts, fmt.Sprintf("%s: %s -> %s", change.Field, change.OldValue, change.NewValue))
		}
		return strings.Join(parts, "; ")
	}
	var data map[string]string
	if err := json.Unmarshal(request.NewPassengerData, &data); err != nil {
		return ""
	}
	return fmt.Sprintf("add %s (%s)", data["fullName"], data["cpf"])
}
