package service

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/voemax/passenger-api/internal/models"
	"github.com/voemax/passenger-api/pkg/config"
	appErrors "github.com/voemax/passenger-api/pkg/errors"
	"github.com/voemax/passenger-api/pkg/storage"
)

func decidedRequest(t *testing.T) models.ApprovalRequest {
	t.Helper()
	changes, err := json.Marshal([]models.ChangeRecord{{
		Field:    models.FieldCPF,
		OldValue: "39053344705",
		NewValue: "11144477735",
		Critical: true,
	}})
	require.NoError(t, err)

	decidedAt := time.Date(2026, 3, 1, 13, 0, 0, 0, time.UTC)
	decidedBy := "seller-1"
	return models.ApprovalRequest{
		ID:            "req-1",
		TransactionID: "tx-1",
		BuyerID:       "buyer-1",
		SellerID:      "seller-1",
		Type:          models.ApprovalTypeEditPassenger,
		Changes:       changes,
		Reason:        "wrong document",
		Status:        models.ApprovalStatusApproved,
		CreatedAt:     time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC),
		DecidedAt:     &decidedAt,
		DecidedBy:     &decidedBy,
	}
}

func TestExportDecidedCSV(t *testing.T) {
	approvals := newApprovalStoreStub()
	approvals.listed = []models.ApprovalRequest{decidedRequest(t)}
	svc := NewExportService(approvals, nil, nil, config.ExportsConfig{Enabled: true, MaxRows: 100}, nil)

	result, err := svc.ExportDecided(context.Background(), ExportFormatCSV, "", sellerClaims())
	require.NoError(t, err)
	require.Equal(t, "text/csv", result.ContentType)
	require.True(t, strings.HasSuffix(result.Filename, ".csv"))

	body := string(result.Body)
	require.Contains(t, body, "req-1")
	require.Contains(t, body, "cpf: 39053344705 -> 11144477735")
	// Only terminal rows are requested.
	require.Equal(t, []models.ApprovalStatus{models.ApprovalStatusApproved, models.ApprovalStatusRejected}, approvals.filter.Status)
	require.Equal(t, "seller-1", approvals.filter.SellerID)
}

func TestExportDecidedPDF(t *testing.T) {
	approvals := newApprovalStoreStub()
	approvals.listed = []models.ApprovalRequest{decidedRequest(t)}
	svc := NewExportService(approvals, nil, nil, config.ExportsConfig{Enabled: true, MaxRows: 100}, nil)

	result, err := svc.ExportDecided(context.Background(), ExportFormatPDF, "", sellerClaims())
	require.NoError(t, err)
	require.Equal(t, "application/pdf", result.ContentType)
	require.True(t, strings.HasPrefix(string(result.Body), "%PDF"))
}

func TestExportDecidedBuyerForbidden(t *testing.T) {
	approvals := newApprovalStoreStub()
	svc := NewExportService(approvals, nil, nil, config.ExportsConfig{Enabled: true, MaxRows: 100}, nil)

	_, err := svc.ExportDecided(context.Background(), ExportFormatCSV, "", &models.JWTClaims{UserID: "buyer-1", Role: models.RoleBuyer})
	require.Error(t, err)
	require.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestExportDecidedUnknownFormat(t *testing.T) {
	approvals := newApprovalStoreStub()
	svc := NewExportService(approvals, nil, nil, config.ExportsConfig{Enabled: true, MaxRows: 100}, nil)

	_, err := svc.ExportDecided(context.Background(), "xlsx", "", sellerClaims())
	require.Error(t, err)
	require.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestExportDecidedArchivesAndDownloads(t *testing.T) {
	approvals := newApprovalStoreStub()
	approvals.listed = []models.ApprovalRequest{decidedRequest(t)}
	archive, err := storage.NewExportArchive(t.TempDir())
	require.NoError(t, err)
	signer := storage.NewDownloadSigner("secret", time.Hour)
	svc := NewExportService(approvals, archive, signer, config.ExportsConfig{Enabled: true, MaxRows: 100}, nil)

	result, err := svc.ExportDecided(context.Background(), ExportFormatCSV, "", sellerClaims())
	require.NoError(t, err)
	require.NotEmpty(t, result.DownloadToken)
	require.NotNil(t, result.TokenExpiresAt)

	downloaded, err := svc.Download(context.Background(), result.DownloadToken, sellerClaims())
	require.NoError(t, err)
	require.Equal(t, result.Body, downloaded.Body)
	require.Equal(t, "text/csv", downloaded.ContentType)

	// Another seller cannot use the link.
	_, err = svc.Download(context.Background(), result.DownloadToken, &models.JWTClaims{UserID: "seller-2", Role: models.RoleSeller})
	require.Error(t, err)
	require.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestExportDecidedDisabled(t *testing.T) {
	approvals := newApprovalStoreStub()
	svc := NewExportService(approvals, nil, nil, config.ExportsConfig{Enabled: false}, nil)

	_, err := svc.ExportDecided(context.Background(), ExportFormatCSV, "", sellerClaims())
	require.Error(t, err)
	require.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}
