package handler

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voemax/passenger-api/internal/dto"
	"github.com/voemax/passenger-api/internal/middleware"
	"github.com/voemax/passenger-api/internal/models"
	appErrors "github.com/voemax/passenger-api/pkg/errors"
)

type passengerServiceMock struct {
	editResp   *dto.SubmitEditResult
	editErr    error
	addResp    *dto.SubmitNewPassengersResult
	addErr     error
	editCalled bool
	addCalled  bool
	lastEdit   dto.SubmitEditRequest
}

func (m *passengerServiceMock) SubmitEdit(ctx context.Context, transactionID, passengerID string, req dto.SubmitEditRequest, actor *models.JWTClaims) (*dto.SubmitEditResult, error) {
	m.editCalled = true
	m.lastEdit = req
	return m.editResp, m.editErr
}

func (m *passengerServiceMock) SubmitNewPassengers(ctx context.Context, transactionID string, req dto.SubmitNewPassengersRequest, actor *models.JWTClaims) (*dto.SubmitNewPassengersResult, error) {
	m.addCalled = true
	return m.addResp, m.addErr
}

func buyerContext(t *testing.T, method, target, body string) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	var reader *bytes.Buffer
	if body != "" {
		reader = bytes.NewBufferString(body)
	} else {
		reader = &bytes.Buffer{}
	}
	req, err := http.NewRequest(method, target, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "buyer-1", Role: models.RoleBuyer})
	return c, w
}

func TestPassengerHandlerSubmitEditApplied(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &passengerServiceMock{
		editResp: &dto.SubmitEditResult{Applied: true},
	}
	handler := NewPassengerHandler(mockSvc)

	c, w := buyerContext(t, http.MethodPost, "/transactions/tx-1/passengers/pax-1/edits",
		`{"fields":{"fullName":"Maria Souza"}}`)
	c.Params = gin.Params{{Key: "id", Value: "tx-1"}, {Key: "passengerId", Value: "pax-1"}}

	handler.SubmitEdit(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, mockSvc.editCalled)
	assert.Equal(t, "Maria Souza", mockSvc.lastEdit.Fields["fullName"])
}

func TestPassengerHandlerSubmitEditQueuedReturnsAccepted(t *testing.T) {
	gin.SetMode(gin.TestMode)
	id := "req-1"
	mockSvc := &passengerServiceMock{
		editResp: &dto.SubmitEditResult{Applied: false, ApprovalRequestID: &id},
	}
	handler := NewPassengerHandler(mockSvc)

	c, w := buyerContext(t, http.MethodPost, "/transactions/tx-1/passengers/pax-1/edits",
		`{"fields":{"cpf":"111.444.777-35"}}`)
	c.Params = gin.Params{{Key: "id", Value: "tx-1"}, {Key: "passengerId", Value: "pax-1"}}

	handler.SubmitEdit(c)
	require.Equal(t, http.StatusAccepted, w.Code)
}

func TestPassengerHandlerSubmitEditMissingReason(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &passengerServiceMock{editErr: appErrors.ErrMissingReason}
	handler := NewPassengerHandler(mockSvc)

	c, w := buyerContext(t, http.MethodPost, "/transactions/tx-1/passengers/pax-1/edits",
		`{"fields":{"email":"new@example.com"}}`)
	c.Params = gin.Params{{Key: "id", Value: "tx-1"}, {Key: "passengerId", Value: "pax-1"}}

	handler.SubmitEdit(c)
	require.Equal(t, appErrors.ErrMissingReason.Status, w.Code)
}

func TestPassengerHandlerSubmitEditInvalidBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &passengerServiceMock{}
	handler := NewPassengerHandler(mockSvc)

	c, w := buyerContext(t, http.MethodPost, "/transactions/tx-1/passengers/pax-1/edits", `{"fields":`)
	c.Params = gin.Params{{Key: "id", Value: "tx-1"}, {Key: "passengerId", Value: "pax-1"}}

	handler.SubmitEdit(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.False(t, mockSvc.editCalled)
}

func TestPassengerHandlerSubmitEditUnauthenticated(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewPassengerHandler(&passengerServiceMock{})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/transactions/tx-1/passengers/pax-1/edits",
		bytes.NewBufferString(`{"fields":{"fullName":"x"}}`))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req

	handler.SubmitEdit(c)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestPassengerHandlerSubmitNewPassengersQueued(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &passengerServiceMock{
		addResp: &dto.SubmitNewPassengersResult{QueuedApprovalRequestIDs: []string{"req-1"}},
	}
	handler := NewPassengerHandler(mockSvc)

	c, w := buyerContext(t, http.MethodPost, "/transactions/tx-1/passengers",
		`{"passengers":[{"fullName":"Joao Santos","cpf":"390.533.447-05","birthDate":"1985-06-10","email":"joao@example.com","fareType":"ECONOMY"}]}`)
	c.Params = gin.Params{{Key: "id", Value: "tx-1"}}

	handler.SubmitNewPassengers(c)
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.True(t, mockSvc.addCalled)
}

func TestPassengerHandlerSubmitNewPassengersCapacity(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &passengerServiceMock{addErr: appErrors.ErrCapacityExceeded}
	handler := NewPassengerHandler(mockSvc)

	c, w := buyerContext(t, http.MethodPost, "/transactions/tx-1/passengers",
		`{"passengers":[{"fullName":"Joao Santos","cpf":"390.533.447-05","birthDate":"1985-06-10","email":"joao@example.com","fareType":"ECONOMY"}]}`)
	c.Params = gin.Params{{Key: "id", Value: "tx-1"}}

	handler.SubmitNewPassengers(c)
	require.Equal(t, appErrors.ErrCapacityExceeded.Status, w.Code)
}
