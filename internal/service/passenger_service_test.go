package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/voemax/passenger-api/internal/dto"
	"github.com/voemax/passenger-api/internal/models"
	"github.com/voemax/passenger-api/internal/repository"
	"github.com/voemax/passenger-api/pkg/config"
	appErrors "github.com/voemax/passenger-api/pkg/errors"
)

type transactionStoreStub struct {
	transactions map[string]*models.Transaction
}

func newTransactionStoreStub() *transactionStoreStub {
	return &transactionStoreStub{transactions: make(map[string]*models.Transaction)}
}

func (s *transactionStoreStub) GetByID(ctx context.Context, id string) (*models.Transaction, error) {
	if tx, ok := s.transactions[id]; ok {
		copy := *tx
		return &copy, nil
	}
	return nil, sql.ErrNoRows
}

type passengerStoreStub struct {
	mu         sync.Mutex
	passengers map[string]*models.Passenger
	created    int
}

func newPassengerStoreStub() *passengerStoreStub {
	return &passengerStoreStub{passengers: make(map[string]*models.Passenger)}
}

func (s *passengerStoreStub) Create(ctx context.Context, p *models.Passenger) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.created++
	if p.ID == "" {
		p.ID = fmt.Sprintf("created-%d", s.created)
	}
	copy := *p
	s.passengers[p.ID] = &copy
	return nil
}

func (s *passengerStoreStub) GetByID(ctx context.Context, id string) (*models.Passenger, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.passengers[id]; ok {
		copy := *p
		return &copy, nil
	}
	return nil, sql.ErrNoRows
}

func (s *passengerStoreStub) ListByTransaction(ctx context.Context, transactionID string) ([]models.Passenger, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	result := make([]models.Passenger, 0, len(s.passengers))
	for _, p := range s.passengers {
		if p.TransactionID == transactionID {
			result = append(result, *p)
		}
	}
	return result, nil
}

func (s *passengerStoreStub) CountByTransaction(ctx context.Context, transactionID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, p := range s.passengers {
		if p.TransactionID == transactionID {
			count++
		}
	}
	return count, nil
}

func (s *passengerStoreStub) ApplyChanges(ctx context.Context, id string, version int, changes []models.ChangeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.passengers[id]
	if !ok || p.Version != version {
		return sql.ErrNoRows
	}
	for _, change := range changes {
		setPassengerValue(p, change.Field, change.NewValue)
	}
	p.Version++
	return nil
}

type approvalStoreStub struct {
	mu       sync.Mutex
	requests map[string]*models.ApprovalRequest
	filter   models.ApprovalFilter
	listed   []models.ApprovalRequest
	seq      int
}

func newApprovalStoreStub() *approvalStoreStub {
	return &approvalStoreStub{requests: make(map[string]*models.ApprovalRequest)}
}

func (s *approvalStoreStub) Create(ctx context.Context, request *models.ApprovalRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if request.ID == "" {
		s.seq++
		request.ID = fmt.Sprintf("request-%d", s.seq)
	}
	if request.CreatedAt.IsZero() {
		request.CreatedAt = time.Now().UTC()
	}
	copy := *request
	s.requests[request.ID] = &copy
	return nil
}

func (s *approvalStoreStub) GetByID(ctx context.Context, id string) (*models.ApprovalRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if request, ok := s.requests[id]; ok {
		copy := *request
		return &copy, nil
	}
	return nil, sql.ErrNoRows
}

func (s *approvalStoreStub) List(ctx context.Context, filter models.ApprovalFilter) ([]models.ApprovalRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.filter = filter
	if s.listed != nil {
		return s.listed, nil
	}
	result := make([]models.ApprovalRequest, 0, len(s.requests))
	for _, request := range s.requests {
		result = append(result, *request)
	}
	return result, nil
}

func (s *approvalStoreStub) Decide(ctx context.Context, params repository.DecideParams) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	request, ok := s.requests[params.ID]
	if !ok || request.Status != models.ApprovalStatusPending {
		return sql.ErrNoRows
	}
	request.Status = params.Status
	request.DecidedBy = &params.DecidedBy
	request.DecidedAt = &params.DecidedAt
	request.DecisionNote = params.Note
	return nil
}

type notifyStub struct {
	events []struct {
		Recipient string
		Type      models.NotificationType
		Payload   map[string]interface{}
	}
}

func (n *notifyStub) Trigger(recipientID string, ntype models.NotificationType, payload map[string]interface{}) {
	n.events = append(n.events, struct {
		Recipient string
		Type      models.NotificationType
		Payload   map[string]interface{}
	}{recipientID, ntype, payload})
}

type auditStub struct {
	logs []*models.AuditLog
}

func (a *auditStub) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	a.logs = append(a.logs, log)
	return nil
}

type cacheStub struct {
	values  map[string][]byte
	deleted []string
}

func newCacheStub() *cacheStub {
	return &cacheStub{values: make(map[string][]byte)}
}

func (c *cacheStub) Get(ctx context.Context, key string, dest interface{}) error {
	raw, ok := c.values[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (c *cacheStub) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.values[key] = raw
	return nil
}

func (c *cacheStub) Delete(ctx context.Context, key string) error {
	c.deleted = append(c.deleted, key)
	delete(c.values, key)
	return nil
}

type passengerFixture struct {
	svc        *PassengerService
	tx         *transactionStoreStub
	passengers *passengerStoreStub
	approvals  *approvalStoreStub
	audit      *auditStub
	notify     *notifyStub
	cache      *cacheStub
	locks      *TransactionLocks
}

func newPassengerFixture(now time.Time) *passengerFixture {
	f := &passengerFixture{
		tx:         newTransactionStoreStub(),
		passengers: newPassengerStoreStub(),
		approvals:  newApprovalStoreStub(),
		audit:      &auditStub{},
		notify:     &notifyStub{},
		cache:      newCacheStub(),
		locks:      NewTransactionLocks(),
	}
	policy := NewEditPolicy(config.EditPolicyConfig{FreeWindow: 15 * time.Minute, MaxPassengers: 6})
	clock := ClockFunc(func() time.Time { return now })
	f.svc = NewPassengerService(f.tx, f.passengers, f.approvals, f.audit, f.notify, f.cache, policy, clock, f.locks, nil)
	return f
}

var transactionCreatedAt = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func seedTransaction(f *passengerFixture) *models.Transaction {
	tx := &models.Transaction{
		ID:        "tx-1",
		OfferID:   "offer-1",
		BuyerID:   "buyer-1",
		SellerID:  "seller-1",
		Status:    models.TransactionStatusActive,
		CreatedAt: transactionCreatedAt,
	}
	f.tx.transactions[tx.ID] = tx
	return tx
}

func seedPassenger(f *passengerFixture) *models.Passenger {
	p := &models.Passenger{
		ID:            "pax-1",
		TransactionID: "tx-1",
		FullName:      "Maria Silva",
		CPF:           "39053344705",
		BirthDate:     "1990-01-02",
		Email:         "maria@example.com",
		FareType:      models.FareEconomy,
		Version:       1,
	}
	f.passengers.passengers[p.ID] = p
	return p
}

func buyerClaims() *models.JWTClaims {
	return &models.JWTClaims{UserID: "buyer-1", Role: models.RoleBuyer}
}

func TestSubmitEditNormalFieldInsideWindowApplies(t *testing.T) {
	f := newPassengerFixture(transactionCreatedAt.Add(5 * time.Minute))
	seedTransaction(f)
	seedPassenger(f)

	result, err := f.svc.SubmitEdit(context.Background(), "tx-1", "pax-1", dto.SubmitEditRequest{
		Fields: models.PassengerFields{models.FieldFullName: "Maria Souza"},
	}, buyerClaims())
	require.NoError(t, err)
	require.True(t, result.Applied)
	require.Nil(t, result.ApprovalRequestID)
	require.Equal(t, "Maria Souza", f.passengers.passengers["pax-1"].FullName)
	require.Equal(t, 2, f.passengers.passengers["pax-1"].Version)
	require.Empty(t, f.approvals.requests)
	require.Empty(t, f.notify.events)
	require.Len(t, f.audit.logs, 1)
}

func TestSubmitEditCriticalFieldInsideWindowQueues(t *testing.T) {
	f := newPassengerFixture(transactionCreatedAt.Add(5 * time.Minute))
	seedTransaction(f)
	seedPassenger(f)

	result, err := f.svc.SubmitEdit(context.Background(), "tx-1", "pax-1", dto.SubmitEditRequest{
		Fields: models.PassengerFields{models.FieldCPF: "111.444.777-35"},
	}, buyerClaims())
	require.NoError(t, err)
	require.False(t, result.Applied)
	require.NotNil(t, result.ApprovalRequestID)

	// The live passenger is untouched until the seller approves.
	require.Equal(t, "39053344705", f.passengers.passengers["pax-1"].CPF)
	require.Len(t, f.approvals.requests, 1)
	request := f.approvals.requests[*result.ApprovalRequestID]
	require.Equal(t, models.ApprovalTypeEditPassenger, request.Type)
	require.Equal(t, models.ApprovalStatusPending, request.Status)

	require.Len(t, f.notify.events, 1)
	require.Equal(t, "seller-1", f.notify.events[0].Recipient)
	require.Equal(t, models.NotificationApprovalNeeded, f.notify.events[0].Type)
}

func TestSubmitEditOutsideWindowRequiresReason(t *testing.T) {
	f := newPassengerFixture(transactionCreatedAt.Add(20 * time.Minute))
	seedTransaction(f)
	seedPassenger(f)

	_, err := f.svc.SubmitEdit(context.Background(), "tx-1", "pax-1", dto.SubmitEditRequest{
		Fields: models.PassengerFields{models.FieldEmail: "new@example.com"},
	}, buyerClaims())
	require.Error(t, err)
	require.Equal(t, appErrors.ErrMissingReason.Code, appErrors.FromError(err).Code)
	require.Empty(t, f.approvals.requests)

	result, err := f.svc.SubmitEdit(context.Background(), "tx-1", "pax-1", dto.SubmitEditRequest{
		Fields: models.PassengerFields{models.FieldEmail: "new@example.com"},
		Reason: "typo in email",
	}, buyerClaims())
	require.NoError(t, err)
	require.False(t, result.Applied)
	require.Len(t, f.approvals.requests, 1)
	require.Equal(t, "typo in email", f.approvals.requests[*result.ApprovalRequestID].Reason)
}

func TestSubmitEditNoopWhenValuesEqualAfterNormalization(t *testing.T) {
	f := newPassengerFixture(transactionCreatedAt.Add(20 * time.Minute))
	seedTransaction(f)
	seedPassenger(f)

	// Masked CPF equal to stored digits, outside the window, no reason: still
	// a successful no-op because nothing actually changes.
	result, err := f.svc.SubmitEdit(context.Background(), "tx-1", "pax-1", dto.SubmitEditRequest{
		Fields: models.PassengerFields{models.FieldCPF: "390.533.447-05"},
	}, buyerClaims())
	require.NoError(t, err)
	require.True(t, result.Applied)
	require.Empty(t, result.Changes)
	require.Empty(t, f.approvals.requests)
	require.Empty(t, f.audit.logs)
	require.Empty(t, f.notify.events)
}

func TestSubmitEditUnknownFieldRejected(t *testing.T) {
	f := newPassengerFixture(transactionCreatedAt.Add(5 * time.Minute))
	seedTransaction(f)
	seedPassenger(f)

	_, err := f.svc.SubmitEdit(context.Background(), "tx-1", "pax-1", dto.SubmitEditRequest{
		Fields: models.PassengerFields{"seatPreference": "window"},
	}, buyerClaims())
	require.Error(t, err)
	require.Equal(t, appErrors.ErrUnknownField.Code, appErrors.FromError(err).Code)
}

func TestSubmitEditForbiddenForNonBuyer(t *testing.T) {
	f := newPassengerFixture(transactionCreatedAt.Add(5 * time.Minute))
	seedTransaction(f)
	seedPassenger(f)

	_, err := f.svc.SubmitEdit(context.Background(), "tx-1", "pax-1", dto.SubmitEditRequest{
		Fields: models.PassengerFields{models.FieldFullName: "Someone Else"},
	}, &models.JWTClaims{UserID: "seller-1", Role: models.RoleSeller})
	require.Error(t, err)
	require.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func validNewPassenger(name, cpf string) dto.NewPassengerData {
	return dto.NewPassengerData{
		FullName:  name,
		CPF:       cpf,
		BirthDate: "1985-06-10",
		Email:     "traveller@example.com",
		FareType:  "ECONOMY",
	}
}

func TestSubmitNewPassengersInsideWindowCreates(t *testing.T) {
	f := newPassengerFixture(transactionCreatedAt.Add(5 * time.Minute))
	seedTransaction(f)

	result, err := f.svc.SubmitNewPassengers(context.Background(), "tx-1", dto.SubmitNewPassengersRequest{
		Passengers: []dto.NewPassengerData{validNewPassenger("Joao Santos", "390.533.447-05")},
	}, buyerClaims())
	require.NoError(t, err)
	require.Equal(t, 1, result.AppliedCount)
	require.Empty(t, result.QueuedApprovalRequestIDs)
	require.Equal(t, 1, f.passengers.created)
	// Normalized before storage.
	require.Equal(t, "39053344705", result.Applied[0].CPF)
}

func TestSubmitNewPassengersOutsideWindowQueuesPerPassenger(t *testing.T) {
	f := newPassengerFixture(transactionCreatedAt.Add(30 * time.Minute))
	seedTransaction(f)

	result, err := f.svc.SubmitNewPassengers(context.Background(), "tx-1", dto.SubmitNewPassengersRequest{
		Passengers: []dto.NewPassengerData{
			validNewPassenger("Joao Santos", "390.533.447-05"),
			validNewPassenger("Ana Santos", "111.444.777-35"),
		},
	}, buyerClaims())
	require.NoError(t, err)
	require.Zero(t, result.AppliedCount)
	require.Len(t, result.QueuedApprovalRequestIDs, 2)
	require.Zero(t, f.passengers.created)
	require.Len(t, f.approvals.requests, 2)

	// One aggregated notification for the batch.
	require.Len(t, f.notify.events, 1)
	require.Equal(t, 2, f.notify.events[0].Payload["queuedCount"])
}

func TestSubmitNewPassengersCapacityRejectsWholeBatch(t *testing.T) {
	f := newPassengerFixture(transactionCreatedAt.Add(5 * time.Minute))
	seedTransaction(f)
	for i := 0; i < 5; i++ {
		p := &models.Passenger{ID: string(rune('A' + i)), TransactionID: "tx-1"}
		f.passengers.passengers[p.ID] = p
	}

	_, err := f.svc.SubmitNewPassengers(context.Background(), "tx-1", dto.SubmitNewPassengersRequest{
		Passengers: []dto.NewPassengerData{
			validNewPassenger("Joao Santos", "390.533.447-05"),
			validNewPassenger("Ana Santos", "111.444.777-35"),
		},
	}, buyerClaims())
	require.Error(t, err)
	require.Equal(t, appErrors.ErrCapacityExceeded.Code, appErrors.FromError(err).Code)
	// 5 existing + 2 submitted exceeds 6: nothing is created, not even one.
	require.Zero(t, f.passengers.created)
	require.Empty(t, f.approvals.requests)
}

func TestSubmitNewPassengersInvalidCPFRejected(t *testing.T) {
	f := newPassengerFixture(transactionCreatedAt.Add(5 * time.Minute))
	seedTransaction(f)

	_, err := f.svc.SubmitNewPassengers(context.Background(), "tx-1", dto.SubmitNewPassengersRequest{
		Passengers: []dto.NewPassengerData{validNewPassenger("Joao Santos", "111.111.111-11")},
	}, buyerClaims())
	require.Error(t, err)
	require.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestGetTransactionDetailReportsWindow(t *testing.T) {
	f := newPassengerFixture(transactionCreatedAt.Add(5 * time.Minute))
	seedTransaction(f)
	seedPassenger(f)

	detail, err := f.svc.GetTransactionDetail(context.Background(), "tx-1", buyerClaims())
	require.NoError(t, err)
	require.True(t, detail.EditWindow.Open)
	require.Equal(t, int64(600), detail.EditWindow.RemainingSeconds)
	require.Equal(t, 1, detail.PassengerCount)
	require.Equal(t, 6, detail.MaxPassengers)
}
