package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/voemax/passenger-api/internal/dto"
	"github.com/voemax/passenger-api/internal/models"
	"github.com/voemax/passenger-api/internal/repository"
	appErrors "github.com/voemax/passenger-api/pkg/errors"
)

type transactionStore interface {
	GetByID(ctx context.Context, id string) (*models.Transaction, error)
}

type passengerStore interface {
	Create(ctx context.Context, p *models.Passenger) error
	GetByID(ctx context.Context, id string) (*models.Passenger, error)
	ListByTransaction(ctx context.Context, transactionID string) ([]models.Passenger, error)
	CountByTransaction(ctx context.Context, transactionID string) (int, error)
	ApplyChanges(ctx context.Context, id string, version int, changes []models.ChangeRecord) error
}

type approvalStore interface {
	Create(ctx context.Context, request *models.ApprovalRequest) error
	GetByID(ctx context.Context, id string) (*models.ApprovalRequest, error)
	List(ctx context.Context, filter models.ApprovalFilter) ([]models.ApprovalRequest, error)
	Decide(ctx context.Context, params repository.DecideParams) error
}

type auditLogger interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// notificationTrigger fires workflow events at recipients. Implementations
// are fire-and-forget; failures never surface to the calling request.
type notificationTrigger interface {
	Trigger(recipientID string, ntype models.NotificationType, payload map[string]interface{})
}

type cacheStore interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

func pendingApprovalsCacheKey(sellerID string) string {
	return fmt.Sprintf("approvals:pending:%s", sellerID)
}

// PassengerService is the decision engine for passenger data mutations: it
// routes each edit or add either to an immediate apply or onto the seller
// approval queue, per the window and criticality policy.
type PassengerService struct {
	transactions transactionStore
	passengers   passengerStore
	approvals    approvalStore
	audit        auditLogger
	notify       notificationTrigger
	cache        cacheStore
	policy       *EditPolicy
	clock        Clock
	validator    *validator.Validate
	logger       *zap.Logger
	locks        *TransactionLocks
	metrics      *MetricsService
}

// NewPassengerService constructs the service.
func NewPassengerService(
	transactions transactionStore,
	passengers passengerStore,
	approvals approvalStore,
	audit auditLogger,
	notify notificationTrigger,
	cache cacheStore,
	policy *EditPolicy,
	clock Clock,
	locks *TransactionLocks,
	logger *zap.Logger,
) *PassengerService {
	if clock == nil {
		clock = SystemClock()
	}
	if locks == nil {
		locks = NewTransactionLocks()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PassengerService{
		transactions: transactions,
		passengers:   passengers,
		approvals:    approvals,
		audit:        audit,
		notify:       notify,
		cache:        cache,
		policy:       policy,
		clock:        clock,
		validator:    newPassengerValidator(),
		logger:       logger,
		locks:        locks,
	}
}

// WithMetrics attaches Prometheus instrumentation. Safe to skip.
func (s *PassengerService) WithMetrics(m *MetricsService) *PassengerService {
	s.metrics = m
	return s
}

// GetTransactionDetail returns a transaction with its live edit-window state.
func (s *PassengerService) GetTransactionDetail(ctx context.Context, transactionID string, actor *models.JWTClaims) (*dto.TransactionDetail, error) {
	tx, err := s.loadTransaction(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeParticipant(tx, actor); err != nil {
		return nil, err
	}
	count, err := s.passengers.CountByTransaction(ctx, transactionID)
	if err != nil {
		return nil, appErrors.Infrastructure(err, "failed to count passengers")
	}
	now := s.clock.Now()
	return &dto.TransactionDetail{
		Transaction: *tx,
		EditWindow: dto.EditWindowStatus{
			Open:             s.policy.IsWithinFreeWindow(tx.CreatedAt, now),
			RemainingSeconds: s.policy.RemainingSeconds(tx.CreatedAt, now),
		},
		PassengerCount: count,
		MaxPassengers:  s.policy.MaxPassengers(),
	}, nil
}

// ListPassengers returns the materialized travellers on a transaction.
func (s *PassengerService) ListPassengers(ctx context.Context, transactionID string, actor *models.JWTClaims) ([]models.Passenger, error) {
	tx, err := s.loadTransaction(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeParticipant(tx, actor); err != nil {
		return nil, err
	}
	passengers, err := s.passengers.ListByTransaction(ctx, transactionID)
	if err != nil {
		return nil, appErrors.Infrastructure(err, "failed to list passengers")
	}
	return passengers, nil
}

// SubmitEdit routes a passenger data edit: empty diffs succeed as no-ops,
// normal-only changes inside the free window apply immediately, and anything
// critical or late is queued for seller approval.
func (s *PassengerService) SubmitEdit(ctx context.Context, transactionID, passengerID string, req dto.SubmitEditRequest, actor *models.JWTClaims) (*dto.SubmitEditResult, error) {
	if len(req.Fields) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "fields is required")
	}
	tx, err := s.loadTransaction(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeBuyer(tx, actor); err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(transactionID)
	defer unlock()

	passenger, err := s.passengers.GetByID(ctx, passengerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "passenger not found")
		}
		return nil, appErrors.Infrastructure(err, "failed to load passenger")
	}
	if passenger.TransactionID != transactionID {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "passenger not found on this transaction")
	}

	changes, err := s.policy.Diff(passenger, req.Fields)
	if err != nil {
		return nil, err
	}
	if len(changes) == 0 {
		// Nothing differs: a successful apply with zero side effects.
		return &dto.SubmitEditResult{Applied: true, Passenger: passenger}, nil
	}

	now := s.clock.Now()
	withinWindow := s.policy.IsWithinFreeWindow(tx.CreatedAt, now)
	critical := HasCriticalChange(changes)

	if !critical && withinWindow {
		if err := s.passengers.ApplyChanges(ctx, passenger.ID, passenger.Version, changes); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrConflict, "passenger was modified concurrently, retry the edit")
			}
			return nil, appErrors.Infrastructure(err, "failed to apply passenger edit")
		}
		applied := *passenger
		for _, change := range changes {
			setPassengerValue(&applied, change.Field, change.NewValue)
		}
		applied.Version++
		applied.LastModifiedAt = now
		s.emitAudit(ctx, actor, models.AuditActionEditApplied, "passenger", passenger.ID, changes)
		return &dto.SubmitEditResult{Applied: true, Passenger: &applied, Changes: changes}, nil
	}

	if !withinWindow && req.Reason == "" {
		return nil, appErrors.ErrMissingReason
	}

	payload, err := json.Marshal(changes)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to encode changes")
	}
	request := &models.ApprovalRequest{
		TransactionID:     transactionID,
		BuyerID:           tx.BuyerID,
		SellerID:          tx.SellerID,
		Type:              models.ApprovalTypeEditPassenger,
		TargetPassengerID: &passenger.ID,
		Changes:           payload,
		Reason:            req.Reason,
		Status:            models.ApprovalStatusPending,
	}
	if err := s.approvals.Create(ctx, request); err != nil {
		return nil, appErrors.Infrastructure(err, "failed to queue approval request")
	}

	s.invalidatePendingCache(ctx, tx.SellerID)
	s.metrics.RecordApprovalQueued(string(models.ApprovalTypeEditPassenger))
	s.notify.Trigger(tx.SellerID, models.NotificationApprovalNeeded, map[string]interface{}{
		"transactionId":     transactionID,
		"approvalRequestId": request.ID,
		"requestType":       models.ApprovalTypeEditPassenger,
		"critical":          critical,
		"queuedCount":       1,
	})
	s.emitAudit(ctx, actor, models.AuditActionEditQueued, "approval_request", request.ID, changes)

	return &dto.SubmitEditResult{Applied: false, ApprovalRequestID: &request.ID, Changes: changes}, nil
}

// SubmitNewPassengers adds travellers to a transaction. The batch is checked
// against the capacity ceiling atomically; inside the free window travellers
// materialize directly, outside it each one becomes an independently
// decidable approval request. Unlike late edits, queued additions do not
// require a reason; when one is given it is recorded on every request in the
// batch.
func (s *PassengerService) SubmitNewPassengers(ctx context.Context, transactionID string, req dto.SubmitNewPassengersRequest, actor *models.JWTClaims) (*dto.SubmitNewPassengersResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid passenger payload")
	}
	tx, err := s.loadTransaction(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeBuyer(tx, actor); err != nil {
		return nil, err
	}

	normalized, err := normalizePassengerBatch(req.Passengers)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(transactionID)
	defer unlock()

	count, err := s.passengers.CountByTransaction(ctx, transactionID)
	if err != nil {
		return nil, appErrors.Infrastructure(err, "failed to count passengers")
	}
	if err := s.policy.CheckCapacity(count, len(normalized)); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	result := &dto.SubmitNewPassengersResult{}

	if s.policy.IsWithinFreeWindow(tx.CreatedAt, now) {
		for _, data := range normalized {
			passenger := &models.Passenger{
				TransactionID: transactionID,
				FullName:      data.FullName,
				CPF:           data.CPF,
				BirthDate:     data.BirthDate,
				Email:         data.Email,
				FareType:      models.FareType(data.FareType),
			}
			if err := s.passengers.Create(ctx, passenger); err != nil {
				return nil, appErrors.Infrastructure(err, "failed to create passenger")
			}
			result.Applied = append(result.Applied, *passenger)
			s.emitAudit(ctx, actor, models.AuditActionAddApplied, "passenger", passenger.ID, data)
		}
		result.AppliedCount = len(result.Applied)
		return result, nil
	}

	// One request per traveller so the seller can accept some and reject
	// others.
	for _, data := range normalized {
		payload, err := json.Marshal(data)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to encode passenger data")
		}
		request := &models.ApprovalRequest{
			TransactionID:    transactionID,
			BuyerID:          tx.BuyerID,
			SellerID:         tx.SellerID,
			Type:             models.ApprovalTypeAddPassenger,
			NewPassengerData: payload,
			Reason:           req.Reason,
			Status:           models.ApprovalStatusPending,
		}
		if err := s.approvals.Create(ctx, request); err != nil {
			return nil, appErrors.Infrastructure(err, "failed to queue approval request")
		}
		result.QueuedApprovalRequestIDs = append(result.QueuedApprovalRequestIDs, request.ID)
		s.metrics.RecordApprovalQueued(string(models.ApprovalTypeAddPassenger))
		s.emitAudit(ctx, actor, models.AuditActionAddQueued, "approval_request", request.ID, data)
	}

	if len(result.QueuedApprovalRequestIDs) > 0 {
		s.invalidatePendingCache(ctx, tx.SellerID)
		s.notify.Trigger(tx.SellerID, models.NotificationApprovalNeeded, map[string]interface{}{
			"transactionId": transactionID,
			"requestType":   models.ApprovalTypeAddPassenger,
			"queuedCount":   len(result.QueuedApprovalRequestIDs),
		})
	}
	return result, nil
}

func (s *PassengerService) loadTransaction(ctx context.Context, id string) (*models.Transaction, error) {
	tx, err := s.transactions.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "transaction not found")
		}
		return nil, appErrors.Infrastructure(err, "failed to load transaction")
	}
	return tx, nil
}

func (s *PassengerService) authorizeBuyer(tx *models.Transaction, actor *models.JWTClaims) error {
	if actor == nil {
		return appErrors.ErrUnauthorized
	}
	if actor.Role == models.RoleAdmin || actor.UserID == tx.BuyerID {
		return nil
	}
	return appErrors.Clone(appErrors.ErrForbidden, "only the transaction buyer may submit passenger data")
}

func (s *PassengerService) authorizeParticipant(tx *models.Transaction, actor *models.JWTClaims) error {
	if actor == nil {
		return appErrors.ErrUnauthorized
	}
	if actor.Role == models.RoleAdmin || actor.UserID == tx.BuyerID || actor.UserID == tx.SellerID {
		return nil
	}
	return appErrors.ErrForbidden
}

func (s *PassengerService) invalidatePendingCache(ctx context.Context, sellerID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, pendingApprovalsCacheKey(sellerID)); err != nil {
		s.logger.Warn("failed to invalidate pending approvals cache", zap.Error(err))
	}
}

func (s *PassengerService) emitAudit(ctx context.Context, actor *models.JWTClaims, action, resource, resourceID string, details interface{}) {
	if s.audit == nil {
		return
	}
	log := &models.AuditLog{
		Action:     action,
		Resource:   resource,
		ResourceID: &resourceID,
		IPAddress:  "system",
		UserAgent:  "passenger-service",
	}
	if actor != nil {
		userID := actor.UserID
		log.UserID = &userID
	}
	if details != nil {
		if payload, err := json.Marshal(details); err == nil {
			log.NewValues = payload
		}
	}
	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("failed to persist audit log", zap.Error(err))
	}
}

func normalizePassengerBatch(batch []dto.NewPassengerData) ([]dto.NewPassengerData, error) {
	normalized := make([]dto.NewPassengerData, 0, len(batch))
	for i, data := range batch {
		cpf, err := NormalizeField(models.FieldCPF, data.CPF)
		if err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("passenger %d: invalid CPF", i+1))
		}
		birthDate, err := NormalizeField(models.FieldBirthDate, data.BirthDate)
		if err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("passenger %d: invalid birth date", i+1))
		}
		fareType, _ := NormalizeField(models.FieldFareType, data.FareType)
		normalized = append(normalized, dto.NewPassengerData{
			FullName:  data.FullName,
			CPF:       cpf,
			BirthDate: birthDate,
			Email:     data.Email,
			FareType:  fareType,
		})
	}
	return normalized, nil
}

func setPassengerValue(p *models.Passenger, field, value string) {
	switch field {
	case models.FieldFullName:
		p.FullName = value
	case models.FieldCPF:
		p.CPF = value
	case models.FieldBirthDate:
		p.BirthDate = value
	case models.FieldEmail:
		p.Email = value
	case models.FieldFareType:
		p.FareType = models.FareType(value)
	}
}
