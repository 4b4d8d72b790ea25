package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/voemax/passenger-api/internal/dto"
	"github.com/voemax/passenger-api/internal/models"
	"github.com/voemax/passenger-api/internal/repository"
	"github.com/voemax/passenger-api/pkg/config"
	appErrors "github.com/voemax/passenger-api/pkg/errors"
)

const autoRejectNote = "passenger limit reached before this request was decided"

// ApprovalService owns the seller side of the workflow: listing the queue,
// deciding requests and applying approved mutations. Each request reaches a
// terminal state exactly once.
type ApprovalService struct {
	approvals    approvalStore
	passengers   passengerStore
	transactions transactionStore
	audit        auditLogger
	notify       notificationTrigger
	cache        cacheStore
	policy       *EditPolicy
	clock        Clock
	logger       *zap.Logger
	locks        *TransactionLocks
	pendingTTL   time.Duration
	metrics      *MetricsService
}

// NewApprovalService constructs the service.
func NewApprovalService(
	approvals approvalStore,
	passengers passengerStore,
	transactions transactionStore,
	audit auditLogger,
	notify notificationTrigger,
	cache cacheStore,
	policy *EditPolicy,
	clock Clock,
	locks *TransactionLocks,
	cfg config.ApprovalsConfig,
	logger *zap.Logger,
) *ApprovalService {
	if clock == nil {
		clock = SystemClock()
	}
	if locks == nil {
		locks = NewTransactionLocks()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	ttl := cfg.PendingCacheTTL
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &ApprovalService{
		approvals:    approvals,
		passengers:   passengers,
		transactions: transactions,
		audit:        audit,
		notify:       notify,
		cache:        cache,
		policy:       policy,
		clock:        clock,
		logger:       logger,
		locks:        locks,
		pendingTTL:   ttl,
	}
}

// WithMetrics attaches Prometheus instrumentation. Safe to skip.
func (s *ApprovalService) WithMetrics(m *MetricsService) *ApprovalService {
	s.metrics = m
	return s
}

// List returns approval requests visible to the actor. Sellers see requests
// on their own transactions, buyers their own submissions, admins everything.
// The seller's default pending view is served from cache when warm.
func (s *ApprovalService) List(ctx context.Context, query dto.ApprovalQuery, actor *models.JWTClaims) ([]models.ApprovalRequest, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	filter := models.ApprovalFilter{
		Status:        query.Status,
		Type:          query.Type,
		TransactionID: query.TransactionID,
		Limit:         query.Limit,
		Offset:        query.Offset,
	}
	switch actor.Role {
	case models.RoleAdmin:
	case models.RoleSeller:
		filter.SellerID = actor.UserID
	default:
		filter.BuyerID = actor.UserID
	}

	if s.cacheablePendingQuery(filter, actor) {
		key := pendingApprovalsCacheKey(actor.UserID)
		var cached []models.ApprovalRequest
		if err := s.cache.Get(ctx, key, &cached); err == nil {
			s.metrics.RecordCacheOperation(true)
			return cached, nil
		}
		s.metrics.RecordCacheOperation(false)
		requests, err := s.approvals.List(ctx, filter)
		if err != nil {
			return nil, appErrors.Infrastructure(err, "failed to list approval requests")
		}
		if err := s.cache.Set(ctx, key, requests, s.pendingTTL); err != nil {
			s.logger.Warn("failed to cache pending approvals", zap.Error(err))
		}
		return requests, nil
	}

	start := time.Now()
	requests, err := s.approvals.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Infrastructure(err, "failed to list approval requests")
	}
	s.metrics.ObserveDBQuery("approvals_list", time.Since(start))
	return requests, nil
}

// Get fetches one approval request, scoped to its buyer, seller or an admin.
func (s *ApprovalService) Get(ctx context.Context, requestID string, actor *models.JWTClaims) (*models.ApprovalRequest, error) {
	request, err := s.loadRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeView(request, actor); err != nil {
		return nil, err
	}
	return request, nil
}

// Decide moves a PENDING request to APPROVED or REJECTED. Approving an
// EDIT_PASSENGER applies the recorded changes to the live passenger;
// approving an ADD_PASSENGER re-checks capacity under the transaction lock
// and auto-rejects when the ceiling has since been reached.
func (s *ApprovalService) Decide(ctx context.Context, requestID string, req dto.DecideApprovalRequest, actor *models.JWTClaims) (*dto.DecideApprovalResult, error) {
	if req.Action != models.ApprovalActionApprove && req.Action != models.ApprovalActionReject {
		return nil, appErrors.Clone(appErrors.ErrValidation, "action must be APPROVE or REJECT")
	}
	request, err := s.loadRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeDecision(request, actor); err != nil {
		return nil, err
	}
	if request.Status != models.ApprovalStatusPending {
		return nil, appErrors.ErrAlreadyDecided
	}

	unlock := s.locks.Lock(request.TransactionID)
	defer unlock()

	// Re-read under the lock: a concurrent decision may have landed after the
	// unserialized check above, and mutations must never apply twice.
	request, err = s.loadRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if request.Status != models.ApprovalStatusPending {
		return nil, appErrors.ErrAlreadyDecided
	}

	var result *dto.DecideApprovalResult
	switch {
	case req.Action == models.ApprovalActionReject:
		result, err = s.reject(ctx, request, actor, req.Note)
	case request.Type == models.ApprovalTypeEditPassenger:
		result, err = s.approveEdit(ctx, request, actor, req.Note)
	default:
		result, err = s.approveAdd(ctx, request, actor, req.Note)
	}
	if err != nil {
		return nil, err
	}

	s.invalidatePendingCache(ctx, request.SellerID)
	return result, nil
}

func (s *ApprovalService) reject(ctx context.Context, request *models.ApprovalRequest, actor *models.JWTClaims, note string) (*dto.DecideApprovalResult, error) {
	if err := s.decide(ctx, request, models.ApprovalStatusRejected, actor.UserID, note); err != nil {
		return nil, err
	}
	s.notifyBuyer(request, models.NotificationRequestRejected, note, false)
	s.emitDecisionAudit(ctx, actor, models.AuditActionApprovalDecided, request)
	return &dto.DecideApprovalResult{Status: models.ApprovalStatusRejected, Request: request}, nil
}

func (s *ApprovalService) approveEdit(ctx context.Context, request *models.ApprovalRequest, actor *models.JWTClaims, note string) (*dto.DecideApprovalResult, error) {
	if request.TargetPassengerID == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "edit request has no target passenger")
	}
	passenger, err := s.passengers.GetByID(ctx, *request.TargetPassengerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "target passenger no longer exists")
		}
		return nil, appErrors.Infrastructure(err, "failed to load passenger")
	}

	var changes []models.ChangeRecord
	if err := json.Unmarshal(request.Changes, &changes); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to decode recorded changes")
	}
	// Recorded new values are applied to the passenger as it stands now, not
	// as it stood at submission.
	if err := s.passengers.ApplyChanges(ctx, passenger.ID, passenger.Version, changes); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "passenger was modified concurrently, retry the decision")
		}
		return nil, appErrors.Infrastructure(err, "failed to apply approved changes")
	}
	if err := s.decide(ctx, request, models.ApprovalStatusApproved, actor.UserID, note); err != nil {
		return nil, err
	}
	s.notifyBuyer(request, models.NotificationRequestApproved, note, false)
	s.emitDecisionAudit(ctx, actor, models.AuditActionApprovalDecided, request)
	return &dto.DecideApprovalResult{Status: models.ApprovalStatusApproved, Request: request}, nil
}

func (s *ApprovalService) approveAdd(ctx context.Context, request *models.ApprovalRequest, actor *models.JWTClaims, note string) (*dto.DecideApprovalResult, error) {
	count, err := s.passengers.CountByTransaction(ctx, request.TransactionID)
	if err != nil {
		return nil, appErrors.Infrastructure(err, "failed to count passengers")
	}
	if count+1 > s.policy.MaxPassengers() {
		if err := s.decide(ctx, request, models.ApprovalStatusRejected, actor.UserID, autoRejectNote); err != nil {
			return nil, err
		}
		s.notifyBuyer(request, models.NotificationRequestRejected, autoRejectNote, true)
		s.emitDecisionAudit(ctx, actor, models.AuditActionApprovalAutoSkip, request)
		return &dto.DecideApprovalResult{Status: models.ApprovalStatusRejected, AutoRejected: true, Request: request}, nil
	}

	var data dto.NewPassengerData
	if err := json.Unmarshal(request.NewPassengerData, &data); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to decode passenger data")
	}
	passenger := &models.Passenger{
		TransactionID: request.TransactionID,
		FullName:      data.FullName,
		CPF:           data.CPF,
		BirthDate:     data.BirthDate,
		Email:         data.Email,
		FareType:      models.FareType(data.FareType),
	}
	if err := s.passengers.Create(ctx, passenger); err != nil {
		return nil, appErrors.Infrastructure(err, "failed to create approved passenger")
	}
	if err := s.decide(ctx, request, models.ApprovalStatusApproved, actor.UserID, note); err != nil {
		return nil, err
	}
	s.notifyBuyer(request, models.NotificationRequestApproved, note, false)
	s.emitDecisionAudit(ctx, actor, models.AuditActionApprovalDecided, request)
	return &dto.DecideApprovalResult{Status: models.ApprovalStatusApproved, Request: request}, nil
}

func (s *ApprovalService) decide(ctx context.Context, request *models.ApprovalRequest, status models.ApprovalStatus, deciderID, note string) error {
	now := s.clock.Now()
	params := repository.DecideParams{
		ID:        request.ID,
		Status:    status,
		DecidedBy: deciderID,
		DecidedAt: now,
	}
	if note != "" {
		params.Note = &note
	}
	if err := s.approvals.Decide(ctx, params); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.ErrAlreadyDecided
		}
		return appErrors.Infrastructure(err, "failed to record decision")
	}
	request.Status = status
	request.DecidedAt = &now
	request.DecidedBy = &deciderID
	request.DecisionNote = params.Note
	s.metrics.RecordDecision(string(status))
	return nil
}

func (s *ApprovalService) notifyBuyer(request *models.ApprovalRequest, ntype models.NotificationType, note string, autoRejected bool) {
	payload := map[string]interface{}{
		"transactionId":     request.TransactionID,
		"approvalRequestId": request.ID,
		"requestType":       request.Type,
		"reason":            request.Reason,
	}
	if note != "" {
		payload["note"] = note
	}
	if autoRejected {
		payload["autoRejected"] = true
	}
	s.notify.Trigger(request.BuyerID, ntype, payload)
}

func (s *ApprovalService) loadRequest(ctx context.Context, id string) (*models.ApprovalRequest, error) {
	request, err := s.approvals.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "approval request not found")
		}
		return nil, appErrors.Infrastructure(err, "failed to load approval request")
	}
	return request, nil
}

func (s *ApprovalService) authorizeView(request *models.ApprovalRequest, actor *models.JWTClaims) error {
	if actor == nil {
		return appErrors.ErrUnauthorized
	}
	if actor.Role == models.RoleAdmin || actor.UserID == request.SellerID || actor.UserID == request.BuyerID {
		return nil
	}
	return appErrors.ErrForbidden
}

func (s *ApprovalService) authorizeDecision(request *models.ApprovalRequest, actor *models.JWTClaims) error {
	if actor == nil {
		return appErrors.ErrUnauthorized
	}
	if actor.Role == models.RoleAdmin || actor.UserID == request.SellerID {
		return nil
	}
	return appErrors.Clone(appErrors.ErrForbidden, "only the transaction seller may decide this request")
}

func (s *ApprovalService) cacheablePendingQuery(filter models.ApprovalFilter, actor *models.JWTClaims) bool {
	if s.cache == nil || actor.Role != models.RoleSeller {
		return false
	}
	return len(filter.Status) == 1 && filter.Status[0] == models.ApprovalStatusPending &&
		filter.Type == "" && filter.TransactionID == "" && filter.Offset == 0
}

func (s *ApprovalService) invalidatePendingCache(ctx context.Context, sellerID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, pendingApprovalsCacheKey(sellerID)); err != nil {
		s.logger.Warn("failed to invalidate pending approvals cache", zap.Error(err))
	}
}

func (s *ApprovalService) emitDecisionAudit(ctx context.Context, actor *models.JWTClaims, action string, request *models.ApprovalRequest) {
	if s.audit == nil {
		return
	}
	details, _ := json.Marshal(map[string]interface{}{
		"status": request.Status,
		"type":   request.Type,
	})
	userID := actor.UserID
	requestID := request.ID
	log := &models.AuditLog{
		UserID:     &userID,
		Action:     action,
		Resource:   "approval_request",
		ResourceID: &requestID,
		NewValues:  details,
		IPAddress:  "system",
		UserAgent:  "approval-service",
	}
	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("failed to persist audit log", zap.Error(err))
	}
}
