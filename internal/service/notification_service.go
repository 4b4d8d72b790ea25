package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/voemax/passenger-api/internal/dto"
	"github.com/voemax/passenger-api/internal/models"
	"github.com/voemax/passenger-api/pkg/config"
	appErrors "github.com/voemax/passenger-api/pkg/errors"
	"github.com/voemax/passenger-api/pkg/jobs"
)

const jobTypeNotificationCreate = "notification.create"

type notificationStore interface {
	Create(ctx context.Context, notification *models.Notification) error
	List(ctx context.Context, filter models.NotificationFilter) ([]models.Notification, error)
	CountUnread(ctx context.Context, recipientID string) (int, error)
	MarkRead(ctx context.Context, id, recipientID string) error
}

func unreadCountCacheKey(recipientID string) string {
	return fmt.Sprintf("notifications:unread:%s", recipientID)
}

// NotificationService delivers workflow events asynchronously. Trigger hands
// the notification to a background worker pool and returns immediately, so a
// slow or failing delivery never blocks or fails the workflow operation that
// raised it.
type NotificationService struct {
	notifications notificationStore
	cache         cacheStore
	queue         *jobs.Queue
	logger        *zap.Logger
	unreadTTL     time.Duration
}

// NewNotificationService constructs the service and its dispatch queue. Call
// Start before triggering and Stop on shutdown.
func NewNotificationService(notifications notificationStore, cache cacheStore, cfg config.NotificationsConfig, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	ttl := cfg.UnreadCacheTTL
	if ttl <= 0 {
		ttl = time.Minute
	}
	s := &NotificationService{
		notifications: notifications,
		cache:         cache,
		logger:        logger,
		unreadTTL:     ttl,
	}
	s.queue = jobs.NewQueue("notifications", s.handleJob, jobs.QueueConfig{
		Workers:    cfg.Workers,
		BufferSize: cfg.BufferSize,
		MaxRetries: cfg.MaxRetries,
		RetryDelay: cfg.RetryDelay,
		Logger:     logger,
	})
	return s
}

// Start launches the dispatch workers.
func (s *NotificationService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains the dispatch workers.
func (s *NotificationService) Stop() {
	s.queue.Stop()
}

// Trigger enqueues a notification for background persistence. Failures are
// logged, never returned; delivery is at-least-once once accepted.
func (s *NotificationService) Trigger(recipientID string, ntype models.NotificationType, payload map[string]interface{}) {
	body, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error("failed to encode notification payload", zap.Error(err))
		return
	}
	notification := &models.Notification{
		ID:          uuid.NewString(),
		RecipientID: recipientID,
		Type:        ntype,
		Payload:     body,
		CreatedAt:   time.Now().UTC(),
	}
	job := jobs.Job{
		ID:      notification.ID,
		Type:    jobTypeNotificationCreate,
		Payload: notification,
	}
	if err := s.queue.Enqueue(job); err != nil {
		s.logger.Error("failed to enqueue notification",
			zap.String("recipient_id", recipientID),
			zap.String("type", string(ntype)),
			zap.Error(err))
	}
}

func (s *NotificationService) handleJob(ctx context.Context, job jobs.Job) error {
	notification, ok := job.Payload.(*models.Notification)
	if !ok {
		s.logger.Error("dropping notification job with unexpected payload", zap.String("job_id", job.ID))
		return nil
	}
	if err := s.notifications.Create(ctx, notification); err != nil {
		return err
	}
	s.invalidateUnreadCache(ctx, notification.RecipientID)
	return nil
}

// List returns the actor's notifications.
func (s *NotificationService) List(ctx context.Context, filter models.NotificationFilter, actor *models.JWTClaims) ([]models.Notification, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	filter.RecipientID = actor.UserID
	notifications, err := s.notifications.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Infrastructure(err, "failed to list notifications")
	}
	return notifications, nil
}

// MarkRead flags one of the actor's notifications as read.
func (s *NotificationService) MarkRead(ctx context.Context, notificationID string, actor *models.JWTClaims) error {
	if actor == nil {
		return appErrors.ErrUnauthorized
	}
	if err := s.notifications.MarkRead(ctx, notificationID, actor.UserID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "notification not found")
		}
		return appErrors.Infrastructure(err, "failed to mark notification read")
	}
	s.invalidateUnreadCache(ctx, actor.UserID)
	return nil
}

// UnreadCount returns the actor's unread notification count, cache-aside.
func (s *NotificationService) UnreadCount(ctx context.Context, actor *models.JWTClaims) (*dto.UnreadCountResult, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	key := unreadCountCacheKey(actor.UserID)
	if s.cache != nil {
		var cached dto.UnreadCountResult
		if err := s.cache.Get(ctx, key, &cached); err == nil {
			return &cached, nil
		}
	}
	count, err := s.notifications.CountUnread(ctx, actor.UserID)
	if err != nil {
		return nil, appErrors.Infrastructure(err, "failed to count unread notifications")
	}
	result := &dto.UnreadCountResult{Unread: count}
	if s.cache != nil {
		if err := s.cache.Set(ctx, key, result, s.unreadTTL); err != nil {
			s.logger.Warn("failed to cache unread count", zap.Error(err))
		}
	}
	return result, nil
}

func (s *NotificationService) invalidateUnreadCache(ctx context.Context, recipientID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, unreadCountCacheKey(recipientID)); err != nil {
		s.logger.Warn("failed to invalidate unread count cache", zap.Error(err))
	}
}
