package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/kartheek-penagamuri/stride-sub000/internal/models"
	"github.com/kartheek-penagamuri/stride-sub000/internal/store"
	apperrors "github.com/kartheek-penagamuri/stride-sub000/pkg/errors"
	"github.com/kartheek-penagamuri/stride-sub000/pkg/logger"
	"github.com/kartheek-penagamuri/stride-sub000/pkg/mail"
	"github.com/kartheek-penagamuri/stride-sub000/pkg/metrics"
)

const (
	ChannelInApp = "in_app"
	ChannelEmail = "email"

	emailStatusSent    = "sent"
	emailStatusFailed  = "failed"
	emailStatusSkipped = "skipped"
)

// ErrNotificationNotFound is returned when marking an unknown notification.
var ErrNotificationNotFound = apperrors.ErrNotFound.WithMessage("Notification not found")

// ListNotificationsInput defines filters for querying user notifications.
type ListNotificationsInput struct {
	UserID     string
	UnreadOnly bool
	Limit      int
	Offset     int
}

// NotificationService persists in-app notifications and optionally emails them.
type NotificationService struct {
	db      *gorm.DB
	users   store.UserDirectory
	mailer  mail.Mailer
	from    string
	timeNow func() time.Time
	log     *zap.Logger
}

// NotificationOption customises the notification service.
type NotificationOption func(*NotificationService)

// WithMailer enables the email channel.
func WithMailer(m mail.Mailer, from string) NotificationOption {
	return func(s *NotificationService) {
		s.mailer = m
		s.from = strings.TrimSpace(from)
	}
}

// WithNotificationClock overrides the clock used for read timestamps (test helper).
func WithNotificationClock(now func() time.Time) NotificationOption {
	return func(s *NotificationService) {
		if now != nil {
			s.timeNow = now
		}
	}
}

// NewNotificationService constructs a NotificationService.
func NewNotificationService(db *gorm.DB, users store.UserDirectory, opts ...NotificationOption) (*NotificationService, error) {
	if db == nil {
		return nil, errors.New("notification service: db is required")
	}
	if users == nil {
		return nil, errors.New("notification service: user directory is required")
	}
	svc := &NotificationService{db: db, users: users, timeNow: time.Now, log: logger.WithModule("notifications")}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

var _ Notifier = (*NotificationService)(nil)

// Send stores the notification and, when enabled for the user, emails it. Failures are
// reported in the result and logged.
func (s *NotificationService) Send(ctx context.Context, userID string, kind NotificationKind, data map[string]any, priority Priority) DeliveryResult {
	ctx = ensureContext(ctx)
	result := s.send(ctx, strings.TrimSpace(userID), kind, data, priority)

	label := "delivered"
	if !result.Delivered {
		label = "failed"
	}
	metrics.NotificationDeliveries.WithLabelValues(string(kind), label).Inc()
	if result.Err != nil {
		s.log.Warn("notification delivery failed",
			zap.String("user_id", userID),
			zap.String("kind", string(kind)),
			zap.Error(result.Err),
		)
	}
	return result
}

func (s *NotificationService) send(ctx context.Context, userID string, kind NotificationKind, data map[string]any, priority Priority) DeliveryResult {
	if userID == "" || kind == "" {
		return DeliveryResult{Err: errors.New("notification service: user id and kind are required")}
	}
	if priority == "" {
		priority = PriorityNormal
	}

	contact, err := s.users.Contact(ctx, userID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return DeliveryResult{Err: fmt.Errorf("notification service: resolve contact: %w", err)}
	}
	if errors.Is(err, store.ErrNotFound) {
		contact = store.Contact{UserID: userID}
	}

	title, message := renderNotification(kind, data)
	payload, err := encodeMetadata(data)
	if err != nil {
		return DeliveryResult{Err: fmt.Errorf("notification service: %w", err)}
	}

	var result DeliveryResult
	row := models.Notification{
		UserID:   userID,
		Kind:     string(kind),
		Title:    title,
		Message:  message,
		Priority: string(priority),
		Data:     payload,
	}

	if contact.Preferences.WantsChannel(ChannelEmail) && s.mailer != nil && contact.Email != "" {
		err := s.mailer.Send(ctx, mail.Message{
			From:     s.from,
			To:       []string{contact.Email},
			Subject:  title,
			Body:     message,
			Priority: string(priority),
		})
		switch {
		case errors.Is(err, mail.ErrSMTPDisabled):
			row.EmailStatus = emailStatusSkipped
		case err != nil:
			row.EmailStatus = emailStatusFailed
			result.Err = fmt.Errorf("notification service: email: %w", err)
		default:
			row.EmailStatus = emailStatusSent
			result.Channels = append(result.Channels, ChannelEmail)
		}
	}

	if contact.Preferences.WantsChannel(ChannelInApp) {
		if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
			result.Err = multierr.Append(result.Err, fmt.Errorf("notification service: create notification: %w", err))
		} else {
			result.NotificationID = row.ID
			result.Channels = append(result.Channels, ChannelInApp)
		}
	}

	result.Delivered = len(result.Channels) > 0
	return result
}

// ListForUser returns notifications for the supplied user ordered by recency.
func (s *NotificationService) ListForUser(ctx context.Context, input ListNotificationsInput) ([]models.Notification, error) {
	ctx = ensureContext(ctx)
	userID := strings.TrimSpace(input.UserID)
	if userID == "" {
		return nil, apperrors.NewBadRequest("user id is required")
	}

	limit := input.Limit
	if limit <= 0 || limit > 100 {
		limit = 25
	}

	query := s.db.WithContext(ctx).Where("user_id = ?", userID)
	if input.UnreadOnly {
		query = query.Where("is_read = ?", false)
	}

	var rows []models.Notification
	if err := query.
		Order("created_at DESC").
		Limit(limit).
		Offset(max(0, input.Offset)).
		Find(&rows).Error; err != nil {
		return nil, apperrors.Transient(err, "Failed to list notifications")
	}
	return rows, nil
}

// MarkRead flags a notification owned by userID as read.
func (s *NotificationService) MarkRead(ctx context.Context, userID, notificationID string) error {
	ctx = ensureContext(ctx)
	now := s.timeNow().UTC()
	result := s.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("id = ? AND user_id = ?", strings.TrimSpace(notificationID), strings.TrimSpace(userID)).
		Updates(map[string]any{"is_read": true, "read_at": now})
	if result.Error != nil {
		return apperrors.Transient(result.Error, "Failed to update notification")
	}
	if result.RowsAffected == 0 {
		return ErrNotificationNotFound
	}
	return nil
}
