package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kartheek-penagamuri/stride-sub000/internal/models"
	"github.com/kartheek-penagamuri/stride-sub000/internal/store"
	"github.com/kartheek-penagamuri/stride-sub000/pkg/logger"
	"github.com/kartheek-penagamuri/stride-sub000/pkg/metrics"
)

// ReminderStats counts sessions and member notifications handled in one pass.
type ReminderStats struct {
	Sessions      int `json:"sessions"`
	Notifications int `json:"notifications"`
}

// ReminderService sends T-60 and T-10 session reminders to pod members.
type ReminderService struct {
	sessions    *SessionService
	store       store.Store
	notifier    Notifier
	concurrency int
	timeNow     func() time.Time
	log         *zap.Logger
}

// ReminderOption customises the reminder service.
type ReminderOption func(*ReminderService)

// WithReminderConcurrency bounds how many sessions are notified in parallel.
func WithReminderConcurrency(n int) ReminderOption {
	return func(s *ReminderService) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// WithReminderClock overrides the clock (test helper).
func WithReminderClock(now func() time.Time) ReminderOption {
	return func(s *ReminderService) {
		if now != nil {
			s.timeNow = now
		}
	}
}

// NewReminderService constructs the reminder dispatcher.
func NewReminderService(sessions *SessionService, st store.Store, notifier Notifier, opts ...ReminderOption) (*ReminderService, error) {
	if sessions == nil {
		return nil, errors.New("reminder service: session service is required")
	}
	if st == nil {
		return nil, errors.New("reminder service: store is required")
	}
	if notifier == nil {
		return nil, errors.New("reminder service: notifier is required")
	}
	svc := &ReminderService{
		sessions:    sessions,
		store:       st,
		notifier:    notifier,
		concurrency: 4,
		timeNow:     time.Now,
		log:         logger.WithModule("reminders"),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// SendDue dispatches every reminder window. The flag is claimed before members are
// notified, so a session is reminded at most once per window.
func (s *ReminderService) SendDue(ctx context.Context) (ReminderStats, error) {
	ctx = ensureContext(ctx)
	var (
		total ReminderStats
		errs  error
	)
	for _, kind := range models.ReminderKinds() {
		stats, err := s.Send(ctx, kind)
		total.Sessions += stats.Sessions
		total.Notifications += stats.Notifications
		errs = multierr.Append(errs, err)
	}
	return total, errs
}

// Send dispatches reminders of one kind.
func (s *ReminderService) Send(ctx context.Context, kind models.ReminderKind) (ReminderStats, error) {
	ctx = ensureContext(ctx)
	now := s.timeNow().UTC()

	due, err := s.sessions.SessionsNeedingReminders(ctx, kind, now)
	if err != nil {
		return ReminderStats{}, err
	}

	var (
		mu    sync.Mutex
		stats ReminderStats
		errs  error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, session := range due {
		session := session
		g.Go(func() error {
			sent, err := s.remind(gctx, session, kind, now)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = multierr.Append(errs, err)
				return nil
			}
			if sent >= 0 {
				stats.Sessions++
				stats.Notifications += sent
			}
			return nil
		})
	}
	_ = g.Wait()

	if stats.Sessions > 0 {
		metrics.RemindersSent.WithLabelValues(string(kind)).Add(float64(stats.Sessions))
		s.log.Info("session reminders sent",
			zap.String("kind", string(kind)),
			zap.Int("sessions", stats.Sessions),
			zap.Int("notifications", stats.Notifications),
		)
	}
	return stats, errs
}

// remind returns the number of members notified, or -1 when another pass already claimed the session.
func (s *ReminderService) remind(ctx context.Context, session models.Session, kind models.ReminderKind, now time.Time) (int, error) {
	claimed, err := s.sessions.MarkReminderSent(ctx, session.ID, kind)
	if err != nil {
		return 0, err
	}
	if !claimed {
		return -1, nil
	}

	members, err := s.store.Pods().ActiveMembers(ctx, session.PodID)
	if err != nil {
		return 0, translate(err, nil, "Failed to load pod members")
	}

	priority := PriorityNormal
	if kind == models.ReminderT10 {
		priority = PriorityHigh
	}
	data := map[string]any{
		"session_id":     session.ID,
		"pod_id":         session.PodID,
		"session_number": session.SessionNumber,
		"scheduled_at":   session.ScheduledAt.UTC().Format(time.RFC3339),
		"starts_in":      session.ScheduledAt.Sub(now).Round(time.Minute).String(),
		"video_url":      session.VideoURL,
		"reminder":       string(kind),
	}

	sent := 0
	for _, m := range members {
		result := s.notifier.Send(ctx, m.UserID, NotificationSessionReminder, data, priority)
		if result.Err != nil {
			s.log.Warn("session reminder delivery failed",
				zap.String("session_id", session.ID),
				zap.String("user_id", m.UserID),
				zap.Error(result.Err),
			)
			continue
		}
		sent++
	}
	return sent, nil
}
