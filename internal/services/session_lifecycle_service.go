package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/kartheek-penagamuri/stride-sub000/internal/models"
	"github.com/kartheek-penagamuri/stride-sub000/internal/store"
	apperrors "github.com/kartheek-penagamuri/stride-sub000/pkg/errors"
	"github.com/kartheek-penagamuri/stride-sub000/pkg/logger"
	"github.com/kartheek-penagamuri/stride-sub000/pkg/metrics"
)

const (
	defaultSessionCadence   = 7 * 24 * time.Hour
	defaultFirstSessionLead = 24 * time.Hour
)

// SessionConfig controls recurring scheduling and default video settings.
type SessionConfig struct {
	Cadence          time.Duration
	FirstSessionLead time.Duration
	Video            VideoConfig
}

// CreateSessionInput describes a session to schedule for an ACTIVE pod.
type CreateSessionInput struct {
	PodID       string
	ScheduledAt time.Time
	Video       *VideoConfig
	// AttendanceRequired defaults to true when nil.
	AttendanceRequired *bool
	// SessionNumber defaults to one past the pod's latest session.
	SessionNumber int
}

// TransitionInput moves a session between states.
type TransitionInput struct {
	SessionID string
	// From lists accepted source states. Empty means every state allowed to reach To.
	From     []models.SessionStatus
	To       models.SessionStatus
	Fields   map[string]any
	UserID   string
	Metadata map[string]any
}

// AttendanceInput records one member's attendance.
type AttendanceInput struct {
	SessionID string
	UserID    string
	Attended  bool
	JoinedAt  *time.Time
	LeftAt    *time.Time
}

// SessionService owns the per-pod session state machine and attendance.
type SessionService struct {
	store   store.Store
	video   VideoProvisioner
	cfg     SessionConfig
	timeNow func() time.Time
	log     *zap.Logger
}

// SessionOption customises service dependencies.
type SessionOption func(*SessionService)

// WithSessionConfig overrides cadence and video defaults.
func WithSessionConfig(cfg SessionConfig) SessionOption {
	return func(s *SessionService) {
		if cfg.Cadence > 0 {
			s.cfg.Cadence = cfg.Cadence
		}
		if cfg.FirstSessionLead > 0 {
			s.cfg.FirstSessionLead = cfg.FirstSessionLead
		}
		s.cfg.Video = cfg.Video
	}
}

// WithSessionClock overrides the clock used for timestamps (test helper).
func WithSessionClock(clock func() time.Time) SessionOption {
	return func(s *SessionService) {
		if clock != nil {
			s.timeNow = clock
		}
	}
}

// NewSessionService constructs the session service once dependencies are supplied.
func NewSessionService(st store.Store, video VideoProvisioner, opts ...SessionOption) (*SessionService, error) {
	if st == nil {
		return nil, errors.New("session service: store is required")
	}
	if video == nil {
		return nil, errors.New("session service: video provisioner is required")
	}

	svc := &SessionService{
		store: st,
		video: video,
		cfg: SessionConfig{
			Cadence:          defaultSessionCadence,
			FirstSessionLead: defaultFirstSessionLead,
		},
		timeNow: time.Now,
		log:     logger.WithModule("sessions"),
	}
	for _, opt := range opts {
		opt(svc)
	}

	return svc, nil
}

func (s *SessionService) now() time.Time {
	return s.timeNow().UTC()
}

// CreateSession provisions a meeting and schedules a session with one attendance row per ACTIVE member.
// The meeting is provisioned under a temporary id, then again under the final session id.
func (s *SessionService) CreateSession(ctx context.Context, input CreateSessionInput) (*models.Session, error) {
	ctx = ensureContext(ctx)
	podID := strings.TrimSpace(input.PodID)
	if input.ScheduledAt.IsZero() {
		return nil, apperrors.NewBadRequest("scheduled_at is required")
	}

	pod, err := s.store.Pods().GetPod(ctx, podID)
	if err != nil {
		return nil, translate(err, ErrPodNotFound, "Failed to load pod")
	}
	if pod.Status != models.PodStatusActive {
		return nil, ErrPodNotActive
	}

	videoCfg := s.cfg.Video
	if input.Video != nil {
		videoCfg = *input.Video
	}
	meeting, err := s.video.CreateMeeting(ctx, "tmp-"+uuid.NewString(), pod.ID, videoCfg)
	if err != nil {
		return nil, apperrors.Transient(err, "Video provisioning unavailable")
	}

	attendanceRequired := true
	if input.AttendanceRequired != nil {
		attendanceRequired = *input.AttendanceRequired
	}

	session := &models.Session{
		BaseModel:          models.BaseModel{ID: models.NewID()},
		PodID:              pod.ID,
		ScheduledAt:        input.ScheduledAt.UTC(),
		Status:             models.SessionStatusScheduled,
		VideoURL:           meeting.URL,
		VideoRoom:          meeting.RoomName,
		VideoProvider:      meeting.Provider,
		AttendanceRequired: attendanceRequired,
		SessionNumber:      input.SessionNumber,
	}

	var attendees int
	err = s.store.WithinTx(ctx, func(tx store.Store) error {
		locked, err := tx.Pods().LockPod(ctx, pod.ID)
		if err != nil {
			return translate(err, ErrPodNotFound, "Failed to load pod")
		}
		if locked.Status != models.PodStatusActive {
			return ErrPodNotActive
		}

		if session.SessionNumber <= 0 {
			session.SessionNumber = 1
			latest, err := tx.Sessions().LatestPodSession(ctx, pod.ID)
			switch {
			case err == nil:
				session.SessionNumber = latest.SessionNumber + 1
			case !errors.Is(err, store.ErrNotFound):
				return translate(err, nil, "Failed to load sessions")
			}
		}

		if err := tx.Sessions().CreateSession(ctx, session); err != nil {
			if isUniqueConstraintError(err) {
				return apperrors.ErrConflict.WithMessage("Session number already scheduled for this pod")
			}
			return translate(err, nil, "Failed to create session")
		}

		members, err := tx.Pods().ActiveMembers(ctx, pod.ID)
		if err != nil {
			return translate(err, nil, "Failed to load pod members")
		}
		rows := make([]models.SessionAttendance, 0, len(members))
		for _, m := range members {
			rows = append(rows, models.SessionAttendance{SessionID: session.ID, UserID: m.UserID})
		}
		attendees = len(rows)
		return translate(tx.Sessions().CreateAttendance(ctx, rows), nil, "Failed to create attendance")
	})
	if err != nil {
		return nil, translate(err, nil, "Failed to create session")
	}

	final, err := s.video.CreateMeeting(ctx, session.ID, pod.ID, videoCfg)
	switch {
	case err != nil:
		s.log.Warn("final video provisioning failed, keeping temporary meeting",
			zap.String("session_id", session.ID), zap.Error(err))
	case final.URL != session.VideoURL || final.RoomName != session.VideoRoom:
		if err := s.store.Sessions().UpdateVideo(ctx, session.ID, final.URL, final.RoomName, final.Provider); err != nil {
			s.log.Warn("failed to store final video meeting", zap.String("session_id", session.ID), zap.Error(err))
		} else {
			session.VideoURL, session.VideoRoom, session.VideoProvider = final.URL, final.RoomName, final.Provider
		}
	}

	metrics.SessionTransitions.WithLabelValues(string(models.SessionStatusScheduled)).Inc()
	s.log.Info("session scheduled",
		zap.String("session_id", session.ID),
		zap.String("pod_id", pod.ID),
		zap.Int("session_number", session.SessionNumber),
		zap.Int("attendees", attendees),
		zap.Time("scheduled_at", session.ScheduledAt),
	)
	return session, nil
}

// Transition moves a session to input.To. Reaching the current state again is a no-op success.
func (s *SessionService) Transition(ctx context.Context, input TransitionInput) (*models.Session, error) {
	ctx = ensureContext(ctx)
	id := strings.TrimSpace(input.SessionID)

	session, err := s.store.Sessions().GetSession(ctx, id)
	if err != nil {
		return nil, translate(err, ErrSessionNotFound, "Failed to load session")
	}
	if session.Status == input.To {
		return session, nil
	}

	from := input.From
	if len(from) == 0 {
		from = models.SessionSourcesFor(input.To)
	}
	if !containsStatus(from, session.Status) {
		return nil, ErrInvalidStateTransition.WithMessage(
			"Session cannot move from " + string(session.Status) + " to " + string(input.To))
	}

	changed, err := s.store.Sessions().UpdateStatus(ctx, id, from, input.To, input.Fields)
	if err != nil {
		return nil, translate(err, nil, "Failed to update session")
	}

	previous := session.Status
	session, err = s.store.Sessions().GetSession(ctx, id)
	if err != nil {
		return nil, translate(err, ErrSessionNotFound, "Failed to load session")
	}
	if !changed {
		// Lost a race: fine if the winner reached the same state.
		if session.Status == input.To {
			return session, nil
		}
		return nil, ErrInvalidStateTransition.WithMessage(
			"Session cannot move from " + string(session.Status) + " to " + string(input.To))
	}

	metrics.SessionTransitions.WithLabelValues(string(input.To)).Inc()
	s.appendTransition(ctx, id, previous, input)
	return session, nil
}

// StartSession moves a SCHEDULED session to ACTIVE.
func (s *SessionService) StartSession(ctx context.Context, sessionID, userID string) (*models.Session, error) {
	return s.Transition(ctx, TransitionInput{
		SessionID: sessionID,
		From:      []models.SessionStatus{models.SessionStatusScheduled},
		To:        models.SessionStatusActive,
		Fields:    map[string]any{"started_at": s.now()},
		UserID:    userID,
	})
}

// CompleteSession moves an ACTIVE session to COMPLETED.
func (s *SessionService) CompleteSession(ctx context.Context, sessionID, userID string) (*models.Session, error) {
	return s.Transition(ctx, TransitionInput{
		SessionID: sessionID,
		From:      []models.SessionStatus{models.SessionStatusActive},
		To:        models.SessionStatusCompleted,
		Fields:    map[string]any{"ended_at": s.now()},
		UserID:    userID,
	})
}

// CancelSession cancels a SCHEDULED or ACTIVE session.
func (s *SessionService) CancelSession(ctx context.Context, sessionID, userID, reason string) (*models.Session, error) {
	var meta map[string]any
	if reason = strings.TrimSpace(reason); reason != "" {
		meta = map[string]any{"reason": reason}
	}
	return s.Transition(ctx, TransitionInput{
		SessionID: sessionID,
		From:      []models.SessionStatus{models.SessionStatusScheduled, models.SessionStatusActive},
		To:        models.SessionStatusCancelled,
		Fields:    map[string]any{"ended_at": s.now()},
		UserID:    userID,
		Metadata:  meta,
	})
}

// MarkAttendance upserts the attendance row keyed by session and user.
func (s *SessionService) MarkAttendance(ctx context.Context, input AttendanceInput) (*models.SessionAttendance, error) {
	ctx = ensureContext(ctx)
	sessionID, userID := strings.TrimSpace(input.SessionID), strings.TrimSpace(input.UserID)
	if userID == "" {
		return nil, apperrors.NewBadRequest("user_id is required")
	}
	if _, err := s.store.Sessions().GetSession(ctx, sessionID); err != nil {
		return nil, translate(err, ErrSessionNotFound, "Failed to load session")
	}

	row := &models.SessionAttendance{
		SessionID: sessionID,
		UserID:    userID,
		Attended:  input.Attended,
		JoinedAt:  utcPtr(input.JoinedAt),
		LeftAt:    utcPtr(input.LeftAt),
	}
	if err := s.store.Sessions().UpsertAttendance(ctx, row); err != nil {
		return nil, translate(err, nil, "Failed to record attendance")
	}
	stored, err := s.store.Sessions().GetAttendance(ctx, sessionID, userID)
	if err != nil {
		return nil, translate(err, nil, "Failed to load attendance")
	}
	return stored, nil
}

// SessionsNeedingReminders returns SCHEDULED sessions starting within the kind's window
// from now that have not had that reminder yet.
func (s *SessionService) SessionsNeedingReminders(ctx context.Context, kind models.ReminderKind, now time.Time) ([]models.Session, error) {
	ctx = ensureContext(ctx)
	window, ok := ReminderWindow(kind)
	if !ok {
		return nil, apperrors.NewBadRequest("unknown reminder kind " + string(kind))
	}
	now = now.UTC()
	sessions, err := s.store.Sessions().ScheduledBetween(ctx, kind, now, now.Add(window))
	if err != nil {
		return nil, translate(err, nil, "Failed to load sessions")
	}
	return sessions, nil
}

// MarkReminderSent sets the reminder flag. It reports whether this call set it.
func (s *SessionService) MarkReminderSent(ctx context.Context, sessionID string, kind models.ReminderKind) (bool, error) {
	ctx = ensureContext(ctx)
	if !kind.Valid() {
		return false, apperrors.NewBadRequest("unknown reminder kind " + string(kind))
	}
	claimed, err := s.store.Sessions().ClaimReminder(ctx, sessionID, kind)
	if err != nil {
		return false, translate(err, nil, "Failed to mark reminder")
	}
	if !claimed {
		if _, err := s.store.Sessions().GetSession(ctx, sessionID); err != nil {
			return false, translate(err, ErrSessionNotFound, "Failed to load session")
		}
	}
	return claimed, nil
}

// ScheduleUpcoming makes sure every ACTIVE pod has a session ahead of now and reports how many
// sessions were created. Failures for one pod do not stop the others.
func (s *SessionService) ScheduleUpcoming(ctx context.Context) (int, error) {
	ctx = ensureContext(ctx)
	now := s.now()

	pods, err := s.store.Pods().ListPods(ctx, store.PodFilter{Statuses: []models.PodStatus{models.PodStatusActive}})
	if err != nil {
		return 0, translate(err, nil, "Failed to load active pods")
	}

	var (
		created int
		errs    error
	)
	for _, pod := range pods {
		next, number, due, err := s.nextSession(ctx, pod.ID, now)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		if !due {
			continue
		}
		if _, err := s.CreateSession(ctx, CreateSessionInput{PodID: pod.ID, ScheduledAt: next, SessionNumber: number}); err != nil {
			if apperrors.IsConflict(err) {
				continue
			}
			errs = multierr.Append(errs, err)
			continue
		}
		created++
	}
	return created, errs
}

func (s *SessionService) nextSession(ctx context.Context, podID string, now time.Time) (time.Time, int, bool, error) {
	latest, err := s.store.Sessions().LatestPodSession(ctx, podID)
	if errors.Is(err, store.ErrNotFound) {
		return now.Add(s.cfg.FirstSessionLead), 1, true, nil
	}
	if err != nil {
		return time.Time{}, 0, false, translate(err, nil, "Failed to load latest session")
	}

	if latest.Status == models.SessionStatusActive ||
		(latest.Status == models.SessionStatusScheduled && latest.ScheduledAt.After(now)) {
		return time.Time{}, 0, false, nil
	}

	next := latest.ScheduledAt.UTC().Add(s.cfg.Cadence)
	for !next.After(now) {
		next = next.Add(s.cfg.Cadence)
	}
	return next, latest.SessionNumber + 1, true, nil
}

// GetSession returns one session.
func (s *SessionService) GetSession(ctx context.Context, sessionID string) (*models.Session, error) {
	session, err := s.store.Sessions().GetSession(ensureContext(ctx), strings.TrimSpace(sessionID))
	if err != nil {
		return nil, translate(err, ErrSessionNotFound, "Failed to load session")
	}
	return session, nil
}

// ListPodSessions returns the sessions of a pod in session number order.
func (s *SessionService) ListPodSessions(ctx context.Context, podID string) ([]models.Session, error) {
	ctx = ensureContext(ctx)
	if _, err := s.store.Pods().GetPod(ctx, strings.TrimSpace(podID)); err != nil {
		return nil, translate(err, ErrPodNotFound, "Failed to load pod")
	}
	sessions, err := s.store.Sessions().ListPodSessions(ctx, strings.TrimSpace(podID))
	if err != nil {
		return nil, translate(err, nil, "Failed to load sessions")
	}
	return sessions, nil
}

// ListAttendance returns the attendance rows of a session.
func (s *SessionService) ListAttendance(ctx context.Context, sessionID string) ([]models.SessionAttendance, error) {
	if _, err := s.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	rows, err := s.store.Sessions().ListAttendance(ensureContext(ctx), strings.TrimSpace(sessionID))
	if err != nil {
		return nil, translate(err, nil, "Failed to load attendance")
	}
	return rows, nil
}

// ListTransitions returns the audit trail of a session.
func (s *SessionService) ListTransitions(ctx context.Context, sessionID string) ([]models.SessionTransition, error) {
	rows, err := s.store.Sessions().ListTransitions(ensureContext(ctx), strings.TrimSpace(sessionID))
	if err != nil {
		return nil, translate(err, nil, "Failed to load transitions")
	}
	return rows, nil
}

func (s *SessionService) appendTransition(ctx context.Context, sessionID string, from models.SessionStatus, input TransitionInput) {
	meta, err := encodeMetadata(input.Metadata)
	if err != nil {
		s.log.Warn("session transition metadata dropped", zap.String("session_id", sessionID), zap.Error(err))
		meta = nil
	}
	record := &models.SessionTransition{
		SessionID:  sessionID,
		FromStatus: from,
		ToStatus:   input.To,
		OccurredAt: s.now(),
		Metadata:   meta,
	}
	if userID := strings.TrimSpace(input.UserID); userID != "" {
		record.UserID = &userID
	}
	if err := s.store.Sessions().AppendTransition(ctx, record); err != nil {
		s.log.Warn("session transition audit failed",
			zap.String("session_id", sessionID),
			zap.String("to", string(input.To)),
			zap.Error(err),
		)
	}
}

// ReminderWindow is how far ahead of a session the reminder of kind is sent.
func ReminderWindow(kind models.ReminderKind) (time.Duration, bool) {
	switch kind {
	case models.ReminderT60:
		return 60 * time.Minute, true
	case models.ReminderT10:
		return 10 * time.Minute, true
	default:
		return 0, false
	}
}

func containsStatus(values []models.SessionStatus, target models.SessionStatus) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}
