// Package store defines the persistence boundary of the pod core and its gorm implementation.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/kartheek-penagamuri/stride-sub000/internal/models"
)

// ErrNotFound is returned (wrapped) when a lookup matches no row.
var ErrNotFound = errors.New("store: record not found")

// Store is a unit of work over the pod, session and waitlist repositories.
// Repositories obtained from the Store passed to WithinTx share one transaction.
type Store interface {
	Pods() PodRepository
	Sessions() SessionRepository
	Waitlist() WaitlistRepository
	WithinTx(ctx context.Context, fn func(tx Store) error) error
}

// PodFilter narrows ListPods.
type PodFilter struct {
	SprintType string
	Statuses   []models.PodStatus
	Limit      int
}

// PodRepository persists pods and memberships.
type PodRepository interface {
	CreatePod(ctx context.Context, pod *models.Pod) error
	GetPod(ctx context.Context, id string) (*models.Pod, error)
	// LockPod loads the pod and, where the dialect supports it, holds a row lock until the transaction ends.
	LockPod(ctx context.Context, id string) (*models.Pod, error)
	UpdatePod(ctx context.Context, pod *models.Pod) error
	ListPods(ctx context.Context, filter PodFilter) ([]models.Pod, error)

	CreateMembership(ctx context.Context, membership *models.PodMembership) error
	UpdateMembership(ctx context.Context, membership *models.PodMembership) error
	ActiveMembership(ctx context.Context, podID, userID string) (*models.PodMembership, error)
	// ActiveMembers returns ACTIVE memberships of a pod ordered by joined_at, then created_at.
	ActiveMembers(ctx context.Context, podID string) ([]models.PodMembership, error)
	// LockUsers holds row locks on the given users until the transaction ends, taken in id order.
	// It fails with ErrNotFound when a user row is missing.
	LockUsers(ctx context.Context, userIDs ...string) error
	// OpenMemberships returns ACTIVE memberships of the given users in FORMING or ACTIVE pods.
	OpenMemberships(ctx context.Context, userIDs ...string) ([]models.PodMembership, error)
	// UserPods returns FORMING or ACTIVE pods in which the user holds an ACTIVE membership.
	UserPods(ctx context.Context, userID string) ([]models.Pod, error)
}

// SessionRepository persists sessions, attendance and the transition audit trail.
type SessionRepository interface {
	CreateSession(ctx context.Context, session *models.Session) error
	GetSession(ctx context.Context, id string) (*models.Session, error)
	ListPodSessions(ctx context.Context, podID string) ([]models.Session, error)
	// LatestPodSession returns the session with the highest session number for a pod.
	LatestPodSession(ctx context.Context, podID string) (*models.Session, error)
	// UpdateStatus moves the session to `to` only if its current status is in `from`.
	// It reports whether a row was changed.
	UpdateStatus(ctx context.Context, id string, from []models.SessionStatus, to models.SessionStatus, fields map[string]any) (bool, error)
	UpdateVideo(ctx context.Context, id, url, room, provider string) error

	CreateAttendance(ctx context.Context, rows []models.SessionAttendance) error
	UpsertAttendance(ctx context.Context, row *models.SessionAttendance) error
	GetAttendance(ctx context.Context, sessionID, userID string) (*models.SessionAttendance, error)
	ListAttendance(ctx context.Context, sessionID string) ([]models.SessionAttendance, error)

	// ScheduledBetween returns SCHEDULED sessions with scheduled_at in [from, to] whose kind flag is unset.
	ScheduledBetween(ctx context.Context, kind models.ReminderKind, from, to time.Time) ([]models.Session, error)
	// ClaimReminder sets the reminder flag and reports whether this call was the one that set it.
	ClaimReminder(ctx context.Context, id string, kind models.ReminderKind) (bool, error)

	AppendTransition(ctx context.Context, transition *models.SessionTransition) error
	ListTransitions(ctx context.Context, sessionID string) ([]models.SessionTransition, error)
}

// WaitlistRepository persists waitlist entries.
type WaitlistRepository interface {
	CreateEntry(ctx context.Context, entry *models.WaitlistEntry) error
	GetEntry(ctx context.Context, id string) (*models.WaitlistEntry, error)
	ActiveEntryFor(ctx context.Context, userID, sprintType string) (*models.WaitlistEntry, error)
	// ActiveEntries returns active entries for a sprint, oldest first. An empty sprint matches all.
	ActiveEntries(ctx context.Context, sprintType string) ([]models.WaitlistEntry, error)
	// Resolve moves an active entry to a terminal status and reports whether this call did it.
	Resolve(ctx context.Context, id string, to models.WaitlistStatus, at time.Time, matchedPodID *string) (bool, error)
	// ClaimWarning stamps warning_sent_at on an active, unwarned entry and reports whether this call did it.
	ClaimWarning(ctx context.Context, id string, at time.Time) (bool, error)
	RecordNotification(ctx context.Context, id, kind string) error
	// DueWarnings returns active, unwarned entries whose warning_at is at or before now.
	DueWarnings(ctx context.Context, now time.Time) ([]models.WaitlistEntry, error)
	// DueExpirations returns active entries whose expires_at is at or before now.
	DueExpirations(ctx context.Context, now time.Time) ([]models.WaitlistEntry, error)
	CountActive(ctx context.Context) (int64, error)
}

// UserPreferences is the matching profile of a user with defaults applied.
type UserPreferences struct {
	Timezone    string
	Preferences models.Preferences
}

// Contact is what the notification channels need to reach a user.
type Contact struct {
	UserID      string
	DisplayName string
	Email       string
	Preferences models.Preferences
}

// UserDirectory resolves users known to the platform.
type UserDirectory interface {
	Exists(ctx context.Context, userID string) (bool, error)
	// GetPreferences returns stored preferences, or defaults when the user has none.
	GetPreferences(ctx context.Context, userID string) (UserPreferences, error)
	Contact(ctx context.Context, userID string) (Contact, error)
}
