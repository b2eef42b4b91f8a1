package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/kartheek-penagamuri/stride-sub000/internal/database/testutil"
	"github.com/kartheek-penagamuri/stride-sub000/internal/models"
	"github.com/kartheek-penagamuri/stride-sub000/internal/testfixtures"
)

func newTestStore(t *testing.T, users ...models.User) *GormStore {
	t.Helper()
	opts := []testutil.TestDBOption{testutil.WithAutoMigrate()}
	if len(users) > 0 {
		opts = append(opts, testutil.WithUsers(users...))
	}
	st, err := NewGormStore(testutil.MustOpenTestDB(t, opts...))
	require.NoError(t, err)
	return st
}

func seedPod(t *testing.T, st Store, status models.PodStatus, userIDs ...string) *models.Pod {
	t.Helper()
	ctx := context.Background()
	pod := &models.Pod{SprintType: "gym", Status: status, CurrentMembers: len(userIDs), MaxMembers: models.MaxPodSize}
	require.NoError(t, st.Pods().CreatePod(ctx, pod))

	joined := testfixtures.ReferenceTime()
	for i, id := range userIDs {
		role := models.RoleMember
		if i == 0 {
			role = models.RoleFacilitator
		}
		require.NoError(t, st.Pods().CreateMembership(ctx, &models.PodMembership{
			PodID:    pod.ID,
			UserID:   id,
			Role:     role,
			Status:   models.MembershipStatusActive,
			JoinedAt: joined.Add(time.Duration(i) * time.Minute),
		}))
	}
	return pod
}

func TestNewGormStoreRequiresDB(t *testing.T) {
	_, err := NewGormStore(nil)
	require.Error(t, err)
}

func TestPodsGetMissingReturnsNotFound(t *testing.T) {
	st := newTestStore(t)

	_, err := st.Pods().GetPod(context.Background(), models.NewID())
	require.ErrorIs(t, err, ErrNotFound)
}

func TestPodsActiveMembersOrderedByJoin(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	a, b, c := models.NewID(), models.NewID(), models.NewID()
	pod := seedPod(t, st, models.PodStatusActive, a, b, c)

	members, err := st.Pods().ActiveMembers(ctx, pod.ID)
	require.NoError(t, err)
	require.Len(t, members, 3)
	require.Equal(t, []string{a, b, c}, []string{members[0].UserID, members[1].UserID, members[2].UserID})

	members[1].Status = models.MembershipStatusLeft
	require.NoError(t, st.Pods().UpdateMembership(ctx, &members[1]))

	members, err = st.Pods().ActiveMembers(ctx, pod.ID)
	require.NoError(t, err)
	require.Len(t, members, 2)

	_, err = st.Pods().ActiveMembership(ctx, pod.ID, b)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestPodsOpenMembershipsIgnoreClosedPods(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	open, closed := models.NewID(), models.NewID()
	seedPod(t, st, models.PodStatusForming, open)
	seedPod(t, st, models.PodStatusCompleted, closed)

	memberships, err := st.Pods().OpenMemberships(ctx, open, closed)
	require.NoError(t, err)
	require.Len(t, memberships, 1)
	require.Equal(t, open, memberships[0].UserID)

	pods, err := st.Pods().UserPods(ctx, closed)
	require.NoError(t, err)
	require.Empty(t, pods)

	none, err := st.Pods().OpenMemberships(ctx)
	require.NoError(t, err)
	require.Empty(t, none)
}

func TestPodsLockUsers(t *testing.T) {
	a, b := testfixtures.NewCandidate(), testfixtures.NewCandidate()
	st := newTestStore(t, testfixtures.UserFor(a), testfixtures.UserFor(b))
	ctx := context.Background()

	err := st.WithinTx(ctx, func(tx Store) error {
		return tx.Pods().LockUsers(ctx, b.UserID, a.UserID, b.UserID)
	})
	require.NoError(t, err)

	require.NoError(t, st.Pods().LockUsers(ctx))

	err = st.WithinTx(ctx, func(tx Store) error {
		return tx.Pods().LockUsers(ctx, a.UserID, models.NewID())
	})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestPodsUpdateAndList(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	pod := seedPod(t, st, models.PodStatusForming, models.NewID())
	seedPod(t, st, models.PodStatusActive, models.NewID(), models.NewID())

	activated := testfixtures.ReferenceTime()
	pod.Status = models.PodStatusActive
	pod.CurrentMembers = 2
	pod.ActivatedAt = &activated
	require.NoError(t, st.Pods().UpdatePod(ctx, pod))

	reloaded, err := st.Pods().LockPod(ctx, pod.ID)
	require.NoError(t, err)
	require.Equal(t, models.PodStatusActive, reloaded.Status)
	require.Equal(t, 2, reloaded.CurrentMembers)
	require.NotNil(t, reloaded.ActivatedAt)

	forming, err := st.Pods().ListPods(ctx, PodFilter{SprintType: "gym", Statuses: []models.PodStatus{models.PodStatusForming}})
	require.NoError(t, err)
	require.Empty(t, forming)

	all, err := st.Pods().ListPods(ctx, PodFilter{Limit: 1})
	require.NoError(t, err)
	require.Len(t, all, 1)
}

func TestWithinTxRollsBackOnError(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	boom := errors.New("boom")

	var podID string
	err := st.WithinTx(ctx, func(tx Store) error {
		pod := seedPod(t, tx, models.PodStatusForming, models.NewID())
		podID = pod.ID
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = st.Pods().GetPod(ctx, podID)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSessionsConditionalStatusUpdate(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	pod := seedPod(t, st, models.PodStatusActive, models.NewID(), models.NewID())

	session := &models.Session{PodID: pod.ID, ScheduledAt: testfixtures.ReferenceTime(), Status: models.SessionStatusScheduled, SessionNumber: 1}
	require.NoError(t, st.Sessions().CreateSession(ctx, session))

	started := testfixtures.ReferenceTime().Add(time.Minute)
	changed, err := st.Sessions().UpdateStatus(ctx, session.ID,
		[]models.SessionStatus{models.SessionStatusScheduled}, models.SessionStatusActive,
		map[string]any{"started_at": started})
	require.NoError(t, err)
	require.True(t, changed)

	changed, err = st.Sessions().UpdateStatus(ctx, session.ID,
		[]models.SessionStatus{models.SessionStatusScheduled}, models.SessionStatusActive, nil)
	require.NoError(t, err)
	require.False(t, changed)

	reloaded, err := st.Sessions().GetSession(ctx, session.ID)
	require.NoError(t, err)
	require.Equal(t, models.SessionStatusActive, reloaded.Status)
	require.NotNil(t, reloaded.StartedAt)
	require.True(t, started.Equal(*reloaded.StartedAt))
}

func TestSessionsAttendanceUpsert(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	a, b := models.NewID(), models.NewID()
	pod := seedPod(t, st, models.PodStatusActive, a, b)

	session := &models.Session{PodID: pod.ID, ScheduledAt: testfixtures.ReferenceTime(), Status: models.SessionStatusScheduled}
	require.NoError(t, st.Sessions().CreateSession(ctx, session))
	require.NoError(t, st.Sessions().CreateAttendance(ctx, []models.SessionAttendance{
		{SessionID: session.ID, UserID: a},
		{SessionID: session.ID, UserID: b},
	}))

	joined := testfixtures.ReferenceTime()
	seeded, err := st.Sessions().GetAttendance(ctx, session.ID, a)
	require.NoError(t, err)
	require.False(t, seeded.Attended)

	require.NoError(t, st.Sessions().UpsertAttendance(ctx, &models.SessionAttendance{SessionID: session.ID, UserID: a, Attended: true, JoinedAt: &joined}))
	require.NoError(t, st.Sessions().UpsertAttendance(ctx, &models.SessionAttendance{SessionID: session.ID, UserID: a, Attended: true, JoinedAt: &joined}))

	stored, err := st.Sessions().GetAttendance(ctx, session.ID, a)
	require.NoError(t, err)
	require.Equal(t, seeded.ID, stored.ID)
	require.True(t, stored.Attended)

	_, err = st.Sessions().GetAttendance(ctx, session.ID, models.NewID())
	require.ErrorIs(t, err, ErrNotFound)

	rows, err := st.Sessions().ListAttendance(ctx, session.ID)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	attended := 0
	for _, row := range rows {
		if row.Attended {
			attended++
			require.Equal(t, a, row.UserID)
		}
	}
	require.Equal(t, 1, attended)
}

func TestSessionsReminderWindowAndClaim(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	pod := seedPod(t, st, models.PodStatusActive, models.NewID(), models.NewID())
	now := testfixtures.ReferenceTime()

	soon := &models.Session{PodID: pod.ID, ScheduledAt: now.Add(45 * time.Minute), Status: models.SessionStatusScheduled, SessionNumber: 1}
	later := &models.Session{PodID: pod.ID, ScheduledAt: now.Add(3 * time.Hour), Status: models.SessionStatusScheduled, SessionNumber: 2}
	require.NoError(t, st.Sessions().CreateSession(ctx, soon))
	require.NoError(t, st.Sessions().CreateSession(ctx, later))

	due, err := st.Sessions().ScheduledBetween(ctx, models.ReminderT60, now, now.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, due, 1)
	require.Equal(t, soon.ID, due[0].ID)

	claimed, err := st.Sessions().ClaimReminder(ctx, soon.ID, models.ReminderT60)
	require.NoError(t, err)
	require.True(t, claimed)

	claimed, err = st.Sessions().ClaimReminder(ctx, soon.ID, models.ReminderT60)
	require.NoError(t, err)
	require.False(t, claimed)

	due, err = st.Sessions().ScheduledBetween(ctx, models.ReminderT60, now, now.Add(time.Hour))
	require.NoError(t, err)
	require.Empty(t, due)

	_, err = st.Sessions().ScheduledBetween(ctx, models.ReminderKind("T-5"), now, now)
	require.Error(t, err)

	latest, err := st.Sessions().LatestPodSession(ctx, pod.ID)
	require.NoError(t, err)
	require.Equal(t, later.ID, latest.ID)
}

func TestSessionsTransitionsAppendOnly(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	sessionID := models.NewID()
	now := testfixtures.ReferenceTime()

	require.NoError(t, st.Sessions().AppendTransition(ctx, &models.SessionTransition{
		SessionID: sessionID, FromStatus: models.SessionStatusScheduled, ToStatus: models.SessionStatusActive, OccurredAt: now,
	}))
	require.NoError(t, st.Sessions().AppendTransition(ctx, &models.SessionTransition{
		SessionID: sessionID, FromStatus: models.SessionStatusActive, ToStatus: models.SessionStatusCompleted, OccurredAt: now.Add(time.Hour),
		Metadata: datatypes.JSON(`{"reason":"done"}`),
	}))

	transitions, err := st.Sessions().ListTransitions(ctx, sessionID)
	require.NoError(t, err)
	require.Len(t, transitions, 2)
	require.Equal(t, models.SessionStatusCompleted, transitions[1].ToStatus)
}

func newEntry(userID string, created time.Time) *models.WaitlistEntry {
	return &models.WaitlistEntry{
		UserID:      userID,
		SprintType:  "gym",
		Preferences: datatypes.NewJSONType(models.DefaultPreferences()),
		Timezone:    "UTC",
		Status:      models.WaitlistStatusActive,
		WarningAt:   created.Add(20 * time.Hour),
		ExpiresAt:   created.Add(24 * time.Hour),
	}
}

func TestWaitlistResolveIsExactlyOnce(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	now := testfixtures.ReferenceTime()
	entry := newEntry(models.NewID(), now)
	require.NoError(t, st.Waitlist().CreateEntry(ctx, entry))

	podID := models.NewID()
	done, err := st.Waitlist().Resolve(ctx, entry.ID, models.WaitlistStatusMatched, now, &podID)
	require.NoError(t, err)
	require.True(t, done)

	done, err = st.Waitlist().Resolve(ctx, entry.ID, models.WaitlistStatusExpired, now, nil)
	require.NoError(t, err)
	require.False(t, done)

	_, err = st.Waitlist().Resolve(ctx, entry.ID, models.WaitlistStatusActive, now, nil)
	require.Error(t, err)

	reloaded, err := st.Waitlist().GetEntry(ctx, entry.ID)
	require.NoError(t, err)
	require.Equal(t, models.WaitlistStatusMatched, reloaded.Status)
	require.NotNil(t, reloaded.MatchedPodID)
	require.Equal(t, podID, *reloaded.MatchedPodID)

	_, err = st.Waitlist().ActiveEntryFor(ctx, entry.UserID, "gym")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestWaitlistDueQueriesAndWarningClaim(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	created := testfixtures.ReferenceTime()
	entry := newEntry(models.NewID(), created)
	require.NoError(t, st.Waitlist().CreateEntry(ctx, entry))

	due, err := st.Waitlist().DueWarnings(ctx, created.Add(19*time.Hour))
	require.NoError(t, err)
	require.Empty(t, due)

	warnAt := created.Add(20 * time.Hour)
	due, err = st.Waitlist().DueWarnings(ctx, warnAt)
	require.NoError(t, err)
	require.Len(t, due, 1)

	claimed, err := st.Waitlist().ClaimWarning(ctx, entry.ID, warnAt)
	require.NoError(t, err)
	require.True(t, claimed)
	claimed, err = st.Waitlist().ClaimWarning(ctx, entry.ID, warnAt)
	require.NoError(t, err)
	require.False(t, claimed)

	require.NoError(t, st.Waitlist().RecordNotification(ctx, entry.ID, "timeout_warning"))
	reloaded, err := st.Waitlist().GetEntry(ctx, entry.ID)
	require.NoError(t, err)
	require.Equal(t, 1, reloaded.NotificationsSent)
	require.Equal(t, "timeout_warning", reloaded.LastNotification)

	expired, err := st.Waitlist().DueExpirations(ctx, created.Add(24*time.Hour))
	require.NoError(t, err)
	require.Len(t, expired, 1)

	count, err := st.Waitlist().CountActive(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, count)

	active, err := st.Waitlist().ActiveEntries(ctx, "gym")
	require.NoError(t, err)
	require.Len(t, active, 1)

	active, err = st.Waitlist().ActiveEntries(ctx, "")
	require.NoError(t, err)
	require.Len(t, active, 1)

	active, err = st.Waitlist().ActiveEntries(ctx, "writing")
	require.NoError(t, err)
	require.Empty(t, active)
}

func TestUserDirectoryDefaults(t *testing.T) {
	c := testfixtures.NewCandidate(testfixtures.WithTimezone("Europe/Berlin"))
	st := newTestStore(t, testfixtures.UserFor(c))
	dir, err := NewGormUserDirectory(st.DB())
	require.NoError(t, err)
	ctx := context.Background()

	exists, err := dir.Exists(ctx, c.UserID)
	require.NoError(t, err)
	require.True(t, exists)

	exists, err = dir.Exists(ctx, models.NewID())
	require.NoError(t, err)
	require.False(t, exists)

	prefs, err := dir.GetPreferences(ctx, c.UserID)
	require.NoError(t, err)
	require.Equal(t, "Europe/Berlin", prefs.Timezone)
	require.Equal(t, models.CollaborationStructured, prefs.Preferences.CollaborationStyle)

	prefs, err = dir.GetPreferences(ctx, models.NewID())
	require.NoError(t, err)
	require.Equal(t, models.DefaultTimezone, prefs.Timezone)
	require.Equal(t, models.DefaultPreferences(), prefs.Preferences)

	contact, err := dir.Contact(ctx, c.UserID)
	require.NoError(t, err)
	require.NotEmpty(t, contact.Email)

	_, err = dir.Contact(ctx, models.NewID())
	require.ErrorIs(t, err, ErrNotFound)
}
