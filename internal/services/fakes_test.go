package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/kartheek-penagamuri/stride-sub000/internal/database/testutil"
	"github.com/kartheek-penagamuri/stride-sub000/internal/matching"
	"github.com/kartheek-penagamuri/stride-sub000/internal/models"
	"github.com/kartheek-penagamuri/stride-sub000/internal/store"
	"github.com/kartheek-penagamuri/stride-sub000/internal/testfixtures"
)

type sentNotification struct {
	UserID   string
	Kind     NotificationKind
	Data     map[string]any
	Priority Priority
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentNotification
	err  error
}

func (n *recordingNotifier) Send(_ context.Context, userID string, kind NotificationKind, data map[string]any, priority Priority) DeliveryResult {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentNotification{UserID: userID, Kind: kind, Data: data, Priority: priority})
	if n.err != nil {
		return DeliveryResult{Err: n.err}
	}
	return DeliveryResult{Delivered: true, Channels: []string{ChannelInApp}}
}

func (n *recordingNotifier) all() []sentNotification {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]sentNotification, len(n.sent))
	copy(out, n.sent)
	return out
}

func (n *recordingNotifier) ofKind(kind NotificationKind) []sentNotification {
	var out []sentNotification
	for _, s := range n.all() {
		if s.Kind == kind {
			out = append(out, s)
		}
	}
	return out
}

type fakeVideo struct {
	mu       sync.Mutex
	calls    []string
	err      error
	failCall int
}

func (v *fakeVideo) CreateMeeting(_ context.Context, sessionID, _ string, cfg VideoConfig) (VideoMeeting, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.calls = append(v.calls, sessionID)
	if v.err != nil && (v.failCall == 0 || v.failCall == len(v.calls)) {
		return VideoMeeting{}, v.err
	}
	provider := cfg.Provider
	if provider == "" {
		provider = "fake"
	}
	return VideoMeeting{URL: "https://video.test/" + sessionID, RoomName: sessionID, Provider: provider}, nil
}

func (v *fakeVideo) callCount() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.calls)
}

type testEnv struct {
	db        *gorm.DB
	store     *store.GormStore
	users     *store.GormUserDirectory
	clock     *testfixtures.Clock
	notifier  *recordingNotifier
	video     *fakeVideo
	audit     *AuditService
	pods      *PodService
	sessions  *SessionService
	engine    *matching.Engine
	waitlist  *WaitlistService
	reminders *ReminderService
}

type envOption func(*envConfig)

type envConfig struct {
	waitlist WaitlistConfig
}

func withWaitlistConfig(cfg WaitlistConfig) envOption {
	return func(c *envConfig) { c.waitlist = cfg }
}

func newTestEnv(t *testing.T, candidates []models.Candidate, opts ...envOption) *testEnv {
	t.Helper()
	var cfg envConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	users := make([]models.User, 0, len(candidates))
	for _, c := range candidates {
		users = append(users, testfixtures.UserFor(c))
	}
	dbOpts := []testutil.TestDBOption{testutil.WithAutoMigrate()}
	if len(users) > 0 {
		dbOpts = append(dbOpts, testutil.WithUsers(users...))
	}
	db := testutil.MustOpenTestDB(t, dbOpts...)

	env := &testEnv{
		db:       db,
		clock:    testfixtures.NewClock(testfixtures.ReferenceTime()),
		notifier: &recordingNotifier{},
		video:    &fakeVideo{},
	}
	var err error
	env.store, err = store.NewGormStore(db)
	require.NoError(t, err)
	env.users, err = store.NewGormUserDirectory(db)
	require.NoError(t, err)
	env.audit, err = NewAuditService(db, WithAuditClock(env.clock.NowFunc()))
	require.NoError(t, err)
	env.pods, err = NewPodService(env.store, env.users, WithPodAuditService(env.audit), WithPodClock(env.clock.NowFunc()))
	require.NoError(t, err)
	env.sessions, err = NewSessionService(env.store, env.video, WithSessionClock(env.clock.NowFunc()))
	require.NoError(t, err)

	source, err := NewStorePoolSource(env.store, env.users)
	require.NoError(t, err)
	env.engine, err = matching.NewEngine(source, matching.WithScorer(matching.NewScorer(matching.WithScorerClock(env.clock.NowFunc()))))
	require.NoError(t, err)

	env.waitlist, err = NewWaitlistService(env.store, env.users, env.engine, env.pods, env.notifier,
		WithWaitlistConfig(cfg.waitlist), WithWaitlistClock(env.clock.NowFunc()))
	require.NoError(t, err)
	t.Cleanup(env.waitlist.Shutdown)

	env.reminders, err = NewReminderService(env.sessions, env.store, env.notifier, WithReminderClock(env.clock.NowFunc()))
	require.NoError(t, err)
	return env
}

func ids(candidates ...models.Candidate) []string {
	out := make([]string, len(candidates))
	for i, c := range candidates {
		out[i] = c.UserID
	}
	return out
}

func countActive(t *testing.T, env *testEnv, podID string) int {
	t.Helper()
	members, err := env.store.Pods().ActiveMembers(context.Background(), podID)
	require.NoError(t, err)
	return len(members)
}

func countFacilitators(members []models.PodMembership) int {
	n := 0
	for _, m := range members {
		if m.IsFacilitator() {
			n++
		}
	}
	return n
}

var errDeliveryDown = errors.New("delivery down")
