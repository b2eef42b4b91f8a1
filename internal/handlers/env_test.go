package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/kartheek-penagamuri/stride-sub000/internal/database/testutil"
	"github.com/kartheek-penagamuri/stride-sub000/internal/matching"
	"github.com/kartheek-penagamuri/stride-sub000/internal/middleware"
	"github.com/kartheek-penagamuri/stride-sub000/internal/monitoring"
	"github.com/kartheek-penagamuri/stride-sub000/internal/monitoring/checks"
	"github.com/kartheek-penagamuri/stride-sub000/internal/models"
	"github.com/kartheek-penagamuri/stride-sub000/internal/services"
	"github.com/kartheek-penagamuri/stride-sub000/internal/store"
	"github.com/kartheek-penagamuri/stride-sub000/internal/testfixtures"
	"github.com/kartheek-penagamuri/stride-sub000/pkg/response"
)

type handlerEnv struct {
	db            *gorm.DB
	router        *gin.Engine
	pods          *services.PodService
	sessions      *services.SessionService
	waitlist      *services.WaitlistService
	notifications *services.NotificationService
	audit         *services.AuditService
}

type staticVideo struct{}

func (staticVideo) CreateMeeting(_ context.Context, sessionID, _ string, _ services.VideoConfig) (services.VideoMeeting, error) {
	return services.VideoMeeting{URL: "https://video.test/" + sessionID, RoomName: sessionID, Provider: "test"}, nil
}

func newHandlerEnv(t *testing.T, candidates ...models.Candidate) *handlerEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	users := make([]models.User, 0, len(candidates))
	for _, c := range candidates {
		users = append(users, testfixtures.UserFor(c))
	}
	opts := []testutil.TestDBOption{testutil.WithAutoMigrate()}
	if len(users) > 0 {
		opts = append(opts, testutil.WithUsers(users...))
	}
	db := testutil.MustOpenTestDB(t, opts...)

	st, err := store.NewGormStore(db)
	require.NoError(t, err)
	dir, err := store.NewGormUserDirectory(db)
	require.NoError(t, err)

	env := &handlerEnv{db: db}
	env.audit, err = services.NewAuditService(db)
	require.NoError(t, err)
	env.notifications, err = services.NewNotificationService(db, dir)
	require.NoError(t, err)
	env.pods, err = services.NewPodService(st, dir, services.WithPodAuditService(env.audit))
	require.NoError(t, err)
	env.sessions, err = services.NewSessionService(st, staticVideo{})
	require.NoError(t, err)
	source, err := services.NewStorePoolSource(st, dir)
	require.NoError(t, err)
	engine, err := matching.NewEngine(source)
	require.NoError(t, err)
	env.waitlist, err = services.NewWaitlistService(st, dir, engine, env.pods, env.notifications)
	require.NoError(t, err)
	t.Cleanup(env.waitlist.Shutdown)

	r := gin.New()
	r.Use(middleware.Identity())

	match := NewMatchHandler(env.waitlist)
	r.POST("/api/match", match.Request)
	r.GET("/api/waitlist/:id", match.Get)
	r.POST("/api/waitlist/:id/cancel", match.Cancel)
	r.POST("/api/waitlist/:id/accept", match.Accept)

	pods := NewPodHandler(env.pods, env.sessions)
	r.POST("/api/pods", pods.Create)
	r.GET("/api/pods/:id", pods.Get)
	r.POST("/api/pods/:id/join", pods.Join)
	r.POST("/api/pods/:id/leave", pods.Leave)
	r.POST("/api/pods/:id/activate", pods.Activate)
	r.POST("/api/pods/:id/complete", pods.Complete)
	r.GET("/api/pods/:id/sessions", pods.Sessions)
	r.GET("/api/users/:id/pods", pods.ListForUser)

	sessions := NewSessionHandler(env.sessions)
	r.POST("/api/sessions", sessions.Create)
	r.GET("/api/sessions/:id", sessions.Get)
	r.GET("/api/sessions/:id/attendance", sessions.Attendance)
	r.PUT("/api/sessions/:id/attendance", sessions.MarkAttendance)
	r.GET("/api/sessions/:id/transitions", sessions.Transitions)
	r.POST("/api/sessions/:id/:action", sessions.Transition)

	notifications := NewNotificationHandler(env.notifications)
	r.GET("/api/users/:id/notifications", notifications.List)
	r.POST("/api/users/:id/notifications/:nid/read", notifications.MarkRead)

	r.GET("/api/audit", NewAuditHandler(env.audit).List)
	health := monitoring.NewHealthManager()
	health.RegisterReadiness(checks.Database(db, 0))
	r.GET("/health", Health(health))
	r.GET("/health/live", Liveness(health))
	r.GET("/health/ready", Readiness(health))

	env.router = r
	return env
}

// do sends a JSON request, optionally as userID, and decodes the envelope.
func (e *handlerEnv) do(t *testing.T, method, path, userID string, body any) (*httptest.ResponseRecorder, response.Response) {
	t.Helper()
	var payload bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&payload).Encode(body))
	}
	req := httptest.NewRequest(method, path, &payload)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set(middleware.HeaderUserID, userID)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)

	var resp response.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	return rec, resp
}

// decodeData re-encodes the envelope data into dest.
func decodeData(t *testing.T, resp response.Response, dest any) {
	t.Helper()
	raw, err := json.Marshal(resp.Data)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, dest))
}

func ids(candidates ...models.Candidate) []string {
	out := make([]string, len(candidates))
	for i, c := range candidates {
		out[i] = c.UserID
	}
	return out
}
