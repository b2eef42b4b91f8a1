package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kartheek-penagamuri/stride-sub000/internal/models"
	"github.com/kartheek-penagamuri/stride-sub000/internal/services"
	apperrors "github.com/kartheek-penagamuri/stride-sub000/pkg/errors"
	"github.com/kartheek-penagamuri/stride-sub000/pkg/response"
)

// SessionHandler exposes session scheduling, transitions and attendance.
type SessionHandler struct {
	svc *services.SessionService
}

// NewSessionHandler constructs a SessionHandler.
func NewSessionHandler(svc *services.SessionService) *SessionHandler {
	return &SessionHandler{svc: svc}
}

type createSessionRequest struct {
	PodID              string                `json:"pod_id" validate:"required"`
	ScheduledAt        time.Time             `json:"scheduled_at" validate:"required"`
	SessionNumber      int                   `json:"session_number" validate:"omitempty,gte=1"`
	AttendanceRequired *bool                 `json:"attendance_required"`
	Video              *services.VideoConfig `json:"video"`
}

type transitionRequest struct {
	UserID string `json:"user_id"`
	Reason string `json:"reason" validate:"max=255"`
}

type attendanceRequest struct {
	UserID   string     `json:"user_id"`
	Attended bool       `json:"attended"`
	JoinedAt *time.Time `json:"joined_at"`
	LeftAt   *time.Time `json:"left_at"`
}

// Create POST /api/sessions
func (h *SessionHandler) Create(c *gin.Context) {
	var body createSessionRequest
	if !bindAndValidate(c, &body) {
		return
	}

	session, err := h.svc.CreateSession(requestContext(c), services.CreateSessionInput{
		PodID:              body.PodID,
		ScheduledAt:        body.ScheduledAt,
		Video:              body.Video,
		AttendanceRequired: body.AttendanceRequired,
		SessionNumber:      body.SessionNumber,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, session)
}

// Get GET /api/sessions/:id
func (h *SessionHandler) Get(c *gin.Context) {
	session, err := h.svc.GetSession(requestContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, session)
}

// Transition POST /api/sessions/:id/:action
func (h *SessionHandler) Transition(c *gin.Context) {
	var body transitionRequest
	if c.Request.ContentLength > 0 && !bindAndValidate(c, &body) {
		return
	}
	ctx := requestContext(c)
	sessionID := c.Param("id")
	userID := callerID(c, body.UserID)

	var (
		session *models.Session
		err     error
	)
	switch c.Param("action") {
	case "start":
		session, err = h.svc.StartSession(ctx, sessionID, userID)
	case "complete":
		session, err = h.svc.CompleteSession(ctx, sessionID, userID)
	case "cancel":
		session, err = h.svc.CancelSession(ctx, sessionID, userID, body.Reason)
	default:
		err = apperrors.NewBadRequest("action must be one of: start complete cancel")
	}
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, session)
}

// Attendance GET /api/sessions/:id/attendance
func (h *SessionHandler) Attendance(c *gin.Context) {
	records, err := h.svc.ListAttendance(requestContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, records)
}

// MarkAttendance PUT /api/sessions/:id/attendance
func (h *SessionHandler) MarkAttendance(c *gin.Context) {
	var body attendanceRequest
	if !bindAndValidate(c, &body) {
		return
	}
	userID, ok := requireCaller(c, body.UserID)
	if !ok {
		return
	}

	record, err := h.svc.MarkAttendance(requestContext(c), services.AttendanceInput{
		SessionID: c.Param("id"),
		UserID:    userID,
		Attended:  body.Attended,
		JoinedAt:  body.JoinedAt,
		LeftAt:    body.LeftAt,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, record)
}

// Transitions GET /api/sessions/:id/transitions
func (h *SessionHandler) Transitions(c *gin.Context) {
	transitions, err := h.svc.ListTransitions(requestContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, transitions)
}
