package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kartheek-penagamuri/stride-sub000/internal/services"
	"github.com/kartheek-penagamuri/stride-sub000/pkg/response"
)

// PodHandler exposes pod lifecycle operations.
type PodHandler struct {
	pods     *services.PodService
	sessions *services.SessionService
}

// NewPodHandler constructs a PodHandler.
func NewPodHandler(pods *services.PodService, sessions *services.SessionService) *PodHandler {
	return &PodHandler{pods: pods, sessions: sessions}
}

type createPodRequest struct {
	SprintType string   `json:"sprint_type" validate:"required,max=64"`
	MemberIDs  []string `json:"member_ids" validate:"required,min=2,max=4"`
}

type leavePodRequest struct {
	UserID string `json:"user_id"`
	Reason string `json:"reason" validate:"max=255"`
}

// Create POST /api/pods
func (h *PodHandler) Create(c *gin.Context) {
	var body createPodRequest
	if !bindAndValidate(c, &body) {
		return
	}

	details, err := h.pods.CreatePod(requestContext(c), services.CreatePodInput{
		SprintType: body.SprintType,
		MemberIDs:  body.MemberIDs,
		ActorID:    callerID(c, ""),
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, details)
}

// Get GET /api/pods/:id
func (h *PodHandler) Get(c *gin.Context) {
	details, err := h.pods.GetPodDetails(requestContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, details)
}

// Join POST /api/pods/:id/join
func (h *PodHandler) Join(c *gin.Context) {
	var body ownerRequest
	if c.Request.ContentLength > 0 && !bindAndValidate(c, &body) {
		return
	}
	userID, ok := requireCaller(c, body.UserID)
	if !ok {
		return
	}

	details, err := h.pods.JoinPod(requestContext(c), userID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, details)
}

// Leave POST /api/pods/:id/leave
func (h *PodHandler) Leave(c *gin.Context) {
	var body leavePodRequest
	if c.Request.ContentLength > 0 && !bindAndValidate(c, &body) {
		return
	}
	userID, ok := requireCaller(c, body.UserID)
	if !ok {
		return
	}

	details, err := h.pods.LeavePod(requestContext(c), userID, c.Param("id"), body.Reason)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, details)
}

// Activate POST /api/pods/:id/activate
func (h *PodHandler) Activate(c *gin.Context) {
	details, err := h.pods.ActivatePod(requestContext(c), c.Param("id"), callerID(c, ""))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, details)
}

// Complete POST /api/pods/:id/complete
func (h *PodHandler) Complete(c *gin.Context) {
	details, err := h.pods.CompletePod(requestContext(c), c.Param("id"), callerID(c, ""))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, details)
}

// ListForUser GET /api/users/:id/pods
func (h *PodHandler) ListForUser(c *gin.Context) {
	pods, err := h.pods.GetUserPods(requestContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, pods)
}

// Sessions GET /api/pods/:id/sessions
func (h *PodHandler) Sessions(c *gin.Context) {
	sessions, err := h.sessions.ListPodSessions(requestContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, sessions)
}
