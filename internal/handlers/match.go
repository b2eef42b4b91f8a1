package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kartheek-penagamuri/stride-sub000/internal/matching"
	"github.com/kartheek-penagamuri/stride-sub000/internal/models"
	"github.com/kartheek-penagamuri/stride-sub000/internal/services"
	apperrors "github.com/kartheek-penagamuri/stride-sub000/pkg/errors"
	"github.com/kartheek-penagamuri/stride-sub000/pkg/response"
)

// MatchHandler exposes matching requests and waitlist entries.
type MatchHandler struct {
	svc *services.WaitlistService
}

// NewMatchHandler constructs a MatchHandler.
func NewMatchHandler(svc *services.WaitlistService) *MatchHandler {
	return &MatchHandler{svc: svc}
}

type matchRequest struct {
	UserID      string              `json:"user_id"`
	SprintType  string              `json:"sprint_type" validate:"required,max=64"`
	Timezone    string              `json:"timezone" validate:"omitempty,timezone_name"`
	Limit       int                 `json:"limit" validate:"omitempty,gte=1,lte=20"`
	Preferences *models.Preferences `json:"preferences" validate:"omitempty"`
}

type acceptRequest struct {
	UserID     string                  `json:"user_id"`
	Kind       matching.SuggestionKind `json:"kind" validate:"required,oneof=existing new"`
	PodID      string                  `json:"pod_id"`
	SprintType string                  `json:"sprint_type"`
	MemberIDs  []string                `json:"member_ids" validate:"required,min=1"`
	Score      matching.Score          `json:"score"`
}

type ownerRequest struct {
	UserID string `json:"user_id"`
}

// Request POST /api/match
func (h *MatchHandler) Request(c *gin.Context) {
	var body matchRequest
	if !bindAndValidate(c, &body) {
		return
	}
	userID, ok := requireCaller(c, body.UserID)
	if !ok {
		return
	}

	result, err := h.svc.RequestMatch(requestContext(c), services.RequestMatchInput{
		UserID:      userID,
		SprintType:  body.SprintType,
		Preferences: body.Preferences,
		Timezone:    body.Timezone,
		Limit:       body.Limit,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, result)
}

// Get GET /api/waitlist/:id
func (h *MatchHandler) Get(c *gin.Context) {
	entry, err := h.svc.GetEntry(requestContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, entry)
}

// Cancel POST /api/waitlist/:id/cancel
func (h *MatchHandler) Cancel(c *gin.Context) {
	var body ownerRequest
	if c.Request.ContentLength > 0 && !bindAndValidate(c, &body) {
		return
	}
	userID, ok := requireCaller(c, body.UserID)
	if !ok {
		return
	}

	entry, err := h.svc.CancelEntry(requestContext(c), c.Param("id"), userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, entry)
}

// Accept POST /api/waitlist/:id/accept
func (h *MatchHandler) Accept(c *gin.Context) {
	var body acceptRequest
	if !bindAndValidate(c, &body) {
		return
	}
	userID, ok := requireCaller(c, body.UserID)
	if !ok {
		return
	}
	if body.Kind == matching.SuggestionExistingPod && body.PodID == "" {
		response.Error(c, apperrors.NewBadRequest("pod id is required for an existing pod suggestion"))
		return
	}

	details, err := h.svc.AcceptSuggestion(requestContext(c), c.Param("id"), userID, matching.Suggestion{
		Kind:       body.Kind,
		PodID:      body.PodID,
		SprintType: body.SprintType,
		MemberIDs:  body.MemberIDs,
		Score:      body.Score,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, details)
}
