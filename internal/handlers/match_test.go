package handlers

import (
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/kartheek-penagamuri/stride-sub000/internal/matching"
	"github.com/kartheek-penagamuri/stride-sub000/internal/models"
	"github.com/kartheek-penagamuri/stride-sub000/internal/services"
	"github.com/kartheek-penagamuri/stride-sub000/internal/testfixtures"
)

func TestMatchRequestAndCancel(t *testing.T) {
	a := testfixtures.NewCandidate()
	env := newHandlerEnv(t, a)

	rec, resp := env.do(t, http.MethodPost, "/api/match", "", gin.H{"sprint_type": "gym"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, resp.Error.Message, "user_id is required")

	rec, resp = env.do(t, http.MethodPost, "/api/match", a.UserID, gin.H{"sprint_type": "gym", "timezone": "Mars/Olympus"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, resp.Error.Message, "timezone must be a timezone name or UTC offset")

	rec, resp = env.do(t, http.MethodPost, "/api/match", a.UserID, gin.H{"sprint_type": "gym"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var result services.MatchResult
	decodeData(t, resp, &result)
	require.Equal(t, models.WaitlistStatusActive, result.Entry.Status)
	require.Empty(t, result.Suggestions)

	entryPath := "/api/waitlist/" + result.Entry.ID
	rec, _ = env.do(t, http.MethodGet, entryPath, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	other := models.NewID()
	rec, resp = env.do(t, http.MethodPost, entryPath+"/cancel", other, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "WAITLIST_ENTRY_NOT_FOUND", resp.Error.Code)

	rec, resp = env.do(t, http.MethodPost, entryPath+"/cancel", a.UserID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var cancelled models.WaitlistEntry
	decodeData(t, resp, &cancelled)
	require.Equal(t, models.WaitlistStatusCancelled, cancelled.Status)
}

func TestAcceptSuggestionFormsPod(t *testing.T) {
	a, b := testfixtures.NewCandidate(), testfixtures.NewCandidate()
	env := newHandlerEnv(t, a, b)

	rec, _ := env.do(t, http.MethodPost, "/api/match", b.UserID, gin.H{"sprint_type": "gym"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec, resp := env.do(t, http.MethodPost, "/api/match", "", gin.H{"user_id": a.UserID, "sprint_type": "gym"})
	require.Equal(t, http.StatusOK, rec.Code)
	var result services.MatchResult
	decodeData(t, resp, &result)
	require.NotEmpty(t, result.Suggestions)

	suggestion := result.Suggestions[0]
	require.Equal(t, matching.SuggestionNewPod, suggestion.Kind)
	require.ElementsMatch(t, ids(a, b), suggestion.MemberIDs)

	entryPath := "/api/waitlist/" + result.Entry.ID
	rec, resp = env.do(t, http.MethodPost, entryPath+"/accept", a.UserID, gin.H{"kind": "existing", "member_ids": suggestion.MemberIDs})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, resp.Error.Message, "pod id is required")

	rec, resp = env.do(t, http.MethodPost, entryPath+"/accept", a.UserID, gin.H{
		"kind":        suggestion.Kind,
		"sprint_type": suggestion.SprintType,
		"member_ids":  suggestion.MemberIDs,
		"score":       suggestion.Score,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var details services.PodDetails
	decodeData(t, resp, &details)
	require.Len(t, details.Members, 2)
	require.Equal(t, a.UserID, details.Members[0].UserID)

	rec, resp = env.do(t, http.MethodGet, entryPath, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var entry models.WaitlistEntry
	decodeData(t, resp, &entry)
	require.Equal(t, models.WaitlistStatusMatched, entry.Status)

	rec, resp = env.do(t, http.MethodPost, "/api/match", a.UserID, gin.H{"sprint_type": "gym"})
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, "USER_ALREADY_MATCHED", resp.Error.Code)

	rec, resp = env.do(t, http.MethodGet, "/api/users/"+b.UserID+"/notifications", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var inbox []models.Notification
	decodeData(t, resp, &inbox)
	require.NotEmpty(t, inbox)

	var formed *models.Notification
	for i := range inbox {
		if inbox[i].Kind == string(services.NotificationPodFormed) {
			formed = &inbox[i]
		}
	}
	require.NotNil(t, formed)

	rec, _ = env.do(t, http.MethodPost, "/api/users/"+b.UserID+"/notifications/"+formed.ID+"/read", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, resp = env.do(t, http.MethodGet, "/api/users/"+b.UserID+"/notifications?unread=true", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var unread []models.Notification
	decodeData(t, resp, &unread)
	for _, n := range unread {
		require.NotEqual(t, formed.ID, n.ID)
	}

	rec, resp = env.do(t, http.MethodPost, "/api/users/"+a.UserID+"/notifications/"+formed.ID+"/read", "", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}
