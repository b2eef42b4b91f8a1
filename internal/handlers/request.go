package handlers

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/kartheek-penagamuri/stride-sub000/internal/middleware"
	apperrors "github.com/kartheek-penagamuri/stride-sub000/pkg/errors"
	"github.com/kartheek-penagamuri/stride-sub000/pkg/response"
)

// requestContext returns the request context, which carries the audit actor set by
// middleware.Identity. Falls back to Background for handlers invoked without a request.
func requestContext(c *gin.Context) context.Context {
	if c == nil || c.Request == nil {
		return context.Background()
	}
	return c.Request.Context()
}

// callerID prefers an explicit id from the payload and falls back to the gateway identity.
func callerID(c *gin.Context, explicit string) string {
	if explicit = strings.TrimSpace(explicit); explicit != "" {
		return explicit
	}
	return c.GetString(middleware.CtxUserIDKey)
}

func requireCaller(c *gin.Context, explicit string) (string, bool) {
	userID := callerID(c, explicit)
	if userID == "" {
		response.Error(c, apperrors.NewBadRequest("user_id is required"))
		return "", false
	}
	return userID, true
}
