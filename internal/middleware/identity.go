package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/kartheek-penagamuri/stride-sub000/internal/auditctx"
)

const (
	// HeaderUserID carries the caller identity asserted by the upstream gateway.
	HeaderUserID = "X-User-ID"
	// HeaderRequestID correlates access logs with client reports.
	HeaderRequestID = "X-Request-ID"

	CtxUserIDKey    = "userID"
	CtxRequestIDKey = "requestID"
)

// Identity copies the gateway-asserted user id into the gin and request contexts. Authentication
// happens upstream; requests without the header proceed anonymously.
func Identity() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := strings.TrimSpace(c.GetHeader(HeaderUserID))
		if userID != "" {
			c.Set(CtxUserIDKey, userID)
		}
		c.Request = c.Request.WithContext(auditctx.WithActor(c.Request.Context(), auditctx.Actor{
			UserID:    userID,
			RequestID: c.GetString(CtxRequestIDKey),
			IPAddress: c.ClientIP(),
			UserAgent: c.Request.UserAgent(),
		}))
		c.Next()
	}
}

// RequestID assigns every request an id, reusing the caller's when present.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(HeaderRequestID))
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(CtxRequestIDKey, id)
		c.Header(HeaderRequestID, id)
		c.Next()
	}
}
