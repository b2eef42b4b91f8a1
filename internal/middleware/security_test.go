package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/kartheek-penagamuri/stride-sub000/internal/auditctx"
)

func TestAPIHeaders(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(APIHeaders())
	r.GET("/ping", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	require.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	require.Equal(t, "no-referrer", w.Header().Get("Referrer-Policy"))
	require.Equal(t, "no-store", w.Header().Get("Cache-Control"))
}

func TestIdentityAndRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(RequestID(), Identity())
	r.GET("/who", func(c *gin.Context) {
		actor, _ := auditctx.FromContext(c.Request.Context())
		c.JSON(http.StatusOK, gin.H{
			"user":          c.GetString(CtxUserIDKey),
			"request":       c.GetString(CtxRequestIDKey),
			"actor":         actor.UserID,
			"actor_request": actor.RequestID,
		})
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/who", nil)
	req.Header.Set(HeaderUserID, " user-1 ")
	req.Header.Set(HeaderRequestID, "req-42")
	r.ServeHTTP(w, req)
	require.JSONEq(t, `{"user":"user-1","request":"req-42","actor":"user-1","actor_request":"req-42"}`, w.Body.String())
	require.Equal(t, "req-42", w.Header().Get(HeaderRequestID))

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/who", nil))
	require.NotEmpty(t, w.Header().Get(HeaderRequestID))
	require.Contains(t, w.Body.String(), `"user":""`)
}
