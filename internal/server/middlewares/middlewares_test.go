package middlewares

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/openmined/vaultsync/internal/server/auth"
	"github.com/openmined/vaultsync/internal/server/handlers/ws"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newAuthService() *auth.AuthService {
	return auth.NewAuthService(&auth.Config{
		Password:          "pw",
		TokenIssuer:       "vaultsync",
		AccessTokenExpiry: time.Hour,
	})
}

func TestJWTAuth(t *testing.T) {
	svc := newAuthService()
	r := gin.New()
	r.GET("/x", JWTAuth(svc), func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString(DeviceContextKey))
	})

	do := func(header string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/x", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	assert.Equal(t, http.StatusUnauthorized, do("").Code)
	assert.Equal(t, http.StatusUnauthorized, do("Token abc").Code)
	assert.Equal(t, http.StatusUnauthorized, do("Bearer garbage").Code)

	token, err := svc.IssueAccessToken(context.Background(), "phone", auth.PeerToken("phone", "pw"))
	require.NoError(t, err)
	w := do("Bearer " + token)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "phone", w.Body.String())
}

func TestRateLimiter(t *testing.T) {
	_, err := RateLimiter("lots")
	assert.Error(t, err)

	mw, err := RateLimiter("2-M")
	require.NoError(t, err)

	r := gin.New()
	r.GET("/x", mw, func(c *gin.Context) { c.Status(http.StatusOK) })

	codes := make([]int, 0, 3)
	for range 3 {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
		codes = append(codes, w.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)

	// peers get their own bucket
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(ws.HeaderPeerID, "laptop")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestLoggerSkipsHealth(t *testing.T) {
	var buf bytes.Buffer
	r := gin.New()
	r.Use(Logger(slog.New(slog.NewJSONHandler(&buf, nil))))
	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/api/v1/devices", func(c *gin.Context) { c.Status(http.StatusOK) })

	for _, path := range []string{"/healthz", "/api/v1/devices"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	out := buf.String()
	assert.Contains(t, out, "/api/v1/devices")
	assert.NotContains(t, out, "/healthz")
	assert.Contains(t, out, `"http"`)
}

func TestSecureHeaders(t *testing.T) {
	r := gin.New()
	r.Use(SecureHeaders(false))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Empty(t, w.Header().Get("Strict-Transport-Security"))
}
