package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/openmined/vaultsync/internal/server/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup() (*gin.Engine, *auth.AuthService) {
	gin.SetMode(gin.TestMode)
	svc := auth.NewAuthService(&auth.Config{
		Password:          "pw",
		TokenIssuer:       "vaultsync",
		AccessTokenExpiry: time.Hour,
	})
	r := gin.New()
	r.POST("/auth/token", New(svc).Token)
	return r, svc
}

func post(r *gin.Engine, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/auth/token", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestTokenIssued(t *testing.T) {
	r, svc := setup()

	w := post(r, `{"peerId":"tablet","auth":"`+auth.PeerToken("tablet", "pw")+`"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var resp TokenResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, int64(3600), resp.ExpiresIn)

	claims, err := svc.ValidateAccessToken(context.Background(), resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "tablet", claims.Subject)
}

func TestTokenRejected(t *testing.T) {
	r, _ := setup()

	w := post(r, `{"peerId":"tablet","auth":"nope"}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "E_AUTH_INVALID_CREDENTIALS")

	w = post(r, `{"peerId":"tablet"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "E_INVALID_REQUEST")
}
