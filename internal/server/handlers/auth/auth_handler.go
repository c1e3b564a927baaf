package auth

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/openmined/vaultsync/internal/server/auth"
	"github.com/openmined/vaultsync/internal/server/handlers/api"
)

type AuthHandler struct {
	auth *auth.AuthService
}

func New(auth *auth.AuthService) *AuthHandler {
	return &AuthHandler{
		auth: auth,
	}
}

func (h *AuthHandler) Token(ctx *gin.Context) {
	var req TokenRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		api.AbortWithError(ctx, http.StatusBadRequest, api.CodeInvalidRequest, fmt.Errorf("failed to bind json: %w", err))
		return
	}

	accessToken, err := h.auth.IssueAccessToken(ctx, req.PeerID, req.Auth)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidPeerToken) || errors.Is(err, auth.ErrMissingPeerID) {
			api.AbortWithError(ctx, http.StatusUnauthorized, api.CodeAuthInvalidCredentials, err)
		} else {
			api.AbortWithError(ctx, http.StatusInternalServerError, api.CodeAuthTokenGenerationFailed, err)
		}
		return
	}

	ctx.PureJSON(http.StatusOK, &TokenResponse{
		AccessToken: accessToken,
		ExpiresIn:   h.auth.AccessTokenExpirySeconds(),
	})
}
