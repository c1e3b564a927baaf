package middlewares

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/openmined/vaultsync/internal/server/auth"
	"github.com/openmined/vaultsync/internal/server/handlers/api"
	slogGin "github.com/samber/slog-gin"
)

const (
	bearerPrefix = "Bearer "
	authHeader   = "Authorization"

	// DeviceContextKey holds the device id taken from a validated access token
	DeviceContextKey = "device"
)

// JWTAuth rejects requests without a valid bearer access token and stores
// the token subject under DeviceContextKey.
func JWTAuth(authService *auth.AuthService) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		value := ctx.GetHeader(authHeader)
		if value == "" {
			api.AbortWithError(ctx, http.StatusUnauthorized, api.CodeAuthInvalidCredentials,
				errors.New("authorization header is missing"))
			return
		}

		if !strings.HasPrefix(value, bearerPrefix) {
			api.AbortWithError(ctx, http.StatusUnauthorized, api.CodeAuthInvalidCredentials,
				errors.New("authorization header format must be Bearer {token}"))
			return
		}

		token := strings.TrimSpace(strings.TrimPrefix(value, bearerPrefix))
		claims, err := authService.ValidateAccessToken(ctx, token)
		if err != nil {
			api.AbortWithError(ctx, http.StatusUnauthorized, api.CodeAuthInvalidCredentials, err)
			return
		}

		ctx.Set(DeviceContextKey, claims.Subject)
		slogGin.AddCustomAttributes(ctx, slog.String("device", claims.Subject))
		ctx.Next()
	}
}
