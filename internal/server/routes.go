package server

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/openmined/vaultsync/internal/server/handlers/api"
	"github.com/openmined/vaultsync/internal/server/handlers/auth"
	"github.com/openmined/vaultsync/internal/server/handlers/devices"
	"github.com/openmined/vaultsync/internal/server/handlers/history"
	"github.com/openmined/vaultsync/internal/server/handlers/status"
	"github.com/openmined/vaultsync/internal/server/handlers/ws"
	"github.com/openmined/vaultsync/internal/server/middlewares"
	"github.com/openmined/vaultsync/internal/version"
)

func SetupRoutes(config *Config, svc *Services, hub *ws.WebsocketHub) (http.Handler, error) {
	r := gin.New()

	authH := auth.New(svc.Auth)
	historyH := history.New(svc.Engine.History())
	var changes devices.ChangeReader
	if svc.AccessLog != nil {
		changes = svc.AccessLog
	}
	devicesH := devices.New(svc.Devices, changes)
	statusH := status.New(config.DataDir, hub)

	r.Use(middlewares.Logger(slog.Default()))
	r.Use(gin.Recovery())
	r.Use(middlewares.CORS())
	r.Use(middlewares.SecureHeaders(config.HTTP.CertFile != ""))

	if config.HTTP.RateLimit != "" {
		limit, err := middlewares.RateLimiter(config.HTTP.RateLimit)
		if err != nil {
			return nil, err
		}
		r.Use(limit)
	}

	r.GET("/", IndexHandler)
	r.GET("/healthz", HealthHandler)

	r.POST("/auth/token", authH.Token)

	// peers authenticate with their peer token at upgrade time
	r.GET("/api/v1/events", hub.WebsocketHandler)

	v1 := r.Group("/api/v1")
	v1.Use(middlewares.JWTAuth(svc.Auth))
	v1.Use(middlewares.GZIP())
	{
		v1.GET("/history/files", historyH.Files)
		v1.GET("/history/versions", historyH.Versions)
		v1.GET("/history/content", historyH.Content)

		v1.GET("/devices", devicesH.List)
		v1.GET("/devices/:id/changes", devicesH.Changes)

		v1.GET("/status", statusH.Status)
	}

	r.NoRoute(func(c *gin.Context) {
		api.AbortWithError(c, http.StatusNotFound, api.CodeNotFound, errors.New("not found"))
	})

	r.NoMethod(func(c *gin.Context) {
		api.AbortWithError(c, http.StatusMethodNotAllowed, api.CodeInvalidRequest, errors.New("method not allowed"))
	})

	return r.Handler(), nil
}

func IndexHandler(ctx *gin.Context) {
	ctx.PureJSON(http.StatusOK, version.Get())
}

func HealthHandler(ctx *gin.Context) {
	ctx.PureJSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}

func init() {
	gin.SetMode(gin.ReleaseMode)
}
