package middlewares

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/openmined/vaultsync/internal/server/handlers/ws"
	"github.com/openmined/vaultsync/internal/wsproto"
)

func CORS() gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{
			"Origin", "Content-Type", "Authorization",
			ws.HeaderPeerID, ws.HeaderPeerAuth, wsproto.HeaderEncoding,
		},
		ExposeHeaders:   []string{ws.HeaderServerID, ws.HeaderServerAuth},
		AllowWebSockets: true,
	})
}
