package middlewares

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/openmined/vaultsync/internal/server/handlers/api"
	"github.com/openmined/vaultsync/internal/server/handlers/ws"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"

	mgin "github.com/ulule/limiter/v3/drivers/middleware/gin"
)

var errRateLimited = errors.New("rate limit exceeded")

// RateLimiter applies formattedRate ("600-M" is 600 requests a minute) per
// peer. Requests without a peer id header are keyed by client IP.
func RateLimiter(formattedRate string) (gin.HandlerFunc, error) {
	rate, err := limiter.NewRateFromFormatted(formattedRate)
	if err != nil {
		return nil, fmt.Errorf("invalid rate %q: %w", formattedRate, err)
	}

	return mgin.NewMiddleware(
		limiter.New(memory.NewStore(), rate),
		mgin.WithKeyGetter(rateLimitKey),
		mgin.WithLimitReachedHandler(func(c *gin.Context) {
			api.AbortWithError(c, http.StatusTooManyRequests, api.CodeRateLimited, errRateLimited)
		}),
		mgin.WithErrorHandler(func(c *gin.Context, err error) {
			api.AbortWithError(c, http.StatusInternalServerError, api.CodeInternalError, err)
		}),
	), nil
}

func rateLimitKey(c *gin.Context) string {
	if peer := c.GetHeader(ws.HeaderPeerID); peer != "" {
		return "peer:" + peer
	}
	return "ip:" + c.ClientIP()
}
