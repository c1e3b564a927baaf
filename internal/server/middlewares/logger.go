package middlewares

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	slogGin "github.com/samber/slog-gin"
)

// Logger writes one access line per request under the "http" group.
// Health probes are not logged. Headers stay out of the log since peer
// tokens travel in them.
func Logger(logger *slog.Logger) gin.HandlerFunc {
	return slogGin.NewWithConfig(logger.WithGroup("http"), slogGin.Config{
		DefaultLevel:     slog.LevelInfo,
		ClientErrorLevel: slog.LevelWarn,
		ServerErrorLevel: slog.LevelError,
		WithRequestID:    true,
		Filters: []slogGin.Filter{
			slogGin.IgnorePath("/healthz"),
		},
	})
}
