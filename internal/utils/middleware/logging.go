package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/talkmeter/server/internal/shared/logger"
)

// Logging writes one line per request. Successful requests to quiet routes
// (health probes, metric scrapes) are not logged.
func Logging(log *logger.Logger, quiet ...string) gin.HandlerFunc {
	skip := make(map[string]struct{}, len(quiet))
	for _, route := range quiet {
		skip[route] = struct{}{}
	}

	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		route := c.FullPath()
		if _, ok := skip[route]; ok && status < http.StatusBadRequest {
			return
		}

		attrs := []slog.Attr{
			slog.Int("status", status),
			slog.String("method", c.Request.Method),
			slog.String("route", route),
			slog.String("path", c.Request.URL.Path),
			logger.Duration("latency", time.Since(start)),
			slog.String("client_ip", c.ClientIP()),
		}
		if q := c.Request.URL.RawQuery; q != "" {
			attrs = append(attrs, slog.String("query", q))
		}
		if id := GetRequestID(c); id != "" {
			attrs = append(attrs, logger.RequestID(id))
		}
		if id, ok := c.Get(AccountIDKey); ok {
			if accountID, ok := id.(int64); ok {
				attrs = append(attrs, logger.AccountID(accountID))
			}
		}
		if id, ok := c.Get(AdminIDKey); ok {
			attrs = append(attrs, slog.Any("admin_id", id))
		}
		if len(c.Errors) > 0 {
			attrs = append(attrs, slog.String("errors", c.Errors.String()))
		}

		level := slog.LevelInfo
		switch {
		case status >= 500:
			level = slog.LevelError
		case status >= http.StatusBadRequest:
			level = slog.LevelWarn
		}
		log.LogAttrs(c.Request.Context(), level, "http request", attrs...)
	}
}
