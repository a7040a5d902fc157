package gin

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/talkmeter/server/internal/utils/clock"
	"github.com/talkmeter/server/internal/utils/middleware"
)

// parseAccountID reads the :id path parameter and tags the request with it.
// It writes a 400 response and returns false when the id is not a positive integer.
func parseAccountID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		badRequest(c, "invalid_account_id", "Invalid account ID")
		return 0, false
	}
	c.Set(middleware.AccountIDKey, id)
	return id, true
}

// parseDay reads a YYYY-MM-DD query parameter. An absent parameter yields
// fallback.
func parseDay(c *gin.Context, key string, fallback time.Time) (time.Time, bool) {
	raw := c.Query(key)
	if raw == "" {
		return fallback, true
	}
	day, err := clock.ParseDay(raw)
	if err != nil {
		badRequest(c, "invalid_day", "Day must be formatted as YYYY-MM-DD")
		return time.Time{}, false
	}
	return day, true
}

// parseDuration reads a Go duration query parameter such as "30m".
func parseDuration(c *gin.Context, key string, fallback time.Duration) (time.Duration, bool) {
	raw := c.Query(key)
	if raw == "" {
		return fallback, true
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d < 0 {
		badRequest(c, "invalid_duration", "Duration must look like 30m or 2h")
		return 0, false
	}
	return d, true
}
