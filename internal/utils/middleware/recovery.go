package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	sharederrors "github.com/talkmeter/server/internal/shared/errors"
	"github.com/talkmeter/server/internal/shared/logger"
)

// Recovery turns a handler panic into a 500 with the standard error body. A
// nil log falls back to the default JSON logger.
func Recovery(log *logger.Logger) gin.HandlerFunc {
	if log == nil {
		log = logger.New(nil)
	}
	body := sharederrors.Internal("internal server error", nil).ToResponse()

	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			log.Error("panic recovered",
				logger.Err(fmt.Errorf("panic: %v", rec)),
				"method", c.Request.Method,
				"route", c.FullPath(),
				logger.RequestID(GetRequestID(c)),
				"stack", string(debug.Stack()),
			)
			c.AbortWithStatusJSON(http.StatusInternalServerError, body)
		}()
		c.Next()
	}
}
