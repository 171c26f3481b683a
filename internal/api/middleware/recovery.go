package middleware

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/d60-Lab/vibeup/pkg/errtrack"
	"github.com/d60-Lab/vibeup/pkg/logger"
	"github.com/d60-Lab/vibeup/pkg/response"
)

// Recovery panic 转 500 并上报 Sentry
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if v := recover(); v != nil {
				logger.Error("panic recovered",
					zap.String("path", c.Request.URL.Path),
					zap.String("panic", fmt.Sprint(v)),
					zap.Stack("stack"))
				errtrack.Recover(c.Request.Context(), v)
				response.Error(c, http.StatusInternalServerError, "internal server error")
			}
		}()
		c.Next()
	}
}
