package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/d60-Lab/vibeup/internal/metrics"
	"github.com/d60-Lab/vibeup/pkg/logger"
)

// Logger 结构化访问日志 + HTTP 指标
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.HTTPRequestsTotal.WithLabelValues(route, c.Request.Method, strconv.Itoa(status)).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(route, c.Request.Method).Observe(latency.Seconds())

		fields := []zap.Field{
			zap.Int("status", status),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.String("route", route),
			zap.Duration("latency", latency),
			zap.String("client_ip", c.ClientIP()),
		}
		if s, ok := SessionFrom(c); ok {
			fields = append(fields, zap.String("user_id", s.UserID))
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}
		switch {
		case status >= 500:
			logger.Error("request", fields...)
		case status >= 400:
			logger.Warn("request", fields...)
		default:
			logger.Info("request", fields...)
		}
	}
}
