package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/d60-Lab/vibeup/pkg/response"
)

type HealthHandler struct {
	db  *gorm.DB
	rdb redis.UniversalClient
}

// NewHealthHandler rdb 可为 nil
func NewHealthHandler(db *gorm.DB, rdb redis.UniversalClient) *HealthHandler {
	return &HealthHandler{db: db, rdb: rdb}
}

// Healthz 存活与依赖检查
// @Summary 健康检查
// @Tags 系统
// @Produce json
// @Success 200 {object} response.Response
// @Failure 503 {object} response.Response
// @Router /healthz [get]
func (h *HealthHandler) Healthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	checks := gin.H{"database": "ok"}
	healthy := true
	if sqlDB, err := h.db.DB(); err != nil || sqlDB.PingContext(ctx) != nil {
		checks["database"] = "down"
		healthy = false
	}
	if h.rdb != nil {
		// Redis 只影响排行榜，降级不算不健康
		checks["redis"] = "ok"
		if err := h.rdb.Ping(ctx).Err(); err != nil {
			checks["redis"] = "degraded"
		}
	}
	if !healthy {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, response.Response{Code: http.StatusServiceUnavailable, Message: "unhealthy", Data: checks})
		return
	}
	response.Success(c, checks)
}
