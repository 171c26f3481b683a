package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/d60-Lab/vibeup/pkg/errtrack"
	"github.com/d60-Lab/vibeup/pkg/logger"
)

// Response 统一响应结构
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{Code: 0, Message: "success", Data: data})
}

func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Response{Code: 0, Message: "created", Data: data})
}

func Error(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, Response{Code: status, Message: message})
}

func BadRequest(c *gin.Context, message string) { Error(c, http.StatusBadRequest, message) }

func Unauthorized(c *gin.Context, message string) { Error(c, http.StatusUnauthorized, message) }

func NotFound(c *gin.Context, message string) { Error(c, http.StatusNotFound, message) }

func Conflict(c *gin.Context, message string) { Error(c, http.StatusConflict, message) }

func TooManyRequests(c *gin.Context, message string) { Error(c, http.StatusTooManyRequests, message) }

// ServiceUnavailable 可重试的后端故障
func ServiceUnavailable(c *gin.Context, err error) {
	logger.Warn("service unavailable", zap.String("path", c.FullPath()), zap.Error(err))
	Error(c, http.StatusServiceUnavailable, "storage temporarily unavailable, please retry")
}

// InternalError 记录日志并上报 Sentry，不向客户端暴露细节
func InternalError(c *gin.Context, err error) {
	logger.Error("internal error", zap.String("path", c.FullPath()), zap.Error(err))
	errtrack.Capture(c.Request.Context(), err)
	Error(c, http.StatusInternalServerError, "internal server error")
}
