package handler

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/vibeup/internal/api/middleware"
	"github.com/d60-Lab/vibeup/internal/service"
	"github.com/d60-Lab/vibeup/internal/vibe"
	"github.com/d60-Lab/vibeup/pkg/response"
)

const msgDuplicateReaction = "you already reacted"

type Handler struct {
	postService     service.PostService
	trackService    service.TrackService
	reactionService service.ReactionService
}

func New(posts service.PostService, tracks service.TrackService, reactions service.ReactionService) *Handler {
	return &Handler{postService: posts, trackService: tracks, reactionService: reactions}
}

// writeError 领域错误 -> HTTP 状态码
func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, vibe.ErrInvalidInput):
		response.BadRequest(c, err.Error())
	case errors.Is(err, vibe.ErrEntityNotFound):
		response.NotFound(c, err.Error())
	case errors.Is(err, vibe.ErrDuplicateReaction):
		response.Conflict(c, msgDuplicateReaction)
	case errors.Is(err, vibe.ErrStorageUnavailable):
		response.ServiceUnavailable(c, err)
	default:
		response.InternalError(c, err)
	}
}

func session(c *gin.Context) (middleware.Session, bool) {
	s, ok := middleware.SessionFrom(c)
	if !ok {
		response.Unauthorized(c, "authentication required")
	}
	return s, ok
}

func pageParams(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	return page, pageSize
}
