package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/vibeup/internal/vibe"
	"github.com/d60-Lab/vibeup/pkg/response"
)

type reactRequest struct {
	Polarity string `json:"polarity" binding:"required,polarity"`
	Label    string `json:"label" binding:"omitempty,max=16"`
}

// ReactToPost 对动态做出反应
// @Summary 对动态做出反应（每人一次）
// @Tags 反应
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "动态ID"
// @Param request body reactRequest true "极性与标签"
// @Success 200 {object} response.Response{data=service.ReactionResult}
// @Failure 400 {object} response.Response
// @Failure 401 {object} response.Response
// @Failure 404 {object} response.Response
// @Failure 409 {object} response.Response
// @Failure 429 {object} response.Response
// @Failure 503 {object} response.Response
// @Router /api/v1/posts/{id}/reactions [post]
func (h *Handler) ReactToPost(c *gin.Context) { h.react(c, vibe.KindPost) }

// ReactToTrack 对曲目做出反应
// @Summary 对曲目做出反应（每人一次）
// @Tags 反应
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "曲目ID"
// @Param request body reactRequest true "极性与标签"
// @Success 200 {object} response.Response{data=service.ReactionResult}
// @Failure 400 {object} response.Response
// @Failure 401 {object} response.Response
// @Failure 404 {object} response.Response
// @Failure 409 {object} response.Response
// @Failure 429 {object} response.Response
// @Failure 503 {object} response.Response
// @Router /api/v1/tracks/{id}/reactions [post]
func (h *Handler) ReactToTrack(c *gin.Context) { h.react(c, vibe.KindTrack) }

// PostReactions 动态的反应分布
// @Summary 动态的反应分布
// @Tags 反应
// @Produce json
// @Param id path string true "动态ID"
// @Success 200 {object} response.Response{data=service.ReactionBreakdown}
// @Failure 404 {object} response.Response
// @Router /api/v1/posts/{id}/reactions [get]
func (h *Handler) PostReactions(c *gin.Context) { h.breakdown(c, vibe.KindPost) }

// TrackReactions 曲目的反应分布
// @Summary 曲目的反应分布
// @Tags 反应
// @Produce json
// @Param id path string true "曲目ID"
// @Success 200 {object} response.Response{data=service.ReactionBreakdown}
// @Failure 404 {object} response.Response
// @Router /api/v1/tracks/{id}/reactions [get]
func (h *Handler) TrackReactions(c *gin.Context) { h.breakdown(c, vibe.KindTrack) }

func (h *Handler) react(c *gin.Context, kind vibe.Kind) {
	s, ok := session(c)
	if !ok {
		return
	}
	var req reactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	ref := vibe.EntityRef{Kind: kind, ID: c.Param("id")}
	res, err := h.reactionService.React(c.Request.Context(), s.UserID, ref, vibe.Polarity(req.Polarity), req.Label)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, res)
}

func (h *Handler) breakdown(c *gin.Context, kind vibe.Kind) {
	res, err := h.reactionService.Breakdown(c.Request.Context(), vibe.EntityRef{Kind: kind, ID: c.Param("id")})
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, res)
}
