package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/vibeup/internal/service"
	"github.com/d60-Lab/vibeup/pkg/response"
)

type createPostRequest struct {
	Content  string `json:"content" binding:"required,max=2000"`
	ImageURL string `json:"image_url" binding:"omitempty,url,max=512"`
	TrackID  string `json:"track_id" binding:"omitempty,max=36"`
}

// CreatePost 发布动态
// @Summary 发布动态
// @Tags 动态
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body createPostRequest true "动态内容"
// @Success 201 {object} response.Response{data=service.PostView}
// @Failure 400 {object} response.Response
// @Failure 401 {object} response.Response
// @Failure 404 {object} response.Response
// @Failure 503 {object} response.Response
// @Router /api/v1/posts [post]
func (h *Handler) CreatePost(c *gin.Context) {
	s, ok := session(c)
	if !ok {
		return
	}
	var req createPostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	post, err := h.postService.Create(c.Request.Context(), s.UserID, service.CreatePostInput{
		Content:  req.Content,
		ImageURL: req.ImageURL,
		TrackID:  req.TrackID,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	response.Created(c, post)
}

// GetPost 查询动态
// @Summary 查询动态（含分数档位）
// @Tags 动态
// @Produce json
// @Param id path string true "动态ID"
// @Success 200 {object} response.Response{data=service.PostView}
// @Failure 404 {object} response.Response
// @Router /api/v1/posts/{id} [get]
func (h *Handler) GetPost(c *gin.Context) {
	post, err := h.postService.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, post)
}

// ListPosts 按 vibe score 排序的 feed
// @Summary 动态 feed（分数降序，同分按发布先后）
// @Tags 动态
// @Produce json
// @Param page query int false "页码" default(1)
// @Param page_size query int false "每页数量" default(20)
// @Success 200 {object} response.Response{data=service.PostPage}
// @Failure 503 {object} response.Response
// @Router /api/v1/posts [get]
func (h *Handler) ListPosts(c *gin.Context) {
	page, pageSize := pageParams(c)
	res, err := h.postService.Feed(c.Request.Context(), page, pageSize)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, res)
}
