package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/vibeup/internal/service"
	"github.com/d60-Lab/vibeup/pkg/response"
)

type createTrackRequest struct {
	Title         string  `json:"title" binding:"required,max=200"`
	Description   string  `json:"description" binding:"max=5000"`
	AudioURL      string  `json:"audio_url" binding:"required,url,max=512"`
	CoverImageURL string  `json:"cover_image_url" binding:"omitempty,url,max=512"`
	Price         float64 `json:"price" binding:"gte=0"`
	Currency      string  `json:"currency" binding:"omitempty,currency"`
}

// CreateTrack 上架曲目
// @Summary 上架曲目（价格仅展示）
// @Tags 曲目
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body createTrackRequest true "曲目信息"
// @Success 201 {object} response.Response{data=service.TrackView}
// @Failure 400 {object} response.Response
// @Failure 401 {object} response.Response
// @Failure 503 {object} response.Response
// @Router /api/v1/tracks [post]
func (h *Handler) CreateTrack(c *gin.Context) {
	s, ok := session(c)
	if !ok {
		return
	}
	var req createTrackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	track, err := h.trackService.Create(c.Request.Context(), s.UserID, service.CreateTrackInput{
		Title:         req.Title,
		Description:   req.Description,
		AudioURL:      req.AudioURL,
		CoverImageURL: req.CoverImageURL,
		Price:         req.Price,
		Currency:      req.Currency,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	response.Created(c, track)
}

// GetTrack 查询曲目
// @Summary 查询曲目（含分数档位）
// @Tags 曲目
// @Produce json
// @Param id path string true "曲目ID"
// @Success 200 {object} response.Response{data=service.TrackView}
// @Failure 404 {object} response.Response
// @Router /api/v1/tracks/{id} [get]
func (h *Handler) GetTrack(c *gin.Context) {
	track, err := h.trackService.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, track)
}

// ListTracks 市场排行
// @Summary 曲目市场（分数降序，同分按上架先后）
// @Tags 曲目
// @Produce json
// @Param page query int false "页码" default(1)
// @Param page_size query int false "每页数量" default(20)
// @Success 200 {object} response.Response{data=service.TrackPage}
// @Failure 503 {object} response.Response
// @Router /api/v1/tracks [get]
func (h *Handler) ListTracks(c *gin.Context) {
	page, pageSize := pageParams(c)
	res, err := h.trackService.Marketplace(c.Request.Context(), page, pageSize)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, res)
}
