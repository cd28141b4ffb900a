// Package handler 提供 HTTP 请求处理器
package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"medkb-qa-api/internal/domain/entity"
	"medkb-qa-api/internal/domain/repository"
	"medkb-qa-api/internal/interfaces/http/dto"
	"medkb-qa-api/pkg/logger"
)

// FeedbackHandler 回答反馈处理器
type FeedbackHandler struct {
	feedbacks repository.FeedbackRepository
}

// NewFeedbackHandler 创建反馈处理器
func NewFeedbackHandler(feedbacks repository.FeedbackRepository) *FeedbackHandler {
	return &FeedbackHandler{feedbacks: feedbacks}
}

// Create 提交一条回答反馈
// @Summary 提交反馈
// @Tags QA
// @Accept json
// @Produce json
// @Param request body dto.FeedbackRequest true "反馈请求"
// @Success 201 {object} dto.Response[dto.FeedbackResponse]
// @Router /v1/qa/feedback [post]
func (h *FeedbackHandler) Create(c *gin.Context) {
	var req dto.FeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	fb := &entity.QueryFeedback{
		ID:      uuid.NewString(),
		QueryID: req.QueryID,
		Query:   req.Query,
		Answer:  req.Answer,
		Helpful: req.Helpful,
		Comment: req.Comment,
	}

	ctx := c.Request.Context()
	if err := h.feedbacks.Create(ctx, fb); err != nil {
		logger.Error(ctx, "failed to create feedback", err, "query_id", req.QueryID)
		dto.InternalError(c, "failed to save feedback")
		return
	}

	dto.Created(c, dto.FeedbackResponse{ID: fb.ID})
}

// ListByQuery 查询某个问题的反馈
// @Summary 查询反馈
// @Tags QA
// @Produce json
// @Param query_id path string true "查询 ID"
// @Success 200 {object} dto.Response[[]dto.FeedbackItem]
// @Router /v1/qa/feedback/{query_id} [get]
func (h *FeedbackHandler) ListByQuery(c *gin.Context) {
	queryID := c.Param("query_id")
	if queryID == "" {
		dto.BadRequest(c, "query_id is required")
		return
	}

	ctx := c.Request.Context()
	feedbacks, err := h.feedbacks.ListByQueryID(ctx, queryID)
	if err != nil {
		logger.Error(ctx, "failed to list feedback", err, "query_id", queryID)
		dto.InternalError(c, "failed to list feedback")
		return
	}

	items := make([]dto.FeedbackItem, 0, len(feedbacks))
	for _, fb := range feedbacks {
		items = append(items, dto.FeedbackItem{
			ID:      fb.ID,
			QueryID: fb.QueryID,
			Helpful: fb.Helpful,
			Comment: fb.Comment,
		})
	}
	dto.Success(c, items)
}
