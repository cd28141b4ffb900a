// Package handler 提供 HTTP 请求处理器
package handler

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"medkb-qa-api/internal/application/pipeline"
	"medkb-qa-api/internal/infrastructure/persistence/redis"
	"medkb-qa-api/internal/interfaces/http/dto"
	"medkb-qa-api/pkg/logger"
)

// QueryProcessor 问答管道入口
type QueryProcessor interface {
	Process(ctx context.Context, query string) *pipeline.FinalResponse
}

// AnswerCache 回答缓存
type AnswerCache interface {
	GetOrLoadSafe(ctx context.Context, key string, ttl time.Duration, loader func() (interface{}, error)) ([]byte, bool, error)
}

// QAHandler 问答处理器
type QAHandler struct {
	processor QueryProcessor
	cache     AnswerCache
	answerTTL time.Duration
}

// NewQAHandler 创建问答处理器，cache 为 nil 时关闭缓存
func NewQAHandler(processor QueryProcessor, cache AnswerCache, answerTTL time.Duration) *QAHandler {
	if answerTTL <= 0 {
		answerTTL = 10 * time.Minute
	}
	return &QAHandler{
		processor: processor,
		cache:     cache,
		answerTTL: answerTTL,
	}
}

// Ask 提交一个医学问题
// @Summary 医学知识问答
// @Description 对医学问题进行解析、检索并生成回答
// @Tags QA
// @Accept json
// @Produce json
// @Param request body dto.AskRequest true "问答请求"
// @Success 200 {object} dto.Response[dto.AskResponse]
// @Router /v1/qa/ask [post]
func (h *QAHandler) Ask(c *gin.Context) {
	var req dto.AskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	query := strings.TrimSpace(req.Query)
	if query == "" {
		dto.BadRequest(c, "query must not be empty")
		return
	}

	ctx := c.Request.Context()

	if h.cache == nil {
		result := h.processor.Process(ctx, query)
		dto.Success(c, toAskResponse(result, false))
		return
	}

	key := redis.AnswerKey(query)
	payload, hit, err := h.cache.GetOrLoadSafe(ctx, key, h.answerTTL, func() (interface{}, error) {
		return h.processor.Process(ctx, query), nil
	})
	if err != nil {
		logger.Error(ctx, "failed to answer query", err, "query", query)
		dto.InternalError(c, "failed to process query")
		return
	}

	var result pipeline.FinalResponse
	if err := json.Unmarshal(payload, &result); err != nil {
		logger.Error(ctx, "failed to decode cached answer", err, "key", key)
		dto.InternalError(c, "failed to process query")
		return
	}

	dto.Success(c, toAskResponse(&result, hit))
}

// toAskResponse 转换管道响应为 HTTP 响应
func toAskResponse(result *pipeline.FinalResponse, cached bool) dto.AskResponse {
	resp := dto.AskResponse{
		Response: result.Response,
		Sources:  result.Sources,
		Status:   result.Status,
		Metadata: result.Metadata,
	}
	if resp.Sources == nil {
		resp.Sources = []string{}
	}
	if cached {
		if resp.Metadata == nil {
			resp.Metadata = map[string]any{}
		}
		resp.Metadata["cached"] = true
	}
	return resp
}
