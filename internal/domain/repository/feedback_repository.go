package repository

import (
	"context"

	"medkb-qa-api/internal/domain/entity"
)

// FeedbackRepository 反馈仓储接口
type FeedbackRepository interface {
	// Create 保存一条反馈
	Create(ctx context.Context, fb *entity.QueryFeedback) error
	// ListByQueryID 按查询 ID 列出反馈
	ListByQueryID(ctx context.Context, queryID string) ([]*entity.QueryFeedback, error)
}
