// Package postgres 提供 PostgreSQL Repository 实现
package postgres

import (
	"context"
	"fmt"

	"medkb-qa-api/internal/domain/entity"
)

// FeedbackRepository 反馈仓储实现
type FeedbackRepository struct {
	client *Client
}

// NewFeedbackRepository 创建反馈仓储
func NewFeedbackRepository(client *Client) *FeedbackRepository {
	return &FeedbackRepository{client: client}
}

// Create 保存一条反馈
func (r *FeedbackRepository) Create(ctx context.Context, fb *entity.QueryFeedback) error {
	ctx, span := tracer.Start(ctx, "postgres.FeedbackRepository.Create")
	defer span.End()

	if err := r.client.db.WithContext(ctx).Create(fb).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create feedback: %w", err)
	}
	return nil
}

// ListByQueryID 按查询 ID 列出反馈
func (r *FeedbackRepository) ListByQueryID(ctx context.Context, queryID string) ([]*entity.QueryFeedback, error) {
	ctx, span := tracer.Start(ctx, "postgres.FeedbackRepository.ListByQueryID")
	defer span.End()

	var feedbacks []*entity.QueryFeedback
	if err := r.client.db.WithContext(ctx).
		Where("query_id = ?", queryID).
		Order("created_at DESC").
		Find(&feedbacks).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list feedback: %w", err)
	}
	return feedbacks, nil
}
