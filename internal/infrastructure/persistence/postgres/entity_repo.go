// Package postgres 提供 PostgreSQL Repository 实现
package postgres

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"medkb-qa-api/internal/domain/entity"
)

// EntityRepository 医学实体仓储实现
type EntityRepository struct {
	client *Client
}

// NewEntityRepository 创建实体仓储
func NewEntityRepository(client *Client) *EntityRepository {
	return &EntityRepository{client: client}
}

// Create 创建实体
func (r *EntityRepository) Create(ctx context.Context, ent *entity.MedicalEntity) error {
	ctx, span := tracer.Start(ctx, "postgres.EntityRepository.Create")
	defer span.End()

	if err := r.client.db.WithContext(ctx).Create(ent).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create entity: %w", err)
	}
	return nil
}

// BatchCreate 批量创建实体，冲突的 ID 跳过
func (r *EntityRepository) BatchCreate(ctx context.Context, entities []*entity.MedicalEntity) error {
	ctx, span := tracer.Start(ctx, "postgres.EntityRepository.BatchCreate")
	defer span.End()

	if len(entities) == 0 {
		return nil
	}
	if err := r.client.db.WithContext(ctx).CreateInBatches(entities, 100).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to batch create entities: %w", err)
	}
	return nil
}

// GetByID 根据 ID 获取实体
func (r *EntityRepository) GetByID(ctx context.Context, id string) (*entity.MedicalEntity, error) {
	ctx, span := tracer.Start(ctx, "postgres.EntityRepository.GetByID")
	defer span.End()

	var ent entity.MedicalEntity
	if err := r.client.db.WithContext(ctx).First(&ent, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get entity: %w", err)
	}
	return &ent, nil
}

// GetByIDs 根据 ID 列表批量获取实体
func (r *EntityRepository) GetByIDs(ctx context.Context, ids []string) ([]*entity.MedicalEntity, error) {
	ctx, span := tracer.Start(ctx, "postgres.EntityRepository.GetByIDs")
	defer span.End()

	if len(ids) == 0 {
		return nil, nil
	}
	var entities []*entity.MedicalEntity
	if err := r.client.db.WithContext(ctx).Where("id IN ?", ids).Find(&entities).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get entities by ids: %w", err)
	}
	return entities, nil
}

// FindByName 按名称或别名精确查找实体 (大小写不敏感)
func (r *EntityRepository) FindByName(ctx context.Context, name string) (*entity.MedicalEntity, error) {
	ctx, span := tracer.Start(ctx, "postgres.EntityRepository.FindByName")
	defer span.End()

	lowered := strings.ToLower(name)
	var ent entity.MedicalEntity
	err := r.client.db.WithContext(ctx).
		Where("LOWER(name) = ? OR ? = ANY(SELECT LOWER(unnest(aliases)))", lowered, lowered).
		First(&ent).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to find entity by name: %w", err)
	}
	return &ent, nil
}

// SearchByName 按名称或别名模糊搜索实体
func (r *EntityRepository) SearchByName(ctx context.Context, keyword string, limit int) ([]*entity.MedicalEntity, error) {
	ctx, span := tracer.Start(ctx, "postgres.EntityRepository.SearchByName")
	defer span.End()

	var entities []*entity.MedicalEntity
	searchPattern := "%" + keyword + "%"
	if err := r.client.db.WithContext(ctx).
		Where("name ILIKE ? OR aliases::text ILIKE ?", searchPattern, searchPattern).
		Limit(limit).
		Find(&entities).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to search entities by name: %w", err)
	}
	return entities, nil
}
