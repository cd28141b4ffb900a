// Package repository 定义数据访问接口
package repository

import (
	"context"

	"medkb-qa-api/internal/domain/entity"
)

// EntityRepository 医学实体仓储接口
type EntityRepository interface {
	// Create 创建实体
	Create(ctx context.Context, e *entity.MedicalEntity) error
	// BatchCreate 批量创建实体
	BatchCreate(ctx context.Context, entities []*entity.MedicalEntity) error
	// GetByID 根据 ID 获取实体，未找到时返回 nil
	GetByID(ctx context.Context, id string) (*entity.MedicalEntity, error)
	// GetByIDs 根据 ID 列表批量获取实体
	GetByIDs(ctx context.Context, ids []string) ([]*entity.MedicalEntity, error)
	// FindByName 按名称或别名精确查找实体 (大小写不敏感)，未找到时返回 nil
	FindByName(ctx context.Context, name string) (*entity.MedicalEntity, error)
	// SearchByName 按名称或别名模糊搜索实体
	SearchByName(ctx context.Context, keyword string, limit int) ([]*entity.MedicalEntity, error)
}
