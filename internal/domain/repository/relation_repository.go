package repository

import (
	"context"

	"medkb-qa-api/internal/domain/entity"
)

// RelationRepository 医学关系仓储接口
type RelationRepository interface {
	// Create 创建关系
	Create(ctx context.Context, r *entity.MedicalRelation) error
	// BatchCreate 批量创建关系
	BatchCreate(ctx context.Context, relations []*entity.MedicalRelation) error
	// FindByEntityAndTypes 查询与给定实体相连的指定类型关系 (双向)
	// types 为空时等价于 FindNeighbors
	FindByEntityAndTypes(ctx context.Context, entityID string, types []entity.RelationType) ([]*entity.MedicalRelation, error)
	// FindNeighbors 查询与给定实体直接相连的所有关系 (双向)
	FindNeighbors(ctx context.Context, entityID string) ([]*entity.MedicalRelation, error)
}
