// Package postgres 提供 PostgreSQL Repository 实现
package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"medkb-qa-api/internal/domain/entity"
)

// RelationRepository 医学关系仓储实现
type RelationRepository struct {
	client *Client
}

// NewRelationRepository 创建关系仓储
func NewRelationRepository(client *Client) *RelationRepository {
	return &RelationRepository{client: client}
}

// Create 创建关系
func (r *RelationRepository) Create(ctx context.Context, relation *entity.MedicalRelation) error {
	ctx, span := tracer.Start(ctx, "postgres.RelationRepository.Create")
	defer span.End()

	q, err := r.querier(ctx)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO medical_relations (id, source_id, target_id, type, confidence, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		RETURNING created_at
	`
	err = q.QueryRowContext(ctx, query,
		relation.ID, relation.SourceID, relation.TargetID, relation.Type, relation.Confidence,
	).Scan(&relation.CreatedAt)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create relation: %w", err)
	}
	return nil
}

// BatchCreate 批量创建关系
func (r *RelationRepository) BatchCreate(ctx context.Context, relations []*entity.MedicalRelation) error {
	ctx, span := tracer.Start(ctx, "postgres.RelationRepository.BatchCreate")
	defer span.End()

	for _, rel := range relations {
		if err := r.Create(ctx, rel); err != nil {
			span.RecordError(err)
			return err
		}
	}
	return nil
}

// FindByEntityAndTypes 查询与给定实体相连的指定类型关系 (双向)
func (r *RelationRepository) FindByEntityAndTypes(ctx context.Context, entityID string, types []entity.RelationType) ([]*entity.MedicalRelation, error) {
	ctx, span := tracer.Start(ctx, "postgres.RelationRepository.FindByEntityAndTypes")
	defer span.End()

	if len(types) == 0 {
		return r.FindNeighbors(ctx, entityID)
	}

	q, err := r.querier(ctx)
	if err != nil {
		return nil, err
	}

	typeNames := make([]string, 0, len(types))
	for _, t := range types {
		typeNames = append(typeNames, string(t))
	}

	query := `
		SELECT id, source_id, target_id, type, confidence, created_at
		FROM medical_relations
		WHERE (source_id = $1 OR target_id = $1) AND type = ANY($2)
		ORDER BY confidence DESC
	`
	return r.queryRelations(ctx, q, query, entityID, pq.Array(typeNames))
}

// FindNeighbors 查询与给定实体直接相连的所有关系 (双向)
func (r *RelationRepository) FindNeighbors(ctx context.Context, entityID string) ([]*entity.MedicalRelation, error) {
	ctx, span := tracer.Start(ctx, "postgres.RelationRepository.FindNeighbors")
	defer span.End()

	q, err := r.querier(ctx)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT id, source_id, target_id, type, confidence, created_at
		FROM medical_relations
		WHERE source_id = $1 OR target_id = $1
		ORDER BY confidence DESC
	`
	return r.queryRelations(ctx, q, query, entityID)
}

// querier 获取当前上下文对应的查询器
func (r *RelationRepository) querier(ctx context.Context) (Querier, error) {
	sqlDB, err := r.client.SqlDB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	return getQuerier(ctx, sqlDB), nil
}

// queryRelations 通用查询关系
func (r *RelationRepository) queryRelations(ctx context.Context, q Querier, query string, args ...interface{}) ([]*entity.MedicalRelation, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query relations: %w", err)
	}
	defer rows.Close()

	var relations []*entity.MedicalRelation
	for rows.Next() {
		rel, err := scanRelation(rows)
		if err != nil {
			return nil, err
		}
		relations = append(relations, rel)
	}
	return relations, rows.Err()
}

// scanRelation 扫描单行关系数据
func scanRelation(rows *sql.Rows) (*entity.MedicalRelation, error) {
	var rel entity.MedicalRelation
	if err := rows.Scan(
		&rel.ID, &rel.SourceID, &rel.TargetID, &rel.Type, &rel.Confidence, &rel.CreatedAt,
	); err != nil {
		return nil, fmt.Errorf("failed to scan relation row: %w", err)
	}
	return &rel, nil
}
