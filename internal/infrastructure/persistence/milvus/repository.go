// Package milvus 提供 Milvus 向量数据库访问层实现
package milvus

import (
	"context"
	"fmt"

	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Repository 向量检索仓储
type Repository struct {
	client    *Client
	dimension int
}

// NewRepository 创建向量检索仓储
func NewRepository(client *Client, dimension int) *Repository {
	return &Repository{client: client, dimension: dimension}
}

// SearchParams 检索参数
type SearchParams struct {
	QueryVector []float32
	TopK        int
	EntityType  string
}

// SearchResult 检索结果
type SearchResult struct {
	ID          string
	Score       float32
	TextContent string
	EntityID    string
	EntityType  string
}

// CreateCollection 创建集合
func (r *Repository) CreateCollection(ctx context.Context, schema *entity.Schema) error {
	if r == nil || r.client == nil || r.client.milvus == nil {
		return fmt.Errorf("milvus client not configured")
	}
	ctx, span := tracer.Start(ctx, "milvus.CreateCollection",
		trace.WithAttributes(attribute.String("collection", schema.CollectionName)))
	defer span.End()

	collName := r.client.CollectionName(schema.CollectionName)
	schema.CollectionName = collName

	err := r.client.milvus.CreateCollection(ctx, schema, entity.DefaultShardNumber)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create collection: %w", err)
	}

	return nil
}

// CreateIndex 创建 HNSW 索引
func (r *Repository) CreateIndex(ctx context.Context, collection string) error {
	if r == nil || r.client == nil || r.client.milvus == nil {
		return fmt.Errorf("milvus client not configured")
	}
	ctx, span := tracer.Start(ctx, "milvus.CreateIndex",
		trace.WithAttributes(attribute.String("collection", collection)))
	defer span.End()

	collName := r.client.CollectionName(collection)

	idx, err := entity.NewIndexHNSW(
		entity.COSINE,
		r.client.config.HNSWM,
		r.client.config.HNSWEfConstruction,
	)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create index: %w", err)
	}

	err = r.client.milvus.CreateIndex(ctx, collName, "vector", idx, false)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create index: %w", err)
	}

	return nil
}

// SearchFacts 检索医学知识片段
func (r *Repository) SearchFacts(ctx context.Context, params *SearchParams) ([]*SearchResult, error) {
	if r == nil || r.client == nil || r.client.milvus == nil {
		return nil, fmt.Errorf("milvus client not configured")
	}
	ctx, span := tracer.Start(ctx, "milvus.SearchFacts",
		trace.WithAttributes(attribute.Int("top_k", params.TopK)))
	defer span.End()

	collName := r.client.CollectionName(CollectionMedicalFacts)

	// 类型过滤（可选）
	filter := ""
	if params.EntityType != "" {
		filter = fmt.Sprintf(`entity_type == "%s"`, params.EntityType)
	}

	sp, err := entity.NewIndexHNSWSearchParam(128)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to create search param: %w", err)
	}

	results, err := r.client.milvus.Search(ctx,
		collName,
		nil,
		filter,
		[]string{"id", "text_content", "entity_id", "entity_type"},
		[]entity.Vector{entity.FloatVector(params.QueryVector)},
		"vector",
		entity.COSINE,
		params.TopK,
		sp,
	)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to search: %w", err)
	}

	var searchResults []*SearchResult
	for _, result := range results {
		for i := 0; i < result.ResultCount; i++ {
			sr := &SearchResult{
				Score: result.Scores[i],
			}

			if idCol, ok := result.Fields.GetColumn("id").(*entity.ColumnVarChar); ok {
				sr.ID = idCol.Data()[i]
			}
			if textCol, ok := result.Fields.GetColumn("text_content").(*entity.ColumnVarChar); ok {
				sr.TextContent = textCol.Data()[i]
			}
			if entityCol, ok := result.Fields.GetColumn("entity_id").(*entity.ColumnVarChar); ok {
				sr.EntityID = entityCol.Data()[i]
			}
			if typeCol, ok := result.Fields.GetColumn("entity_type").(*entity.ColumnVarChar); ok {
				sr.EntityType = typeCol.Data()[i]
			}

			searchResults = append(searchResults, sr)
		}
	}

	span.SetAttributes(attribute.Int("result_count", len(searchResults)))
	return searchResults, nil
}

// InsertFacts 插入医学知识片段
func (r *Repository) InsertFacts(ctx context.Context, facts []*MedicalFact) error {
	if r == nil || r.client == nil || r.client.milvus == nil {
		return fmt.Errorf("milvus client not configured")
	}
	ctx, span := tracer.Start(ctx, "milvus.InsertFacts",
		trace.WithAttributes(attribute.Int("count", len(facts))))
	defer span.End()

	if len(facts) == 0 {
		return nil
	}

	collName := r.client.CollectionName(CollectionMedicalFacts)

	ids := make([]string, len(facts))
	vectors := make([][]float32, len(facts))
	entityIDs := make([]string, len(facts))
	entityTypes := make([]string, len(facts))
	textContents := make([]string, len(facts))

	for i, fact := range facts {
		ids[i] = fact.ID
		vectors[i] = fact.Vector
		entityIDs[i] = fact.EntityID
		entityTypes[i] = fact.EntityType
		textContents[i] = fact.TextContent
	}

	idCol := entity.NewColumnVarChar("id", ids)
	vectorCol := entity.NewColumnFloatVector("vector", r.dimension, vectors)
	entityCol := entity.NewColumnVarChar("entity_id", entityIDs)
	typeCol := entity.NewColumnVarChar("entity_type", entityTypes)
	textCol := entity.NewColumnVarChar("text_content", textContents)

	_, err := r.client.milvus.Insert(ctx, collName, "",
		idCol, vectorCol, entityCol, typeCol, textCol)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to insert facts: %w", err)
	}

	return nil
}

// DeleteFactsByEntity 删除指定实体的所有片段
func (r *Repository) DeleteFactsByEntity(ctx context.Context, entityID string) error {
	if r == nil || r.client == nil || r.client.milvus == nil {
		return fmt.Errorf("milvus client not configured")
	}
	ctx, span := tracer.Start(ctx, "milvus.DeleteFactsByEntity",
		trace.WithAttributes(attribute.String("entity_id", entityID)))
	defer span.End()

	collName := r.client.CollectionName(CollectionMedicalFacts)

	filter := fmt.Sprintf(`entity_id == "%s"`, entityID)
	if err := r.client.milvus.Delete(ctx, collName, "", filter); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to delete facts: %w", err)
	}
	return nil
}

// EnsureMedicalFactsCollection 确保 medical_facts 集合与索引可用（不存在则创建）。
// 约束：不会做 drop/rebuild 等破坏性操作。
func (r *Repository) EnsureMedicalFactsCollection(ctx context.Context) error {
	if r == nil || r.client == nil || r.client.milvus == nil {
		return fmt.Errorf("milvus client not configured")
	}

	exists, err := r.client.HasCollection(ctx, CollectionMedicalFacts)
	if err != nil {
		return err
	}
	if !exists {
		if err := r.CreateCollection(ctx, MedicalFactsSchema(r.dimension)); err != nil {
			return err
		}
		// 新建集合时创建索引；若失败，允许后续由运维介入。
		_ = r.CreateIndex(ctx, CollectionMedicalFacts)
	}

	return r.client.LoadCollection(ctx, CollectionMedicalFacts)
}
