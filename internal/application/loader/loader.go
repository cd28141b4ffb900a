// Package loader 提供医学知识库装载服务
// 从种子文件导入实体与关系到 PostgreSQL，并把文本片段向量化后写入 Milvus
package loader

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"medkb-qa-api/internal/domain/entity"
	"medkb-qa-api/internal/domain/repository"
	"medkb-qa-api/internal/infrastructure/persistence/milvus"
	"medkb-qa-api/pkg/logger"
)

var tracer = otel.Tracer("loader")

// SeedEntity 种子文件中的实体条目
type SeedEntity struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Type        string   `json:"type"`
	Description string   `json:"description"`
	Aliases     []string `json:"aliases"`
}

// SeedRelation 种子文件中的关系条目，source/target 按实体名引用
type SeedRelation struct {
	Source     string  `json:"source"`
	Target     string  `json:"target"`
	Type       string  `json:"type"`
	Confidence float64 `json:"confidence"`
}

// SeedFile 知识库种子文件结构
type SeedFile struct {
	Entities  []SeedEntity   `json:"entities"`
	Relations []SeedRelation `json:"relations"`
}

// TxRunner 事务执行器
type TxRunner interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// FactEmbedder 文本批量向量化
type FactEmbedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// FactIndex 医学知识片段的向量索引
type FactIndex interface {
	EnsureMedicalFactsCollection(ctx context.Context) error
	DeleteFactsByEntity(ctx context.Context, entityID string) error
	InsertFacts(ctx context.Context, facts []*milvus.MedicalFact) error
}

// AnswerCache 问答缓存，重建知识库后清空旧回答
type AnswerCache interface {
	InvalidateAnswers(ctx context.Context) error
}

// Loader 知识库装载器
type Loader struct {
	entities  repository.EntityRepository
	relations repository.RelationRepository
	txManager TxRunner
	embedder  FactEmbedder
	vectors   FactIndex
	cache     AnswerCache
}

// NewLoader 创建知识库装载器，cache 为 nil 时跳过缓存失效
func NewLoader(
	entities repository.EntityRepository,
	relations repository.RelationRepository,
	txManager TxRunner,
	embedder FactEmbedder,
	vectors FactIndex,
	cache AnswerCache,
) *Loader {
	return &Loader{
		entities:  entities,
		relations: relations,
		txManager: txManager,
		embedder:  embedder,
		vectors:   vectors,
		cache:     cache,
	}
}

// LoadFile 读取并导入种子文件
func (l *Loader) LoadFile(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read seed file: %w", err)
	}

	var seed SeedFile
	if err := json.Unmarshal(data, &seed); err != nil {
		return fmt.Errorf("failed to parse seed file: %w", err)
	}

	return l.Load(ctx, &seed)
}

// Load 导入种子数据
// 实体与关系在同一事务内写入，向量写入在事务提交后进行
func (l *Loader) Load(ctx context.Context, seed *SeedFile) error {
	ctx, span := tracer.Start(ctx, "loader.Load",
		trace.WithAttributes(
			attribute.Int("seed.entities", len(seed.Entities)),
			attribute.Int("seed.relations", len(seed.Relations)),
		))
	defer span.End()

	entities, byName, err := buildEntities(seed.Entities)
	if err != nil {
		span.RecordError(err)
		return err
	}

	relations, err := buildRelations(seed.Relations, byName)
	if err != nil {
		span.RecordError(err)
		return err
	}

	err = l.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := l.entities.BatchCreate(txCtx, entities); err != nil {
			return err
		}
		return l.relations.BatchCreate(txCtx, relations)
	})
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to persist seed data: %w", err)
	}

	if err := l.indexFacts(ctx, entities, relations, byName); err != nil {
		span.RecordError(err)
		return err
	}

	// 导入成功后清空问答缓存，否则旧回答会一直活到 TTL 到期
	if l.cache != nil {
		if err := l.cache.InvalidateAnswers(ctx); err != nil {
			logger.Warn(ctx, "failed to invalidate answer cache", "error", err)
		}
	}

	logger.Info(ctx, "knowledge base loaded",
		"entities", len(entities), "relations", len(relations))
	return nil
}

// indexFacts 把实体文本片段向量化后写入向量库
func (l *Loader) indexFacts(ctx context.Context, entities []*entity.MedicalEntity, relations []*entity.MedicalRelation, byName map[string]*entity.MedicalEntity) error {
	ctx, span := tracer.Start(ctx, "loader.indexFacts")
	defer span.End()

	if err := l.vectors.EnsureMedicalFactsCollection(ctx); err != nil {
		return fmt.Errorf("failed to ensure collection: %w", err)
	}

	byID := make(map[string]*entity.MedicalEntity, len(entities))
	for _, e := range entities {
		byID[e.ID] = e
	}

	texts := make([]string, 0, len(entities))
	facts := make([]*milvus.MedicalFact, 0, len(entities))
	for _, e := range entities {
		text := factText(e, relations, byID)
		if text == "" {
			continue
		}
		texts = append(texts, text)
		facts = append(facts, &milvus.MedicalFact{
			ID:          e.ID,
			EntityID:    e.ID,
			EntityType:  string(e.Type),
			TextContent: text,
		})
	}
	if len(facts) == 0 {
		return nil
	}

	vectors, err := l.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("failed to embed facts: %w", err)
	}
	if len(vectors) != len(facts) {
		return fmt.Errorf("embedding count mismatch: got %d, want %d", len(vectors), len(facts))
	}
	for i := range facts {
		facts[i].Vector = vectors[i]
	}

	// 重导入时先清掉实体的旧片段，避免残留过期向量
	for _, f := range facts {
		if err := l.vectors.DeleteFactsByEntity(ctx, f.EntityID); err != nil {
			return fmt.Errorf("failed to delete stale facts for %s: %w", f.EntityID, err)
		}
	}

	return l.vectors.InsertFacts(ctx, facts)
}

// buildEntities 校验并转换种子实体，缺失 ID 自动生成
func buildEntities(seeds []SeedEntity) ([]*entity.MedicalEntity, map[string]*entity.MedicalEntity, error) {
	entities := make([]*entity.MedicalEntity, 0, len(seeds))
	byName := make(map[string]*entity.MedicalEntity, len(seeds))

	for i, s := range seeds {
		name := strings.TrimSpace(s.Name)
		if name == "" {
			return nil, nil, fmt.Errorf("entity #%d has no name", i)
		}
		id := s.ID
		if id == "" {
			id = uuid.NewString()
		}

		e := &entity.MedicalEntity{
			ID:          id,
			Name:        name,
			Type:        entity.EntityType(s.Type),
			Description: s.Description,
			Aliases:     pq.StringArray(s.Aliases),
		}
		entities = append(entities, e)
		byName[strings.ToLower(name)] = e
		for _, alias := range s.Aliases {
			byName[strings.ToLower(strings.TrimSpace(alias))] = e
		}
	}
	return entities, byName, nil
}

// buildRelations 按名称解析关系端点
func buildRelations(seeds []SeedRelation, byName map[string]*entity.MedicalEntity) ([]*entity.MedicalRelation, error) {
	relations := make([]*entity.MedicalRelation, 0, len(seeds))
	for i, s := range seeds {
		src, ok := byName[strings.ToLower(strings.TrimSpace(s.Source))]
		if !ok {
			return nil, fmt.Errorf("relation #%d references unknown source %q", i, s.Source)
		}
		tgt, ok := byName[strings.ToLower(strings.TrimSpace(s.Target))]
		if !ok {
			return nil, fmt.Errorf("relation #%d references unknown target %q", i, s.Target)
		}

		confidence := s.Confidence
		if confidence <= 0 {
			confidence = 1.0
		}
		relations = append(relations, &entity.MedicalRelation{
			ID:         uuid.NewString(),
			SourceID:   src.ID,
			TargetID:   tgt.ID,
			Type:       entity.RelationType(s.Type),
			Confidence: confidence,
		})
	}
	return relations, nil
}

// factText 组装实体的可检索文本片段
func factText(e *entity.MedicalEntity, relations []*entity.MedicalRelation, byID map[string]*entity.MedicalEntity) string {
	var b strings.Builder
	b.WriteString(e.Name)
	if e.Description != "" {
		b.WriteString(": ")
		b.WriteString(e.Description)
	}

	for _, rel := range relations {
		if rel.SourceID != e.ID && rel.TargetID != e.ID {
			continue
		}
		src, tgt := byID[rel.SourceID], byID[rel.TargetID]
		if src == nil || tgt == nil {
			continue
		}
		b.WriteString("\n")
		b.WriteString(relationSentence(src.Name, tgt.Name, rel.Type))
	}

	text := strings.TrimSpace(b.String())
	if text == e.Name {
		return ""
	}
	return text
}

// relationSentence 单条关系的自然语言句子
func relationSentence(srcName, tgtName string, t entity.RelationType) string {
	switch t {
	case entity.RelationTreats:
		return fmt.Sprintf("%s treats %s", srcName, tgtName)
	case entity.RelationHasSymptom:
		return fmt.Sprintf("%s is a symptom of %s", tgtName, srcName)
	case entity.RelationCauses:
		return fmt.Sprintf("%s can cause %s", srcName, tgtName)
	case entity.RelationPrevents:
		return fmt.Sprintf("%s helps prevent %s", srcName, tgtName)
	case entity.RelationDiagnosedBy:
		return fmt.Sprintf("%s is diagnosed by %s", srcName, tgtName)
	default:
		return fmt.Sprintf("%s is related to %s", srcName, tgtName)
	}
}
