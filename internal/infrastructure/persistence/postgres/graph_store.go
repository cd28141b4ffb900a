// Package postgres 提供 PostgreSQL 数据库访问层实现
package postgres

import (
	"context"
	"fmt"
	"strings"

	"medkb-qa-api/internal/application/pipeline"
	"medkb-qa-api/internal/domain/entity"
	"medkb-qa-api/internal/domain/repository"
	"medkb-qa-api/pkg/logger"
)

// 实体名模糊搜索的单实体上限
const fuzzyMatchLimit = 3

// relationTypesByIntent 意图到关系类型的映射，未知意图走任意关系
var relationTypesByIntent = map[pipeline.Intent][]entity.RelationType{
	pipeline.IntentTreatment:  {entity.RelationTreats},
	pipeline.IntentSymptoms:   {entity.RelationHasSymptom},
	pipeline.IntentDiagnosis:  {entity.RelationCauses, entity.RelationDiagnosedBy},
	pipeline.IntentPrevention: {entity.RelationPrevents},
}

// GraphStore 基于关系表的图谱存储实现
// 实体表为节点，关系表为边，实体名走模糊匹配
type GraphStore struct {
	client    *Client
	entities  repository.EntityRepository
	relations repository.RelationRepository
}

// NewGraphStore 创建图谱存储
func NewGraphStore(client *Client, entities repository.EntityRepository, relations repository.RelationRepository) *GraphStore {
	return &GraphStore{
		client:    client,
		entities:  entities,
		relations: relations,
	}
}

// IsAvailable 检查存储是否可用
func (s *GraphStore) IsAvailable(ctx context.Context) bool {
	return s.client.Ping(ctx) == nil
}

// Execute 执行图谱查询
// 先按名称解析实体，再按意图限定的关系类型展开边，生成可渲染的记录
func (s *GraphStore) Execute(ctx context.Context, q *pipeline.GraphQuery) ([]pipeline.GraphRecord, error) {
	ctx, span := tracer.Start(ctx, "postgres.GraphStore.Execute")
	defer span.End()

	matched, err := s.resolveEntities(ctx, q.Entities)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 5
	}

	records := make([]pipeline.GraphRecord, 0, len(matched))
	for _, ent := range matched {
		if len(records) >= limit {
			break
		}
		rec, err := s.buildRecord(ctx, ent, q.Intent)
		if err != nil {
			// 单实体展开失败只丢弃该实体的贡献
			logger.Warn(ctx, "failed to expand graph entity", "entity", ent.Name, "error", err)
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

// resolveEntities 按名称解析实体: 先精确匹配名称与别名，再模糊搜索
func (s *GraphStore) resolveEntities(ctx context.Context, names []string) ([]*entity.MedicalEntity, error) {
	seen := make(map[string]struct{})
	matched := make([]*entity.MedicalEntity, 0, len(names))

	appendEntity := func(e *entity.MedicalEntity) {
		if e == nil {
			return
		}
		if _, dup := seen[e.ID]; dup {
			return
		}
		seen[e.ID] = struct{}{}
		matched = append(matched, e)
	}

	for _, name := range names {
		exact, err := s.entities.FindByName(ctx, name)
		if err != nil {
			return nil, err
		}
		if exact != nil {
			appendEntity(exact)
			continue
		}

		fuzzy, err := s.entities.SearchByName(ctx, name, fuzzyMatchLimit)
		if err != nil {
			return nil, err
		}
		for _, e := range fuzzy {
			appendEntity(e)
		}
	}
	return matched, nil
}

// buildRecord 为单个实体生成检索记录
// 疾病实体带治疗方案时编码为结构化记录，其余拼接事实行
func (s *GraphStore) buildRecord(ctx context.Context, ent *entity.MedicalEntity, intent pipeline.Intent) (pipeline.GraphRecord, error) {
	related, err := s.RelatedEntities(ctx, ent.ID, 1, relationTypesByIntent[intent])
	if err != nil {
		return pipeline.GraphRecord{}, err
	}

	// 疾病 + 治疗意图: 结构化疾病记录
	if ent.Type == entity.EntityTypeDisease {
		if fact := buildDiseaseFact(ent, related); fact != nil {
			return pipeline.GraphRecord{
				EntityID: ent.ID,
				Content:  pipeline.EncodeFact(fact, ""),
				Metadata: recordMetadata(ent),
			}, nil
		}
	}

	var b strings.Builder
	b.WriteString(ent.Name)
	if ent.Description != "" {
		b.WriteString(": ")
		b.WriteString(ent.Description)
	}
	for _, rel := range related {
		b.WriteString("\n")
		b.WriteString(relationPhrase(ent, rel))
	}
	return pipeline.GraphRecord{
		EntityID: ent.ID,
		Content:  b.String(),
		Metadata: recordMetadata(ent),
	}, nil
}

// buildDiseaseFact 从治疗关系组装结构化疾病记录，无治疗方案时返回 nil
func buildDiseaseFact(ent *entity.MedicalEntity, related []RelatedEntity) *pipeline.DiseaseFact {
	var treatments []pipeline.TreatmentFact
	for _, r := range related {
		if r.Relation.Type != entity.RelationTreats || r.Entity == nil {
			continue
		}
		treatments = append(treatments, pipeline.TreatmentFact{
			Name:        r.Entity.Name,
			Description: r.Entity.Description,
		})
	}
	if len(treatments) == 0 {
		return nil
	}
	return &pipeline.DiseaseFact{
		Disease:     ent.Name,
		Description: ent.Description,
		Treatments:  treatments,
	}
}

// RelatedEntity 一条关联实体及到达它的边与深度
type RelatedEntity struct {
	Entity   *entity.MedicalEntity
	Relation *entity.MedicalRelation
	Depth    int
}

// RelatedEntities 有界广度优先遍历关联实体
// 显式 visited 集合保证环状图谱不会重复展开
func (s *GraphStore) RelatedEntities(ctx context.Context, entityID string, maxDepth int, types []entity.RelationType) ([]RelatedEntity, error) {
	ctx, span := tracer.Start(ctx, "postgres.GraphStore.RelatedEntities")
	defer span.End()

	if maxDepth <= 0 {
		maxDepth = 1
	}

	visited := map[string]struct{}{entityID: {}}
	result := make([]RelatedEntity, 0, 8)

	type queueItem struct {
		id    string
		depth int
	}
	queue := []queueItem{{id: entityID, depth: 0}}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		if current.depth >= maxDepth {
			continue
		}

		rels, err := s.relations.FindByEntityAndTypes(ctx, current.id, types)
		if err != nil {
			span.RecordError(err)
			return nil, err
		}

		// 先收集本层新出现的实体 ID，再批量解析
		discovered := make([]*entity.MedicalRelation, 0, len(rels))
		ids := make([]string, 0, len(rels))
		for _, rel := range rels {
			otherID := rel.TargetID
			if otherID == current.id {
				otherID = rel.SourceID
			}
			if _, ok := visited[otherID]; ok {
				continue
			}
			visited[otherID] = struct{}{}
			discovered = append(discovered, rel)
			ids = append(ids, otherID)
		}

		others, err := s.entities.GetByIDs(ctx, ids)
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
		byID := make(map[string]*entity.MedicalEntity, len(others))
		for _, o := range others {
			byID[o.ID] = o
		}

		for i, rel := range discovered {
			other := byID[ids[i]]
			result = append(result, RelatedEntity{
				Entity:   other,
				Relation: rel,
				Depth:    current.depth + 1,
			})
			queue = append(queue, queueItem{id: ids[i], depth: current.depth + 1})
		}
	}
	return result, nil
}

// relationPhrase 单条边的自然语言描述
func relationPhrase(from *entity.MedicalEntity, r RelatedEntity) string {
	srcName, tgtName := from.Name, "unknown"
	if r.Entity != nil {
		if r.Relation.SourceID == from.ID {
			tgtName = r.Entity.Name
		} else {
			srcName, tgtName = r.Entity.Name, from.Name
		}
	}

	switch r.Relation.Type {
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

// recordMetadata 记录元数据
func recordMetadata(ent *entity.MedicalEntity) map[string]string {
	return map[string]string{
		"entity_id":   ent.ID,
		"entity_type": string(ent.Type),
		"entity_name": ent.Name,
	}
}
