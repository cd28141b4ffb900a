package milvus

import (
	"context"

	"medkb-qa-api/internal/application/pipeline"
)

// VectorStore 语义检索存储适配，基于 medical_facts 集合
type VectorStore struct {
	repo *Repository
}

// NewVectorStore 创建语义检索存储
func NewVectorStore(repo *Repository) *VectorStore {
	return &VectorStore{repo: repo}
}

var _ pipeline.VectorStore = (*VectorStore)(nil)

// IsAvailable 检查向量库是否可用
func (s *VectorStore) IsAvailable(ctx context.Context) bool {
	if s == nil || s.repo == nil || s.repo.client == nil {
		return false
	}
	return s.repo.client.HealthCheck(ctx) == nil
}

// Search 按查询向量检索知识片段，过滤低于相似度下限的结果
func (s *VectorStore) Search(ctx context.Context, vector []float32, topK int, scoreFloor float64) ([]pipeline.VectorHit, error) {
	if s == nil || s.repo == nil {
		return nil, nil
	}

	out, err := s.repo.SearchFacts(ctx, &SearchParams{
		QueryVector: vector,
		TopK:        topK,
	})
	if err != nil {
		return nil, err
	}

	hits := make([]pipeline.VectorHit, 0, len(out))
	for _, v := range out {
		if v == nil || float64(v.Score) < scoreFloor {
			continue
		}
		hits = append(hits, pipeline.VectorHit{
			ID:      v.ID,
			Score:   float64(v.Score),
			Content: v.TextContent,
			Metadata: map[string]string{
				"entity_id":   v.EntityID,
				"entity_type": v.EntityType,
			},
		})
	}
	return hits, nil
}
