package pipeline

import (
	"context"
)

// GraphQuery 图谱查询参数
// 针对实体名做模糊匹配，意图非空时限定到对应的关系类型
type GraphQuery struct {
	Entities []string
	Intent   Intent
	Limit    int
}

// GraphRecord 图谱查询返回的记录
type GraphRecord struct {
	EntityID string
	Content  string
	Metadata map[string]string
}

// VectorHit 向量检索命中
type VectorHit struct {
	ID       string
	Score    float64
	Content  string
	Metadata map[string]string
}

// GraphStore 图谱存储能力接口
type GraphStore interface {
	// Execute 执行图谱查询
	Execute(ctx context.Context, q *GraphQuery) ([]GraphRecord, error)
	// IsAvailable 检查存储是否可用
	IsAvailable(ctx context.Context) bool
}

// VectorStore 向量存储能力接口
type VectorStore interface {
	// Search 检索与给定向量最相近的 topK 条记录，过滤低于 scoreFloor 的结果
	Search(ctx context.Context, vector []float32, topK int, scoreFloor float64) ([]VectorHit, error)
	// IsAvailable 检查存储是否可用
	IsAvailable(ctx context.Context) bool
}

// TextEmbedder 文本向量化能力接口
type TextEmbedder interface {
	// Embed 将文本编码为定长向量
	Embed(ctx context.Context, text string) ([]float32, error)
}
