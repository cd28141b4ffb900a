// Package milvus 提供 Milvus 向量数据库访问层实现
package milvus

import (
	"strconv"

	"github.com/milvus-io/milvus-sdk-go/v2/entity"
)

const (
	// CollectionMedicalFacts 医学知识片段集合
	CollectionMedicalFacts = "medical_facts"
)

// MedicalFactsSchema 医学知识片段 Collection Schema
// 向量维度跟随 embedding 模型配置
func MedicalFactsSchema(dim int) *entity.Schema {
	return &entity.Schema{
		CollectionName: CollectionMedicalFacts,
		Description:    "Medical knowledge fragments for semantic search",
		Fields: []*entity.Field{
			{
				Name:       "id",
				DataType:   entity.FieldTypeVarChar,
				PrimaryKey: true,
				AutoID:     false,
				TypeParams: map[string]string{
					"max_length": "64",
				},
			},
			{
				Name:     "vector",
				DataType: entity.FieldTypeFloatVector,
				TypeParams: map[string]string{
					"dim": strconv.Itoa(dim),
				},
			},
			{
				Name:     "entity_id",
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "64",
				},
			},
			{
				Name:     "entity_type",
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "32",
				},
			},
			{
				Name:     "text_content",
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "65535",
				},
			},
		},
	}
}

// MedicalFact 医学知识片段数据结构
type MedicalFact struct {
	ID          string    `json:"id"`
	Vector      []float32 `json:"vector"`
	EntityID    string    `json:"entity_id"`
	EntityType  string    `json:"entity_type"`
	TextContent string    `json:"text_content"`
}
