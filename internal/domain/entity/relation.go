package entity

import (
	"time"
)

// RelationType 医学关系类型
type RelationType string

const (
	RelationHasSymptom  RelationType = "has_symptom"
	RelationTreats      RelationType = "treats"
	RelationPrevents    RelationType = "prevents"
	RelationCauses      RelationType = "causes"
	RelationDiagnosedBy RelationType = "diagnosed_by"
	RelationRelatedTo   RelationType = "related_to"
)

// MedicalRelation 医学知识图谱边
// 表达 "disease has_symptom symptom" 这类有向三元组
type MedicalRelation struct {
	ID         string       `gorm:"column:id;primaryKey" json:"id"`
	SourceID   string       `gorm:"column:source_id;not null;index" json:"source_id"`
	TargetID   string       `gorm:"column:target_id;not null;index" json:"target_id"`
	Type       RelationType `gorm:"column:type;not null;index" json:"type"`
	Confidence float64      `gorm:"column:confidence;default:1.0" json:"confidence"`
	CreatedAt  time.Time    `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

// TableName 指定表名
func (MedicalRelation) TableName() string {
	return "medical_relations"
}
