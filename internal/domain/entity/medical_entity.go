// Package entity 定义领域实体
package entity

import (
	"time"

	"github.com/lib/pq"
)

// EntityType 医学实体类型
type EntityType string

const (
	EntityTypeDisease    EntityType = "disease"
	EntityTypeSymptom    EntityType = "symptom"
	EntityTypeTreatment  EntityType = "treatment"
	EntityTypePrevention EntityType = "prevention"
	EntityTypeDiagnostic EntityType = "diagnostic"
)

// MedicalEntity 医学知识图谱节点
// 疾病、症状、治疗等概念统一建模为带类型的实体
type MedicalEntity struct {
	ID          string         `gorm:"column:id;primaryKey" json:"id"`
	Name        string         `gorm:"column:name;not null;index" json:"name"`
	Type        EntityType     `gorm:"column:type;not null;index" json:"type"`
	Description string         `gorm:"column:description" json:"description"`
	Aliases     pq.StringArray `gorm:"column:aliases;type:text[]" json:"aliases"`
	CreatedAt   time.Time      `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

// TableName 指定表名
func (MedicalEntity) TableName() string {
	return "medical_entities"
}
