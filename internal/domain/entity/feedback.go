package entity

import (
	"time"
)

// QueryFeedback 用户对回答的反馈
type QueryFeedback struct {
	ID        string    `gorm:"column:id;primaryKey" json:"id"`
	QueryID   string    `gorm:"column:query_id;not null;index" json:"query_id"`
	Query     string    `gorm:"column:query" json:"query"`
	Answer    string    `gorm:"column:answer" json:"answer"`
	Helpful   bool      `gorm:"column:helpful" json:"helpful"`
	Comment   string    `gorm:"column:comment" json:"comment"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

// TableName 指定表名
func (QueryFeedback) TableName() string {
	return "query_feedbacks"
}
