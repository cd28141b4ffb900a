// Package dto 提供 HTTP 层数据传输对象
package dto

// AskRequest 问答请求
type AskRequest struct {
	Query string `json:"query" binding:"required"`
}

// AskResponse 问答响应
type AskResponse struct {
	Response string         `json:"response"`
	Sources  []string       `json:"sources"`
	Status   string         `json:"status"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// FeedbackRequest 回答反馈请求
type FeedbackRequest struct {
	QueryID string `json:"query_id" binding:"required"`
	Query   string `json:"query"`
	Answer  string `json:"answer"`
	Helpful bool   `json:"helpful"`
	Comment string `json:"comment"`
}

// FeedbackResponse 反馈创建响应
type FeedbackResponse struct {
	ID string `json:"id"`
}

// FeedbackItem 反馈查询条目
type FeedbackItem struct {
	ID      string `json:"id"`
	QueryID string `json:"query_id"`
	Helpful bool   `json:"helpful"`
	Comment string `json:"comment,omitempty"`
}
