// Package pipeline 实现查询理解与多源检索管道
//
// 管道由五个环节组成: 解释 -> 分解 -> 检索 -> 渲染 -> 编排。
// 每个环节在自身边界内恢复错误并返回带状态标记的结果，
// 不向上层抛出异常。
package pipeline

// Intent 查询意图
type Intent string

const (
	IntentSymptoms    Intent = "symptoms"
	IntentDiagnosis   Intent = "diagnosis"
	IntentTreatment   Intent = "treatment"
	IntentPrevention  Intent = "prevention"
	IntentInformation Intent = "information"
)

// QueryType 查询类型
type QueryType string

const (
	QueryTypeFactual     QueryType = "factual"
	QueryTypeComparative QueryType = "comparative"
	QueryTypeCausal      QueryType = "causal"
	QueryTypeTemporal    QueryType = "temporal"
)

// 检索结果状态
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// 用户可见的固定文案
const (
	// MsgNotFound 无检索结果时的回答
	MsgNotFound = "I'm sorry, I couldn't find any information on that topic."
	// MsgRephrase 融合结果为空时写入 knowledge 的提示语
	MsgRephrase = "I couldn't find any relevant information. Could you try rephrasing your question?"
	// MsgLowConfidence 置信度过低时的短路回答
	MsgLowConfidence = "I'm sorry, I don't have enough information to answer that question confidently."
	// MsgDisclaimer 低置信度声明，追加在回答末尾
	MsgDisclaimer = "\n\nNote: I'm not entirely confident in this answer. You may want to verify this information."
)

// Interpretation 查询解释结果
// 每次查询新建，返回后不再修改
type Interpretation struct {
	Text      string    `json:"text"`
	Entities  []string  `json:"entities"`
	Intent    Intent    `json:"intent"`
	QueryType QueryType `json:"query_type"`
}

// DecompositionResult 查询分解结果
type DecompositionResult struct {
	IsComplex     bool     `json:"is_complex"`
	SubQuestions  []string `json:"sub_questions"`
	OriginalQuery string   `json:"original_query"`
}

// RankedRecord 融合排序后的单条检索记录
type RankedRecord struct {
	// Source 来源标签: vector / graph
	Source   string            `json:"source"`
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata,omitempty"`
	// Score 归一化到 [0,1] 的相关性分值，Scored 为真时才有意义
	Score float64 `json:"score"`
	// Scored 区分零分与无分: 零分是合法分值，参与置信度均值
	Scored bool `json:"scored"`
}

// RetrievalResult 多源检索的合并结果
type RetrievalResult struct {
	Status string `json:"status"`
	// Knowledge 按分值降序排列的记录，为空时 Message 携带提示语
	Knowledge []RankedRecord `json:"knowledge"`
	Message   string         `json:"message,omitempty"`
	Sources   []string       `json:"sources"`
	// Confidence 前三条记录分值的均值; 空结果为 0，无分值记录为 0.3
	Confidence float64 `json:"confidence"`
	// ErrorDetail 状态为 error 时的出错描述
	ErrorDetail string `json:"error_detail,omitempty"`
}

// FinalResponse 编排器最终返回
type FinalResponse struct {
	Response string         `json:"response"`
	Sources  []string       `json:"sources"`
	Status   string         `json:"status"`
	Metadata map[string]any `json:"metadata"`
}

// clampScore 将分值裁剪到 [0,1]
func clampScore(s float64) float64 {
	if s < 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}
