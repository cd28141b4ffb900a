package pipeline

import (
	"encoding/json"
	"strings"
)

// 结构化疾病记录以 "@@fact:" 前缀行内嵌在记录文本的开头，
// 前缀后是单行 JSON，其余部分为自由文本。
// 解析失败时整条内容按普通文本处理，不向上抛错。
const factPrefix = "@@fact:"

// TreatmentFact 结构化记录中的单个治疗方案
type TreatmentFact struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// DiseaseFact 结构化疾病记录
type DiseaseFact struct {
	Disease     string          `json:"disease"`
	Description string          `json:"description"`
	Treatments  []TreatmentFact `json:"treatments,omitempty"`
}

// EncodeFact 将结构化记录编码为带前缀的内容串
func EncodeFact(fact *DiseaseFact, text string) string {
	if fact == nil {
		return text
	}
	data, err := json.Marshal(fact)
	if err != nil {
		return text
	}
	var b strings.Builder
	b.WriteString(factPrefix)
	b.Write(data)
	if text != "" {
		b.WriteByte('\n')
		b.WriteString(text)
	}
	return b.String()
}

// DecodeFact 从内容串中解析结构化记录
// 返回记录、剩余文本和是否解析成功；容忍任意非法输入
func DecodeFact(content string) (*DiseaseFact, string, bool) {
	if !strings.HasPrefix(content, factPrefix) {
		return nil, content, false
	}
	payload := content[len(factPrefix):]
	rest := ""
	if idx := strings.IndexByte(payload, '\n'); idx >= 0 {
		rest = payload[idx+1:]
		payload = payload[:idx]
	}

	var fact DiseaseFact
	if err := json.Unmarshal([]byte(payload), &fact); err != nil {
		return nil, content, false
	}
	if fact.Disease == "" {
		return nil, content, false
	}
	return &fact, rest, true
}
