package pipeline

import (
	"fmt"
	"strings"
)

// Renderer 响应渲染器
// 纯函数式: 只依赖输入，不做外部调用
type Renderer struct {
	// disclaimerBelow 低于该置信度时追加声明
	disclaimerBelow float64
}

// NewRenderer 创建渲染器，threshold 非正时取默认值 0.7
func NewRenderer(threshold float64) *Renderer {
	if threshold <= 0 {
		threshold = 0.7
	}
	return &Renderer{disclaimerBelow: threshold}
}

// Render 渲染完整回答: 正文 + 来源归属 + 低置信度声明
func (r *Renderer) Render(result *RetrievalResult) string {
	if result == nil || result.Status == StatusError {
		detail := "unknown error"
		if result != nil && result.ErrorDetail != "" {
			detail = result.ErrorDetail
		}
		return fmt.Sprintf("I'm sorry, I ran into a problem while answering: %s", detail)
	}

	if len(result.Knowledge) == 0 {
		return MsgNotFound
	}

	text := r.Body(result)

	if len(result.Sources) > 0 {
		text += formatSources(result.Sources)
	}
	if result.Confidence < r.disclaimerBelow {
		text += MsgDisclaimer
	}
	return text
}

// Body 只渲染正文，编排器在复杂查询路径下拼接多段正文后统一追加来源与声明
func (r *Renderer) Body(result *RetrievalResult) string {
	if result == nil || result.Status == StatusError || len(result.Knowledge) == 0 {
		return MsgNotFound
	}

	top := result.Knowledge[0]

	// 结构化疾病记录走模板渲染，解析失败降级为原始文本
	if fact, _, ok := DecodeFact(top.Content); ok {
		return renderFact(fact)
	}

	text := top.Content

	// 第二条结果差异足够大时作为补充信息
	if len(result.Knowledge) > 1 {
		second := result.Knowledge[1].Content
		if _, _, ok := DecodeFact(second); !ok && len(second) > 20 && second != text {
			text += "\n\nAdditionally: " + second
		}
	}
	return text
}

// renderFact 结构化记录的多行摘要
func renderFact(fact *DiseaseFact) string {
	var b strings.Builder
	b.WriteString(fact.Disease)
	b.WriteString(": ")
	b.WriteString(fact.Description)
	for _, t := range fact.Treatments {
		b.WriteString("\n- ")
		b.WriteString(t.Name)
		b.WriteString(": ")
		b.WriteString(t.Description)
	}
	return b.String()
}

// formatSources 来源归属块，每行一个标签
func formatSources(sources []string) string {
	var b strings.Builder
	b.WriteString("\n\nSources:")
	for _, s := range sources {
		b.WriteString("\n- ")
		b.WriteString(s)
	}
	return b.String()
}
