package pipeline

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"medkb-qa-api/pkg/logger"
)

// Decomposer 查询分解器
// 将复杂查询拆分为可独立检索的子问题序列
type Decomposer struct {
	interpreter *Interpreter
}

// NewDecomposer 创建查询分解器
func NewDecomposer(interpreter *Interpreter) *Decomposer {
	return &Decomposer{interpreter: interpreter}
}

// 子问题模板
const (
	tmplAspectOfEntity   = "What are the %s of %s?"
	tmplWhatCauses       = "What causes %s?"
	tmplRelationBetween  = "What is the relationship between %s and %s?"
	tmplSymptomsTimeline = "What is the timeline of %s symptoms?"
)

// Decompose 分解查询
// 空白输入返回空子问题列表的退化结果；其余情况子问题列表至少包含原查询本身
func (d *Decomposer) Decompose(ctx context.Context, text string) *DecompositionResult {
	ctx, span := tracer.Start(ctx, "pipeline.Decompose")
	defer span.End()

	if strings.TrimSpace(text) == "" {
		return &DecompositionResult{IsComplex: false, SubQuestions: []string{}, OriginalQuery: text}
	}

	interp, err := d.interpreter.Interpret(ctx, text)
	if err != nil {
		// 解释失败按不可分解处理，整句作为唯一子问题
		logger.Warn(ctx, "interpretation failed during decomposition", "error", err)
		return &DecompositionResult{IsComplex: false, SubQuestions: []string{text}, OriginalQuery: text}
	}

	lower := strings.ToLower(text)
	aspects := mentionedAspects(lower)

	// 单实体、单方面且无比较/因果线索的事实型查询无需分解
	if interp.QueryType == QueryTypeFactual && len(interp.Entities) == 1 &&
		!hasComparisonOrCausalCues(lower) && len(aspects) <= 1 {
		return &DecompositionResult{IsComplex: false, SubQuestions: []string{text}, OriginalQuery: text}
	}

	var subs []string
	switch interp.QueryType {
	case QueryTypeComparative:
		subs = decomposeComparative(lower, interp.Entities, aspects)
	case QueryTypeCausal:
		subs = decomposeCausal(interp.Entities)
	case QueryTypeTemporal:
		subs = decomposeTemporal(interp.Entities)
	default:
		subs = decomposeMultiPart(lower, interp.Entities, aspects)
	}

	if len(subs) == 0 {
		subs = []string{text}
	}

	span.SetAttributes(attribute.Int("decompose.sub_questions", len(subs)))
	logger.Debug(ctx, "query decomposed",
		"query_type", interp.QueryType, "sub_questions", len(subs))

	return &DecompositionResult{
		IsComplex:     len(subs) > 1,
		SubQuestions:  subs,
		OriginalQuery: text,
	}
}

// decomposeComparative 比较型查询: 每个 (方面 × 实体) 组合生成一个子问题
func decomposeComparative(lower string, entities, aspects []string) []string {
	if len(aspects) == 0 {
		aspects = []string{"symptoms"}
	}

	targets := entities
	if len(targets) < 2 {
		// 实体不足时按 and 切分子句并提取各子句的主干实体
		targets = targets[:0:0]
		for _, clause := range splitComparisonClauses(lower) {
			if e := extractMainEntity(clause); e != "" {
				targets = append(targets, e)
			}
		}
	}

	subs := make([]string, 0, len(aspects)*len(targets))
	for _, a := range aspects {
		for _, e := range targets {
			subs = append(subs, fmt.Sprintf(tmplAspectOfEntity, a, e))
		}
	}
	return subs
}

// decomposeCausal 因果型查询: entities[0] 为果，entities[1] 为因，固定生成两个子问题
func decomposeCausal(entities []string) []string {
	if len(entities) < 2 {
		return nil
	}
	effect, cause := entities[0], entities[1]
	return []string{
		fmt.Sprintf(tmplWhatCauses, effect),
		fmt.Sprintf(tmplRelationBetween, effect, cause),
	}
}

// decomposeTemporal 时间型查询: 先问症状再问时间线
func decomposeTemporal(entities []string) []string {
	if len(entities) == 0 {
		return nil
	}
	e := entities[0]
	return []string{
		fmt.Sprintf(tmplAspectOfEntity, "symptoms", e),
		fmt.Sprintf(tmplSymptomsTimeline, e),
	}
}

// decomposeMultiPart 多方面事实型查询: 对首个实体按提及的方面逐一生成子问题
func decomposeMultiPart(lower string, entities, aspects []string) []string {
	if len(entities) == 0 {
		return nil
	}
	primary := entities[0]

	subs := make([]string, 0, len(aspects)+2)
	for _, a := range aspects {
		subs = append(subs, fmt.Sprintf(tmplAspectOfEntity, a, primary))
	}

	// 存在 vs/compared 切分时，对两侧各生成一个症状子问题
	for _, sep := range []string{" vs ", " compared "} {
		if !strings.Contains(lower, sep) {
			continue
		}
		for _, side := range strings.SplitN(lower, sep, 2) {
			if e := extractMainEntity(side); e != "" {
				subs = append(subs, fmt.Sprintf(tmplAspectOfEntity, "symptoms", e))
			}
		}
		break
	}
	return subs
}

// mentionedAspects 返回查询中提及的方面，固定顺序 symptoms/causes/treatments
func mentionedAspects(lower string) []string {
	aspects := make([]string, 0, 3)
	if containsWord(lower, "symptom") || containsWord(lower, "symptoms") {
		aspects = append(aspects, "symptoms")
	}
	if containsWord(lower, "cause") || containsWord(lower, "causes") {
		aspects = append(aspects, "causes")
	}
	if containsWord(lower, "treatment") || containsWord(lower, "treatments") ||
		containsWord(lower, "treat") || containsWord(lower, "treated") {
		aspects = append(aspects, "treatments")
	}
	return aspects
}

// hasComparisonOrCausalCues 检查比较与因果线索词
func hasComparisonOrCausalCues(lower string) bool {
	for _, w := range comparativeWords {
		if containsWord(lower, w) {
			return true
		}
	}
	for _, w := range causalWords {
		if containsWord(lower, w) {
			return true
		}
	}
	return hasAnyPhrase(lower, causalPhrases)
}

// splitComparisonClauses 去掉比较词后按 and 切分
func splitComparisonClauses(lower string) []string {
	cleaned := lower
	for _, w := range []string{"compared", "compare", "versus", "vs"} {
		cleaned = removeWord(cleaned, w)
	}
	parts := strings.Split(cleaned, " and ")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// entityNoiseWords 提取子句主干实体时剔除的疑问词与方面名词
var entityNoiseWords = map[string]struct{}{
	"what": {}, "are": {}, "the": {}, "of": {}, "is": {}, "how": {},
	"for": {}, "to": {}, "do": {}, "does": {}, "a": {}, "an": {},
	"symptom": {}, "symptoms": {}, "cause": {}, "causes": {},
	"treatment": {}, "treatments": {}, "treat": {}, "treated": {},
}

// extractMainEntity 剔除疑问词与方面名词后的剩余词作为主干实体
func extractMainEntity(clause string) string {
	fields := strings.FieldsFunc(clause, func(r rune) bool {
		return r == ' ' || r == '?' || r == ',' || r == '.' || r == '!'
	})
	kept := make([]string, 0, len(fields))
	for _, f := range fields {
		if _, noise := entityNoiseWords[f]; noise {
			continue
		}
		kept = append(kept, f)
	}
	return strings.Join(kept, " ")
}

// removeWord 按词边界移除单词的所有出现
func removeWord(s, word string) string {
	for {
		idx := indexWord(s, word)
		if idx < 0 {
			return strings.Join(strings.Fields(s), " ")
		}
		s = s[:idx] + s[idx+len(word):]
	}
}

// containsWord 带词边界的子串查找
func containsWord(lower, word string) bool {
	return indexWord(lower, word) >= 0
}

func indexWord(s, word string) int {
	from := 0
	for {
		idx := strings.Index(s[from:], word)
		if idx < 0 {
			return -1
		}
		pos := from + idx
		if wordBoundary(s, pos, len(word)) {
			return pos
		}
		from = pos + len(word)
	}
}
