package pipeline

import (
	"context"
	"sort"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"medkb-qa-api/pkg/errors"
	"medkb-qa-api/pkg/logger"
)

var tracer = otel.Tracer("pipeline")

// Interpreter 查询解释器
// 将原始问题解析为实体、意图与查询类型的结构化解释
type Interpreter struct {
	analyzer Analyzer
	vocab    *Vocabulary
}

// NewInterpreter 创建查询解释器
func NewInterpreter(analyzer Analyzer, vocab *Vocabulary) *Interpreter {
	if vocab == nil {
		vocab = DefaultVocabulary()
	}
	return &Interpreter{analyzer: analyzer, vocab: vocab}
}

// Interpret 解释查询
// 空白输入返回 ErrEmptyQuery，调用方将其转换为结构化错误响应而非异常
func (i *Interpreter) Interpret(ctx context.Context, text string) (*Interpretation, error) {
	ctx, span := tracer.Start(ctx, "pipeline.Interpret")
	defer span.End()

	if strings.TrimSpace(text) == "" {
		span.RecordError(errors.ErrEmptyQuery)
		return nil, errors.ErrEmptyQuery
	}

	tokens := i.analyzer.Analyze(text)
	lower := strings.ToLower(text)

	entities := i.extractEntities(text, lower, tokens)
	queryType := ClassifyQueryType(lower, tokens)
	intent := ClassifyIntent(lower, tokens)

	span.SetAttributes(
		attribute.String("query.intent", string(intent)),
		attribute.String("query.type", string(queryType)),
		attribute.Int("query.entities", len(entities)),
	)
	logger.Debug(ctx, "query interpreted",
		"intent", intent, "query_type", queryType, "entities", entities)

	return &Interpretation{
		Text:      text,
		Entities:  entities,
		Intent:    intent,
		QueryType: queryType,
	}, nil
}

// extractEntities 抽取实体
// 词表命中与命名实体候选取并集，按原文出现顺序排列，
// 大小写不敏感去重并保留首次出现的表面形式
func (i *Interpreter) extractEntities(text, lower string, tokens []Token) []string {
	matches := i.vocab.Match(text, lower, tokens)
	for _, tok := range tokens {
		if tok.EntityCandidate {
			matches = append(matches, entityMatch{offset: tok.Offset, surface: tok.Text})
		}
	}

	sort.SliceStable(matches, func(a, b int) bool {
		return matches[a].offset < matches[b].offset
	})

	entities := make([]string, 0, len(matches))
	seen := make(map[string]struct{}, len(matches))
	for _, m := range matches {
		key := strings.ToLower(m.surface)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		entities = append(entities, m.surface)
	}
	return entities
}
