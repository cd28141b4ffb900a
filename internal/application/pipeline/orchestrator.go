package pipeline

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"medkb-qa-api/pkg/logger"
	"medkb-qa-api/pkg/metrics"
)

// State 编排状态
type State int

const (
	StateReceived State = iota
	StateInterpreted
	StateDecomposed
	StateRetrieving
	StateAggregated
	StateRendered
	StateDone
	StateError
)

var stateNames = [...]string{
	"received", "interpreted", "decomposed", "retrieving",
	"aggregated", "rendered", "done", "error",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// Options 编排器参数
type Options struct {
	// MinConfidence 单检索路径下低于该置信度直接短路
	MinConfidence float64
	// MaxConcurrent 子问题并发检索上限
	MaxConcurrent int
}

func (o Options) withDefaults() Options {
	if o.MinConfidence <= 0 {
		o.MinConfidence = 0.5
	}
	if o.MaxConcurrent <= 0 {
		o.MaxConcurrent = 4
	}
	return o
}

// Orchestrator 查询处理编排器
// 串联解释、分解、检索与渲染，管理状态迁移和兜底错误边界
type Orchestrator struct {
	interpreter *Interpreter
	decomposer  *Decomposer
	agent       *Agent
	renderer    *Renderer
	opts        Options
}

// NewOrchestrator 创建编排器，所有依赖显式注入
func NewOrchestrator(interpreter *Interpreter, decomposer *Decomposer, agent *Agent, renderer *Renderer, opts Options) *Orchestrator {
	return &Orchestrator{
		interpreter: interpreter,
		decomposer:  decomposer,
		agent:       agent,
		renderer:    renderer,
		opts:        opts.withDefaults(),
	}
}

// Process 处理一次查询，总是返回结构良好的响应
func (o *Orchestrator) Process(ctx context.Context, query string) (resp *FinalResponse) {
	ctx, span := tracer.Start(ctx, "pipeline.Process")
	defer span.End()
	start := time.Now()

	state := StateReceived
	// 兜底错误边界: 任何逃逸的 panic 转换为统一错误响应
	defer func() {
		if r := recover(); r != nil {
			logger.Error(ctx, "orchestration panicked", fmt.Errorf("%v", r), "state", state.String())
			resp = errorResponse(fmt.Sprintf("%v", r))
		}
	}()

	interp, err := o.interpreter.Interpret(ctx, query)
	if err != nil {
		state = StateError
		logger.Warn(ctx, "interpretation failed", "error", err)
		metrics.QueriesTotal.WithLabelValues("", "", StatusError).Inc()
		return errorResponse(err.Error())
	}
	state = StateInterpreted

	decomp := o.decomposer.Decompose(ctx, query)
	if len(decomp.SubQuestions) == 0 {
		// 空白查询在解释阶段已被拦截，此处仅防御空分解
		decomp.SubQuestions = []string{query}
	}
	state = StateDecomposed
	metrics.SubQuestionsPerQuery.Observe(float64(len(decomp.SubQuestions)))
	span.SetAttributes(
		attribute.Bool("query.complex", decomp.IsComplex),
		attribute.Int("query.sub_questions", len(decomp.SubQuestions)),
	)

	metadata := map[string]any{
		"original_query": query,
		"interpretation": interp,
	}

	var response string
	var sources []string
	if decomp.IsComplex {
		metadata["sub_questions"] = decomp.SubQuestions
		state = StateRetrieving
		response, sources = o.processComplex(ctx, decomp.SubQuestions)
		state = StateAggregated
	} else {
		state = StateRetrieving
		response, sources = o.processSingle(ctx, decomp.SubQuestions[0])
		state = StateAggregated
	}
	state = StateRendered

	metrics.QueriesTotal.WithLabelValues(string(interp.Intent), string(interp.QueryType), StatusSuccess).Inc()
	metrics.QueryDuration.WithLabelValues(strconv.FormatBool(decomp.IsComplex)).Observe(time.Since(start).Seconds())
	logger.Info(ctx, "query processed",
		"intent", interp.Intent, "query_type", interp.QueryType,
		"complex", decomp.IsComplex, "duration", time.Since(start))

	state = StateDone
	return &FinalResponse{
		Response: response,
		Sources:  sources,
		Status:   StatusSuccess,
		Metadata: metadata,
	}
}

// processSingle 非复杂查询: 单次检索，置信度过低时短路
func (o *Orchestrator) processSingle(ctx context.Context, question string) (string, []string) {
	result := o.agent.Retrieve(ctx, question)

	if result.Status == StatusSuccess && len(result.Knowledge) > 0 &&
		result.Confidence < o.opts.MinConfidence {
		return MsgLowConfidence, []string{}
	}

	sources := result.Sources
	if sources == nil {
		sources = []string{}
	}
	return o.renderer.Render(result), sources
}

// processComplex 复杂查询: 并发检索各子问题，按原始顺序拼接正文并合并来源
// 单个子问题失败只丢弃其贡献，不中断整批
func (o *Orchestrator) processComplex(ctx context.Context, questions []string) (string, []string) {
	results := make([]*RetrievalResult, len(questions))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.opts.MaxConcurrent)
	for i, q := range questions {
		g.Go(func() error {
			results[i] = o.agent.Retrieve(gctx, q)
			return nil
		})
	}
	_ = g.Wait()

	parts := make([]string, 0, len(questions))
	sources := make([]string, 0, 2)
	seen := make(map[string]struct{}, 2)
	var confSum float64
	var confN int
	for i, res := range results {
		if res == nil || res.Status == StatusError {
			logger.Warn(ctx, "sub-question retrieval failed, omitting contribution",
				"sub_question", questions[i])
			continue
		}
		if len(res.Knowledge) == 0 {
			continue
		}
		parts = append(parts, o.renderer.Body(res))
		confSum += res.Confidence
		confN++
		for _, s := range res.Sources {
			if _, ok := seen[s]; ok {
				continue
			}
			seen[s] = struct{}{}
			sources = append(sources, s)
		}
	}

	if len(parts) == 0 {
		return MsgNotFound, []string{}
	}

	text := strings.Join(parts, "\n\n")
	if len(sources) > 0 {
		text += formatSources(sources)
	}
	if confN > 0 && confSum/float64(confN) < o.renderer.disclaimerBelow {
		text += MsgDisclaimer
	}
	return text, sources
}

func errorResponse(detail string) *FinalResponse {
	return &FinalResponse{
		Response: fmt.Sprintf("Error processing query: %s", detail),
		Sources:  []string{},
		Status:   StatusError,
		Metadata: map[string]any{},
	}
}
