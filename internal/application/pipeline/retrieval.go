package pipeline

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"medkb-qa-api/pkg/logger"
	"medkb-qa-api/pkg/metrics"
)

// 来源标签
const (
	SourceVector = "vector"
	SourceGraph  = "graph"
)

// RetrievalOptions 检索参数
type RetrievalOptions struct {
	TopK              int
	ScoreFloor        float64
	FusedTopN         int
	GraphDefaultScore float64
	CallTimeout       time.Duration
}

func (o RetrievalOptions) withDefaults() RetrievalOptions {
	if o.TopK <= 0 {
		o.TopK = 5
	}
	if o.ScoreFloor <= 0 {
		o.ScoreFloor = 0.5
	}
	if o.FusedTopN <= 0 {
		o.FusedTopN = 5
	}
	if o.GraphDefaultScore <= 0 {
		o.GraphDefaultScore = 0.8
	}
	if o.CallTimeout <= 0 {
		o.CallTimeout = 5 * time.Second
	}
	return o
}

// Agent 检索代理
// 并行查询向量存储与图谱存储，融合排序并计算置信度。
// 任何内部失败都被就地降级，Retrieve 对外不报错。
type Agent struct {
	graph    GraphStore
	vector   VectorStore
	embedder TextEmbedder
	analyzer Analyzer
	opts     RetrievalOptions
}

// NewAgent 创建检索代理
func NewAgent(graph GraphStore, vector VectorStore, embedder TextEmbedder, analyzer Analyzer, opts RetrievalOptions) *Agent {
	return &Agent{
		graph:    graph,
		vector:   vector,
		embedder: embedder,
		analyzer: analyzer,
		opts:     opts.withDefaults(),
	}
}

// Retrieve 执行一次多源检索
func (a *Agent) Retrieve(ctx context.Context, query string) (result *RetrievalResult) {
	ctx, span := tracer.Start(ctx, "pipeline.Retrieve")
	defer span.End()

	// 兜底恢复，保证调用方总能拿到结构化结果
	defer func() {
		if r := recover(); r != nil {
			logger.Error(ctx, "retrieval panicked", fmt.Errorf("%v", r))
			result = &RetrievalResult{
				Status:      StatusError,
				Sources:     []string{},
				ErrorDetail: fmt.Sprintf("%v", r),
			}
		}
	}()

	entities := a.coarseEntities(query)
	intent := ClassifyIntent(strings.ToLower(query), a.analyzer.Analyze(query))

	var vectorRecs, graphRecs []RankedRecord
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		vectorRecs = a.searchVector(gctx, query, entities)
		return nil
	})
	g.Go(func() error {
		graphRecs = a.searchGraph(gctx, entities, intent)
		return nil
	})
	_ = g.Wait()

	fused := fuse(vectorRecs, graphRecs, a.opts.FusedTopN)
	confidence := computeConfidence(fused)
	metrics.RetrievalConfidence.Observe(confidence)
	span.SetAttributes(
		attribute.Int("retrieve.fused", len(fused)),
		attribute.Float64("retrieve.confidence", confidence),
	)

	// 无结果不是失败，返回提示语让用户换个问法
	if len(fused) == 0 {
		return &RetrievalResult{
			Status:     StatusSuccess,
			Knowledge:  []RankedRecord{},
			Message:    MsgRephrase,
			Sources:    []string{},
			Confidence: 0,
		}
	}

	return &RetrievalResult{
		Status:     StatusSuccess,
		Knowledge:  fused,
		Sources:    collectSources(fused),
		Confidence: confidence,
	}
}

// coarseEntities 粗粒度实体提取: 剔除虚词后的剩余词
// 全部被剔除时退化为整句小写
func (a *Agent) coarseEntities(query string) []string {
	lower := strings.ToLower(query)
	fields := strings.FieldsFunc(lower, func(r rune) bool {
		return r == ' ' || r == '?' || r == ',' || r == '.' || r == '!' || r == ';'
	})

	entities := make([]string, 0, len(fields))
	for _, f := range fields {
		if _, stop := retrievalStopWords[f]; stop {
			continue
		}
		entities = append(entities, f)
	}
	if len(entities) == 0 {
		entities = []string{strings.TrimSpace(lower)}
	}
	return entities
}

// searchVector 语义检索: 整句向量化召回，无命中时按实体逐个重试并取并集
func (a *Agent) searchVector(ctx context.Context, query string, entities []string) []RankedRecord {
	if a.vector == nil || a.embedder == nil {
		return nil
	}
	if !a.vector.IsAvailable(ctx) {
		logger.Warn(ctx, "vector store unavailable, skipping semantic search")
		metrics.RetrievalTotal.WithLabelValues(SourceVector, "unavailable").Inc()
		return nil
	}

	start := time.Now()
	hits := a.vectorSearchOnce(ctx, query)

	if len(hits) == 0 {
		// 整句召回为空，按实体重试
		seen := make(map[string]struct{})
		for _, e := range entities {
			for _, h := range a.vectorSearchOnce(ctx, e) {
				if _, dup := seen[h.ID]; dup {
					continue
				}
				seen[h.ID] = struct{}{}
				hits = append(hits, h)
			}
		}
	}

	metrics.RetrievalDuration.WithLabelValues(SourceVector).Observe(time.Since(start).Seconds())
	metrics.RetrievalTotal.WithLabelValues(SourceVector, StatusSuccess).Inc()

	recs := make([]RankedRecord, 0, len(hits))
	for _, h := range hits {
		recs = append(recs, RankedRecord{
			Source:   SourceVector,
			Content:  h.Content,
			Metadata: h.Metadata,
			Score:    clampScore(h.Score),
			Scored:   true,
		})
	}
	return recs
}

// vectorSearchOnce 单次向量化加检索，出错降级为空结果
func (a *Agent) vectorSearchOnce(ctx context.Context, text string) []VectorHit {
	callCtx, cancel := context.WithTimeout(ctx, a.opts.CallTimeout)
	defer cancel()

	embedStart := time.Now()
	vec, err := a.embedder.Embed(callCtx, text)
	metrics.EmbeddingCallDuration.Observe(time.Since(embedStart).Seconds())
	if err != nil {
		metrics.EmbeddingCallTotal.WithLabelValues(StatusError).Inc()
		logger.Warn(ctx, "embedding failed", "error", err)
		return nil
	}
	metrics.EmbeddingCallTotal.WithLabelValues(StatusSuccess).Inc()

	hits, err := a.vector.Search(callCtx, vec, a.opts.TopK, a.opts.ScoreFloor)
	if err != nil {
		metrics.RetrievalTotal.WithLabelValues(SourceVector, StatusError).Inc()
		logger.Warn(ctx, "vector search failed", "error", err)
		return nil
	}
	return hits
}

// searchGraph 图谱检索: 按实体模糊匹配，意图限定关系类型
func (a *Agent) searchGraph(ctx context.Context, entities []string, intent Intent) []RankedRecord {
	if a.graph == nil {
		return nil
	}
	if !a.graph.IsAvailable(ctx) {
		logger.Warn(ctx, "graph store unavailable, skipping graph search")
		metrics.RetrievalTotal.WithLabelValues(SourceGraph, "unavailable").Inc()
		return nil
	}

	callCtx, cancel := context.WithTimeout(ctx, a.opts.CallTimeout)
	defer cancel()

	start := time.Now()
	records, err := a.graph.Execute(callCtx, &GraphQuery{
		Entities: entities,
		Intent:   intent,
		Limit:    a.opts.TopK,
	})
	metrics.RetrievalDuration.WithLabelValues(SourceGraph).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.RetrievalTotal.WithLabelValues(SourceGraph, StatusError).Inc()
		logger.Warn(ctx, "graph query failed", "error", err)
		return nil
	}
	metrics.RetrievalTotal.WithLabelValues(SourceGraph, StatusSuccess).Inc()

	recs := make([]RankedRecord, 0, len(records))
	for _, r := range records {
		// 图谱不返回可比的相似度，给固定高分
		recs = append(recs, RankedRecord{
			Source:   SourceGraph,
			Content:  r.Content,
			Metadata: r.Metadata,
			Score:    a.opts.GraphDefaultScore,
			Scored:   true,
		})
	}
	return recs
}

// fuse 合并两路结果，按分值降序排列并截断到 topN
func fuse(vectorRecs, graphRecs []RankedRecord, topN int) []RankedRecord {
	fused := make([]RankedRecord, 0, len(vectorRecs)+len(graphRecs))
	fused = append(fused, vectorRecs...)
	fused = append(fused, graphRecs...)

	sort.SliceStable(fused, func(a, b int) bool {
		return fused[a].Score > fused[b].Score
	})
	if len(fused) > topN {
		fused = fused[:topN]
	}
	return fused
}

// computeConfidence 置信度: 前三条记录分值的均值
// 空结果为 0，有记录但全部无分值时为固定低值 0.3。
// 零分记录按 Scored 标记计入均值，不会被当作无分值
func computeConfidence(records []RankedRecord) float64 {
	if len(records) == 0 {
		return 0.0
	}
	top := records
	if len(top) > 3 {
		top = top[:3]
	}
	sum, n := 0.0, 0
	for _, r := range top {
		if r.Scored {
			sum += r.Score
			n++
		}
	}
	if n == 0 {
		return 0.3
	}
	return sum / float64(n)
}

// collectSources 按融合顺序收集去重后的来源标签
func collectSources(records []RankedRecord) []string {
	sources := make([]string, 0, 2)
	seen := make(map[string]struct{}, 2)
	for _, r := range records {
		if _, ok := seen[r.Source]; ok {
			continue
		}
		seen[r.Source] = struct{}{}
		sources = append(sources, r.Source)
	}
	return sources
}
