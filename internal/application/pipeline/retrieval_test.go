package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeEmbedder 固定维度的桩向量化器
type fakeEmbedder struct {
	mu    sync.Mutex
	err   error
	calls int
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return []float32{float32(len(text))}, nil
}

// fakeVectorStore 按调用次序返回预置命中
type fakeVectorStore struct {
	mu          sync.Mutex
	hits        [][]VectorHit
	err         error
	unavailable bool
	calls       int
}

func (f *fakeVectorStore) Search(_ context.Context, _ []float32, _ int, floor float64) ([]VectorHit, error) {
	f.mu.Lock()
	idx := f.calls
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if idx >= len(f.hits) {
		return nil, nil
	}
	out := make([]VectorHit, 0, len(f.hits[idx]))
	for _, h := range f.hits[idx] {
		if h.Score >= floor {
			out = append(out, h)
		}
	}
	return out, nil
}

func (f *fakeVectorStore) IsAvailable(context.Context) bool { return !f.unavailable }

// fakeGraphStore 回显实体的桩图谱
type fakeGraphStore struct {
	mu          sync.Mutex
	records     []GraphRecord
	echo        bool
	err         error
	unavailable bool
	lastQuery   *GraphQuery
}

func (f *fakeGraphStore) Execute(_ context.Context, q *GraphQuery) ([]GraphRecord, error) {
	f.mu.Lock()
	f.lastQuery = q
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if f.echo {
		return []GraphRecord{{EntityID: q.Entities[0], Content: "graph: " + strings.Join(q.Entities, " ")}}, nil
	}
	return f.records, nil
}

func (f *fakeGraphStore) IsAvailable(context.Context) bool { return !f.unavailable }

func newTestAgent(graph GraphStore, vector VectorStore, embedder TextEmbedder) *Agent {
	return NewAgent(graph, vector, embedder, NewLexicalAnalyzer(), RetrievalOptions{})
}

func TestRetrieveFusionOrdering(t *testing.T) {
	vector := &fakeVectorStore{hits: [][]VectorHit{{
		{ID: "v1", Score: 0.95, Content: "vector high"},
		{ID: "v2", Score: 0.6, Content: "vector low"},
	}}}
	graph := &fakeGraphStore{records: []GraphRecord{{EntityID: "g1", Content: "graph hit"}}}

	agent := newTestAgent(graph, vector, &fakeEmbedder{})
	result := agent.Retrieve(context.Background(), "What are the symptoms of diabetes?")

	require.Equal(t, StatusSuccess, result.Status)
	require.Len(t, result.Knowledge, 3)
	assert.Equal(t, "vector high", result.Knowledge[0].Content)
	// 图谱命中取固定分值 0.8，排在 0.6 的向量命中之前
	assert.Equal(t, "graph hit", result.Knowledge[1].Content)
	assert.Equal(t, SourceGraph, result.Knowledge[1].Source)
	assert.InDelta(t, 0.8, result.Knowledge[1].Score, 1e-9)
	assert.Equal(t, "vector low", result.Knowledge[2].Content)

	assert.ElementsMatch(t, []string{SourceVector, SourceGraph}, result.Sources)
	assert.InDelta(t, (0.95+0.8+0.6)/3, result.Confidence, 1e-9)
}

func TestRetrieveEmptyFused(t *testing.T) {
	vector := &fakeVectorStore{}
	graph := &fakeGraphStore{}

	agent := newTestAgent(graph, vector, &fakeEmbedder{})
	result := agent.Retrieve(context.Background(), "completely unknown topic")

	assert.Equal(t, StatusSuccess, result.Status)
	assert.Empty(t, result.Knowledge)
	assert.Equal(t, MsgRephrase, result.Message)
	assert.Zero(t, result.Confidence)
}

func TestRetrievePerEntityRetry(t *testing.T) {
	// 整句召回为空，按实体重试时命中
	vector := &fakeVectorStore{hits: [][]VectorHit{
		nil,
		{{ID: "e1", Score: 0.7, Content: "entity hit"}},
	}}
	agent := newTestAgent(&fakeGraphStore{}, vector, &fakeEmbedder{})

	result := agent.Retrieve(context.Background(), "What is diabetes?")

	require.Equal(t, StatusSuccess, result.Status)
	require.NotEmpty(t, result.Knowledge)
	assert.Equal(t, "entity hit", result.Knowledge[0].Content)
	assert.Greater(t, vector.calls, 1)
}

func TestRetrieveScoreFloor(t *testing.T) {
	vector := &fakeVectorStore{hits: [][]VectorHit{{
		{ID: "v1", Score: 0.4, Content: "below floor"},
	}}}
	agent := NewAgent(&fakeGraphStore{}, vector, &fakeEmbedder{}, NewLexicalAnalyzer(),
		RetrievalOptions{ScoreFloor: 0.5})

	result := agent.Retrieve(context.Background(), "What is diabetes?")
	assert.Empty(t, result.Knowledge)
}

func TestRetrieveDegradesOnEmbeddingFailure(t *testing.T) {
	embedder := &fakeEmbedder{err: errors.New("embedding service down")}
	graph := &fakeGraphStore{records: []GraphRecord{{EntityID: "g1", Content: "graph only"}}}

	agent := newTestAgent(graph, &fakeVectorStore{}, embedder)
	result := agent.Retrieve(context.Background(), "What are the symptoms of diabetes?")

	// 向量路径失败不影响图谱结果
	require.Equal(t, StatusSuccess, result.Status)
	require.Len(t, result.Knowledge, 1)
	assert.Equal(t, SourceGraph, result.Knowledge[0].Source)
	assert.Equal(t, []string{SourceGraph}, result.Sources)
}

func TestRetrieveSkipsUnavailableStores(t *testing.T) {
	vector := &fakeVectorStore{unavailable: true}
	graph := &fakeGraphStore{unavailable: true}

	agent := newTestAgent(graph, vector, &fakeEmbedder{})
	result := agent.Retrieve(context.Background(), "What is diabetes?")

	assert.Equal(t, StatusSuccess, result.Status)
	assert.Empty(t, result.Knowledge)
}

func TestRetrieveGraphQueryParameters(t *testing.T) {
	graph := &fakeGraphStore{}
	agent := newTestAgent(graph, &fakeVectorStore{}, &fakeEmbedder{})

	agent.Retrieve(context.Background(), "How is malaria treated?")

	require.NotNil(t, graph.lastQuery)
	assert.Equal(t, IntentTreatment, graph.lastQuery.Intent)
	assert.Contains(t, graph.lastQuery.Entities, "malaria")
	assert.NotContains(t, graph.lastQuery.Entities, "how")
	assert.NotContains(t, graph.lastQuery.Entities, "is")
}

func TestComputeConfidence(t *testing.T) {
	assert.Zero(t, computeConfidence(nil))

	// 有记录但无分值时取固定低值
	noScores := []RankedRecord{{Content: "a"}, {Content: "b"}}
	assert.InDelta(t, 0.3, computeConfidence(noScores), 1e-9)

	scored := []RankedRecord{
		{Score: 0.9, Scored: true}, {Score: 0.8, Scored: true},
		{Score: 0.7, Scored: true}, {Score: 0.1, Scored: true},
	}
	assert.InDelta(t, (0.9+0.8+0.7)/3, computeConfidence(scored), 1e-9)
}

func TestComputeConfidenceCountsZeroScores(t *testing.T) {
	// 零分是合法分值，计入均值而不是落到无分值的固定低值
	records := []RankedRecord{
		{Score: 0.6, Scored: true}, {Score: 0, Scored: true}, {Score: 0, Scored: true},
	}
	assert.InDelta(t, 0.2, computeConfidence(records), 1e-9)

	allZero := []RankedRecord{{Score: 0, Scored: true}, {Score: 0, Scored: true}}
	assert.Zero(t, computeConfidence(allZero))
}

func TestComputeConfidenceMonotonic(t *testing.T) {
	base := []RankedRecord{{Score: 0.6, Scored: true}, {Score: 0.5, Scored: true}, {Score: 0.4, Scored: true}}
	before := computeConfidence(base)

	// 用更高分记录替换最低分记录不会降低置信度
	improved := []RankedRecord{{Score: 0.9, Scored: true}, {Score: 0.6, Scored: true}, {Score: 0.5, Scored: true}}
	after := computeConfidence(improved)
	assert.GreaterOrEqual(t, after, before)
}

func TestCoarseEntitiesFallback(t *testing.T) {
	agent := newTestAgent(&fakeGraphStore{}, &fakeVectorStore{}, &fakeEmbedder{})

	// 全部是虚词时退化为整句
	entities := agent.coarseEntities("what is it about")
	assert.Equal(t, []string{"what is it about"}, entities)

	entities = agent.coarseEntities("What are the symptoms of diabetes?")
	assert.Equal(t, []string{"symptoms", "diabetes"}, entities)
}
