package pipeline

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestOrchestrator(graph GraphStore, vector VectorStore, embedder TextEmbedder) *Orchestrator {
	analyzer := NewLexicalAnalyzer()
	interpreter := NewInterpreter(analyzer, DefaultVocabulary())
	return NewOrchestrator(
		interpreter,
		NewDecomposer(interpreter),
		NewAgent(graph, vector, embedder, analyzer, RetrievalOptions{}),
		NewRenderer(0),
		Options{},
	)
}

func TestProcessEmptyQuery(t *testing.T) {
	o := newTestOrchestrator(&fakeGraphStore{}, &fakeVectorStore{}, &fakeEmbedder{})

	resp := o.Process(context.Background(), "")
	assert.Equal(t, StatusError, resp.Status)
	assert.True(t, strings.HasPrefix(resp.Response, "Error processing query:"))
	assert.Empty(t, resp.Sources)
}

func TestProcessSimpleQuery(t *testing.T) {
	vector := &fakeVectorStore{hits: [][]VectorHit{{
		{ID: "v1", Score: 0.9, Content: "Diabetes is a chronic metabolic disease."},
	}}}
	o := newTestOrchestrator(&fakeGraphStore{}, vector, &fakeEmbedder{})

	resp := o.Process(context.Background(), "What are the symptoms of diabetes?")
	require.Equal(t, StatusSuccess, resp.Status)
	assert.Contains(t, resp.Response, "Diabetes is a chronic metabolic disease.")
	assert.Equal(t, []string{SourceVector}, resp.Sources)

	assert.Equal(t, "What are the symptoms of diabetes?", resp.Metadata["original_query"])
	interp, ok := resp.Metadata["interpretation"].(*Interpretation)
	require.True(t, ok)
	assert.Equal(t, IntentSymptoms, interp.Intent)
	_, hasSubs := resp.Metadata["sub_questions"]
	assert.False(t, hasSubs)
}

func TestProcessLowConfidenceShortCircuit(t *testing.T) {
	vector := &fakeVectorStore{hits: [][]VectorHit{{
		{ID: "v1", Score: 0.4, Content: "weak answer"},
	}}}
	agentOpts := RetrievalOptions{ScoreFloor: 0.1}
	analyzer := NewLexicalAnalyzer()
	interpreter := NewInterpreter(analyzer, DefaultVocabulary())
	o := NewOrchestrator(
		interpreter,
		NewDecomposer(interpreter),
		NewAgent(&fakeGraphStore{}, vector, &fakeEmbedder{}, analyzer, agentOpts),
		NewRenderer(0),
		Options{},
	)

	resp := o.Process(context.Background(), "What are the symptoms of diabetes?")
	require.Equal(t, StatusSuccess, resp.Status)
	assert.Equal(t, MsgLowConfidence, resp.Response)
	assert.Empty(t, resp.Sources)
}

func TestProcessComplexPreservesOrder(t *testing.T) {
	// 图谱回显实体，检验拼接顺序与子问题顺序一致而非完成顺序
	graph := &fakeGraphStore{echo: true}
	o := newTestOrchestrator(graph, &fakeVectorStore{}, &fakeEmbedder{})

	resp := o.Process(context.Background(), "Compare symptoms of flu vs cold")
	require.Equal(t, StatusSuccess, resp.Status)

	fluIdx := strings.Index(resp.Response, "flu")
	coldIdx := strings.Index(resp.Response, "cold")
	require.GreaterOrEqual(t, fluIdx, 0)
	require.GreaterOrEqual(t, coldIdx, 0)
	assert.Less(t, fluIdx, coldIdx)

	subs, ok := resp.Metadata["sub_questions"].([]string)
	require.True(t, ok)
	assert.Greater(t, len(subs), 1)
	assert.Equal(t, []string{SourceGraph}, resp.Sources)
}

func TestProcessComplexPartialFailure(t *testing.T) {
	// 向量路径全程失败，图谱只对部分子问题给出结果
	graph := &fakeGraphStore{echo: true}
	o := newTestOrchestrator(graph, &fakeVectorStore{unavailable: true}, &fakeEmbedder{})

	resp := o.Process(context.Background(), "What causes fever because of infection?")
	require.Equal(t, StatusSuccess, resp.Status)
	assert.NotEmpty(t, resp.Response)
	assert.NotEqual(t, StatusError, resp.Status)
}

func TestProcessComplexAllEmpty(t *testing.T) {
	o := newTestOrchestrator(&fakeGraphStore{}, &fakeVectorStore{}, &fakeEmbedder{})

	resp := o.Process(context.Background(), "Compare symptoms of flu vs cold")
	require.Equal(t, StatusSuccess, resp.Status)
	assert.True(t, strings.HasPrefix(resp.Response, MsgNotFound))
	assert.Empty(t, resp.Sources)
}

func TestProcessRenderNeverRaises(t *testing.T) {
	// 任意检索状态下 Process 都返回结构良好的响应
	stores := []struct {
		graph  GraphStore
		vector VectorStore
	}{
		{&fakeGraphStore{}, &fakeVectorStore{}},
		{&fakeGraphStore{unavailable: true}, &fakeVectorStore{unavailable: true}},
		{&fakeGraphStore{echo: true}, &fakeVectorStore{}},
	}
	for _, s := range stores {
		o := newTestOrchestrator(s.graph, s.vector, &fakeEmbedder{})
		assert.NotPanics(t, func() {
			resp := o.Process(context.Background(), "When do symptoms of COVID-19 appear?")
			assert.NotNil(t, resp)
			assert.NotEmpty(t, resp.Response)
		})
	}
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "received", StateReceived.String())
	assert.Equal(t, "error", StateError.String())
	assert.Equal(t, "unknown", State(99).String())
}
