package pipeline

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRenderErrorStatus(t *testing.T) {
	r := NewRenderer(0)

	out := r.Render(&RetrievalResult{Status: StatusError, ErrorDetail: "store timeout"})
	assert.Contains(t, out, "store timeout")

	// nil 输入不触发 panic
	out = r.Render(nil)
	assert.NotEmpty(t, out)
}

func TestRenderNotFound(t *testing.T) {
	r := NewRenderer(0)

	out := r.Render(&RetrievalResult{
		Status:    StatusSuccess,
		Knowledge: []RankedRecord{},
		Message:   MsgRephrase,
	})
	assert.Equal(t, MsgNotFound, out)
}

func TestRenderPlainText(t *testing.T) {
	r := NewRenderer(0)

	result := &RetrievalResult{
		Status: StatusSuccess,
		Knowledge: []RankedRecord{
			{Source: SourceVector, Content: "Diabetes is a chronic metabolic disease.", Score: 0.9},
		},
		Sources:    []string{SourceVector},
		Confidence: 0.9,
	}
	out := r.Render(result)
	assert.True(t, strings.HasPrefix(out, "Diabetes is a chronic metabolic disease."))
	assert.Contains(t, out, "\n\nSources:\n- vector")
	assert.NotContains(t, out, "Note: I'm not entirely confident")
}

func TestRenderAdditionally(t *testing.T) {
	r := NewRenderer(0)

	result := &RetrievalResult{
		Status: StatusSuccess,
		Knowledge: []RankedRecord{
			{Content: "Primary answer about diabetes.", Score: 0.9},
			{Content: "Supplementary detail that is clearly long enough.", Score: 0.8},
		},
		Confidence: 0.9,
	}
	out := r.Render(result)
	assert.Contains(t, out, "\n\nAdditionally: Supplementary detail that is clearly long enough.")

	// 过短或重复的第二条不追加
	result.Knowledge[1].Content = "short"
	out = r.Render(result)
	assert.NotContains(t, out, "Additionally")
}

func TestRenderStructuredFact(t *testing.T) {
	r := NewRenderer(0)

	content := EncodeFact(&DiseaseFact{
		Disease:     "Diabetes",
		Description: "A chronic disease affecting blood sugar regulation.",
		Treatments: []TreatmentFact{
			{Name: "Insulin", Description: "Hormone therapy to regulate blood sugar."},
			{Name: "Metformin", Description: "First-line oral medication."},
		},
	}, "")

	result := &RetrievalResult{
		Status:     StatusSuccess,
		Knowledge:  []RankedRecord{{Source: SourceGraph, Content: content, Score: 0.8}},
		Sources:    []string{SourceGraph},
		Confidence: 0.8,
	}
	out := r.Render(result)
	assert.Contains(t, out, "Diabetes: A chronic disease affecting blood sugar regulation.")
	assert.Contains(t, out, "\n- Insulin: Hormone therapy to regulate blood sugar.")
	assert.Contains(t, out, "\n- Metformin: First-line oral medication.")
}

func TestRenderMalformedFactDegrades(t *testing.T) {
	r := NewRenderer(0)

	result := &RetrievalResult{
		Status:     StatusSuccess,
		Knowledge:  []RankedRecord{{Content: "@@fact:{not valid json", Score: 0.8}},
		Confidence: 0.8,
	}
	out := r.Render(result)
	assert.Contains(t, out, "@@fact:{not valid json")
}

func TestRenderLowConfidenceDisclaimer(t *testing.T) {
	r := NewRenderer(0)

	result := &RetrievalResult{
		Status:     StatusSuccess,
		Knowledge:  []RankedRecord{{Content: "Some answer.", Score: 0.4}},
		Confidence: 0.4,
	}
	out := r.Render(result)
	assert.True(t, strings.HasSuffix(out, MsgDisclaimer))
}

func TestRenderNeverPanics(t *testing.T) {
	r := NewRenderer(0)

	inputs := []*RetrievalResult{
		nil,
		{},
		{Status: StatusError},
		{Status: StatusSuccess},
		{Status: "bogus", Knowledge: []RankedRecord{{Content: ""}}},
		{Status: StatusSuccess, Knowledge: []RankedRecord{{Content: "@@fact:"}}},
	}
	for _, in := range inputs {
		assert.NotPanics(t, func() { _ = r.Render(in) })
	}
}
