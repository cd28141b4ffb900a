package pipeline

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDecomposer() *Decomposer {
	return NewDecomposer(newTestInterpreter())
}

func TestDecomposeSimple(t *testing.T) {
	d := newTestDecomposer()

	result := d.Decompose(context.Background(), "What are the symptoms of diabetes?")
	assert.False(t, result.IsComplex)
	require.Len(t, result.SubQuestions, 1)
	assert.Equal(t, "What are the symptoms of diabetes?", result.SubQuestions[0])
}

func TestDecomposeComparative(t *testing.T) {
	d := newTestDecomposer()

	result := d.Decompose(context.Background(), "Compare symptoms of flu vs cold")
	assert.True(t, result.IsComplex)
	assert.Greater(t, len(result.SubQuestions), 1)
	assert.Contains(t, result.SubQuestions, "What are the symptoms of flu?")
	assert.Contains(t, result.SubQuestions, "What are the symptoms of cold?")
}

func TestDecomposeCausal(t *testing.T) {
	d := newTestDecomposer()

	result := d.Decompose(context.Background(), "What causes fever because of infection?")
	assert.True(t, result.IsComplex)
	assert.Equal(t, []string{
		"What causes fever?",
		"What is the relationship between fever and infection?",
	}, result.SubQuestions)
}

func TestDecomposeTemporal(t *testing.T) {
	d := newTestDecomposer()

	result := d.Decompose(context.Background(), "When do symptoms of COVID-19 appear?")
	assert.True(t, result.IsComplex)
	assert.Greater(t, len(result.SubQuestions), 1)

	var hasSymptoms, hasTimeline bool
	for _, q := range result.SubQuestions {
		if strings.Contains(q, "symptoms of COVID-19") {
			hasSymptoms = true
		}
		if strings.Contains(q, "timeline") {
			hasTimeline = true
		}
	}
	assert.True(t, hasSymptoms)
	assert.True(t, hasTimeline)
}

func TestDecomposeMultiPart(t *testing.T) {
	d := newTestDecomposer()

	result := d.Decompose(context.Background(), "What are the symptoms, causes, and treatments of pneumonia?")
	assert.True(t, result.IsComplex)
	assert.GreaterOrEqual(t, len(result.SubQuestions), 3)

	joined := strings.Join(result.SubQuestions, " ")
	assert.Contains(t, joined, "symptoms")
	assert.Contains(t, joined, "causes")
	assert.Contains(t, joined, "treatments")
	assert.Contains(t, joined, "pneumonia")
}

func TestDecomposeEmpty(t *testing.T) {
	d := newTestDecomposer()

	result := d.Decompose(context.Background(), "")
	assert.False(t, result.IsComplex)
	assert.Empty(t, result.SubQuestions)

	result = d.Decompose(context.Background(), "   ")
	assert.False(t, result.IsComplex)
	assert.Empty(t, result.SubQuestions)
}

func TestDecomposeFallbackToOriginal(t *testing.T) {
	d := newTestDecomposer()

	// 无已知实体的查询不可分解，整句作为唯一子问题
	query := "Tell me something interesting"
	result := d.Decompose(context.Background(), query)
	assert.False(t, result.IsComplex)
	assert.Equal(t, []string{query}, result.SubQuestions)
}

func TestDecomposeComplexFlagConsistency(t *testing.T) {
	d := newTestDecomposer()

	queries := []string{
		"What are the symptoms of diabetes?",
		"Compare symptoms of flu vs cold",
		"What causes fever because of infection?",
		"When do symptoms of COVID-19 appear?",
		"What are the symptoms, causes, and treatments of pneumonia?",
	}
	for _, q := range queries {
		result := d.Decompose(context.Background(), q)
		if result.IsComplex {
			assert.Greater(t, len(result.SubQuestions), 1, q)
		} else {
			assert.Len(t, result.SubQuestions, 1, q)
		}
	}
}
