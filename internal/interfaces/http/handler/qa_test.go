package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medkb-qa-api/internal/application/pipeline"
	"medkb-qa-api/internal/interfaces/http/dto"
)

type fakeProcessor struct {
	mu      sync.Mutex
	calls   int
	result  *pipeline.FinalResponse
	lastQry string
}

func (f *fakeProcessor) Process(_ context.Context, query string) *pipeline.FinalResponse {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls += 1
	f.lastQry = query
	return f.result
}

type fakeCache struct {
	stored map[string][]byte
}

func (f *fakeCache) GetOrLoadSafe(_ context.Context, key string, _ time.Duration, loader func() (interface{}, error)) ([]byte, bool, error) {
	if payload, ok := f.stored[key]; ok {
		return payload, true, nil
	}
	data, err := loader()
	if err != nil {
		return nil, false, err
	}
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, false, err
	}
	if f.stored == nil {
		f.stored = map[string][]byte{}
	}
	f.stored[key] = payload
	return payload, false, nil
}

func newQARouter(h *QAHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/v1/qa/ask", h.Ask)
	return r
}

func doAsk(t *testing.T, r *gin.Engine, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/v1/qa/ask", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAskReturnsPipelineResponse(t *testing.T) {
	proc := &fakeProcessor{result: &pipeline.FinalResponse{
		Response: "Influenza is treated with oseltamivir.",
		Sources:  []string{"graph"},
		Status:   pipeline.StatusSuccess,
	}}
	h := NewQAHandler(proc, nil, 0)

	w := doAsk(t, newQARouter(h), `{"query":"How is the flu treated?"}`)

	require.Equal(t, http.StatusOK, w.Code)
	var resp dto.Response[dto.AskResponse]
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "Influenza is treated with oseltamivir.", resp.Data.Response)
	assert.Equal(t, []string{"graph"}, resp.Data.Sources)
	assert.Equal(t, pipeline.StatusSuccess, resp.Data.Status)
	assert.Equal(t, "How is the flu treated?", proc.lastQry)
}

func TestAskRejectsMissingQuery(t *testing.T) {
	proc := &fakeProcessor{result: &pipeline.FinalResponse{Status: pipeline.StatusSuccess}}
	h := NewQAHandler(proc, nil, 0)

	w := doAsk(t, newQARouter(h), `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, 0, proc.calls)

	w = doAsk(t, newQARouter(h), `{"query":"   "}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, 0, proc.calls)
}

func TestAskCachesAnswerForRepeatedQuery(t *testing.T) {
	proc := &fakeProcessor{result: &pipeline.FinalResponse{
		Response: "Malaria is treated with artemisinin.",
		Sources:  []string{"graph"},
		Status:   pipeline.StatusSuccess,
	}}
	h := NewQAHandler(proc, &fakeCache{}, time.Minute)
	r := newQARouter(h)

	w := doAsk(t, r, `{"query":"How is malaria treated?"}`)
	require.Equal(t, http.StatusOK, w.Code)
	var first dto.Response[dto.AskResponse]
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &first))
	assert.NotContains(t, first.Data.Metadata, "cached")

	// 同一问题的不同大小写与空白归一化到同一个缓存键
	w = doAsk(t, r, `{"query":"  How is MALARIA treated?  "}`)
	require.Equal(t, http.StatusOK, w.Code)
	var second dto.Response[dto.AskResponse]
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &second))

	assert.Equal(t, first.Data.Response, second.Data.Response)
	assert.Equal(t, true, second.Data.Metadata["cached"])
	assert.Equal(t, 1, proc.calls)
}

func TestAskRejectsMalformedJSON(t *testing.T) {
	proc := &fakeProcessor{result: &pipeline.FinalResponse{Status: pipeline.StatusSuccess}}
	h := NewQAHandler(proc, nil, 0)

	w := doAsk(t, newQARouter(h), `{"query":`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
