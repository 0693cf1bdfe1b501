package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"manuscript-assist/internal/config"
	"manuscript-assist/internal/models"
)

func sseChunk(w io.Writer, payload string) {
	fmt.Fprintf(w, "data: %s\n\n", payload)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}

func newTestProvider(t *testing.T, handler http.HandlerFunc) *Provider {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)

	p, err := New("together", config.ProviderConfig{
		APIKey:  "secret",
		BaseURL: ts.URL,
		Models:  []config.ModelConfig{{ID: "Qwen/Qwen3"}},
		Headers: config.Headers{"X-Team": "editors"},
	}, ts.Client())
	require.NoError(t, err)
	return p
}

func TestCreateCompletion_StreamsChunksAndUsage(t *testing.T) {
	var body map[string]any
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, "editors", r.Header.Get("X-Team"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		w.Header().Set("Content-Type", "text/event-stream")
		sseChunk(w, `{"id":"c1","object":"chat.completion.chunk","created":1,"model":"Qwen/Qwen3","choices":[{"index":0,"delta":{"content":"Hel"},"finish_reason":null}]}`)
		sseChunk(w, `{"id":"c1","object":"chat.completion.chunk","created":1,"model":"Qwen/Qwen3","choices":[{"index":0,"delta":{"content":"lo"},"finish_reason":"stop"}]}`)
		sseChunk(w, `{"id":"c1","object":"chat.completion.chunk","created":1,"model":"Qwen/Qwen3","choices":[],"usage":{"prompt_tokens":12,"completion_tokens":2,"total_tokens":14}}`)
		sseChunk(w, `[DONE]`)
	})

	stream, err := p.CreateCompletion(context.Background(), models.CompletionRequest{
		Model:        "Qwen/Qwen3",
		SystemPrompt: "be brief",
		UserPrompt:   "hi",
		Temperature:  0.41,
		MaxTokens:    256,
	})
	require.NoError(t, err)
	defer stream.Close()

	var chunks []models.Chunk
	for stream.Next() {
		chunks = append(chunks, stream.Current())
	}
	require.NoError(t, stream.Err())

	require.Len(t, chunks, 3)
	assert.Equal(t, "Hel", chunks[0].Delta)
	assert.Equal(t, "lo", chunks[1].Delta)
	assert.Equal(t, models.FinishStop, chunks[1].FinishReason)
	require.NotNil(t, chunks[2].Usage)
	assert.Equal(t, models.Usage{PromptTokens: 12, CompletionTokens: 2, TotalTokens: 14}, *chunks[2].Usage)

	assert.Equal(t, "Qwen/Qwen3", body["model"])
	assert.Equal(t, true, body["stream"])
	assert.EqualValues(t, 256, body["max_tokens"])
	assert.Equal(t, map[string]any{"include_usage": true}, body["stream_options"])
	assert.Nil(t, body["response_format"])
	messages, ok := body["messages"].([]any)
	require.True(t, ok)
	assert.Len(t, messages, 2)
}

func TestCreateCompletion_StructuredUsesJSONSchema(t *testing.T) {
	var body map[string]any
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Header().Set("Content-Type", "text/event-stream")
		sseChunk(w, `[DONE]`)
	})

	stream, err := p.CreateCompletion(context.Background(), models.CompletionRequest{
		Model:          "Qwen/Qwen3",
		UserPrompt:     "hi",
		ResponseSchema: map[string]any{"type": "object"},
		SchemaName:     "rephrased_fragments",
	})
	require.NoError(t, err)
	for stream.Next() {
	}
	require.NoError(t, stream.Err())
	require.NoError(t, stream.Close())

	format, ok := body["response_format"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "json_schema", format["type"])
	schema, ok := format["json_schema"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "rephrased_fragments", schema["name"])
	assert.Equal(t, true, schema["strict"])
	assert.Equal(t, map[string]any{"type": "object"}, schema["schema"])
}

func TestCreateCompletion_HTTPErrorSurfacesThroughStream(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = io.WriteString(w, `{"error":{"message":"slow down","type":"rate_limit"}}`)
	})

	stream, err := p.CreateCompletion(context.Background(), models.CompletionRequest{Model: "Qwen/Qwen3", UserPrompt: "hi"})
	require.NoError(t, err)
	defer stream.Close()

	assert.False(t, stream.Next())
	require.Error(t, stream.Err())
	assert.Contains(t, stream.Err().Error(), "status 429")
}

func TestCreateCompletion_RejectsEmptyPrompt(t *testing.T) {
	p := newTestProvider(t, func(http.ResponseWriter, *http.Request) {
		t.Fatal("no request expected")
	})

	_, err := p.CreateCompletion(context.Background(), models.CompletionRequest{Model: "Qwen/Qwen3", UserPrompt: "  "})
	assert.Error(t, err)
}

func TestNew_Validation(t *testing.T) {
	_, err := New("x", config.ProviderConfig{BaseURL: "http://localhost"}, nil)
	assert.Error(t, err)

	_, err = New("x", config.ProviderConfig{}, http.DefaultClient)
	assert.Error(t, err)

	p, err := New("x", config.ProviderConfig{BaseURL: "http://localhost/", Models: []config.ModelConfig{{ID: "a"}}}, http.DefaultClient)
	require.NoError(t, err)
	list, err := p.ListModels(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []models.Model{{ID: "a", Provider: "x", APIStyle: config.KindOpenAI}}, list)
}
