package claude

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"manuscript-assist/internal/config"
	"manuscript-assist/internal/models"
	"manuscript-assist/internal/provider"
)

func writeEvents(w io.Writer, events ...string) {
	for _, ev := range events {
		var probe struct {
			Type string `json:"type"`
		}
		_ = json.Unmarshal([]byte(ev), &probe)
		fmt.Fprintf(w, "event: %s\ndata: %s\n\n", probe.Type, ev)
	}
}

func newTestProvider(t *testing.T, handler http.HandlerFunc) *Provider {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)

	p, err := New("anthropic", config.ProviderConfig{
		APIKey:  "secret",
		BaseURL: ts.URL,
		Models:  []config.ModelConfig{{ID: "claude-sonnet"}},
	}, ts.Client())
	require.NoError(t, err)
	return p
}

func collect(t *testing.T, s provider.Stream) ([]models.Chunk, error) {
	t.Helper()
	defer s.Close()
	var out []models.Chunk
	for s.Next() {
		out = append(out, s.Current())
	}
	return out, s.Err()
}

func TestCreateCompletion_StreamsMessages(t *testing.T) {
	var payload messagePayload
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("x-api-key"))
		assert.Equal(t, apiVersion, r.Header.Get("anthropic-version"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))

		w.Header().Set("Content-Type", contentTypeSSE)
		writeEvents(w,
			`{"type":"message_start","message":{"usage":{"input_tokens":10,"output_tokens":1}}}`,
			`{"type":"content_block_start","index":0,"content_block":{"type":"text","text":""}}`,
			`{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"Hello"}}`,
			`{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":" there"}}`,
			`{"type":"message_delta","delta":{"stop_reason":"end_turn"},"usage":{"output_tokens":3}}`,
			`{"type":"message_stop"}`,
		)
	})

	stream, err := p.CreateCompletion(context.Background(), models.CompletionRequest{
		Model:        "claude-sonnet",
		SystemPrompt: "sys",
		UserPrompt:   "hi",
		Temperature:  1.4,
	})
	require.NoError(t, err)

	chunks, err := collect(t, stream)
	require.NoError(t, err)
	require.Len(t, chunks, 4)
	assert.Equal(t, "Hello", chunks[0].Delta)
	assert.Equal(t, " there", chunks[1].Delta)
	assert.Equal(t, models.FinishStop, chunks[2].FinishReason)
	require.NotNil(t, chunks[3].Usage)
	assert.Equal(t, models.Usage{PromptTokens: 10, CompletionTokens: 3, TotalTokens: 13}, *chunks[3].Usage)

	assert.True(t, payload.Stream)
	assert.Equal(t, "sys", payload.System)
	assert.Equal(t, defaultMaxTokens, payload.MaxTokens)
	require.NotNil(t, payload.Temperature)
	assert.Equal(t, 1.0, *payload.Temperature)
}

func TestCreateCompletion_MaxTokensMapsToLength(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		writeEvents(w,
			`{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"cut"}}`,
			`{"type":"message_delta","delta":{"stop_reason":"max_tokens"},"usage":{"output_tokens":1}}`,
			`{"type":"message_stop"}`,
		)
	})

	stream, err := p.CreateCompletion(context.Background(), models.CompletionRequest{Model: "claude-sonnet", UserPrompt: "hi", MaxTokens: 1})
	require.NoError(t, err)
	chunks, err := collect(t, stream)
	require.NoError(t, err)
	assert.Equal(t, models.FinishLength, chunks[1].FinishReason)
}

func TestCreateCompletion_TruncatedStream(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		writeEvents(w, `{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"par"}}`)
	})

	stream, err := p.CreateCompletion(context.Background(), models.CompletionRequest{Model: "claude-sonnet", UserPrompt: "hi"})
	require.NoError(t, err)
	chunks, err := collect(t, stream)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	assert.Len(t, chunks, 1)
}

func TestCreateCompletion_StreamErrorEvent(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		writeEvents(w, `{"type":"error","error":{"type":"overloaded_error","message":"Overloaded"}}`)
	})

	stream, err := p.CreateCompletion(context.Background(), models.CompletionRequest{Model: "claude-sonnet", UserPrompt: "hi"})
	require.NoError(t, err)
	_, err = collect(t, stream)
	assert.ErrorContains(t, err, "overloaded_error")
}

func TestCreateCompletion_APIError(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"type":"error","error":{"type":"authentication_error","message":"invalid x-api-key"}}`)
	})

	_, err := p.CreateCompletion(context.Background(), models.CompletionRequest{Model: "claude-sonnet", UserPrompt: "hi"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid x-api-key")
}

func TestCreateCompletion_RejectsStructured(t *testing.T) {
	p := newTestProvider(t, func(http.ResponseWriter, *http.Request) {
		t.Fatal("no request expected")
	})

	_, err := p.CreateCompletion(context.Background(), models.CompletionRequest{
		Model:          "claude-sonnet",
		UserPrompt:     "hi",
		ResponseSchema: map[string]any{"type": "object"},
	})
	assert.ErrorIs(t, err, provider.ErrUnsupportedOperation)
}

func TestParseAPIError_PlainBody(t *testing.T) {
	resp := &http.Response{StatusCode: http.StatusBadGateway, Body: io.NopCloser(strings.NewReader(" bad gateway "))}
	assert.EqualError(t, parseAPIError(resp), "upstream error status 502: bad gateway")
}
