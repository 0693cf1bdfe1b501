package mock_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"manuscript-assist/internal/models"
	"manuscript-assist/internal/provider"
	"manuscript-assist/internal/provider/mock"
)

func drain(t *testing.T, s provider.Stream) ([]models.Chunk, error) {
	t.Helper()
	defer s.Close()
	var out []models.Chunk
	for s.Next() {
		out = append(out, s.Current())
	}
	return out, s.Err()
}

func TestProvider_ScriptedResponsesInOrder(t *testing.T) {
	boom := errors.New("boom")
	p := mock.New("mock", "m").WithResponses("m",
		mock.Response{CreateErr: boom},
		mock.Response{Chunks: mock.TextChunks("hello", 2), StreamErr: boom},
	)
	ctx := context.Background()

	_, err := p.CreateCompletion(ctx, models.CompletionRequest{Model: "m", UserPrompt: "x"})
	assert.ErrorIs(t, err, boom)

	s, err := p.CreateCompletion(ctx, models.CompletionRequest{Model: "m", UserPrompt: "x"})
	require.NoError(t, err)
	chunks, err := drain(t, s)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []models.Chunk{{Delta: "he"}, {Delta: "ll"}, {Delta: "o"}}, chunks)

	assert.Equal(t, 2, p.CallCount())
	assert.Len(t, p.CallsFor("m"), 2)
	assert.Empty(t, p.CallsFor("other"))
}

func TestProvider_EchoStructured(t *testing.T) {
	p := mock.New("mock", "m").WithChunkSize(7)
	s, err := p.CreateCompletion(context.Background(), models.CompletionRequest{
		Model:          "m",
		UserPrompt:     "<originalText>one\n\ntwo</originalText>",
		ResponseSchema: map[string]any{"type": "object"},
	})
	require.NoError(t, err)

	chunks, err := drain(t, s)
	require.NoError(t, err)

	var body strings.Builder
	var finish string
	var usage *models.Usage
	for _, c := range chunks {
		body.WriteString(c.Delta)
		if c.FinishReason != "" {
			finish = c.FinishReason
		}
		if c.Usage != nil {
			usage = c.Usage
		}
	}
	assert.Equal(t, models.FinishStop, finish)
	require.NotNil(t, usage)
	assert.Positive(t, usage.CompletionTokens)

	var envelope struct {
		Fragments []struct {
			FragmentIndex   int      `json:"fragmentIndex"`
			FragmentContent string   `json:"fragmentContent"`
			SourceFragments []string `json:"sourceFragments"`
		} `json:"fragments"`
	}
	require.NoError(t, json.Unmarshal([]byte(body.String()), &envelope))
	require.Len(t, envelope.Fragments, 2)
	assert.Equal(t, "two", envelope.Fragments[1].FragmentContent)
	assert.Equal(t, []string{"two"}, envelope.Fragments[1].SourceFragments)
}

func TestProvider_EchoFreeformHasReasoning(t *testing.T) {
	p := mock.New("mock", "m")
	s, err := p.CreateCompletion(context.Background(), models.CompletionRequest{Model: "m", UserPrompt: "plain"})
	require.NoError(t, err)

	chunks, err := drain(t, s)
	require.NoError(t, err)
	var body strings.Builder
	for _, c := range chunks {
		body.WriteString(c.Delta)
	}
	assert.True(t, strings.HasPrefix(body.String(), "<think>"))
	assert.True(t, strings.HasSuffix(body.String(), "plain"))
}

func TestProvider_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := mock.New("mock", "m").CreateCompletion(ctx, models.CompletionRequest{Model: "m"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTextChunks_KeepsRunes(t *testing.T) {
	chunks := mock.TextChunks("héllo", 2)
	var joined strings.Builder
	for _, c := range chunks {
		joined.WriteString(c.Delta)
		assert.True(t, len(c.Delta) <= 2 || len([]rune(c.Delta)) == 1)
	}
	assert.Equal(t, "héllo", joined.String())
}
