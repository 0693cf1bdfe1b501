package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"manuscript-assist/internal/assist"
	"manuscript-assist/internal/config"
)

const mockConfig = `
server:
  port: 8080
providers:
  local:
    kind: mock
    models:
      - id: local-structured
      - id: local-text
features:
  rephrase:
    - name: local-structured
      format: json
      temperature: 0.4
  expand:
    - name: missing-model
      format: text
    - name: local-text
      format: text
      temperature: 0.7
fallback:
  - name: local-text
`

func TestSplitParagraphs(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"one", []string{"one"}},
		{"one\n\ntwo", []string{"one", "two"}},
		{"one\nstill one\n\n\n two \r\n\r\nthree\n", []string{"one\nstill one", "two", "three"}},
		{"  \n\n ", nil},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, splitParagraphs(tt.in), "%q", tt.in)
	}
}

func TestExecute_UnknownCommand(t *testing.T) {
	err := Execute(context.Background(), []string{"bogus"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bogus")
}

func TestProcess_RequiresConfig(t *testing.T) {
	err := Execute(context.Background(), []string{"process", "--feature", "expand"})
	assert.EqualError(t, err, "process command requires --config <path>")
}

func wireMock(t *testing.T) *app {
	t.Helper()
	cfg, err := config.Parse([]byte(mockConfig), false)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	a, err := wire(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(a.close)
	return a
}

func TestRunProcess_WritesNDJSON(t *testing.T) {
	a := wireMock(t)

	var out bytes.Buffer
	err := runProcess(context.Background(), a.service, assist.Request{
		Feature: "rephrase",
		Text:    splitParagraphs("first paragraph\n\nsecond paragraph"),
	}, "dana", &out)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)
	var last map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[2]), &last))
	assert.Equal(t, true, last["done"])
}

func TestRunProcess_FallsPastUnroutableModel(t *testing.T) {
	a := wireMock(t)

	var out bytes.Buffer
	err := runProcess(context.Background(), a.service, assist.Request{Feature: "expand", Text: []string{"seed"}}, "dana", &out)
	require.NoError(t, err)

	var text strings.Builder
	dec := json.NewDecoder(&out)
	var done bool
	for dec.More() {
		var ev struct {
			TextDelta string `json:"textDelta"`
			Done      bool   `json:"done"`
		}
		require.NoError(t, dec.Decode(&ev))
		text.WriteString(ev.TextDelta)
		done = done || ev.Done
	}
	assert.Contains(t, text.String(), "seed")
	assert.True(t, done)
}

func TestRunProcess_InvalidRequest(t *testing.T) {
	a := wireMock(t)

	var out bytes.Buffer
	err := runProcess(context.Background(), a.service, assist.Request{Feature: "expand"}, "dana", &out)
	assert.ErrorIs(t, err, assist.ErrInvalidRequest)
	assert.Empty(t, out.String())
}
