// Package mock provides a deterministic local provider for development and tests.
package mock

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"manuscript-assist/internal/models"
	"manuscript-assist/internal/provider"
	"manuscript-assist/internal/tokens"
)

const defaultChunkSize = 16

// Response scripts one completion call. CreateErr fails the call outright;
// otherwise Chunks are streamed in order and StreamErr, when set, is
// reported after the last chunk.
type Response struct {
	Chunks    []models.Chunk
	StreamErr error
	CreateErr error
}

// Provider implements provider.Provider without network access. Scripted
// responses are consumed per model in order; once a model's script is
// exhausted the provider falls back to its generator.
type Provider struct {
	name      string
	models    []string
	chunkSize int

	mu       sync.Mutex
	scripts  map[string][]Response
	generate func(req models.CompletionRequest) Response

	// Calls tracks all requests for assertions.
	Calls []models.CompletionRequest
}

// New constructs a mock provider serving the given model IDs.
func New(name string, modelIDs ...string) *Provider {
	p := &Provider{
		name:      name,
		models:    modelIDs,
		chunkSize: defaultChunkSize,
		scripts:   make(map[string][]Response),
	}
	p.generate = p.echo
	return p
}

// WithResponses queues scripted responses for a model.
func (p *Provider) WithResponses(model string, responses ...Response) *Provider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.scripts[model] = append(p.scripts[model], responses...)
	return p
}

// WithGenerator replaces the default echo generator.
func (p *Provider) WithGenerator(fn func(req models.CompletionRequest) Response) *Provider {
	p.generate = fn
	return p
}

// WithChunkSize sets the delta size used by the echo generator.
func (p *Provider) WithChunkSize(n int) *Provider {
	if n > 0 {
		p.chunkSize = n
	}
	return p
}

// Name implements provider.Provider.
func (p *Provider) Name() string {
	return p.name
}

// ListModels implements provider.Provider.
func (p *Provider) ListModels(context.Context) ([]models.Model, error) {
	out := make([]models.Model, 0, len(p.models))
	for _, id := range p.models {
		out = append(out, models.Model{ID: id, Provider: p.name, APIStyle: "mock"})
	}
	return out, nil
}

// CreateCompletion implements provider.Provider.
func (p *Provider) CreateCompletion(ctx context.Context, req models.CompletionRequest) (provider.Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.Calls = append(p.Calls, req)
	var resp Response
	if queue := p.scripts[req.Model]; len(queue) > 0 {
		resp = queue[0]
		p.scripts[req.Model] = queue[1:]
	} else {
		resp = p.generate(req)
	}
	p.mu.Unlock()

	if resp.CreateErr != nil {
		return nil, resp.CreateErr
	}
	return NewStream(ctx, resp.Chunks, resp.StreamErr), nil
}

// CallCount returns the number of completion calls made.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Calls)
}

// CallsFor returns the requests issued for one model.
func (p *Provider) CallsFor(model string) []models.CompletionRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []models.CompletionRequest
	for _, c := range p.Calls {
		if c.Model == model {
			out = append(out, c)
		}
	}
	return out
}

// echo rewrites nothing: structured requests get one fragment per input
// paragraph, freeform requests get a short reasoning block followed by the
// user prompt.
func (p *Provider) echo(req models.CompletionRequest) Response {
	var body string
	if req.Structured() {
		body = fragmentsFor(req.UserPrompt)
	} else {
		body = "<think>mock reasoning</think>\n" + req.UserPrompt
	}

	chunks := TextChunks(body, p.chunkSize)
	chunks = append(chunks,
		models.Chunk{FinishReason: models.FinishStop},
		models.Chunk{Usage: &models.Usage{
			PromptTokens:     tokens.HeuristicCount(req.SystemPrompt + " " + req.UserPrompt),
			CompletionTokens: tokens.HeuristicCount(body),
		}},
	)
	return Response{Chunks: chunks}
}

type fragment struct {
	FragmentIndex   int      `json:"fragmentIndex"`
	FragmentContent string   `json:"fragmentContent"`
	SourceFragments []string `json:"sourceFragments"`
}

func fragmentsFor(userPrompt string) string {
	text := strings.TrimSuffix(strings.TrimPrefix(userPrompt, "<originalText>"), "</originalText>")
	var out struct {
		Fragments []fragment `json:"fragments"`
	}
	for i, para := range strings.Split(text, "\n\n") {
		out.Fragments = append(out.Fragments, fragment{
			FragmentIndex:   i + 1,
			FragmentContent: para,
			SourceFragments: []string{para},
		})
	}
	raw, _ := json.Marshal(out)
	return string(raw)
}

// TextChunks splits text into delta chunks of at most size bytes, keeping
// multi-byte runes intact.
func TextChunks(text string, size int) []models.Chunk {
	if size <= 0 {
		size = defaultChunkSize
	}
	var chunks []models.Chunk
	var current strings.Builder
	for _, r := range text {
		if current.Len() > 0 && current.Len()+len(string(r)) > size {
			chunks = append(chunks, models.Chunk{Delta: current.String()})
			current.Reset()
		}
		current.WriteRune(r)
	}
	if current.Len() > 0 {
		chunks = append(chunks, models.Chunk{Delta: current.String()})
	}
	return chunks
}
