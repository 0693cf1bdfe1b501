package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/ssestream"

	"manuscript-assist/internal/config"
	"manuscript-assist/internal/models"
	"manuscript-assist/internal/provider"
)

const userAgent = "manuscript-assist/0.1"

// Provider implements the Provider interface for OpenAI-compatible APIs
// such as Together AI.
type Provider struct {
	name   string
	client openai.Client
	models []models.Model
}

// New creates a new OpenAI provider.
func New(name string, cfg config.ProviderConfig, httpClient *http.Client) (*Provider, error) {
	if httpClient == nil {
		return nil, errors.New("http client must not be nil")
	}

	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		return nil, errors.New("base url must not be empty")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithBaseURL(baseURL + "/"),
		option.WithHTTPClient(httpClient),
		option.WithMaxRetries(0),
		option.WithHeader("User-Agent", userAgent),
	}
	for k, v := range cfg.Headers {
		opts = append(opts, option.WithHeader(k, v))
	}

	modelsList := make([]models.Model, 0, len(cfg.Models))
	for _, model := range cfg.Models {
		modelsList = append(modelsList, models.Model{
			ID:       model.ID,
			Provider: name,
			APIStyle: config.KindOpenAI,
		})
	}

	return &Provider{
		name:   name,
		client: openai.NewClient(opts...),
		models: modelsList,
	}, nil
}

func (p *Provider) Name() string {
	return p.name
}

func (p *Provider) ListModels(ctx context.Context) ([]models.Model, error) {
	result := make([]models.Model, len(p.models))
	copy(result, p.models)
	return result, nil
}

// CreateCompletion opens a streaming chat completion. Transport and API
// errors surface through the returned stream's Err.
func (p *Provider) CreateCompletion(ctx context.Context, req models.CompletionRequest) (provider.Stream, error) {
	if strings.TrimSpace(req.UserPrompt) == "" {
		return nil, errors.New("user prompt must not be empty")
	}

	stream := p.client.Chat.Completions.NewStreaming(ctx, buildParams(req))
	return &chunkStream{inner: stream}, nil
}

func buildParams(req models.CompletionRequest) openai.ChatCompletionNewParams {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, 2)
	if req.SystemPrompt != "" {
		messages = append(messages, openai.SystemMessage(req.SystemPrompt))
	}
	messages = append(messages, openai.UserMessage(req.UserPrompt))

	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(req.Model),
		Messages:    messages,
		Temperature: openai.Float(req.Temperature),
		StreamOptions: openai.ChatCompletionStreamOptionsParam{
			IncludeUsage: openai.Bool(true),
		},
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}
	if req.Structured() {
		name := req.SchemaName
		if name == "" {
			name = "response"
		}
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
				JSONSchema: openai.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:   name,
					Schema: req.ResponseSchema,
					Strict: openai.Bool(true),
				},
			},
		}
	}
	return params
}

type chunkStream struct {
	inner *ssestream.Stream[openai.ChatCompletionChunk]
	cur   models.Chunk
}

func (s *chunkStream) Next() bool {
	if !s.inner.Next() {
		return false
	}

	c := s.inner.Current()
	s.cur = models.Chunk{}
	if len(c.Choices) > 0 {
		s.cur.Delta = c.Choices[0].Delta.Content
		s.cur.FinishReason = c.Choices[0].FinishReason
	}
	if c.Usage.TotalTokens > 0 || c.Usage.PromptTokens > 0 || c.Usage.CompletionTokens > 0 {
		s.cur.Usage = &models.Usage{
			PromptTokens:     int(c.Usage.PromptTokens),
			CompletionTokens: int(c.Usage.CompletionTokens),
			TotalTokens:      int(c.Usage.TotalTokens),
		}
	}
	return true
}

func (s *chunkStream) Current() models.Chunk {
	return s.cur
}

func (s *chunkStream) Err() error {
	err := s.inner.Err()
	if err == nil {
		return nil
	}

	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return fmt.Errorf("openai error (status %d): %w", apiErr.StatusCode, err)
	}
	return fmt.Errorf("openai stream: %w", err)
}

func (s *chunkStream) Close() error {
	return s.inner.Close()
}
