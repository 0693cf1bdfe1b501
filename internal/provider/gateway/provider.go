// Package gateway serves models from one endpoint that speaks more than one
// wire protocol, choosing the adapter per model.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"manuscript-assist/internal/config"
	"manuscript-assist/internal/models"
	"manuscript-assist/internal/provider"
	claudeProvider "manuscript-assist/internal/provider/claude"
	openaiProvider "manuscript-assist/internal/provider/openai"
)

// Provider routes each model to the OpenAI-compatible or Claude adapter
// configured by its api_style.
type Provider struct {
	name     string
	models   []models.Model
	adapters map[string]provider.Provider
}

// New constructs a provider that delegates to protocol-specific adapters.
func New(name string, cfg config.ProviderConfig, client *http.Client) (*Provider, error) {
	if client == nil {
		return nil, errors.New("http client must not be nil")
	}

	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		return nil, errors.New("base url must not be empty")
	}

	var (
		openaiModels []config.ModelConfig
		claudeModels []config.ModelConfig
		allModels    []models.Model
		styles       = make(map[string]string)
	)

	for _, model := range cfg.Models {
		style := strings.TrimSpace(strings.ToLower(model.APIStyle))
		switch style {
		case config.KindOpenAI:
			openaiModels = append(openaiModels, model)
		case config.KindClaude:
			claudeModels = append(claudeModels, model)
		default:
			return nil, fmt.Errorf("model %s: unsupported api_style %q", model.ID, model.APIStyle)
		}

		allModels = append(allModels, models.Model{
			ID:       model.ID,
			Provider: name,
			APIStyle: style,
		})
		styles[model.ID] = style
	}

	adapters := make(map[string]provider.Provider, len(styles))

	if len(openaiModels) > 0 {
		openaiCfg := cfg
		openaiCfg.BaseURL = baseURL
		openaiCfg.Models = openaiModels

		adapter, err := openaiProvider.New(name, openaiCfg, client)
		if err != nil {
			return nil, fmt.Errorf("initialize openai adapter: %w", err)
		}
		for _, m := range openaiModels {
			adapters[m.ID] = adapter
		}
	}

	if len(claudeModels) > 0 {
		claudeCfg := cfg
		claudeCfg.BaseURL = baseURL
		claudeCfg.Models = claudeModels

		adapter, err := claudeProvider.New(name, claudeCfg, client)
		if err != nil {
			return nil, fmt.Errorf("initialize claude adapter: %w", err)
		}
		for _, m := range claudeModels {
			adapters[m.ID] = adapter
		}
	}

	return &Provider{
		name:     name,
		models:   allModels,
		adapters: adapters,
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

// CreateCompletion implements provider.Provider.
func (p *Provider) CreateCompletion(ctx context.Context, req models.CompletionRequest) (provider.Stream, error) {
	adapter, ok := p.adapters[req.Model]
	if !ok {
		return nil, fmt.Errorf("%w: %s", provider.ErrUnknownModel, req.Model)
	}
	return adapter.CreateCompletion(ctx, req)
}
