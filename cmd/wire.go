package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"manuscript-assist/internal/assist"
	"manuscript-assist/internal/config"
	"manuscript-assist/internal/models"
	"manuscript-assist/internal/orchestrator"
	"manuscript-assist/internal/prompt"
	"manuscript-assist/internal/provider"
	providerfactory "manuscript-assist/internal/provider/factory"
	"manuscript-assist/internal/router"
	"manuscript-assist/internal/tokens"
	"manuscript-assist/internal/usage"
)

type app struct {
	service  *assist.Service
	recorder *usage.Recorder
}

// wire builds the request pipeline from configuration.
func wire(ctx context.Context, cfg config.Config) (*app, error) {
	registry := provider.NewRegistry()
	if err := providerfactory.RegisterConfiguredProviders(ctx, cfg, registry); err != nil {
		return nil, err
	}

	selector := newSelector(cfg)
	warnUnroutable(registry, selector)

	ledger, err := usage.Open(cfg.Usage.Driver, cfg.Usage.DSN)
	if err != nil {
		return nil, fmt.Errorf("open usage ledger: %w", err)
	}
	recorder := usage.NewRecorder(ledger, time.Duration(cfg.Usage.TimeoutSeconds)*time.Second)

	builder := prompt.NewBuilder()
	runner := orchestrator.New(router.New(registry), tokens.NewEstimator(cfg.Tokenizer.Encoding), builder)

	return &app{
		service:  assist.NewService(builder, selector, runner, recorder),
		recorder: recorder,
	}, nil
}

func (a *app) close() {
	if err := a.recorder.Close(); err != nil {
		slog.Warn("close usage ledger", "err", err)
	}
}

func newSelector(cfg config.Config) *router.Selector {
	var opts []router.SelectorOption
	for feature, list := range cfg.Features {
		opts = append(opts, router.WithFeatureModels(models.Feature(feature), list))
	}
	opts = append(opts, router.WithFallbackModels(cfg.Fallback))
	return router.NewSelector(opts...)
}

// warnUnroutable logs candidate models no provider will accept. They fail
// at request time and fall through to the next candidate.
func warnUnroutable(registry *provider.Registry, selector *router.Selector) {
	for _, name := range selector.ModelNames() {
		if _, _, err := registry.LookupModel(name); errors.Is(err, provider.ErrUnknownModel) {
			slog.Warn("candidate model has no provider", "model", name)
		}
	}
}
