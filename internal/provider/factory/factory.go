package factory

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sort"
	"time"

	"manuscript-assist/internal/config"
	"manuscript-assist/internal/provider"
	claudeProvider "manuscript-assist/internal/provider/claude"
	gatewayProvider "manuscript-assist/internal/provider/gateway"
	mockProvider "manuscript-assist/internal/provider/mock"
	openaiProvider "manuscript-assist/internal/provider/openai"
)

const (
	defaultDialTimeout     = 10 * time.Second
	defaultKeepAlive       = 30 * time.Second
	defaultIdleConnTimeout = 90 * time.Second
)

// RegisterConfiguredProviders constructs providers from configuration and stores them in the registry.
func RegisterConfiguredProviders(ctx context.Context, cfg config.Config, registry *provider.Registry) error {
	if registry == nil {
		return errors.New("registry must not be nil")
	}

	names := make([]string, 0, len(cfg.Providers))
	for name := range cfg.Providers {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		pcfg := cfg.Providers[name]
		p, err := build(name, pcfg)
		if err != nil {
			return fmt.Errorf("initialise %s provider: %w", name, err)
		}
		if err := registry.RegisterProvider(ctx, p, pcfg.Aliases); err != nil {
			return fmt.Errorf("register %s provider: %w", name, err)
		}
	}

	if cfg.DefaultProvider != "" {
		if err := registry.SetDefaultProvider(cfg.DefaultProvider); err != nil {
			return err
		}
	}

	return nil
}

func build(name string, pcfg config.ProviderConfig) (provider.Provider, error) {
	timeout := time.Duration(pcfg.TimeoutSeconds) * time.Second

	switch pcfg.Kind {
	case config.KindOpenAI:
		return openaiProvider.New(name, pcfg, newHTTPClient(timeout))
	case config.KindClaude:
		return claudeProvider.New(name, pcfg, newHTTPClient(timeout))
	case config.KindGateway:
		return gatewayProvider.New(name, pcfg, newHTTPClient(timeout))
	case config.KindMock:
		ids := make([]string, 0, len(pcfg.Models))
		for _, m := range pcfg.Models {
			ids = append(ids, m.ID)
		}
		return mockProvider.New(name, ids...), nil
	default:
		return nil, fmt.Errorf("unknown provider kind %q", pcfg.Kind)
	}
}

// newHTTPClient bounds a whole streamed response with timeout, which is the
// only guard against a provider that stops sending without closing.
func newHTTPClient(timeout time.Duration) *http.Client {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: defaultDialTimeout, KeepAlive: defaultKeepAlive}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          50,
		IdleConnTimeout:       defaultIdleConnTimeout,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}
