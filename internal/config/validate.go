package config

import (
	"fmt"
	"strings"

	"manuscript-assist/internal/models"
)

var knownFeatures = map[string]struct{}{
	string(models.FeatureRephrase):  {},
	string(models.FeatureExpand):    {},
	string(models.FeatureShorten):   {},
	string(models.FeatureSummarize): {},
}

// Validate performs strict sanity checks on the configuration.
func (c Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be a valid TCP port, got %d", c.Server.Port)
	}
	if c.Server.MaxBodyBytes < 0 {
		return fmt.Errorf("server.max_body_bytes must not be negative, got %d", c.Server.MaxBodyBytes)
	}

	if len(c.Providers) == 0 {
		return fmt.Errorf("providers: at least one provider must be configured")
	}
	for name, provider := range c.Providers {
		if err := validateProvider(name, provider); err != nil {
			return err
		}
	}

	if c.DefaultProvider != "" {
		if _, ok := c.Providers[c.DefaultProvider]; !ok {
			return fmt.Errorf("default_provider %q is not a configured provider", c.DefaultProvider)
		}
	}

	for feature, list := range c.Features {
		if _, ok := knownFeatures[feature]; !ok {
			return fmt.Errorf("features: unknown feature %q", feature)
		}
		if err := validateCandidates("features."+feature, list); err != nil {
			return err
		}
	}
	if err := validateCandidates("fallback", c.Fallback); err != nil {
		return err
	}

	switch c.Usage.Driver {
	case LedgerLog:
	case LedgerSQLite:
		if strings.TrimSpace(c.Usage.DSN) == "" {
			return fmt.Errorf("usage.dsn must be provided for the %s driver", LedgerSQLite)
		}
	default:
		return fmt.Errorf("usage.driver %q must be one of %q or %q", c.Usage.Driver, LedgerLog, LedgerSQLite)
	}
	if c.Usage.TimeoutSeconds < 0 {
		return fmt.Errorf("usage.timeout_seconds must not be negative, got %d", c.Usage.TimeoutSeconds)
	}

	return nil
}

func validateProvider(name string, provider ProviderConfig) error {
	switch provider.Kind {
	case KindOpenAI, KindClaude, KindGateway:
		if strings.TrimSpace(provider.APIKey) == "" {
			if provider.APIKeyEnv != "" {
				return fmt.Errorf("provider %s: environment variable %s is empty", name, provider.APIKeyEnv)
			}
			return fmt.Errorf("provider %s: api_key or api_key_env must be provided", name)
		}
		if strings.TrimSpace(provider.BaseURL) == "" {
			return fmt.Errorf("provider %s: base_url must be provided", name)
		}
	case KindMock:
	default:
		return fmt.Errorf("provider %s: kind %q must be one of %q, %q, %q or %q", name, provider.Kind, KindOpenAI, KindClaude, KindGateway, KindMock)
	}

	if provider.TimeoutSeconds < 0 {
		return fmt.Errorf("provider %s: timeout_seconds must not be negative", name)
	}

	for _, model := range provider.Models {
		if strings.TrimSpace(model.ID) == "" {
			return fmt.Errorf("provider %s: model id must not be empty", name)
		}
		if provider.Kind == KindGateway {
			style := strings.ToLower(strings.TrimSpace(model.APIStyle))
			if style != KindOpenAI && style != KindClaude {
				return fmt.Errorf("provider %s: model %s api_style %q must be %q or %q", name, model.ID, model.APIStyle, KindOpenAI, KindClaude)
			}
		}
	}

	for headerKey := range provider.Headers {
		if !isCanonicalHTTPHeader(headerKey) {
			return fmt.Errorf("provider %s: header %q is not a valid canonical HTTP header", name, headerKey)
		}
	}

	for alias, target := range provider.Aliases {
		if strings.TrimSpace(alias) == "" {
			return fmt.Errorf("provider %s: alias name must not be empty", name)
		}
		if strings.TrimSpace(target) == "" {
			return fmt.Errorf("provider %s: alias %q target must not be empty", name, alias)
		}
	}

	return nil
}

func validateCandidates(path string, list []models.ModelCandidate) error {
	for i, c := range list {
		if strings.TrimSpace(c.Name) == "" {
			return fmt.Errorf("%s[%d]: model name must not be empty", path, i)
		}
		if c.Temperature < 0 || c.Temperature > maxTemperature {
			return fmt.Errorf("%s[%d]: temperature %.2f must be between 0 and %.1f", path, i, c.Temperature, maxTemperature)
		}
		if c.ResponseFormat != models.FormatStructured && c.ResponseFormat != models.FormatFreeform {
			return fmt.Errorf("%s[%d]: unknown format %q", path, i, c.ResponseFormat)
		}
	}
	return nil
}

func isCanonicalHTTPHeader(header string) bool {
	if header == "" {
		return false
	}

	for _, r := range header {
		if !(r == '-' || (r >= 'A' && r <= 'Z') || (r >= 'a' && r <= 'z')) {
			return false
		}
	}
	return true
}
