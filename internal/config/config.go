package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"manuscript-assist/internal/models"
)

// Provider kinds understood by the factory.
const (
	KindOpenAI  = "openai"
	KindClaude  = "claude"
	KindGateway = "gateway"
	KindMock    = "mock"
)

// Usage ledger drivers.
const (
	LedgerLog    = "log"
	LedgerSQLite = "sqlite"
)

const (
	defaultMaxBodyBytes      = 1 << 20
	defaultShutdownSeconds   = 10
	defaultProviderTimeout   = 120
	defaultLedgerTimeout     = 5
	defaultSQLiteDSN         = "manuscript-assist.db"
	defaultTokenizerEncoding = "cl100k_base"
	maxTemperature           = 2.0
)

// Config represents the application configuration parsed from YAML or TOML.
type Config struct {
	Server          ServerConfig                       `yaml:"server" toml:"server"`
	Providers       map[string]ProviderConfig          `yaml:"providers" toml:"providers"`
	DefaultProvider string                             `yaml:"default_provider" toml:"default_provider"`
	Features        map[string][]models.ModelCandidate `yaml:"features" toml:"features"`
	Fallback        []models.ModelCandidate            `yaml:"fallback" toml:"fallback"`
	Tokenizer       TokenizerConfig                    `yaml:"tokenizer" toml:"tokenizer"`
	Usage           UsageConfig                        `yaml:"usage" toml:"usage"`
}

// ServerConfig defines listener configuration.
type ServerConfig struct {
	Port            int   `yaml:"port" toml:"port"`
	MaxBodyBytes    int64 `yaml:"max_body_bytes" toml:"max_body_bytes"`
	ShutdownSeconds int   `yaml:"shutdown_seconds" toml:"shutdown_seconds"`
}

// ProviderConfig captures authentication and routing info for a provider.
type ProviderConfig struct {
	Kind           string            `yaml:"kind" toml:"kind"`
	APIKey         string            `yaml:"api_key" toml:"api_key"`
	APIKeyEnv      string            `yaml:"api_key_env" toml:"api_key_env"`
	BaseURL        string            `yaml:"base_url" toml:"base_url"`
	Models         []ModelConfig     `yaml:"models" toml:"models"`
	Headers        Headers           `yaml:"headers" toml:"headers"`
	Aliases        map[string]string `yaml:"aliases" toml:"aliases"`
	TimeoutSeconds int               `yaml:"timeout_seconds" toml:"timeout_seconds"`
}

// Headers contains additional HTTP headers to send with a provider request.
type Headers map[string]string

// ModelConfig describes a model exposed by a provider. APIStyle is only
// read by gateway providers.
type ModelConfig struct {
	ID       string `yaml:"id" toml:"id"`
	APIStyle string `yaml:"api_style" toml:"api_style"`
}

// TokenizerConfig selects the BPE vocabulary used for budgets.
type TokenizerConfig struct {
	Encoding string `yaml:"encoding" toml:"encoding"`
}

// UsageConfig selects where consumed tokens are recorded.
type UsageConfig struct {
	Driver         string `yaml:"driver" toml:"driver"`
	DSN            string `yaml:"dsn" toml:"dsn"`
	TimeoutSeconds int    `yaml:"timeout_seconds" toml:"timeout_seconds"`
}

// Load reads configuration from disk, resolves secrets and validates the result.
// Files ending in .toml are parsed as TOML, everything else as YAML. A .env
// file next to the config or in the working directory is loaded first;
// variables already present in the environment win.
func Load(path string) (Config, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return Config{}, fmt.Errorf("resolve config path: %w", err)
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return Config{}, fmt.Errorf("read config file %q: %w", absPath, err)
	}

	if err := loadDotEnv(filepath.Join(filepath.Dir(absPath), ".env"), ".env"); err != nil {
		return Config{}, err
	}

	cfg, err := Parse(data, strings.ToLower(filepath.Ext(absPath)) == ".toml")
	if err != nil {
		return Config{}, fmt.Errorf("parse config file %q: %w", absPath, err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Parse decodes raw configuration, applies defaults and resolves API keys
// from the environment. It does not validate.
func Parse(data []byte, isTOML bool) (Config, error) {
	var cfg Config
	if isTOML {
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return Config{}, err
		}
	} else {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, err
		}
	}

	if err := cfg.normalise(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadDotEnv(paths ...string) error {
	seen := make(map[string]struct{})
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			continue
		}
		if _, ok := seen[abs]; ok {
			continue
		}
		seen[abs] = struct{}{}

		if _, err := os.Stat(abs); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(abs); err != nil {
			return fmt.Errorf("load env file %q: %w", abs, err)
		}
	}
	return nil
}

func (c *Config) normalise() error {
	if c.Server.MaxBodyBytes == 0 {
		c.Server.MaxBodyBytes = defaultMaxBodyBytes
	}
	if c.Server.ShutdownSeconds == 0 {
		c.Server.ShutdownSeconds = defaultShutdownSeconds
	}
	if strings.TrimSpace(c.Tokenizer.Encoding) == "" {
		c.Tokenizer.Encoding = defaultTokenizerEncoding
	}

	c.Usage.Driver = strings.ToLower(strings.TrimSpace(c.Usage.Driver))
	if c.Usage.Driver == "" {
		c.Usage.Driver = LedgerLog
	}
	if c.Usage.Driver == LedgerSQLite && strings.TrimSpace(c.Usage.DSN) == "" {
		c.Usage.DSN = defaultSQLiteDSN
	}
	if c.Usage.TimeoutSeconds == 0 {
		c.Usage.TimeoutSeconds = defaultLedgerTimeout
	}

	for name, p := range c.Providers {
		p.Kind = strings.ToLower(strings.TrimSpace(p.Kind))
		if p.Kind == "" {
			p.Kind = name
		}
		if p.APIKey == "" && p.APIKeyEnv != "" {
			p.APIKey = os.Getenv(p.APIKeyEnv)
		}
		if p.TimeoutSeconds == 0 {
			p.TimeoutSeconds = defaultProviderTimeout
		}
		c.Providers[name] = p
	}

	for feature, list := range c.Features {
		if err := normaliseCandidates(list); err != nil {
			return fmt.Errorf("features.%s: %w", feature, err)
		}
	}
	if err := normaliseCandidates(c.Fallback); err != nil {
		return fmt.Errorf("fallback: %w", err)
	}
	return nil
}

func normaliseCandidates(list []models.ModelCandidate) error {
	for i := range list {
		if list[i].ResponseFormat == "" {
			list[i].ResponseFormat = models.FormatFreeform
			continue
		}
		format, err := models.ParseResponseFormat(string(list[i].ResponseFormat))
		if err != nil {
			return fmt.Errorf("model %q: %w", list[i].Name, err)
		}
		list[i].ResponseFormat = format
	}
	return nil
}
