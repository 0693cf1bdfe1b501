package models

import (
	"fmt"
	"strings"
)

// Feature names a text transformation offered to the editor.
type Feature string

const (
	FeatureRephrase  Feature = "rephrase"
	FeatureExpand    Feature = "expand"
	FeatureShorten   Feature = "shorten"
	FeatureSummarize Feature = "summarize"
)

// ParseFeature normalises a feature name received from a caller.
func ParseFeature(name string) Feature {
	return Feature(strings.ToLower(strings.TrimSpace(name)))
}

// ResponseFormat is the output contract a prompt or model declares.
type ResponseFormat string

const (
	FormatStructured ResponseFormat = "structured"
	FormatFreeform   ResponseFormat = "freeform"
)

// ParseResponseFormat accepts the canonical names and the legacy json/text aliases.
func ParseResponseFormat(value string) (ResponseFormat, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "structured", "json":
		return FormatStructured, nil
	case "freeform", "text":
		return FormatFreeform, nil
	default:
		return "", fmt.Errorf("unknown response format %q", value)
	}
}

// Effective reconciles the format a prompt asks for with what a model supports.
// Structured output is only used when both sides agree on it.
func (f ResponseFormat) Effective(supported ResponseFormat) ResponseFormat {
	if f == FormatStructured && supported == FormatStructured {
		return FormatStructured
	}
	return FormatFreeform
}

// PromptSpec is the immutable prompt built once per request.
type PromptSpec struct {
	Feature        Feature
	SystemPrompt   string
	UserPrompt     string
	ResponseFormat ResponseFormat
}

// ModelCandidate is one entry in a feature's ordered fallback list.
type ModelCandidate struct {
	Name           string         `yaml:"name" toml:"name"`
	ResponseFormat ResponseFormat `yaml:"format" toml:"format"`
	Temperature    float64        `yaml:"temperature" toml:"temperature"`
}

// Usage records token accounting information.
type Usage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
	TotalTokens      int `json:"totalTokens"`
}

// Add accumulates another usage block, deriving the total when a provider omits it.
func (u *Usage) Add(other Usage) {
	u.PromptTokens += other.PromptTokens
	u.CompletionTokens += other.CompletionTokens
	total := other.TotalTokens
	if total == 0 {
		total = other.PromptTokens + other.CompletionTokens
	}
	u.TotalTokens += total
}

// IsZero reports whether no tokens were accounted.
func (u Usage) IsZero() bool {
	return u.PromptTokens == 0 && u.CompletionTokens == 0 && u.TotalTokens == 0
}

// Finish reasons understood by the orchestrator.
const (
	FinishStop   = "stop"
	FinishLength = "length"
)

// Chunk is one element of a provider completion stream. A chunk carries
// any combination of a content delta, a finish reason, and a usage footer.
type Chunk struct {
	Delta        string
	FinishReason string
	Usage        *Usage
}

// Model identifies a known model with provider metadata.
type Model struct {
	ID       string
	Provider string
	APIStyle string
}

// CompletionRequest is the provider-neutral streaming completion call.
type CompletionRequest struct {
	Model          string
	SystemPrompt   string
	UserPrompt     string
	Temperature    float64
	MaxTokens      int
	ResponseSchema map[string]any
	SchemaName     string
}

// Structured reports whether the request constrains output to a JSON schema.
func (r CompletionRequest) Structured() bool {
	return len(r.ResponseSchema) > 0
}
