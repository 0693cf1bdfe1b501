// Package prompt turns an editor feature request into the prompts sent to a model.
package prompt

import (
	"errors"
	"fmt"
	"strings"
	"text/template"

	"manuscript-assist/internal/models"
)

// ErrUnsupportedFeature indicates no prompt template exists for the feature.
var ErrUnsupportedFeature = errors.New("unsupported feature")

// DefaultInstruction is used when the caller supplies no custom instructions.
const DefaultInstruction = "Make the tone more engaging and vivid."

// ParagraphSeparator joins input paragraphs into the operand text.
const ParagraphSeparator = "\n\n"

const noContext = "None"

// PlotContext is a piece of story background the editor attaches to a request,
// such as a character sheet or a setting note.
type PlotContext struct {
	ContextType string `json:"contextType"`
	ID          string `json:"id"`
	Prompt      string `json:"prompt"`
}

// Input carries the caller's text and optional surrounding context.
type Input struct {
	PrimaryText        []string
	PrecedingText      string
	FollowingText      string
	CustomInstructions string
	PlotContexts       []PlotContext
}

type templateData struct {
	Instructions string
	TextBefore   string
	TextAfter    string
	PlotContext  string
}

type featureTemplate struct {
	system      *template.Template
	format      models.ResponseFormat
	wrapOperand bool
}

// Builder renders feature prompts. It is safe for concurrent use.
type Builder struct {
	features map[models.Feature]featureTemplate
}

// NewBuilder parses the built-in feature templates.
func NewBuilder() *Builder {
	return &Builder{
		features: map[models.Feature]featureTemplate{
			models.FeatureRephrase: {
				system:      template.Must(template.New("rephrase").Parse(rephraseSystem)),
				format:      models.FormatStructured,
				wrapOperand: true,
			},
			models.FeatureExpand: {
				system: template.Must(template.New("expand").Parse(expandSystem)),
				format: models.FormatFreeform,
			},
			models.FeatureShorten: {
				system: template.Must(template.New("shorten").Parse(shortenSystem)),
				format: models.FormatFreeform,
			},
			models.FeatureSummarize: {
				system: template.Must(template.New("summarize").Parse(summarizeSystem)),
				format: models.FormatFreeform,
			},
		},
	}
}

// Build produces the prompt spec for a feature. Unknown features return ErrUnsupportedFeature.
func (b *Builder) Build(feature models.Feature, in Input) (models.PromptSpec, error) {
	tmpl, ok := b.features[feature]
	if !ok {
		return models.PromptSpec{}, fmt.Errorf("%w: %s", ErrUnsupportedFeature, feature)
	}

	data := templateData{
		Instructions: orDefault(in.CustomInstructions, DefaultInstruction),
		TextBefore:   orDefault(in.PrecedingText, noContext),
		TextAfter:    orDefault(in.FollowingText, noContext),
		PlotContext:  plotContext(in.PlotContexts),
	}

	var system strings.Builder
	if err := tmpl.system.Execute(&system, data); err != nil {
		return models.PromptSpec{}, fmt.Errorf("render %s system prompt: %w", feature, err)
	}

	return models.PromptSpec{
		Feature:        feature,
		SystemPrompt:   system.String(),
		UserPrompt:     operand(in.PrimaryText, tmpl.wrapOperand),
		ResponseFormat: tmpl.format,
	}, nil
}

// ContinuationPrompt rebuilds the user prompt from the paragraphs that remain
// unprocessed, using the same operand wrapping as the original prompt.
func (b *Builder) ContinuationPrompt(spec models.PromptSpec, remaining []string) string {
	tmpl := b.features[spec.Feature]
	return operand(remaining, tmpl.wrapOperand)
}

// Supports reports whether a template exists for the feature.
func (b *Builder) Supports(feature models.Feature) bool {
	_, ok := b.features[feature]
	return ok
}

func operand(paragraphs []string, wrap bool) string {
	joined := strings.Join(paragraphs, ParagraphSeparator)
	if wrap {
		return "<originalText>" + joined + "</originalText>"
	}
	return joined
}

func plotContext(contexts []PlotContext) string {
	lines := make([]string, 0, len(contexts))
	for _, c := range contexts {
		if strings.TrimSpace(c.Prompt) == "" {
			continue
		}
		lines = append(lines, fmt.Sprintf("Type: %s, ID: %s, Prompt: %s", c.ContextType, c.ID, c.Prompt))
	}
	if len(lines) == 0 {
		return noContext
	}
	return strings.Join(lines, "\n")
}

func orDefault(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
