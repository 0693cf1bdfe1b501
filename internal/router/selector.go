package router

import (
	"manuscript-assist/internal/models"
)

const (
	baseTemperature     = 0.41
	creativeTemperature = 0.66
)

const (
	modelQwen3    = "Qwen/Qwen3-235B-A22B-fp8-tput"
	modelMaverick = "meta-llama/Llama-4-Maverick-17B-128E-Instruct-FP8"
	modelQwen15   = "Qwen/Qwen1.5-72B-Chat"
	modelGemma    = "google/gemma-3n-E4B-it"
)

// DefaultCandidates returns the built-in per-feature fallback table.
func DefaultCandidates() map[models.Feature][]models.ModelCandidate {
	return map[models.Feature][]models.ModelCandidate{
		models.FeatureRephrase: {
			{Name: modelQwen3, ResponseFormat: models.FormatStructured, Temperature: baseTemperature},
			{Name: modelMaverick, ResponseFormat: models.FormatStructured, Temperature: baseTemperature},
			{Name: modelQwen15, ResponseFormat: models.FormatFreeform, Temperature: baseTemperature},
			{Name: modelGemma, ResponseFormat: models.FormatFreeform, Temperature: baseTemperature},
		},
		models.FeatureExpand: {
			{Name: modelQwen3, ResponseFormat: models.FormatFreeform, Temperature: creativeTemperature},
			{Name: modelMaverick, ResponseFormat: models.FormatFreeform, Temperature: creativeTemperature},
			{Name: modelQwen15, ResponseFormat: models.FormatFreeform, Temperature: creativeTemperature},
			{Name: modelGemma, ResponseFormat: models.FormatFreeform, Temperature: creativeTemperature},
		},
		models.FeatureShorten: {
			{Name: modelQwen3, ResponseFormat: models.FormatStructured, Temperature: creativeTemperature},
			{Name: modelMaverick, ResponseFormat: models.FormatStructured, Temperature: creativeTemperature},
			{Name: modelQwen15, ResponseFormat: models.FormatFreeform, Temperature: creativeTemperature},
			{Name: modelGemma, ResponseFormat: models.FormatFreeform, Temperature: creativeTemperature},
		},
	}
}

// DefaultFallback is the generic list used for features without a dedicated entry.
func DefaultFallback() []models.ModelCandidate {
	return []models.ModelCandidate{
		{Name: modelQwen15, ResponseFormat: models.FormatFreeform, Temperature: baseTemperature},
		{Name: modelGemma, ResponseFormat: models.FormatFreeform, Temperature: baseTemperature},
	}
}

// Selector maps a feature to its ordered list of candidate models.
type Selector struct {
	byFeature map[models.Feature][]models.ModelCandidate
	fallback  []models.ModelCandidate
}

// SelectorOption customises a Selector.
type SelectorOption func(*Selector)

// WithFeatureModels replaces the candidate list for one feature. Empty lists are ignored.
func WithFeatureModels(feature models.Feature, candidates []models.ModelCandidate) SelectorOption {
	return func(s *Selector) {
		if len(candidates) == 0 {
			return
		}
		s.byFeature[feature] = cloneCandidates(candidates)
	}
}

// WithFallbackModels replaces the generic fallback list. Empty lists are ignored.
func WithFallbackModels(candidates []models.ModelCandidate) SelectorOption {
	return func(s *Selector) {
		if len(candidates) == 0 {
			return
		}
		s.fallback = cloneCandidates(candidates)
	}
}

// NewSelector builds a selector seeded with the built-in table.
func NewSelector(opts ...SelectorOption) *Selector {
	s := &Selector{
		byFeature: DefaultCandidates(),
		fallback:  DefaultFallback(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SelectModels returns the candidates for a feature in fallback order.
// Features without an entry get the generic fallback list. The result is a
// copy and never empty.
func (s *Selector) SelectModels(feature models.Feature) []models.ModelCandidate {
	if candidates, ok := s.byFeature[feature]; ok {
		return cloneCandidates(candidates)
	}
	return cloneCandidates(s.fallback)
}

// ModelNames lists every distinct model name the selector can return.
func (s *Selector) ModelNames() []string {
	seen := make(map[string]struct{})
	var names []string
	add := func(list []models.ModelCandidate) {
		for _, c := range list {
			if _, ok := seen[c.Name]; ok {
				continue
			}
			seen[c.Name] = struct{}{}
			names = append(names, c.Name)
		}
	}
	for _, feature := range []models.Feature{models.FeatureRephrase, models.FeatureExpand, models.FeatureShorten, models.FeatureSummarize} {
		add(s.SelectModels(feature))
	}
	for _, list := range s.byFeature {
		add(list)
	}
	add(s.fallback)
	return names
}

func cloneCandidates(in []models.ModelCandidate) []models.ModelCandidate {
	out := make([]models.ModelCandidate, len(in))
	copy(out, in)
	return out
}
