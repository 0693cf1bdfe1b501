// Package assist is the shared request pipeline behind every transport:
// validate, build the prompt, pick candidate models and run the orchestrator.
package assist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"manuscript-assist/internal/models"
	"manuscript-assist/internal/orchestrator"
	"manuscript-assist/internal/prompt"
	"manuscript-assist/internal/router"
)

// ErrInvalidRequest indicates a request failed validation.
var ErrInvalidRequest = errors.New("invalid request")

// ErrAllModelsFailed is reported once every candidate model has failed.
var ErrAllModelsFailed = errors.New(models.AllModelsFailedMessage)

// AnonymousUser is charged when a caller does not identify itself.
const AnonymousUser = "anonymous"

// Request is the caller-facing body shared by the HTTP and WebSocket adapters.
type Request struct {
	Feature            string               `json:"feature"`
	Text               []string             `json:"text"`
	TextBefore         ContextText          `json:"textBefore,omitempty"`
	TextAfter          ContextText          `json:"textAfter,omitempty"`
	CustomInstructions string               `json:"customInstructions,omitempty"`
	PromptContexts     []prompt.PlotContext `json:"promptContexts,omitempty"`
}

// ContextText accepts either a JSON string or a list of strings joined by newlines.
type ContextText string

// UnmarshalJSON implements json.Unmarshaler.
func (c *ContextText) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "null" {
		*c = ""
		return nil
	}
	if strings.HasPrefix(trimmed, "[") {
		var parts []string
		if err := json.Unmarshal(data, &parts); err != nil {
			return err
		}
		*c = ContextText(strings.Join(parts, "\n"))
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*c = ContextText(s)
	return nil
}

// UsageRecorder receives the consumed tokens of successful requests.
type UsageRecorder interface {
	Record(userID string, feature models.Feature, model string, u models.Usage, estimated bool)
}

// Job is a validated request ready to run.
type Job struct {
	Spec       models.PromptSpec
	Candidates []models.ModelCandidate
	Input      []string
}

// Service wires the prompt builder, model selector and orchestrator.
type Service struct {
	prompts  *prompt.Builder
	selector *router.Selector
	runner   *orchestrator.Orchestrator
	recorder UsageRecorder
}

// NewService constructs the pipeline. recorder may be nil.
func NewService(prompts *prompt.Builder, selector *router.Selector, runner *orchestrator.Orchestrator, recorder UsageRecorder) *Service {
	return &Service{
		prompts:  prompts,
		selector: selector,
		runner:   runner,
		recorder: recorder,
	}
}

// Prepare validates a request and resolves its prompt and candidates
// without contacting any provider.
func (s *Service) Prepare(req Request) (Job, error) {
	feature := models.ParseFeature(req.Feature)
	if feature == "" {
		return Job{}, fmt.Errorf("%w: feature is required", ErrInvalidRequest)
	}
	if len(req.Text) == 0 {
		return Job{}, fmt.Errorf("%w: text must be a non-empty list", ErrInvalidRequest)
	}
	blank := true
	for _, p := range req.Text {
		if strings.TrimSpace(p) != "" {
			blank = false
			break
		}
	}
	if blank {
		return Job{}, fmt.Errorf("%w: text must contain at least one non-blank paragraph", ErrInvalidRequest)
	}

	spec, err := s.prompts.Build(feature, prompt.Input{
		PrimaryText:        req.Text,
		PrecedingText:      string(req.TextBefore),
		FollowingText:      string(req.TextAfter),
		CustomInstructions: req.CustomInstructions,
		PlotContexts:       req.PromptContexts,
	})
	if err != nil {
		return Job{}, err
	}

	return Job{
		Spec:       spec,
		Candidates: s.selector.SelectModels(feature),
		Input:      req.Text,
	}, nil
}

// Run executes a prepared job, recording usage against userID on success.
func (s *Service) Run(ctx context.Context, job Job, userID string, sink orchestrator.Sink) (orchestrator.Result, error) {
	if strings.TrimSpace(userID) == "" {
		userID = AnonymousUser
	}

	var opts []orchestrator.RunOption
	if s.recorder != nil {
		opts = append(opts, orchestrator.OnUsage(func(r orchestrator.UsageReport) {
			s.recorder.Record(userID, r.Feature, r.Model, r.Usage, r.Estimated)
		}))
	}
	return s.runner.Run(ctx, job.Spec, job.Candidates, job.Input, sink, opts...)
}

// Process validates and runs a request in one step.
func (s *Service) Process(ctx context.Context, req Request, userID string, sink orchestrator.Sink) (orchestrator.Result, error) {
	job, err := s.Prepare(req)
	if err != nil {
		return orchestrator.Result{}, err
	}
	return s.Run(ctx, job, userID, sink)
}

// IsClientError reports whether err stems from the request rather than the system.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidRequest) || errors.Is(err, prompt.ErrUnsupportedFeature)
}
