// Package orchestrator drives streaming completions across fallback models
// and turns provider chunks into caller-visible events.
package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"manuscript-assist/internal/models"
	"manuscript-assist/internal/prompt"
	"manuscript-assist/internal/provider"
	"manuscript-assist/internal/tokens"
)

// MaxRetries bounds the provider calls made on one model, the first call
// included.
const MaxRetries = 3

// Sink receives output events in order. A returned error abandons the
// current model attempt.
type Sink func(models.OutputEvent) error

// Opener starts a streaming completion for a request.
type Opener interface {
	Open(ctx context.Context, req models.CompletionRequest) (provider.Stream, error)
}

// UsageReport is handed to the usage hook once per successful run, before
// the done event is emitted.
type UsageReport struct {
	Feature   models.Feature
	Model     string
	Usage     models.Usage
	Estimated bool
}

// Result summarises a run.
type Result struct {
	Succeeded bool
	Model     string
	Fragments int
	Usage     models.Usage
}

// RunOption customises a single run.
type RunOption func(*run)

// OnUsage registers the hook that records consumed tokens.
func OnUsage(fn func(UsageReport)) RunOption {
	return func(r *run) {
		r.onUsage = fn
	}
}

// Orchestrator runs prompts against ordered model candidates. It holds no
// per-request state and is safe for concurrent use.
type Orchestrator struct {
	opener     Opener
	counter    tokens.Counter
	prompts    *prompt.Builder
	maxRetries int
}

// Option customises an Orchestrator.
type Option func(*Orchestrator)

// WithMaxRetries overrides the per-model call bound.
func WithMaxRetries(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.maxRetries = n
		}
	}
}

// New constructs an orchestrator.
func New(opener Opener, counter tokens.Counter, prompts *prompt.Builder, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		opener:     opener,
		counter:    counter,
		prompts:    prompts,
		maxRetries: MaxRetries,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// run is the state of one Run call shared by all of its attempts.
type run struct {
	spec     models.PromptSpec
	input    []string
	sink     Sink
	onUsage  func(UsageReport)
	counter  tokens.Counter
	progress Progress

	usage          models.Usage
	sawUsage       bool
	promptEstimate int
	output         strings.Builder
}

type outcome int

const (
	outcomeFailed outcome = iota
	outcomeTruncated
	outcomeSucceeded
)

// Run streams spec through candidates in order until one succeeds. input is
// the original paragraph list, used to build continuation prompts. The
// returned error is non-nil only when ctx ends the run; a run that exhausts
// every candidate returns Result{Succeeded: false} and a nil error.
func (o *Orchestrator) Run(ctx context.Context, spec models.PromptSpec, candidates []models.ModelCandidate, input []string, sink Sink, opts ...RunOption) (Result, error) {
	r := &run{
		spec:    spec,
		input:   input,
		sink:    sink,
		counter: o.counter,
	}
	for _, opt := range opts {
		opt(r)
	}

	var last string
	for i, candidate := range candidates {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}

		if spec.ResponseFormat == models.FormatStructured && r.progress.Complete(input) {
			slog.Info("input fully covered before fallback", "feature", spec.Feature, "model", last)
			if err := o.complete(r, last); err != nil {
				slog.Warn("emit done", "model", last, "err", err)
			}
			return o.result(r, last), nil
		}

		ok, err := o.attempt(ctx, r, candidate)
		if err != nil {
			return Result{}, err
		}
		if ok {
			return o.result(r, candidate.Name), nil
		}

		last = candidate.Name
		if i < len(candidates)-1 {
			slog.Warn("falling back to next model", "feature", spec.Feature, "failed", candidate.Name, "next", candidates[i+1].Name)
		}
	}

	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	slog.Error("all models failed", "feature", spec.Feature, "candidates", len(candidates))
	return Result{Fragments: r.progress.Emitted}, nil
}

func (o *Orchestrator) result(r *run, model string) Result {
	return Result{
		Succeeded: true,
		Model:     model,
		Fragments: r.progress.Emitted,
		Usage:     r.usage,
	}
}

// attempt drives one candidate through its first call and any continuations.
func (o *Orchestrator) attempt(ctx context.Context, r *run, candidate models.ModelCandidate) (bool, error) {
	format := r.spec.ResponseFormat.Effective(candidate.ResponseFormat)
	whole := r.spec.Feature == models.FeatureRephrase && format == models.FormatFreeform

	userPrompt := r.spec.UserPrompt
	budget := tokens.OutputBudget(o.counter, r.spec.SystemPrompt, userPrompt)
	if r.progress.Consumed > 0 {
		userPrompt = o.prompts.ContinuationPrompt(r.spec, r.progress.Remaining(r.input))
		budget = tokens.ContinuationBudget(o.counter, r.spec.SystemPrompt, userPrompt)
	}
	coveredFrom := r.progress.Consumed

	for call := 1; call <= o.maxRetries; call++ {
		if err := ctx.Err(); err != nil {
			return false, err
		}

		req := models.CompletionRequest{
			Model:        candidate.Name,
			SystemPrompt: r.spec.SystemPrompt,
			UserPrompt:   userPrompt,
			Temperature:  candidate.Temperature,
			MaxTokens:    budget,
		}
		if format == models.FormatStructured {
			req.ResponseSchema = prompt.FragmentSchema()
			req.SchemaName = prompt.SchemaName
		}

		slog.Info("model call", "feature", r.spec.Feature, "model", candidate.Name, "format", format, "call", call, "max_tokens", budget)
		r.promptEstimate += o.counter.Estimate(req.SystemPrompt) + o.counter.Estimate(req.UserPrompt)

		st := newStreamState(format, whole, r.emitText, r.emitFragment)
		result, err := o.consume(ctx, r, req, st, coveredFrom)
		if err != nil {
			return false, err
		}

		switch result {
		case outcomeSucceeded:
			return true, nil
		case outcomeFailed:
			return false, nil
		}

		remaining := r.progress.Remaining(r.input)
		if len(remaining) == 0 {
			if err := o.complete(r, candidate.Name); err != nil {
				slog.Warn("model attempt failed", "model", candidate.Name, "err", err)
				return false, nil
			}
			return true, nil
		}
		userPrompt = o.prompts.ContinuationPrompt(r.spec, remaining)
		budget = tokens.ContinuationBudget(o.counter, r.spec.SystemPrompt, userPrompt)
		slog.Info("continuing truncated response", "model", candidate.Name, "remaining", len(remaining), "call", call+1)
	}

	slog.Warn("model attempt exhausted continuations", "model", candidate.Name, "calls", o.maxRetries)
	return false, nil
}

// consume reads one provider stream to its end.
func (o *Orchestrator) consume(ctx context.Context, r *run, req models.CompletionRequest, st *StreamState, coveredFrom int) (outcome, error) {
	stream, err := o.opener.Open(ctx, req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return outcomeFailed, ctxErr
		}
		slog.Warn("model attempt failed", "model", req.Model, "err", err)
		return outcomeFailed, nil
	}
	defer stream.Close()

	for {
		if err := ctx.Err(); err != nil {
			return outcomeFailed, err
		}
		if !stream.Next() {
			break
		}
		chunk := stream.Current()

		if chunk.Delta != "" && !st.doneSent {
			if err := st.feed(chunk.Delta); err != nil {
				slog.Warn("model attempt failed", "model", req.Model, "err", err)
				return outcomeFailed, nil
			}
		}

		switch chunk.FinishReason {
		case "":
		case models.FinishStop:
			st.stopped = true
		case models.FinishLength:
			st.truncated = true
			slog.Warn("response truncated", "model", req.Model, "max_tokens", req.MaxTokens)
		default:
			slog.Info("unexpected finish reason", "model", req.Model, "reason", chunk.FinishReason)
		}

		if chunk.Usage != nil {
			if !st.doneSent {
				r.usage.Add(*chunk.Usage)
				r.sawUsage = true
			}
			if st.stopped && !st.doneSent {
				if err := o.settle(r, st, req.Model, coveredFrom); err != nil {
					slog.Warn("model attempt failed", "model", req.Model, "err", err)
					return outcomeFailed, nil
				}
			}
		}
	}

	if err := stream.Err(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return outcomeFailed, ctxErr
		}
		if !st.stopped {
			slog.Warn("model attempt failed", "model", req.Model, "err", err)
			return outcomeFailed, nil
		}
		slog.Warn("stream error after stop", "model", req.Model, "err", err)
	}

	if st.doneSent {
		return outcomeSucceeded, nil
	}

	if st.format == models.FormatStructured && st.truncated && !st.stopped {
		o.dropPending(st, req.Model)
		return outcomeTruncated, nil
	}

	succeeded := st.stopped
	if !succeeded {
		succeeded = o.deliveredEnough(r, st)
	}
	if !succeeded {
		o.dropPending(st, req.Model)
		slog.Warn("model attempt failed", "model", req.Model, "err", errIncompleteStream)
		return outcomeFailed, nil
	}

	if err := o.settle(r, st, req.Model, coveredFrom); err != nil {
		slog.Warn("model attempt failed", "model", req.Model, "err", err)
		return outcomeFailed, nil
	}
	return outcomeSucceeded, nil
}

// deliveredEnough decides whether a stream that ended without a stop
// signal still counts as a success.
func (o *Orchestrator) deliveredEnough(r *run, st *StreamState) bool {
	switch {
	case st.whole:
		return st.wholeText() != ""
	case st.format == models.FormatStructured:
		return r.progress.Complete(r.input)
	default:
		if err := st.finish(); err != nil {
			return false
		}
		return st.visible
	}
}

// settle flushes held-back output, then records usage and emits done.
func (o *Orchestrator) settle(r *run, st *StreamState, model string, coveredFrom int) error {
	if st.whole && !st.finished {
		st.finished = true
		text := st.wholeText()
		if text == "" {
			return errEmptyResponse
		}
		covered := r.input[min(coveredFrom, len(r.input)):]
		if err := r.deliver(prompt.FragmentObject{FragmentContent: text, SourceFragments: covered}, len(covered)); err != nil {
			return err
		}
	}
	if err := st.finish(); err != nil {
		return err
	}
	if st.format == models.FormatStructured {
		o.dropPending(st, model)
		if st.fragments == 0 && !r.progress.Complete(r.input) {
			return errNoFragments
		}
	}

	st.doneSent = true
	return o.complete(r, model)
}

// complete records usage and emits the done event for a successful run.
func (o *Orchestrator) complete(r *run, model string) error {
	report := UsageReport{
		Feature: r.spec.Feature,
		Model:   model,
		Usage:   r.usage,
	}
	if !r.sawUsage {
		completion := r.counter.Estimate(r.output.String())
		report.Estimated = true
		report.Usage = models.Usage{
			PromptTokens:     r.promptEstimate,
			CompletionTokens: completion,
			TotalTokens:      r.promptEstimate + completion,
		}
		r.usage = report.Usage
	}
	if r.onUsage != nil {
		r.onUsage(report)
	}
	return r.sink(models.DoneEvent())
}

func (o *Orchestrator) dropPending(st *StreamState, model string) {
	if n := st.pendingFragment(); n > 0 {
		slog.Warn("dropping incomplete fragment", "model", model, "bytes", n)
		st.buf = ""
	}
}

func (r *run) emitText(text string) error {
	r.output.WriteString(text)
	return r.sink(models.TextEvent(text))
}

func (r *run) emitFragment(obj prompt.FragmentObject) error {
	return r.deliver(obj, 1)
}

// deliver emits a fragment that covers n input paragraphs.
func (r *run) deliver(obj prompt.FragmentObject, n int) error {
	sources := obj.SourceFragments
	if sources == nil {
		sources = []string{}
	}
	r.progress.record(n, len(r.input))
	r.output.WriteString(obj.FragmentContent)
	r.output.WriteString(" ")
	return r.sink(models.FragmentEvent(models.Fragment{
		Index:           r.progress.Emitted,
		Content:         obj.FragmentContent,
		SourceFragments: sources,
	}))
}

var (
	errIncompleteStream = errors.New("stream ended before completion")
	errEmptyResponse    = errors.New("model returned an empty response")
	errNoFragments      = errors.New("structured response contained no fragments")
)
