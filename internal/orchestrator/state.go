package orchestrator

import (
	"strings"

	"manuscript-assist/internal/models"
	"manuscript-assist/internal/prompt"
)

// Progress survives across provider calls and fallbacks within one run.
type Progress struct {
	// Emitted counts fragments delivered so far; used to renumber indices.
	Emitted int
	// Consumed counts input paragraphs covered by delivered fragments.
	Consumed int
}

// Remaining returns the input paragraphs not yet covered by any fragment.
func (p Progress) Remaining(input []string) []string {
	if p.Consumed >= len(input) {
		return nil
	}
	return input[p.Consumed:]
}

// Complete reports whether structured output has covered every paragraph.
func (p Progress) Complete(input []string) bool {
	return len(input) > 0 && p.Emitted > 0 && p.Consumed >= len(input)
}

// record counts one delivered fragment covering n input paragraphs.
// Structured fragments map one-to-one onto paragraphs regardless of how
// many source sentences they cite.
func (p *Progress) record(n, inputLen int) {
	p.Emitted++
	p.Consumed = min(p.Consumed+max(n, 1), inputLen)
}

type phase int

const (
	phaseLeading phase = iota
	phaseReasoning
	phaseAfterReasoning
	phaseVisible
)

// StreamState is the scratch state of a single provider stream. A fresh
// value is created for every call, including continuations, and dropped
// when the stream ends.
type StreamState struct {
	format models.ResponseFormat
	whole  bool

	buf       string
	raw       strings.Builder
	reasoning strings.Builder
	phase     phase

	fragments int
	visible   bool
	stopped   bool
	truncated bool
	doneSent  bool
	finished  bool

	onText     func(string) error
	onFragment func(prompt.FragmentObject) error
}

func newStreamState(format models.ResponseFormat, whole bool, onText func(string) error, onFragment func(prompt.FragmentObject) error) *StreamState {
	return &StreamState{
		format:     format,
		whole:      whole,
		onText:     onText,
		onFragment: onFragment,
	}
}

// feed appends a content delta and emits whatever became deliverable.
func (s *StreamState) feed(delta string) error {
	s.raw.WriteString(delta)
	if s.whole {
		return nil
	}

	s.buf += delta
	if s.format == models.FormatStructured {
		return s.demuxStructured()
	}
	return s.demuxFreeform()
}

// finish flushes held-back output once at the end of a stream.
func (s *StreamState) finish() error {
	if s.finished {
		return nil
	}
	s.finished = true

	if s.whole || s.format == models.FormatStructured {
		return nil
	}
	return s.flushFreeform()
}

func (s *StreamState) text(t string) error {
	if t == "" {
		return nil
	}
	s.visible = true
	return s.onText(t)
}
