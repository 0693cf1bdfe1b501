// Package tokens estimates token counts and sizes completion budgets.
package tokens

import (
	"log/slog"
	"math"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// DefaultEncoding is the BPE vocabulary used when none is configured.
const DefaultEncoding = "cl100k_base"

// WordsToTokens is the fallback ratio applied to whitespace-separated words.
const WordsToTokens = 0.75

// Counter estimates the number of tokens in a piece of text.
type Counter interface {
	Estimate(text string) int
}

// Estimator counts tokens with an exact tokenizer and degrades to a
// word-count heuristic whenever the tokenizer is unavailable or fails.
type Estimator struct {
	encoding string

	once    sync.Once
	encoder *tiktoken.Tiktoken
	loadErr error
}

// NewEstimator creates an estimator for the given encoding name.
// The vocabulary is loaded lazily on first use.
func NewEstimator(encoding string) *Estimator {
	if strings.TrimSpace(encoding) == "" {
		encoding = DefaultEncoding
	}
	return &Estimator{encoding: encoding}
}

// Estimate returns a token count >= 0. It never panics.
func (e *Estimator) Estimate(text string) (count int) {
	if text == "" {
		return 0
	}

	enc := e.load()
	if enc == nil {
		return HeuristicCount(text)
	}

	defer func() {
		if r := recover(); r != nil {
			slog.Warn("tokenizer panicked, using word heuristic", "encoding", e.encoding, "panic", r)
			count = HeuristicCount(text)
		}
	}()

	ids := enc.Encode(text, []string{"all"}, nil)
	if len(ids) == 0 {
		return HeuristicCount(text)
	}
	return len(ids)
}

func (e *Estimator) load() *tiktoken.Tiktoken {
	e.once.Do(func() {
		defer func() {
			if r := recover(); r != nil {
				e.encoder = nil
				e.loadErr = errTokenizerPanic
			}
		}()
		e.encoder, e.loadErr = tiktoken.GetEncoding(e.encoding)
		if e.loadErr != nil {
			slog.Warn("tokenizer unavailable, using word heuristic", "encoding", e.encoding, "err", e.loadErr)
		}
	})
	if e.loadErr != nil {
		return nil
	}
	return e.encoder
}

// HeuristicCount approximates tokens as ceil(words * 0.75).
func HeuristicCount(text string) int {
	words := len(strings.Fields(text))
	return int(math.Ceil(float64(words) * WordsToTokens))
}

// OutputBudget sizes the first completion call from the prompt sizes.
// The budget is advisory; providers may stop earlier or later.
func OutputBudget(c Counter, systemPrompt, userPrompt string) int {
	system := c.Estimate(systemPrompt)
	user := c.Estimate(userPrompt)
	total := system + user
	return int(math.Ceil(float64(user)*5 + float64(total)*1.4 + float64(user)*1.4))
}

// ContinuationBudget sizes a continuation call issued after truncation.
func ContinuationBudget(c Counter, systemPrompt, userPrompt string) int {
	system := c.Estimate(systemPrompt)
	user := c.Estimate(userPrompt)
	return int(math.Ceil(float64(user)*2 + float64(system)*1.4 + float64(user)*1.4))
}
