// Package usage records tokens consumed by completed requests.
package usage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"manuscript-assist/internal/models"
)

// Record is one ledger entry.
type Record struct {
	ID        string
	UserID    string
	Feature   models.Feature
	Model     string
	Usage     models.Usage
	Estimated bool
	CreatedAt time.Time
}

// Ledger persists usage records. Implementations must be safe for
// concurrent use; deduplication, if any, is theirs to provide.
type Ledger interface {
	Append(ctx context.Context, rec Record) error
	Close() error
}

// LogLedger writes each record as a structured log line.
type LogLedger struct{}

// Append implements Ledger.
func (LogLedger) Append(_ context.Context, rec Record) error {
	slog.Info("usage recorded",
		"id", rec.ID,
		"user", rec.UserID,
		"feature", rec.Feature,
		"model", rec.Model,
		"prompt_tokens", rec.Usage.PromptTokens,
		"completion_tokens", rec.Usage.CompletionTokens,
		"total_tokens", rec.Usage.TotalTokens,
		"estimated", rec.Estimated,
	)
	return nil
}

// Close implements Ledger.
func (LogLedger) Close() error {
	return nil
}

// Open returns the ledger for a configured driver: "log" or "sqlite".
func Open(driver, dsn string) (Ledger, error) {
	switch driver {
	case "", "log":
		return LogLedger{}, nil
	case "sqlite":
		ledger, err := NewSQLiteLedger(dsn)
		if err != nil {
			return nil, err
		}
		return ledger, nil
	default:
		return nil, fmt.Errorf("unknown usage ledger driver %q", driver)
	}
}
