package usage

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"manuscript-assist/internal/models"
)

const defaultWriteTimeout = 5 * time.Second

// Recorder hands records to a ledger without blocking the caller.
type Recorder struct {
	ledger  Ledger
	timeout time.Duration
	now     func() time.Time

	wg sync.WaitGroup
}

// NewRecorder wraps a ledger. A non-positive timeout uses the default.
func NewRecorder(ledger Ledger, timeout time.Duration) *Recorder {
	if timeout <= 0 {
		timeout = defaultWriteTimeout
	}
	return &Recorder{
		ledger:  ledger,
		timeout: timeout,
		now:     time.Now,
	}
}

// Record issues the ledger write in the background and returns immediately.
// The write is detached from any request context so a client disconnect
// does not lose it.
func (r *Recorder) Record(userID string, feature models.Feature, model string, u models.Usage, estimated bool) {
	rec := Record{
		ID:        uuid.NewString(),
		UserID:    userID,
		Feature:   feature,
		Model:     model,
		Usage:     u,
		Estimated: estimated,
		CreatedAt: r.now(),
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()

		if err := r.ledger.Append(ctx, rec); err != nil {
			slog.Error("usage ledger write failed", "id", rec.ID, "user", rec.UserID, "err", err)
		}
	}()
}

// Close waits for in-flight writes and closes the ledger.
func (r *Recorder) Close() error {
	r.wg.Wait()
	return r.ledger.Close()
}
