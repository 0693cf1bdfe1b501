package usage

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"manuscript-assist/internal/models"
)

// SQLiteLedger implements Ledger using SQLite.
type SQLiteLedger struct {
	db *sql.DB
}

// NewSQLiteLedger opens the database at dsn and creates the schema.
func NewSQLiteLedger(dsn string) (*SQLiteLedger, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// one writer; also keeps ":memory:" databases on a single connection
	db.SetMaxOpenConns(1)

	ledger := &SQLiteLedger{db: db}
	if err := ledger.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return ledger, nil
}

func (l *SQLiteLedger) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS usage_records (
			record_id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			feature TEXT NOT NULL,
			model TEXT NOT NULL,
			prompt_tokens INTEGER NOT NULL,
			completion_tokens INTEGER NOT NULL,
			total_tokens INTEGER NOT NULL,
			estimated INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_usage_user ON usage_records(user_id, created_at)`,
	}

	for _, m := range migrations {
		if _, err := l.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\n%s", err, m)
		}
	}

	return nil
}

// Append implements Ledger. Re-appending a record ID is a no-op.
func (l *SQLiteLedger) Append(ctx context.Context, rec Record) error {
	_, err := l.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO usage_records
			(record_id, user_id, feature, model, prompt_tokens, completion_tokens, total_tokens, estimated, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.UserID, string(rec.Feature), rec.Model,
		rec.Usage.PromptTokens, rec.Usage.CompletionTokens, rec.Usage.TotalTokens,
		rec.Estimated, rec.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert usage record: %w", err)
	}
	return nil
}

// Totals sums the usage recorded for a user.
func (l *SQLiteLedger) Totals(ctx context.Context, userID string) (models.Usage, error) {
	var total models.Usage
	err := l.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(prompt_tokens), 0), COALESCE(SUM(completion_tokens), 0), COALESCE(SUM(total_tokens), 0)
			FROM usage_records WHERE user_id = ?`, userID).
		Scan(&total.PromptTokens, &total.CompletionTokens, &total.TotalTokens)
	if err != nil {
		return models.Usage{}, fmt.Errorf("sum usage for %s: %w", userID, err)
	}
	return total, nil
}

// Count returns the number of records stored for a user.
func (l *SQLiteLedger) Count(ctx context.Context, userID string) (int, error) {
	var n int
	if err := l.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM usage_records WHERE user_id = ?`, userID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count usage for %s: %w", userID, err)
	}
	return n, nil
}

// Close closes the database connection.
func (l *SQLiteLedger) Close() error {
	return l.db.Close()
}
