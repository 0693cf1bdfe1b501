package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"manuscript-assist/internal/assist"
	"manuscript-assist/internal/config"
	"manuscript-assist/internal/usage"
)

func TestUsage_RequiresConfig(t *testing.T) {
	err := Execute(context.Background(), []string{"usage", "--user", "dana"})
	assert.EqualError(t, err, "usage command requires --config <path>")
}

func TestUsage_RequiresSQLiteLedger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(mockConfig), 0o600))

	err := Execute(context.Background(), []string{"usage", "--config", path})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sqlite")
}

func TestWriteUsageReport_SumsRecordedRuns(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "usage.db")
	cfg, err := config.Parse([]byte(mockConfig+"usage:\n  driver: sqlite\n  dsn: "+dsn+"\n"), false)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	a, err := wire(context.Background(), cfg)
	require.NoError(t, err)

	for _, text := range []string{"one", "two"} {
		var out bytes.Buffer
		require.NoError(t, runProcess(context.Background(), a.service, assist.Request{Feature: "expand", Text: []string{text}}, "dana", &out))
	}
	// waits for the background ledger writes
	a.close()

	ledger, err := usage.NewSQLiteLedger(dsn)
	require.NoError(t, err)
	defer ledger.Close()

	var out bytes.Buffer
	require.NoError(t, writeUsageReport(context.Background(), ledger, "dana", &out))

	var report usageReport
	require.NoError(t, json.Unmarshal(out.Bytes(), &report))
	assert.Equal(t, "dana", report.User)
	assert.Equal(t, 2, report.Records)
	assert.Positive(t, report.Usage.TotalTokens)

	out.Reset()
	require.NoError(t, writeUsageReport(context.Background(), ledger, "nobody", &out))
	require.NoError(t, json.Unmarshal(out.Bytes(), &report))
	assert.Equal(t, 0, report.Records)
	assert.True(t, report.Usage.IsZero())
}
