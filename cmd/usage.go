package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"manuscript-assist/internal/assist"
	"manuscript-assist/internal/config"
	"manuscript-assist/internal/models"
	"manuscript-assist/internal/usage"
)

const usageCommandText = `Usage:
  manuscript-assist usage --config <path> [--user <id>]

Prints the number of recorded requests and the summed token usage for a
user. Requires the sqlite usage driver.

Flags:
  --config  string   Path to YAML or TOML configuration file (required)
  --user    string   User to report on (default "anonymous")`

type usageReport struct {
	User    string       `json:"user"`
	Records int          `json:"records"`
	Usage   models.Usage `json:"usage"`
}

func showUsage(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("usage", flag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, usageCommandText)
	}

	var cfgPath, userID string
	fs.StringVar(&cfgPath, "config", "", "path to configuration file")
	fs.StringVar(&userID, "user", assist.AnonymousUser, "user to report on")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return fmt.Errorf("parse usage flags: %w", err)
	}

	if cfgPath == "" {
		return errors.New("usage command requires --config <path>")
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	if cfg.Usage.Driver != config.LedgerSQLite {
		return fmt.Errorf("usage command requires the %q ledger driver, configured %q", config.LedgerSQLite, cfg.Usage.Driver)
	}

	ledger, err := usage.NewSQLiteLedger(cfg.Usage.DSN)
	if err != nil {
		return err
	}
	defer ledger.Close()

	return writeUsageReport(ctx, ledger, userID, os.Stdout)
}

func writeUsageReport(ctx context.Context, ledger *usage.SQLiteLedger, userID string, out io.Writer) error {
	n, err := ledger.Count(ctx, userID)
	if err != nil {
		return err
	}
	total, err := ledger.Totals(ctx, userID)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(usageReport{User: userID, Records: n, Usage: total})
}
