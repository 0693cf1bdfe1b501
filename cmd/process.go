package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"manuscript-assist/internal/assist"
	"manuscript-assist/internal/config"
	"manuscript-assist/internal/models"
)

const processUsage = `Usage:
  manuscript-assist process --config <path> --feature <name> [--instructions <text>] [--user <id>] < text

Paragraphs are separated by blank lines. Events are written to stdout as
newline-delimited JSON.

Flags:
  --config       string   Path to YAML or TOML configuration file (required)
  --feature      string   rephrase, expand, shorten or summarize (required)
  --instructions string   Custom instructions for the model
  --user         string   User charged for usage (default "anonymous")`

var blankLine = regexp.MustCompile(`\n[ \t]*\n`)

func process(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("process", flag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, processUsage)
	}

	var cfgPath, feature, instructions, userID string
	fs.StringVar(&cfgPath, "config", "", "path to configuration file")
	fs.StringVar(&feature, "feature", "", "feature to run")
	fs.StringVar(&instructions, "instructions", "", "custom instructions")
	fs.StringVar(&userID, "user", assist.AnonymousUser, "user charged for usage")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return fmt.Errorf("parse process flags: %w", err)
	}

	if cfgPath == "" {
		return errors.New("process command requires --config <path>")
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}

	a, err := wire(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()

	input, err := io.ReadAll(os.Stdin)
	if err != nil {
		return fmt.Errorf("read stdin: %w", err)
	}

	req := assist.Request{
		Feature:            feature,
		Text:               splitParagraphs(string(input)),
		CustomInstructions: instructions,
	}
	return runProcess(ctx, a.service, req, userID, os.Stdout)
}

func runProcess(ctx context.Context, service *assist.Service, req assist.Request, userID string, out io.Writer) error {
	enc := json.NewEncoder(out)
	res, err := service.Process(ctx, req, userID, func(ev models.OutputEvent) error {
		return enc.Encode(ev)
	})
	if err != nil {
		return err
	}
	if !res.Succeeded {
		if err := enc.Encode(models.TerminalError()); err != nil {
			return fmt.Errorf("write terminal error: %w", err)
		}
		return assist.ErrAllModelsFailed
	}
	return nil
}

// splitParagraphs breaks text on blank lines, dropping empty paragraphs.
func splitParagraphs(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	var out []string
	for _, p := range blankLine.Split(text, -1) {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
