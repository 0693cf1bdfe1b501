package cmd

import (
	"context"
	"fmt"
	"strings"
)

const usageText = `manuscript-assist streams AI text transformations for a manuscript editor.

Usage:
  manuscript-assist <command> [flags]

Commands:
  serve    Start the HTTP and WebSocket server
  process  Run one feature over text read from stdin
  usage    Show recorded token usage for a user

Flags:
  -h, --help  Show this help message`

// Execute runs the CLI dispatcher with the provided arguments.
func Execute(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return printUsage()
	}

	switch args[0] {
	case "serve":
		return serve(ctx, args[1:])
	case "process":
		return process(ctx, args[1:])
	case "usage":
		return showUsage(ctx, args[1:])
	case "help", "-h", "--help":
		return printUsage()
	default:
		return fmt.Errorf("unknown command %q\n\n%s", args[0], usageText)
	}
}

func printUsage() error {
	fmt.Println(strings.TrimSpace(usageText))
	return nil
}
