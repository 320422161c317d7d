package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/promptboost/promptboost/internal/mcp"
	"github.com/promptboost/promptboost/internal/rewrite"
	"github.com/promptboost/promptboost/internal/store"
)

// Version is set via -ldflags at build time.
var Version = "dev"

// cliCommands contains known CLI subcommands.
var cliCommands = map[string]bool{
	"run": true, "rewrite": true, "template": true,
	"config": true, "web": true,
	"help": true,
}

// isCLIMode determines if we should run CLI vs MCP server.
func isCLIMode() bool {
	if len(os.Args) < 2 {
		return false // No args → MCP server
	}
	arg := os.Args[1]
	// Known subcommand → CLI
	if cliCommands[arg] {
		return true
	}
	// --help or --version → CLI
	if arg == "--help" || arg == "-h" || arg == "--version" || arg == "-v" {
		return true
	}
	return false // Default → MCP server
}

// isHelpOrVersion returns true if the user is requesting help or version info.
func isHelpOrVersion() bool {
	if len(os.Args) < 2 {
		return false
	}
	arg := os.Args[1]
	return arg == "--help" || arg == "-h" || arg == "--version" || arg == "-v" || arg == "help"
}

// isTerminal returns true if stdin is a terminal (not piped).
func isTerminal() bool {
	stat, _ := os.Stdin.Stat()
	return (stat.Mode() & os.ModeCharDevice) != 0
}

// printBanner displays a friendly banner when run interactively without args.
func printBanner() {
	fmt.Println(`
   ___ ___
  | _ \ _ )
  |  _/ _ \
  |_| |___/  PromptBoost

  Prompt rewrite layer for browser chat

  Usage: promptboost <command> [options]
         promptboost --help

  MCP server mode requires piped input.`)
}

// mcpDisabledTools extracts --disable-tools from MCP-mode args.
func mcpDisabledTools(args []string) []string {
	for i, arg := range args {
		if val, ok := strings.CutPrefix(arg, "--disable-tools="); ok {
			return splitToolNames(val)
		}
		if arg == "--disable-tools" && i+1 < len(args) {
			return splitToolNames(args[i+1])
		}
	}
	return nil
}

func splitToolNames(s string) []string {
	parts := strings.Split(s, ",")
	names := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			names = append(names, t)
		}
	}
	return names
}

func main() {
	// No args + interactive terminal → show banner and exit
	if len(os.Args) < 2 && isTerminal() {
		printBanner()
		return
	}

	// Handle --help/--version before store init (no store needed)
	if isHelpOrVersion() {
		app := newCLIApp(nil)
		if err := app.Run(os.Args); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: could not determine home directory: %v\n", err)
		os.Exit(1)
	}

	baseDir := filepath.Join(homeDir, ".promptboost")

	s, err := store.Open(baseDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: failed to open store: %v\n", err)
		os.Exit(1)
	}
	defer s.Close()

	// CLI mode: known subcommand
	if isCLIMode() {
		app := newCLIApp(s)
		if err := app.Run(os.Args); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	// Unknown argument + terminal → show error (don't start MCP server)
	if len(os.Args) >= 2 && isTerminal() {
		fmt.Fprintf(os.Stderr, "error: unknown command %q\n", os.Args[1])
		fmt.Fprintf(os.Stderr, "Run 'promptboost --help' for usage.\n")
		os.Exit(1)
	}

	// MCP server mode (default)
	disabled := mcpDisabledTools(os.Args[1:])
	if unknown := mcp.ValidateDisabledTools(disabled); len(unknown) > 0 {
		fmt.Fprintf(os.Stderr, "error: unknown tools in --disable-tools: %s\n", strings.Join(unknown, ", "))
		os.Exit(1)
	}
	if err := mcp.Run(s, rewrite.NewClient(), Version, disabled); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
