package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/hpungsan/whispr/internal/config"
	"github.com/hpungsan/whispr/internal/logging"
	"github.com/hpungsan/whispr/internal/mcp"
	"github.com/hpungsan/whispr/internal/ops"
	"github.com/hpungsan/whispr/internal/watch"
)

// Version is set via -ldflags at build time.
var Version = "dev"

// cliCommands contains known CLI subcommands.
var cliCommands = map[string]bool{
	"serve": true, "watch": true,
	"folder": true, "tag": true, "models": true,
	"card": true, "assess": true,
	"config": true, "vault": true,
	"help": true,
}

// isCLIMode determines if we should run CLI vs MCP server.
func isCLIMode() bool {
	if len(os.Args) < 2 {
		return false // No args → MCP server
	}
	arg := os.Args[1]
	if arg == "--verbose" && len(os.Args) > 2 {
		arg = os.Args[2]
	}
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
           _     _
 __      _| |__ (_)___ _ __  _ __
 \ \ /\ / / '_ \| / __| '_ \| '__|
  \ V  V /| | | | \__ \ |_) | |
   \_/\_/ |_| |_|_|___/ .__/|_|
                      |_|

  Local clipboard history with encrypted folders

  Usage: whispr <command> [options]
         whispr --help

  MCP server mode requires piped input.`)
}

func main() {
	// No args + interactive terminal → show banner and exit
	if len(os.Args) < 2 && isTerminal() {
		printBanner()
		return
	}

	// Handle --help/--version before engine init (no DB needed)
	if isHelpOrVersion() {
		app := newCLIApp(nil)
		if err := app.Run(os.Args); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	// Unknown argument + terminal → show error (don't start MCP server)
	if !isCLIMode() && len(os.Args) >= 2 && isTerminal() {
		fmt.Fprintf(os.Stderr, "error: unknown command %q\n", os.Args[1])
		fmt.Fprintf(os.Stderr, "Run 'whispr --help' for usage.\n")
		os.Exit(1)
	}

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("could not determine home directory: %w", err)
	}
	baseDir := filepath.Join(homeDir, ".whispr")
	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return fmt.Errorf("failed to create %s: %w", baseDir, err)
	}

	cfg, err := config.Load(baseDir)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := logging.New(baseDir, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	env := &appEnv{baseDir: baseDir, cfg: cfg, logger: logger}

	opts := ops.Options{BaseDir: baseDir, Config: cfg, Logger: logger}
	if clip := watch.NewSystemClipboard(); clip.Available() {
		env.clipboard = clip
		opts.Clipboard = clip
	}

	engine, err := ops.Open(context.Background(), opts)
	if err != nil {
		return fmt.Errorf("failed to initialize: %w", err)
	}
	defer engine.Close()
	env.engine = engine

	// CLI mode: known subcommand
	if isCLIMode() {
		return newCLIApp(env).Run(os.Args)
	}

	// MCP server mode (default)
	if unknown := mcp.ValidateDisabledTools(cfg.DisabledTools); len(unknown) > 0 {
		logger.Warn("unknown tools in disabled_tools", zap.Strings("tools", unknown))
	}
	if unknown := mcp.ValidateDisabledTypes(cfg.DisabledTypes); len(unknown) > 0 {
		logger.Warn("unknown types in disabled_types", zap.Strings("types", unknown))
	}
	return mcp.Run(engine, cfg, Version)
}
