package main

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/hpungsan/whispr/internal/config"
	"github.com/hpungsan/whispr/internal/errors"
	"github.com/hpungsan/whispr/internal/item"
	"github.com/hpungsan/whispr/internal/logging"
	"github.com/hpungsan/whispr/internal/ops"
	"github.com/hpungsan/whispr/internal/watch"
	"github.com/hpungsan/whispr/internal/web"
)

// discoveryRetry is how often serve retries model discovery until it succeeds.
const discoveryRetry = 30 * time.Second

// appEnv carries the process-wide services commands run against.
type appEnv struct {
	baseDir   string
	cfg       *config.Config
	logger    *zap.Logger
	engine    *ops.Engine
	clipboard *watch.SystemClipboard
}

// newCLIApp creates the CLI application with all commands.
func newCLIApp(env *appEnv) *cli.App {
	app := &cli.App{
		Name:    "whispr",
		Usage:   "Local clipboard history with encrypted folders",
		Version: Version,
		Commands: []*cli.Command{
			serveCmd(env),
			watchCmd(env),
			folderCmd(env),
			tagCmd(env),
			modelsCmd(env),
			cardCmd(env),
			assessCmd(env),
			configCmd(env),
			vaultCmd(env),
		},
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "verbose", Usage: "Also log to stderr"},
		},
		Before: func(c *cli.Context) error {
			if !c.Bool("verbose") {
				return nil
			}
			console, err := logging.NewConsole(env.cfg.LogLevel)
			if err != nil {
				return outputError(errors.NewInvalidRequest(err.Error()))
			}
			env.logger = zap.New(zapcore.NewTee(logging.OrNop(env.logger).Core(), console.Core()))
			return nil
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

// serveCmd runs the web UI together with the clipboard watcher.
func serveCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the web UI on 127.0.0.1 and watch the clipboard",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "port", Aliases: []string{"p"}, Value: 7878, Usage: "Port to listen on"},
			&cli.BoolFlag{Name: "no-watch", Usage: "Do not observe the system clipboard"},
		},
		Action: func(c *cli.Context) error {
			ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			srv, err := web.NewServer(env.engine, Version, c.Int("port"), env.logger.Named("web"))
			if err != nil {
				return outputError(err)
			}
			fmt.Fprintf(os.Stderr, "Whispr UI running at http://%s\n", srv.Addr)

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error { return web.Run(gctx, srv, env.logger.Named("web")) })
			g.Go(func() error {
				env.engine.AI().RunDiscovery(gctx, discoveryRetry)
				return nil
			})
			startBackground(gctx, g, env, !c.Bool("no-watch"), nil)

			if err := g.Wait(); err != nil {
				return outputError(err)
			}
			return nil
		},
	}
}

// watchCmd observes the clipboard headless and prints each insert as JSON.
func watchCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:  "watch",
		Usage: "Observe the clipboard and print every new history item",
		Action: func(c *cli.Context) error {
			if env.clipboard == nil {
				return outputError(errors.NewInvalidRequest("no system clipboard is available"))
			}
			ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			enc := json.NewEncoder(os.Stdout)
			g, gctx := errgroup.WithContext(ctx)
			startBackground(gctx, g, env, true, func(it *item.Item) {
				_ = enc.Encode(ops.NewItemView(it, false))
			})
			if err := g.Wait(); err != nil {
				return outputError(err)
			}
			return nil
		},
	}
}

// startBackground adds the clipboard poller and the config watcher to g.
func startBackground(ctx context.Context, g *errgroup.Group, env *appEnv, watchClipboard bool, onInsert func(*item.Item)) {
	if watchClipboard && env.clipboard != nil {
		if err := env.clipboard.Prime(); err != nil {
			env.logger.Warn("clipboard prime failed", zap.Error(err))
		}
		interval := time.Duration(env.cfg.PollIntervalMS) * time.Millisecond
		poller := watch.NewPoller(env.clipboard, env.engine.History(), interval, env.logger.Named("watch"))
		poller.OnInsert = onInsert
		g.Go(func() error { return poller.Run(ctx) })
	}

	cw, err := watch.NewConfigWatcher(env.baseDir, func(cfg *config.Config) {
		env.engine.ApplyConfig(ctx, cfg)
	}, env.logger.Named("config"))
	if err != nil {
		env.logger.Warn("config watcher unavailable", zap.Error(err))
		return
	}
	g.Go(func() error { return cw.Run(ctx) })
}

// folderCmd groups the encrypted folder commands.
func folderCmd(env *appEnv) *cli.Command {
	listFlags := []cli.Flag{
		&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Value: ops.DefaultListLimit, Usage: "Max items to return"},
		&cli.IntFlag{Name: "offset", Aliases: []string{"o"}, Usage: "Items to skip"},
	}
	return &cli.Command{
		Name:  "folder",
		Usage: "Manage encrypted folders",
		Subcommands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List folders, most recently updated first",
				Action: func(c *cli.Context) error {
					return result(env.engine.FolderList(c.Context))
				},
			},
			{
				Name:      "create",
				Usage:     "Create an empty folder",
				ArgsUsage: "<name>",
				Action: func(c *cli.Context) error {
					return result(env.engine.FolderCreate(c.Context, strings.Join(c.Args().Slice(), " ")))
				},
			},
			{
				Name:      "rename",
				Usage:     "Rename a folder",
				ArgsUsage: "<id> <name>",
				Action: func(c *cli.Context) error {
					return result(env.engine.FolderRename(c.Context, ops.FolderRenameInput{
						ID:   c.Args().First(),
						Name: strings.Join(c.Args().Tail(), " "),
					}))
				},
			},
			{
				Name:      "delete",
				Usage:     "Delete a folder and its contents",
				ArgsUsage: "<id>",
				Action: func(c *cli.Context) error {
					return result(env.engine.FolderDelete(c.Context, c.Args().First()))
				},
			},
			{
				Name:      "items",
				Usage:     "List a folder's items",
				ArgsUsage: "<id>",
				Flags:     listFlags,
				Action: func(c *cli.Context) error {
					return result(env.engine.FolderItems(c.Context, ops.FolderItemsInput{
						FolderID: c.Args().First(),
						Limit:    c.Int("limit"),
						Offset:   c.Int("offset"),
					}))
				},
			},
			{
				Name:      "search",
				Usage:     "Search a folder's items",
				ArgsUsage: "<id> <query>",
				Flags:     listFlags,
				Action: func(c *cli.Context) error {
					query := strings.Join(c.Args().Tail(), " ")
					if strings.TrimSpace(query) == "" {
						return outputError(errors.NewInvalidRequest("query is required"))
					}
					return result(env.engine.FolderItems(c.Context, ops.FolderItemsInput{
						FolderID: c.Args().First(),
						Query:    query,
						Limit:    c.Int("limit"),
						Offset:   c.Int("offset"),
					}))
				},
			},
			{
				Name:      "add",
				Usage:     "Add text to a folder (reads content from stdin)",
				ArgsUsage: "<id>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "source", Usage: "Source app recorded on the item"},
				},
				Action: func(c *cli.Context) error {
					if !stdinHasData() {
						return outputError(errors.NewInvalidRequest("content must be piped via stdin"))
					}
					content, err := readStdin()
					if err != nil {
						return outputError(errors.NewInternal(err))
					}
					view, err := env.engine.HistoryAdd(c.Context, ops.HistoryAddInput{Content: content, SourceApp: c.String("source")})
					if err != nil {
						return outputError(err)
					}
					return result(env.engine.FolderAddItem(c.Context, ops.FolderItemInput{
						FolderID: c.Args().First(),
						ItemID:   view.ID,
					}))
				},
			},
			{
				Name:      "remove",
				Usage:     "Remove an item from a folder",
				ArgsUsage: "<id> <item-id>",
				Action: func(c *cli.Context) error {
					return result(env.engine.FolderRemoveItem(c.Context, ops.FolderItemInput{
						FolderID: c.Args().First(),
						ItemID:   c.Args().Get(1),
					}))
				},
			},
			{
				Name:      "export",
				Usage:     "Export a folder's decrypted items to JSONL",
				ArgsUsage: "<id>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "path", Usage: "Output path (default: ~/.whispr/exports/)"},
				},
				Action: func(c *cli.Context) error {
					return result(env.engine.FolderExport(c.Context, ops.FolderExportInput{
						FolderID: c.Args().First(),
						Path:     c.String("path"),
					}))
				},
			},
			{
				Name:  "import",
				Usage: "Create a folder from a JSONL export",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "path", Required: true, Usage: "Import file path"},
					&cli.StringFlag{Name: "name", Usage: "Folder name (default: the exported name)"},
				},
				Action: func(c *cli.Context) error {
					return result(env.engine.FolderImport(c.Context, ops.FolderImportInput{
						Path: c.String("path"),
						Name: c.String("name"),
					}))
				},
			},
		},
	}
}

// tagCmd groups the tag vocabulary commands.
func tagCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:  "tag",
		Usage: "Manage the tag vocabulary",
		Subcommands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List tags",
				Action: func(c *cli.Context) error {
					return outputJSON(env.engine.TagList(c.Context))
				},
			},
			{
				Name:      "add",
				Usage:     "Add a tag",
				ArgsUsage: "<tag>",
				Action: func(c *cli.Context) error {
					return result(env.engine.TagAdd(c.Context, c.Args().First()))
				},
			},
			{
				Name:      "remove",
				Usage:     "Remove a tag",
				ArgsUsage: "<tag>",
				Action: func(c *cli.Context) error {
					return result(env.engine.TagRemove(c.Context, c.Args().First()))
				},
			},
			{
				Name:      "rename",
				Usage:     "Rename a tag",
				ArgsUsage: "<from> <to>",
				Action: func(c *cli.Context) error {
					return result(env.engine.TagRename(c.Context, ops.TagRenameInput{
						From: c.Args().First(),
						To:   c.Args().Get(1),
					}))
				},
			},
		},
	}
}

// modelsCmd groups model discovery and capability mapping.
func modelsCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:  "models",
		Usage: "Discover local models and map them to capabilities",
		Subcommands: []*cli.Command{
			{
				Name:  "discover",
				Usage: "Query the local inference server for models",
				Action: func(c *cli.Context) error {
					return result(env.engine.Discover(c.Context))
				},
			},
			{
				Name:  "list",
				Usage: "Show the model registry and capability mapping",
				Action: func(c *cli.Context) error {
					return outputJSON(env.engine.Models(c.Context))
				},
			},
			{
				Name:      "map",
				Usage:     "Assign a model to a capability",
				ArgsUsage: "<capability> <model>",
				Action: func(c *cli.Context) error {
					if c.Args().Get(1) == "" {
						return outputError(errors.NewInvalidRequest("model is required (use unmap to clear)"))
					}
					return result(env.engine.MapCapability(c.Context, ops.MapInput{
						Capability: c.Args().First(),
						Model:      c.Args().Get(1),
					}))
				},
			},
			{
				Name:      "unmap",
				Usage:     "Clear a capability's model assignment",
				ArgsUsage: "<capability>",
				Action: func(c *cli.Context) error {
					return result(env.engine.MapCapability(c.Context, ops.MapInput{Capability: c.Args().First()}))
				},
			},
			{
				Name:      "run",
				Usage:     "Run an AI action on text without recording it (argument or stdin)",
				ArgsUsage: "<action> [text]",
				Action: func(c *cli.Context) error {
					action := c.Args().First()
					text := strings.Join(c.Args().Tail(), " ")
					if text == "" {
						if !stdinHasData() {
							return outputError(errors.NewInvalidRequest("text must be given as an argument or piped via stdin"))
						}
						var err error
						if text, err = readStdin(); err != nil {
							return outputError(errors.NewInternal(err))
						}
					}
					out, err := env.engine.RunAction(c.Context, ops.RunActionInput{Content: text, Action: action})
					if err != nil {
						return outputError(err)
					}
					return outputJSON(map[string]string{"action": action, "result": out})
				},
			},
		},
	}
}

// cardCmd groups payment card helpers.
func cardCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:  "card",
		Usage: "Payment card helpers",
		Subcommands: []*cli.Command{
			{
				Name:      "inspect",
				Usage:     "Detect the card network and mask a number (argument or stdin)",
				ArgsUsage: "[number]",
				Action: func(c *cli.Context) error {
					text, err := argOrStdin(c)
					if err != nil {
						return outputError(err)
					}
					return outputJSON(env.engine.CardInspect(text))
				},
			},
		},
	}
}

// assessCmd classifies stdin text and reports its risk.
func assessCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:      "assess",
		Usage:     "Classify text and report whether it is sensitive (argument or stdin)",
		ArgsUsage: "[text]",
		Action: func(c *cli.Context) error {
			text, err := argOrStdin(c)
			if err != nil {
				return outputError(err)
			}
			return result(env.engine.Assess(text))
		},
	}
}

// configCmd shows the resolved configuration.
func configCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Inspect configuration",
		Subcommands: []*cli.Command{
			{
				Name:  "show",
				Usage: "Print the resolved configuration",
				Action: func(c *cli.Context) error {
					return outputJSON(env.engine.Config())
				},
			},
			{
				Name:      "capacity",
				Usage:     "Persist the history size (10..500)",
				ArgsUsage: "<n>",
				Action: func(c *cli.Context) error {
					n, err := strconv.Atoi(c.Args().First())
					if err != nil {
						return outputError(errors.NewInvalidRequest("capacity must be a number"))
					}
					return result(env.engine.SetCapacity(c.Context, n))
				},
			},
		},
	}
}

// vaultCmd reports on folder encryption.
func vaultCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:  "vault",
		Usage: "Inspect folder encryption",
		Subcommands: []*cli.Command{
			{
				Name:  "status",
				Usage: "Check key availability and every folder's readability",
				Action: func(c *cli.Context) error {
					return result(env.engine.VaultCheck(c.Context))
				},
			},
		},
	}
}

// Helper functions

// result prints v, or the error in CLI form.
func result[T any](v T, err error) error {
	if err != nil {
		return outputError(err)
	}
	return outputJSON(v)
}

// outputJSON marshals result to stdout as JSON.
func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError formats error for CLI.
func outputError(err error) error {
	var wErr *errors.WhisprError
	if stderrors.As(err, &wErr) {
		return cli.Exit(fmt.Sprintf("[%s] %s", wErr.Code, wErr.Message), 1)
	}
	return cli.Exit(err.Error(), 1)
}

// argOrStdin returns the joined arguments, or piped stdin when there are none.
func argOrStdin(c *cli.Context) (string, error) {
	if c.NArg() > 0 {
		return strings.Join(c.Args().Slice(), " "), nil
	}
	if !stdinHasData() {
		return "", errors.NewInvalidRequest("text must be given as an argument or piped via stdin")
	}
	text, err := readStdin()
	if err != nil {
		return "", errors.NewInternal(err)
	}
	return text, nil
}

// stdinHasData returns true if stdin has piped data (not a terminal).
func stdinHasData() bool {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) == 0
}

// readStdin reads all content from stdin.
func readStdin() (string, error) {
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
