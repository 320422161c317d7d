package main

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/promptboost/promptboost/internal/cdp"
	"github.com/promptboost/promptboost/internal/config"
	"github.com/promptboost/promptboost/internal/controls"
	"github.com/promptboost/promptboost/internal/errors"
	"github.com/promptboost/promptboost/internal/orchestrator"
	"github.com/promptboost/promptboost/internal/page"
	"github.com/promptboost/promptboost/internal/registry"
	"github.com/promptboost/promptboost/internal/rewrite"
	"github.com/promptboost/promptboost/internal/store"
	"github.com/promptboost/promptboost/internal/web"
)

// defaultWebPort is where the settings UI listens unless overridden.
const defaultWebPort = 8787

// newCLIApp creates the CLI application with all commands.
func newCLIApp(s *store.Store) *cli.App {
	app := &cli.App{
		Name:    "promptboost",
		Usage:   "Prompt rewrite layer for browser chat",
		Version: Version,
		Commands: []*cli.Command{
			runCmd(s),
			rewriteCmd(s),
			templateCmd(s),
			configCmd(s),
			webCmd(s),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

// runCmd creates the run command: attach to a browser tab and drive the
// injected controls until interrupted.
func runCmd(s *store.Store) *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Attach to a chat tab over DevTools and inject the boost controls",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "url", Aliases: []string{"u"}, Usage: "Substring to select the page target by URL"},
			&cli.StringFlag{Name: "devtools", Usage: "DevTools HTTP endpoint (overrides configuration)"},
		},
		Action: func(c *cli.Context) error {
			settings, err := s.Load()
			if err != nil {
				return outputError(err)
			}

			devtools := settings.DevToolsURL
			if v := c.String("devtools"); v != "" {
				devtools = v
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			doc, err := cdp.Attach(ctx, devtools, c.String("url"))
			if err != nil {
				return outputError(err)
			}
			defer doc.Close()

			adapter := page.New(doc, settings.Selectors)
			orc := orchestrator.New(s, adapter, rewrite.NewClient())
			ctrl := controls.New(s, orc, adapter)
			ctrl.OpenConfig = func() {
				log.Printf("settings UI: run 'promptboost web' and open http://127.0.0.1:%d/settings", defaultWebPort)
			}

			log.Printf("attached via %s, controls active (Ctrl+C to stop)", devtools)

			if err := ctrl.Run(ctx); err != nil && !stderrors.Is(err, context.Canceled) {
				return outputError(err)
			}
			return nil
		},
	}
}

// rewriteCmd creates the rewrite command: a one-shot rewrite without a
// browser attached.
func rewriteCmd(s *store.Store) *cli.Command {
	return &cli.Command{
		Name:      "rewrite",
		Usage:     "Rewrite text once (reads the draft from stdin or the first argument)",
		ArgsUsage: "[text]",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "instruction", Aliases: []string{"i"}, Usage: "Explicit rewrite instruction"},
			&cli.StringFlag{Name: "template", Aliases: []string{"t"}, Usage: "Template ID to rewrite with"},
		},
		Action: func(c *cli.Context) error {
			text := c.Args().First()
			if text == "" && stdinHasData() {
				var err error
				text, err = readStdin()
				if err != nil {
					return outputError(errors.NewInternal(err))
				}
			}

			settings, err := s.Load()
			if err != nil {
				return outputError(err)
			}

			// An Append template needs no service call; resolve the
			// template before rejecting an empty draft.
			instruction := c.String("instruction")
			if instruction == "" {
				id := c.String("template")
				if id == "" {
					id = settings.ActiveTemplateID
				}
				if id != "" {
					tpl, err := registry.Get(s, id)
					if err != nil {
						return outputError(err)
					}
					if tpl.Kind == store.KindAppend {
						body := strings.TrimSpace(tpl.Body)
						if body == "" {
							return outputError(errors.NewEmptyAppend(tpl.Label))
						}
						result := body
						if text != "" {
							result = text + "\n" + body
						}
						return outputJSON(map[string]string{"original": text, "rewritten": result})
					}
					instruction = tpl.Body
				} else {
					instruction = orchestrator.DefaultInstruction
				}
			}

			if text == "" {
				return outputError(errors.NewEmptyDraft())
			}

			opts := rewrite.Options{
				APIKey:   settings.APIKey,
				Endpoint: settings.Endpoint,
				Model:    settings.Model,
				Timeout:  time.Duration(settings.RewriteTimeoutSeconds) * time.Second,
			}

			rewritten, err := rewrite.NewClient().Rewrite(c.Context, text, instruction, opts)
			if err != nil {
				return outputError(err)
			}

			return outputJSON(map[string]string{"original": text, "rewritten": rewritten})
		},
	}
}

// templateCmd creates the template command group.
func templateCmd(s *store.Store) *cli.Command {
	return &cli.Command{
		Name:  "template",
		Usage: "Manage rewrite templates",
		Subcommands: []*cli.Command{
			templateListCmd(s),
			templateCreateCmd(s),
			templateUpdateCmd(s),
			templateDeleteCmd(s),
			templateReorderCmd(s),
			templateActivateCmd(s),
		},
	}
}

func templateListCmd(s *store.Store) *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List templates in user order",
		Action: func(c *cli.Context) error {
			templates, err := registry.List(s)
			if err != nil {
				return outputError(err)
			}
			settings, err := s.Load()
			if err != nil {
				return outputError(err)
			}
			return outputJSON(map[string]any{
				"templates": templates,
				"active_id": settings.ActiveTemplateID,
			})
		},
	}
}

func templateCreateCmd(s *store.Store) *cli.Command {
	return &cli.Command{
		Name:  "create",
		Usage: "Create a template (reads body from stdin unless --body is set)",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "label", Aliases: []string{"l"}, Required: true, Usage: "Display name (up to 20 characters)"},
			&cli.StringFlag{Name: "kind", Aliases: []string{"k"}, Value: string(store.KindBoosted), Usage: "Template kind: boosted|append"},
			&cli.StringFlag{Name: "body", Aliases: []string{"b"}, Usage: "Template body"},
		},
		Action: func(c *cli.Context) error {
			body := c.String("body")
			if body == "" && stdinHasData() {
				var err error
				body, err = readStdin()
				if err != nil {
					return outputError(errors.NewInternal(err))
				}
			}

			tpl, err := registry.Create(s, registry.CreateInput{
				Label: c.String("label"),
				Kind:  store.Kind(c.String("kind")),
				Body:  body,
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(tpl)
		},
	}
}

func templateUpdateCmd(s *store.Store) *cli.Command {
	return &cli.Command{
		Name:      "update",
		Usage:     "Update a template (unset fields keep their value)",
		ArgsUsage: "<id>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "label", Aliases: []string{"l"}, Usage: "New display name"},
			&cli.StringFlag{Name: "kind", Aliases: []string{"k"}, Usage: "New kind: boosted|append"},
			&cli.StringFlag{Name: "body", Aliases: []string{"b"}, Usage: "New body"},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return outputError(errors.NewInvalidRequest("template id is required"))
			}

			existing, err := registry.Get(s, c.Args().First())
			if err != nil {
				return outputError(err)
			}

			input := registry.UpdateInput{
				ID:    existing.ID,
				Label: existing.Label,
				Kind:  existing.Kind,
				Body:  existing.Body,
			}
			if c.IsSet("label") {
				input.Label = c.String("label")
			}
			if c.IsSet("kind") {
				input.Kind = store.Kind(c.String("kind"))
			}
			if c.IsSet("body") {
				input.Body = c.String("body")
			} else if stdinHasData() {
				body, err := readStdin()
				if err != nil {
					return outputError(errors.NewInternal(err))
				}
				if body != "" {
					input.Body = body
				}
			}

			tpl, err := registry.Update(s, input)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(tpl)
		},
	}
}

func templateDeleteCmd(s *store.Store) *cli.Command {
	return &cli.Command{
		Name:      "delete",
		Usage:     "Delete a template",
		ArgsUsage: "<id>",
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return outputError(errors.NewInvalidRequest("template id is required"))
			}
			id := c.Args().First()
			if err := registry.Delete(s, id); err != nil {
				return outputError(err)
			}
			return outputJSON(map[string]string{"deleted": id})
		},
	}
}

func templateReorderCmd(s *store.Store) *cli.Command {
	return &cli.Command{
		Name:      "reorder",
		Usage:     "Reorder templates (pass every template id in the new order)",
		ArgsUsage: "<id> <id> ...",
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return outputError(errors.NewInvalidRequest("at least one template id is required"))
			}
			if err := registry.Reorder(s, c.Args().Slice()); err != nil {
				return outputError(err)
			}
			templates, err := registry.List(s)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(map[string]any{"templates": templates})
		},
	}
}

func templateActivateCmd(s *store.Store) *cli.Command {
	return &cli.Command{
		Name:      "activate",
		Usage:     "Set the active template",
		ArgsUsage: "[id]",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "clear", Usage: "Clear the active template"},
		},
		Action: func(c *cli.Context) error {
			if c.Bool("clear") {
				if err := registry.SetActive(s, ""); err != nil {
					return outputError(err)
				}
				return outputJSON(map[string]string{"active_id": ""})
			}
			if c.NArg() < 1 {
				return outputError(errors.NewInvalidRequest("template id is required (or pass --clear)"))
			}
			id := c.Args().First()
			if err := registry.SetActive(s, id); err != nil {
				return outputError(err)
			}
			return outputJSON(map[string]string{"active_id": id})
		},
	}
}

// configCmd creates the config command group.
func configCmd(s *store.Store) *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Inspect and change configuration",
		Subcommands: []*cli.Command{
			configGetCmd(s),
			configSetCmd(s),
		},
	}
}

func configGetCmd(s *store.Store) *cli.Command {
	return &cli.Command{
		Name:  "get",
		Usage: "Show configuration (the API key is redacted)",
		Action: func(c *cli.Context) error {
			settings, err := s.Load()
			if err != nil {
				return outputError(err)
			}
			return outputJSON(map[string]any{
				"api_key_set":             settings.APIKey != "",
				"endpoint":                settings.Endpoint,
				"model":                   settings.Model,
				"preview":                 settings.Preview,
				"active_template_id":      settings.ActiveTemplateID,
				"rewrite_timeout_seconds": settings.RewriteTimeoutSeconds,
				"correlation_max_pending": settings.CorrelationMaxPending,
				"devtools_url":            settings.DevToolsURL,
				"selectors":               settings.Selectors,
			})
		},
	}
}

func configSetCmd(s *store.Store) *cli.Command {
	return &cli.Command{
		Name:  "set",
		Usage: "Change configuration values",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "api-key", Usage: "Text-generation service API key"},
			&cli.StringFlag{Name: "endpoint", Usage: "Chat-completions endpoint URL"},
			&cli.StringFlag{Name: "model", Usage: "Model identifier"},
			&cli.BoolFlag{Name: "preview", Usage: "Review rewrites before sending"},
			&cli.IntFlag{Name: "timeout", Usage: "Rewrite timeout in seconds"},
			&cli.IntFlag{Name: "max-pending", Usage: "Correlation queue capacity"},
			&cli.StringFlag{Name: "devtools-url", Usage: "Chrome DevTools HTTP endpoint"},
		},
		Action: func(c *cli.Context) error {
			// Only flags the user passed touch the stored document;
			// everything else stays unset so defaults remain revisable.
			saved, err := s.UpdateStored(func(stored *config.Settings) {
				if v := c.String("api-key"); v != "" {
					stored.APIKey = v
				}
				if v := c.String("endpoint"); v != "" {
					stored.Endpoint = v
				}
				if v := c.String("model"); v != "" {
					stored.Model = v
				}
				if v := c.Int("timeout"); v > 0 {
					stored.RewriteTimeoutSeconds = v
				}
				if v := c.Int("max-pending"); v > 0 {
					stored.CorrelationMaxPending = v
				}
				if v := c.String("devtools-url"); v != "" {
					stored.DevToolsURL = v
				}
				if c.IsSet("preview") {
					stored.Preview = c.Bool("preview")
				}
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(map[string]any{
				"api_key_set":             saved.APIKey != "",
				"endpoint":                saved.Endpoint,
				"model":                   saved.Model,
				"preview":                 saved.Preview,
				"active_template_id":      saved.ActiveTemplateID,
				"rewrite_timeout_seconds": saved.RewriteTimeoutSeconds,
				"correlation_max_pending": saved.CorrelationMaxPending,
				"devtools_url":            saved.DevToolsURL,
			})
		},
	}
}

// webCmd creates the web command.
func webCmd(s *store.Store) *cli.Command {
	return &cli.Command{
		Name:  "web",
		Usage: "Start the settings web UI",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "bind", Value: "127.0.0.1", Usage: "Bind address"},
			&cli.IntFlag{Name: "port", Aliases: []string{"p"}, Value: defaultWebPort, Usage: "Listen port"},
		},
		Action: func(c *cli.Context) error {
			srv := web.NewServer(s, Version, c.String("bind"), c.Int("port"))
			return web.Run(srv)
		},
	}
}

// Helper functions

// outputJSON marshals result to stdout as JSON.
func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError formats error for CLI.
func outputError(err error) error {
	if boostErr, ok := err.(*errors.BoostError); ok {
		return cli.Exit(fmt.Sprintf("[%s] %s", boostErr.Code, boostErr.Message), 1)
	}
	return cli.Exit(err.Error(), 1)
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
