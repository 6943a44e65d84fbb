package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/thefounder-seb/btmg/internal"
	"github.com/thefounder-seb/btmg/internal/reconcile"
	pkgconfig "github.com/thefounder-seb/btmg/pkg/config"
)

func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.Load(cmd.String("config"), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

// build wires the subsystems for a one-shot command and hands them to fn.
func build(cmd *cli.Command, fn func(cfg *internal.Config, sys *internal.System) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	sys, err := internal.Build(cfg, slog.Default(), false)
	if err != nil {
		return err
	}
	defer sys.Close()
	return fn(cfg, sys)
}

func printJSON(v any) {
	out, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(out))
}

func main() {
	configFlag := &cli.StringFlag{
		Name:        "config",
		Aliases:     []string{"c"},
		Usage:       "Path to config file",
		DefaultText: "config/config.yaml",
		Value:       "config/config.yaml",
		Sources:     cli.EnvVars("BTMG_CONFIG_FILE"),
	}

	cmd := &cli.Command{
		Name:  "btmg",
		Usage: "Schema-enforced bitemporal memory graph with document reconciliation and codebase scanning",
		Flags: []cli.Flag{configFlag},
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "Run the HTTP API server (and docs watcher when enabled)",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					cfg, err := loadConfig(cmd)
					if err != nil {
						return err
					}
					return internal.Run(ctx, internal.WithConfig(cfg))
				},
			},
			{
				Name:  "mcp",
				Usage: "Run the MCP server on stdio for agent integration",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return build(cmd, func(cfg *internal.Config, sys *internal.System) error {
						return internal.ServeMCP(cfg, sys)
					})
				},
			},
			{
				Name:  "sync",
				Usage: "Reconcile the graph with the document tree once",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "strategy", Usage: "graph-wins, docs-wins, merge or fail"},
					&cli.StringFlag{Name: "actor", Value: "cli", Usage: "Actor recorded in the audit log"},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return build(cmd, func(cfg *internal.Config, sys *internal.System) error {
						if sys.Engine == nil {
							return fmt.Errorf("docs output_dir is not configured")
						}
						strategy := cfg.Sync.Strategy()
						if s := cmd.String("strategy"); s != "" {
							strategy = reconcile.Strategy(s)
						}
						res, err := sys.Engine.Sync(ctx, strategy, cmd.String("actor"), nil)
						if res != nil {
							printJSON(res)
						}
						return err
					})
				},
			},
			{
				Name:      "scan",
				Usage:     "Scan a codebase and ingest its artifacts",
				ArgsUsage: "<path-or-git-url>",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "dry-run", Usage: "Map artifacts without writing to the graph"},
					&cli.StringFlag{Name: "actor", Value: "cli", Usage: "Actor recorded in the audit log"},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					target := cmd.Args().First()
					if target == "" {
						return fmt.Errorf("scan target is required")
					}
					return build(cmd, func(cfg *internal.Config, sys *internal.System) error {
						res, err := sys.Scanner.Scan(ctx, target, cmd.Bool("dry-run"), cmd.String("actor"))
						if res != nil {
							printJSON(res)
						}
						return err
					})
				},
			},
			{
				Name:      "validate",
				Usage:     "Validate a JSON property map against a schema label",
				ArgsUsage: "<label> <props-json>",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					label := cmd.Args().Get(0)
					rawProps := cmd.Args().Get(1)
					if label == "" || rawProps == "" {
						return fmt.Errorf("usage: validate <label> <props-json>")
					}
					var props map[string]any
					if err := json.Unmarshal([]byte(rawProps), &props); err != nil {
						return fmt.Errorf("props must be a JSON object: %w", err)
					}
					return build(cmd, func(cfg *internal.Config, sys *internal.System) error {
						normalized, err := sys.Service.Validate(label, props)
						if err != nil {
							return err
						}
						printJSON(map[string]any{"valid": true, "normalized": normalized})
						return nil
					})
				},
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
