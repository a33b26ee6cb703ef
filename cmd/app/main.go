package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/dastan/internal"
	"github.com/starford/dastan/internal/reader"
	pkgconfig "github.com/starford/dastan/pkg/config"
)

// version is set at build time via -ldflags.
var version = "dev"

func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	configPath := cmd.String("config")

	cfg := internal.NewDefaultConfig()
	found, err := pkgconfig.LoadOptional(configPath, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if !found {
		slog.Warn("config file not found, using defaults", slog.String("path", configPath))
	}
	return cfg, nil
}

func serve(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	opts := []internal.Option{
		internal.WithConfig(cfg),
		internal.WithVersion(version),
	}

	if err := internal.Run(ctx, opts...); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}

	return nil
}

func mcp(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := internal.RunMCP(ctx, internal.WithConfig(cfg), internal.WithVersion(version)); err != nil {
		return fmt.Errorf("mcp run error: %w", err)
	}
	return nil
}

func lookup(ctx context.Context, cmd *cli.Command) error {
	word := cmd.Args().First()
	if word == "" {
		return fmt.Errorf("usage: dastan lookup <word> [--context TEXT] [--heritage]")
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	in := reader.LookupInput{Word: word, Context: cmd.String("context")}
	if cmd.IsSet("heritage") {
		heritage := cmd.Bool("heritage")
		in.HeritageMode = &heritage
	}
	return internal.RunLookup(ctx, in, os.Stdout, internal.WithConfig(cfg), internal.WithVersion(version))
}

func main() {
	cmd := &cli.Command{
		Name:    "dastan",
		Usage:   "Persian reading assistant with schema-validated model answers",
		Version: version,
		Action:  serve,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP API",
				Action: serve,
			},
			{
				Name:   "mcp",
				Usage:  "Serve the reading tools over MCP on stdio",
				Action: mcp,
			},
			{
				Name:      "lookup",
				Usage:     "Look up one word and print its WordInfo",
				ArgsUsage: "<word>",
				Action:    lookup,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "context",
						Usage: "Text the word appeared in",
					},
					&cli.BoolFlag{
						Name:  "heritage",
						Usage: "Answer for a heritage speaker (defaults to the saved setting)",
					},
				},
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
