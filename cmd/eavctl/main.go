// Package main is eavctl, the command line client of the EAV storage engine.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"registrar/internal/app"
	"registrar/internal/config"
	appctx "registrar/internal/core/context"
	"registrar/pkg/logger"
)

func main() {
	args := os.Args
	if len(args) == 1 {
		args = append(args, "--help")
	}

	root := &cli.Command{
		Name:  "eavctl",
		Usage: "Manage generic entities stored as entity-attribute-value rows",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "env-file", Value: ".env", Usage: "dotenv file loaded before the environment"},
		},
		Commands: []*cli.Command{
			migrateCommand(),
			seedCommand(),
			createCommand(),
			updateCommand(),
			getCommand(),
			deleteCommand(),
			queryCommand(),
			attributesCommand(),
			coursesCommand(),
		},
	}

	if err := root.Run(context.Background(), args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// withApp loads configuration, wires the engine and runs fn with it.
func withApp(ctx context.Context, c *cli.Command, fn func(ctx context.Context, a *app.App) error) error {
	cfg, err := config.Load(c.String("env-file"))
	if err != nil {
		return err
	}

	log, err := logger.New(cfg.Logger())
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = log.Sync() }()
	ctx = logger.WithLogger(ctx, log)
	ctx = appctx.WithTrace(ctx, appctx.NewTraceContext(c.FullName()))

	a, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	return fn(ctx, a)
}
