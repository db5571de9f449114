// Package main seeds entity types and attribute declarations.
//
// It declares the built-in record types (course, subject,
// maintenance_request) merged with the entity types of EAV_SCHEMA_FILE, and
// applies migrations first when -migrate is given. Running it again is safe.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"registrar/internal/app"
	"registrar/internal/config"
	appctx "registrar/internal/core/context"
	"registrar/pkg/logger"
)

func main() {
	envFile := flag.String("env-file", ".env", "dotenv file loaded before the environment")
	schemaFile := flag.String("file", "", "YAML schema file (defaults to EAV_SCHEMA_FILE)")
	migrate := flag.Bool("migrate", false, "apply migrations before seeding")
	flag.Parse()

	if err := run(*envFile, *schemaFile, *migrate); err != nil {
		fmt.Fprintf(os.Stderr, "eav-seed: %v\n", err)
		os.Exit(1)
	}
}

func run(envFile, schemaFile string, migrate bool) error {
	cfg, err := config.Load(envFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := logger.New(cfg.Logger())
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	ctx = logger.WithLogger(ctx, log)
	ctx = appctx.WithTrace(ctx, appctx.NewTraceContext("eav-seed"))

	a, err := app.New(ctx, cfg)
	if err != nil {
		log.Errorw("failed to connect to database", "error", err)
		return err
	}
	defer a.Close()

	if migrate {
		version, err := a.Migrate(ctx)
		if err != nil {
			log.Errorw("failed to migrate", "error", err)
			return err
		}
		log.Infow("migrations applied", "version", version)
	}

	file := schemaFile
	if file == "" {
		file = cfg.SchemaFile
	}

	res, err := a.Seed(ctx, file)
	if err != nil {
		log.Errorw("failed to seed schema", "file", file, "error", err)
		return err
	}

	log.Infow("seeding completed successfully",
		"entity_types", res.EntityTypes,
		"attributes", res.Attributes,
	)
	return nil
}
