// Package app wires the storage engine for the command line binaries.
package app

import (
	"context"
	"fmt"

	"registrar/internal/config"
	"registrar/internal/domain/eav"
	"registrar/internal/domain/records/course"
	"registrar/internal/domain/records/maintenance"
	"registrar/internal/domain/records/subject"
	"registrar/internal/infrastructure/cache"
	"registrar/internal/infrastructure/storage/postgres"
	"registrar/internal/infrastructure/storage/postgres/eav_repo"
	"registrar/internal/metadata"
	"registrar/pkg/logger"
)

// App holds the wired components. Close releases them.
type App struct {
	Config   config.Config
	Pool     *postgres.Pool
	TxM      *postgres.TxManager
	Registry eav.TypeRegistry
	Cache    *cache.RegistryCache
	Store    *eav_repo.Store
	Query    *eav_repo.QueryEngine

	Courses     *course.Repository
	Subjects    *subject.Repository
	Maintenance *maintenance.Repository
}

// New connects to the database and builds the registry, store and query engine.
// The registry is cached only when cfg.SchemaCache is set.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	pool, err := postgres.NewPool(ctx, cfg.Pool())
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}

	txm := postgres.NewTxManager(pool.Pool).WithOptions(cfg.TxOptions())

	a := &App{Config: cfg, Pool: pool, TxM: txm}
	a.Registry = eav_repo.NewRegistry(txm)
	if cfg.SchemaCache {
		a.Cache = cache.NewRegistryCache(a.Registry, txm, pool.Pool)
		if err := a.Cache.Start(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("start registry cache: %w", err)
		}
		a.Registry = a.Cache
	}

	a.Store = eav_repo.NewStore(txm, a.Registry)
	a.Query = eav_repo.NewQueryEngine(txm, a.Registry, a.Store)
	a.Courses = course.NewRepository(a.Store, a.Query)
	a.Subjects = subject.NewRepository(a.Store, a.Query)
	a.Maintenance = maintenance.NewRepository(a.Store, a.Query)

	logger.Info(ctx, "storage engine ready", "schema_cache", cfg.SchemaCache)
	return a, nil
}

// Close stops the cache listener and closes the pool.
func (a *App) Close() {
	if a.Cache != nil {
		a.Cache.Stop()
	}
	a.Pool.Close()
}

// Migrate applies pending migrations and returns the resulting version.
func (a *App) Migrate(ctx context.Context) (int64, error) {
	if err := postgres.Migrate(ctx, a.Pool.Pool); err != nil {
		return 0, err
	}
	return postgres.MigrationVersion(ctx, a.Pool.Pool)
}

// Seed declares the record schemas, merged with the schema file when given.
func (a *App) Seed(ctx context.Context, schemaFile string) (metadata.ApplyResult, error) {
	defs, err := Schemas(schemaFile)
	if err != nil {
		return metadata.ApplyResult{}, err
	}
	return metadata.Apply(ctx, a.TxM, a.Registry, defs)
}

// RecordSchemas returns the schemas of the built-in record types.
func RecordSchemas() []metadata.EntityDef {
	return []metadata.EntityDef{
		course.NewRepository(nil, nil).Schema(),
		subject.NewRepository(nil, nil).Schema(),
		maintenance.NewRepository(nil, nil).Schema(),
	}
}

// Schemas merges the built-in record schemas with the entity types of
// schemaFile. Fields already declared by a record type are kept as is.
func Schemas(schemaFile string) ([]metadata.EntityDef, error) {
	reg := metadata.NewRegistry()
	for _, def := range RecordSchemas() {
		if err := reg.Register(def); err != nil {
			return nil, err
		}
	}

	if schemaFile != "" {
		defs, err := metadata.LoadFile(schemaFile)
		if err != nil {
			return nil, err
		}
		for _, def := range defs {
			if err := reg.Merge(def); err != nil {
				return nil, fmt.Errorf("merge %s: %w", def.Name, err)
			}
		}
	}
	return reg.List(), nil
}
