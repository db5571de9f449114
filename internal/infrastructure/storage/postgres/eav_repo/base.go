// Package eav_repo provides the PostgreSQL implementation of the EAV type
// registry, entity store and query engine.
package eav_repo

import (
	"context"
	"sort"

	"github.com/Masterminds/squirrel"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"registrar/internal/core/apperror"
	appctx "registrar/internal/core/context"
	"registrar/pkg/logger"
)

// Table names.
const (
	tableEntityTypes  = "entity_types"
	tableAttributes   = "attributes"
	tableEntities     = "entities"
	tableEntityValues = "entity_values"
)

// SchemaChangedChannel is notified with the entity type id whenever a new
// attribute is declared.
const SchemaChangedChannel = "eav_schema_changed"

var tracer = otel.Tracer("registrar/eav")

// builder returns a squirrel builder with PostgreSQL placeholder format.
func builder() squirrel.StatementBuilderType {
	return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
}

func startSpan(ctx context.Context, name, typeCode string) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{attribute.String("eav.entity_type", typeCode)}
	if requestID := appctx.GetRequestID(ctx); requestID != "" {
		attrs = append(attrs, attribute.String("request_id", requestID))
	}
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// sortedKeys gives map iteration a stable order so that writes, warnings and
// generated SQL are deterministic.
func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// warnIgnored logs names skipped because the entity type does not declare them.
func warnIgnored(ctx context.Context, op, typeCode string, names []string) {
	if len(names) == 0 {
		return
	}
	logger.Warn(ctx, "ignoring undeclared attributes",
		"operation", op,
		"entity_type", typeCode,
		"attributes", names,
	)
}

// withAttribute tags codec errors with the attribute they came from.
func withAttribute(err error, name string) error {
	if appErr, ok := apperror.AsAppError(err); ok {
		return appErr.WithDetail("attribute", name)
	}
	return err
}
