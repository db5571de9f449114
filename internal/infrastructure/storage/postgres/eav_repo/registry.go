package eav_repo

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"

	"registrar/internal/core/apperror"
	"registrar/internal/domain/eav"
	"registrar/internal/infrastructure/storage/postgres"
	"registrar/pkg/logger"
)

var _ eav.TypeRegistry = (*Registry)(nil)

// Registry resolves entity types and attribute declarations. Every call goes
// to the database; see cache.RegistryCache for a memoizing decorator.
type Registry struct {
	txm *postgres.TxManager
}

// NewRegistry creates a registry bound to txm.
func NewRegistry(txm *postgres.TxManager) *Registry {
	return &Registry{txm: txm}
}

// attributeRow mirrors the attributes table.
type attributeRow struct {
	ID           int64  `db:"id"`
	EntityTypeID int64  `db:"entity_type_id"`
	Name         string `db:"name"`
	Label        string `db:"label"`
	DataType     string `db:"data_type"`
	IsRequired   bool   `db:"is_required"`
	IsUnique     bool   `db:"is_unique"`
}

func (r attributeRow) toDefinition() eav.AttributeDefinition {
	return eav.AttributeDefinition{
		ID:           r.ID,
		EntityTypeID: r.EntityTypeID,
		Name:         r.Name,
		Label:        r.Label,
		DataType:     eav.DataType(r.DataType),
		IsRequired:   r.IsRequired,
		IsUnique:     r.IsUnique,
	}
}

var attributeColumns = []string{
	"id", "entity_type_id", "name", "COALESCE(label, '') AS label",
	"data_type", "is_required", "is_unique",
}

// ResolveEntityTypeID returns the id of the entity type with the given code.
func (r *Registry) ResolveEntityTypeID(ctx context.Context, code string) (int64, error) {
	q := builder().
		Select("id").
		From(tableEntityTypes).
		Where(squirrel.Eq{"code": code}).
		Limit(1)

	sql, args, err := q.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build query: %w", err)
	}

	var id int64
	err = r.txm.GetQuerier(ctx).QueryRow(ctx, sql, args...).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, apperror.NewEntityTypeNotFound(code)
	}
	if err != nil {
		return 0, fmt.Errorf("resolve entity type %q: %w", code, err)
	}
	return id, nil
}

// ListAttributes returns the declared attributes of a type ordered by name.
func (r *Registry) ListAttributes(ctx context.Context, entityTypeID int64) ([]eav.AttributeDefinition, error) {
	q := builder().
		Select(attributeColumns...).
		From(tableAttributes).
		Where(squirrel.Eq{"entity_type_id": entityTypeID}).
		OrderBy("name")

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var rows []attributeRow
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &rows, sql, args...); err != nil {
		return nil, fmt.Errorf("list attributes: %w", err)
	}

	defs := make([]eav.AttributeDefinition, 0, len(rows))
	for _, row := range rows {
		defs = append(defs, row.toDefinition())
	}
	return defs, nil
}

// ResolveAttributeID looks up one attribute by name. Unknown names yield found=false.
func (r *Registry) ResolveAttributeID(ctx context.Context, entityTypeID int64, name string) (int64, bool, error) {
	q := builder().
		Select("id").
		From(tableAttributes).
		Where(squirrel.Eq{"entity_type_id": entityTypeID, "name": name}).
		Limit(1)

	sql, args, err := q.ToSql()
	if err != nil {
		return 0, false, fmt.Errorf("build query: %w", err)
	}

	var id int64
	err = r.txm.GetQuerier(ctx).QueryRow(ctx, sql, args...).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("resolve attribute %q: %w", name, err)
	}
	return id, true, nil
}

// EnsureEntityType inserts the entity type if it is missing.
func (r *Registry) EnsureEntityType(ctx context.Context, code string) (int64, error) {
	if code == "" {
		return 0, apperror.NewValidation("entity type code is required")
	}

	q := builder().
		Insert(tableEntityTypes).
		Columns("code").
		Values(code).
		Suffix("ON CONFLICT (code) DO NOTHING")

	sql, args, err := q.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build insert: %w", err)
	}
	if _, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return 0, fmt.Errorf("insert entity type %q: %w", code, err)
	}
	return r.ResolveEntityTypeID(ctx, code)
}

// EnsureAttribute declares an attribute if missing. The unique constraint on
// (entity_type_id, name) makes concurrent first declarations converge on one
// row; the caller's transaction, if any, is used for both statements.
func (r *Registry) EnsureAttribute(ctx context.Context, entityTypeID int64, spec eav.AttributeSpec) (eav.AttributeDefinition, error) {
	if err := spec.Validate(); err != nil {
		return eav.AttributeDefinition{}, err
	}

	var label any
	if spec.Label != "" {
		label = spec.Label
	}

	q := builder().
		Insert(tableAttributes).
		Columns("entity_type_id", "name", "label", "data_type", "is_required", "is_unique").
		Values(entityTypeID, spec.Name, label, string(spec.DataType), spec.IsRequired, spec.IsUnique).
		Suffix("ON CONFLICT (entity_type_id, name) DO NOTHING")

	sql, args, err := q.ToSql()
	if err != nil {
		return eav.AttributeDefinition{}, fmt.Errorf("build insert: %w", err)
	}

	querier := r.txm.GetQuerier(ctx)
	tag, err := querier.Exec(ctx, sql, args...)
	if err != nil {
		return eav.AttributeDefinition{}, fmt.Errorf("declare attribute %q: %w", spec.Name, err)
	}

	if tag.RowsAffected() > 0 {
		logger.Info(ctx, "attribute declared",
			"entity_type_id", entityTypeID,
			"attribute", spec.Name,
			"data_type", spec.DataType,
		)
		if _, err := querier.Exec(ctx, "SELECT pg_notify($1, $2)", SchemaChangedChannel, strconv.FormatInt(entityTypeID, 10)); err != nil {
			return eav.AttributeDefinition{}, fmt.Errorf("notify schema change: %w", err)
		}
	}

	def, err := r.getAttribute(ctx, entityTypeID, spec.Name)
	if err != nil {
		return eav.AttributeDefinition{}, err
	}
	if def.DataType != spec.DataType {
		logger.Warn(ctx, "attribute already declared with a different data type",
			"entity_type_id", entityTypeID,
			"attribute", spec.Name,
			"declared", def.DataType,
			"requested", spec.DataType,
		)
	}
	return def, nil
}

func (r *Registry) getAttribute(ctx context.Context, entityTypeID int64, name string) (eav.AttributeDefinition, error) {
	q := builder().
		Select(attributeColumns...).
		From(tableAttributes).
		Where(squirrel.Eq{"entity_type_id": entityTypeID, "name": name}).
		Limit(1)

	sql, args, err := q.ToSql()
	if err != nil {
		return eav.AttributeDefinition{}, fmt.Errorf("build query: %w", err)
	}

	var row attributeRow
	if err := pgxscan.Get(ctx, r.txm.GetQuerier(ctx), &row, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return eav.AttributeDefinition{}, apperror.NewNotFound("attribute", name)
		}
		return eav.AttributeDefinition{}, fmt.Errorf("get attribute %q: %w", name, err)
	}
	return row.toDefinition(), nil
}
