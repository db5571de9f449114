package eav_repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"registrar/internal/core/apperror"
	"registrar/internal/domain/eav"
	"registrar/internal/infrastructure/storage/postgres"
	"registrar/pkg/logger"
)

var _ eav.EntityStore = (*Store)(nil)

// Store writes and reads generic entities. Each write runs in one transaction:
// either every value of the payload lands or none does.
type Store struct {
	txm      *postgres.TxManager
	registry eav.TypeRegistry
}

// NewStore creates a store. registry may be a caching decorator.
func NewStore(txm *postgres.TxManager, registry eav.TypeRegistry) *Store {
	return &Store{txm: txm, registry: registry}
}

var entityColumns = []string{"id", "entity_type_id", "natural_key", "created_at", "updated_at"}

var valueUpsertSuffix = "ON CONFLICT (entity_id, attribute_id) DO UPDATE SET " +
	"value_string = EXCLUDED.value_string, " +
	"value_number = EXCLUDED.value_number, " +
	"value_date = EXCLUDED.value_date, " +
	"value_bool = EXCLUDED.value_bool"

// valueRow is one fetched value joined with its declaration.
type valueRow struct {
	Name     string `db:"name"`
	DataType string `db:"data_type"`
	eav.ValueColumns
}

// CreateWithAttributes creates an entity of typeCode and stores every declared
// attribute of attrs. Undeclared names are skipped and reported in the result.
func (s *Store) CreateWithAttributes(ctx context.Context, typeCode string, attrs map[string]any, opts ...eav.WriteOption) (eav.WriteResult, error) {
	ctx, span := startSpan(ctx, "eav.create", typeCode)
	defer span.End()

	o := eav.ApplyWriteOptions(opts)

	typeID, err := s.registry.ResolveEntityTypeID(ctx, typeCode)
	if err != nil {
		return eav.WriteResult{}, err
	}

	var result eav.WriteResult
	err = s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		defs, err := s.definitions(ctx, typeID, o.Declarations)
		if err != nil {
			return err
		}

		for _, def := range defs.Sorted() {
			if _, present := attrs[def.Name]; def.IsRequired && !present {
				return apperror.NewRequiredAttributeMissing(typeCode, def.Name)
			}
		}

		id, err := s.insertEntity(ctx, typeID, o.NaturalKey)
		if err != nil {
			return err
		}

		var ignored []string
		for _, name := range sortedKeys(attrs) {
			def, ok := defs[name]
			if !ok {
				ignored = append(ignored, name)
				continue
			}

			v, err := eav.Encode(def.DataType, attrs[name])
			if errors.Is(err, eav.ErrNullValue) {
				if def.IsRequired {
					return apperror.NewRequiredAttributeMissing(typeCode, name)
				}
				continue
			}
			if err != nil {
				return withAttribute(err, name)
			}

			if err := s.writeValue(ctx, id, def.ID, v, false); err != nil {
				return fmt.Errorf("write %q: %w", name, err)
			}
		}

		result = eav.WriteResult{ID: id, Ignored: ignored}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return eav.WriteResult{}, err
	}

	warnIgnored(ctx, "create", typeCode, result.Ignored)
	logger.Debug(ctx, "entity created", "entity_type", typeCode, "id", result.ID)
	return result, nil
}

// UpdateAttributes upserts each declared attribute of attrs on entity id.
// A null value erases the stored value. The entity's updated_at is bumped
// even when attrs is empty.
func (s *Store) UpdateAttributes(ctx context.Context, id int64, attrs map[string]any, typeCode string, opts ...eav.WriteOption) (eav.WriteResult, error) {
	ctx, span := startSpan(ctx, "eav.update", typeCode)
	defer span.End()

	o := eav.ApplyWriteOptions(opts)

	typeID, err := s.registry.ResolveEntityTypeID(ctx, typeCode)
	if err != nil {
		return eav.WriteResult{}, err
	}

	result := eav.WriteResult{ID: id}
	err = s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		if err := s.touchEntity(ctx, id, typeID, typeCode, o); err != nil {
			return err
		}

		defs, err := s.definitions(ctx, typeID, o.Declarations)
		if err != nil {
			return err
		}

		var ignored []string
		for _, name := range sortedKeys(attrs) {
			def, ok := defs[name]
			if !ok {
				ignored = append(ignored, name)
				continue
			}

			v, err := eav.Encode(def.DataType, attrs[name])
			if errors.Is(err, eav.ErrNullValue) {
				if def.IsRequired {
					logger.Warn(ctx, "erasing value of required attribute",
						"entity_type", typeCode,
						"id", id,
						"attribute", name,
					)
				}
				if err := s.eraseValue(ctx, id, def.ID); err != nil {
					return fmt.Errorf("erase %q: %w", name, err)
				}
				continue
			}
			if err != nil {
				return withAttribute(err, name)
			}

			if err := s.writeValue(ctx, id, def.ID, v, true); err != nil {
				return fmt.Errorf("write %q: %w", name, err)
			}
		}

		result.Ignored = ignored
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return eav.WriteResult{}, err
	}

	warnIgnored(ctx, "update", typeCode, result.Ignored)
	return result, nil
}

// Fetch loads entity id of typeCode with all of its stored values.
func (s *Store) Fetch(ctx context.Context, id int64, typeCode string) (*eav.Document, error) {
	ctx, span := startSpan(ctx, "eav.fetch", typeCode)
	defer span.End()

	typeID, err := s.registry.ResolveEntityTypeID(ctx, typeCode)
	if err != nil {
		return nil, err
	}

	querier := s.txm.GetQuerier(ctx)

	q := builder().
		Select(entityColumns...).
		From(tableEntities).
		Where(squirrel.Eq{"id": id, "entity_type_id": typeID}).
		Limit(1)

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var entity eav.Entity
	if err := pgxscan.Get(ctx, querier, &entity, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound(typeCode, id)
		}
		return nil, fmt.Errorf("get entity %d: %w", id, err)
	}

	vq := builder().
		Select("a.name", "a.data_type", "v.value_string", "v.value_number", "v.value_date", "v.value_bool").
		From(tableEntityValues + " v").
		Join(tableAttributes + " a ON a.id = v.attribute_id").
		Where(squirrel.Eq{"v.entity_id": id}).
		OrderBy("a.name")

	sql, args, err = vq.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var rows []valueRow
	if err := pgxscan.Select(ctx, querier, &rows, sql, args...); err != nil {
		return nil, fmt.Errorf("load values of entity %d: %w", id, err)
	}

	attrs := make(eav.Attributes, len(rows))
	for _, row := range rows {
		if v, ok := eav.Decode(eav.DataType(row.DataType), row.ValueColumns); ok {
			attrs[row.Name] = v
		}
	}

	return &eav.Document{
		ID:         entity.ID,
		EntityType: typeCode,
		NaturalKey: entity.NaturalKey,
		CreatedAt:  entity.CreatedAt,
		UpdatedAt:  entity.UpdatedAt,
		Attributes: attrs,
	}, nil
}

// Delete removes entity id and its values. Missing entities are not an error.
func (s *Store) Delete(ctx context.Context, id int64) error {
	ctx, span := tracer.Start(ctx, "eav.delete")
	defer span.End()

	err := s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		querier := s.txm.GetQuerier(ctx)

		sql, args, err := builder().Delete(tableEntityValues).Where(squirrel.Eq{"entity_id": id}).ToSql()
		if err != nil {
			return fmt.Errorf("build delete: %w", err)
		}
		if _, err := querier.Exec(ctx, sql, args...); err != nil {
			return fmt.Errorf("delete values of entity %d: %w", id, err)
		}

		sql, args, err = builder().Delete(tableEntities).Where(squirrel.Eq{"id": id}).ToSql()
		if err != nil {
			return fmt.Errorf("build delete: %w", err)
		}
		tag, err := querier.Exec(ctx, sql, args...)
		if err != nil {
			return fmt.Errorf("delete entity %d: %w", id, err)
		}
		if tag.RowsAffected() == 0 {
			logger.Debug(ctx, "delete of missing entity", "id", id)
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
	}
	return err
}

// definitions ensures declarations and returns the type's attributes by name.
// Ensured definitions are merged in so a cached registry cannot hide them.
func (s *Store) definitions(ctx context.Context, typeID int64, declarations []eav.AttributeSpec) (eav.Definitions, error) {
	ensured := make([]eav.AttributeDefinition, 0, len(declarations))
	for _, spec := range declarations {
		def, err := s.registry.EnsureAttribute(ctx, typeID, spec)
		if err != nil {
			return nil, err
		}
		ensured = append(ensured, def)
	}

	list, err := s.registry.ListAttributes(ctx, typeID)
	if err != nil {
		return nil, err
	}
	defs := eav.IndexDefinitions(list)
	for _, def := range ensured {
		defs[def.Name] = def
	}
	return defs, nil
}

func (s *Store) insertEntity(ctx context.Context, typeID int64, naturalKey *string) (int64, error) {
	q := builder().
		Insert(tableEntities).
		Columns("entity_type_id", "natural_key").
		Values(typeID, naturalKey).
		Suffix("RETURNING id")

	sql, args, err := q.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build insert: %w", err)
	}

	var id int64
	if err := s.txm.GetQuerier(ctx).QueryRow(ctx, sql, args...).Scan(&id); err != nil {
		return 0, fmt.Errorf("insert entity: %w", err)
	}
	return id, nil
}

// touchEntity bumps updated_at and, when asked, replaces or clears the natural key.
// It is also the existence check of an update.
func (s *Store) touchEntity(ctx context.Context, id, typeID int64, typeCode string, o eav.WriteOptions) error {
	q := builder().
		Update(tableEntities).
		Set("updated_at", squirrel.Expr("now()"))
	switch {
	case o.NaturalKey != nil:
		q = q.Set("natural_key", *o.NaturalKey)
	case o.ClearNaturalKey:
		q = q.Set("natural_key", nil)
	}
	q = q.Where(squirrel.Eq{"id": id, "entity_type_id": typeID})

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	tag, err := s.txm.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("touch entity %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewNotFound(typeCode, id)
	}
	return nil
}

func (s *Store) writeValue(ctx context.Context, entityID, attributeID int64, v eav.Value, upsert bool) error {
	cols := append([]string{"entity_id", "attribute_id"}, eav.ColumnNames...)
	vals := append([]any{entityID, attributeID}, eav.Columns(v).Args()...)

	q := builder().
		Insert(tableEntityValues).
		Columns(cols...).
		Values(vals...)
	if upsert {
		q = q.Suffix(valueUpsertSuffix)
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	_, err = s.txm.GetQuerier(ctx).Exec(ctx, sql, args...)
	return err
}

func (s *Store) eraseValue(ctx context.Context, entityID, attributeID int64) error {
	sql, args, err := builder().
		Delete(tableEntityValues).
		Where(squirrel.Eq{"entity_id": entityID, "attribute_id": attributeID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete: %w", err)
	}
	_, err = s.txm.GetQuerier(ctx).Exec(ctx, sql, args...)
	return err
}
