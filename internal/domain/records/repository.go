package records

import (
	"context"

	"registrar/internal/core/apperror"
	"registrar/internal/domain/eav"
	"registrar/internal/metadata"
	"registrar/pkg/logger"
)

// Mapping binds a model type to its entity type.
type Mapping[T any] struct {
	EntityType string

	// ToAttributes returns the attributes of a new record keyed by attribute name.
	ToAttributes func(*T) map[string]any

	// FromDocument builds a model from a fetched entity.
	FromDocument func(*eav.Document) *T

	// NaturalKey derives the business key from attributes. Optional.
	NaturalKey func(eav.Attributes) (string, bool)

	// KeyAttributes lists the attributes NaturalKey reads.
	KeyAttributes []string
}

// Repository is the generic record repository. It validates input, renames
// camelCase fields and delegates storage to the EAV store and query engine.
type Repository[T any] struct {
	store   eav.EntityStore
	query   eav.QueryEngine
	mapping Mapping[T]
	schema  metadata.EntityDef
	fields  FieldMap
}

// NewRepository creates a repository whose schema is inspected from T.
func NewRepository[T any](store eav.EntityStore, query eav.QueryEngine, mapping Mapping[T]) *Repository[T] {
	var zero T
	schema := metadata.Inspect(&zero, mapping.EntityType)
	return &Repository[T]{
		store:   store,
		query:   query,
		mapping: mapping,
		schema:  schema,
		fields:  NewFieldMap(schema),
	}
}

// Schema returns the attribute declarations derived from the model.
func (r *Repository[T]) Schema() metadata.EntityDef {
	return r.schema
}

// Fields returns the field/attribute name mapping.
func (r *Repository[T]) Fields() FieldMap {
	return r.fields
}

// ListResult is one page of records.
type ListResult[T any] struct {
	Items      []*T     `json:"items"`
	Total      int64    `json:"total"`
	Page       int      `json:"page"`
	Limit      int      `json:"limit"`
	TotalPages int      `json:"totalPages"`
	Ignored    []string `json:"ignored,omitempty"`
}

// Create validates item, stores it and returns the stored record.
func (r *Repository[T]) Create(ctx context.Context, item *T) (*T, error) {
	if err := Validate(ctx, r.mapping.EntityType, item); err != nil {
		return nil, err
	}

	attrs := r.mapping.ToAttributes(item)

	var opts []eav.WriteOption
	if r.mapping.NaturalKey != nil {
		if key, ok := r.mapping.NaturalKey(attrs); ok {
			opts = append(opts, eav.WithNaturalKey(key))
		}
	}

	res, err := r.store.CreateWithAttributes(ctx, r.mapping.EntityType, attrs, opts...)
	if err != nil {
		logger.Error(ctx, "create record failed", "entity_type", r.mapping.EntityType, "error", err)
		return nil, err
	}
	return r.Get(ctx, res.ID)
}

// Update applies a camelCase patch. A nil value erases the field.
// A missing record is a NOT_FOUND error.
func (r *Repository[T]) Update(ctx context.Context, id int64, patch map[string]any) (*T, error) {
	attrs := r.fields.Attributes(patch)

	var opts []eav.WriteOption
	if r.mapping.NaturalKey != nil && r.touchesKey(attrs) {
		current, err := r.store.Fetch(ctx, id, r.mapping.EntityType)
		if err != nil {
			return nil, err
		}
		merged := current.Attributes.Clone()
		for k, v := range attrs {
			if eav.IsNull(v) {
				delete(merged, k)
				continue
			}
			merged[k] = v
		}
		if key, ok := r.mapping.NaturalKey(merged); ok {
			opts = append(opts, eav.WithNaturalKey(key))
		} else {
			opts = append(opts, eav.WithoutNaturalKey())
		}
	}

	res, err := r.store.UpdateAttributes(ctx, id, attrs, r.mapping.EntityType, opts...)
	if err != nil {
		logger.Error(ctx, "update record failed", "entity_type", r.mapping.EntityType, "id", id, "error", err)
		return nil, err
	}
	if len(res.Ignored) > 0 {
		logger.Warn(ctx, "patch contained unknown fields",
			"entity_type", r.mapping.EntityType,
			"fields", r.fields.FieldNames(res.Ignored),
		)
	}
	return r.Get(ctx, id)
}

func (r *Repository[T]) touchesKey(attrs map[string]any) bool {
	for _, name := range r.mapping.KeyAttributes {
		if _, ok := attrs[name]; ok {
			return true
		}
	}
	return false
}

// Get returns the record, or nil if it does not exist.
func (r *Repository[T]) Get(ctx context.Context, id int64) (*T, error) {
	doc, err := r.store.Fetch(ctx, id, r.mapping.EntityType)
	if apperror.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		logger.Error(ctx, "get record failed", "entity_type", r.mapping.EntityType, "id", id, "error", err)
		return nil, err
	}
	return r.mapping.FromDocument(doc), nil
}

// Delete removes the record. Deleting a missing record succeeds.
func (r *Repository[T]) Delete(ctx context.Context, id int64) error {
	if err := r.store.Delete(ctx, id); err != nil {
		logger.Error(ctx, "delete record failed", "entity_type", r.mapping.EntityType, "id", id, "error", err)
		return err
	}
	return nil
}

// List returns records whose fields equal every filter value.
// Filter keys may be field or attribute names.
func (r *Repository[T]) List(ctx context.Context, filters map[string]any, page eav.PageRequest) (*ListResult[T], error) {
	res, err := r.query.Query(ctx, r.mapping.EntityType, r.fields.Attributes(filters), page)
	if err != nil {
		logger.Error(ctx, "list records failed", "entity_type", r.mapping.EntityType, "error", err)
		return nil, err
	}

	items := make([]*T, 0, len(res.Entities))
	for _, doc := range res.Entities {
		items = append(items, r.mapping.FromDocument(doc))
	}
	return &ListResult[T]{
		Items:      items,
		Total:      res.Total,
		Page:       res.Page,
		Limit:      res.Limit,
		TotalPages: res.TotalPages,
		Ignored:    r.fields.FieldNames(res.Ignored),
	}, nil
}

// FindOne returns the first record matching filters, or nil.
func (r *Repository[T]) FindOne(ctx context.Context, filters map[string]any) (*T, error) {
	res, err := r.List(ctx, filters, eav.PageRequest{Page: 1, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(res.Items) == 0 {
		return nil, nil
	}
	return res.Items[0], nil
}
