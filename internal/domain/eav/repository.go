package eav

import (
	"context"
)

// TypeRegistry resolves entity type codes and attribute names.
// Implementations re-query the backing store unless documented otherwise and
// run inside the transaction carried by ctx, if any.
type TypeRegistry interface {
	// ResolveEntityTypeID returns the id for code or an ENTITY_TYPE_NOT_FOUND error.
	ResolveEntityTypeID(ctx context.Context, code string) (int64, error)

	// ListAttributes returns all attributes declared for a type, ordered by name.
	ListAttributes(ctx context.Context, entityTypeID int64) ([]AttributeDefinition, error)

	// ResolveAttributeID looks up one attribute. Unknown names are not an error.
	ResolveAttributeID(ctx context.Context, entityTypeID int64, name string) (id int64, found bool, err error)

	// EnsureEntityType declares an entity type if missing and returns its id.
	EnsureEntityType(ctx context.Context, code string) (int64, error)

	// EnsureAttribute declares an attribute if missing and returns the stored
	// definition. An existing declaration is returned unchanged.
	EnsureAttribute(ctx context.Context, entityTypeID int64, spec AttributeSpec) (AttributeDefinition, error)
}

// EntityStore owns entity lifecycle and attribute values.
type EntityStore interface {
	CreateWithAttributes(ctx context.Context, typeCode string, attrs map[string]any, opts ...WriteOption) (WriteResult, error)
	UpdateAttributes(ctx context.Context, id int64, attrs map[string]any, typeCode string, opts ...WriteOption) (WriteResult, error)
	// Fetch returns a NOT_FOUND AppError when the entity does not exist.
	Fetch(ctx context.Context, id int64, typeCode string) (*Document, error)
	// Delete is idempotent: deleting a missing entity succeeds.
	Delete(ctx context.Context, id int64) error
}

// QueryEngine lists entities of one type filtered by attribute equality.
type QueryEngine interface {
	Query(ctx context.Context, typeCode string, filters map[string]any, page PageRequest) (Page, error)
}

// WriteResult is returned by create and update.
type WriteResult struct {
	ID int64 `json:"id"`
	// Ignored lists payload names that are not declared for the entity type.
	// They were skipped, not written.
	Ignored []string `json:"ignored,omitempty"`
}

// WriteOptions holds optional inputs of create/update.
type WriteOptions struct {
	NaturalKey *string
	// ClearNaturalKey sets the stored key to NULL on update.
	ClearNaturalKey bool
	Declarations    []AttributeSpec
}

// WriteOption configures a single write.
type WriteOption func(*WriteOptions)

// WithNaturalKey sets the entity's natural key. On update it replaces the stored key.
func WithNaturalKey(key string) WriteOption {
	return func(o *WriteOptions) {
		o.NaturalKey = &key
		o.ClearNaturalKey = false
	}
}

// WithoutNaturalKey removes the stored natural key on update.
func WithoutNaturalKey() WriteOption {
	return func(o *WriteOptions) {
		o.NaturalKey = nil
		o.ClearNaturalKey = true
	}
}

// WithDeclarations ensures the given attributes are declared, inside the
// write's transaction, before any value is written.
func WithDeclarations(specs ...AttributeSpec) WriteOption {
	return func(o *WriteOptions) {
		o.Declarations = append(o.Declarations, specs...)
	}
}

// ApplyWriteOptions folds opts into a WriteOptions value.
func ApplyWriteOptions(opts []WriteOption) WriteOptions {
	var o WriteOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Pagination defaults.
const (
	DefaultPage  = 1
	DefaultLimit = 10
	MaxLimit     = 100
)

// PageRequest selects one page of a query.
type PageRequest struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
}

// Normalize clamps the request to sane bounds.
func (p PageRequest) Normalize() PageRequest {
	if p.Page < 1 {
		p.Page = DefaultPage
	}
	if p.Limit < 1 {
		p.Limit = DefaultLimit
	}
	if p.Limit > MaxLimit {
		p.Limit = MaxLimit
	}
	return p
}

// Offset returns the row offset of the page.
func (p PageRequest) Offset() int {
	return (p.Page - 1) * p.Limit
}

// Page is one page of query results.
type Page struct {
	Entities   []*Document `json:"entities"`
	Total      int64       `json:"total"`
	Page       int         `json:"page"`
	Limit      int         `json:"limit"`
	TotalPages int         `json:"totalPages"`
	// Ignored lists filter names that are not declared and were dropped.
	Ignored []string `json:"ignored,omitempty"`
}

// TotalPagesFor computes the page count for total rows at limit per page.
func TotalPagesFor(total int64, limit int) int {
	if limit <= 0 || total <= 0 {
		return 0
	}
	return int((total + int64(limit) - 1) / int64(limit))
}
