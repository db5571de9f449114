package eav_repo

import (
	"context"
	"fmt"
	"strings"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"registrar/internal/core/apperror"
	"registrar/internal/domain/eav"
	"registrar/internal/infrastructure/storage/postgres"
	"registrar/pkg/logger"
)

var _ eav.QueryEngine = (*QueryEngine)(nil)

// QueryEngine lists entities of one type filtered by attribute equality.
// Pages are ordered newest first and hydrated through the store.
type QueryEngine struct {
	txm      *postgres.TxManager
	registry eav.TypeRegistry
	store    eav.EntityStore
}

// NewQueryEngine creates a query engine.
func NewQueryEngine(txm *postgres.TxManager, registry eav.TypeRegistry, store eav.EntityStore) *QueryEngine {
	return &QueryEngine{txm: txm, registry: registry, store: store}
}

// Query returns one page of entities of typeCode whose attributes equal every
// declared filter. Filters naming undeclared attributes are dropped and
// reported in Page.Ignored. A nil filter value matches entities that have no
// stored value for the attribute.
func (e *QueryEngine) Query(ctx context.Context, typeCode string, filters map[string]any, page eav.PageRequest) (eav.Page, error) {
	ctx, span := startSpan(ctx, "eav.query", typeCode)
	defer span.End()

	page = page.Normalize()

	typeID, err := e.registry.ResolveEntityTypeID(ctx, typeCode)
	if err != nil {
		return eav.Page{}, err
	}

	base, ignored, err := e.filteredSelect(ctx, typeID, filters)
	if err != nil {
		span.RecordError(err)
		return eav.Page{}, err
	}
	warnIgnored(ctx, "query", typeCode, ignored)

	total, err := e.count(ctx, base)
	if err != nil {
		span.RecordError(err)
		return eav.Page{}, err
	}

	ids, err := e.pageIDs(ctx, base, page)
	if err != nil {
		span.RecordError(err)
		return eav.Page{}, err
	}

	docs := make([]*eav.Document, 0, len(ids))
	for _, id := range ids {
		doc, err := e.store.Fetch(ctx, id, typeCode)
		if apperror.IsNotFound(err) {
			// Deleted between the id scan and hydration.
			logger.Debug(ctx, "entity vanished during query", "entity_type", typeCode, "id", id)
			continue
		}
		if err != nil {
			span.RecordError(err)
			return eav.Page{}, err
		}
		docs = append(docs, doc)
	}

	return eav.Page{
		Entities:   docs,
		Total:      total,
		Page:       page.Page,
		Limit:      page.Limit,
		TotalPages: eav.TotalPagesFor(total, page.Limit),
		Ignored:    ignored,
	}, nil
}

// filteredSelect builds "SELECT e.id" restricted to the type and the declared
// filters, in sorted filter-name order.
func (e *QueryEngine) filteredSelect(ctx context.Context, typeID int64, filters map[string]any) (squirrel.SelectBuilder, []string, error) {
	q := builder().
		Select("e.id").
		From(tableEntities + " e").
		Where(squirrel.Eq{"e.entity_type_id": typeID})

	var ignored []string
	for _, name := range sortedKeys(filters) {
		attrID, found, err := e.registry.ResolveAttributeID(ctx, typeID, name)
		if err != nil {
			return q, nil, err
		}
		if !found {
			ignored = append(ignored, name)
			continue
		}
		q = q.Where(valueEquals(attrID, filters[name]))
	}
	return q, ignored, nil
}

// valueEquals matches entities whose value for attributeID equals raw in any
// slot raw can be read as. nil matches entities with no stored value.
func valueEquals(attributeID int64, raw any) squirrel.Sqlizer {
	const exists = "EXISTS (SELECT 1 FROM " + tableEntityValues + " ev WHERE ev.entity_id = e.id AND ev.attribute_id = ?"

	candidates := eav.Candidates(raw)
	if len(candidates) == 0 {
		return squirrel.Expr("NOT "+exists+")", attributeID)
	}

	conds := make([]string, 0, len(candidates))
	args := make([]any, 0, len(candidates)+1)
	args = append(args, attributeID)
	for _, c := range candidates {
		conds = append(conds, "ev."+c.Kind().Column()+" = ?")
		args = append(args, eav.Arg(c))
	}
	return squirrel.Expr(exists+" AND ("+strings.Join(conds, " OR ")+"))", args...)
}

func (e *QueryEngine) count(ctx context.Context, base squirrel.SelectBuilder) (int64, error) {
	sql, args, err := builder().
		Select("COUNT(*)").
		FromSelect(base, "sub").
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build count: %w", err)
	}

	var total int64
	if err := e.txm.GetQuerier(ctx).QueryRow(ctx, sql, args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("count entities: %w", err)
	}
	return total, nil
}

func (e *QueryEngine) pageIDs(ctx context.Context, base squirrel.SelectBuilder, page eav.PageRequest) ([]int64, error) {
	q := base.
		OrderBy("e.id DESC").
		Limit(uint64(page.Limit))
	if offset := page.Offset(); offset > 0 {
		q = q.Offset(uint64(offset))
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var ids []int64
	if err := pgxscan.Select(ctx, e.txm.GetQuerier(ctx), &ids, sql, args...); err != nil {
		return nil, fmt.Errorf("list entity ids: %w", err)
	}
	return ids, nil
}
