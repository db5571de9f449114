// Package recordstest provides an in-memory EAV store for repository tests.
package recordstest

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"registrar/internal/core/apperror"
	"registrar/internal/domain/eav"
	"registrar/internal/metadata"
)

type entity struct {
	typeCode   string
	naturalKey *string
	createdAt  time.Time
	updatedAt  time.Time
	values     map[string]eav.Value
}

// Store implements eav.EntityStore and eav.QueryEngine in memory with the
// same skip, erase and validation rules as the database store.
type Store struct {
	mu       sync.Mutex
	nextID   int64
	schemas  map[string]eav.Definitions
	entities map[int64]*entity
	now      func() time.Time
}

var (
	_ eav.EntityStore = (*Store)(nil)
	_ eav.QueryEngine = (*Store)(nil)
)

// New creates a store that knows the given entity types.
func New(defs ...metadata.EntityDef) *Store {
	s := &Store{
		schemas:  make(map[string]eav.Definitions),
		entities: make(map[int64]*entity),
		now:      time.Now,
	}
	for _, def := range defs {
		declared := make([]eav.AttributeDefinition, 0, len(def.Fields))
		for i, f := range def.Fields {
			spec := f.Spec()
			declared = append(declared, eav.AttributeDefinition{
				ID:         int64(i + 1),
				Name:       spec.Name,
				Label:      spec.Label,
				DataType:   spec.DataType,
				IsRequired: spec.IsRequired,
				IsUnique:   spec.IsUnique,
			})
		}
		s.schemas[def.Name] = eav.IndexDefinitions(declared)
	}
	return s
}

// Len returns the number of stored entities.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entities)
}

func (s *Store) schema(typeCode string, declarations []eav.AttributeSpec) (eav.Definitions, error) {
	defs, ok := s.schemas[typeCode]
	if !ok {
		return nil, apperror.NewEntityTypeNotFound(typeCode)
	}
	for _, spec := range declarations {
		if err := spec.Validate(); err != nil {
			return nil, err
		}
		if _, exists := defs[spec.Name]; !exists {
			defs[spec.Name] = eav.AttributeDefinition{
				ID:         int64(len(defs) + 1),
				Name:       spec.Name,
				DataType:   spec.DataType,
				IsRequired: spec.IsRequired,
				IsUnique:   spec.IsUnique,
			}
		}
	}
	return defs, nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (s *Store) CreateWithAttributes(_ context.Context, typeCode string, attrs map[string]any, opts ...eav.WriteOption) (eav.WriteResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o := eav.ApplyWriteOptions(opts)
	defs, err := s.schema(typeCode, o.Declarations)
	if err != nil {
		return eav.WriteResult{}, err
	}
	for _, def := range defs.Sorted() {
		if _, present := attrs[def.Name]; def.IsRequired && !present {
			return eav.WriteResult{}, apperror.NewRequiredAttributeMissing(typeCode, def.Name)
		}
	}

	values := make(map[string]eav.Value)
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
				return eav.WriteResult{}, apperror.NewRequiredAttributeMissing(typeCode, name)
			}
			continue
		}
		if err != nil {
			return eav.WriteResult{}, err
		}
		values[name] = v
	}

	s.nextID++
	now := s.now()
	s.entities[s.nextID] = &entity{
		typeCode:   typeCode,
		naturalKey: o.NaturalKey,
		createdAt:  now,
		updatedAt:  now,
		values:     values,
	}
	return eav.WriteResult{ID: s.nextID, Ignored: ignored}, nil
}

func (s *Store) UpdateAttributes(_ context.Context, id int64, attrs map[string]any, typeCode string, opts ...eav.WriteOption) (eav.WriteResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o := eav.ApplyWriteOptions(opts)
	defs, err := s.schema(typeCode, o.Declarations)
	if err != nil {
		return eav.WriteResult{}, err
	}
	e, ok := s.entities[id]
	if !ok || e.typeCode != typeCode {
		return eav.WriteResult{}, apperror.NewNotFound(typeCode, id)
	}

	next := make(map[string]eav.Value, len(e.values))
	for k, v := range e.values {
		next[k] = v
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
			delete(next, name)
			continue
		}
		if err != nil {
			return eav.WriteResult{}, err
		}
		next[name] = v
	}

	e.values = next
	e.updatedAt = s.now()
	switch {
	case o.NaturalKey != nil:
		e.naturalKey = o.NaturalKey
	case o.ClearNaturalKey:
		e.naturalKey = nil
	}
	return eav.WriteResult{ID: id, Ignored: ignored}, nil
}

func (s *Store) Fetch(_ context.Context, id int64, typeCode string) (*eav.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetch(id, typeCode)
}

func (s *Store) fetch(id int64, typeCode string) (*eav.Document, error) {
	if _, ok := s.schemas[typeCode]; !ok {
		return nil, apperror.NewEntityTypeNotFound(typeCode)
	}
	e, ok := s.entities[id]
	if !ok || e.typeCode != typeCode {
		return nil, apperror.NewNotFound(typeCode, id)
	}

	attrs := make(eav.Attributes, len(e.values))
	for name, v := range e.values {
		if decoded, ok := eav.Decode(v.Kind(), eav.Columns(v)); ok {
			attrs[name] = decoded
		}
	}
	return &eav.Document{
		ID:         id,
		EntityType: typeCode,
		NaturalKey: e.naturalKey,
		CreatedAt:  e.createdAt,
		UpdatedAt:  e.updatedAt,
		Attributes: attrs,
	}, nil
}

func (s *Store) Delete(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entities, id)
	return nil
}

func (s *Store) Query(_ context.Context, typeCode string, filters map[string]any, page eav.PageRequest) (eav.Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	page = page.Normalize()
	defs, ok := s.schemas[typeCode]
	if !ok {
		return eav.Page{}, apperror.NewEntityTypeNotFound(typeCode)
	}

	active := make(map[string]any)
	var ignored []string
	for _, name := range sortedKeys(filters) {
		if _, ok := defs[name]; !ok {
			ignored = append(ignored, name)
			continue
		}
		active[name] = filters[name]
	}

	var ids []int64
	for id, e := range s.entities {
		if e.typeCode == typeCode && matches(e, active) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] > ids[j] })

	total := int64(len(ids))
	start := page.Offset()
	if start > len(ids) {
		start = len(ids)
	}
	end := start + page.Limit
	if end > len(ids) {
		end = len(ids)
	}

	docs := make([]*eav.Document, 0, end-start)
	for _, id := range ids[start:end] {
		doc, err := s.fetch(id, typeCode)
		if err != nil {
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

func matches(e *entity, filters map[string]any) bool {
	for name, raw := range filters {
		stored, has := e.values[name]
		candidates := eav.Candidates(raw)
		if len(candidates) == 0 {
			if has {
				return false
			}
			continue
		}
		if !has || !anyEqual(stored, candidates) {
			return false
		}
	}
	return true
}

func anyEqual(stored eav.Value, candidates []eav.Value) bool {
	for _, c := range candidates {
		if c.Kind() != stored.Kind() {
			continue
		}
		switch sv := stored.Raw().(type) {
		case decimal.Decimal:
			if sv.Equal(c.Raw().(decimal.Decimal)) {
				return true
			}
		case time.Time:
			if sv.Equal(c.Raw().(time.Time)) {
				return true
			}
		default:
			if sv == c.Raw() {
				return true
			}
		}
	}
	return false
}
