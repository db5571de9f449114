package eav_repo

import (
	"context"
	"sort"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"registrar/internal/core/apperror"
	"registrar/internal/domain/eav"
	"registrar/internal/infrastructure/storage/postgres"
)

// memRegistry is an in-memory eav.TypeRegistry.
type memRegistry struct {
	types map[string]int64
	attrs map[int64][]eav.AttributeDefinition
	next  int64
}

func newMemRegistry() *memRegistry {
	return &memRegistry{
		types: map[string]int64{},
		attrs: map[int64][]eav.AttributeDefinition{},
		next:  100,
	}
}

func (r *memRegistry) withType(code string, id int64, defs ...eav.AttributeDefinition) *memRegistry {
	r.types[code] = id
	for _, d := range defs {
		d.EntityTypeID = id
		r.attrs[id] = append(r.attrs[id], d)
	}
	sort.Slice(r.attrs[id], func(i, j int) bool { return r.attrs[id][i].Name < r.attrs[id][j].Name })
	return r
}

func (r *memRegistry) ResolveEntityTypeID(_ context.Context, code string) (int64, error) {
	id, ok := r.types[code]
	if !ok {
		return 0, apperror.NewEntityTypeNotFound(code)
	}
	return id, nil
}

func (r *memRegistry) ListAttributes(_ context.Context, typeID int64) ([]eav.AttributeDefinition, error) {
	return append([]eav.AttributeDefinition(nil), r.attrs[typeID]...), nil
}

func (r *memRegistry) ResolveAttributeID(_ context.Context, typeID int64, name string) (int64, bool, error) {
	for _, d := range r.attrs[typeID] {
		if d.Name == name {
			return d.ID, true, nil
		}
	}
	return 0, false, nil
}

func (r *memRegistry) EnsureEntityType(_ context.Context, code string) (int64, error) {
	if id, ok := r.types[code]; ok {
		return id, nil
	}
	r.next++
	r.types[code] = r.next
	return r.next, nil
}

func (r *memRegistry) EnsureAttribute(_ context.Context, typeID int64, spec eav.AttributeSpec) (eav.AttributeDefinition, error) {
	if err := spec.Validate(); err != nil {
		return eav.AttributeDefinition{}, err
	}
	for _, d := range r.attrs[typeID] {
		if d.Name == spec.Name {
			return d, nil
		}
	}
	r.next++
	def := eav.AttributeDefinition{
		ID:           r.next,
		EntityTypeID: typeID,
		Name:         spec.Name,
		Label:        spec.Label,
		DataType:     spec.DataType,
		IsRequired:   spec.IsRequired,
		IsUnique:     spec.IsUnique,
	}
	r.withType(codeOf(r.types, typeID), typeID, def)
	return def, nil
}

func codeOf(types map[string]int64, id int64) string {
	for code, typeID := range types {
		if typeID == id {
			return code
		}
	}
	return ""
}

// courseRegistry declares the course type used across these tests.
func courseRegistry() *memRegistry {
	return newMemRegistry().withType("course", 1,
		eav.AttributeDefinition{ID: 1, Name: "code", DataType: eav.TypeString, IsRequired: true},
		eav.AttributeDefinition{ID: 2, Name: "credits", DataType: eav.TypeNumber},
		eav.AttributeDefinition{ID: 3, Name: "name", DataType: eav.TypeString, IsRequired: true},
		eav.AttributeDefinition{ID: 4, Name: "lab_required", DataType: eav.TypeBoolean},
		eav.AttributeDefinition{ID: 5, Name: "start_date", DataType: eav.TypeDate},
	)
}

// newMockTxManager returns a transaction manager over a pgxmock pool with the
// statement timeout disabled, so tests only expect the statements they issue.
func newMockTxManager(t *testing.T) (pgxmock.PgxPoolIface, *postgres.TxManager) {
	t.Helper()

	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	txm := postgres.NewTxManager(mock).WithOptions(postgres.TxOptions{
		IsolationLevel: pgx.ReadCommitted,
		AccessMode:     pgx.ReadWrite,
	})
	return mock, txm
}

var mockTxOptions = pgx.TxOptions{IsoLevel: pgx.ReadCommitted, AccessMode: pgx.ReadWrite}

func ptr[T any](v T) *T { return &v }

func valueArgs(entityID, attributeID int64, v eav.Value) []any {
	return append([]any{entityID, attributeID}, eav.Columns(v).Args()...)
}
