package cache

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"registrar/internal/core/apperror"
	"registrar/internal/domain/eav"
	"registrar/internal/infrastructure/storage/postgres"
	"registrar/internal/infrastructure/storage/postgres/eav_repo"
)

// countingRegistry records how often each lookup reaches it.
type countingRegistry struct {
	typeCalls int
	listCalls int
	attrs     []eav.AttributeDefinition
}

func (r *countingRegistry) ResolveEntityTypeID(_ context.Context, code string) (int64, error) {
	r.typeCalls++
	if code != "course" {
		return 0, apperror.NewEntityTypeNotFound(code)
	}
	return 1, nil
}

func (r *countingRegistry) ListAttributes(context.Context, int64) ([]eav.AttributeDefinition, error) {
	r.listCalls++
	return append([]eav.AttributeDefinition(nil), r.attrs...), nil
}

func (r *countingRegistry) ResolveAttributeID(context.Context, int64, string) (int64, bool, error) {
	panic("cache resolves attribute ids from its list")
}

func (r *countingRegistry) EnsureEntityType(context.Context, string) (int64, error) {
	return 1, nil
}

func (r *countingRegistry) EnsureAttribute(_ context.Context, typeID int64, spec eav.AttributeSpec) (eav.AttributeDefinition, error) {
	def := eav.AttributeDefinition{ID: int64(len(r.attrs) + 1), EntityTypeID: typeID, Name: spec.Name, DataType: spec.DataType}
	r.attrs = append(r.attrs, def)
	return def, nil
}

func newTestCache() (*RegistryCache, *countingRegistry) {
	inner := &countingRegistry{attrs: []eav.AttributeDefinition{
		{ID: 1, EntityTypeID: 1, Name: "code", DataType: eav.TypeString},
	}}
	return NewRegistryCache(inner, nil, nil), inner
}

func TestRegistryCache_ResolveEntityTypeID(t *testing.T) {
	c, inner := newTestCache()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		id, err := c.ResolveEntityTypeID(ctx, "course")
		require.NoError(t, err)
		assert.Equal(t, int64(1), id)
	}
	assert.Equal(t, 1, inner.typeCalls)

	_, err := c.ResolveEntityTypeID(ctx, "spaceship")
	assert.True(t, apperror.IsCode(err, apperror.CodeEntityTypeNotFound))
	_, err = c.ResolveEntityTypeID(ctx, "spaceship")
	assert.Error(t, err)
	assert.Equal(t, 3, inner.typeCalls, "misses are not cached")
}

func TestRegistryCache_AttributesCachedUntilInvalidated(t *testing.T) {
	c, inner := newTestCache()
	ctx := context.Background()

	id, found, err := c.ResolveAttributeID(ctx, 1, "code")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, int64(1), id)

	_, found, err = c.ResolveAttributeID(ctx, 1, "credits")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, 1, inner.listCalls)

	inner.attrs = append(inner.attrs, eav.AttributeDefinition{ID: 2, EntityTypeID: 1, Name: "credits", DataType: eav.TypeNumber})
	c.handleNotification(eav_repo.SchemaChangedChannel, "1")

	_, found, err = c.ResolveAttributeID(ctx, 1, "credits")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 2, inner.listCalls)
}

func TestRegistryCache_NotificationFiltering(t *testing.T) {
	c, inner := newTestCache()
	ctx := context.Background()

	_, err := c.ListAttributes(ctx, 1)
	require.NoError(t, err)

	c.handleNotification("other_channel", "1")
	_, err = c.ListAttributes(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, inner.listCalls)

	c.handleNotification(eav_repo.SchemaChangedChannel, "not-a-number")
	_, err = c.ListAttributes(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, inner.listCalls, "malformed payload drops everything")
}

func TestRegistryCache_EnsureAttributeInvalidates(t *testing.T) {
	c, inner := newTestCache()
	ctx := context.Background()

	_, err := c.ListAttributes(ctx, 1)
	require.NoError(t, err)

	_, err = c.EnsureAttribute(ctx, 1, eav.AttributeSpec{Name: "room", DataType: eav.TypeString})
	require.NoError(t, err)

	defs, err := c.ListAttributes(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, defs, 2)
	assert.Equal(t, 2, inner.listCalls)
	assert.Equal(t, CacheStats{EntityTypes: 0, CachedTypes: 1, CachedAttributes: 2}, c.GetStats())
}

func TestRegistryCache_ReturnsCopies(t *testing.T) {
	c, _ := newTestCache()
	ctx := context.Background()

	defs, err := c.ListAttributes(ctx, 1)
	require.NoError(t, err)
	defs[0].Name = "mutated"

	defs, err = c.ListAttributes(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "code", defs[0].Name)
}

func TestRegistryCache_TransactionDoesNotPopulate(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	txm := postgres.NewTxManager(mock).WithOptions(postgres.TxOptions{
		IsolationLevel: pgx.ReadCommitted,
		AccessMode:     pgx.ReadWrite,
	})
	inner := &countingRegistry{}
	c := NewRegistryCache(inner, txm, nil)

	mock.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.ReadCommitted, AccessMode: pgx.ReadWrite})
	mock.ExpectRollback()

	err = txm.RunInTransaction(context.Background(), func(ctx context.Context) error {
		if _, err := c.EnsureAttribute(ctx, 1, eav.AttributeSpec{Name: "room", DataType: eav.TypeString}); err != nil {
			return err
		}
		defs, err := c.ListAttributes(ctx, 1)
		if err != nil {
			return err
		}
		assert.Len(t, defs, 1)
		return apperror.NewValidation("abort")
	})
	require.Error(t, err)

	assert.Equal(t, CacheStats{}, c.GetStats())
	assert.NoError(t, mock.ExpectationsWereMet())
}
