package eav_repo

import (
	"context"
	"encoding/json"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"registrar/internal/core/apperror"
	"registrar/internal/domain/eav"
	"registrar/internal/infrastructure/storage/postgres"
)

// integrationEnv wires the real registry, store and engine against the
// database in EAV_TEST_DATABASE_URL. Tests are skipped when it is unset.
type integrationEnv struct {
	pool     *postgres.Pool
	txm      *postgres.TxManager
	registry *Registry
	store    *Store
	engine   *QueryEngine
}

func setupIntegration(t *testing.T) *integrationEnv {
	t.Helper()

	dsn := os.Getenv("EAV_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("EAV_TEST_DATABASE_URL not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := postgres.NewPool(ctx, postgres.DefaultPoolConfig(dsn))
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, postgres.Migrate(ctx, pool.Pool))

	txm := postgres.NewTxManager(pool.Pool)
	registry := NewRegistry(txm)
	store := NewStore(txm, registry)

	return &integrationEnv{
		pool:     pool,
		txm:      txm,
		registry: registry,
		store:    store,
		engine:   NewQueryEngine(txm, registry, store),
	}
}

// declareType creates a uniquely named entity type so tests never share rows.
func (env *integrationEnv) declareType(t *testing.T, prefix string, specs ...eav.AttributeSpec) string {
	t.Helper()
	ctx := context.Background()

	code := prefix + "_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	typeID, err := env.registry.EnsureEntityType(ctx, code)
	require.NoError(t, err)
	for _, spec := range specs {
		_, err := env.registry.EnsureAttribute(ctx, typeID, spec)
		require.NoError(t, err)
	}
	return code
}

func (env *integrationEnv) countRows(t *testing.T, sql string, args ...any) int {
	t.Helper()
	var n int
	require.NoError(t, env.pool.QueryRow(context.Background(), sql, args...).Scan(&n))
	return n
}

func subjectSpecs() []eav.AttributeSpec {
	return []eav.AttributeSpec{
		{Name: "name", DataType: eav.TypeString, IsRequired: true},
		{Name: "code", DataType: eav.TypeString, IsRequired: true, IsUnique: true},
		{Name: "credits", DataType: eav.TypeNumber},
		{Name: "department_id", DataType: eav.TypeNumber},
		{Name: "is_active", DataType: eav.TypeBoolean},
		{Name: "start_date", DataType: eav.TypeDate},
	}
}

func TestIntegration_CreateFetchRoundTrip(t *testing.T) {
	env := setupIntegration(t)
	ctx := context.Background()
	subject := env.declareType(t, "subject", subjectSpecs()...)

	res, err := env.store.CreateWithAttributes(ctx, subject, map[string]any{
		"name":          "Intro to CS",
		"code":          "CS101",
		"credits":       3,
		"department_id": 5,
		"is_active":     true,
		"start_date":    "2024-09-01T10:30:00+02:00",
	})
	require.NoError(t, err)
	assert.Empty(t, res.Ignored)

	doc, err := env.store.Fetch(ctx, res.ID, subject)
	require.NoError(t, err)
	assert.Equal(t, "CS101", doc.Attributes["code"])
	assert.Equal(t, json.Number("3"), doc.Attributes["credits"])
	assert.Equal(t, int64(5), doc.Attributes.GetInt("department_id"))
	assert.Equal(t, true, doc.Attributes["is_active"])
	assert.True(t, time.Date(2024, 9, 1, 8, 30, 0, 0, time.UTC).Equal(doc.Attributes.GetTime("start_date")))
}

func TestIntegration_RequiredFieldRejection(t *testing.T) {
	env := setupIntegration(t)
	ctx := context.Background()
	subject := env.declareType(t, "subject", subjectSpecs()...)
	typeID, err := env.registry.ResolveEntityTypeID(ctx, subject)
	require.NoError(t, err)

	_, err = env.store.CreateWithAttributes(ctx, subject, map[string]any{
		"name":    nil,
		"code":    "CS101",
		"credits": 3,
	})
	require.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.CodeRequiredAttributeMissing), "got %v", err)

	assert.Zero(t, env.countRows(t, "SELECT COUNT(*) FROM entities WHERE entity_type_id = $1", typeID))
	assert.Zero(t, env.countRows(t,
		"SELECT COUNT(*) FROM entity_values v JOIN entities e ON e.id = v.entity_id WHERE e.entity_type_id = $1", typeID))
}

func TestIntegration_FilterQuery(t *testing.T) {
	env := setupIntegration(t)
	ctx := context.Background()
	course := env.declareType(t, "course",
		eav.AttributeSpec{Name: "name", DataType: eav.TypeString},
		eav.AttributeSpec{Name: "semester", DataType: eav.TypeString},
		eav.AttributeSpec{Name: "credits", DataType: eav.TypeNumber},
	)

	var ids []int64
	for i, semester := range []string{"Fall", "Spring", "Fall"} {
		res, err := env.store.CreateWithAttributes(ctx, course, map[string]any{
			"name":     "Course",
			"semester": semester,
			"credits":  i + 1,
		})
		require.NoError(t, err)
		ids = append(ids, res.ID)
	}

	page, err := env.engine.Query(ctx, course, map[string]any{"semester": "Fall"}, eav.PageRequest{Page: 1, Limit: 10})
	require.NoError(t, err)
	require.Len(t, page.Entities, 2)
	assert.Equal(t, ids[2], page.Entities[0].ID)
	assert.Equal(t, ids[0], page.Entities[1].ID)
	assert.Equal(t, int64(2), page.Total, "total counts filtered rows")
	assert.Equal(t, 1, page.TotalPages)

	page, err = env.engine.Query(ctx, course, map[string]any{"credits": "2"}, eav.PageRequest{})
	require.NoError(t, err)
	require.Len(t, page.Entities, 1)
	assert.Equal(t, ids[1], page.Entities[0].ID)

	page, err = env.engine.Query(ctx, course, map[string]any{"semester": "Fall", "nickname": "x"}, eav.PageRequest{Limit: 1, Page: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"nickname"}, page.Ignored)
	require.Len(t, page.Entities, 1)
	assert.Equal(t, ids[0], page.Entities[0].ID)
	assert.Equal(t, 2, page.TotalPages)
}

func TestIntegration_ErasureOnUpdate(t *testing.T) {
	env := setupIntegration(t)
	ctx := context.Background()
	course := env.declareType(t, "course",
		eav.AttributeSpec{Name: "name", DataType: eav.TypeString},
		eav.AttributeSpec{Name: "lab_required", DataType: eav.TypeBoolean},
	)

	res, err := env.store.CreateWithAttributes(ctx, course, map[string]any{"name": "Physics", "lab_required": true})
	require.NoError(t, err)

	_, err = env.store.UpdateAttributes(ctx, res.ID, map[string]any{"lab_required": nil}, course)
	require.NoError(t, err)

	doc, err := env.store.Fetch(ctx, res.ID, course)
	require.NoError(t, err)
	_, present := doc.Attributes["lab_required"]
	assert.False(t, present)
	assert.Equal(t, "Physics", doc.Attributes["name"])
}

func TestIntegration_UpsertIdempotence(t *testing.T) {
	env := setupIntegration(t)
	ctx := context.Background()
	course := env.declareType(t, "course",
		eav.AttributeSpec{Name: "name", DataType: eav.TypeString},
		eav.AttributeSpec{Name: "credits", DataType: eav.TypeNumber},
	)

	res, err := env.store.CreateWithAttributes(ctx, course, map[string]any{"name": "Algebra"})
	require.NoError(t, err)

	for _, credits := range []any{4, 4, 5} {
		_, err = env.store.UpdateAttributes(ctx, res.ID, map[string]any{"credits": credits}, course)
		require.NoError(t, err)
	}

	assert.Equal(t, 2, env.countRows(t, "SELECT COUNT(*) FROM entity_values WHERE entity_id = $1", res.ID))
	doc, err := env.store.Fetch(ctx, res.ID, course)
	require.NoError(t, err)
	assert.Equal(t, json.Number("5"), doc.Attributes["credits"])
	assert.False(t, doc.UpdatedAt.Before(doc.CreatedAt))
}

func TestIntegration_DeletionCompleteness(t *testing.T) {
	env := setupIntegration(t)
	ctx := context.Background()
	course := env.declareType(t, "course", eav.AttributeSpec{Name: "name", DataType: eav.TypeString})

	res, err := env.store.CreateWithAttributes(ctx, course, map[string]any{"name": "Ethics"})
	require.NoError(t, err)

	require.NoError(t, env.store.Delete(ctx, res.ID))
	require.NoError(t, env.store.Delete(ctx, res.ID), "delete is idempotent")

	assert.Zero(t, env.countRows(t, "SELECT COUNT(*) FROM entity_values WHERE entity_id = $1", res.ID))
	_, err = env.store.Fetch(ctx, res.ID, course)
	assert.True(t, apperror.IsNotFound(err), "got %v", err)
}

func TestIntegration_UndeclaredAttributeTolerance(t *testing.T) {
	env := setupIntegration(t)
	ctx := context.Background()
	course := env.declareType(t, "course", eav.AttributeSpec{Name: "name", DataType: eav.TypeString})

	res, err := env.store.CreateWithAttributes(ctx, course, map[string]any{"name": "Logic", "mascot": "owl"})
	require.NoError(t, err)
	assert.Equal(t, []string{"mascot"}, res.Ignored)

	assert.Equal(t, 1, env.countRows(t, "SELECT COUNT(*) FROM entity_values WHERE entity_id = $1", res.ID))
	doc, err := env.store.Fetch(ctx, res.ID, course)
	require.NoError(t, err)
	assert.False(t, doc.Attributes.Has("mascot"))
}

func TestIntegration_ConcurrentDeclarationsConverge(t *testing.T) {
	env := setupIntegration(t)
	ctx := context.Background()
	course := env.declareType(t, "course")

	const writers = 8
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.store.CreateWithAttributes(ctx, course, map[string]any{"room": "B-201"},
				eav.WithDeclarations(eav.AttributeSpec{Name: "room", DataType: eav.TypeString}))
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	typeID, err := env.registry.ResolveEntityTypeID(ctx, course)
	require.NoError(t, err)
	assert.Equal(t, 1, env.countRows(t, "SELECT COUNT(*) FROM attributes WHERE entity_type_id = $1 AND name = 'room'", typeID))
}
