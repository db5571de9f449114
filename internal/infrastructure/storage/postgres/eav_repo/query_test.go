package eav_repo

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"registrar/internal/core/apperror"
	"registrar/internal/domain/eav"
)

const existsPrefix = "EXISTS (SELECT 1 FROM entity_values ev WHERE ev.entity_id = e.id AND ev.attribute_id = "

func TestValueEquals(t *testing.T) {
	day := time.Date(2024, 9, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		raw      any
		wantSQL  string
		wantArgs []any
	}{
		{
			name:     "plain string",
			raw:      "Fall",
			wantSQL:  existsPrefix + "? AND (ev.value_string = ?))",
			wantArgs: []any{int64(7), ptr("Fall")},
		},
		{
			name:     "number",
			raw:      3,
			wantSQL:  existsPrefix + "? AND (ev.value_string = ? OR ev.value_number = ?))",
			wantArgs: []any{int64(7), ptr("3"), decimal.NewFromInt(3)},
		},
		{
			name:     "one reads as true",
			raw:      1,
			wantSQL:  existsPrefix + "? AND (ev.value_string = ? OR ev.value_number = ? OR ev.value_bool = ?))",
			wantArgs: []any{int64(7), ptr("1"), decimal.NewFromInt(1), ptr(int16(1))},
		},
		{
			name:     "zero reads as false",
			raw:      0,
			wantSQL:  existsPrefix + "? AND (ev.value_string = ? OR ev.value_number = ? OR ev.value_bool = ?))",
			wantArgs: []any{int64(7), ptr("0"), decimal.NewFromInt(0), ptr(int16(0))},
		},
		{
			name:     "boolean",
			raw:      true,
			wantSQL:  existsPrefix + "? AND (ev.value_string = ? OR ev.value_bool = ?))",
			wantArgs: []any{int64(7), ptr("true"), ptr(int16(1))},
		},
		{
			name:     "date string",
			raw:      "2024-09-01",
			wantSQL:  existsPrefix + "? AND (ev.value_string = ? OR ev.value_date = ?))",
			wantArgs: []any{int64(7), ptr("2024-09-01"), &day},
		},
		{
			name:     "null",
			raw:      nil,
			wantSQL:  "NOT " + existsPrefix + "?)",
			wantArgs: []any{int64(7)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql, args, err := valueEquals(7, tt.raw).ToSql()
			require.NoError(t, err)
			assert.Equal(t, tt.wantSQL, sql)
			assert.Equal(t, tt.wantArgs, args)
		})
	}
}

func TestQueryEngine_FilteredSelect(t *testing.T) {
	engine := NewQueryEngine(nil, courseRegistry(), nil)

	q, ignored, err := engine.filteredSelect(context.Background(), 1, map[string]any{
		"name":    "Intro to CS",
		"credits": 3,
		"bogus":   "x",
		"code":    nil,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"bogus"}, ignored)

	sql, args, err := q.ToSql()
	require.NoError(t, err)

	wantSQL := "SELECT e.id FROM entities e WHERE e.entity_type_id = $1" +
		" AND NOT EXISTS (SELECT 1 FROM entity_values ev WHERE ev.entity_id = e.id AND ev.attribute_id = $2)" +
		" AND EXISTS (SELECT 1 FROM entity_values ev WHERE ev.entity_id = e.id AND ev.attribute_id = $3 AND (ev.value_string = $4 OR ev.value_number = $5))" +
		" AND EXISTS (SELECT 1 FROM entity_values ev WHERE ev.entity_id = e.id AND ev.attribute_id = $6 AND (ev.value_string = $7))"
	assert.Equal(t, wantSQL, sql)
	assert.Equal(t, []any{
		int64(1),
		int64(1),
		int64(2), ptr("3"), decimal.NewFromInt(3),
		int64(3), ptr("Intro to CS"),
	}, args)
}

func TestQueryEngine_FilteredSelect_Empty(t *testing.T) {
	engine := NewQueryEngine(nil, courseRegistry(), nil)

	q, ignored, err := engine.filteredSelect(context.Background(), 1, nil)
	require.NoError(t, err)
	assert.Empty(t, ignored)

	sql, args, err := q.ToSql()
	require.NoError(t, err)
	assert.Equal(t, "SELECT e.id FROM entities e WHERE e.entity_type_id = $1", sql)
	assert.Equal(t, []any{int64(1)}, args)
}

// docStore serves Fetch from a map; everything else is unused by the engine.
type docStore struct {
	eav.EntityStore
	docs map[int64]*eav.Document
}

func (s *docStore) Fetch(_ context.Context, id int64, typeCode string) (*eav.Document, error) {
	doc, ok := s.docs[id]
	if !ok {
		return nil, apperror.NewNotFound(typeCode, id)
	}
	return doc, nil
}

func TestQueryEngine_Query(t *testing.T) {
	mock, txm := newMockTxManager(t)
	store := &docStore{docs: map[int64]*eav.Document{
		9: {ID: 9, EntityType: "course", Attributes: eav.Attributes{"code": "CS109"}},
		7: {ID: 7, EntityType: "course", Attributes: eav.Attributes{"code": "CS107"}},
	}}
	engine := NewQueryEngine(txm, courseRegistry(), store)

	base := "SELECT e.id FROM entities e WHERE e.entity_type_id = $1" +
		" AND EXISTS (SELECT 1 FROM entity_values ev WHERE ev.entity_id = e.id AND ev.attribute_id = $2 AND (ev.value_string = $3 OR ev.value_bool = $4))"

	mock.ExpectQuery("SELECT COUNT(*) FROM ("+base+") AS sub").
		WithArgs(int64(1), int64(4), ptr("false"), ptr(int16(0))).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(13)))
	mock.ExpectQuery(base+" ORDER BY e.id DESC LIMIT 5 OFFSET 5").
		WithArgs(int64(1), int64(4), ptr("false"), ptr(int16(0))).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(9)).AddRow(int64(8)).AddRow(int64(7)))

	page, err := engine.Query(context.Background(), "course",
		map[string]any{"lab_required": false, "room": "B-201"},
		eav.PageRequest{Page: 2, Limit: 5})

	require.NoError(t, err)
	assert.Equal(t, int64(13), page.Total)
	assert.Equal(t, 2, page.Page)
	assert.Equal(t, 5, page.Limit)
	assert.Equal(t, 3, page.TotalPages)
	assert.Equal(t, []string{"room"}, page.Ignored)
	require.Len(t, page.Entities, 2, "entity 8 vanished before hydration")
	assert.Equal(t, int64(9), page.Entities[0].ID)
	assert.Equal(t, int64(7), page.Entities[1].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQueryEngine_Query_DefaultsAndEmpty(t *testing.T) {
	mock, txm := newMockTxManager(t)
	engine := NewQueryEngine(txm, courseRegistry(), &docStore{})

	base := "SELECT e.id FROM entities e WHERE e.entity_type_id = $1"
	mock.ExpectQuery("SELECT COUNT(*) FROM (" + base + ") AS sub").
		WithArgs(int64(1)).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(0)))
	mock.ExpectQuery(base + " ORDER BY e.id DESC LIMIT 10").
		WithArgs(int64(1)).
		WillReturnRows(pgxmock.NewRows([]string{"id"}))

	page, err := engine.Query(context.Background(), "course", nil, eav.PageRequest{})

	require.NoError(t, err)
	assert.Equal(t, int64(0), page.Total)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, 10, page.Limit)
	assert.Equal(t, 0, page.TotalPages)
	assert.Empty(t, page.Entities)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQueryEngine_Query_UnknownType(t *testing.T) {
	engine := NewQueryEngine(nil, courseRegistry(), &docStore{})

	_, err := engine.Query(context.Background(), "spaceship", nil, eav.PageRequest{})
	assert.True(t, apperror.IsCode(err, apperror.CodeEntityTypeNotFound), "got %v", err)
}
