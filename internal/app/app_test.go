package app

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"registrar/internal/domain/eav"
)

func TestSchemas_BuiltIn(t *testing.T) {
	defs, err := Schemas("")
	require.NoError(t, err)

	names := make([]string, 0, len(defs))
	for _, d := range defs {
		names = append(names, d.Name)
	}
	assert.Equal(t, []string{"course", "maintenance_request", "subject"}, names)
}

func TestSchemas_MergesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schema.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
entity_types:
  - name: course
    fields:
      - name: room
        type: string
      - name: code
        type: number
  - name: building
    label: Building
    fields:
      - name: name
        type: string
        required: true
`), 0o600))

	defs, err := Schemas(path)
	require.NoError(t, err)
	require.Len(t, defs, 4)

	assert.Equal(t, "building", defs[0].Name)

	course := defs[1]
	room, ok := course.Field("room")
	require.True(t, ok)
	assert.Equal(t, eav.TypeString, room.Type)
	code, _ := course.Field("code")
	assert.Equal(t, eav.TypeString, code.Type, "record declaration wins")
}

func TestSchemas_MissingFile(t *testing.T) {
	_, err := Schemas(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestSchemas_SampleFile(t *testing.T) {
	defs, err := Schemas(filepath.Join("..", "..", "configs", "schema.yaml"))
	require.NoError(t, err)
	assert.Len(t, defs, 5)
}
