package metadata

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v2"
)

// SchemaFile is the YAML layout of a schema file:
//
//	entity_types:
//	  - name: course
//	    label: Course
//	    fields:
//	      - {name: code, type: string, required: true, unique: true}
//	      - {name: credits, type: number}
type SchemaFile struct {
	EntityTypes []EntityDef `yaml:"entity_types"`
}

// LoadYAML parses a schema document and validates every definition.
func LoadYAML(r io.Reader) ([]EntityDef, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read schema: %w", err)
	}

	var file SchemaFile
	if err := yaml.UnmarshalStrict(data, &file); err != nil {
		return nil, fmt.Errorf("parse schema: %w", err)
	}

	for _, def := range file.EntityTypes {
		if err := def.Validate(); err != nil {
			return nil, fmt.Errorf("schema: %w", err)
		}
	}
	return file.EntityTypes, nil
}

// LoadFile reads a schema file from disk.
func LoadFile(path string) ([]EntityDef, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("open schema %s: %w", path, err)
	}
	defs, err := LoadYAML(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return defs, nil
}

// MarshalYAML renders definitions in schema file layout.
func MarshalYAML(defs []EntityDef) ([]byte, error) {
	return yaml.Marshal(SchemaFile{EntityTypes: defs})
}
