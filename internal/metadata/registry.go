// Package metadata describes entity-type schemas: which attributes a type
// declares and with what data type. Definitions come from record models
// (Inspect) or from YAML schema files (LoadYAML) and are pushed into the
// type registry by Apply.
package metadata

import (
	"fmt"
	"sort"

	"registrar/internal/domain/eav"
)

// EntityDef describes one entity type.
type EntityDef struct {
	Name   string     `yaml:"name" json:"name"`
	Label  string     `yaml:"label" json:"label,omitempty"`
	Fields []FieldDef `yaml:"fields" json:"fields"`
}

// FieldDef describes one attribute of an entity type.
type FieldDef struct {
	// Name is the stored attribute name (snake_case).
	Name string `yaml:"name" json:"name"`
	// JSONName is the camelCase name used by record models. Empty for
	// definitions loaded from schema files.
	JSONName string       `yaml:"-" json:"jsonName,omitempty"`
	Label    string       `yaml:"label" json:"label,omitempty"`
	Type     eav.DataType `yaml:"type" json:"type"`
	Required bool         `yaml:"required" json:"required,omitempty"`
	Unique   bool         `yaml:"unique" json:"unique,omitempty"`
}

// Spec converts the field into an attribute declaration.
func (f FieldDef) Spec() eav.AttributeSpec {
	return eav.AttributeSpec{
		Name:       f.Name,
		Label:      f.Label,
		DataType:   f.Type,
		IsRequired: f.Required,
		IsUnique:   f.Unique,
	}
}

// Specs returns the declarations of every field.
func (d EntityDef) Specs() []eav.AttributeSpec {
	specs := make([]eav.AttributeSpec, 0, len(d.Fields))
	for _, f := range d.Fields {
		specs = append(specs, f.Spec())
	}
	return specs
}

// Field returns the field with the given attribute name.
func (d EntityDef) Field(name string) (FieldDef, bool) {
	for _, f := range d.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldDef{}, false
}

// Validate checks names and data types.
func (d EntityDef) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("entity type without name")
	}
	seen := make(map[string]bool, len(d.Fields))
	for _, f := range d.Fields {
		if err := f.Spec().Validate(); err != nil {
			return fmt.Errorf("%s.%s: %w", d.Name, f.Name, err)
		}
		if seen[f.Name] {
			return fmt.Errorf("%s: duplicate field %q", d.Name, f.Name)
		}
		seen[f.Name] = true
	}
	return nil
}

// Registry stores entity definitions.
type Registry struct {
	entities map[string]EntityDef
}

func NewRegistry() *Registry {
	return &Registry{
		entities: make(map[string]EntityDef),
	}
}

// Register validates def and adds it, replacing any definition of the same name.
func (r *Registry) Register(def EntityDef) error {
	if err := def.Validate(); err != nil {
		return err
	}
	r.entities[def.Name] = def
	return nil
}

// Merge adds fields of def that are not yet registered for its type.
func (r *Registry) Merge(def EntityDef) error {
	existing, ok := r.entities[def.Name]
	if !ok {
		return r.Register(def)
	}
	for _, f := range def.Fields {
		if _, dup := existing.Field(f.Name); !dup {
			existing.Fields = append(existing.Fields, f)
		}
	}
	if existing.Label == "" {
		existing.Label = def.Label
	}
	return r.Register(existing)
}

func (r *Registry) Get(name string) (EntityDef, bool) {
	d, ok := r.entities[name]
	return d, ok
}

// List returns all definitions ordered by name.
func (r *Registry) List() []EntityDef {
	list := make([]EntityDef, 0, len(r.entities))
	for _, def := range r.entities {
		list = append(list, def)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })
	return list
}
