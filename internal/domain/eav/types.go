// Package eav defines the entity-attribute-value model: entity types, declared
// attributes, typed values and the contracts of the type registry, entity store
// and query engine built on top of them.
package eav

import (
	"sort"
	"time"

	"registrar/internal/core/apperror"
)

// DataType is the declared type of an attribute. It selects the column slot
// a value is stored in.
type DataType string

const (
	TypeString  DataType = "string"
	TypeNumber  DataType = "number"
	TypeDate    DataType = "date"
	TypeBoolean DataType = "boolean"
)

// DataTypes lists every supported data type in column order.
var DataTypes = []DataType{TypeString, TypeNumber, TypeDate, TypeBoolean}

// Validate is the single hard type gate: anything outside the four kinds fails.
func (t DataType) Validate() error {
	switch t {
	case TypeString, TypeNumber, TypeDate, TypeBoolean:
		return nil
	}
	return apperror.NewInvalidDataType(string(t))
}

func (t DataType) String() string { return string(t) }

// EntityType is a named category of generic entities.
type EntityType struct {
	ID   int64  `db:"id" json:"id"`
	Code string `db:"code" json:"code"`
}

// AttributeDefinition describes one named, typed field of an entity type.
type AttributeDefinition struct {
	ID           int64    `json:"id"`
	EntityTypeID int64    `json:"entityTypeId"`
	Name         string   `json:"name"`
	Label        string   `json:"label,omitempty"`
	DataType     DataType `json:"dataType"`
	IsRequired   bool     `json:"isRequired"`
	// IsUnique is declared metadata only; the store does not enforce it.
	IsUnique bool `json:"isUnique"`
}

// AttributeSpec is the input to an idempotent attribute declaration.
type AttributeSpec struct {
	Name       string   `yaml:"name" json:"name"`
	Label      string   `yaml:"label" json:"label,omitempty"`
	DataType   DataType `yaml:"type" json:"dataType"`
	IsRequired bool     `yaml:"required" json:"isRequired,omitempty"`
	IsUnique   bool     `yaml:"unique" json:"isUnique,omitempty"`
}

// Validate checks the spec before it reaches storage.
func (s AttributeSpec) Validate() error {
	if s.Name == "" {
		return apperror.NewValidation("attribute name is required")
	}
	return s.DataType.Validate()
}

// Entity is the identity row of one generic record.
type Entity struct {
	ID           int64     `db:"id"`
	EntityTypeID int64     `db:"entity_type_id"`
	NaturalKey   *string   `db:"natural_key"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

// Definitions indexes attribute definitions by name.
type Definitions map[string]AttributeDefinition

// IndexDefinitions builds a name -> definition map.
func IndexDefinitions(defs []AttributeDefinition) Definitions {
	m := make(Definitions, len(defs))
	for _, d := range defs {
		m[d.Name] = d
	}
	return m
}

// Sorted returns the definitions ordered by name.
func (d Definitions) Sorted() []AttributeDefinition {
	out := make([]AttributeDefinition, 0, len(d))
	for _, def := range d {
		out = append(out, def)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
