// Package records holds the repositories of concrete administrative records
// (courses, subjects, maintenance requests) stored as generic EAV entities.
package records

import (
	"registrar/internal/metadata"
)

// FieldMap translates between camelCase model fields and snake_case
// attribute names. Names it does not know pass through unchanged, so the
// store can report them as ignored.
type FieldMap struct {
	toAttribute map[string]string
	toField     map[string]string
}

// NewFieldMap builds the mapping from a model's schema.
func NewFieldMap(def metadata.EntityDef) FieldMap {
	m := FieldMap{
		toAttribute: make(map[string]string, len(def.Fields)),
		toField:     make(map[string]string, len(def.Fields)),
	}
	for _, f := range def.Fields {
		if f.JSONName == "" {
			continue
		}
		m.toAttribute[f.JSONName] = f.Name
		m.toField[f.Name] = f.JSONName
	}
	return m
}

// Attribute returns the attribute name of a model field.
func (m FieldMap) Attribute(field string) string {
	if name, ok := m.toAttribute[field]; ok {
		return name
	}
	return field
}

// Field returns the model field name of an attribute.
func (m FieldMap) Field(attribute string) string {
	if name, ok := m.toField[attribute]; ok {
		return name
	}
	return attribute
}

// Attributes renames the keys of a camelCase payload. nil values are kept:
// on update they erase the stored value.
func (m FieldMap) Attributes(fields map[string]any) map[string]any {
	if fields == nil {
		return nil
	}
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		out[m.Attribute(k)] = v
	}
	return out
}

// Fields renames attribute keys to model field names.
func (m FieldMap) Fields(attrs map[string]any) map[string]any {
	out := make(map[string]any, len(attrs))
	for k, v := range attrs {
		out[m.Field(k)] = v
	}
	return out
}

// FieldNames renames a list of attribute names.
func (m FieldMap) FieldNames(attributes []string) []string {
	if attributes == nil {
		return nil
	}
	out := make([]string, len(attributes))
	for i, a := range attributes {
		out[i] = m.Field(a)
	}
	return out
}
