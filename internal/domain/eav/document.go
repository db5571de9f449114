package eav

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Attributes is a flat name -> decoded value map.
//
// Numbers are json.Number so that NUMERIC precision survives the trip out of
// the database; use GetInt/GetDecimal rather than type-asserting.
type Attributes map[string]any

// GetString returns string value or empty string if not found/wrong type.
func (a Attributes) GetString(key string) string {
	if v, ok := a[key].(string); ok {
		return v
	}
	return ""
}

// GetInt returns int64 value, handling json.Number correctly.
func (a Attributes) GetInt(key string) int64 {
	switch v := a[key].(type) {
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return i
		}
		f, _ := v.Float64()
		return int64(f)
	case float64:
		return int64(v)
	case int64:
		return v
	case int:
		return int64(v)
	}
	return 0
}

// GetDecimal returns decimal.Decimal value with full precision.
func (a Attributes) GetDecimal(key string) decimal.Decimal {
	switch v := a[key].(type) {
	case json.Number:
		d, err := decimal.NewFromString(v.String())
		if err != nil {
			return decimal.Zero
		}
		return d
	case decimal.Decimal:
		return v
	case float64:
		return decimal.NewFromFloat(v)
	}
	return decimal.Zero
}

// GetBool returns boolean value.
func (a Attributes) GetBool(key string) bool {
	if v, ok := a[key].(bool); ok {
		return v
	}
	return false
}

// GetTime returns a date value or the zero time.
func (a Attributes) GetTime(key string) time.Time {
	if v, ok := a[key].(time.Time); ok {
		return v
	}
	return time.Time{}
}

// Has checks if key exists (including nil values).
func (a Attributes) Has(key string) bool {
	_, ok := a[key]
	return ok
}

// Clone creates a shallow copy.
func (a Attributes) Clone() Attributes {
	if a == nil {
		return nil
	}
	result := make(Attributes, len(a))
	for k, v := range a {
		result[k] = v
	}
	return result
}

// Document is a fully hydrated entity: its identity row plus decoded values.
type Document struct {
	ID         int64      `json:"id"`
	EntityType string     `json:"entityType"`
	NaturalKey *string    `json:"naturalKey,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
	Attributes Attributes `json:"attributes"`
}

// Reserved document keys produced by Flatten.
const (
	KeyID         = "id"
	KeyNaturalKey = "natural_key"
	KeyCreatedAt  = "created_at"
	KeyUpdatedAt  = "updated_at"
)

// Flatten merges the entity's own fields into the attribute map.
// Entity fields win over attributes with the same name.
func (d *Document) Flatten() map[string]any {
	out := make(map[string]any, len(d.Attributes)+4)
	for k, v := range d.Attributes {
		out[k] = v
	}
	out[KeyID] = d.ID
	if d.NaturalKey != nil {
		out[KeyNaturalKey] = *d.NaturalKey
	} else {
		out[KeyNaturalKey] = nil
	}
	out[KeyCreatedAt] = d.CreatedAt
	out[KeyUpdatedAt] = d.UpdatedAt
	return out
}
