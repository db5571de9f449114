package eav

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/big"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"registrar/internal/core/apperror"
)

// ErrNullValue is returned by Encode for nil input. The store turns it into
// "skip", "required attribute missing" or "erase" depending on the operation.
var ErrNullValue = errors.New("eav: null value")

// Value is a typed attribute value. Exactly one variant exists per DataType,
// so a value always maps to exactly one column slot.
type Value interface {
	Kind() DataType
	// Raw returns the natural Go representation of the value.
	Raw() any
	columns() ValueColumns
}

// StringValue is stored in value_string.
type StringValue string

// NumberValue is stored in value_number.
type NumberValue struct{ decimal.Decimal }

// DateValue is stored in value_date, always in UTC.
type DateValue struct{ time.Time }

// BoolValue is stored in value_bool as 0 or 1.
type BoolValue bool

func (StringValue) Kind() DataType { return TypeString }
func (NumberValue) Kind() DataType { return TypeNumber }
func (DateValue) Kind() DataType   { return TypeDate }
func (BoolValue) Kind() DataType   { return TypeBoolean }

func (v StringValue) Raw() any { return string(v) }
func (v NumberValue) Raw() any { return v.Decimal }
func (v DateValue) Raw() any   { return v.Time }
func (v BoolValue) Raw() any   { return bool(v) }

func (v StringValue) columns() ValueColumns {
	s := string(v)
	return ValueColumns{String: &s}
}

func (v NumberValue) columns() ValueColumns {
	return ValueColumns{Number: decimal.NullDecimal{Decimal: v.Decimal, Valid: true}}
}

func (v DateValue) columns() ValueColumns {
	t := v.Time.UTC()
	return ValueColumns{Date: &t}
}

func (v BoolValue) columns() ValueColumns {
	var b int16
	if v {
		b = 1
	}
	return ValueColumns{Bool: &b}
}

// ValueColumns is the sparse four-slot row layout of entity_values.
type ValueColumns struct {
	String *string             `db:"value_string"`
	Number decimal.NullDecimal `db:"value_number"`
	Date   *time.Time          `db:"value_date"`
	Bool   *int16              `db:"value_bool"`
}

// Columns returns the row layout for v. Exactly one slot is populated.
func Columns(v Value) ValueColumns {
	return v.columns()
}

// Args returns the slots in column order as driver arguments.
func (c ValueColumns) Args() []any {
	var number any
	if c.Number.Valid {
		number = c.Number.Decimal
	}
	return []any{c.String, number, c.Date, c.Bool}
}

// Arg returns the populated slot of v as a single driver argument.
func Arg(v Value) any {
	args := v.columns().Args()
	for i, name := range ColumnNames {
		if name == v.Kind().Column() {
			return args[i]
		}
	}
	return nil
}

// ColumnNames lists entity_values slots in the order used by Args.
var ColumnNames = []string{"value_string", "value_number", "value_date", "value_bool"}

// Column returns the slot name for a data type.
func (t DataType) Column() string {
	switch t {
	case TypeString:
		return "value_string"
	case TypeNumber:
		return "value_number"
	case TypeDate:
		return "value_date"
	case TypeBoolean:
		return "value_bool"
	}
	return ""
}

// dateLayouts are tried in order when a date arrives as a string.
var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Encode converts an application value into the variant for dt.
func Encode(dt DataType, raw any) (Value, error) {
	if err := dt.Validate(); err != nil {
		return nil, err
	}
	raw, ok := deref(raw)
	if !ok {
		return nil, ErrNullValue
	}

	switch dt {
	case TypeString:
		return StringValue(toString(raw)), nil
	case TypeNumber:
		d, ok := toDecimal(raw)
		if !ok {
			return nil, apperror.NewInvalidValue(string(dt), raw)
		}
		return NumberValue{d}, nil
	case TypeDate:
		t, ok := strictTime(raw)
		if !ok {
			return nil, apperror.NewInvalidValue(string(dt), raw)
		}
		return DateValue{t}, nil
	default:
		b, ok := toBool(raw)
		if !ok {
			return nil, apperror.NewInvalidValue(string(dt), raw)
		}
		return BoolValue(b), nil
	}
}

// Decode selects the declared type's slot from a fetched row.
// ok is false when that slot holds no value.
func Decode(dt DataType, row ValueColumns) (any, bool) {
	switch dt {
	case TypeString:
		if row.String != nil {
			return *row.String, true
		}
	case TypeNumber:
		if row.Number.Valid {
			return json.Number(row.Number.Decimal.String()), true
		}
	case TypeDate:
		if row.Date != nil {
			return row.Date.UTC(), true
		}
	case TypeBoolean:
		if row.Bool != nil {
			return *row.Bool != 0, true
		}
	}
	return nil, false
}

// Candidates returns every typed form raw strictly represents, in column
// order. Strings always qualify; numbers, dates and booleans only when raw is
// one or parses as one without guessing. A number that is exactly 0 or 1 also
// qualifies as a boolean, matching how value_bool is stored. Used by equality
// filters that compare against whichever slot happens to be populated.
func Candidates(raw any) []Value {
	raw, ok := deref(raw)
	if !ok {
		return nil
	}

	out := []Value{StringValue(toString(raw))}
	d, isNumber := toDecimal(raw)
	if isNumber {
		out = append(out, NumberValue{d})
	}
	if t, ok := strictTime(raw); ok {
		out = append(out, DateValue{t})
	}
	if b, ok := strictBool(raw); ok {
		out = append(out, BoolValue(b))
	} else if isNumber && (d.Equal(decimal.Zero) || d.Equal(decimal.NewFromInt(1))) {
		out = append(out, BoolValue(d.Equal(decimal.NewFromInt(1))))
	}
	return out
}

// IsNull reports whether raw is nil or a nil pointer.
func IsNull(raw any) bool {
	_, ok := deref(raw)
	return !ok
}

func deref(raw any) (any, bool) {
	if raw == nil {
		return nil, false
	}
	rv := reflect.ValueOf(raw)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil, false
		}
		rv = rv.Elem()
	}
	return rv.Interface(), true
}

func toString(raw any) string {
	switch v := raw.(type) {
	case string:
		return v
	case time.Time:
		return v.UTC().Format(time.RFC3339Nano)
	case decimal.Decimal:
		return v.String()
	case fmt.Stringer:
		return v.String()
	case bool:
		return strconv.FormatBool(v)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return fmt.Sprint(raw)
}

func toDecimal(raw any) (decimal.Decimal, bool) {
	switch v := raw.(type) {
	case decimal.Decimal:
		return v, true
	case json.Number:
		d, err := decimal.NewFromString(v.String())
		return d, err == nil
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(v))
		return d, err == nil
	case int:
		return decimal.NewFromInt(int64(v)), true
	case int8:
		return decimal.NewFromInt(int64(v)), true
	case int16:
		return decimal.NewFromInt(int64(v)), true
	case int32:
		return decimal.NewFromInt32(v), true
	case int64:
		return decimal.NewFromInt(v), true
	case uint:
		return decimal.NewFromBigInt(new(big.Int).SetUint64(uint64(v)), 0), true
	case uint8:
		return decimal.NewFromInt(int64(v)), true
	case uint16:
		return decimal.NewFromInt(int64(v)), true
	case uint32:
		return decimal.NewFromInt(int64(v)), true
	case uint64:
		return decimal.NewFromBigInt(new(big.Int).SetUint64(v), 0), true
	case float32:
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return decimal.Decimal{}, false
		}
		return decimal.NewFromFloat32(v), true
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return decimal.Decimal{}, false
		}
		return decimal.NewFromFloat(v), true
	}
	return decimal.Decimal{}, false
}

func strictTime(raw any) (time.Time, bool) {
	switch v := raw.(type) {
	case time.Time:
		return v.UTC(), true
	case string:
		s := strings.TrimSpace(v)
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t.UTC(), true
			}
		}
	}
	return time.Time{}, false
}

// toBool is lenient: anything with an obvious truth value is accepted.
func toBool(raw any) (bool, bool) {
	if b, ok := strictBool(raw); ok {
		return b, true
	}
	if s, ok := raw.(string); ok {
		b, err := strconv.ParseBool(strings.TrimSpace(s))
		return b, err == nil
	}
	if d, ok := toDecimal(raw); ok {
		return !d.IsZero(), true
	}
	return false, false
}

func strictBool(raw any) (bool, bool) {
	switch v := raw.(type) {
	case bool:
		return v, true
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true":
			return true, true
		case "false":
			return false, true
		}
	}
	return false, false
}
