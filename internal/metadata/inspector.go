package metadata

import (
	"reflect"
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"

	"registrar/internal/domain/eav"
)

var (
	timeType    = reflect.TypeOf(time.Time{})
	decimalType = reflect.TypeOf(decimal.Decimal{})
)

// Inspect derives an EntityDef from a record model.
//
// Tags read:
//
//	eav:"name[,unique]"  attribute name; "-" skips the field
//	json:"name"          camelCase name used by the model
//	validate:"required"  marks the attribute required
//	label:"Text"         display label
func Inspect(model any, name string) EntityDef {
	t := reflect.TypeOf(model)
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	if name == "" {
		name = toSnake(t.Name())
	}

	def := EntityDef{
		Name:   name,
		Label:  guessLabel(t.Name()),
		Fields: make([]FieldDef, 0, t.NumField()),
	}
	inspectStruct(t, &def)
	return def
}

func inspectStruct(t reflect.Type, def *EntityDef) {
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)

		// Handle embedded structs (flattening)
		if field.Anonymous && field.Type.Kind() == reflect.Struct {
			inspectStruct(field.Type, def)
			continue
		}

		if field.PkgPath != "" { // unexported
			continue
		}

		attrName, unique, ok := eavName(field)
		if !ok {
			continue
		}

		dt, ok := mapFieldType(field.Type)
		if !ok {
			continue
		}

		label := field.Tag.Get("label")
		if label == "" {
			label = guessLabel(field.Name)
		}

		def.Fields = append(def.Fields, FieldDef{
			Name:     attrName,
			JSONName: jsonName(field),
			Label:    label,
			Type:     dt,
			Required: isRequired(field),
			Unique:   unique,
		})
	}
}

// mapFieldType maps a Go type to the data type that stores it.
func mapFieldType(t reflect.Type) (eav.DataType, bool) {
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	switch t {
	case timeType:
		return eav.TypeDate, true
	case decimalType:
		return eav.TypeNumber, true
	}

	switch t.Kind() {
	case reflect.String:
		return eav.TypeString, true
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return eav.TypeNumber, true
	case reflect.Bool:
		return eav.TypeBoolean, true
	}
	return "", false
}

func eavName(field reflect.StructField) (name string, unique, ok bool) {
	tag, has := field.Tag.Lookup("eav")
	if !has {
		return toSnake(field.Name), false, true
	}
	parts := strings.Split(tag, ",")
	if parts[0] == "-" {
		return "", false, false
	}
	name = parts[0]
	if name == "" {
		name = toSnake(field.Name)
	}
	for _, opt := range parts[1:] {
		if opt == "unique" {
			unique = true
		}
	}
	return name, unique, true
}

func jsonName(field reflect.StructField) string {
	if tag, ok := field.Tag.Lookup("json"); ok {
		parts := strings.Split(tag, ",")
		if parts[0] != "" && parts[0] != "-" {
			return parts[0]
		}
	}
	// Fallback: camelCase
	runes := []rune(field.Name)
	runes[0] = unicode.ToLower(runes[0])
	return string(runes)
}

func isRequired(field reflect.StructField) bool {
	tag, ok := field.Tag.Lookup("validate")
	if !ok {
		return false
	}
	for _, rule := range strings.Split(tag, ",") {
		if rule == "required" {
			return true
		}
	}
	return false
}

// toSnake converts Go identifiers to snake_case: "DepartmentID" -> "department_id".
func toSnake(name string) string {
	runes := []rune(name)
	var b strings.Builder
	for i, r := range runes {
		if unicode.IsUpper(r) {
			prevLower := i > 0 && unicode.IsLower(runes[i-1])
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if i > 0 && (prevLower || (nextLower && unicode.IsUpper(runes[i-1]))) {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// guessLabel splits CamelCase into words: "LabRequired" -> "Lab Required".
func guessLabel(name string) string {
	words := strings.Split(toSnake(name), "_")
	for i, w := range words {
		if w == "" {
			continue
		}
		runes := []rune(w)
		runes[0] = unicode.ToUpper(runes[0])
		words[i] = string(runes)
	}
	return strings.Join(words, " ")
}
