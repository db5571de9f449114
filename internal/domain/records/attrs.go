package records

import (
	"time"

	"github.com/shopspring/decimal"

	"registrar/internal/domain/eav"
)

// Put stores *v under name when v is non-nil.
func Put[T any](attrs map[string]any, name string, v *T) {
	if v != nil {
		attrs[name] = *v
	}
}

// String returns the attribute as *string, nil when absent.
func String(a eav.Attributes, name string) *string {
	if !a.Has(name) {
		return nil
	}
	v := a.GetString(name)
	return &v
}

// Int returns the attribute as *int64, nil when absent.
func Int(a eav.Attributes, name string) *int64 {
	if !a.Has(name) {
		return nil
	}
	v := a.GetInt(name)
	return &v
}

// Decimal returns the attribute as *decimal.Decimal, nil when absent.
func Decimal(a eav.Attributes, name string) *decimal.Decimal {
	if !a.Has(name) {
		return nil
	}
	v := a.GetDecimal(name)
	return &v
}

// Bool returns the attribute as *bool, nil when absent.
func Bool(a eav.Attributes, name string) *bool {
	if !a.Has(name) {
		return nil
	}
	v := a.GetBool(name)
	return &v
}

// Time returns the attribute as *time.Time, nil when absent.
func Time(a eav.Attributes, name string) *time.Time {
	if !a.Has(name) {
		return nil
	}
	v := a.GetTime(name)
	return &v
}
