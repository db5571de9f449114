package records

import (
	"context"
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"registrar/internal/core/apperror"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// Report camelCase field names, as the models are addressed by callers.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks a model's validate tags. Failures become a VALIDATION_ERROR
// whose "fields" detail maps each field to the rule it broke.
func Validate(ctx context.Context, entityType string, model any) error {
	err := validate.StructCtx(ctx, model)
	if err == nil {
		return nil
	}

	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return apperror.NewInternal(err)
	}

	fields := make(map[string]string, len(ve))
	for _, fe := range ve {
		fields[fe.Field()] = fe.Tag()
	}
	return apperror.NewValidation("invalid "+entityType).WithDetail("fields", fields)
}
