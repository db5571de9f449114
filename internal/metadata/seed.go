package metadata

import (
	"context"
	"fmt"

	"registrar/internal/core/tx"
	"registrar/internal/domain/eav"
	"registrar/pkg/logger"
)

// ApplyResult summarizes one Apply run.
type ApplyResult struct {
	EntityTypes int
	Attributes  int
}

// Apply declares every entity type and attribute of defs in a single
// transaction. Existing declarations are left untouched, so Apply can be
// run repeatedly.
func Apply(ctx context.Context, txm tx.Manager, registry eav.TypeRegistry, defs []EntityDef) (ApplyResult, error) {
	var res ApplyResult

	err := txm.RunInTransaction(ctx, func(ctx context.Context) error {
		res = ApplyResult{}
		for _, def := range defs {
			if err := def.Validate(); err != nil {
				return err
			}

			typeID, err := registry.EnsureEntityType(ctx, def.Name)
			if err != nil {
				return fmt.Errorf("ensure entity type %q: %w", def.Name, err)
			}
			res.EntityTypes++

			for _, spec := range def.Specs() {
				stored, err := registry.EnsureAttribute(ctx, typeID, spec)
				if err != nil {
					return fmt.Errorf("ensure attribute %s.%s: %w", def.Name, spec.Name, err)
				}
				if stored.DataType != spec.DataType {
					logger.Warn(ctx, "schema declares a different type than stored",
						"entity_type", def.Name,
						"attribute", spec.Name,
						"stored", stored.DataType,
						"declared", spec.DataType,
					)
				}
				res.Attributes++
			}
		}
		return nil
	})
	if err != nil {
		return ApplyResult{}, err
	}

	logger.Info(ctx, "schema applied", "entity_types", res.EntityTypes, "attributes", res.Attributes)
	return res, nil
}
