// Package subject stores subject records.
package subject

import (
	"context"
	"time"

	"registrar/internal/domain/eav"
	"registrar/internal/domain/records"
)

// EntityType is the entity type code of subjects.
const EntityType = "subject"

// Subject is a taught subject.
type Subject struct {
	ID           int64     `json:"id" eav:"-"`
	Name         string    `json:"name" eav:"name" validate:"required,max=200"`
	Code         string    `json:"code" eav:"code,unique" validate:"required,max=32"`
	Credits      *int64    `json:"credits,omitempty" eav:"credits" validate:"omitempty,min=0"`
	DepartmentID *int64    `json:"departmentId,omitempty" eav:"department_id" label:"Department"`
	IsActive     *bool     `json:"isActive,omitempty" eav:"is_active" label:"Active"`
	Description  *string   `json:"description,omitempty" eav:"description"`
	CreatedAt    time.Time `json:"createdAt" eav:"-"`
	UpdatedAt    time.Time `json:"updatedAt" eav:"-"`
}

func toAttributes(s *Subject) map[string]any {
	attrs := map[string]any{
		"name": s.Name,
		"code": s.Code,
	}
	records.Put(attrs, "credits", s.Credits)
	records.Put(attrs, "department_id", s.DepartmentID)
	records.Put(attrs, "is_active", s.IsActive)
	records.Put(attrs, "description", s.Description)
	return attrs
}

func fromDocument(doc *eav.Document) *Subject {
	a := doc.Attributes
	return &Subject{
		ID:           doc.ID,
		Name:         a.GetString("name"),
		Code:         a.GetString("code"),
		Credits:      records.Int(a, "credits"),
		DepartmentID: records.Int(a, "department_id"),
		IsActive:     records.Bool(a, "is_active"),
		Description:  records.String(a, "description"),
		CreatedAt:    doc.CreatedAt,
		UpdatedAt:    doc.UpdatedAt,
	}
}

// Repository stores subjects.
type Repository struct {
	*records.Repository[Subject]
}

// NewRepository creates a subject repository.
func NewRepository(store eav.EntityStore, query eav.QueryEngine) *Repository {
	return &Repository{
		Repository: records.NewRepository(store, query, records.Mapping[Subject]{
			EntityType:   EntityType,
			ToAttributes: toAttributes,
			FromDocument: fromDocument,
			NaturalKey: func(a eav.Attributes) (string, bool) {
				code := a.GetString("code")
				return code, code != ""
			},
			KeyAttributes: []string{"code"},
		}),
	}
}

// ListActiveByDepartment lists the active subjects of a department.
func (r *Repository) ListActiveByDepartment(ctx context.Context, departmentID int64, page eav.PageRequest) (*records.ListResult[Subject], error) {
	return r.List(ctx, map[string]any{"departmentId": departmentID, "isActive": true}, page)
}
