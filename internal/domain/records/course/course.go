// Package course stores course records.
package course

import (
	"context"
	"time"

	"registrar/internal/domain/eav"
	"registrar/internal/domain/records"
)

// EntityType is the entity type code of courses.
const EntityType = "course"

// Course is a course offering. Its natural key is the course code.
type Course struct {
	ID           int64      `json:"id" eav:"-"`
	Name         string     `json:"name" eav:"name" validate:"required,max=200"`
	Code         string     `json:"code" eav:"code,unique" validate:"required,max=32"`
	Credits      *int64     `json:"credits,omitempty" eav:"credits" validate:"omitempty,min=0,max=60"`
	Semester     *string    `json:"semester,omitempty" eav:"semester" validate:"omitempty,oneof=Fall Spring Summer Winter"`
	LabRequired  *bool      `json:"labRequired,omitempty" eav:"lab_required"`
	DepartmentID *int64     `json:"departmentId,omitempty" eav:"department_id" label:"Department"`
	Description  *string    `json:"description,omitempty" eav:"description"`
	IsActive     *bool      `json:"isActive,omitempty" eav:"is_active" label:"Active"`
	StartDate    *time.Time `json:"startDate,omitempty" eav:"start_date"`
	CreatedAt    time.Time  `json:"createdAt" eav:"-"`
	UpdatedAt    time.Time  `json:"updatedAt" eav:"-"`
}

func toAttributes(c *Course) map[string]any {
	attrs := map[string]any{
		"name": c.Name,
		"code": c.Code,
	}
	records.Put(attrs, "credits", c.Credits)
	records.Put(attrs, "semester", c.Semester)
	records.Put(attrs, "lab_required", c.LabRequired)
	records.Put(attrs, "department_id", c.DepartmentID)
	records.Put(attrs, "description", c.Description)
	records.Put(attrs, "is_active", c.IsActive)
	records.Put(attrs, "start_date", c.StartDate)
	return attrs
}

func fromDocument(doc *eav.Document) *Course {
	a := doc.Attributes
	return &Course{
		ID:           doc.ID,
		Name:         a.GetString("name"),
		Code:         a.GetString("code"),
		Credits:      records.Int(a, "credits"),
		Semester:     records.String(a, "semester"),
		LabRequired:  records.Bool(a, "lab_required"),
		DepartmentID: records.Int(a, "department_id"),
		Description:  records.String(a, "description"),
		IsActive:     records.Bool(a, "is_active"),
		StartDate:    records.Time(a, "start_date"),
		CreatedAt:    doc.CreatedAt,
		UpdatedAt:    doc.UpdatedAt,
	}
}

func naturalKey(a eav.Attributes) (string, bool) {
	code := a.GetString("code")
	return code, code != ""
}

// Repository stores courses.
type Repository struct {
	*records.Repository[Course]
}

// NewRepository creates a course repository.
func NewRepository(store eav.EntityStore, query eav.QueryEngine) *Repository {
	return &Repository{
		Repository: records.NewRepository(store, query, records.Mapping[Course]{
			EntityType:    EntityType,
			ToAttributes:  toAttributes,
			FromDocument:  fromDocument,
			NaturalKey:    naturalKey,
			KeyAttributes: []string{"code"},
		}),
	}
}

// GetByCode returns the course with the given code, or nil.
func (r *Repository) GetByCode(ctx context.Context, code string) (*Course, error) {
	return r.FindOne(ctx, map[string]any{"code": code})
}

// ListBySemester lists the courses of one semester, newest first.
func (r *Repository) ListBySemester(ctx context.Context, semester string, page eav.PageRequest) (*records.ListResult[Course], error) {
	return r.List(ctx, map[string]any{"semester": semester}, page)
}
