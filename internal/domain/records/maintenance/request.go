// Package maintenance stores facility maintenance requests.
package maintenance

import (
	"context"
	"time"

	"registrar/internal/domain/eav"
	"registrar/internal/domain/records"
)

// EntityType is the entity type code of maintenance requests.
const EntityType = "maintenance_request"

// Request statuses.
const (
	StatusOpen       = "open"
	StatusInProgress = "in_progress"
	StatusClosed     = "closed"
)

// Request is a reported facility problem. Its natural key is
// "<location>:<reported date>".
type Request struct {
	ID          int64      `json:"id" eav:"-"`
	Title       string     `json:"title" eav:"title" validate:"required,max=200"`
	Description *string    `json:"description,omitempty" eav:"description"`
	Status      string     `json:"status" eav:"status" validate:"required,oneof=open in_progress closed"`
	Priority    *int64     `json:"priority,omitempty" eav:"priority" validate:"omitempty,min=1,max=5"`
	Location    *string    `json:"location,omitempty" eav:"location"`
	RequestedBy *string    `json:"requestedBy,omitempty" eav:"requested_by"`
	ReportedAt  *time.Time `json:"reportedAt,omitempty" eav:"reported_at"`
	Resolved    *bool      `json:"resolved,omitempty" eav:"resolved"`
	CreatedAt   time.Time  `json:"createdAt" eav:"-"`
	UpdatedAt   time.Time  `json:"updatedAt" eav:"-"`
}

func toAttributes(r *Request) map[string]any {
	attrs := map[string]any{
		"title":  r.Title,
		"status": r.Status,
	}
	records.Put(attrs, "description", r.Description)
	records.Put(attrs, "priority", r.Priority)
	records.Put(attrs, "location", r.Location)
	records.Put(attrs, "requested_by", r.RequestedBy)
	records.Put(attrs, "reported_at", r.ReportedAt)
	records.Put(attrs, "resolved", r.Resolved)
	return attrs
}

func fromDocument(doc *eav.Document) *Request {
	a := doc.Attributes
	return &Request{
		ID:          doc.ID,
		Title:       a.GetString("title"),
		Description: records.String(a, "description"),
		Status:      a.GetString("status"),
		Priority:    records.Int(a, "priority"),
		Location:    records.String(a, "location"),
		RequestedBy: records.String(a, "requested_by"),
		ReportedAt:  records.Time(a, "reported_at"),
		Resolved:    records.Bool(a, "resolved"),
		CreatedAt:   doc.CreatedAt,
		UpdatedAt:   doc.UpdatedAt,
	}
}

// naturalKey needs both location and a parseable report date.
func naturalKey(a eav.Attributes) (string, bool) {
	location := a.GetString("location")
	if location == "" {
		return "", false
	}
	v, err := eav.Encode(eav.TypeDate, a["reported_at"])
	if err != nil {
		return "", false
	}
	return location + ":" + v.Raw().(time.Time).Format("2006-01-02"), true
}

// Repository stores maintenance requests.
type Repository struct {
	*records.Repository[Request]
}

// NewRepository creates a maintenance request repository.
func NewRepository(store eav.EntityStore, query eav.QueryEngine) *Repository {
	return &Repository{
		Repository: records.NewRepository(store, query, records.Mapping[Request]{
			EntityType:    EntityType,
			ToAttributes:  toAttributes,
			FromDocument:  fromDocument,
			NaturalKey:    naturalKey,
			KeyAttributes: []string{"location", "reported_at"},
		}),
	}
}

// ListByStatus lists requests in the given status.
func (r *Repository) ListByStatus(ctx context.Context, status string, page eav.PageRequest) (*records.ListResult[Request], error) {
	return r.List(ctx, map[string]any{"status": status}, page)
}

// Resolve marks a request closed and resolved.
func (r *Repository) Resolve(ctx context.Context, id int64) (*Request, error) {
	return r.Update(ctx, id, map[string]any{"status": StatusClosed, "resolved": true})
}
