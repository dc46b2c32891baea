package deals

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// Deal is one tracked acquisition opportunity in the pipeline.
type Deal struct {
	ID    uuid.UUID `gorm:"type:uuid;primaryKey;default:uuid_generate_v4()" json:"id"`
	Title string    `gorm:"not null" json:"title"`

	// Facility reference (optional until a target is identified)
	FacilityCCN *string `gorm:"size:6;index" json:"facility_ccn,omitempty"`
	CareType    string  `gorm:"not null;index" json:"care_type"` // snf, alf, hha
	State       string  `gorm:"size:2;index" json:"state"`
	CBSACode    string  `gorm:"size:5;index" json:"cbsa_code"`

	// Deal economics
	AskingPrice *float64 `json:"asking_price,omitempty"`
	Beds        *int     `json:"beds,omitempty"`
	PricePerBed *float64 `json:"price_per_bed,omitempty"`

	// Workflow state
	Stage      string  `gorm:"default:'lead';index" json:"stage"`
	AssignedTo *string `json:"assigned_to,omitempty"`
	CreatedBy  string  `gorm:"not null" json:"created_by"`

	Tags  pq.StringArray `gorm:"type:text[]" json:"tags"`
	Notes string         `json:"notes"`

	// Editing lock (10-min auto-expire)
	LockedBy *string    `json:"locked_by,omitempty"`
	LockedAt *time.Time `json:"locked_at,omitempty"`

	ClosedAt *time.Time `json:"closed_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Deal) TableName() string {
	return "crm.deals"
}

// DealComment is a discussion note attached to a deal.
type DealComment struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey;default:uuid_generate_v4()" json:"id"`
	DealID    uuid.UUID `gorm:"type:uuid;not null;index" json:"deal_id"`
	AuthorID  string    `gorm:"not null" json:"author_id"`
	Body      string    `gorm:"not null" json:"body"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (DealComment) TableName() string {
	return "crm.deal_comments"
}

// DealActivity is an append-only audit row; one per mutation.
type DealActivity struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey;default:uuid_generate_v4()" json:"id"`
	DealID        uuid.UUID `gorm:"type:uuid;not null;index" json:"deal_id"`
	ActorID       string    `gorm:"not null" json:"actor_id"`
	Action        string    `gorm:"not null" json:"action"` // created, updated, stage_changed, commented, assigned
	PreviousValue *string   `json:"previous_value,omitempty"`
	NewValue      *string   `json:"new_value,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

func (DealActivity) TableName() string {
	return "crm.deal_activities"
}
