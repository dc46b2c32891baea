package watchlists

import (
	"time"

	"github.com/google/uuid"
)

// Watchlist is a named set of markets/facilities a user is tracking.
type Watchlist struct {
	ID      uuid.UUID `gorm:"type:uuid;primaryKey;default:uuid_generate_v4()" json:"id"`
	OwnerID string    `gorm:"not null;index" json:"owner_id"`
	Name    string    `gorm:"not null" json:"name"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Entries []WatchlistEntry `gorm:"foreignKey:WatchlistID;constraint:OnDelete:CASCADE" json:"entries,omitempty"`
}

func (Watchlist) TableName() string {
	return "crm.watchlists"
}

// WatchlistEntry targets either a facility (by CCN) or a whole market (by
// CBSA code) — exactly one of the two.
type WatchlistEntry struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey;default:uuid_generate_v4()" json:"id"`
	WatchlistID uuid.UUID `gorm:"type:uuid;not null;index:idx_watchlist_target,unique" json:"watchlist_id"`

	FacilityCCN *string `gorm:"size:6;index:idx_watchlist_target,unique" json:"facility_ccn,omitempty"`
	CBSACode    *string `gorm:"size:5;index:idx_watchlist_target,unique" json:"cbsa_code,omitempty"`

	Note      string    `json:"note,omitempty"`
	AddedBy   string    `gorm:"not null" json:"added_by"`
	CreatedAt time.Time `json:"created_at"`
}

func (WatchlistEntry) TableName() string {
	return "crm.watchlist_entries"
}
