package market

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// JSONB wraps json.RawMessage with Scanner/Valuer for GORM JSONB columns.
type JSONB json.RawMessage

func (j JSONB) Value() (driver.Value, error) {
	if len(j) == 0 {
		return "{}", nil
	}
	return string(j), nil
}

func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = JSONB("{}")
		return nil
	}
	switch v := value.(type) {
	case []byte:
		*j = append((*j)[0:0], v...)
	case string:
		*j = JSONB(v)
	default:
		return fmt.Errorf("unsupported type: %T", value)
	}
	return nil
}

func (j JSONB) MarshalJSON() ([]byte, error) {
	if len(j) == 0 {
		return []byte("{}"), nil
	}
	return json.RawMessage(j).MarshalJSON()
}

func (j *JSONB) UnmarshalJSON(data []byte) error {
	if j == nil {
		return fmt.Errorf("JSONB: UnmarshalJSON on nil pointer")
	}
	*j = append((*j)[0:0], data...)
	return nil
}

// Facility is one CCN-certified provider.
type Facility struct {
	CCN      string `gorm:"primaryKey;size:6" json:"ccn"`
	Name     string `gorm:"not null;index" json:"name"`
	CareType string `gorm:"not null;index" json:"care_type"` // snf, alf, hha

	Address  string   `json:"address"`
	City     string   `json:"city"`
	State    string   `gorm:"size:2;index" json:"state"`
	County   string   `json:"county"`
	ZipCode  string   `gorm:"size:10" json:"zip_code"`
	CBSACode string   `gorm:"size:5;index" json:"cbsa_code"`
	Lat      *float64 `json:"lat,omitempty"`
	Lng      *float64 `json:"lng,omitempty"`

	Beds          *int     `json:"beds,omitempty"`
	StarRating    *int     `json:"star_rating,omitempty"` // 1-5, CMS overall rating
	OccupancyPct  *float64 `json:"occupancy_pct,omitempty"`
	MedicareDays  *int     `json:"medicare_days,omitempty"`

	Ownership []FacilityOwnership `gorm:"foreignKey:FacilityCCN" json:"ownership,omitempty"`

	// Provenance / syncing
	Source     string    `json:"source"` // "cms_provider_info"
	LastSynced time.Time `json:"last_synced"`
}

func (Facility) TableName() string {
	return "market.facilities"
}

// OwnershipProfile is a parent organization that owns or operates facilities.
type OwnershipProfile struct {
	ID      uuid.UUID `gorm:"type:uuid;primaryKey;default:uuid_generate_v4()" json:"id"`
	Name    string    `gorm:"uniqueIndex;not null" json:"name"`
	OrgType string    `json:"org_type"` // operator, reit, private_equity, nonprofit, government
	HQState string    `gorm:"size:2" json:"hq_state"`

	Facilities []FacilityOwnership `gorm:"foreignKey:ProfileID" json:"facilities,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (OwnershipProfile) TableName() string {
	return "market.ownership_profiles"
}

// FacilityOwnership links a facility to a profile with a role and stake.
type FacilityOwnership struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey;default:uuid_generate_v4()" json:"id"`
	ProfileID   uuid.UUID `gorm:"type:uuid;not null;index:uniq_owner_fac,unique" json:"profile_id"`
	FacilityCCN string    `gorm:"size:6;not null;index:uniq_owner_fac,unique" json:"facility_ccn"`
	Role        string    `gorm:"not null;index:uniq_owner_fac,unique" json:"role"` // owner, operator, landlord
	StakePct    *float64  `json:"stake_pct,omitempty"`

	Profile OwnershipProfile `gorm:"foreignKey:ProfileID" json:"-"`
}

func (FacilityOwnership) TableName() string {
	return "market.facility_ownership"
}

// MarketMetric is the aggregated per-CBSA input row for the scoring pipeline.
type MarketMetric struct {
	ID       uuid.UUID `gorm:"type:uuid;primaryKey;default:uuid_generate_v4()" json:"id"`
	CBSACode string    `gorm:"size:5;not null;index:uniq_metric_cbsa_care,unique" json:"cbsa_code"`
	CBSAName string    `gorm:"not null" json:"cbsa_name"`
	State    string    `gorm:"size:2;index" json:"state"` // principal state of the CBSA
	CareType string    `gorm:"not null;index:uniq_metric_cbsa_care,unique" json:"care_type"`

	// Supply
	FacilityCount   int      `json:"facility_count"`
	TotalBeds       int      `json:"total_beds"`
	BedsPer1kSenior *float64 `json:"beds_per_1k_senior,omitempty"`
	AgenciesPer10k  *float64 `json:"agencies_per_10k,omitempty"` // HHA only

	// Quality
	AvgStarRating *float64 `json:"avg_star_rating,omitempty"`
	PctLowStar    *float64 `json:"pct_low_star,omitempty"` // share of 1-2 star facilities
	AvgOccupancy  *float64 `json:"avg_occupancy,omitempty"`

	// Demand / demographics (Census + BLS)
	Population65Plus   *int     `json:"population_65plus,omitempty"`
	Pop65GrowthPct     *float64 `json:"pop_65_growth_pct,omitempty"`
	MedianIncome       *float64 `json:"median_income,omitempty"`
	MAPenetrationPct   *float64 `json:"ma_penetration_pct,omitempty"`
	RNHourlyWage       *float64 `json:"rn_hourly_wage,omitempty"`

	UpdatedAt time.Time `json:"updated_at"`
}

func (MarketMetric) TableName() string {
	return "market.market_metrics"
}

// OpportunityScore is the persisted output of the scoring pipeline, one row
// per (CBSA, care type).
type OpportunityScore struct {
	ID       uuid.UUID `gorm:"type:uuid;primaryKey;default:uuid_generate_v4()" json:"id"`
	CBSACode string    `gorm:"size:5;not null;index:uniq_score_cbsa_care,unique" json:"cbsa_code"`
	CBSAName string    `gorm:"not null" json:"cbsa_name"`
	State    string    `gorm:"size:2;index" json:"state"`
	CareType string    `gorm:"not null;index:uniq_score_cbsa_care,unique" json:"care_type"`

	Score        float64 `gorm:"not null" json:"score"` // composite, 0-100
	Grade        string  `gorm:"not null;index" json:"grade"`
	NationalRank int     `json:"national_rank"`
	StateRank    int     `json:"state_rank"`

	// Per-factor percentile breakdown: {"demand_growth": 87.5, ...}
	Factors JSONB `gorm:"type:jsonb;default:'{}'" json:"factors"`

	ComputedAt time.Time `json:"computed_at"`
}

func (OpportunityScore) TableName() string {
	return "market.opportunity_scores"
}
