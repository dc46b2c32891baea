package market

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Nikonomics/PostAcutePulse-sub015/internal/db"
	"github.com/Nikonomics/PostAcutePulse-sub015/internal/scoring"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"gorm.io/gorm"
)

var validCareTypes = map[string]bool{"snf": true, "alf": true, "hha": true}

// ListFacilities returns facilities filtered by state, cbsa, care type,
// county, name search, and minimum beds. Paginated.
func ListFacilities(w http.ResponseWriter, r *http.Request) {
	q := db.DB.Model(&Facility{})

	if state := r.URL.Query().Get("state"); state != "" {
		q = q.Where("state = ?", strings.ToUpper(state))
	}
	if cbsa := r.URL.Query().Get("cbsa"); cbsa != "" {
		q = q.Where("cbsa_code = ?", cbsa)
	}
	if ct := r.URL.Query().Get("care_type"); ct != "" {
		if !validCareTypes[ct] {
			http.Error(w, "care_type must be one of snf, alf, hha", http.StatusBadRequest)
			return
		}
		q = q.Where("care_type = ?", ct)
	}
	if county := r.URL.Query().Get("county"); county != "" {
		q = q.Where("county ILIKE ?", county)
	}
	if search := r.URL.Query().Get("q"); search != "" {
		q = q.Where("name ILIKE ?", "%"+search+"%")
	}
	if minBeds := r.URL.Query().Get("min_beds"); minBeds != "" {
		n, err := strconv.Atoi(minBeds)
		if err != nil {
			http.Error(w, "min_beds must be an integer", http.StatusBadRequest)
			return
		}
		q = q.Where("beds >= ?", n)
	}

	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}
	offset := 0
	if o := r.URL.Query().Get("offset"); o != "" {
		if n, err := strconv.Atoi(o); err == nil && n >= 0 {
			offset = n
		}
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		http.Error(w, "Failed to count facilities: "+err.Error(), http.StatusInternalServerError)
		return
	}

	var facilities []Facility
	if err := q.Order("name ASC").Limit(limit).Offset(offset).Find(&facilities).Error; err != nil {
		http.Error(w, "Failed to fetch facilities: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"total":      total,
		"limit":      limit,
		"offset":     offset,
		"facilities": facilities,
	})
}

// GetFacility returns one facility by CCN with its ownership links
func GetFacility(w http.ResponseWriter, r *http.Request) {
	ccn := chi.URLParam(r, "ccn")

	var facility Facility
	err := db.DB.Preload("Ownership").First(&facility, "ccn = ?", ccn).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		http.Error(w, "Facility not found", http.StatusNotFound)
		return
	} else if err != nil {
		http.Error(w, "Failed to fetch facility: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(facility)
}

// GetFacilityScores returns the opportunity scores for the facility's home
// market, all care types, so a SNF page can still show the HHA picture.
func GetFacilityScores(w http.ResponseWriter, r *http.Request) {
	ccn := chi.URLParam(r, "ccn")

	var facility Facility
	err := db.DB.First(&facility, "ccn = ?", ccn).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		http.Error(w, "Facility not found", http.StatusNotFound)
		return
	} else if err != nil {
		http.Error(w, "Failed to fetch facility: "+err.Error(), http.StatusInternalServerError)
		return
	}

	if facility.CBSACode == "" {
		http.Error(w, "Facility has no CBSA assigned", http.StatusNotFound)
		return
	}

	var scores []OpportunityScore
	if err := db.DB.Where("cbsa_code = ?", facility.CBSACode).
		Order("care_type ASC").Find(&scores).Error; err != nil {
		http.Error(w, "Failed to fetch scores: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"ccn":       facility.CCN,
		"cbsa_code": facility.CBSACode,
		"scores":    scores,
	})
}

// ListOwners returns ownership profiles, optionally filtered by org type or
// name search, with facility counts.
func ListOwners(w http.ResponseWriter, r *http.Request) {
	q := db.DB.Model(&OwnershipProfile{})

	if orgType := r.URL.Query().Get("org_type"); orgType != "" {
		q = q.Where("org_type = ?", orgType)
	}
	if search := r.URL.Query().Get("q"); search != "" {
		q = q.Where("name ILIKE ?", "%"+search+"%")
	}

	var profiles []OwnershipProfile
	if err := q.Order("name ASC").Limit(200).Find(&profiles).Error; err != nil {
		http.Error(w, "Failed to fetch owners: "+err.Error(), http.StatusInternalServerError)
		return
	}

	type ownerRow struct {
		OwnershipProfile
		FacilityCount int64 `json:"facility_count"`
	}

	// One grouped count for the whole page instead of a count per owner.
	counts := make(map[uuid.UUID]int64, len(profiles))
	if len(profiles) > 0 {
		ids := make([]uuid.UUID, 0, len(profiles))
		for _, p := range profiles {
			ids = append(ids, p.ID)
		}
		var tallies []struct {
			ProfileID uuid.UUID
			N         int64
		}
		if err := db.DB.Model(&FacilityOwnership{}).
			Select("profile_id, COUNT(*) AS n").
			Where("profile_id IN ?", ids).
			Group("profile_id").
			Scan(&tallies).Error; err != nil {
			http.Error(w, "Failed to count facilities: "+err.Error(), http.StatusInternalServerError)
			return
		}
		for _, tally := range tallies {
			counts[tally.ProfileID] = tally.N
		}
	}

	rows := make([]ownerRow, 0, len(profiles))
	for _, p := range profiles {
		rows = append(rows, ownerRow{OwnershipProfile: p, FacilityCount: counts[p.ID]})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(rows)
}

// GetOwner returns one profile with its full facility roster
func GetOwner(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var profile OwnershipProfile
	err := db.DB.Preload("Facilities").First(&profile, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		http.Error(w, "Owner not found", http.StatusNotFound)
		return
	} else if err != nil {
		http.Error(w, "Failed to fetch owner: "+err.Error(), http.StatusInternalServerError)
		return
	}

	// Resolve the roster's facilities in one query
	ccns := make([]string, 0, len(profile.Facilities))
	for _, link := range profile.Facilities {
		ccns = append(ccns, link.FacilityCCN)
	}
	var facilities []Facility
	if len(ccns) > 0 {
		if err := db.DB.Where("ccn IN ?", ccns).Order("name ASC").Find(&facilities).Error; err != nil {
			http.Error(w, "Failed to fetch roster: "+err.Error(), http.StatusInternalServerError)
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"profile":    profile,
		"facilities": facilities,
	})
}

// GetMetrics returns the raw market metric rows for one CBSA (all care types)
func GetMetrics(w http.ResponseWriter, r *http.Request) {
	cbsa := chi.URLParam(r, "cbsa")

	var metrics []MarketMetric
	if err := db.DB.Where("cbsa_code = ?", cbsa).
		Order("care_type ASC").Find(&metrics).Error; err != nil {
		http.Error(w, "Failed to fetch metrics: "+err.Error(), http.StatusInternalServerError)
		return
	}
	if len(metrics) == 0 {
		http.Error(w, "No metrics for CBSA", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(metrics)
}

// ListScores returns ranked opportunity scores for a care type, optionally
// filtered by state, grade, or minimum score.
func ListScores(w http.ResponseWriter, r *http.Request) {
	careType := r.URL.Query().Get("care_type")
	if careType == "" {
		careType = "snf"
	}
	if !validCareTypes[careType] {
		http.Error(w, "care_type must be one of snf, alf, hha", http.StatusBadRequest)
		return
	}

	q := db.DB.Model(&OpportunityScore{}).Where("care_type = ?", careType)

	if state := r.URL.Query().Get("state"); state != "" {
		q = q.Where("state = ?", strings.ToUpper(state))
	}
	if grade := r.URL.Query().Get("grade"); grade != "" {
		q = q.Where("grade = ?", strings.ToUpper(grade))
	}
	if minScore := r.URL.Query().Get("min_score"); minScore != "" {
		f, err := strconv.ParseFloat(minScore, 64)
		if err != nil {
			http.Error(w, "min_score must be a number", http.StatusBadRequest)
			return
		}
		q = q.Where("score >= ?", f)
	}

	limit := 100
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 && n <= 1000 {
			limit = n
		}
	}

	var scores []OpportunityScore
	if err := q.Order("national_rank ASC").Limit(limit).Find(&scores).Error; err != nil {
		http.Error(w, "Failed to fetch scores: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(scores)
}

// GetScores returns all score rows for one CBSA
func GetScores(w http.ResponseWriter, r *http.Request) {
	cbsa := chi.URLParam(r, "cbsa")

	var scores []OpportunityScore
	if err := db.DB.Where("cbsa_code = ?", cbsa).
		Order("care_type ASC").Find(&scores).Error; err != nil {
		http.Error(w, "Failed to fetch scores: "+err.Error(), http.StatusInternalServerError)
		return
	}
	if len(scores) == 0 {
		http.Error(w, "No scores for CBSA", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(scores)
}

// CompareMarkets returns side-by-side scores and metrics for 2-10 CBSAs
func CompareMarkets(w http.ResponseWriter, r *http.Request) {
	cbsas := r.URL.Query()["cbsa"]
	if len(cbsas) < 2 || len(cbsas) > 10 {
		http.Error(w, "Provide between 2 and 10 cbsa params", http.StatusBadRequest)
		return
	}

	careType := r.URL.Query().Get("care_type")
	if careType == "" {
		careType = "snf"
	}
	if !validCareTypes[careType] {
		http.Error(w, "care_type must be one of snf, alf, hha", http.StatusBadRequest)
		return
	}

	type marketView struct {
		CBSACode string            `json:"cbsa_code"`
		Score    *OpportunityScore `json:"score,omitempty"`
		Metrics  *MarketMetric     `json:"metrics,omitempty"`
	}

	views := make([]marketView, 0, len(cbsas))
	for _, cbsa := range cbsas {
		view := marketView{CBSACode: cbsa}

		var score OpportunityScore
		if err := db.DB.Where("cbsa_code = ? AND care_type = ?", cbsa, careType).
			First(&score).Error; err == nil {
			view.Score = &score
		}

		var metric MarketMetric
		if err := db.DB.Where("cbsa_code = ? AND care_type = ?", cbsa, careType).
			First(&metric).Error; err == nil {
			view.Metrics = &metric
		}

		views = append(views, view)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"care_type": careType,
		"markets":   views,
	})
}

// RebuildScores recomputes opportunity scores from market_metrics. Admin only.
// Runs synchronously; the full national rebuild takes a few seconds.
func RebuildScores(w http.ResponseWriter, r *http.Request) {
	vertical := r.URL.Query().Get("vertical")
	if vertical == "" {
		vertical = "all"
	}
	if vertical != "all" && !validCareTypes[vertical] {
		http.Error(w, "vertical must be one of snf, alf, hha, all", http.StatusBadRequest)
		return
	}

	weights, err := scoring.DefaultWeights()
	if err != nil {
		http.Error(w, "Failed to load scoring weights: "+err.Error(), http.StatusInternalServerError)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Minute)
	defer cancel()

	pool, err := pgxpool.New(ctx, os.Getenv("DATABASE_URL"))
	if err != nil {
		http.Error(w, "Failed to connect: "+err.Error(), http.StatusInternalServerError)
		return
	}
	defer pool.Close()

	verticals := []string{vertical}
	if vertical == "all" {
		verticals = []string{"snf", "alf", "hha"}
	}

	results := make([]scoring.RebuildResult, 0, len(verticals))
	for _, v := range verticals {
		res, err := scoring.Rebuild(ctx, pool, weights, v)
		if err != nil {
			http.Error(w, "Rebuild failed for "+v+": "+err.Error(), http.StatusInternalServerError)
			return
		}
		results = append(results, res)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":  "rebuilt",
		"results": results,
	})
}
