package deals

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/Nikonomics/PostAcutePulse-sub015/internal/db"
	"github.com/Nikonomics/PostAcutePulse-sub015/internal/utils"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

const LockDuration = 10 * time.Minute

// ListDeals returns deals with optional filtering
func ListDeals(w http.ResponseWriter, r *http.Request) {
	query := db.DB.Model(&Deal{})

	if stage := r.URL.Query().Get("stage"); stage != "" {
		query = query.Where("stage = ?", stage)
	}
	if careType := r.URL.Query().Get("care_type"); careType != "" {
		query = query.Where("care_type = ?", careType)
	}
	if state := r.URL.Query().Get("state"); state != "" {
		query = query.Where("state = ?", state)
	}
	if cbsa := r.URL.Query().Get("cbsa"); cbsa != "" {
		query = query.Where("cbsa_code = ?", cbsa)
	}
	if assignedTo := r.URL.Query().Get("assigned_to"); assignedTo != "" {
		query = query.Where("assigned_to = ?", assignedTo)
	}

	limit := 50
	if l, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && l > 0 && l <= 200 {
		limit = l
	}
	offset := 0
	if o, err := strconv.Atoi(r.URL.Query().Get("offset")); err == nil && o > 0 {
		offset = o
	}

	var deals []Deal
	if err := query.Order("created_at DESC").Limit(limit).Offset(offset).Find(&deals).Error; err != nil {
		http.Error(w, "Failed to fetch deals: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(deals)
}

// CreateDeal creates a new deal in lead stage
func CreateDeal(w http.ResponseWriter, r *http.Request) {
	userID, ok := utils.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req struct {
		Title       string   `json:"title"`
		FacilityCCN *string  `json:"facility_ccn,omitempty"`
		CareType    string   `json:"care_type"`
		State       string   `json:"state"`
		CBSACode    string   `json:"cbsa_code"`
		AskingPrice *float64 `json:"asking_price,omitempty"`
		Beds        *int     `json:"beds,omitempty"`
		Tags        []string `json:"tags"`
		Notes       string   `json:"notes"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if req.Title == "" || req.CareType == "" {
		http.Error(w, "title and care_type are required", http.StatusBadRequest)
		return
	}
	switch req.CareType {
	case "snf", "alf", "hha":
	default:
		http.Error(w, "care_type must be one of snf, alf, hha", http.StatusBadRequest)
		return
	}

	deal := Deal{
		Title:       req.Title,
		FacilityCCN: req.FacilityCCN,
		CareType:    req.CareType,
		State:       req.State,
		CBSACode:    req.CBSACode,
		AskingPrice: req.AskingPrice,
		Beds:        req.Beds,
		Stage:       StageLead,
		CreatedBy:   userID,
		Tags:        pq.StringArray(req.Tags),
		Notes:       req.Notes,
	}

	if req.AskingPrice != nil && req.Beds != nil && *req.Beds > 0 {
		ppb := *req.AskingPrice / float64(*req.Beds)
		deal.PricePerBed = &ppb
	}

	if err := db.DB.Create(&deal).Error; err != nil {
		http.Error(w, "Failed to create deal: "+err.Error(), http.StatusInternalServerError)
		return
	}

	logActivity(db.DB, deal.ID, userID, "created", nil, &deal.Title)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(deal)
}

// GetDeal returns a single deal by ID
func GetDeal(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var deal Deal
	if err := db.DB.First(&deal, "id = ?", id).Error; err != nil {
		http.Error(w, "Deal not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(deal)
}

// UpdateDeal updates mutable deal fields. Respects edit locks.
func UpdateDeal(w http.ResponseWriter, r *http.Request) {
	userID, ok := utils.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	id := chi.URLParam(r, "id")

	var deal Deal
	if err := db.DB.First(&deal, "id = ?", id).Error; err != nil {
		http.Error(w, "Deal not found", http.StatusNotFound)
		return
	}

	if held, holder := lockHeldByOther(&deal, userID); held {
		http.Error(w, "Deal is locked by "+holder, http.StatusConflict)
		return
	}

	var req struct {
		Title       *string  `json:"title,omitempty"`
		FacilityCCN *string  `json:"facility_ccn,omitempty"`
		AskingPrice *float64 `json:"asking_price,omitempty"`
		Beds        *int     `json:"beds,omitempty"`
		AssignedTo  *string  `json:"assigned_to,omitempty"`
		Tags        []string `json:"tags,omitempty"`
		Notes       *string  `json:"notes,omitempty"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	updates := map[string]interface{}{}
	if req.Title != nil {
		if *req.Title == "" {
			http.Error(w, "title cannot be empty", http.StatusBadRequest)
			return
		}
		updates["title"] = *req.Title
	}
	if req.FacilityCCN != nil {
		updates["facility_ccn"] = *req.FacilityCCN
	}
	if req.AskingPrice != nil {
		updates["asking_price"] = *req.AskingPrice
	}
	if req.Beds != nil {
		updates["beds"] = *req.Beds
	}
	if req.AssignedTo != nil {
		updates["assigned_to"] = *req.AssignedTo
		logActivity(db.DB, deal.ID, userID, "assigned", deal.AssignedTo, req.AssignedTo)
	}
	if req.Tags != nil {
		updates["tags"] = pq.StringArray(req.Tags)
	}
	if req.Notes != nil {
		updates["notes"] = *req.Notes
	}

	// Recompute price-per-bed if either input moved
	price := deal.AskingPrice
	beds := deal.Beds
	if req.AskingPrice != nil {
		price = req.AskingPrice
	}
	if req.Beds != nil {
		beds = req.Beds
	}
	if price != nil && beds != nil && *beds > 0 {
		updates["price_per_bed"] = *price / float64(*beds)
	}

	if len(updates) == 0 {
		http.Error(w, "No updatable fields provided", http.StatusBadRequest)
		return
	}

	if err := db.DB.Model(&deal).Updates(updates).Error; err != nil {
		http.Error(w, "Failed to update deal: "+err.Error(), http.StatusInternalServerError)
		return
	}

	logActivity(db.DB, deal.ID, userID, "updated", nil, nil)

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "updated"})
}

// ChangeStage moves a deal through the pipeline
func ChangeStage(w http.ResponseWriter, r *http.Request) {
	userID, ok := utils.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	id := chi.URLParam(r, "id")

	var req struct {
		Stage string `json:"stage"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	tx := db.DB.Begin()
	if tx.Error != nil {
		http.Error(w, "Failed to start transaction", http.StatusInternalServerError)
		return
	}

	var deal Deal
	if err := tx.First(&deal, "id = ?", id).Error; err != nil {
		tx.Rollback()
		http.Error(w, "Deal not found", http.StatusNotFound)
		return
	}

	if held, holder := lockHeldByOther(&deal, userID); held {
		tx.Rollback()
		http.Error(w, "Deal is locked by "+holder, http.StatusConflict)
		return
	}

	if err := CanTransition(deal.Stage, req.Stage); err != nil {
		tx.Rollback()
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	previous := deal.Stage
	deal.Stage = req.Stage
	if Terminal(req.Stage) {
		now := time.Now()
		deal.ClosedAt = &now
	}

	if err := tx.Save(&deal).Error; err != nil {
		tx.Rollback()
		http.Error(w, "Failed to save deal: "+err.Error(), http.StatusInternalServerError)
		return
	}

	logActivity(tx, deal.ID, userID, "stage_changed", &previous, &req.Stage)

	if err := tx.Commit().Error; err != nil {
		http.Error(w, "Failed to commit: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"stage":    deal.Stage,
		"previous": previous,
	})
}

// DeleteDeal removes a deal and its comments/activity (admin only)
func DeleteDeal(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var deal Deal
	if err := db.DB.First(&deal, "id = ?", id).Error; err != nil {
		http.Error(w, "Deal not found", http.StatusNotFound)
		return
	}

	tx := db.DB.Begin()
	if err := tx.Where("deal_id = ?", deal.ID).Delete(&DealComment{}).Error; err != nil {
		tx.Rollback()
		http.Error(w, "Failed to delete deal: "+err.Error(), http.StatusInternalServerError)
		return
	}
	if err := tx.Where("deal_id = ?", deal.ID).Delete(&DealActivity{}).Error; err != nil {
		tx.Rollback()
		http.Error(w, "Failed to delete deal: "+err.Error(), http.StatusInternalServerError)
		return
	}
	if err := tx.Delete(&deal).Error; err != nil {
		tx.Rollback()
		http.Error(w, "Failed to delete deal: "+err.Error(), http.StatusInternalServerError)
		return
	}
	if err := tx.Commit().Error; err != nil {
		http.Error(w, "Failed to delete deal: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "deleted"})
}

// ListComments returns a deal's comments, oldest first
func ListComments(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var comments []DealComment
	if err := db.DB.Where("deal_id = ?", id).Order("created_at ASC").Find(&comments).Error; err != nil {
		http.Error(w, "Failed to fetch comments: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(comments)
}

// CreateComment adds a comment to a deal
func CreateComment(w http.ResponseWriter, r *http.Request) {
	userID, ok := utils.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	id := chi.URLParam(r, "id")

	var deal Deal
	if err := db.DB.First(&deal, "id = ?", id).Error; err != nil {
		http.Error(w, "Deal not found", http.StatusNotFound)
		return
	}

	var req struct {
		Body string `json:"body"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Body == "" {
		http.Error(w, "body is required", http.StatusBadRequest)
		return
	}

	comment := DealComment{
		DealID:   deal.ID,
		AuthorID: userID,
		Body:     req.Body,
	}
	if err := db.DB.Create(&comment).Error; err != nil {
		http.Error(w, "Failed to create comment: "+err.Error(), http.StatusInternalServerError)
		return
	}

	logActivity(db.DB, deal.ID, userID, "commented", nil, nil)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(comment)
}

// ListActivity returns the audit trail for a deal, newest first
func ListActivity(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var activity []DealActivity
	if err := db.DB.Where("deal_id = ?", id).Order("created_at DESC").Find(&activity).Error; err != nil {
		http.Error(w, "Failed to fetch activity: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(activity)
}

// AcquireLock acquires a 10-minute edit lock on a deal
func AcquireLock(w http.ResponseWriter, r *http.Request) {
	userID, ok := utils.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	id := chi.URLParam(r, "id")

	var deal Deal
	if err := db.DB.First(&deal, "id = ?", id).Error; err != nil {
		http.Error(w, "Deal not found", http.StatusNotFound)
		return
	}

	now := time.Now()

	// Check if currently locked by someone else
	if deal.LockedBy != nil && deal.LockedAt != nil {
		if now.Sub(*deal.LockedAt) < LockDuration && *deal.LockedBy != userID {
			expiresAt := deal.LockedAt.Add(LockDuration)
			http.Error(w, fmt.Sprintf("Locked by %s until %s", *deal.LockedBy, expiresAt.Format(time.RFC3339)), http.StatusConflict)
			return
		}
	}

	// Acquire lock
	deal.LockedBy = &userID
	deal.LockedAt = &now

	if err := db.DB.Save(&deal).Error; err != nil {
		http.Error(w, "Failed to acquire lock: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"locked":     true,
		"locked_by":  userID,
		"expires_at": now.Add(LockDuration).Format(time.RFC3339),
	})
}

// ReleaseLock releases an edit lock on a deal
func ReleaseLock(w http.ResponseWriter, r *http.Request) {
	userID, ok := utils.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	id := chi.URLParam(r, "id")

	var deal Deal
	if err := db.DB.First(&deal, "id = ?", id).Error; err != nil {
		http.Error(w, "Deal not found", http.StatusNotFound)
		return
	}

	// Only the lock holder can release (or if lock is expired)
	if deal.LockedBy != nil && *deal.LockedBy != userID {
		if deal.LockedAt != nil && time.Since(*deal.LockedAt) < LockDuration {
			http.Error(w, "You do not hold this lock", http.StatusForbidden)
			return
		}
	}

	deal.LockedBy = nil
	deal.LockedAt = nil

	if err := db.DB.Save(&deal).Error; err != nil {
		http.Error(w, "Failed to release lock: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "released"})
}

// lockHeldByOther reports whether an unexpired lock belongs to someone else.
func lockHeldByOther(deal *Deal, userID string) (bool, string) {
	if deal.LockedBy == nil || deal.LockedAt == nil {
		return false, ""
	}
	if *deal.LockedBy == userID {
		return false, ""
	}
	if time.Since(*deal.LockedAt) >= LockDuration {
		return false, ""
	}
	return true, *deal.LockedBy
}

func logActivity(tx *gorm.DB, dealID uuid.UUID, actorID, action string, prev, next *string) {
	entry := DealActivity{
		DealID:        dealID,
		ActorID:       actorID,
		Action:        action,
		PreviousValue: prev,
		NewValue:      next,
	}
	if err := tx.Create(&entry).Error; err != nil {
		// Non-fatal - the audit row is supplementary
		fmt.Printf("Warning: failed to log deal activity: %v\n", err)
	}
}
