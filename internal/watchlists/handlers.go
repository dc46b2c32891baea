package watchlists

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Nikonomics/PostAcutePulse-sub015/internal/db"
	"github.com/Nikonomics/PostAcutePulse-sub015/internal/utils"
	"github.com/go-chi/chi/v5"
	"gorm.io/gorm"
)

// ListWatchlists returns the caller's watchlists with entries preloaded
func ListWatchlists(w http.ResponseWriter, r *http.Request) {
	userID, ok := utils.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var lists []Watchlist
	if err := db.DB.Preload("Entries").Where("owner_id = ?", userID).
		Order("created_at ASC").Find(&lists).Error; err != nil {
		http.Error(w, "Failed to fetch watchlists: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(lists)
}

// CreateWatchlist creates a new empty watchlist
func CreateWatchlist(w http.ResponseWriter, r *http.Request) {
	userID, ok := utils.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		http.Error(w, "name is required", http.StatusBadRequest)
		return
	}

	list := Watchlist{OwnerID: userID, Name: req.Name}
	if err := db.DB.Create(&list).Error; err != nil {
		http.Error(w, "Failed to create watchlist: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(list)
}

// getOwnedList loads a watchlist and checks the caller owns it.
func getOwnedList(r *http.Request, userID string) (*Watchlist, int, error) {
	id := chi.URLParam(r, "id")

	var list Watchlist
	if err := db.DB.First(&list, "id = ?", id).Error; err != nil {
		return nil, http.StatusNotFound, errors.New("Watchlist not found")
	}
	if list.OwnerID != userID {
		return nil, http.StatusForbidden, errors.New("Not your watchlist")
	}
	return &list, 0, nil
}

// GetWatchlist returns a single watchlist with entries
func GetWatchlist(w http.ResponseWriter, r *http.Request) {
	userID, ok := utils.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	list, code, err := getOwnedList(r, userID)
	if err != nil {
		http.Error(w, err.Error(), code)
		return
	}

	if err := db.DB.Preload("Entries").First(list, "id = ?", list.ID).Error; err != nil {
		http.Error(w, "Failed to fetch watchlist: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(list)
}

// RenameWatchlist updates the list name
func RenameWatchlist(w http.ResponseWriter, r *http.Request) {
	userID, ok := utils.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	list, code, err := getOwnedList(r, userID)
	if err != nil {
		http.Error(w, err.Error(), code)
		return
	}

	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		http.Error(w, "name is required", http.StatusBadRequest)
		return
	}

	if err := db.DB.Model(list).Update("name", req.Name).Error; err != nil {
		http.Error(w, "Failed to rename watchlist: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "renamed"})
}

// DeleteWatchlist removes a list and its entries
func DeleteWatchlist(w http.ResponseWriter, r *http.Request) {
	userID, ok := utils.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	list, code, err := getOwnedList(r, userID)
	if err != nil {
		http.Error(w, err.Error(), code)
		return
	}

	tx := db.DB.Begin()
	if err := tx.Where("watchlist_id = ?", list.ID).Delete(&WatchlistEntry{}).Error; err != nil {
		tx.Rollback()
		http.Error(w, "Failed to delete watchlist: "+err.Error(), http.StatusInternalServerError)
		return
	}
	if err := tx.Delete(list).Error; err != nil {
		tx.Rollback()
		http.Error(w, "Failed to delete watchlist: "+err.Error(), http.StatusInternalServerError)
		return
	}
	if err := tx.Commit().Error; err != nil {
		http.Error(w, "Failed to delete watchlist: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "deleted"})
}

// AddEntry adds a facility or CBSA target to a watchlist
func AddEntry(w http.ResponseWriter, r *http.Request) {
	userID, ok := utils.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	list, code, err := getOwnedList(r, userID)
	if err != nil {
		http.Error(w, err.Error(), code)
		return
	}

	var req struct {
		FacilityCCN *string `json:"facility_ccn,omitempty"`
		CBSACode    *string `json:"cbsa_code,omitempty"`
		Note        string  `json:"note"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	// Exactly one target
	hasCCN := req.FacilityCCN != nil && *req.FacilityCCN != ""
	hasCBSA := req.CBSACode != nil && *req.CBSACode != ""
	if hasCCN == hasCBSA {
		http.Error(w, "Provide exactly one of facility_ccn or cbsa_code", http.StatusBadRequest)
		return
	}

	// Duplicate check
	dup := db.DB.Where("watchlist_id = ?", list.ID)
	if hasCCN {
		dup = dup.Where("facility_ccn = ?", *req.FacilityCCN)
	} else {
		dup = dup.Where("cbsa_code = ?", *req.CBSACode)
	}
	var existing WatchlistEntry
	if err := dup.First(&existing).Error; err == nil {
		http.Error(w, "Entry already on this watchlist", http.StatusConflict)
		return
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		http.Error(w, "DB error", http.StatusInternalServerError)
		return
	}

	entry := WatchlistEntry{
		WatchlistID: list.ID,
		FacilityCCN: req.FacilityCCN,
		CBSACode:    req.CBSACode,
		Note:        req.Note,
		AddedBy:     userID,
	}
	if err := db.DB.Create(&entry).Error; err != nil {
		http.Error(w, "Failed to add entry: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(entry)
}

// RemoveEntry deletes an entry from a watchlist
func RemoveEntry(w http.ResponseWriter, r *http.Request) {
	userID, ok := utils.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	list, code, err := getOwnedList(r, userID)
	if err != nil {
		http.Error(w, err.Error(), code)
		return
	}

	entryID := chi.URLParam(r, "entryID")

	result := db.DB.Where("id = ? AND watchlist_id = ?", entryID, list.ID).Delete(&WatchlistEntry{})
	if result.Error != nil {
		http.Error(w, "Failed to remove entry: "+result.Error.Error(), http.StatusInternalServerError)
		return
	}
	if result.RowsAffected == 0 {
		http.Error(w, "Entry not found", http.StatusNotFound)
		return
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "removed"})
}
