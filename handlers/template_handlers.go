package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"gorm.io/datatypes"

	"p9e.in/farmops/config"
	"p9e.in/farmops/middleware"
	"p9e.in/farmops/models"
)

// GetTemplates lists the caller's templates plus the system defaults.
func GetTemplates(w http.ResponseWriter, r *http.Request) {
	var templates []models.ActivityTemplate
	if err := config.DB.
		Where("user_id = ? OR user_id IS NULL", middleware.GetUserID(r)).
		Order("day_offset ASC").
		Find(&templates).Error; err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(templates)
}

type templateReq struct {
	Name         *string                   `json:"name,omitempty"`
	ActivityType *models.ActivityType      `json:"activityType,omitempty"`
	Season       *string                   `json:"season,omitempty"`
	DayOffset    *int                      `json:"dayOffset,omitempty"`
	DurationDays *int                      `json:"durationDays,omitempty"`
	Materials    []models.TemplateMaterial `json:"materials,omitempty"`
	IsActive     *bool                     `json:"isActive,omitempty"`
}

// CreateTemplate creates a template owned by the caller.
func CreateTemplate(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r)
	createTemplate(w, r, &userID)
}

// CreateSystemTemplate creates a nil-owner default template. Routed
// behind RequireRole("admin").
func CreateSystemTemplate(w http.ResponseWriter, r *http.Request) {
	createTemplate(w, r, nil)
}

func createTemplate(w http.ResponseWriter, r *http.Request, owner *uuid.UUID) {
	var req templateReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	if req.Name == nil || *req.Name == "" || req.ActivityType == nil || req.Season == nil || *req.Season == "" {
		http.Error(w, "name, activityType and season are required", http.StatusUnprocessableEntity)
		return
	}

	tmpl := models.ActivityTemplate{
		UserID:       owner,
		Name:         *req.Name,
		ActivityType: *req.ActivityType,
		Season:       *req.Season,
		DurationDays: 1,
		IsActive:     true,
	}
	if req.DayOffset != nil {
		tmpl.DayOffset = *req.DayOffset
	}
	if req.DurationDays != nil && *req.DurationDays > 0 {
		tmpl.DurationDays = *req.DurationDays
	}
	if len(req.Materials) > 0 {
		raw, err := json.Marshal(req.Materials)
		if err != nil {
			http.Error(w, "invalid materials", http.StatusUnprocessableEntity)
			return
		}
		tmpl.Materials = datatypes.JSON(raw)
	}

	if err := config.DB.Create(&tmpl).Error; err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(tmpl)
}

func UpdateTemplate(w http.ResponseWriter, r *http.Request) {
	tmpl, ok := findEditableTemplate(w, r)
	if !ok {
		return
	}
	var req templateReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	updates := map[string]interface{}{}
	if req.Name != nil {
		updates["name"] = *req.Name
	}
	if req.ActivityType != nil {
		updates["activity_type"] = *req.ActivityType
	}
	if req.Season != nil {
		updates["season"] = *req.Season
	}
	if req.DayOffset != nil {
		updates["day_offset"] = *req.DayOffset
	}
	if req.DurationDays != nil && *req.DurationDays > 0 {
		updates["duration_days"] = *req.DurationDays
	}
	if req.IsActive != nil {
		updates["is_active"] = *req.IsActive
	}
	if req.Materials != nil {
		raw, err := json.Marshal(req.Materials)
		if err != nil {
			http.Error(w, "invalid materials", http.StatusUnprocessableEntity)
			return
		}
		updates["materials"] = datatypes.JSON(raw)
	}
	if len(updates) > 0 {
		if err := config.DB.Model(tmpl).Updates(updates).Error; err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	}
	json.NewEncoder(w).Encode(tmpl)
}

func DeleteTemplate(w http.ResponseWriter, r *http.Request) {
	tmpl, ok := findEditableTemplate(w, r)
	if !ok {
		return
	}
	if err := config.DB.Delete(tmpl).Error; err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// findEditableTemplate loads a template the caller may modify: their own,
// or a system template when they are an admin.
func findEditableTemplate(w http.ResponseWriter, r *http.Request) (*models.ActivityTemplate, bool) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return nil, false
	}
	var tmpl models.ActivityTemplate
	if err := config.DB.First(&tmpl, "id = ?", id).Error; err != nil {
		http.Error(w, "record not found", http.StatusNotFound)
		return nil, false
	}
	if tmpl.UserID == nil {
		if middleware.GetRole(r) != "admin" {
			http.Error(w, "only admins can modify system templates", http.StatusForbidden)
			return nil, false
		}
	} else if *tmpl.UserID != middleware.GetUserID(r) {
		http.Error(w, "record not found", http.StatusNotFound)
		return nil, false
	}
	return &tmpl, true
}
