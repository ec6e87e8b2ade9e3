package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"p9e.in/farmops/config"
	"p9e.in/farmops/middleware"
	"p9e.in/farmops/models"
)

func GetAllCrops(w http.ResponseWriter, r *http.Request) {
	query := config.DB.
		Preload("Field").
		Where("user_id = ?", middleware.GetUserID(r))
	if fieldID := r.URL.Query().Get("field_id"); fieldID != "" {
		query = query.Where("field_id = ?", fieldID)
	}
	if status := r.URL.Query().Get("status"); status != "" {
		query = query.Where("status = ?", status)
	}

	var crops []models.Crop
	if err := query.Order("created_at DESC").Find(&crops).Error; err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(crops)
}

type cropReq struct {
	FieldID             *uuid.UUID       `json:"fieldId,omitempty"`
	Name                *string          `json:"name,omitempty"`
	Variety             *string          `json:"variety,omitempty"`
	Season              *string          `json:"season,omitempty"`
	Quantity            *int             `json:"quantity,omitempty"`
	LandPreparationDate *models.JSONTime `json:"landPreparationDate,omitempty"`
	PlantingDate        *models.JSONTime `json:"plantingDate,omitempty"`
	HarvestDate         *models.JSONTime `json:"harvestDate,omitempty"`
	Status              *string          `json:"status,omitempty"`
}

func CreateCrop(w http.ResponseWriter, r *http.Request) {
	var req cropReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	if req.Name == nil || *req.Name == "" || req.FieldID == nil || req.Season == nil || *req.Season == "" {
		http.Error(w, "name, fieldId and season are required", http.StatusUnprocessableEntity)
		return
	}

	userID := middleware.GetUserID(r)

	// The field must exist and belong to the caller.
	var field models.Field
	if err := config.DB.
		Where("id = ? AND user_id = ?", *req.FieldID, userID).
		First(&field).Error; err != nil {
		http.Error(w, "field not found", http.StatusUnprocessableEntity)
		return
	}

	crop := models.Crop{
		UserID:              userID,
		FieldID:             field.ID,
		Name:                *req.Name,
		Season:              *req.Season,
		LandPreparationDate: req.LandPreparationDate,
		PlantingDate:        req.PlantingDate,
		HarvestDate:         req.HarvestDate,
	}
	if req.Variety != nil {
		crop.Variety = *req.Variety
	}
	if req.Quantity != nil {
		crop.Quantity = *req.Quantity
	}

	if err := config.DB.Create(&crop).Error; err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(crop)
}

func GetCrop(w http.ResponseWriter, r *http.Request) {
	crop, ok := findOwnedCrop(w, r)
	if !ok {
		return
	}
	json.NewEncoder(w).Encode(crop)
}

func UpdateCrop(w http.ResponseWriter, r *http.Request) {
	crop, ok := findOwnedCrop(w, r)
	if !ok {
		return
	}
	var req cropReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	updates := map[string]interface{}{}
	if req.Name != nil {
		updates["name"] = *req.Name
	}
	if req.Variety != nil {
		updates["variety"] = *req.Variety
	}
	if req.Season != nil {
		updates["season"] = *req.Season
	}
	if req.Quantity != nil {
		updates["quantity"] = *req.Quantity
	}
	if req.LandPreparationDate != nil {
		updates["land_preparation_date"] = req.LandPreparationDate.Time()
	}
	if req.PlantingDate != nil {
		updates["planting_date"] = req.PlantingDate.Time()
	}
	if req.HarvestDate != nil {
		updates["harvest_date"] = req.HarvestDate.Time()
	}
	if req.Status != nil {
		if *req.Status != "growing" && *req.Status != "harvested" {
			http.Error(w, "status must be growing or harvested", http.StatusUnprocessableEntity)
			return
		}
		updates["status"] = *req.Status
	}
	if len(updates) > 0 {
		if err := config.DB.Model(crop).Updates(updates).Error; err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	}
	json.NewEncoder(w).Encode(crop)
}

func DeleteCrop(w http.ResponseWriter, r *http.Request) {
	crop, ok := findOwnedCrop(w, r)
	if !ok {
		return
	}

	var count int64
	config.DB.Model(&models.FarmActivity{}).
		Where("crop_id = ? AND status IN ?", crop.ID,
			[]models.ActivityStatus{models.StatusPending, models.StatusInProgress}).
		Count(&count)
	if count > 0 {
		http.Error(w, "crop has open activities", http.StatusConflict)
		return
	}

	if err := config.DB.Delete(crop).Error; err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func findOwnedCrop(w http.ResponseWriter, r *http.Request) (*models.Crop, bool) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return nil, false
	}
	var crop models.Crop
	if err := config.DB.
		Preload("Field").
		Where("id = ? AND user_id = ?", id, middleware.GetUserID(r)).
		First(&crop).Error; err != nil {
		http.Error(w, "record not found", http.StatusNotFound)
		return nil, false
	}
	return &crop, true
}
