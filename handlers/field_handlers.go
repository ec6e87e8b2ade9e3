package handlers

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"gorm.io/datatypes"

	"p9e.in/farmops/config"
	"p9e.in/farmops/middleware"
	"p9e.in/farmops/models"
	"p9e.in/farmops/utils"
)

func GetAllFields(w http.ResponseWriter, r *http.Request) {
	var fields []models.Field
	if err := config.DB.
		Where("user_id = ?", middleware.GetUserID(r)).
		Order("name ASC").
		Find(&fields).Error; err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(fields)
}

type fieldReq struct {
	Name     *string         `json:"name,omitempty"`
	Location *string         `json:"location,omitempty"`
	SoilType *string         `json:"soilType,omitempty"`
	Boundary json.RawMessage `json:"boundary,omitempty"`
	// AreaHectares is honored only when no boundary is supplied; a
	// boundary always wins so the stored area matches the geometry.
	AreaHectares *float64 `json:"areaHectares,omitempty"`
}

func CreateField(w http.ResponseWriter, r *http.Request) {
	var req fieldReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	if req.Name == nil || *req.Name == "" {
		http.Error(w, "name is required", http.StatusUnprocessableEntity)
		return
	}

	field := models.Field{
		UserID: middleware.GetUserID(r),
		Name:   *req.Name,
	}
	if req.Location != nil {
		field.Location = *req.Location
	}
	field.SoilType = req.SoilType
	if req.AreaHectares != nil && *req.AreaHectares >= 0 {
		field.AreaHectares = *req.AreaHectares
	}
	if len(req.Boundary) > 0 {
		area, err := utils.PolygonAreaHectares(req.Boundary)
		if err != nil {
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}
		field.Boundary = datatypes.JSON(req.Boundary)
		field.AreaHectares = area
	}

	if err := config.DB.Create(&field).Error; err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	log.Printf("✅ Field %q created (%.2f ha)", field.Name, field.AreaHectares)
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(field)
}

func GetField(w http.ResponseWriter, r *http.Request) {
	field, ok := findOwnedField(w, r)
	if !ok {
		return
	}
	json.NewEncoder(w).Encode(field)
}

func UpdateField(w http.ResponseWriter, r *http.Request) {
	field, ok := findOwnedField(w, r)
	if !ok {
		return
	}
	var req fieldReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	updates := map[string]interface{}{}
	if req.Name != nil {
		updates["name"] = *req.Name
	}
	if req.Location != nil {
		updates["location"] = *req.Location
	}
	if req.SoilType != nil {
		updates["soil_type"] = *req.SoilType
	}
	if req.AreaHectares != nil && *req.AreaHectares >= 0 {
		updates["area_hectares"] = *req.AreaHectares
	}
	if len(req.Boundary) > 0 {
		area, err := utils.PolygonAreaHectares(req.Boundary)
		if err != nil {
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}
		updates["boundary"] = datatypes.JSON(req.Boundary)
		updates["area_hectares"] = area
	}
	if len(updates) > 0 {
		if err := config.DB.Model(field).Updates(updates).Error; err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	}
	json.NewEncoder(w).Encode(field)
}

func DeleteField(w http.ResponseWriter, r *http.Request) {
	field, ok := findOwnedField(w, r)
	if !ok {
		return
	}

	var count int64
	config.DB.Model(&models.FarmActivity{}).
		Where("field_id = ? AND status IN ?", field.ID,
			[]models.ActivityStatus{models.StatusPending, models.StatusInProgress}).
		Count(&count)
	if count > 0 {
		http.Error(w, "field has open activities", http.StatusConflict)
		return
	}

	if err := config.DB.Delete(field).Error; err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func findOwnedField(w http.ResponseWriter, r *http.Request) (*models.Field, bool) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return nil, false
	}
	var field models.Field
	if err := config.DB.
		Where("id = ? AND user_id = ?", id, middleware.GetUserID(r)).
		First(&field).Error; err != nil {
		http.Error(w, "record not found", http.StatusNotFound)
		return nil, false
	}
	return &field, true
}
