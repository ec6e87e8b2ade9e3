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

// materialResponse adds the derived available quantity.
type materialResponse struct {
	models.FarmMaterial
	AvailableQuantity float64 `json:"availableQuantity"`
}

func toMaterialResponse(m models.FarmMaterial) materialResponse {
	return materialResponse{FarmMaterial: m, AvailableQuantity: m.AvailableQuantity()}
}

func GetAllMaterials(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r)

	query := config.DB.Where("user_id = ?", userID)
	if category := r.URL.Query().Get("category"); category != "" {
		query = query.Where("category = ?", category)
	}
	if name := r.URL.Query().Get("q"); name != "" {
		query = query.Where("name ILIKE ?", "%"+name+"%")
	}

	var materials []models.FarmMaterial
	if err := query.Order("name ASC").Find(&materials).Error; err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	out := make([]materialResponse, 0, len(materials))
	for _, m := range materials {
		out = append(out, toMaterialResponse(m))
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(out)
}

type createMaterialReq struct {
	Name     string                  `json:"name"`
	Unit     string                  `json:"unit"`
	Category models.MaterialCategory `json:"category"`
	Quantity float64                 `json:"quantity"`
}

func CreateMaterial(w http.ResponseWriter, r *http.Request) {
	var req createMaterialReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	if req.Name == "" || req.Unit == "" {
		http.Error(w, "name and unit are required", http.StatusUnprocessableEntity)
		return
	}
	if req.Quantity < 0 {
		http.Error(w, "quantity cannot be negative", http.StatusUnprocessableEntity)
		return
	}
	if req.Category == "" {
		req.Category = models.MaterialOther
	}

	material := models.FarmMaterial{
		UserID:   middleware.GetUserID(r),
		Name:     req.Name,
		Unit:     req.Unit,
		Category: req.Category,
		Quantity: req.Quantity,
	}
	if err := config.DB.Create(&material).Error; err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(toMaterialResponse(material))
}

func GetMaterial(w http.ResponseWriter, r *http.Request) {
	material, ok := findOwnedMaterial(w, r)
	if !ok {
		return
	}
	json.NewEncoder(w).Encode(toMaterialResponse(*material))
}

type updateMaterialReq struct {
	Name     *string                  `json:"name,omitempty"`
	Unit     *string                  `json:"unit,omitempty"`
	Category *models.MaterialCategory `json:"category,omitempty"`
}

// UpdateMaterial edits catalog metadata only. Quantity and reserved
// quantity move exclusively through the activity engine so the stock
// invariants cannot be bypassed from the API.
func UpdateMaterial(w http.ResponseWriter, r *http.Request) {
	material, ok := findOwnedMaterial(w, r)
	if !ok {
		return
	}
	var req updateMaterialReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	updates := map[string]interface{}{}
	if req.Name != nil {
		updates["name"] = *req.Name
	}
	if req.Unit != nil {
		updates["unit"] = *req.Unit
	}
	if req.Category != nil {
		updates["category"] = *req.Category
	}
	if len(updates) > 0 {
		if err := config.DB.Model(material).Updates(updates).Error; err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	}
	json.NewEncoder(w).Encode(toMaterialResponse(*material))
}

func DeleteMaterial(w http.ResponseWriter, r *http.Request) {
	material, ok := findOwnedMaterial(w, r)
	if !ok {
		return
	}

	// A material still reserved by open activities cannot disappear from
	// under them.
	var count int64
	config.DB.Model(&models.ActivityMaterial{}).
		Joins("JOIN farm_activities ON farm_activities.id = activity_materials.activity_id").
		Where("activity_materials.farm_material_id = ?", material.ID).
		Where("farm_activities.status IN ?", []models.ActivityStatus{models.StatusPending, models.StatusInProgress}).
		Where("farm_activities.deleted_at IS NULL").
		Count(&count)
	if count > 0 {
		http.Error(w, "material is reserved by open activities", http.StatusConflict)
		return
	}

	if err := config.DB.Delete(material).Error; err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func findOwnedMaterial(w http.ResponseWriter, r *http.Request) (*models.FarmMaterial, bool) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return nil, false
	}
	var material models.FarmMaterial
	if err := config.DB.
		Where("id = ? AND user_id = ?", id, middleware.GetUserID(r)).
		First(&material).Error; err != nil {
		http.Error(w, "record not found", http.StatusNotFound)
		return nil, false
	}
	return &material, true
}
