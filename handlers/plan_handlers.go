package handlers

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"p9e.in/farmops/config"
	"p9e.in/farmops/middleware"
	"p9e.in/farmops/models"
)

type planReq struct {
	CropID uuid.UUID `json:"cropId"`
}

// PreviewPlan returns the draft schedule for a crop without persisting
// anything.
func PreviewPlan(w http.ResponseWriter, r *http.Request) {
	crop, field, ok := loadPlanTargets(w, r)
	if !ok {
		return
	}
	drafts, err := NewPlanGenerator(config.DB).Generate(crop, field)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"crop":       crop,
		"field":      field,
		"activities": drafts,
	})
}

// skippedDraft reports one draft activity that could not be confirmed.
type skippedDraft struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

// ConfirmPlan turns the generated drafts into real activities, reserving
// stock for every material that matches the user's inventory by name.
// Confirmation is best-effort per draft: one failing stage is reported in
// the response and does not block the others.
func ConfirmPlan(w http.ResponseWriter, r *http.Request) {
	crop, field, ok := loadPlanTargets(w, r)
	if !ok {
		return
	}
	drafts, err := NewPlanGenerator(config.DB).Generate(crop, field)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	userID := middleware.GetUserID(r)
	inventory, err := inventoryByName(userID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	engine := NewActivityEngine(config.DB)
	created := make([]activityResponse, 0, len(drafts))
	skipped := []skippedDraft{}
	missing := []DraftMaterial{}

	for _, draft := range drafts {
		var materials []MaterialInput
		for _, dm := range draft.Materials {
			material, ok := inventory[strings.ToLower(dm.Name)]
			if !ok {
				missing = append(missing, dm)
				continue
			}
			materials = append(materials, MaterialInput{
				MaterialID:      material.ID,
				PlannedQuantity: dm.Quantity,
			})
		}

		name := draft.Name
		activity, err := engine.CreateActivity(CreateActivityInput{
			UserID:       userID,
			FieldID:      field.ID,
			CropID:       &crop.ID,
			ActivityType: draft.ActivityType,
			Description:  &name,
			StartDate:    models.JSONTime(draft.StartDate),
			EndDate:      models.JSONTime(draft.EndDate),
			Origin:       models.OriginPlanGenerated,
			Materials:    materials,
		})
		if err != nil {
			log.Printf("⚠️  Plan stage %q not confirmed: %v", draft.Name, err)
			skipped = append(skipped, skippedDraft{Name: draft.Name, Reason: err.Error()})
			continue
		}
		created = append(created, toActivityResponse(*activity))
	}

	log.Printf("✅ Confirmed plan for crop %s: %d created, %d skipped", crop.ID, len(created), len(skipped))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"created":          created,
		"skipped":          skipped,
		"missingMaterials": missing,
	})
}

func loadPlanTargets(w http.ResponseWriter, r *http.Request) (*models.Crop, *models.Field, bool) {
	var req planReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return nil, nil, false
	}
	userID := middleware.GetUserID(r)

	var crop models.Crop
	if err := config.DB.
		Where("id = ? AND user_id = ?", req.CropID, userID).
		First(&crop).Error; err != nil {
		http.Error(w, "crop not found", http.StatusNotFound)
		return nil, nil, false
	}
	var field models.Field
	if err := config.DB.First(&field, "id = ?", crop.FieldID).Error; err != nil {
		http.Error(w, "field not found", http.StatusNotFound)
		return nil, nil, false
	}
	return &crop, &field, true
}

// inventoryByName indexes the user's materials by lowercased name for
// draft resolution.
func inventoryByName(userID uuid.UUID) (map[string]models.FarmMaterial, error) {
	var materials []models.FarmMaterial
	if err := config.DB.Where("user_id = ?", userID).Find(&materials).Error; err != nil {
		return nil, err
	}
	index := make(map[string]models.FarmMaterial, len(materials))
	for _, m := range materials {
		index[strings.ToLower(m.Name)] = m
	}
	return index, nil
}
