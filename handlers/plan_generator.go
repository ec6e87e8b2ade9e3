package handlers

import (
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"gorm.io/gorm"

	"p9e.in/farmops/models"
)

// PlanGenerator derives a draft activity schedule for a crop from the
// user's activity templates (falling back to the system defaults). It is
// read-only: nothing is persisted and no stock is touched until the user
// confirms the plan.
type PlanGenerator struct {
	db *gorm.DB
}

// NewPlanGenerator creates a new plan generator instance
func NewPlanGenerator(db *gorm.DB) *PlanGenerator {
	return &PlanGenerator{db: db}
}

// DraftMaterial is one proposed material need, already scaled by the
// field area.
type DraftMaterial struct {
	Name     string                  `json:"name"`
	Unit     string                  `json:"unit"`
	Category models.MaterialCategory `json:"category"`
	Quantity float64                 `json:"quantity"`
}

// DraftActivity is one proposed activity. It only becomes a FarmActivity
// (and reserves stock) once the plan is confirmed.
type DraftActivity struct {
	Name         string              `json:"name"`
	ActivityType models.ActivityType `json:"activityType"`
	StartDate    time.Time           `json:"startDate"`
	EndDate      time.Time           `json:"endDate"`
	Materials    []DraftMaterial     `json:"materials,omitempty"`
}

// seasonAliases maps the spellings used by older clients onto the
// canonical season keys.
var seasonAliases = map[string]string{
	"xuan-he":       "spring-summer",
	"he-thu":        "summer-fall",
	"thu-dong":      "fall-winter",
	"autumn-winter": "fall-winter",
	"summer-autumn": "summer-fall",
}

// normalizeSeason lowercases and canonicalizes a season label so template
// matching survives the aliases in circulation.
func normalizeSeason(season string) string {
	s := strings.ToLower(strings.TrimSpace(season))
	s = strings.NewReplacer(" ", "-", "_", "-").Replace(s)
	if canonical, ok := seasonAliases[s]; ok {
		return canonical
	}
	return s
}

// Generate builds the draft schedule for a crop on a field. Templates
// whose anchor date is missing on the crop are skipped; a malformed
// template material list degrades to an empty list rather than failing
// the whole preview.
func (g *PlanGenerator) Generate(crop *models.Crop, field *models.Field) ([]DraftActivity, error) {
	templates, err := g.templatesFor(crop)
	if err != nil {
		return nil, err
	}

	scale := field.AreaHectares
	if scale <= 0 {
		scale = 1
	}

	season := normalizeSeason(crop.Season)
	drafts := make([]DraftActivity, 0, len(templates))
	for _, tmpl := range templates {
		if normalizeSeason(tmpl.Season) != season {
			continue
		}
		anchor, ok := g.anchorDate(tmpl.ActivityType, crop)
		if !ok {
			log.Printf("⚠️  Skipping template %q: crop %s has no reference date for %s",
				tmpl.Name, crop.ID, tmpl.ActivityType)
			continue
		}
		start := anchor.AddDate(0, 0, tmpl.DayOffset)
		drafts = append(drafts, DraftActivity{
			Name:         tmpl.Name,
			ActivityType: tmpl.ActivityType,
			StartDate:    start,
			EndDate:      start.AddDate(0, 0, tmpl.DurationDays),
			Materials:    g.scaleMaterials(tmpl, scale),
		})
	}
	return drafts, nil
}

// templatesFor returns the user's custom templates, or the system
// defaults (nil user) when the user has none.
func (g *PlanGenerator) templatesFor(crop *models.Crop) ([]models.ActivityTemplate, error) {
	var templates []models.ActivityTemplate
	if err := g.db.
		Where("user_id = ? AND is_active = ?", crop.UserID, true).
		Order("day_offset ASC").
		Find(&templates).Error; err != nil {
		return nil, fmt.Errorf("failed to load templates: %w", err)
	}
	if len(templates) > 0 {
		return templates, nil
	}
	if err := g.db.
		Where("user_id IS NULL AND is_active = ?", true).
		Order("day_offset ASC").
		Find(&templates).Error; err != nil {
		return nil, fmt.Errorf("failed to load default templates: %w", err)
	}
	return templates, nil
}

// anchorDate picks the crop reference date a stage is scheduled from:
// planting anchors on the planting date, harvesting on the harvest date,
// soil preparation on the land preparation date, everything else on the
// planting date.
func (g *PlanGenerator) anchorDate(activityType models.ActivityType, crop *models.Crop) (time.Time, bool) {
	pick := func(jt *models.JSONTime) (time.Time, bool) {
		if jt == nil || jt.IsZero() {
			return time.Time{}, false
		}
		return jt.Time(), true
	}

	switch activityType {
	case models.ActivityPlanting:
		return pick(crop.PlantingDate)
	case models.ActivityHarvesting:
		return pick(crop.HarvestDate)
	case models.ActivitySoilPreparation:
		if t, ok := pick(crop.LandPreparationDate); ok {
			return t, ok
		}
		return pick(crop.PlantingDate)
	default:
		return pick(crop.PlantingDate)
	}
}

// scaleMaterials expands a template's per-hectare material list for the
// actual field area.
func (g *PlanGenerator) scaleMaterials(tmpl models.ActivityTemplate, hectares float64) []DraftMaterial {
	if len(tmpl.Materials) == 0 {
		return nil
	}
	var entries []models.TemplateMaterial
	if err := json.Unmarshal(tmpl.Materials, &entries); err != nil {
		log.Printf("⚠️  Template %q has a malformed material list: %v", tmpl.Name, err)
		return nil
	}
	materials := make([]DraftMaterial, 0, len(entries))
	for _, entry := range entries {
		materials = append(materials, DraftMaterial{
			Name:     entry.Name,
			Unit:     entry.Unit,
			Category: entry.Category,
			Quantity: entry.QuantityPerHectare * hectares,
		})
	}
	return materials
}
