package config

import (
	"encoding/json"
	"log"

	"gorm.io/gorm"
	"p9e.in/farmops/models"
)

// systemTemplate is one row of the default pineapple cultivation plan.
type systemTemplate struct {
	Name         string
	ActivityType models.ActivityType
	Season       string
	DayOffset    int
	DurationDays int
	Materials    []models.TemplateMaterial
}

// defaultTemplates is the system fallback plan used when a user has no
// custom templates. Offsets are relative to each stage's anchor date
// (see handlers/plan_generator.go); quantities are per hectare.
var defaultTemplates = []systemTemplate{
	{
		Name: "Clear and till the plot", ActivityType: models.ActivitySoilPreparation,
		Season: "spring-summer", DayOffset: 0, DurationDays: 7,
	},
	{
		Name: "Plant seedlings", ActivityType: models.ActivityPlanting,
		Season: "spring-summer", DayOffset: 0, DurationDays: 5,
		Materials: []models.TemplateMaterial{
			{Name: "Pineapple seedlings", Unit: "pcs", Category: models.MaterialSeed, QuantityPerHectare: 50000},
		},
	},
	{
		Name: "First fertilizer application", ActivityType: models.ActivityFertilizing,
		Season: "spring-summer", DayOffset: 30, DurationDays: 2,
		Materials: []models.TemplateMaterial{
			{Name: "NPK 16-16-8", Unit: "kg", Category: models.MaterialFertilizer, QuantityPerHectare: 300},
		},
	},
	{
		Name: "Pest control round", ActivityType: models.ActivityPesticide,
		Season: "spring-summer", DayOffset: 60, DurationDays: 1,
		Materials: []models.TemplateMaterial{
			{Name: "Pesticide concentrate", Unit: "l", Category: models.MaterialPesticide, QuantityPerHectare: 4},
		},
	},
	{
		Name: "Fruit development treatment", ActivityType: models.ActivityFruitDevelopment,
		Season: "spring-summer", DayOffset: 270, DurationDays: 3,
		Materials: []models.TemplateMaterial{
			{Name: "Potassium fertilizer", Unit: "kg", Category: models.MaterialFertilizer, QuantityPerHectare: 150},
		},
	},
	{
		Name: "Harvest", ActivityType: models.ActivityHarvesting,
		Season: "spring-summer", DayOffset: 0, DurationDays: 10,
	},
}

// SeedActivityTemplates inserts the system default plan templates once.
func SeedActivityTemplates() {
	var count int64
	if err := DB.Model(&models.ActivityTemplate{}).
		Where("user_id IS NULL").Count(&count).Error; err != nil {
		log.Printf("⚠️  Template seed check failed: %v", err)
		return
	}
	if count > 0 {
		return
	}

	err := DB.Transaction(func(tx *gorm.DB) error {
		for _, t := range defaultTemplates {
			materials, err := json.Marshal(t.Materials)
			if err != nil {
				return err
			}
			row := models.ActivityTemplate{
				Name:         t.Name,
				ActivityType: t.ActivityType,
				Season:       t.Season,
				DayOffset:    t.DayOffset,
				DurationDays: t.DurationDays,
				Materials:    materials,
				IsActive:     true,
			}
			if err := tx.Create(&row).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		log.Printf("⚠️  Failed to seed activity templates: %v", err)
		return
	}
	log.Printf("✅ Seeded %d system activity templates", len(defaultTemplates))
}
