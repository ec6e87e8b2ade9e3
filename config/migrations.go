package config

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
	"p9e.in/farmops/models"
)

func Migrations(db *gorm.DB) error {
	m := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		{
			ID: "20250110_create_core_tables",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&models.User{}, &models.Field{}, &models.Crop{},
					&models.FarmMaterial{}, &models.FarmActivity{}, &models.ActivityMaterial{})
			},
		},
		{
			ID: "20250118_add_planning_tables",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&models.ActivityTemplate{}, &models.Notification{})
			},
		},
		{
			ID: "20250203_guard_material_quantities",
			Migrate: func(tx *gorm.DB) error {
				// Backstop for the model-level invariant: reserved stock can
				// never exceed what is on hand.
				return tx.Exec(`ALTER TABLE farm_materials
					ADD CONSTRAINT chk_reserved_within_stock
					CHECK (reserved_quantity >= 0 AND reserved_quantity <= quantity + 0.000001)`).Error
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Exec("ALTER TABLE farm_materials DROP CONSTRAINT chk_reserved_within_stock").Error
			},
		},
		{
			ID: "20250219_add_activity_origin",
			Migrate: func(tx *gorm.DB) error {
				// Earlier builds tagged marketplace-generated activities with a
				// description marker; backfill them onto the origin column.
				return tx.Exec(`UPDATE farm_activities SET origin = 'marketplace_generated'
					WHERE origin = 'user_planned' AND description ILIKE '%marketplace%'`).Error
			},
		},
	})
	return m.Migrate()
}
