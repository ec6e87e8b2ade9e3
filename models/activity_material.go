package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ActivityMaterial links one farm activity to one inventory material and
// tracks planned vs. actual consumption. While the owning activity is not
// completed, PlannedQuantity worth of stock stays reserved on the material;
// on completion the actual usage (falling back to the plan) is committed.
type ActivityMaterial struct {
	ID             uuid.UUID    `gorm:"type:uuid;primaryKey" json:"id"`
	ActivityID     uuid.UUID    `gorm:"type:uuid;not null;uniqueIndex:idx_activity_material" json:"activityId"`
	FarmMaterialID uuid.UUID    `gorm:"type:uuid;not null;uniqueIndex:idx_activity_material" json:"farmMaterialId"`
	Material       FarmMaterial `gorm:"foreignKey:FarmMaterialID" json:"material,omitempty"`

	PlannedQuantity float64  `gorm:"not null" json:"plannedQuantity"`
	ActualQuantity  *float64 `json:"actualQuantity,omitempty"`

	CreatedAt time.Time      `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updatedAt"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (am *ActivityMaterial) BeforeCreate(tx *gorm.DB) (err error) {
	if am.ID == uuid.Nil {
		am.ID = uuid.New()
	}
	return
}

// CommitQuantity is the amount deducted from stock at completion time:
// the recorded actual usage, or the plan when no actual was captured.
func (am *ActivityMaterial) CommitQuantity() float64 {
	if am.ActualQuantity != nil {
		return *am.ActualQuantity
	}
	return am.PlannedQuantity
}
