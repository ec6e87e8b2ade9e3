package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ActivityTemplate is one stage of a season's cultivation plan. Templates
// with a nil UserID are the system defaults used when a user has no
// custom set. DayOffset is added to the stage's anchor date (see
// handlers/plan_generator.go) to place the activity.
type ActivityTemplate struct {
	ID     uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	UserID *uuid.UUID `gorm:"type:uuid;index" json:"userId,omitempty"`

	Name         string       `gorm:"size:150;not null" json:"name"`
	ActivityType ActivityType `gorm:"size:30;not null" json:"activityType"`
	Season       string       `gorm:"size:50;not null" json:"season"`
	DayOffset    int          `gorm:"not null;default:0" json:"dayOffset"`
	DurationDays int          `gorm:"not null;default:1" json:"durationDays"`

	// Materials is a JSON list of TemplateMaterial entries.
	Materials datatypes.JSON `gorm:"type:jsonb" json:"materials,omitempty"`

	IsActive bool `gorm:"default:true" json:"isActive"`

	CreatedAt time.Time      `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updatedAt"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (t *ActivityTemplate) BeforeCreate(tx *gorm.DB) (err error) {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return
}

// TemplateMaterial is one entry of a template's material list. The
// quantity is expressed per hectare and scaled by the field area when a
// plan is generated.
type TemplateMaterial struct {
	Name               string           `json:"name"`
	Unit               string           `json:"unit"`
	Category           MaterialCategory `json:"category"`
	QuantityPerHectare float64          `json:"quantityPerHectare"`
}
