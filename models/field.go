package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Field is one cultivated plot. Boundary holds a GeoJSON polygon; the
// area in hectares is recomputed from it on every save so the plan
// generator can scale per-hectare material quantities.
type Field struct {
	ID       uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	UserID   uuid.UUID      `gorm:"type:uuid;index;not null" json:"userId"`
	Name     string         `gorm:"size:100;not null" json:"name"`
	Location string         `gorm:"size:255" json:"location,omitempty"`
	Boundary datatypes.JSON `gorm:"type:jsonb" json:"boundary,omitempty"`

	AreaHectares float64 `gorm:"not null;default:0" json:"areaHectares"`
	SoilType     *string `gorm:"size:50" json:"soilType,omitempty"`

	CreatedAt time.Time      `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updatedAt"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (f *Field) BeforeCreate(tx *gorm.DB) (err error) {
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	return
}
