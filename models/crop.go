package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Crop is one planted pineapple batch on a field. Its reference dates
// anchor the plan generator; the engine never mutates crops.
type Crop struct {
	ID      uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID  uuid.UUID `gorm:"type:uuid;index;not null" json:"userId"`
	FieldID uuid.UUID `gorm:"type:uuid;index;not null" json:"fieldId"`
	Field   Field     `gorm:"foreignKey:FieldID" json:"field,omitempty"`

	Name     string `gorm:"size:100;not null" json:"name"`
	Variety  string `gorm:"size:100" json:"variety,omitempty"`
	Season   string `gorm:"size:50;not null" json:"season"`
	Quantity int    `gorm:"default:0" json:"quantity"` // planted seedlings

	LandPreparationDate *JSONTime `json:"landPreparationDate,omitempty"`
	PlantingDate        *JSONTime `json:"plantingDate,omitempty"`
	HarvestDate         *JSONTime `json:"harvestDate,omitempty"`

	Status string `gorm:"size:20;not null;default:growing" json:"status"` // growing | harvested

	CreatedAt time.Time      `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updatedAt"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (c *Crop) BeforeCreate(tx *gorm.DB) (err error) {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return
}
