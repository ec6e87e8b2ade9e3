package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Stock errors returned by the quantity mutators below.
var (
	ErrInsufficientStock = errors.New("insufficient stock available")
	ErrInvalidRelease    = errors.New("release amount exceeds reserved quantity")
	ErrInvalidQuantity   = errors.New("quantity must be positive")
)

// quantityEpsilon absorbs float drift from repeated reserve/release cycles.
const quantityEpsilon = 1e-9

type MaterialCategory string

const (
	MaterialFertilizer MaterialCategory = "fertilizer"
	MaterialPesticide  MaterialCategory = "pesticide"
	MaterialSeed       MaterialCategory = "seed"
	MaterialTool       MaterialCategory = "tool"
	MaterialOther      MaterialCategory = "other"
)

// FarmMaterial is one fungible material type in a user's inventory.
// Quantity is the on-hand total; ReservedQuantity is the subset earmarked
// for pending/in-progress activities. Both fields are mutated only through
// Reserve/Release/Commit/ReturnQuantity so that
// 0 <= ReservedQuantity <= Quantity holds at all times.
type FarmMaterial struct {
	ID               uuid.UUID        `gorm:"type:uuid;primaryKey" json:"id"`
	UserID           uuid.UUID        `gorm:"type:uuid;index;not null" json:"userId"`
	Name             string           `gorm:"size:100;not null" json:"name"`
	Unit             string           `gorm:"size:20;not null" json:"unit"`
	Category         MaterialCategory `gorm:"size:20;not null;default:other" json:"category"`
	Quantity         float64          `gorm:"not null;default:0" json:"quantity"`
	ReservedQuantity float64          `gorm:"not null;default:0" json:"reservedQuantity"`

	CreatedAt time.Time      `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updatedAt"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (m *FarmMaterial) BeforeCreate(tx *gorm.DB) (err error) {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return
}

// AvailableQuantity is the on-hand stock not earmarked for any activity.
func (m *FarmMaterial) AvailableQuantity() float64 {
	return m.Quantity - m.ReservedQuantity
}

// HasEnough reports whether the on-hand total still backs a commit of amount.
func (m *FarmMaterial) HasEnough(amount float64) bool {
	return m.Quantity+quantityEpsilon >= amount
}

// Reserve earmarks amount of the available stock.
func (m *FarmMaterial) Reserve(amount float64) error {
	if amount <= 0 {
		return fmt.Errorf("reserve %s: %w", m.Name, ErrInvalidQuantity)
	}
	if m.AvailableQuantity()+quantityEpsilon < amount {
		return fmt.Errorf("reserve %.2f %s of %s (available %.2f): %w",
			amount, m.Unit, m.Name, m.AvailableQuantity(), ErrInsufficientStock)
	}
	m.ReservedQuantity += amount
	return nil
}

// Release gives a previously reserved amount back to the available pool.
func (m *FarmMaterial) Release(amount float64) error {
	if amount <= 0 {
		return fmt.Errorf("release %s: %w", m.Name, ErrInvalidQuantity)
	}
	if amount > m.ReservedQuantity+quantityEpsilon {
		return fmt.Errorf("release %.2f %s of %s (reserved %.2f): %w",
			amount, m.Unit, m.Name, m.ReservedQuantity, ErrInvalidRelease)
	}
	m.ReservedQuantity -= amount
	if m.ReservedQuantity < 0 {
		m.ReservedQuantity = 0
	}
	return nil
}

// Commit deducts a consumed amount from the on-hand total. The amount is
// assumed to have been reserved beforehand; if the running reservation
// bookkeeping says otherwise the reserved counter is clamped at zero rather
// than driven negative. An on-hand shortfall is a hard failure.
func (m *FarmMaterial) Commit(amount float64) error {
	if amount <= 0 {
		return fmt.Errorf("commit %s: %w", m.Name, ErrInvalidQuantity)
	}
	if !m.HasEnough(amount) {
		return fmt.Errorf("commit %.2f %s of %s (on hand %.2f): %w",
			amount, m.Unit, m.Name, m.Quantity, ErrInsufficientStock)
	}
	m.Quantity -= amount
	m.ReservedQuantity -= amount
	if m.ReservedQuantity < 0 {
		m.ReservedQuantity = 0
	}
	return nil
}

// ReturnQuantity puts unused stock back on hand, e.g. when the recorded
// actual usage of a completed activity turns out lower than what was
// committed. It does not touch ReservedQuantity.
func (m *FarmMaterial) ReturnQuantity(amount float64) error {
	if amount < 0 {
		return fmt.Errorf("return %s: %w", m.Name, ErrInvalidQuantity)
	}
	m.Quantity += amount
	return nil
}
