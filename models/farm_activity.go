package models

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

// Activity-level errors surfaced by the engine in handlers/activity_engine.go.
var (
	ErrMaterialsRequired     = errors.New("this activity type requires at least one material")
	ErrDuplicateActivity     = errors.New("a similar activity already exists in this time window")
	ErrProcessOrderViolation = errors.New("activity violates the crop process order")
	ErrInvalidTransition     = errors.New("invalid status transition")
	ErrInsufficientMaterial  = errors.New("insufficient material to carry out the activity")
)

type ActivityType string

const (
	ActivitySoilPreparation  ActivityType = "soil_preparation"
	ActivityPlanting         ActivityType = "planting"
	ActivityFertilizing      ActivityType = "fertilizing"
	ActivityPesticide        ActivityType = "pesticide"
	ActivityFruitDevelopment ActivityType = "fruit_development"
	ActivityWatering         ActivityType = "watering"
	ActivityHarvesting       ActivityType = "harvesting"
	ActivityOther            ActivityType = "other"
)

// materialRequiredTypes lists the activity types that may not be saved
// without at least one planned material.
var materialRequiredTypes = map[ActivityType]bool{
	ActivityFertilizing:      true,
	ActivityPesticide:        true,
	ActivityFruitDevelopment: true,
}

// RequiresMaterials reports whether activities of this type must carry
// at least one material reservation.
func (t ActivityType) RequiresMaterials() bool {
	return materialRequiredTypes[t]
}

type ActivityStatus string

const (
	StatusPending    ActivityStatus = "pending"
	StatusInProgress ActivityStatus = "in_progress"
	StatusCompleted  ActivityStatus = "completed"
	StatusCancelled  ActivityStatus = "cancelled"
)

// validTransitions is the full edge set of the activity state machine.
// completed and cancelled are terminal.
var validTransitions = map[ActivityStatus][]ActivityStatus{
	StatusPending:    {StatusInProgress, StatusCompleted, StatusCancelled},
	StatusInProgress: {StatusCompleted},
}

type ActivityFrequency string

const (
	FrequencyOnce    ActivityFrequency = "once"
	FrequencyDaily   ActivityFrequency = "daily"
	FrequencyWeekly  ActivityFrequency = "weekly"
	FrequencyMonthly ActivityFrequency = "monthly"
)

// ActivityOrigin tags how an activity came to exist. Generated activities
// (recurring children, confirmed plan stages, marketplace harvests) skip
// the duplicate and process-order validations that apply to user-planned
// ones.
type ActivityOrigin string

const (
	OriginUserPlanned          ActivityOrigin = "user_planned"
	OriginPlanGenerated        ActivityOrigin = "plan_generated"
	OriginMarketplaceGenerated ActivityOrigin = "marketplace_generated"
	OriginRecurringChild       ActivityOrigin = "recurring_child"
)

// SkipsScheduleValidation reports whether activities of this origin bypass
// the duplicate-window and process-order checks.
func (o ActivityOrigin) SkipsScheduleValidation() bool {
	return o != OriginUserPlanned && o != ""
}

// FarmActivity is one scheduled unit of farm work. It owns a set of
// ActivityMaterial reservations and is driven through its lifecycle by
// the ActivityEngine, never by direct status writes.
type FarmActivity struct {
	ID       uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	UserID   uuid.UUID  `gorm:"type:uuid;index;not null" json:"userId"`
	FieldID  uuid.UUID  `gorm:"type:uuid;index;not null" json:"fieldId"`
	CropID   *uuid.UUID `gorm:"type:uuid;index" json:"cropId,omitempty"`
	ParentID *uuid.UUID `gorm:"type:uuid;index" json:"parentId,omitempty"`

	ActivityType ActivityType      `gorm:"size:30;not null" json:"activityType"`
	Status       ActivityStatus    `gorm:"size:20;not null;default:pending" json:"status"`
	Frequency    ActivityFrequency `gorm:"size:10;not null;default:once" json:"frequency"`
	Origin       ActivityOrigin    `gorm:"size:30;not null;default:user_planned" json:"origin"`
	Description  *string           `json:"description,omitempty"`

	StartDate   JSONTime       `gorm:"not null" json:"startDate"`
	EndDate     JSONTime       `gorm:"not null" json:"endDate"`
	CompletedAt *time.Time     `json:"completedAt,omitempty"`
	Photos      pq.StringArray `gorm:"type:text[]" json:"photos,omitempty"`

	Materials []ActivityMaterial `gorm:"foreignKey:ActivityID" json:"materials,omitempty"`

	CreatedAt time.Time      `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updatedAt"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (a *FarmActivity) BeforeCreate(tx *gorm.DB) (err error) {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return
}

// CanTransitionTo reports whether newStatus is a legal edge from the
// activity's current status.
func (a *FarmActivity) CanTransitionTo(newStatus ActivityStatus) bool {
	for _, s := range validTransitions[a.Status] {
		if s == newStatus {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the activity reached a final state.
func (a *FarmActivity) IsTerminal() bool {
	return a.Status == StatusCompleted || a.Status == StatusCancelled
}

// IsOverdue reports whether an open activity ran past its end date.
func (a *FarmActivity) IsOverdue(now time.Time) bool {
	if a.IsTerminal() {
		return false
	}
	end := time.Time(a.EndDate)
	return !end.IsZero() && end.Before(now)
}

// IsStartingSoon reports whether a pending activity starts within the
// next 24 hours.
func (a *FarmActivity) IsStartingSoon(now time.Time) bool {
	if a.Status != StatusPending {
		return false
	}
	start := time.Time(a.StartDate)
	return !start.IsZero() && !start.Before(now) && start.Sub(now) <= 24*time.Hour
}
