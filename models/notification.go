package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type NotificationKind string

const (
	NotifyActivityCompleted NotificationKind = "activity_completed"
	NotifyActivityOverdue   NotificationKind = "activity_overdue"
	NotifyActivityStarting  NotificationKind = "activity_starting"
)

// Notification is an in-app message row. Creation is best-effort and
// always happens after the owning transaction commits.
type Notification struct {
	ID         uuid.UUID        `gorm:"type:uuid;primaryKey" json:"id"`
	UserID     uuid.UUID        `gorm:"type:uuid;index;not null" json:"userId"`
	ActivityID *uuid.UUID       `gorm:"type:uuid;index" json:"activityId,omitempty"`
	Kind       NotificationKind `gorm:"size:30;not null" json:"kind"`
	Title      string           `gorm:"size:150;not null" json:"title"`
	Message    string           `gorm:"type:text" json:"message"`
	IsRead     bool             `gorm:"default:false;index" json:"isRead"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"createdAt"`
}

func (n *Notification) BeforeCreate(tx *gorm.DB) (err error) {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	return
}
