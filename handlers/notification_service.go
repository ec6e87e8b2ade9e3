package handlers

import (
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"p9e.in/farmops/models"
)

// NotificationService creates in-app notification rows. All methods are
// best-effort: they run after the owning transaction has committed and a
// failure is logged, never propagated.
type NotificationService struct {
	db *gorm.DB
}

// NewNotificationService creates a new notification service instance
func NewNotificationService(db *gorm.DB) *NotificationService {
	return &NotificationService{db: db}
}

// ActivityCompleted notifies the owner that an activity finished and how
// much material it consumed.
func (ns *NotificationService) ActivityCompleted(activity *models.FarmActivity) {
	message := fmt.Sprintf("Activity %s on %s was completed.",
		activity.ActivityType, activity.StartDate.Time().Format("2006-01-02"))
	if n := len(activity.Materials); n > 0 {
		message += fmt.Sprintf(" %d material(s) deducted from inventory.", n)
	}
	ns.create(models.Notification{
		UserID:     activity.UserID,
		ActivityID: &activity.ID,
		Kind:       models.NotifyActivityCompleted,
		Title:      "Activity completed",
		Message:    message,
	})
}

// ScanDueActivities creates overdue / starting-soon notifications for one
// user's open activities. Already-notified activities are skipped so the
// scan can run repeatedly.
func (ns *NotificationService) ScanDueActivities(userID uuid.UUID) (int, error) {
	var activities []models.FarmActivity
	if err := ns.db.
		Where("user_id = ? AND status IN ?", userID,
			[]models.ActivityStatus{models.StatusPending, models.StatusInProgress}).
		Find(&activities).Error; err != nil {
		return 0, fmt.Errorf("failed to scan activities: %w", err)
	}

	now := time.Now()
	created := 0
	for i := range activities {
		activity := &activities[i]
		if activity.IsOverdue(now) && !ns.alreadyNotified(activity.ID, models.NotifyActivityOverdue) {
			ns.create(models.Notification{
				UserID:     userID,
				ActivityID: &activity.ID,
				Kind:       models.NotifyActivityOverdue,
				Title:      "Activity overdue",
				Message: fmt.Sprintf("Activity %s was due on %s and is still open.",
					activity.ActivityType, activity.EndDate.Time().Format("2006-01-02")),
			})
			created++
		}
		if activity.IsStartingSoon(now) && !ns.alreadyNotified(activity.ID, models.NotifyActivityStarting) {
			ns.create(models.Notification{
				UserID:     userID,
				ActivityID: &activity.ID,
				Kind:       models.NotifyActivityStarting,
				Title:      "Activity starting soon",
				Message: fmt.Sprintf("Activity %s starts on %s.",
					activity.ActivityType, activity.StartDate.Time().Format("2006-01-02")),
			})
			created++
		}
	}
	return created, nil
}

func (ns *NotificationService) alreadyNotified(activityID uuid.UUID, kind models.NotificationKind) bool {
	var count int64
	ns.db.Model(&models.Notification{}).
		Where("activity_id = ? AND kind = ?", activityID, kind).
		Count(&count)
	return count > 0
}

func (ns *NotificationService) create(n models.Notification) {
	if err := ns.db.Create(&n).Error; err != nil {
		log.Printf("⚠️  Failed to create notification for user %s: %v", n.UserID, err)
	}
}
