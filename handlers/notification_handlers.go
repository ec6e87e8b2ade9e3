package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"p9e.in/farmops/config"
	"p9e.in/farmops/middleware"
	"p9e.in/farmops/models"
)

func GetNotifications(w http.ResponseWriter, r *http.Request) {
	query := config.DB.Where("user_id = ?", middleware.GetUserID(r))
	if r.URL.Query().Get("unread") == "true" {
		query = query.Where("is_read = ?", false)
	}

	var notifications []models.Notification
	if err := query.Order("created_at DESC").Limit(100).Find(&notifications).Error; err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(notifications)
}

func MarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	result := config.DB.Model(&models.Notification{}).
		Where("id = ? AND user_id = ?", id, middleware.GetUserID(r)).
		Update("is_read", true)
	if result.Error != nil {
		http.Error(w, result.Error.Error(), http.StatusInternalServerError)
		return
	}
	if result.RowsAffected == 0 {
		http.Error(w, "record not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func MarkAllNotificationsRead(w http.ResponseWriter, r *http.Request) {
	if err := config.DB.Model(&models.Notification{}).
		Where("user_id = ? AND is_read = ?", middleware.GetUserID(r), false).
		Update("is_read", true).Error; err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ScanNotifications walks the caller's open activities and creates
// overdue / starting-soon notifications. Clients hit this on app open.
func ScanNotifications(w http.ResponseWriter, r *http.Request) {
	created, err := NewNotificationService(config.DB).ScanDueActivities(middleware.GetUserID(r))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]int{"created": created})
}
