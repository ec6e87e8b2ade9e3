package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/lib/pq"

	"p9e.in/farmops/config"
	"p9e.in/farmops/middleware"
	"p9e.in/farmops/models"
)

// activityResponse decorates an activity with the derived schedule flags
// the mobile client renders badges from.
type activityResponse struct {
	models.FarmActivity
	Overdue      bool `json:"overdue"`
	StartingSoon bool `json:"startingSoon"`
}

func toActivityResponse(a models.FarmActivity) activityResponse {
	now := time.Now()
	return activityResponse{
		FarmActivity: a,
		Overdue:      a.IsOverdue(now),
		StartingSoon: a.IsStartingSoon(now),
	}
}

// writeEngineError maps engine errors onto HTTP statuses.
func writeEngineError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, models.ErrMaterialsRequired),
		errors.Is(err, models.ErrDuplicateActivity),
		errors.Is(err, models.ErrProcessOrderViolation),
		errors.Is(err, models.ErrInvalidQuantity):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, models.ErrInsufficientStock),
		errors.Is(err, models.ErrInsufficientMaterial),
		errors.Is(err, models.ErrInvalidRelease),
		errors.Is(err, models.ErrInvalidTransition):
		status = http.StatusConflict
	}
	http.Error(w, err.Error(), status)
}

func GetAllActivities(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r)

	query := config.DB.
		Preload("Materials").
		Preload("Materials.Material").
		Where("user_id = ?", userID)

	if status := r.URL.Query().Get("status"); status != "" {
		query = query.Where("status = ?", status)
	}
	if fieldID := r.URL.Query().Get("field_id"); fieldID != "" {
		query = query.Where("field_id = ?", fieldID)
	}
	if cropID := r.URL.Query().Get("crop_id"); cropID != "" {
		query = query.Where("crop_id = ?", cropID)
	}
	if activityType := r.URL.Query().Get("type"); activityType != "" {
		query = query.Where("activity_type = ?", activityType)
	}

	var activities []models.FarmActivity
	if err := query.Order("start_date ASC").Find(&activities).Error; err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	out := make([]activityResponse, 0, len(activities))
	for _, a := range activities {
		out = append(out, toActivityResponse(a))
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(out)
}

func CreateActivity(w http.ResponseWriter, r *http.Request) {
	var input CreateActivityInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	input.UserID = middleware.GetUserID(r)
	// Clients may not pick their own origin; generated activities are
	// tagged internally.
	input.Origin = models.OriginUserPlanned

	activity, err := NewActivityEngine(config.DB).CreateActivity(input)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(toActivityResponse(*activity))
}

func GetActivity(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	activity, err := NewActivityEngine(config.DB).GetActivity(id)
	if err != nil {
		http.Error(w, "record not found", http.StatusNotFound)
		return
	}
	if activity.UserID != middleware.GetUserID(r) {
		http.Error(w, "record not found", http.StatusNotFound)
		return
	}
	json.NewEncoder(w).Encode(toActivityResponse(*activity))
}

type updateActivityReq struct {
	Description *string          `json:"description,omitempty"`
	StartDate   *models.JSONTime `json:"startDate,omitempty"`
	EndDate     *models.JSONTime `json:"endDate,omitempty"`
	Photos      []string         `json:"photos,omitempty"`
}

// UpdateActivity edits schedule metadata. Status changes go through the
// transition endpoints only.
func UpdateActivity(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	engine := NewActivityEngine(config.DB)
	activity, err := engine.GetActivity(id)
	if err != nil {
		http.Error(w, "record not found", http.StatusNotFound)
		return
	}
	if activity.UserID != middleware.GetUserID(r) {
		http.Error(w, "record not found", http.StatusNotFound)
		return
	}
	if activity.IsTerminal() {
		http.Error(w, "cannot edit a "+string(activity.Status)+" activity", http.StatusConflict)
		return
	}

	var req updateActivityReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	updates := map[string]interface{}{}
	if req.Description != nil {
		updates["description"] = *req.Description
	}
	if req.StartDate != nil {
		updates["start_date"] = req.StartDate.Time()
	}
	if req.EndDate != nil {
		updates["end_date"] = req.EndDate.Time()
	}
	if req.Photos != nil {
		updates["photos"] = pq.StringArray(req.Photos)
	}
	if len(updates) > 0 {
		if err := config.DB.Model(activity).Updates(updates).Error; err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	}
	activity, _ = engine.GetActivity(id)
	json.NewEncoder(w).Encode(toActivityResponse(*activity))
}

func DeleteActivity(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	engine := NewActivityEngine(config.DB)
	activity, err := engine.GetActivity(id)
	if err != nil {
		http.Error(w, "record not found", http.StatusNotFound)
		return
	}
	if activity.UserID != middleware.GetUserID(r) {
		http.Error(w, "record not found", http.StatusNotFound)
		return
	}
	if err := engine.DeleteActivity(id); err != nil {
		writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// StartActivity is the pending -> in_progress transition.
func StartActivity(w http.ResponseWriter, r *http.Request) {
	transitionHandler(w, r, models.StatusInProgress, nil)
}

type completeActivityReq struct {
	// Actuals maps reservation ids to the observed usage.
	Actuals map[uuid.UUID]float64 `json:"actuals,omitempty"`
}

// CompleteActivity commits every reservation and finishes the activity.
func CompleteActivity(w http.ResponseWriter, r *http.Request) {
	var req completeActivityReq
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	transitionHandler(w, r, models.StatusCompleted, req.Actuals)
}

// CancelActivity releases every reservation and closes the activity.
func CancelActivity(w http.ResponseWriter, r *http.Request) {
	transitionHandler(w, r, models.StatusCancelled, nil)
}

func transitionHandler(w http.ResponseWriter, r *http.Request, status models.ActivityStatus, actuals map[uuid.UUID]float64) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	engine := NewActivityEngine(config.DB)
	activity, err := engine.GetActivity(id)
	if err != nil {
		http.Error(w, "record not found", http.StatusNotFound)
		return
	}
	if activity.UserID != middleware.GetUserID(r) {
		http.Error(w, "record not found", http.StatusNotFound)
		return
	}
	activity, err = engine.Transition(id, status, actuals)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	json.NewEncoder(w).Encode(toActivityResponse(*activity))
}

// findOwnedActivity loads the {id} activity and verifies it belongs to
// the caller. Foreign and missing activities both read as 404.
func findOwnedActivity(w http.ResponseWriter, r *http.Request) (*models.FarmActivity, bool) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return nil, false
	}
	activity, err := NewActivityEngine(config.DB).GetActivity(id)
	if err != nil || activity.UserID != middleware.GetUserID(r) {
		http.Error(w, "record not found", http.StatusNotFound)
		return nil, false
	}
	return activity, true
}

// findOwnedReservation resolves {reservationId} and checks it belongs to
// the caller's {id} activity from the same path.
func findOwnedReservation(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	activity, ok := findOwnedActivity(w, r)
	if !ok {
		return uuid.Nil, false
	}
	reservationID, err := uuid.Parse(mux.Vars(r)["reservationId"])
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return uuid.Nil, false
	}
	for _, reservation := range activity.Materials {
		if reservation.ID == reservationID {
			return reservationID, true
		}
	}
	http.Error(w, "record not found", http.StatusNotFound)
	return uuid.Nil, false
}

type addMaterialReq struct {
	MaterialID      uuid.UUID `json:"materialId"`
	PlannedQuantity float64   `json:"plannedQuantity"`
}

func AddActivityMaterial(w http.ResponseWriter, r *http.Request) {
	activity, ok := findOwnedActivity(w, r)
	if !ok {
		return
	}
	var req addMaterialReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	reservation, err := NewActivityEngine(config.DB).AddMaterial(activity.ID, req.MaterialID, req.PlannedQuantity)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(reservation)
}

type updateReservationReq struct {
	PlannedQuantity *float64 `json:"plannedQuantity,omitempty"`
	ActualQuantity  *float64 `json:"actualQuantity,omitempty"`
}

// UpdateActivityMaterial adjusts the planned and/or actual quantity of
// one reservation.
func UpdateActivityMaterial(w http.ResponseWriter, r *http.Request) {
	reservationID, ok := findOwnedReservation(w, r)
	if !ok {
		return
	}
	var req updateReservationReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}

	engine := NewActivityEngine(config.DB)
	var reservation *models.ActivityMaterial
	var err error
	if req.PlannedQuantity != nil {
		reservation, err = engine.UpdatePlannedQuantity(reservationID, *req.PlannedQuantity)
		if err != nil {
			writeEngineError(w, err)
			return
		}
	}
	if req.ActualQuantity != nil {
		reservation, err = engine.RecordActualQuantity(reservationID, *req.ActualQuantity)
		if err != nil {
			writeEngineError(w, err)
			return
		}
	}
	if reservation == nil {
		http.Error(w, "nothing to update", http.StatusBadRequest)
		return
	}
	json.NewEncoder(w).Encode(reservation)
}

func RemoveActivityMaterial(w http.ResponseWriter, r *http.Request) {
	reservationID, ok := findOwnedReservation(w, r)
	if !ok {
		return
	}
	if err := NewActivityEngine(config.DB).RemoveMaterial(reservationID); err != nil {
		writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
