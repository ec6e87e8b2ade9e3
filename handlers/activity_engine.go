package handlers

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"p9e.in/farmops/models"
)

// ActivityEngine drives the lifecycle of farm activities and their
// material reservations. Every stock-touching operation runs inside one
// transaction with the affected farm_material rows locked, so concurrent
// activities against the same material cannot race past each other's
// read-modify-write of quantity/reserved_quantity.
type ActivityEngine struct {
	db *gorm.DB
}

// NewActivityEngine creates a new activity engine instance
func NewActivityEngine(db *gorm.DB) *ActivityEngine {
	return &ActivityEngine{db: db}
}

// duplicateWindowDays is the ±window used by the duplicate-schedule check.
const duplicateWindowDays = 7

// harvestMinDaysAfterPlanting is the minimum crop age before harvesting.
const harvestMinDaysAfterPlanting = 365

// MaterialInput is one planned material line on a new activity.
type MaterialInput struct {
	MaterialID      uuid.UUID `json:"materialId"`
	PlannedQuantity float64   `json:"plannedQuantity"`
}

// CreateActivityInput carries everything needed to schedule an activity.
type CreateActivityInput struct {
	UserID       uuid.UUID                `json:"-"`
	FieldID      uuid.UUID                `json:"fieldId"`
	CropID       *uuid.UUID               `json:"cropId,omitempty"`
	ActivityType models.ActivityType      `json:"activityType"`
	Description  *string                  `json:"description,omitempty"`
	StartDate    models.JSONTime          `json:"startDate"`
	EndDate      models.JSONTime          `json:"endDate"`
	Frequency    models.ActivityFrequency `json:"frequency,omitempty"`
	Origin       models.ActivityOrigin    `json:"origin,omitempty"`
	Materials    []MaterialInput          `json:"materials,omitempty"`
}

// CreateActivity validates the input, inserts the activity and reserves
// stock for every planned material, all-or-nothing. Recurring children
// and notifications are created after the transaction commits.
func (e *ActivityEngine) CreateActivity(input CreateActivityInput) (*models.FarmActivity, error) {
	if input.Frequency == "" {
		input.Frequency = models.FrequencyOnce
	}
	if input.Origin == "" {
		input.Origin = models.OriginUserPlanned
	}

	if err := e.validateCreate(input); err != nil {
		return nil, err
	}

	activity := &models.FarmActivity{
		UserID:       input.UserID,
		FieldID:      input.FieldID,
		CropID:       input.CropID,
		ActivityType: input.ActivityType,
		Status:       models.StatusPending,
		Frequency:    input.Frequency,
		Origin:       input.Origin,
		Description:  input.Description,
		StartDate:    input.StartDate,
		EndDate:      input.EndDate,
	}

	err := e.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(activity).Error; err != nil {
			return fmt.Errorf("failed to create activity: %w", err)
		}
		for _, m := range input.Materials {
			if _, err := e.reserveMaterial(tx, activity.ID, m.MaterialID, m.PlannedQuantity); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Side effects outside the transactional core, best-effort.
	e.createRecurringChildren(activity)

	log.Printf("✅ Created activity %s (%s, %d materials)", activity.ID, activity.ActivityType, len(input.Materials))
	return e.GetActivity(activity.ID)
}

// validateCreate collects all schedule-level violations so the caller can
// report them together.
func (e *ActivityEngine) validateCreate(input CreateActivityInput) error {
	var errs []error

	if input.ActivityType.RequiresMaterials() && len(input.Materials) == 0 {
		errs = append(errs, models.ErrMaterialsRequired)
	}

	if !input.Origin.SkipsScheduleValidation() {
		if err := e.checkSimilarActivities(input); err != nil {
			errs = append(errs, err)
		}
		if err := e.checkProcessOrder(input); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// checkSimilarActivities rejects a second activity of the same type on the
// same field and crop whose start date falls within ±7 days of an existing
// one.
func (e *ActivityEngine) checkSimilarActivities(input CreateActivityInput) error {
	start := input.StartDate.Time()
	windowStart := start.AddDate(0, 0, -duplicateWindowDays)
	windowEnd := start.AddDate(0, 0, duplicateWindowDays)

	q := e.db.Model(&models.FarmActivity{}).
		Where("field_id = ? AND activity_type = ? AND status <> ?",
			input.FieldID, input.ActivityType, models.StatusCancelled).
		Where("start_date BETWEEN ? AND ?", windowStart, windowEnd)
	if input.CropID != nil {
		q = q.Where("crop_id = ?", *input.CropID)
	} else {
		q = q.Where("crop_id IS NULL")
	}

	var count int64
	if err := q.Count(&count).Error; err != nil {
		return fmt.Errorf("duplicate check failed: %w", err)
	}
	if count > 0 {
		return fmt.Errorf("%s on this field within %d days: %w",
			input.ActivityType, duplicateWindowDays, models.ErrDuplicateActivity)
	}
	return nil
}

// checkProcessOrder enforces the pineapple cultivation ordering rules.
// Rules only apply when the activity is tied to a crop.
func (e *ActivityEngine) checkProcessOrder(input CreateActivityInput) error {
	if input.CropID == nil {
		return nil
	}

	switch input.ActivityType {
	case models.ActivityPlanting:
		if !e.hasPriorActivity(input, models.ActivitySoilPreparation) {
			return fmt.Errorf("planting requires prior soil preparation: %w", models.ErrProcessOrderViolation)
		}
	case models.ActivityFertilizing, models.ActivityPesticide, models.ActivityFruitDevelopment:
		if !e.hasPriorActivity(input, models.ActivityPlanting) {
			return fmt.Errorf("%s requires prior planting: %w", input.ActivityType, models.ErrProcessOrderViolation)
		}
	case models.ActivityHarvesting:
		if !e.hasPriorActivity(input, models.ActivityPlanting) {
			return fmt.Errorf("harvesting requires prior planting: %w", models.ErrProcessOrderViolation)
		}
		if !e.hasPriorActivity(input, models.ActivityFertilizing) {
			return fmt.Errorf("harvesting requires prior fertilizing: %w", models.ErrProcessOrderViolation)
		}
		var planting models.FarmActivity
		err := e.db.
			Where("field_id = ? AND crop_id = ? AND activity_type = ? AND status <> ?",
				input.FieldID, *input.CropID, models.ActivityPlanting, models.StatusCancelled).
			Order("start_date ASC").
			First(&planting).Error
		if err == nil {
			age := input.StartDate.Time().Sub(planting.StartDate.Time())
			if age < harvestMinDaysAfterPlanting*24*time.Hour {
				return fmt.Errorf("harvest must start at least %d days after planting: %w",
					harvestMinDaysAfterPlanting, models.ErrProcessOrderViolation)
			}
		}
	}
	return nil
}

func (e *ActivityEngine) hasPriorActivity(input CreateActivityInput, activityType models.ActivityType) bool {
	var count int64
	e.db.Model(&models.FarmActivity{}).
		Where("field_id = ? AND crop_id = ? AND activity_type = ? AND status <> ?",
			input.FieldID, *input.CropID, activityType, models.StatusCancelled).
		Where("start_date <= ?", input.StartDate.Time()).
		Count(&count)
	return count > 0
}

// lockMaterial loads a farm_material row under FOR UPDATE so the stock
// mutators can't lose updates to a concurrent request. SQLite (tests) has
// no row locks; its single-writer model covers the same guarantee.
func (e *ActivityEngine) lockMaterial(tx *gorm.DB, id uuid.UUID) (*models.FarmMaterial, error) {
	q := tx
	if tx.Dialector.Name() == "postgres" {
		q = tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var material models.FarmMaterial
	if err := q.First(&material, "id = ?", id).Error; err != nil {
		return nil, fmt.Errorf("material not found: %w", err)
	}
	return &material, nil
}

func (e *ActivityEngine) saveMaterial(tx *gorm.DB, m *models.FarmMaterial) error {
	return tx.Model(m).Updates(map[string]interface{}{
		"quantity":          m.Quantity,
		"reserved_quantity": m.ReservedQuantity,
	}).Error
}

// reserveMaterial creates one reservation row and earmarks stock for it.
func (e *ActivityEngine) reserveMaterial(tx *gorm.DB, activityID, materialID uuid.UUID, planned float64) (*models.ActivityMaterial, error) {
	if planned <= 0 {
		return nil, fmt.Errorf("planned quantity for material %s: %w", materialID, models.ErrInvalidQuantity)
	}
	material, err := e.lockMaterial(tx, materialID)
	if err != nil {
		return nil, err
	}
	if err := material.Reserve(planned); err != nil {
		return nil, err
	}
	if err := e.saveMaterial(tx, material); err != nil {
		return nil, fmt.Errorf("failed to update stock for %s: %w", material.Name, err)
	}
	reservation := &models.ActivityMaterial{
		ActivityID:      activityID,
		FarmMaterialID:  materialID,
		PlannedQuantity: planned,
	}
	if err := tx.Create(reservation).Error; err != nil {
		return nil, fmt.Errorf("failed to create reservation for %s: %w", material.Name, err)
	}
	return reservation, nil
}

// AddMaterial plans an extra material on a live activity and reserves
// stock for it immediately.
func (e *ActivityEngine) AddMaterial(activityID, materialID uuid.UUID, planned float64) (*models.ActivityMaterial, error) {
	activity, err := e.GetActivity(activityID)
	if err != nil {
		return nil, err
	}
	if activity.IsTerminal() {
		return nil, fmt.Errorf("cannot add materials to a %s activity", activity.Status)
	}

	var reservation *models.ActivityMaterial
	err = e.db.Transaction(func(tx *gorm.DB) error {
		reservation, err = e.reserveMaterial(tx, activityID, materialID, planned)
		return err
	})
	if err != nil {
		return nil, err
	}
	return reservation, nil
}

// UpdatePlannedQuantity adjusts a reservation, reserving or releasing the
// delta against the stock.
func (e *ActivityEngine) UpdatePlannedQuantity(reservationID uuid.UUID, newQty float64) (*models.ActivityMaterial, error) {
	if newQty <= 0 {
		return nil, fmt.Errorf("planned quantity: %w", models.ErrInvalidQuantity)
	}

	var reservation models.ActivityMaterial
	if err := e.db.First(&reservation, "id = ?", reservationID).Error; err != nil {
		return nil, fmt.Errorf("reservation not found: %w", err)
	}
	activity, err := e.GetActivity(reservation.ActivityID)
	if err != nil {
		return nil, err
	}
	// Completed reservations are history; cancelled ones already gave
	// their stock back, so re-reserving through an edit would leak it.
	if activity.IsTerminal() {
		return nil, fmt.Errorf("cannot change the plan of a %s activity", activity.Status)
	}

	delta := newQty - reservation.PlannedQuantity
	err = e.db.Transaction(func(tx *gorm.DB) error {
		if delta != 0 {
			material, err := e.lockMaterial(tx, reservation.FarmMaterialID)
			if err != nil {
				return err
			}
			if delta > 0 {
				err = material.Reserve(delta)
			} else {
				err = material.Release(-delta)
			}
			if err != nil {
				return err
			}
			if err := e.saveMaterial(tx, material); err != nil {
				return err
			}
		}
		reservation.PlannedQuantity = newQty
		return tx.Model(&reservation).Update("planned_quantity", newQty).Error
	})
	if err != nil {
		return nil, err
	}
	return &reservation, nil
}

// RecordActualQuantity captures real usage for one reservation. Before
// completion this is bookkeeping only; once the activity is completed the
// difference against what was already committed is reconciled with the
// stock (extra usage commits more, lower usage returns the surplus).
func (e *ActivityEngine) RecordActualQuantity(reservationID uuid.UUID, actual float64) (*models.ActivityMaterial, error) {
	if actual < 0 {
		return nil, fmt.Errorf("actual quantity: %w", models.ErrInvalidQuantity)
	}

	var reservation models.ActivityMaterial
	if err := e.db.First(&reservation, "id = ?", reservationID).Error; err != nil {
		return nil, fmt.Errorf("reservation not found: %w", err)
	}
	activity, err := e.GetActivity(reservation.ActivityID)
	if err != nil {
		return nil, err
	}

	if activity.Status != models.StatusCompleted {
		reservation.ActualQuantity = &actual
		if err := e.db.Model(&reservation).Update("actual_quantity", actual).Error; err != nil {
			return nil, err
		}
		return &reservation, nil
	}

	// Already completed: reconcile the delta against what was committed.
	delta := actual - reservation.CommitQuantity()
	err = e.db.Transaction(func(tx *gorm.DB) error {
		if delta != 0 {
			material, err := e.lockMaterial(tx, reservation.FarmMaterialID)
			if err != nil {
				return err
			}
			if delta > 0 {
				if err := material.Commit(delta); err != nil {
					return fmt.Errorf("%v: %w", err, models.ErrInsufficientMaterial)
				}
			} else {
				if err := material.ReturnQuantity(-delta); err != nil {
					return err
				}
			}
			if err := e.saveMaterial(tx, material); err != nil {
				return err
			}
		}
		reservation.ActualQuantity = &actual
		return tx.Model(&reservation).Update("actual_quantity", actual).Error
	})
	if err != nil {
		return nil, err
	}
	return &reservation, nil
}

// RemoveMaterial drops a planned material, releasing its reservation.
// Reservations of completed activities are immutable history.
func (e *ActivityEngine) RemoveMaterial(reservationID uuid.UUID) error {
	var reservation models.ActivityMaterial
	if err := e.db.First(&reservation, "id = ?", reservationID).Error; err != nil {
		return fmt.Errorf("reservation not found: %w", err)
	}
	activity, err := e.GetActivity(reservation.ActivityID)
	if err != nil {
		return err
	}
	if activity.Status == models.StatusCompleted {
		return fmt.Errorf("cannot remove materials from a completed activity")
	}
	if activity.ActivityType.RequiresMaterials() && len(activity.Materials) <= 1 {
		return models.ErrMaterialsRequired
	}

	return e.db.Transaction(func(tx *gorm.DB) error {
		if activity.Status != models.StatusCancelled {
			material, err := e.lockMaterial(tx, reservation.FarmMaterialID)
			if err != nil {
				return err
			}
			if err := material.Release(reservation.PlannedQuantity); err != nil {
				return err
			}
			if err := e.saveMaterial(tx, material); err != nil {
				return err
			}
		}
		return tx.Delete(&reservation).Error
	})
}

// Transition moves an activity to newStatus, applying every reservation's
// stock effects in one transaction. actuals optionally maps reservation
// IDs to observed usage when completing.
func (e *ActivityEngine) Transition(activityID uuid.UUID, newStatus models.ActivityStatus, actuals map[uuid.UUID]float64) (*models.FarmActivity, error) {
	activity, err := e.GetActivity(activityID)
	if err != nil {
		return nil, err
	}

	// Cancelling twice is a no-op, not an error.
	if activity.Status == models.StatusCancelled && newStatus == models.StatusCancelled {
		return activity, nil
	}
	if !activity.CanTransitionTo(newStatus) {
		return nil, fmt.Errorf("%s -> %s: %w", activity.Status, newStatus, models.ErrInvalidTransition)
	}

	err = e.db.Transaction(func(tx *gorm.DB) error {
		switch newStatus {
		case models.StatusInProgress:
			if err := e.verifyCommittable(tx, activity); err != nil {
				return err
			}
		case models.StatusCompleted:
			if err := e.commitReservations(tx, activity, actuals); err != nil {
				return err
			}
			now := time.Now()
			activity.CompletedAt = &now
		case models.StatusCancelled:
			if err := e.releaseReservations(tx, activity); err != nil {
				return err
			}
		}

		previous := activity.Status
		activity.Status = newStatus
		updates := map[string]interface{}{"status": newStatus}
		if activity.CompletedAt != nil {
			updates["completed_at"] = activity.CompletedAt
		}
		if err := tx.Model(activity).Updates(updates).Error; err != nil {
			return fmt.Errorf("failed to update status: %w", err)
		}
		log.Printf("✅ Transitioned activity %s: %s -> %s", activity.ID, previous, newStatus)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if newStatus == models.StatusCompleted {
		NewNotificationService(e.db).ActivityCompleted(activity)
	}
	return e.GetActivity(activityID)
}

// verifyCommittable is the pending -> in_progress gate: every reservation
// must still be backed by on-hand stock. No mutation happens here.
func (e *ActivityEngine) verifyCommittable(tx *gorm.DB, activity *models.FarmActivity) error {
	for _, reservation := range activity.Materials {
		material, err := e.lockMaterial(tx, reservation.FarmMaterialID)
		if err != nil {
			return err
		}
		if !material.HasEnough(reservation.PlannedQuantity) {
			return fmt.Errorf("%s: need %.2f %s, on hand %.2f: %w",
				material.Name, reservation.PlannedQuantity, material.Unit,
				material.Quantity, models.ErrInsufficientMaterial)
		}
	}
	return nil
}

// commitReservations applies completion effects per reservation: record
// the caller-supplied actual, commit actual-or-planned, then release the
// reserved surplus that was planned but not used. Any failure rolls the
// whole transition back.
func (e *ActivityEngine) commitReservations(tx *gorm.DB, activity *models.FarmActivity, actuals map[uuid.UUID]float64) error {
	for i := range activity.Materials {
		reservation := &activity.Materials[i]

		if actual, ok := actuals[reservation.ID]; ok {
			if actual < 0 {
				return fmt.Errorf("actual quantity for %s: %w", reservation.ID, models.ErrInvalidQuantity)
			}
			reservation.ActualQuantity = &actual
			if err := tx.Model(reservation).Update("actual_quantity", actual).Error; err != nil {
				return err
			}
		}

		material, err := e.lockMaterial(tx, reservation.FarmMaterialID)
		if err != nil {
			return err
		}
		commitQty := reservation.CommitQuantity()
		if err := material.Commit(commitQty); err != nil {
			return fmt.Errorf("%v: %w", err, models.ErrInsufficientMaterial)
		}
		if surplus := reservation.PlannedQuantity - commitQty; surplus > 0 {
			if err := material.Release(surplus); err != nil {
				return err
			}
		}
		if err := e.saveMaterial(tx, material); err != nil {
			return err
		}
	}
	return nil
}

// releaseReservations frees every reservation on cancellation. Releasing
// never runs out of stock, so this cannot fail for shortage reasons.
func (e *ActivityEngine) releaseReservations(tx *gorm.DB, activity *models.FarmActivity) error {
	for _, reservation := range activity.Materials {
		material, err := e.lockMaterial(tx, reservation.FarmMaterialID)
		if err != nil {
			return err
		}
		if err := material.Release(reservation.PlannedQuantity); err != nil {
			return err
		}
		if err := e.saveMaterial(tx, material); err != nil {
			return err
		}
	}
	return nil
}

// DeleteActivity removes an activity that has not committed stock.
// Completed activities must be kept for the inventory audit trail;
// callers should cancel instead.
func (e *ActivityEngine) DeleteActivity(activityID uuid.UUID) error {
	activity, err := e.GetActivity(activityID)
	if err != nil {
		return err
	}
	if activity.Status == models.StatusCompleted {
		return fmt.Errorf("completed activities cannot be deleted, cancel instead")
	}

	return e.db.Transaction(func(tx *gorm.DB) error {
		if activity.Status != models.StatusCancelled {
			if err := e.releaseReservations(tx, activity); err != nil {
				return err
			}
		}
		if err := tx.Where("activity_id = ?", activity.ID).Delete(&models.ActivityMaterial{}).Error; err != nil {
			return err
		}
		return tx.Delete(activity).Error
	})
}

// GetActivity loads one activity with its reservations and their materials.
func (e *ActivityEngine) GetActivity(activityID uuid.UUID) (*models.FarmActivity, error) {
	var activity models.FarmActivity
	if err := e.db.
		Preload("Materials").
		Preload("Materials.Material").
		First(&activity, "id = ?", activityID).Error; err != nil {
		return nil, fmt.Errorf("activity not found: %w", err)
	}
	return &activity, nil
}

// recurrenceOffsets maps a frequency to the day offsets of the generated
// follow-on activities.
var recurrenceOffsets = map[models.ActivityFrequency]int{
	models.FrequencyDaily:   1,
	models.FrequencyWeekly:  7,
	models.FrequencyMonthly: 30,
}

// maxRecurringChildren caps how many follow-ons one activity spawns.
const maxRecurringChildren = 3

// createRecurringChildren spawns up to 3 pending follow-on activities for
// a repeating schedule. Children do not inherit materials; creation is
// best-effort and never fails the parent.
func (e *ActivityEngine) createRecurringChildren(parent *models.FarmActivity) {
	step, ok := recurrenceOffsets[parent.Frequency]
	if !ok {
		return
	}
	for i := 1; i <= maxRecurringChildren; i++ {
		offset := step * i
		child := &models.FarmActivity{
			UserID:       parent.UserID,
			FieldID:      parent.FieldID,
			CropID:       parent.CropID,
			ParentID:     &parent.ID,
			ActivityType: parent.ActivityType,
			Status:       models.StatusPending,
			Frequency:    models.FrequencyOnce,
			Origin:       models.OriginRecurringChild,
			Description:  parent.Description,
			StartDate:    models.JSONTime(parent.StartDate.Time().AddDate(0, 0, offset)),
			EndDate:      models.JSONTime(parent.EndDate.Time().AddDate(0, 0, offset)),
		}
		if err := e.db.Create(child).Error; err != nil {
			log.Printf("⚠️  Failed to create recurring child of %s: %v", parent.ID, err)
			return
		}
	}
	log.Printf("✅ Created %d recurring children for activity %s", maxRecurringChildren, parent.ID)
}
