package handlers

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"p9e.in/farmops/models"
)

// newTestDB opens a per-test in-memory SQLite database with the full
// schema migrated.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.Field{},
		&models.Crop{},
		&models.FarmMaterial{},
		&models.FarmActivity{},
		&models.ActivityMaterial{},
		&models.ActivityTemplate{},
		&models.Notification{},
	))
	return db
}

type fixture struct {
	db       *gorm.DB
	engine   *ActivityEngine
	user     models.User
	field    models.Field
	crop     models.Crop
	material models.FarmMaterial
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := newTestDB(t)
	f := &fixture{db: db, engine: NewActivityEngine(db)}

	f.user = models.User{Name: "Binh", Phone: "0900000001", PasswordHash: "x", Role: "farmer"}
	require.NoError(t, db.Create(&f.user).Error)

	f.field = models.Field{UserID: f.user.ID, Name: "North plot", AreaHectares: 2}
	require.NoError(t, db.Create(&f.field).Error)

	planting := models.JSONTime(time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC))
	f.crop = models.Crop{
		UserID: f.user.ID, FieldID: f.field.ID,
		Name: "Queen pineapple", Season: "spring-summer",
		PlantingDate: &planting,
	}
	require.NoError(t, db.Create(&f.crop).Error)

	f.material = f.newMaterial(t, "NPK 16-16-8", 100)
	return f
}

func (f *fixture) newMaterial(t *testing.T, name string, quantity float64) models.FarmMaterial {
	t.Helper()
	m := models.FarmMaterial{
		UserID: f.user.ID, Name: name, Unit: "kg",
		Category: models.MaterialFertilizer, Quantity: quantity,
	}
	require.NoError(t, f.db.Create(&m).Error)
	return m
}

func (f *fixture) reloadMaterial(t *testing.T, id uuid.UUID) models.FarmMaterial {
	t.Helper()
	var m models.FarmMaterial
	require.NoError(t, f.db.First(&m, "id = ?", id).Error)
	return m
}

// fertilizing builds a crop-less fertilizing input. Without a crop the
// process-order rules do not apply, which keeps stock-focused tests free
// of scheduling setup; ordering itself is covered by TestProcessOrder.
func (f *fixture) fertilizing(start time.Time, materials ...MaterialInput) CreateActivityInput {
	return CreateActivityInput{
		UserID:       f.user.ID,
		FieldID:      f.field.ID,
		ActivityType: models.ActivityFertilizing,
		StartDate:    models.JSONTime(start),
		EndDate:      models.JSONTime(start.AddDate(0, 0, 1)),
		Materials:    materials,
	}
}

var baseStart = time.Date(2025, 4, 1, 8, 0, 0, 0, time.UTC)

func TestCreateActivityReservesStock(t *testing.T) {
	f := newFixture(t)

	activity, err := f.engine.CreateActivity(f.fertilizing(baseStart,
		MaterialInput{MaterialID: f.material.ID, PlannedQuantity: 30}))
	require.NoError(t, err)
	require.Len(t, activity.Materials, 1)
	require.Equal(t, models.StatusPending, activity.Status)

	m := f.reloadMaterial(t, f.material.ID)
	require.Equal(t, 100.0, m.Quantity)
	require.Equal(t, 30.0, m.ReservedQuantity)
	require.Equal(t, 70.0, m.AvailableQuantity())
}

func TestCreateActivityInsufficientStock(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.CreateActivity(f.fertilizing(baseStart,
		MaterialInput{MaterialID: f.material.ID, PlannedQuantity: 150}))
	require.ErrorIs(t, err, models.ErrInsufficientStock)

	// No activity row may survive the rollback.
	var count int64
	f.db.Model(&models.FarmActivity{}).Count(&count)
	require.Zero(t, count)

	m := f.reloadMaterial(t, f.material.ID)
	require.Zero(t, m.ReservedQuantity)
}

func TestCreateActivityRequiresMaterials(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.CreateActivity(f.fertilizing(baseStart))
	require.ErrorIs(t, err, models.ErrMaterialsRequired)
}

// TestCreateActivityAllOrNothing plans three materials where the third is
// short on stock; none of the reservations may stick.
func TestCreateActivityAllOrNothing(t *testing.T) {
	f := newFixture(t)
	second := f.newMaterial(t, "Urea", 50)
	third := f.newMaterial(t, "Potash", 5)

	_, err := f.engine.CreateActivity(f.fertilizing(baseStart,
		MaterialInput{MaterialID: f.material.ID, PlannedQuantity: 30},
		MaterialInput{MaterialID: second.ID, PlannedQuantity: 20},
		MaterialInput{MaterialID: third.ID, PlannedQuantity: 10},
	))
	require.ErrorIs(t, err, models.ErrInsufficientStock)

	for _, id := range []uuid.UUID{f.material.ID, second.ID, third.ID} {
		m := f.reloadMaterial(t, id)
		require.Zero(t, m.ReservedQuantity, "material %s must be untouched", m.Name)
	}
}

func TestCompleteCommitsPlannedQuantity(t *testing.T) {
	f := newFixture(t)
	activity, err := f.engine.CreateActivity(f.fertilizing(baseStart,
		MaterialInput{MaterialID: f.material.ID, PlannedQuantity: 30}))
	require.NoError(t, err)

	activity, err = f.engine.Transition(activity.ID, models.StatusCompleted, nil)
	require.NoError(t, err)
	require.Equal(t, models.StatusCompleted, activity.Status)
	require.NotNil(t, activity.CompletedAt)

	m := f.reloadMaterial(t, f.material.ID)
	require.Equal(t, 70.0, m.Quantity)
	require.Zero(t, m.ReservedQuantity)
}

// TestCompleteWithLowerActual commits the observed usage and releases the
// planned surplus: 100 on hand, 30 reserved, 20 used -> 80 on hand, 0
// reserved.
func TestCompleteWithLowerActual(t *testing.T) {
	f := newFixture(t)
	activity, err := f.engine.CreateActivity(f.fertilizing(baseStart,
		MaterialInput{MaterialID: f.material.ID, PlannedQuantity: 30}))
	require.NoError(t, err)

	actuals := map[uuid.UUID]float64{activity.Materials[0].ID: 20}
	activity, err = f.engine.Transition(activity.ID, models.StatusCompleted, actuals)
	require.NoError(t, err)

	m := f.reloadMaterial(t, f.material.ID)
	require.Equal(t, 80.0, m.Quantity)
	require.Zero(t, m.ReservedQuantity)
	require.Equal(t, 20.0, *activity.Materials[0].ActualQuantity)
}

func TestCompleteWithHigherActual(t *testing.T) {
	f := newFixture(t)
	activity, err := f.engine.CreateActivity(f.fertilizing(baseStart,
		MaterialInput{MaterialID: f.material.ID, PlannedQuantity: 30}))
	require.NoError(t, err)

	actuals := map[uuid.UUID]float64{activity.Materials[0].ID: 45}
	_, err = f.engine.Transition(activity.ID, models.StatusCompleted, actuals)
	require.NoError(t, err)

	m := f.reloadMaterial(t, f.material.ID)
	require.Equal(t, 55.0, m.Quantity)
	require.Zero(t, m.ReservedQuantity)
}

func TestCancelReleasesReservations(t *testing.T) {
	f := newFixture(t)
	activity, err := f.engine.CreateActivity(f.fertilizing(baseStart,
		MaterialInput{MaterialID: f.material.ID, PlannedQuantity: 30}))
	require.NoError(t, err)

	activity, err = f.engine.Transition(activity.ID, models.StatusCancelled, nil)
	require.NoError(t, err)
	require.Equal(t, models.StatusCancelled, activity.Status)

	m := f.reloadMaterial(t, f.material.ID)
	require.Equal(t, 100.0, m.Quantity)
	require.Zero(t, m.ReservedQuantity)

	// Cancelling a cancelled activity is a no-op, not an error, and must
	// not release twice.
	_, err = f.engine.Transition(activity.ID, models.StatusCancelled, nil)
	require.NoError(t, err)
	m = f.reloadMaterial(t, f.material.ID)
	require.Zero(t, m.ReservedQuantity)
}

func TestInvalidTransitions(t *testing.T) {
	f := newFixture(t)
	activity, err := f.engine.CreateActivity(f.fertilizing(baseStart,
		MaterialInput{MaterialID: f.material.ID, PlannedQuantity: 30}))
	require.NoError(t, err)

	_, err = f.engine.Transition(activity.ID, models.StatusCompleted, nil)
	require.NoError(t, err)

	_, err = f.engine.Transition(activity.ID, models.StatusInProgress, nil)
	require.ErrorIs(t, err, models.ErrInvalidTransition)
	_, err = f.engine.Transition(activity.ID, models.StatusCancelled, nil)
	require.ErrorIs(t, err, models.ErrInvalidTransition)
}

func TestStartVerifiesStock(t *testing.T) {
	f := newFixture(t)
	activity, err := f.engine.CreateActivity(f.fertilizing(baseStart,
		MaterialInput{MaterialID: f.material.ID, PlannedQuantity: 30}))
	require.NoError(t, err)

	// Stock shrank out-of-band below the reservation.
	require.NoError(t, f.db.Model(&models.FarmMaterial{}).
		Where("id = ?", f.material.ID).
		Update("quantity", 10).Error)

	_, err = f.engine.Transition(activity.ID, models.StatusInProgress, nil)
	require.ErrorIs(t, err, models.ErrInsufficientMaterial)

	// The activity stays pending.
	reloaded, err := f.engine.GetActivity(activity.ID)
	require.NoError(t, err)
	require.Equal(t, models.StatusPending, reloaded.Status)
}

func TestDuplicateWindow(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.CreateActivity(f.fertilizing(baseStart,
		MaterialInput{MaterialID: f.material.ID, PlannedQuantity: 10}))
	require.NoError(t, err)

	// Same type, field and crop, 5 days later: rejected.
	_, err = f.engine.CreateActivity(f.fertilizing(baseStart.AddDate(0, 0, 5),
		MaterialInput{MaterialID: f.material.ID, PlannedQuantity: 10}))
	require.ErrorIs(t, err, models.ErrDuplicateActivity)

	// Outside the ±7 day window: accepted.
	_, err = f.engine.CreateActivity(f.fertilizing(baseStart.AddDate(0, 0, 10),
		MaterialInput{MaterialID: f.material.ID, PlannedQuantity: 10}))
	require.NoError(t, err)
}

func TestCancelledActivityIsNotADuplicate(t *testing.T) {
	f := newFixture(t)
	activity, err := f.engine.CreateActivity(f.fertilizing(baseStart,
		MaterialInput{MaterialID: f.material.ID, PlannedQuantity: 10}))
	require.NoError(t, err)
	_, err = f.engine.Transition(activity.ID, models.StatusCancelled, nil)
	require.NoError(t, err)

	_, err = f.engine.CreateActivity(f.fertilizing(baseStart,
		MaterialInput{MaterialID: f.material.ID, PlannedQuantity: 10}))
	require.NoError(t, err)
}

func TestProcessOrder(t *testing.T) {
	f := newFixture(t)

	planting := CreateActivityInput{
		UserID: f.user.ID, FieldID: f.field.ID, CropID: &f.crop.ID,
		ActivityType: models.ActivityPlanting,
		StartDate:    models.JSONTime(baseStart),
		EndDate:      models.JSONTime(baseStart.AddDate(0, 0, 1)),
	}

	// Planting before any soil preparation is out of order.
	_, err := f.engine.CreateActivity(planting)
	require.ErrorIs(t, err, models.ErrProcessOrderViolation)

	soilPrep := planting
	soilPrep.ActivityType = models.ActivitySoilPreparation
	soilPrep.StartDate = models.JSONTime(baseStart.AddDate(0, 0, -10))
	soilPrep.EndDate = models.JSONTime(baseStart.AddDate(0, 0, -9))
	_, err = f.engine.CreateActivity(soilPrep)
	require.NoError(t, err)

	_, err = f.engine.CreateActivity(planting)
	require.NoError(t, err)

	// Fertilizing now has a prior planting.
	fertilizing := f.fertilizing(baseStart.AddDate(0, 0, 30),
		MaterialInput{MaterialID: f.material.ID, PlannedQuantity: 10})
	fertilizing.CropID = &f.crop.ID
	_, err = f.engine.CreateActivity(fertilizing)
	require.NoError(t, err)

	harvest := planting
	harvest.ActivityType = models.ActivityHarvesting
	harvest.StartDate = models.JSONTime(baseStart.AddDate(0, 0, 100))
	harvest.EndDate = models.JSONTime(baseStart.AddDate(0, 0, 101))

	// Too young: harvest must wait at least a year after planting.
	_, err = f.engine.CreateActivity(harvest)
	require.ErrorIs(t, err, models.ErrProcessOrderViolation)

	harvest.StartDate = models.JSONTime(baseStart.AddDate(0, 0, 400))
	harvest.EndDate = models.JSONTime(baseStart.AddDate(0, 0, 401))
	_, err = f.engine.CreateActivity(harvest)
	require.NoError(t, err)
}

func TestFertilizingWithoutPlanting(t *testing.T) {
	f := newFixture(t)
	input := f.fertilizing(baseStart,
		MaterialInput{MaterialID: f.material.ID, PlannedQuantity: 10})
	input.CropID = &f.crop.ID
	// newFixture has no planting activity; the crop-tied rule applies.
	_, err := f.engine.CreateActivity(input)
	require.ErrorIs(t, err, models.ErrProcessOrderViolation)
}

func TestGeneratedOriginSkipsValidation(t *testing.T) {
	f := newFixture(t)

	input := CreateActivityInput{
		UserID: f.user.ID, FieldID: f.field.ID, CropID: &f.crop.ID,
		ActivityType: models.ActivityPlanting,
		Origin:       models.OriginPlanGenerated,
		StartDate:    models.JSONTime(baseStart),
		EndDate:      models.JSONTime(baseStart.AddDate(0, 0, 1)),
	}
	// No soil preparation exists; a generated activity is accepted anyway.
	_, err := f.engine.CreateActivity(input)
	require.NoError(t, err)
}

func TestRecurringChildren(t *testing.T) {
	f := newFixture(t)

	input := f.fertilizing(baseStart,
		MaterialInput{MaterialID: f.material.ID, PlannedQuantity: 10})
	input.Frequency = models.FrequencyWeekly
	parent, err := f.engine.CreateActivity(input)
	require.NoError(t, err)

	var children []models.FarmActivity
	require.NoError(t, f.db.Where("parent_id = ?", parent.ID).Order("start_date ASC").Find(&children).Error)
	require.Len(t, children, 3)

	for i, child := range children {
		require.Equal(t, models.OriginRecurringChild, child.Origin)
		require.Equal(t, models.FrequencyOnce, child.Frequency)
		require.Equal(t, parent.ActivityType, child.ActivityType)
		wantStart := baseStart.AddDate(0, 0, 7*(i+1))
		require.True(t, child.StartDate.Time().Equal(wantStart),
			"child %d start = %v, want %v", i, child.StartDate.Time(), wantStart)
	}

	// Children reserve nothing: only the parent's 10 kg is earmarked.
	m := f.reloadMaterial(t, f.material.ID)
	require.Equal(t, 10.0, m.ReservedQuantity)
}

func TestUpdatePlannedQuantity(t *testing.T) {
	f := newFixture(t)
	activity, err := f.engine.CreateActivity(f.fertilizing(baseStart,
		MaterialInput{MaterialID: f.material.ID, PlannedQuantity: 30}))
	require.NoError(t, err)
	reservationID := activity.Materials[0].ID

	// Raise: the delta is reserved on top.
	_, err = f.engine.UpdatePlannedQuantity(reservationID, 50)
	require.NoError(t, err)
	require.Equal(t, 50.0, f.reloadMaterial(t, f.material.ID).ReservedQuantity)

	// Lower: the delta is released.
	_, err = f.engine.UpdatePlannedQuantity(reservationID, 20)
	require.NoError(t, err)
	require.Equal(t, 20.0, f.reloadMaterial(t, f.material.ID).ReservedQuantity)

	// Beyond available stock fails and leaves the reservation alone.
	_, err = f.engine.UpdatePlannedQuantity(reservationID, 200)
	require.ErrorIs(t, err, models.ErrInsufficientStock)
	require.Equal(t, 20.0, f.reloadMaterial(t, f.material.ID).ReservedQuantity)
}

// TestUpdatePlannedQuantityOnTerminalActivity guards against reservation
// edits on closed activities: a cancelled activity's stock was already
// released, so re-reserving through an edit would leak it for good.
func TestUpdatePlannedQuantityOnTerminalActivity(t *testing.T) {
	f := newFixture(t)
	activity, err := f.engine.CreateActivity(f.fertilizing(baseStart,
		MaterialInput{MaterialID: f.material.ID, PlannedQuantity: 30}))
	require.NoError(t, err)
	reservationID := activity.Materials[0].ID

	_, err = f.engine.Transition(activity.ID, models.StatusCancelled, nil)
	require.NoError(t, err)

	_, err = f.engine.UpdatePlannedQuantity(reservationID, 50)
	require.Error(t, err)

	m := f.reloadMaterial(t, f.material.ID)
	require.Equal(t, 100.0, m.Quantity)
	require.Zero(t, m.ReservedQuantity)

	// Completed activities are immutable history the same way.
	activity, err = f.engine.CreateActivity(f.fertilizing(baseStart.AddDate(0, 0, 20),
		MaterialInput{MaterialID: f.material.ID, PlannedQuantity: 10}))
	require.NoError(t, err)
	_, err = f.engine.Transition(activity.ID, models.StatusCompleted, nil)
	require.NoError(t, err)
	_, err = f.engine.UpdatePlannedQuantity(activity.Materials[0].ID, 50)
	require.Error(t, err)
	require.Zero(t, f.reloadMaterial(t, f.material.ID).ReservedQuantity)
}

// TestCompleteAllOrNothing completes an activity whose second reservation
// cannot be covered; the first material's already-applied commit must roll
// back with the transaction.
func TestCompleteAllOrNothing(t *testing.T) {
	f := newFixture(t)
	second := f.newMaterial(t, "Urea", 50)

	activity, err := f.engine.CreateActivity(f.fertilizing(baseStart,
		MaterialInput{MaterialID: f.material.ID, PlannedQuantity: 30},
		MaterialInput{MaterialID: second.ID, PlannedQuantity: 20},
	))
	require.NoError(t, err)

	// An actual above the second material's on-hand total fails its commit.
	actuals := map[uuid.UUID]float64{}
	for _, reservation := range activity.Materials {
		if reservation.FarmMaterialID == second.ID {
			actuals[reservation.ID] = 60
		}
	}
	require.Len(t, actuals, 1)

	_, err = f.engine.Transition(activity.ID, models.StatusCompleted, actuals)
	require.ErrorIs(t, err, models.ErrInsufficientMaterial)

	first := f.reloadMaterial(t, f.material.ID)
	require.Equal(t, 100.0, first.Quantity)
	require.Equal(t, 30.0, first.ReservedQuantity)
	other := f.reloadMaterial(t, second.ID)
	require.Equal(t, 50.0, other.Quantity)
	require.Equal(t, 20.0, other.ReservedQuantity)

	reloaded, err := f.engine.GetActivity(activity.ID)
	require.NoError(t, err)
	require.Equal(t, models.StatusPending, reloaded.Status)
	require.Nil(t, reloaded.CompletedAt)
	for _, reservation := range reloaded.Materials {
		require.Nil(t, reservation.ActualQuantity)
	}
}

func TestRecordActualAfterCompletion(t *testing.T) {
	f := newFixture(t)
	activity, err := f.engine.CreateActivity(f.fertilizing(baseStart,
		MaterialInput{MaterialID: f.material.ID, PlannedQuantity: 30}))
	require.NoError(t, err)
	reservationID := activity.Materials[0].ID

	_, err = f.engine.Transition(activity.ID, models.StatusCompleted, nil)
	require.NoError(t, err)
	require.Equal(t, 70.0, f.reloadMaterial(t, f.material.ID).Quantity)

	// Correcting the actual downward returns the surplus to stock.
	_, err = f.engine.RecordActualQuantity(reservationID, 25)
	require.NoError(t, err)
	require.Equal(t, 75.0, f.reloadMaterial(t, f.material.ID).Quantity)

	// Correcting upward commits the extra.
	_, err = f.engine.RecordActualQuantity(reservationID, 40)
	require.NoError(t, err)
	require.Equal(t, 60.0, f.reloadMaterial(t, f.material.ID).Quantity)
}

func TestRemoveMaterial(t *testing.T) {
	f := newFixture(t)
	second := f.newMaterial(t, "Urea", 50)

	activity, err := f.engine.CreateActivity(f.fertilizing(baseStart,
		MaterialInput{MaterialID: f.material.ID, PlannedQuantity: 30},
		MaterialInput{MaterialID: second.ID, PlannedQuantity: 20},
	))
	require.NoError(t, err)

	require.NoError(t, f.engine.RemoveMaterial(activity.Materials[1].ID))
	require.Zero(t, f.reloadMaterial(t, second.ID).ReservedQuantity)

	// The last material of a material-required activity may not go.
	err = f.engine.RemoveMaterial(activity.Materials[0].ID)
	require.ErrorIs(t, err, models.ErrMaterialsRequired)
}

func TestDeleteActivityReleasesStock(t *testing.T) {
	f := newFixture(t)
	activity, err := f.engine.CreateActivity(f.fertilizing(baseStart,
		MaterialInput{MaterialID: f.material.ID, PlannedQuantity: 30}))
	require.NoError(t, err)

	require.NoError(t, f.engine.DeleteActivity(activity.ID))
	require.Zero(t, f.reloadMaterial(t, f.material.ID).ReservedQuantity)

	_, err = f.engine.GetActivity(activity.ID)
	require.Error(t, err)
}

func TestDeleteCompletedActivityRefused(t *testing.T) {
	f := newFixture(t)
	activity, err := f.engine.CreateActivity(f.fertilizing(baseStart,
		MaterialInput{MaterialID: f.material.ID, PlannedQuantity: 30}))
	require.NoError(t, err)
	_, err = f.engine.Transition(activity.ID, models.StatusCompleted, nil)
	require.NoError(t, err)

	require.Error(t, f.engine.DeleteActivity(activity.ID))
}

func TestCompletionCreatesNotification(t *testing.T) {
	f := newFixture(t)
	activity, err := f.engine.CreateActivity(f.fertilizing(baseStart,
		MaterialInput{MaterialID: f.material.ID, PlannedQuantity: 30}))
	require.NoError(t, err)

	_, err = f.engine.Transition(activity.ID, models.StatusCompleted, nil)
	require.NoError(t, err)

	var notifications []models.Notification
	require.NoError(t, f.db.Where("activity_id = ?", activity.ID).Find(&notifications).Error)
	require.Len(t, notifications, 1)
	require.Equal(t, models.NotifyActivityCompleted, notifications[0].Kind)
	require.Equal(t, f.user.ID, notifications[0].UserID)
}
