package models

import (
	"testing"
	"time"
)

func TestCanTransitionTo(t *testing.T) {
	tests := []struct {
		from ActivityStatus
		to   ActivityStatus
		want bool
	}{
		{StatusPending, StatusInProgress, true},
		{StatusPending, StatusCompleted, true},
		{StatusPending, StatusCancelled, true},
		{StatusInProgress, StatusCompleted, true},
		{StatusInProgress, StatusCancelled, false},
		{StatusInProgress, StatusPending, false},
		{StatusCompleted, StatusInProgress, false},
		{StatusCompleted, StatusCancelled, false},
		{StatusCancelled, StatusPending, false},
		{StatusCancelled, StatusCompleted, false},
	}
	for _, tt := range tests {
		a := &FarmActivity{Status: tt.from}
		if got := a.CanTransitionTo(tt.to); got != tt.want {
			t.Errorf("%s -> %s = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestIsTerminal(t *testing.T) {
	for status, want := range map[ActivityStatus]bool{
		StatusPending:    false,
		StatusInProgress: false,
		StatusCompleted:  true,
		StatusCancelled:  true,
	} {
		a := &FarmActivity{Status: status}
		if a.IsTerminal() != want {
			t.Errorf("IsTerminal(%s) = %v, want %v", status, !want, want)
		}
	}
}

func TestRequiresMaterials(t *testing.T) {
	required := []ActivityType{ActivityFertilizing, ActivityPesticide, ActivityFruitDevelopment}
	optional := []ActivityType{ActivitySoilPreparation, ActivityPlanting, ActivityWatering, ActivityHarvesting, ActivityOther}

	for _, typ := range required {
		if !typ.RequiresMaterials() {
			t.Errorf("%s should require materials", typ)
		}
	}
	for _, typ := range optional {
		if typ.RequiresMaterials() {
			t.Errorf("%s should not require materials", typ)
		}
	}
}

func TestSkipsScheduleValidation(t *testing.T) {
	if OriginUserPlanned.SkipsScheduleValidation() {
		t.Error("user-planned activities must be validated")
	}
	if ActivityOrigin("").SkipsScheduleValidation() {
		t.Error("an unset origin must be validated like user-planned")
	}
	if !OriginPlanGenerated.SkipsScheduleValidation() {
		t.Error("confirmed plan stages bypass schedule validation")
	}
	if !OriginMarketplaceGenerated.SkipsScheduleValidation() {
		t.Error("marketplace activities bypass schedule validation")
	}
	if !OriginRecurringChild.SkipsScheduleValidation() {
		t.Error("recurring children bypass schedule validation")
	}
}

func TestIsOverdue(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		status ActivityStatus
		end    time.Time
		want   bool
	}{
		{"past end, open", StatusPending, now.AddDate(0, 0, -1), true},
		{"past end, in progress", StatusInProgress, now.AddDate(0, 0, -1), true},
		{"future end", StatusPending, now.AddDate(0, 0, 1), false},
		{"past end but completed", StatusCompleted, now.AddDate(0, 0, -1), false},
		{"past end but cancelled", StatusCancelled, now.AddDate(0, 0, -1), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := &FarmActivity{Status: tt.status, EndDate: JSONTime(tt.end)}
			if got := a.IsOverdue(now); got != tt.want {
				t.Errorf("IsOverdue = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsStartingSoon(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		status ActivityStatus
		start  time.Time
		want   bool
	}{
		{"starts in 12h", StatusPending, now.Add(12 * time.Hour), true},
		{"starts in exactly 24h", StatusPending, now.Add(24 * time.Hour), true},
		{"starts in 25h", StatusPending, now.Add(25 * time.Hour), false},
		{"already started", StatusPending, now.Add(-time.Hour), false},
		{"in progress", StatusInProgress, now.Add(12 * time.Hour), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := &FarmActivity{Status: tt.status, StartDate: JSONTime(tt.start)}
			if got := a.IsStartingSoon(now); got != tt.want {
				t.Errorf("IsStartingSoon = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCommitQuantity(t *testing.T) {
	am := &ActivityMaterial{PlannedQuantity: 30}
	if got := am.CommitQuantity(); got != 30 {
		t.Errorf("CommitQuantity without actual = %v, want planned 30", got)
	}
	actual := 20.0
	am.ActualQuantity = &actual
	if got := am.CommitQuantity(); got != 20 {
		t.Errorf("CommitQuantity with actual = %v, want 20", got)
	}
}
