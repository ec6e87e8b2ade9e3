package models

import (
	"errors"
	"testing"
)

func newMaterial(quantity, reserved float64) *FarmMaterial {
	return &FarmMaterial{
		Name:             "NPK 16-16-8",
		Unit:             "kg",
		Category:         MaterialFertilizer,
		Quantity:         quantity,
		ReservedQuantity: reserved,
	}
}

func TestReserve(t *testing.T) {
	tests := []struct {
		name         string
		quantity     float64
		reserved     float64
		amount       float64
		wantErr      error
		wantReserved float64
	}{
		{"simple reserve", 100, 0, 30, nil, 30},
		{"stacked reserve", 100, 30, 40, nil, 70},
		{"reserve everything available", 100, 30, 70, nil, 100},
		{"over available", 100, 30, 71, ErrInsufficientStock, 30},
		{"over total", 100, 0, 101, ErrInsufficientStock, 0},
		{"zero amount", 100, 0, 0, ErrInvalidQuantity, 0},
		{"negative amount", 100, 0, -5, ErrInvalidQuantity, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newMaterial(tt.quantity, tt.reserved)
			err := m.Reserve(tt.amount)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Reserve(%v) error = %v, want %v", tt.amount, err, tt.wantErr)
			}
			if m.ReservedQuantity != tt.wantReserved {
				t.Errorf("ReservedQuantity = %v, want %v", m.ReservedQuantity, tt.wantReserved)
			}
			if m.Quantity != tt.quantity {
				t.Errorf("Reserve must not change Quantity, got %v", m.Quantity)
			}
		})
	}
}

func TestRelease(t *testing.T) {
	tests := []struct {
		name         string
		reserved     float64
		amount       float64
		wantErr      error
		wantReserved float64
	}{
		{"partial release", 30, 10, nil, 20},
		{"full release", 30, 30, nil, 0},
		{"over reserved", 30, 31, ErrInvalidRelease, 30},
		{"nothing reserved", 0, 1, ErrInvalidRelease, 0},
		{"zero amount", 30, 0, ErrInvalidQuantity, 30},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newMaterial(100, tt.reserved)
			err := m.Release(tt.amount)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Release(%v) error = %v, want %v", tt.amount, err, tt.wantErr)
			}
			if m.ReservedQuantity != tt.wantReserved {
				t.Errorf("ReservedQuantity = %v, want %v", m.ReservedQuantity, tt.wantReserved)
			}
		})
	}
}

func TestCommit(t *testing.T) {
	t.Run("decrements both counters", func(t *testing.T) {
		m := newMaterial(100, 30)
		if err := m.Commit(30); err != nil {
			t.Fatalf("Commit: %v", err)
		}
		if m.Quantity != 70 || m.ReservedQuantity != 0 {
			t.Errorf("got quantity=%v reserved=%v, want 70/0", m.Quantity, m.ReservedQuantity)
		}
	})

	t.Run("clamps reserved at zero", func(t *testing.T) {
		// Commit can exceed the reservation when the recorded actual
		// usage runs over plan; reserved must not go negative.
		m := newMaterial(100, 10)
		if err := m.Commit(25); err != nil {
			t.Fatalf("Commit: %v", err)
		}
		if m.Quantity != 75 {
			t.Errorf("Quantity = %v, want 75", m.Quantity)
		}
		if m.ReservedQuantity != 0 {
			t.Errorf("ReservedQuantity = %v, want 0", m.ReservedQuantity)
		}
	})

	t.Run("fails on on-hand shortfall", func(t *testing.T) {
		m := newMaterial(20, 20)
		if err := m.Commit(25); !errors.Is(err, ErrInsufficientStock) {
			t.Fatalf("Commit error = %v, want ErrInsufficientStock", err)
		}
		if m.Quantity != 20 || m.ReservedQuantity != 20 {
			t.Errorf("failed commit must not mutate, got %v/%v", m.Quantity, m.ReservedQuantity)
		}
	})

	t.Run("rejects non-positive amounts", func(t *testing.T) {
		m := newMaterial(100, 0)
		if err := m.Commit(0); !errors.Is(err, ErrInvalidQuantity) {
			t.Fatalf("Commit(0) error = %v, want ErrInvalidQuantity", err)
		}
	})
}

func TestReturnQuantity(t *testing.T) {
	m := newMaterial(80, 0)
	if err := m.ReturnQuantity(15); err != nil {
		t.Fatalf("ReturnQuantity: %v", err)
	}
	if m.Quantity != 95 {
		t.Errorf("Quantity = %v, want 95", m.Quantity)
	}
	if err := m.ReturnQuantity(-1); !errors.Is(err, ErrInvalidQuantity) {
		t.Errorf("negative return error = %v, want ErrInvalidQuantity", err)
	}
}

// TestReservedNeverExceedsQuantity runs a mixed op sequence and checks the
// stock invariant after every step.
func TestReservedNeverExceedsQuantity(t *testing.T) {
	m := newMaterial(100, 0)
	steps := []struct {
		name string
		op   func() error
	}{
		{"reserve 60", func() error { return m.Reserve(60) }},
		{"reserve 40", func() error { return m.Reserve(40) }},
		{"release 10", func() error { return m.Release(10) }},
		{"commit 50", func() error { return m.Commit(50) }},
		{"release 40", func() error { return m.Release(40) }},
		{"return 5", func() error { return m.ReturnQuantity(5) }},
	}
	for _, step := range steps {
		if err := step.op(); err != nil {
			t.Fatalf("%s: %v", step.name, err)
		}
		if m.ReservedQuantity < 0 || m.ReservedQuantity > m.Quantity+quantityEpsilon {
			t.Fatalf("after %s: reserved %v outside [0, %v]", step.name, m.ReservedQuantity, m.Quantity)
		}
		if m.AvailableQuantity() < -quantityEpsilon {
			t.Fatalf("after %s: available went negative (%v)", step.name, m.AvailableQuantity())
		}
	}
	if m.Quantity != 55 {
		t.Errorf("final Quantity = %v, want 55", m.Quantity)
	}
}

func TestFloatDriftTolerance(t *testing.T) {
	m := newMaterial(0.3, 0)
	// 0.1+0.1+0.1 != 0.3 in float64; epsilon keeps the full reserve legal.
	for i := 0; i < 3; i++ {
		if err := m.Reserve(0.1); err != nil {
			t.Fatalf("reserve #%d: %v", i+1, err)
		}
	}
	if err := m.Commit(0.3); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if m.ReservedQuantity != 0 {
		t.Errorf("ReservedQuantity = %v, want clamped 0", m.ReservedQuantity)
	}
}

func BenchmarkReserveRelease(b *testing.B) {
	m := newMaterial(1e9, 0)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = m.Reserve(1)
		_ = m.Release(1)
	}
}
