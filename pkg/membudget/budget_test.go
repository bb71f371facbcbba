package membudget

import (
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
)

func TestBudgetBasic(t *testing.T) {
	budget := New(Config{
		TotalBytes: 1000,
		Source:     BudgetSourceCLI,
	})

	// Verify initial state
	if budget.Total() != 1000 {
		t.Errorf("Total() = %d, want 1000", budget.Total())
	}
	if budget.Source() != BudgetSourceCLI {
		t.Errorf("Source() = %s, want %s", budget.Source(), BudgetSourceCLI)
	}
}

func TestNewFromSystemRAM(t *testing.T) {
	budget := NewFromSystemRAM()

	// Should have a reasonable budget
	if budget.Total() < 1024*1024*1024 { // At least 1GB
		t.Logf("Budget is %d bytes (%s)", budget.Total(), FormatBytes(budget.Total()))
	}

	if budget.Source() != BudgetSourceAuto && budget.Source() != BudgetSourceDefault {
		t.Errorf("Source = %s, want auto-90pct or default", budget.Source())
	}
}

func TestParseHumanSize(t *testing.T) {
	tests := []struct {
		input   string
		want    uint64
		wantErr bool
	}{
		{"1024", 1024, false},
		{"100B", 100, false},
		{"1KB", 1000, false},
		{"1KiB", 1024, false},
		{"1K", 1024, false},
		{"1MB", 1000000, false},
		{"1MiB", 1024 * 1024, false},
		{"1M", 1024 * 1024, false},
		{"1GB", 1000000000, false},
		{"1GiB", 1024 * 1024 * 1024, false},
		{"4GiB", 4 * 1024 * 1024 * 1024, false},
		{"0.5GiB", 512 * 1024 * 1024, false},
		{"", 0, true},
		{"XYZ", 0, true},
		{"100XB", 0, true},
	}

	for _, tt := range tests {
		got, err := ParseHumanSize(tt.input)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseHumanSize(%q) should error", tt.input)
			}
		} else {
			if err != nil {
				t.Errorf("ParseHumanSize(%q) error: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ParseHumanSize(%q) = %d, want %d", tt.input, got, tt.want)
			}
		}
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		input uint64
		want  string
	}{
		{0, "0 B"},
		{512, "512 B"},
		{1024, "1.00 KiB"},
		{1536, "1.50 KiB"},
		{1024 * 1024, "1.00 MiB"},
		{1024 * 1024 * 1024, "1.00 GiB"},
		{4 * 1024 * 1024 * 1024, "4.00 GiB"},
	}

	for _, tt := range tests {
		got := FormatBytes(tt.input)
		if got != tt.want {
			t.Errorf("FormatBytes(%d) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestTryReserveAndRelease(t *testing.T) {
	budget := New(Config{TotalBytes: 100})

	if !budget.TryReserve(60) {
		t.Fatal("TryReserve(60) refused with 100 available")
	}
	if budget.TryReserve(50) {
		t.Fatal("TryReserve(50) granted with 40 available")
	}
	if got := budget.Available(); got != 40 {
		t.Errorf("Available() = %d, want 40", got)
	}

	budget.Release(60)
	if got := budget.InUse(); got != 0 {
		t.Errorf("InUse() after release = %d, want 0", got)
	}
	if got := budget.Stats().PeakBytes; got != 60 {
		t.Errorf("PeakBytes = %d, want 60", got)
	}
}

func TestReleaseDoesNotUnderflow(t *testing.T) {
	budget := New(Config{TotalBytes: 100})
	budget.TryReserve(10)
	budget.Release(50)
	if got := budget.InUse(); got != 0 {
		t.Errorf("InUse() = %d, want 0", got)
	}
}

func TestAcquireError(t *testing.T) {
	budget := New(Config{TotalBytes: 1024})
	if err := budget.Acquire(512); err != nil {
		t.Fatalf("Acquire(512) error: %v", err)
	}
	err := budget.Acquire(1024)
	if !errors.Is(err, ErrExceedsBudget) {
		t.Fatalf("Acquire(1024) error = %v, want ErrExceedsBudget", err)
	}
	if !strings.Contains(err.Error(), "512 B") {
		t.Errorf("error should report what is available, got: %v", err)
	}
}

func TestTryReserveConcurrent(t *testing.T) {
	budget := New(Config{TotalBytes: 1000})

	var wg sync.WaitGroup
	var granted atomic.Int64
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if budget.TryReserve(100) {
				granted.Add(1)
			}
		}()
	}
	wg.Wait()

	if granted.Load() != 10 {
		t.Errorf("granted = %d, want 10", granted.Load())
	}
	if budget.InUse() != 1000 {
		t.Errorf("InUse() = %d, want 1000", budget.InUse())
	}
}

func TestStatsZeroTotal(t *testing.T) {
	st := New(Config{}).Stats()
	if st.UsagePercent != 0 {
		t.Errorf("UsagePercent = %f, want 0", st.UsagePercent)
	}
}
