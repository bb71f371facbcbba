// Package membudget provides the process-wide memory budget for measurement
// buffers and probe scratch arrays.
//
// Every worker in the process reserves the bytes of its buffer before mapping
// it and releases them when the sweep moves to the next size. A reservation
// that cannot fit is refused instead of letting the kernel OOM-kill the whole
// group halfway through a sweep.
package membudget

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/eunmann/numabench/pkg/sysmem"
)

// DefaultBudgetBytes is the fallback budget when system RAM cannot be detected.
const DefaultBudgetBytes uint64 = 8 * 1024 * 1024 * 1024

// AutoFraction is the share of detected RAM granted when no budget is given.
const AutoFraction = 0.90

// ErrExceedsBudget is returned by Acquire when a reservation does not fit.
var ErrExceedsBudget = errors.New("membudget: reservation exceeds budget")

// BudgetSource indicates how the memory budget was determined.
type BudgetSource string

const (
	// BudgetSourceAuto indicates the budget was set to AutoFraction of detected RAM.
	BudgetSourceAuto BudgetSource = "auto-90pct"
	// BudgetSourceDefault indicates the budget used the fallback default.
	BudgetSourceDefault BudgetSource = "default"
	// BudgetSourceCLI indicates the budget was set via CLI flag.
	BudgetSourceCLI BudgetSource = "cli"
	// BudgetSourceEnv indicates the budget was set via environment variable.
	BudgetSourceEnv BudgetSource = "env"
)

// Budget tracks reserved bytes against a fixed total.
//
// Budget is safe for concurrent use.
type Budget struct {
	total  uint64
	inUse  atomic.Uint64
	peak   atomic.Uint64
	source BudgetSource
}

// Config holds configuration for creating a Budget.
type Config struct {
	// TotalBytes is the total memory budget in bytes.
	TotalBytes uint64

	// Source indicates how the budget was determined.
	Source BudgetSource
}

// New creates a new Budget with the given configuration.
func New(cfg Config) *Budget {
	return &Budget{
		total:  cfg.TotalBytes,
		source: cfg.Source,
	}
}

// NewFromSystemRAM creates a Budget set to AutoFraction of system RAM.
// If RAM cannot be detected, uses DefaultBudgetBytes.
func NewFromSystemRAM() *Budget {
	result := sysmem.Total()

	if !result.Reliable {
		return New(Config{TotalBytes: DefaultBudgetBytes, Source: BudgetSourceDefault})
	}
	return New(Config{
		TotalBytes: uint64(float64(result.TotalBytes) * AutoFraction),
		Source:     BudgetSourceAuto,
	})
}

// Total returns the total budget in bytes.
func (b *Budget) Total() uint64 {
	return b.total
}

// InUse returns the currently reserved bytes.
func (b *Budget) InUse() uint64 {
	return b.inUse.Load()
}

// Available returns the available bytes (total - inUse).
func (b *Budget) Available() uint64 {
	inUse := b.inUse.Load()
	if inUse >= b.total {
		return 0
	}
	return b.total - inUse
}

// Source returns how the budget was determined.
func (b *Budget) Source() BudgetSource {
	return b.source
}

// TryReserve attempts to reserve n bytes without blocking.
// Returns false if the reservation would exceed the budget.
func (b *Budget) TryReserve(n uint64) bool {
	for {
		current := b.inUse.Load()
		newTotal := current + n
		if newTotal > b.total || newTotal < current {
			return false
		}
		if b.inUse.CompareAndSwap(current, newTotal) {
			b.notePeak(newTotal)
			return true
		}
	}
}

// Acquire is TryReserve with an error describing the shortfall.
func (b *Budget) Acquire(n uint64) error {
	if b.TryReserve(n) {
		return nil
	}
	return fmt.Errorf("%w: need %s, %s of %s available",
		ErrExceedsBudget, FormatBytes(n), FormatBytes(b.Available()), FormatBytes(b.total))
}

// Release returns n bytes to the available pool.
func (b *Budget) Release(n uint64) {
	for {
		current := b.inUse.Load()
		next := current - n
		if n > current {
			next = 0
		}
		if b.inUse.CompareAndSwap(current, next) {
			return
		}
	}
}

func (b *Budget) notePeak(v uint64) {
	for {
		p := b.peak.Load()
		if v <= p || b.peak.CompareAndSwap(p, v) {
			return
		}
	}
}

// Stats is a snapshot of the budget.
type Stats struct {
	TotalBytes     uint64
	InUseBytes     uint64
	PeakBytes      uint64
	AvailableBytes uint64
	Source         BudgetSource
	UsagePercent   float64
}

// Stats returns current budget statistics.
func (b *Budget) Stats() Stats {
	inUse := b.inUse.Load()
	available := uint64(0)
	if inUse < b.total {
		available = b.total - inUse
	}
	var usagePct float64
	if b.total > 0 {
		usagePct = float64(inUse) / float64(b.total) * 100.0
	}
	return Stats{
		TotalBytes:     b.total,
		InUseBytes:     inUse,
		PeakBytes:      b.peak.Load(),
		AvailableBytes: available,
		Source:         b.source,
		UsagePercent:   usagePct,
	}
}

// ParseHumanSize parses a human-readable size string (e.g., "4GiB", "512MB").
// Supported suffixes: B, KB, KiB, MB, MiB, GB, GiB, TB, TiB.
func ParseHumanSize(s string) (uint64, error) {
	if s == "" {
		return 0, errors.New("empty size string")
	}

	numEnd := 0
	for i, c := range s {
		if (c < '0' || c > '9') && c != '.' {
			numEnd = i
			break
		}
		numEnd = i + 1
	}

	numStr := s[:numEnd]
	suffix := s[numEnd:]

	var num float64
	if _, err := fmt.Sscanf(numStr, "%f", &num); err != nil {
		return 0, fmt.Errorf("invalid number: %s", numStr)
	}

	var multiplier float64
	switch suffix {
	case "", "B":
		multiplier = 1.0
	case "KB":
		multiplier = 1000
	case "KiB", "K":
		multiplier = 1024
	case "MB":
		multiplier = 1000 * 1000
	case "MiB", "M":
		multiplier = 1024 * 1024
	case "GB":
		multiplier = 1000 * 1000 * 1000
	case "GiB", "G":
		multiplier = 1024 * 1024 * 1024
	case "TB":
		multiplier = 1000 * 1000 * 1000 * 1000
	case "TiB", "T":
		multiplier = 1024 * 1024 * 1024 * 1024
	default:
		return 0, fmt.Errorf("unknown size suffix: %s", suffix)
	}

	return uint64(num * multiplier), nil
}

// FormatBytes formats a byte count as a human-readable string.
func FormatBytes(b uint64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := uint64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.2f %ciB", float64(b)/float64(div), "KMGTPE"[exp])
}
