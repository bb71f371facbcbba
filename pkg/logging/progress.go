package logging

import (
	"time"

	"github.com/eunmann/numabench/pkg/humanfmt"
	"github.com/rs/zerolog"
)

// SweepProgress follows one worker through its list of buffer sizes.
// Building the ring and faulting the buffer in dominate a size's run time and
// both grow with the buffer, so the ETA is projected from megabytes done, not
// from the number of sizes done. A size whose probe failed counts as skipped.
// A SweepProgress belongs to one worker and is not safe for concurrent use.
type SweepProgress struct {
	sizesMB []int
	start   time.Time

	next    int
	skipped int
	doneMB  int64
	totalMB int64
	busy    time.Duration
}

// NewSweepProgress starts tracking a sweep over sizesMB, in order.
func NewSweepProgress(sizesMB []int) *SweepProgress {
	p := &SweepProgress{sizesMB: sizesMB, start: time.Now()}
	for _, mb := range sizesMB {
		p.totalMB += int64(mb)
	}
	return p
}

// Done records the outcome of the next size in the list. Extra calls past the
// last size are ignored.
func (p *SweepProgress) Done(elapsed time.Duration, measured bool) {
	if p.next >= len(p.sizesMB) {
		return
	}
	mb := p.sizesMB[p.next]
	p.next++
	if !measured {
		p.skipped++
		return
	}
	p.doneMB += int64(mb)
	p.busy += elapsed
}

// Position returns how many sizes are finished, measured or skipped, and
// how many there are.
func (p *SweepProgress) Position() (done, total int) {
	return p.next, len(p.sizesMB)
}

// ETA projects the time left from the rate of measured megabytes. It is zero
// until a size has been measured.
func (p *SweepProgress) ETA() time.Duration {
	if p.doneMB == 0 {
		return 0
	}
	var leftMB int64
	for _, mb := range p.sizesMB[p.next:] {
		leftMB += int64(mb)
	}
	return time.Duration(float64(p.busy) * float64(leftMB) / float64(p.doneMB))
}

// Elapsed returns time since tracking started.
func (p *SweepProgress) Elapsed() time.Duration {
	return time.Since(p.start)
}

// CompletionEvent helps build consistent completion log events.
type CompletionEvent struct {
	log     zerolog.Logger
	event   string
	phase   string
	elapsed time.Duration
	fields  map[string]any
}

func newCompletionEvent(log zerolog.Logger, event, phase string, elapsed time.Duration) *CompletionEvent {
	return &CompletionEvent{
		log:     log,
		event:   event,
		phase:   phase,
		elapsed: elapsed,
		fields:  make(map[string]any),
	}
}

// Str adds a string field.
func (ce *CompletionEvent) Str(key, val string) *CompletionEvent {
	ce.fields[key] = val
	return ce
}

// Int adds an int field.
func (ce *CompletionEvent) Int(key string, val int) *CompletionEvent {
	ce.fields[key] = val
	return ce
}

// Float64 adds a float64 field.
func (ce *CompletionEvent) Float64(key string, val float64) *CompletionEvent {
	ce.fields[key] = val
	return ce
}

// Bytes adds byte count with optional human-readable companion.
func (ce *CompletionEvent) Bytes(key string, bytes int64) *CompletionEvent {
	ce.fields[key] = bytes
	if IsPrettyMode() {
		ce.fields[key+"_h"] = humanfmt.Bytes(bytes)
	}
	return ce
}

// Latency adds a per-hop latency in nanoseconds. A negative value is a
// failed probe and is logged as such.
func (ce *CompletionEvent) Latency(key string, ns float64) *CompletionEvent {
	if ns < 0 {
		ce.fields[key+"_failed"] = true
		return ce
	}
	ce.fields[key] = ns
	if IsPrettyMode() {
		ce.fields[key+"_h"] = humanfmt.Latency(ns)
	}
	return ce
}

// Sweep adds the sweep position and ETA.
func (ce *CompletionEvent) Sweep(p *SweepProgress) *CompletionEvent {
	done, total := p.Position()
	ce.fields["sizes_done"] = done
	ce.fields["sizes_skipped"] = p.skipped
	ce.fields["sizes_total"] = total
	if p.totalMB > 0 {
		ce.fields["progress_pct"] = float64(p.doneMB) * 100 / float64(p.totalMB)
	}
	if eta := p.ETA(); eta > 0 {
		ce.fields["eta_ms"] = eta.Milliseconds()
		if IsPrettyMode() {
			ce.fields["eta_h"] = humanfmt.Duration(eta)
		}
	}
	return ce
}

// Log emits the completion event at info level.
func (ce *CompletionEvent) Log(msg string) {
	e := ce.log.Info().
		Str("event", ce.event).
		Str("phase", ce.phase).
		Int64("duration_ms", ce.elapsed.Milliseconds())

	if IsPrettyMode() {
		e = e.Str("duration_h", humanfmt.Duration(ce.elapsed))
	}

	for k, v := range ce.fields {
		e = e.Interface(k, v)
	}

	e.Msg(msg)
}

// PhaseComplete starts a phase completion event.
func PhaseComplete(log zerolog.Logger, phase string, elapsed time.Duration) *CompletionEvent {
	return newCompletionEvent(log, "phase_completed", phase, elapsed)
}

// SizeComplete starts the event for one measured buffer size.
func SizeComplete(log zerolog.Logger, phase string, elapsed time.Duration) *CompletionEvent {
	return newCompletionEvent(log, "size_completed", phase, elapsed)
}

// FileWritten starts an export completion event.
func FileWritten(log zerolog.Logger, phase string, elapsed time.Duration) *CompletionEvent {
	return newCompletionEvent(log, "file_written", phase, elapsed)
}

// SizeStarted logs that a worker begins a buffer size.
func SizeStarted(log zerolog.Logger, phase string, sizeMB int, p *SweepProgress) {
	done, total := p.Position()
	log.Info().
		Str("event", "size_started").
		Str("phase", phase).
		Int("size_mb", sizeMB).
		Int("sizes_done", done).
		Int("sizes_total", total).
		Msg("size started")
}
