// Package dli tracks the daily light integral for each growing zone by
// integrating instantaneous PAR flux over the local calendar day.
package dli

import (
	"log"
	"sync"
	"time"
)

// Clock supplies wall time. Injected so day-boundary behavior is testable.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the real wall clock.
type SystemClock struct{}

// Now returns the current local time.
func (SystemClock) Now() time.Time { return time.Now() }

// HistorySink receives frozen per-day totals when a day boundary is crossed.
type HistorySink interface {
	SaveDay(zoneKey, date string, total float64, samples int) error
}

// Sample is one flux observation folded into the running integral.
type Sample struct {
	At       time.Time
	Flux     float64 // μmol·m⁻²·s⁻¹
	Duration time.Duration
}

// Record holds the running integral for a zone's current local day.
type Record struct {
	Date    string // local calendar date, YYYY-MM-DD
	Total   float64
	Samples []Sample
}

// Progress reports a zone's DLI standing against its target.
type Progress struct {
	ZoneKey      string
	CurrentDLI   float64
	TargetDLI    float64
	PercentDone  float64
	RemainingDLI float64
	TargetMet    bool
}

// Tracker accumulates the daily light integral per zone. Integral mutation
// is strictly sequential: the control loop is the single writer, while
// queries may come from any goroutine.
//
// The tracker performs no timestamp-based deduplication: callers must
// supply the true elapsed time since the previous sample, and duplicated or
// missed samples are a caller contract. Missed time is not backfilled.
type Tracker struct {
	mu          sync.RWMutex
	clock       Clock
	sink        HistorySink
	historyDays int
	records     map[string]*Record
	history     map[string]map[string]float64 // zoneKey -> date -> total
}

// NewTracker creates a tracker. sink may be nil when persistence of frozen
// days is not wanted.
func NewTracker(clock Clock, sink HistorySink, historyDays int) *Tracker {
	if clock == nil {
		clock = SystemClock{}
	}
	if historyDays <= 0 {
		historyDays = 30
	}
	return &Tracker{
		clock:       clock,
		sink:        sink,
		historyDays: historyDays,
		records:     make(map[string]*Record),
		history:     make(map[string]map[string]float64),
	}
}

// AddReading folds one flux sample into the zone's running integral:
// increment = flux (μmol·m⁻²·s⁻¹) × duration (s) × 1e-6, a left-Riemann-sum
// approximation. Crossing the local day boundary freezes the prior total
// into history and starts a new record at zero before the increment lands.
func (t *Tracker) AddReading(zoneKey string, flux float64, duration time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.clock.Now()
	date := now.Format("2006-01-02")

	rec, ok := t.records[zoneKey]
	if !ok || rec.Date != date {
		if ok {
			t.freeze(zoneKey, rec)
		}
		rec = &Record{Date: date}
		t.records[zoneKey] = rec
	}

	if flux < 0 {
		return
	}
	increment := flux * duration.Seconds() * 1e-6
	rec.Total += increment
	rec.Samples = append(rec.Samples, Sample{At: now, Flux: flux, Duration: duration})
}

// freeze moves a completed day into bounded history. Caller holds the lock.
func (t *Tracker) freeze(zoneKey string, rec *Record) {
	days, ok := t.history[zoneKey]
	if !ok {
		days = make(map[string]float64)
		t.history[zoneKey] = days
	}
	days[rec.Date] = rec.Total

	if t.sink != nil {
		if err := t.sink.SaveDay(zoneKey, rec.Date, rec.Total, len(rec.Samples)); err != nil {
			log.Printf("Warning: could not persist DLI history for zone %s: %v", zoneKey, err)
		}
	}

	cutoff := t.clock.Now().AddDate(0, 0, -t.historyDays).Format("2006-01-02")
	for date := range days {
		if date < cutoff {
			delete(days, date)
		}
	}
}

// DailyDLI returns the running total for the zone's current local day, in
// mol·m⁻²·day⁻¹. A zone with no samples today returns 0.
func (t *Tracker) DailyDLI(zoneKey string) float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()

	rec, ok := t.records[zoneKey]
	if !ok || rec.Date != t.clock.Now().Format("2006-01-02") {
		return 0
	}
	return rec.Total
}

// HistoricalDLI returns the frozen total for a past date, if retained.
func (t *Tracker) HistoricalDLI(zoneKey, date string) (float64, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	days, ok := t.history[zoneKey]
	if !ok {
		return 0, false
	}
	total, ok := days[date]
	return total, ok
}

// GetProgress reports the zone's standing against a target DLI.
func (t *Tracker) GetProgress(zoneKey string, targetDLI float64) Progress {
	current := t.DailyDLI(zoneKey)
	p := Progress{
		ZoneKey:    zoneKey,
		CurrentDLI: current,
		TargetDLI:  targetDLI,
	}
	if targetDLI > 0 {
		p.PercentDone = current / targetDLI * 100
		p.RemainingDLI = targetDLI - current
		if p.RemainingDLI < 0 {
			p.RemainingDLI = 0
		}
		p.TargetMet = current >= targetDLI
	}
	return p
}
