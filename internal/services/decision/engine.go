// Package decision turns zone targets, sensor estimates, DLI progress, and
// operating constraints into concrete lighting decisions, then arbitrates
// the resulting set against the facility power budget.
package decision

import (
	"fmt"
	"log"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/growmesh/growlights-go/internal/services/capability"
	"github.com/growmesh/growlights-go/internal/services/dli"
	"github.com/growmesh/growlights-go/internal/services/optimizer"
)

// ConfigurationError reports a zone whose target cannot be evaluated under
// the current configuration. It is fatal for that zone this cycle and
// retried against the latest config next cycle.
type ConfigurationError struct {
	Entity string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error for %s: %s", e.Entity, e.Reason)
}

// EnergyTier is a time-of-use pricing band.
type EnergyTier string

const (
	TierOffPeak  EnergyTier = "off_peak"
	TierStandard EnergyTier = "standard"
	TierPeak     EnergyTier = "peak"
)

// TierMultiplier maps a pricing band to its relative cost.
func TierMultiplier(t EnergyTier) float64 {
	switch t {
	case TierOffPeak:
		return 1.0
	case TierPeak:
		return 2.0
	default:
		return 1.5
	}
}

// Ambient light bands, classified from estimated zone illuminance.
type AmbientBand string

const (
	AmbientDark       AmbientBand = "dark"
	AmbientDim        AmbientBand = "dim"
	AmbientModerate   AmbientBand = "moderate"
	AmbientBright     AmbientBand = "bright"
	AmbientVeryBright AmbientBand = "very_bright"
)

// ClassifyAmbient buckets a lux value.
func ClassifyAmbient(lux float64) AmbientBand {
	switch {
	case lux < 50:
		return AmbientDark
	case lux < 500:
		return AmbientDim
	case lux < 2000:
		return AmbientModerate
	case lux < 5000:
		return AmbientBright
	default:
		return AmbientVeryBright
	}
}

// ambientReliability is the sensor-confidence multiplier for a band. Bright
// ambient light drowns out the fixtures' contribution, so estimates made
// under it are trusted less.
func ambientReliability(band AmbientBand) float64 {
	switch band {
	case AmbientBright:
		return 0.7
	case AmbientVeryBright:
		return 0.5
	default:
		return 1.0
	}
}

// growthStageMultipliers scale the crop's base PAR target by stage.
var growthStageMultipliers = map[string]float64{
	"seedling":   0.6,
	"vegetative": 0.8,
	"flowering":  1.2,
	"fruiting":   1.5,
}

// Override is an operator-issued manual hold on a zone.
type Override struct {
	ZoneKey      string
	On           bool
	IntensityPct float64
	ExpiresAt    time.Time
	Reason       string
}

// Expired reports whether the override has lapsed at the given time. A zero
// ExpiresAt means the override holds until removed.
func (o *Override) Expired(now time.Time) bool {
	return !o.ExpiresAt.IsZero() && now.After(o.ExpiresAt)
}

// Inputs carries everything one zone decision depends on.
type Inputs struct {
	Now time.Time

	Target   optimizer.ZoneTarget
	Strategy capability.Strategy
	Fixtures []capability.FixtureCapability

	// ZoneValid reports whether the estimator produced a usable spectrum
	// for the zone this cycle.
	ZoneValid  bool
	AmbientLux float64

	DLI dli.Progress

	Tier EnergyTier
	// TierCostMultiplier is the configured cost for the tier; zero falls
	// back to the built-in TierMultiplier table.
	TierCostMultiplier float64

	Override  *Override
	Emergency bool // forces the zone off regardless of overrides
}

// Decision is one zone's resolved lighting action for a cycle.
type Decision struct {
	ZoneKey  string
	State    LightState
	Strategy capability.Strategy

	AdjustedPAR float64
	Result      *optimizer.Result
	PowerWatts  float64

	Confidence float64
	Reasons    []string
	DecidedAt  time.Time
}

// Engine evaluates per-zone decisions and tracks each zone's state machine
// across cycles.
type Engine struct {
	mu           sync.Mutex
	machines     map[string]*Machine
	rampStarted  map[string]time.Time
	rampDuration time.Duration
	budgetWatts  float64
}

// NewEngine creates an engine with a facility power budget in watts; zero
// or negative disables budget arbitration. rampDuration is how long a zone
// stays in RampingOn before it settles; zero completes the ramp on the next
// evaluation.
func NewEngine(budgetWatts float64, rampDuration time.Duration) *Engine {
	return &Engine{
		machines:     make(map[string]*Machine),
		rampStarted:  make(map[string]time.Time),
		rampDuration: rampDuration,
		budgetWatts:  budgetWatts,
	}
}

// ZoneState returns the current machine state for a zone.
func (e *Engine) ZoneState(zoneKey string) LightState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.machine(zoneKey).State()
}

// ClearForcedOff releases a zone from the absorbing ForcedOff state.
func (e *Engine) ClearForcedOff(zoneKey string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.machine(zoneKey).apply(eventClearForce)
}

// ClearAllForcedOff releases every zone held in ForcedOff, used when a
// facility-wide emergency stop is lifted.
func (e *Engine) ClearAllForcedOff() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, m := range e.machines {
		m.apply(eventClearForce)
	}
}

// Decide evaluates a single zone. Factors apply in a fixed order:
// emergency force-off, manual override, photoperiod schedule, DLI progress,
// then intensity adjustments for energy tier and ambient light.
func (e *Engine) Decide(in Inputs) (*Decision, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	zoneKey := in.Target.ZoneKey
	m := e.machine(zoneKey)
	d := &Decision{
		ZoneKey:   zoneKey,
		Strategy:  in.Strategy,
		DecidedAt: in.Now,
	}

	if in.Emergency {
		m.apply(eventForceOff)
		d.State = m.State()
		d.Reasons = append(d.Reasons, "emergency force-off")
		d.Result = offResult(in)
		return d, nil
	}
	if m.State() == StateForcedOff {
		d.State = StateForcedOff
		d.Reasons = append(d.Reasons, "zone held in forced-off state")
		d.Result = offResult(in)
		return d, nil
	}

	if in.Override != nil && !in.Override.Expired(in.Now) {
		return e.decideManual(m, d, in)
	}
	if m.State() == StateManualOverride {
		// Override removed or expired; resume automatic control.
		m.apply(eventManualExpired)
	}

	adjusted, scale, reasons, err := e.adjustTarget(in)
	if err != nil {
		return nil, err
	}
	d.Reasons = append(d.Reasons, reasons...)
	d.AdjustedPAR = adjusted

	if adjusted <= 0 {
		m.apply(eventWantOff)
		delete(e.rampStarted, zoneKey)
		d.State = m.State()
		d.Result = offResult(in)
		return d, nil
	}

	target := in.Target
	target.TargetPAR = adjusted
	res, err := optimizer.Optimize(target, in.Strategy, in.Fixtures)
	if err != nil {
		return nil, fmt.Errorf("zone %s: %w", zoneKey, err)
	}
	if scale < 1 {
		scaleSettings(res, in.Fixtures, scale)
	}

	if scale < 1 {
		m.apply(eventWantDimmed)
	} else {
		m.apply(eventWantFull)
	}
	e.advanceRamp(m, zoneKey, in.Now, scale)
	d.State = m.State()
	d.Result = res
	d.PowerWatts = res.PowerWatts
	d.Confidence = blendConfidence(in, res.Confidence)
	return d, nil
}

// advanceRamp tracks how long a zone has been ramping and completes the
// ramp once the configured duration elapses. Caller holds the lock.
func (e *Engine) advanceRamp(m *Machine, zoneKey string, now time.Time, scale float64) {
	if m.State() != StateRampingOn {
		delete(e.rampStarted, zoneKey)
		return
	}
	started, ok := e.rampStarted[zoneKey]
	if !ok {
		e.rampStarted[zoneKey] = now
		return
	}
	if now.Sub(started) < e.rampDuration {
		return
	}
	m.apply(eventRampDone)
	if scale < 1 {
		m.apply(eventWantDimmed)
	}
	delete(e.rampStarted, zoneKey)
}

func (e *Engine) decideManual(m *Machine, d *Decision, in Inputs) (*Decision, error) {
	m.apply(eventManual)
	d.State = m.State()
	d.Reasons = append(d.Reasons, "manual override: "+in.Override.Reason)

	res := offResult(in)
	if in.Override.On {
		pct := in.Override.IntensityPct
		if pct <= 0 {
			pct = 100
		}
		for id, s := range res.Settings {
			s.On = true
			s.IntensityPct = pct
			res.Settings[id] = s
		}
		res.PredictedPAR, res.PowerWatts = predictSettings(res.Settings, in.Fixtures)
	}
	res.Confidence = 1 // operator intent, not an estimate
	d.Result = res
	d.PowerWatts = res.PowerWatts
	d.Confidence = 1
	return d, nil
}

// adjustTarget applies schedule, growth stage, DLI, energy tier, and
// ambient factors. It returns the adjusted PAR target, an intensity scale
// in (0,1] applied on top of optimization, and human-readable reasons. A
// malformed photoperiod window is a ConfigurationError.
func (e *Engine) adjustTarget(in Inputs) (float64, float64, []string, error) {
	var reasons []string

	lit, err := withinPhotoperiod(in.Now, in.Target.LightStart, in.Target.LightEnd)
	if err != nil {
		return 0, 1, nil, &ConfigurationError{
			Entity: in.Target.ZoneKey,
			Reason: err.Error(),
		}
	}
	if !lit {
		return 0, 1, []string{"outside photoperiod window"}, nil
	}

	par := in.Target.TargetPAR
	if par <= 0 {
		par = in.Target.FallbackPAR
		if par > 0 {
			reasons = append(reasons, "using fallback PAR target")
		}
	}
	if mult, ok := growthStageMultipliers[in.Target.GrowthStage]; ok {
		par *= mult
		reasons = append(reasons, fmt.Sprintf("growth stage %s multiplier %.1f", in.Target.GrowthStage, mult))
	}

	// DLI saturation: past 110% of the daily target there is nothing left
	// to gain. Below that, scale down when ahead of the pro-rated pace.
	if in.DLI.TargetDLI > 0 {
		frac := in.DLI.CurrentDLI / in.DLI.TargetDLI
		if frac >= 1.1 {
			return 0, 1, append(reasons, "daily light integral target exceeded"), nil
		}
		if pace := proRatedPace(in.Now, in.Target.LightStart, in.Target.LightEnd); pace > 0 && frac > pace {
			ahead := math.Min(0.5, frac-pace)
			par *= 1 - ahead
			reasons = append(reasons, fmt.Sprintf("ahead of DLI pace by %.0f%%", ahead*100))
		}
	}

	scale := 1.0
	tierCost := in.TierCostMultiplier
	if tierCost <= 0 {
		tierCost = TierMultiplier(in.Tier)
	}
	if tierCost > 1.5 {
		scale = 0.8
		reasons = append(reasons, "peak energy pricing; intensity reduced")
	}
	if in.AmbientLux > 1000 {
		reduction := math.Min(0.8, in.AmbientLux/5000)
		scale *= 1 - reduction
		reasons = append(reasons, fmt.Sprintf("ambient %s (%.0f lux); supplemental lighting reduced", ClassifyAmbient(in.AmbientLux), in.AmbientLux))
	}
	if !in.ZoneValid {
		reasons = append(reasons, "no valid sensor estimate; running open loop")
	}
	return par, scale, reasons, nil
}

// ArbitrateBudget enforces the facility power budget over a decided cycle.
// When the summed draw exceeds the budget, the lowest-priority lit zones
// are turned off until the remainder fits.
func (e *Engine) ArbitrateBudget(decisions []*Decision, priorities map[string]float64) {
	if e.budgetWatts <= 0 {
		return
	}
	var total float64
	for _, d := range decisions {
		total += d.PowerWatts
	}
	if total <= e.budgetWatts {
		return
	}

	lit := make([]*Decision, 0, len(decisions))
	for _, d := range decisions {
		if d.PowerWatts > 0 && d.State != StateManualOverride {
			lit = append(lit, d)
		}
	}
	sort.SliceStable(lit, func(i, j int) bool {
		return priorities[lit[i].ZoneKey] < priorities[lit[j].ZoneKey]
	})

	e.mu.Lock()
	defer e.mu.Unlock()
	for _, d := range lit {
		if total <= e.budgetWatts {
			break
		}
		total -= d.PowerWatts
		log.Printf("Power budget exceeded; shedding zone %s (%.0fW)", d.ZoneKey, d.PowerWatts)
		d.Reasons = append(d.Reasons, "shed to meet facility power budget")
		d.PowerWatts = 0
		for id, s := range d.Result.Settings {
			s.On = false
			s.IntensityPct = 0
			s.ChannelLevels = nil
			d.Result.Settings[id] = s
		}
		d.Result.PredictedPAR = 0
		d.Result.PowerWatts = 0
		e.machine(d.ZoneKey).apply(eventWantOff)
		d.State = e.machines[d.ZoneKey].State()
	}
}

// blendConfidence mixes the optimizer's capability confidence with data and
// target completeness for the zone. The data component is discounted by the
// ambient band's reliability multiplier.
func blendConfidence(in Inputs, capabilityConf float64) float64 {
	data := 1.0
	if !in.ZoneValid {
		data = 0.4
	}
	data *= ambientReliability(ClassifyAmbient(in.AmbientLux))
	target := 1.0
	if in.Target.TargetPAR <= 0 {
		target = 0.6
	}
	if in.Target.TargetDLI <= 0 {
		target -= 0.2
	}
	if target < 0 {
		target = 0
	}
	return capabilityConf*0.5 + data*0.3 + target*0.2
}

func scaleSettings(res *optimizer.Result, fixtures []capability.FixtureCapability, scale float64) {
	dimmable := make(map[string]bool, len(fixtures))
	for _, f := range fixtures {
		dimmable[f.FixtureID] = f.Dimmable
	}
	for id, s := range res.Settings {
		if !s.On || !dimmable[id] {
			continue
		}
		s.IntensityPct *= scale
		for band, lv := range s.ChannelLevels {
			s.ChannelLevels[band] = lv * scale
		}
		res.Settings[id] = s
	}
	res.PredictedPAR, res.PowerWatts = predictSettings(res.Settings, fixtures)
}

func predictSettings(settings map[string]optimizer.FixtureSetting, fixtures []capability.FixtureCapability) (par, watts float64) {
	for _, f := range fixtures {
		s, ok := settings[f.FixtureID]
		if !ok || !s.On {
			continue
		}
		par += f.MaxPPFD * s.IntensityPct / 100
		watts += f.MaxPowerWatts * s.IntensityPct / 100
	}
	return par, watts
}

func offResult(in Inputs) *optimizer.Result {
	settings := make(map[string]optimizer.FixtureSetting, len(in.Fixtures))
	for _, f := range in.Fixtures {
		settings[f.FixtureID] = optimizer.FixtureSetting{FixtureID: f.FixtureID}
	}
	return &optimizer.Result{
		ZoneKey:  in.Target.ZoneKey,
		Strategy: in.Strategy,
		Settings: settings,
	}
}

// withinPhotoperiod checks an "HH:MM" window; windows crossing midnight are
// supported. Empty bounds mean always lit; malformed bounds are an error.
func withinPhotoperiod(now time.Time, start, end string) (bool, error) {
	if start == "" || end == "" {
		return true, nil
	}
	s, err1 := minutesOfDay(start)
	e, err2 := minutesOfDay(end)
	if err1 != nil || err2 != nil {
		return false, fmt.Errorf("invalid photoperiod window %q-%q", start, end)
	}
	n := now.Hour()*60 + now.Minute()
	if s <= e {
		return n >= s && n < e, nil
	}
	return n >= s || n < e, nil
}

// proRatedPace returns the fraction of the photoperiod elapsed at now, or 0
// when the window is unset or not yet started.
func proRatedPace(now time.Time, start, end string) float64 {
	if start == "" || end == "" {
		return 0
	}
	s, err1 := minutesOfDay(start)
	e, err2 := minutesOfDay(end)
	if err1 != nil || err2 != nil || s == e {
		return 0
	}
	length := e - s
	if length < 0 {
		length += 24 * 60
	}
	elapsed := now.Hour()*60 + now.Minute() - s
	if elapsed < 0 {
		elapsed += 24 * 60
	}
	if elapsed <= 0 || elapsed > length {
		return 0
	}
	return float64(elapsed) / float64(length)
}

func minutesOfDay(hhmm string) (int, error) {
	t, err := time.Parse("15:04", hhmm)
	if err != nil {
		return 0, err
	}
	return t.Hour()*60 + t.Minute(), nil
}

func (e *Engine) machine(zoneKey string) *Machine {
	m, ok := e.machines[zoneKey]
	if !ok {
		m = NewMachine()
		e.machines[zoneKey] = m
	}
	return m
}
