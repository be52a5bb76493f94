// Package controlloop runs the periodic sense-estimate-decide-actuate cycle
// and publishes an immutable snapshot of the whole grid after each pass.
package controlloop

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/growmesh/growlights-go/internal/services/capability"
	"github.com/growmesh/growlights-go/internal/services/decision"
	"github.com/growmesh/growlights-go/internal/services/dli"
	"github.com/growmesh/growlights-go/internal/services/estimator"
	"github.com/growmesh/growlights-go/internal/services/optimizer"
	"github.com/growmesh/growlights-go/internal/services/pubsub"
	"github.com/growmesh/growlights-go/internal/services/relay"
	"github.com/growmesh/growlights-go/internal/services/sensor"
	"github.com/growmesh/growlights-go/internal/services/spectrum"
)

// ZoneConfig is one zone's configuration as loaded for a cycle.
type ZoneConfig struct {
	ZoneKey  string
	Row, Col int
	Fixtures []capability.FixtureCapability
	Target   optimizer.ZoneTarget
	Priority float64
	// CircuitByFixture maps fixture IDs to relay circuits.
	CircuitByFixture map[string]string
}

// SensorConfig is one installed sensor as loaded for a cycle.
type SensorConfig struct {
	ID          string
	Type        spectrum.SensorType
	X, Y        float64
	Calibration float64
}

// Provider supplies the loop's configuration and operator state each cycle.
type Provider interface {
	LoadZones(ctx context.Context) ([]ZoneConfig, error)
	LoadSensors(ctx context.Context) ([]SensorConfig, error)
	LoadOverrides(ctx context.Context) (map[string]*decision.Override, error)
	// TierFor returns the time-of-use band active at now and its cost
	// multiplier.
	TierFor(ctx context.Context, now time.Time) (decision.EnergyTier, float64, error)
	// EmergencyStop reports whether a facility-wide emergency stop is
	// active.
	EmergencyStop(ctx context.Context) (bool, error)
}

// ZoneSnapshot is one zone's state after a cycle.
type ZoneSnapshot struct {
	ZoneKey  string              `json:"zoneKey"`
	Valid    bool                `json:"valid"`
	Estimate estimator.ZoneState `json:"estimate"`
	DLI      dli.Progress        `json:"dli"`
	Strategy capability.Strategy `json:"strategy"`
	Decision *decision.Decision  `json:"decision"`
}

// Snapshot is an immutable view of the whole grid after one cycle. Each
// cycle produces a new snapshot with a strictly increasing version; readers
// always see a complete, consistent cycle.
type Snapshot struct {
	Version         uint64                  `json:"version"`
	TakenAt         time.Time               `json:"takenAt"`
	Tier            decision.EnergyTier     `json:"tier"`
	TierMultiplier  float64                 `json:"tierMultiplier"`
	Emergency       bool                    `json:"emergency"`
	Zones           map[string]ZoneSnapshot `json:"zones"`
	TotalPowerWatts float64                 `json:"totalPowerWatts"`
}

// Options configure a Loop.
type Options struct {
	CycleInterval     time.Duration
	SensorReadTimeout time.Duration
	EstimatorParams   estimator.Params
	Clock             func() time.Time
}

// Loop drives the control cycle on a fixed interval.
type Loop struct {
	opts      Options
	provider  Provider
	adapters  func(SensorConfig) sensor.Adapter
	estimator *estimator.Estimator
	tracker   *dli.Tracker
	analyzer  *capability.Analyzer
	engine    *decision.Engine
	relays    *relay.Controller
	bus       *pubsub.PubSub

	snapshot atomic.Pointer[Snapshot]
	version  atomic.Uint64

	mu       sync.Mutex
	stopChan chan struct{}
	running  bool
}

// New creates a control loop. adapterFactory builds the Adapter used to
// read each configured sensor; it is called once per sensor per cycle so
// hardware swaps take effect without a restart.
func New(opts Options, provider Provider, adapterFactory func(SensorConfig) sensor.Adapter,
	tracker *dli.Tracker, analyzer *capability.Analyzer, engine *decision.Engine,
	relays *relay.Controller, bus *pubsub.PubSub) *Loop {
	if opts.CycleInterval <= 0 {
		opts.CycleInterval = 10 * time.Second
	}
	if opts.SensorReadTimeout <= 0 {
		opts.SensorReadTimeout = 2 * time.Second
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.EstimatorParams == (estimator.Params{}) {
		opts.EstimatorParams = estimator.DefaultParams()
	}
	return &Loop{
		opts:      opts,
		provider:  provider,
		adapters:  adapterFactory,
		estimator: estimator.New(opts.EstimatorParams),
		tracker:   tracker,
		analyzer:  analyzer,
		engine:    engine,
		relays:    relays,
		bus:       bus,
		stopChan:  make(chan struct{}),
	}
}

// Snapshot returns the most recent completed cycle, or nil before the
// first cycle finishes.
func (l *Loop) Snapshot() *Snapshot {
	return l.snapshot.Load()
}

// Start begins the cycle loop.
func (l *Loop) Start(ctx context.Context) {
	l.mu.Lock()
	if l.running {
		l.mu.Unlock()
		return
	}
	l.running = true
	l.mu.Unlock()

	go l.run(ctx)
}

// Stop halts the cycle loop.
func (l *Loop) Stop() {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		return
	}
	l.running = false
	close(l.stopChan)
	l.mu.Unlock()
}

func (l *Loop) run(ctx context.Context) {
	ticker := time.NewTicker(l.opts.CycleInterval)
	defer ticker.Stop()

	// First cycle immediately rather than waiting a full interval.
	if err := l.RunCycle(ctx); err != nil {
		log.Printf("Control cycle failed: %v", err)
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-l.stopChan:
			return
		case <-ticker.C:
			if err := l.RunCycle(ctx); err != nil {
				log.Printf("Control cycle failed: %v", err)
			}
		}
	}
}

// RunCycle executes one full pass: read sensors, fuse and estimate,
// accumulate DLI, classify capability, optimize and decide, arbitrate the
// power budget, actuate relays, and publish the new snapshot.
func (l *Loop) RunCycle(ctx context.Context) error {
	now := l.opts.Clock()

	zones, err := l.provider.LoadZones(ctx)
	if err != nil {
		return fmt.Errorf("load zones: %w", err)
	}
	sensors, err := l.provider.LoadSensors(ctx)
	if err != nil {
		return fmt.Errorf("load sensors: %w", err)
	}
	overrides, err := l.provider.LoadOverrides(ctx)
	if err != nil {
		return fmt.Errorf("load overrides: %w", err)
	}
	tier, tierMult, err := l.provider.TierFor(ctx, now)
	if err != nil {
		log.Printf("Energy tier lookup failed, assuming standard: %v", err)
		tier, tierMult = decision.TierStandard, 0
	}
	emergency, err := l.provider.EmergencyStop(ctx)
	if err != nil {
		log.Printf("Emergency stop lookup failed: %v", err)
		emergency = false
	}

	// Configuration may have changed since the last cycle.
	l.analyzer.Invalidate()

	states, typeBySensor := l.readSensors(ctx, sensors)

	snap := &Snapshot{
		Version:        l.version.Add(1),
		TakenAt:        now,
		Tier:           tier,
		TierMultiplier: tierMult,
		Emergency:      emergency,
		Zones:          make(map[string]ZoneSnapshot, len(zones)),
	}

	decisions := make([]*decision.Decision, 0, len(zones))
	priorities := make(map[string]float64, len(zones))
	byZone := make(map[string]ZoneConfig, len(zones))

	for _, zc := range zones {
		byZone[zc.ZoneKey] = zc
		priorities[zc.ZoneKey] = zc.Priority

		est := l.estimator.EstimateZone(zc.ZoneKey, float64(zc.Row), float64(zc.Col), states, now)
		zs := ZoneSnapshot{ZoneKey: zc.ZoneKey, Valid: est.Valid, Estimate: est}

		var ambientLux float64
		if est.Valid && est.Spectrum != nil {
			ambientLux = est.Spectrum.Illuminance
			l.tracker.AddReading(zc.ZoneKey, est.Spectrum.PARFlux, l.opts.CycleInterval)
		}
		zs.DLI = l.tracker.GetProgress(zc.ZoneKey, zc.Target.TargetDLI)

		zoneCap := capability.ZoneCapability{
			ZoneKey:     zc.ZoneKey,
			SensorTypes: contributingTypes(est, typeBySensor),
			Fixtures:    zc.Fixtures,
		}
		strategy := l.analyzer.Analyze(zoneCap)
		zs.Strategy = strategy

		d, err := l.engine.Decide(decision.Inputs{
			Now:                now,
			Target:             zc.Target,
			Strategy:           strategy,
			Fixtures:           zc.Fixtures,
			ZoneValid:          est.Valid,
			AmbientLux:         ambientLux,
			DLI:                zs.DLI,
			Tier:               tier,
			TierCostMultiplier: tierMult,
			Override:           overrides[zc.ZoneKey],
			Emergency:          emergency,
		})
		if err != nil {
			// Fatal for this zone this cycle; retried against the
			// latest config next cycle.
			log.Printf("Zone %s decision failed: %v", zc.ZoneKey, err)
			snap.Zones[zc.ZoneKey] = zs
			continue
		}
		zs.Decision = d
		decisions = append(decisions, d)
		snap.Zones[zc.ZoneKey] = zs
	}

	l.engine.ArbitrateBudget(decisions, priorities)

	for _, d := range decisions {
		zc := byZone[d.ZoneKey]
		if err := l.actuate(ctx, zc, d); err != nil {
			log.Printf("Zone %s actuation failed: %v", d.ZoneKey, err)
		}
		snap.TotalPowerWatts += d.PowerWatts

		zs := snap.Zones[d.ZoneKey]
		zs.Decision = d
		snap.Zones[d.ZoneKey] = zs
	}

	l.snapshot.Store(snap)
	l.publish(snap)
	return nil
}

// readSensors polls every configured sensor under the read timeout, fuses
// raw readings to the canonical bins, and returns per-sensor states for
// the estimator. Sensors that fail to read or fuse are left out, which
// invalidates zones with no other coverage.
func (l *Loop) readSensors(ctx context.Context, sensors []SensorConfig) ([]estimator.SensorState, map[string]spectrum.SensorType) {
	states := make([]estimator.SensorState, 0, len(sensors))
	types := make(map[string]spectrum.SensorType, len(sensors))

	for _, sc := range sensors {
		types[sc.ID] = sc.Type
		adapter := l.adapters(sc)
		if adapter == nil {
			continue
		}

		readCtx, cancel := context.WithTimeout(ctx, l.opts.SensorReadTimeout)
		reading, err := adapter.Read(readCtx)
		cancel()
		if err != nil {
			if err != sensor.ErrNoReading {
				log.Printf("Sensor %s read failed: %v", sc.ID, err)
			}
			continue
		}

		fused, err := spectrum.MapSensorToBins(reading, sc.Calibration)
		if err != nil {
			log.Printf("Sensor %s fusion failed: %v", sc.ID, err)
			continue
		}
		x, y := adapter.Position()
		states = append(states, estimator.SensorState{
			SensorID: sc.ID,
			X:        x,
			Y:        y,
			Spectrum: fused,
			ReadAt:   reading.TakenAt,
		})
	}
	return states, types
}

func (l *Loop) actuate(ctx context.Context, zc ZoneConfig, d *decision.Decision) error {
	if l.relays == nil || d.Result == nil {
		return nil
	}
	commands := make([]relay.FixtureCommand, 0, len(d.Result.Settings))
	for _, s := range d.Result.Settings {
		commands = append(commands, relay.FixtureCommand{
			FixtureID:    s.FixtureID,
			On:           s.On,
			IntensityPct: s.IntensityPct,
		})
	}
	return l.relays.Apply(ctx, commands)
}

func (l *Loop) publish(snap *Snapshot) {
	if l.bus == nil {
		return
	}
	l.bus.PublishAll(pubsub.TopicSnapshotUpdated, snap)
	for key, zs := range snap.Zones {
		l.bus.Publish(pubsub.TopicZoneUpdated, key, zs)
		if zs.Decision != nil {
			l.bus.Publish(pubsub.TopicDecisionMade, key, zs.Decision)
		}
		l.bus.Publish(pubsub.TopicDLIUpdated, key, zs.DLI)
	}
}

// contributingTypes maps the estimate's contributing sensors back to their
// hardware types for capability classification.
func contributingTypes(est estimator.ZoneState, types map[string]spectrum.SensorType) []spectrum.SensorType {
	seen := make(map[spectrum.SensorType]bool)
	var out []spectrum.SensorType
	for _, c := range est.Contributors {
		t, ok := types[c.SensorID]
		if !ok || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}
