package controlloop

import (
	"context"
	"testing"
	"time"

	"github.com/growmesh/growlights-go/internal/services/capability"
	"github.com/growmesh/growlights-go/internal/services/decision"
	"github.com/growmesh/growlights-go/internal/services/dli"
	"github.com/growmesh/growlights-go/internal/services/optimizer"
	"github.com/growmesh/growlights-go/internal/services/pubsub"
	"github.com/growmesh/growlights-go/internal/services/relay"
	"github.com/growmesh/growlights-go/internal/services/sensor"
	"github.com/growmesh/growlights-go/internal/services/spectrum"
)

// staticProvider serves a fixed configuration.
type staticProvider struct {
	zones     []ZoneConfig
	sensors   []SensorConfig
	tier      decision.EnergyTier
	emergency bool
}

func (p *staticProvider) LoadZones(ctx context.Context) ([]ZoneConfig, error) { return p.zones, nil }
func (p *staticProvider) LoadSensors(ctx context.Context) ([]SensorConfig, error) {
	return p.sensors, nil
}
func (p *staticProvider) LoadOverrides(ctx context.Context) (map[string]*decision.Override, error) {
	return nil, nil
}
func (p *staticProvider) TierFor(ctx context.Context, now time.Time) (decision.EnergyTier, float64, error) {
	return p.tier, decision.TierMultiplier(p.tier), nil
}
func (p *staticProvider) EmergencyStop(ctx context.Context) (bool, error) {
	return p.emergency, nil
}

// stubAdapter returns a fixed broadband reading, or no data at all.
type stubAdapter struct {
	id   string
	x, y float64
	raw  float64
	dead bool
}

func (a *stubAdapter) ID() string                   { return a.id }
func (a *stubAdapter) Position() (float64, float64) { return a.x, a.y }

func (a *stubAdapter) Read(ctx context.Context) (spectrum.Reading, error) {
	if a.dead {
		return spectrum.Reading{}, sensor.ErrNoReading
	}
	return spectrum.Reading{
		SensorID:          a.id,
		Type:              spectrum.SensorBH1750,
		Channels:          map[string]float64{"broadband": a.raw},
		Gain:              1,
		IntegrationTimeMs: 1,
		Lux:               a.raw / 10,
		TakenAt:           time.Now(),
	}, nil
}

func testLoop(provider Provider, factory func(SensorConfig) sensor.Adapter) *Loop {
	clock := func() time.Time {
		return time.Date(2025, 6, 10, 12, 0, 0, 0, time.Local)
	}
	tracker := dli.NewTracker(nil, nil, 30)
	return New(Options{
		CycleInterval: 10 * time.Second,
		Clock:         clock,
	}, provider, factory, tracker, capability.NewAnalyzer(), decision.NewEngine(0, 0),
		relay.NewController(relay.NewLogActuator(), nil), pubsub.New())
}

func testZone() ZoneConfig {
	return ZoneConfig{
		ZoneKey: "0-0",
		Row:     0,
		Col:     0,
		Fixtures: []capability.FixtureCapability{
			{FixtureID: "f1", ZoneKey: "0-0", Dimmable: true, MaxPPFD: 400, MaxPowerWatts: 100},
		},
		Target: optimizer.ZoneTarget{
			ZoneKey:    "0-0",
			TargetPAR:  200,
			TargetDLI:  12,
			LightStart: "06:00",
			LightEnd:   "22:00",
		},
		Priority: 1,
	}
}

func TestRunCycleProducesVersionedSnapshots(t *testing.T) {
	provider := &staticProvider{
		zones:   []ZoneConfig{testZone()},
		sensors: []SensorConfig{{ID: "s1", Type: spectrum.SensorBH1750, X: 0, Y: 0, Calibration: 1}},
		tier:    decision.TierOffPeak,
	}
	factory := func(sc SensorConfig) sensor.Adapter {
		return &stubAdapter{id: sc.ID, x: sc.X, y: sc.Y, raw: 1000}
	}
	loop := testLoop(provider, factory)

	if loop.Snapshot() != nil {
		t.Fatal("Snapshot should be nil before the first cycle")
	}

	if err := loop.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle() error: %v", err)
	}
	first := loop.Snapshot()
	if first == nil {
		t.Fatal("Snapshot missing after a cycle")
	}
	if first.Version != 1 {
		t.Errorf("Version = %d, want 1", first.Version)
	}

	zone, ok := first.Zones["0-0"]
	if !ok {
		t.Fatal("Zone 0-0 missing from snapshot")
	}
	if !zone.Valid {
		t.Error("Zone should be valid with an in-range sensor")
	}
	if zone.Strategy != capability.StrategyIntensityOnly {
		t.Errorf("Strategy = %v, want %v", zone.Strategy, capability.StrategyIntensityOnly)
	}
	if zone.Decision == nil || !zone.Decision.Result.Settings["f1"].On {
		t.Error("Fixture should be commanded on at noon inside the window")
	}
	if zone.DLI.CurrentDLI <= 0 {
		t.Error("DLI should accumulate on a valid cycle")
	}

	if first.Zones["0-0"].Decision.State != decision.StateRampingOn {
		t.Errorf("First-cycle state = %v, want %v", first.Zones["0-0"].Decision.State, decision.StateRampingOn)
	}

	if err := loop.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle() error: %v", err)
	}
	second := loop.Snapshot()
	if second.Version != 2 {
		t.Errorf("Version = %d, want 2", second.Version)
	}
	if second == first {
		t.Error("Each cycle must produce a fresh snapshot value")
	}
	// The ramp started on the first cycle completes on the second.
	if second.Zones["0-0"].Decision.State != decision.StateOn {
		t.Errorf("Second-cycle state = %v, want %v", second.Zones["0-0"].Decision.State, decision.StateOn)
	}
}

// An active emergency stop forces every zone off, and the hold persists
// after the stop is lifted until it is explicitly cleared.
func TestRunCycleEmergencyStop(t *testing.T) {
	provider := &staticProvider{
		zones:     []ZoneConfig{testZone()},
		sensors:   []SensorConfig{{ID: "s1", Type: spectrum.SensorBH1750, X: 0, Y: 0, Calibration: 1}},
		tier:      decision.TierOffPeak,
		emergency: true,
	}
	factory := func(sc SensorConfig) sensor.Adapter {
		return &stubAdapter{id: sc.ID, x: sc.X, y: sc.Y, raw: 1000}
	}
	loop := testLoop(provider, factory)

	if err := loop.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle() error: %v", err)
	}
	snap := loop.Snapshot()
	if !snap.Emergency {
		t.Error("Snapshot should record the active emergency stop")
	}
	zone := snap.Zones["0-0"]
	if zone.Decision.State != decision.StateForcedOff {
		t.Errorf("State = %v, want %v under emergency", zone.Decision.State, decision.StateForcedOff)
	}
	for _, s := range zone.Decision.Result.Settings {
		if s.On {
			t.Error("All fixtures must be off under emergency")
		}
	}

	provider.emergency = false
	if err := loop.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle() error: %v", err)
	}
	zone = loop.Snapshot().Zones["0-0"]
	if zone.Decision.State != decision.StateForcedOff {
		t.Errorf("State = %v, want %v until explicitly cleared", zone.Decision.State, decision.StateForcedOff)
	}
}

// A malformed photoperiod window is fatal for that zone's decision this
// cycle: the zone appears in the snapshot without a decision instead of
// being lit around the clock.
func TestRunCycleMalformedTarget(t *testing.T) {
	zone := testZone()
	zone.Target.LightStart = "25:99"
	zone.Target.LightEnd = "zz:zz"
	provider := &staticProvider{
		zones:   []ZoneConfig{zone},
		sensors: []SensorConfig{{ID: "s1", Type: spectrum.SensorBH1750, X: 0, Y: 0, Calibration: 1}},
		tier:    decision.TierOffPeak,
	}
	factory := func(sc SensorConfig) sensor.Adapter {
		return &stubAdapter{id: sc.ID, x: sc.X, y: sc.Y, raw: 1000}
	}
	loop := testLoop(provider, factory)

	if err := loop.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle() error: %v", err)
	}
	zs, ok := loop.Snapshot().Zones["0-0"]
	if !ok {
		t.Fatal("Zone must still appear in the snapshot")
	}
	if zs.Decision != nil {
		t.Errorf("Decision = %+v, want none for a misconfigured zone", zs.Decision)
	}
}

// A sensor with no data invalidates zones that have no other coverage; the
// zone still gets a decision, running open loop.
func TestRunCycleSensorOutage(t *testing.T) {
	provider := &staticProvider{
		zones:   []ZoneConfig{testZone()},
		sensors: []SensorConfig{{ID: "s1", Type: spectrum.SensorBH1750, X: 0, Y: 0, Calibration: 1}},
		tier:    decision.TierOffPeak,
	}
	factory := func(sc SensorConfig) sensor.Adapter {
		return &stubAdapter{id: sc.ID, x: sc.X, y: sc.Y, dead: true}
	}
	loop := testLoop(provider, factory)

	if err := loop.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle() error: %v", err)
	}
	zone := loop.Snapshot().Zones["0-0"]
	if zone.Valid {
		t.Error("Zone should be invalid with no readable sensor")
	}
	if zone.Estimate.Spectrum != nil {
		t.Error("Invalid zone must carry a nil spectrum")
	}
	if zone.Decision == nil {
		t.Fatal("Zone should still receive a decision")
	}
	if zone.DLI.CurrentDLI != 0 {
		t.Error("DLI must not accumulate from an invalid estimate")
	}
}

func TestSnapshotPublished(t *testing.T) {
	provider := &staticProvider{
		zones:   []ZoneConfig{testZone()},
		sensors: []SensorConfig{{ID: "s1", Type: spectrum.SensorBH1750, X: 0, Y: 0, Calibration: 1}},
		tier:    decision.TierOffPeak,
	}
	factory := func(sc SensorConfig) sensor.Adapter {
		return &stubAdapter{id: sc.ID, x: sc.X, y: sc.Y, raw: 500}
	}
	loop := testLoop(provider, factory)

	sub := loop.bus.Subscribe(pubsub.TopicSnapshotUpdated, "", 2)
	defer loop.bus.Unsubscribe(sub)

	if err := loop.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle() error: %v", err)
	}

	select {
	case msg := <-sub.Channel:
		snap, ok := msg.(*Snapshot)
		if !ok {
			t.Fatalf("Published message type = %T, want *Snapshot", msg)
		}
		if snap.Version != 1 {
			t.Errorf("Published version = %d, want 1", snap.Version)
		}
	default:
		t.Fatal("Snapshot should have been published")
	}
}
