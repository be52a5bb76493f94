// Package capability classifies each zone's sensing and actuation hardware
// into an optimization strategy.
package capability

import (
	"sync"

	"github.com/growmesh/growlights-go/internal/services/spectrum"
)

// Strategy is the optimization approach a zone's hardware supports.
type Strategy string

const (
	StrategyFullSpectrum   Strategy = "FULL_SPECTRUM"
	StrategyBasicColor     Strategy = "BASIC_COLOR"
	StrategyIntensityOnly  Strategy = "INTENSITY_ONLY"
	StrategyBestEffort     Strategy = "BEST_EFFORT"
	StrategyManualFallback Strategy = "MANUAL_FALLBACK"
)

// FixtureCapability describes one fixture's controllable surface.
type FixtureCapability struct {
	FixtureID     string
	ZoneKey       string
	ChannelCount  int
	Dimmable      bool
	ColorCapable  bool
	MaxPowerWatts float64
	MaxPPFD       float64 // μmol·m⁻²·s⁻¹ at full output
	RelayGroup    string  // empty for an individually switched fixture
}

// ZoneCapability is a snapshot of one zone's hardware.
type ZoneCapability struct {
	ZoneKey     string
	SensorTypes []spectrum.SensorType
	Fixtures    []FixtureCapability
}

// HasLightSensor reports whether any sensor measures intensity at all.
func (z ZoneCapability) HasLightSensor() bool {
	return len(z.SensorTypes) > 0
}

// HasSpectralSensor reports per-channel spectral sensing.
func (z ZoneCapability) HasSpectralSensor() bool {
	for _, t := range z.SensorTypes {
		if spectrum.IsSpectralSensor(t) {
			return true
		}
	}
	return false
}

// HasColorSensor reports broad color-band sensing.
func (z ZoneCapability) HasColorSensor() bool {
	for _, t := range z.SensorTypes {
		if spectrum.IsColorSensor(t) {
			return true
		}
	}
	return false
}

// HasColorFixture reports a fixture with independent color channels.
func (z ZoneCapability) HasColorFixture() bool {
	for _, f := range z.Fixtures {
		if f.ColorCapable {
			return true
		}
	}
	return false
}

// HasDimmableFixture reports a fixture with continuous intensity control.
func (z ZoneCapability) HasDimmableFixture() bool {
	for _, f := range z.Fixtures {
		if f.Dimmable {
			return true
		}
	}
	return false
}

// Analyzer caches strategy classification per zone. Classification is
// stateless given a capability snapshot, so the cache must be invalidated
// whenever hardware configuration changes.
type Analyzer struct {
	mu    sync.Mutex
	cache map[string]Strategy
}

// NewAnalyzer creates an analyzer with an empty cache.
func NewAnalyzer() *Analyzer {
	return &Analyzer{cache: make(map[string]Strategy)}
}

// Analyze returns the strategy for a zone, using the cached value when the
// zone has been classified since the last invalidation.
func (a *Analyzer) Analyze(zone ZoneCapability) Strategy {
	a.mu.Lock()
	defer a.mu.Unlock()

	if s, ok := a.cache[zone.ZoneKey]; ok {
		return s
	}
	s := Classify(zone)
	a.cache[zone.ZoneKey] = s
	return s
}

// Invalidate clears the cache. Call on any configuration change.
func (a *Analyzer) Invalidate() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cache = make(map[string]Strategy)
}

// Classify applies the fixed decision table over (spectral sensor, color
// sensor, color-capable fixture, dimmable fixture).
func Classify(zone ZoneCapability) Strategy {
	if len(zone.Fixtures) == 0 || !zone.HasLightSensor() {
		return StrategyManualFallback
	}
	switch {
	case zone.HasSpectralSensor() && zone.HasColorFixture():
		return StrategyFullSpectrum
	case zone.HasColorSensor() && zone.HasColorFixture():
		return StrategyBasicColor
	case zone.HasDimmableFixture():
		return StrategyIntensityOnly
	default:
		return StrategyBestEffort
	}
}
