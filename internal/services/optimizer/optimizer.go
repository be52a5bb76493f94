// Package optimizer computes per-fixture settings approximating a zone's
// target spectral/intensity profile under fixture and relay-group
// constraints, adapting its approach to the zone's classified strategy.
package optimizer

import (
	"fmt"
	"math"
	"sort"

	"github.com/growmesh/growlights-go/internal/services/capability"
)

// ZoneTarget is the crop-driven lighting goal for one zone.
type ZoneTarget struct {
	ZoneKey     string
	CropType    string
	GrowthStage string

	TargetDLI float64
	TargetPAR float64 // μmol·m⁻²·s⁻¹

	// SpectrumRatios are target channel fractions (percent) keyed by band
	// name ("blue", "green", "red"). Nil when the crop has no color target.
	SpectrumRatios map[string]float64

	PriorityWeight float64
	FallbackPAR    float64 // used when the primary target cannot be resolved

	// Photoperiod window, "HH:MM" local time.
	LightStart string
	LightEnd   string
}

// FixtureSetting is the commanded output for one fixture.
type FixtureSetting struct {
	FixtureID    string
	On           bool
	IntensityPct float64
	// ChannelLevels are per-band output percents for color-capable
	// fixtures; nil otherwise.
	ChannelLevels map[string]float64
}

// Result is the optimization outcome for one zone. BestEffort never fails
// for an imperfect match: the closest achievable approximation is returned
// with its deviation. Errors are reserved for missing capability data.
type Result struct {
	ZoneKey      string
	Strategy     capability.Strategy
	Settings     map[string]FixtureSetting
	PredictedPAR float64
	PowerWatts   float64
	Deviation    float64 // normalized; 0 is a perfect match
	Confidence   float64 // in [0,1]
	Limitations  []string
}

// Priority weights for the weighted squared deviation objective.
const (
	intensityPriority = 1.0
	colorPriority     = 0.8
)

// Optimize computes fixture settings for a zone target under the given
// strategy. Relay-group members always receive an identical on/off state,
// resolved with OR-bias: the group is on if any member wants on.
func Optimize(target ZoneTarget, strategy capability.Strategy, fixtures []capability.FixtureCapability) (*Result, error) {
	if strategy == capability.StrategyManualFallback {
		return &Result{
			ZoneKey:     target.ZoneKey,
			Strategy:    strategy,
			Settings:    allOff(fixtures),
			Confidence:  0,
			Limitations: []string{"zone lacks controllable fixtures or light sensors"},
		}, nil
	}
	if len(fixtures) == 0 {
		return nil, fmt.Errorf("zone %s: no fixture capability data for strategy %s", target.ZoneKey, strategy)
	}

	targetPAR := target.TargetPAR
	if targetPAR <= 0 {
		targetPAR = target.FallbackPAR
	}

	var res *Result
	switch strategy {
	case capability.StrategyFullSpectrum, capability.StrategyBasicColor:
		res = optimizeSpectral(target, strategy, fixtures, targetPAR)
	case capability.StrategyIntensityOnly:
		res = optimizeIntensity(target, fixtures, targetPAR)
	default:
		res = optimizeBestEffort(target, fixtures, targetPAR)
	}

	resolveRelayGroups(res.Settings, fixtures)
	res.PredictedPAR, res.PowerWatts = predict(res.Settings, fixtures)
	res.Confidence = confidence(strategy, res.Deviation)
	return res, nil
}

// optimizeSpectral sets each color-capable fixture's channel levels to the
// target ratios scaled by the required intensity, then scores the weighted
// squared deviation of achieved vs target ratio and intensity.
func optimizeSpectral(target ZoneTarget, strategy capability.Strategy, fixtures []capability.FixtureCapability, targetPAR float64) *Result {
	settings := make(map[string]FixtureSetting, len(fixtures))
	capacity := totalCapacity(fixtures)
	needPct := clampPct(safeDiv(targetPAR, capacity) * 100)

	for _, f := range fixtures {
		s := FixtureSetting{FixtureID: f.FixtureID}
		if needPct > 0 {
			s.On = true
			if f.Dimmable {
				s.IntensityPct = needPct
			} else {
				s.IntensityPct = 100
			}
			if f.ColorCapable && len(target.SpectrumRatios) > 0 {
				s.ChannelLevels = make(map[string]float64, len(target.SpectrumRatios))
				for band, pct := range target.SpectrumRatios {
					s.ChannelLevels[band] = clampPct(pct / 100 * s.IntensityPct * bandScale(target.SpectrumRatios))
				}
			}
		}
		settings[f.FixtureID] = s
	}

	achieved, _ := predict(settings, fixtures)
	dev := intensityPriority * squaredRelError(achieved, targetPAR)
	dev += colorPriority * ratioDeviation(settings, fixtures, target.SpectrumRatios)

	res := &Result{
		ZoneKey:   target.ZoneKey,
		Strategy:  strategy,
		Settings:  settings,
		Deviation: dev,
	}
	if strategy == capability.StrategyBasicColor {
		res.Limitations = append(res.Limitations, "limited color resolution; ratio match is approximate")
	}
	return res
}

// optimizeIntensity allocates output across dimmable fixtures in descending
// flux-per-watt order so the zone reaches the target flux at minimum total
// power; it falls back to binary on/off for non-dimmable fixtures.
func optimizeIntensity(target ZoneTarget, fixtures []capability.FixtureCapability, targetPAR float64) *Result {
	settings := allOff(fixtures)

	ordered := make([]capability.FixtureCapability, len(fixtures))
	copy(ordered, fixtures)
	sort.SliceStable(ordered, func(i, j int) bool {
		return efficiency(ordered[i]) > efficiency(ordered[j])
	})

	remaining := targetPAR
	for _, f := range ordered {
		if remaining <= 0 {
			break
		}
		s := settings[f.FixtureID]
		switch {
		case f.Dimmable && f.MaxPPFD > 0:
			pct := clampPct(remaining / f.MaxPPFD * 100)
			s.On = pct > 0
			s.IntensityPct = pct
			remaining -= f.MaxPPFD * pct / 100
		case f.MaxPPFD > 0:
			s.On = true
			s.IntensityPct = 100
			remaining -= f.MaxPPFD
		}
		settings[f.FixtureID] = s
	}

	achieved, _ := predict(settings, fixtures)
	res := &Result{
		ZoneKey:   target.ZoneKey,
		Strategy:  capability.StrategyIntensityOnly,
		Settings:  settings,
		Deviation: intensityPriority * squaredRelError(achieved, targetPAR),
	}
	res.Limitations = append(res.Limitations, "no color control available; intensity matching only")
	return res
}

// optimizeBestEffort picks the binary fixture subset whose predicted flux is
// closest to the target, preferring lower total power among equal matches.
func optimizeBestEffort(target ZoneTarget, fixtures []capability.FixtureCapability, targetPAR float64) *Result {
	settings := allOff(fixtures)

	ordered := make([]capability.FixtureCapability, len(fixtures))
	copy(ordered, fixtures)
	// Power ascending, so equally close solutions settle on the cheaper set.
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].MaxPowerWatts < ordered[j].MaxPowerWatts
	})

	var achieved float64
	for _, f := range ordered {
		next := achieved + f.MaxPPFD
		if math.Abs(next-targetPAR) < math.Abs(achieved-targetPAR) {
			s := settings[f.FixtureID]
			s.On = true
			s.IntensityPct = 100
			settings[f.FixtureID] = s
			achieved = next
		}
	}

	res := &Result{
		ZoneKey:   target.ZoneKey,
		Strategy:  capability.StrategyBestEffort,
		Settings:  settings,
		Deviation: intensityPriority * squaredRelError(achieved, targetPAR),
	}
	res.Limitations = append(res.Limitations, "minimal sensing; heuristic subset selection")
	return res
}

// resolveRelayGroups enforces identical on/off state within each relay
// group. Safety-biased OR semantics: the shared output is on if at least
// one member requests on, and off only when all members request off.
func resolveRelayGroups(settings map[string]FixtureSetting, fixtures []capability.FixtureCapability) {
	groupOn := make(map[string]bool)
	for _, f := range fixtures {
		if f.RelayGroup == "" {
			continue
		}
		if settings[f.FixtureID].On {
			groupOn[f.RelayGroup] = true
		}
	}
	for _, f := range fixtures {
		if f.RelayGroup == "" || !groupOn[f.RelayGroup] {
			continue
		}
		s := settings[f.FixtureID]
		if !s.On {
			s.On = true
			if !f.Dimmable {
				s.IntensityPct = 100
			}
			settings[f.FixtureID] = s
		}
	}
}

// predict estimates zone flux and power draw for a settings map.
func predict(settings map[string]FixtureSetting, fixtures []capability.FixtureCapability) (par, watts float64) {
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

// ratioDeviation measures how far the commanded color mix is from the
// target ratios; fixtures without color channels count as an even mix.
func ratioDeviation(settings map[string]FixtureSetting, fixtures []capability.FixtureCapability, ratios map[string]float64) float64 {
	if len(ratios) == 0 {
		return 0
	}
	achieved := make(map[string]float64, len(ratios))
	var total float64
	for _, f := range fixtures {
		s := settings[f.FixtureID]
		if !s.On {
			continue
		}
		out := f.MaxPPFD * s.IntensityPct / 100
		if s.ChannelLevels != nil {
			var levelSum float64
			for _, lv := range s.ChannelLevels {
				levelSum += lv
			}
			for band, lv := range s.ChannelLevels {
				if levelSum > 0 {
					achieved[band] += out * lv / levelSum
				}
			}
		} else {
			for band := range ratios {
				achieved[band] += out / float64(len(ratios))
			}
		}
		total += out
	}
	if total <= 0 {
		return 1
	}

	var dev float64
	for band, wantPct := range ratios {
		got := achieved[band] / total * 100
		d := (got - wantPct) / 100
		dev += d * d
	}
	return dev
}

func confidence(strategy capability.Strategy, deviation float64) float64 {
	base := map[capability.Strategy]float64{
		capability.StrategyFullSpectrum:   0.9,
		capability.StrategyBasicColor:    0.7,
		capability.StrategyIntensityOnly: 0.5,
		capability.StrategyBestEffort:    0.3,
	}[strategy]
	penalty := math.Min(0.3, deviation*0.5)
	c := base - penalty
	if c < 0 {
		return 0
	}
	return c
}

func allOff(fixtures []capability.FixtureCapability) map[string]FixtureSetting {
	settings := make(map[string]FixtureSetting, len(fixtures))
	for _, f := range fixtures {
		settings[f.FixtureID] = FixtureSetting{FixtureID: f.FixtureID}
	}
	return settings
}

func totalCapacity(fixtures []capability.FixtureCapability) float64 {
	var c float64
	for _, f := range fixtures {
		c += f.MaxPPFD
	}
	return c
}

func efficiency(f capability.FixtureCapability) float64 {
	if f.MaxPowerWatts <= 0 {
		return f.MaxPPFD
	}
	return f.MaxPPFD / f.MaxPowerWatts
}

// bandScale normalizes ratio percents that do not sum to 100.
func bandScale(ratios map[string]float64) float64 {
	var sum float64
	for _, v := range ratios {
		sum += v
	}
	if sum <= 0 {
		return 1
	}
	return 100 / sum
}

func squaredRelError(got, want float64) float64 {
	if want <= 0 {
		if got <= 0 {
			return 0
		}
		return 1
	}
	d := (got - want) / want
	return d * d
}

func clampPct(v float64) float64 {
	return math.Max(0, math.Min(100, v))
}

func safeDiv(a, b float64) float64 {
	if b == 0 {
		return 0
	}
	return a / b
}
