// Package estimator combines fused sensor spectra, weighted by spatial
// distance, into per-zone spectra and scalar summaries for every cell of
// the growing grid.
package estimator

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/growmesh/growlights-go/internal/services/spectrum"
)

// Params controls spatial estimation.
type Params struct {
	// IDWExponent is the inverse-distance weighting power p (default 2.0).
	IDWExponent float64
	// MaxRange is the maximum sensor influence distance in grid units; a
	// zone with no sensor within range is marked invalid.
	MaxRange float64
	// NearestCap bounds how many sensors contribute to one zone.
	NearestCap int
	// DistanceFloor clamps near-zero distances so a co-located sensor is
	// used directly at the floor distance instead of causing a singularity.
	DistanceFloor float64
}

// DefaultParams returns the standard estimation parameters.
func DefaultParams() Params {
	return Params{
		IDWExponent:   2.0,
		MaxRange:      30.0,
		NearestCap:    4,
		DistanceFloor: 0.1,
	}
}

// SensorState is one sensor's latest fused spectrum and position.
type SensorState struct {
	SensorID string
	X, Y     float64
	Spectrum *spectrum.FusedSpectrum
	ReadAt   time.Time
}

// Contribution records one sensor's influence on a zone estimate.
type Contribution struct {
	SensorID string
	Distance float64
	Weight   float64
}

// ZoneState is the per-zone estimation result for one cycle. When Valid is
// false no usable sensor lies within range and the numeric fields are
// withheld (nil spectrum), never zeroed or fabricated.
type ZoneState struct {
	ZoneKey      string
	Valid        bool
	Spectrum     *spectrum.FusedSpectrum
	Contributors []Contribution
	UpdatedAt    time.Time
}

// Estimator computes per-zone light estimates from sparse sensors.
type Estimator struct {
	params Params
}

// New creates an estimator with the given parameters.
func New(params Params) *Estimator {
	if params.IDWExponent <= 0 {
		params.IDWExponent = 2.0
	}
	if params.DistanceFloor <= 0 {
		params.DistanceFloor = 0.1
	}
	if params.NearestCap <= 0 {
		params.NearestCap = 4
	}
	return &Estimator{params: params}
}

// Attenuation is the single-sensor intensity falloff 1/(d^2+1). The +1 term
// prevents over-amplification at near-zero distances.
func Attenuation(distance float64) float64 {
	return 1.0 / (distance*distance + 1.0)
}

// ParseZoneKey converts a "row-col" zone key into grid coordinates.
func ParseZoneKey(key string) (x, y float64, err error) {
	var row, col float64
	if _, err := fmt.Sscanf(key, "%f-%f", &row, &col); err != nil {
		return 0, 0, fmt.Errorf("malformed zone key %q: %w", key, err)
	}
	return row, col, nil
}

// EstimateZone combines the available sensors into a per-zone estimate at
// grid position (x, y). With a single sensor, every zone receives the
// sensor's spectrum scaled by 1/(d^2+1): one sensor cannot observe spectral
// variation across zones, only intensity falloff. With multiple sensors,
// per-bin values are the inverse-distance-weighted average of up to
// NearestCap sensors within MaxRange.
func (e *Estimator) EstimateZone(zoneKey string, x, y float64, sensors []SensorState, now time.Time) ZoneState {
	usable := make([]candidate, 0, len(sensors))
	for _, s := range sensors {
		if s.Spectrum == nil {
			continue
		}
		d := math.Hypot(x-s.X, y-s.Y)
		if d < e.params.DistanceFloor {
			d = e.params.DistanceFloor
		}
		if d > e.params.MaxRange {
			continue
		}
		usable = append(usable, candidate{state: s, distance: d})
	}

	if len(usable) == 0 {
		return ZoneState{ZoneKey: zoneKey, Valid: false, UpdatedAt: now}
	}

	if len(usable) == 1 {
		return e.singleSensor(zoneKey, usable[0], now)
	}
	return e.multiSensor(zoneKey, usable, now)
}

type candidate struct {
	state    SensorState
	distance float64
}

func (e *Estimator) singleSensor(zoneKey string, c candidate, now time.Time) ZoneState {
	atten := Attenuation(c.distance)
	src := c.state.Spectrum

	intensities := make([]float64, len(src.Intensities))
	for i, v := range src.Intensities {
		intensities[i] = v * atten
	}

	return ZoneState{
		ZoneKey: zoneKey,
		Valid:   true,
		Spectrum: &spectrum.FusedSpectrum{
			Intensities: intensities,
			Illuminance: src.Illuminance * atten,
			PARFlux:     parFlux(intensities),
			ColorTempK:  src.ColorTempK,
		},
		Contributors: []Contribution{{
			SensorID: c.state.SensorID,
			Distance: c.distance,
			Weight:   atten,
		}},
		UpdatedAt: now,
	}
}

func (e *Estimator) multiSensor(zoneKey string, candidates []candidate, now time.Time) ZoneState {
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].distance < candidates[j].distance
	})
	if len(candidates) > e.params.NearestCap {
		candidates = candidates[:e.params.NearestCap]
	}

	var totalWeight float64
	contributors := make([]Contribution, 0, len(candidates))
	for _, c := range candidates {
		w := 1.0 / math.Pow(c.distance, e.params.IDWExponent)
		totalWeight += w
		contributors = append(contributors, Contribution{
			SensorID: c.state.SensorID,
			Distance: c.distance,
			Weight:   w,
		})
	}

	intensities := make([]float64, spectrum.BinCount())
	var lux, cct, cctWeight float64
	for i, c := range candidates {
		w := contributors[i].Weight / totalWeight
		for bi, v := range c.state.Spectrum.Intensities {
			intensities[bi] += v * w
		}
		lux += c.state.Spectrum.Illuminance * w
		if c.state.Spectrum.ColorTempK > 0 {
			cct += c.state.Spectrum.ColorTempK * w
			cctWeight += w
		}
	}
	if cctWeight > 0 {
		cct /= cctWeight
	}

	return ZoneState{
		ZoneKey: zoneKey,
		Valid:   true,
		Spectrum: &spectrum.FusedSpectrum{
			Intensities: intensities,
			Illuminance: lux,
			PARFlux:     parFlux(intensities),
			ColorTempK:  cct,
		},
		Contributors: contributors,
		UpdatedAt:    now,
	}
}

// parFlux sums the bin values whose midpoints fall in the 400-700nm band.
func parFlux(intensities []float64) float64 {
	var flux float64
	for i, b := range spectrum.Bins() {
		if i < len(intensities) && spectrum.IsPARBin(b) {
			flux += intensities[i]
		}
	}
	return flux
}
