package spectrum

import (
	"fmt"
	"log"
	"math"
	"time"
)

// Reading is an immutable snapshot of one sensor poll: raw channel counts
// plus the exposure settings needed to normalize them, and any values the
// sensor computed itself (lux, color temperature).
type Reading struct {
	SensorID string
	Type     SensorType

	// Raw channel counts keyed by channel name. A channel missing from the
	// map contributes zero; it never fails the reading.
	Channels map[string]float64

	// Exposure settings. Identical incident light must yield identical
	// normalized values regardless of auto-exposure, so raw counts are
	// divided by Gain * IntegrationTimeMs before mapping.
	Gain              float64
	IntegrationTimeMs float64

	// Sensor-computed derived values, passed through unmodified.
	Lux        float64
	ColorTempK float64

	TakenAt time.Time
}

// FusedSpectrum is a reading mapped onto the canonical bins, with scalar
// summaries. Total bin energy equals total input magnitude within floating
// tolerance.
type FusedSpectrum struct {
	Intensities []float64 // length == BinCount()
	Illuminance float64   // carried through from the sensor, not recomputed
	PARFlux     float64   // sum of PAR-band bin values
	ColorTempK  float64
}

// ConfigurationError reports an entity that cannot be processed under the
// current configuration. It is fatal for that entity this cycle and retried
// against the latest config next cycle.
type ConfigurationError struct {
	Entity string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error for %s: %s", e.Entity, e.Reason)
}

// MapSensorToBins normalizes a reading's raw channels and distributes them
// across the canonical wavelength bins. calibration converts relative units
// to absolute units; a non-finite or non-positive factor is clamped to 1.0
// with a warning.
func MapSensorToBins(r Reading, calibration float64) (*FusedSpectrum, error) {
	cm, ok := channelMap(r.Type)
	if !ok {
		return nil, &ConfigurationError{
			Entity: r.SensorID,
			Reason: fmt.Sprintf("unknown sensor type %q", r.Type),
		}
	}

	if !isFinitePositive(calibration) {
		log.Printf("Warning: sensor %s has invalid calibration factor %v, clamping to 1.0", r.SensorID, calibration)
		calibration = 1.0
	}

	norm := r.Gain * r.IntegrationTimeMs
	if norm <= 0 {
		norm = 1.0
	}

	bins := Bins()
	intensities := make([]float64, len(bins))

	for name, resp := range cm {
		raw, ok := r.Channels[name]
		if !ok || raw <= 0 {
			continue // partial spectral coverage is represented as zero bins
		}
		magnitude := raw / norm

		contrib := distribute(resp, bins)
		// Rescale so the bin sum exactly equals the channel magnitude,
		// correcting discretization error for both mapping shapes.
		var sum float64
		for _, c := range contrib {
			sum += c
		}
		if sum <= 0 {
			continue
		}
		scale := magnitude / sum
		for i, c := range contrib {
			intensities[i] += c * scale
		}
	}

	var parFlux float64
	for i, b := range bins {
		intensities[i] *= calibration
		if IsPARBin(b) {
			parFlux += intensities[i]
		}
	}

	return &FusedSpectrum{
		Intensities: intensities,
		Illuminance: r.Lux,
		PARFlux:     parFlux,
		ColorTempK:  r.ColorTempK,
	}, nil
}

// distribute spreads a unit channel across the bins according to its
// response shape. The result is unnormalized; callers rescale it to the
// channel magnitude.
func distribute(resp ChannelResponse, bins []WavelengthBin) []float64 {
	contrib := make([]float64, len(bins))
	switch resp.Shape {
	case ResponseBand:
		for i, b := range bins {
			lo := math.Max(resp.LoNm, b.LoNm)
			hi := math.Min(resp.HiNm, b.HiNm)
			if hi > lo {
				contrib[i] = hi - lo
			}
		}
	case ResponseGaussian:
		// Closed-form Gaussian integral over each bin via the error
		// function; sigma from FWHM = 2*sqrt(2*ln2)*sigma.
		sigma := resp.FWHMNm / (2 * math.Sqrt(2*math.Ln2))
		for i, b := range bins {
			contrib[i] = gaussianCDF(b.HiNm, resp.CenterNm, sigma) - gaussianCDF(b.LoNm, resp.CenterNm, sigma)
		}
	}
	return contrib
}

func gaussianCDF(x, mu, sigma float64) float64 {
	return 0.5 * (1 + math.Erf((x-mu)/(sigma*math.Sqrt2)))
}

func isFinitePositive(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v > 0
}
