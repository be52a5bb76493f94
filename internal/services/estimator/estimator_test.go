package estimator

import (
	"math"
	"testing"
	"time"

	"github.com/growmesh/growlights-go/internal/services/spectrum"
)

func fusedFromReading(t *testing.T, r spectrum.Reading, calibration float64) *spectrum.FusedSpectrum {
	t.Helper()
	fused, err := spectrum.MapSensorToBins(r, calibration)
	if err != nil {
		t.Fatalf("MapSensorToBins() error: %v", err)
	}
	return fused
}

func broadbandState(t *testing.T, id string, x, y, raw, calibration float64) SensorState {
	t.Helper()
	return SensorState{
		SensorID: id,
		X:        x,
		Y:        y,
		Spectrum: fusedFromReading(t, spectrum.Reading{
			SensorID:          id,
			Type:              spectrum.SensorBH1750,
			Channels:          map[string]float64{"broadband": raw},
			Gain:              1,
			IntegrationTimeMs: 1,
			Lux:               raw / 10,
		}, calibration),
		ReadAt: time.Now(),
	}
}

func TestAttenuation(t *testing.T) {
	tests := []struct {
		distance float64
		want     float64
	}{
		{0, 1.0},
		{0.1, 0.990099},
		{1, 0.5},
		{16.155, 0.003817},
	}
	for _, tt := range tests {
		if got := Attenuation(tt.distance); math.Abs(got-tt.want) > 1e-4 {
			t.Errorf("Attenuation(%v) = %v, want %v", tt.distance, got, tt.want)
		}
	}
}

func TestParseZoneKey(t *testing.T) {
	x, y, err := ParseZoneKey("15-6")
	if err != nil {
		t.Fatalf("ParseZoneKey() error: %v", err)
	}
	if x != 15 || y != 6 {
		t.Errorf("ParseZoneKey(\"15-6\") = (%v,%v), want (15,6)", x, y)
	}
	if _, _, err := ParseZoneKey("garbage"); err == nil {
		t.Error("ParseZoneKey(\"garbage\") should fail")
	}
}

// A zone with no sensor in range must be marked invalid with a nil
// spectrum, never zero-filled.
func TestValidityGating(t *testing.T) {
	e := New(DefaultParams())
	now := time.Now()

	state := e.EstimateZone("0-0", 0, 0, nil, now)
	if state.Valid {
		t.Error("Zone with no sensors should be invalid")
	}
	if state.Spectrum != nil {
		t.Error("Invalid zone must carry a nil spectrum")
	}

	// A sensor beyond MaxRange does not rescue the zone.
	far := broadbandState(t, "far-1", 100, 100, 5000, 1)
	state = e.EstimateZone("0-0", 0, 0, []SensorState{far}, now)
	if state.Valid {
		t.Error("Zone with only out-of-range sensors should be invalid")
	}
}

// With a single sensor every zone sees the sensor's spectrum scaled by the
// distance falloff; the sensor's own zone uses the clamped floor distance.
func TestSingleSensorAttenuation(t *testing.T) {
	e := New(DefaultParams())
	now := time.Now()
	s := broadbandState(t, "bh-1", 15, 6, 11420, 0.000051)

	sourceFlux := 11420 * 0.000051 // 0.58242

	own := e.EstimateZone("15-6", 15, 6, []SensorState{s}, now)
	if !own.Valid {
		t.Fatal("Own zone should be valid")
	}
	wantOwn := sourceFlux * Attenuation(0.1)
	if math.Abs(own.Spectrum.PARFlux-wantOwn) > 1e-6 {
		t.Errorf("Own-zone flux = %v, want %v", own.Spectrum.PARFlux, wantOwn)
	}

	corner := e.EstimateZone("0-0", 0, 0, []SensorState{s}, now)
	if !corner.Valid {
		t.Fatal("Corner zone should be valid (distance ~16.16 < 30)")
	}
	d := math.Hypot(15, 6) // sqrt(261) ~ 16.155
	wantCorner := sourceFlux * Attenuation(d)
	if math.Abs(corner.Spectrum.PARFlux-wantCorner) > 1e-6 {
		t.Errorf("Corner flux = %v, want %v", corner.Spectrum.PARFlux, wantCorner)
	}
	if wantCorner < 0.002 || wantCorner > 0.0025 {
		t.Errorf("Corner flux %v outside expected ~0.0022 range", wantCorner)
	}

	// Lux attenuates with distance but is never recomputed from bins.
	wantLux := 1142.0 * Attenuation(d)
	if math.Abs(corner.Spectrum.Illuminance-wantLux) > 1e-6 {
		t.Errorf("Corner lux = %v, want %v", corner.Spectrum.Illuminance, wantLux)
	}
}

// With multiple sensors the estimate is the inverse-distance-weighted
// average, not a sum: a zone between two sensors reads between them.
func TestMultiSensorIDW(t *testing.T) {
	e := New(DefaultParams())
	now := time.Now()

	near := broadbandState(t, "near", 1, 0, 1000, 1)   // distance 1
	farther := broadbandState(t, "far", 2, 0, 4000, 1) // distance 2

	state := e.EstimateZone("0-0", 0, 0, []SensorState{near, farther}, now)
	if !state.Valid {
		t.Fatal("Zone should be valid")
	}

	// Weights: 1/1^2 = 1 and 1/2^2 = 0.25.
	want := (1000*1 + 4000*0.25) / 1.25
	if math.Abs(state.Spectrum.PARFlux-want) > 1e-6 {
		t.Errorf("IDW flux = %v, want %v", state.Spectrum.PARFlux, want)
	}
	if len(state.Contributors) != 2 {
		t.Errorf("Contributors = %d, want 2", len(state.Contributors))
	}
}

// Only the nearest NearestCap sensors contribute.
func TestNearestCap(t *testing.T) {
	params := DefaultParams()
	params.NearestCap = 2
	e := New(params)
	now := time.Now()

	sensors := []SensorState{
		broadbandState(t, "s1", 1, 0, 1000, 1),
		broadbandState(t, "s2", 2, 0, 1000, 1),
		broadbandState(t, "s3", 3, 0, 1000, 1),
	}
	state := e.EstimateZone("0-0", 0, 0, sensors, now)
	if len(state.Contributors) != 2 {
		t.Fatalf("Contributors = %d, want 2", len(state.Contributors))
	}
	for _, c := range state.Contributors {
		if c.SensorID == "s3" {
			t.Error("Farthest sensor should have been dropped by the cap")
		}
	}
}
