// Package spectrum implements sensor-reading normalization and spectral
// fusion: raw per-channel counts are normalized for exposure settings and
// distributed onto a canonical wavelength-bin histogram, preserving the
// total channel energy.
package spectrum

// WavelengthBin is a fixed [LoNm, HiNm) wavelength interval.
type WavelengthBin struct {
	LoNm float64
	HiNm float64
}

// Midpoint returns the center wavelength of the bin.
func (b WavelengthBin) Midpoint() float64 {
	return (b.LoNm + b.HiNm) / 2
}

// Width returns the bin width in nanometers.
func (b WavelengthBin) Width() float64 {
	return b.HiNm - b.LoNm
}

// Canonical bin layout: 280-860nm in 20nm steps. All fused spectra share
// this layout; it is initialized once and never mutated.
const (
	MinWavelengthNm = 280.0
	MaxWavelengthNm = 860.0
	BinWidthNm      = 20.0

	// PAR band boundaries (photosynthetically active radiation).
	PARLowNm  = 400.0
	PARHighNm = 700.0
)

var canonicalBins = makeBins(MinWavelengthNm, MaxWavelengthNm, BinWidthNm)

func makeBins(lo, hi, width float64) []WavelengthBin {
	var bins []WavelengthBin
	for w := lo; w < hi; w += width {
		bins = append(bins, WavelengthBin{LoNm: w, HiNm: w + width})
	}
	return bins
}

// Bins returns the canonical wavelength bins. The returned slice is shared
// reference data and must not be modified.
func Bins() []WavelengthBin {
	return canonicalBins
}

// BinCount returns the number of canonical bins.
func BinCount() int {
	return len(canonicalBins)
}

// IsPARBin reports whether a bin's midpoint falls in the 400-700nm band.
func IsPARBin(b WavelengthBin) bool {
	mid := b.Midpoint()
	return mid >= PARLowNm && mid <= PARHighNm
}
