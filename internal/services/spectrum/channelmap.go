package spectrum

// SensorType identifies a supported light sensor model. The set is closed:
// each type carries its own channel map, so fusion can be verified against
// the hardware it claims to understand.
type SensorType string

const (
	SensorTCS34725 SensorType = "TCS34725" // RGB+clear color sensor
	SensorTSL2591  SensorType = "TSL2591"  // visible+IR broadband sensor
	SensorAS7262   SensorType = "AS7262"   // 6-channel visible spectral sensor
	SensorBH1750   SensorType = "BH1750"   // broadband lux sensor
)

// ResponseShape describes how a channel's reading spreads across wavelengths.
type ResponseShape int

const (
	// ResponseBand distributes proportionally to rectangular overlap width.
	ResponseBand ResponseShape = iota
	// ResponseGaussian distributes proportionally to the Gaussian integral
	// over each bin, with the spread given as FWHM.
	ResponseGaussian
)

// ChannelResponse is the spectral response of one sensor channel.
type ChannelResponse struct {
	Shape ResponseShape

	// Band parameters (ResponseBand).
	LoNm float64
	HiNm float64

	// Gaussian parameters (ResponseGaussian).
	CenterNm float64
	FWHMNm   float64
}

func band(lo, hi float64) ChannelResponse {
	return ChannelResponse{Shape: ResponseBand, LoNm: lo, HiNm: hi}
}

func gaussian(center, fwhm float64) ChannelResponse {
	return ChannelResponse{Shape: ResponseGaussian, CenterNm: center, FWHMNm: fwhm}
}

// channelMaps holds the per-type spectral response of every raw channel.
// Band edges follow the manufacturer filter specs; the AS7262 filters are
// modeled as Gaussians with the datasheet's typical 40nm FWHM.
var channelMaps = map[SensorType]map[string]ChannelResponse{
	SensorTCS34725: {
		"red_raw":   band(620, 750),
		"green_raw": band(500, 570),
		"blue_raw":  band(450, 520),
		"clear_raw": band(400, 700),
	},
	SensorTSL2591: {
		"visible":  band(400, 700),
		"infrared": band(700, 1100),
	},
	SensorAS7262: {
		"violet": gaussian(450, 40),
		"blue":   gaussian(500, 40),
		"green":  gaussian(550, 40),
		"yellow": gaussian(570, 40),
		"orange": gaussian(600, 40),
		"red":    gaussian(650, 40),
	},
	SensorBH1750: {
		"broadband": band(400, 700),
	},
}

// KnownSensorType reports whether t is one of the supported sensor models.
func KnownSensorType(t SensorType) bool {
	_, ok := channelMaps[t]
	return ok
}

// channelMap returns the channel responses for a sensor type.
func channelMap(t SensorType) (map[string]ChannelResponse, bool) {
	m, ok := channelMaps[t]
	return m, ok
}

// IsSpectralSensor reports whether the type resolves individual spectral
// channels (used by capability classification).
func IsSpectralSensor(t SensorType) bool {
	return t == SensorAS7262
}

// IsColorSensor reports whether the type distinguishes broad color bands.
func IsColorSensor(t SensorType) bool {
	return t == SensorTCS34725 || t == SensorTSL2591
}
