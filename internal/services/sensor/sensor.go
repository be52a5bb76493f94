// Package sensor provides adapters that deliver light sensor readings to
// the control loop, from simulated sources or an MQTT ingest.
package sensor

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/growmesh/growlights-go/internal/services/spectrum"
)

// Adapter is one positioned light sensor the control loop can poll.
type Adapter interface {
	// ID returns a stable identifier for the sensor.
	ID() string
	// Position returns the sensor's grid coordinates.
	Position() (x, y float64)
	// Read returns the most recent reading. It must respect ctx deadlines;
	// a sensor with no data yet returns ErrNoReading.
	Read(ctx context.Context) (spectrum.Reading, error)
}

// ErrNoReading indicates a sensor has not produced data yet or its data
// has gone stale.
var ErrNoReading = fmt.Errorf("sensor: no current reading")

// Simulated is a deterministic in-process sensor, used in development and
// tests. It models a broadband lux sensor with a slow diurnal swing.
type Simulated struct {
	id       string
	x, y     float64
	baseLux  float64
	sensType spectrum.SensorType
	clock    func() time.Time
}

// NewSimulated creates a simulated sensor at a grid position. sensType
// must be one of the known sensor types.
func NewSimulated(id string, x, y, baseLux float64, sensType spectrum.SensorType) *Simulated {
	return &Simulated{
		id:       id,
		x:        x,
		y:        y,
		baseLux:  baseLux,
		sensType: sensType,
		clock:    time.Now,
	}
}

func (s *Simulated) ID() string                   { return s.id }
func (s *Simulated) Position() (float64, float64) { return s.x, s.y }

// Read synthesizes a plausible reading for the current time of day.
func (s *Simulated) Read(ctx context.Context) (spectrum.Reading, error) {
	if err := ctx.Err(); err != nil {
		return spectrum.Reading{}, err
	}
	now := s.clock()
	// Sinusoidal daylight curve peaking at 13:00 local.
	hour := float64(now.Hour()) + float64(now.Minute())/60
	daylight := math.Max(0, math.Sin((hour-7)/12*math.Pi))
	lux := s.baseLux * daylight

	r := spectrum.Reading{
		SensorID:          s.id,
		Type:              s.sensType,
		Gain:              1,
		IntegrationTimeMs: 100,
		Lux:               lux,
		TakenAt:           now,
	}
	switch s.sensType {
	case spectrum.SensorBH1750:
		r.Channels = map[string]float64{"broadband": lux * 5}
	case spectrum.SensorTSL2591:
		r.Channels = map[string]float64{"visible": lux * 4, "infrared": lux * 1.5}
	case spectrum.SensorTCS34725:
		r.Channels = map[string]float64{
			"red_raw":   lux * 1.2,
			"green_raw": lux * 1.5,
			"blue_raw":  lux * 0.9,
			"clear_raw": lux * 3.6,
		}
		r.ColorTempK = 5200
	case spectrum.SensorAS7262:
		r.Channels = map[string]float64{
			"violet": lux * 0.4, "blue": lux * 0.7, "green": lux * 1.0,
			"yellow": lux * 0.9, "orange": lux * 0.8, "red": lux * 0.7,
		}
	default:
		return spectrum.Reading{}, &spectrum.ConfigurationError{
			Entity: s.id, Reason: fmt.Sprintf("unknown sensor type %q", s.sensType),
		}
	}
	return r, nil
}

// cachedReading pairs a reading with its arrival time for staleness checks.
type cachedReading struct {
	reading    spectrum.Reading
	receivedAt time.Time
}

// Cache holds the latest reading per sensor, shared between an ingest
// (writer) and the control loop (reader).
type Cache struct {
	mu       sync.RWMutex
	latest   map[string]cachedReading
	staleAge time.Duration
	clock    func() time.Time
}

// NewCache creates a cache; readings older than staleAge are treated as
// absent. staleAge <= 0 disables expiry.
func NewCache(staleAge time.Duration) *Cache {
	return &Cache{
		latest:   make(map[string]cachedReading),
		staleAge: staleAge,
		clock:    time.Now,
	}
}

// Put stores the latest reading for a sensor.
func (c *Cache) Put(r spectrum.Reading) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.latest[r.SensorID] = cachedReading{reading: r, receivedAt: c.clock()}
}

// Get returns the latest fresh reading for a sensor.
func (c *Cache) Get(sensorID string) (spectrum.Reading, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.latest[sensorID]
	if !ok {
		return spectrum.Reading{}, ErrNoReading
	}
	if c.staleAge > 0 && c.clock().Sub(entry.receivedAt) > c.staleAge {
		return spectrum.Reading{}, ErrNoReading
	}
	return entry.reading, nil
}

// Cached adapts a cache entry into the Adapter interface for a configured
// sensor instance.
type Cached struct {
	id    string
	x, y  float64
	cache *Cache
}

// NewCached binds a configured sensor position to the shared cache.
func NewCached(id string, x, y float64, cache *Cache) *Cached {
	return &Cached{id: id, x: x, y: y, cache: cache}
}

func (c *Cached) ID() string                   { return c.id }
func (c *Cached) Position() (float64, float64) { return c.x, c.y }

func (c *Cached) Read(ctx context.Context) (spectrum.Reading, error) {
	if err := ctx.Err(); err != nil {
		return spectrum.Reading{}, err
	}
	return c.cache.Get(c.id)
}
