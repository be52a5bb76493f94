// Package models contains the database model definitions.
// These models map directly to the SQLite database tables.
package models

import (
	"time"
)

// Zone represents one cell of the greenhouse grid.
// Table: zones
type Zone struct {
	ID        string    `gorm:"column:id;primaryKey"`
	ZoneKey   string    `gorm:"column:zone_key;uniqueIndex"`
	Row       int       `gorm:"column:row"`
	Col       int       `gorm:"column:col"`
	Name      *string   `gorm:"column:name"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`

	// Relations (loaded separately)
	Sensors  []SensorInstance  `gorm:"foreignKey:ZoneKey;references:ZoneKey"`
	Fixtures []FixtureInstance `gorm:"foreignKey:ZoneKey;references:ZoneKey"`
	Target   *ZoneTarget       `gorm:"foreignKey:ZoneKey;references:ZoneKey"`
}

func (Zone) TableName() string { return "zones" }

// SensorInstance represents an installed light sensor.
// Table: sensor_instances
type SensorInstance struct {
	ID                string    `gorm:"column:id;primaryKey"`
	Name              string    `gorm:"column:name"`
	Type              string    `gorm:"column:type"` // TCS34725, TSL2591, AS7262, BH1750
	ZoneKey           string    `gorm:"column:zone_key;index"`
	PositionX         float64   `gorm:"column:position_x"`
	PositionY         float64   `gorm:"column:position_y"`
	CalibrationFactor float64   `gorm:"column:calibration_factor;default:1"`
	Enabled           bool      `gorm:"column:enabled;default:true"`
	CreatedAt         time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (SensorInstance) TableName() string { return "sensor_instances" }

// FixtureInstance represents an installed grow-light fixture.
// Table: fixture_instances
type FixtureInstance struct {
	ID            string    `gorm:"column:id;primaryKey"`
	Name          string    `gorm:"column:name"`
	ZoneKey       string    `gorm:"column:zone_key;index"`
	ChannelCount  int       `gorm:"column:channel_count;default:1"`
	Dimmable      bool      `gorm:"column:dimmable;default:false"`
	ColorCapable  bool      `gorm:"column:color_capable;default:false"`
	MaxPowerWatts float64   `gorm:"column:max_power_watts"`
	MaxPPFD       float64   `gorm:"column:max_ppfd"`
	RelayGroup    *string   `gorm:"column:relay_group;index"`
	RelayCircuit  *string   `gorm:"column:relay_circuit"`
	Enabled       bool      `gorm:"column:enabled;default:true"`
	CreatedAt     time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (FixtureInstance) TableName() string { return "fixture_instances" }

// ZoneTarget holds the crop-driven lighting goal for a zone.
// Table: zone_targets
type ZoneTarget struct {
	ID          string  `gorm:"column:id;primaryKey"`
	ZoneKey     string  `gorm:"column:zone_key;uniqueIndex"`
	CropType    string  `gorm:"column:crop_type"`
	GrowthStage string  `gorm:"column:growth_stage"` // seedling, vegetative, flowering, fruiting
	TargetDLI   float64 `gorm:"column:target_dli"`
	TargetPAR   float64 `gorm:"column:target_par"`
	BluePct     float64 `gorm:"column:blue_pct"`
	GreenPct    float64 `gorm:"column:green_pct"`
	RedPct      float64 `gorm:"column:red_pct"`

	PriorityWeight float64 `gorm:"column:priority_weight;default:1"`
	FallbackPAR    float64 `gorm:"column:fallback_par"`

	// Photoperiod window, "HH:MM" local time.
	LightStart string `gorm:"column:light_start"`
	LightEnd   string `gorm:"column:light_end"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (ZoneTarget) TableName() string { return "zone_targets" }

// DLIDay is one frozen day of accumulated light for a zone.
// Table: dli_days
type DLIDay struct {
	ID        string    `gorm:"column:id;primaryKey"`
	ZoneKey   string    `gorm:"column:zone_key;index:idx_dli_zone_day,unique"`
	Day       string    `gorm:"column:day;index:idx_dli_zone_day,unique"` // YYYY-MM-DD local
	DLI       float64   `gorm:"column:dli"`
	Samples   int       `gorm:"column:samples"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (DLIDay) TableName() string { return "dli_days" }

// ManualOverride is an operator hold on a zone's lighting.
// Table: manual_overrides
type ManualOverride struct {
	ID           string     `gorm:"column:id;primaryKey"`
	ZoneKey      string     `gorm:"column:zone_key;uniqueIndex"`
	On           bool       `gorm:"column:light_on"`
	IntensityPct float64    `gorm:"column:intensity_pct"`
	Reason       string     `gorm:"column:reason"`
	ExpiresAt    *time.Time `gorm:"column:expires_at"`
	CreatedAt    time.Time  `gorm:"column:created_at;autoCreateTime"`
}

func (ManualOverride) TableName() string { return "manual_overrides" }

// EnergyTier maps hours of the day to a time-of-use pricing band.
// Table: energy_tiers
type EnergyTier struct {
	ID         string    `gorm:"column:id;primaryKey"`
	Name       string    `gorm:"column:name;uniqueIndex"` // off_peak, standard, peak
	Multiplier float64   `gorm:"column:multiplier"`
	// HoursJSON is a JSON array of hours (0-23) the tier covers.
	HoursJSON  string    `gorm:"column:hours_json"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (EnergyTier) TableName() string { return "energy_tiers" }

// Setting is a key-value system setting.
// Table: settings
type Setting struct {
	ID        string    `gorm:"column:id;primaryKey"`
	Key       string    `gorm:"column:key;uniqueIndex"`
	Value     string    `gorm:"column:value"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (Setting) TableName() string { return "settings" }
