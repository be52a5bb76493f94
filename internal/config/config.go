// Package config loads server configuration from environment variables.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the server.
type Config struct {
	// Server
	Port string
	Env  string

	// Database
	DatabaseURL string

	// Grid geometry
	GridRows int
	GridCols int

	// Control loop
	CycleInterval     time.Duration
	SensorReadTimeout time.Duration
	RampDuration      time.Duration

	// Zone estimation
	IDWExponent      float64
	MaxSensorRange   float64
	NearestSensorCap int
	DistanceFloor    float64

	// Daily light integral tracking
	DLIHistoryDays int

	// Power
	PowerBudgetWatts float64

	// MQTT sensor ingest
	MQTTEnabled  bool
	MQTTBroker   string
	MQTTClientID string
	MQTTUsername string
	MQTTPassword string
	MQTTTopic    string
	MQTTQoS      int

	// CORS
	CORSOrigin string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() *Config {
	return &Config{
		Port: getEnv("PORT", "4000"),
		Env:  getEnv("GO_ENV", "development"),

		DatabaseURL: getEnv("DATABASE_URL", "growlights.db"),

		GridRows: getEnvInt("GRID_ROWS", 24),
		GridCols: getEnvInt("GRID_COLS", 12),

		CycleInterval:     getEnvDuration("CYCLE_INTERVAL", 10*time.Second),
		SensorReadTimeout: getEnvDuration("SENSOR_READ_TIMEOUT", 2*time.Second),
		RampDuration:      getEnvDuration("RAMP_DURATION", 3*time.Second),

		IDWExponent:      getEnvFloat("IDW_EXPONENT", 2.0),
		MaxSensorRange:   getEnvFloat("MAX_SENSOR_RANGE", 30),
		NearestSensorCap: getEnvInt("NEAREST_SENSOR_CAP", 4),
		DistanceFloor:    getEnvFloat("DISTANCE_FLOOR", 0.1),

		DLIHistoryDays: getEnvInt("DLI_HISTORY_DAYS", 30),

		PowerBudgetWatts: getEnvFloat("POWER_BUDGET_WATTS", 1000),

		MQTTEnabled:  getEnvBool("MQTT_ENABLED", false),
		MQTTBroker:   getEnv("MQTT_BROKER", "tcp://localhost:1883"),
		MQTTClientID: getEnv("MQTT_CLIENT_ID", "growlights-server"),
		MQTTUsername: getEnv("MQTT_USERNAME", ""),
		MQTTPassword: getEnv("MQTT_PASSWORD", ""),
		MQTTTopic:    getEnv("MQTT_TOPIC", "greenhouse/+/light"),
		MQTTQoS:      getEnvInt("MQTT_QOS", 1),

		CORSOrigin: getEnv("CORS_ORIGIN", "http://localhost:3000"),
	}
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
