// Package testutil provides shared test utilities for integration tests.
package testutil

import (
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/lucsky/cuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/growmesh/growlights-go/internal/database/models"
	"github.com/growmesh/growlights-go/internal/database/repositories"
)

// TestDB holds the test database and repositories.
type TestDB struct {
	DB           *gorm.DB
	ZoneRepo     *repositories.ZoneRepository
	SensorRepo   *repositories.SensorRepository
	FixtureRepo  *repositories.FixtureRepository
	DLIRepo      *repositories.DLIRepository
	OverrideRepo *repositories.OverrideRepository
	SettingRepo  *repositories.SettingRepository
}

// SetupTestDB creates an in-memory SQLite database for testing.
// It returns a TestDB with all repositories initialized and a cleanup function.
func SetupTestDB(t *testing.T) (*TestDB, func()) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("Failed to open in-memory database: %v", err)
	}

	err = db.AutoMigrate(
		&models.Zone{},
		&models.SensorInstance{},
		&models.FixtureInstance{},
		&models.ZoneTarget{},
		&models.DLIDay{},
		&models.ManualOverride{},
		&models.EnergyTier{},
		&models.Setting{},
	)
	if err != nil {
		t.Fatalf("Failed to migrate database: %v", err)
	}

	testDB := &TestDB{
		DB:           db,
		ZoneRepo:     repositories.NewZoneRepository(db),
		SensorRepo:   repositories.NewSensorRepository(db),
		FixtureRepo:  repositories.NewFixtureRepository(db),
		DLIRepo:      repositories.NewDLIRepository(db),
		OverrideRepo: repositories.NewOverrideRepository(db),
		SettingRepo:  repositories.NewSettingRepository(db),
	}

	cleanup := func() {
		sqlDB, err := db.DB()
		if err == nil {
			_ = sqlDB.Close()
		}
	}

	return testDB, cleanup
}

// UniqueZoneKey generates a unique zone key for testing so tests don't
// conflict with each other.
func UniqueZoneKey(prefix string) string {
	return prefix + "-" + cuid.New()[:8]
}

// UniqueName generates a unique name for sensors and fixtures in tests.
func UniqueName(prefix string) string {
	return prefix + "-" + cuid.New()[:8]
}
