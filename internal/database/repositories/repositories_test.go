package repositories_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/growmesh/growlights-go/internal/database/models"
	"github.com/growmesh/growlights-go/internal/database/repositories"
	"github.com/growmesh/growlights-go/internal/services/testutil"
)

func TestZoneRepository(t *testing.T) {
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	zone := &models.Zone{ZoneKey: "3-7", Row: 3, Col: 7}
	require.NoError(t, db.ZoneRepo.Create(ctx, zone))
	assert.NotEmpty(t, zone.ID, "Create should assign a cuid")

	found, err := db.ZoneRepo.FindByKey(ctx, "3-7")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, 3, found.Row)
	assert.Equal(t, 7, found.Col)

	missing, err := db.ZoneRepo.FindByKey(ctx, "99-99")
	require.NoError(t, err)
	assert.Nil(t, missing, "missing zone should be (nil, nil)")

	all, err := db.ZoneRepo.FindAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestZoneTargetUpsert(t *testing.T) {
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	target := &models.ZoneTarget{
		ZoneKey:     "0-0",
		CropType:    "tomato",
		GrowthStage: "vegetative",
		TargetDLI:   18,
		TargetPAR:   350,
	}
	require.NoError(t, db.ZoneRepo.UpsertTarget(ctx, target))

	// Second upsert replaces, not duplicates.
	target2 := &models.ZoneTarget{
		ZoneKey:     "0-0",
		CropType:    "tomato",
		GrowthStage: "flowering",
		TargetDLI:   22,
		TargetPAR:   450,
	}
	require.NoError(t, db.ZoneRepo.UpsertTarget(ctx, target2))

	all, err := db.ZoneRepo.FindAllTargets(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "flowering", all[0].GrowthStage)
	assert.Equal(t, 22.0, all[0].TargetDLI)
}

func TestSensorRepository(t *testing.T) {
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	sensor := &models.SensorInstance{
		Name:              testutil.UniqueName("bh1750"),
		Type:              "BH1750",
		ZoneKey:           "15-6",
		PositionX:         15,
		PositionY:         6,
		CalibrationFactor: 0.000051,
		Enabled:           true,
	}
	require.NoError(t, db.SensorRepo.Create(ctx, sensor))

	disabled := &models.SensorInstance{
		Name:    testutil.UniqueName("dead"),
		Type:    "TSL2591",
		ZoneKey: "0-0",
		Enabled: false,
	}
	require.NoError(t, db.SensorRepo.Create(ctx, disabled))

	enabled, err := db.SensorRepo.FindAll(ctx, true)
	require.NoError(t, err)
	require.Len(t, enabled, 1)
	assert.Equal(t, sensor.ID, enabled[0].ID)
	assert.Equal(t, 0.000051, enabled[0].CalibrationFactor)

	byZone, err := db.SensorRepo.FindByZone(ctx, "15-6")
	require.NoError(t, err)
	assert.Len(t, byZone, 1)
}

func TestFixtureRepository(t *testing.T) {
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	group := "bench-a"
	fixture := &models.FixtureInstance{
		Name:          testutil.UniqueName("led-bar"),
		ZoneKey:       "2-2",
		ChannelCount:  3,
		Dimmable:      true,
		ColorCapable:  true,
		MaxPowerWatts: 120,
		MaxPPFD:       500,
		RelayGroup:    &group,
		Enabled:       true,
	}
	require.NoError(t, db.FixtureRepo.Create(ctx, fixture))

	byGroup, err := db.FixtureRepo.FindByRelayGroup(ctx, "bench-a")
	require.NoError(t, err)
	require.Len(t, byGroup, 1)
	assert.True(t, byGroup[0].ColorCapable)

	fixture.MaxPPFD = 450
	require.NoError(t, db.FixtureRepo.Update(ctx, fixture))
	updated, err := db.FixtureRepo.FindByID(ctx, fixture.ID)
	require.NoError(t, err)
	require.NotNil(t, updated)
	assert.Equal(t, 450.0, updated.MaxPPFD)

	require.NoError(t, db.FixtureRepo.Delete(ctx, fixture.ID))
	gone, err := db.FixtureRepo.FindByID(ctx, fixture.ID)
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func TestDLIRepository(t *testing.T) {
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, db.DLIRepo.SaveDay(ctx, &models.DLIDay{ZoneKey: "1-1", Day: "2025-06-09", DLI: 11.2, Samples: 8000}))
	require.NoError(t, db.DLIRepo.SaveDay(ctx, &models.DLIDay{ZoneKey: "1-1", Day: "2025-06-10", DLI: 12.8, Samples: 8100}))

	// Re-saving the same day replaces it.
	require.NoError(t, db.DLIRepo.SaveDay(ctx, &models.DLIDay{ZoneKey: "1-1", Day: "2025-06-10", DLI: 13.0, Samples: 8640}))

	days, err := db.DLIRepo.FindByZone(ctx, "1-1", 30)
	require.NoError(t, err)
	require.Len(t, days, 2)
	assert.Equal(t, "2025-06-10", days[0].Day, "most recent day first")
	assert.Equal(t, 13.0, days[0].DLI)
	assert.Equal(t, 8640, days[0].Samples)

	require.NoError(t, db.DLIRepo.PruneBefore(ctx, "2025-06-10"))
	days, err = db.DLIRepo.FindByZone(ctx, "1-1", 30)
	require.NoError(t, err)
	assert.Len(t, days, 1)
}

func TestOverrideRepository(t *testing.T) {
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	expired := time.Now().Add(-time.Hour)
	require.NoError(t, db.OverrideRepo.Upsert(ctx, &models.ManualOverride{
		ZoneKey:   "5-5",
		On:        true,
		ExpiresAt: &expired,
	}))
	require.NoError(t, db.OverrideRepo.Upsert(ctx, &models.ManualOverride{
		ZoneKey: "6-6",
		On:      false,
		Reason:  "maintenance",
	}))

	require.NoError(t, db.OverrideRepo.DeleteExpired(ctx, time.Now()))

	all, err := db.OverrideRepo.FindAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "6-6", all[0].ZoneKey, "unexpiring override survives the purge")

	require.NoError(t, db.OverrideRepo.Delete(ctx, "6-6"))
	remaining, err := db.OverrideRepo.FindByZone(ctx, "6-6")
	require.NoError(t, err)
	assert.Nil(t, remaining)
}

func TestSettingRepositoryAndEnergyTiers(t *testing.T) {
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	val, err := db.SettingRepo.Get(ctx, "power_budget", "1000")
	require.NoError(t, err)
	assert.Equal(t, "1000", val, "unset key returns the default")

	require.NoError(t, db.SettingRepo.Set(ctx, "power_budget", "1500"))
	require.NoError(t, db.SettingRepo.Set(ctx, "power_budget", "1200"))
	val, err = db.SettingRepo.Get(ctx, "power_budget", "1000")
	require.NoError(t, err)
	assert.Equal(t, "1200", val)

	require.NoError(t, db.SettingRepo.UpsertEnergyTier(ctx, "peak", 2.0, []int{17, 18, 19, 20}))
	require.NoError(t, db.SettingRepo.UpsertEnergyTier(ctx, "off_peak", 1.0, []int{0, 1, 2, 3, 4, 5}))

	tiers, err := db.SettingRepo.FindEnergyTiers(ctx)
	require.NoError(t, err)
	require.Len(t, tiers, 2)
	assert.Equal(t, "off_peak", tiers[0].Name, "ordered by multiplier")

	hours, err := repositories.TierHours(&tiers[1])
	require.NoError(t, err)
	assert.Equal(t, []int{17, 18, 19, 20}, hours)
}
