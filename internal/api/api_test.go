package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/growmesh/growlights-go/internal/api"
	"github.com/growmesh/growlights-go/internal/services/capability"
	"github.com/growmesh/growlights-go/internal/services/controlloop"
	"github.com/growmesh/growlights-go/internal/services/decision"
	"github.com/growmesh/growlights-go/internal/services/dli"
	"github.com/growmesh/growlights-go/internal/services/optimizer"
	"github.com/growmesh/growlights-go/internal/services/pubsub"
	"github.com/growmesh/growlights-go/internal/services/relay"
	"github.com/growmesh/growlights-go/internal/services/sensor"
	"github.com/growmesh/growlights-go/internal/services/spectrum"
	"github.com/growmesh/growlights-go/internal/services/testutil"
)

type fixedProvider struct{}

func (fixedProvider) LoadZones(ctx context.Context) ([]controlloop.ZoneConfig, error) {
	return []controlloop.ZoneConfig{{
		ZoneKey: "0-0",
		Fixtures: []capability.FixtureCapability{
			{FixtureID: "f1", ZoneKey: "0-0", Dimmable: true, MaxPPFD: 400, MaxPowerWatts: 100},
		},
		Target: optimizer.ZoneTarget{
			ZoneKey:    "0-0",
			TargetPAR:  200,
			TargetDLI:  12,
			LightStart: "00:00",
			LightEnd:   "23:59",
		},
		Priority: 1,
	}}, nil
}

func (fixedProvider) LoadSensors(ctx context.Context) ([]controlloop.SensorConfig, error) {
	return []controlloop.SensorConfig{{ID: "s1", Type: spectrum.SensorBH1750, Calibration: 1}}, nil
}

func (fixedProvider) LoadOverrides(ctx context.Context) (map[string]*decision.Override, error) {
	return nil, nil
}

func (fixedProvider) TierFor(ctx context.Context, now time.Time) (decision.EnergyTier, float64, error) {
	return decision.TierOffPeak, 1.0, nil
}

func (fixedProvider) EmergencyStop(ctx context.Context) (bool, error) {
	return false, nil
}

type fixedAdapter struct{ id string }

func (a fixedAdapter) ID() string                   { return a.id }
func (a fixedAdapter) Position() (float64, float64) { return 0, 0 }
func (a fixedAdapter) Read(ctx context.Context) (spectrum.Reading, error) {
	return spectrum.Reading{
		SensorID:          a.id,
		Type:              spectrum.SensorBH1750,
		Channels:          map[string]float64{"broadband": 1000},
		Gain:              1,
		IntegrationTimeMs: 1,
		TakenAt:           time.Now(),
	}, nil
}

func setupServer(t *testing.T, runCycle bool) (*httptest.Server, *testutil.TestDB, func()) {
	t.Helper()
	db, dbCleanup := testutil.SetupTestDB(t)

	bus := pubsub.New()
	tracker := dli.NewTracker(nil, nil, 30)
	engine := decision.NewEngine(0, 0)
	loop := controlloop.New(controlloop.Options{CycleInterval: time.Second}, fixedProvider{},
		func(sc controlloop.SensorConfig) sensor.Adapter { return fixedAdapter{id: sc.ID} },
		tracker, capability.NewAnalyzer(), engine,
		relay.NewController(relay.NewLogActuator(), nil), bus)

	if runCycle {
		require.NoError(t, loop.RunCycle(context.Background()))
	}

	router := chi.NewRouter()
	api.NewServer(loop, engine, tracker, db.DLIRepo, db.OverrideRepo, db.SettingRepo, bus).Routes(router)
	ts := httptest.NewServer(router)

	return ts, db, func() {
		ts.Close()
		dbCleanup()
	}
}

func TestHealthEndpoint(t *testing.T) {
	ts, _, cleanup := setupServer(t, true)
	defer cleanup()

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
	assert.EqualValues(t, 1, body["snapshotVersion"])
}

func TestZonesBeforeFirstCycle(t *testing.T) {
	ts, _, cleanup := setupServer(t, false)
	defer cleanup()

	resp, err := http.Get(ts.URL + "/api/zones")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode,
		"missing data must be reported, not served as an empty grid")
}

func TestZonesAndZoneLookup(t *testing.T) {
	ts, _, cleanup := setupServer(t, true)
	defer cleanup()

	resp, err := http.Get(ts.URL + "/api/zones/0-0")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var zone map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&zone))
	assert.Equal(t, "0-0", zone["zoneKey"])
	assert.Equal(t, true, zone["valid"])

	missing, err := http.Get(ts.URL + "/api/zones/9-9")
	require.NoError(t, err)
	defer missing.Body.Close()
	assert.Equal(t, http.StatusNotFound, missing.StatusCode)
}

func TestZoneDLIEndpoint(t *testing.T) {
	ts, _, cleanup := setupServer(t, true)
	defer cleanup()

	resp, err := http.Get(ts.URL + "/api/zones/0-0/dli")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		ZoneKey string  `json:"zoneKey"`
		Today   float64 `json:"today"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "0-0", body.ZoneKey)
	assert.Greater(t, body.Today, 0.0)
}

func TestDecisionsEndpoint(t *testing.T) {
	ts, _, cleanup := setupServer(t, true)
	defer cleanup()

	resp, err := http.Get(ts.URL + "/api/decisions")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Version   int                        `json:"version"`
		Decisions map[string]json.RawMessage `json:"decisions"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, 1, body.Version)
	assert.Contains(t, body.Decisions, "0-0")
}

func TestOverrideLifecycle(t *testing.T) {
	ts, db, cleanup := setupServer(t, true)
	defer cleanup()

	payload, _ := json.Marshal(map[string]interface{}{
		"zoneKey":      "0-0",
		"on":           true,
		"intensityPct": 75,
		"reason":       "inspection",
		"ttlSeconds":   600,
	})
	resp, err := http.Post(ts.URL+"/api/overrides", "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	stored, err := db.OverrideRepo.FindByZone(context.Background(), "0-0")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.True(t, stored.On)
	assert.Equal(t, 75.0, stored.IntensityPct)
	require.NotNil(t, stored.ExpiresAt)

	req, err := http.NewRequest(http.MethodDelete, ts.URL+"/api/overrides/0-0", nil)
	require.NoError(t, err)
	del, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer del.Body.Close()
	assert.Equal(t, http.StatusNoContent, del.StatusCode)

	gone, err := db.OverrideRepo.FindByZone(context.Background(), "0-0")
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func TestEmergencyLifecycle(t *testing.T) {
	ts, db, cleanup := setupServer(t, true)
	defer cleanup()

	resp, err := http.Get(ts.URL + "/api/emergency")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var state map[string]bool
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&state))
	assert.False(t, state["active"])

	raise, err := http.Post(ts.URL+"/api/emergency", "application/json",
		bytes.NewReader([]byte(`{"active":true}`)))
	require.NoError(t, err)
	defer raise.Body.Close()
	require.Equal(t, http.StatusOK, raise.StatusCode)

	stored, err := db.SettingRepo.Get(context.Background(), "emergency_stop", "false")
	require.NoError(t, err)
	assert.Equal(t, "true", stored)

	lift, err := http.Post(ts.URL+"/api/emergency", "application/json",
		bytes.NewReader([]byte(`{"active":false}`)))
	require.NoError(t, err)
	defer lift.Body.Close()
	require.Equal(t, http.StatusOK, lift.StatusCode)

	stored, err = db.SettingRepo.Get(context.Background(), "emergency_stop", "false")
	require.NoError(t, err)
	assert.Equal(t, "false", stored)
}

func TestCreateOverrideValidation(t *testing.T) {
	ts, _, cleanup := setupServer(t, true)
	defer cleanup()

	resp, err := http.Post(ts.URL+"/api/overrides", "application/json", bytes.NewReader([]byte(`{}`)))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
