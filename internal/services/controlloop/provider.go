package controlloop

import (
	"context"
	"fmt"
	"time"

	"github.com/growmesh/growlights-go/internal/database/models"
	"github.com/growmesh/growlights-go/internal/database/repositories"
	"github.com/growmesh/growlights-go/internal/services/capability"
	"github.com/growmesh/growlights-go/internal/services/decision"
	"github.com/growmesh/growlights-go/internal/services/optimizer"
	"github.com/growmesh/growlights-go/internal/services/spectrum"
)

// DBProvider loads the loop's configuration from the database each cycle,
// so zone, sensor, and fixture edits take effect without a restart. Every
// cell of the rows×cols grid gets a ZoneConfig; cells without a database
// row are synthesized empty so the estimator still covers them.
type DBProvider struct {
	rows      int
	cols      int
	zones     *repositories.ZoneRepository
	sensors   *repositories.SensorRepository
	fixtures  *repositories.FixtureRepository
	overrides *repositories.OverrideRepository
	settings  *repositories.SettingRepository
}

// NewDBProvider wires a provider to the repositories over a rows×cols grid.
func NewDBProvider(rows, cols int, zones *repositories.ZoneRepository, sensors *repositories.SensorRepository,
	fixtures *repositories.FixtureRepository, overrides *repositories.OverrideRepository,
	settings *repositories.SettingRepository) *DBProvider {
	return &DBProvider{
		rows:      rows,
		cols:      cols,
		zones:     zones,
		sensors:   sensors,
		fixtures:  fixtures,
		overrides: overrides,
		settings:  settings,
	}
}

// LoadZones returns the configured zones with their fixtures and targets.
func (p *DBProvider) LoadZones(ctx context.Context) ([]ZoneConfig, error) {
	zones, err := p.zones.FindAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("find zones: %w", err)
	}
	fixtures, err := p.fixtures.FindAll(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("find fixtures: %w", err)
	}
	targets, err := p.zones.FindAllTargets(ctx)
	if err != nil {
		return nil, fmt.Errorf("find targets: %w", err)
	}

	fixturesByZone := make(map[string][]models.FixtureInstance)
	for _, f := range fixtures {
		fixturesByZone[f.ZoneKey] = append(fixturesByZone[f.ZoneKey], f)
	}
	targetByZone := make(map[string]models.ZoneTarget, len(targets))
	for _, t := range targets {
		targetByZone[t.ZoneKey] = t
	}

	configured := make(map[string]bool, len(zones))
	configs := make([]ZoneConfig, 0, p.rows*p.cols)
	for _, z := range zones {
		configured[z.ZoneKey] = true
		zc := ZoneConfig{
			ZoneKey:          z.ZoneKey,
			Row:              z.Row,
			Col:              z.Col,
			Priority:         1,
			CircuitByFixture: make(map[string]string),
		}
		for _, f := range fixturesByZone[z.ZoneKey] {
			fc := capability.FixtureCapability{
				FixtureID:     f.ID,
				ZoneKey:       f.ZoneKey,
				ChannelCount:  f.ChannelCount,
				Dimmable:      f.Dimmable,
				ColorCapable:  f.ColorCapable,
				MaxPowerWatts: f.MaxPowerWatts,
				MaxPPFD:       f.MaxPPFD,
			}
			if f.RelayGroup != nil {
				fc.RelayGroup = *f.RelayGroup
			}
			if f.RelayCircuit != nil {
				zc.CircuitByFixture[f.ID] = *f.RelayCircuit
			}
			zc.Fixtures = append(zc.Fixtures, fc)
		}
		if t, ok := targetByZone[z.ZoneKey]; ok {
			zc.Target = targetFromModel(t)
			zc.Priority = t.PriorityWeight
		} else {
			zc.Target = optimizer.ZoneTarget{ZoneKey: z.ZoneKey}
		}
		configs = append(configs, zc)
	}
	for r := 0; r < p.rows; r++ {
		for c := 0; c < p.cols; c++ {
			key := fmt.Sprintf("%d-%d", r, c)
			if configured[key] {
				continue
			}
			configs = append(configs, ZoneConfig{
				ZoneKey:          key,
				Row:              r,
				Col:              c,
				Priority:         1,
				Target:           optimizer.ZoneTarget{ZoneKey: key},
				CircuitByFixture: make(map[string]string),
			})
		}
	}
	return configs, nil
}

// LoadSensors returns the enabled sensor instances.
func (p *DBProvider) LoadSensors(ctx context.Context) ([]SensorConfig, error) {
	sensors, err := p.sensors.FindAll(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("find sensors: %w", err)
	}
	configs := make([]SensorConfig, 0, len(sensors))
	for _, s := range sensors {
		configs = append(configs, SensorConfig{
			ID:          s.ID,
			Type:        spectrum.SensorType(s.Type),
			X:           s.PositionX,
			Y:           s.PositionY,
			Calibration: s.CalibrationFactor,
		})
	}
	return configs, nil
}

// LoadOverrides returns active manual overrides keyed by zone. Expired
// rows are purged as a side effect.
func (p *DBProvider) LoadOverrides(ctx context.Context) (map[string]*decision.Override, error) {
	if err := p.overrides.DeleteExpired(ctx, time.Now()); err != nil {
		return nil, fmt.Errorf("purge expired overrides: %w", err)
	}
	rows, err := p.overrides.FindAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("find overrides: %w", err)
	}
	out := make(map[string]*decision.Override, len(rows))
	for _, row := range rows {
		o := &decision.Override{
			ZoneKey:      row.ZoneKey,
			On:           row.On,
			IntensityPct: row.IntensityPct,
			Reason:       row.Reason,
		}
		if row.ExpiresAt != nil {
			o.ExpiresAt = *row.ExpiresAt
		}
		out[row.ZoneKey] = o
	}
	return out, nil
}

// SettingEmergencyStop is the settings key holding the facility-wide
// emergency stop flag.
const SettingEmergencyStop = "emergency_stop"

// TierFor resolves the time-of-use band covering now's hour, with the cost
// multiplier stored on its row. Hours not claimed by any configured tier
// fall back to standard pricing.
func (p *DBProvider) TierFor(ctx context.Context, now time.Time) (decision.EnergyTier, float64, error) {
	tiers, err := p.settings.FindEnergyTiers(ctx)
	if err != nil {
		return decision.TierStandard, 0, fmt.Errorf("find energy tiers: %w", err)
	}
	hour := now.Hour()
	for i := range tiers {
		hours, err := repositories.TierHours(&tiers[i])
		if err != nil {
			return decision.TierStandard, 0, err
		}
		for _, h := range hours {
			if h == hour {
				tier := decision.EnergyTier(tiers[i].Name)
				mult := tiers[i].Multiplier
				if mult <= 0 {
					mult = decision.TierMultiplier(tier)
				}
				return tier, mult, nil
			}
		}
	}
	return decision.TierStandard, decision.TierMultiplier(decision.TierStandard), nil
}

// EmergencyStop reads the facility-wide emergency stop flag.
func (p *DBProvider) EmergencyStop(ctx context.Context) (bool, error) {
	v, err := p.settings.Get(ctx, SettingEmergencyStop, "false")
	if err != nil {
		return false, fmt.Errorf("read emergency stop: %w", err)
	}
	return v == "true", nil
}

func targetFromModel(t models.ZoneTarget) optimizer.ZoneTarget {
	target := optimizer.ZoneTarget{
		ZoneKey:        t.ZoneKey,
		CropType:       t.CropType,
		GrowthStage:    t.GrowthStage,
		TargetDLI:      t.TargetDLI,
		TargetPAR:      t.TargetPAR,
		PriorityWeight: t.PriorityWeight,
		FallbackPAR:    t.FallbackPAR,
		LightStart:     t.LightStart,
		LightEnd:       t.LightEnd,
	}
	if t.BluePct > 0 || t.GreenPct > 0 || t.RedPct > 0 {
		target.SpectrumRatios = map[string]float64{
			"blue":  t.BluePct,
			"green": t.GreenPct,
			"red":   t.RedPct,
		}
	}
	return target
}
