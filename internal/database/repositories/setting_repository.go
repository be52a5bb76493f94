package repositories

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/lucsky/cuid"
	"gorm.io/gorm"

	"github.com/growmesh/growlights-go/internal/database/models"
)

// SettingRepository handles system settings and energy tier data access.
type SettingRepository struct {
	db *gorm.DB
}

// NewSettingRepository creates a new SettingRepository.
func NewSettingRepository(db *gorm.DB) *SettingRepository {
	return &SettingRepository{db: db}
}

// Get returns a setting value, or defaultValue when unset.
func (r *SettingRepository) Get(ctx context.Context, key, defaultValue string) (string, error) {
	var setting models.Setting
	result := r.db.WithContext(ctx).First(&setting, "key = ?", key)
	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return defaultValue, nil
		}
		return "", result.Error
	}
	return setting.Value, nil
}

// Set creates or updates a setting.
func (r *SettingRepository) Set(ctx context.Context, key, value string) error {
	var setting models.Setting
	result := r.db.WithContext(ctx).First(&setting, "key = ?", key)
	if result.Error == nil {
		setting.Value = value
		return r.db.WithContext(ctx).Save(&setting).Error
	}
	if result.Error != gorm.ErrRecordNotFound {
		return result.Error
	}
	return r.db.WithContext(ctx).Create(&models.Setting{
		ID:    cuid.New(),
		Key:   key,
		Value: value,
	}).Error
}

// FindEnergyTiers returns all configured time-of-use tiers.
func (r *SettingRepository) FindEnergyTiers(ctx context.Context) ([]models.EnergyTier, error) {
	var tiers []models.EnergyTier
	result := r.db.WithContext(ctx).Order("multiplier ASC").Find(&tiers)
	return tiers, result.Error
}

// UpsertEnergyTier creates or replaces a tier by name. hours lists the
// hours of day (0-23) the tier covers.
func (r *SettingRepository) UpsertEnergyTier(ctx context.Context, name string, multiplier float64, hours []int) error {
	hoursJSON, err := json.Marshal(hours)
	if err != nil {
		return fmt.Errorf("encode tier hours: %w", err)
	}

	var tier models.EnergyTier
	result := r.db.WithContext(ctx).First(&tier, "name = ?", name)
	if result.Error == nil {
		tier.Multiplier = multiplier
		tier.HoursJSON = string(hoursJSON)
		return r.db.WithContext(ctx).Save(&tier).Error
	}
	if result.Error != gorm.ErrRecordNotFound {
		return result.Error
	}
	return r.db.WithContext(ctx).Create(&models.EnergyTier{
		ID:         cuid.New(),
		Name:       name,
		Multiplier: multiplier,
		HoursJSON:  string(hoursJSON),
	}).Error
}

// TierHours decodes a tier's hour list.
func TierHours(tier *models.EnergyTier) ([]int, error) {
	if tier.HoursJSON == "" {
		return nil, nil
	}
	var hours []int
	if err := json.Unmarshal([]byte(tier.HoursJSON), &hours); err != nil {
		return nil, fmt.Errorf("decode tier hours for %s: %w", tier.Name, err)
	}
	return hours, nil
}
