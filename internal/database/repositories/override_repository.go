package repositories

import (
	"context"
	"time"

	"github.com/lucsky/cuid"
	"gorm.io/gorm"

	"github.com/growmesh/growlights-go/internal/database/models"
)

// OverrideRepository handles manual override data access.
type OverrideRepository struct {
	db *gorm.DB
}

// NewOverrideRepository creates a new OverrideRepository.
func NewOverrideRepository(db *gorm.DB) *OverrideRepository {
	return &OverrideRepository{db: db}
}

// FindAll returns all overrides.
func (r *OverrideRepository) FindAll(ctx context.Context) ([]models.ManualOverride, error) {
	var overrides []models.ManualOverride
	result := r.db.WithContext(ctx).Find(&overrides)
	return overrides, result.Error
}

// FindByZone returns the override for a zone, if any.
func (r *OverrideRepository) FindByZone(ctx context.Context, zoneKey string) (*models.ManualOverride, error) {
	var override models.ManualOverride
	result := r.db.WithContext(ctx).First(&override, "zone_key = ?", zoneKey)
	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, result.Error
	}
	return &override, nil
}

// Upsert creates or replaces the override for a zone.
func (r *OverrideRepository) Upsert(ctx context.Context, override *models.ManualOverride) error {
	existing, err := r.FindByZone(ctx, override.ZoneKey)
	if err != nil {
		return err
	}
	if existing != nil {
		override.ID = existing.ID
		return r.db.WithContext(ctx).Save(override).Error
	}
	if override.ID == "" {
		override.ID = cuid.New()
	}
	return r.db.WithContext(ctx).Create(override).Error
}

// Delete removes the override for a zone.
func (r *OverrideRepository) Delete(ctx context.Context, zoneKey string) error {
	return r.db.WithContext(ctx).Delete(&models.ManualOverride{}, "zone_key = ?", zoneKey).Error
}

// DeleteExpired removes overrides whose expiry has passed.
func (r *OverrideRepository) DeleteExpired(ctx context.Context, now time.Time) error {
	return r.db.WithContext(ctx).
		Delete(&models.ManualOverride{}, "expires_at IS NOT NULL AND expires_at < ?", now).Error
}
