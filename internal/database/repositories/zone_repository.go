package repositories

import (
	"context"

	"github.com/lucsky/cuid"
	"gorm.io/gorm"

	"github.com/growmesh/growlights-go/internal/database/models"
)

// ZoneRepository handles zone and zone-target data access.
type ZoneRepository struct {
	db *gorm.DB
}

// NewZoneRepository creates a new ZoneRepository.
func NewZoneRepository(db *gorm.DB) *ZoneRepository {
	return &ZoneRepository{db: db}
}

// FindAll returns all zones ordered by grid position.
func (r *ZoneRepository) FindAll(ctx context.Context) ([]models.Zone, error) {
	var zones []models.Zone
	result := r.db.WithContext(ctx).
		Order("row ASC, col ASC").
		Find(&zones)
	return zones, result.Error
}

// FindByKey returns a zone by its grid key.
func (r *ZoneRepository) FindByKey(ctx context.Context, zoneKey string) (*models.Zone, error) {
	var zone models.Zone
	result := r.db.WithContext(ctx).First(&zone, "zone_key = ?", zoneKey)
	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, result.Error
	}
	return &zone, nil
}

// Create creates a new zone.
func (r *ZoneRepository) Create(ctx context.Context, zone *models.Zone) error {
	if zone.ID == "" {
		zone.ID = cuid.New()
	}
	return r.db.WithContext(ctx).Create(zone).Error
}

// Delete deletes a zone by key.
func (r *ZoneRepository) Delete(ctx context.Context, zoneKey string) error {
	return r.db.WithContext(ctx).Delete(&models.Zone{}, "zone_key = ?", zoneKey).Error
}

// FindTarget returns the lighting target for a zone.
func (r *ZoneRepository) FindTarget(ctx context.Context, zoneKey string) (*models.ZoneTarget, error) {
	var target models.ZoneTarget
	result := r.db.WithContext(ctx).First(&target, "zone_key = ?", zoneKey)
	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, result.Error
	}
	return &target, nil
}

// FindAllTargets returns every configured zone target.
func (r *ZoneRepository) FindAllTargets(ctx context.Context) ([]models.ZoneTarget, error) {
	var targets []models.ZoneTarget
	result := r.db.WithContext(ctx).Find(&targets)
	return targets, result.Error
}

// UpsertTarget creates or replaces the target for a zone.
func (r *ZoneRepository) UpsertTarget(ctx context.Context, target *models.ZoneTarget) error {
	existing, err := r.FindTarget(ctx, target.ZoneKey)
	if err != nil {
		return err
	}
	if existing != nil {
		target.ID = existing.ID
		return r.db.WithContext(ctx).Save(target).Error
	}
	if target.ID == "" {
		target.ID = cuid.New()
	}
	return r.db.WithContext(ctx).Create(target).Error
}
