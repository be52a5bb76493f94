package repositories

import (
	"context"

	"github.com/lucsky/cuid"
	"gorm.io/gorm"

	"github.com/growmesh/growlights-go/internal/database/models"
)

// SensorRepository handles sensor instance data access.
type SensorRepository struct {
	db *gorm.DB
}

// NewSensorRepository creates a new SensorRepository.
func NewSensorRepository(db *gorm.DB) *SensorRepository {
	return &SensorRepository{db: db}
}

// FindAll returns all sensors, optionally restricted to enabled ones.
func (r *SensorRepository) FindAll(ctx context.Context, enabledOnly bool) ([]models.SensorInstance, error) {
	var sensors []models.SensorInstance
	q := r.db.WithContext(ctx)
	if enabledOnly {
		q = q.Where("enabled = ?", true)
	}
	result := q.Order("name ASC").Find(&sensors)
	return sensors, result.Error
}

// FindByID returns a sensor by ID.
func (r *SensorRepository) FindByID(ctx context.Context, id string) (*models.SensorInstance, error) {
	var sensor models.SensorInstance
	result := r.db.WithContext(ctx).First(&sensor, "id = ?", id)
	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, result.Error
	}
	return &sensor, nil
}

// FindByZone returns all sensors assigned to a zone.
func (r *SensorRepository) FindByZone(ctx context.Context, zoneKey string) ([]models.SensorInstance, error) {
	var sensors []models.SensorInstance
	result := r.db.WithContext(ctx).
		Where("zone_key = ?", zoneKey).
		Find(&sensors)
	return sensors, result.Error
}

// Create creates a new sensor instance.
func (r *SensorRepository) Create(ctx context.Context, sensor *models.SensorInstance) error {
	if sensor.ID == "" {
		sensor.ID = cuid.New()
	}
	return r.db.WithContext(ctx).Create(sensor).Error
}

// Update updates an existing sensor instance.
func (r *SensorRepository) Update(ctx context.Context, sensor *models.SensorInstance) error {
	return r.db.WithContext(ctx).Save(sensor).Error
}

// Delete deletes a sensor instance by ID.
func (r *SensorRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Delete(&models.SensorInstance{}, "id = ?", id).Error
}
