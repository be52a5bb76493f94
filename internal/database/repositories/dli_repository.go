package repositories

import (
	"context"

	"github.com/lucsky/cuid"
	"gorm.io/gorm"

	"github.com/growmesh/growlights-go/internal/database/models"
)

// DLIRepository handles persisted daily-light-integral history.
type DLIRepository struct {
	db *gorm.DB
}

// NewDLIRepository creates a new DLIRepository.
func NewDLIRepository(db *gorm.DB) *DLIRepository {
	return &DLIRepository{db: db}
}

// SaveDay records a frozen day total, replacing any earlier row for the
// same zone and day.
func (r *DLIRepository) SaveDay(ctx context.Context, day *models.DLIDay) error {
	var existing models.DLIDay
	result := r.db.WithContext(ctx).
		First(&existing, "zone_key = ? AND day = ?", day.ZoneKey, day.Day)
	if result.Error == nil {
		day.ID = existing.ID
		return r.db.WithContext(ctx).Save(day).Error
	}
	if result.Error != gorm.ErrRecordNotFound {
		return result.Error
	}
	if day.ID == "" {
		day.ID = cuid.New()
	}
	return r.db.WithContext(ctx).Create(day).Error
}

// FindByZone returns a zone's history, most recent day first, capped at
// limit rows (0 means no cap).
func (r *DLIRepository) FindByZone(ctx context.Context, zoneKey string, limit int) ([]models.DLIDay, error) {
	var days []models.DLIDay
	q := r.db.WithContext(ctx).
		Where("zone_key = ?", zoneKey).
		Order("day DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	result := q.Find(&days)
	return days, result.Error
}

// PruneBefore deletes history rows older than the given day (exclusive).
func (r *DLIRepository) PruneBefore(ctx context.Context, day string) error {
	return r.db.WithContext(ctx).
		Delete(&models.DLIDay{}, "day < ?", day).Error
}
