package repositories

import (
	"context"

	"github.com/lucsky/cuid"
	"gorm.io/gorm"

	"github.com/growmesh/growlights-go/internal/database/models"
)

// FixtureRepository handles fixture data access.
type FixtureRepository struct {
	db *gorm.DB
}

// NewFixtureRepository creates a new FixtureRepository.
func NewFixtureRepository(db *gorm.DB) *FixtureRepository {
	return &FixtureRepository{db: db}
}

// FindAll returns all fixtures, optionally restricted to enabled ones.
func (r *FixtureRepository) FindAll(ctx context.Context, enabledOnly bool) ([]models.FixtureInstance, error) {
	var fixtures []models.FixtureInstance
	q := r.db.WithContext(ctx)
	if enabledOnly {
		q = q.Where("enabled = ?", true)
	}
	result := q.Order("zone_key ASC, name ASC").Find(&fixtures)
	return fixtures, result.Error
}

// FindByZone returns all fixtures installed in a zone.
func (r *FixtureRepository) FindByZone(ctx context.Context, zoneKey string) ([]models.FixtureInstance, error) {
	var fixtures []models.FixtureInstance
	result := r.db.WithContext(ctx).
		Where("zone_key = ?", zoneKey).
		Order("name ASC").
		Find(&fixtures)
	return fixtures, result.Error
}

// FindByID returns a fixture by ID.
func (r *FixtureRepository) FindByID(ctx context.Context, id string) (*models.FixtureInstance, error) {
	var fixture models.FixtureInstance
	result := r.db.WithContext(ctx).First(&fixture, "id = ?", id)
	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, result.Error
	}
	return &fixture, nil
}

// FindByRelayGroup returns all fixtures wired to a relay group.
func (r *FixtureRepository) FindByRelayGroup(ctx context.Context, group string) ([]models.FixtureInstance, error) {
	var fixtures []models.FixtureInstance
	result := r.db.WithContext(ctx).
		Where("relay_group = ?", group).
		Find(&fixtures)
	return fixtures, result.Error
}

// Create creates a new fixture instance.
func (r *FixtureRepository) Create(ctx context.Context, fixture *models.FixtureInstance) error {
	if fixture.ID == "" {
		fixture.ID = cuid.New()
	}
	return r.db.WithContext(ctx).Create(fixture).Error
}

// Update updates an existing fixture instance.
func (r *FixtureRepository) Update(ctx context.Context, fixture *models.FixtureInstance) error {
	return r.db.WithContext(ctx).Save(fixture).Error
}

// Delete deletes a fixture instance by ID.
func (r *FixtureRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Delete(&models.FixtureInstance{}, "id = ?", id).Error
}
