package repository

import (
	"github.com/fleetwatch/backend/internal/db/models"
	"gorm.io/gorm"
)

// DatastreamRepository defines operations for managing datastreams
type DatastreamRepository interface {
	Repository
	Create(ds *models.Datastream) error
	GetByID(id uint) (*models.Datastream, error)
	// ListEnabledForUpdate loads a device's enabled datastreams under
	// exclusive row locks within tx, data types preloaded.
	ListEnabledForUpdate(tx *gorm.DB, deviceID uint) ([]*models.Datastream, error)
	ListEnabled(deviceID uint) ([]*models.Datastream, error)
	// ListEnabledTx reads a device's enabled datastreams within tx without
	// taking locks.
	ListEnabledTx(tx *gorm.DB, deviceID uint) ([]*models.Datastream, error)
	// ListDuePeriodicForUpdate selects up to limit enabled periodic streams
	// with health_next_eval_ts <= now, ordered ascending by due time,
	// locked within tx.
	ListDuePeriodicForUpdate(tx *gorm.DB, now int64, limit int) ([]*models.Datastream, error)
}

// datastreamRepository implements DatastreamRepository
type datastreamRepository struct {
	BaseRepository
}

// NewDatastreamRepository creates a new datastream repository
func NewDatastreamRepository(db *gorm.DB) DatastreamRepository {
	return &datastreamRepository{
		BaseRepository: NewBaseRepository(db),
	}
}

// Create inserts a new datastream
func (r *datastreamRepository) Create(ds *models.Datastream) error {
	err := r.GetDB().Create(ds).Error
	return r.handleError(err)
}

// GetByID retrieves a datastream by primary key
func (r *datastreamRepository) GetByID(id uint) (*models.Datastream, error) {
	var ds models.Datastream
	if err := r.GetDB().Preload("DataType").First(&ds, id).Error; err != nil {
		return nil, r.handleError(err)
	}
	return &ds, nil
}

// ListEnabledForUpdate retrieves and locks the enabled datastreams of a device
func (r *datastreamRepository) ListEnabledForUpdate(tx *gorm.DB, deviceID uint) ([]*models.Datastream, error) {
	var streams []*models.Datastream
	err := ForUpdate(tx).
		Preload("DataType").
		Where("parent_id = ? AND is_enabled = ?", deviceID, true).
		Find(&streams).Error
	if err != nil {
		return nil, r.handleError(err)
	}
	return streams, nil
}

// ListEnabled retrieves the enabled datastreams of a device without locking
func (r *datastreamRepository) ListEnabled(deviceID uint) ([]*models.Datastream, error) {
	var streams []*models.Datastream
	err := r.GetDB().
		Where("parent_id = ? AND is_enabled = ?", deviceID, true).
		Find(&streams).Error
	if err != nil {
		return nil, r.handleError(err)
	}
	return streams, nil
}

// ListEnabledTx reads the enabled datastreams of a device within a transaction
func (r *datastreamRepository) ListEnabledTx(tx *gorm.DB, deviceID uint) ([]*models.Datastream, error) {
	var streams []*models.Datastream
	err := tx.
		Where("parent_id = ? AND is_enabled = ?", deviceID, true).
		Find(&streams).Error
	if err != nil {
		return nil, r.handleError(err)
	}
	return streams, nil
}

// ListDuePeriodicForUpdate selects and locks the periodic streams due for a
// health re-check.
func (r *datastreamRepository) ListDuePeriodicForUpdate(tx *gorm.DB, now int64, limit int) ([]*models.Datastream, error) {
	var streams []*models.Datastream
	err := ForUpdate(tx).
		Where("health_next_eval_ts <= ? AND is_enabled = ? AND t_update IS NOT NULL", now, true).
		Order("health_next_eval_ts asc").
		Limit(limit).
		Find(&streams).Error
	if err != nil {
		return nil, r.handleError(err)
	}
	return streams, nil
}
