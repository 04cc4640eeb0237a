package repository

import (
	"github.com/fleetwatch/backend/internal/db/models"
	"gorm.io/gorm"
)

// DeviceRepository defines operations for managing devices
type DeviceRepository interface {
	Repository
	Create(device *models.Device) error
	GetByID(id uint) (*models.Device, error)
	GetByDevUI(devUI string) (*models.Device, error)
	// GetByDevUIForUpdate loads a device under an exclusive row lock within
	// tx; returns ErrNotFound when the device is unknown.
	GetByDevUIForUpdate(tx *gorm.DB, devUI string) (*models.Device, error)
	GetForUpdate(tx *gorm.DB, id uint) (*models.Device, error)
	// GetTx reads a device within tx without taking a lock.
	GetTx(tx *gorm.DB, id uint) (*models.Device, error)
	// ListDueForUpdate selects up to limit devices with next_upd_ts <= now,
	// ordered ascending by due time, locked within tx.
	ListDueForUpdate(tx *gorm.DB, now int64, limit int) ([]*models.Device, error)
}

// deviceRepository implements DeviceRepository
type deviceRepository struct {
	BaseRepository
}

// NewDeviceRepository creates a new device repository
func NewDeviceRepository(db *gorm.DB) DeviceRepository {
	return &deviceRepository{
		BaseRepository: NewBaseRepository(db),
	}
}

// Create inserts a new device
func (r *deviceRepository) Create(device *models.Device) error {
	err := r.GetDB().Create(device).Error
	return r.handleError(err)
}

// GetByID retrieves a device by primary key
func (r *deviceRepository) GetByID(id uint) (*models.Device, error) {
	var device models.Device
	if err := r.GetDB().First(&device, id).Error; err != nil {
		return nil, r.handleError(err)
	}
	return &device, nil
}

// GetByDevUI retrieves a device by its transport UID
func (r *deviceRepository) GetByDevUI(devUI string) (*models.Device, error) {
	var device models.Device
	if err := r.GetDB().Where("dev_ui = ?", devUI).First(&device).Error; err != nil {
		return nil, r.handleError(err)
	}
	return &device, nil
}

// GetByDevUIForUpdate retrieves and locks a device by its transport UID
func (r *deviceRepository) GetByDevUIForUpdate(tx *gorm.DB, devUI string) (*models.Device, error) {
	var device models.Device
	if err := ForUpdate(tx).Where("dev_ui = ?", devUI).First(&device).Error; err != nil {
		return nil, r.handleError(err)
	}
	return &device, nil
}

// GetForUpdate retrieves and locks a device by primary key
func (r *deviceRepository) GetForUpdate(tx *gorm.DB, id uint) (*models.Device, error) {
	var device models.Device
	if err := ForUpdate(tx).First(&device, id).Error; err != nil {
		return nil, r.handleError(err)
	}
	return &device, nil
}

// GetTx retrieves a device by primary key within a transaction
func (r *deviceRepository) GetTx(tx *gorm.DB, id uint) (*models.Device, error) {
	var device models.Device
	if err := tx.First(&device, id).Error; err != nil {
		return nil, r.handleError(err)
	}
	return &device, nil
}

// ListDueForUpdate selects and locks the devices due for recompute
func (r *deviceRepository) ListDueForUpdate(tx *gorm.DB, now int64, limit int) ([]*models.Device, error) {
	var devices []*models.Device
	err := ForUpdate(tx).
		Where("next_upd_ts <= ?", now).
		Order("next_upd_ts asc").
		Limit(limit).
		Find(&devices).Error
	if err != nil {
		return nil, r.handleError(err)
	}
	return devices, nil
}
