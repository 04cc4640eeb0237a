package repository

import (
	"gorm.io/gorm"
)

// RepositoryFactory provides access to all repositories
type RepositoryFactory struct {
	db *gorm.DB

	deviceRepo     DeviceRepository
	datastreamRepo DatastreamRepository
	assetRepo      AssetRepository
	readingRepo    ReadingRepository
	alarmLogRepo   AlarmLogRepository
}

// NewRepositoryFactory creates a new repository factory
func NewRepositoryFactory(db *gorm.DB) *RepositoryFactory {
	return &RepositoryFactory{
		db:             db,
		deviceRepo:     NewDeviceRepository(db),
		datastreamRepo: NewDatastreamRepository(db),
		assetRepo:      NewAssetRepository(db),
		readingRepo:    NewReadingRepository(db),
		alarmLogRepo:   NewAlarmLogRepository(db),
	}
}

// Device returns the device repository
func (f *RepositoryFactory) Device() DeviceRepository {
	return f.deviceRepo
}

// Datastream returns the datastream repository
func (f *RepositoryFactory) Datastream() DatastreamRepository {
	return f.datastreamRepo
}

// Asset returns the asset repository
func (f *RepositoryFactory) Asset() AssetRepository {
	return f.assetRepo
}

// Reading returns the reading repository
func (f *RepositoryFactory) Reading() ReadingRepository {
	return f.readingRepo
}

// AlarmLog returns the alarm log repository
func (f *RepositoryFactory) AlarmLog() AlarmLogRepository {
	return f.alarmLogRepo
}
