package repository

import (
	"github.com/fleetwatch/backend/internal/db/models"
	"gorm.io/gorm"
)

// AlarmLogRepository defines operations for the persistent operations log
type AlarmLogRepository interface {
	Repository
	Insert(entry *models.AlarmLogEntry) error
	InsertTx(tx *gorm.DB, entry *models.AlarmLogEntry) error
	ListRecent(offset, limit int) ([]models.AlarmLogEntry, error)
	Count() (int64, error)
}

// alarmLogRepository implements AlarmLogRepository
type alarmLogRepository struct {
	BaseRepository
}

// NewAlarmLogRepository creates a new alarm log repository
func NewAlarmLogRepository(db *gorm.DB) AlarmLogRepository {
	return &alarmLogRepository{
		BaseRepository: NewBaseRepository(db),
	}
}

// Insert appends a log entry outside any caller transaction, so entries
// recorded while diagnosing a failed unit of work survive its rollback.
func (r *alarmLogRepository) Insert(entry *models.AlarmLogEntry) error {
	err := r.GetDB().Create(entry).Error
	return r.handleError(err)
}

// InsertTx appends a log entry within the caller's transaction
func (r *alarmLogRepository) InsertTx(tx *gorm.DB, entry *models.AlarmLogEntry) error {
	err := tx.Create(entry).Error
	return r.handleError(err)
}

// ListRecent retrieves a page of log entries, newest first
func (r *alarmLogRepository) ListRecent(offset, limit int) ([]models.AlarmLogEntry, error) {
	var entries []models.AlarmLogEntry

	query := r.GetDB().Order("time desc, id desc")
	if offset > 0 {
		query = query.Offset(offset)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}

	if err := query.Find(&entries).Error; err != nil {
		return nil, r.handleError(err)
	}
	return entries, nil
}

// Count returns the total number of log entries
func (r *alarmLogRepository) Count() (int64, error) {
	var count int64
	err := r.GetDB().Model(&models.AlarmLogEntry{}).Count(&count).Error
	return count, r.handleError(err)
}
