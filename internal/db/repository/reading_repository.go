package repository

import (
	"github.com/fleetwatch/backend/internal/db/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ReadingRepository defines operations for the append-only reading and
// no-data-marker audit trails. All inserts ignore key conflicts: a repeat
// of the same (datastream, timestamp) row is silently dropped, never an
// error and never an overwrite.
type ReadingRepository interface {
	Repository
	BulkInsertReadings(tx *gorm.DB, rows []models.DsReading) error
	BulkInsertUnusedReadings(tx *gorm.DB, rows []models.UnusedDsReading) error
	BulkInsertInvalidReadings(tx *gorm.DB, rows []models.InvalidDsReading) error
	BulkInsertNonRocReadings(tx *gorm.DB, rows []models.NonRocDsReading) error
	BulkInsertNoDataMarkers(tx *gorm.DB, rows []models.NoDataMarker) error
	BulkInsertUnusedNoDataMarkers(tx *gorm.DB, rows []models.UnusedNoDataMarker) error
	ListReadings(datastreamID uint, start, end int64, limit int) ([]models.DsReading, error)
	CountReadings(datastreamID uint) (int64, error)
	CountNoDataMarkers(datastreamID uint) (int64, error)
}

// readingRepository implements ReadingRepository
type readingRepository struct {
	BaseRepository
}

// NewReadingRepository creates a new reading repository
func NewReadingRepository(db *gorm.DB) ReadingRepository {
	return &readingRepository{
		BaseRepository: NewBaseRepository(db),
	}
}

const insertBatchSize = 100

// insertIgnoringConflicts bulk-inserts rows, dropping duplicate keys
func (r *readingRepository) insertIgnoringConflicts(tx *gorm.DB, rows interface{}) error {
	err := tx.Clauses(clause.OnConflict{DoNothing: true}).
		CreateInBatches(rows, insertBatchSize).Error
	return r.handleError(err)
}

// BulkInsertReadings inserts valid readings
func (r *readingRepository) BulkInsertReadings(tx *gorm.DB, rows []models.DsReading) error {
	if len(rows) == 0 {
		return nil
	}
	return r.insertIgnoringConflicts(tx, rows)
}

// BulkInsertUnusedReadings inserts out-of-window readings
func (r *readingRepository) BulkInsertUnusedReadings(tx *gorm.DB, rows []models.UnusedDsReading) error {
	if len(rows) == 0 {
		return nil
	}
	return r.insertIgnoringConflicts(tx, rows)
}

// BulkInsertInvalidReadings inserts readings that failed validation
func (r *readingRepository) BulkInsertInvalidReadings(tx *gorm.DB, rows []models.InvalidDsReading) error {
	if len(rows) == 0 {
		return nil
	}
	return r.insertIgnoringConflicts(tx, rows)
}

// BulkInsertNonRocReadings inserts readings that failed the rate-of-change check
func (r *readingRepository) BulkInsertNonRocReadings(tx *gorm.DB, rows []models.NonRocDsReading) error {
	if len(rows) == 0 {
		return nil
	}
	return r.insertIgnoringConflicts(tx, rows)
}

// BulkInsertNoDataMarkers inserts accepted no-data markers
func (r *readingRepository) BulkInsertNoDataMarkers(tx *gorm.DB, rows []models.NoDataMarker) error {
	if len(rows) == 0 {
		return nil
	}
	return r.insertIgnoringConflicts(tx, rows)
}

// BulkInsertUnusedNoDataMarkers inserts out-of-window no-data markers
func (r *readingRepository) BulkInsertUnusedNoDataMarkers(tx *gorm.DB, rows []models.UnusedNoDataMarker) error {
	if len(rows) == 0 {
		return nil
	}
	return r.insertIgnoringConflicts(tx, rows)
}

// ListReadings retrieves valid readings for a datastream within a time range
func (r *readingRepository) ListReadings(datastreamID uint, start, end int64, limit int) ([]models.DsReading, error) {
	var rows []models.DsReading

	query := r.GetDB().Where("datastream_id = ? AND time >= ? AND time <= ?", datastreamID, start, end)
	if limit > 0 {
		query = query.Limit(limit)
	}

	if err := query.Order("time asc").Find(&rows).Error; err != nil {
		return nil, r.handleError(err)
	}
	return rows, nil
}

// CountReadings counts the valid readings stored for a datastream
func (r *readingRepository) CountReadings(datastreamID uint) (int64, error) {
	var count int64
	err := r.GetDB().Model(&models.DsReading{}).
		Where("datastream_id = ?", datastreamID).
		Count(&count).Error
	return count, r.handleError(err)
}

// CountNoDataMarkers counts the accepted no-data markers stored for a datastream
func (r *readingRepository) CountNoDataMarkers(datastreamID uint) (int64, error) {
	var count int64
	err := r.GetDB().Model(&models.NoDataMarker{}).
		Where("datastream_id = ?", datastreamID).
		Count(&count).Error
	return count, r.handleError(err)
}
