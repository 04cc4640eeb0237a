package services

import (
	"github.com/fleetwatch/backend/internal/db"
	"github.com/fleetwatch/backend/internal/db/models"
	"github.com/fleetwatch/backend/internal/db/repository"
	"github.com/fleetwatch/backend/internal/utils"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// AlarmLogService records operational events in the persistent alarm log
// and mirrors them to the structured logger. Log persistence is best
// effort: a failed insert never fails the unit of work that reported it.
type AlarmLogService struct {
	logger *utils.Logger
	repo   repository.AlarmLogRepository
}

// NewAlarmLogService creates a new alarm log service
func NewAlarmLogService(database *db.Database, logger *utils.Logger) *AlarmLogService {
	return &AlarmLogService{
		logger: logger.Named("alarm_log"),
		repo:   repository.NewAlarmLogRepository(database.DB),
	}
}

// Add records an entry outside any transaction, so it survives a rollback
// of the unit of work it describes.
func (s *AlarmLogService) Add(severity, message string, ts int64, entityType string, entityID *uint, instance string) {
	entry := &models.AlarmLogEntry{
		Severity:   severity,
		Message:    message,
		Time:       ts,
		EntityType: entityType,
		EntityID:   entityID,
		Instance:   instance,
	}
	s.log(entry)
	if err := s.repo.Insert(entry); err != nil {
		s.logger.Error("Failed to persist alarm log entry", zap.Error(err))
	}
}

// AddTx records an entry within the caller's transaction; it commits and
// rolls back together with the unit of work it belongs to.
func (s *AlarmLogService) AddTx(tx *gorm.DB, severity, message string, ts int64, entityType string, entityID *uint, instance string) {
	entry := &models.AlarmLogEntry{
		Severity:   severity,
		Message:    message,
		Time:       ts,
		EntityType: entityType,
		EntityID:   entityID,
		Instance:   instance,
	}
	s.log(entry)
	if err := s.repo.InsertTx(tx, entry); err != nil {
		s.logger.Error("Failed to persist alarm log entry", zap.Error(err))
	}
}

// ListRecent returns a page of entries, newest first, with the total count
func (s *AlarmLogService) ListRecent(pagination utils.PaginationRequest) ([]models.AlarmLogEntry, int64, error) {
	total, err := s.repo.Count()
	if err != nil {
		return nil, 0, err
	}

	offset := (pagination.Page - 1) * pagination.Limit
	entries, err := s.repo.ListRecent(offset, pagination.Limit)
	if err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}

func (s *AlarmLogService) log(entry *models.AlarmLogEntry) {
	fields := []zap.Field{
		zap.Int64("time", entry.Time),
		zap.String("entity_type", entry.EntityType),
		zap.String("instance", entry.Instance),
	}
	if entry.EntityID != nil {
		fields = append(fields, zap.Uint("entity_id", *entry.EntityID))
	}

	switch entry.Severity {
	case models.LogError:
		s.logger.Error(entry.Message, fields...)
	case models.LogWarning:
		s.logger.Warn(entry.Message, fields...)
	default:
		s.logger.Info(entry.Message, fields...)
	}
}
