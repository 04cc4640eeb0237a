package services

import (
	"context"
	"fmt"
	"time"

	"github.com/fleetwatch/backend/internal/config"
	"github.com/fleetwatch/backend/internal/db"
	"github.com/fleetwatch/backend/internal/db/repository"
	"github.com/fleetwatch/backend/internal/kafka"
	"github.com/fleetwatch/backend/internal/utils"
	"go.uber.org/zap"
)

// ServiceProvider manages all services for the application
type ServiceProvider struct {
	logger           *utils.Logger
	config           *config.Config
	database         *db.Database
	kafkaManager     *kafka.Manager
	alarmLogService  *AlarmLogService
	publisherService *PublisherService
	ingestService    *IngestService
	recomputeService *RecomputeService
	stalenessService *StalenessService
	telemetryHandler *TelemetryHandler
	scheduler        *Scheduler
}

// NewServiceProvider creates a new service provider
func NewServiceProvider(
	logger *utils.Logger,
	config *config.Config,
	database *db.Database,
) *ServiceProvider {
	return &ServiceProvider{
		logger:   logger.Named("services"),
		config:   config,
		database: database,
	}
}

// Initialize wires and starts all services: the Kafka transport, the ingest
// pipeline behind it, and the batch job scheduler.
func (sp *ServiceProvider) Initialize(ctx context.Context) error {
	var err error

	sp.kafkaManager, err = kafka.NewManager(&sp.config.Kafka, sp.logger)
	if err != nil {
		return fmt.Errorf("failed to create Kafka manager: %w", err)
	}

	repoFactory := repository.NewRepositoryFactory(sp.database.DB)
	monitorCfg := &sp.config.Monitor

	sp.alarmLogService = NewAlarmLogService(sp.database, sp.logger)
	sp.publisherService = NewPublisherService(sp.kafkaManager, monitorCfg.InstanceID, sp.logger)
	sp.ingestService = NewIngestService(sp.database, repoFactory, sp.alarmLogService, sp.publisherService, monitorCfg, sp.logger)
	sp.recomputeService = NewRecomputeService(sp.database, repoFactory, sp.publisherService, monitorCfg, sp.logger)
	sp.stalenessService = NewStalenessService(sp.database, repoFactory, sp.publisherService, monitorCfg, sp.logger)

	sp.telemetryHandler, err = NewTelemetryHandler(sp.kafkaManager, sp.ingestService, sp.alarmLogService, monitorCfg.InstanceID, sp.logger)
	if err != nil {
		return fmt.Errorf("failed to create telemetry handler: %w", err)
	}
	if err = sp.telemetryHandler.Initialize(ctx); err != nil {
		return fmt.Errorf("failed to initialize telemetry handler: %w", err)
	}

	if err = sp.kafkaManager.Start(); err != nil {
		return fmt.Errorf("failed to start Kafka manager: %w", err)
	}
	sp.logger.Info("Kafka manager started")

	sp.scheduler = NewScheduler([]Job{
		{
			Name:   "update_devices",
			Period: time.Duration(monitorCfg.DeviceUpdatePeriodSec) * time.Second,
			Run:    sp.recomputeService.UpdateDevices,
		},
		{
			Name:   "update_assets",
			Period: time.Duration(monitorCfg.AssetUpdatePeriodSec) * time.Second,
			Run:    sp.recomputeService.UpdateAssets,
		},
		{
			Name:   "update_stream_health",
			Period: time.Duration(monitorCfg.StreamHealthPeriodSec) * time.Second,
			Run:    sp.stalenessService.UpdateStreamHealth,
		},
		{
			Name:   "update_app_staleness",
			Period: time.Duration(monitorCfg.AppStalenessPeriodSec) * time.Second,
			Run:    sp.stalenessService.UpdateApplicationStaleness,
		},
	}, sp.logger)
	sp.scheduler.Start(ctx)

	sp.logger.Info("All services initialized successfully")
	return nil
}

// Shutdown performs a graceful shutdown of all services
func (sp *ServiceProvider) Shutdown() error {
	sp.logger.Info("Shutting down services")

	if sp.scheduler != nil {
		sp.scheduler.Stop()
	}

	if sp.kafkaManager != nil && sp.kafkaManager.IsRunning() {
		sp.logger.Info("Stopping Kafka manager")
		if err := sp.kafkaManager.Stop(); err != nil {
			sp.logger.Error("Failed to stop Kafka manager", zap.Error(err))
		}
	}

	sp.logger.Info("Services shut down successfully")
	return nil
}

// GetKafkaManager returns the Kafka manager
func (sp *ServiceProvider) GetKafkaManager() *kafka.Manager {
	return sp.kafkaManager
}

// GetAlarmLogService returns the alarm log service
func (sp *ServiceProvider) GetAlarmLogService() *AlarmLogService {
	return sp.alarmLogService
}

// GetIngestService returns the ingest service
func (sp *ServiceProvider) GetIngestService() *IngestService {
	return sp.ingestService
}

// GetRecomputeService returns the recompute service
func (sp *ServiceProvider) GetRecomputeService() *RecomputeService {
	return sp.recomputeService
}

// GetStalenessService returns the staleness service
func (sp *ServiceProvider) GetStalenessService() *StalenessService {
	return sp.stalenessService
}
