package services_test

import (
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/fleetwatch/backend/internal/config"
	"github.com/fleetwatch/backend/internal/db"
	"github.com/fleetwatch/backend/internal/db/models"
	"github.com/fleetwatch/backend/internal/db/repository"
	"github.com/fleetwatch/backend/internal/services"
	"github.com/fleetwatch/backend/internal/utils"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

var testDBCounter int64

// testEnv wires the monitoring services against an in-memory SQLite
// database, with publishing disabled.
type testEnv struct {
	t         *testing.T
	db        *db.Database
	repos     *repository.RepositoryFactory
	cfg       *config.MonitorConfig
	alarmLog  *services.AlarmLogService
	ingest    *services.IngestService
	recompute *services.RecomputeService
	staleness *services.StalenessService
}

func newTestEnv(t *testing.T) *testEnv {
	dsn := fmt.Sprintf("file:fleetwatch_test_%d?mode=memory&cache=shared",
		atomic.AddInt64(&testDBCounter, 1))
	gormDB, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, gormDB.AutoMigrate(
		&models.DataType{},
		&models.Asset{},
		&models.Application{},
		&models.Device{},
		&models.Datastream{},
		&models.DsReading{},
		&models.UnusedDsReading{},
		&models.InvalidDsReading{},
		&models.NonRocDsReading{},
		&models.NoDataMarker{},
		&models.UnusedNoDataMarker{},
		&models.AlarmLogEntry{},
	))

	zapLogger, err := zap.NewDevelopment()
	require.NoError(t, err)
	logger := &utils.Logger{Logger: zapLogger}

	database := &db.Database{DB: gormDB}
	repos := repository.NewRepositoryFactory(gormDB)

	cfg := &config.MonitorConfig{
		InstanceID:              "test",
		CoalesceWindowMS:        30000,
		HealthEvalIntervalMS:    60000,
		NextEvalMarginCoef:      1.5,
		DefaultSilenceTimeoutMS: 300000,
		MaxDevicesPerBatch:      100,
		MaxAssetsPerBatch:       100,
		MaxStreamsPerBatch:      100,
		MaxAppsPerBatch:         100,
	}

	alarmLog := services.NewAlarmLogService(database, logger)
	publisher := services.NewPublisherService(nil, cfg.InstanceID, logger)

	env := &testEnv{
		t:         t,
		db:        database,
		repos:     repos,
		cfg:       cfg,
		alarmLog:  alarmLog,
		ingest:    services.NewIngestService(database, repos, alarmLog, publisher, cfg, logger),
		recompute: services.NewRecomputeService(database, repos, publisher, cfg, logger),
		staleness: services.NewStalenessService(database, repos, publisher, cfg, logger),
	}

	t.Cleanup(func() {
		zapLogger.Sync()
		if sqlDB, err := gormDB.DB(); err == nil {
			sqlDB.Close()
		}
	})

	return env
}

func (env *testEnv) createDataType(varType models.VariableType, aggType models.DataAggrType) *models.DataType {
	dt := &models.DataType{Name: "test type", VarType: varType, AggType: aggType}
	require.NoError(env.t, env.db.DB.Create(dt).Error)
	return dt
}

func (env *testEnv) createAsset(name string, parentID *uint) *models.Asset {
	asset := &models.Asset{
		Name:            name,
		ParentID:        parentID,
		IsEnabled:       true,
		TStatusStale:    3600000,
		TCurrStateStale: 3600000,
		FieldsToUpdate:  models.StringList{},
		NextUpdTS:       models.SleepTS,
		CreatedTS:       utils.NowMS(),
	}
	require.NoError(env.t, env.repos.Asset().CreateAsset(asset))
	return asset
}

func (env *testEnv) createDevice(devUI string, parentID *uint) *models.Device {
	dev := &models.Device{
		DevUI:     devUI,
		Name:      devUI,
		ParentID:  parentID,
		IsEnabled: true,
		Alarms:    models.NewAlarms(),
		NextUpdTS: models.SleepTS,
		CreatedTS: utils.NowMS(),
	}
	require.NoError(env.t, env.repos.Device().Create(dev))
	return dev
}

func (env *testEnv) createStream(dev *models.Device, name string, dt *models.DataType, mutate func(*models.Datastream)) *models.Datastream {
	ds := &models.Datastream{
		Name:              name,
		ParentID:          dev.ID,
		DataTypeID:        dt.ID,
		IsRBE:             true,
		IsEnabled:         true,
		Alarms:            models.NewAlarms(),
		TNdHealthError:    300000,
		HealthNextEvalTS:  models.SleepTS,
		MaxRateOfChange:   1000.0,
		MaxPlausibleValue: 1000000.0,
		MinPlausibleValue: -1000000.0,
		CreatedTS:         utils.NowMS(),
	}
	if mutate != nil {
		mutate(ds)
	}
	require.NoError(env.t, env.repos.Datastream().Create(ds))
	return ds
}

func (env *testEnv) createApplication(name string, parentID *uint, mutate func(*models.Application)) *models.Application {
	app := &models.Application{
		Name:            name,
		ParentID:        parentID,
		IsEnabled:       true,
		HasStatus:       true,
		HasCurrState:    true,
		Alarms:          models.NewAlarms(),
		TStatusStale:    3600000,
		TCurrStateStale: 3600000,
		StaleNextEvalTS: models.SleepTS,
		CreatedTS:       utils.NowMS(),
	}
	if mutate != nil {
		mutate(app)
	}
	require.NoError(env.t, env.repos.Asset().CreateApplication(app))
	return app
}

func (env *testEnv) reloadStream(id uint) *models.Datastream {
	ds, err := env.repos.Datastream().GetByID(id)
	require.NoError(env.t, err)
	return ds
}

func (env *testEnv) reloadDevice(id uint) *models.Device {
	dev, err := env.repos.Device().GetByID(id)
	require.NoError(env.t, err)
	return dev
}

func (env *testEnv) reloadAsset(id uint) *models.Asset {
	asset, err := env.repos.Asset().GetAssetByID(id)
	require.NoError(env.t, err)
	return asset
}

func (env *testEnv) reloadApplication(id uint) *models.Application {
	app, err := env.repos.Asset().GetApplicationByID(id)
	require.NoError(env.t, err)
	return app
}

func ptr64(v int64) *int64 { return &v }
