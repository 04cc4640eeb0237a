package services

import (
	"context"

	"github.com/fleetwatch/backend/internal/config"
	"github.com/fleetwatch/backend/internal/db"
	"github.com/fleetwatch/backend/internal/db/models"
	"github.com/fleetwatch/backend/internal/db/repository"
	"github.com/fleetwatch/backend/internal/utils"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// StalenessService runs the time-driven health checks that no incoming
// payload triggers: silence detection on periodic datastreams and staleness
// flags on applications. Both jobs pick due entities by their own eval
// timestamp, so a quiet system does no per-entity work.
type StalenessService struct {
	logger    *utils.Logger
	database  *db.Database
	devices   repository.DeviceRepository
	streams   repository.DatastreamRepository
	assets    repository.AssetRepository
	publisher *PublisherService
	cfg       *config.MonitorConfig
}

// NewStalenessService creates a new staleness service
func NewStalenessService(
	database *db.Database,
	repos *repository.RepositoryFactory,
	publisher *PublisherService,
	cfg *config.MonitorConfig,
	logger *utils.Logger,
) *StalenessService {
	return &StalenessService{
		logger:    logger.Named("staleness"),
		database:  database,
		devices:   repos.Device(),
		streams:   repos.Datastream(),
		assets:    repos.Asset(),
		publisher: publisher,
		cfg:       cfg,
	}
}

// UpdateStreamHealth processes one batch of periodic datastreams due for a
// silence check. A stream silent for longer than its timeout grades no-data
// health ERROR; a stream with a reading inside the window grades OK. The
// check reschedules itself relative to the stream's heartbeat interval.
func (s *StalenessService) UpdateStreamHealth(ctx context.Context) error {
	nowTS := utils.NowMS()
	cs := NewChangeSet()

	err := s.database.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		streams, err := s.streams.ListDuePeriodicForUpdate(tx, nowTS, s.cfg.MaxStreamsPerBatch)
		if err != nil {
			return err
		}
		if len(streams) == 0 {
			return nil
		}

		// Parent devices are loaded once per batch and saved at the end, so
		// several streams of one device coalesce into a single device save.
		parents := make(map[uint]*models.Device)
		parentFields := make(map[uint]fieldSet)

		for _, ds := range streams {
			fields := fieldSet{}

			if ndHealth := s.gradeSilence(ds, nowTS); ds.NdHealth != ndHealth {
				ds.NdHealth = ndHealth
				fields.add("nd_health")
			}
			if health := ds.EvaluateHealth(); ds.Health != health {
				ds.Health = health
				fields.add("health")

				dev, ok := parents[ds.ParentID]
				if !ok {
					loaded, err := s.devices.GetTx(tx, ds.ParentID)
					if err != nil {
						return err
					}
					dev = loaded
					parents[ds.ParentID] = dev
					parentFields[ds.ParentID] = fieldSet{}
				}
				if deadline := nowTS + s.cfg.CoalesceWindowMS; dev.NextUpdTS > deadline {
					dev.NextUpdTS = deadline
					parentFields[ds.ParentID].add("next_upd_ts")
				}
			}

			ds.HealthNextEvalTS = nowTS + s.nextEvalDelay(ds)
			fields.add("health_next_eval_ts")

			if err := repository.SaveFields(tx, ds, fields.list()); err != nil {
				return err
			}
			cs.Stage(ds, fields.list())
		}

		for id, dev := range parents {
			if err := repository.SaveFields(tx, dev, parentFields[id].list()); err != nil {
				return err
			}
		}

		s.logger.Debug("Processed stream silence batch", zap.Int("count", len(streams)))
		return nil
	})
	if err != nil {
		s.logger.Error("Stream silence batch failed", zap.Error(err))
		return err
	}

	s.publisher.PublishAll(cs)
	return nil
}

// gradeSilence derives no-data health from the time since the last valid
// reading. A stream that has never produced a reading counts from its
// creation, and stays Undefined until the timeout elapses.
func (s *StalenessService) gradeSilence(ds *models.Datastream, nowTS int64) models.HealthGrade {
	base := ds.CreatedTS
	if ds.LastReadingTS != nil {
		base = *ds.LastReadingTS
	}
	if nowTS-base > ds.TNdHealthError {
		return models.HealthError
	}
	if ds.LastReadingTS != nil {
		return models.HealthOK
	}
	return models.HealthUndefined
}

// nextEvalDelay spaces silence checks by the heartbeat interval with a
// margin, floored at the global eval interval.
func (s *StalenessService) nextEvalDelay(ds *models.Datastream) int64 {
	delay := s.cfg.HealthEvalIntervalMS
	if ds.TUpdate != nil {
		if byHeartbeat := int64(float64(*ds.TUpdate) * s.cfg.NextEvalMarginCoef); byHeartbeat > delay {
			delay = byHeartbeat
		}
	}
	return delay
}

// UpdateApplicationStaleness processes one batch of applications due for a
// staleness re-check. A flipped flag dirties the parent asset for the
// corresponding aggregate field.
func (s *StalenessService) UpdateApplicationStaleness(ctx context.Context) error {
	nowTS := utils.NowMS()
	cs := NewChangeSet()

	err := s.database.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		apps, err := s.assets.ListDueApplicationsForUpdate(tx, nowTS, s.cfg.MaxAppsPerBatch)
		if err != nil {
			return err
		}
		if len(apps) == 0 {
			return nil
		}

		dirtier := newParentDirtier(s.assets)

		for _, app := range apps {
			fields := fieldSet{}

			if app.HasStatus {
				stale := isStale(app.LastStatusUpdateTS, app.CreatedTS, app.TStatusStale, nowTS)
				if app.IsStatusStale != stale {
					app.IsStatusStale = stale
					fields.add("is_status_stale")
					if app.ParentID != nil {
						if err := dirtier.dirty(tx, *app.ParentID, models.FieldStatus, nowTS+s.cfg.CoalesceWindowMS); err != nil {
							return err
						}
					}
				}
			}
			if app.HasCurrState {
				stale := isStale(app.LastCurrStateUpdateTS, app.CreatedTS, app.TCurrStateStale, nowTS)
				if app.IsCurrStateStale != stale {
					app.IsCurrStateStale = stale
					fields.add("is_curr_state_stale")
					if app.ParentID != nil {
						if err := dirtier.dirty(tx, *app.ParentID, models.FieldCurrState, nowTS+s.cfg.CoalesceWindowMS); err != nil {
							return err
						}
					}
				}
			}

			app.StaleNextEvalTS = nowTS + s.cfg.HealthEvalIntervalMS
			fields.add("stale_next_eval_ts")

			if err := repository.SaveFields(tx, app, fields.list()); err != nil {
				return err
			}
			cs.Stage(app, fields.list())
		}

		s.logger.Debug("Processed application staleness batch", zap.Int("count", len(apps)))
		return dirtier.save(tx)
	})
	if err != nil {
		s.logger.Error("Application staleness batch failed", zap.Error(err))
		return err
	}

	s.publisher.PublishAll(cs)
	return nil
}
