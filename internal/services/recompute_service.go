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

// RecomputeService runs the batch jobs that re-derive container entities
// from their children. Entities announce work by pulling next_upd_ts into
// the past; a processed entity goes back to sleep until a child change
// dirties it again. Changes propagate one level per pass, so a deep change
// climbs the hierarchy across consecutive batches.
type RecomputeService struct {
	logger    *utils.Logger
	database  *db.Database
	devices   repository.DeviceRepository
	streams   repository.DatastreamRepository
	assets    repository.AssetRepository
	publisher *PublisherService
	cfg       *config.MonitorConfig
}

// NewRecomputeService creates a new recompute service
func NewRecomputeService(
	database *db.Database,
	repos *repository.RepositoryFactory,
	publisher *PublisherService,
	cfg *config.MonitorConfig,
	logger *utils.Logger,
) *RecomputeService {
	return &RecomputeService{
		logger:    logger.Named("recompute"),
		database:  database,
		devices:   repos.Device(),
		streams:   repos.Datastream(),
		assets:    repos.Asset(),
		publisher: publisher,
		cfg:       cfg,
	}
}

// UpdateDevices processes one batch of due devices: child health is
// re-derived from the enabled datastreams, combined with message health,
// and a change dirties the parent asset.
func (s *RecomputeService) UpdateDevices(ctx context.Context) error {
	nowTS := utils.NowMS()
	cs := NewChangeSet()

	err := s.database.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		devices, err := s.devices.ListDueForUpdate(tx, nowTS, s.cfg.MaxDevicesPerBatch)
		if err != nil {
			return err
		}
		if len(devices) == 0 {
			return nil
		}

		dirtier := newParentDirtier(s.assets)

		for _, dev := range devices {
			fields := fieldSet{}

			streams, err := s.streams.ListEnabledTx(tx, dev.ID)
			if err != nil {
				return err
			}
			children := make([]models.AggChild, len(streams))
			for i, ds := range streams {
				children[i] = ds
			}

			if chld := models.DeriveChildHealth(children); dev.ChldHealth != chld {
				dev.ChldHealth = chld
				fields.add("chld_health")
			}
			if health := dev.EvaluateHealth(); dev.Health != health {
				dev.Health = health
				fields.add("health")
				if dev.ParentID != nil {
					if err := dirtier.dirty(tx, *dev.ParentID, models.FieldHealth, nowTS+s.cfg.CoalesceWindowMS); err != nil {
						return err
					}
				}
			}

			dev.NextUpdTS = models.SleepTS
			fields.add("next_upd_ts")

			if err := repository.SaveFields(tx, dev, fields.list()); err != nil {
				return err
			}
			cs.Stage(dev, fields.list())
		}

		s.logger.Debug("Processed device batch", zap.Int("count", len(devices)))
		return dirtier.save(tx)
	})
	if err != nil {
		s.logger.Error("Device recompute batch failed", zap.Error(err))
		return err
	}

	s.publisher.PublishAll(cs)
	return nil
}

// UpdateAssets processes one batch of due assets. Only the fields marked
// pending are re-derived; recomputed values that changed propagate the same
// field marker to the parent asset. Staleness flags are re-checked on every
// pass through an asset.
func (s *RecomputeService) UpdateAssets(ctx context.Context) error {
	nowTS := utils.NowMS()
	cs := NewChangeSet()

	err := s.database.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		assets, err := s.assets.ListDueAssetsForUpdate(tx, nowTS, s.cfg.MaxAssetsPerBatch)
		if err != nil {
			return err
		}
		if len(assets) == 0 {
			return nil
		}

		dirtier := newParentDirtier(s.assets)

		for _, asset := range assets {
			fields := fieldSet{}

			children, err := s.assets.ListChildren(tx, asset.ID)
			if err != nil {
				return err
			}

			for _, field := range asset.PendingFields() {
				if !asset.RecomputeField(field, children) {
					continue
				}
				fields.add(field)

				switch field {
				case models.FieldStatus:
					ts := nowTS
					asset.LastStatusUpdateTS = &ts
					fields.add("last_status_update_ts")
				case models.FieldCurrState:
					ts := nowTS
					asset.LastCurrStateUpdateTS = &ts
					fields.add("last_curr_state_update_ts")
				}

				if asset.ParentID != nil {
					if err := dirtier.dirty(tx, *asset.ParentID, field, nowTS+s.cfg.CoalesceWindowMS); err != nil {
						return err
					}
				}
			}
			if len(asset.PendingFields()) > 0 {
				asset.ClearPendingFields()
				fields.add("fields_to_update")
			}

			if err := s.refreshAssetStaleness(tx, asset, fields, dirtier, nowTS); err != nil {
				return err
			}

			asset.SetNextRecomputeAt(models.SleepTS)
			fields.add("next_upd_ts")

			if err := repository.SaveFields(tx, asset, fields.list()); err != nil {
				return err
			}
			cs.Stage(asset, fields.list())
		}

		s.logger.Debug("Processed asset batch", zap.Int("count", len(assets)))
		return dirtier.save(tx)
	})
	if err != nil {
		s.logger.Error("Asset recompute batch failed", zap.Error(err))
		return err
	}

	s.publisher.PublishAll(cs)
	return nil
}

// refreshAssetStaleness re-derives the asset's staleness flags from elapsed
// time since the last aggregate refresh. A flag flip interests the parent
// the same way a value change of the underlying field does.
func (s *RecomputeService) refreshAssetStaleness(tx *gorm.DB, asset *models.Asset, fields fieldSet, dirtier *parentDirtier, nowTS int64) error {
	statusStale := isStale(asset.LastStatusUpdateTS, asset.CreatedTS, asset.TStatusStale, nowTS)
	if asset.IsStatusStale != statusStale {
		asset.IsStatusStale = statusStale
		fields.add("is_status_stale")
		if asset.ParentID != nil {
			if err := dirtier.dirty(tx, *asset.ParentID, models.FieldStatus, nowTS+s.cfg.CoalesceWindowMS); err != nil {
				return err
			}
		}
	}

	currStateStale := isStale(asset.LastCurrStateUpdateTS, asset.CreatedTS, asset.TCurrStateStale, nowTS)
	if asset.IsCurrStateStale != currStateStale {
		asset.IsCurrStateStale = currStateStale
		fields.add("is_curr_state_stale")
		if asset.ParentID != nil {
			if err := dirtier.dirty(tx, *asset.ParentID, models.FieldCurrState, nowTS+s.cfg.CoalesceWindowMS); err != nil {
				return err
			}
		}
	}
	return nil
}

// isStale reports whether the aggregate last refreshed at lastTS (or never,
// falling back to createdTS) has exceeded its staleness threshold.
func isStale(lastTS *int64, createdTS, threshold, nowTS int64) bool {
	base := createdTS
	if lastTS != nil {
		base = *lastTS
	}
	return nowTS-base > threshold
}
