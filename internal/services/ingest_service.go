package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/fleetwatch/backend/internal/config"
	"github.com/fleetwatch/backend/internal/db"
	"github.com/fleetwatch/backend/internal/db/models"
	"github.com/fleetwatch/backend/internal/db/repository"
	"github.com/fleetwatch/backend/internal/utils"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// IngestService turns raw device payloads into alarm state, health grades,
// reading audit trails and parent recompute work. One payload is one
// transaction: the device row and its enabled datastreams are locked for the
// duration, and either every effect commits or none does.
type IngestService struct {
	logger    *utils.Logger
	database  *db.Database
	devices   repository.DeviceRepository
	streams   repository.DatastreamRepository
	readings  repository.ReadingRepository
	dirtier   func() *parentDirtier
	alarmLog  *AlarmLogService
	publisher *PublisherService
	cfg       *config.MonitorConfig
}

// NewIngestService creates a new ingest service
func NewIngestService(
	database *db.Database,
	repos *repository.RepositoryFactory,
	alarmLog *AlarmLogService,
	publisher *PublisherService,
	cfg *config.MonitorConfig,
	logger *utils.Logger,
) *IngestService {
	return &IngestService{
		logger:    logger.Named("ingest"),
		database:  database,
		devices:   repos.Device(),
		streams:   repos.Datastream(),
		readings:  repos.Reading(),
		dirtier:   func() *parentDirtier { return newParentDirtier(repos.Asset()) },
		alarmLog:  alarmLog,
		publisher: publisher,
		cfg:       cfg,
	}
}

// streamState accumulates one datastream's effects while the payload's
// timestamps are replayed in order.
type streamState struct {
	ds      *models.Datastream
	fields  fieldSet
	samples map[int64]float64
	markers map[int64]struct{}
}

// timestampedRow pairs a parsed timestamp with the row reported at it
type timestampedRow struct {
	ts  int64
	row PayloadRow
}

// IngestDevicePayload processes one device's payload transactionally and,
// after commit, publishes the resulting entity changes.
func (s *IngestService) IngestDevicePayload(ctx context.Context, devUI string, payload DevicePayload) error {
	nowTS := utils.NowMS()
	cs := NewChangeSet()

	err := s.database.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.ingestTx(tx, devUI, payload, nowTS, cs)
	})
	if err != nil {
		s.alarmLog.Add(models.LogError,
			fmt.Sprintf("Failed to ingest payload for device %s: %v", devUI, err),
			nowTS, "device", nil, s.cfg.InstanceID)
		return err
	}

	s.publisher.PublishAll(cs)
	return nil
}

func (s *IngestService) ingestTx(tx *gorm.DB, devUI string, payload DevicePayload, nowTS int64, cs *ChangeSet) error {
	dev, err := s.devices.GetByDevUIForUpdate(tx, devUI)
	if errors.Is(err, repository.ErrNotFound) {
		s.alarmLog.AddTx(tx, models.LogWarning,
			fmt.Sprintf("Received payload for unknown device %s", devUI),
			nowTS, "device", nil, s.cfg.InstanceID)
		return nil
	}
	if err != nil {
		return err
	}
	if !dev.IsEnabled {
		s.alarmLog.AddTx(tx, models.LogWarning,
			fmt.Sprintf("Received payload for disabled device %s", devUI),
			nowTS, "device", &dev.ID, s.cfg.InstanceID)
		return nil
	}

	enabled, err := s.streams.ListEnabledForUpdate(tx, dev.ID)
	if err != nil {
		return err
	}
	states := make(map[string]*streamState, len(enabled))
	for _, ds := range enabled {
		states[ds.Name] = &streamState{
			ds:      ds,
			fields:  fieldSet{},
			samples: make(map[int64]float64),
			markers: make(map[int64]struct{}),
		}
	}

	rows := s.orderedRows(tx, dev, payload, nowTS)
	if len(rows) == 0 {
		s.alarmLog.AddTx(tx, models.LogWarning,
			fmt.Sprintf("Payload for device %s carries no usable timestamps", devUI),
			nowTS, "device", &dev.ID, s.cfg.InstanceID)
		return nil
	}

	devFields := fieldSet{}
	for _, item := range rows {
		s.applyRow(tx, dev, devFields, states, item)
	}

	dirtier := s.dirtier()

	deviceDueTS := models.SleepTS
	for _, state := range states {
		dueTS, err := s.finishStream(tx, state, nowTS, cs)
		if err != nil {
			return err
		}
		if dueTS < deviceDueTS {
			deviceDueTS = dueTS
		}
	}
	if deviceDueTS < dev.NextUpdTS {
		dev.NextUpdTS = deviceDueTS
		devFields.add("next_upd_ts")
	}

	if err := s.finishDevice(tx, dev, devFields, dirtier, nowTS, cs); err != nil {
		return err
	}

	return dirtier.save(tx)
}

// orderedRows parses and sorts the payload's timestamp keys, logging and
// dropping non-integer keys.
func (s *IngestService) orderedRows(tx *gorm.DB, dev *models.Device, payload DevicePayload, nowTS int64) []timestampedRow {
	rows := make([]timestampedRow, 0, len(payload))
	for key, row := range payload {
		ts, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			s.alarmLog.AddTx(tx, models.LogWarning,
				fmt.Sprintf("Cannot convert timestamp key %q for device %s", key, dev.DevUI),
				nowTS, "device", &dev.ID, s.cfg.InstanceID)
			continue
		}
		rows = append(rows, timestampedRow{ts: ts, row: row})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].ts < rows[j].ts })
	return rows
}

// applyRow replays one timestamp of the payload against the device and all
// its enabled streams. Streams absent from the row are still processed with
// an empty report, so their active conditions resolve and silence under an
// active error yields a marker.
func (s *IngestService) applyRow(tx *gorm.DB, dev *models.Device, devFields fieldSet, states map[string]*streamState, item timestampedRow) {
	ts, row := item.ts, item.row

	for _, name := range row.Malformed {
		s.alarmLog.AddTx(tx, models.LogWarning,
			fmt.Sprintf("Malformed row for datastream %s of device %s", name, dev.DevUI),
			ts, "device", &dev.ID, s.cfg.InstanceID)
	}
	for name := range row.Streams {
		if _, ok := states[name]; !ok {
			s.alarmLog.AddTx(tx, models.LogWarning,
				fmt.Sprintf("Report for unknown or disabled datastream %s of device %s", name, dev.DevUI),
				ts, "device", &dev.ID, s.cfg.InstanceID)
		}
	}

	needMarker := make(map[string]struct{})
	anyCleanValue := false

	for name, state := range states {
		ds := state.ds
		sr := row.Streams[name]

		hasValue := sr.Value != nil
		if hasValue {
			state.samples[ts] = *sr.Value
		}

		nextErrors, silenceExpected := models.UpdatePart(ds.Alarms.Errors, sr.Errors, ts, models.AlarmErrors, hasValue)
		if !nextErrors.Equal(ds.Alarms.Errors) {
			ds.Alarms.Errors = nextErrors
			state.fields.add("alarms")
		}
		if silenceExpected {
			needMarker[name] = struct{}{}
		}
		if hasValue && !models.AtLeastOneActive(ds.Alarms.Errors) {
			anyCleanValue = true
		}

		nextWarnings, warningSilence := models.UpdatePart(ds.Alarms.Warnings, sr.Warnings, ts, models.AlarmWarnings, hasValue)
		if !nextWarnings.Equal(ds.Alarms.Warnings) {
			ds.Alarms.Warnings = nextWarnings
			state.fields.add("alarms")
		}
		if s.cfg.WarningExplainsSilence && warningSilence {
			needMarker[name] = struct{}{}
		}

		for _, info := range sr.Infos {
			s.alarmLog.AddTx(tx, models.LogInfo, info, ts, "datastream", &ds.ID, s.cfg.InstanceID)
		}
	}

	nextDevErrors, devSilence := models.UpdatePart(dev.Alarms.Errors, row.Errors, ts, models.AlarmErrors, anyCleanValue)
	if !nextDevErrors.Equal(dev.Alarms.Errors) {
		dev.Alarms.Errors = nextDevErrors
		devFields.add("alarms")
	}
	if devSilence {
		// A device-wide condition explains every stream's silence at ts.
		for name := range states {
			needMarker[name] = struct{}{}
		}
	}

	nextDevWarnings, devWarnSilence := models.UpdatePart(dev.Alarms.Warnings, row.Warnings, ts, models.AlarmWarnings, anyCleanValue)
	if !nextDevWarnings.Equal(dev.Alarms.Warnings) {
		dev.Alarms.Warnings = nextDevWarnings
		devFields.add("alarms")
	}
	if s.cfg.WarningExplainsSilence && devWarnSilence {
		for name := range states {
			needMarker[name] = struct{}{}
		}
	}

	for _, info := range row.Infos {
		s.alarmLog.AddTx(tx, models.LogInfo, info, ts, "device", &dev.ID, s.cfg.InstanceID)
	}

	for name := range needMarker {
		states[name].markers[ts] = struct{}{}
	}
}

// finishStream derives the stream's health, classifies and stores its batch
// of readings and markers, advances its cursor and persists only the changed
// fields. It returns the earliest recompute deadline the owning device now
// owes, SleepTS when the stream's health did not change.
func (s *IngestService) finishStream(tx *gorm.DB, state *streamState, nowTS int64, cs *ChangeSet) (int64, error) {
	ds := state.ds
	deviceDueTS := models.SleepTS

	if msgHealth := ds.Alarms.MessageHealth(); ds.MsgHealth != msgHealth {
		ds.MsgHealth = msgHealth
		state.fields.add("msg_health")
	}
	if health := ds.EvaluateHealth(); ds.Health != health {
		ds.Health = health
		state.fields.add("health")
		deviceDueTS = nowTS + s.cfg.CoalesceWindowMS
	}

	var accepted []models.NoDataMarker
	var unusedMarkers []models.UnusedNoDataMarker
	if ds.NeedsNoDataMarkers() && len(state.markers) > 0 {
		times := make([]int64, 0, len(state.markers))
		for ts := range state.markers {
			times = append(times, ts)
		}
		sort.Slice(times, func(i, j int) bool { return times[i] < times[j] })
		accepted, unusedMarkers = prepareNoDataMarkers(times, ds, nowTS)
	}

	prep := prepareReadings(state.samples, ds, nowTS)

	// The cursor only moves forward, to the newest accepted row.
	cursor := ds.TsToStartWith
	var lastReading int64
	for _, row := range prep.Valid {
		if row.Time > cursor {
			cursor = row.Time
		}
		if row.Time > lastReading {
			lastReading = row.Time
		}
	}
	for _, row := range accepted {
		if row.Time > cursor {
			cursor = row.Time
		}
	}
	if cursor > ds.TsToStartWith {
		ds.TsToStartWith = cursor
		state.fields.add("ts_to_start_with")
	}
	if lastReading > 0 && (ds.LastReadingTS == nil || lastReading > *ds.LastReadingTS) {
		ds.LastReadingTS = &lastReading
		state.fields.add("last_reading_ts")
	}

	// Fresh data on a periodic stream warrants an immediate silence re-check.
	if ds.TUpdate != nil {
		ds.HealthNextEvalTS = nowTS + s.cfg.HealthEvalIntervalMS
		state.fields.add("health_next_eval_ts")
	}

	if err := repository.SaveFields(tx, ds, state.fields.list()); err != nil {
		return 0, err
	}
	cs.Stage(ds, state.fields.list())

	if err := s.readings.BulkInsertReadings(tx, prep.Valid); err != nil {
		return 0, err
	}
	if err := s.readings.BulkInsertUnusedReadings(tx, prep.Unused); err != nil {
		return 0, err
	}
	if err := s.readings.BulkInsertInvalidReadings(tx, prep.Invalid); err != nil {
		return 0, err
	}
	if err := s.readings.BulkInsertNonRocReadings(tx, prep.NonRoc); err != nil {
		return 0, err
	}
	if err := s.readings.BulkInsertNoDataMarkers(tx, accepted); err != nil {
		return 0, err
	}
	if err := s.readings.BulkInsertUnusedNoDataMarkers(tx, unusedMarkers); err != nil {
		return 0, err
	}

	s.logger.Debug("Finished datastream",
		zap.Uint("datastream_id", ds.ID),
		zap.Int("valid", len(prep.Valid)),
		zap.Int("unused", len(prep.Unused)),
		zap.Int("invalid", len(prep.Invalid)),
		zap.Int("non_roc", len(prep.NonRoc)),
		zap.Int("nd_markers", len(accepted)))

	return deviceDueTS, nil
}

// finishDevice re-derives the device's message health after the whole batch
// and, when its combined health changed, dirties the parent asset.
func (s *IngestService) finishDevice(tx *gorm.DB, dev *models.Device, devFields fieldSet, dirtier *parentDirtier, nowTS int64, cs *ChangeSet) error {
	if msgHealth := dev.Alarms.MessageHealth(); dev.MsgHealth != msgHealth {
		dev.MsgHealth = msgHealth
		devFields.add("msg_health")
	}
	if health := dev.EvaluateHealth(); dev.Health != health {
		dev.Health = health
		devFields.add("health")
		if dev.ParentID != nil {
			if err := dirtier.dirty(tx, *dev.ParentID, models.FieldHealth, nowTS+s.cfg.CoalesceWindowMS); err != nil {
				return err
			}
		}
	}

	if err := repository.SaveFields(tx, dev, devFields.list()); err != nil {
		return err
	}
	cs.Stage(dev, devFields.list())
	return nil
}
