package services_test

import (
	"context"
	"testing"

	"github.com/fleetwatch/backend/internal/db/models"
	"github.com/fleetwatch/backend/internal/services"
	"github.com/fleetwatch/backend/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func errorRow(stream, code, message string) services.PayloadRow {
	return services.PayloadRow{
		Streams: map[string]services.StreamRow{
			stream: {Errors: map[string]string{code: message}},
		},
	}
}

func valueRow(stream string, value float64) services.PayloadRow {
	return services.PayloadRow{
		Streams: map[string]services.StreamRow{
			stream: {Value: &value},
		},
	}
}

func TestIngest_ErrorLifecycle(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	dt := env.createDataType(models.VarDiscrete, models.AggSum)
	asset := env.createAsset("site", nil)
	dev := env.createDevice("dev-1", &asset.ID)
	ds := env.createStream(dev, "temp", dt, nil)

	// An error without a value activates the condition and records the
	// silence as an expected gap.
	err := env.ingest.IngestDevicePayload(ctx, "dev-1", services.DevicePayload{
		"1000": errorRow("temp", "01", "sensor failure"),
	})
	require.NoError(t, err)

	ds = env.reloadStream(ds.ID)
	require.Contains(t, ds.Alarms.Errors, "01")
	assert.True(t, ds.Alarms.Errors["01"].Active)
	assert.Equal(t, int64(1000), ds.Alarms.Errors["01"].Since)
	assert.Equal(t, models.HealthError, ds.MsgHealth)
	assert.Equal(t, models.HealthError, ds.Health)
	assert.Equal(t, int64(1000), ds.TsToStartWith)
	assert.Nil(t, ds.LastReadingTS)

	markers, err := env.repos.Reading().CountNoDataMarkers(ds.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), markers)

	// The stream health change pulled the device's recompute forward.
	dev = env.reloadDevice(dev.ID)
	assert.Less(t, dev.NextUpdTS, models.SleepTS)

	// A later value resolves the error and advances the cursor.
	err = env.ingest.IngestDevicePayload(ctx, "dev-1", services.DevicePayload{
		"2000": valueRow("temp", 42),
	})
	require.NoError(t, err)

	ds = env.reloadStream(ds.ID)
	assert.False(t, ds.Alarms.Errors["01"].Active)
	assert.Equal(t, int64(2000), ds.Alarms.Errors["01"].Since)
	assert.Equal(t, models.HealthUndefined, ds.MsgHealth)
	assert.Equal(t, int64(2000), ds.TsToStartWith)
	require.NotNil(t, ds.LastReadingTS)
	assert.Equal(t, int64(2000), *ds.LastReadingTS)

	readings, err := env.repos.Reading().CountReadings(ds.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), readings)
}

func TestIngest_HealthClimbsHierarchy(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	dt := env.createDataType(models.VarDiscrete, models.AggSum)
	root := env.createAsset("plant", nil)
	site := env.createAsset("site", &root.ID)
	dev := env.createDevice("dev-1", &site.ID)
	env.createStream(dev, "temp", dt, nil)

	err := env.ingest.IngestDevicePayload(ctx, "dev-1", services.DevicePayload{
		"1000": errorRow("temp", "01", "sensor failure"),
	})
	require.NoError(t, err)

	// Force the coalesce windows to elapse and run one pass per level.
	require.NoError(t, env.db.DB.Model(&models.Device{}).Where("id = ?", dev.ID).
		Update("next_upd_ts", 0).Error)
	require.NoError(t, env.recompute.UpdateDevices(ctx))

	reloaded := env.reloadDevice(dev.ID)
	assert.Equal(t, models.HealthError, reloaded.ChldHealth)
	assert.Equal(t, models.HealthError, reloaded.Health)
	assert.Equal(t, models.SleepTS, reloaded.NextUpdTS)

	parent := env.reloadAsset(site.ID)
	assert.True(t, parent.FieldsToUpdate.Contains(models.FieldHealth))
	assert.Less(t, parent.NextUpdTS, models.SleepTS)

	require.NoError(t, env.db.DB.Model(&models.Asset{}).Where("id = ?", site.ID).
		Update("next_upd_ts", 0).Error)
	require.NoError(t, env.recompute.UpdateAssets(ctx))

	parent = env.reloadAsset(site.ID)
	assert.Equal(t, models.HealthError, parent.Health)
	assert.Empty(t, parent.FieldsToUpdate)
	assert.Equal(t, models.SleepTS, parent.NextUpdTS)

	// The change keeps climbing: the grandparent is dirty now.
	grandparent := env.reloadAsset(root.ID)
	assert.True(t, grandparent.FieldsToUpdate.Contains(models.FieldHealth))
	assert.Less(t, grandparent.NextUpdTS, models.SleepTS)
}

func TestIngest_ReplayIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	dt := env.createDataType(models.VarDiscrete, models.AggSum)
	dev := env.createDevice("dev-1", nil)
	ds := env.createStream(dev, "temp", dt, nil)

	payload := services.DevicePayload{
		"1000": errorRow("temp", "01", "sensor failure"),
		"2000": valueRow("temp", 42),
	}

	require.NoError(t, env.ingest.IngestDevicePayload(ctx, "dev-1", payload))
	first := env.reloadStream(ds.ID)

	require.NoError(t, env.ingest.IngestDevicePayload(ctx, "dev-1", payload))
	second := env.reloadStream(ds.ID)

	assert.True(t, second.Alarms.Errors.Equal(first.Alarms.Errors))
	assert.Equal(t, first.Health, second.Health)
	assert.Equal(t, first.TsToStartWith, second.TsToStartWith)
	assert.Equal(t, *first.LastReadingTS, *second.LastReadingTS)

	readings, err := env.repos.Reading().CountReadings(ds.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), readings)

	markers, err := env.repos.Reading().CountNoDataMarkers(ds.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), markers)
}

func TestIngest_CursorNeverRegresses(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	dt := env.createDataType(models.VarDiscrete, models.AggSum)
	dev := env.createDevice("dev-1", nil)
	ds := env.createStream(dev, "temp", dt, nil)

	require.NoError(t, env.ingest.IngestDevicePayload(ctx, "dev-1", services.DevicePayload{
		"5000": valueRow("temp", 10),
	}))
	require.NoError(t, env.ingest.IngestDevicePayload(ctx, "dev-1", services.DevicePayload{
		"3000": valueRow("temp", 11),
	}))

	ds = env.reloadStream(ds.ID)
	assert.Equal(t, int64(5000), ds.TsToStartWith)
	assert.Equal(t, int64(5000), *ds.LastReadingTS)

	readings, err := env.repos.Reading().CountReadings(ds.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), readings)

	// The late arrival lands in the audit trail.
	var unused int64
	require.NoError(t, env.db.DB.Model(&models.UnusedDsReading{}).
		Where("datastream_id = ?", ds.ID).Count(&unused).Error)
	assert.Equal(t, int64(1), unused)
}

func TestIngest_DeviceErrorMarksAllStreams(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	dt := env.createDataType(models.VarDiscrete, models.AggSum)
	dev := env.createDevice("dev-1", nil)
	s1 := env.createStream(dev, "temp", dt, nil)
	s2 := env.createStream(dev, "flow", dt, nil)

	err := env.ingest.IngestDevicePayload(ctx, "dev-1", services.DevicePayload{
		"1000": {Errors: map[string]string{"13": "low battery"}},
	})
	require.NoError(t, err)

	dev = env.reloadDevice(dev.ID)
	assert.True(t, dev.Alarms.Errors["13"].Active)
	assert.Equal(t, models.HealthError, dev.MsgHealth)
	assert.Equal(t, models.HealthError, dev.Health)

	for _, ds := range []*models.Datastream{s1, s2} {
		markers, err := env.repos.Reading().CountNoDataMarkers(ds.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(1), markers, "stream %s owes a marker", ds.Name)
	}
}

func TestIngest_WarningDoesNotExplainSilence(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	dt := env.createDataType(models.VarDiscrete, models.AggSum)
	dev := env.createDevice("dev-1", nil)
	ds := env.createStream(dev, "temp", dt, nil)

	err := env.ingest.IngestDevicePayload(ctx, "dev-1", services.DevicePayload{
		"1000": {Streams: map[string]services.StreamRow{
			"temp": {Warnings: map[string]string{"05": "weak signal"}},
		}},
	})
	require.NoError(t, err)

	ds = env.reloadStream(ds.ID)
	assert.Equal(t, models.HealthWarning, ds.MsgHealth)

	markers, err := env.repos.Reading().CountNoDataMarkers(ds.ID)
	require.NoError(t, err)
	assert.Zero(t, markers)
}

func TestIngest_AveragedContinuousStreamSkipsMarkers(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	dt := env.createDataType(models.VarContinuous, models.AggAvg)
	dev := env.createDevice("dev-1", nil)
	ds := env.createStream(dev, "temp", dt, nil)

	err := env.ingest.IngestDevicePayload(ctx, "dev-1", services.DevicePayload{
		"1000": errorRow("temp", "01", "sensor failure"),
	})
	require.NoError(t, err)

	ds = env.reloadStream(ds.ID)
	assert.Equal(t, models.HealthError, ds.MsgHealth)

	markers, err := env.repos.Reading().CountNoDataMarkers(ds.ID)
	require.NoError(t, err)
	assert.Zero(t, markers)
}

func TestIngest_BadTimestampKeys(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	dt := env.createDataType(models.VarDiscrete, models.AggSum)
	dev := env.createDevice("dev-1", nil)
	ds := env.createStream(dev, "temp", dt, nil)

	// The bad key is dropped, the good one still processes.
	err := env.ingest.IngestDevicePayload(ctx, "dev-1", services.DevicePayload{
		"not-a-ts": valueRow("temp", 1),
		"2000":     valueRow("temp", 2),
	})
	require.NoError(t, err)

	ds = env.reloadStream(ds.ID)
	assert.Equal(t, int64(2000), ds.TsToStartWith)

	entries, total, err := env.alarmLog.ListRecent(utils.PaginationRequest{Page: 1, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, entries, 1)
	assert.Equal(t, models.LogWarning, entries[0].Severity)
	assert.Contains(t, entries[0].Message, "not-a-ts")
}

func TestIngest_UnknownDevice(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	err := env.ingest.IngestDevicePayload(ctx, "ghost", services.DevicePayload{
		"1000": valueRow("temp", 1),
	})
	require.NoError(t, err)

	entries, total, err := env.alarmLog.ListRecent(utils.PaginationRequest{Page: 1, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Contains(t, entries[0].Message, "ghost")
}
