package services_test

import (
	"context"
	"testing"

	"github.com/fleetwatch/backend/internal/db/models"
	"github.com/fleetwatch/backend/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpdateStreamHealth(t *testing.T) {
	ctx := context.Background()

	t.Run("Should grade a silent stream as error and coalesce the device", func(t *testing.T) {
		env := newTestEnv(t)
		dt := env.createDataType(models.VarDiscrete, models.AggSum)
		dev := env.createDevice("dev-1", nil)
		ds := env.createStream(dev, "temp", dt, func(ds *models.Datastream) {
			ds.TUpdate = ptr64(60000)
			ds.HealthNextEvalTS = 0
			ds.LastReadingTS = ptr64(utils.NowMS() - 400000)
		})

		now := utils.NowMS()
		require.NoError(t, env.staleness.UpdateStreamHealth(ctx))

		ds = env.reloadStream(ds.ID)
		assert.Equal(t, models.HealthError, ds.NdHealth)
		assert.Equal(t, models.HealthError, ds.Health)
		assert.Greater(t, ds.HealthNextEvalTS, now)

		dev = env.reloadDevice(dev.ID)
		assert.Less(t, dev.NextUpdTS, models.SleepTS)
	})

	t.Run("Should grade a recently read stream as ok", func(t *testing.T) {
		env := newTestEnv(t)
		dt := env.createDataType(models.VarDiscrete, models.AggSum)
		dev := env.createDevice("dev-1", nil)
		ds := env.createStream(dev, "temp", dt, func(ds *models.Datastream) {
			ds.TUpdate = ptr64(60000)
			ds.HealthNextEvalTS = 0
			ds.LastReadingTS = ptr64(utils.NowMS() - 10000)
		})

		require.NoError(t, env.staleness.UpdateStreamHealth(ctx))

		ds = env.reloadStream(ds.ID)
		assert.Equal(t, models.HealthOK, ds.NdHealth)
		assert.Equal(t, models.HealthOK, ds.Health)
	})

	t.Run("Should keep a never-read stream undefined inside the window", func(t *testing.T) {
		env := newTestEnv(t)
		dt := env.createDataType(models.VarDiscrete, models.AggSum)
		dev := env.createDevice("dev-1", nil)
		ds := env.createStream(dev, "temp", dt, func(ds *models.Datastream) {
			ds.TUpdate = ptr64(60000)
			ds.HealthNextEvalTS = 0
		})

		require.NoError(t, env.staleness.UpdateStreamHealth(ctx))

		ds = env.reloadStream(ds.ID)
		assert.Equal(t, models.HealthUndefined, ds.NdHealth)

		// No health change, so the device stays asleep.
		dev = env.reloadDevice(dev.ID)
		assert.Equal(t, models.SleepTS, dev.NextUpdTS)
	})

	t.Run("Should skip aperiodic streams", func(t *testing.T) {
		env := newTestEnv(t)
		dt := env.createDataType(models.VarDiscrete, models.AggSum)
		dev := env.createDevice("dev-1", nil)
		ds := env.createStream(dev, "temp", dt, func(ds *models.Datastream) {
			ds.HealthNextEvalTS = 0
			ds.LastReadingTS = ptr64(utils.NowMS() - 400000)
		})

		require.NoError(t, env.staleness.UpdateStreamHealth(ctx))

		ds = env.reloadStream(ds.ID)
		assert.Equal(t, models.HealthUndefined, ds.NdHealth)
		assert.Equal(t, int64(0), ds.HealthNextEvalTS)
	})

	t.Run("Should space the next check by the heartbeat with margin", func(t *testing.T) {
		env := newTestEnv(t)
		dt := env.createDataType(models.VarDiscrete, models.AggSum)
		dev := env.createDevice("dev-1", nil)
		ds := env.createStream(dev, "temp", dt, func(ds *models.Datastream) {
			ds.TUpdate = ptr64(100000)
			ds.HealthNextEvalTS = 0
			ds.LastReadingTS = ptr64(utils.NowMS() - 10000)
		})

		now := utils.NowMS()
		require.NoError(t, env.staleness.UpdateStreamHealth(ctx))

		// 100000 * 1.5 beats the 60000 floor.
		ds = env.reloadStream(ds.ID)
		assert.GreaterOrEqual(t, ds.HealthNextEvalTS, now+150000)
	})
}

func TestUpdateApplicationStaleness(t *testing.T) {
	ctx := context.Background()

	t.Run("Should flag a stale status and dirty the parent", func(t *testing.T) {
		env := newTestEnv(t)
		asset := env.createAsset("site", nil)
		app := env.createApplication("app-1", &asset.ID, func(app *models.Application) {
			app.StaleNextEvalTS = 0
			app.LastStatusUpdateTS = ptr64(utils.NowMS() - 2*3600000)
			app.LastCurrStateUpdateTS = ptr64(utils.NowMS() - 10000)
		})

		now := utils.NowMS()
		require.NoError(t, env.staleness.UpdateApplicationStaleness(ctx))

		app = env.reloadApplication(app.ID)
		assert.True(t, app.IsStatusStale)
		assert.False(t, app.IsCurrStateStale)
		assert.Greater(t, app.StaleNextEvalTS, now)

		asset = env.reloadAsset(asset.ID)
		assert.True(t, asset.FieldsToUpdate.Contains(models.FieldStatus))
		assert.False(t, asset.FieldsToUpdate.Contains(models.FieldCurrState))
		assert.Less(t, asset.NextUpdTS, models.SleepTS)
	})

	t.Run("Should ignore aggregates the application does not carry", func(t *testing.T) {
		env := newTestEnv(t)
		asset := env.createAsset("site", nil)
		app := env.createApplication("app-1", &asset.ID, func(app *models.Application) {
			app.StaleNextEvalTS = 0
			app.HasStatus = false
			app.LastStatusUpdateTS = ptr64(utils.NowMS() - 2*3600000)
		})

		require.NoError(t, env.staleness.UpdateApplicationStaleness(ctx))

		app = env.reloadApplication(app.ID)
		assert.False(t, app.IsStatusStale)

		asset = env.reloadAsset(asset.ID)
		assert.Empty(t, asset.FieldsToUpdate)
	})

	t.Run("Should clear the flag once the aggregate refreshes", func(t *testing.T) {
		env := newTestEnv(t)
		app := env.createApplication("app-1", nil, func(app *models.Application) {
			app.StaleNextEvalTS = 0
			app.IsStatusStale = true
			app.LastStatusUpdateTS = ptr64(utils.NowMS() - 10000)
		})

		require.NoError(t, env.staleness.UpdateApplicationStaleness(ctx))

		app = env.reloadApplication(app.ID)
		assert.False(t, app.IsStatusStale)
	})
}
