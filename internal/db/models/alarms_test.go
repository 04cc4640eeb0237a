package models_test

import (
	"testing"

	"github.com/fleetwatch/backend/internal/db/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpdatePart(t *testing.T) {
	t.Run("Should activate a newly reported condition", func(t *testing.T) {
		next, _ := models.UpdatePart(models.AlarmMap{}, map[string]string{"01": "overheat"}, 1000, models.AlarmErrors, false)

		require.Contains(t, next, "01")
		assert.True(t, next["01"].Active)
		assert.Equal(t, int64(1000), next["01"].Since)
	})

	t.Run("Should keep the original activation time while the condition persists", func(t *testing.T) {
		m, _ := models.UpdatePart(models.AlarmMap{}, map[string]string{"01": "overheat"}, 1000, models.AlarmErrors, false)
		m, _ = models.UpdatePart(m, map[string]string{"01": "overheat"}, 2000, models.AlarmErrors, false)

		assert.True(t, m["01"].Active)
		assert.Equal(t, int64(1000), m["01"].Since)
	})

	t.Run("Should resolve a condition no longer reported", func(t *testing.T) {
		m, _ := models.UpdatePart(models.AlarmMap{}, map[string]string{"01": "overheat"}, 1000, models.AlarmErrors, false)
		m, _ = models.UpdatePart(m, nil, 2000, models.AlarmErrors, true)

		require.Contains(t, m, "01")
		assert.False(t, m["01"].Active)
		assert.Equal(t, int64(2000), m["01"].Since)
	})

	t.Run("Should reactivate a resolved condition with a new activation time", func(t *testing.T) {
		m, _ := models.UpdatePart(models.AlarmMap{}, map[string]string{"01": "x"}, 1000, models.AlarmErrors, false)
		m, _ = models.UpdatePart(m, nil, 2000, models.AlarmErrors, true)
		m, _ = models.UpdatePart(m, map[string]string{"01": "x"}, 3000, models.AlarmErrors, false)

		assert.True(t, m["01"].Active)
		assert.Equal(t, int64(3000), m["01"].Since)
	})

	t.Run("Should not mutate the previous map", func(t *testing.T) {
		prev := models.AlarmMap{"01": {Active: true, Since: 500}}
		next, _ := models.UpdatePart(prev, nil, 1000, models.AlarmErrors, true)

		assert.True(t, prev["01"].Active)
		assert.False(t, next["01"].Active)
	})

	t.Run("Should expect silence when no value arrived and a condition stays active", func(t *testing.T) {
		m, silence := models.UpdatePart(models.AlarmMap{}, map[string]string{"01": "x"}, 1000, models.AlarmErrors, false)
		assert.True(t, silence)

		// A persisting condition without a value keeps expecting silence.
		_, silence = models.UpdatePart(m, map[string]string{"01": "x"}, 2000, models.AlarmErrors, false)
		assert.True(t, silence)
	})

	t.Run("Should not expect silence when a value arrived", func(t *testing.T) {
		_, silence := models.UpdatePart(models.AlarmMap{}, map[string]string{"01": "x"}, 1000, models.AlarmErrors, true)
		assert.False(t, silence)
	})

	t.Run("Should not expect silence when nothing is active", func(t *testing.T) {
		m, _ := models.UpdatePart(models.AlarmMap{}, map[string]string{"01": "x"}, 1000, models.AlarmErrors, false)
		_, silence := models.UpdatePart(m, nil, 2000, models.AlarmErrors, false)
		assert.False(t, silence)
	})
}

func TestMessageHealth(t *testing.T) {
	t.Run("Should grade Error when any error is active", func(t *testing.T) {
		alarms := models.Alarms{
			Errors:   models.AlarmMap{"01": {Active: true, Since: 1}},
			Warnings: models.AlarmMap{"w1": {Active: true, Since: 1}},
		}
		assert.Equal(t, models.HealthError, alarms.MessageHealth())
	})

	t.Run("Should grade Warning when only warnings are active", func(t *testing.T) {
		alarms := models.Alarms{
			Errors:   models.AlarmMap{"01": {Active: false, Since: 2}},
			Warnings: models.AlarmMap{"w1": {Active: true, Since: 1}},
		}
		assert.Equal(t, models.HealthWarning, alarms.MessageHealth())
	})

	t.Run("Should grade Undefined when nothing is active", func(t *testing.T) {
		assert.Equal(t, models.HealthUndefined, models.NewAlarms().MessageHealth())

		alarms := models.Alarms{
			Errors:   models.AlarmMap{"01": {Active: false, Since: 2}},
			Warnings: models.AlarmMap{},
		}
		assert.Equal(t, models.HealthUndefined, alarms.MessageHealth())
	})
}

func TestAlarmsRoundTrip(t *testing.T) {
	original := models.Alarms{
		Errors:   models.AlarmMap{"01": {Active: true, Since: 1000}},
		Warnings: models.AlarmMap{"w1": {Active: false, Since: 2000}},
	}

	value, err := original.Value()
	require.NoError(t, err)

	var decoded models.Alarms
	require.NoError(t, decoded.Scan(value))

	assert.True(t, decoded.Errors.Equal(original.Errors))
	assert.True(t, decoded.Warnings.Equal(original.Warnings))
}

func TestAlarmsScanNil(t *testing.T) {
	var decoded models.Alarms
	require.NoError(t, decoded.Scan(nil))

	assert.NotNil(t, decoded.Errors)
	assert.NotNil(t, decoded.Warnings)
	assert.Equal(t, models.HealthUndefined, decoded.MessageHealth())
}
