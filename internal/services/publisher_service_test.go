package services

import (
	"testing"

	"github.com/fleetwatch/backend/internal/db/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCamelize(t *testing.T) {
	assert.Equal(t, "health", camelize("health"))
	assert.Equal(t, "currState", camelize("curr_state"))
	assert.Equal(t, "isStatusStale", camelize("is_status_stale"))
	assert.Equal(t, "lastReadingTs", camelize("last_reading_ts"))
}

func TestChangeSetStage(t *testing.T) {
	t.Run("Should stage an event when a published field changed", func(t *testing.T) {
		cs := NewChangeSet()
		dev := &models.Device{ID: 3, Name: "pump", Health: models.HealthError, IsEnabled: true}

		cs.Stage(dev, []string{"alarms", "health"})

		require.Len(t, cs.Events(), 1)
		event := cs.Events()[0]
		assert.Equal(t, "device", event.EntityType)
		assert.Equal(t, uint(3), event.EntityID)
		assert.Equal(t, models.HealthError, event.Attributes["health"])
		assert.Equal(t, true, event.Attributes["isEnabled"])
	})

	t.Run("Should stage nothing when only internal fields changed", func(t *testing.T) {
		cs := NewChangeSet()
		dev := &models.Device{ID: 3, Name: "pump"}

		cs.Stage(dev, []string{"alarms", "msg_health", "next_upd_ts"})

		assert.Empty(t, cs.Events())
	})

	t.Run("Should stage nothing for an empty change list", func(t *testing.T) {
		cs := NewChangeSet()
		cs.Stage(&models.Device{ID: 3}, nil)
		assert.Empty(t, cs.Events())
	})
}

func TestFieldSet(t *testing.T) {
	fields := fieldSet{}
	assert.Nil(t, fields.list())

	fields.add("health", "alarms")
	fields.add("health")

	assert.True(t, fields.has("alarms"))
	assert.False(t, fields.has("status"))
	assert.Equal(t, []string{"alarms", "health"}, fields.list())
}
