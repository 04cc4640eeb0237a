package services

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPayloadRowUnmarshal(t *testing.T) {
	t.Run("Should split device conditions from stream rows", func(t *testing.T) {
		raw := `{
			"e": {"13": "low battery"},
			"w": {"05": "weak signal"},
			"i": ["rebooted"],
			"temp": {"v": 21.5},
			"door": {"e": {"01": "stuck"}}
		}`

		var row PayloadRow
		require.NoError(t, json.Unmarshal([]byte(raw), &row))

		assert.Equal(t, map[string]string{"13": "low battery"}, row.Errors)
		assert.Equal(t, map[string]string{"05": "weak signal"}, row.Warnings)
		assert.Equal(t, []string{"rebooted"}, row.Infos)
		assert.Len(t, row.Streams, 2)
		assert.Empty(t, row.Malformed)

		temp := row.Streams["temp"]
		require.NotNil(t, temp.Value)
		assert.Equal(t, 21.5, *temp.Value)

		door := row.Streams["door"]
		assert.Nil(t, door.Value)
		assert.Equal(t, map[string]string{"01": "stuck"}, door.Errors)
	})

	t.Run("Should collect malformed stream rows instead of failing", func(t *testing.T) {
		raw := `{"temp": {"v": 1.0}, "bad": 42}`

		var row PayloadRow
		require.NoError(t, json.Unmarshal([]byte(raw), &row))

		assert.Len(t, row.Streams, 1)
		assert.Equal(t, []string{"bad"}, row.Malformed)
	})

	t.Run("Should leave the value nil when it is not numeric", func(t *testing.T) {
		raw := `{"temp": {"v": "n/a", "w": {"02": "odd reading"}}}`

		var row PayloadRow
		require.NoError(t, json.Unmarshal([]byte(raw), &row))

		temp := row.Streams["temp"]
		assert.Nil(t, temp.Value)
		assert.Equal(t, map[string]string{"02": "odd reading"}, temp.Warnings)
	})
}

func TestDevicePayloadUnmarshal(t *testing.T) {
	raw := `{
		"1700000000000": {"temp": {"v": 1.0}},
		"1700000001000": {"temp": {"v": 2.0}}
	}`

	var payload DevicePayload
	require.NoError(t, json.Unmarshal([]byte(raw), &payload))
	assert.Len(t, payload, 2)
}
