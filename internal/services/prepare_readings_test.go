package services

import (
	"testing"

	"github.com/fleetwatch/backend/internal/db/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStream() *models.Datastream {
	return &models.Datastream{
		ID:                7,
		DataType:          models.DataType{VarType: models.VarContinuous, AggType: models.AggSum},
		TsToStartWith:     1000,
		MaxRateOfChange:   10.0,
		MaxPlausibleValue: 100.0,
		MinPlausibleValue: -100.0,
	}
}

func TestPrepareReadings(t *testing.T) {
	now := int64(10000)

	t.Run("Should classify every sample into exactly one trail", func(t *testing.T) {
		ds := testStream()
		samples := map[int64]float64{
			500:   5.0,   // at or before the cursor
			2000:  5.0,   // valid
			3000:  500.0, // implausible
			4000:  6.0,   // valid
			4500:  90.0,  // jumps 84 in 0.5s against the previous valid
			20000: 7.0,   // in the future
		}

		prep := prepareReadings(samples, ds, now)

		assert.Len(t, prep.Valid, 2)
		assert.Len(t, prep.Unused, 2)
		assert.Len(t, prep.Invalid, 1)
		assert.Len(t, prep.NonRoc, 1)

		total := len(prep.Valid) + len(prep.Unused) + len(prep.Invalid) + len(prep.NonRoc)
		assert.Equal(t, len(samples), total)
	})

	t.Run("Should accept the first in-window sample without a rate anchor", func(t *testing.T) {
		ds := testStream()
		prep := prepareReadings(map[int64]float64{2000: 99.0}, ds, now)

		require.Len(t, prep.Valid, 1)
		assert.Equal(t, int64(2000), prep.Valid[0].Time)
	})

	t.Run("Should check rate against the previous valid sample, not rejected ones", func(t *testing.T) {
		ds := testStream()
		samples := map[int64]float64{
			2000: 10.0,
			3000: 90.0, // rejected by rate against 10.0
			4000: 25.0, // rate against 10.0 over 2s is ok
		}

		prep := prepareReadings(samples, ds, now)

		require.Len(t, prep.Valid, 2)
		assert.Equal(t, int64(2000), prep.Valid[0].Time)
		assert.Equal(t, int64(4000), prep.Valid[1].Time)
		require.Len(t, prep.NonRoc, 1)
		assert.Equal(t, int64(3000), prep.NonRoc[0].Time)
	})

	t.Run("Should round values for non-continuous streams", func(t *testing.T) {
		ds := testStream()
		ds.DataType = models.DataType{VarType: models.VarDiscrete, AggType: models.AggSum}

		prep := prepareReadings(map[int64]float64{2000: 5.6}, ds, now)

		require.Len(t, prep.Valid, 1)
		assert.Equal(t, 6.0, prep.Valid[0].Value)
	})

	t.Run("Should return nothing for an empty batch", func(t *testing.T) {
		prep := prepareReadings(nil, testStream(), now)
		assert.Empty(t, prep.Valid)
		assert.Empty(t, prep.Unused)
	})
}

func TestPrepareNoDataMarkers(t *testing.T) {
	ds := testStream()
	now := int64(10000)

	accepted, unused := prepareNoDataMarkers([]int64{500, 1000, 2000, 9999, 10000, 20000}, ds, now)

	require.Len(t, accepted, 2)
	assert.Equal(t, int64(2000), accepted[0].Time)
	assert.Equal(t, int64(9999), accepted[1].Time)

	// At the cursor, at now, or beyond are all out of the window.
	assert.Len(t, unused, 4)
}
