package services

import (
	"math"
	"sort"

	"github.com/fleetwatch/backend/internal/db/models"
)

// preparedReadings holds one stream's batch of samples classified into the
// four audit trails. Every sample lands in exactly one of them.
type preparedReadings struct {
	Valid   []models.DsReading
	Unused  []models.UnusedDsReading
	Invalid []models.InvalidDsReading
	NonRoc  []models.NonRocDsReading
}

// prepareReadings classifies a stream's samples in ascending timestamp order:
//   - outside the open window (cursor, now] goes to unused
//   - outside the plausible value bounds goes to invalid
//   - exceeding the max rate of change against the previous valid sample of
//     this batch goes to non-roc
//   - everything else is valid
//
// The rate check has no anchor before the first valid sample of the batch,
// so that sample is accepted on bounds alone.
func prepareReadings(samples map[int64]float64, ds *models.Datastream, now int64) preparedReadings {
	var prep preparedReadings
	if len(samples) == 0 {
		return prep
	}

	times := make([]int64, 0, len(samples))
	for ts := range samples {
		times = append(times, ts)
	}
	sort.Slice(times, func(i, j int) bool { return times[i] < times[j] })

	var prevTS int64
	var prevValue float64
	havePrev := false

	for _, ts := range times {
		value := samples[ts]
		if ds.IsValueInteger() {
			value = math.Round(value)
		}

		if ts <= ds.TsToStartWith || ts > now {
			prep.Unused = append(prep.Unused, models.UnusedDsReading{
				DatastreamID: ds.ID, Time: ts, Value: value,
			})
			continue
		}

		if value < ds.MinPlausibleValue || value > ds.MaxPlausibleValue {
			prep.Invalid = append(prep.Invalid, models.InvalidDsReading{
				DatastreamID: ds.ID, Time: ts, Value: value,
			})
			continue
		}

		if havePrev && ts > prevTS {
			rate := math.Abs(value-prevValue) / (float64(ts-prevTS) / 1000.0)
			if rate > ds.MaxRateOfChange {
				prep.NonRoc = append(prep.NonRoc, models.NonRocDsReading{
					DatastreamID: ds.ID, Time: ts, Value: value,
				})
				continue
			}
		}

		prep.Valid = append(prep.Valid, models.DsReading{
			DatastreamID: ds.ID, Time: ts, Value: value,
		})
		prevTS = ts
		prevValue = value
		havePrev = true
	}

	return prep
}

// prepareNoDataMarkers splits candidate marker timestamps by the processing
// window: strictly after the cursor and strictly before now. Streams that do
// not track markers never reach this point.
func prepareNoDataMarkers(times []int64, ds *models.Datastream, now int64) ([]models.NoDataMarker, []models.UnusedNoDataMarker) {
	var accepted []models.NoDataMarker
	var unused []models.UnusedNoDataMarker

	for _, ts := range times {
		if ts > ds.TsToStartWith && ts < now {
			accepted = append(accepted, models.NoDataMarker{DatastreamID: ds.ID, Time: ts})
		} else {
			unused = append(unused, models.UnusedNoDataMarker{DatastreamID: ds.ID, Time: ts})
		}
	}
	return accepted, unused
}
