package parse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/camsys/onebusaway-application-modules-sub000/model"
)

func TestLoadFrequencies(t *testing.T) {
	for _, tc := range []struct {
		name        string
		content     []string
		frequencies []*model.Frequency
		err         bool
	}{
		{
			name: "headway and exact times",
			content: []string{
				"trip_id,start_time,end_time,headway_secs,exact_times",
				"t1,06:00:00,09:00:00,600,",
				"t1,16:00:00,25:00:00,900,1",
			},
			frequencies: []*model.Frequency{
				{TripID: "t1", StartTime: "060000", EndTime: "090000", HeadwaySecs: 600},
				{TripID: "t1", StartTime: "160000", EndTime: "250000", HeadwaySecs: 900, ExactTimes: 1},
			},
		},
		{
			name:    "trip_id unknown",
			content: []string{"trip_id,start_time,end_time,headway_secs", "t9,06:00:00,09:00:00,600"},
			err:     true,
		},
		{
			name:    "start_time missing",
			content: []string{"trip_id,end_time,headway_secs", "t1,09:00:00,600"},
			err:     true,
		},
		{
			name:    "ends before it starts",
			content: []string{"trip_id,start_time,end_time,headway_secs", "t1,09:00:00,06:00:00,600"},
			err:     true,
		},
		{
			name:    "headway_secs zero",
			content: []string{"trip_id,start_time,end_time,headway_secs", "t1,06:00:00,09:00:00,0"},
			err:     true,
		},
		{
			name:    "exact_times out of range",
			content: []string{"trip_id,start_time,end_time,headway_secs,exact_times", "t1,06:00:00,09:00:00,600,2"},
			err:     true,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			l, read := newTestLoader(t)
			l.trips = set("t1")

			err := l.LoadFrequencies(csvFile(tc.content...))
			if tc.err {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)

			frequencies, err := read().Frequencies()
			require.NoError(t, err)
			assert.Equal(t, tc.frequencies, frequencies)
		})
	}
}
