package parse

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/camsys/onebusaway-application-modules-sub000/model"
)

func TestLoadAgencies(t *testing.T) {
	for _, tc := range []struct {
		name     string
		content  []string
		ids      map[string]bool
		timezone string
		agencies []*model.Agency
		err      bool
	}{
		{
			name: "without agency_id",
			content: []string{
				"agency_name,agency_url,agency_timezone",
				"Metro,http://metro.example.com,America/New_York",
			},
			ids:      set(""),
			timezone: "America/New_York",
			agencies: []*model.Agency{
				{Name: "Metro", URL: "http://metro.example.com", Timezone: "America/New_York"},
			},
		},
		{
			name: "several agencies",
			content: []string{
				"agency_id,agency_name,agency_url,agency_timezone,agency_lang",
				"bus,Buses,http://bus.example.com,America/Chicago,en",
				"rail,Trains,http://rail.example.com,America/Chicago,",
			},
			ids:      set("bus", "rail"),
			timezone: "America/Chicago",
			agencies: []*model.Agency{
				{ID: "bus", Name: "Buses", URL: "http://bus.example.com", Timezone: "America/Chicago"},
				{ID: "rail", Name: "Trains", URL: "http://rail.example.com", Timezone: "America/Chicago"},
			},
		},
		{
			name: "timezones differ",
			content: []string{
				"agency_id,agency_name,agency_url,agency_timezone",
				"bus,Buses,http://bus.example.com,America/Chicago",
				"rail,Trains,http://rail.example.com,America/Denver",
			},
			err: true,
		},
		{
			name: "timezone missing",
			content: []string{
				"agency_id,agency_name,agency_url,agency_timezone",
				"bus,Buses,http://bus.example.com,",
			},
			err: true,
		},
		{
			name: "timezone unknown",
			content: []string{
				"agency_id,agency_name,agency_url,agency_timezone",
				"bus,Buses,http://bus.example.com,America/Gotham",
			},
			err: true,
		},
		{
			name: "agency_id repeated",
			content: []string{
				"agency_id,agency_name,agency_url,agency_timezone",
				"bus,Buses,http://bus.example.com,America/Chicago",
				"bus,More Buses,http://bus.example.com,America/Chicago",
			},
			err: true,
		},
		{
			name: "agency_name missing",
			content: []string{
				"agency_id,agency_url,agency_timezone",
				"bus,http://bus.example.com,America/Chicago",
			},
			err: true,
		},
		{
			name: "agency_url missing",
			content: []string{
				"agency_id,agency_name,agency_timezone",
				"bus,Buses,America/Chicago",
			},
			err: true,
		},
		{
			name:    "header only",
			content: []string{"agency_id,agency_name,agency_url,agency_timezone"},
			err:     true,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			l, read := newTestLoader(t)

			err := l.LoadAgencies(csvFile(tc.content...))
			if tc.err {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)

			assert.Equal(t, tc.ids, l.agencies)
			assert.Equal(t, tc.timezone, l.Metadata().Timezone)

			agencies, err := read().Agencies()
			require.NoError(t, err)
			sort.Slice(agencies, func(i, j int) bool {
				return agencies[i].ID < agencies[j].ID
			})
			assert.Equal(t, tc.agencies, agencies)
		})
	}
}
