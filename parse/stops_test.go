package parse

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/camsys/onebusaway-application-modules-sub000/model"
)

func TestLoadStops(t *testing.T) {
	for _, tc := range []struct {
		name    string
		content []string
		stops   []*model.Stop
		err     bool
	}{
		{
			name: "minimal",
			content: []string{
				"stop_id,stop_name,stop_lat,stop_lon",
				"s1,Main St,40.7,-74",
			},
			stops: []*model.Stop{{ID: "s1", Name: "Main St", Lat: 40.7, Lon: -74}},
		},
		{
			name: "station with platforms and a node",
			content: []string{
				"stop_id,stop_code,stop_name,stop_desc,stop_lat,stop_lon,stop_url,location_type,parent_station,wheelchair_boarding,platform_code",
				"p1,101,Central Platform 1,Northbound,40.71,-74.01,http://s/p1,0,st,1,1",
				"st,,Central,,40.71,-74.01,http://s/st,1,,2,",
				"node,,,,,,,3,st,,",
			},
			stops: []*model.Stop{
				{ID: "node", LocationType: model.LocationTypeGenericNode, ParentStation: "st"},
				{
					ID:                 "p1",
					Code:               "101",
					Name:               "Central Platform 1",
					Desc:               "Northbound",
					Lat:                40.71,
					Lon:                -74.01,
					URL:                "http://s/p1",
					LocationType:       model.LocationTypeStop,
					ParentStation:      "st",
					PlatformCode:       "1",
					WheelchairBoarding: model.WheelchairAccessible,
				},
				{
					ID:                 "st",
					Name:               "Central",
					Lat:                40.71,
					Lon:                -74.01,
					URL:                "http://s/st",
					LocationType:       model.LocationTypeStation,
					WheelchairBoarding: model.WheelchairNotAccessible,
				},
			},
		},
		{
			name:    "stop_id missing",
			content: []string{"stop_id,stop_name,stop_lat,stop_lon", ",Main St,40.7,-74"},
			err:     true,
		},
		{
			name:    "stop_id repeated",
			content: []string{"stop_id,stop_name,stop_lat,stop_lon", "s1,Main St,40.7,-74", "s1,Elm St,40.8,-74"},
			err:     true,
		},
		{
			name:    "stop_lat not a number",
			content: []string{"stop_id,stop_name,stop_lat,stop_lon", "s1,Main St,40.7N,-74"},
			err:     true,
		},
		{
			name:    "stop_lat out of range",
			content: []string{"stop_id,stop_name,stop_lat,stop_lon", "s1,Main St,140.7,-74"},
			err:     true,
		},
		{
			name:    "stop_lon out of range",
			content: []string{"stop_id,stop_name,stop_lat,stop_lon", "s1,Main St,40.7,-194"},
			err:     true,
		},
		{
			name:    "coordinates missing on a stop",
			content: []string{"stop_id,stop_name,stop_lat,stop_lon", "s1,Main St,,"},
			err:     true,
		},
		{
			name:    "coordinates missing on a station",
			content: []string{"stop_id,stop_name,stop_lat,stop_lon,location_type", "st,Central,40.7,,1"},
			err:     true,
		},
		{
			name:    "stop_name missing on a stop",
			content: []string{"stop_id,stop_name,stop_lat,stop_lon", "s1,,40.7,-74"},
			err:     true,
		},
		{
			name:    "location_type out of range",
			content: []string{"stop_id,stop_name,stop_lat,stop_lon,location_type", "s1,Main St,40.7,-74,5"},
			err:     true,
		},
		{
			name:    "location_type not a number",
			content: []string{"stop_id,stop_name,stop_lat,stop_lon,location_type", "s1,Main St,40.7,-74,platform"},
			err:     true,
		},
		{
			name:    "wheelchair_boarding out of range",
			content: []string{"stop_id,stop_name,stop_lat,stop_lon,wheelchair_boarding", "s1,Main St,40.7,-74,3"},
			err:     true,
		},
		{
			name:    "parent_station unknown",
			content: []string{"stop_id,stop_name,stop_lat,stop_lon,parent_station", "s1,Main St,40.7,-74,st"},
			err:     true,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			l, read := newTestLoader(t)

			err := l.LoadStops(csvFile(tc.content...))
			if tc.err {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)

			stops, err := read().Stops()
			require.NoError(t, err)
			sort.Slice(stops, func(i, j int) bool {
				return stops[i].ID < stops[j].ID
			})
			assert.Equal(t, tc.stops, stops)
		})
	}
}
