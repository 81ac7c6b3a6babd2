package parse

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	proto "google.golang.org/protobuf/proto"

	p "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
)

func encodeFeed(t *testing.T, header *p.FeedHeader, entities ...*p.FeedEntity) []byte {
	if header == nil {
		header = &p.FeedHeader{GtfsRealtimeVersion: proto.String("2.0")}
	}
	data, err := proto.Marshal(&p.FeedMessage{Header: header, Entity: entities})
	require.NoError(t, err)
	return data
}

func tripEntity(id string, trip *p.TripDescriptor, updates ...*p.TripUpdate_StopTimeUpdate) *p.FeedEntity {
	return &p.FeedEntity{
		Id: proto.String(id),
		TripUpdate: &p.TripUpdate{
			Trip:           trip,
			StopTimeUpdate: updates,
		},
	}
}

func event(at time.Time, delay int32) *p.TripUpdate_StopTimeEvent {
	ev := &p.TripUpdate_StopTimeEvent{Delay: proto.Int32(delay)}
	if !at.IsZero() {
		ev.Time = proto.Int64(at.Unix())
	}
	return ev
}

func TestParseRealtimeHeader(t *testing.T) {
	for _, tc := range []struct {
		name   string
		header *p.FeedHeader
		err    bool
	}{
		{"version 2.0", &p.FeedHeader{GtfsRealtimeVersion: proto.String("2.0")}, false},
		{"version 1.0", &p.FeedHeader{GtfsRealtimeVersion: proto.String("1.0")}, false},
		{
			"explicit full dataset",
			&p.FeedHeader{
				GtfsRealtimeVersion: proto.String("2.0"),
				Incrementality:      p.FeedHeader_FULL_DATASET.Enum(),
			},
			false,
		},
		{"version 3.0", &p.FeedHeader{GtfsRealtimeVersion: proto.String("3.0")}, true},
		{
			"differential",
			&p.FeedHeader{
				GtfsRealtimeVersion: proto.String("2.0"),
				Incrementality:      p.FeedHeader_DIFFERENTIAL.Enum(),
			},
			true,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseRealtime(context.Background(), [][]byte{encodeFeed(t, tc.header)})
			if tc.err {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestParseRealtimeGarbage(t *testing.T) {
	_, err := ParseRealtime(context.Background(), [][]byte{[]byte("not a protobuf at all")})
	assert.Error(t, err)
}

func TestParseRealtimeCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := ParseRealtime(ctx, [][]byte{encodeFeed(t, nil)})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestParseRealtimeStopTimeUpdates(t *testing.T) {
	at := func(sec int) time.Time {
		return time.Date(2015, 1, 2, 3, 3, sec, 0, time.UTC)
	}

	data := encodeFeed(t, nil, tripEntity(
		"e1",
		&p.TripDescriptor{TripId: proto.String("trip1"), RouteId: proto.String("route1")},
		&p.TripUpdate_StopTimeUpdate{
			StopSequence: proto.Uint32(4),
			StopId:       proto.String("stop1"),
			Arrival:      event(at(2), 47),
			Departure:    event(at(4), 48),
		},
		&p.TripUpdate_StopTimeUpdate{
			StopSequence: proto.Uint32(5),
			StopId:       proto.String("stop2"),
			Arrival:      event(at(6), 49),
		},
		&p.TripUpdate_StopTimeUpdate{
			StopSequence: proto.Uint32(6),
			Departure:    event(time.Time{}, 50),
		},
		&p.TripUpdate_StopTimeUpdate{
			StopId:               proto.String("stop4"),
			ScheduleRelationship: p.TripUpdate_StopTimeUpdate_SKIPPED.Enum(),
		},
		&p.TripUpdate_StopTimeUpdate{
			StopId:               proto.String("stop5"),
			ScheduleRelationship: p.TripUpdate_StopTimeUpdate_NO_DATA.Enum(),
		},
		&p.TripUpdate_StopTimeUpdate{
			StopId:               proto.String("stop6"),
			ScheduleRelationship: p.TripUpdate_StopTimeUpdate_UNSCHEDULED.Enum(),
		},
	))

	rt, err := ParseRealtime(context.Background(), [][]byte{data})
	require.NoError(t, err)
	require.Equal(t, 1, len(rt.TripUpdates))

	assert.Equal(t, []*StopTimeUpdate{
		{
			TripID:         "trip1",
			StopID:         "stop1",
			StopSequence:   4,
			ArrivalIsSet:   true,
			ArrivalTime:    at(2),
			ArrivalDelay:   47 * time.Second,
			DepartureIsSet: true,
			DepartureTime:  at(4),
			DepartureDelay: 48 * time.Second,
		},
		{
			TripID:       "trip1",
			StopID:       "stop2",
			StopSequence: 5,
			ArrivalIsSet: true,
			ArrivalTime:  at(6),
			ArrivalDelay: 49 * time.Second,
		},
		{
			TripID:         "trip1",
			StopSequence:   6,
			DepartureIsSet: true,
			DepartureDelay: 50 * time.Second,
		},
		{TripID: "trip1", StopID: "stop4", Type: StopTimeUpdateSkipped},
		{TripID: "trip1", StopID: "stop5", Type: StopTimeUpdateNoData},
	}, rt.TripUpdates[0].StopTimeUpdates)
}

func TestParseRealtimeStopTimeUpdateUnidentified(t *testing.T) {
	data := encodeFeed(t, nil, tripEntity(
		"e1",
		&p.TripDescriptor{TripId: proto.String("trip1")},
		&p.TripUpdate_StopTimeUpdate{Arrival: event(time.Time{}, 30)},
	))
	_, err := ParseRealtime(context.Background(), [][]byte{data})
	assert.Error(t, err)
}

func TestParseRealtimeTripRelationships(t *testing.T) {
	trip := func(id string, rel p.TripDescriptor_ScheduleRelationship) *p.TripDescriptor {
		return &p.TripDescriptor{TripId: proto.String(id), ScheduleRelationship: rel.Enum()}
	}
	stop := &p.TripUpdate_StopTimeUpdate{StopId: proto.String("s1"), Arrival: event(time.Time{}, 60)}

	data := encodeFeed(t, nil,
		tripEntity("e1", trip("scheduled", p.TripDescriptor_SCHEDULED), stop),
		tripEntity("e2", trip("added", p.TripDescriptor_ADDED), stop),
		tripEntity("e3", trip("canceled", p.TripDescriptor_CANCELED)),
		tripEntity("e4", trip("unscheduled", p.TripDescriptor_UNSCHEDULED), stop),
		tripEntity("e5", trip("duplicated", p.TripDescriptor_DUPLICATED), stop),
		tripEntity("e6", &p.TripDescriptor{RouteId: proto.String("r1")}, stop),
	)

	rt, err := ParseRealtime(context.Background(), [][]byte{data})
	require.NoError(t, err)

	require.Equal(t, 2, len(rt.TripUpdates))
	assert.Equal(t, "scheduled", rt.TripUpdates[0].Trip.TripID)
	assert.Equal(t, TripScheduled, rt.TripUpdates[0].Trip.Relationship)
	assert.Equal(t, "added", rt.TripUpdates[1].Trip.TripID)
	assert.Equal(t, TripAdded, rt.TripUpdates[1].Trip.Relationship)
	assert.Equal(t, 1, len(rt.TripUpdates[1].StopTimeUpdates))

	assert.Equal(t, map[string]bool{"canceled": true}, rt.SkippedTrips)
	assert.Equal(t, 3, rt.Ignored)
}

func TestParseRealtimeMultipleFeeds(t *testing.T) {
	header := func(ts uint64) *p.FeedHeader {
		return &p.FeedHeader{GtfsRealtimeVersion: proto.String("2.0"), Timestamp: proto.Uint64(ts)}
	}

	feeds := [][]byte{
		encodeFeed(t, header(1337), tripEntity(
			"e1",
			&p.TripDescriptor{
				TripId:               proto.String("trip1"),
				ScheduleRelationship: p.TripDescriptor_CANCELED.Enum(),
			},
		)),
		encodeFeed(t, header(1338), tripEntity(
			"e2",
			&p.TripDescriptor{TripId: proto.String("trip2")},
			&p.TripUpdate_StopTimeUpdate{StopId: proto.String("stop1"), Arrival: event(time.Time{}, 47)},
		)),
		encodeFeed(t, header(1339), &p.FeedEntity{
			Id: proto.String("e3"),
			Vehicle: &p.VehiclePosition{
				Vehicle: &p.VehicleDescriptor{Id: proto.String("bus9")},
			},
		}),
	}

	rt, err := ParseRealtime(context.Background(), feeds)
	require.NoError(t, err)

	assert.Equal(t, map[string]bool{"trip1": true}, rt.SkippedTrips)
	require.Equal(t, 1, len(rt.TripUpdates))
	assert.Equal(t, "trip2", rt.TripUpdates[0].Trip.TripID)
	require.Equal(t, 1, len(rt.VehiclePositions))
	assert.Equal(t, "bus9", rt.VehiclePositions[0].VehicleID)
	assert.False(t, rt.VehiclePositions[0].HasPosition)

	// Entities are numbered across feeds
	assert.Equal(t, 1, rt.TripUpdates[0].Index)
	assert.Equal(t, 2, rt.VehiclePositions[0].Index)

	// Last header wins
	assert.Equal(t, uint64(1339), rt.Timestamp)

	// One bad feed spoils the lot
	feeds = append(feeds, encodeFeed(t, &p.FeedHeader{GtfsRealtimeVersion: proto.String("0.9")}))
	_, err = ParseRealtime(context.Background(), feeds)
	assert.Error(t, err)
}

func TestParseRealtimeEntities(t *testing.T) {
	data := encodeFeed(t, nil,
		&p.FeedEntity{
			Id: proto.String("tu1"),
			TripUpdate: &p.TripUpdate{
				Trip: &p.TripDescriptor{
					TripId:      proto.String("trip1"),
					RouteId:     proto.String("route1"),
					DirectionId: proto.Uint32(1),
					StartDate:   proto.String("20240212"),
					StartTime:   proto.String("08:15:00"),
				},
				Vehicle:   &p.VehicleDescriptor{Id: proto.String("bus1"), Label: proto.String("Bus One")},
				Timestamp: proto.Uint64(1707700010),
				Delay:     proto.Int32(-30),
			},
		},
		&p.FeedEntity{
			Id: proto.String("vp1"),
			Vehicle: &p.VehiclePosition{
				Trip:      &p.TripDescriptor{TripId: proto.String("trip1")},
				Vehicle:   &p.VehicleDescriptor{Label: proto.String("bus1")},
				Position:  &p.Position{Latitude: proto.Float32(40.5), Longitude: proto.Float32(-74.25)},
				Timestamp: proto.Uint64(1707700020),
				StopId:    proto.String("stop1"),
			},
		},
		&p.FeedEntity{
			// Nothing to attach this one to
			Id:      proto.String("vp2"),
			Vehicle: &p.VehiclePosition{},
		},
		&p.FeedEntity{
			Id: proto.String("tu2"),
			TripUpdate: &p.TripUpdate{
				Trip: &p.TripDescriptor{TripId: proto.String("trip2")},
			},
		},
	)

	rt, err := ParseRealtime(context.Background(), [][]byte{data})
	require.NoError(t, err)

	require.Equal(t, 2, len(rt.TripUpdates))
	tu := rt.TripUpdates[0]
	assert.Equal(t, TripDescriptor{
		TripID:       "trip1",
		RouteID:      "route1",
		StartDate:    "20240212",
		StartTime:    "08:15:00",
		DirectionID:  "1",
		Relationship: TripScheduled,
	}, tu.Trip)
	assert.Equal(t, "bus1", tu.VehicleID)
	assert.Equal(t, time.Unix(1707700010, 0).UTC(), tu.Timestamp)
	assert.True(t, tu.DelayIsSet)
	assert.Equal(t, -30*time.Second, tu.Delay)
	assert.Equal(t, 0, len(tu.StopTimeUpdates))

	bare := rt.TripUpdates[1]
	assert.Equal(t, "", bare.Trip.DirectionID)
	assert.Equal(t, "", bare.VehicleID)
	assert.True(t, bare.Timestamp.IsZero())
	assert.False(t, bare.DelayIsSet)
	assert.Equal(t, 0, tu.Index)
	assert.Equal(t, 3, bare.Index)

	require.Equal(t, 1, len(rt.VehiclePositions))
	vp := rt.VehiclePositions[0]
	assert.Equal(t, "bus1", vp.VehicleID)
	assert.Equal(t, "trip1", vp.Trip.TripID)
	assert.True(t, vp.HasPosition)
	assert.InDelta(t, 40.5, vp.Lat, 1e-6)
	assert.InDelta(t, -74.25, vp.Lon, 1e-6)
	assert.Equal(t, "stop1", vp.StopID)
	assert.Equal(t, time.Unix(1707700020, 0).UTC(), vp.Timestamp)
	assert.Equal(t, 1, vp.Index)
}

func TestEmptyRealtime(t *testing.T) {
	rt := EmptyRealtime()
	assert.NotNil(t, rt.SkippedTrips)
	assert.NotNil(t, rt.TripUpdates)
	assert.NotNil(t, rt.VehiclePositions)
	assert.Equal(t, uint64(0), rt.Timestamp)
	assert.Equal(t, 0, rt.Ignored)
}
