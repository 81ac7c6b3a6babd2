package model

import (
	"strconv"
	"time"
)

// Holds the GTFS records as parsed from a static bundle and kept in
// storage. Graph entities built from these live in entry.go.

type LocationType int

const (
	LocationTypeStop LocationType = iota
	LocationTypeStation
	LocationTypeEntranceExit
	LocationTypeGenericNode
	LocationTypeBoardingArea
)

type RouteType int

const (
	RouteTypeTram       RouteType = 0
	RouteTypeSubway     RouteType = 1
	RouteTypeRail       RouteType = 2
	RouteTypeBus        RouteType = 3
	RouteTypeFerry      RouteType = 4
	RouteTypeCable      RouteType = 5
	RouteTypeAerial     RouteType = 6
	RouteTypeFunicular  RouteType = 7
	RouteTypeTrolleybus RouteType = 11
	RouteTypeMonorail   RouteType = 12
)

type WheelchairBoarding int8

const (
	WheelchairUnknown WheelchairBoarding = iota
	WheelchairAccessible
	WheelchairNotAccessible
)

const (
	ExceptionTypeAdded   int8 = 1
	ExceptionTypeRemoved int8 = 2
)

// Marks an unset shape_dist_traveled.
const NoShapeDist = -1.0

type Agency struct {
	ID       string
	Name     string
	URL      string
	Timezone string
}

type Calendar struct {
	ServiceID string
	StartDate string
	EndDate   string
	Weekday   int8
}

type CalendarDate struct {
	ServiceID     string
	Date          string
	ExceptionType int8
}

type Stop struct {
	ID                 string
	Code               string
	Name               string
	Desc               string
	Lat                float64
	Lon                float64
	URL                string
	LocationType       LocationType
	ParentStation      string
	PlatformCode       string
	WheelchairBoarding WheelchairBoarding
}

type Trip struct {
	ID          string
	RouteID     string
	ServiceID   string
	Headsign    string
	ShortName   string
	DirectionID int8
	BlockID     string
	ShapeID     string
}

type Route struct {
	ID        string
	AgencyID  string
	ShortName string
	LongName  string
	Desc      string
	Type      RouteType
	URL       string
	Color     string
	TextColor string
}

type StopTime struct {
	TripID            string
	StopID            string
	Headsign          string
	StopSequence      uint32
	Arrival           string
	Departure         string
	ShapeDistTraveled float64
}

func (st *StopTime) ArrivalTime() time.Duration {
	return hhmmss(st.Arrival)
}

func (st *StopTime) DepartureTime() time.Duration {
	return hhmmss(st.Departure)
}

type ShapePoint struct {
	ShapeID           string
	Lat               float64
	Lon               float64
	Sequence          uint32
	ShapeDistTraveled float64
}

type Frequency struct {
	TripID      string
	StartTime   string
	EndTime     string
	HeadwaySecs int
	ExactTimes  int8
}

// Parses a "HHMMSS" string into an offset from service date
// midnight. Hours may exceed 23.
func hhmmss(s string) time.Duration {
	if len(s) < 6 {
		return 0
	}
	h, _ := strconv.Atoi(s[0:2])
	m, _ := strconv.Atoi(s[2:4])
	sec, _ := strconv.Atoi(s[4:6])
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute + time.Duration(sec)*time.Second
}

// Seconds since service date midnight for a "HHMMSS" string.
func Seconds(s string) int {
	return int(hhmmss(s) / time.Second)
}
