package model

import (
	"fmt"
	"sync"
	"time"
)

const DateFormat = "20060102"

// Midnight of a service date, computed as noon minus 12 hours. On DST
// transition days this is not wall-clock midnight, but it is the
// reference GTFS stop times are offsets from.
func ServiceDate(year int, month time.Month, day int, loc *time.Location) time.Time {
	noon := time.Date(year, month, day, 12, 0, 0, 0, loc)
	return noon.Add(-12 * time.Hour)
}

// Service date for the calendar day t falls on, in loc.
func ServiceDateOf(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	return ServiceDate(local.Year(), local.Month(), local.Day(), loc)
}

// Parses a YYYYMMDD date into its service date midnight.
func ParseServiceDate(date string, loc *time.Location) (time.Time, error) {
	d, err := time.ParseInLocation(DateFormat, date, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date: %s", date)
	}
	return ServiceDate(d.Year(), d.Month(), d.Day(), loc), nil
}

// YYYYMMDD of a service date.
func DateString(serviceDate time.Time) string {
	noon := serviceDate.Add(12 * time.Hour)
	return noon.Format(DateFormat)
}

// Adds days to a service date, keeping the noon-12h anchor.
func AddDays(serviceDate time.Time, days int) time.Time {
	noon := serviceDate.Add(12 * time.Hour).AddDate(0, 0, days)
	return ServiceDate(noon.Year(), noon.Month(), noon.Day(), serviceDate.Location())
}

// Seconds between a service date's midnight and t.
func SecondsSince(serviceDate time.Time, t time.Time) int {
	return int(t.Sub(serviceDate) / time.Second)
}

// Absolute time of an offset (in seconds) from a service date.
func TimeAt(serviceDate time.Time, seconds int) time.Time {
	return serviceDate.Add(time.Duration(seconds) * time.Second)
}

var locations sync.Map

// Loads a timezone, caching the result. An empty name is UTC.
func Location(tz string) (*time.Location, error) {
	if loc, ok := locations.Load(tz); ok {
		return loc.(*time.Location), nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("loading timezone '%s': %w", tz, err)
	}
	locations.Store(tz, loc)
	return loc, nil
}
