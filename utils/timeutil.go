package utils

import (
	"math"
	"time"

	"marketlens/types"
)

// LoadLocation returns the named zone, falling back to UTC.
func LoadLocation(name string) *time.Location {
	if name == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Today returns the current calendar date in loc.
func Today(loc *time.Location) types.Date {
	return types.NewDate(time.Now().In(loc))
}

// DaysBetween returns the number of calendar days from -> to (negative if to is earlier).
func DaysBetween(from, to types.Date) int {
	return int(math.Round(to.Sub(from.Time).Hours() / 24))
}
