package utils

import (
	"time"
)

// LoadLocation resolves an IANA zone name, falling back to UTC when it is unknown.
func LoadLocation(name string) (*time.Location, bool) {
	if name == "" {
		return time.UTC, false
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC, false
	}
	return loc, true
}
