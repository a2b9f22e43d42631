package core

import "time"

// Side is the direction of an intended or held position.
type Side string

const (
	// SideNone marks entries before enough history exists to decide.
	SideNone Side = ""
	SideFlat Side = "flat"
	SideLong Side = "long"
)

// PricePoint is a single daily closing-price observation.
type PricePoint struct {
	Date  time.Time
	Close float64
}

// IsValid checks if the point has a usable close price.
func (p PricePoint) IsValid() bool {
	return !p.Date.IsZero() && p.Close > 0
}

// Day truncates the point's timestamp to a UTC calendar date.
func (p PricePoint) Day() time.Time {
	y, m, d := p.Date.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
