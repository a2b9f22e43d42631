// Package provider defines the interface for price-history sources.
package provider

import (
	"context"
	"time"

	"github.com/newthinker/crossover/internal/core"
)

// PriceProvider supplies ordered daily closing prices for one symbol over a
// date range. Implementations return points ascending by date with no
// duplicate dates, or an error if the symbol is unknown or the range holds
// no data.
type PriceProvider interface {
	FetchDaily(ctx context.Context, symbol string, start, end time.Time) ([]core.PricePoint, error)
}
