// Package csvfile reads daily price history from a local CSV file, for
// offline runs and fixtures. Expected layout: a "date,close" header followed
// by one row per trading day, dates formatted YYYY-MM-DD.
package csvfile

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/newthinker/crossover/internal/core"
	"github.com/newthinker/crossover/internal/provider"
)

// Compile-time interface check.
var _ provider.PriceProvider = (*Provider)(nil)

// Provider serves price points from a single CSV file.
type Provider struct {
	path string
}

// New creates a CSV file provider reading from path.
func New(path string) *Provider {
	return &Provider{path: path}
}

// FetchDaily returns the points within [start, end], ascending by date. The
// symbol argument is ignored: one file holds one instrument's history.
func (p *Provider) FetchDaily(_ context.Context, _ string, start, end time.Time) ([]core.PricePoint, error) {
	f, err := os.Open(p.path)
	if err != nil {
		return nil, core.WrapError(core.ErrFetchFailed, err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = 2

	records, err := reader.ReadAll()
	if err != nil {
		return nil, core.WrapError(core.ErrFetchFailed, fmt.Errorf("reading %s: %w", p.path, err))
	}

	var points []core.PricePoint
	for i, rec := range records {
		date, err := time.Parse("2006-01-02", rec[0])
		if err != nil {
			if i == 0 {
				continue // header row
			}
			return nil, core.WrapError(core.ErrFetchFailed,
				fmt.Errorf("%s row %d: bad date %q", p.path, i+1, rec[0]))
		}

		close, err := strconv.ParseFloat(rec[1], 64)
		if err != nil {
			return nil, core.WrapError(core.ErrFetchFailed,
				fmt.Errorf("%s row %d: bad close %q", p.path, i+1, rec[1]))
		}

		if date.Before(start) || date.After(end) {
			continue
		}
		points = append(points, core.PricePoint{Date: date, Close: close})
	}

	if len(points) == 0 {
		return nil, core.WrapError(core.ErrNoData,
			fmt.Errorf("%s: no rows in range %s..%s",
				p.path, start.Format("2006-01-02"), end.Format("2006-01-02")))
	}

	sort.Slice(points, func(i, j int) bool {
		return points[i].Date.Before(points[j].Date)
	})

	return points, nil
}
