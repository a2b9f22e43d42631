// Package yahoo fetches daily price history from the Yahoo Finance chart API.
package yahoo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/newthinker/crossover/internal/core"
	"github.com/newthinker/crossover/internal/provider"
)

const baseURL = "https://query1.finance.yahoo.com/v8/finance/chart"

// Compile-time interface check.
var _ provider.PriceProvider = (*Yahoo)(nil)

// validSymbol matches stock symbols like AAPL, MSFT, 600519.SH, 0700.HK
var validSymbol = regexp.MustCompile(`^[A-Za-z0-9]{1,10}(\.[A-Za-z]{1,4})?$`)

// validateSymbol checks if a symbol has valid format
func validateSymbol(symbol string) error {
	if symbol == "" {
		return fmt.Errorf("symbol cannot be empty")
	}
	if len(symbol) > 20 {
		return fmt.Errorf("symbol too long: %s", symbol)
	}
	if !validSymbol.MatchString(symbol) {
		return fmt.Errorf("invalid symbol format: %s", symbol)
	}
	return nil
}

// Yahoo implements the Yahoo Finance price provider
type Yahoo struct {
	client     *http.Client
	baseURL    string
	maxRetries uint64
}

// New creates a new Yahoo provider. Transient HTTP failures are retried up
// to maxRetries times with exponential backoff; unknown symbols and empty
// ranges fail immediately.
func New(timeout time.Duration, maxRetries int) *Yahoo {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &Yahoo{
		client:     &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		maxRetries: uint64(maxRetries),
	}
}

// toYahooSymbol converts internal symbol format to Yahoo format
func toYahooSymbol(symbol string) string {
	// Shanghai stocks: 600519.SH -> 600519.SS
	if strings.HasSuffix(symbol, ".SH") {
		return strings.TrimSuffix(symbol, ".SH") + ".SS"
	}
	return symbol
}

// FetchDaily fetches daily closing prices for [start, end].
func (y *Yahoo) FetchDaily(ctx context.Context, symbol string, start, end time.Time) ([]core.PricePoint, error) {
	if err := validateSymbol(symbol); err != nil {
		return nil, core.WrapError(core.ErrFetchFailed, err)
	}

	url := fmt.Sprintf("%s/%s?interval=1d&period1=%d&period2=%d",
		y.baseURL, toYahooSymbol(symbol), start.Unix(), end.Unix())

	var points []core.PricePoint
	operation := func() error {
		var err error
		points, err = y.fetchOnce(ctx, url, symbol)
		return err
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), y.maxRetries), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		var coreErr *core.Error
		if errors.As(err, &coreErr) {
			return nil, err
		}
		return nil, core.WrapError(core.ErrFetchFailed, err)
	}

	return points, nil
}

func (y *Yahoo) fetchOnce(ctx context.Context, url, symbol string) ([]core.PricePoint, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, backoff.Permanent(err)
	}

	resp, err := y.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching history: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, backoff.Permanent(core.WrapError(core.ErrSymbolNotFound,
			fmt.Errorf("symbol %s", symbol)))
	case resp.StatusCode != http.StatusOK:
		// Treat other failures (rate limits, upstream errors) as transient.
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	var result chartResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	if result.Chart.Error != nil {
		return nil, backoff.Permanent(core.WrapError(core.ErrSymbolNotFound,
			fmt.Errorf("%s: %s", symbol, result.Chart.Error.Description)))
	}

	if len(result.Chart.Result) == 0 {
		return nil, backoff.Permanent(core.WrapError(core.ErrNoData,
			fmt.Errorf("no chart data for symbol %s", symbol)))
	}

	r := result.Chart.Result[0]
	if len(r.Indicators.Quote) == 0 {
		return nil, backoff.Permanent(core.WrapError(core.ErrNoData,
			fmt.Errorf("no quotes for symbol %s", symbol)))
	}

	quotes := r.Indicators.Quote[0]
	points := make([]core.PricePoint, 0, len(r.Timestamp))
	for i, ts := range r.Timestamp {
		if i >= len(quotes.Close) || quotes.Close[i] == nil {
			continue // Skip missing data
		}
		points = append(points, core.PricePoint{
			Date:  time.Unix(int64(ts), 0).UTC(),
			Close: *quotes.Close[i],
		})
	}

	if len(points) == 0 {
		return nil, backoff.Permanent(core.WrapError(core.ErrNoData,
			fmt.Errorf("empty range for symbol %s", symbol)))
	}

	return points, nil
}

// Yahoo API response types
type chartResponse struct {
	Chart struct {
		Result []chartResult `json:"result"`
		Error  *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

type chartResult struct {
	Timestamp  []int      `json:"timestamp"`
	Indicators indicators `json:"indicators"`
}

type indicators struct {
	Quote []quoteIndicator `json:"quote"`
}

type quoteIndicator struct {
	Close []*float64 `json:"close"`
}
