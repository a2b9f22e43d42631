package indicator

import "math"

// SMA calculates Simple Moving Average
// Returns slice of length: len(prices) - period + 1
func SMA(prices []float64, period int) []float64 {
	if period < 1 || len(prices) < period {
		return []float64{}
	}

	result := make([]float64, 0, len(prices)-period+1)

	// Calculate first SMA
	var sum float64
	for i := 0; i < period; i++ {
		sum += prices[i]
	}
	result = append(result, sum/float64(period))

	// Rolling calculation: add the incoming price, drop the one leaving
	// the window, so each step stays O(1) instead of re-averaging.
	for i := period; i < len(prices); i++ {
		sum = sum - prices[i-period] + prices[i]
		result = append(result, sum/float64(period))
	}

	return result
}

// SMAAligned calculates the SMA aligned to the input series: the result has
// the same length as prices, with NaN for the first period-1 entries where
// the window is not yet full. A series shorter than period is all NaN.
func SMAAligned(prices []float64, period int) []float64 {
	result := make([]float64, len(prices))
	for i := range result {
		result[i] = math.NaN()
	}

	values := SMA(prices, period)
	for i, v := range values {
		result[period-1+i] = v
	}

	return result
}
