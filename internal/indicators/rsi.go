// Package indicators computes technical indicators over daily close series.
package indicators

import "fmt"

// RSISeries calculates the Relative Strength Index with Wilder smoothing.
// closes must be ordered oldest first. The result has one value per close
// starting at index period (the first period+1 closes seed the averages).
func RSISeries(closes []float64, period int) ([]float64, error) {
	if period < 2 {
		return nil, fmt.Errorf("rsi period must be at least 2, got %d", period)
	}
	if len(closes) < period+1 {
		return nil, fmt.Errorf("insufficient history for RSI: need %d closes, got %d", period+1, len(closes))
	}

	var avgGain, avgLoss float64
	for i := 1; i <= period; i++ {
		change := closes[i] - closes[i-1]
		if change > 0 {
			avgGain += change
		} else {
			avgLoss += -change
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)

	result := make([]float64, 0, len(closes)-period)
	result = append(result, rsiFrom(avgGain, avgLoss))

	for i := period + 1; i < len(closes); i++ {
		change := closes[i] - closes[i-1]
		var gain, loss float64
		if change > 0 {
			gain = change
		} else {
			loss = -change
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
		result = append(result, rsiFrom(avgGain, avgLoss))
	}

	return result, nil
}

// Latest returns the most recent RSI value for the series, or ok=false when
// the series is too short. A short series is a valid "no signal" state, not
// an error the caller should surface.
func Latest(closes []float64, period int) (rsi float64, ok bool) {
	series, err := RSISeries(closes, period)
	if err != nil || len(series) == 0 {
		return 0, false
	}
	return series[len(series)-1], true
}

func rsiFrom(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs))
}
