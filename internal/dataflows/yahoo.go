package dataflows

import (
	"fmt"
	"time"

	"github.com/piquette/finance-go/chart"
	"github.com/piquette/finance-go/datetime"
	"github.com/piquette/finance-go/quote"

	"rsidesk/internal/models"
)

// YahooClient fetches daily bars and quotes from Yahoo Finance.
type YahooClient struct {
	retry RetryConfig
}

func NewYahooClient() *YahooClient {
	return &YahooClient{retry: DefaultRetryConfig()}
}

// DailyBars fetches daily OHLCV bars for [start, end], oldest first.
func (y *YahooClient) DailyBars(symbol string, start, end time.Time) ([]models.PricePoint, error) {
	if err := ValidateSymbol(symbol); err != nil {
		return nil, err
	}
	symbol = NormalizeSymbol(symbol)

	var result []models.PricePoint
	err := WithRetry(y.retry, func() error {
		params := &chart.Params{
			Symbol:   symbol,
			Start:    datetime.New(&start),
			End:      datetime.New(&end),
			Interval: datetime.OneDay,
		}

		iter := chart.Get(params)

		result = result[:0]
		for iter.Next() {
			bar := iter.Bar()
			result = append(result, models.PricePoint{
				Symbol:    symbol,
				TradeDate: time.Unix(int64(bar.Timestamp), 0).UTC().Format(models.DateLayout),
				Open:      bar.Open.InexactFloat64(),
				High:      bar.High.InexactFloat64(),
				Low:       bar.Low.InexactFloat64(),
				Close:     bar.Close.InexactFloat64(),
				Volume:    int64(bar.Volume),
			})
		}

		if err := iter.Err(); err != nil {
			return fmt.Errorf("fetch daily bars for %s: %w", symbol, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// Quote returns the current regular-market price for a symbol.
func (y *YahooClient) Quote(symbol string) (float64, error) {
	if err := ValidateSymbol(symbol); err != nil {
		return 0, err
	}
	symbol = NormalizeSymbol(symbol)

	var price float64
	err := WithRetry(y.retry, func() error {
		q, err := quote.Get(symbol)
		if err != nil {
			return fmt.Errorf("fetch quote for %s: %w", symbol, err)
		}
		price = q.RegularMarketPrice
		return nil
	})
	if err != nil {
		return 0, err
	}
	return price, nil
}
