// Package dataflows fetches market data from external providers. Providers
// deliver complete daily bars or an explicit error; the signal store never
// sees partial or NaN values.
package dataflows

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"rsidesk/internal/models"
)

// Provider is the market-data collaborator the signal refresher depends on.
type Provider interface {
	// DailyBars returns daily OHLCV bars for [start, end], oldest first.
	DailyBars(symbol string, start, end time.Time) ([]models.PricePoint, error)
	// Quote returns the current market price for a symbol.
	Quote(symbol string) (float64, error)
}

// RetryConfig bounds retries with exponential backoff. External calls must
// surface a bounded result; unbounded polling never happens in the core.
type RetryConfig struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	Multiplier float64
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 3,
		BaseDelay:  time.Second,
		MaxDelay:   10 * time.Second,
		Multiplier: 2,
	}
}

// WithRetry executes fn with exponential backoff.
func WithRetry(cfg RetryConfig, fn func() error) error {
	var lastErr error

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := cfg.BaseDelay
			for i := 1; i < attempt; i++ {
				delay = time.Duration(float64(delay) * cfg.Multiplier)
			}
			if delay > cfg.MaxDelay {
				delay = cfg.MaxDelay
			}
			time.Sleep(delay)
		}

		if err := fn(); err != nil {
			lastErr = err
			continue
		}
		return nil
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

var symbolPattern = regexp.MustCompile(`^[A-Z0-9.-]+$`)

// ValidateSymbol rejects malformed ticker symbols before any network call.
func ValidateSymbol(symbol string) error {
	symbol = strings.TrimSpace(strings.ToUpper(symbol))
	if symbol == "" {
		return fmt.Errorf("symbol cannot be empty")
	}
	if len(symbol) > 10 {
		return fmt.Errorf("symbol %q too long", symbol)
	}
	if !symbolPattern.MatchString(symbol) {
		return fmt.Errorf("invalid symbol format %q", symbol)
	}
	return nil
}

// NormalizeSymbol upper-cases and trims a ticker symbol.
func NormalizeSymbol(symbol string) string {
	return strings.TrimSpace(strings.ToUpper(symbol))
}
