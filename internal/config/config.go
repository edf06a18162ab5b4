// Package config loads runtime settings from the environment and strategy
// parameters from a JSON file. A session must never start with invalid risk
// parameters, so Validate is called before anything touches the ledger.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

// Config is the full runtime configuration: broker credentials and paths
// come from the environment (.env supported), strategy parameters from a
// JSON file.
type Config struct {
	BrokerKey     string `json:"-"`
	BrokerSecret  string `json:"-"`
	BrokerBaseURL string `json:"-"`

	DBPath       string `json:"db_path"`
	DataDir      string `json:"data_dir"`
	UniversePath string `json:"universe_path"`

	Strategy Strategy `json:"strategy"`
}

// Strategy holds every risk and signal parameter the decision engine and
// sizing guard consume.
type Strategy struct {
	TotalCapital            float64 `json:"total_capital"`
	BaselineDollars         float64 `json:"baseline_dollars"`
	MaxPortfolioExposurePct float64 `json:"max_portfolio_exposure_pct"`
	MaxSectorExposurePct    float64 `json:"max_sector_exposure_pct"`

	RSIPeriod     int `json:"rsi_period"`
	RetentionDays int `json:"retention_days"`

	Entry         EntryConfig    `json:"entry"`
	Exit          ExitConfig     `json:"exit"`
	AveragingDown AveragingDown  `json:"averaging_down"`
}

// EntryConfig controls when and how large new positions open.
type EntryConfig struct {
	Primary           float64 `json:"primary"`
	Extreme           float64 `json:"extreme"`
	PrimaryMultiplier float64 `json:"primary_multiplier"`
	ExtremeMultiplier float64 `json:"extreme_multiplier"`
	ShortingEnabled   bool    `json:"shorting_enabled"`
}

// ShortThreshold is the mirrored overbought entry level.
func (e EntryConfig) ShortThreshold() float64 {
	return 100 - e.Primary
}

// ExitConfig controls when open positions close.
type ExitConfig struct {
	NeutralLow    float64 `json:"neutral_low"`
	NeutralHigh   float64 `json:"neutral_high"`
	TakeProfitPct float64 `json:"take_profit_pct"`
	StopLossPct   float64 `json:"stop_loss_pct"`
	HoldMaxDays   int     `json:"hold_max_days"`
}

// AveragingDown controls add-to-position candidates.
type AveragingDown struct {
	Enabled     bool    `json:"enabled"`
	TriggerPct  float64 `json:"trigger_pct"`
	MaxAdds     int     `json:"max_adds"`
	AddFraction float64 `json:"add_fraction"`
}

// DefaultStrategy mirrors the shipped strategy.json.
func DefaultStrategy() Strategy {
	return Strategy{
		TotalCapital:            100000,
		BaselineDollars:         2000,
		MaxPortfolioExposurePct: 0.30,
		MaxSectorExposurePct:    0,
		RSIPeriod:               14,
		RetentionDays:           90,
		Entry: EntryConfig{
			Primary:           26,
			Extreme:           20,
			PrimaryMultiplier: 1,
			ExtremeMultiplier: 2,
			ShortingEnabled:   false,
		},
		Exit: ExitConfig{
			NeutralLow:    40,
			NeutralHigh:   60,
			TakeProfitPct: 10,
			StopLossPct:   -15,
			HoldMaxDays:   30,
		},
		AveragingDown: AveragingDown{
			Enabled:     true,
			TriggerPct:  -10,
			MaxAdds:     2,
			AddFraction: 0.5,
		},
	}
}

// Load reads .env if present, applies environment overrides and, when
// strategyPath is non-empty, merges the strategy JSON file on top of the
// defaults.
func Load(strategyPath string) (*Config, error) {
	_ = godotenv.Load()

	currentDir, _ := os.Getwd()
	cfg := &Config{
		DBPath:       filepath.Join(currentDir, "data", "rsidesk.db"),
		DataDir:      filepath.Join(currentDir, "data"),
		UniversePath: filepath.Join(currentDir, "config", "universe.csv"),
		Strategy:     DefaultStrategy(),
	}
	cfg.loadFromEnv()

	if strategyPath != "" {
		if err := cfg.loadStrategyFile(strategyPath); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFromEnv() {
	if val := os.Getenv("BROKER_API_KEY"); val != "" {
		c.BrokerKey = val
	}
	if val := os.Getenv("BROKER_API_SECRET"); val != "" {
		c.BrokerSecret = val
	}
	if val := os.Getenv("BROKER_BASE_URL"); val != "" {
		c.BrokerBaseURL = val
	}
	if val := os.Getenv("RSIDESK_DB_PATH"); val != "" {
		c.DBPath = val
	}
	if val := os.Getenv("RSIDESK_DATA_DIR"); val != "" {
		c.DataDir = val
	}
	if val := os.Getenv("RSIDESK_UNIVERSE"); val != "" {
		c.UniversePath = val
	}
}

func (c *Config) loadStrategyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read strategy config: %w", err)
	}
	if err := json.Unmarshal(data, &c.Strategy); err != nil {
		return fmt.Errorf("parse strategy config %s: %w", path, err)
	}
	return nil
}

// Validate rejects risk parameters the session must not run with.
// Violations are configuration errors and fatal at session start.
func (c *Config) Validate() error {
	s := c.Strategy
	if s.TotalCapital <= 0 {
		return fmt.Errorf("total_capital must be positive, got %.2f", s.TotalCapital)
	}
	if s.BaselineDollars <= 0 {
		return fmt.Errorf("baseline_dollars must be positive, got %.2f", s.BaselineDollars)
	}
	if s.MaxPortfolioExposurePct <= 0 || s.MaxPortfolioExposurePct > 1 {
		return fmt.Errorf("max_portfolio_exposure_pct must be in (0,1], got %.4f", s.MaxPortfolioExposurePct)
	}
	if s.MaxSectorExposurePct < 0 || s.MaxSectorExposurePct > 1 {
		return fmt.Errorf("max_sector_exposure_pct must be in [0,1], got %.4f", s.MaxSectorExposurePct)
	}
	if s.RSIPeriod < 2 {
		return fmt.Errorf("rsi_period must be at least 2, got %d", s.RSIPeriod)
	}
	if s.Entry.Primary <= 0 || s.Entry.Primary >= 100 {
		return fmt.Errorf("entry.primary must be in (0,100), got %.2f", s.Entry.Primary)
	}
	if s.Entry.Extreme < 0 || s.Entry.Extreme > s.Entry.Primary {
		return fmt.Errorf("entry.extreme must be in [0, entry.primary], got %.2f", s.Entry.Extreme)
	}
	if s.Entry.PrimaryMultiplier <= 0 || s.Entry.ExtremeMultiplier <= 0 {
		return fmt.Errorf("entry multipliers must be positive")
	}
	if s.Exit.NeutralLow < 0 || s.Exit.NeutralHigh > 100 || s.Exit.NeutralLow >= s.Exit.NeutralHigh {
		return fmt.Errorf("exit neutral band [%.2f,%.2f] is not a valid RSI range", s.Exit.NeutralLow, s.Exit.NeutralHigh)
	}
	if s.Exit.TakeProfitPct <= 0 {
		return fmt.Errorf("exit.take_profit_pct must be positive, got %.2f", s.Exit.TakeProfitPct)
	}
	if s.Exit.StopLossPct >= 0 {
		return fmt.Errorf("exit.stop_loss_pct must be negative, got %.2f", s.Exit.StopLossPct)
	}
	if s.AveragingDown.Enabled {
		if s.AveragingDown.TriggerPct >= 0 {
			return fmt.Errorf("averaging_down.trigger_pct must be negative, got %.2f", s.AveragingDown.TriggerPct)
		}
		if s.AveragingDown.AddFraction <= 0 || s.AveragingDown.AddFraction > 1 {
			return fmt.Errorf("averaging_down.add_fraction must be in (0,1], got %.4f", s.AveragingDown.AddFraction)
		}
		if s.AveragingDown.MaxAdds < 1 {
			return fmt.Errorf("averaging_down.max_adds must be at least 1, got %d", s.AveragingDown.MaxAdds)
		}
	}
	return nil
}
