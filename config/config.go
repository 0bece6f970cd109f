package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
)

// Config is the root configuration for the market matrix. It is loaded once
// at startup and passed into each component; nothing mutates it afterwards.
type Config struct {
	FeedConfig         FeedConfig         `json:"feed"`
	WatchlistConfig    WatchlistConfig    `json:"watchlist"`
	IndicatorConfig    IndicatorConfig    `json:"indicators"`
	ConfluenceConfig   ConfluenceConfig   `json:"confluence"`
	PaperConfig        PaperConfig        `json:"paper_trading"`
	TrailingConfig     TrailingConfig     `json:"trailing"`
	StoreConfig        StoreConfig        `json:"store"`
	DatabaseConfig     DatabaseConfig     `json:"database"`
	NotificationConfig NotificationConfig `json:"notification"`
	ReportConfig       ReportConfig       `json:"reports"`
	LoggingConfig      LoggingConfig      `json:"logging"`
}

// FeedConfig holds market data feed configuration.
type FeedConfig struct {
	BaseURL        string `json:"base_url"`
	StreamURL      string `json:"stream_url"`
	TimeoutSeconds int    `json:"timeout_seconds"`
	MockMode       bool   `json:"mock_mode"`    // Use simulated data when the exchange is unavailable
	ExecCommand    string `json:"exec_command"` // Optional external executor for price/positions/close
}

// WatchlistConfig lists the symbols scanned every cycle.
type WatchlistConfig struct {
	Symbols []string `json:"symbols"`
}

// IndicatorConfig holds indicator periods shared by all timeframes.
type IndicatorConfig struct {
	EMAFast         int     `json:"ema_fast"`
	EMASlow         int     `json:"ema_slow"`
	EMAMacro        int     `json:"ema_macro"`
	RSIPeriod       int     `json:"rsi_period"`
	ATRPeriod       int     `json:"atr_period"`
	BollingerPeriod int     `json:"bollinger_period"`
	BollingerStdDev float64 `json:"bollinger_std_dev"`
	MACDFast        int     `json:"macd_fast"`
	MACDSlow        int     `json:"macd_slow"`
	MACDSignal      int     `json:"macd_signal"`
	CandleLimit     int     `json:"candle_limit"` // Candles fetched per timeframe
	RSIOverbought   float64 `json:"rsi_overbought"`
	RSIOversold     float64 `json:"rsi_oversold"`
}

// ConfluenceConfig holds the scoring threshold for trade setups.
type ConfluenceConfig struct {
	MinScore float64 `json:"min_score"` // Minimum score to emit a setup
}

// PaperConfig holds simulated trading parameters.
type PaperConfig struct {
	PositionSizeUSD      float64 `json:"position_size_usd"`
	MaxOpenPositions     int     `json:"max_open_positions"`
	StopATRMultiplier    float64 `json:"stop_atr_multiplier"`
	TargetATRMultiplier  float64 `json:"target_atr_multiplier"`
	MaxConsecutiveLosses int     `json:"max_consecutive_losses"`
}

// TrailingConfig holds the trailing take-profit parameters.
type TrailingConfig struct {
	TrailPercent     float64 `json:"trail_percent"`      // Distance from best price, e.g. 0.01 = 1%
	MinProfitPercent float64 `json:"min_profit_percent"` // Favorable move required before trailing arms
}

// StoreConfig selects and configures the position state store.
type StoreConfig struct {
	Backend   string `json:"backend"` // "file" or "redis"
	StateFile string `json:"state_file"`
	RedisAddr string `json:"redis_addr"`
	RedisDB   int    `json:"redis_db"`
}

// DatabaseConfig holds the optional PostgreSQL trade history settings.
// History and audit rows are written only when Enabled is true.
type DatabaseConfig struct {
	Enabled  bool   `json:"enabled"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
	SSLMode  string `json:"ssl_mode"`
}

// NotificationConfig holds the outbound webhook settings.
type NotificationConfig struct {
	Enabled    bool   `json:"enabled"`
	WebhookURL string `json:"webhook_url"`
}

// ReportConfig holds the cycle artifact output paths. TelemetryFile is
// optional; when empty, trade telemetry is discarded.
type ReportConfig struct {
	OutputDir     string `json:"output_dir"`
	AuditFile     string `json:"audit_file"`
	LessonLogFile string `json:"lesson_log_file"`
	TelemetryFile string `json:"telemetry_file"`
}

// LoggingConfig controls the zerolog setup.
type LoggingConfig struct {
	Level      string `json:"level"`       // debug, info, warn, error
	JSONFormat bool   `json:"json_format"` // JSON output instead of console
}

// DefaultConfig returns the configuration used when no config file exists.
func DefaultConfig() *Config {
	return &Config{
		FeedConfig: FeedConfig{
			BaseURL:        "https://api.binance.com",
			StreamURL:      "wss://stream.binance.com:9443/ws",
			TimeoutSeconds: 10,
		},
		WatchlistConfig: WatchlistConfig{
			Symbols: []string{
				"BTCUSDT", "ETHUSDT", "SOLUSDT", "BNBUSDT", "XRPUSDT",
				"DOGEUSDT", "ADAUSDT", "AVAXUSDT", "LINKUSDT", "DOTUSDT",
			},
		},
		IndicatorConfig: IndicatorConfig{
			EMAFast:         9,
			EMASlow:         21,
			EMAMacro:        50,
			RSIPeriod:       14,
			ATRPeriod:       14,
			BollingerPeriod: 20,
			BollingerStdDev: 2,
			MACDFast:        12,
			MACDSlow:        26,
			MACDSignal:      9,
			CandleLimit:     100,
			RSIOverbought:   70,
			RSIOversold:     30,
		},
		ConfluenceConfig: ConfluenceConfig{
			MinScore: 6,
		},
		PaperConfig: PaperConfig{
			PositionSizeUSD:      1000,
			MaxOpenPositions:     5,
			StopATRMultiplier:    1.5,
			TargetATRMultiplier:  3.0,
			MaxConsecutiveLosses: 3,
		},
		TrailingConfig: TrailingConfig{
			TrailPercent:     0.01,
			MinProfitPercent: 0.005,
		},
		StoreConfig: StoreConfig{
			Backend:   "file",
			StateFile: "matrix-data/paper_positions.json",
			RedisAddr: "localhost:6379",
		},
		DatabaseConfig: DatabaseConfig{
			Port:    5432,
			SSLMode: "disable",
		},
		ReportConfig: ReportConfig{
			OutputDir:     "matrix-data",
			AuditFile:     "matrix-data/rejections.jsonl",
			LessonLogFile: "matrix-data/lessons.md",
		},
		LoggingConfig: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadConfig reads the config file at path, falling back to defaults when the
// file does not exist. Environment variables override file values afterwards.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if data, err := os.ReadFile(path); err == nil {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks for values the rest of the system cannot work with.
func (c *Config) Validate() error {
	if len(c.WatchlistConfig.Symbols) == 0 {
		return fmt.Errorf("watchlist must contain at least one symbol")
	}
	if c.ConfluenceConfig.MinScore < 0 || c.ConfluenceConfig.MinScore > 10 {
		return fmt.Errorf("confluence min_score must be within [0,10], got %.1f", c.ConfluenceConfig.MinScore)
	}
	if c.TrailingConfig.TrailPercent <= 0 {
		return fmt.Errorf("trailing trail_percent must be positive")
	}
	switch c.StoreConfig.Backend {
	case "file", "redis":
	default:
		return fmt.Errorf("unknown store backend %q (want file or redis)", c.StoreConfig.Backend)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("MATRIX_FEED_BASE_URL"); v != "" {
		cfg.FeedConfig.BaseURL = v
	}
	if v := os.Getenv("MATRIX_FEED_MOCK"); v != "" {
		cfg.FeedConfig.MockMode = v == "true" || v == "1"
	}
	if v := os.Getenv("MATRIX_EXEC_COMMAND"); v != "" {
		cfg.FeedConfig.ExecCommand = v
	}
	if v := os.Getenv("MATRIX_STORE_BACKEND"); v != "" {
		cfg.StoreConfig.Backend = v
	}
	if v := os.Getenv("MATRIX_STATE_FILE"); v != "" {
		cfg.StoreConfig.StateFile = v
	}
	if v := os.Getenv("MATRIX_REDIS_ADDR"); v != "" {
		cfg.StoreConfig.RedisAddr = v
	}
	if v := os.Getenv("MATRIX_DB_ENABLED"); v != "" {
		cfg.DatabaseConfig.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("MATRIX_DB_HOST"); v != "" {
		cfg.DatabaseConfig.Host = v
	}
	if v := os.Getenv("MATRIX_DB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.DatabaseConfig.Port = port
		}
	}
	if v := os.Getenv("MATRIX_DB_USER"); v != "" {
		cfg.DatabaseConfig.User = v
	}
	if v := os.Getenv("MATRIX_DB_PASSWORD"); v != "" {
		cfg.DatabaseConfig.Password = v
	}
	if v := os.Getenv("MATRIX_DB_NAME"); v != "" {
		cfg.DatabaseConfig.Database = v
	}
	if v := os.Getenv("MATRIX_WEBHOOK_URL"); v != "" {
		cfg.NotificationConfig.WebhookURL = v
		cfg.NotificationConfig.Enabled = true
	}
	if v := os.Getenv("MATRIX_TELEMETRY_FILE"); v != "" {
		cfg.ReportConfig.TelemetryFile = v
	}
	if v := os.Getenv("MATRIX_LOG_LEVEL"); v != "" {
		cfg.LoggingConfig.Level = v
	}
}
