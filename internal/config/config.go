// Package config loads the bot configuration from an optional YAML file,
// a .env file and environment variables, in increasing priority.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/vitos/crypto_move_tracker/internal/domain"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Exchange  ExchangeConfig  `yaml:"exchange"`
	Detector  DetectorConfig  `yaml:"detector"`
	Monitor   MonitorConfig   `yaml:"monitor"`
	Execution ExecutionConfig `yaml:"execution"`
	Telegram  TelegramConfig  `yaml:"telegram"`
	Storage   StorageConfig   `yaml:"storage"`
	Server    ServerConfig    `yaml:"server"`
	Logging   LoggingConfig   `yaml:"logging"`
}

type ExchangeConfig struct {
	APIKey         string   `yaml:"api_key"`
	APISecret      string   `yaml:"api_secret"`
	Testnet        bool     `yaml:"testnet"`
	WSEndpoint     string   `yaml:"ws_endpoint"`
	QuoteAsset     string   `yaml:"quote_asset"`
	ExcludeSymbols []string `yaml:"exclude_symbols"`
}

// DetectorConfig drives the stream groups and sliding windows.
type DetectorConfig struct {
	ThresholdPct    float64 `yaml:"threshold_pct"`
	WindowSec       int     `yaml:"window_sec"`
	WindowCapacity  int     `yaml:"window_capacity"`
	GroupSize       int     `yaml:"group_size"`
	RecvTimeoutSec  int     `yaml:"recv_timeout_sec"`
	CycleSec        int     `yaml:"cycle_sec"`
	RetryBackoffSec int     `yaml:"retry_backoff_sec"`
}

// MonitorConfig drives the virtual trade sessions. Levels are percents.
type MonitorConfig struct {
	TakeProfitPct  []float64 `yaml:"take_profit_pct"`
	StopLossPct    []float64 `yaml:"stop_loss_pct"`
	SessionSec     int       `yaml:"session_sec"`
	RecvTimeoutSec int       `yaml:"recv_timeout_sec"`
}

// ExecutionConfig drives the real positions.
type ExecutionConfig struct {
	Enabled             bool    `yaml:"enabled"`
	Leverage            int     `yaml:"leverage"`
	Margin              float64 `yaml:"margin"`
	StopLossPct         float64 `yaml:"stop_loss_pct"`
	TakeProfitPct       float64 `yaml:"take_profit_pct"`
	VolumeCeiling       float64 `yaml:"volume_ceiling"`
	MaxHoldingSec       int     `yaml:"max_holding_sec"`
	EnforcerIntervalSec int     `yaml:"enforcer_interval_sec"`
	Workers             int     `yaml:"workers"`
	QueueSize           int     `yaml:"queue_size"`
}

type TelegramConfig struct {
	BotToken string `yaml:"bot_token"`
	ChatID   string `yaml:"chat_id"`
}

type StorageConfig struct {
	DBPath string `yaml:"db_path"`
}

type ServerConfig struct {
	Port int `yaml:"port"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// Default returns the configuration the bot runs with when nothing is set.
func Default() *Config {
	return &Config{
		Exchange: ExchangeConfig{
			QuoteAsset: "USDT",
		},
		Detector: DetectorConfig{
			ThresholdPct:    20,
			WindowSec:       7800,
			WindowCapacity:  16384,
			GroupSize:       50,
			RecvTimeoutSec:  5,
			CycleSec:        6 * 60 * 60,
			RetryBackoffSec: 60,
		},
		Monitor: MonitorConfig{
			TakeProfitPct:  []float64{5, 10, 15, 20},
			StopLossPct:    []float64{4, 5},
			SessionSec:     7800,
			RecvTimeoutSec: 60,
		},
		Execution: ExecutionConfig{
			Leverage:            10,
			Margin:              10,
			StopLossPct:         5,
			TakeProfitPct:       5,
			VolumeCeiling:       100_000_000,
			MaxHoldingSec:       7200,
			EnforcerIntervalSec: 60,
			Workers:             4,
			QueueSize:           64,
		},
		Storage: StorageConfig{DBPath: "bot.db"},
		Server:  ServerConfig{Port: 8000},
		Logging: LoggingConfig{Level: "info"},
	}
}

// Load reads path (skipped when empty or missing), then .env, then the
// process environment.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		f, err := os.Open(path)
		switch {
		case err == nil:
			defer f.Close()
			if err := yaml.NewDecoder(f).Decode(cfg); err != nil {
				return nil, fmt.Errorf("failed to decode %s: %w", path, err)
			}
		case !errors.Is(err, os.ErrNotExist):
			return nil, err
		}
	}

	// Attempt to load .env file (ignore error if not found)
	_ = godotenv.Load()

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	envString("API_KEY", &c.Exchange.APIKey)
	envString("API_SECRET", &c.Exchange.APISecret)
	envString("WS_ENDPOINT", &c.Exchange.WSEndpoint)
	envString("QUOTE_ASSET", &c.Exchange.QuoteAsset)
	envString("BOT_TOKEN", &c.Telegram.BotToken)
	envString("CHANNEL_ID", &c.Telegram.ChatID)
	envString("DB_PATH", &c.Storage.DBPath)
	envString("LOG_LEVEL", &c.Logging.Level)
	envString("LOG_FILE", &c.Logging.File)
	if v := os.Getenv("EXCLUDE_SYMBOLS"); v != "" {
		c.Exchange.ExcludeSymbols = splitList(v)
	}

	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}
	collect(envBool("TESTNET", &c.Exchange.Testnet))
	collect(envBool("EXECUTION_ENABLED", &c.Execution.Enabled))

	collect(envFloat("THRESHOLD", &c.Detector.ThresholdPct))
	collect(envInt("TIME_WINDOW", &c.Detector.WindowSec))
	collect(envInt("WINDOW_CAPACITY", &c.Detector.WindowCapacity))
	collect(envInt("GROUP_SIZE", &c.Detector.GroupSize))
	collect(envInt("GROUP_RECV_TIMEOUT", &c.Detector.RecvTimeoutSec))
	collect(envInt("CYCLE_DURATION", &c.Detector.CycleSec))
	collect(envInt("RETRY_BACKOFF", &c.Detector.RetryBackoffSec))

	collect(envFloatList("TP_LEVELS", &c.Monitor.TakeProfitPct))
	collect(envFloatList("SL_LEVELS", &c.Monitor.StopLossPct))
	collect(envInt("SESSION_DURATION", &c.Monitor.SessionSec))
	collect(envInt("SESSION_RECV_TIMEOUT", &c.Monitor.RecvTimeoutSec))

	collect(envInt("LEVERAGE", &c.Execution.Leverage))
	collect(envFloat("MARGIN", &c.Execution.Margin))
	collect(envFloat("EXEC_SL_PCT", &c.Execution.StopLossPct))
	collect(envFloat("EXEC_TP_PCT", &c.Execution.TakeProfitPct))
	collect(envFloat("VOLUME_CEILING", &c.Execution.VolumeCeiling))
	collect(envInt("MAX_HOLDING", &c.Execution.MaxHoldingSec))
	collect(envInt("ENFORCER_INTERVAL", &c.Execution.EnforcerIntervalSec))
	collect(envInt("EXEC_WORKERS", &c.Execution.Workers))
	collect(envInt("EXEC_QUEUE", &c.Execution.QueueSize))

	collect(envInt("PORT", &c.Server.Port))

	return multierr.Combine(errs...)
}

// Validate checks that every value is usable.
func (c *Config) Validate() error {
	d := c.Detector
	if d.ThresholdPct <= 0 {
		return fmt.Errorf("THRESHOLD must be positive")
	}
	if d.WindowSec <= 0 || d.CycleSec <= 0 || d.RecvTimeoutSec <= 0 || d.RetryBackoffSec < 0 {
		return fmt.Errorf("detector durations must be positive")
	}
	if d.GroupSize < 1 {
		return fmt.Errorf("GROUP_SIZE must be at least 1")
	}
	if d.WindowCapacity < 2 {
		return fmt.Errorf("WINDOW_CAPACITY must be at least 2")
	}

	m := c.Monitor
	if len(m.TakeProfitPct) == 0 {
		return fmt.Errorf("TP_LEVELS must not be empty")
	}
	for i, v := range m.TakeProfitPct {
		if v <= 0 || (i > 0 && v <= m.TakeProfitPct[i-1]) {
			return fmt.Errorf("TP_LEVELS must be positive and strictly ascending")
		}
	}
	if len(m.StopLossPct) != 2 || m.StopLossPct[0] <= 0 || m.StopLossPct[1] <= m.StopLossPct[0] {
		return fmt.Errorf("SL_LEVELS must hold two ascending positive rungs")
	}
	if m.SessionSec <= 0 || m.RecvTimeoutSec <= 0 {
		return fmt.Errorf("monitor durations must be positive")
	}

	e := c.Execution
	if e.Leverage < 1 {
		return fmt.Errorf("LEVERAGE must be at least 1")
	}
	if e.Margin <= 0 || e.StopLossPct <= 0 || e.TakeProfitPct <= 0 || e.VolumeCeiling <= 0 {
		return fmt.Errorf("execution amounts must be positive")
	}
	if e.MaxHoldingSec <= 0 || e.EnforcerIntervalSec <= 0 {
		return fmt.Errorf("execution durations must be positive")
	}
	if e.Workers < 1 || e.QueueSize < 1 {
		return fmt.Errorf("EXEC_WORKERS and EXEC_QUEUE must be at least 1")
	}
	if e.Enabled && (c.Exchange.APIKey == "" || c.Exchange.APISecret == "") {
		return fmt.Errorf("API_KEY and API_SECRET are required when execution is enabled")
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("PORT must be between 1 and 65535")
	}
	return nil
}

// Ladder converts the percent levels into the fractional ladder.
func (c *Config) Ladder() domain.TradeLadder {
	tps := make([]float64, len(c.Monitor.TakeProfitPct))
	for i, v := range c.Monitor.TakeProfitPct {
		tps[i] = v / 100
	}
	return domain.TradeLadder{
		TakeProfits: tps,
		StopLosses:  [2]float64{c.Monitor.StopLossPct[0] / 100, c.Monitor.StopLossPct[1] / 100},
	}
}

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }

func (d DetectorConfig) Window() time.Duration       { return seconds(d.WindowSec) }
func (d DetectorConfig) RecvTimeout() time.Duration  { return seconds(d.RecvTimeoutSec) }
func (d DetectorConfig) Cycle() time.Duration        { return seconds(d.CycleSec) }
func (d DetectorConfig) RetryBackoff() time.Duration { return seconds(d.RetryBackoffSec) }

func (m MonitorConfig) Session() time.Duration     { return seconds(m.SessionSec) }
func (m MonitorConfig) RecvTimeout() time.Duration { return seconds(m.RecvTimeoutSec) }

func (e ExecutionConfig) MaxHolding() time.Duration       { return seconds(e.MaxHoldingSec) }
func (e ExecutionConfig) EnforcerInterval() time.Duration { return seconds(e.EnforcerIntervalSec) }

// MaskedAPIKey returns the API key with most characters hidden for logging.
func (c *Config) MaskedAPIKey() string {
	s := c.Exchange.APIKey
	if len(s) <= 8 {
		if len(s) == 0 {
			return "(not set)"
		}
		return "****"
	}
	return s[:4] + "****" + s[len(s)-4:]
}

func envString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = n
	return nil
}

func envFloat(key string, dst *float64) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = f
	return nil
}

func envBool(key string, dst *bool) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = b
	return nil
}

func envFloatList(key string, dst *[]float64) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	parts := splitList(v)
	out := make([]float64, 0, len(parts))
	for _, p := range parts {
		f, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		out = append(out, f)
	}
	*dst = out
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
