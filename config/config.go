package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"tradecore/internal/adapters/logger"
	"tradecore/internal/backtest"
	"tradecore/internal/domain"
	"tradecore/internal/ports"
	"tradecore/internal/risk"
	"tradecore/internal/strategy/strategies"
)

// Config holds all application configuration.
type Config struct {
	// Binance API (only needed for downloading candles)
	APIKey         string
	SecretKey      string
	IsTestnet      bool
	APIBaseURL     string        // Overrides the production/testnet endpoint
	ReconnectDelay time.Duration // Initial retry delay for rate-limited requests

	// Market
	Symbol    string
	Timeframe domain.Timeframe
	DataDir   string // CSV candle files, <SYMBOL>_<TF>.csv

	// Bot
	BotID          string
	StrategyID     string
	StrategyParams domain.StrategyConfig // From STRATEGY_PARAMS, e.g. "fastPeriod=9,slowPeriod=21"
	ExitPriority   domain.ExitPriority

	// Backtest execution assumptions
	InitialEquity float64
	FeeRate       float64
	SlippageModel backtest.SlippageModel
	SlippageBps   float64

	// Sizing
	RiskPerTrade       float64
	MaxLeverage        float64
	MinQuantity        float64
	DefaultStopPercent float64

	// Database
	DBPath string

	// Logging
	LogLevel  logger.LogLevel
	LogFormat string // text or json
}

// LoadConfig loads configuration from environment variables (.env file).
func LoadConfig() (*Config, error) {
	// Load .env file, but don't fail if it doesn't exist (allow pure env vars)
	_ = godotenv.Load()

	cfg := &Config{}
	var err error
	var errs []string // Collect validation errors

	// Binance API
	cfg.APIKey = getEnv("BINANCE_API_KEY", "")
	cfg.SecretKey = getEnv("BINANCE_API_SECRET", "")
	cfg.IsTestnet = getEnvAsBool("IS_TESTNET", false)
	cfg.APIBaseURL = getEnv("BINANCE_BASE_URL", "")

	reconnectDelaySeconds := getEnvAsInt("RECONNECT_DELAY_SECONDS", 5)
	if reconnectDelaySeconds <= 0 {
		errs = append(errs, "RECONNECT_DELAY_SECONDS must be positive")
	}
	cfg.ReconnectDelay = time.Duration(reconnectDelaySeconds) * time.Second

	// Market
	cfg.Symbol = strings.ToUpper(getEnv("SYMBOL", "ETHUSDT"))
	tf, ok := domain.ParseTimeframe(getEnv("TIMEFRAME", "1h"))
	if !ok {
		errs = append(errs, fmt.Sprintf("invalid TIMEFRAME: %q", os.Getenv("TIMEFRAME")))
	}
	cfg.Timeframe = tf
	cfg.DataDir = getEnv("DATA_DIR", "./data/candles")

	// Bot
	cfg.BotID = getEnv("BOT_ID", "backtest")
	cfg.StrategyID = getEnv("STRATEGY_ID", strategies.MACrossoverID)
	cfg.StrategyParams, err = ParseStrategyParams(getEnv("STRATEGY_PARAMS", ""))
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid STRATEGY_PARAMS: %v", err))
	}

	switch p := domain.ExitPriority(getEnv("BACKTEST_INTRABAR_PRIORITY", string(domain.StopFirst))); p {
	case domain.StopFirst, domain.TargetFirst:
		cfg.ExitPriority = p
	default:
		errs = append(errs, "BACKTEST_INTRABAR_PRIORITY must be stop-first or target-first")
	}

	// Backtest
	cfg.InitialEquity, err = getEnvAsFloatRequired("BACKTEST_INITIAL_EQUITY", 1000)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid BACKTEST_INITIAL_EQUITY: %v", err))
	} else if cfg.InitialEquity <= 0 {
		errs = append(errs, "BACKTEST_INITIAL_EQUITY must be positive")
	}

	cfg.FeeRate, err = getEnvAsFloatRequired("BACKTEST_FEE_RATE", 0.0004)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid BACKTEST_FEE_RATE: %v", err))
	} else if cfg.FeeRate < 0 {
		errs = append(errs, "BACKTEST_FEE_RATE cannot be negative")
	}

	cfg.SlippageModel, err = backtest.ParseSlippageModel(getEnv("BACKTEST_SLIPPAGE_MODEL", string(backtest.SlippageNone)))
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid BACKTEST_SLIPPAGE_MODEL: %v", err))
	}

	cfg.SlippageBps, err = getEnvAsFloatRequired("BACKTEST_SLIPPAGE_BPS", 0)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid BACKTEST_SLIPPAGE_BPS: %v", err))
	} else if cfg.SlippageBps < 0 {
		errs = append(errs, "BACKTEST_SLIPPAGE_BPS cannot be negative")
	}

	// Sizing
	cfg.RiskPerTrade, err = getEnvAsFloatRequired("RISK_PER_TRADE", 0.01)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid RISK_PER_TRADE: %v", err))
	} else if cfg.RiskPerTrade <= 0 || cfg.RiskPerTrade > 1 {
		errs = append(errs, "RISK_PER_TRADE must be between 0.0 (exclusive) and 1.0")
	}

	cfg.MaxLeverage, err = getEnvAsFloatRequired("RISK_MAX_LEVERAGE", 3)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid RISK_MAX_LEVERAGE: %v", err))
	} else if cfg.MaxLeverage < 0 {
		errs = append(errs, "RISK_MAX_LEVERAGE cannot be negative")
	}

	cfg.MinQuantity, err = getEnvAsFloatRequired("RISK_MIN_QUANTITY", 0)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid RISK_MIN_QUANTITY: %v", err))
	} else if cfg.MinQuantity < 0 {
		errs = append(errs, "RISK_MIN_QUANTITY cannot be negative")
	}

	cfg.DefaultStopPercent, err = getEnvAsFloatRequired("RISK_DEFAULT_STOP_PERCENT", 0)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid RISK_DEFAULT_STOP_PERCENT: %v", err))
	} else if cfg.DefaultStopPercent < 0 || cfg.DefaultStopPercent >= 1 {
		errs = append(errs, "RISK_DEFAULT_STOP_PERCENT must be between 0.0 and 1.0 (exclusive)")
	}

	// Database
	cfg.DBPath = getEnv("DB_PATH", "./data/tradecore.db")

	// Logging
	cfg.LogLevel = logger.ParseLevel(getEnv("LOG_LEVEL", "INFO"))
	cfg.LogFormat = strings.ToLower(getEnv("LOG_FORMAT", logger.FormatText))
	if cfg.LogFormat != logger.FormatText && cfg.LogFormat != logger.FormatJSON {
		errs = append(errs, "LOG_FORMAT must be text or json")
	}

	// Combine validation errors
	if len(errs) > 0 {
		return nil, fmt.Errorf("%w: configuration validation failed: %s", ports.ErrConfigurationError, strings.Join(errs, "; "))
	}

	return cfg, nil
}

// EngineConfig returns the execution assumptions passed to the backtest engine.
func (c *Config) EngineConfig() backtest.Config {
	return backtest.Config{
		InitialEquity:       c.InitialEquity,
		Fee:                 backtest.FeeConfig{Rate: c.FeeRate},
		Slippage:            backtest.SlippageConfig{Model: c.SlippageModel, Bps: c.SlippageBps},
		DefaultExitPriority: c.ExitPriority,
	}
}

// RiskConfig returns the sizing parameters for risk.NewRiskSizer.
func (c *Config) RiskConfig() risk.RiskConfig {
	return risk.RiskConfig{
		RiskPerTrade:       c.RiskPerTrade,
		MaxLeverage:        c.MaxLeverage,
		MinQuantity:        c.MinQuantity,
		DefaultStopPercent: c.DefaultStopPercent,
	}
}

// BotDefinition describes the configured bot.
func (c *Config) BotDefinition() domain.BotDefinition {
	return domain.BotDefinition{
		ID:                 c.BotID,
		Name:               c.BotID,
		Symbol:             c.Symbol,
		StrategyID:         c.StrategyID,
		ExecutionTimeframe: c.Timeframe,
		StrategyConfig:     c.StrategyParams.Clone(nil),
		Metadata:           map[string]string{domain.MetaIntrabarExitPriority: string(c.ExitPriority)},
	}
}

// ParseStrategyParams parses comma separated key=value pairs. Numeric and boolean values are
// converted; everything else is kept as a string.
func ParseStrategyParams(s string) (domain.StrategyConfig, error) {
	params := domain.StrategyConfig{}
	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		key, value, ok := strings.Cut(pair, "=")
		key, value = strings.TrimSpace(key), strings.TrimSpace(value)
		if !ok || key == "" {
			return nil, fmt.Errorf("malformed pair %q", pair)
		}
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			params[key] = f
		} else if b, err := strconv.ParseBool(value); err == nil {
			params[key] = b
		} else {
			params[key] = value
		}
	}
	return params, nil
}

// --- Env Var Helpers ---

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloatRequired(key string, defaultValue float64) (float64, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid float value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
