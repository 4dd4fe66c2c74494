package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradecore/internal/adapters/logger"
	"tradecore/internal/backtest"
	"tradecore/internal/domain"
	"tradecore/internal/ports"
	"tradecore/internal/strategy/strategies"
)

var configKeys = []string{
	"BINANCE_API_KEY", "BINANCE_API_SECRET", "BINANCE_BASE_URL", "IS_TESTNET", "RECONNECT_DELAY_SECONDS",
	"SYMBOL", "TIMEFRAME", "DATA_DIR", "BOT_ID", "STRATEGY_ID", "STRATEGY_PARAMS",
	"BACKTEST_INTRABAR_PRIORITY", "BACKTEST_INITIAL_EQUITY", "BACKTEST_FEE_RATE",
	"BACKTEST_SLIPPAGE_MODEL", "BACKTEST_SLIPPAGE_BPS", "RISK_PER_TRADE", "RISK_MAX_LEVERAGE",
	"RISK_MIN_QUANTITY", "RISK_DEFAULT_STOP_PERCENT", "DB_PATH", "LOG_LEVEL", "LOG_FORMAT",
}

// clearEnv blanks every key so the host environment cannot leak into a test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range configKeys {
		t.Setenv(k, "")
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "ETHUSDT", cfg.Symbol)
	assert.Equal(t, domain.TF1h, cfg.Timeframe)
	assert.Equal(t, strategies.MACrossoverID, cfg.StrategyID)
	assert.Equal(t, domain.StopFirst, cfg.ExitPriority)
	assert.Equal(t, 1000.0, cfg.InitialEquity)
	assert.Equal(t, backtest.SlippageNone, cfg.SlippageModel)
	assert.Equal(t, 5*time.Second, cfg.ReconnectDelay)
	assert.Equal(t, logger.LevelInfo, cfg.LogLevel)
	assert.Equal(t, logger.FormatText, cfg.LogFormat)
	assert.Empty(t, cfg.StrategyParams)
}

func TestLoadConfig_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("SYMBOL", "btcusdt")
	t.Setenv("TIMEFRAME", "4h")
	t.Setenv("STRATEGY_PARAMS", "fastPeriod=5, slowPeriod=20,maType=SMA,allowShort=false")
	t.Setenv("BACKTEST_INTRABAR_PRIORITY", "target-first")
	t.Setenv("BACKTEST_INITIAL_EQUITY", "2500")
	t.Setenv("BACKTEST_FEE_RATE", "0.001")
	t.Setenv("BACKTEST_SLIPPAGE_MODEL", "fixed-bps")
	t.Setenv("BACKTEST_SLIPPAGE_BPS", "5")
	t.Setenv("RISK_PER_TRADE", "0.02")
	t.Setenv("LOG_FORMAT", "JSON")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "BTCUSDT", cfg.Symbol)
	assert.Equal(t, domain.TF4h, cfg.Timeframe)
	assert.Equal(t, logger.FormatJSON, cfg.LogFormat)

	engine := cfg.EngineConfig()
	assert.Equal(t, backtest.Config{
		InitialEquity:       2500,
		Fee:                 backtest.FeeConfig{Rate: 0.001},
		Slippage:            backtest.SlippageConfig{Model: backtest.SlippageFixedBps, Bps: 5},
		DefaultExitPriority: domain.TargetFirst,
	}, engine)
	assert.NoError(t, engine.Validate())
	assert.Equal(t, 0.02, cfg.RiskConfig().RiskPerTrade)

	bot := cfg.BotDefinition()
	assert.Equal(t, domain.TargetFirst, bot.IntrabarExitPriority())
	assert.Equal(t, 5, bot.StrategyConfig.Int(strategies.KeyFastPeriod, 0))
	assert.Equal(t, "SMA", bot.StrategyConfig.String(strategies.KeyMAType, ""))
	assert.False(t, bot.StrategyConfig.Bool(strategies.KeyAllowShort, true))
}

func TestLoadConfig_CollectsErrors(t *testing.T) {
	clearEnv(t)
	t.Setenv("TIMEFRAME", "7x")
	t.Setenv("BACKTEST_INITIAL_EQUITY", "-1")
	t.Setenv("BACKTEST_SLIPPAGE_MODEL", "random")
	t.Setenv("RISK_PER_TRADE", "abc")
	t.Setenv("LOG_FORMAT", "xml")

	_, err := LoadConfig()
	require.Error(t, err)
	assert.ErrorIs(t, err, ports.ErrConfigurationError)
	for _, want := range []string{"TIMEFRAME", "BACKTEST_INITIAL_EQUITY", "BACKTEST_SLIPPAGE_MODEL", "RISK_PER_TRADE", "LOG_FORMAT"} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestParseStrategyParams(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    domain.StrategyConfig
		wantErr bool
	}{
		{name: "Empty", input: "", want: domain.StrategyConfig{}},
		{name: "Mixed", input: "a=1.5,b=true,c=EMA", want: domain.StrategyConfig{"a": 1.5, "b": true, "c": "EMA"}},
		{name: "Trailing comma", input: "a=2,", want: domain.StrategyConfig{"a": 2.0}},
		{name: "Missing value separator", input: "a", wantErr: true},
		{name: "Missing key", input: "=3", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseStrategyParams(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
