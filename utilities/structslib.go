package utilities

import (
	"log"

	"golang.org/x/time/rate"
)

// --- Global Logger ---
var globalLogger = NewLogger(Info) // Default to Info

// Colors.
const (
	ColorCyan   = "\033[96m" // For Buy signals
	ColorRed    = "\033[91m" // For Sell signals
	ColorReset  = "\033[0m"
	ColorWhite  = "\033[97m" // For Hold signals
	ColorYellow = "\033[93m" // For asset pairs
)

// Logging Level
const (
	Debug LogLevel = iota
	Info
	Warn
	Error
	Fatal
)

// --- Types (Alphabetized) ---

// AppConfig is the root configuration structure, holding all other config sections.
type AppConfig struct {
	AppName     string           `mapstructure:"app_name"`
	Binance     BinanceConfig    `mapstructure:"binance"`
	DB          DatabaseConfig   `mapstructure:"database"`
	Environment string           `mapstructure:"environment"`
	Indicators  IndicatorsConfig `mapstructure:"indicators"`
	Logging     LoggingConfig    `mapstructure:"logging"`
	Telegram    TelegramConfig   `mapstructure:"telegram"`
	Trading     TradingConfig    `mapstructure:"trading"`
	Version     string           `mapstructure:"version"`
	Web         WebConfig        `mapstructure:"web"`
}

// BinanceConfig holds all settings for the Binance exchange integration.
type BinanceConfig struct {
	APIKey               string     `mapstructure:"api_key"`
	APISecret            string     `mapstructure:"api_secret"`
	MaxRetries           int        `mapstructure:"max_retries"`
	RateLimitBurst       int        `mapstructure:"rate_limit_burst"`
	RateLimitPerSec      rate.Limit `mapstructure:"rate_limit_per_sec"`
	RequestTimeoutSec    int        `mapstructure:"request_timeout_sec"`
	RetryDelaySec        int        `mapstructure:"retry_delay_sec"`
	RulesCacheTTLMinutes int        `mapstructure:"rules_cache_ttl_minutes"`
	Testnet              bool       `mapstructure:"testnet"`
}

// DatabaseConfig holds settings for database connections.
type DatabaseConfig struct {
	DBPath               string `mapstructure:"database_path"`
	TradeRetentionDays   int    `mapstructure:"trade_retention_days"`
	CleanupIntervalHours int    `mapstructure:"cleanup_interval_hours"`
}

// IndicatorsConfig holds parameters for various technical indicators.
type IndicatorsConfig struct {
	ADXPeriod           int     `mapstructure:"adx_period"`
	ATRPeriod           int     `mapstructure:"atr_period"`
	BollingerPeriod     int     `mapstructure:"bollinger_period"`
	BollingerStdDev     float64 `mapstructure:"bollinger_std_dev"`
	FastEMAPeriod       int     `mapstructure:"fast_ema_period"`
	LateralADXThreshold float64 `mapstructure:"lateral_adx_threshold"`
	MACDFastPeriod      int     `mapstructure:"macd_fast_period"`
	MACDSignalPeriod    int     `mapstructure:"macd_signal_period"`
	MACDSlowPeriod      int     `mapstructure:"macd_slow_period"`
	RSIPeriod           int     `mapstructure:"rsi_period"`
	TrendEMAPeriod      int     `mapstructure:"trend_ema_period"`
	VolumeSMAPeriod     int     `mapstructure:"volume_sma_period"`
}

// Logger provides a structured logger with different levels.
type Logger struct {
	Level  LogLevel
	Logger *log.Logger
}

// LoggingConfig holds settings related to logging.
type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

// LogLevel defines the severity of a log message.
type LogLevel int

// OHLCVBar represents a single Open, High, Low, Close, Volume data point.
type OHLCVBar struct {
	Close     float64 `json:"close"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Open      float64 `json:"open"`
	Timestamp int64   `json:"timestamp"`
	Volume    float64 `json:"volume"`
}

// TelegramConfig holds settings for sending notifications via Telegram.
type TelegramConfig struct {
	BotToken      string `mapstructure:"bot_token"`
	DefaultChatID int64  `mapstructure:"default_chat_id"`
}

// TradingConfig holds the default trading parameters applied to new user sessions.
type TradingConfig struct {
	ATRMultiplier        float64 `mapstructure:"atr_multiplier"`
	ATRTakeProfitEnabled bool    `mapstructure:"atr_take_profit_enabled"`
	BuyRSI               float64 `mapstructure:"buy_rsi"`
	DcaStepPct           float64 `mapstructure:"dca_step_pct"`
	DustThreshold        float64 `mapstructure:"dust_threshold"`
	ExclusionAsset       string  `mapstructure:"exclusion_asset"`
	ExclusionFilter      bool    `mapstructure:"exclusion_filter"`
	MaxPositionOrders    int     `mapstructure:"max_position_orders"`
	QuoteCurrency        string  `mapstructure:"quote_currency"`
	SellRSI              float64 `mapstructure:"sell_rsi"`
	SniperMode           bool    `mapstructure:"sniper_mode"`
	StopLossPct          float64 `mapstructure:"stop_loss_pct"`
	Strategy             string  `mapstructure:"strategy"`
	Symbol               string  `mapstructure:"symbol"`
	TakeProfitPct        float64 `mapstructure:"take_profit_pct"`
	TestnetCommissionPct float64 `mapstructure:"testnet_commission_pct"`
	Timeframe            string  `mapstructure:"timeframe"`
	TradeQty             float64 `mapstructure:"trade_qty"`
	TrailingStopEnabled  bool    `mapstructure:"trailing_stop_enabled"`
	TrailingStopPct      float64 `mapstructure:"trailing_stop_pct"`
}

// WebConfig holds settings for the HTTP front-end.
type WebConfig struct {
	ListenAddr string `mapstructure:"listen_addr"`
}
