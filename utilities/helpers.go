package utilities

import (
	"encoding/json"
	"fmt"
	"log"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"
)

// NormalizeTimeframe validates a candle interval string and resolves common
// aliases to the exchange's canonical form.
func NormalizeTimeframe(tf string) (string, error) {
	aliases := map[string]string{
		"1min":  "1m",
		"5min":  "5m",
		"15min": "15m",
		"30min": "30m",
		"60m":   "1h",
		"1hour": "1h",
		"4hour": "4h",
		"1day":  "1d",
	}
	canonical := map[string]bool{
		"1m": true, "3m": true, "5m": true, "15m": true, "30m": true,
		"1h": true, "2h": true, "4h": true, "6h": true, "12h": true,
		"1d": true, "1w": true,
	}

	lower := strings.ToLower(tf)
	if mapped, ok := aliases[lower]; ok {
		return mapped, nil
	}
	if canonical[lower] {
		return lower, nil
	}
	return "", fmt.Errorf("unsupported candle timeframe: %s", tf)
}

// FormatQty renders a quantity with the given number of decimal places,
// trimming trailing zeros, for use in exchange order parameters.
func FormatQty(qty float64, precision int) string {
	if precision < 0 {
		precision = 8
	}
	s := strconv.FormatFloat(qty, 'f', precision, 64)
	if strings.Contains(s, ".") {
		s = strings.TrimRight(s, "0")
		s = strings.TrimRight(s, ".")
	}
	return s
}

// FloorToStep rounds qty down at the decimal precision implied by step. A
// small epsilon absorbs float drift so exact multiples survive untouched.
func FloorToStep(qty, step float64) float64 {
	if step <= 0 {
		return qty
	}
	precision := StepPrecision(step)
	scale := math.Pow(10, float64(precision))
	return math.Floor(qty*scale+1e-9) / scale
}

// StepPrecision derives the number of decimal places implied by a lot step
// size, e.g. 0.001 -> 3.
func StepPrecision(step float64) int {
	if step <= 0 {
		return 8
	}
	p := int(math.Round(-math.Log10(step)))
	if p < 0 {
		p = 0
	}
	return p
}

// LogDebug logs a message at Debug level.
func (l *Logger) LogDebug(format string, v ...interface{}) {
	if l.Level <= Debug {
		_ = l.Logger.Output(2, fmt.Sprintf("[DEBUG] "+format, v...))
	}
}

// LogError logs a message at Error level.
func (l *Logger) LogError(format string, v ...interface{}) {
	if l.Level <= Error {
		_ = l.Logger.Output(2, fmt.Sprintf("[ERROR] "+format, v...))
	}
}

// LogFatal logs a message at Fatal level and then calls os.Exit(1).
func (l *Logger) LogFatal(format string, v ...interface{}) {
	_ = l.Logger.Output(2, fmt.Sprintf("[FATAL] "+format, v...))
	os.Exit(1)
}

// LogInfo logs a message at Info level.
func (l *Logger) LogInfo(format string, v ...interface{}) {
	if l.Level <= Info {
		_ = l.Logger.Output(2, fmt.Sprintf("[INFO] "+format, v...))
	}
}

// LogWarn logs a message at Warn level.
func (l *Logger) LogWarn(format string, v ...interface{}) {
	if l.Level <= Warn {
		_ = l.Logger.Output(2, fmt.Sprintf("[WARN] "+format, v...))
	}
}

// MinInt returns the minimum of two integers.
func MinInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// NewLogger creates a new Logger instance.
func NewLogger(level LogLevel) *Logger {
	return &Logger{
		Level:  level,
		Logger: log.New(os.Stdout, "[ratchet] ", log.Ldate|log.Ltime|log.Lshortfile),
	}
}

// ParseFloatFromInterface is a helper function to parse float64 from various numeric types.
func ParseFloatFromInterface(val interface{}) (float64, error) {
	switch v := val.(type) {
	case string:
		return strconv.ParseFloat(v, 64)
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case int32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case json.Number:
		return v.Float64()
	default:
		return 0, fmt.Errorf("unsupported type for float conversion: %T", v)
	}
}

// ParseLogLevel converts a string log level to the LogLevel type.
func ParseLogLevel(levelStr string) (LogLevel, error) {
	switch strings.ToLower(levelStr) {
	case "debug":
		return Debug, nil
	case "info":
		return Info, nil
	case "warn":
		return Warn, nil
	case "error":
		return Error, nil
	case "fatal":
		return Fatal, nil
	default:
		return Info, fmt.Errorf("invalid log level string: %s", levelStr)
	}
}

// SetLogLevel updates the logging level of the logger.
func (l *Logger) SetLogLevel(level LogLevel) {
	l.Level = level
}

// SortBarsByTimestamp sorts a slice of OHLCVBar by ascending Timestamp.
func SortBarsByTimestamp(bars []OHLCVBar) {
	sort.Slice(bars, func(i, j int) bool {
		return bars[i].Timestamp < bars[j].Timestamp
	})
}
