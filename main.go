// main.go
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/viper"

	"ratchet/pkg/app"
	"ratchet/utilities"
)

const banner = `
                 __         .__            __
  ____________ _/  |_  ____ |  |__   _____/  |_
  \_  __ \__  \\   __\/ ___\|  |  \_/ __ \   __\
   |  | \// __ \|  | \  \___|   Y  \  ___/|  |
   |__|  (____  /__|  \___  >___|  /\___  >__|
              \/          \/     \/     \/
        One-way position ratchet for Binance spot
[]=========================================================[]
`

// LoadConfig loads AppConfig from a JSON file using viper and creates the
// Logger instance.
func LoadConfig(path string) (utilities.AppConfig, *utilities.Logger, error) {
	viper.SetConfigFile(path)
	viper.SetConfigType("json")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		return utilities.AppConfig{}, nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config utilities.AppConfig
	if err := viper.Unmarshal(&config); err != nil {
		return utilities.AppConfig{}, nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	logLevel, err := utilities.ParseLogLevel(config.Logging.Level)
	if err != nil {
		return utilities.AppConfig{}, nil, fmt.Errorf("invalid log level in config: %w", err)
	}

	logger := utilities.NewLogger(logLevel)

	return config, logger, nil
}

func main() {
	fmt.Print(banner, "\n")

	configPath := "config/config.json"

	cfg, logger, err := LoadConfig(configPath)
	if err != nil {
		fmt.Printf("Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.LogWarn("Received signal: %v, initiating graceful shutdown.", sig)
		cancel()
	}()

	if err := app.Run(ctx, &cfg, logger); err != nil {
		logger.LogError("Application terminated with error: %v", err)
		os.Exit(1)
	}

	logger.LogInfo("ratchet shutdown complete at %s", time.Now().Format(time.RFC1123))
}
