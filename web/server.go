package web

import (
	"context"
	"net/http"
	"time"

	"ratchet/pkg/engine"
)

// StartWebServer initializes and starts the API server in a new goroutine and
// shuts it down gracefully when ctx is cancelled.
func StartWebServer(ctx context.Context, controller AppController) {
	addr := controller.GetConfig().Web.ListenAddr
	if addr == "" {
		addr = ":8080"
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", statusHandler(controller))
	mux.HandleFunc("/api/start", opHandler(controller, (*engine.Engine).Start))
	mux.HandleFunc("/api/stop", opHandler(controller, (*engine.Engine).Stop))
	mux.HandleFunc("/api/reset-position", opHandler(controller, (*engine.Engine).ResetPosition))
	mux.HandleFunc("/api/reset-pnl", opHandler(controller, (*engine.Engine).ResetPnl))
	mux.HandleFunc("/api/buy", buyHandler(controller))
	mux.HandleFunc("/api/sell", sellHandler(controller))
	mux.HandleFunc("/api/settings", settingsHandler(controller))
	mux.HandleFunc("/api/backtest", backtestHandler(controller))
	mux.HandleFunc("/api/register-chat", registerChatHandler(controller))
	mux.HandleFunc("/api/disconnect", disconnectHandler(controller))

	server := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		controller.Logger().LogInfo("Starting API server on %s", addr)
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			controller.Logger().LogFatal("API server failed: %v", err)
		}
	}()

	go func() {
		<-ctx.Done()
		controller.Logger().LogInfo("Shutting down API server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			controller.Logger().LogError("API server graceful shutdown failed: %v", err)
		}
	}()
}
