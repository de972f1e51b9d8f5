package web

import (
	"ratchet/notification/telegram"
	"ratchet/pkg/engine"
	"ratchet/utilities"
)

// AppController defines the interface the web package needs to reach the
// application's engines and notifier.
type AppController interface {
	Engines() *engine.Registry
	Notifications() *telegram.Client
	GetConfig() utilities.AppConfig
	Logger() *utilities.Logger
}
