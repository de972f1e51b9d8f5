// File: notification/telegram/tclient.go
package telegram

import (
	"strconv"
	"sync"

	"ratchet/utilities"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Client sends trade alerts through a Telegram bot. Delivery is best-effort
// and never blocks the caller: sends happen on a goroutine and failures are
// logged, not returned.
type Client struct {
	bot           *tgbotapi.BotAPI
	logger        *utilities.Logger
	defaultChatID int64

	mu    sync.RWMutex
	chats map[string]int64
}

// NewClient builds a client from the bot token. An empty token yields a
// disabled client so callers never need a nil check.
func NewClient(botToken string, defaultChatID int64, logger *utilities.Logger) *Client {
	c := &Client{
		logger:        logger,
		defaultChatID: defaultChatID,
		chats:         make(map[string]int64),
	}

	if botToken == "" {
		logger.LogWarn("Telegram Client: bot token is empty, notifications will not be sent.")
		return c
	}

	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		logger.LogWarn("Telegram Client: initialization failed, notifications disabled: %v", err)
		return c
	}
	c.bot = bot
	logger.LogInfo("Telegram Client initialized as @%s.", bot.Self.UserName)
	return c
}

// RegisterChat binds a user id to the Telegram chat that should receive that
// user's alerts. Users without a binding fall back to the default chat.
func (c *Client) RegisterChat(userID string, chatID int64) {
	c.mu.Lock()
	c.chats[userID] = chatID
	c.mu.Unlock()
}

func (c *Client) chatFor(userID string) int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if id, ok := c.chats[userID]; ok {
		return id
	}
	return c.defaultChatID
}

// Notify sends message to the user's chat. Satisfies the engine's Notifier
// contract: non-blocking, errors swallowed after logging.
func (c *Client) Notify(userID, message string) {
	if c.bot == nil || message == "" {
		return
	}
	chatID := c.chatFor(userID)
	if chatID == 0 {
		c.logger.LogDebug("Telegram Notify: no chat bound for user %s, skipping.", userID)
		return
	}

	go func() {
		msg := tgbotapi.NewMessage(chatID, message)
		if _, err := c.bot.Send(msg); err != nil {
			c.logger.LogWarn("Telegram Notify: send to chat %s failed: %v", strconv.FormatInt(chatID, 10), err)
		}
	}()
}
