// File: notification/telegram/tclient.go
package telegram

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/Bardaqus/signalsbot-sub001/utilities"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Client posts messages to Telegram chats and channels through the Bot API.
// Signals and summaries are sent as plain text with link previews disabled.
type Client struct {
	bot    *tgbotapi.BotAPI
	logger *utilities.Logger

	mu       sync.Mutex
	disabled bool
}

// NewClient verifies the bot token against the Bot API (getMe) and returns a
// ready-to-send client. An unreachable or rejected token is a hard error so
// the pre-flight check can fail before any channel work starts.
func NewClient(cfg *utilities.TelegramConfig, logger *utilities.Logger) (*Client, error) {
	if cfg == nil {
		return nil, errors.New("telegram NewClient: config is nil")
	}
	if logger == nil {
		logger = utilities.NewLogger(utilities.Info)
		logger.LogWarn("Telegram NewClient: logger was nil, using default Info logger.")
	}
	if strings.TrimSpace(cfg.BotToken) == "" {
		return nil, errors.New("telegram NewClient: bot token is required")
	}

	var bot *tgbotapi.BotAPI
	var err error
	if cfg.APIEndpoint != "" {
		bot, err = tgbotapi.NewBotAPIWithAPIEndpoint(cfg.BotToken, cfg.APIEndpoint)
	} else {
		bot, err = tgbotapi.NewBotAPI(cfg.BotToken)
	}
	if err != nil {
		return nil, fmt.Errorf("telegram NewClient: token verification (getMe) failed: %w", err)
	}

	logger.LogInfo("Telegram Client: authorized as @%s", bot.Self.UserName)
	return &Client{bot: bot, logger: logger}, nil
}

// BotUsername returns the username the token authenticated as.
func (c *Client) BotUsername() string {
	return c.bot.Self.UserName
}

// SendMessage posts a plain-text message to the given chat or channel ID.
// An empty message is skipped without error. After the API reports the token
// invalid, all further sends fail fast for the rest of the session.
func (c *Client) SendMessage(chatID int64, text string) error {
	if strings.TrimSpace(text) == "" {
		c.logger.LogDebug("Telegram SendMessage: message is empty, skipping.")
		return nil
	}

	c.mu.Lock()
	dead := c.disabled
	c.mu.Unlock()
	if dead {
		return fmt.Errorf("telegram SendMessage: sending disabled after invalid-token response")
	}

	msg := tgbotapi.NewMessage(chatID, text)
	msg.DisableWebPagePreview = true

	c.logger.LogDebug("Telegram SendMessage: chat_id=%d, text_length=%d", chatID, len(text))
	if _, err := c.bot.Send(msg); err != nil {
		var apiErr *tgbotapi.Error
		if errors.As(err, &apiErr) && apiErr.Code == http.StatusUnauthorized {
			c.mu.Lock()
			c.disabled = true
			c.mu.Unlock()
			c.logger.LogError("Telegram SendMessage: bot token rejected (401), disabling sends for this session.")
		}
		return fmt.Errorf("telegram send to chat %d failed: %w", chatID, err)
	}
	return nil
}

// SendSignal posts a formatted signal message to a channel.
func (c *Client) SendSignal(chatID int64, text string) error {
	return c.SendMessage(chatID, text)
}

// SendSummary posts a daily summary message.
func (c *Client) SendSummary(chatID int64, text string) error {
	return c.SendMessage(chatID, text)
}
