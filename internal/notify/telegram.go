package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"stockwatch/internal/retry"

	"go.uber.org/zap"
)

// TelegramConfig represents Telegram notifier configuration
type TelegramConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	BotToken string        `mapstructure:"bot_token"`
	Retry    *retry.Config `mapstructure:"retry"`
}

// TelegramNotifier sends messages through the Telegram bot API
type TelegramNotifier struct {
	config *TelegramConfig
	logger *zap.Logger
	client *http.Client
}

// telegramMessage represents a Telegram sendMessage payload
type telegramMessage struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

// NewTelegramNotifier creates new Telegram notifier
func NewTelegramNotifier(cfg *TelegramConfig, logger *zap.Logger) (*TelegramNotifier, error) {
	if !cfg.Enabled {
		return nil, fmt.Errorf("telegram notifier is disabled")
	}
	if cfg.BotToken == "" {
		return nil, fmt.Errorf("telegram bot token is required")
	}

	client := &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        10,
			IdleConnTimeout:     30 * time.Second,
			MaxIdleConnsPerHost: 5,
		},
	}

	return &TelegramNotifier{
		config: cfg,
		logger: logger,
		client: client,
	}, nil
}

// Send delivers one markdown message to a chat. Transient failures are
// retried per the notifier's retry config; a rejected chat id fails
// immediately with ErrInvalidChat.
func (n *TelegramNotifier) Send(ctx context.Context, chatID, text string) error {
	payload, err := json.Marshal(telegramMessage{
		ChatID:    chatID,
		Text:      text,
		ParseMode: "Markdown",
	})
	if err != nil {
		return fmt.Errorf("marshal telegram message: %w", err)
	}

	url := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", n.config.BotToken)

	// A rejected chat id is permanent; surface it without burning retries
	var permanent error

	err = retry.Execute(ctx, n.config.Retry, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := n.client.Do(req)
		if err != nil {
			return fmt.Errorf("telegram request: %w", err)
		}
		defer func() {
			_, _ = io.Copy(io.Discard, resp.Body)
			_ = resp.Body.Close()
		}()

		switch {
		case resp.StatusCode == http.StatusOK:
			return nil
		case resp.StatusCode == http.StatusBadRequest:
			permanent = fmt.Errorf("%w: %s", ErrInvalidChat, chatID)
			return nil
		default:
			return fmt.Errorf("telegram returned status %d", resp.StatusCode)
		}
	})
	if err != nil {
		return err
	}
	return permanent
}
