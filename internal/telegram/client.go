package telegram

import (
	"context"
	"fmt"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Client sends plain text messages through the Bot API.
type Client struct {
	bot *tgbotapi.BotAPI
}

// NewClient authorizes the bot. Every HTTP call made by the client is capped
// by timeout, so a stalled API cannot hold a sender forever.
func NewClient(token string, timeout time.Duration) (*Client, error) {
	bot, err := tgbotapi.NewBotAPIWithClient(token, tgbotapi.APIEndpoint, &http.Client{Timeout: timeout})
	if err != nil {
		return nil, fmt.Errorf("telegram authorize: %w", err)
	}
	return &Client{bot: bot}, nil
}

// Username of the authorized bot, used to build deep links.
func (c *Client) Username() string {
	return c.bot.Self.UserName
}

func (c *Client) SendMessage(ctx context.Context, chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)

	errCh := make(chan error, 1)
	go func() {
		_, err := c.bot.Send(msg)
		errCh <- err
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("telegram send to %d: %w", chatID, err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("telegram send to %d: %w", chatID, ctx.Err())
	}
}
