package bot

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"

	"task_tracker/internal/logger"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	msgStart = "Hi! To link your account open the link from the web app " +
		"or send /start <token> with the token shown there."
	msgBadFormat   = "❌ Invalid token format."
	msgLinked      = "✅ Your Telegram account is now linked!"
	msgBadToken    = "❌ The token is invalid or has expired."
	msgSlowDown    = "⏳ Too many attempts. Try again in a few seconds."
	msgTaken       = "❌ This Telegram account is already linked to another user."
	msgFailed      = "❌ Could not link the account. Please try again later."
	msgServerError = "❌ The server returned an error. Contact the administrator."
	msgTimeout     = "⏰ The request timed out. Try again later."
	msgUnreachable = "⚠️ Could not reach the server."
)

var codePattern = regexp.MustCompile(`^[A-Za-z0-9_.-]{8,128}$`)

// LinkBot answers /start deep links by forwarding the token to the confirm endpoint.
type LinkBot struct {
	bot        *tgbotapi.BotAPI
	confirmURL string
	httpClient *http.Client
	stopCh     chan struct{}
	stopOnce   sync.Once
	wg         sync.WaitGroup
	log        *slog.Logger
}

// NewLinkBot authorizes against the Bot API.
func NewLinkBot(token, confirmURL string, requestTimeout time.Duration) (*LinkBot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}

	b := newLinkBot(confirmURL, requestTimeout)
	b.bot = api
	b.log.Info("link bot authorized", "username", api.Self.UserName)
	return b, nil
}

func newLinkBot(confirmURL string, requestTimeout time.Duration) *LinkBot {
	return &LinkBot{
		confirmURL: confirmURL,
		httpClient: &http.Client{Timeout: requestTimeout},
		stopCh:     make(chan struct{}),
		log:        logger.With("component", "link_bot"),
	}
}

// Start listens for updates until Stop is called.
func (b *LinkBot) Start() {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.bot.GetUpdatesChan(u)
	b.log.Info("starting bot update loop")

	for {
		select {
		case <-b.stopCh:
			b.log.Info("stopping bot update loop")
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			if update.Message == nil || update.Message.From == nil {
				continue
			}
			if !update.Message.IsCommand() || update.Message.Command() != "start" {
				continue
			}

			b.wg.Add(1)
			go func(msg *tgbotapi.Message) {
				defer b.wg.Done()
				b.handleStart(msg)
			}(update.Message)
		}
	}
}

// Stop gracefully stops the bot
func (b *LinkBot) Stop() {
	b.stopOnce.Do(func() {
		b.log.Info("stopping link bot...")
		close(b.stopCh)
		if b.bot != nil {
			b.bot.StopReceivingUpdates()
		}
	})

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		b.log.Info("link bot stopped gracefully")
	case <-time.After(10 * time.Second):
		b.log.Warn("link bot shutdown timeout, some handlers may not have completed")
	}
}

func (b *LinkBot) handleStart(msg *tgbotapi.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	response := msgStart
	if code := strings.TrimSpace(msg.CommandArguments()); code != "" {
		response = b.confirm(ctx, code, msg.From.ID)
	}

	reply := tgbotapi.NewMessage(msg.Chat.ID, response)
	reply.ReplyToMessageID = msg.MessageID
	if _, err := b.bot.Send(reply); err != nil {
		b.log.Error("error sending message", "error", err)
	}
}

type confirmRequest struct {
	Code       string `json:"code"`
	TelegramID int64  `json:"telegram_id"`
}

// confirm posts the code to the API and turns the outcome into a reply.
func (b *LinkBot) confirm(ctx context.Context, code string, telegramID int64) string {
	if !codePattern.MatchString(code) {
		return msgBadFormat
	}

	body, err := json.Marshal(confirmRequest{Code: code, TelegramID: telegramID})
	if err != nil {
		return msgFailed
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.confirmURL, bytes.NewReader(body))
	if err != nil {
		b.log.Error("build confirm request", "error", err)
		return msgFailed
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			b.log.Warn("confirm request timed out")
			return msgTimeout
		}
		b.log.Warn("confirm request failed", "error", err)
		return msgUnreachable
	}
	defer resp.Body.Close()

	if !strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		b.log.Error("non-JSON response from API", "status", resp.StatusCode)
		return msgServerError
	}

	b.log.Debug("confirm response", "status", resp.StatusCode, "telegram_id", telegramID)
	return replyForStatus(resp.StatusCode)
}

func replyForStatus(status int) string {
	switch status {
	case http.StatusOK:
		return msgLinked
	case http.StatusBadRequest:
		return msgBadToken
	case http.StatusTooManyRequests:
		return msgSlowDown
	case http.StatusConflict:
		return msgTaken
	default:
		return msgFailed
	}
}

func isTimeout(err error) bool {
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}

