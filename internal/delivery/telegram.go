// Package delivery uploads exported files to Telegram chats.
package delivery

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/sheets-relay/internal/config"
)

// Document is one file upload.
type Document struct {
	ChatID   int64
	Filename string
	Caption  string
	Body     []byte
}

// API is the subset of the Bot API client used for sending.
type API interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Telegram sends documents and text messages through the Bot API.
type Telegram struct {
	api    API
	logger *zap.Logger
}

// NewTelegram wraps an API client.
func NewTelegram(api API, logger *zap.Logger) *Telegram {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Telegram{api: api, logger: logger}
}

// SendDocument uploads doc as a document attachment. Failures are not retried.
func (t *Telegram) SendDocument(ctx context.Context, doc Document) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("send document canceled: %w", err)
	}
	msg := tgbotapi.NewDocument(doc.ChatID, tgbotapi.FileBytes{Name: doc.Filename, Bytes: doc.Body})
	msg.Caption = doc.Caption
	if _, err := t.api.Send(msg); err != nil {
		t.logger.Error("send document failed",
			zap.Int64("chat_id", doc.ChatID),
			zap.String("filename", doc.Filename),
			zap.Error(err),
		)
		return fmt.Errorf("send document %s to chat %d: %w", doc.Filename, doc.ChatID, err)
	}
	t.logger.Info("document sent",
		zap.Int64("chat_id", doc.ChatID),
		zap.String("filename", doc.Filename),
		zap.Int("bytes", len(doc.Body)),
	)
	return nil
}

// SendText posts a plain text message.
func (t *Telegram) SendText(ctx context.Context, chatID int64, text string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("send message canceled: %w", err)
	}
	if _, err := t.api.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		return fmt.Errorf("send message to chat %d: %w", chatID, err)
	}
	return nil
}

// ConnectConfig describes how to reach the Bot API.
type ConnectConfig struct {
	Token string
	// Endpoint is a Bot API URL template with two %s verbs (token, method); empty uses api.telegram.org.
	Endpoint string
	Timeout  time.Duration
	Debug    bool
}

// Connect opens a Bot API client. A missing token is logged at fatal level and the
// client is never started; with the default zap hook this exits the process.
func Connect(cfg ConnectConfig, logger *zap.Logger) (*tgbotapi.BotAPI, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if strings.TrimSpace(cfg.Token) == "" {
		logger.Fatal("bot token is not set; configure TELEGRAM_BOT_TOKEN", zap.Error(config.ErrMissingToken))
		return nil, config.ErrMissingToken
	}
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	bot, err := tgbotapi.NewBotAPIWithClient(cfg.Token, endpoint, &http.Client{Timeout: timeout})
	if err != nil {
		return nil, fmt.Errorf("connect bot api: %w", err)
	}
	bot.Debug = cfg.Debug
	logger.Info("bot api connected", zap.String("username", bot.Self.UserName))
	return bot, nil
}
