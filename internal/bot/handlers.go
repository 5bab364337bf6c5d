package bot

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/sheets-relay/internal/metrics"
	"github.com/JakeFAU/sheets-relay/internal/relay"
)

func observe(kind string) {
	metrics.ObserveBotUpdate(kind)
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) error {
	chatID := msg.Chat.ID
	if !b.isAllowed(chatID) {
		b.log.Warn("command from chat outside allow-list", zap.Int64("chat_id", chatID))
		observe("denied")
		return nil
	}
	var userID int64
	if msg.From != nil {
		userID = msg.From.ID
	}
	log := b.log.With(zap.Int64("user_id", userID), zap.Int64("chat_id", chatID))

	switch msg.Command() {
	case "start":
		observe("start")
		firstName := ""
		if msg.From != nil {
			firstName = msg.From.FirstName
		}
		log.Info("start command")
		return b.reply(ctx, tgbotapi.NewMessage(chatID, greeting(firstName)))
	case "help":
		observe("help")
		return b.reply(ctx, tgbotapi.NewMessage(chatID, helpText))
	case "download":
		observe("download")
		log.Info("download requested")
		reply := tgbotapi.NewMessage(chatID, downloadPrompt)
		reply.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
			tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData(downloadButton, CallbackDownload),
			),
		)
		return b.reply(ctx, reply)
	case "status":
		observe("status")
		if b.status == nil {
			return nil
		}
		return b.reply(ctx, tgbotapi.NewMessage(chatID, statusText(b.status())))
	default:
		observe("ignored")
		return nil
	}
}

func (b *Bot) handleCallback(ctx context.Context, q *tgbotapi.CallbackQuery) error {
	if _, err := b.api.Request(tgbotapi.NewCallback(q.ID, "")); err != nil {
		b.log.Warn("answer callback failed", zap.Error(err))
	}
	if q.Data != CallbackDownload || q.Message == nil {
		observe("ignored")
		return nil
	}
	chatID := q.Message.Chat.ID
	if !b.isAllowed(chatID) {
		b.log.Warn("callback from chat outside allow-list", zap.Int64("chat_id", chatID))
		observe("denied")
		return nil
	}
	log := b.log.With(zap.Int64("chat_id", chatID))
	if q.From != nil {
		log = log.With(zap.Int64("user_id", q.From.ID))
	}
	if !b.limiter.Allow(chatID, b.clock.Now()) {
		observe("throttled")
		log.Info("download throttled", zap.Duration("cooldown", b.cfg.DownloadCooldown))
		return b.reply(ctx, tgbotapi.NewMessage(chatID, downloadThrottled))
	}
	observe("callback")
	log.Info("download button pressed")

	if _, err := b.api.Send(tgbotapi.NewEditMessageText(chatID, q.Message.MessageID, downloadPending)); err != nil {
		log.Warn("edit message failed", zap.Error(err))
	}

	stamp := b.clock.Now().Format(StampLayout)
	report, err := b.relay.Run(ctx, relay.Request{
		ChatID: chatID,
		Source: "bot",
		Stamp:  stamp,
		OnOutcome: func(ctx context.Context, out relay.Outcome) {
			if out.OK() {
				return
			}
			if err := b.reply(ctx, tgbotapi.NewMessage(chatID, sheetFailure(out.Ref.Name, out.Err))); err != nil {
				log.Warn("failure report not sent", zap.String("sheet", out.Ref.Name), zap.Error(err))
			}
		},
	})
	if err != nil {
		return fmt.Errorf("relay run: %w", err)
	}

	final := summary(report.Sent, stamp)
	if err := b.reply(ctx, tgbotapi.NewMessage(chatID, final)); err != nil {
		return err
	}
	log.Info("download finished", zap.String("run_id", report.RunID), zap.Int("sent", report.Sent), zap.Int("failed", report.Failed))
	return nil
}

func (b *Bot) reply(ctx context.Context, c tgbotapi.Chattable) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("reply canceled: %w", err)
	}
	if _, err := b.api.Send(c); err != nil {
		return fmt.Errorf("send reply: %w", err)
	}
	return nil
}
