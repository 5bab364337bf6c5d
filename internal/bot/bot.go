// Package bot serves the interactive Telegram command surface over long polling.
package bot

import (
	"context"
	"fmt"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/sheets-relay/internal/policy/ratelimit"
	"github.com/JakeFAU/sheets-relay/internal/relay"
)

// API is the subset of the Bot API client used by the command surface.
type API interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Relayer runs one fetch-then-deliver pass.
type Relayer interface {
	Run(ctx context.Context, req relay.Request) (relay.Report, error)
}

// Status is reported by /status.
type Status struct {
	Uptime           time.Duration
	ResidentBytes    uint64
	MemoryLimitBytes uint64
}

// Config controls polling and access.
type Config struct {
	PollTimeoutSeconds int
	// AllowedChatIDs restricts who may use the bot; empty allows everyone.
	AllowedChatIDs []int64
	// DownloadCooldown is the minimum time between download runs per chat; 0 disables it.
	DownloadCooldown time.Duration
}

// Deps bundles collaborators. Status is optional.
type Deps struct {
	API    API
	Relay  Relayer
	Clock  relay.Clock
	Status func() Status
	Logger *zap.Logger
}

// Bot dispatches updates to command and callback handlers, one at a time.
type Bot struct {
	api     API
	relay   Relayer
	clock   relay.Clock
	status  func() Status
	log     *zap.Logger
	cfg     Config
	allowed map[int64]struct{}
	limiter *ratelimit.Limiter
}

// New validates deps and returns a Bot.
func New(cfg Config, deps Deps) (*Bot, error) {
	switch {
	case deps.API == nil:
		return nil, fmt.Errorf("bot api is required")
	case deps.Relay == nil:
		return nil, fmt.Errorf("relay is required")
	case deps.Clock == nil:
		return nil, fmt.Errorf("clock is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.PollTimeoutSeconds <= 0 {
		cfg.PollTimeoutSeconds = 60
	}
	b := &Bot{
		api:     deps.API,
		relay:   deps.Relay,
		clock:   deps.Clock,
		status:  deps.Status,
		log:     logger,
		cfg:     cfg,
		limiter: ratelimit.New(ratelimit.Config{Interval: cfg.DownloadCooldown}),
	}
	if len(cfg.AllowedChatIDs) > 0 {
		b.allowed = make(map[int64]struct{}, len(cfg.AllowedChatIDs))
		for _, id := range cfg.AllowedChatIDs {
			b.allowed[id] = struct{}{}
		}
	}
	return b, nil
}

// Run long-polls for updates until ctx is canceled or the update channel closes.
func (b *Bot) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = b.cfg.PollTimeoutSeconds
	updates := b.api.GetUpdatesChan(u)
	b.log.Info("bot polling started", zap.Int("timeout_seconds", u.Timeout))

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			b.log.Info("bot polling stopped")
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			b.HandleUpdate(ctx, update)
		}
	}
}

// HandleUpdate processes one update. Handler errors are logged and the sender gets a
// generic failure message.
func (b *Bot) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	if err := b.dispatch(ctx, update); err != nil {
		b.log.Error("update handler failed", zap.Int("update_id", update.UpdateID), zap.Error(err))
		if user := update.SentFrom(); user != nil {
			if _, sendErr := b.api.Send(tgbotapi.NewMessage(user.ID, genericFailure)); sendErr != nil {
				b.log.Warn("error reply failed", zap.Error(sendErr))
			}
		}
	}
}

func (b *Bot) dispatch(ctx context.Context, update tgbotapi.Update) error {
	switch {
	case update.CallbackQuery != nil:
		return b.handleCallback(ctx, update.CallbackQuery)
	case update.Message != nil && update.Message.IsCommand():
		return b.handleCommand(ctx, update.Message)
	default:
		observe("ignored")
		return nil
	}
}

func (b *Bot) isAllowed(chatID int64) bool {
	if b.allowed == nil {
		return true
	}
	_, ok := b.allowed[chatID]
	return ok
}
