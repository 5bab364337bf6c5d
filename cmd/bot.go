package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/sheets-relay/internal/api"
	"github.com/JakeFAU/sheets-relay/internal/bot"
	"github.com/JakeFAU/sheets-relay/internal/delivery"
	"github.com/JakeFAU/sheets-relay/internal/relay"
	"github.com/JakeFAU/sheets-relay/internal/supervisor"
)

func newBotCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "bot",
		Short: "Run the interactive Telegram bot",
		Long: `Long-polls Telegram for /start, /download, /help and /status, serves the liveness
endpoint on the configured port, and terminates with exit code 3 when the memory or
uptime watchdog fires.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := resolveEnv(cmd.Context())
			if err != nil {
				return err
			}
			return runBot(cmd.Context(), e)
		},
	}
}

func runBot(ctx context.Context, e *env) error {
	a := e.app
	cfg := e.cfg
	log := e.logger.Named("bot")

	tg, err := delivery.Connect(delivery.ConnectConfig{
		Token:    cfg.Telegram.Token,
		Endpoint: cfg.Telegram.APIEndpoint,
		Debug:    cfg.Telegram.Debug,
	}, log)
	if err != nil {
		return err
	}

	r, err := relay.New(relay.Deps{
		Fetcher:   a.Fetcher,
		Deliverer: delivery.NewTelegram(tg, log),
		Publisher: a.Publisher,
		Audit:     a.Audit,
		Hasher:    a.Hasher,
		Clock:     a.Clock,
		IDs:       a.IDs,
		Logger:    log.Named("relay"),
	}, cfg.Refs())
	if err != nil {
		return err
	}

	watchdog := supervisor.NewWatchdog(supervisor.WatchdogConfig{
		MemoryLimitBytes: cfg.MemoryLimitBytes(),
		CheckInterval:    cfg.Supervisor.MemoryCheckInterval,
		MaxUptime:        cfg.Supervisor.MaxUptime,
	}, a.Clock, log.Named("watchdog"))

	b, err := bot.New(bot.Config{
		PollTimeoutSeconds: cfg.Telegram.PollTimeoutSeconds,
		AllowedChatIDs:     cfg.Telegram.AllowedChatIDs,
		DownloadCooldown:   cfg.Telegram.DownloadCooldown,
	}, bot.Deps{
		API:   tg,
		Relay: r,
		Clock: a.Clock,
		Status: func() bot.Status {
			rss, err := supervisor.ResidentMemory()
			if err != nil {
				log.Warn("read resident memory failed", zap.Error(err))
			}
			return bot.Status{
				Uptime:           watchdog.Uptime(),
				ResidentBytes:    rss,
				MemoryLimitBytes: cfg.MemoryLimitBytes(),
			}
		},
		Logger: log,
	})
	if err != nil {
		return err
	}

	server := api.NewServer(api.Config{
		StrictPaths:    cfg.Server.StrictPaths,
		MetricsEnabled: cfg.Server.MetricsEnabled,
	}, e.logger.Named("http"))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return server.ListenAndServe(gctx, api.Addr(cfg.Server.Port))
	})
	if cfg.Supervisor.WatchdogEnabled {
		g.Go(func() error {
			watchdog.Run(gctx)
			return nil
		})
	}
	g.Go(func() error {
		// Polling ending on its own stops the rest of the process too.
		defer cancel()
		if err := b.Run(gctx); err != nil {
			return fmt.Errorf("bot polling: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("bot stopped")
	return nil
}
