package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/sheets-relay/internal/batch"
	"github.com/JakeFAU/sheets-relay/internal/delivery"
)

func newSendCmd() *cobra.Command {
	var date string
	cmd := &cobra.Command{
		Use:   "send",
		Short: "Upload the archived files to the configured chat",
		Long: `Uploads the files archived for a date to telegram.chat_id (CHAT_ID). The manifest
written by download is used when present; otherwise filenames are rebuilt from the
configured sheets. Missing files are skipped with a warning.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := resolveEnv(cmd.Context())
			if err != nil {
				return err
			}
			a := e.app
			log := e.logger.Named("send")

			if err := e.cfg.RequireChatID(); err != nil {
				log.Error("CHAT_ID is not set", zap.Error(err))
				return err
			}
			day, err := resolveDate(date, a.Clock.Now())
			if err != nil {
				return err
			}
			api, err := delivery.Connect(delivery.ConnectConfig{
				Token:    e.cfg.Telegram.Token,
				Endpoint: e.cfg.Telegram.APIEndpoint,
				Debug:    e.cfg.Telegram.Debug,
			}, log)
			if err != nil {
				return err
			}

			s, err := batch.NewSender(batch.SenderDeps{
				Deliverer: delivery.NewTelegram(api, log),
				Store:     a.Store,
				Hasher:    a.Hasher,
				Clock:     a.Clock,
				IDs:       a.IDs,
				Publisher: a.Publisher,
				Audit:     a.Audit,
				Logger:    log,
			}, e.cfg.Refs())
			if err != nil {
				return err
			}
			report, err := s.Run(cmd.Context(), e.cfg.Telegram.ChatID, day)
			if err != nil {
				return fmt.Errorf("send failed: %w", err)
			}
			log.Info("send finished",
				zap.Int("sent", report.Sent),
				zap.Int("skipped", report.Skipped),
				zap.Int("failed", report.Failed),
			)
			return nil
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "archive date as YYYYMMDD (default today, UTC)")
	return cmd
}
