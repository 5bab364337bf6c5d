package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/sheets-relay/internal/batch"
)

func newDownloadCmd() *cobra.Command {
	var date string
	cmd := &cobra.Command{
		Use:   "download",
		Short: "Fetch every configured sheet into the archive",
		Long: `Fetches each configured tab as CSV and stores it as {name}_{YYYYMMDD}.csv in the
archive, followed by manifest_{YYYYMMDD}.json. The first failing tab aborts the run
with a non-zero exit and no manifest is written.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := resolveEnv(cmd.Context())
			if err != nil {
				return err
			}
			a := e.app
			log := e.logger.Named("download")

			day, err := resolveDate(date, a.Clock.Now())
			if err != nil {
				return err
			}
			d, err := batch.NewDownloader(batch.DownloaderDeps{
				Fetcher:   a.Fetcher,
				Store:     a.Store,
				Hasher:    a.Hasher,
				Clock:     a.Clock,
				IDs:       a.IDs,
				Publisher: a.Publisher,
				Logger:    log,
			}, e.cfg.Refs())
			if err != nil {
				return err
			}
			manifest, err := d.Run(cmd.Context(), day)
			if err != nil {
				return fmt.Errorf("download failed: %w", err)
			}
			log.Info("all sheets downloaded", zap.String("date", manifest.Date), zap.Int("files", len(manifest.Entries)))
			return nil
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "archive date as YYYYMMDD (default today, UTC)")
	return cmd
}
