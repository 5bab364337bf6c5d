package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/sheets-relay/internal/supervisor"
)

const childGrace = 10 * time.Second

func newSuperviseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "supervise",
		Short: "Run the bot as a child process and restart it whenever it exits",
		Long: `Starts "sheets-relay bot" as a child process. Every exit, whether clean, crashed,
or terminated by the watchdog, is followed by a restart after
supervisor.restart_backoff. Exit code 78 (missing configuration) stops the loop.`,
		Annotations: map[string]string{skipApp: "true"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := resolveEnv(cmd.Context())
			if err != nil {
				return err
			}
			self, err := os.Executable()
			if err != nil {
				return fmt.Errorf("resolve executable: %w", err)
			}
			loop := &supervisor.Loop{
				Runner:  supervisor.CommandRunner(self, childArgs(e.cfgFile), childGrace),
				Backoff: e.cfg.Supervisor.RestartBackoff,
				Logger:  e.logger.Named("supervisor"),
			}
			return loop.Start(cmd.Context())
		},
	}
}

// childArgs builds the argument list for the supervised bot process.
func childArgs(cfgFile string) []string {
	args := []string{"bot"}
	if cfgFile != "" {
		args = append(args, "--config", cfgFile)
	}
	return args
}
