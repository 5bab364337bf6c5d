package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/sheets-relay/internal/app"
	"github.com/JakeFAU/sheets-relay/internal/config"
	"github.com/JakeFAU/sheets-relay/internal/logging"
	"github.com/JakeFAU/sheets-relay/internal/supervisor"
)

// envKeyType is the key for storing the command environment in the context.
type envKeyType string

const envKey envKeyType = "env"

// skipApp marks commands that do not need the service container.
const skipApp = "skip-app"

// env is what PersistentPreRunE hands to subcommands.
type env struct {
	cfgFile string
	cfg     config.Config
	logger  *zap.Logger
	app     *app.App
}

// newApp is the service factory. It's a variable so tests can swap it.
var newApp = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (*app.App, error) {
	return app.New(ctx, cfg, logger)
}

// newLogger builds the process logger. Fatal logs exit with ExitConfig.
var newLogger = func(development bool) (*zap.Logger, error) {
	return logging.New(development, logging.WithFatalExitCode(supervisor.ExitConfig))
}

// newRootCmd builds the command tree. The environment created by PersistentPreRunE is
// stored in *state so the caller can release it even when the command fails.
func newRootCmd(state **env) *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:   "sheets-relay",
		Short: "Deliver spreadsheet CSV exports to Telegram.",
		Long: `sheets-relay fetches the configured spreadsheet tabs through the public CSV
export endpoint and forwards the files, unmodified, to Telegram chats. It runs
either as scheduled batch steps (download, send) or as an interactive bot.`,
		SilenceUsage:  true,
		SilenceErrors: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return &supervisor.ExitCodeError{Code: supervisor.ExitConfig, Err: fmt.Errorf("load config: %w", err)}
			}
			logger, err := newLogger(cfg.Logging.Development)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			zap.ReplaceGlobals(logger)

			e := &env{cfgFile: cfgFile, cfg: cfg, logger: logger}
			if cmd.Annotations[skipApp] == "" {
				e.app, err = newApp(cmd.Context(), cfg, logger)
				if err != nil {
					return &supervisor.ExitCodeError{Code: supervisor.ExitConfig, Err: fmt.Errorf("initialize services: %w", err)}
				}
			}
			*state = e
			cmd.SetContext(context.WithValue(cmd.Context(), envKey, e))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML); environment variables override it")

	cmd.AddCommand(newDownloadCmd())
	cmd.AddCommand(newSendCmd())
	cmd.AddCommand(newBotCmd())
	cmd.AddCommand(newSuperviseCmd())
	return cmd
}

func resolveEnv(ctx context.Context) (*env, error) {
	e, ok := ctx.Value(envKey).(*env)
	if !ok || e == nil {
		return nil, errors.New("command environment not initialized")
	}
	return e, nil
}

// exitCode maps a command error to a process exit code.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *supervisor.ExitCodeError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	if errors.Is(err, config.ErrMissingToken) || errors.Is(err, config.ErrMissingChatID) {
		return supervisor.ExitConfig
	}
	return 1
}

// run executes args against a fresh command tree and releases its services afterwards.
func run(ctx context.Context, args []string) error {
	var e *env
	root := newRootCmd(&e)
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	if e != nil {
		if e.app != nil {
			e.app.Close()
		}
		_ = e.logger.Sync()
	}
	return err
}

// Execute is the main entry point.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := run(ctx, os.Args[1:])
	stop()
	if err != nil {
		zap.L().Error("command failed", zap.Error(err))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(exitCode(err))
	}
}
