package supervisor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"slices"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/sheets-relay/internal/metrics"
)

// ExitCodeError carries a process exit code up to main.
type ExitCodeError struct {
	Code int
	Err  error
}

func (e *ExitCodeError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit code %d", e.Code)
	}
	return fmt.Sprintf("exit code %d: %v", e.Code, e.Err)
}

func (e *ExitCodeError) Unwrap() error {
	return e.Err
}

// Runner runs one generation of the supervised work and returns its exit code.
type Runner func(ctx context.Context) (int, error)

// Loop restarts Runner after every exit until ctx is canceled.
type Loop struct {
	Runner  Runner
	Backoff time.Duration
	// StopCodes end the loop instead of restarting; defaults to ExitConfig.
	StopCodes []int
	Logger    *zap.Logger

	sleep func(ctx context.Context, d time.Duration) error
}

// Start blocks until ctx is canceled (returning nil) or the runner exits with a stop code
// (returning an *ExitCodeError).
func (l *Loop) Start(ctx context.Context) error {
	if l.Runner == nil {
		return fmt.Errorf("runner is required")
	}
	log := l.Logger
	if log == nil {
		log = zap.NewNop()
	}
	stopCodes := l.StopCodes
	if stopCodes == nil {
		stopCodes = []int{ExitConfig}
	}
	sleep := l.sleep
	if sleep == nil {
		sleep = sleepContext
	}

	for generation := 1; ; generation++ {
		log.Info("starting child", zap.Int("generation", generation))
		code, err := l.Runner(ctx)
		if ctx.Err() != nil {
			log.Info("supervisor stopping", zap.Int("code", code))
			return nil
		}
		if slices.Contains(stopCodes, code) {
			log.Error("child exited with a non-restartable code", zap.Int("code", code), zap.Error(err))
			return &ExitCodeError{Code: code, Err: err}
		}
		log.Warn("child exited, restarting",
			zap.Int("code", code),
			zap.Error(err),
			zap.Duration("backoff", l.Backoff),
		)
		metrics.ObserveRestart()
		if err := sleep(ctx, l.Backoff); err != nil {
			return nil
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// CommandRunner runs path with args as a child process sharing stdio. On ctx cancellation
// the child receives SIGTERM and is killed after grace.
func CommandRunner(path string, args []string, grace time.Duration) Runner {
	return func(ctx context.Context) (int, error) {
		cmd := exec.CommandContext(ctx, path, args...)
		cmd.Stdin = os.Stdin
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		cmd.Cancel = func() error {
			return cmd.Process.Signal(syscall.SIGTERM)
		}
		cmd.WaitDelay = grace

		err := cmd.Run()
		if err == nil {
			return 0, nil
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return exitErr.ExitCode(), err
		}
		return -1, fmt.Errorf("run child: %w", err)
	}
}
