package supervisor

import (
	"context"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/sheets-relay/internal/metrics"
)

// Reason names the threshold that fired.
type Reason string

// Watchdog reasons.
const (
	ReasonMemory Reason = "memory"
	ReasonUptime Reason = "uptime"
)

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// WatchdogConfig holds the thresholds. Zero disables the corresponding check.
type WatchdogConfig struct {
	MemoryLimitBytes uint64
	CheckInterval    time.Duration
	MaxUptime        time.Duration
	// UptimePollInterval defaults to the smaller of MaxUptime and one minute.
	UptimePollInterval time.Duration
}

// Watchdog terminates the process when memory or uptime exceed their limits.
type Watchdog struct {
	cfg       WatchdogConfig
	clock     Clock
	started   time.Time
	memory    func() (uint64, error)
	terminate func(Reason)
	log       *zap.Logger

	once  sync.Once
	mu    sync.Mutex
	fired Reason
}

// Option customizes a Watchdog.
type Option func(*Watchdog)

// WithMemorySource replaces the resident memory reader.
func WithMemorySource(fn func() (uint64, error)) Option {
	return func(w *Watchdog) { w.memory = fn }
}

// WithTerminate replaces the default os.Exit(ExitWatchdog).
func WithTerminate(fn func(Reason)) Option {
	return func(w *Watchdog) { w.terminate = fn }
}

// NewWatchdog builds a Watchdog whose uptime is measured from clock.Now().
func NewWatchdog(cfg WatchdogConfig, clock Clock, logger *zap.Logger, opts ...Option) *Watchdog {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.UptimePollInterval <= 0 {
		cfg.UptimePollInterval = time.Minute
		if cfg.MaxUptime > 0 && cfg.MaxUptime < cfg.UptimePollInterval {
			cfg.UptimePollInterval = cfg.MaxUptime
		}
	}
	w := &Watchdog{
		cfg:     cfg,
		clock:   clock,
		started: clock.Now(),
		memory:  ResidentMemory,
		log:     logger,
	}
	w.terminate = func(Reason) { os.Exit(ExitWatchdog) }
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Uptime returns the time since the watchdog was created.
func (w *Watchdog) Uptime() time.Duration {
	return w.clock.Now().Sub(w.started)
}

// Fired returns the reason termination was triggered, or "" if it has not been.
func (w *Watchdog) Fired() Reason {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.fired
}

// CheckMemory samples resident memory and terminates above the limit.
func (w *Watchdog) CheckMemory() bool {
	usage, err := w.memory()
	if err != nil {
		w.log.Warn("read resident memory failed", zap.Error(err))
		return false
	}
	metrics.SetResidentMemory(usage)
	if w.cfg.MemoryLimitBytes == 0 || usage <= w.cfg.MemoryLimitBytes {
		w.log.Debug("memory ok", zap.Uint64("rss_bytes", usage))
		return false
	}
	w.trigger(ReasonMemory,
		zap.Uint64("rss_bytes", usage),
		zap.Uint64("limit_bytes", w.cfg.MemoryLimitBytes),
	)
	return true
}

// CheckUptime terminates once elapsed time reaches MaxUptime.
func (w *Watchdog) CheckUptime() bool {
	if w.cfg.MaxUptime <= 0 {
		return false
	}
	uptime := w.Uptime()
	if uptime < w.cfg.MaxUptime {
		return false
	}
	w.trigger(ReasonUptime, zap.Duration("uptime", uptime), zap.Duration("max_uptime", w.cfg.MaxUptime))
	return true
}

func (w *Watchdog) trigger(reason Reason, fields ...zap.Field) {
	w.once.Do(func() {
		w.mu.Lock()
		w.fired = reason
		w.mu.Unlock()
		w.log.Warn("watchdog threshold reached, terminating", append(fields, zap.String("reason", string(reason)))...)
		_ = w.log.Sync()
		w.terminate(reason)
	})
}

// Run polls both checks until ctx is done or termination has fired.
func (w *Watchdog) Run(ctx context.Context) {
	var memTick, upTick <-chan time.Time
	if w.cfg.MemoryLimitBytes > 0 && w.cfg.CheckInterval > 0 {
		t := time.NewTicker(w.cfg.CheckInterval)
		defer t.Stop()
		memTick = t.C
	}
	if w.cfg.MaxUptime > 0 {
		t := time.NewTicker(w.cfg.UptimePollInterval)
		defer t.Stop()
		upTick = t.C
	}
	if memTick == nil && upTick == nil {
		return
	}
	w.log.Info("watchdog started",
		zap.Uint64("memory_limit_bytes", w.cfg.MemoryLimitBytes),
		zap.Duration("max_uptime", w.cfg.MaxUptime),
	)
	for {
		select {
		case <-ctx.Done():
			return
		case <-memTick:
			if w.CheckMemory() {
				return
			}
		case <-upTick:
			if w.CheckUptime() {
				return
			}
		}
	}
}
