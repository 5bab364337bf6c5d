// Package supervisor keeps the long-running bot healthy by restarting it.
//
// Three mechanisms cooperate without talking to each other:
//
//   - Watchdog samples resident memory and wall-clock uptime and hard-exits the
//     process with ExitWatchdog once a threshold is crossed.
//   - Loop runs the bot as a child process and starts it again after a fixed
//     backoff whenever it exits.
//   - ExitConfig marks exits that a restart cannot fix, such as a missing token,
//     so Loop stops instead of spinning.
//
// None of them drain in-flight work; a restart may interrupt a delivery.
package supervisor

// Process exit codes shared by the bot and its supervisor.
const (
	// ExitWatchdog is used when a watchdog threshold terminates the process.
	ExitWatchdog = 3
	// ExitConfig is used when required configuration is missing (EX_CONFIG).
	ExitConfig = 78
)
