// Package cmd defines the sheets-relay command tree.
//
// Architecture overview:
//   - download: the scheduled batch step. Fetches every configured spreadsheet tab through the CSV
//     export endpoint (colly), writes {name}_{YYYYMMDD}.csv plus manifest_{YYYYMMDD}.json to the
//     archive store (local directory, GCS, or memory), and aborts on the first failing tab.
//   - send: the batch step after download. Reads the manifest (or rebuilds filenames from the date)
//     and uploads each archived file to the configured chat. Missing files are skipped.
//   - bot: the always-on process. Telegram long polling with /start, /download, /help and /status,
//     the chi liveness server on PORT, and the memory/uptime watchdog.
//   - supervise: re-executes "bot" as a child and restarts it after a fixed backoff whenever it exits,
//     except for exit code 78 (missing configuration).
//
// Shared plumbing: viper loads config from RELAY_* variables, the legacy TELEGRAM_BOT_TOKEN /
// BOT_TOKEN / CHAT_ID / PORT names, and an optional YAML file; zap logs; Prometheus metrics are served
// on /metrics. Deliveries can be recorded to Postgres and run summaries published to Pub/Sub.
//
// Exit codes: 0 success or signal, 1 runtime failure, 3 watchdog termination, 78 missing configuration.
package cmd
