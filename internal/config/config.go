// Package config loads and validates relay configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/sheets-relay/internal/sheets"
)

var (
	// ErrMissingToken is returned when no Telegram bot token is configured.
	ErrMissingToken = errors.New("telegram bot token is not configured")
	// ErrMissingChatID is returned when a command needs a target chat and none is configured.
	ErrMissingChatID = errors.New("telegram chat id is not configured")
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Telegram    TelegramConfig    `mapstructure:"telegram"`
	Spreadsheet SpreadsheetConfig `mapstructure:"spreadsheet"`
	HTTP        HTTPConfig        `mapstructure:"http"`
	Storage     StorageConfig     `mapstructure:"storage"`
	DB          DBConfig          `mapstructure:"db"`
	PubSub      PubSubConfig      `mapstructure:"pubsub"`
	Supervisor  SupervisorConfig  `mapstructure:"supervisor"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

// ServerConfig controls the liveness HTTP server.
type ServerConfig struct {
	Port           int  `mapstructure:"port"`
	StrictPaths    bool `mapstructure:"strict_paths"`
	MetricsEnabled bool `mapstructure:"metrics_enabled"`
}

// TelegramConfig holds Bot API credentials and delivery targets.
type TelegramConfig struct {
	Token              string        `mapstructure:"token"`
	ChatID             int64         `mapstructure:"chat_id"`
	APIEndpoint        string        `mapstructure:"api_endpoint"`
	PollTimeoutSeconds int           `mapstructure:"poll_timeout_seconds"`
	AllowedChatIDs     []int64       `mapstructure:"allowed_chat_ids"`
	DownloadCooldown   time.Duration `mapstructure:"download_cooldown"`
	Debug              bool          `mapstructure:"debug"`
}

// SpreadsheetConfig identifies the document and the tabs exported from it.
type SpreadsheetConfig struct {
	ID            string        `mapstructure:"id"`
	ExportBaseURL string        `mapstructure:"export_base_url"`
	Sheets        []SheetConfig `mapstructure:"sheets"`
}

// SheetConfig is one exported tab.
type SheetConfig struct {
	Name string `mapstructure:"name"`
	GID  string `mapstructure:"gid"`
}

// HTTPConfig configures the export fetcher.
type HTTPConfig struct {
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	MaxBodyBytes   int    `mapstructure:"max_body_bytes"`
	UserAgent      string `mapstructure:"user_agent"`
}

// StorageConfig selects where batch downloads are archived.
type StorageConfig struct {
	Provider  string `mapstructure:"provider"`
	LocalDir  string `mapstructure:"local_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// DBConfig controls the optional delivery audit table.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	Table    string `mapstructure:"table"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// PubSubConfig holds metadata for run notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// SupervisorConfig tunes the watchdog timers and the restart loop.
type SupervisorConfig struct {
	WatchdogEnabled     bool          `mapstructure:"watchdog_enabled"`
	MemoryLimitMB       int           `mapstructure:"memory_limit_mb"`
	MemoryCheckInterval time.Duration `mapstructure:"memory_check_interval"`
	MaxUptime           time.Duration `mapstructure:"max_uptime"`
	RestartBackoff      time.Duration `mapstructure:"restart_backoff"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("RELAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	if err := bindLegacyEnv(v); err != nil {
		return Config{}, err
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// bindLegacyEnv keeps the variable names used by the CI workflows and the hosting platform working.
func bindLegacyEnv(v *viper.Viper) error {
	bindings := map[string][]string{
		"telegram.token":   {"RELAY_TELEGRAM_TOKEN", "TELEGRAM_BOT_TOKEN", "BOT_TOKEN"},
		"telegram.chat_id": {"RELAY_TELEGRAM_CHAT_ID", "CHAT_ID"},
		"server.port":      {"RELAY_SERVER_PORT", "PORT"},
	}
	for key, envs := range bindings {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return fmt.Errorf("bind env %s: %w", key, err)
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.strict_paths", false)
	v.SetDefault("server.metrics_enabled", true)
	v.SetDefault("telegram.api_endpoint", "")
	v.SetDefault("telegram.poll_timeout_seconds", 60)
	v.SetDefault("telegram.allowed_chat_ids", []int64{})
	v.SetDefault("telegram.download_cooldown", time.Duration(0))
	v.SetDefault("telegram.debug", false)
	v.SetDefault("spreadsheet.id", "14x5PZnq9AX8CcRW1cl5hyne0IndtNh0L")
	v.SetDefault("spreadsheet.export_base_url", sheets.DefaultExportBaseURL)
	v.SetDefault("spreadsheet.sheets", []map[string]any{
		{"name": "Список_карт_номиналов", "gid": "1674053030"},
		{"name": "Список_номеров_СБП", "gid": "1789244637"},
	})
	v.SetDefault("http.timeout_seconds", 30)
	v.SetDefault("http.max_body_bytes", 20*1024*1024)
	v.SetDefault("http.user_agent", "sheets-relay/1.0")
	v.SetDefault("storage.provider", "local")
	v.SetDefault("storage.local_dir", ".")
	v.SetDefault("storage.gcs_bucket", "")
	v.SetDefault("storage.prefix", "")
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.table", "deliveries")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic_name", "")
	v.SetDefault("supervisor.watchdog_enabled", true)
	v.SetDefault("supervisor.memory_limit_mb", 450)
	v.SetDefault("supervisor.memory_check_interval", time.Minute)
	v.SetDefault("supervisor.max_uptime", 6*time.Hour)
	v.SetDefault("supervisor.restart_backoff", 10*time.Second)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
// Secrets are not checked here; commands that need them call RequireToken/RequireChatID.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.HTTP.MaxBodyBytes < 0 {
		return fmt.Errorf("http.max_body_bytes must be >= 0")
	}
	if strings.TrimSpace(c.Spreadsheet.ID) == "" {
		return fmt.Errorf("spreadsheet.id is required")
	}
	if len(c.Spreadsheet.Sheets) == 0 {
		return fmt.Errorf("spreadsheet.sheets must list at least one sheet")
	}
	for i, s := range c.Spreadsheet.Sheets {
		if strings.TrimSpace(s.Name) == "" {
			return fmt.Errorf("spreadsheet.sheets[%d].name is required", i)
		}
		if _, err := strconv.ParseUint(s.GID, 10, 64); err != nil {
			return fmt.Errorf("spreadsheet.sheets[%d].gid must be numeric, got %q", i, s.GID)
		}
	}
	switch c.Storage.Provider {
	case "local":
		if strings.TrimSpace(c.Storage.LocalDir) == "" {
			return fmt.Errorf("storage.local_dir is required for the local provider")
		}
	case "gcs":
		if c.Storage.GCSBucket == "" {
			return fmt.Errorf("storage.gcs_bucket is required for the gcs provider")
		}
	case "memory":
	default:
		return fmt.Errorf("storage.provider %q is not one of local, gcs, memory", c.Storage.Provider)
	}
	if c.PubSub.TopicName != "" && c.PubSub.ProjectID == "" {
		return fmt.Errorf("pubsub.project_id must be set when pubsub.topic_name is set")
	}
	if c.Telegram.DownloadCooldown < 0 {
		return fmt.Errorf("telegram.download_cooldown must be >= 0")
	}
	if c.Supervisor.MemoryLimitMB <= 0 {
		return fmt.Errorf("supervisor.memory_limit_mb must be > 0")
	}
	if c.Supervisor.MemoryCheckInterval <= 0 {
		return fmt.Errorf("supervisor.memory_check_interval must be > 0")
	}
	if c.Supervisor.MaxUptime <= 0 {
		return fmt.Errorf("supervisor.max_uptime must be > 0")
	}
	if c.Supervisor.RestartBackoff < 0 {
		return fmt.Errorf("supervisor.restart_backoff must be >= 0")
	}
	return nil
}

// RequireToken reports ErrMissingToken when the bot token is absent.
func (c Config) RequireToken() error {
	if strings.TrimSpace(c.Telegram.Token) == "" {
		return ErrMissingToken
	}
	return nil
}

// RequireChatID reports ErrMissingChatID when no batch delivery target is set.
func (c Config) RequireChatID() error {
	if c.Telegram.ChatID == 0 {
		return ErrMissingChatID
	}
	return nil
}

// Refs converts the configured sheets into fetchable references, preserving order.
func (c Config) Refs() []sheets.Ref {
	refs := make([]sheets.Ref, 0, len(c.Spreadsheet.Sheets))
	for _, s := range c.Spreadsheet.Sheets {
		refs = append(refs, sheets.Ref{Name: s.Name, GID: s.GID})
	}
	return refs
}

// FetchTimeout converts the HTTP timeout into a duration.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// MemoryLimitBytes converts the watchdog threshold into bytes.
func (c Config) MemoryLimitBytes() uint64 {
	return uint64(c.Supervisor.MemoryLimitMB) * 1024 * 1024
}
