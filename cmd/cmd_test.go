package cmd

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/sheets-relay/internal/config"
	"github.com/JakeFAU/sheets-relay/internal/supervisor"
)

func quietLogger(t *testing.T) {
	t.Helper()
	prev := newLogger
	newLogger = func(bool) (*zap.Logger, error) { return zap.NewNop(), nil }
	t.Cleanup(func() { newLogger = prev })
}

func clearRelayEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"CHAT_ID", "RELAY_TELEGRAM_CHAT_ID", "TELEGRAM_BOT_TOKEN", "BOT_TOKEN", "RELAY_TELEGRAM_TOKEN", "PORT", "RELAY_SERVER_PORT"} {
		t.Setenv(k, "")
	}
}

func runRoot(t *testing.T, args ...string) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return run(ctx, args)
}

func TestResolveDate(t *testing.T) {
	now := time.Date(2024, 3, 9, 22, 15, 0, 0, time.UTC)

	got, err := resolveDate("", now)
	require.NoError(t, err)
	assert.Equal(t, now, got)

	got, err = resolveDate("20240102", now)
	require.NoError(t, err)
	assert.Equal(t, "20240102", got.Format("20060102"))

	_, err = resolveDate("2024-01-02", now)
	require.ErrorContains(t, err, "want YYYYMMDD")
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 0, exitCode(nil))
	assert.Equal(t, 1, exitCode(errors.New("boom")))
	assert.Equal(t, 3, exitCode(&supervisor.ExitCodeError{Code: supervisor.ExitWatchdog}))
	assert.Equal(t, 78, exitCode(config.ErrMissingChatID))
	assert.Equal(t, 78, exitCode(config.ErrMissingToken))
}

func TestChildArgs(t *testing.T) {
	assert.Equal(t, []string{"bot"}, childArgs(""))
	assert.Equal(t, []string{"bot", "--config", "/etc/relay.yaml"}, childArgs("/etc/relay.yaml"))
}

func TestDownloadCommandArchivesSheets(t *testing.T) {
	quietLogger(t)
	clearRelayEnv(t)

	bodies := map[string]string{
		"1674053030": "\xef\xbb\xbfcard;value\r\n1;100\r\n",
		"1789244637": "phone\r\n+7000\r\n",
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := bodies[r.URL.Query().Get("gid")]
		if !ok {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(body))
	}))
	defer srv.Close()

	dir := t.TempDir()
	t.Setenv("RELAY_SPREADSHEET_EXPORT_BASE_URL", srv.URL)
	t.Setenv("RELAY_STORAGE_PROVIDER", "local")
	t.Setenv("RELAY_STORAGE_LOCAL_DIR", dir)

	require.NoError(t, runRoot(t, "download", "--date", "20240102"))

	got, err := os.ReadFile(filepath.Join(dir, "Список_карт_номиналов_20240102.csv"))
	require.NoError(t, err)
	assert.Equal(t, bodies["1674053030"], string(got))

	got, err = os.ReadFile(filepath.Join(dir, "Список_номеров_СБП_20240102.csv"))
	require.NoError(t, err)
	assert.Equal(t, bodies["1789244637"], string(got))

	_, err = os.Stat(filepath.Join(dir, "manifest_20240102.json"))
	require.NoError(t, err)
}

func TestDownloadCommandFailsOnBadSheet(t *testing.T) {
	quietLogger(t)
	clearRelayEnv(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	dir := t.TempDir()
	t.Setenv("RELAY_SPREADSHEET_EXPORT_BASE_URL", srv.URL)
	t.Setenv("RELAY_STORAGE_PROVIDER", "local")
	t.Setenv("RELAY_STORAGE_LOCAL_DIR", dir)

	err := runRoot(t, "download", "--date", "20240102")
	require.Error(t, err)
	assert.Equal(t, 1, exitCode(err))

	_, statErr := os.Stat(filepath.Join(dir, "manifest_20240102.json"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestSendCommandWithoutChatIDIsConfigError(t *testing.T) {
	quietLogger(t)
	clearRelayEnv(t)
	t.Setenv("RELAY_STORAGE_PROVIDER", "memory")

	err := runRoot(t, "send", "--date", "20240102")
	require.ErrorIs(t, err, config.ErrMissingChatID)
	assert.Equal(t, supervisor.ExitConfig, exitCode(err))
}

func TestInvalidConfigIsConfigError(t *testing.T) {
	quietLogger(t)
	clearRelayEnv(t)
	t.Setenv("RELAY_STORAGE_PROVIDER", "ftp")

	err := runRoot(t, "download")
	require.Error(t, err)
	assert.Equal(t, supervisor.ExitConfig, exitCode(err))
}
