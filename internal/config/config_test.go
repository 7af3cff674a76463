package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var configVars = []string{
	"ENVIRONMENT",
	"LOG_LEVEL",
	"API_BASE_URL",
	"API_TOKEN",
	"USER_ID",
	"API_REQUEST_TIMEOUT",
	"STREAM_TRANSPORT",
	"STREAM_PATH",
	"STREAM_BACKOFF_BASE",
	"STREAM_BACKOFF_MAX",
	"STREAM_BACKOFF_JITTER",
	"STREAM_MAX_RECONNECT_ATTEMPTS",
	"STREAM_HEARTBEAT_INTERVAL",
	"STREAM_HEARTBEAT_MULTIPLIER",
	"STREAM_CONNECT_THROTTLE",
	"STREAM_RESET_COOLDOWN",
	"AUTO_SYNC_ENABLED",
	"AUTO_SYNC_ABSENCE_THRESHOLD",
	"AUTO_SYNC_SETTLE_DELAY",
	"AUTO_SYNC_RECHECK_INTERVAL",
	"SYNC_MAX_RETRIES",
	"SYNC_RETRY_DELAY",
	"SYNC_CONCURRENCY",
	"STATE_PATH",
	"ENABLE_CONTROL",
	"CONTROL_LISTEN_ADDR",
	"CONTROL_API_KEYS",
}

// clearConfigEnv unsets all config env vars so tests start clean.
func clearConfigEnv(t *testing.T) {
	t.Helper()

	for _, key := range configVars {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

// setMinimalEnv sets the env vars Load cannot do without.
func setMinimalEnv(t *testing.T) string {
	t.Helper()
	statePath := filepath.Join(t.TempDir(), "state.db")
	t.Setenv("API_BASE_URL", "https://portfolio.example.com/")
	t.Setenv("API_TOKEN", "tok_123")
	t.Setenv("STATE_PATH", statePath)
	return statePath
}

var testControlKey = "ws_" + strings.Repeat("0f", 16)

// --- Load ---

func TestLoad_Defaults(t *testing.T) {
	clearConfigEnv(t)
	statePath := setMinimalEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://portfolio.example.com", cfg.APIBaseURL, "trailing slash trimmed")
	assert.Equal(t, "tok_123", cfg.APIToken)
	assert.Equal(t, statePath, cfg.StatePath)
	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, TransportSSE, cfg.StreamTransport)
	assert.Equal(t, "/api/sync/progress/stream", cfg.StreamPath)
	assert.Equal(t, time.Second, cfg.StreamBackoffBase)
	assert.Equal(t, 30*time.Second, cfg.StreamBackoffMax)
	assert.Equal(t, 10, cfg.StreamMaxReconnectAttempts)
	assert.Equal(t, 30*time.Second, cfg.StreamHeartbeatInterval)
	assert.InDelta(t, 1.5, cfg.StreamHeartbeatMultiplier, 1e-9)
	assert.Equal(t, 5*time.Second, cfg.StreamConnectThrottle)
	assert.True(t, cfg.AutoSyncEnabled)
	assert.Equal(t, 6*time.Hour, cfg.AutoSyncAbsenceThreshold)
	assert.Equal(t, 2*time.Second, cfg.AutoSyncSettleDelay)
	assert.Equal(t, time.Hour, cfg.AutoSyncRecheckInterval)
	assert.Equal(t, 3, cfg.SyncMaxRetries)
	assert.Equal(t, 2*time.Second, cfg.SyncRetryDelay)
	assert.Equal(t, 0, cfg.SyncConcurrency)
	assert.False(t, cfg.EnableControl)
	assert.Equal(t, ":8091", cfg.ControlListenAddr)
}

func TestLoad_DefaultStatePath(t *testing.T) {
	clearConfigEnv(t)
	setMinimalEnv(t)
	os.Unsetenv("STATE_PATH")
	home := t.TempDir()
	t.Setenv("HOME", home)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".wallet-sync", "state.db"), cfg.StatePath)
}

func TestLoad_Overrides(t *testing.T) {
	clearConfigEnv(t)
	setMinimalEnv(t)
	t.Setenv("STREAM_TRANSPORT", "WebSocket")
	t.Setenv("STREAM_HEARTBEAT_INTERVAL", "20s")
	t.Setenv("STREAM_HEARTBEAT_MULTIPLIER", "2")
	t.Setenv("SYNC_MAX_RETRIES", "5")
	t.Setenv("AUTO_SYNC_ENABLED", "false")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, TransportWebSocket, cfg.StreamTransport)
	assert.Equal(t, 40*time.Second, cfg.HeartbeatTimeout())
	assert.Equal(t, 5, cfg.SyncMaxRetries)
	assert.False(t, cfg.AutoSyncEnabled)
}

func TestLoad_MissingBaseURL(t *testing.T) {
	clearConfigEnv(t)
	setMinimalEnv(t)
	os.Unsetenv("API_BASE_URL")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "API_BASE_URL")
}

func TestLoad_InvalidBaseURL(t *testing.T) {
	clearConfigEnv(t)
	setMinimalEnv(t)
	t.Setenv("API_BASE_URL", "ftp://portfolio.example.com")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "http(s)")
}

func TestLoad_MissingToken(t *testing.T) {
	clearConfigEnv(t)
	setMinimalEnv(t)
	os.Unsetenv("API_TOKEN")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "API_TOKEN")
}

func TestLoad_UnknownTransport(t *testing.T) {
	clearConfigEnv(t)
	setMinimalEnv(t)
	t.Setenv("STREAM_TRANSPORT", "long-poll")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "STREAM_TRANSPORT")
}

func TestLoad_StreamPathMustBeAbsolute(t *testing.T) {
	clearConfigEnv(t)
	setMinimalEnv(t)
	t.Setenv("STREAM_PATH", "events")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "STREAM_PATH")
}

func TestLoad_BackoffMaxBelowBase(t *testing.T) {
	clearConfigEnv(t)
	setMinimalEnv(t)
	t.Setenv("STREAM_BACKOFF_BASE", "10s")
	t.Setenv("STREAM_BACKOFF_MAX", "5s")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "STREAM_BACKOFF_MAX")
}

func TestLoad_ZeroRetryDelay(t *testing.T) {
	clearConfigEnv(t)
	setMinimalEnv(t)
	t.Setenv("SYNC_RETRY_DELAY", "0s")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SYNC_RETRY_DELAY")
}

func TestLoad_MultiplierBelowOne(t *testing.T) {
	clearConfigEnv(t)
	setMinimalEnv(t)
	t.Setenv("STREAM_HEARTBEAT_MULTIPLIER", "0.5")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "STREAM_HEARTBEAT_MULTIPLIER")
}

func TestLoad_NegativeRetries(t *testing.T) {
	clearConfigEnv(t)
	setMinimalEnv(t)
	t.Setenv("SYNC_MAX_RETRIES", "-1")

	_, err := Load()
	require.Error(t, err)
}

func TestLoad_ControlRequiresKeys(t *testing.T) {
	clearConfigEnv(t)
	setMinimalEnv(t)
	t.Setenv("ENABLE_CONTROL", "true")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CONTROL_API_KEYS")

	t.Setenv("CONTROL_API_KEYS", "alex:"+testControlKey)
	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.EnableControl)
}

func TestLoad_BadDuration(t *testing.T) {
	clearConfigEnv(t)
	setMinimalEnv(t)
	t.Setenv("SYNC_RETRY_DELAY", "soon")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing config")
}

func TestLoad_ProductionRequiresHTTPS(t *testing.T) {
	clearConfigEnv(t)
	setMinimalEnv(t)
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("API_BASE_URL", "http://portfolio.internal:3000")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "https in production")

	t.Setenv("API_BASE_URL", "https://portfolio.example.com")
	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.IsProduction())
}

func TestLoad_DevelopmentAllowsHTTP(t *testing.T) {
	clearConfigEnv(t)
	setMinimalEnv(t)
	t.Setenv("API_BASE_URL", "http://localhost:3000")

	cfg, err := Load()
	require.NoError(t, err)
	assert.False(t, cfg.IsProduction())
}

// --- derived values ---

func TestStreamURL(t *testing.T) {
	cfg := &Config{APIBaseURL: "https://portfolio.example.com", StreamPath: "/api/sync/progress/stream", StreamTransport: TransportSSE}
	assert.Equal(t, "https://portfolio.example.com/api/sync/progress/stream", cfg.StreamURL())

	cfg.StreamTransport = TransportWebSocket
	assert.Equal(t, "wss://portfolio.example.com/api/sync/progress/stream", cfg.StreamURL())

	cfg.APIBaseURL = "http://localhost:3000"
	assert.Equal(t, "ws://localhost:3000/api/sync/progress/stream", cfg.StreamURL())
}

func TestHeartbeatTimeout_Default(t *testing.T) {
	cfg := &Config{StreamHeartbeatInterval: 30 * time.Second, StreamHeartbeatMultiplier: 1.5}
	assert.Equal(t, 45*time.Second, cfg.HeartbeatTimeout())
}

func TestIsProduction(t *testing.T) {
	assert.True(t, (&Config{Environment: "production"}).IsProduction())
	assert.False(t, (&Config{Environment: "development"}).IsProduction())
}

// --- ParseControlAPIKeys ---

func TestParseControlAPIKeys_Empty(t *testing.T) {
	cfg := &Config{}
	keys, err := cfg.ParseControlAPIKeys()
	require.NoError(t, err)
	assert.Nil(t, keys)
}

func TestParseControlAPIKeys_Multiple(t *testing.T) {
	other := "ws_" + strings.Repeat("a1", 16)
	cfg := &Config{ControlAPIKeys: "alex:" + testControlKey + ", sam:" + other + ","}

	keys, err := cfg.ParseControlAPIKeys()
	require.NoError(t, err)
	require.Len(t, keys, 2)
	assert.Equal(t, "alex", keys[0].UserID)
	assert.Equal(t, testControlKey, keys[0].Key)
	assert.Equal(t, "sam", keys[1].UserID)
}

func TestParseControlAPIKeys_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"missing colon", "alex" + testControlKey, "missing ':'"},
		{"empty user", ":" + testControlKey, "empty user"},
		{"wrong prefix", "alex:vs_" + strings.Repeat("0f", 16), "prefix"},
		{"too short", "alex:ws_abcd", "too short"},
		{"non hex", "alex:ws_" + strings.Repeat("zz", 16), "non-hex"},
		{"duplicate", "alex:" + testControlKey + ",alex:" + testControlKey, "duplicate"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{ControlAPIKeys: tt.input}
			_, err := cfg.ParseControlAPIKeys()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

// --- env file permissions ---

func TestCheckEnvFilePerms(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("permission bits not enforced on windows")
	}

	dir := t.TempDir()

	assert.NoError(t, checkEnvFilePerms(filepath.Join(dir, "missing.env")))

	private := filepath.Join(dir, "private.env")
	require.NoError(t, os.WriteFile(private, []byte("API_TOKEN=x\n"), 0o600))
	assert.NoError(t, checkEnvFilePerms(private))

	shared := filepath.Join(dir, "shared.env")
	require.NoError(t, os.WriteFile(shared, []byte("API_TOKEN=x\n"), 0o600))
	require.NoError(t, os.Chmod(shared, 0o644))

	err := checkEnvFilePerms(shared)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "0644")
}

func TestParseControlAPIKeys_ErrorNamesVariable(t *testing.T) {
	cfg := &Config{ControlAPIKeys: "alex:ws_abcd"}

	_, err := cfg.ParseControlAPIKeys()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CONTROL_API_KEYS: entry 1")
}
