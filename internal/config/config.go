package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/alexjbarnes/wallet-sync/internal/auth"
	"github.com/alexjbarnes/wallet-sync/internal/state"
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Stream transport names accepted by STREAM_TRANSPORT.
const (
	TransportSSE       = "sse"
	TransportWebSocket = "websocket"
)

// Config holds all environment-based configuration for wallet-sync.
type Config struct {
	// Environment controls log format
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL"`

	// Portfolio backend. The token is sent on both REST calls and the
	// push stream.
	APIBaseURL        string        `env:"API_BASE_URL"`
	APIToken          string        `env:"API_TOKEN"`
	UserID            string        `env:"USER_ID"`
	APIRequestTimeout time.Duration `env:"API_REQUEST_TIMEOUT" envDefault:"60s"`

	// Push stream settings.
	StreamTransport            string        `env:"STREAM_TRANSPORT" envDefault:"sse"`
	StreamPath                 string        `env:"STREAM_PATH" envDefault:"/api/sync/progress/stream"`
	StreamBackoffBase          time.Duration `env:"STREAM_BACKOFF_BASE" envDefault:"1s"`
	StreamBackoffMax           time.Duration `env:"STREAM_BACKOFF_MAX" envDefault:"30s"`
	StreamBackoffJitter        time.Duration `env:"STREAM_BACKOFF_JITTER" envDefault:"1s"`
	StreamMaxReconnectAttempts int           `env:"STREAM_MAX_RECONNECT_ATTEMPTS" envDefault:"10"`
	StreamHeartbeatInterval    time.Duration `env:"STREAM_HEARTBEAT_INTERVAL" envDefault:"30s"`
	StreamHeartbeatMultiplier  float64       `env:"STREAM_HEARTBEAT_MULTIPLIER" envDefault:"1.5"`
	StreamConnectThrottle      time.Duration `env:"STREAM_CONNECT_THROTTLE" envDefault:"5s"`
	StreamResetCooldown        time.Duration `env:"STREAM_RESET_COOLDOWN" envDefault:"1s"`

	// Scheduler settings.
	AutoSyncEnabled          bool          `env:"AUTO_SYNC_ENABLED" envDefault:"true"`
	AutoSyncAbsenceThreshold time.Duration `env:"AUTO_SYNC_ABSENCE_THRESHOLD" envDefault:"6h"`
	AutoSyncSettleDelay      time.Duration `env:"AUTO_SYNC_SETTLE_DELAY" envDefault:"2s"`
	AutoSyncRecheckInterval  time.Duration `env:"AUTO_SYNC_RECHECK_INTERVAL" envDefault:"1h"`

	// Executor settings. A concurrency of 0 means one goroutine per wallet.
	SyncMaxRetries  int           `env:"SYNC_MAX_RETRIES" envDefault:"3"`
	SyncRetryDelay  time.Duration `env:"SYNC_RETRY_DELAY" envDefault:"2s"`
	SyncConcurrency int           `env:"SYNC_CONCURRENCY" envDefault:"0"`

	// Location of the bbolt file holding scheduling markers. Defaults to
	// ~/.wallet-sync/state.db.
	StatePath string `env:"STATE_PATH"`

	// Control server settings (keys required when enabled).
	EnableControl     bool   `env:"ENABLE_CONTROL" envDefault:"false"`
	ControlListenAddr string `env:"CONTROL_LISTEN_ADDR" envDefault:":8091"`
	ControlAPIKeys    string `env:"CONTROL_API_KEYS"`
}

// envFile is the optional dotenv file read by Load.
const envFile = ".env"

// checkEnvFilePerms returns an error if the file at path is readable by
// group or others. A missing file is fine. Permission bits mean nothing
// on Windows, so the check is skipped there.
func checkEnvFilePerms(path string) error {
	if runtime.GOOS == "windows" {
		return nil
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil
	}

	if mode := info.Mode().Perm(); mode&0o077 != 0 {
		return fmt.Errorf("%s has permissions %04o, API_TOKEN may be readable by other users; use 0600", path, mode)
	}

	return nil
}

// Load reads configuration from environment variables.
// It first attempts to load a .env file if present, then parses env vars.
func Load() (*Config, error) {
	_ = godotenv.Load(envFile)

	// The logger is not configured yet; the default handler writes to stderr.
	if err := checkEnvFilePerms(envFile); err != nil {
		slog.Warn("insecure env file", slog.String("error", err.Error()))
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg.APIBaseURL = strings.TrimRight(strings.TrimSpace(cfg.APIBaseURL), "/")
	cfg.StreamTransport = strings.ToLower(strings.TrimSpace(cfg.StreamTransport))

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	if cfg.StatePath == "" {
		p, err := state.DefaultPath()
		if err != nil {
			return nil, err
		}

		cfg.StatePath = p
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.APIBaseURL == "" {
		return fmt.Errorf("API_BASE_URL is required")
	}

	u, err := url.Parse(c.APIBaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("API_BASE_URL must be an http(s) URL, got %q", c.APIBaseURL)
	}

	if c.IsProduction() && u.Scheme != "https" {
		return fmt.Errorf("API_BASE_URL must use https in production")
	}

	if c.APIToken == "" {
		return fmt.Errorf("API_TOKEN is required")
	}

	if c.StreamTransport != TransportSSE && c.StreamTransport != TransportWebSocket {
		return fmt.Errorf("STREAM_TRANSPORT must be %q or %q, got %q", TransportSSE, TransportWebSocket, c.StreamTransport)
	}

	if !strings.HasPrefix(c.StreamPath, "/") {
		return fmt.Errorf("STREAM_PATH must start with '/'")
	}

	durations := []struct {
		name string
		d    time.Duration
	}{
		{"API_REQUEST_TIMEOUT", c.APIRequestTimeout},
		{"STREAM_BACKOFF_BASE", c.StreamBackoffBase},
		{"STREAM_BACKOFF_MAX", c.StreamBackoffMax},
		{"STREAM_HEARTBEAT_INTERVAL", c.StreamHeartbeatInterval},
		{"AUTO_SYNC_ABSENCE_THRESHOLD", c.AutoSyncAbsenceThreshold},
		{"SYNC_RETRY_DELAY", c.SyncRetryDelay},
	}
	for _, d := range durations {
		if d.d <= 0 {
			return fmt.Errorf("%s must be positive", d.name)
		}
	}

	if c.StreamBackoffMax < c.StreamBackoffBase {
		return fmt.Errorf("STREAM_BACKOFF_MAX must be at least STREAM_BACKOFF_BASE")
	}

	if c.StreamBackoffJitter < 0 || c.StreamConnectThrottle < 0 || c.StreamResetCooldown < 0 ||
		c.AutoSyncSettleDelay < 0 || c.AutoSyncRecheckInterval < 0 {
		return fmt.Errorf("delays must not be negative")
	}

	if c.StreamHeartbeatMultiplier < 1 {
		return fmt.Errorf("STREAM_HEARTBEAT_MULTIPLIER must be at least 1")
	}

	if c.StreamMaxReconnectAttempts < 0 || c.SyncMaxRetries < 0 || c.SyncConcurrency < 0 {
		return fmt.Errorf("retry and concurrency limits must not be negative")
	}

	if c.EnableControl && c.ControlAPIKeys == "" {
		return fmt.Errorf("CONTROL_API_KEYS is required when the control server is enabled")
	}

	return nil
}

// IsProduction returns true when the environment is set to production.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// HeartbeatTimeout is how long the stream may stay silent before it is
// considered dead.
func (c *Config) HeartbeatTimeout() time.Duration {
	return time.Duration(float64(c.StreamHeartbeatInterval) * c.StreamHeartbeatMultiplier)
}

// StreamURL joins the base URL and stream path, switching the scheme to
// ws(s) for the websocket transport.
func (c *Config) StreamURL() string {
	u := c.APIBaseURL + c.StreamPath
	if c.StreamTransport != TransportWebSocket {
		return u
	}

	switch {
	case strings.HasPrefix(u, "https://"):
		return "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		return "ws://" + strings.TrimPrefix(u, "http://")
	}

	return u
}

// ParseControlAPIKeys parses CONTROL_API_KEYS, formatted as
// "user1:ws_<hex>,user2:ws_<hex>".
func (c *Config) ParseControlAPIKeys() ([]auth.APIKey, error) {
	if c.ControlAPIKeys == "" {
		return nil, nil
	}

	keys, err := auth.ParseKeys(c.ControlAPIKeys)
	if err != nil {
		return nil, fmt.Errorf("CONTROL_API_KEYS: %w", err)
	}

	return keys, nil
}
