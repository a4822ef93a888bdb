package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values applied when fields are absent from the config file.
const (
	DefaultPollInterval    = 30 * time.Second
	DefaultFetchTimeout    = 10 * time.Second
	DefaultNotifyTimeout   = 20 * time.Second
	DefaultStoreTimeout    = 5 * time.Second
	DefaultShutdownTimeout = 15 * time.Second

	DefaultFeedBaseURL  = "https://status.plaid.com"
	DefaultUptimePath   = "/institutions/uptime"
	DefaultTimelinePath = "/issues/timeline"

	DefaultNotifyType     = "slack"
	DefaultNotifyURLEnv   = "SLACK_WEBHOOK_URL"
	DefaultMaxRetries     = 2
	DefaultInitialBackoff = 500 * time.Millisecond
	DefaultMaxBackoff     = 5 * time.Second

	DefaultStoreBackend = "file"
	DefaultStorePath    = "statuswatch-state.json"
	DefaultRedisAddr    = "localhost:6379"
	DefaultRedisKey     = "statuswatch:observed_state"
	DefaultPostgresEnv  = "STATUSWATCH_POSTGRES_DSN"

	DefaultListenAddr = ":9120"
)

// Config is the top-level watcher configuration.
// Fields map 1:1 to the YAML keys.
type Config struct {
	Watcher WatcherConfig `yaml:"watcher"`
	Feed    FeedConfig    `yaml:"feed"`
	Notify  NotifyConfig  `yaml:"notify"`
	Store   StoreConfig   `yaml:"store"`
	HTTP    HTTPConfig    `yaml:"http"`
}

// WatcherConfig holds the poll loop timings.
type WatcherConfig struct {
	// PollInterval controls how often the feed is polled.
	PollInterval time.Duration `yaml:"poll_interval"`

	// FetchTimeout bounds fetching both feed payloads in one cycle.
	FetchTimeout time.Duration `yaml:"fetch_timeout"`

	// NotifyTimeout bounds delivery of one alert batch, retries included.
	NotifyTimeout time.Duration `yaml:"notify_timeout"`

	// StoreTimeout bounds loading or saving the observed state.
	StoreTimeout time.Duration `yaml:"store_timeout"`

	// ShutdownTimeout is how long an in-flight cycle may run after a
	// shutdown signal before it is aborted.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// FeedConfig describes the upstream status feed.
type FeedConfig struct {
	BaseURL      string     `yaml:"base_url"`
	UptimePath   string     `yaml:"uptime_path"`
	TimelinePath string     `yaml:"timeline_path"`
	Auth         AuthConfig `yaml:"auth"`
	TLS          TLSConfig  `yaml:"tls"`
}

// UptimeURL returns the absolute uptime endpoint.
func (f FeedConfig) UptimeURL() string { return joinURL(f.BaseURL, f.UptimePath) }

// TimelineURL returns the absolute timeline endpoint.
func (f FeedConfig) TimelineURL() string { return joinURL(f.BaseURL, f.TimelinePath) }

func joinURL(base, path string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
}

// AuthConfig specifies how requests to the feed are authenticated.
type AuthConfig struct {
	// Mode is one of: apikey | bearer | basic | none.
	Mode string `yaml:"mode"`

	// Header is the HTTP header carrying the key when Mode == "apikey".
	Header string `yaml:"header"`
	// KeyEnv names the environment variable holding the API key.
	KeyEnv string `yaml:"key_env"`

	// TokenEnv names the environment variable holding the bearer token.
	TokenEnv string `yaml:"token_env"`

	// Username is the literal basic-auth username.
	Username string `yaml:"username"`
	// PasswordEnv names the environment variable holding the password.
	PasswordEnv string `yaml:"password_env"`
}

// Key returns the API key value resolved from the environment.
// Returns empty string if KeyEnv is unset or the variable is not found.
func (a AuthConfig) Key() string { return lookupEnv(a.KeyEnv) }

// Token returns the bearer token value resolved from the environment.
func (a AuthConfig) Token() string { return lookupEnv(a.TokenEnv) }

// Password returns the basic-auth password resolved from the environment.
func (a AuthConfig) Password() string { return lookupEnv(a.PasswordEnv) }

// TLSConfig holds TLS dial options for the feed.
type TLSConfig struct {
	// InsecureSkipVerify disables TLS certificate verification.
	// Only use this for internal CAs in development environments.
	InsecureSkipVerify bool `yaml:"insecure_skip_verify"`
}

// NotifyConfig selects the single notification channel.
type NotifyConfig struct {
	// Type is one of: slack | teams | http | kafka | log.
	Type string `yaml:"type"`

	// URL is a literal webhook URL. It takes precedence over URLEnv.
	URL string `yaml:"url"`
	// URLEnv names the environment variable holding the webhook URL.
	URLEnv string `yaml:"url_env"`

	Kafka KafkaConfig `yaml:"kafka"`
	Retry RetryConfig `yaml:"retry"`
}

// WebhookURL returns the webhook target: URL if set, otherwise the value
// of the URLEnv environment variable.
func (n NotifyConfig) WebhookURL() string {
	if n.URL != "" {
		return n.URL
	}
	return lookupEnv(n.URLEnv)
}

// KafkaConfig configures the kafka notifier.
type KafkaConfig struct {
	// Brokers is a comma-separated broker list.
	Brokers string `yaml:"brokers"`
	Topic   string `yaml:"topic"`
}

// RetryConfig bounds redelivery of a failed batch.
type RetryConfig struct {
	MaxRetries     int           `yaml:"max_retries"`
	InitialBackoff time.Duration `yaml:"initial_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff"`
}

// StoreConfig selects where the observed state is persisted.
type StoreConfig struct {
	// Backend is one of: memory | file | sqlite | redis | postgres.
	Backend string `yaml:"backend"`

	// Path is the file path for the file and sqlite backends.
	Path string `yaml:"path"`

	Redis    RedisConfig    `yaml:"redis"`
	Postgres PostgresConfig `yaml:"postgres"`
}

// RedisConfig configures the redis backend.
type RedisConfig struct {
	Addr        string `yaml:"addr"`
	PasswordEnv string `yaml:"password_env"`
	DB          int    `yaml:"db"`
	Key         string `yaml:"key"`
}

// Password returns the redis password resolved from the environment.
func (r RedisConfig) Password() string { return lookupEnv(r.PasswordEnv) }

// PostgresConfig configures the postgres backend.
type PostgresConfig struct {
	// DSNEnv names the environment variable holding the connection string.
	DSNEnv string `yaml:"dsn_env"`
}

// DSN returns the connection string resolved from the environment.
func (p PostgresConfig) DSN() string { return lookupEnv(p.DSNEnv) }

// HTTPConfig configures the read-only status API.
type HTTPConfig struct {
	// ListenAddr is the address the status API binds to. Empty disables it.
	ListenAddr string `yaml:"listen_addr"`
}

// Overrides carries values from flags or environment variables. Zero
// fields leave the file value in place.
type Overrides struct {
	PollInterval time.Duration
	FeedBaseURL  string
	NotifyType   string
	NotifyURL    string
	StoreBackend string
	StorePath    string
	ListenAddr   *string
}

// Apply copies every non-zero override onto cfg.
func (o Overrides) Apply(cfg *Config) {
	if o.PollInterval > 0 {
		cfg.Watcher.PollInterval = o.PollInterval
	}
	if o.FeedBaseURL != "" {
		cfg.Feed.BaseURL = o.FeedBaseURL
	}
	if o.NotifyType != "" {
		cfg.Notify.Type = o.NotifyType
	}
	if o.NotifyURL != "" {
		cfg.Notify.URL = o.NotifyURL
	}
	if o.StoreBackend != "" {
		cfg.Store.Backend = o.StoreBackend
	}
	if o.StorePath != "" {
		cfg.Store.Path = o.StorePath
	}
	if o.ListenAddr != nil {
		cfg.HTTP.ListenAddr = *o.ListenAddr
	}
}

// Load builds the configuration: defaults, then the YAML file at path (if
// path is non-empty), then overrides. The result is validated.
func Load(path string, o Overrides) (*Config, error) {
	var data []byte
	if path != "" {
		var err error
		if data, err = os.ReadFile(path); err != nil {
			return nil, fmt.Errorf("config: read file: %w", err)
		}
	}
	return parse(data, o)
}

// parse applies data (possibly empty) and overrides on top of the defaults.
func parse(data []byte, o Overrides) (*Config, error) {
	cfg := Default()
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse yaml: %w", err)
		}
	}

	o.Apply(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// Default returns a Config pre-populated with default values.
func Default() *Config {
	return &Config{
		Watcher: WatcherConfig{
			PollInterval:    DefaultPollInterval,
			FetchTimeout:    DefaultFetchTimeout,
			NotifyTimeout:   DefaultNotifyTimeout,
			StoreTimeout:    DefaultStoreTimeout,
			ShutdownTimeout: DefaultShutdownTimeout,
		},
		Feed: FeedConfig{
			BaseURL:      DefaultFeedBaseURL,
			UptimePath:   DefaultUptimePath,
			TimelinePath: DefaultTimelinePath,
		},
		Notify: NotifyConfig{
			Type:   DefaultNotifyType,
			URLEnv: DefaultNotifyURLEnv,
			Retry: RetryConfig{
				MaxRetries:     DefaultMaxRetries,
				InitialBackoff: DefaultInitialBackoff,
				MaxBackoff:     DefaultMaxBackoff,
			},
		},
		Store: StoreConfig{
			Backend: DefaultStoreBackend,
			Path:    DefaultStorePath,
			Redis: RedisConfig{
				Addr: DefaultRedisAddr,
				Key:  DefaultRedisKey,
			},
			Postgres: PostgresConfig{DSNEnv: DefaultPostgresEnv},
		},
		HTTP: HTTPConfig{ListenAddr: DefaultListenAddr},
	}
}

// validate checks required fields and structural constraints.
func validate(cfg *Config) error {
	w := cfg.Watcher
	if w.PollInterval <= 0 {
		return fmt.Errorf("watcher.poll_interval must be positive")
	}
	if w.FetchTimeout <= 0 || w.NotifyTimeout <= 0 || w.StoreTimeout <= 0 {
		return fmt.Errorf("watcher timeouts must be positive")
	}
	if w.ShutdownTimeout < 0 {
		return fmt.Errorf("watcher.shutdown_timeout must not be negative")
	}

	u, err := url.Parse(cfg.Feed.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("feed.base_url %q must be an absolute http(s) URL", cfg.Feed.BaseURL)
	}
	switch cfg.Feed.Auth.Mode {
	case "apikey":
		if cfg.Feed.Auth.Header == "" {
			return fmt.Errorf("feed.auth.header is required for apikey mode")
		}
	case "bearer", "basic", "none", "":
	default:
		return fmt.Errorf("feed.auth: unknown mode %q", cfg.Feed.Auth.Mode)
	}

	n := cfg.Notify
	switch n.Type {
	case "slack", "teams", "http":
		if n.WebhookURL() == "" {
			return fmt.Errorf("notify: %s webhook url is required (set notify.url or $%s)", n.Type, n.URLEnv)
		}
	case "kafka":
		if strings.TrimSpace(n.Kafka.Brokers) == "" || n.Kafka.Topic == "" {
			return fmt.Errorf("notify.kafka: brokers and topic are required")
		}
	case "log":
	default:
		return fmt.Errorf("notify: unknown type %q", n.Type)
	}
	if n.Retry.MaxRetries < 0 {
		return fmt.Errorf("notify.retry.max_retries must not be negative")
	}

	switch cfg.Store.Backend {
	case "memory":
	case "file", "sqlite":
		if cfg.Store.Path == "" {
			return fmt.Errorf("store.path is required for the %s backend", cfg.Store.Backend)
		}
	case "redis":
		if cfg.Store.Redis.Addr == "" || cfg.Store.Redis.Key == "" {
			return fmt.Errorf("store.redis: addr and key are required")
		}
	case "postgres":
		if cfg.Store.Postgres.DSN() == "" {
			return fmt.Errorf("store.postgres: $%s is empty", cfg.Store.Postgres.DSNEnv)
		}
	default:
		return fmt.Errorf("store: unknown backend %q", cfg.Store.Backend)
	}
	return nil
}

func lookupEnv(name string) string {
	if name == "" {
		return ""
	}
	return os.Getenv(name)
}
