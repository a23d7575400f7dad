package config

import (
	"errors"
	"fmt"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/UnknownOlympus/janus/internal/auth"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Storage drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMemory   = "memory"
)

// EnvLocal is the development environment, session cookies default to non-secure there.
const EnvLocal = "local"

// Config holds the configuration settings for the application.
type Config struct {
	Env            string          // Env is the current environment: local, development, production.
	Storage        StorageConfig   // Storage selects the client store backend
	Database       PostgresConfig  // Database holds the postgres database configuration
	Telegram       TelegramConfig  // Telegram holds the bot settings
	Redis          RedisConfig     // Redis is used by the login rate limiter, disabled when Addr is empty
	RateLimit      RateLimitConfig // RateLimit bounds login attempts per client IP
	HTTP           HTTPConfig      // HTTP configures the portal server
	MonitoringPort int             // MonitoringPort serves /healthz and /metrics
	Auth           auth.Config     // Auth holds the credential and session settings
}

// StorageConfig selects where clients, codes and sessions live.
type StorageConfig struct {
	Driver     string // Driver is one of postgres, sqlite, memory.
	SQLitePath string // SQLitePath is the database file of the sqlite driver.
}

// PostgresConfig struct holds the configuration details for connecting to a PostgreSQL database.
type PostgresConfig struct {
	Host     string // Host is the database server address.
	Port     string // Port is the database server port.
	User     string // User is the database user.
	Password string // Password is the database user's password.
	Name     string // Name is the name of the database.
	SSLMode  string // SSLMode is passed through to the driver.
	MaxConns int32  // MaxConns caps the pool size.
}

// TelegramConfig holds the bot token and the chats that receive admin notifications.
type TelegramConfig struct {
	Token         string        // Token is an unique telegram bot token, the bot is disabled when empty
	PollerTimeout time.Duration // PollerTimeout is the long polling timeout
	AdminChats    []int64       // AdminChats receive client portal messages
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// RateLimitConfig is the fixed window applied to each login endpoint per client IP.
type RateLimitConfig struct {
	Attempts int
	Window   time.Duration
}

type HTTPConfig struct {
	Port           int            // Port of the portal server
	AdminToken     string         // AdminToken guards the admin API, disabled when empty
	TrustedProxies []netip.Prefix // TrustedProxies may set X-Forwarded-For, single addresses become /32 or /128
}

var defaults = map[string]any{
	"env":                          "production",
	"storage.driver":               DriverPostgres,
	"storage.sqlite_path":          "janus.db",
	"postgres.host":                "localhost",
	"postgres.port":                "5432",
	"postgres.user":                "",
	"postgres.password":            "",
	"postgres.db_name":             "janus",
	"postgres.sslmode":             "disable",
	"postgres.max_conns":           10,
	"telegram.token":               "",
	"telegram.timeout":             "10s",
	"telegram.admin_chats":         "",
	"redis.addr":                   "",
	"redis.password":               "",
	"redis.db":                     0,
	"ratelimit.attempts":           10,
	"ratelimit.window":             "15m",
	"http.port":                    8080,
	"http.admin_token":             "",
	"http.trusted_proxies":         "",
	"monitoring.port":              8081,
	"auth.access_code_style":       auth.StyleNumeric,
	"auth.access_code_attempts":    10,
	"auth.login_code_ttl":          "5m",
	"auth.failure_delay":           "500ms",
	"auth.telegram_auto_provision": false,
	"auth.access_code_session_ttl": "168h",
	"auth.telegram_session_ttl":    "720h",
	"auth.single_session":          true,
	"auth.cookie_name":             "portal_session",
}

// MustLoad loads the configuration and panics on any error.
//
// Values come from, in increasing priority: built-in defaults, the optional YAML file named
// by CONFIG_PATH, and JANUS_ prefixed environment variables (JANUS_AUTH_LOGIN_CODE_TTL for
// auth.login_code_ttl). A .env file in the working directory is loaded first.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err.Error())
	}
	return cfg
}

// Load is MustLoad without the panic.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.SetEnvPrefix("JANUS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath := os.Getenv("CONFIG_PATH"); configPath != "" {
		if _, err := os.Stat(configPath); errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config file does not exist: %s", configPath)
		}
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config error: %w", err)
		}
	}

	// http.secure_cookie still overrides this
	v.SetDefault("http.secure_cookie", v.GetString("env") != EnvLocal)

	p := parser{v: v}
	cfg := &Config{
		Env: v.GetString("env"),
		Storage: StorageConfig{
			Driver:     strings.ToLower(v.GetString("storage.driver")),
			SQLitePath: v.GetString("storage.sqlite_path"),
		},
		Database: PostgresConfig{
			Host:     v.GetString("postgres.host"),
			Port:     v.GetString("postgres.port"),
			User:     v.GetString("postgres.user"),
			Password: v.GetString("postgres.password"),
			Name:     v.GetString("postgres.db_name"),
			SSLMode:  v.GetString("postgres.sslmode"),
			MaxConns: v.GetInt32("postgres.max_conns"),
		},
		Telegram: TelegramConfig{
			Token:         v.GetString("telegram.token"),
			PollerTimeout: p.duration("telegram.timeout"),
			AdminChats:    p.chatIDs("telegram.admin_chats"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		RateLimit: RateLimitConfig{
			Attempts: v.GetInt("ratelimit.attempts"),
			Window:   p.duration("ratelimit.window"),
		},
		HTTP: HTTPConfig{
			Port:           v.GetInt("http.port"),
			AdminToken:     v.GetString("http.admin_token"),
			TrustedProxies: p.prefixes("http.trusted_proxies"),
		},
		MonitoringPort: v.GetInt("monitoring.port"),
		Auth: auth.Config{
			AccessCodeStyle:      strings.ToLower(v.GetString("auth.access_code_style")),
			AccessCodeAttempts:   v.GetInt("auth.access_code_attempts"),
			LoginCodeTTL:         p.duration("auth.login_code_ttl"),
			FailureDelay:         p.duration("auth.failure_delay"),
			AutoProvision:        v.GetBool("auth.telegram_auto_provision"),
			AccessCodeSessionTTL: p.duration("auth.access_code_session_ttl"),
			TelegramSessionTTL:   p.duration("auth.telegram_session_ttl"),
			SingleSession:        v.GetBool("auth.single_session"),
			CookieName:           v.GetString("auth.cookie_name"),
			SecureCookie:         v.GetBool("http.secure_cookie"),
		},
	}
	if p.err != nil {
		return nil, p.err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Storage.Driver {
	case DriverPostgres, DriverSQLite, DriverMemory:
	default:
		return fmt.Errorf("unknown storage driver: %q", c.Storage.Driver)
	}

	switch c.Auth.AccessCodeStyle {
	case auth.StyleNumeric, auth.StyleBase36:
	default:
		return fmt.Errorf("unknown access code style: %q", c.Auth.AccessCodeStyle)
	}

	if c.Auth.AccessCodeAttempts < 1 {
		return errors.New("auth.access_code_attempts must be positive")
	}
	if c.Auth.LoginCodeTTL <= 0 || c.Auth.AccessCodeSessionTTL <= 0 || c.Auth.TelegramSessionTTL <= 0 {
		return errors.New("auth TTLs must be positive")
	}
	if c.Auth.CookieName == "" {
		return errors.New("auth.cookie_name must not be empty")
	}
	if c.Redis.Addr != "" && (c.RateLimit.Attempts < 1 || c.RateLimit.Window <= 0) {
		return errors.New("ratelimit.attempts and ratelimit.window must be positive")
	}
	return nil
}

// parser keeps the first conversion error so Load can report it once.
type parser struct {
	v   *viper.Viper
	err error
}

func (p *parser) duration(key string) time.Duration {
	d, err := time.ParseDuration(p.v.GetString(key))
	if err != nil && p.err == nil {
		p.err = fmt.Errorf("failed to parse %s from configuration: %w", key, err)
	}
	return d
}

// chatIDs accepts a YAML list or a comma/space separated string.
func (p *parser) chatIDs(key string) []int64 {
	var ids []int64
	for _, item := range p.v.GetStringSlice(key) {
		for _, field := range strings.FieldsFunc(item, func(r rune) bool { return r == ',' || r == ' ' }) {
			id, err := strconv.ParseInt(field, 10, 64)
			if err != nil {
				if p.err == nil {
					p.err = fmt.Errorf("failed to parse %s from configuration: %w", key, err)
				}
				return nil
			}
			ids = append(ids, id)
		}
	}
	return ids
}

// prefixes accepts CIDRs or bare addresses in the same list forms as chatIDs.
func (p *parser) prefixes(key string) []netip.Prefix {
	var out []netip.Prefix
	for _, item := range p.v.GetStringSlice(key) {
		for _, field := range strings.FieldsFunc(item, func(r rune) bool { return r == ',' || r == ' ' }) {
			prefix, err := parsePrefix(field)
			if err != nil {
				if p.err == nil {
					p.err = fmt.Errorf("failed to parse %s from configuration: %w", key, err)
				}
				return nil
			}
			out = append(out, prefix)
		}
	}
	return out
}

func parsePrefix(s string) (netip.Prefix, error) {
	if strings.Contains(s, "/") {
		prefix, err := netip.ParsePrefix(s)
		if err != nil {
			return netip.Prefix{}, err
		}
		return prefix.Masked(), nil
	}
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Prefix{}, err
	}
	addr = addr.Unmap()
	return netip.PrefixFrom(addr, addr.BitLen()), nil
}
