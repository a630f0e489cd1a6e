package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

const DefaultPath = "~/.mutt-ldap.toml"

type ConnectionConfig struct {
	Server             string `toml:"server"`
	Port               int    `toml:"port"`
	SSL                bool   `toml:"ssl"`
	StartTLS           bool   `toml:"starttls"`
	BaseDN             string `toml:"basedn"`
	InsecureSkipVerify bool   `toml:"tls_insecure_skip_verify"`
	// DialTimeout is a Go duration string such as "10s". Empty or "0"
	// disables the timeout.
	DialTimeout string `toml:"dial_timeout"`
}

type AuthConfig struct {
	User     string `toml:"user"`
	Password string `toml:"password"`
	GSSAPI   bool   `toml:"gssapi"`
	Krb5Conf string `toml:"krb5_conf"`
}

type QueryConfig struct {
	Filter       string `toml:"filter"`
	SearchFields string `toml:"search_fields"`
	SizeLimit    int    `toml:"size_limit"`
	TimeLimit    int    `toml:"time_limit"`
}

type ResultsConfig struct {
	OptionalColumn string `toml:"optional_column"`
}

type CacheConfig struct {
	Enable        bool   `toml:"enable"`
	Path          string `toml:"path"`
	LongevityDays int    `toml:"longevity_days"`
}

type LogConfig struct {
	Level string `toml:"level"`
}

// Config is built once at startup and handed to each component. Nothing in
// the tree mutates it after Load returns.
type Config struct {
	Connection ConnectionConfig `toml:"connection"`
	Auth       AuthConfig       `toml:"auth"`
	Query      QueryConfig      `toml:"query"`
	Results    ResultsConfig    `toml:"results"`
	Cache      CacheConfig      `toml:"cache"`
	Log        LogConfig        `toml:"log"`

	// Source is the file the config was read from, empty when only
	// defaults and environment were used.
	Source string `toml:"-"`
}

func Default() *Config {
	return &Config{
		Connection: ConnectionConfig{
			Server:             "domaincontroller.yourdomain.com",
			Port:               389,
			BaseDN:             "ou=x co.,dc=example,dc=net",
			DialTimeout:        "10s",
		},
		Auth: AuthConfig{
			Krb5Conf: "/etc/krb5.conf",
		},
		Query: QueryConfig{
			SearchFields: "cn displayName uid mail",
		},
		Cache: CacheConfig{
			Enable: true,
			Path:   "~/.mutt-ldap.cache",
		},
		Log: LogConfig{
			Level: "warn",
		},
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// Load layers defaults, the TOML file at path and MUTT_LDAP_* environment
// overrides. An empty path falls back to $MUTT_LDAP_CONFIG, then DefaultPath.
// A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = getenv("MUTT_LDAP_CONFIG", DefaultPath)
	}
	path = ExpandHome(path)

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
		cfg.Source = path
	case errors.Is(err, fs.ErrNotExist):
	default:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	cfg.Cache.Path = ExpandHome(cfg.Cache.Path)
	cfg.Auth.Krb5Conf = ExpandHome(cfg.Auth.Krb5Conf)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	cfg.Connection.Server = getenv("MUTT_LDAP_SERVER", cfg.Connection.Server)
	cfg.Connection.BaseDN = getenv("MUTT_LDAP_BASEDN", cfg.Connection.BaseDN)
	cfg.Auth.User = getenv("MUTT_LDAP_USER", cfg.Auth.User)
	cfg.Auth.Password = getenv("MUTT_LDAP_PASSWORD", cfg.Auth.Password)
	cfg.Cache.Path = getenv("MUTT_LDAP_CACHE_PATH", cfg.Cache.Path)
	cfg.Log.Level = getenv("MUTT_LDAP_LOG_LEVEL", cfg.Log.Level)

	if v := os.Getenv("MUTT_LDAP_PORT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("MUTT_LDAP_PORT: %w", err)
		}
		cfg.Connection.Port = n
	}
	return nil
}

func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Connection.Server) == "" {
		errs = append(errs, errors.New("connection.server is empty"))
	}
	if c.Connection.Port < 1 || c.Connection.Port > 65535 {
		errs = append(errs, fmt.Errorf("connection.port %d out of range", c.Connection.Port))
	}
	if strings.TrimSpace(c.Connection.BaseDN) == "" {
		errs = append(errs, errors.New("connection.basedn is empty"))
	}
	if len(c.Fields()) == 0 {
		errs = append(errs, errors.New("query.search_fields is empty"))
	}
	if c.Query.SizeLimit < 0 || c.Query.TimeLimit < 0 {
		errs = append(errs, errors.New("query limits must not be negative"))
	}
	if d, err := parseTimeout(c.Connection.DialTimeout); err != nil {
		errs = append(errs, fmt.Errorf("connection.dial_timeout: %w", err))
	} else if d < 0 {
		errs = append(errs, errors.New("connection.dial_timeout must not be negative"))
	}
	if c.Cache.LongevityDays < 0 {
		errs = append(errs, errors.New("cache.longevity_days must not be negative"))
	}
	if c.Cache.Enable && strings.TrimSpace(c.Cache.Path) == "" {
		errs = append(errs, errors.New("cache.path is empty"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Fields returns the space-separated search field list.
func (c *Config) Fields() []string {
	return strings.Fields(c.Query.SearchFields)
}

func (c *Config) URL() string {
	scheme := "ldap"
	if c.Connection.SSL {
		scheme = "ldaps"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, c.Connection.Server, c.Connection.Port)
}

func (c *Config) DialTimeout() time.Duration {
	d, err := parseTimeout(c.Connection.DialTimeout)
	if err != nil || d < 0 {
		return 0
	}
	return d
}

func parseTimeout(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "0" {
		return 0, nil
	}
	return time.ParseDuration(s)
}

func (c *Config) CacheLongevity() time.Duration {
	return time.Duration(c.Cache.LongevityDays) * 24 * time.Hour
}

func ExpandHome(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~"))
}
