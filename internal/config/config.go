// Package config loads the process configuration: a TOML file named by
// CONFIG_PATH plus HOST, PORT and BASE_URL from the environment or flags.
package config

import (
	"bytes"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"

	"github.com/quiestce/quiestce/directory"
	"github.com/quiestce/quiestce/internal/util"
	"github.com/quiestce/quiestce/security"
	"github.com/quiestce/quiestce/server"
	"github.com/quiestce/quiestce/storage/memory"
	"github.com/quiestce/quiestce/storage/valkey"
)

// Viper keys. Each is also read from the upper-cased environment variable.
const (
	KeyHost       = "host"
	KeyPort       = "port"
	KeyBaseURL    = "base_url"
	KeyConfigPath = "config_path"
)

// Defaults
const (
	DefaultHost       = "127.0.0.1"
	DefaultPort       = 3010
	DefaultConfigPath = "config.toml"
)

// Storage backends
const (
	BackendMemory = "memory"
	BackendValkey = "valkey"
)

// Config is the loaded process configuration
type Config struct {
	Host    string
	Port    int
	BaseURL string

	// Path is the file the configuration was read from
	Path string

	File
}

// File is the TOML configuration file
type File struct {
	OAuth        OAuth        `toml:"oauth"`
	JSONWebToken JSONWebToken `toml:"jsonwebtoken"`
	Cache        Cache        `toml:"cache"`
	Storage      Storage      `toml:"storage"`
	Security     Security     `toml:"security"`
	Users        []User       `toml:"users"`
}

// OAuth describes the registered client
type OAuth struct {
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
	RedirectURI  string `toml:"redirect_uri"`
	EnforcePKCE  bool   `toml:"enforce_pkce"`
}

// JSONWebToken configures token signing
type JSONWebToken struct {
	Secret string `toml:"secret"`

	// Duration is the token lifetime in seconds (default: 3600)
	Duration int64 `toml:"duration"`
}

// Cache sizes the transaction buckets
type Cache struct {
	Pending Bucket `toml:"pending"`
	Grant   Bucket `toml:"grant"`
}

// Bucket sizes one bucket. Zero values take the store defaults.
type Bucket struct {
	Capacity int `toml:"capacity"`

	// TTL is in seconds
	TTL int64 `toml:"ttl"`
}

// Storage selects the transaction store backend
type Storage struct {
	Backend string `toml:"backend"`
	Valkey  Valkey `toml:"valkey"`
}

// Valkey configures the valkey backend
type Valkey struct {
	Address  string `toml:"address"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
	Prefix   string `toml:"prefix"`
	TLS      bool   `toml:"tls"`

	// EncryptionKey is a base64 AES-256 key. Empty disables encryption.
	EncryptionKey string `toml:"encryption_key"`
}

// Security holds transport security settings
type Security struct {
	TrustProxy        bool `toml:"trust_proxy"`
	TrustedProxyCount int  `toml:"trusted_proxy_count"`

	// RateLimit is requests per second per client IP. Zero takes the
	// default, a negative value disables limiting.
	RateLimit      float64 `toml:"rate_limit"`
	RateLimitBurst int     `toml:"rate_limit_burst"`

	DisableAudit bool `toml:"disable_audit"`
}

// User is one identity of the directory
type User struct {
	ID    string `toml:"id"`
	Name  string `toml:"name"`
	Email string `toml:"email"`
}

// NewViper returns a viper instance with defaults set and the environment
// bound. Flags are bound by the caller.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetDefault(KeyHost, DefaultHost)
	v.SetDefault(KeyPort, DefaultPort)
	v.SetDefault(KeyConfigPath, DefaultConfigPath)
	v.AutomaticEnv()
	return v
}

// Load reads and validates the configuration
func Load(v *viper.Viper) (*Config, error) {
	path := v.GetString(KeyConfigPath)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration: %w", err)
	}

	file, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	cfg := &Config{
		Host:    v.GetString(KeyHost),
		Port:    v.GetInt(KeyPort),
		BaseURL: v.GetString(KeyBaseURL),
		Path:    path,
		File:    *file,
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://" + cfg.Addr()
	}
	cfg.BaseURL = util.NormalizeURL(cfg.BaseURL)
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = BackendMemory
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes a TOML configuration file. Unknown keys are rejected.
func Parse(data []byte) (*File, error) {
	var f File
	dec := toml.NewDecoder(bytes.NewReader(data)).DisallowUnknownFields()
	if err := dec.Decode(&f); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return nil, fmt.Errorf("unknown configuration keys:\n%s", strict.String())
		}
		return nil, err
	}
	return &f, nil
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	if c.OAuth.ClientID == "" {
		return fmt.Errorf("oauth.client_id is required")
	}
	if c.OAuth.ClientSecret == "" {
		return fmt.Errorf("oauth.client_secret is required")
	}
	if c.OAuth.RedirectURI == "" {
		return fmt.Errorf("oauth.redirect_uri is required")
	}
	if c.JSONWebToken.Secret == "" {
		return fmt.Errorf("jsonwebtoken.secret is required")
	}
	if c.JSONWebToken.Duration < 0 {
		return fmt.Errorf("jsonwebtoken.duration must not be negative")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port %d is out of range", c.Port)
	}

	seen := make(map[uuid.UUID]bool, len(c.Users))
	for i, u := range c.Users {
		id, err := uuid.Parse(u.ID)
		if err != nil {
			return fmt.Errorf("users[%d]: invalid id %q: %w", i, u.ID, err)
		}
		if seen[id] {
			return fmt.Errorf("users[%d]: duplicate id %s", i, id)
		}
		seen[id] = true
	}

	switch c.Storage.Backend {
	case BackendMemory, "":
	case BackendValkey:
		if c.Storage.Valkey.Address == "" {
			return fmt.Errorf("storage.valkey.address is required for the valkey backend")
		}
		if c.Storage.Valkey.EncryptionKey != "" {
			if _, err := security.KeyFromBase64(c.Storage.Valkey.EncryptionKey); err != nil {
				return fmt.Errorf("storage.valkey.encryption_key: %w", err)
			}
		}
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}

	return nil
}

// Addr is the listen address
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Identities converts the users list into directory identities
func (c *Config) Identities() ([]directory.Identity, error) {
	out := make([]directory.Identity, 0, len(c.Users))
	for _, u := range c.Users {
		id, err := uuid.Parse(u.ID)
		if err != nil {
			return nil, fmt.Errorf("invalid user id %q: %w", u.ID, err)
		}
		out = append(out, directory.Identity{ID: id, Name: u.Name, Email: u.Email})
	}
	return out, nil
}

// ServerConfig returns the engine configuration
func (c *Config) ServerConfig() *server.Config {
	return &server.Config{
		Client: server.ClientConfig{
			ID:          c.OAuth.ClientID,
			Secret:      c.OAuth.ClientSecret,
			RedirectURI: c.OAuth.RedirectURI,
		},
		TokenSecret:   []byte(c.JSONWebToken.Secret),
		TokenLifetime: seconds(c.JSONWebToken.Duration),
		EnforcePKCE:   c.OAuth.EnforcePKCE,
	}
}

// MemoryConfig returns the in-process store configuration
func (c *Config) MemoryConfig(logger *slog.Logger) memory.Config {
	return memory.Config{
		Pending: memory.BucketConfig{Capacity: c.Cache.Pending.Capacity, TTL: seconds(c.Cache.Pending.TTL)},
		Grants:  memory.BucketConfig{Capacity: c.Cache.Grant.Capacity, TTL: seconds(c.Cache.Grant.TTL)},
		Logger:  logger,
	}
}

// ValkeyConfig returns the valkey store configuration. TLS uses the system
// roots when enabled.
func (c *Config) ValkeyConfig(logger *slog.Logger) (valkey.Config, error) {
	vc := c.Storage.Valkey
	cfg := valkey.Config{
		Address:    vc.Address,
		Password:   vc.Password,
		DB:         vc.DB,
		KeyPrefix:  vc.Prefix,
		PendingTTL: seconds(c.Cache.Pending.TTL),
		GrantTTL:   seconds(c.Cache.Grant.TTL),
		Logger:     logger,
	}
	if vc.TLS {
		cfg.TLS = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	if vc.EncryptionKey != "" {
		key, err := security.KeyFromBase64(vc.EncryptionKey)
		if err != nil {
			return valkey.Config{}, fmt.Errorf("invalid encryption key: %w", err)
		}
		enc, err := security.NewEncryptor(key)
		if err != nil {
			return valkey.Config{}, err
		}
		cfg.Encryptor = enc
	}
	return cfg, nil
}

func seconds(n int64) time.Duration {
	return time.Duration(n) * time.Second
}
