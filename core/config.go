package core

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

const (
	defaultGraphVersion     = "v22.0"
	defaultStateTTL         = 15 * time.Minute
	minEncryptionSecretBits = 256
)

// StoreDriverMongo selects the Mongo user store; every other driver is SQL.
const StoreDriverMongo = "mongo"

type OAuthConfig struct {
	StateTTL     time.Duration `koanf:"state_ttl" mapstructure:"state_ttl"`
	GraphVersion string        `koanf:"graph_version" mapstructure:"graph_version"`
}

type SecurityConfig struct {
	EncryptionSecret string `koanf:"encryption_secret" mapstructure:"encryption_secret"`
	KeyID            string `koanf:"key_id" mapstructure:"key_id"`
}

type ProviderConfig struct {
	Enabled     bool     `koanf:"enabled" mapstructure:"enabled"`
	AppID       string   `koanf:"app_id" mapstructure:"app_id"`
	AppSecret   string   `koanf:"app_secret" mapstructure:"app_secret"`
	RedirectURI string   `koanf:"redirect_uri" mapstructure:"redirect_uri"`
	VerifyToken string   `koanf:"verify_token" mapstructure:"verify_token"`
	Scopes      []string `koanf:"scopes" mapstructure:"scopes"`
	// VerifySignature requires X-Hub-Signature-256 on webhook deliveries.
	VerifySignature bool `koanf:"verify_signature" mapstructure:"verify_signature"`
}

type StoreConfig struct {
	Driver   string        `koanf:"driver" mapstructure:"driver"`
	DSN      string        `koanf:"dsn" mapstructure:"dsn"`
	MongoURI string        `koanf:"mongo_uri" mapstructure:"mongo_uri"`
	Database string        `koanf:"database" mapstructure:"database"`
	// CacheTTL enables the SQL read-through user cache. The cache lives in
	// one process and is only evicted by that process's writes, so leave it
	// at zero when more than one worker shares the database.
	CacheTTL time.Duration `koanf:"cache_ttl" mapstructure:"cache_ttl"`
}

// IsMongoDriver reports whether store.driver names the Mongo backend.
func (c StoreConfig) IsMongoDriver() bool {
	switch strings.ToLower(strings.TrimSpace(c.Driver)) {
	case StoreDriverMongo, "mongodb":
		return true
	}
	return false
}

type SessionConfig struct {
	Backend    string        `koanf:"backend" mapstructure:"backend"`
	RedisAddr  string        `koanf:"redis_addr" mapstructure:"redis_addr"`
	TTL        time.Duration `koanf:"ttl" mapstructure:"ttl"`
	CookieName string        `koanf:"cookie_name" mapstructure:"cookie_name"`
}

// JobsConfig selects the notification queue backend.
type JobsConfig struct {
	Backend     string        `koanf:"backend" mapstructure:"backend"`
	RedisAddr   string        `koanf:"redis_addr" mapstructure:"redis_addr"`
	Queue       string        `koanf:"queue" mapstructure:"queue"`
	MaxAttempts int           `koanf:"max_attempts" mapstructure:"max_attempts"`
	MaxDelay    time.Duration `koanf:"max_delay" mapstructure:"max_delay"`
}

type HTTPConfig struct {
	Addr string `koanf:"addr" mapstructure:"addr"`
}

type Config struct {
	ServiceName string         `koanf:"service_name" mapstructure:"service_name"`
	OAuth       OAuthConfig    `koanf:"oauth" mapstructure:"oauth"`
	Security    SecurityConfig `koanf:"security" mapstructure:"security"`
	Facebook    ProviderConfig `koanf:"facebook" mapstructure:"facebook"`
	WhatsApp    ProviderConfig `koanf:"whatsapp" mapstructure:"whatsapp"`
	Store       StoreConfig    `koanf:"store" mapstructure:"store"`
	Session     SessionConfig  `koanf:"session" mapstructure:"session"`
	Jobs        JobsConfig     `koanf:"jobs" mapstructure:"jobs"`
	HTTP        HTTPConfig     `koanf:"http" mapstructure:"http"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName: "connections",
		OAuth: OAuthConfig{
			StateTTL:     defaultStateTTL,
			GraphVersion: defaultGraphVersion,
		},
		Security: SecurityConfig{
			KeyID: "app-key",
		},
		Store: StoreConfig{
			Driver:   "sqlite3",
			DSN:      "file:connections.db?cache=shared&_foreign_keys=on",
			Database: "connections",
		},
		Session: SessionConfig{
			Backend:    "memory",
			TTL:        defaultStateTTL,
			CookieName: "connections_sid",
		},
		Jobs: JobsConfig{
			Backend:     "memory",
			Queue:       "connections:jobs",
			MaxAttempts: 5,
			MaxDelay:    5 * time.Minute,
		},
		HTTP: HTTPConfig{
			Addr: ":4000",
		},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if c.OAuth.StateTTL < 0 {
		return fmt.Errorf("core: oauth.state_ttl must not be negative")
	}
	switch strings.ToLower(strings.TrimSpace(c.Store.Driver)) {
	case "", "sqlite", "sqlite3", "postgres", "postgresql", "pg", StoreDriverMongo, "mongodb":
	default:
		return fmt.Errorf("core: store.driver %q is invalid", c.Store.Driver)
	}
	switch strings.TrimSpace(c.Session.Backend) {
	case "", "memory", "redis":
	default:
		return fmt.Errorf("core: session.backend %q is invalid", c.Session.Backend)
	}
	switch strings.TrimSpace(c.Jobs.Backend) {
	case "", "memory", "redis":
	default:
		return fmt.Errorf("core: jobs.backend %q is invalid", c.Jobs.Backend)
	}
	if c.Jobs.MaxAttempts < 0 {
		return fmt.Errorf("core: jobs.max_attempts must not be negative")
	}
	return nil
}

// ValidateForServe adds the checks that only matter for a running server:
// the encryption secret must be present before anything touches storage.
func (c Config) ValidateForServe() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if _, err := SecretKeyMaterial(c.Security.EncryptionSecret); err != nil {
		return err
	}
	for name, provider := range map[string]ProviderConfig{"facebook": c.Facebook, "whatsapp": c.WhatsApp} {
		if !provider.Enabled {
			continue
		}
		if strings.TrimSpace(provider.AppID) == "" {
			return fmt.Errorf("core: %s.app_id is required", name)
		}
		if strings.TrimSpace(provider.AppSecret) == "" {
			return fmt.Errorf("core: %s.app_secret is required", name)
		}
		if strings.TrimSpace(provider.RedirectURI) == "" {
			return fmt.Errorf("core: %s.redirect_uri is required", name)
		}
	}
	return nil
}

// SecretKeyMaterial decodes the configured encryption secret. Hex input (as
// produced by generate-secret) is decoded; anything else is used as raw bytes.
func SecretKeyMaterial(secret string) ([]byte, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, fmt.Errorf("core: security.encryption_secret is required")
	}
	material := []byte(secret)
	if decoded, err := hex.DecodeString(secret); err == nil {
		material = decoded
	}
	if len(material)*8 < minEncryptionSecretBits {
		return nil, fmt.Errorf("core: security.encryption_secret must carry at least %d bits", minEncryptionSecretBits)
	}
	return material, nil
}
