package config

import (
	"encoding/base64"
	"fmt"
	"os"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server  ServerConfig  `yaml:"server" envconfig:"SERVER"`
	Storage StorageConfig `yaml:"storage" envconfig:"STORAGE"`
	Session SessionConfig `yaml:"session" envconfig:"SESSION"`
	Logging LoggingConfig `yaml:"logging" envconfig:"LOGGING"`
	JWT     JWTConfig     `yaml:"jwt" envconfig:"JWT"`
}

// ServerConfig contains HTTP server and relying-party configuration
type ServerConfig struct {
	Host     string `yaml:"host" envconfig:"HOST"`
	Port     int    `yaml:"port" envconfig:"PORT"`
	RPID     string `yaml:"rp_id" envconfig:"RP_ID"`
	RPOrigin string `yaml:"rp_origin" envconfig:"RP_ORIGIN"`
	RPName   string `yaml:"rp_name" envconfig:"RP_NAME"`

	// AndroidAPKKeyHash is the base64url SHA-256 of the Android app signing
	// key. When set, requests from the native app resolve to an
	// android:apk-key-hash origin instead of RPOrigin.
	AndroidAPKKeyHash string `yaml:"android_apk_key_hash" envconfig:"ANDROID_APK_KEY_HASH"`
	// AndroidUserAgent is the user-agent substring identifying the native app.
	AndroidUserAgent string `yaml:"android_user_agent" envconfig:"ANDROID_USER_AGENT"`

	AuthRateLimit AuthRateLimitConfig `yaml:"auth_rate_limit" envconfig:"AUTH_RATE_LIMIT"`
}

// AuthRateLimitConfig contains rate limiting for authentication endpoints
type AuthRateLimitConfig struct {
	Enabled        bool `yaml:"enabled" envconfig:"ENABLED"`
	MaxAttempts    int  `yaml:"max_attempts" envconfig:"MAX_ATTEMPTS"`
	WindowSeconds  int  `yaml:"window_seconds" envconfig:"WINDOW_SECONDS"`
	LockoutSeconds int  `yaml:"lockout_seconds" envconfig:"LOCKOUT_SECONDS"`
}

// SetDefaults fills in zero values with sensible defaults
func (c *AuthRateLimitConfig) SetDefaults() {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 10
	}
	if c.WindowSeconds <= 0 {
		c.WindowSeconds = 60
	}
	if c.LockoutSeconds <= 0 {
		c.LockoutSeconds = 300
	}
}

// StorageConfig contains identity storage configuration
type StorageConfig struct {
	Type    string        `yaml:"type" envconfig:"TYPE"` // memory, mongodb
	MongoDB MongoDBConfig `yaml:"mongodb" envconfig:"MONGODB"`
}

// MongoDBConfig contains MongoDB-specific configuration
type MongoDBConfig struct {
	URI      string `yaml:"uri" envconfig:"URI"`
	Database string `yaml:"database" envconfig:"DATABASE"`
	Timeout  int    `yaml:"timeout" envconfig:"TIMEOUT"` // seconds
}

// SessionConfig contains authentication session configuration
type SessionConfig struct {
	// Store is the session store type: "memory" or "redis"
	Store string      `yaml:"store" envconfig:"STORE"`
	Redis RedisConfig `yaml:"redis" envconfig:"REDIS"`

	// AuthTTLMinutes bounds the provisional login session.
	AuthTTLMinutes int `yaml:"auth_ttl_minutes" envconfig:"AUTH_TTL_MINUTES"`
	// MainTTLHours bounds the fully authenticated session.
	MainTTLHours int `yaml:"main_ttl_hours" envconfig:"MAIN_TTL_HOURS"`
	// ChallengeMaxAgeSeconds is the validity window for pending challenges.
	ChallengeMaxAgeSeconds int `yaml:"challenge_max_age_seconds" envconfig:"CHALLENGE_MAX_AGE_SECONDS"`
	// CleanupIntervalSeconds is how often expired sessions are pruned.
	CleanupIntervalSeconds int `yaml:"cleanup_interval_seconds" envconfig:"CLEANUP_INTERVAL_SECONDS"`
}

// RedisConfig contains Redis connection configuration
type RedisConfig struct {
	Address   string `yaml:"address" envconfig:"ADDRESS"`
	Password  string `yaml:"password" envconfig:"PASSWORD"`
	DB        int    `yaml:"db" envconfig:"DB"`
	KeyPrefix string `yaml:"key_prefix" envconfig:"KEY_PREFIX"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" envconfig:"LEVEL"`   // debug, info, warn, error
	Format string `yaml:"format" envconfig:"FORMAT"` // json, text
}

// JWTConfig contains session token signing configuration
type JWTConfig struct {
	Secret string `yaml:"secret" envconfig:"SECRET"`
	Issuer string `yaml:"issuer" envconfig:"ISSUER"`
}

// Load loads configuration from file and environment variables
func Load(configFile string) (*Config, error) {
	// Start with defaults
	cfg := DefaultConfig()

	// Load from YAML file if provided (overrides defaults)
	if configFile != "" {
		data, err := os.ReadFile(configFile)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
			// Missing file is fine, defaults plus env vars apply.
		} else {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}

	// Override with environment variables (highest priority)
	if err := envconfig.Process("PASSGATE", cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment variables: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// DefaultConfig returns a Config with sensible default values
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:             "0.0.0.0",
			Port:             8080,
			RPID:             "localhost",
			RPOrigin:         "http://localhost:8080",
			RPName:           "Passgate",
			AndroidUserAgent: "okhttp",
			AuthRateLimit: AuthRateLimitConfig{
				Enabled:        true,
				MaxAttempts:    10,
				WindowSeconds:  60,
				LockoutSeconds: 300,
			},
		},
		Storage: StorageConfig{
			Type: "memory",
			MongoDB: MongoDBConfig{
				URI:      "mongodb://localhost:27017",
				Database: "passgate",
				Timeout:  10,
			},
		},
		Session: SessionConfig{
			Store:                  "memory",
			AuthTTLMinutes:         15,
			MainTTLHours:           24,
			ChallengeMaxAgeSeconds: 300,
			CleanupIntervalSeconds: 300,
			Redis: RedisConfig{
				Address:   "localhost:6379",
				KeyPrefix: "passgate:session:",
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		JWT: JWTConfig{
			Issuer: "passgate",
		},
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Server.RPID == "" {
		return fmt.Errorf("rp_id is required")
	}

	if c.Server.RPOrigin == "" {
		return fmt.Errorf("rp_origin is required")
	}

	if c.Server.AndroidAPKKeyHash != "" {
		if _, err := base64.RawURLEncoding.DecodeString(c.Server.AndroidAPKKeyHash); err != nil {
			return fmt.Errorf("android_apk_key_hash is not base64url: %w", err)
		}
	}

	if c.Storage.Type != "memory" && c.Storage.Type != "mongodb" {
		return fmt.Errorf("invalid storage type: %s (must be memory or mongodb)", c.Storage.Type)
	}

	if c.Storage.Type == "mongodb" && c.Storage.MongoDB.URI == "" {
		return fmt.Errorf("mongodb uri is required when using mongodb storage")
	}

	if c.Session.Store != "memory" && c.Session.Store != "redis" {
		return fmt.Errorf("invalid session store: %s (must be memory or redis)", c.Session.Store)
	}

	if c.Session.Store == "redis" && c.Session.Redis.Address == "" {
		return fmt.Errorf("redis address is required when using redis sessions")
	}

	if c.JWT.Secret == "" {
		return fmt.Errorf("jwt secret is required")
	}

	return nil
}

// Address returns the server address
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
