package config

import (
	"os"
	"path/filepath"
	"testing"
)

func validConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:     "localhost",
			Port:     8080,
			RPID:     "localhost",
			RPOrigin: "http://localhost:8080",
		},
		Storage: StorageConfig{Type: "memory"},
		Session: SessionConfig{Store: "memory"},
		JWT:     JWTConfig{Secret: "test"},
	}
}

func TestConfig_Validate(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestConfig_Validate_InvalidPort(t *testing.T) {
	tests := []struct {
		name string
		port int
	}{
		{"port too low", 0},
		{"port negative", -1},
		{"port too high", 65536},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			cfg.Server.Port = tt.port
			if cfg.Validate() == nil {
				t.Error("Expected validation error for invalid port")
			}
		})
	}
}

func TestConfig_Validate_MissingRPID(t *testing.T) {
	cfg := validConfig()
	cfg.Server.RPID = ""
	if cfg.Validate() == nil {
		t.Error("Expected validation error for missing RPID")
	}
}

func TestConfig_Validate_MissingRPOrigin(t *testing.T) {
	cfg := validConfig()
	cfg.Server.RPOrigin = ""
	if cfg.Validate() == nil {
		t.Error("Expected validation error for missing RPOrigin")
	}
}

func TestConfig_Validate_InvalidStorageType(t *testing.T) {
	cfg := validConfig()
	cfg.Storage.Type = "postgres"
	if cfg.Validate() == nil {
		t.Error("Expected validation error for invalid storage type")
	}
}

func TestConfig_Validate_InvalidSessionStore(t *testing.T) {
	cfg := validConfig()
	cfg.Session.Store = "memcached"
	if cfg.Validate() == nil {
		t.Error("Expected validation error for invalid session store")
	}
}

func TestConfig_Validate_BadAPKKeyHash(t *testing.T) {
	cfg := validConfig()
	cfg.Server.AndroidAPKKeyHash = "not!base64url"
	if cfg.Validate() == nil {
		t.Error("Expected validation error for malformed apk key hash")
	}
}

func TestConfig_Validate_MissingJWTSecret(t *testing.T) {
	cfg := validConfig()
	cfg.JWT.Secret = ""
	if cfg.Validate() == nil {
		t.Error("Expected validation error for missing jwt secret")
	}
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("PASSGATE_JWT_SECRET", "env-secret")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("default port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Storage.Type != "memory" {
		t.Errorf("default storage type = %s, want memory", cfg.Storage.Type)
	}
	if cfg.Session.AuthTTLMinutes != 15 {
		t.Errorf("default auth ttl = %d, want 15", cfg.Session.AuthTTLMinutes)
	}
	if cfg.JWT.Secret != "env-secret" {
		t.Errorf("jwt secret = %q, want env override", cfg.JWT.Secret)
	}
}

func TestLoad_YAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := []byte(`
server:
  port: 9090
  rp_id: auth.example.com
  rp_origin: https://auth.example.com
jwt:
  secret: file-secret
`)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Server.RPID != "auth.example.com" {
		t.Errorf("rp_id = %s, want auth.example.com", cfg.Server.RPID)
	}
	if cfg.JWT.Secret != "file-secret" {
		t.Errorf("jwt secret = %q, want file-secret", cfg.JWT.Secret)
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	t.Setenv("PASSGATE_JWT_SECRET", "s")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.RPID != "localhost" {
		t.Errorf("rp_id = %s, want localhost default", cfg.Server.RPID)
	}
}
