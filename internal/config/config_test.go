package config

import (
	"os"
	"testing"
	"time"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	os.Setenv("JWT_SECRET", "testsecret123456789012345678901234")
	os.Setenv("DISCORD_CLIENT_ID", "123456789012345678")
	os.Setenv("DISCORD_CLIENT_SECRET", "client-secret")
	t.Cleanup(func() {
		os.Unsetenv("JWT_SECRET")
		os.Unsetenv("DISCORD_CLIENT_ID")
		os.Unsetenv("DISCORD_CLIENT_SECRET")
	})
}

func TestLoadConfig(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.JWT.Secret == "" || cfg.Discord.ClientID == "" {
		t.Fatalf("unexpected empty config values: %+v", cfg)
	}
	if cfg.JWT.AccessTokenTTL >= cfg.JWT.RefreshTokenTTL {
		t.Fatalf("access TTL must be shorter than refresh TTL: %s >= %s",
			cfg.JWT.AccessTokenTTL, cfg.JWT.RefreshTokenTTL)
	}
	if cfg.Discord.PKCEMethod != "S256" {
		t.Fatalf("default PKCE method = %q, want S256", cfg.Discord.PKCEMethod)
	}
	if len(cfg.Roles.Mappings["admin"]) == 0 {
		t.Fatalf("expected default role mappings, got %+v", cfg.Roles.Mappings)
	}
}

func TestValidate_MissingSecret(t *testing.T) {
	cfg := &Config{}
	cfg.Discord.ClientID = "id"
	cfg.Discord.ClientSecret = "secret"
	cfg.Discord.PKCEMethod = "S256"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected validation error for missing JWT secret")
	}
}

func TestValidate_UnsupportedPKCEMethod(t *testing.T) {
	cfg := &Config{}
	cfg.JWT.Secret = "s"
	cfg.JWT.AccessTokenTTL = time.Hour
	cfg.JWT.RefreshTokenTTL = 24 * time.Hour
	cfg.Discord.ClientID = "id"
	cfg.Discord.ClientSecret = "secret"
	cfg.Discord.PKCEMethod = "S512"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected validation error for unsupported PKCE method")
	}
}

func TestValidate_AccessNotShorterThanRefresh(t *testing.T) {
	cfg := &Config{}
	cfg.JWT.Secret = "s"
	cfg.JWT.AccessTokenTTL = 24 * time.Hour
	cfg.JWT.RefreshTokenTTL = time.Hour
	cfg.Discord.ClientID = "id"
	cfg.Discord.ClientSecret = "secret"
	cfg.Discord.PKCEMethod = "S256"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected validation error when access TTL >= refresh TTL")
	}
}
