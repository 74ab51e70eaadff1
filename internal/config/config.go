package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds application configuration
type Config struct {
	Server     ServerConfig
	MongoDB    MongoDBConfig
	Redis      RedisConfig
	Discord    DiscordConfig
	JWT        JWTConfig
	RateLimit  RateLimitConfig
	Revocation RevocationConfig
	Roles      RolesConfig
}

type ServerConfig struct {
	Port         string
	Host         string
	Environment  string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type MongoDBConfig struct {
	URI      string
	Database string
	Timeout  time.Duration
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// DiscordConfig describes the OAuth2 application and the guild whose roles
// drive permission mapping.
type DiscordConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	GuildID      string
	BotToken     string
	APIBaseURL   string
	Scopes       []string
	PKCEMethod   string
	FlowTTL      time.Duration
	HTTPTimeout  time.Duration
}

type JWTConfig struct {
	Secret          string
	Issuer          string
	Audience        string
	KeyID           string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
}

type RateLimitConfig struct {
	Enabled       bool
	UseRedis      bool
	RPS           float64
	Burst         int
	WindowSeconds int
}

// RevocationConfig selects the behavior of the access-token revocation gate
// when the token store is unreachable. Default is fail-open (availability over
// strict revocation); set REVOCATION_FAIL_CLOSED=true to reject instead.
type RevocationConfig struct {
	FailClosed bool
}

// RolesConfig maps Discord role names to application permission lists.
type RolesConfig struct {
	Mappings map[string][]string
}

// LoadConfig loads configuration from environment variables and .env file
func LoadConfig() (*Config, error) {
	_ = godotenv.Load(".env")

	viper.AutomaticEnv()

	viper.SetDefault("SERVER_PORT", "5002")
	viper.SetDefault("SERVER_HOST", "0.0.0.0")
	viper.SetDefault("SERVER_ENVIRONMENT", "development")
	viper.SetDefault("MONGODB_TIMEOUT", 10)
	viper.SetDefault("DISCORD_API_BASE_URL", "https://discord.com/api/v10")
	viper.SetDefault("DISCORD_REDIRECT_URI", "http://localhost:3000/auth/callback")
	viper.SetDefault("OAUTH2_SCOPES", "identify guilds")
	viper.SetDefault("OAUTH2_PKCE_METHOD", "S256")
	viper.SetDefault("OAUTH2_FLOW_TTL", 600)
	viper.SetDefault("OAUTH2_HTTP_TIMEOUT", 10)
	viper.SetDefault("JWT_ISSUER", "https://api.local")
	viper.SetDefault("JWT_AUDIENCE", "deckhand-api")
	viper.SetDefault("JWT_KEY_ID", "jwt-key-1")
	viper.SetDefault("JWT_ACCESS_TOKEN_EXPIRES", 3600)
	viper.SetDefault("JWT_REFRESH_TOKEN_EXPIRES", 2592000)
	viper.SetDefault("RATE_LIMIT_ENABLED", false)
	viper.SetDefault("RATE_LIMIT_USE_REDIS", false)
	viper.SetDefault("RATE_LIMIT_RPS", 10.0)
	viper.SetDefault("RATE_LIMIT_BURST", 20)
	viper.SetDefault("RATE_LIMIT_WINDOW_SECONDS", 1)
	viper.SetDefault("REVOCATION_FAIL_CLOSED", false)

	cfg := &Config{
		Server: ServerConfig{
			Port:         viper.GetString("SERVER_PORT"),
			Host:         viper.GetString("SERVER_HOST"),
			Environment:  viper.GetString("SERVER_ENVIRONMENT"),
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		MongoDB: MongoDBConfig{
			URI:      viper.GetString("MONGODB_URI"),
			Database: viper.GetString("MONGODB_DATABASE"),
			Timeout:  time.Duration(viper.GetInt("MONGODB_TIMEOUT")) * time.Second,
		},
		Redis: RedisConfig{
			Host:     viper.GetString("REDIS_HOST"),
			Port:     viper.GetString("REDIS_PORT"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       0,
		},
		Discord: DiscordConfig{
			ClientID:     viper.GetString("DISCORD_CLIENT_ID"),
			ClientSecret: viper.GetString("DISCORD_CLIENT_SECRET"),
			RedirectURI:  viper.GetString("DISCORD_REDIRECT_URI"),
			GuildID:      viper.GetString("DISCORD_GUILD_ID"),
			BotToken:     os.Getenv("DISCORD_BOT_TOKEN"),
			APIBaseURL:   viper.GetString("DISCORD_API_BASE_URL"),
			Scopes:       strings.Fields(viper.GetString("OAUTH2_SCOPES")),
			PKCEMethod:   viper.GetString("OAUTH2_PKCE_METHOD"),
			FlowTTL:      time.Duration(viper.GetInt("OAUTH2_FLOW_TTL")) * time.Second,
			HTTPTimeout:  time.Duration(viper.GetInt("OAUTH2_HTTP_TIMEOUT")) * time.Second,
		},
		JWT: JWTConfig{
			Secret:          os.Getenv("JWT_SECRET"),
			Issuer:          viper.GetString("JWT_ISSUER"),
			Audience:        viper.GetString("JWT_AUDIENCE"),
			KeyID:           viper.GetString("JWT_KEY_ID"),
			AccessTokenTTL:  time.Duration(viper.GetInt("JWT_ACCESS_TOKEN_EXPIRES")) * time.Second,
			RefreshTokenTTL: time.Duration(viper.GetInt("JWT_REFRESH_TOKEN_EXPIRES")) * time.Second,
		},
		RateLimit: RateLimitConfig{
			Enabled:       viper.GetBool("RATE_LIMIT_ENABLED"),
			UseRedis:      viper.GetBool("RATE_LIMIT_USE_REDIS"),
			RPS:           viper.GetFloat64("RATE_LIMIT_RPS"),
			Burst:         viper.GetInt("RATE_LIMIT_BURST"),
			WindowSeconds: viper.GetInt("RATE_LIMIT_WINDOW_SECONDS"),
		},
		Revocation: RevocationConfig{
			FailClosed: viper.GetBool("REVOCATION_FAIL_CLOSED"),
		},
		Roles: RolesConfig{
			Mappings: defaultRoleMappings(),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate enforces startup-time invariants. A missing signing key or missing
// OAuth2 client credentials are fatal configuration errors, not per-request ones.
func (c *Config) Validate() error {
	if c.JWT.Secret == "" {
		return fmt.Errorf("config: JWT_SECRET is required")
	}
	if c.Discord.ClientID == "" || c.Discord.ClientSecret == "" {
		return fmt.Errorf("config: DISCORD_CLIENT_ID and DISCORD_CLIENT_SECRET are required")
	}
	if c.Discord.PKCEMethod != "S256" && c.Discord.PKCEMethod != "plain" {
		return fmt.Errorf("config: unsupported PKCE method %q", c.Discord.PKCEMethod)
	}
	if c.JWT.AccessTokenTTL >= c.JWT.RefreshTokenTTL {
		return fmt.Errorf("config: access token TTL (%s) must be shorter than refresh token TTL (%s)",
			c.JWT.AccessTokenTTL, c.JWT.RefreshTokenTTL)
	}
	return nil
}

// defaultRoleMappings mirrors the role table used by the rest of the platform.
// Unknown roles fall back to the minimal member set at mapping time.
func defaultRoleMappings() map[string][]string {
	return map[string][]string{
		"admin":     {"*"},
		"moderator": {"embeds.*", "giveaways.*", "stats.view"},
		"staff":     {"giveaways.enter", "media.*"},
		"member":    {"giveaways.enter", "media.search", "llm.chat"},
	}
}
