package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	mapstructure "github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// Config represents the runtime configuration for the Keygate backend.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Security   SecurityConfig   `mapstructure:"security"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Audit      AuditConfig      `mapstructure:"audit"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port     int    `mapstructure:"port"`
	LogLevel string `mapstructure:"log_level"`
	// LogFormat selects the zap encoder, "json" or "console".
	LogFormat string `mapstructure:"log_format"`
}

// DatabaseConfig describes connection options for the supported databases.
type DatabaseConfig struct {
	Driver   string       `mapstructure:"driver"`
	Path     string       `mapstructure:"path"`
	DSN      string       `mapstructure:"dsn"`
	Postgres DBAuthConfig `mapstructure:"postgres"`
	MySQL    DBAuthConfig `mapstructure:"mysql"`
}

// DBAuthConfig represents host based database parameters.
type DBAuthConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Database string `mapstructure:"database"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	SSLMode  string `mapstructure:"ssl_mode"`
}

// SecurityConfig holds the key protecting two-factor secrets at rest.
type SecurityConfig struct {
	EncryptionKey string `mapstructure:"encryption_key"`
}

// MonitoringConfig enables health checks and metrics.
type MonitoringConfig struct {
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
}

// PrometheusConfig toggles metrics endpoints.
type PrometheusConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// AuthConfig captures all authentication-related settings.
type AuthConfig struct {
	JWT       JWTSettings       `mapstructure:"jwt"`
	StepUp    StepUpSettings    `mapstructure:"step_up"`
	TwoFactor TwoFactorSettings `mapstructure:"two_factor"`
	Local     LocalAuthSettings `mapstructure:"local"`
	RateLimit RateLimitSettings `mapstructure:"rate_limit"`
}

// JWTSettings configures issued access tokens.
type JWTSettings struct {
	Secret      string        `mapstructure:"secret"`
	Issuer      string        `mapstructure:"issuer"`
	TTL         time.Duration `mapstructure:"access_token_ttl"`
	RememberTTL time.Duration `mapstructure:"remember_me_ttl"`
}

// StepUpSettings controls how long a password confirmation stays fresh.
type StepUpSettings struct {
	Window time.Duration `mapstructure:"window"`
}

// TwoFactorSettings tunes TOTP enrollment and the login challenge.
type TwoFactorSettings struct {
	Issuer        string        `mapstructure:"issuer"`
	ChallengeTTL  time.Duration `mapstructure:"challenge_ttl"`
	RecoveryCodes int           `mapstructure:"recovery_codes"`
	QRCodeSize    int           `mapstructure:"qr_code_size"`
}

// LocalAuthSettings defines controls for password authentication.
type LocalAuthSettings struct {
	LockoutThreshold int           `mapstructure:"lockout_threshold"`
	LockoutDuration  time.Duration `mapstructure:"lockout_duration"`
}

// RateLimitSettings bounds requests on the public auth routes.
type RateLimitSettings struct {
	MaxRequests int           `mapstructure:"max_requests"`
	Window      time.Duration `mapstructure:"window"`
}

// AuditConfig controls audit log retention.
type AuditConfig struct {
	RetentionDays int `mapstructure:"retention_days"`
}

// LoadConfig initialises application configuration using Viper with sensible defaults.
func LoadConfig(paths ...string) (*Config, error) {
	v := viper.NewWithOptions(viper.ExperimentalBindStruct())
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.AddConfigPath("./config")
	for _, path := range paths {
		v.AddConfigPath(path)
	}

	setDefaults(v)

	v.SetEnvPrefix("KEYGATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var cfgErr viper.ConfigFileNotFoundError
		if !errors.As(err, &cfgErr) {
			return nil, fmt.Errorf("config: read file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config, decodeHook()); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.log_format", "json")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/keygate.sqlite")

	v.SetDefault("monitoring.prometheus.enabled", true)

	v.SetDefault("auth.jwt.issuer", "keygate")
	v.SetDefault("auth.jwt.access_token_ttl", "1h")
	v.SetDefault("auth.jwt.remember_me_ttl", "720h") // 30 days

	v.SetDefault("auth.step_up.window", "3h")

	v.SetDefault("auth.two_factor.issuer", "Keygate")
	v.SetDefault("auth.two_factor.challenge_ttl", "10m")
	v.SetDefault("auth.two_factor.recovery_codes", 8)
	v.SetDefault("auth.two_factor.qr_code_size", 256)

	v.SetDefault("auth.local.lockout_threshold", 5)
	v.SetDefault("auth.local.lockout_duration", "15m")

	v.SetDefault("auth.rate_limit.max_requests", 60)
	v.SetDefault("auth.rate_limit.window", "1m")

	v.SetDefault("audit.retention_days", 90)
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}
