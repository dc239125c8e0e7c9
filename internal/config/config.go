package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Remote modes
const (
	RemoteModeHTTP   = "http"
	RemoteModeMemory = "memory"
)

// Config represents the application configuration
type Config struct {
	Server  ServerConfig  `json:"server"`
	Remote  RemoteConfig  `json:"remote"`
	View    ViewConfig    `json:"view"`
	Refresh RefreshConfig `json:"refresh"`
	Export  ExportConfig  `json:"export"`
	Logging LoggingConfig `json:"logging"`
}

// ServerConfig represents server configuration
type ServerConfig struct {
	Host           string   `json:"host"`
	Port           int      `json:"port"`
	ReadTimeout    Duration `json:"read_timeout"`
	WriteTimeout   Duration `json:"write_timeout"`
	IdleTimeout    Duration `json:"idle_timeout"`
	AllowedOrigins []string `json:"allowed_origins"`
}

// RemoteConfig points the shell at the remote contract service.
type RemoteConfig struct {
	Mode            string   `json:"mode"`
	URL             string   `json:"url"`
	Timeout         Duration `json:"timeout"`
	CallerPrincipal string   `json:"caller_principal"`
	IdentitySecret  string   `json:"identity_secret"`
	TokenTTL        Duration `json:"token_ttl"`
	// SeedCredits is the number of caller-owned credits the in-memory
	// service starts with.
	SeedCredits int `json:"seed_credits"`
}

// ViewConfig holds contract table defaults.
type ViewConfig struct {
	PageSize         int    `json:"page_size"`
	DefaultSort      string `json:"default_sort"`
	DefaultDirection string `json:"default_direction"`
}

// RefreshConfig schedules background list refreshes.
type RefreshConfig struct {
	Enabled bool   `json:"enabled"`
	Spec    string `json:"spec"`
}

// ExportConfig configures where exported files are uploaded.
type ExportConfig struct {
	S3Bucket          string   `json:"s3_bucket"`
	S3Region          string   `json:"s3_region"`
	S3Endpoint        string   `json:"s3_endpoint"`
	S3AccessKeyID     string   `json:"s3_access_key_id"`
	S3SecretAccessKey string   `json:"s3_secret_access_key"`
	S3UsePathStyle    bool     `json:"s3_use_path_style"`
	KeyPrefix         string   `json:"key_prefix"`
	PresignTTL        Duration `json:"presign_ttl"`
}

// UploadEnabled reports whether exports can be uploaded.
func (c ExportConfig) UploadEnabled() bool {
	return c.S3Bucket != ""
}

// LoggingConfig
type LoggingConfig struct {
	Level       string `json:"level"`
	Development bool   `json:"development"`
}

// Duration is a time.Duration written as "5s" in JSON.
type Duration struct {
	time.Duration
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		d.Duration = parsed
		return nil
	}
	var secs float64
	if err := json.Unmarshal(data, &secs); err != nil {
		return fmt.Errorf("invalid duration %s", string(data))
	}
	d.Duration = time.Duration(secs * float64(time.Second))
	return nil
}

// Default returns the configuration used when nothing else is set.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:           "0.0.0.0",
			Port:           8080,
			ReadTimeout:    Duration{15 * time.Second},
			WriteTimeout:   Duration{30 * time.Second},
			IdleTimeout:    Duration{60 * time.Second},
			AllowedOrigins: []string{"*"},
		},
		Remote: RemoteConfig{
			Mode:     RemoteModeMemory,
			Timeout:  Duration{10 * time.Second},
			TokenTTL: Duration{5 * time.Minute},
		},
		View: ViewConfig{
			PageSize:         5,
			DefaultSort:      "id",
			DefaultDirection: "desc",
		},
		Refresh: RefreshConfig{
			Enabled: false,
			Spec:    "0 */1 * * * *",
		},
		Export: ExportConfig{
			KeyPrefix:  "exports/",
			PresignTTL: Duration{15 * time.Minute},
		},
		Logging: LoggingConfig{
			Level:       "info",
			Development: true,
		},
	}
}

// LoadConfig loads configuration from file, a .env file and environment variables
func LoadConfig(configPath string) (*Config, error) {
	config := Default()

	if configPath != "" {
		if data, err := os.ReadFile(configPath); err == nil {
			if err := json.Unmarshal(data, config); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// .env never overrides variables already present in the environment.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	overrideWithEnv(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func overrideWithEnv(config *Config) {
	setString(&config.Server.Host, "SERVER_HOST")
	setInt(&config.Server.Port, "SERVER_PORT")
	if origins := os.Getenv("SERVER_ALLOWED_ORIGINS"); origins != "" {
		config.Server.AllowedOrigins = splitList(origins)
	}

	setString(&config.Remote.Mode, "REMOTE_MODE")
	setString(&config.Remote.URL, "REMOTE_URL")
	setDuration(&config.Remote.Timeout, "REMOTE_TIMEOUT")
	setInt(&config.Remote.SeedCredits, "REMOTE_SEED_CREDITS")
	setString(&config.Remote.CallerPrincipal, "CALLER_PRINCIPAL")
	setString(&config.Remote.IdentitySecret, "IDENTITY_SECRET")
	setDuration(&config.Remote.TokenTTL, "IDENTITY_TOKEN_TTL")

	setInt(&config.View.PageSize, "PAGE_SIZE")
	setString(&config.View.DefaultSort, "DEFAULT_SORT")
	setString(&config.View.DefaultDirection, "DEFAULT_DIRECTION")

	setBool(&config.Refresh.Enabled, "REFRESH_ENABLED")
	setString(&config.Refresh.Spec, "REFRESH_SPEC")

	setString(&config.Export.S3Bucket, "EXPORT_S3_BUCKET")
	setString(&config.Export.S3Region, "EXPORT_S3_REGION")
	setString(&config.Export.S3Endpoint, "EXPORT_S3_ENDPOINT")
	setString(&config.Export.S3AccessKeyID, "EXPORT_S3_ACCESS_KEY_ID")
	setString(&config.Export.S3SecretAccessKey, "EXPORT_S3_SECRET_ACCESS_KEY")
	setBool(&config.Export.S3UsePathStyle, "EXPORT_S3_USE_PATH_STYLE")
	setString(&config.Export.KeyPrefix, "EXPORT_KEY_PREFIX")
	setDuration(&config.Export.PresignTTL, "EXPORT_PRESIGN_TTL")

	setString(&config.Logging.Level, "LOG_LEVEL")
	setBool(&config.Logging.Development, "LOG_DEVELOPMENT")
}

// Validate checks settings that would otherwise fail at first use.
func (c *Config) Validate() error {
	switch c.Remote.Mode {
	case RemoteModeMemory:
	case RemoteModeHTTP:
		if c.Remote.URL == "" {
			return errors.New("remote.url is required in http mode")
		}
		if c.Remote.CallerPrincipal == "" || c.Remote.IdentitySecret == "" {
			return errors.New("remote.caller_principal and remote.identity_secret are required in http mode")
		}
	default:
		return fmt.Errorf("unknown remote mode %q", c.Remote.Mode)
	}
	if c.Remote.SeedCredits < 0 {
		return fmt.Errorf("invalid remote.seed_credits %d", c.Remote.SeedCredits)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	return nil
}

// GetServerAddr returns the server address
func (c *ServerConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
