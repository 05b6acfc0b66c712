package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Port           string
	Environment    string
	BaseURL        string
	DatabaseURL    string
	JWTSecret      string
	RedisURL       string
	GeoIPDBPath    string
	WebDir         string
	CORSOrigins    []string
	SessionIdleTTL time.Duration
	ControlsDelay  time.Duration
	S3             S3Config
}

type S3Config struct {
	Endpoint       string
	PublicEndpoint string
	Bucket         string
	AccessKey      string
	SecretKey      string
	Region         string
	MaxUploadBytes int64
}

func (c *Config) Development() bool {
	return c.Environment == "development"
}

// Load reads .env (when present), an optional vpplayer.toml and the process
// environment, in increasing order of precedence.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.SetConfigName("vpplayer")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/vpplayer/")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}
	return fromViper(v)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", "8080")
	v.SetDefault("environment", "production")
	v.SetDefault("base_url", "http://localhost:8080")
	v.SetDefault("cors_origins", "http://localhost:5173")
	v.SetDefault("session_idle_ttl", "30m")
	v.SetDefault("controls_hide_delay", "3s")
	v.SetDefault("s3_endpoint", "http://localhost:3900")
	v.SetDefault("s3_bucket", "vpplayer")
	v.SetDefault("s3_region", "eu-central-1")
	v.SetDefault("max_upload_bytes", int64(2*1024*1024*1024))
}

func fromViper(v *viper.Viper) (*Config, error) {
	setDefaults(v)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	cfg := &Config{
		Port:           v.GetString("port"),
		Environment:    v.GetString("environment"),
		BaseURL:        strings.TrimRight(v.GetString("base_url"), "/"),
		DatabaseURL:    v.GetString("database_url"),
		JWTSecret:      v.GetString("jwt_secret"),
		RedisURL:       v.GetString("redis_url"),
		GeoIPDBPath:    v.GetString("geoip_db_path"),
		WebDir:         v.GetString("web_dir"),
		CORSOrigins:    splitList(v.GetString("cors_origins")),
		SessionIdleTTL: v.GetDuration("session_idle_ttl"),
		ControlsDelay:  v.GetDuration("controls_hide_delay"),
		S3: S3Config{
			Endpoint:       v.GetString("s3_endpoint"),
			PublicEndpoint: v.GetString("s3_public_endpoint"),
			Bucket:         v.GetString("s3_bucket"),
			AccessKey:      v.GetString("s3_access_key"),
			SecretKey:      v.GetString("s3_secret_key"),
			Region:         v.GetString("s3_region"),
			MaxUploadBytes: v.GetInt64("max_upload_bytes"),
		},
	}

	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}
	if cfg.SessionIdleTTL <= 0 {
		return nil, fmt.Errorf("SESSION_IDLE_TTL must be positive, got %s", cfg.SessionIdleTTL)
	}
	if cfg.ControlsDelay <= 0 {
		return nil, fmt.Errorf("CONTROLS_HIDE_DELAY must be positive, got %s", cfg.ControlsDelay)
	}
	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
