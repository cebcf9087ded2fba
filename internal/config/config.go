// Package config builds the process-wide configuration from the environment,
// an optional .env file and command-line flags.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"mediagate/internal/storage"
	"mediagate/internal/upload"

	"github.com/dustin/go-humanize"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Fallback backends.
const (
	FallbackSupabase = "supabase"
	FallbackS3       = "s3"
	FallbackLocal    = "local"
	FallbackNone     = "none"
)

// Keys double as environment variable names once uppercased.
const (
	KeyListenAddr      = "listen_addr"
	KeyLogLevel        = "log_level"
	KeyMaxUploadSize   = "max_upload_size"
	KeyPrimaryTimeout  = "primary_timeout"
	KeyFallbackTimeout = "fallback_timeout"

	KeySupabaseURL            = "supabase_url"
	KeySupabaseAnonKey        = "supabase_anon_key"
	KeySupabaseServiceRoleKey = "supabase_service_role_key"
	KeySupabaseJWTSecret      = "supabase_jwt_secret"

	KeyR2AccountID       = "cloudflare_account_id"
	KeyR2AccessKeyID     = "cloudflare_r1_access_key_id"
	KeyR2SecretAccessKey = "cloudflare_r1_secret_access_key"
	KeyR2Bucket          = "cloudflare_r1_bucket_name"
	KeyR2Endpoint        = "cloudflare_r1_endpoint"
	KeyR2PublicURL       = "cloudflare_r1_public_url"

	KeyFallbackBackend = "fallback_backend"
	KeyFallbackBucket  = "fallback_bucket"

	KeyS3Endpoint        = "fallback_s3_endpoint"
	KeyS3AccessKeyID     = "fallback_s3_access_key_id"
	KeyS3SecretAccessKey = "fallback_s3_secret_access_key"
	KeyS3Region          = "fallback_s3_region"
	KeyS3UseSSL          = "fallback_s3_use_ssl"
	KeyS3PublicURL       = "fallback_s3_public_url"

	KeyLocalDataDir   = "local_data_dir"
	KeyLocalPublicURL = "local_public_url"
)

type SupabaseConfig struct {
	URL            string
	AnonKey        string
	ServiceRoleKey string
	JWTSecret      string
}

type FallbackConfig struct {
	Backend string
	Bucket  string

	S3 storage.S3Config

	LocalDataDir   string
	LocalPublicURL string
}

// Config is built once at startup and never modified afterwards.
type Config struct {
	ListenAddr      string
	LogLevel        string
	MaxUploadSize   int64
	PrimaryTimeout  time.Duration
	FallbackTimeout time.Duration

	Supabase SupabaseConfig
	R2       storage.R2Config
	Fallback FallbackConfig
}

// SetDefaults registers the default value of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyListenAddr, ":8000")
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyMaxUploadSize, "50MiB")
	v.SetDefault(KeyPrimaryTimeout, upload.DefaultTimeout)
	v.SetDefault(KeyFallbackTimeout, upload.DefaultTimeout)
	v.SetDefault(KeyFallbackBackend, FallbackSupabase)
	v.SetDefault(KeyFallbackBucket, "media")
	v.SetDefault(KeyS3Region, "us-east-1")
	v.SetDefault(KeyS3UseSSL, true)
	v.SetDefault(KeyLocalDataDir, "data")
	v.SetDefault(KeyLocalPublicURL, "http://localhost:8000/media")
}

// LoadDotEnv loads variables from the given files, or .env when none are
// named, without overriding ones already set. Missing files are ignored.
func LoadDotEnv(paths ...string) error {
	if err := godotenv.Load(paths...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load env file: %w", err)
	}
	return nil
}

// Load reads the configuration from v, which should already have flags
// bound. Environment variables are consulted automatically.
func Load(v *viper.Viper) (*Config, error) {
	SetDefaults(v)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))

	maxSize, err := humanize.ParseBytes(v.GetString(KeyMaxUploadSize))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", KeyMaxUploadSize, err)
	}

	cfg := &Config{
		ListenAddr:      v.GetString(KeyListenAddr),
		LogLevel:        v.GetString(KeyLogLevel),
		MaxUploadSize:   int64(maxSize),
		PrimaryTimeout:  v.GetDuration(KeyPrimaryTimeout),
		FallbackTimeout: v.GetDuration(KeyFallbackTimeout),
		Supabase: SupabaseConfig{
			URL:            strings.TrimRight(v.GetString(KeySupabaseURL), "/"),
			AnonKey:        v.GetString(KeySupabaseAnonKey),
			ServiceRoleKey: v.GetString(KeySupabaseServiceRoleKey),
			JWTSecret:      v.GetString(KeySupabaseJWTSecret),
		},
		R2: storage.R2Config{
			AccountID:       v.GetString(KeyR2AccountID),
			AccessKeyID:     v.GetString(KeyR2AccessKeyID),
			SecretAccessKey: v.GetString(KeyR2SecretAccessKey),
			Bucket:          v.GetString(KeyR2Bucket),
			Endpoint:        v.GetString(KeyR2Endpoint),
			PublicBaseURL:   v.GetString(KeyR2PublicURL),
		},
		Fallback: FallbackConfig{
			Backend: strings.ToLower(v.GetString(KeyFallbackBackend)),
			Bucket:  v.GetString(KeyFallbackBucket),
			S3: storage.S3Config{
				Endpoint:        v.GetString(KeyS3Endpoint),
				AccessKeyID:     v.GetString(KeyS3AccessKeyID),
				SecretAccessKey: v.GetString(KeyS3SecretAccessKey),
				Bucket:          v.GetString(KeyFallbackBucket),
				Region:          v.GetString(KeyS3Region),
				UseSSL:          v.GetBool(KeyS3UseSSL),
				PublicBaseURL:   v.GetString(KeyS3PublicURL),
			},
			LocalDataDir:   v.GetString(KeyLocalDataDir),
			LocalPublicURL: v.GetString(KeyLocalPublicURL),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every missing or inconsistent setting at once.
func (c *Config) Validate() error {
	var errs []error

	if c.MaxUploadSize <= 0 {
		errs = append(errs, fmt.Errorf("%s must be positive", KeyMaxUploadSize))
	}
	if c.PrimaryTimeout <= 0 || c.FallbackTimeout <= 0 {
		errs = append(errs, errors.New("upload timeouts must be positive"))
	}

	if c.Supabase.JWTSecret == "" && (c.Supabase.URL == "" || c.Supabase.AnonKey == "") {
		errs = append(errs, fmt.Errorf("%s and %s, or %s, are required to verify tokens",
			KeySupabaseURL, KeySupabaseAnonKey, KeySupabaseJWTSecret))
	}

	if c.R2.AccountID == "" && c.R2.Endpoint == "" {
		errs = append(errs, fmt.Errorf("%s or %s is required", KeyR2AccountID, KeyR2Endpoint))
	}
	if c.R2.AccessKeyID == "" || c.R2.SecretAccessKey == "" {
		errs = append(errs, fmt.Errorf("%s and %s are required", KeyR2AccessKeyID, KeyR2SecretAccessKey))
	}
	if c.R2.Bucket == "" {
		errs = append(errs, fmt.Errorf("%s is required", KeyR2Bucket))
	}

	switch c.Fallback.Backend {
	case FallbackSupabase:
		if c.Supabase.URL == "" {
			errs = append(errs, fmt.Errorf("%s is required for the supabase fallback", KeySupabaseURL))
		}
	case FallbackS3:
		if c.Fallback.S3.Endpoint == "" {
			errs = append(errs, fmt.Errorf("%s is required for the s3 fallback", KeyS3Endpoint))
		}
	case FallbackLocal:
		if c.Fallback.LocalDataDir == "" {
			errs = append(errs, fmt.Errorf("%s is required for the local fallback", KeyLocalDataDir))
		}
	case FallbackNone:
	default:
		errs = append(errs, fmt.Errorf("%s: unknown backend %q", KeyFallbackBackend, c.Fallback.Backend))
	}

	return errors.Join(errs...)
}

// SlogLevel parses LogLevel, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}

func redact(secret string) string {
	if secret == "" {
		return ""
	}
	return "[REDACTED]"
}

// LogValue renders the configuration with secrets redacted.
func (c *Config) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("listen_addr", c.ListenAddr),
		slog.String("log_level", c.LogLevel),
		slog.String("max_upload_size", humanize.IBytes(uint64(c.MaxUploadSize))),
		slog.Duration("primary_timeout", c.PrimaryTimeout),
		slog.Duration("fallback_timeout", c.FallbackTimeout),
		slog.Group("supabase",
			slog.String("url", c.Supabase.URL),
			slog.String("anon_key", redact(c.Supabase.AnonKey)),
			slog.String("service_role_key", redact(c.Supabase.ServiceRoleKey)),
			slog.String("jwt_secret", redact(c.Supabase.JWTSecret)),
		),
		slog.Group("r2",
			slog.String("account_id", c.R2.AccountID),
			slog.String("access_key_id", c.R2.AccessKeyID),
			slog.String("secret_access_key", redact(c.R2.SecretAccessKey)),
			slog.String("bucket", c.R2.Bucket),
			slog.String("endpoint", c.R2.EndpointURL()),
			slog.String("public_url", c.R2.PublicBaseURL),
		),
		slog.Group("fallback",
			slog.String("backend", c.Fallback.Backend),
			slog.String("bucket", c.Fallback.Bucket),
		),
	)
}

func (c *Config) String() string {
	return c.LogValue().String()
}
