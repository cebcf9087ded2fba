package core

import (
	"mediagate/internal/auth"
	"mediagate/internal/metrics"
	"mediagate/internal/upload"
)

type Config struct {
	Uploader      *upload.Uploader
	Authenticator auth.AuthEngine
	Metrics       *metrics.Metrics

	// MediaRoot, when set, is served read-only under /media/. It is the data
	// directory of the local development backend.
	MediaRoot string
}

type ConfigOption func(*Config)

func WithUploader(uploader *upload.Uploader) ConfigOption {
	return func(cfg *Config) {
		cfg.Uploader = uploader
	}
}

func WithAuthEngine(authenticator auth.AuthEngine) ConfigOption {
	return func(cfg *Config) {
		cfg.Authenticator = authenticator
	}
}

func WithMetrics(m *metrics.Metrics) ConfigOption {
	return func(cfg *Config) {
		cfg.Metrics = m
	}
}

func WithMediaRoot(dir string) ConfigOption {
	return func(cfg *Config) {
		cfg.MediaRoot = dir
	}
}

func NewConfig(opts ...ConfigOption) Config {
	cfg := Config{}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}
