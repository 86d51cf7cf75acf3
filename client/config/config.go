// Package config holds the per-session settings the shell layer controls.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/robertodauria/speedprobe/pkg/probe/spec"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultDuration is the default length of a session.
	DefaultDuration = 10 * time.Second
)

// ClientConfig carries the settings for one Client.
type ClientConfig struct {
	// DownloadURL is tried before the fixed fallbacks. Empty means
	// fallbacks only.
	DownloadURL string

	// UploadURL is the single upload target. Empty selects the default.
	UploadURL string

	// Duration is the requested length of each session.
	Duration time.Duration

	// ChunkSize is the upload chunk buffer size in bytes. Zero selects the
	// default.
	ChunkSize int64
}

// New creates a ClientConfig.
func New(downloadURL, uploadURL string, duration time.Duration, chunkSize int64) *ClientConfig {
	return &ClientConfig{
		DownloadURL: downloadURL,
		UploadURL:   uploadURL,
		Duration:    duration,
		ChunkSize:   chunkSize,
	}
}

// NewDefault creates a ClientConfig with default settings.
func NewDefault() *ClientConfig {
	return New("", "", DefaultDuration, spec.DefaultChunkSize)
}

// fileConfig is the YAML shape of a config file. Durations are expressed in
// milliseconds, matching the invocation contract.
type fileConfig struct {
	DownloadURL string `yaml:"download_url"`
	UploadURL   string `yaml:"upload_url"`
	DurationMs  int64  `yaml:"duration_ms"`
	ChunkSize   int64  `yaml:"chunk_size"`
}

// LoadFile reads a ClientConfig from a YAML file. Missing fields keep their
// defaults.
func LoadFile(path string) (*ClientConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	cfg := NewDefault()
	cfg.DownloadURL = fc.DownloadURL
	cfg.UploadURL = fc.UploadURL
	if fc.DurationMs != 0 {
		cfg.Duration = time.Duration(fc.DurationMs) * time.Millisecond
	}
	if fc.ChunkSize != 0 {
		cfg.ChunkSize = fc.ChunkSize
	}
	return cfg, nil
}
