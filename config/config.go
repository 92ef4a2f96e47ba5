// Package config loads channel and logging settings for zerobuffer-based
// services from a TOML file, with an optional .env overlay for
// environment-specific logging overrides (log level, development mode).
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/c2h5oh/datasize"
	"github.com/pelletier/go-toml/v2"

	"github.com/modelingevolution/zerobuffer-go"
)

// Config is the top-level configuration file shape: one entry per named
// channel a process intends to open, plus process-wide logging.
type Config struct {
	Log      LogConfig                `toml:"log"`
	Channels map[string]ChannelConfig `toml:"channels"`
}

// LogConfig controls the zap logger shared by every channel opened from
// this config.
type LogConfig struct {
	Level       string `toml:"level"`       // debug, info, warn, error
	Development bool   `toml:"development"` // human-readable console encoding instead of JSON
}

// ChannelConfig mirrors zerobuffer.BufferConfig plus the timeouts and role
// this process takes on the channel. Sizes accept human-readable suffixes
// ("10MB", "512KB") via datasize.ByteSize's text unmarshaling.
type ChannelConfig struct {
	Role         string            `toml:"role"` // "reader" or "writer"
	MetadataSize datasize.ByteSize `toml:"metadata_size"`
	PayloadSize  datasize.ByteSize `toml:"payload_size"`
	WriteTimeMs  int64             `toml:"write_timeout_ms"`
	ReadTimeMs   int64             `toml:"read_timeout_ms"`
}

// BufferConfig converts a channel's declared sizes into the zerobuffer
// constructor argument.
func (c ChannelConfig) BufferConfig() zerobuffer.BufferConfig {
	return zerobuffer.BufferConfig{
		MetadataSize: c.MetadataSize.Bytes(),
		PayloadSize:  c.PayloadSize.Bytes(),
	}
}

// Options builds the zerobuffer.Option slice implied by this channel's
// configured timeouts. A zero or negative *TimeMs field is left at the
// package default (WriteTimeout 5s, ReadTimeout negative).
func (c ChannelConfig) Options() []zerobuffer.Option {
	var opts []zerobuffer.Option
	if c.WriteTimeMs > 0 {
		opts = append(opts, zerobuffer.WithWriteTimeout(time.Duration(c.WriteTimeMs)*time.Millisecond))
	}
	if c.ReadTimeMs > 0 {
		opts = append(opts, zerobuffer.WithReadTimeout(time.Duration(c.ReadTimeMs)*time.Millisecond))
	}
	return opts
}

// Load reads and parses a TOML config file from path.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var c Config
	if err := toml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return &c, nil
}
