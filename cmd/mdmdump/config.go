package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/rs/zerolog"

	"github.com/arloliu/mdm/cache"
	"github.com/arloliu/mdm/format"
)

const (
	inputHex    = "hex"
	inputBase64 = "base64"
)

// Config is the resolved mdmdump configuration.
type Config struct {
	CacheTTL            time.Duration
	CacheCapacity       uint64
	Workers             int
	InputEncoding       string
	SnapshotPath        string
	SnapshotCompression format.CompressionType
	LogLevel            zerolog.Level
}

// DefaultConfig returns the configuration used for keys absent from the config file.
func DefaultConfig() Config {
	return Config{
		CacheTTL:            cache.DefaultTTL,
		Workers:             4,
		InputEncoding:       inputHex,
		SnapshotCompression: format.CompressionZstd,
		LogLevel:            zerolog.InfoLevel,
	}
}

type fileConfig struct {
	CacheTTL            string `toml:"cache_ttl"`
	CacheCapacity       int64  `toml:"cache_capacity"`
	Workers             int    `toml:"workers"`
	InputEncoding       string `toml:"input_encoding"`
	SnapshotPath        string `toml:"snapshot_path"`
	SnapshotCompression string `toml:"snapshot_compression"`
	LogLevel            string `toml:"log_level"`
}

// loadConfig reads a TOML config file over DefaultConfig. An empty path yields the
// defaults.
func loadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("load mdmdump config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("load mdmdump config: unknown key %q", undecoded[0].String())
	}

	if meta.IsDefined("cache_ttl") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.CacheTTL))
		if err != nil {
			return Config{}, fmt.Errorf("parse cache_ttl: %w", err)
		}
		cfg.CacheTTL = d
	}

	if meta.IsDefined("cache_capacity") {
		if raw.CacheCapacity < 0 {
			return Config{}, errors.New("cache_capacity must not be negative")
		}
		cfg.CacheCapacity = uint64(raw.CacheCapacity)
	}

	if meta.IsDefined("workers") {
		cfg.Workers = raw.Workers
	}

	if meta.IsDefined("input_encoding") {
		cfg.InputEncoding = strings.ToLower(strings.TrimSpace(raw.InputEncoding))
	}

	if meta.IsDefined("snapshot_path") {
		cfg.SnapshotPath = strings.TrimSpace(raw.SnapshotPath)
	}

	if meta.IsDefined("snapshot_compression") {
		ct, ok := format.ParseCompression(strings.ToLower(strings.TrimSpace(raw.SnapshotCompression)))
		if !ok {
			return Config{}, fmt.Errorf("parse snapshot_compression: unknown codec %q", raw.SnapshotCompression)
		}
		cfg.SnapshotCompression = ct
	}

	if meta.IsDefined("log_level") {
		lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(raw.LogLevel)))
		if err != nil {
			return Config{}, fmt.Errorf("parse log_level: %w", err)
		}
		cfg.LogLevel = lvl
	}

	return cfg, cfg.validate()
}

func (c Config) validate() error {
	if c.CacheTTL <= 0 {
		return errors.New("cache_ttl must be positive")
	}
	if c.Workers < 1 {
		return errors.New("workers must be at least 1")
	}
	switch c.InputEncoding {
	case inputHex, inputBase64:
	default:
		return fmt.Errorf("input_encoding must be %q or %q, got %q", inputHex, inputBase64, c.InputEncoding)
	}

	return nil
}
