// Package config loads dmm settings from TOML files.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/drgolem/dmm/pkg/output"
	"github.com/drgolem/dmm/pkg/sample"
)

const appName = "dmm"

type Config struct {
	Audio   AudioConfig   `koanf:"audio"`
	Library LibraryConfig `koanf:"library"`
	Log     LogConfig     `koanf:"log"`
}

type AudioConfig struct {
	Backend         string `koanf:"backend"`           // "portaudio" or "oto" (default: portaudio)
	Device          *int   `koanf:"device"`            // PortAudio device index (default: 1)
	Format          string `koanf:"format"`            // "u8", "s16", "s32" or "f32" (default: s16)
	FramesPerBuffer int    `koanf:"frames_per_buffer"` // callback size hint (default: 512)
	BufferMs        int    `koanf:"buffer_ms"`         // ring length in milliseconds (default: 200)
}

type LibraryConfig struct {
	CacheDir string `koanf:"cache_dir"` // default: $XDG_CACHE_HOME/dmm
}

type LogConfig struct {
	Level string `koanf:"level"` // "debug", "info", "warn" or "error" (default: info)
}

// Load reads the default config files, lowest priority first.
// Missing files are skipped.
func Load() (*Config, error) {
	return LoadFiles(getConfigPaths()...)
}

// LoadFiles reads paths in order; later files override earlier ones.
func LoadFiles(paths ...string) (*Config, error) {
	k := koanf.New(".")

	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if cfg.Library.CacheDir != "" {
		cfg.Library.CacheDir = expandPath(cfg.Library.CacheDir)
	}
	cfg.Audio.Backend = strings.ToLower(strings.TrimSpace(cfg.Audio.Backend))

	return cfg, nil
}

func getConfigPaths() []string {
	return []string{
		// 1. $XDG_CONFIG_HOME/dmm/config.toml
		filepath.Join(xdg.ConfigHome, appName, "config.toml"),
		// 2. ./config.toml (pwd, highest priority)
		"config.toml",
	}
}

func expandPath(path string) string {
	if path != "" && path[0] == '~' {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[1:])
		}
	}
	return path
}

// GetAudioConfig returns the audio configuration with defaults applied.
func (c *Config) GetAudioConfig() AudioConfig {
	cfg := c.Audio

	if cfg.Backend == "" {
		cfg.Backend = "portaudio"
	}
	if cfg.Device == nil {
		device := 1
		cfg.Device = &device
	}
	if cfg.Format == "" {
		cfg.Format = sample.S16.String()
	}
	if cfg.FramesPerBuffer <= 0 {
		cfg.FramesPerBuffer = output.DefaultFramesPerBuffer
	}
	if cfg.BufferMs <= 0 {
		cfg.BufferMs = int(output.DefaultBufferDuration / time.Millisecond)
	}

	return cfg
}

// SampleFormat parses the configured device sample format.
func (a AudioConfig) SampleFormat() (sample.Format, error) {
	return sample.ParseFormat(a.Format)
}

// BufferDuration returns the ring length.
func (a AudioConfig) BufferDuration() time.Duration {
	return time.Duration(a.BufferMs) * time.Millisecond
}

// CacheDir returns the cache directory, defaulting to $XDG_CACHE_HOME/dmm.
func (c *Config) CacheDir() string {
	if c.Library.CacheDir != "" {
		return c.Library.CacheDir
	}
	return filepath.Join(xdg.CacheHome, appName)
}

// LogLevel parses the configured log level, defaulting to info.
func (c *Config) LogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return slog.LevelInfo
	}
	return level
}
