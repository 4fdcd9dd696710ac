// Package config provides YAML-based configuration loading for the relnet binaries.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gamevidea/relnet/internal/protocol"
	"github.com/gamevidea/relnet/relnet"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// Config is the root configuration shared by the server and the client.
type Config struct {
	// Listen is the address the server binds to.
	Listen string `mapstructure:"listen"`

	// Server is the address the client connects to.
	Server string `mapstructure:"server"`

	// Handshake is sent by the client with its connection request.
	Handshake string `mapstructure:"handshake"`

	// MaxSessions limits the open sessions of the server, zero means unlimited.
	MaxSessions int `mapstructure:"max_sessions"`

	Transport TransportConfig `mapstructure:"transport"`

	Log LogConfig `mapstructure:"log"`
}

// TransportConfig holds the session options.
type TransportConfig struct {
	MTUProbing        bool    `mapstructure:"mtu_probing"`
	Ping              bool    `mapstructure:"ping"`
	SimulatedDropRate float64 `mapstructure:"simulated_drop_rate"`
	ReceiveBufferSize int     `mapstructure:"receive_buffer_size"`
	SendBufferSize    int     `mapstructure:"send_buffer_size"`
	InboxSize         int     `mapstructure:"inbox_size"`
}

// LogConfig defines logger settings.
type LogConfig struct {
	// Level: debug, info, warn, error
	Level string `mapstructure:"level"`
	// Format: console or json
	Format string `mapstructure:"format"`
	// Outputs: list of outputs: stdout, stderr, or file paths
	Outputs []string `mapstructure:"outputs"`

	// Rotation controls file rotation when writing to files
	Rotation RotationConfig `mapstructure:"rotation"`
}

// RotationConfig controls log file rotation for file outputs.
type RotationConfig struct {
	Enable     bool   `mapstructure:"enable"`
	Filename   string `mapstructure:"filename"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// Default returns a Config populated with sensible defaults.
func Default() *Config {
	return &Config{
		Listen:      ":7777",
		Server:      "127.0.0.1:7777",
		Handshake:   "relnet",
		MaxSessions: 0,
		Transport: TransportConfig{
			MTUProbing:        true,
			Ping:              true,
			SimulatedDropRate: 0,
			ReceiveBufferSize: protocol.DEFAULT_BUFFER_SIZE,
			SendBufferSize:    protocol.DEFAULT_BUFFER_SIZE,
			InboxSize:         1024,
		},
		Log: LogConfig{
			Level:   "info",
			Format:  "console",
			Outputs: []string{"stdout"},
			Rotation: RotationConfig{
				Enable:     false,
				Filename:   "logs/relnet.log",
				MaxSizeMB:  50,
				MaxBackups: 3,
				MaxAgeDays: 28,
				Compress:   true,
			},
		},
	}
}

// Load reads configuration from the provided path (if non-empty),
// otherwise it searches common locations and supports environment overrides.
// Environment variables use the prefix RELNET and `.`/`-` are replaced with `_`.
// Example: RELNET_LOG_LEVEL=debug
func Load(path string) (*Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("RELNET")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	// seed defaults for viper so env-only configs work
	v.SetDefault("listen", cfg.Listen)
	v.SetDefault("server", cfg.Server)
	v.SetDefault("handshake", cfg.Handshake)
	v.SetDefault("max_sessions", cfg.MaxSessions)
	v.SetDefault("transport.mtu_probing", cfg.Transport.MTUProbing)
	v.SetDefault("transport.ping", cfg.Transport.Ping)
	v.SetDefault("transport.simulated_drop_rate", cfg.Transport.SimulatedDropRate)
	v.SetDefault("transport.receive_buffer_size", cfg.Transport.ReceiveBufferSize)
	v.SetDefault("transport.send_buffer_size", cfg.Transport.SendBufferSize)
	v.SetDefault("transport.inbox_size", cfg.Transport.InboxSize)
	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)
	v.SetDefault("log.outputs", cfg.Log.Outputs)
	v.SetDefault("log.rotation.enable", cfg.Log.Rotation.Enable)
	v.SetDefault("log.rotation.filename", cfg.Log.Rotation.Filename)
	v.SetDefault("log.rotation.max_size_mb", cfg.Log.Rotation.MaxSizeMB)
	v.SetDefault("log.rotation.max_backups", cfg.Log.Rotation.MaxBackups)
	v.SetDefault("log.rotation.max_age_days", cfg.Log.Rotation.MaxAgeDays)
	v.SetDefault("log.rotation.compress", cfg.Log.Rotation.Compress)

	if path == "" {
		if envPath := os.Getenv("RELNET_CONFIG"); envPath != "" {
			path = envPath
		}
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("relnet")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".relnet"))
		}
	}

	// Read config file if present; if not found, continue with defaults/env
	if err := v.ReadInConfig(); err != nil {
		var viperConfigFileNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &viperConfigFileNotFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch strings.ToLower(strings.TrimSpace(c.Log.Level)) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("invalid log.level: %q", c.Log.Level)
	}

	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
	if len(c.Log.Outputs) == 0 {
		c.Log.Outputs = []string{"stdout"}
	}

	if c.Transport.SimulatedDropRate < 0 || c.Transport.SimulatedDropRate >= 1 {
		return fmt.Errorf("invalid transport.simulated_drop_rate: %v", c.Transport.SimulatedDropRate)
	}
	if c.MaxSessions < 0 {
		return fmt.Errorf("invalid max_sessions: %d", c.MaxSessions)
	}
	return nil
}

// Options converts the configuration into session options logging to logger.
func (c *Config) Options(logger *logrus.Entry) relnet.Options {
	opts := relnet.DefaultOptions()
	opts.MTUProbing = c.Transport.MTUProbing
	opts.Ping = c.Transport.Ping
	opts.SimulatedDropRate = c.Transport.SimulatedDropRate
	opts.ReceiveBufferSize = c.Transport.ReceiveBufferSize
	opts.SendBufferSize = c.Transport.SendBufferSize
	opts.InboxSize = c.Transport.InboxSize
	opts.MaxSessions = c.MaxSessions
	opts.Logger = logger
	return opts
}

// MustLoad is a convenience that panics on error.
func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		panic(err)
	}
	return cfg
}
