package config

// Configuration loading and validation for eipcore

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tturner/eipcore/internal/enip"
	"github.com/tturner/eipcore/internal/errors"
	"github.com/tturner/eipcore/internal/fragment"
	"github.com/tturner/eipcore/internal/logging"
)

// TargetConfig identifies the device.
type TargetConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// TimeoutConfig bounds dialing and each exchange.
type TimeoutConfig struct {
	DialMs     int `yaml:"dial_ms"`
	ExchangeMs int `yaml:"exchange_ms"`
}

// FragmentConfig controls fragmented transfers.
type FragmentConfig struct {
	MaxChunk int `yaml:"max_chunk"` // bytes of value per Write_Tag_Fragmented round
}

// LoggingConfig selects the log level and an optional JSON log file.
type LoggingConfig struct {
	Level string `yaml:"level"` // silent, error, info, verbose, debug
	File  string `yaml:"file,omitempty"`
}

// CaptureConfig enables pcap recording of every exchange.
type CaptureConfig struct {
	PCAP string `yaml:"pcap,omitempty"`
}

// MetricsConfig enables a Prometheus text dump at exit.
type MetricsConfig struct {
	File string `yaml:"file,omitempty"`
}

// Config represents the client configuration
type Config struct {
	Target   TargetConfig   `yaml:"target"`
	Timeouts TimeoutConfig  `yaml:"timeouts"`
	Fragment FragmentConfig `yaml:"fragment"`
	Logging  LoggingConfig  `yaml:"logging"`
	Capture  CaptureConfig  `yaml:"capture,omitempty"`
	Metrics  MetricsConfig  `yaml:"metrics,omitempty"`
}

// CreateDefaultConfig creates a configuration with every default filled in
// and no target host.
func CreateDefaultConfig() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Target.Port == 0 {
		cfg.Target.Port = enip.DefaultPort
	}
	if cfg.Timeouts.DialMs == 0 {
		cfg.Timeouts.DialMs = int(enip.DefaultTimeout / time.Millisecond)
	}
	if cfg.Timeouts.ExchangeMs == 0 {
		cfg.Timeouts.ExchangeMs = int(enip.DefaultTimeout / time.Millisecond)
	}
	if cfg.Fragment.MaxChunk == 0 {
		cfg.Fragment.MaxChunk = fragment.DefaultMaxChunk
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = logging.LogLevelInfo.String()
	}
}

// WriteDefaultConfig writes a default configuration to a file
func WriteDefaultConfig(path string) error {
	data, err := yaml.Marshal(CreateDefaultConfig())
	if err != nil {
		return fmt.Errorf("marshal default config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// LoadConfig loads a configuration from a YAML file, fills defaults and
// validates it. If the file doesn't exist and autoCreate is true, a default
// config file is written first.
func LoadConfig(path string, autoCreate bool) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, errors.WrapConfigError(fmt.Errorf("read config file: %w", err), path)
		}
		if !autoCreate {
			return nil, errors.WrapConfigError(fmt.Errorf("config file not found: %s", path), path)
		}
		if err := WriteDefaultConfig(path); err != nil {
			return nil, fmt.Errorf("create default config: %w", err)
		}
		if data, err = os.ReadFile(path); err != nil {
			return nil, errors.WrapConfigError(fmt.Errorf("read created config file: %w", err), path)
		}
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, errors.WrapConfigError(err, path)
	}
	return cfg, nil
}

// Parse decodes YAML, rejecting unknown keys, then fills defaults and
// validates.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && err != io.EOF {
		return nil, fmt.Errorf("parse YAML: %w", err)
	}
	applyDefaults(&cfg)
	if err := ValidateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &cfg, nil
}

// ValidateConfig reports the first invalid field. An empty host is allowed
// here; the command line may supply it.
func ValidateConfig(cfg *Config) error {
	if strings.ContainsAny(cfg.Target.Host, " \t/") {
		return fmt.Errorf("target.host %q is not a host name or address", cfg.Target.Host)
	}
	if cfg.Target.Port < 1 || cfg.Target.Port > 65535 {
		return fmt.Errorf("target.port must be between 1 and 65535, got %d", cfg.Target.Port)
	}
	if cfg.Timeouts.DialMs < 0 {
		return fmt.Errorf("timeouts.dial_ms must be >= 0")
	}
	if cfg.Timeouts.ExchangeMs < 0 {
		return fmt.Errorf("timeouts.exchange_ms must be >= 0")
	}
	if cfg.Fragment.MaxChunk < 1 || cfg.Fragment.MaxChunk > fragment.MaxChunk {
		return fmt.Errorf("fragment.max_chunk must be between 1 and %d, got %d", fragment.MaxChunk, cfg.Fragment.MaxChunk)
	}
	if _, err := logging.ParseLevel(cfg.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	return nil
}

// Endpoint returns the host:port the enip driver dials.
func (c *Config) Endpoint() string {
	if strings.Contains(c.Target.Host, ":") && !strings.HasPrefix(c.Target.Host, "[") {
		return fmt.Sprintf("[%s]:%d", c.Target.Host, c.Target.Port)
	}
	return fmt.Sprintf("%s:%d", c.Target.Host, c.Target.Port)
}

// DialTimeout returns the dial bound.
func (c *Config) DialTimeout() time.Duration {
	return time.Duration(c.Timeouts.DialMs) * time.Millisecond
}

// ExchangeTimeout returns the per-exchange bound.
func (c *Config) ExchangeTimeout() time.Duration {
	return time.Duration(c.Timeouts.ExchangeMs) * time.Millisecond
}

// DecodeHex parses hex with optional spaces, colons or a 0x prefix, as
// typed on a command line.
func DecodeHex(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(s), "0x"), "0X")
	s = strings.NewReplacer(" ", "", ":", "", "-", "").Replace(s)
	out, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid hex %q: %w", s, err)
	}
	return out, nil
}
