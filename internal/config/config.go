// Package config handles configuration parsing for termgate.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigPath returns the default config file path:
// $XDG_CONFIG_HOME/termgate/config.yaml or ~/.config/termgate/config.yaml
func DefaultConfigPath() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "termgate", "config.yaml")
}

// Config represents the top-level configuration.
type Config struct {
	ListenAddr string           `yaml:"listen_addr"`
	Owners     OwnersConfig     `yaml:"owners"`
	Terminal   TerminalConfig   `yaml:"terminal"`
	Session    SessionConfig    `yaml:"session"`
	Transcript TranscriptConfig `yaml:"transcript"`
	Snapshot   SnapshotConfig   `yaml:"snapshot"`
	Reconnect  ReconnectConfig  `yaml:"reconnect"`
	Recording  RecordingConfig  `yaml:"recording"`
	Logging    LoggingConfig    `yaml:"logging"`
	Servers    []ServerConfig   `yaml:"servers"`
}

// OwnersConfig defines which owner identities may start or control sessions.
type OwnersConfig struct {
	Allowed []string `yaml:"allowed"`
}

// TerminalConfig defines the emulated terminal geometry and PTY behavior.
type TerminalConfig struct {
	Rows         int           `yaml:"rows"`
	Cols         int           `yaml:"cols"`
	Term         string        `yaml:"term"`          // TERM value for spawned processes
	PollInterval time.Duration `yaml:"poll_interval"` // PTY read poll cadence
}

// SessionConfig defines session lifecycle settings.
type SessionConfig struct {
	GraceTimeout time.Duration `yaml:"grace_timeout"` // wait before force-kill on stop
	StopTimeout  time.Duration `yaml:"stop_timeout"`  // bounded join for the feed loop
	MaxSessions  int           `yaml:"max_sessions"`  // total live sessions, 0 = unlimited
}

// TranscriptConfig defines chunked transcript delivery settings.
type TranscriptConfig struct {
	MaxChunkBytes int           `yaml:"max_chunk_bytes"` // hard cap per emitted chunk
	FlushInterval time.Duration `yaml:"flush_interval"`
}

// SnapshotConfig defines fixed-grid snapshot delivery settings.
type SnapshotConfig struct {
	Cadence time.Duration `yaml:"cadence"`
}

// ReconnectConfig defines the reconnecting channel policy for stream consumers.
type ReconnectConfig struct {
	InitialDelay   time.Duration `yaml:"initial_delay"`
	MaxDelay       time.Duration `yaml:"max_delay"`
	Multiplier     float64       `yaml:"multiplier"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	MaxAttempts    int           `yaml:"max_attempts"` // 0 = unbounded
	QueueCapacity  int           `yaml:"queue_capacity"` // 0 = unbounded
}

// RecordingConfig defines session recording settings.
type RecordingConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// LoggingConfig defines logging settings.
type LoggingConfig struct {
	Level    string `yaml:"level"`    // "debug", "info", "warn", "error"
	Sanitize bool   `yaml:"sanitize"` // redact credential-shaped data from logs
}

// ServerConfig defines an SSH target for remote sessions.
type ServerConfig struct {
	Name          string `yaml:"name"`
	Host          string `yaml:"host"`
	Port          int    `yaml:"port"`
	User          string `yaml:"user"`
	KeyPath       string `yaml:"key_path"`
	PasswordEnv   string `yaml:"password_env"`   // env var holding the SSH password
	PassphraseEnv string `yaml:"passphrase_env"` // env var holding the key passphrase
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		ListenAddr: "127.0.0.1:7870",
		Terminal: TerminalConfig{
			Rows:         24,
			Cols:         80,
			Term:         "xterm-256color",
			PollInterval: 100 * time.Millisecond,
		},
		Session: SessionConfig{
			GraceTimeout: 2 * time.Second,
			StopTimeout:  5 * time.Second,
		},
		Transcript: TranscriptConfig{
			MaxChunkBytes: 4000,
			FlushInterval: 200 * time.Millisecond,
		},
		Snapshot: SnapshotConfig{
			Cadence: 500 * time.Millisecond,
		},
		Reconnect: ReconnectConfig{
			InitialDelay:   time.Second,
			MaxDelay:       30 * time.Second,
			Multiplier:     2.0,
			ConnectTimeout: 10 * time.Second,
		},
		Logging: LoggingConfig{
			Level:    "info",
			Sanitize: true,
		},
	}
}

// Load reads configuration from the given path, falling back to defaults
// when the path is empty or the file does not exist.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		path = DefaultConfigPath()
	}
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	return cfg, nil
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if c.Terminal.Rows <= 0 || c.Terminal.Cols <= 0 {
		return fmt.Errorf("terminal geometry must be positive, got %dx%d", c.Terminal.Rows, c.Terminal.Cols)
	}
	if c.Terminal.PollInterval <= 0 {
		return fmt.Errorf("terminal poll_interval must be positive")
	}
	if c.Terminal.PollInterval < 10*time.Millisecond {
		return fmt.Errorf("terminal poll_interval %s too small, minimum 10ms", c.Terminal.PollInterval)
	}
	if c.Transcript.MaxChunkBytes <= 0 {
		return fmt.Errorf("transcript max_chunk_bytes must be positive")
	}
	if c.Snapshot.Cadence <= 0 {
		return fmt.Errorf("snapshot cadence must be positive")
	}
	if c.Reconnect.Multiplier < 1 {
		return fmt.Errorf("reconnect multiplier must be >= 1, got %v", c.Reconnect.Multiplier)
	}
	if c.Reconnect.InitialDelay <= 0 || c.Reconnect.MaxDelay < c.Reconnect.InitialDelay {
		return fmt.Errorf("reconnect delays invalid: initial %s, max %s",
			c.Reconnect.InitialDelay, c.Reconnect.MaxDelay)
	}
	if c.Recording.Enabled && c.Recording.Path == "" {
		return fmt.Errorf("recording enabled but no path configured")
	}
	for i, srv := range c.Servers {
		if srv.Name == "" {
			return fmt.Errorf("server %d: name is required", i)
		}
		if srv.Host == "" {
			return fmt.Errorf("server %q: host is required", srv.Name)
		}
	}
	return nil
}

// Server looks up an SSH target by name.
func (c *Config) Server(name string) (ServerConfig, bool) {
	for _, srv := range c.Servers {
		if srv.Name == name {
			return srv, true
		}
	}
	return ServerConfig{}, false
}
