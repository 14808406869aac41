package boothost

import (
	"time"

	"github.com/RZJZWD/MCU-boot/internal/transport"
)

// Config holds the orchestrator's configuration, assembled by Option
// functions over a documented default.
type Config struct {
	Logger Logger

	// TransferConfig is the base per-command transport configuration;
	// individual CommandItems may override its fields.
	TransferConfig transport.Config

	// CheckpointDir, when non-empty, enables resumable uploads: UploadAll
	// persists and consults a checkpoint file under this directory.
	CheckpointDir string

	// EventBuffer sizes the orchestrator's event channel.
	EventBuffer int
}

func defaultConfig() Config {
	return Config{
		Logger:         noopLogger{},
		TransferConfig: transport.DefaultConfig(),
		EventBuffer:    64,
	}
}

// Option configures an Orchestrator at construction time.
type Option func(*Config)

// WithLogger sets the orchestrator's logger.
func WithLogger(logger Logger) Option {
	return func(c *Config) {
		if logger != nil {
			c.Logger = logger
		}
	}
}

// WithTimeout sets the base per-command transport timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		c.TransferConfig.Timeout = timeout
	}
}

// WithRetryCount sets the base transport-level retry count.
func WithRetryCount(retries int) Option {
	return func(c *Config) {
		if retries > 0 {
			c.TransferConfig.RetryCount = retries
		}
	}
}

// WithLineEnding sets the raw byte suffix appended to every outbound frame.
func WithLineEnding(suffix []byte) Option {
	return func(c *Config) {
		c.TransferConfig.LineEnding = suffix
	}
}

// WithCheckpointDir enables resumable uploads persisted under dir.
func WithCheckpointDir(dir string) Option {
	return func(c *Config) {
		c.CheckpointDir = dir
	}
}

// WithEventBuffer sets the orchestrator's event channel buffer size.
func WithEventBuffer(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.EventBuffer = n
		}
	}
}
