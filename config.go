package tortoisedb

import "go.uber.org/zap"

const (
	// DefaultFlushThreshold is the default memtable size_hint threshold
	// (bytes) at which a flush to a new SST is triggered.
	DefaultFlushThreshold = 4 * 1024 * 1024
)

// Config contains database settings which are updated with ConfigOption functions.
type Config struct {
	flushThreshold int
	logger         *zap.Logger
}

// ConfigOption helps to change default database settings.
type ConfigOption func(*Config)

// WithFlushThreshold sets the memtable size_hint threshold (in the unit
// returned by size_hint, bytes by default) that triggers a flush.
func WithFlushThreshold(threshold int) ConfigOption {
	return func(c *Config) {
		c.flushThreshold = threshold
	}
}

// WithLogger attaches a structured logger to the engine. If omitted,
// Open uses zap.NewNop so the core never requires a logging backend to
// function.
func WithLogger(logger *zap.Logger) ConfigOption {
	return func(c *Config) {
		c.logger = logger
	}
}
