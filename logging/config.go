package logging

import "time"

// Config tunes the event router that carries session, world, and storage
// events from the hub to the configured sinks.
type Config struct {
	// EnabledSinks names the sinks to construct, e.g. "console", "json".
	EnabledSinks []string
	// BufferSize bounds the publish queue. Overflow drops events instead
	// of stalling a broadcast.
	BufferSize int
	// MinimumSeverity filters events below the given level before they
	// reach any sink.
	MinimumSeverity Severity
	// Fields are attached to every event, e.g. a node name.
	Fields  map[string]any
	JSON    JSONConfig
	Console ConsoleConfig
	// DropWarnInterval rate-limits the fallback warning logged when the
	// queue overflows.
	DropWarnInterval time.Duration
}

// JSONConfig tunes the newline-delimited event log.
type JSONConfig struct {
	// FlushInterval bounds how long a buffered event may wait before it
	// lands in the log file.
	FlushInterval time.Duration
}

// ConsoleConfig tunes the human-readable sink.
type ConsoleConfig struct {
	// UseColor highlights severities with ANSI colors.
	UseColor bool
}

// DefaultConfig suits a single-node server: console output, a queue sized
// for merge/broadcast bursts, debug events filtered out.
func DefaultConfig() Config {
	return Config{
		EnabledSinks:     []string{"console"},
		BufferSize:       256,
		MinimumSeverity:  SeverityInfo,
		DropWarnInterval: 5 * time.Second,
		JSON: JSONConfig{
			FlushInterval: 2 * time.Second,
		},
	}
}

// CloneFields copies the ambient field mapping so the router can attach it
// without sharing the caller's map.
func (c Config) CloneFields() map[string]any {
	if len(c.Fields) == 0 {
		return nil
	}
	cloned := make(map[string]any, len(c.Fields))
	for k, v := range c.Fields {
		cloned[k] = v
	}
	return cloned
}
