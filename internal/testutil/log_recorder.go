// Package testutil provides common test utilities for BioRx-Intelligence.
package testutil

import (
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/turtacn/BioRx-Intelligence/internal/infrastructure/monitoring/logging"
)

// LogRecorder is a logging.Logger that keeps every entry in memory.
type LogRecorder struct {
	logging.Logger
	logs *observer.ObservedLogs
}

// NewLogRecorder records entries at debug level and above.
func NewLogRecorder() *LogRecorder {
	return NewLogRecorderAt(zapcore.DebugLevel)
}

// NewLogRecorderAt records entries at level and above.
func NewLogRecorderAt(level zapcore.Level) *LogRecorder {
	core, logs := observer.New(level)
	return &LogRecorder{Logger: logging.NewLoggerFromCore(core), logs: logs}
}

// Messages returns the messages logged at level, in order.
func (r *LogRecorder) Messages(level zapcore.Level) []string {
	var out []string
	for _, e := range r.logs.FilterLevelExact(level).All() {
		out = append(out, e.Message)
	}
	return out
}

// Has reports whether msg was logged at level.
func (r *LogRecorder) Has(level zapcore.Level, msg string) bool {
	return r.logs.FilterLevelExact(level).FilterMessage(msg).Len() > 0
}

// Field returns the value of key on the first entry logged with msg.
func (r *LogRecorder) Field(msg, key string) (interface{}, bool) {
	entries := r.logs.FilterMessage(msg).All()
	if len(entries) == 0 {
		return nil, false
	}
	v, ok := entries[0].ContextMap()[key]
	return v, ok
}

// Len returns the number of recorded entries.
func (r *LogRecorder) Len() int { return r.logs.Len() }

// Reset drops all recorded entries.
func (r *LogRecorder) Reset() { r.logs.TakeAll() }
