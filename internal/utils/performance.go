package utils

import (
	"time"

	"github.com/rs/zerolog"
)

// SlowThreshold is the duration above which timed operations log a warning.
const SlowThreshold = 10 * time.Second

// Timer measures the duration of a named operation
type Timer struct {
	start time.Time
	name  string
	log   zerolog.Logger
	now   func() time.Time
}

// NewTimer starts a timer with the given name
func NewTimer(name string, log zerolog.Logger) *Timer {
	return &Timer{
		start: time.Now(),
		name:  name,
		log:   log,
		now:   time.Now,
	}
}

// Stop logs the elapsed time with optional integer fields and returns it
func (t *Timer) Stop(fields map[string]int) time.Duration {
	duration := t.now().Sub(t.start)

	event := t.log.Debug()
	if duration > SlowThreshold {
		event = t.log.Warn()
	}
	event = event.Str("operation", t.name).Dur("duration_ms", duration)
	for key, value := range fields {
		event = event.Int(key, value)
	}
	event.Msg("Operation completed")

	return duration
}

// OperationTimer provides a defer-friendly way to measure operation duration
//
// Usage:
//
//	func (o *Optimizer) Backtest(...) {
//	    defer utils.OperationTimer("backtest", o.log)()
//	}
func OperationTimer(operation string, log zerolog.Logger) func() {
	t := NewTimer(operation, log)
	return func() {
		t.Stop(nil)
	}
}
