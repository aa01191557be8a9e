package service

import (
	"time"

	"github.com/rs/zerolog"
)

// Clock abstracts time so Recommend/RecordInteractions are testable without
// sleeping. Grounded on the teacher's internal/rag/service/options.go Clock.
type Clock interface {
	Now() time.Time
}

// SystemClock implements Clock using time.Now.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// Logger is a minimal structured-logging interface, satisfied by
// zerologLogger below (and by anything else shaped the same way).
type Logger interface {
	Info(msg string, fields map[string]any)
	Error(msg string, fields map[string]any)
	Debug(msg string, fields map[string]any)
}

// Metrics is the counters/histograms surface the façade emits against.
// internal/obsmetrics.OtelMetrics and MockMetrics already satisfy this
// shape structurally; neither needs to import this package.
type Metrics interface {
	IncCounter(name string, labels map[string]string)
	ObserveHistogram(name string, value float64, labels map[string]string)
}

// NoopMetrics implements Metrics without side effects.
type NoopMetrics struct{}

func (NoopMetrics) IncCounter(string, map[string]string)                {}
func (NoopMetrics) ObserveHistogram(string, float64, map[string]string) {}

// defaultLogger discards everything; New's zero value before WithLogger.
type defaultLogger struct{}

func (defaultLogger) Info(string, map[string]any)  {}
func (defaultLogger) Error(string, map[string]any) {}
func (defaultLogger) Debug(string, map[string]any) {}

// zerologLogger adapts a zerolog.Logger to the Logger interface, for callers
// that want the teacher's usual logging backend instead of NoopMetrics-style
// silence.
type zerologLogger struct{ l zerolog.Logger }

// NewZerologLogger wraps l as a Logger.
func NewZerologLogger(l zerolog.Logger) Logger { return zerologLogger{l: l} }

func (z zerologLogger) Info(msg string, fields map[string]any)  { z.log(z.l.Info(), msg, fields) }
func (z zerologLogger) Error(msg string, fields map[string]any) { z.log(z.l.Error(), msg, fields) }
func (z zerologLogger) Debug(msg string, fields map[string]any) { z.log(z.l.Debug(), msg, fields) }

func (zerologLogger) log(e *zerolog.Event, msg string, fields map[string]any) {
	for k, v := range fields {
		e = e.Interface(k, v)
	}
	e.Msg(msg)
}

// Option configures a Service during construction.
type Option func(*Service)

// WithLogger sets a custom logger.
func WithLogger(l Logger) Option { return func(s *Service) { s.log = l } }

// WithMetrics sets a custom metrics collector.
func WithMetrics(m Metrics) Option { return func(s *Service) { s.metrics = m } }

// WithClock sets a custom clock implementation.
func WithClock(c Clock) Option { return func(s *Service) { s.clock = c } }

func ms(d time.Duration) int64 { return d.Milliseconds() }
