// Package rlog provides the structured logging facade used throughout
// rtpscore. It plays the same role go-iecp5's clog package plays for that
// stack: a small always-present logging handle that call sites never need
// to nil-check, with level filtering controlled independently of the
// underlying provider.
package rlog

import (
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// Level mirrors RFC5424 severities, narrowed to what the protocol engines
// actually emit.
type Level uint32

const (
	LevelCritical Level = iota
	LevelError
	LevelWarn
	LevelInfo
	LevelDebug
	LevelTrace
)

// Provider is the interface a logging backend must satisfy. The default
// provider wraps logrus; callers may substitute their own (e.g. to route
// through an existing application logger) via SetProvider.
type Provider interface {
	Critical(fields Fields, format string, v ...interface{})
	Error(fields Fields, format string, v ...interface{})
	Warn(fields Fields, format string, v ...interface{})
	Info(fields Fields, format string, v ...interface{})
	Debug(fields Fields, format string, v ...interface{})
	Trace(fields Fields, format string, v ...interface{})
}

// Fields attaches structured context (guid, seq, domain, ...) to a log
// line instead of interpolating it into the message.
type Fields map[string]interface{}

// Logger is the handle components hold. Build one with New: it logs
// through the default logrus-backed provider at LevelWarn. The zero value
// has no provider and is not usable.
type Logger struct {
	provider Provider
	level    uint32
	fields   Fields
}

// New creates a Logger with the given prefix field (commonly the component
// name, e.g. "reliability.writer") pre-attached to every line.
func New(component string) *Logger {
	return &Logger{
		provider: defaultProvider,
		level:    uint32(LevelWarn),
		fields:   Fields{"component": component},
	}
}

// SetLevel sets the minimum level that will reach the provider.
func (l *Logger) SetLevel(lvl Level) {
	atomic.StoreUint32(&l.level, uint32(lvl))
}

// SetProvider overrides the backend. Passing nil is a no-op.
func (l *Logger) SetProvider(p Provider) {
	if p != nil {
		l.provider = p
	}
}

// WithFields returns a derived Logger with additional structured fields
// merged in; used to correlate an entire datagram's submessage trace
// (see the xid correlation id attached in package wire).
func (l *Logger) WithFields(f Fields) *Logger {
	merged := make(Fields, len(l.fields)+len(f))
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range f {
		merged[k] = v
	}
	return &Logger{provider: l.provider, level: atomic.LoadUint32(&l.level), fields: merged}
}

func (l *Logger) enabled(lvl Level) bool {
	return uint32(lvl) <= atomic.LoadUint32(&l.level)
}

func (l *Logger) Critical(format string, v ...interface{}) {
	if l.enabled(LevelCritical) {
		l.provider.Critical(l.fields, format, v...)
	}
}

func (l *Logger) Error(format string, v ...interface{}) {
	if l.enabled(LevelError) {
		l.provider.Error(l.fields, format, v...)
	}
}

func (l *Logger) Warn(format string, v ...interface{}) {
	if l.enabled(LevelWarn) {
		l.provider.Warn(l.fields, format, v...)
	}
}

func (l *Logger) Info(format string, v ...interface{}) {
	if l.enabled(LevelInfo) {
		l.provider.Info(l.fields, format, v...)
	}
}

func (l *Logger) Debug(format string, v ...interface{}) {
	if l.enabled(LevelDebug) {
		l.provider.Debug(l.fields, format, v...)
	}
}

func (l *Logger) Trace(format string, v ...interface{}) {
	if l.enabled(LevelTrace) {
		l.provider.Trace(l.fields, format, v...)
	}
}

var defaultProvider Provider = newLogrusProvider()
