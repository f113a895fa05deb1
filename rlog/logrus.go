package rlog

import (
	"os"

	"github.com/sirupsen/logrus"
)

// logrusProvider is the default Provider, backed by sirupsen/logrus. Set
// RTPSCORE_LOG_FORMAT=json to switch from the human-readable text
// formatter to JSON (useful when shipping logs off-host).
type logrusProvider struct {
	log *logrus.Logger
}

func newLogrusProvider() *logrusProvider {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	if os.Getenv("RTPSCORE_LOG_FORMAT") == "json" {
		l.SetFormatter(&logrus.JSONFormatter{})
	} else {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return &logrusProvider{log: l}
}

func (p *logrusProvider) entry(f Fields) *logrus.Entry {
	return p.log.WithFields(logrus.Fields(f))
}

func (p *logrusProvider) Critical(f Fields, format string, v ...interface{}) {
	// A library must never exit the process on the caller's behalf
	// (logrus.Fatal would); critical conditions are reported at Error
	// level with a marker field so downstream alerting can key on it.
	p.entry(f).WithField("severity", "critical").Errorf(format, v...)
}

func (p *logrusProvider) Error(f Fields, format string, v ...interface{}) {
	p.entry(f).Errorf(format, v...)
}

func (p *logrusProvider) Warn(f Fields, format string, v ...interface{}) {
	p.entry(f).Warnf(format, v...)
}

func (p *logrusProvider) Info(f Fields, format string, v ...interface{}) {
	p.entry(f).Infof(format, v...)
}

func (p *logrusProvider) Debug(f Fields, format string, v ...interface{}) {
	p.entry(f).Debugf(format, v...)
}

func (p *logrusProvider) Trace(f Fields, format string, v ...interface{}) {
	p.entry(f).Tracef(format, v...)
}
