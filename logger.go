package boothost

import "log"

// Logger is the pluggable logging surface the orchestrator and transport
// call through. A nil Logger is a silent no-op; callers are never required
// to provide one.
type Logger interface {
	Debug(msg string, keysAndValues ...interface{})
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// StdLogger backs Logger with the standard log package, for callers who
// just want output on stderr without wiring a structured logging framework.
//
// Example:
//
//	orch := boothost.New(boothost.WithLogger(boothost.NewStdLogger()))
type StdLogger struct {
	Debugging bool
}

// NewStdLogger returns a StdLogger with debug output disabled.
func NewStdLogger() *StdLogger {
	return &StdLogger{}
}

func (l *StdLogger) Debug(msg string, keysAndValues ...interface{}) {
	if !l.Debugging {
		return
	}
	log.Println(append([]interface{}{"DEBUG", msg}, keysAndValues...)...)
}

func (l *StdLogger) Info(msg string, keysAndValues ...interface{}) {
	log.Println(append([]interface{}{"INFO", msg}, keysAndValues...)...)
}

func (l *StdLogger) Error(msg string, keysAndValues ...interface{}) {
	log.Println(append([]interface{}{"ERROR", msg}, keysAndValues...)...)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...interface{}) {}
func (noopLogger) Info(string, ...interface{})  {}
func (noopLogger) Error(string, ...interface{}) {}
