// Package zerolog adapts a zerolog.Logger to the admit.Logger hook.
package zerolog

import (
	"github.com/rs/zerolog"

	"github.com/mihaimyh/goadmit/pkg/admit"
)

// Logger forwards engine log entries to a zerolog.Logger.
type Logger struct {
	zl zerolog.Logger
}

// NewLogger wraps the given zerolog.Logger. Level filtering is the
// wrapped logger's business.
func NewLogger(zl zerolog.Logger) *Logger {
	return &Logger{zl: zl}
}

func (l *Logger) Debug(msg string, fields ...admit.Field) {
	l.emit(l.zl.Debug(), msg, fields)
}

func (l *Logger) Info(msg string, fields ...admit.Field) {
	l.emit(l.zl.Info(), msg, fields)
}

func (l *Logger) Warn(msg string, fields ...admit.Field) {
	l.emit(l.zl.Warn(), msg, fields)
}

func (l *Logger) Error(msg string, fields ...admit.Field) {
	l.emit(l.zl.Error(), msg, fields)
}

func (l *Logger) emit(event *zerolog.Event, msg string, fields []admit.Field) {
	for _, f := range fields {
		event = event.Interface(f.Key, f.Value)
	}
	event.Msg(msg)
}
