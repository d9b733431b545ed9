package logging

import (
	"github.com/sirupsen/logrus"
	"go.uber.org/zap"

	"github.com/Swind/go-task-port/core"
)

// ZapLogger adapts *zap.Logger to core.Logger.
type ZapLogger struct {
	l *zap.Logger
}

// NewZapLogger wraps l.
func NewZapLogger(l *zap.Logger) *ZapLogger {
	return &ZapLogger{l: l}
}

func (z *ZapLogger) Debug(msg string, fields ...core.Field) { z.l.Debug(msg, zapFields(fields)...) }
func (z *ZapLogger) Info(msg string, fields ...core.Field)  { z.l.Info(msg, zapFields(fields)...) }
func (z *ZapLogger) Warn(msg string, fields ...core.Field)  { z.l.Warn(msg, zapFields(fields)...) }
func (z *ZapLogger) Error(msg string, fields ...core.Field) { z.l.Error(msg, zapFields(fields)...) }

func zapFields(fields []core.Field) []zap.Field {
	out := make([]zap.Field, len(fields))
	for i, f := range fields {
		out[i] = zap.Any(f.Key, f.Value)
	}
	return out
}

// LogrusLogger adapts *logrus.Logger to core.Logger.
type LogrusLogger struct {
	l *logrus.Logger
}

// NewLogrusLogger wraps l.
func NewLogrusLogger(l *logrus.Logger) *LogrusLogger {
	return &LogrusLogger{l: l}
}

func (g *LogrusLogger) Debug(msg string, fields ...core.Field) { g.entry(fields).Debug(msg) }
func (g *LogrusLogger) Info(msg string, fields ...core.Field)  { g.entry(fields).Info(msg) }
func (g *LogrusLogger) Warn(msg string, fields ...core.Field)  { g.entry(fields).Warn(msg) }
func (g *LogrusLogger) Error(msg string, fields ...core.Field) { g.entry(fields).Error(msg) }

func (g *LogrusLogger) entry(fields []core.Field) *logrus.Entry {
	data := make(logrus.Fields, len(fields))
	for _, f := range fields {
		data[f.Key] = f.Value
	}
	return logrus.NewEntry(g.l).WithFields(data)
}
