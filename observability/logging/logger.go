// Package logging builds the production loggers behind core.Logger: zap
// (with lumberjack file rotation) or logrus, selected by configuration.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/Swind/go-task-port/config"
	"github.com/Swind/go-task-port/core"
)

// New builds the logger selected by c.Backend. The returned sync function
// flushes buffered entries and should be deferred by the caller.
func New(c config.LogConfig) (core.Logger, func() error, error) {
	if strings.ToLower(c.Backend) == "logrus" {
		l := SetupLogrus(c)
		return NewLogrusLogger(l), func() error { return nil }, nil
	}

	z, err := SetupLogger(c)
	if err != nil {
		return nil, nil, err
	}
	return NewZapLogger(z), z.Sync, nil
}

// SetupLogger builds a zap.Logger from the provided configuration, sets it as
// the global logger, and redirects the stdlib log package. The caller should
// defer logger.Sync().
func SetupLogger(c config.LogConfig) (*zap.Logger, error) {
	level := zap.NewAtomicLevel()
	switch strings.ToLower(c.Level) {
	case "debug":
		level.SetLevel(zap.DebugLevel)
	case "warn", "warning":
		level.SetLevel(zap.WarnLevel)
	case "error":
		level.SetLevel(zap.ErrorLevel)
	default:
		level.SetLevel(zap.InfoLevel)
	}

	encCfg := defaultEncoderConfig(c.Development)
	var encoder zapcore.Encoder
	if strings.ToLower(c.Format) == "json" {
		encoder = zapcore.NewJSONEncoder(encCfg)
	} else {
		encoder = zapcore.NewConsoleEncoder(encCfg)
	}

	var cores []zapcore.Core
	for _, out := range c.Outputs {
		cores = append(cores, zapcore.NewCore(encoder, zapcore.AddSync(openOutput(out, c)), level))
	}

	opts := []zap.Option{
		zap.AddCaller(),
		zap.AddCallerSkip(1),
		zap.AddStacktrace(zap.ErrorLevel),
	}
	if c.Development {
		opts = append(opts, zap.Development())
	}

	logger := zap.New(zapcore.NewTee(cores...), opts...)
	zap.ReplaceGlobals(logger)
	// redirect stdlib log to zap at Info level
	_, _ = zap.RedirectStdLogAt(logger, zap.InfoLevel)
	return logger, nil
}

// SetupLogrus builds a logrus.Logger from the same configuration.
func SetupLogrus(c config.LogConfig) *logrus.Logger {
	l := logrus.New()

	level, err := logrus.ParseLevel(c.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	l.SetLevel(level)

	if strings.ToLower(c.Format) == "json" {
		l.SetFormatter(&logrus.JSONFormatter{})
	} else {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	writers := make([]io.Writer, 0, len(c.Outputs))
	for _, out := range c.Outputs {
		writers = append(writers, openOutput(out, c))
	}
	switch len(writers) {
	case 0:
		l.SetOutput(os.Stdout)
	case 1:
		l.SetOutput(writers[0])
	default:
		l.SetOutput(io.MultiWriter(writers...))
	}
	return l
}

// openOutput resolves stdout, stderr or a file path. Files rotate through
// lumberjack when rotation is enabled.
func openOutput(out string, c config.LogConfig) io.Writer {
	switch strings.ToLower(out) {
	case "stdout":
		return os.Stdout
	case "stderr":
		return os.Stderr
	}

	if c.Rotation.Enable {
		return &lumberjack.Logger{
			Filename:   chooseFilename(out, c),
			MaxSize:    max(c.Rotation.MaxSizeMB, 10),
			MaxBackups: max(c.Rotation.MaxBackups, 1),
			MaxAge:     max(c.Rotation.MaxAgeDays, 7),
			Compress:   c.Rotation.Compress,
		}
	}

	// Ensure directory exists
	if dir := dirOf(out); dir != "" {
		_ = os.MkdirAll(dir, 0o755)
	}
	f, err := os.OpenFile(out, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		// fallback to stderr on failure
		return os.Stderr
	}
	return f
}

func defaultEncoderConfig(dev bool) zapcore.EncoderConfig {
	if dev {
		cfg := zap.NewDevelopmentEncoderConfig()
		cfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		return cfg
	}
	return zap.NewProductionEncoderConfig()
}

// chooseFilename returns the output filename. If a rotation filename is
// configured, prefer it; otherwise use the `out`.
func chooseFilename(out string, c config.LogConfig) string {
	if strings.TrimSpace(c.Rotation.Filename) != "" {
		return c.Rotation.Filename
	}
	return out
}

func dirOf(path string) string {
	i := strings.LastIndexAny(path, "/\\")
	if i <= 0 {
		return ""
	}
	return path[:i]
}
