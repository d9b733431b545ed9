package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Swind/go-task-port/config"
	"github.com/Swind/go-task-port/core"
)

// TestZapLogger_Fields tests that core fields become zap fields
func TestZapLogger_Fields(t *testing.T) {
	obs, logs := observer.New(zap.DebugLevel)
	var l core.Logger = NewZapLogger(zap.New(obs))

	l.Info("task finished", core.F("function", "double"), core.F("task_id", "t1"))
	l.Warn("task failed", core.F("error", "boom"))

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	ctx := entries[0].ContextMap()
	if entries[0].Message != "task finished" || ctx["function"] != "double" || ctx["task_id"] != "t1" {
		t.Errorf("entry = %+v", entries[0])
	}
	if entries[1].Level != zap.WarnLevel {
		t.Errorf("level = %v, want warn", entries[1].Level)
	}
}

// TestLogrusLogger_Fields tests the logrus adapter
func TestLogrusLogger_Fields(t *testing.T) {
	var buf bytes.Buffer
	base := logrus.New()
	base.SetOutput(&buf)
	base.SetFormatter(&logrus.JSONFormatter{})
	base.SetLevel(logrus.DebugLevel)

	NewLogrusLogger(base).Error("owner task panicked", core.F("runner", "r1"))

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode %q: %v", buf.String(), err)
	}
	if entry["msg"] != "owner task panicked" || entry["runner"] != "r1" || entry["level"] != "error" {
		t.Errorf("entry = %v", entry)
	}
}

// TestNew_Backends tests backend selection and file output
// Main test items:
// 1. zap backend writes JSON lines to a file
// 2. logrus backend honors the level
func TestNew_Backends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "taskport.log")

	l, sync, err := New(config.LogConfig{Level: "info", Format: "json", Backend: "zap", Outputs: []string{path}})
	if err != nil {
		t.Fatalf("New zap: %v", err)
	}
	l.Info("runner started", core.F("runner", "r1"))
	l.Debug("hidden")
	_ = sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"runner started"`) || strings.Contains(string(data), "hidden") {
		t.Errorf("log file = %s", data)
	}

	l, _, err = New(config.LogConfig{Level: "warn", Backend: "logrus", Outputs: []string{"stderr"}})
	if err != nil {
		t.Fatalf("New logrus: %v", err)
	}
	if _, ok := l.(*LogrusLogger); !ok {
		t.Errorf("logger = %T, want *LogrusLogger", l)
	}
}
