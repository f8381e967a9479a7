package app

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
)

func TestNewLoggerLevel(t *testing.T) {
	log, err := NewLogger(LogConfig{})
	if err != nil {
		t.Fatal(err)
	}
	if log.Core().Enabled(zap.DebugLevel) {
		t.Fatal("debug must be disabled unless verbose")
	}

	log, err = NewLogger(LogConfig{Verbose: true})
	if err != nil {
		t.Fatal(err)
	}
	if !log.Core().Enabled(zap.DebugLevel) {
		t.Fatal("debug must be enabled when verbose")
	}
}

func TestNewLoggerFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cracfuzzy.log")
	log, err := NewLogger(LogConfig{File: path, MaxSizeMB: 1})
	if err != nil {
		t.Fatal(err)
	}
	log.Info("station started", zap.String("device_id", "crac-1"))
	_ = log.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	line := strings.TrimSpace(string(data))
	var entry map[string]any
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		t.Fatalf("file entry is not JSON: %q: %v", line, err)
	}
	if entry["msg"] != "station started" || entry["device_id"] != "crac-1" {
		t.Fatalf("unexpected entry %v", entry)
	}
}
