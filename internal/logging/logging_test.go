package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestNewRespectsLevel(t *testing.T) {
	log := New("warn")
	if !log.Enabled(nil, slog.LevelWarn) {
		t.Fatal("warn level logger should be enabled for Warn")
	}
	if log.Enabled(nil, slog.LevelDebug) {
		t.Fatal("warn level logger should not be enabled for Debug")
	}
}

func TestNewDefaultsToInfo(t *testing.T) {
	log := New("nonsense")
	if !log.Enabled(nil, slog.LevelInfo) {
		t.Fatal("unrecognized level should default to info")
	}
	if log.Enabled(nil, slog.LevelDebug) {
		t.Fatal("unrecognized level should not enable debug")
	}
}

func TestComponentAddsField(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewJSONHandler(&buf, nil))
	log := Component(base, "sevenk")
	log.Info("test message")

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("unmarshal log line: %v", err)
	}
	if record["component"] != "sevenk" {
		t.Fatalf("component field = %v, want sevenk", record["component"])
	}
	if !strings.Contains(buf.String(), "test message") {
		t.Fatal("log line missing message")
	}
}
