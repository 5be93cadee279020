package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func TestNewLoggerTo_JSONWhenPiped(t *testing.T) {
	var buf bytes.Buffer
	logger := WithSessionID(NewLoggerTo(&buf, "info"), "s-1")
	logger.Debug("hidden")
	logger.Info("visible", "segments", 2)

	var rec map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &rec); err != nil {
		t.Fatalf("output is not a single JSON record: %v (%q)", err, buf.String())
	}
	if rec["msg"] != "visible" || rec["session_id"] != "s-1" {
		t.Errorf("unexpected record %v", rec)
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARNING": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"chatty":  slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestSanitizeToken(t *testing.T) {
	if got := SanitizeToken("short"); got != "****" {
		t.Errorf("SanitizeToken(short) = %s", got)
	}
	if got := SanitizeToken("abcd1234efgh5678"); got != "abcd...5678" {
		t.Errorf("SanitizeToken() = %s", got)
	}
}

func TestSanitizePath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home dir")
	}
	got := SanitizePath(filepath.Join(home, "Videos", "talk.mp4"))
	if got != "~"+string(filepath.Separator)+filepath.Join("Videos", "talk.mp4") {
		t.Errorf("SanitizePath() = %s", got)
	}
	if SanitizePath("/srv/talk.mp4") != "/srv/talk.mp4" && home != "/" {
		t.Error("paths outside home should be unchanged")
	}
}
