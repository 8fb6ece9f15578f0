package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func captureLog(t *testing.T, sanitize bool, attrs ...slog.Attr) map[string]any {
	t.Helper()

	var buf bytes.Buffer
	handler := NewSanitizingHandler(slog.NewJSONHandler(&buf, nil), sanitize)
	logger := slog.New(handler)

	args := make([]any, 0, len(attrs))
	for _, a := range attrs {
		args = append(args, a)
	}
	logger.LogAttrs(context.Background(), slog.LevelInfo, "test", attrs...)
	_ = args

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("unmarshal log entry: %v", err)
	}
	return entry
}

func TestSanitizingHandler_RedactsSensitiveKeys(t *testing.T) {
	tests := []struct {
		key      string
		redacted bool
	}{
		{"password", true},
		{"ssh_password", true},
		{"key_passphrase", true},
		{"api_token", true},
		{"input", true},
		{"owner", false},
		{"session_id", false},
		{"rows", false},
	}

	for _, tt := range tests {
		entry := captureLog(t, true, slog.String(tt.key, "hunter2"))
		got, _ := entry[tt.key].(string)
		if tt.redacted && got != "[REDACTED]" {
			t.Errorf("key %q = %q, want redacted", tt.key, got)
		}
		if !tt.redacted && got != "hunter2" {
			t.Errorf("key %q = %q, want passthrough", tt.key, got)
		}
	}
}

func TestSanitizingHandler_Disabled(t *testing.T) {
	entry := captureLog(t, false, slog.String("password", "hunter2"))
	if got, _ := entry["password"].(string); got != "hunter2" {
		t.Errorf("password = %q, want %q with sanitize disabled", got, "hunter2")
	}
}

func TestSanitizingHandler_RedactsGroups(t *testing.T) {
	entry := captureLog(t, true, slog.Group("server",
		slog.String("host", "example.com"),
		slog.String("password", "hunter2"),
	))

	group, ok := entry["server"].(map[string]any)
	if !ok {
		t.Fatalf("server group missing: %v", entry)
	}
	if group["host"] != "example.com" {
		t.Errorf("host = %v, want passthrough", group["host"])
	}
	if group["password"] != "[REDACTED]" {
		t.Errorf("password = %v, want redacted", group["password"])
	}
}

func TestSanitizingHandler_CaseInsensitive(t *testing.T) {
	entry := captureLog(t, true, slog.String("SSHPassword", "hunter2"))
	if got, _ := entry["SSHPassword"].(string); !strings.Contains(got, "REDACTED") {
		t.Errorf("SSHPassword = %q, want redacted", got)
	}
}
