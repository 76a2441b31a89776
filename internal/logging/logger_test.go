package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"
)

func TestNewWithWriterRedactsCredentials(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, "info")

	logger.Info("login attempt",
		slog.String("user_id", "u-1"),
		slog.String("password", "Str0ng!Pass"),
		slog.String("Authorization", "Bearer abc"),
	)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if entry["user_id"] != "u-1" {
		t.Fatalf("expected user_id to be kept, got %v", entry["user_id"])
	}
	if entry["password"] != redacted || entry["Authorization"] != redacted {
		t.Fatalf("credentials leaked: %v", entry)
	}
}

func TestNewWithWriterLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, "warn")
	logger.Info("dropped")
	if buf.Len() != 0 {
		t.Fatalf("info should be filtered at warn level, got %q", buf.String())
	}

	logger = NewWithWriter(&buf, "not-a-level")
	logger.Debug("dropped")
	logger.Info("kept")
	if !bytes.Contains(buf.Bytes(), []byte(`"msg":"kept"`)) || bytes.Contains(buf.Bytes(), []byte("dropped")) {
		t.Fatalf("invalid level should fall back to info, got %q", buf.String())
	}
}
