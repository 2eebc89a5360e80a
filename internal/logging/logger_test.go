package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
)

// TestLoggerJSONOutput verifies log entries are emitted as JSON with fields.
func TestLoggerJSONOutput(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "debug")

	logger.WithField("item_id", "abc").Info("item added")

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("Output is not valid JSON: %v", err)
	}

	if entry["msg"] != "item added" {
		t.Errorf("Expected msg 'item added', got %v", entry["msg"])
	}

	if entry["item_id"] != "abc" {
		t.Errorf("Expected item_id field, got %v", entry["item_id"])
	}

	if entry["level"] != "info" {
		t.Errorf("Expected level info, got %v", entry["level"])
	}
}

// TestLoggerLevelFiltering verifies messages below the minimum level are dropped.
func TestLoggerLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "warn")

	logger.Info("should be filtered")

	if buf.Len() != 0 {
		t.Errorf("Expected no output for info at warn level, got %q", buf.String())
	}

	logger.Warn("should appear")

	if buf.Len() == 0 {
		t.Error("Expected output for warn at warn level")
	}
}

// TestLoggerInvalidLevel verifies an unknown level falls back to info.
func TestLoggerInvalidLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "chatty")

	logger.Debug("dropped at info")
	if buf.Len() != 0 {
		t.Error("Expected debug to be filtered at fallback info level")
	}

	logger.Info("kept at info")
	if buf.Len() == 0 {
		t.Error("Expected info to pass at fallback info level")
	}
}

// TestFieldsMerge verifies multiple context maps are merged.
func TestFieldsMerge(t *testing.T) {
	merged := fields(
		map[string]interface{}{"a": 1},
		map[string]interface{}{"b": 2},
	)

	if merged["a"] != 1 || merged["b"] != 2 {
		t.Errorf("Expected merged fields, got %v", merged)
	}

	if fields() != nil {
		t.Error("Expected nil fields for empty context")
	}
}

// TestErrorIncludesError verifies the error field is attached.
func TestErrorIncludesError(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "debug")

	logger.WithError(errors.New("boom")).Error("sync failed")

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("Output is not valid JSON: %v", err)
	}

	if entry["error"] != "boom" {
		t.Errorf("Expected error field 'boom', got %v", entry["error"])
	}
}
