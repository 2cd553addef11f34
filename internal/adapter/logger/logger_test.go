package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
)

func TestLoggerWritesJSONEntry(t *testing.T) {
	var buf bytes.Buffer
	lgr := NewWithWriter("delivery-service", &buf, LevelDebug)

	lgr.Error("assign_failed", "Failed to assign driver", "order-1", map[string]interface{}{"driver_id": "drv-1"}, errors.New("boom"))

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log line is not json: %v (%s)", err, buf.String())
	}

	if entry["service"] != "delivery-service" {
		t.Errorf("Expected service delivery-service, got %v", entry["service"])
	}
	if entry["action"] != "assign_failed" {
		t.Errorf("Expected action assign_failed, got %v", entry["action"])
	}
	if entry["request_id"] != "order-1" {
		t.Errorf("Expected request_id order-1, got %v", entry["request_id"])
	}
	if entry["message"] != "Failed to assign driver" {
		t.Errorf("unexpected message %v", entry["message"])
	}
	errInfo, ok := entry["error"].(map[string]interface{})
	if !ok || errInfo["msg"] != "boom" {
		t.Errorf("Expected error.msg boom, got %v", entry["error"])
	}
}

func TestLoggerRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	lgr := NewWithWriter("order-service", &buf, LevelWarn)

	lgr.Debug("noise", "debug line", "", nil)
	lgr.Info("noise", "info line", "", nil)
	if buf.Len() != 0 {
		t.Fatalf("Expected nothing below warn, got %s", buf.String())
	}

	lgr.Warn("notification_dropped", "No user id", "order-1", nil)
	if buf.Len() == 0 {
		t.Fatal("Expected warn line to be written")
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]Level{
		"debug":  LevelDebug,
		" WARN ": LevelWarn,
		"error":  LevelError,
		"":       LevelInfo,
		"trace":  LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %s, want %s", in, got, want)
		}
	}
}
