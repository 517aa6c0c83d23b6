package server

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestRequestLogger(t *testing.T) {
	tests := []struct {
		name   string
		status int
		level  string
	}{
		{"ok", http.StatusOK, "INFO"},
		{"not found", http.StatusNotFound, "WARN"},
		{"server error", http.StatusInternalServerError, "ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte("body"))
			})

			var buf bytes.Buffer
			logger := slog.New(slog.NewJSONHandler(&buf, nil))
			rl := newRequestLogger(handler, logger)

			req := httptest.NewRequest("GET", "/test/path", nil)
			req.Header.Set("X-Forwarded-For", "10.0.0.1")
			rl.ServeHTTP(httptest.NewRecorder(), req)

			var entry map[string]any
			if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
				t.Fatalf("failed to parse log entry %q: %v", buf.String(), err)
			}
			if entry["level"] != tt.level || entry["msg"] != "request" {
				t.Errorf("unexpected entry: %v", entry)
			}
			if entry["method"] != "GET" || entry["path"] != "/test/path" || entry["client_ip"] != "10.0.0.1" {
				t.Errorf("unexpected entry: %v", entry)
			}
			if entry["status"] != float64(tt.status) || entry["bytes"] != float64(4) {
				t.Errorf("unexpected status or size: %v", entry)
			}
		})
	}
}

func TestRequestLoggerImplicitStatus(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})

	var buf bytes.Buffer
	rl := newRequestLogger(handler, slog.New(slog.NewTextHandler(&buf, nil)))
	rl.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))

	if !strings.Contains(buf.String(), "status=200") {
		t.Errorf("expected status=200 in %q", buf.String())
	}
}
