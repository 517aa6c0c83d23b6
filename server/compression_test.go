package server

import (
	"compress/gzip"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/puglite/puglite/config"
)

func TestCompressionHandler(t *testing.T) {
	large := strings.Repeat("<p>Hello, World!</p>\n", 100)
	small := "<p>Hi</p>"

	tests := []struct {
		name       string
		cfg        config.CompressionConfig
		body       string
		acceptGzip bool
		gzipped    bool
	}{
		{"disabled", config.CompressionConfig{Enabled: false, Level: "default", MinSize: 1024}, large, true, false},
		{"level none", config.CompressionConfig{Enabled: true, Level: "none", MinSize: 1024}, large, true, false},
		{"default", config.CompressionConfig{Enabled: true, Level: "default", MinSize: 1024}, large, true, true},
		{"fastest", config.CompressionConfig{Enabled: true, Level: "fastest", MinSize: 1024}, large, true, true},
		{"best", config.CompressionConfig{Enabled: true, Level: "best", MinSize: 1024}, large, true, true},
		{"below min size", config.CompressionConfig{Enabled: true, Level: "default", MinSize: 1024}, small, true, false},
		{"no accept encoding", config.CompressionConfig{Enabled: true, Level: "default", MinSize: 1024}, large, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "text/html")
				w.Write([]byte(tt.body))
			})
			wrapped := newCompressionHandler(handler, tt.cfg)

			req := httptest.NewRequest("GET", "/", nil)
			if tt.acceptGzip {
				req.Header.Set("Accept-Encoding", "gzip")
			}
			rec := httptest.NewRecorder()
			wrapped.ServeHTTP(rec, req)

			gzipped := rec.Header().Get("Content-Encoding") == "gzip"
			if gzipped != tt.gzipped {
				t.Fatalf("gzipped = %v, want %v", gzipped, tt.gzipped)
			}

			var body []byte
			if gzipped {
				zr, err := gzip.NewReader(rec.Body)
				if err != nil {
					t.Fatalf("failed to create gzip reader: %v", err)
				}
				body, _ = io.ReadAll(zr)
			} else {
				body = rec.Body.Bytes()
			}
			if string(body) != tt.body {
				t.Errorf("body mismatch: got %d bytes, want %d", len(body), len(tt.body))
			}
		})
	}
}
