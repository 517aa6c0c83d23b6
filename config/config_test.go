package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

func TestPretty(t *testing.T) {
	tests := []struct {
		name     string
		yaml     string
		expected Pretty
	}{
		{"true", "pretty: true", "  "},
		{"false", "pretty: false", ""},
		{"tab", `pretty: "\t"`, "\t"},
		{"four spaces", `pretty: "    "`, "    "},
		{"unset", "doctype: html", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var c CompileConfig
			if err := yaml.Unmarshal([]byte(tt.yaml), &c); err != nil {
				t.Fatalf("Failed to parse: %v", err)
			}
			if c.Pretty != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, c.Pretty)
			}
		})
	}

	var c CompileConfig
	if err := yaml.Unmarshal([]byte("pretty: [a, b]"), &c); err == nil {
		t.Error("expected error for list value")
	}
}

func TestCompileOptions(t *testing.T) {
	yamlData := `
compile:
  template_name: render
  pretty: true
  compile_debug: true
  doctype: html
  self: true
  globals: [Math, Date]
  inline_runtime: true
  strict: true
  tab_width: 2
  strip_buffered_comments: true
`
	cfg := Defaults()
	if err := yaml.Unmarshal([]byte(yamlData), cfg); err != nil {
		t.Fatalf("Failed to parse config: %v", err)
	}

	opts := cfg.Compile.Options()
	if opts.TemplateName != "render" || opts.Pretty != "  " || !opts.CompileDebug {
		t.Errorf("unexpected options: %+v", opts)
	}
	if opts.Doctype != "html" || !opts.Self || !opts.InlineRuntimeFunctions || !opts.Strict {
		t.Errorf("unexpected options: %+v", opts)
	}
	if len(opts.Globals) != 2 || opts.Globals[1] != "Date" {
		t.Errorf("unexpected globals: %v", opts.Globals)
	}
	if opts.TabWidth != 2 || !opts.StripBufferedComments {
		t.Errorf("unexpected lexer options: %+v", opts)
	}
}

func TestHasPrecompress(t *testing.T) {
	b := BuildConfig{Precompress: []string{"gzip", "BR"}}
	if !b.HasPrecompress("gzip") || !b.HasPrecompress("br") {
		t.Error("expected gzip and br")
	}
	if (BuildConfig{}).HasPrecompress("gzip") {
		t.Error("expected no precompression by default")
	}
}

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name     string
		cfg      LoggingConfig
		toStdout bool
		contains string
		hidden   bool
	}{
		{"text stderr", LoggingConfig{Level: "info", Format: "text", Output: "stderr"}, false, "msg=hello", false},
		{"json stdout", LoggingConfig{Level: "info", Format: "json", Output: "stdout"}, true, `"msg":"hello"`, false},
		{"level filters", LoggingConfig{Level: "error", Format: "text"}, false, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			logger, closeLog, err := NewLogger(tt.cfg, &stdout, &stderr)
			if err != nil {
				t.Fatalf("NewLogger failed: %v", err)
			}
			defer closeLog()

			logger.Info("hello", "file", "index.pug")

			out := stderr.String()
			if tt.toStdout {
				out = stdout.String()
			}
			if tt.hidden {
				if stdout.Len()+stderr.Len() != 0 {
					t.Errorf("expected no output, got %q %q", stdout.String(), stderr.String())
				}
				return
			}
			if !strings.Contains(out, tt.contains) || !strings.Contains(out, "index.pug") {
				t.Errorf("expected %q in output, got %q", tt.contains, out)
			}
		})
	}
}

func TestNewLoggerFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "puglite.log")
	logger, closeLog, err := NewLogger(LoggingConfig{Level: "debug", Format: "text", Output: path}, nil, nil)
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}
	logger.Debug("compiled", "count", 3)
	if err := closeLog(); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "count=3") {
		t.Errorf("log file missing entry: %q", data)
	}
}
