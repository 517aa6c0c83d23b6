package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()

	if cfg.Server.Port != 8080 {
		t.Errorf("expected default port 8080, got %d", cfg.Server.Port)
	}
	if !cfg.Server.LiveReload {
		t.Error("expected live reload on by default")
	}
	if cfg.Build.Format != "html" || cfg.Build.Ext != ".pug" {
		t.Errorf("unexpected build defaults: %+v", cfg.Build)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("expected default log level 'info', got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" {
		t.Errorf("expected default log format 'text', got %q", cfg.Logging.Format)
	}
	if err := Validate(cfg); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestInterpolateEnv(t *testing.T) {
	getenv := func(key string) string {
		switch key {
		case "TEST_HOST":
			return "example.com"
		case "TEST_PORT":
			return "9000"
		default:
			return ""
		}
	}

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "simple substitution",
			input:    "host: ${TEST_HOST}",
			expected: "host: example.com",
		},
		{
			name:     "with default (env set)",
			input:    "host: ${TEST_HOST:-localhost}",
			expected: "host: example.com",
		},
		{
			name:     "with default (env not set)",
			input:    "host: ${UNSET_VAR:-localhost}",
			expected: "host: localhost",
		},
		{
			name:     "multiple substitutions",
			input:    "addr: ${TEST_HOST}:${TEST_PORT}",
			expected: "addr: example.com:9000",
		},
		{
			name:     "no substitution needed",
			input:    "static: value",
			expected: "static: value",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := string(interpolateEnv([]byte(tt.input), getenv))
			if result != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, result)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	// Create temp config file
	dir := t.TempDir()
	configPath := filepath.Join(dir, "puglite.yaml")

	configContent := `
compile:
  doctype: html
  pretty: "\t"

build:
  root: ./templates
  out: ./public/build
  format: esm
  minify: true
  precompress: [gzip, br]
  workers: 2
  cache: .cache/puglite.db

server:
  host: 0.0.0.0
  port: 3000
  compression:
    level: best

logging:
  level: debug
  format: json
  output: stderr
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, path, err := LoadWithPath(configPath, os.Getenv)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if path != configPath {
		t.Errorf("expected path %q, got %q", configPath, path)
	}

	if cfg.Compile.Doctype != "html" || cfg.Compile.Pretty != "\t" {
		t.Errorf("unexpected compile config: %+v", cfg.Compile)
	}
	if cfg.Build.Format != "esm" || !cfg.Build.Minify || cfg.Build.Workers != 2 {
		t.Errorf("unexpected build config: %+v", cfg.Build)
	}

	// Paths are resolved against the config directory
	if cfg.Build.Root != filepath.Join(dir, "templates") {
		t.Errorf("expected root %q, got %q", filepath.Join(dir, "templates"), cfg.Build.Root)
	}
	if cfg.Build.Out != filepath.Join(dir, "public", "build") {
		t.Errorf("unexpected out %q", cfg.Build.Out)
	}
	if cfg.Build.Cache != filepath.Join(dir, ".cache", "puglite.db") {
		t.Errorf("unexpected cache %q", cfg.Build.Cache)
	}
	if cfg.Server.Public != filepath.Join(dir, "public") {
		t.Errorf("expected default public dir resolved, got %q", cfg.Server.Public)
	}

	// Unset fields keep their defaults
	if cfg.Build.Ext != ".pug" {
		t.Errorf("expected default ext, got %q", cfg.Build.Ext)
	}
	if !cfg.Server.Compression.Enabled || cfg.Server.Compression.Level != "best" || cfg.Server.Compression.MinSize != 1024 {
		t.Errorf("unexpected compression config: %+v", cfg.Server.Compression)
	}
	if cfg.Server.Port != 3000 {
		t.Errorf("expected port 3000, got %d", cfg.Server.Port)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Errorf("unexpected logging config: %+v", cfg.Logging)
	}
}

func TestLoadWithEnvInterpolation(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "puglite.yaml")

	configContent := `
server:
  port: ${PORT:-4000}
compile:
  doctype: ${DOCTYPE}
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	getenv := func(key string) string {
		if key == "DOCTYPE" {
			return "xml"
		}
		return ""
	}

	cfg, err := Load(configPath, getenv)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.Port != 4000 {
		t.Errorf("expected port 4000, got %d", cfg.Server.Port)
	}
	if cfg.Compile.Doctype != "xml" {
		t.Errorf("expected doctype xml, got %q", cfg.Compile.Doctype)
	}
}

func TestLoadWithoutConfigFile(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	defer os.Chdir(wd)

	cfg, path, err := LoadWithPath("", func(string) string { return "" })
	if err != nil {
		t.Fatalf("LoadWithPath failed: %v", err)
	}
	if path != "" {
		t.Errorf("expected no config path, got %q", path)
	}
	if !strings.HasSuffix(cfg.Build.Root, "views") || !filepath.IsAbs(cfg.Build.Root) {
		t.Errorf("expected absolute default root, got %q", cfg.Build.Root)
	}
}

func TestValidation(t *testing.T) {
	tests := []struct {
		name      string
		config    string
		expectErr bool
		errSubstr string
	}{
		{
			name: "valid minimal config",
			config: `
server:
  port: 8080
`,
			expectErr: false,
		},
		{
			name: "invalid port",
			config: `
server:
  port: 99999
`,
			expectErr: true,
			errSubstr: "invalid port",
		},
		{
			name: "invalid log level",
			config: `
logging:
  level: verbose
`,
			expectErr: true,
			errSubstr: "invalid log level",
		},
		{
			name: "invalid log format",
			config: `
logging:
  format: xml
`,
			expectErr: true,
			errSubstr: "invalid log format",
		},
		{
			name: "invalid build format",
			config: `
build:
  format: amd
`,
			expectErr: true,
			errSubstr: "build.format",
		},
		{
			name: "unknown precompress encoding",
			config: `
build:
  precompress: [zstd]
`,
			expectErr: true,
			errSubstr: "build.precompress",
		},
		{
			name: "extension without dot",
			config: `
build:
  ext: pug
`,
			expectErr: true,
			errSubstr: "build.ext",
		},
		{
			name: "out equals root",
			config: `
build:
  root: views
  out: views
`,
			expectErr: true,
			errSubstr: "build.out",
		},
		{
			name: "non-whitespace pretty",
			config: `
compile:
  pretty: "yes"
`,
			expectErr: true,
			errSubstr: "pretty",
		},
		{
			name: "invalid template name",
			config: `
compile:
  template_name: "my template"
`,
			expectErr: true,
			errSubstr: "templateName",
		},
		{
			name: "negative tab width",
			config: `
compile:
  tab_width: -1
`,
			expectErr: true,
			errSubstr: "tab width",
		},
		{
			name: "invalid compression level",
			config: `
server:
  compression:
    level: max
`,
			expectErr: true,
			errSubstr: "server.compression.level",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			configPath := filepath.Join(dir, "puglite.yaml")
			if err := os.WriteFile(configPath, []byte(tt.config), 0644); err != nil {
				t.Fatalf("failed to write test config: %v", err)
			}

			_, err := Load(configPath, os.Getenv)
			if tt.expectErr {
				if err == nil {
					t.Error("expected error, got nil")
				} else if tt.errSubstr != "" && !strings.Contains(err.Error(), tt.errSubstr) {
					t.Errorf("expected error containing %q, got %q", tt.errSubstr, err.Error())
				}
			} else if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestResolveConfigPath(t *testing.T) {
	noenv := func(string) string { return "" }

	// Test explicit path not found
	if _, err := resolveConfigPath("/nonexistent/path/puglite.yaml", noenv); err == nil {
		t.Error("expected error for nonexistent path")
	}

	// Test explicit path found
	dir := t.TempDir()
	configPath := filepath.Join(dir, "custom.yaml")
	if err := os.WriteFile(configPath, []byte(""), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	resolved, err := resolveConfigPath(configPath, noenv)
	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if resolved != configPath {
		t.Errorf("expected %q, got %q", configPath, resolved)
	}

	// Test env path
	getenv := func(key string) string {
		if key == "PUGLITE_CONFIG" {
			return configPath
		}
		return ""
	}
	resolved, err = resolveConfigPath("", getenv)
	if err != nil || resolved != configPath {
		t.Errorf("expected env path %q, got %q (%v)", configPath, resolved, err)
	}

	missing := func(key string) string {
		if key == "PUGLITE_CONFIG" {
			return filepath.Join(dir, "missing.yaml")
		}
		return ""
	}
	if _, err := resolveConfigPath("", missing); err == nil || !strings.Contains(err.Error(), "PUGLITE_CONFIG") {
		t.Errorf("expected PUGLITE_CONFIG error, got %v", err)
	}
}
