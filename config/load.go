package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load reads configuration from a file with ENV interpolation.
// If configPath is empty, it searches default locations and falls back to
// Defaults when no file exists.
func Load(configPath string, getenv func(string) string) (*Config, error) {
	cfg, _, err := LoadWithPath(configPath, getenv)
	return cfg, err
}

// LoadWithPath reads configuration and returns both the config and the resolved
// path. The path is empty when no config file was found.
func LoadWithPath(configPath string, getenv func(string) string) (*Config, string, error) {
	path, err := resolveConfigPath(configPath, getenv)
	if err != nil {
		return nil, "", err
	}

	if path == "" {
		cfg := Defaults()
		wd, err := os.Getwd()
		if err != nil {
			return nil, "", fmt.Errorf("failed to resolve working directory: %w", err)
		}
		cfg.resolvePaths(wd)
		return cfg, "", nil
	}

	// Get absolute path and directory for resolving relative paths
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to resolve config path: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read config: %w", err)
	}

	// Interpolate environment variables
	data = interpolateEnv(data, getenv)

	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, "", fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.resolvePaths(filepath.Dir(absPath))

	if err := Validate(cfg); err != nil {
		return nil, "", err
	}

	return cfg, absPath, nil
}

// resolvePaths makes relative directories absolute against baseDir.
func (cfg *Config) resolvePaths(baseDir string) {
	cfg.BaseDir = baseDir
	for _, p := range []*string{&cfg.Build.Root, &cfg.Build.Out, &cfg.Build.Cache, &cfg.Server.Public} {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(baseDir, *p)
		}
	}
	switch cfg.Logging.Output {
	case "", "stderr", "stdout":
	default:
		if !filepath.IsAbs(cfg.Logging.Output) {
			cfg.Logging.Output = filepath.Join(baseDir, cfg.Logging.Output)
		}
	}
}

// resolveConfigPath finds the config file to use.
// Search order: explicit path > PUGLITE_CONFIG env > ./puglite.yaml
func resolveConfigPath(explicit string, getenv func(string) string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	// Try PUGLITE_CONFIG environment variable
	if envPath := getenv("PUGLITE_CONFIG"); envPath != "" {
		if _, err := os.Stat(envPath); err != nil {
			return "", fmt.Errorf("PUGLITE_CONFIG file not found: %s", envPath)
		}
		return envPath, nil
	}

	// Try ./puglite.yaml
	if _, err := os.Stat("puglite.yaml"); err == nil {
		return "puglite.yaml", nil
	}

	return "", nil
}

// envPattern matches ${VAR} or ${VAR:-default}
var envPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// interpolateEnv replaces ${VAR} and ${VAR:-default} patterns with environment values.
func interpolateEnv(data []byte, getenv func(string) string) []byte {
	return envPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		parts := envPattern.FindSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		varName := string(parts[1])
		value := getenv(varName)

		if value == "" && len(parts) >= 3 && len(parts[2]) > 0 {
			value = string(parts[2])
		}

		return []byte(value)
	})
}

// Validate checks the configuration for errors. Call it again after
// applying CLI overrides.
func Validate(cfg *Config) error {
	var errs []string

	if err := cfg.Compile.Options().Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("compile: %v", err))
	}

	// Build validation
	switch cfg.Build.Format {
	case "html", "esm", "cjs":
	default:
		errs = append(errs, fmt.Sprintf("build.format: %q is not one of html, esm, cjs", cfg.Build.Format))
	}
	if cfg.Build.Ext == "" || !strings.HasPrefix(cfg.Build.Ext, ".") {
		errs = append(errs, fmt.Sprintf("build.ext: %q must start with \".\"", cfg.Build.Ext))
	}
	for _, enc := range cfg.Build.Precompress {
		switch strings.ToLower(enc) {
		case "gzip", "br":
		default:
			errs = append(errs, fmt.Sprintf("build.precompress: unknown encoding %q (supported: gzip, br)", enc))
		}
	}
	if cfg.Build.Workers < 0 {
		errs = append(errs, fmt.Sprintf("build.workers: %d must not be negative", cfg.Build.Workers))
	}
	if cfg.Build.Root != "" && cfg.Build.Root == cfg.Build.Out {
		errs = append(errs, "build.out must differ from build.root")
	}

	// Server validation
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("invalid port: %d (must be 1-65535)", cfg.Server.Port))
	}
	switch cfg.Server.Compression.Level {
	case "fastest", "default", "best", "none":
	default:
		errs = append(errs, fmt.Sprintf("server.compression.level: %q is not one of fastest, default, best, none", cfg.Server.Compression.Level))
	}
	if cfg.Server.Compression.MinSize < 0 {
		errs = append(errs, "server.compression.min_size must not be negative")
	}

	// Logging validation
	switch cfg.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Sprintf("invalid log level: %q (must be debug, info, warn, or error)", cfg.Logging.Level))
	}
	switch cfg.Logging.Format {
	case "json", "text":
	default:
		errs = append(errs, fmt.Sprintf("invalid log format: %q (must be json or text)", cfg.Logging.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
