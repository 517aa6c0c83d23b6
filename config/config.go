package config

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/puglite/puglite/pkg/puglite/puglite"
)

// Config represents the complete puglite configuration
type Config struct {
	BaseDir string        `yaml:"-"` // Directory containing config file, for resolving relative paths
	Compile CompileConfig `yaml:"compile"`
	Build   BuildConfig   `yaml:"build"`
	Server  ServerConfig  `yaml:"server"`
	Logging LoggingConfig `yaml:"logging"`
}

// CompileConfig holds compiler options, one field per generator option
type CompileConfig struct {
	TemplateName          string   `yaml:"template_name"`           // Name of the emitted function (default: "template")
	Pretty                Pretty   `yaml:"pretty"`                  // true, false, or an indent string
	CompileDebug          bool     `yaml:"compile_debug"`           // Track source lines in the generated function
	Doctype               string   `yaml:"doctype"`                 // Default doctype when the template has none
	Self                  bool     `yaml:"self"`                    // Read locals through "self" only
	Globals               []string `yaml:"globals"`                 // Names never read from locals
	InlineRuntime         bool     `yaml:"inline_runtime"`          // Emit helper functions inline
	Strict                bool     `yaml:"strict"`                  // Reject non-constant attribute expressions
	TabWidth              int      `yaml:"tab_width"`               // Width of a tab in indentation (default: 4)
	StripBufferedComments bool     `yaml:"strip_buffered_comments"` // Drop // comments as well as //-
}

// BuildConfig holds static build settings
type BuildConfig struct {
	Root        string   `yaml:"root"`        // Directory of templates (default: "./views")
	Out         string   `yaml:"out"`         // Output directory (default: "./dist")
	Ext         string   `yaml:"ext"`         // Template file extension (default: ".pug")
	Format      string   `yaml:"format"`      // html, esm or cjs (default: "html")
	Minify      bool     `yaml:"minify"`      // Minify html output
	Precompress []string `yaml:"precompress"` // Sibling encodings to write: gzip, br
	Workers     int      `yaml:"workers"`     // Parallel compiles (default: number of CPUs)
	FailFast    bool     `yaml:"fail_fast"`   // Stop at the first template error
	Cache       string   `yaml:"cache"`       // SQLite compile cache path (empty = memory only)
}

// ServerConfig holds dev server settings
type ServerConfig struct {
	Host        string            `yaml:"host"`
	Port        int               `yaml:"port"`
	Public      string            `yaml:"public"`      // Directory for static files (default: "./public")
	LiveReload  bool              `yaml:"live_reload"` // Inject the live reload script (default: true)
	Compression CompressionConfig `yaml:"compression"`
}

// CompressionConfig holds HTTP response compression settings
type CompressionConfig struct {
	Enabled bool   `yaml:"enabled"`  // Enable gzip compression (default: true)
	Level   string `yaml:"level"`    // Compression level: "fastest", "default", "best", "none" (default: "default")
	MinSize int    `yaml:"min_size"` // Minimum response size to compress in bytes (default: 1024)
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json or text
	Output string `yaml:"output"` // stderr, stdout, or file path
	Quiet  bool   `yaml:"quiet"`  // suppress request logs
}

// Pretty supports YAML fields that can be either a bool or an indent string.
// true means two spaces.
type Pretty string

// UnmarshalYAML implements yaml.Unmarshaler to handle both bool and string
func (p *Pretty) UnmarshalYAML(value *yaml.Node) error {
	var on bool
	if value.Tag == "!!bool" {
		if err := value.Decode(&on); err != nil {
			return err
		}
		if on {
			*p = "  "
		} else {
			*p = ""
		}
		return nil
	}

	var indent string
	if err := value.Decode(&indent); err != nil {
		return fmt.Errorf("pretty: expected bool or string, got %s", value.Tag)
	}
	*p = Pretty(indent)
	return nil
}

// Defaults returns a Config with sensible defaults
func Defaults() *Config {
	return &Config{
		Build: BuildConfig{
			Root:   "views",
			Out:    "dist",
			Ext:    ".pug",
			Format: "html",
		},
		Server: ServerConfig{
			Host:       "localhost",
			Port:       8080,
			Public:     "public",
			LiveReload: true,
			Compression: CompressionConfig{
				Enabled: true,
				Level:   "default",
				MinSize: 1024,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
	}
}

// Options converts the compile section into compiler options.
func (c CompileConfig) Options() puglite.Options {
	return puglite.Options{
		TabWidth:               c.TabWidth,
		StripBufferedComments:  c.StripBufferedComments,
		TemplateName:           c.TemplateName,
		Pretty:                 string(c.Pretty),
		CompileDebug:           c.CompileDebug,
		Doctype:                c.Doctype,
		Self:                   c.Self,
		Globals:                c.Globals,
		InlineRuntimeFunctions: c.InlineRuntime,
		Strict:                 c.Strict,
	}
}

// HasPrecompress reports whether the named sibling encoding is enabled.
func (b BuildConfig) HasPrecompress(name string) bool {
	for _, v := range b.Precompress {
		if strings.EqualFold(v, name) {
			return true
		}
	}
	return false
}
