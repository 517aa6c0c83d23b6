package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/puglite/puglite/builder"
	"github.com/puglite/puglite/cache"
	"github.com/puglite/puglite/config"
	perrors "github.com/puglite/puglite/pkg/puglite/errors"
	"github.com/puglite/puglite/server"
)

// Version is set at build time via -ldflags
var Version = "0.1.0-dev"

func main() {
	ctx := context.Background()
	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr, os.Getenv); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// run is the main entry point, designed for testability (Mat Ryer pattern)
func run(ctx context.Context, args []string, stdout, stderr io.Writer, getenv func(string) string) error {
	command := "build"
	if len(args) > 0 {
		switch args[0] {
		case "build", "watch", "serve":
			command, args = args[0], args[1:]
		case "version":
			fmt.Fprintf(stdout, "puglite version %s\n", Version)
			return nil
		case "help":
			printUsage(stdout)
			return nil
		}
	}

	flags := flag.NewFlagSet("puglite "+command, flag.ContinueOnError)
	flags.SetOutput(stderr)

	var (
		configPath  = flags.String("config", "", "Path to config file")
		out         = flags.String("out", "", "Override output directory")
		minify      = flags.Bool("minify", false, "Minify html output")
		failFast    = flags.Bool("fail-fast", false, "Stop at the first template error")
		workers     = flags.Int("workers", 0, "Override parallel compiles")
		port        = flags.Int("port", 0, "Override listen port")
		quiet       = flags.Bool("quiet", false, "Suppress request logging")
		showVersion = flags.Bool("version", false, "Show version")
		showHelp    = flags.Bool("help", false, "Show help")
	)

	if err := flags.Parse(args); err != nil {
		return err
	}

	if *showHelp {
		printUsage(stdout)
		return nil
	}

	if *showVersion {
		fmt.Fprintf(stdout, "puglite version %s\n", Version)
		return nil
	}

	// Set up signal handling for graceful shutdown
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, configFile, err := config.LoadWithPath(*configPath, getenv)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Apply CLI overrides
	if *out != "" {
		cfg.Build.Out = *out
	}
	if *minify {
		cfg.Build.Minify = true
	}
	if *failFast {
		cfg.Build.FailFast = true
	}
	if *workers != 0 {
		cfg.Build.Workers = *workers
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *quiet {
		cfg.Logging.Quiet = true
	}

	// Full validation after CLI overrides applied
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("config validation: %w", err)
	}

	logger, closeLog, err := config.NewLogger(cfg.Logging, stdout, stderr)
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}
	defer closeLog()

	c, err := openCache(cfg.Build.Cache)
	if err != nil {
		return fmt.Errorf("opening cache: %w", err)
	}
	defer c.Close()

	if configFile != "" {
		logger.Debug("loaded config", "path", configFile)
	}

	switch command {
	case "serve":
		srv, err := server.New(cfg, configFile, logger, c)
		if err != nil {
			return fmt.Errorf("creating server: %w", err)
		}
		return srv.Run(ctx)
	case "watch":
		return watch(ctx, cfg, configFile, c, logger, stdout)
	default:
		return build(ctx, cfg, c, logger, stdout)
	}
}

func openCache(path string) (*cache.Cache, error) {
	if path == "" {
		return cache.New(), nil
	}
	return cache.Open(path)
}

// build compiles every template once and prints the report.
func build(ctx context.Context, cfg *config.Config, c *cache.Cache, logger *slog.Logger, stdout io.Writer) error {
	b := builder.New(cfg.Build, cfg.Compile.Options(), c, logger)
	report, err := b.Build(ctx)
	if report != nil {
		report.Print(stdout)
	}
	if err != nil {
		return err
	}
	if failed := report.Failed(); len(failed) > 0 {
		return fmt.Errorf("%d of %d templates failed", len(failed), len(report.Files))
	}
	return nil
}

// watch builds everything, then rebuilds templates as they change until
// ctx is cancelled.
func watch(ctx context.Context, cfg *config.Config, configFile string, c *cache.Cache, logger *slog.Logger, stdout io.Writer) error {
	b := builder.New(cfg.Build, cfg.Compile.Options(), c, logger)
	report, err := b.Build(ctx)
	if err != nil {
		return err
	}
	report.Print(stdout)

	w, err := server.NewWatcher([]string{cfg.Build.Root}, configFile, cfg.Build.Ext, logger)
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer w.Close()

	w.OnTemplate(func(path string, removed bool) {
		if !b.Owns(path) {
			return
		}
		if removed {
			if err := b.Remove(path); err != nil {
				logger.Warn("failed to remove output", "file", path, "error", err)
			}
			return
		}
		res := b.BuildFile(path)
		if res.Err != nil {
			var pe *perrors.PugliteError
			if errors.As(res.Err, &pe) {
				fmt.Fprintln(stdout, pe.PrettyString())
			} else {
				logger.Error("build failed", "file", res.Rel, "error", res.Err)
			}
			return
		}
		logger.Info("rebuilt", "file", res.Rel, "out", res.Out, "cached", res.Cached)
	})

	if err := w.Start(ctx); err != nil {
		return fmt.Errorf("starting watcher: %w", err)
	}
	logger.Info("watching templates", "root", cfg.Build.Root)

	<-ctx.Done()
	return nil
}

func printUsage(w io.Writer) {
	fmt.Fprintf(w, `puglite - static pug templates to HTML

Usage:
  puglite [command] [options]

Commands:
  build            Compile every template under build.root (default)
  watch            Build, then rebuild templates as they change
  serve            Serve templates over HTTP with live reload
  version          Show version
  help             Show this help

Options:
  --config PATH    Path to config file (default: auto-detect)
  --out DIR        Override build.out
  --minify         Minify html output
  --fail-fast      Stop at the first template error
  --workers N      Override build.workers
  --port PORT      Override listen port (serve)
  --quiet          Suppress request logging (serve)
  --version        Show version
  --help           Show this help

Config Resolution:
  1. --config flag
  2. PUGLITE_CONFIG environment variable
  3. ./puglite.yaml

Examples:
  puglite                          Build ./views into ./dist
  puglite build --minify           Build minified output
  puglite watch                    Rebuild on save
  puglite serve --port 3000        Dev server on port 3000
  puglite --config site.yaml       Use specific config file

`)
}
