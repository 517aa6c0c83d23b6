// Package builder compiles a directory of templates into static files.
package builder

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/puglite/puglite/cache"
	"github.com/puglite/puglite/config"
	"github.com/puglite/puglite/pkg/puglite/puglite"
)

// Builder compiles every template under a root directory.
type Builder struct {
	cfg    config.BuildConfig
	opts   puglite.Options
	cache  *cache.Cache
	logger *slog.Logger
}

// New creates a builder. A nil cache gets a fresh memory cache; a nil logger
// discards output.
func New(cfg config.BuildConfig, opts puglite.Options, c *cache.Cache, logger *slog.Logger) *Builder {
	if c == nil {
		c = cache.New()
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Builder{cfg: cfg, opts: opts, cache: c, logger: logger}
}

// Build compiles all templates. Per-file failures are collected in the
// report; with fail_fast the first failure cancels the remaining work and
// is also returned as the error.
func (b *Builder) Build(ctx context.Context) (*Report, error) {
	start := time.Now()

	files, err := b.Discover()
	if err != nil {
		return nil, err
	}
	b.logger.Info("building templates", "root", b.cfg.Root, "files", len(files), "format", b.cfg.Format)

	workers := b.cfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	report := &Report{}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, path := range files {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			res := b.BuildFile(path)
			mu.Lock()
			report.Files = append(report.Files, res)
			mu.Unlock()

			if res.Err != nil {
				b.logger.Error("template failed", "file", res.Rel, "error", res.Err)
				if b.cfg.FailFast {
					return res.Err
				}
				return nil
			}
			b.logger.Debug("template built", "file", res.Rel, "out", res.Out, "bytes", res.Size, "cached", res.Cached)
			return nil
		})
	}
	err = g.Wait()

	sort.Slice(report.Files, func(i, j int) bool { return report.Files[i].Rel < report.Files[j].Rel })
	report.Duration = time.Since(start)
	report.Cache = b.cache.Stats()

	if err == nil {
		err = ctx.Err()
	}
	return report, err
}

// Discover returns the template files under root, sorted. Directories
// starting with "." and files starting with "_" are skipped.
func (b *Builder) Discover() ([]string, error) {
	var files []string
	err := filepath.WalkDir(b.cfg.Root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		name := d.Name()
		if d.IsDir() {
			if path != b.cfg.Root && strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
			if b.cfg.Out != "" && path == b.cfg.Out {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(name, "_") || !strings.EqualFold(filepath.Ext(name), b.cfg.Ext) {
			return nil
		}
		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", b.cfg.Root, err)
	}
	sort.Strings(files)
	return files, nil
}

// Owns reports whether path is a template this builder would compile.
func (b *Builder) Owns(path string) bool {
	rel, err := filepath.Rel(b.cfg.Root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return false
	}
	for _, part := range strings.Split(filepath.Dir(rel), string(filepath.Separator)) {
		if strings.HasPrefix(part, ".") && part != "." {
			return false
		}
	}
	name := filepath.Base(rel)
	return !strings.HasPrefix(name, "_") && strings.EqualFold(filepath.Ext(name), b.cfg.Ext)
}

// BuildFile compiles one template and writes its outputs.
func (b *Builder) BuildFile(path string) FileResult {
	res := FileResult{Path: path, Rel: b.rel(path)}
	res.Out = b.OutputPath(path)

	data, err := os.Open(path)
	if err != nil {
		res.Err = err
		return res
	}
	src, err := puglite.ReadSource(data)
	data.Close()
	if err != nil {
		res.Err = err
		return res
	}

	key := cache.Key(src, b.opts.Fingerprint(), b.cfg.Format, fmt.Sprint(b.cfg.Minify))
	out, ok := b.cache.Get(key)
	if ok {
		res.Cached = true
	} else {
		opts := b.opts
		opts.Filename = res.Rel
		html, err := puglite.Render(src, opts, nil)
		if err != nil {
			res.Err = err
			return res
		}
		if b.cfg.Minify {
			if html, err = minifyHTML(html); err != nil {
				res.Err = fmt.Errorf("%s: minify: %w", res.Rel, err)
				return res
			}
		}
		out = wrap(html, b.cfg.Format)
		if err := b.cache.Put(key, out); err != nil {
			b.logger.Warn("cache write failed", "file", res.Rel, "error", err)
		}
	}

	if err := writeOutputs(res.Out, []byte(out), b.cfg); err != nil {
		res.Err = err
		return res
	}
	res.Size = len(out)
	return res
}

// Remove deletes the outputs of a template that no longer exists.
func (b *Builder) Remove(path string) error {
	out := b.OutputPath(path)
	for _, p := range []string{out, out + ".gz", out + ".br"} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}

// OutputPath maps a template path to its output file.
func (b *Builder) OutputPath(path string) string {
	rel := b.rel(path)
	base := strings.TrimSuffix(rel, filepath.Ext(rel))
	return filepath.Join(b.cfg.Out, base+outputExt(b.cfg.Format))
}

func (b *Builder) rel(path string) string {
	rel, err := filepath.Rel(b.cfg.Root, path)
	if err != nil {
		return path
	}
	return rel
}
