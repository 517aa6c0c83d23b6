package builder

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"

	"github.com/puglite/puglite/cache"
	"github.com/puglite/puglite/config"
	"github.com/puglite/puglite/pkg/puglite/puglite"
)

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for name, content := range files {
		path := filepath.Join(root, name)
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
	return root
}

func buildConfig(root string) config.BuildConfig {
	cfg := config.Defaults().Build
	cfg.Root = filepath.Join(root, "views")
	cfg.Out = filepath.Join(root, "dist")
	return cfg
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

func TestBuild(t *testing.T) {
	root := writeTree(t, map[string]string{
		"views/index.pug":        "doctype html\nhtml\n  body\n    h1 Home",
		"views/about/team.pug":   "ul\n  li Ann\n  li Bo",
		"views/_layout.pug":      "p partial",
		"views/.drafts/next.pug": "p draft",
		"views/notes.md":         "# not a template",
	})

	b := New(buildConfig(root), puglite.Options{}, nil, nil)
	report, err := b.Build(context.Background())
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if !report.OK() || len(report.Files) != 2 {
		t.Fatalf("unexpected report: %+v", report.Files)
	}
	if report.Files[0].Rel != filepath.Join("about", "team.pug") {
		t.Errorf("results not sorted: %s", report.Files[0].Rel)
	}

	tests := []struct {
		out      string
		expected string
	}{
		{"dist/index.html", "<!DOCTYPE html><html><body><h1>Home</h1></body></html>"},
		{"dist/about/team.html", "<ul><li>Ann</li><li>Bo</li></ul>"},
	}
	for _, tt := range tests {
		if got := readFile(t, filepath.Join(root, tt.out)); got != tt.expected {
			t.Errorf("%s = %q, want %q", tt.out, got, tt.expected)
		}
	}

	for _, skipped := range []string{"dist/_layout.html", "dist/.drafts/next.html", "dist/notes.html"} {
		if _, err := os.Stat(filepath.Join(root, skipped)); !os.IsNotExist(err) {
			t.Errorf("%s should not be built", skipped)
		}
	}

	if s := report.Summary(); !strings.HasPrefix(s, "2 templates, ") {
		t.Errorf("Summary() = %q", s)
	}
}

func TestBuildErrors(t *testing.T) {
	root := writeTree(t, map[string]string{
		"views/a.pug":   "p ok",
		"views/bad.pug": "p\nif user\n  p hi",
		"views/c.pug":   "p ok",
	})

	b := New(buildConfig(root), puglite.Options{}, nil, nil)
	report, err := b.Build(context.Background())
	if err != nil {
		t.Fatalf("Build without fail_fast returned %v", err)
	}
	failed := report.Failed()
	if len(failed) != 1 || failed[0].Rel != "bad.pug" {
		t.Fatalf("Failed() = %+v", failed)
	}
	if _, err := os.Stat(filepath.Join(root, "dist", "c.html")); err != nil {
		t.Errorf("other templates should still build: %v", err)
	}

	var buf bytes.Buffer
	report.Print(&buf)
	out := buf.String()
	if !strings.Contains(out, "bad.pug") || !strings.Contains(out, "1 failed") {
		t.Errorf("Print() output:\n%s", out)
	}

	cfg := buildConfig(root)
	cfg.FailFast = true
	cfg.Workers = 1
	if _, err := New(cfg, puglite.Options{}, nil, nil).Build(context.Background()); err == nil {
		t.Error("expected error with fail_fast")
	}
}

func TestBuildCache(t *testing.T) {
	root := writeTree(t, map[string]string{
		"views/a.pug": "p one",
		"views/b.pug": "p two",
	})
	dbPath := filepath.Join(root, "cache", "puglite.db")

	c, err := cache.Open(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	report, err := New(buildConfig(root), puglite.Options{}, c, nil).Build(context.Background())
	c.Close()
	if err != nil {
		t.Fatal(err)
	}
	for _, f := range report.Files {
		if f.Cached {
			t.Errorf("%s cached on first build", f.Rel)
		}
	}

	// A new process sees the persisted entries
	c, err = cache.Open(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	os.WriteFile(filepath.Join(root, "views", "b.pug"), []byte("p changed"), 0644)

	report, err = New(buildConfig(root), puglite.Options{}, c, nil).Build(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !report.Files[0].Cached || report.Files[1].Cached {
		t.Errorf("cached flags = %v, %v", report.Files[0].Cached, report.Files[1].Cached)
	}
	if got := readFile(t, filepath.Join(root, "dist", "b.html")); got != "<p>changed</p>" {
		t.Errorf("b.html = %q", got)
	}
	if !strings.Contains(report.Summary(), "(1 cached)") {
		t.Errorf("Summary() = %q", report.Summary())
	}

	// Different options miss the cache
	report, err = New(buildConfig(root), puglite.Options{Pretty: "  "}, c, nil).Build(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if report.Files[0].Cached {
		t.Error("pretty build reused plain output")
	}
}

func TestBuildFormats(t *testing.T) {
	tests := []struct {
		format   string
		out      string
		expected string
	}{
		{"html", "dist/page.html", `<p class="x">"hi"</p>`},
		{"esm", "dist/page.js", "export default \"<p class=\\\"x\\\">\\\"hi\\\"</p>\";\n"},
		{"cjs", "dist/page.cjs", "module.exports = \"<p class=\\\"x\\\">\\\"hi\\\"</p>\";\n"},
	}
	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			root := writeTree(t, map[string]string{"views/page.pug": `p.x "hi"`})
			cfg := buildConfig(root)
			cfg.Format = tt.format
			report, err := New(cfg, puglite.Options{}, nil, nil).Build(context.Background())
			if err != nil || !report.OK() {
				t.Fatalf("Build failed: %v %+v", err, report.Failed())
			}
			if got := readFile(t, filepath.Join(root, tt.out)); got != tt.expected {
				t.Errorf("got %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestMinifyAndPrecompress(t *testing.T) {
	root := writeTree(t, map[string]string{"views/index.pug": "div\n  p hello\n  p world"})
	cfg := buildConfig(root)
	cfg.Minify = true
	cfg.Precompress = []string{"gzip", "br"}

	report, err := New(cfg, puglite.Options{Pretty: "  "}, nil, nil).Build(context.Background())
	if err != nil || !report.OK() {
		t.Fatalf("Build failed: %v %+v", err, report.Failed())
	}

	out := filepath.Join(root, "dist", "index.html")
	html := readFile(t, out)
	if strings.Contains(html, "\n") || !strings.Contains(html, "<p>hello</p>") {
		t.Errorf("minified output = %q", html)
	}

	gzf, err := os.Open(out + ".gz")
	if err != nil {
		t.Fatal(err)
	}
	defer gzf.Close()
	zr, err := gzip.NewReader(gzf)
	if err != nil {
		t.Fatal(err)
	}
	unzipped, _ := io.ReadAll(zr)
	if string(unzipped) != html {
		t.Errorf("gzip sibling = %q", unzipped)
	}

	brf, err := os.Open(out + ".br")
	if err != nil {
		t.Fatal(err)
	}
	defer brf.Close()
	unbr, _ := io.ReadAll(brotli.NewReader(brf))
	if string(unbr) != html {
		t.Errorf("brotli sibling = %q", unbr)
	}

	if err := New(cfg, puglite.Options{}, nil, nil).Remove(filepath.Join(cfg.Root, "index.pug")); err != nil {
		t.Fatal(err)
	}
	for _, p := range []string{out, out + ".gz", out + ".br"} {
		if _, err := os.Stat(p); !os.IsNotExist(err) {
			t.Errorf("%s not removed", p)
		}
	}
}

func TestOwns(t *testing.T) {
	b := New(config.BuildConfig{Root: "/site/views", Out: "/site/dist", Ext: ".pug"}, puglite.Options{}, nil, nil)
	tests := []struct {
		path     string
		expected bool
	}{
		{"/site/views/index.pug", true},
		{"/site/views/blog/post.PUG", true},
		{"/site/views/_mixins.pug", false},
		{"/site/views/.git/x.pug", false},
		{"/site/views/style.css", false},
		{"/site/other/index.pug", false},
	}
	for _, tt := range tests {
		if got := b.Owns(filepath.FromSlash(tt.path)); got != tt.expected {
			t.Errorf("Owns(%q) = %v, want %v", tt.path, got, tt.expected)
		}
	}
	if got := b.OutputPath(filepath.FromSlash("/site/views/blog/post.pug")); got != filepath.FromSlash("/site/dist/blog/post.html") {
		t.Errorf("OutputPath() = %q", got)
	}
}

func TestBuildCancelled(t *testing.T) {
	root := writeTree(t, map[string]string{"views/a.pug": "p"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := New(buildConfig(root), puglite.Options{}, nil, nil).Build(ctx); err == nil {
		t.Error("expected context error")
	}
}
