package server

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/puglite/puglite/cache"
	"github.com/puglite/puglite/config"
)

func testSite(t *testing.T, files map[string]string) *config.Config {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}

	cfg := config.Defaults()
	cfg.BaseDir = dir
	cfg.Build.Root = filepath.Join(dir, "views")
	cfg.Build.Out = filepath.Join(dir, "dist")
	cfg.Server.Public = filepath.Join(dir, "public")
	cfg.Server.LiveReload = false
	cfg.Server.Compression.Enabled = false
	cfg.Logging.Quiet = true
	return cfg
}

func newTestServer(t *testing.T, cfg *config.Config) *Server {
	t.Helper()
	srv, err := New(cfg, "", slog.New(slog.DiscardHandler), cache.New())
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return srv
}

func get(h http.Handler, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest("GET", path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestPageRouting(t *testing.T) {
	cfg := testSite(t, map[string]string{
		"views/index.pug":      "h1 Home",
		"views/about.pug":      "h1 About",
		"views/blog/index.pug": "h1 Blog",
		"views/blog/post.pug":  "article Post",
		"views/_layout.pug":    "p partial",
		"public/site.css":      "body{}",
	})
	h := newTestServer(t, cfg).Handler()

	tests := []struct {
		path     string
		status   int
		contains string
	}{
		{"/", http.StatusOK, "<h1>Home</h1>"},
		{"/about", http.StatusOK, "<h1>About</h1>"},
		{"/about.html", http.StatusOK, "<h1>About</h1>"},
		{"/blog", http.StatusOK, "<h1>Blog</h1>"},
		{"/blog/", http.StatusOK, "<h1>Blog</h1>"},
		{"/blog/post", http.StatusOK, "<article>Post</article>"},
		{"/site.css", http.StatusOK, "body{}"},
		{"/_layout", http.StatusNotFound, "404 Not Found"},
		{"/missing", http.StatusNotFound, "views/missing.pug"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := get(h, tt.path)
			if rec.Code != tt.status {
				t.Errorf("status = %d, want %d", rec.Code, tt.status)
			}
			if !strings.Contains(rec.Body.String(), tt.contains) {
				t.Errorf("body missing %q:\n%s", tt.contains, rec.Body.String())
			}
		})
	}
}

func TestPageUsesCompileConfig(t *testing.T) {
	cfg := testSite(t, map[string]string{"views/index.pug": "input(checked)"})
	cfg.Compile.Doctype = "html"
	rec := get(newTestServer(t, cfg).Handler(), "/")
	if body := rec.Body.String(); body != "<input checked>" {
		t.Errorf("body = %q", body)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/html; charset=utf-8" {
		t.Errorf("Content-Type = %q", ct)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	cfg := testSite(t, map[string]string{"views/index.pug": "p"})
	req := httptest.NewRequest("POST", "/", nil)
	rec := httptest.NewRecorder()
	newTestServer(t, cfg).Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestTemplateErrorPage(t *testing.T) {
	cfg := testSite(t, map[string]string{"views/broken.pug": "div\n  each item in items\n    p= item"})
	rec := get(newTestServer(t, cfg).Handler(), "/broken")

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{"UnsupportedConstructError", "broken.pug", `<span class="line-info">2</span>`, "each item in items", "error-line"} {
		if !strings.Contains(body, want) {
			t.Errorf("error page missing %q", want)
		}
	}
}

func TestRenderCacheAndInvalidate(t *testing.T) {
	cfg := testSite(t, map[string]string{"views/index.pug": "p one"})
	c := cache.New()
	srv, err := New(cfg, "", slog.New(slog.DiscardHandler), c)
	if err != nil {
		t.Fatal(err)
	}
	h := srv.Handler()

	get(h, "/")
	get(h, "/")
	if s := c.Stats(); s.Hits != 1 || s.Misses != 1 {
		t.Errorf("Stats() = %+v", s)
	}

	path := filepath.Join(cfg.Build.Root, "index.pug")
	os.WriteFile(path, []byte("p two"), 0644)
	if body := get(h, "/").Body.String(); body != "<p>two</p>" {
		t.Errorf("changed template served %q", body)
	}

	srv.Invalidate(path)
	if c.Stats().Entries != 1 {
		t.Errorf("expected only the stale entry to remain, got %d", c.Stats().Entries)
	}
	srv.Invalidate(path)
}

func TestLiveReload(t *testing.T) {
	cfg := testSite(t, map[string]string{
		"views/index.pug": "html\n  body\n    p hi",
		"public/app.js":   "console.log(1)",
	})
	cfg.Server.LiveReload = true
	h := newTestServer(t, cfg).Handler()

	body := get(h, "/").Body.String()
	if !strings.Contains(body, "/__livereload") || !strings.HasSuffix(body, "</body></html>") {
		t.Errorf("script not injected before </body>:\n%s", body)
	}

	if body := get(h, "/app.js").Body.String(); body != "console.log(1)" {
		t.Errorf("non-HTML response modified: %q", body)
	}

	rec := get(h, "/__livereload")
	if rec.Body.String() != `{"seq":0}` {
		t.Errorf("livereload endpoint = %q", rec.Body.String())
	}
}

func TestInjectScript(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		prefix string
		suffix string
	}{
		{"body", "<html><body><p></p></BODY></html>", "<html><body><p></p><script>", "</script></BODY></html>"},
		{"html only", "<html><p></p></html>", "<html><p></p><script>", "</script></html>"},
		{"fragment", "<p></p>", "<p></p><script>", "</script>"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := string(injectScript([]byte(tt.input)))
			if !strings.HasPrefix(got, tt.prefix) || !strings.HasSuffix(got, tt.suffix) {
				t.Errorf("injectScript(%q) = %q", tt.input, got)
			}
		})
	}
}

func TestServerCompression(t *testing.T) {
	cfg := testSite(t, map[string]string{"views/index.pug": "p " + strings.Repeat("hello ", 400)})
	cfg.Server.Compression.Enabled = true

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	rec := httptest.NewRecorder()
	newTestServer(t, cfg).Handler().ServeHTTP(rec, req)

	if rec.Header().Get("Content-Encoding") != "gzip" {
		t.Errorf("expected gzip response, headers: %v", rec.Header())
	}
}

func TestListenAddr(t *testing.T) {
	tests := []struct {
		host     string
		port     int
		expected string
	}{
		{"localhost", 8080, "localhost:8080"},
		{"", 3000, ":3000"},
		{"::1", 8080, "[::1]:8080"},
	}
	for _, tt := range tests {
		cfg := config.Defaults()
		cfg.Server.Host = tt.host
		cfg.Server.Port = tt.port
		srv := newTestServer(t, cfg)
		if got := srv.listenAddr(); got != tt.expected {
			t.Errorf("listenAddr() = %q, want %q", got, tt.expected)
		}
	}
}

func TestHeadRequest(t *testing.T) {
	cfg := testSite(t, map[string]string{"views/index.pug": "p hi"})
	req := httptest.NewRequest("HEAD", "/", nil)
	rec := httptest.NewRecorder()
	newTestServer(t, cfg).Handler().ServeHTTP(rec, req)
	body, _ := io.ReadAll(rec.Body)
	if rec.Code != http.StatusOK || len(body) != 0 {
		t.Errorf("HEAD = %d %q", rec.Code, body)
	}
}
