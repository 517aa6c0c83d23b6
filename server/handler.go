package server

import (
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/puglite/puglite/cache"
	"github.com/puglite/puglite/pkg/puglite/puglite"
)

// servePage renders the template for the request path, falling back to a
// static file from the public directory.
func (s *Server) servePage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	candidates := s.templateCandidates(r.URL.Path)
	for _, p := range candidates {
		if !isFile(p) {
			continue
		}
		out, err := s.render(p)
		if err != nil {
			s.logger.Error("template failed", "path", p, "error", err)
			renderDevErrorPage(w, FromError(err))
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "no-cache")
		if r.Method == http.MethodHead {
			return
		}
		w.Write([]byte(out))
		return
	}

	if public := s.config.Server.Public; public != "" {
		static := filepath.Join(public, filepath.FromSlash(path.Clean("/"+r.URL.Path)))
		if isFile(static) {
			http.ServeFile(w, r, static)
			return
		}
		candidates = append(candidates, static)
	}

	checked := make([]string, 0, len(candidates))
	for _, c := range candidates {
		if rel, err := filepath.Rel(s.config.BaseDir, c); err == nil && !strings.HasPrefix(rel, "..") {
			c = rel
		}
		checked = append(checked, c)
	}
	renderDev404Page(w, r.URL.Path, checked)
}

// templateCandidates maps a URL path onto template files: /about tries
// about.pug then about/index.pug. Partials and hidden paths never match.
func (s *Server) templateCandidates(urlPath string) []string {
	clean := path.Clean("/" + urlPath)
	for _, seg := range strings.Split(clean, "/") {
		if strings.HasPrefix(seg, "_") || strings.HasPrefix(seg, ".") {
			return nil
		}
	}

	root := s.config.Build.Root
	ext := s.config.Build.Ext
	rel := filepath.FromSlash(strings.TrimPrefix(clean, "/"))

	if rel == "" {
		return []string{filepath.Join(root, "index"+ext)}
	}
	if strings.HasSuffix(rel, ".html") {
		return []string{filepath.Join(root, strings.TrimSuffix(rel, ".html")+ext)}
	}
	if filepath.Ext(rel) != "" && !strings.EqualFold(filepath.Ext(rel), ext) {
		return nil
	}
	rel = strings.TrimSuffix(rel, ext)
	return []string{
		filepath.Join(root, rel+ext),
		filepath.Join(root, rel, "index"+ext),
	}
}

// render compiles the template at p, reusing the cached output when the
// source has not changed.
func (s *Server) render(p string) (string, error) {
	f, err := os.Open(p)
	if err != nil {
		return "", err
	}
	src, err := puglite.ReadSource(f)
	f.Close()
	if err != nil {
		return "", err
	}

	key := cache.Key(src, s.opts.Fingerprint())
	if out, ok := s.cache.Get(key); ok {
		s.pages.Set(p, key)
		return out, nil
	}

	opts := s.opts
	opts.Filename = p
	if rel, err := filepath.Rel(s.config.Build.Root, p); err == nil {
		opts.Filename = rel
	}
	out, err := puglite.Render(src, opts, nil)
	if err != nil {
		return "", err
	}
	if err := s.cache.Put(key, out); err != nil {
		s.logger.Warn("cache write failed", "path", p, "error", err)
	}
	s.pages.Set(p, key)
	return out, nil
}

func isFile(p string) bool {
	info, err := os.Stat(p)
	return err == nil && !info.IsDir()
}
