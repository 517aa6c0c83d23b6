// Package server is a development server that compiles templates on
// request and reloads the browser when they change.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/alphadose/haxmap"

	"github.com/puglite/puglite/cache"
	"github.com/puglite/puglite/config"
	"github.com/puglite/puglite/pkg/puglite/puglite"
)

// Server represents a puglite dev server instance.
type Server struct {
	config     *config.Config
	configPath string
	logger     *slog.Logger
	opts       puglite.Options
	mux        *http.ServeMux
	server     *http.Server
	cache      *cache.Cache
	pages      *haxmap.Map[string, string] // template path -> cache key of its last render
	watcher    *Watcher
}

// New creates a dev server. A nil cache gets a memory cache.
func New(cfg *config.Config, configPath string, logger *slog.Logger, c *cache.Cache) (*Server, error) {
	if c == nil {
		c = cache.New()
	}
	s := &Server{
		config:     cfg,
		configPath: configPath,
		logger:     logger,
		opts:       cfg.Compile.Options(),
		mux:        http.NewServeMux(),
		cache:      c,
		pages:      haxmap.New[string, string](),
	}
	s.setupRoutes()
	return s, nil
}

// setupRoutes configures the HTTP mux.
func (s *Server) setupRoutes() {
	if s.config.Server.LiveReload {
		s.mux.Handle("/__livereload", newLiveReloadHandler(s.changeSeq))
	}
	s.mux.HandleFunc("/", s.servePage)
}

// Handler returns the full middleware chain.
func (s *Server) Handler() http.Handler {
	var handler http.Handler = s.mux

	if s.config.Server.LiveReload {
		handler = injectLiveReload(handler)
	}

	handler = newCompressionHandler(handler, s.config.Server.Compression)

	if !s.config.Logging.Quiet {
		handler = newRequestLogger(handler, s.logger)
	}
	return handler
}

// Run starts the server and blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	addr := s.listenAddr()

	if s.config.Server.LiveReload {
		watcher, err := NewWatcher(s.watchDirs(), s.configPath, s.config.Build.Ext, s.logger)
		if err != nil {
			s.logger.Error("failed to create watcher", "error", err)
		} else {
			watcher.OnTemplate(func(path string, _ bool) { s.Invalidate(path) })
			s.watcher = watcher
			if err := s.watcher.Start(ctx); err != nil {
				s.logger.Error("failed to start watcher", "error", err)
			}
			defer s.watcher.Close()
		}
	}

	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("serving templates", "url", "http://"+addr, "root", s.config.Build.Root)
		errCh <- s.server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err != http.ErrServerClosed {
			return err
		}
		return nil
	}
}

// Invalidate drops the cached render of the template at path.
func (s *Server) Invalidate(path string) {
	key, ok := s.pages.Get(path)
	if !ok {
		return
	}
	s.pages.Del(path)
	if err := s.cache.Delete(key); err != nil {
		s.logger.Warn("cache delete failed", "path", path, "error", err)
	}
}

func (s *Server) changeSeq() uint64 {
	if s.watcher == nil {
		return 0
	}
	return s.watcher.GetChangeSeq()
}

func (s *Server) watchDirs() []string {
	dirs := []string{s.config.Build.Root}
	if s.config.Server.Public != "" {
		dirs = append(dirs, s.config.Server.Public)
	}
	return dirs
}

// listenAddr returns the address to listen on based on configuration.
func (s *Server) listenAddr() string {
	return net.JoinHostPort(s.config.Server.Host, fmt.Sprint(s.config.Server.Port))
}
