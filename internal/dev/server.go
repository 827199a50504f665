package dev

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/loom-dev/loom/internal/config"
	"github.com/loom-dev/loom/internal/errors"
	"github.com/loom-dev/loom/pkg/assets"
	"github.com/loom-dev/loom/pkg/bundler"
	"github.com/loom-dev/loom/pkg/live"
	"github.com/loom-dev/loom/pkg/middleware"
	"github.com/loom-dev/loom/pkg/resolve"
	"github.com/loom-dev/loom/pkg/target"
)

// ServerOptions configures the development server.
type ServerOptions struct {
	// Config is the project configuration.
	Config *config.Config

	// Verbose enables per-file change logging.
	Verbose bool

	// OnReload is called after browsers are reloaded.
	OnReload func(clients int)
}

// Server is the development server. It owns the session, the watcher,
// the reload channel, and the HTTP listener; request dispatch is the
// router's job.
type Server struct {
	config      *config.Config
	options     ServerOptions
	registry    *target.Registry
	transformer live.Transformer
	session     *Session
	router      *Router
	reload      *ReloadServer
	watcher     *Watcher
	httpServer  *http.Server
	changeCh    chan []WatchChange

	mu      sync.Mutex
	running bool
}

// NewServer creates a development server from the project configuration.
func NewServer(options ServerOptions) (*Server, error) {
	cfg := options.Config

	registry, err := cfg.Registry()
	if err != nil {
		return nil, err
	}

	entries := make([]string, 0, 2+len(registry.APIs()))
	for _, d := range registry.All() {
		entries = append(entries, d.Entry)
	}

	// The resolver here answers import-time marker questions during
	// compilation. Alias answers never depend on the captured asset
	// list, so an empty manifest serves; the session builds the
	// manifest-bearing resolver for page-facing use.
	transformer, err := live.NewExecTransformer(live.ExecConfig{
		Runtime:  cfg.Bundler.Runtime,
		Root:     cfg.Dir(),
		Bundler:  bundler.NewExec(bundler.ExecConfig{Command: cfg.Bundler.Command}),
		Resolver: resolve.NewDevResolver(registry, assets.Manifest{}),
		Entries:  entries,
	})
	if err != nil {
		if stderrors.Is(err, exec.ErrNotFound) {
			return nil, errors.New("E302").WithDetail(err.Error()).Wrap(err)
		}
		return nil, err
	}

	var reload *ReloadServer
	if cfg.Dev.HotReload {
		reload = NewReloadServer()
	}

	session := NewSession(SessionConfig{
		Registry:    registry,
		Transformer: transformer,
		Template:    cfg.TemplatePath(),
		Base:        cfg.DevURL(),
	})

	watchPaths := make([]string, 0, len(cfg.Dev.Watch)+1)
	for _, p := range cfg.Dev.Watch {
		watchPaths = append(watchPaths, resolvePath(cfg.Dir(), p))
	}
	watchPaths = append(watchPaths, cfg.TemplatePath())

	watcher := NewWatcher(WatcherConfig{
		Paths:  watchPaths,
		Ignore: append(append([]string{}, DefaultIgnore...), cfg.Dev.Ignore...),
	})

	s := &Server{
		config:      cfg,
		options:     options,
		registry:    registry,
		transformer: transformer,
		session:     session,
		router:      NewRouter(session, reload),
		reload:      reload,
		watcher:     watcher,
	}
	s.router.OnError = func(le *errors.LoomError) {
		middleware.RecordFailure(le.Code)
		s.logError("%s", le.FormatCompact())
	}
	return s, nil
}

// Start runs the development session until ctx is done or the listener
// fails.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = true
	s.mu.Unlock()

	if err := s.session.Start(ctx); err != nil {
		return err
	}
	if n := len(s.session.Assets().Scripts) + len(s.session.Assets().Styles); n > 0 {
		s.log("Captured %d injected asset references", n)
	}

	// Load the server-render target up front so compile errors surface
	// immediately and the change bridge has a real module graph.
	s.prewarm(ctx)

	s.changeCh = make(chan []WatchChange, 16)
	s.watcher.OnChanges(func(batch []WatchChange) {
		select {
		case s.changeCh <- batch:
		default:
		}
	})
	go s.watcher.Start(ctx)
	go s.processChanges(ctx)

	if s.reload != nil {
		bridge := NewBridge(s.session, s.reload)
		bridge.OnReload = func(live.Change) { s.notifyReloaded() }
		go bridge.Run(ctx)
	}

	mux := chi.NewRouter()
	mux.Use(middleware.Prometheus(middleware.WithNamespace("loom")))
	mux.Use(middleware.OpenTelemetry(
		middleware.WithTracerName("loom"),
		middleware.WithRequestFilter(func(r *http.Request) bool {
			return r.URL.Path != ReloadPath && r.URL.Path != "/metrics"
		}),
	))
	if s.reload != nil {
		mux.Get(ReloadPath, s.reload.HandleWebSocket)
	}
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/*", s.handle)

	s.httpServer = &http.Server{
		Addr:    s.config.DevAddress(),
		Handler: mux,
	}

	s.log("Server running at %s", s.config.DevURL())
	for _, d := range s.registry.APIs() {
		s.log("  %s -> %s", d.Route, d.Entry)
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		s.Stop()
		return nil
	case err := <-errCh:
		s.Stop()
		return err
	}
}

// Stop stops the development server.
func (s *Server) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	s.running = false

	s.watcher.Stop()
	s.transformer.Close()
	if s.reload != nil {
		s.reload.Close()
	}

	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.httpServer.Shutdown(ctx)
	}
}

// handle serves public files for unrouted paths, then defers to the
// router. API prefixes always win over files.
func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.router.matchAPI(r.URL.Path); !ok {
		if file, ok := publicFile(s.config.Dir(), r.URL.Path); ok {
			http.ServeFile(w, r, file)
			return
		}
	}
	s.router.ServeHTTP(w, r)
}

// publicFile maps a request path onto the project's public directory,
// refusing anything that escapes it.
func publicFile(root, reqPath string) (string, bool) {
	rel := strings.TrimPrefix(path.Clean("/"+reqPath), "/")
	if rel == "" {
		return "", false
	}
	dir := filepath.Join(root, "public")
	full := filepath.Join(dir, filepath.FromSlash(rel))
	if !isWithinDir(full, dir) {
		return "", false
	}
	info, err := os.Stat(full)
	if err != nil || info.IsDir() {
		return "", false
	}
	return full, true
}

// prewarm loads the server-render target, surfacing failures in the
// terminal and on the overlay instead of waiting for the first request.
func (s *Server) prewarm(ctx context.Context) {
	d := s.registry.SSR()
	if _, err := s.session.Load(ctx, d.Entry); err != nil {
		le := codeLoadError(err).WithTarget(d.Name)
		s.logError("%s", le.FormatCompact())
		if s.reload != nil {
			s.reload.NotifyError(le.Trace())
		}
		return
	}
	if s.reload != nil {
		s.reload.ClearError()
	}
}

// processChanges serializes change handling and coalesces bursts.
func (s *Server) processChanges(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case batch := <-s.changeCh:
			draining := true
			for draining {
				select {
				case more := <-s.changeCh:
					batch = append(batch, more...)
				default:
					draining = false
				}
			}
			s.handleChanges(ctx, batch)
		}
	}
}

// handleChanges invalidates touched module graphs and picks the browser
// signal by change priority: module changes go through the bridge,
// stylesheet-only batches refresh styles in place, and anything else
// reloads the page.
func (s *Server) handleChanges(ctx context.Context, batch []WatchChange) {
	if len(batch) == 0 {
		return
	}

	var hasScript, hasCSS bool
	paths := make([]string, 0, len(batch))
	for _, c := range batch {
		if s.options.Verbose {
			s.log("Changed: %s", s.rel(c.Path))
		}
		paths = append(paths, c.Path)
		switch c.Type {
		case ChangeScript:
			hasScript = true
		case ChangeCSS:
			hasCSS = true
		}
	}

	s.transformer.Notify(paths)

	switch {
	case hasScript:
		s.prewarm(ctx)
	case hasCSS:
		if s.reload == nil {
			s.log("CSS changed (hot reload disabled)")
			return
		}
		for _, c := range batch {
			if c.Type == ChangeCSS {
				s.reload.NotifyCSS(s.rel(c.Path))
				break
			}
		}
		s.log("CSS reloaded")
	default:
		if s.reload == nil {
			s.log("Files changed (hot reload disabled)")
			return
		}
		s.reload.NotifyReload()
		s.notifyReloaded()
	}
}

// notifyReloaded reports a completed browser reload to the configured
// callback, or to the log when none is set.
func (s *Server) notifyReloaded() {
	n := s.reload.ClientCount()
	if s.options.OnReload != nil {
		s.options.OnReload(n)
		return
	}
	s.log("Reloaded %d browsers", n)
}

// rel shortens a path for logs.
func (s *Server) rel(p string) string {
	if r, err := filepath.Rel(s.config.Dir(), p); err == nil && !strings.HasPrefix(r, "..") {
		return filepath.ToSlash(r)
	}
	return filepath.ToSlash(p)
}

// log prints a timestamped message.
func (s *Server) log(format string, args ...any) {
	timestamp := time.Now().Format("15:04:05")
	fmt.Printf("[%s] %s\n", timestamp, fmt.Sprintf(format, args...))
}

// logError prints a timestamped error message in red.
func (s *Server) logError(format string, args ...any) {
	timestamp := time.Now().Format("15:04:05")
	fmt.Fprintf(os.Stderr, "[%s] %s%s%s\n", timestamp, "\033[31m", fmt.Sprintf(format, args...), "\033[0m")
}

// resolvePath joins a possibly relative path onto the project root.
func resolvePath(root, p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(root, p)
}

func isWithinDir(p, dir string) bool {
	absPath, err := filepath.Abs(p)
	if err != nil {
		return false
	}
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return false
	}
	absPath = filepath.Clean(absPath)
	absDir = filepath.Clean(absDir)
	if absPath == absDir {
		return true
	}
	if !strings.HasSuffix(absDir, string(os.PathSeparator)) {
		absDir += string(os.PathSeparator)
	}
	return strings.HasPrefix(absPath, absDir)
}
