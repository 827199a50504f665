package dev

import (
	"context"
	"os"

	"github.com/loom-dev/loom/pkg/assets"
	"github.com/loom-dev/loom/pkg/live"
	"github.com/loom-dev/loom/pkg/resolve"
	"github.com/loom-dev/loom/pkg/target"
	"github.com/loom-dev/loom/pkg/wire"
)

// SessionConfig configures a development session.
type SessionConfig struct {
	// Registry is the validated target set.
	Registry *target.Registry

	// Transformer is the live-transform collaborator.
	Transformer live.Transformer

	// Template is the path of the HTML page template whose injected
	// assets are captured at session start. A missing file yields an
	// empty asset list.
	Template string

	// Base is the development server's own URL, handed to server-render
	// code so it can reach the API targets over loopback.
	Base string
}

// Session is the state of one development run. Everything here is
// written during Start and read-only afterward; per-request work goes
// through the transformer, which owns the only mutable cache.
type Session struct {
	registry    *target.Registry
	transformer live.Transformer
	template    string
	base        string

	assets   assets.Manifest
	resolver resolve.SelfRefResolver
	started  bool
}

// NewSession creates a session. Call Start before serving requests.
func NewSession(cfg SessionConfig) *Session {
	return &Session{
		registry:    cfg.Registry,
		transformer: cfg.Transformer,
		template:    cfg.Template,
		base:        cfg.Base,
	}
}

// Start captures the injected-asset list and builds the development
// resolver. The template is run through the transformer first so that
// anything the pipeline would inject into a served page is present in
// the markup the extractor sees.
func (s *Session) Start(ctx context.Context) error {
	markup, err := s.readTemplate()
	if err != nil {
		return err
	}

	if markup != "" {
		transformed, err := s.transformer.TransformHTML(ctx, markup)
		if err != nil {
			return err
		}
		s.assets = assets.Extract(transformed)
	}

	s.resolver = resolve.NewDevResolver(s.registry, s.assets)
	s.started = true
	return nil
}

func (s *Session) readTemplate() (string, error) {
	if s.template == "" {
		return "", nil
	}
	data, err := os.ReadFile(s.template)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}
	return string(data), nil
}

// Registry returns the target set.
func (s *Session) Registry() *target.Registry {
	return s.registry
}

// Assets returns a copy of the asset list captured at session start.
func (s *Session) Assets() assets.Manifest {
	return s.assets.Clone()
}

// Resolver returns the development self-reference resolver. Nil before
// Start.
func (s *Session) Resolver() resolve.SelfRefResolver {
	return s.resolver
}

// Load returns the current handler for the given entry.
func (s *Session) Load(ctx context.Context, entry string) (wire.Handler, error) {
	return s.transformer.Load(ctx, entry)
}

// InGraph reports whether path belongs to the entry's module graph.
func (s *Session) InGraph(entry, path string) bool {
	return s.transformer.InGraph(entry, path)
}

// Changes exposes the transformer's change stream.
func (s *Session) Changes() <-chan live.Change {
	return s.transformer.Changes()
}

// SSRContext assembles the render context for one request: the captured
// asset list plus a handler per API target that loads that target's
// current code on demand. Loading happens at call time, so an edit
// between requests is always picked up.
func (s *Session) SSRContext() *wire.SSRContext {
	apis := make(map[string]wire.Handler)
	for _, d := range s.registry.APIs() {
		apis[d.Name] = s.lazyHandler(d.Entry)
	}
	return &wire.SSRContext{
		Assets: s.Assets(),
		APIs:   apis,
	}
}

// SSRInfo is the serializable render context shipped to out-of-process
// server-render code.
func (s *Session) SSRInfo() *live.SSRInfo {
	apis := s.registry.APIs()
	routes := make([]live.APIRoute, 0, len(apis))
	for _, d := range apis {
		routes = append(routes, live.APIRoute{Name: d.Name, Route: d.Route})
	}
	return &live.SSRInfo{
		Assets: s.Assets(),
		APIs:   routes,
		Base:   s.base,
	}
}

func (s *Session) lazyHandler(entry string) wire.Handler {
	return wire.HandlerFunc(func(ctx context.Context, req *wire.Request) (*wire.Response, error) {
		h, err := s.transformer.Load(ctx, entry)
		if err != nil {
			return nil, err
		}
		return h.Serve(ctx, req)
	})
}
