// Package target models the build targets of a project: the client entry,
// the server-render entry, and any number of named API entries. The
// Registry is a pure transform from raw target sources to validated,
// immutable descriptors; it performs no I/O and never changes after
// construction.
package target

import (
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/loom-dev/loom/pkg/bundler"
)

// Validation failures. Callers that need an error code rather than a
// sentinel wrap these at the configuration boundary.
var (
	ErrMissingEntry   = errors.New("target: missing entry")
	ErrMissingName    = errors.New("target: missing name")
	ErrDuplicateName  = errors.New("target: duplicate name")
	ErrRouteCollision = errors.New("target: colliding route prefix")
	ErrBadRoute       = errors.New("target: invalid route prefix")
	ErrBadNaming      = errors.New("target: entry naming must not use [hash]")
)

// Kind classifies a target.
type Kind string

const (
	KindClient Kind = "client"
	KindSSR    Kind = "ssr"
	KindAPI    Kind = "api"
)

// Source is the raw, pre-validation description of one target.
type Source struct {
	// Name identifies the target. Empty is allowed for the client and
	// ssr sources, which default to "client" and "ssr".
	Name string

	// Entry is the source entry module, relative to the project root.
	Entry string

	// Route is the URL prefix an API target serves. Empty defaults to
	// "/" + Name. Ignored for client and ssr targets.
	Route string

	// Environment holds compile-time define overrides for this target.
	Environment map[string]string

	// Naming overrides output file naming. Zero value means defaults.
	Naming bundler.NamingRule
}

// Descriptor is one validated target. Descriptors are plain values; the
// registry hands out copies and nothing mutates them after construction.
type Descriptor struct {
	Name        string
	Kind        Kind
	Entry       string
	Route       string
	Naming      bundler.NamingRule
	Environment bundler.EnvironmentFunc
}

// CompiledEntry returns the file name the target's compiled entry module
// will have, per the naming rule. The name depends only on the entry path
// and the rule, so it is known before any build runs.
func (d Descriptor) CompiledEntry() string {
	return d.Naming.EntryFile(bundler.EntryBase(d.Entry))
}

// OutputRel returns the compiled entry path relative to the build output
// root, in slash form. Each target owns the subdirectory named after it.
func (d Descriptor) OutputRel() string {
	return d.Name + "/" + d.CompiledEntry()
}

// Registry holds the validated target set. Client and ssr are always
// present; API descriptors keep their registration order.
type Registry struct {
	client  Descriptor
	ssr     Descriptor
	apis    []Descriptor
	byName  map[string]Descriptor
	byEntry map[string]Descriptor
}

// New validates the sources and builds a registry. API targets register in
// argument order, which is the order the dev router consults them in.
func New(client, ssr Source, apis ...Source) (*Registry, error) {
	r := &Registry{
		byName:  make(map[string]Descriptor),
		byEntry: make(map[string]Descriptor),
	}

	c, err := build(client, KindClient, "client")
	if err != nil {
		return nil, err
	}
	s, err := build(ssr, KindSSR, "ssr")
	if err != nil {
		return nil, err
	}
	r.client = c
	r.ssr = s
	if err := r.register(c); err != nil {
		return nil, err
	}
	if err := r.register(s); err != nil {
		return nil, err
	}

	routes := make(map[string]string)
	for _, src := range apis {
		if src.Name == "" {
			return nil, fmt.Errorf("%w: api target", ErrMissingName)
		}
		d, err := build(src, KindAPI, src.Name)
		if err != nil {
			return nil, err
		}

		route, err := normalizeRoute(src.Route, d.Name)
		if err != nil {
			return nil, err
		}
		if owner, taken := routes[route]; taken {
			return nil, fmt.Errorf("%w: %q used by both %q and %q", ErrRouteCollision, route, owner, d.Name)
		}
		routes[route] = d.Name
		d.Route = route

		if err := r.register(d); err != nil {
			return nil, err
		}
		r.apis = append(r.apis, d)
	}

	return r, nil
}

// build validates one source into a descriptor, without route handling.
func build(src Source, kind Kind, defaultName string) (Descriptor, error) {
	name := src.Name
	if name == "" {
		name = defaultName
	}
	if src.Entry == "" {
		return Descriptor{}, fmt.Errorf("%w: target %q", ErrMissingEntry, name)
	}

	naming := src.Naming
	def := bundler.DefaultNaming()
	if naming.Entry == "" {
		naming.Entry = def.Entry
	}
	if naming.Chunk == "" {
		naming.Chunk = def.Chunk
	}
	if naming.Asset == "" {
		naming.Asset = def.Asset
	}
	if !naming.Deterministic() {
		return Descriptor{}, fmt.Errorf("%w: target %q uses %q", ErrBadNaming, name, naming.Entry)
	}

	return Descriptor{
		Name:        name,
		Kind:        kind,
		Entry:       path.Clean(strings.ReplaceAll(src.Entry, `\`, "/")),
		Naming:      naming,
		Environment: bundler.MergedEnvironment(src.Environment),
	}, nil
}

func (r *Registry) register(d Descriptor) error {
	if _, exists := r.byName[d.Name]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateName, d.Name)
	}
	r.byName[d.Name] = d
	if _, exists := r.byEntry[d.Entry]; !exists {
		r.byEntry[d.Entry] = d
	}
	return nil
}

// normalizeRoute applies the default and canonical form: leading slash
// required, trailing slash stripped (except the bare root).
func normalizeRoute(route, name string) (string, error) {
	if route == "" {
		return "/" + name, nil
	}
	if !strings.HasPrefix(route, "/") {
		return "", fmt.Errorf("%w: %q must start with /", ErrBadRoute, route)
	}
	if route != "/" {
		route = strings.TrimRight(route, "/")
	}
	if strings.Contains(route, "//") || strings.ContainsAny(route, " \t?#") {
		return "", fmt.Errorf("%w: %q", ErrBadRoute, route)
	}
	return route, nil
}

// Client returns the client target.
func (r *Registry) Client() Descriptor {
	return r.client
}

// SSR returns the server-render target.
func (r *Registry) SSR() Descriptor {
	return r.ssr
}

// API returns the API target with the given name.
func (r *Registry) API(name string) (Descriptor, bool) {
	d, ok := r.byName[name]
	if !ok || d.Kind != KindAPI {
		return Descriptor{}, false
	}
	return d, true
}

// APIs returns the API targets in registration order. The slice is a copy.
func (r *Registry) APIs() []Descriptor {
	out := make([]Descriptor, len(r.apis))
	copy(out, r.apis)
	return out
}

// All returns every target: client, ssr, then APIs in registration order.
func (r *Registry) All() []Descriptor {
	out := make([]Descriptor, 0, 2+len(r.apis))
	out = append(out, r.client, r.ssr)
	out = append(out, r.apis...)
	return out
}

// Lookup returns the target with the given name, of any kind.
func (r *Registry) Lookup(name string) (Descriptor, bool) {
	d, ok := r.byName[name]
	return d, ok
}

// ByEntry returns the target whose source entry matches the given path.
// The path is compared in cleaned slash form.
func (r *Registry) ByEntry(entry string) (Descriptor, bool) {
	d, ok := r.byEntry[path.Clean(strings.ReplaceAll(entry, `\`, "/"))]
	return d, ok
}
