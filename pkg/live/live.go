// Package live defines the development-side collaborator contract. A
// Transformer stands between the dev server and target source code: it
// compiles entry modules on demand, hands back invokable handlers, knows
// which source files belong to which entry's module graph, and reports
// source changes as they happen.
//
// ExecTransformer is the reference implementation. It bundles entries
// with the project's bundler into a cache directory and executes the
// configured JavaScript runtime per invocation, speaking JSON over stdio.
// Swapping in a richer pipeline (a vite-style dev server, an embedded
// runtime) means implementing the same small interface.
package live

import (
	"context"
	"fmt"

	"github.com/loom-dev/loom/pkg/assets"
	"github.com/loom-dev/loom/pkg/wire"
)

// Change is one batch of changed source paths, relative to the project
// root.
type Change struct {
	Paths []string
}

// APIRoute pairs an API target name with its mounted route.
type APIRoute struct {
	Name  string `json:"name"`
	Route string `json:"route"`
}

// SSRInfo is the render context in its serializable form, shipped across
// the process boundary alongside each SSR request. Assets lists the client
// references in template order; APIs lists the mounted API targets in
// registration order; Base is the server's own address, which the harness
// uses to bind each API name to a handler-shaped loopback call.
type SSRInfo struct {
	Assets assets.Manifest `json:"assets"`
	APIs   []APIRoute      `json:"apis,omitempty"`
	Base   string          `json:"base,omitempty"`
}

// ssrInfoKey is the key for storing SSRInfo in a context.Context.
type ssrInfoKey struct{}

// WithSSRInfo returns a context carrying the given SSRInfo. Transports
// that cross a process boundary pick it up and ship it with the request.
func WithSSRInfo(ctx context.Context, info *SSRInfo) context.Context {
	return context.WithValue(ctx, ssrInfoKey{}, info)
}

// SSRInfoFrom retrieves the SSRInfo attached by WithSSRInfo, or nil.
func SSRInfoFrom(ctx context.Context) *SSRInfo {
	info, _ := ctx.Value(ssrInfoKey{}).(*SSRInfo)
	return info
}

// Transformer is the live-transform collaborator the dev session runs on.
type Transformer interface {
	// TransformHTML runs a page template through the dev pipeline so
	// that anything the pipeline would inject into a served page is
	// present in the returned markup.
	TransformHTML(ctx context.Context, markup string) (string, error)

	// Load returns an invokable handler for the target entry, compiled
	// from its current source.
	Load(ctx context.Context, entry string) (wire.Handler, error)

	// InGraph reports whether path belongs to entry's module graph as of
	// the last successful Load. An entry that never loaded only contains
	// itself.
	InGraph(entry, path string) bool

	// Notify feeds a batch of changed source paths into the transformer.
	// Cached modules whose graphs contain a changed path are invalidated,
	// and the batch is republished on Changes.
	Notify(paths []string)

	// Changes delivers change batches. The channel closes when the
	// transformer shuts down.
	Changes() <-chan Change

	// Close releases runtime resources.
	Close() error
}

// Phase says where inside the runtime a failure happened.
type Phase string

const (
	// PhaseLoad covers module import and evaluation.
	PhaseLoad Phase = "load"

	// PhaseInvoke covers the handler call itself.
	PhaseInvoke Phase = "invoke"
)

// RuntimeError is a failure reported from inside the JavaScript runtime,
// with the runtime-side stack when one was available.
type RuntimeError struct {
	Phase   Phase
	Message string
	Stack   string
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("runtime %s: %s", e.Phase, e.Message)
}
