// Package wire defines the calling convention shared by every compiled
// target. A target module, whatever bundler produced it, is loaded into a
// JavaScript runtime and invoked through this contract: the server hands it
// a Request, the module answers with a Response, and any failure travels
// back as an ordinary error.
//
// The same shapes are used on both sides of the process boundary. When a
// handler runs in-process (tests, fakes) it implements Handler directly;
// when it runs inside an external runtime the live transformer marshals
// Request and Response as JSON across stdio. Body bytes cross the boundary
// base64-encoded, which is the standard JSON encoding for []byte.
package wire

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/loom-dev/loom/pkg/assets"
)

// Request is the server-agnostic request shape handed to target handlers.
// URL carries the full request target (path plus raw query) so handlers can
// route and parse without depending on net/http.
type Request struct {
	Method string      `json:"method"`
	URL    string      `json:"url"`
	Header http.Header `json:"headers,omitempty"`
	Body   []byte      `json:"body,omitempty"`
}

// Response is what a target handler produces. A zero Status is treated as
// 200 by transport adapters.
type Response struct {
	Status int         `json:"status"`
	Header http.Header `json:"headers,omitempty"`
	Body   []byte      `json:"body,omitempty"`
}

// Handler is the single calling convention for SSR and API targets alike.
// Implementations must not retain req or the returned response after Serve
// returns.
type Handler interface {
	Serve(ctx context.Context, req *Request) (*Response, error)
}

// HandlerFunc adapts a plain function to the Handler interface.
type HandlerFunc func(ctx context.Context, req *Request) (*Response, error)

// Serve calls f.
func (f HandlerFunc) Serve(ctx context.Context, req *Request) (*Response, error) {
	return f(ctx, req)
}

// Loader produces the current handler for a target. In development the
// loader recompiles and reloads on every call so edits are picked up; in
// production it resolves once to the compiled module.
type Loader func(ctx context.Context) (Handler, error)

// SSRContext is the context value assembled for every server render. The
// asset manifest lists the client scripts and styles in the order they
// appear in the page template, and APIs maps each configured API target
// name to an invokable handler, so server-rendered code can call its own
// API surface without a network round trip.
//
// The shape is identical in development and production. Only the handler
// implementations behind the map differ.
type SSRContext struct {
	Assets assets.Manifest
	APIs   map[string]Handler
}

// Call invokes the named API handler directly. It returns an error when no
// API with that name exists in the context.
func (c *SSRContext) Call(ctx context.Context, name string, req *Request) (*Response, error) {
	h, ok := c.APIs[name]
	if !ok {
		return nil, fmt.Errorf("ssr context: no api named %q", name)
	}
	return h.Serve(ctx, req)
}

// ssrContextKey is the key for storing the SSRContext in a context.Context.
type ssrContextKey struct{}

// WithSSRContext returns a context carrying the given SSRContext. The server
// attaches it before invoking the SSR handler so transports further down the
// chain can recover it with SSRContextFrom.
func WithSSRContext(ctx context.Context, sc *SSRContext) context.Context {
	return context.WithValue(ctx, ssrContextKey{}, sc)
}

// SSRContextFrom retrieves the SSRContext attached by WithSSRContext.
// Returns nil if the context carries none.
func SSRContextFrom(ctx context.Context) *SSRContext {
	sc, _ := ctx.Value(ssrContextKey{}).(*SSRContext)
	return sc
}

// FromHTTP converts an incoming net/http request into the wire shape,
// reading the body in full. The original request body is consumed.
func FromHTTP(r *http.Request) (*Request, error) {
	var body []byte
	if r.Body != nil {
		b, err := io.ReadAll(r.Body)
		if err != nil {
			return nil, fmt.Errorf("read request body: %w", err)
		}
		body = b
	}
	return &Request{
		Method: r.Method,
		URL:    r.URL.RequestURI(),
		Header: r.Header.Clone(),
		Body:   body,
	}, nil
}

// Write sends the response over a net/http ResponseWriter. Headers are
// copied before the status line is written.
func (r *Response) Write(w http.ResponseWriter) error {
	for key, values := range r.Header {
		for _, v := range values {
			w.Header().Add(key, v)
		}
	}
	status := r.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	_, err := w.Write(r.Body)
	return err
}

// Text builds a plain-text response with the given status.
func Text(status int, body string) *Response {
	return &Response{
		Status: status,
		Header: http.Header{"Content-Type": []string{"text/plain; charset=utf-8"}},
		Body:   []byte(body),
	}
}

// HTML builds an HTML response with the given status.
func HTML(status int, body string) *Response {
	return &Response{
		Status: status,
		Header: http.Header{"Content-Type": []string{"text/html; charset=utf-8"}},
		Body:   []byte(body),
	}
}

// JSON builds an application/json response from pre-encoded bytes.
func JSON(status int, body []byte) *Response {
	return &Response{
		Status: status,
		Header: http.Header{"Content-Type": []string{"application/json"}},
		Body:   body,
	}
}
