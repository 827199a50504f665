package dev

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/loom-dev/loom/internal/errors"
	"github.com/loom-dev/loom/pkg/bundler"
	"github.com/loom-dev/loom/pkg/live"
	"github.com/loom-dev/loom/pkg/target"
	"github.com/loom-dev/loom/pkg/wire"
)

// Router dispatches development requests. API route prefixes are tried
// first, in registration order, first match wins; everything else goes
// to the server-render target. Handlers are loaded through the live
// transformer on every request, so the code that runs is always the code
// on disk.
type Router struct {
	session *Session
	reload  *ReloadServer

	// OnError, when set, receives every request-scoped failure after it
	// has been coded. The server uses it to log to the terminal.
	OnError func(*errors.LoomError)
}

// NewRouter creates a router over the session. reload may be nil, in
// which case failures skip the overlay and error pages carry no client
// script.
func NewRouter(session *Session, reload *ReloadServer) *Router {
	return &Router{session: session, reload: reload}
}

func (rt *Router) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	d, isAPI := rt.matchAPI(r.URL.Path)

	defer func() {
		if v := recover(); v != nil {
			le := errors.New("E402").WithDetail(fmt.Sprint(v))
			if isAPI {
				le = le.WithTarget(d.Name)
			} else {
				le = le.WithTarget(rt.session.Registry().SSR().Name)
			}
			rt.fail(w, le, !isAPI)
		}
	}()

	req, err := wire.FromHTTP(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if isAPI {
		rt.serveAPI(r.Context(), w, d, req)
		return
	}
	rt.serveSSR(r.Context(), w, req)
}

// matchAPI walks the API targets in registration order and returns the
// first whose route prefix owns the path. Registration order, not
// specificity, decides between overlapping prefixes.
func (rt *Router) matchAPI(path string) (target.Descriptor, bool) {
	for _, d := range rt.session.Registry().APIs() {
		if matchesRoute(path, d.Route) {
			return d, true
		}
	}
	return target.Descriptor{}, false
}

// matchesRoute reports whether the request path falls under the route
// prefix. Matching respects path boundaries, so "/api" owns "/api" and
// "/api/x" but not "/apix".
func matchesRoute(path, prefix string) bool {
	if prefix == "/" {
		return true
	}
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}

func (rt *Router) serveAPI(ctx context.Context, w http.ResponseWriter, d target.Descriptor, req *wire.Request) {
	h, err := rt.session.Load(ctx, d.Entry)
	if err != nil {
		rt.fail(w, codeLoadError(err).WithTarget(d.Name), false)
		return
	}
	resp, err := h.Serve(ctx, req)
	if err != nil {
		rt.fail(w, codeInvokeError(err).WithTarget(d.Name), false)
		return
	}
	resp.Write(w)
}

func (rt *Router) serveSSR(ctx context.Context, w http.ResponseWriter, req *wire.Request) {
	d := rt.session.Registry().SSR()

	h, err := rt.session.Load(ctx, d.Entry)
	if err != nil {
		rt.fail(w, codeLoadError(err).WithTarget(d.Name), true)
		return
	}

	ctx = wire.WithSSRContext(ctx, rt.session.SSRContext())
	ctx = live.WithSSRInfo(ctx, rt.session.SSRInfo())

	resp, err := h.Serve(ctx, req)
	if err != nil {
		rt.fail(w, codeInvokeError(err).WithTarget(d.Name), true)
		return
	}
	resp.Write(w)
}

// fail converts a request-scoped failure into a visible 500: the trace
// goes out as the response body, onto the overlay of any open page, and
// to OnError. Failures are never retried here.
func (rt *Router) fail(w http.ResponseWriter, le *errors.LoomError, page bool) {
	if rt.OnError != nil {
		rt.OnError(le)
	}

	trace := le.Trace()
	if rt.reload != nil {
		rt.reload.NotifyError(trace)
	}

	if page {
		wire.HTML(http.StatusInternalServerError, errorPage(trace, rt.reload != nil)).Write(w)
		return
	}
	wire.Text(http.StatusInternalServerError, trace).Write(w)
}

// codeLoadError codes a failure from the load boundary: compile failures
// carry the bundler's first diagnostic location.
func codeLoadError(err error) *errors.LoomError {
	var be *bundler.BuildError
	if stderrors.As(err, &be) {
		le := errors.New("E301").WithDetail(strings.TrimSpace(be.Log)).Wrap(err)
		if len(be.Diagnostics) > 0 && be.Diagnostics[0].File != "" {
			d := be.Diagnostics[0]
			le = le.WithLocation(d.File, d.Line, d.Column)
		}
		return le
	}
	return errors.New("E301").Wrap(err)
}

// codeInvokeError codes a failure from the invoke boundary: a runtime
// failure during module evaluation is a load problem even though it
// surfaces at invocation time.
func codeInvokeError(err error) *errors.LoomError {
	var re *live.RuntimeError
	if stderrors.As(err, &re) {
		if re.Phase == live.PhaseLoad {
			return errors.New("E303").WithDetail(re.Stack).Wrap(err)
		}
		return errors.New("E401").WithDetail(re.Stack).Wrap(err)
	}
	return errors.New("E401").Wrap(err)
}

// errorPage renders the development 500 page: the trace in a pre block,
// plus the reload client so the page recovers on the next change.
func errorPage(trace string, withScript bool) string {
	script := ""
	if withScript {
		script = DevClientScript
	}
	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<head><title>loom dev server</title></head>
<body style="font-family: monospace; padding: 40px; background: #1a1a1a; color: #fff;">
<h1 style="color: #ff5555;">Request Failed</h1>
<pre style="white-space: pre-wrap; background: #111; padding: 20px; border-radius: 8px; border: 1px solid #333;">%s</pre>
<p style="color: #888;">Fix the error and save to reload.</p>
%s
</body>
</html>`, htmlEscape(trace), script)
}

func htmlEscape(s string) string {
	r := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
	return r.Replace(s)
}
