package dev

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/loom-dev/loom/internal/errors"
	"github.com/loom-dev/loom/pkg/bundler"
	"github.com/loom-dev/loom/pkg/live"
	"github.com/loom-dev/loom/pkg/target"
	"github.com/loom-dev/loom/pkg/wire"
)

func newTestRouter(t *testing.T, tr *stubTransformer, reload *ReloadServer, apis ...target.Source) *Router {
	t.Helper()
	s := NewSession(SessionConfig{
		Registry:    testRegistry(t, apis...),
		Transformer: tr,
		Base:        "http://127.0.0.1:4600",
	})
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("session start: %v", err)
	}
	return NewRouter(s, reload)
}

func doGet(rt *Router, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	rt.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestRouter_RegistrationOrderWins(t *testing.T) {
	broad := target.Source{Name: "api", Entry: "src/api/index.ts", Route: "/api"}
	narrow := target.Source{Name: "admin", Entry: "src/api/admin.ts", Route: "/api/admin"}

	newTr := func() *stubTransformer {
		tr := newStubTransformer()
		tr.setHandler("src/api/index.ts", textHandler("api"))
		tr.setHandler("src/api/admin.ts", textHandler("admin"))
		tr.setHandler("src/entry-server.ts", textHandler("ssr"))
		return tr
	}

	t.Run("broad prefix registered first captures nested paths", func(t *testing.T) {
		rt := newTestRouter(t, newTr(), nil, broad, narrow)

		for path, want := range map[string]string{
			"/api/admin/users": "api",
			"/api/admin":       "api",
			"/api/things":      "api",
			"/api":             "api",
			"/":                "ssr",
		} {
			if got := doGet(rt, path).Body.String(); got != want {
				t.Errorf("GET %s served by %q, want %q", path, got, want)
			}
		}
	})

	t.Run("narrow prefix registered first gets its subtree", func(t *testing.T) {
		rt := newTestRouter(t, newTr(), nil, narrow, broad)

		for path, want := range map[string]string{
			"/api/admin/users": "admin",
			"/api/admin":       "admin",
			"/api/things":      "api",
		} {
			if got := doGet(rt, path).Body.String(); got != want {
				t.Errorf("GET %s served by %q, want %q", path, got, want)
			}
		}
	})
}

func TestMatchesRoute(t *testing.T) {
	cases := []struct {
		path, prefix string
		want         bool
	}{
		{"/api", "/api", true},
		{"/api/users", "/api", true},
		{"/api/users/7", "/api", true},
		{"/apix", "/api", false},
		{"/api2/x", "/api", false},
		{"/", "/api", false},
		{"/anything/at/all", "/", true},
		{"/", "/", true},
	}
	for _, c := range cases {
		if got := matchesRoute(c.path, c.prefix); got != c.want {
			t.Errorf("matchesRoute(%q, %q) = %v, want %v", c.path, c.prefix, got, c.want)
		}
	}
}

func TestRouter_PrefixRespectsBoundaries(t *testing.T) {
	tr := newStubTransformer()
	tr.setHandler("src/api/index.ts", textHandler("api"))
	tr.setHandler("src/entry-server.ts", textHandler("ssr"))
	rt := newTestRouter(t, tr, nil, target.Source{Name: "api", Entry: "src/api/index.ts", Route: "/api"})

	if got := doGet(rt, "/apix").Body.String(); got != "ssr" {
		t.Errorf("GET /apix served by %q, want the page target", got)
	}
}

func TestRouter_SSRReceivesRenderContext(t *testing.T) {
	tr := newStubTransformer()
	tr.setHandler("src/entry-server.ts", wire.HandlerFunc(func(ctx context.Context, req *wire.Request) (*wire.Response, error) {
		sc := wire.SSRContextFrom(ctx)
		info := live.SSRInfoFrom(ctx)
		if sc == nil || info == nil {
			return nil, fmt.Errorf("render context missing")
		}
		return wire.HTML(http.StatusOK, fmt.Sprintf("apis=%d base=%s", len(sc.APIs), info.Base)), nil
	}))
	tr.setHandler("src/api/index.ts", wire.HandlerFunc(func(ctx context.Context, req *wire.Request) (*wire.Response, error) {
		if wire.SSRContextFrom(ctx) != nil {
			return nil, fmt.Errorf("api handlers must not see the render context")
		}
		return wire.Text(http.StatusOK, "plain"), nil
	}))

	rt := newTestRouter(t, tr, nil, target.Source{Name: "api", Entry: "src/api/index.ts", Route: "/api"})

	rec := doGet(rt, "/page")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if got := rec.Body.String(); got != "apis=1 base=http://127.0.0.1:4600" {
		t.Errorf("body = %q", got)
	}

	if rec := doGet(rt, "/api/x"); rec.Body.String() != "plain" {
		t.Errorf("api body = %q, status %d", rec.Body.String(), rec.Code)
	}
}

func TestRouter_CompileFailureProducesCodedTrace(t *testing.T) {
	tr := newStubTransformer()
	tr.loadErr["src/entry-server.ts"] = &bundler.BuildError{
		Diagnostics: []bundler.Diagnostic{{
			Message: "Unexpected token",
			File:    "src/entry-server.ts",
			Line:    3,
			Column:  7,
		}},
		Log: `X [ERROR] Unexpected token`,
	}

	reload := NewReloadServer()
	rt := newTestRouter(t, tr, reload)

	var codes []string
	rt.OnError = func(le *errors.LoomError) { codes = append(codes, le.Code) }

	rec := doGet(rt, "/")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "E301") {
		t.Errorf("body missing code: %s", body)
	}
	if !strings.Contains(body, "src/entry-server.ts") {
		t.Errorf("body missing diagnostic location: %s", body)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.Contains(ct, "text/html") {
		t.Errorf("content type = %q, want html error page", ct)
	}

	if len(codes) != 1 || codes[0] != "E301" {
		t.Errorf("reported codes = %v, want [E301]", codes)
	}
	if reload.lastError == "" {
		t.Error("expected the failure to be pending on the reload channel")
	}
}

func TestRouter_APIFailuresAreTextTraces(t *testing.T) {
	api := target.Source{Name: "main", Entry: "src/api/main.ts", Route: "/api"}

	t.Run("compile failure", func(t *testing.T) {
		tr := newStubTransformer()
		tr.loadErr["src/api/main.ts"] = &bundler.BuildError{Log: "X [ERROR] nope"}
		rt := newTestRouter(t, tr, nil, api)

		rec := doGet(rt, "/api/x")
		if rec.Code != http.StatusInternalServerError {
			t.Fatalf("status = %d, want 500", rec.Code)
		}
		if ct := rec.Header().Get("Content-Type"); !strings.Contains(ct, "text/plain") {
			t.Errorf("content type = %q, want plain text for api responses", ct)
		}
		if !strings.Contains(rec.Body.String(), "E301") {
			t.Errorf("body missing code: %s", rec.Body.String())
		}
	})

	t.Run("runtime failure during module load", func(t *testing.T) {
		tr := newStubTransformer()
		tr.setHandler("src/api/main.ts", wire.HandlerFunc(func(ctx context.Context, req *wire.Request) (*wire.Response, error) {
			return nil, &live.RuntimeError{Phase: live.PhaseLoad, Message: "missing env", Stack: "at src/api/main.ts:1:1"}
		}))
		rt := newTestRouter(t, tr, nil, api)

		body := doGet(rt, "/api/x").Body.String()
		if !strings.Contains(body, "E303") {
			t.Errorf("body = %s, want E303 for load-phase failures", body)
		}
	})

	t.Run("handler failure", func(t *testing.T) {
		tr := newStubTransformer()
		tr.setHandler("src/api/main.ts", wire.HandlerFunc(func(ctx context.Context, req *wire.Request) (*wire.Response, error) {
			return nil, &live.RuntimeError{Phase: live.PhaseInvoke, Message: "boom", Stack: "at handler (src/api/main.ts:9:3)"}
		}))
		rt := newTestRouter(t, tr, nil, api)

		body := doGet(rt, "/api/x").Body.String()
		if !strings.Contains(body, "E401") {
			t.Errorf("body = %s, want E401 for handler failures", body)
		}
		if !strings.Contains(body, "src/api/main.ts:9:3") {
			t.Errorf("body = %s, want the runtime stack", body)
		}
	})
}

func TestRouter_PanicBecomesCodedResponse(t *testing.T) {
	tr := newStubTransformer()
	tr.setHandler("src/entry-server.ts", wire.HandlerFunc(func(ctx context.Context, req *wire.Request) (*wire.Response, error) {
		panic("kaboom")
	}))
	rt := newTestRouter(t, tr, nil)

	rec := doGet(rt, "/")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "E402") || !strings.Contains(body, "kaboom") {
		t.Errorf("body = %s, want coded panic details", body)
	}
}

func TestRouter_NilReloadIsSafe(t *testing.T) {
	tr := newStubTransformer()
	tr.loadErr["src/entry-server.ts"] = fmt.Errorf("load failed")
	rt := newTestRouter(t, tr, nil)

	rec := doGet(rt, "/")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
}
