package target

import (
	"errors"
	"testing"

	"github.com/loom-dev/loom/pkg/bundler"
)

func testRegistry(t *testing.T) *Registry {
	t.Helper()
	r, err := New(
		Source{Entry: "src/entry-client.ts"},
		Source{Entry: "src/entry-server.ts"},
		Source{Name: "api", Entry: "src/api/main.ts"},
		Source{Name: "admin", Entry: "src/api/admin.ts", Route: "/api/admin"},
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return r
}

func TestNew_Defaults(t *testing.T) {
	r := testRegistry(t)

	c := r.Client()
	if c.Name != "client" || c.Kind != KindClient {
		t.Errorf("client = %q/%q", c.Name, c.Kind)
	}
	if c.Naming.Entry != "[name].js" {
		t.Errorf("client naming = %q, want default", c.Naming.Entry)
	}

	s := r.SSR()
	if s.Name != "ssr" || s.Kind != KindSSR {
		t.Errorf("ssr = %q/%q", s.Name, s.Kind)
	}

	api, ok := r.API("api")
	if !ok {
		t.Fatal("API(api) not found")
	}
	if api.Route != "/api" {
		t.Errorf("default route = %q, want /api", api.Route)
	}

	admin, ok := r.API("admin")
	if !ok {
		t.Fatal("API(admin) not found")
	}
	if admin.Route != "/api/admin" {
		t.Errorf("route = %q, want /api/admin", admin.Route)
	}
}

func TestNew_Validation(t *testing.T) {
	client := Source{Entry: "src/entry-client.ts"}
	ssr := Source{Entry: "src/entry-server.ts"}

	tests := []struct {
		name    string
		client  Source
		ssr     Source
		apis    []Source
		wantErr error
	}{
		{
			name:    "missing client entry",
			client:  Source{},
			ssr:     ssr,
			wantErr: ErrMissingEntry,
		},
		{
			name:    "missing ssr entry",
			client:  client,
			ssr:     Source{},
			wantErr: ErrMissingEntry,
		},
		{
			name:    "missing api entry",
			client:  client,
			ssr:     ssr,
			apis:    []Source{{Name: "api"}},
			wantErr: ErrMissingEntry,
		},
		{
			name:    "missing api name",
			client:  client,
			ssr:     ssr,
			apis:    []Source{{Entry: "src/api/main.ts"}},
			wantErr: ErrMissingName,
		},
		{
			name:    "api shadows client name",
			client:  client,
			ssr:     ssr,
			apis:    []Source{{Name: "client", Entry: "src/api/main.ts"}},
			wantErr: ErrDuplicateName,
		},
		{
			name:   "duplicate api names",
			client: client,
			ssr:    ssr,
			apis: []Source{
				{Name: "api", Entry: "src/api/a.ts"},
				{Name: "api", Entry: "src/api/b.ts"},
			},
			wantErr: ErrDuplicateName,
		},
		{
			name:   "colliding routes",
			client: client,
			ssr:    ssr,
			apis: []Source{
				{Name: "a", Entry: "src/api/a.ts", Route: "/api"},
				{Name: "b", Entry: "src/api/b.ts", Route: "/api"},
			},
			wantErr: ErrRouteCollision,
		},
		{
			name:   "trailing slash collides after normalization",
			client: client,
			ssr:    ssr,
			apis: []Source{
				{Name: "a", Entry: "src/api/a.ts", Route: "/api"},
				{Name: "b", Entry: "src/api/b.ts", Route: "/api/"},
			},
			wantErr: ErrRouteCollision,
		},
		{
			name:    "route without leading slash",
			client:  client,
			ssr:     ssr,
			apis:    []Source{{Name: "api", Entry: "src/api/a.ts", Route: "api"}},
			wantErr: ErrBadRoute,
		},
		{
			name:    "route with spaces",
			client:  client,
			ssr:     ssr,
			apis:    []Source{{Name: "api", Entry: "src/api/a.ts", Route: "/a b"}},
			wantErr: ErrBadRoute,
		},
		{
			name:    "hashed entry naming",
			client:  Source{Entry: "src/entry-client.ts", Naming: bundler.NamingRule{Entry: "[name]-[hash].js"}},
			ssr:     ssr,
			wantErr: ErrBadNaming,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.client, tt.ssr, tt.apis...)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("New() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

// Prefixes that nest, like /api and /api/admin, are distinct prefixes and
// must not be rejected as collisions. Which one serves a request is a
// routing precedence question, not a registry one.
func TestNew_NestedRoutesAllowed(t *testing.T) {
	_, err := New(
		Source{Entry: "c.ts"},
		Source{Entry: "s.ts"},
		Source{Name: "api", Entry: "a.ts", Route: "/api"},
		Source{Name: "admin", Entry: "b.ts", Route: "/api/admin"},
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
}

func TestAPIs_RegistrationOrder(t *testing.T) {
	r, err := New(
		Source{Entry: "c.ts"},
		Source{Entry: "s.ts"},
		Source{Name: "zeta", Entry: "z.ts"},
		Source{Name: "alpha", Entry: "a.ts"},
		Source{Name: "mid", Entry: "m.ts"},
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	apis := r.APIs()
	want := []string{"zeta", "alpha", "mid"}
	for i, w := range want {
		if apis[i].Name != w {
			t.Errorf("APIs()[%d] = %q, want %q", i, apis[i].Name, w)
		}
	}

	// Returned slice is a copy.
	apis[0] = Descriptor{Name: "mutated"}
	if r.APIs()[0].Name != "zeta" {
		t.Error("APIs() should return a copy")
	}
}

func TestAll_Order(t *testing.T) {
	r := testRegistry(t)
	all := r.All()
	want := []string{"client", "ssr", "api", "admin"}
	if len(all) != len(want) {
		t.Fatalf("All() len = %d, want %d", len(all), len(want))
	}
	for i, w := range want {
		if all[i].Name != w {
			t.Errorf("All()[%d] = %q, want %q", i, all[i].Name, w)
		}
	}
}

func TestAPI_KindFiltering(t *testing.T) {
	r := testRegistry(t)
	if _, ok := r.API("client"); ok {
		t.Error("API(client) should not resolve a client-kind target")
	}
	if _, ok := r.API("nope"); ok {
		t.Error("API(nope) should not resolve")
	}
	if _, ok := r.Lookup("client"); !ok {
		t.Error("Lookup(client) should resolve")
	}
}

func TestByEntry(t *testing.T) {
	r := testRegistry(t)

	tests := []struct {
		entry    string
		wantName string
		wantOK   bool
	}{
		{"src/entry-client.ts", "client", true},
		{"./src/entry-client.ts", "client", true},
		{`src\entry-server.ts`, "ssr", true},
		{"src/api/main.ts", "api", true},
		{"src/unknown.ts", "", false},
	}

	for _, tt := range tests {
		d, ok := r.ByEntry(tt.entry)
		if ok != tt.wantOK {
			t.Errorf("ByEntry(%q) ok = %v, want %v", tt.entry, ok, tt.wantOK)
			continue
		}
		if ok && d.Name != tt.wantName {
			t.Errorf("ByEntry(%q) = %q, want %q", tt.entry, d.Name, tt.wantName)
		}
	}
}

func TestDescriptor_CompiledEntry(t *testing.T) {
	r := testRegistry(t)

	if got := r.Client().CompiledEntry(); got != "entry-client.js" {
		t.Errorf("CompiledEntry() = %q, want entry-client.js", got)
	}
	if got := r.Client().OutputRel(); got != "client/entry-client.js" {
		t.Errorf("OutputRel() = %q, want client/entry-client.js", got)
	}

	api, _ := r.API("api")
	if got := api.OutputRel(); got != "api/main.js" {
		t.Errorf("api OutputRel() = %q, want api/main.js", got)
	}
}

func TestDescriptor_Environment(t *testing.T) {
	r, err := New(
		Source{Entry: "c.ts", Environment: map[string]string{"process.env.FLAG": "on"}},
		Source{Entry: "s.ts"},
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	env := r.Client().Environment(bundler.ModeProduction)
	if env["process.env.FLAG"] != "on" {
		t.Errorf("override missing, env = %v", env)
	}
	if env["process.env.NODE_ENV"] != "production" {
		t.Errorf("NODE_ENV = %q", env["process.env.NODE_ENV"])
	}
}

func TestNormalizeRoute(t *testing.T) {
	tests := []struct {
		route   string
		name    string
		want    string
		wantErr bool
	}{
		{"", "api", "/api", false},
		{"/api", "api", "/api", false},
		{"/api/", "api", "/api", false},
		{"/api/v2/", "api", "/api/v2", false},
		{"/", "api", "/", false},
		{"api", "api", "", true},
		{"/a//b", "api", "", true},
		{"/a?x=1", "api", "", true},
	}

	for _, tt := range tests {
		got, err := normalizeRoute(tt.route, tt.name)
		if (err != nil) != tt.wantErr {
			t.Errorf("normalizeRoute(%q) error = %v, wantErr %v", tt.route, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("normalizeRoute(%q) = %q, want %q", tt.route, got, tt.want)
		}
	}
}
