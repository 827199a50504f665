package config

import (
	"strings"
	"testing"
)

func TestRegistry(t *testing.T) {
	cfg := New()
	cfg.APIs = APIList{
		{Name: "api", TargetConfig: TargetConfig{Entry: "src/api/main.ts"}},
		{Name: "admin", TargetConfig: TargetConfig{Entry: "src/api/admin.ts", Route: "/api/admin"}},
	}

	reg, err := cfg.Registry()
	if err != nil {
		t.Fatalf("Registry() error = %v", err)
	}

	if got := reg.Client().Entry; got != "src/entry-client.ts" {
		t.Errorf("client entry = %q", got)
	}
	apis := reg.APIs()
	if len(apis) != 2 {
		t.Fatalf("len(apis) = %d, want 2", len(apis))
	}
	if apis[0].Route != "/api" {
		t.Errorf("default route = %q, want /api", apis[0].Route)
	}
	if apis[1].Route != "/api/admin" {
		t.Errorf("explicit route = %q, want /api/admin", apis[1].Route)
	}
}

func TestRegistry_CodedErrors(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*Config)
		wantCode string
	}{
		{
			name: "duplicate name",
			mutate: func(c *Config) {
				c.APIs = APIList{{Name: "ssr", TargetConfig: TargetConfig{Entry: "x.ts"}}}
			},
			wantCode: "E103",
		},
		{
			name: "route collision",
			mutate: func(c *Config) {
				c.APIs = APIList{
					{Name: "a", TargetConfig: TargetConfig{Entry: "a.ts", Route: "/api"}},
					{Name: "b", TargetConfig: TargetConfig{Entry: "b.ts", Route: "/api"}},
				}
			},
			wantCode: "E104",
		},
		{
			name: "bad route",
			mutate: func(c *Config) {
				c.APIs = APIList{{Name: "a", TargetConfig: TargetConfig{Entry: "a.ts", Route: "api"}}}
			},
			wantCode: "E107",
		},
		{
			name: "api missing entry",
			mutate: func(c *Config) {
				c.APIs = APIList{{Name: "a", TargetConfig: TargetConfig{}}}
			},
			wantCode: "E108",
		},
		{
			name:     "missing client entry",
			mutate:   func(c *Config) { c.Client.Entry = "" },
			wantCode: "E101",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := New()
			tt.mutate(cfg)
			_, err := cfg.Registry()
			if err == nil {
				t.Fatal("Registry() = nil, want error")
			}
			if !strings.Contains(err.Error(), tt.wantCode) {
				t.Errorf("Registry() = %v, want %s", err, tt.wantCode)
			}
		})
	}
}
