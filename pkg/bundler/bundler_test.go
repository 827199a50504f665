package bundler

import "testing"

func TestNamingRule_EntryFile(t *testing.T) {
	tests := []struct {
		name    string
		rule    NamingRule
		base    string
		want    string
	}{
		{"default pattern", DefaultNaming(), "entry-client", "entry-client.js"},
		{"empty pattern falls back", NamingRule{}, "main", "main.js"},
		{"custom prefix", NamingRule{Entry: "js/[name].js"}, "app", "js/app.js"},
		{"no placeholder", NamingRule{Entry: "bundle.js"}, "anything", "bundle.js"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.rule.EntryFile(tt.base); got != tt.want {
				t.Errorf("EntryFile(%q) = %q, want %q", tt.base, got, tt.want)
			}
		})
	}
}

func TestNamingRule_Deterministic(t *testing.T) {
	if !DefaultNaming().Deterministic() {
		t.Error("default entry pattern should be deterministic")
	}
	hashed := NamingRule{Entry: "[name]-[hash].js"}
	if hashed.Deterministic() {
		t.Error("pattern with [hash] should not be deterministic")
	}
	chunks := NamingRule{Entry: "[name].js", Chunk: "c/[name]-[hash].js"}
	if !chunks.Deterministic() {
		t.Error("hash in chunk pattern should not affect entry determinism")
	}
}

func TestEntryBase(t *testing.T) {
	tests := []struct {
		entry string
		want  string
	}{
		{"src/entry-client.ts", "entry-client"},
		{"src/api/main.ts", "main"},
		{"entry.js", "entry"},
		{"noext", "noext"},
		{"src/.hidden", ".hidden"},
		{`src\win\entry.tsx`, "entry"},
	}

	for _, tt := range tests {
		if got := EntryBase(tt.entry); got != tt.want {
			t.Errorf("EntryBase(%q) = %q, want %q", tt.entry, got, tt.want)
		}
	}
}

func TestBaseEnvironment(t *testing.T) {
	dev := BaseEnvironment(ModeDevelopment)
	if dev["process.env.NODE_ENV"] != "development" {
		t.Errorf("dev NODE_ENV = %q", dev["process.env.NODE_ENV"])
	}
	if dev["import.meta.env.DEV"] != "true" || dev["import.meta.env.PROD"] != "false" {
		t.Errorf("dev flags = %q/%q", dev["import.meta.env.DEV"], dev["import.meta.env.PROD"])
	}

	prod := BaseEnvironment(ModeProduction)
	if prod["process.env.NODE_ENV"] != "production" {
		t.Errorf("prod NODE_ENV = %q", prod["process.env.NODE_ENV"])
	}
	if prod["import.meta.env.DEV"] != "false" || prod["import.meta.env.PROD"] != "true" {
		t.Errorf("prod flags = %q/%q", prod["import.meta.env.DEV"], prod["import.meta.env.PROD"])
	}
}

func TestMergedEnvironment(t *testing.T) {
	fn := MergedEnvironment(map[string]string{
		"process.env.NODE_ENV": "staging",
		"process.env.API_URL":  "https://api.example.com",
	})

	env := fn(ModeProduction)
	if env["process.env.NODE_ENV"] != "staging" {
		t.Errorf("override should win, got %q", env["process.env.NODE_ENV"])
	}
	if env["process.env.API_URL"] != "https://api.example.com" {
		t.Errorf("API_URL = %q", env["process.env.API_URL"])
	}
	if env["import.meta.env.PROD"] != "true" {
		t.Errorf("base defines should survive, PROD = %q", env["import.meta.env.PROD"])
	}
}

func TestMergedEnvironment_Isolation(t *testing.T) {
	fn := MergedEnvironment(nil)
	a := fn(ModeDevelopment)
	a["process.env.NODE_ENV"] = "mutated"
	b := fn(ModeDevelopment)
	if b["process.env.NODE_ENV"] != "development" {
		t.Error("calls should not share the returned map")
	}
}
