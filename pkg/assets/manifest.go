// Package assets tracks the script and stylesheet references a page must
// carry, in the order the build pipeline injected them.
//
// Two structures live here. Manifest is the ordered reference lists
// extracted from pipeline-processed HTML (see Extract); its order encodes
// load-order dependencies (polyfills before the app script) and is never
// reordered downstream. NameMap is the build-time mapping from source asset
// names to final output names, written to dist/manifest.json:
//
//	{
//	  "entry-client.js": "assets/entry-client.js",
//	  "entry-client.css": "assets/entry-client.css"
//	}
//
// Resolvers combine NameMap lookup with URL prefixing so development and
// production emit consistent asset URLs:
//
//	nm, _ := assets.LoadNameMap("dist/manifest.json")
//	resolver := assets.NewResolver(nm, "/")
//	resolver.Asset("entry-client.js") // "/assets/entry-client.js"
package assets

import (
	"encoding/json"
	"os"
	"sync"
)

// Manifest holds the ordered script and stylesheet references for a page.
// Order is significant and must be preserved end-to-end.
type Manifest struct {
	Scripts []Ref `json:"js"`
	Styles  []Ref `json:"css"`
}

// Empty reports whether the manifest carries no references.
func (m Manifest) Empty() bool {
	return len(m.Scripts) == 0 && len(m.Styles) == 0
}

// MarshalJSON always emits arrays, never null, so consumers on the module
// side can iterate without guarding.
func (m Manifest) MarshalJSON() ([]byte, error) {
	type plain Manifest
	p := plain(m)
	if p.Scripts == nil {
		p.Scripts = []Ref{}
	}
	if p.Styles == nil {
		p.Styles = []Ref{}
	}
	return json.Marshal(p)
}

// Clone returns a deep copy. Handing copies to per-request contexts keeps
// the session's captured manifest immutable.
func (m Manifest) Clone() Manifest {
	out := Manifest{}
	if m.Scripts != nil {
		out.Scripts = append([]Ref(nil), m.Scripts...)
	}
	if m.Styles != nil {
		out.Styles = append([]Ref(nil), m.Styles...)
	}
	return out
}

// NameMap holds the mapping from source asset names to final output names.
// It is safe for concurrent use.
type NameMap struct {
	entries map[string]string
	mu      sync.RWMutex
}

// NewNameMap creates an empty name map.
// Use LoadNameMap to create one from a JSON file.
func NewNameMap() *NameMap {
	return &NameMap{
		entries: make(map[string]string),
	}
}

// LoadNameMap reads a manifest.json file and returns a NameMap.
// The file is expected to be flat JSON: {"source.js": "assets/source.js"}.
func LoadNameMap(path string) (*NameMap, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var entries map[string]string
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, err
	}

	return &NameMap{entries: entries}, nil
}

// Resolve returns the output name for the given source name.
// If not found, returns the source name unchanged.
func (m *NameMap) Resolve(source string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if resolved, ok := m.entries[source]; ok {
		return resolved
	}
	return source
}

// Has returns true if the name map contains the given source name.
func (m *NameMap) Has(source string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.entries[source]
	return ok
}

// Set adds or updates an entry.
func (m *NameMap) Set(source, resolved string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[source] = resolved
}

// Len returns the number of entries.
func (m *NameMap) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.entries)
}

// All returns a copy of all entries.
func (m *NameMap) All() map[string]string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make(map[string]string, len(m.entries))
	for k, v := range m.entries {
		result[k] = v
	}
	return result
}
