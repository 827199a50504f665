package assets

// Resolver provides asset URL resolution.
// It combines name-map lookup with path prefixing.
type Resolver interface {
	// Asset resolves a source asset name to its full URL path,
	// including any configured prefix and final output name.
	Asset(source string) string
}

// nameMapResolver wraps a NameMap to implement Resolver.
type nameMapResolver struct {
	names  *NameMap
	prefix string
}

// NewResolver creates a Resolver from a NameMap with an optional prefix.
//
// The prefix is prepended to all resolved paths:
//
//	nm, _ := assets.LoadNameMap("dist/manifest.json")
//	resolver := assets.NewResolver(nm, "/")
//	resolver.Asset("entry-client.js") // "/assets/entry-client.js"
func NewResolver(m *NameMap, prefix string) Resolver {
	return &nameMapResolver{
		names:  m,
		prefix: prefix,
	}
}

func (r *nameMapResolver) Asset(source string) string {
	return r.prefix + r.names.Resolve(source)
}

// passthrough returns asset names unchanged (development mode).
type passthrough struct {
	prefix string
}

// NewPassthroughResolver creates a resolver that returns names unchanged.
// Development serves sources directly, so no name mapping applies; the
// prefix is still applied so dev and prod URLs stay consistent:
//
//	// Development:
//	assets.NewPassthroughResolver("/").Asset("entry-client.js") // "/entry-client.js"
//
//	// Production:
//	assets.NewResolver(nm, "/").Asset("entry-client.js") // "/assets/entry-client.js"
func NewPassthroughResolver(prefix string) Resolver {
	return &passthrough{prefix: prefix}
}

func (p *passthrough) Asset(source string) string {
	return p.prefix + source
}
