// Package resolve answers self-referential imports: a target module asking
// for the location it will ultimately be reachable at, without knowing
// whether it runs under live development or as a production bundle, and
// without knowing its own output file name.
//
// The import-interception edge (a bundler plugin or the live transformer's
// resolve hook) recognizes the "self:" marker on an import specifier and
// hands the explicit (requesting, imported) pair to a SelfRefResolver. The
// resolver either answers with a Resolution or declines, in which case the
// specifier falls through to ordinary resolution. Declining is never an
// error.
package resolve

import (
	"strings"

	"github.com/loom-dev/loom/pkg/target"
)

// Marker prefixes an import specifier that asks for a target reference:
// "self:src/entry-client.ts".
const Marker = "self:"

// VirtualPrefix prefixes the module IDs of dev-only synthesized modules.
const VirtualPrefix = "loom:virtual/"

// Resolution is the answer to a self-referential import. Either Path names
// a real module (source path in development, output path in production),
// or Virtual is set and Path names a synthesized module whose source text
// is Content.
type Resolution struct {
	Path    string
	Virtual bool
	Content string
}

// SelfRefResolver resolves a self-referential import. The requesting
// argument is the path of the importing module, the imported argument the
// entry path named after the marker. The boolean is false when the
// resolver declines the pair, which the caller must treat as "not mine",
// not as a failure.
type SelfRefResolver interface {
	ResolveSelfReference(requesting, imported string) (Resolution, bool)
}

// SelfRef builds the marker form for an entry path.
func SelfRef(entry string) string {
	return Marker + entry
}

// ParseSelfRef splits the marker off a specifier. It returns false for
// specifiers that do not carry the marker or carry it with nothing after.
func ParseSelfRef(specifier string) (string, bool) {
	entry, ok := strings.CutPrefix(specifier, Marker)
	if !ok || entry == "" {
		return "", false
	}
	return entry, true
}

// IsVirtual reports whether a module ID names a synthesized dev module.
func IsVirtual(id string) bool {
	return strings.HasPrefix(id, VirtualPrefix)
}

// rooted makes a path absolute from the serving root. Full URLs pass
// through untouched.
func rooted(p string) string {
	if strings.HasPrefix(p, "/") || strings.Contains(p, "://") {
		return p
	}
	return "/" + p
}

// relativePath builds an import path from a module depth directories below
// the output root to a root-relative target path. Depth zero yields an
// explicit "./" form so the result is always a relative specifier.
func relativePath(depth int, targetRel string) string {
	if depth <= 0 {
		return "./" + targetRel
	}
	return strings.Repeat("../", depth) + targetRel
}

// outputDepth is how many directories below the output root a target's
// compiled entry sits.
func outputDepth(d target.Descriptor) int {
	return strings.Count(d.OutputRel(), "/")
}
