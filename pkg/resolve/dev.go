package resolve

import (
	"fmt"
	"strings"

	"github.com/loom-dev/loom/pkg/assets"
	"github.com/loom-dev/loom/pkg/target"
)

// devResolver answers self references during a development session.
type devResolver struct {
	reg      *target.Registry
	manifest assets.Manifest
}

// NewDevResolver builds the development-mode resolver. The manifest is the
// injected-asset list captured once at session start; the virtual client
// module replays it so development gets the same script ordering the
// production page would have.
func NewDevResolver(reg *target.Registry, manifest assets.Manifest) SelfRefResolver {
	return &devResolver{reg: reg, manifest: manifest.Clone()}
}

func (d *devResolver) ResolveSelfReference(requesting, imported string) (Resolution, bool) {
	imp, ok := d.reg.ByEntry(imported)
	if !ok {
		return Resolution{}, false
	}

	if asker, known := d.reg.ByEntry(requesting); known &&
		asker.Kind == target.KindClient && asker.Name == imp.Name {
		return Resolution{
			Path:    VirtualPrefix + imp.Name,
			Virtual: true,
			Content: VirtualClientModule(imp.Entry, d.manifest),
		}, true
	}

	// Another target's reference: the live loader takes the source path
	// directly.
	return Resolution{Path: imp.Entry}, true
}

// VirtualClientModule synthesizes the dev-only wrapper for the client
// entry. Every extracted injected asset becomes an import, in captured
// order, stylesheets first, inline scripts spliced in verbatim. The module
// ends with a dynamic import of the real entry; modules evaluate once, so
// the entry re-importing itself through the wrapper is safe.
func VirtualClientModule(entry string, m assets.Manifest) string {
	var b strings.Builder
	b.WriteString("// synthesized by loom for development\n")

	for _, ref := range m.Styles {
		if ref.Kind == assets.RefPath {
			fmt.Fprintf(&b, "import %q;\n", rooted(ref.Path))
		}
	}
	for _, ref := range m.Scripts {
		switch ref.Kind {
		case assets.RefPath:
			fmt.Fprintf(&b, "import %q;\n", rooted(ref.Path))
		case assets.RefInline:
			content := strings.TrimRight(ref.Content, "\n")
			if content != "" {
				b.WriteString(content)
				b.WriteString("\n")
			}
		}
	}

	fmt.Fprintf(&b, "import(%q);\n", rooted(entry))
	return b.String()
}
