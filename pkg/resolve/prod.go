package resolve

import (
	"github.com/loom-dev/loom/pkg/target"
)

// prodResolver answers self references for production builds. Naming rules
// are deterministic, so every answer is computable before any build runs.
type prodResolver struct {
	reg *target.Registry
}

// NewProdResolver builds the production-mode resolver.
func NewProdResolver(reg *target.Registry) SelfRefResolver {
	return &prodResolver{reg: reg}
}

func (p *prodResolver) ResolveSelfReference(requesting, imported string) (Resolution, bool) {
	imp, ok := p.reg.ByEntry(imported)
	if !ok {
		return Resolution{}, false
	}

	asker, known := p.reg.ByEntry(requesting)

	// The client referencing itself gets its public URL; the page serves
	// the output root, so the path is root-rooted.
	if known && asker.Kind == target.KindClient && asker.Name == imp.Name {
		return Resolution{Path: rooted(imp.OutputRel())}, true
	}

	// Everything else gets a relative path from the requesting module's
	// place in the output tree, so the output root can be relocated
	// without breaking the reference. An unknown requester is taken to
	// sit at the output root itself, which is where generated modules
	// live.
	depth := 0
	if known {
		depth = outputDepth(asker)
	}
	return Resolution{Path: relativePath(depth, imp.OutputRel())}, true
}
