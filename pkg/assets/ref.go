package assets

import (
	"encoding/json"
	"fmt"
)

// RefKind distinguishes the two asset reference forms.
type RefKind int

const (
	// RefPath references an asset by URL path.
	RefPath RefKind = iota

	// RefInline carries the asset's content verbatim.
	RefInline
)

// Ref is one injected asset reference: either a path or inline content.
// Use PathRef and InlineRef to construct values.
type Ref struct {
	Kind    RefKind
	Path    string
	Content string
}

// PathRef returns a reference to an asset by path.
func PathRef(path string) Ref {
	return Ref{Kind: RefPath, Path: path}
}

// InlineRef returns a reference carrying inline content.
func InlineRef(content string) Ref {
	return Ref{Kind: RefInline, Content: content}
}

// String returns a short human-readable form, used in logs.
func (r Ref) String() string {
	if r.Kind == RefInline {
		return fmt.Sprintf("inline(%d bytes)", len(r.Content))
	}
	return r.Path
}

type refJSON struct {
	Path   *string `json:"path,omitempty"`
	Inline *string `json:"inline,omitempty"`
}

// MarshalJSON encodes the reference as {"path": ...} or {"inline": ...}.
func (r Ref) MarshalJSON() ([]byte, error) {
	if r.Kind == RefInline {
		return json.Marshal(refJSON{Inline: &r.Content})
	}
	return json.Marshal(refJSON{Path: &r.Path})
}

// UnmarshalJSON decodes either reference form.
func (r *Ref) UnmarshalJSON(data []byte) error {
	var raw refJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch {
	case raw.Inline != nil:
		*r = InlineRef(*raw.Inline)
	case raw.Path != nil:
		*r = PathRef(*raw.Path)
	default:
		return fmt.Errorf("asset ref: neither path nor inline set")
	}
	return nil
}
