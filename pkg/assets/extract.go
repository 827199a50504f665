package assets

import (
	"strings"

	"golang.org/x/net/html"
)

// Extract scans markup for the script and stylesheet references the build
// pipeline injected and returns them in document order. A <script src>
// becomes a path reference, a bodied <script> an inline reference with its
// text kept verbatim, and a <link rel=stylesheet href> a path reference.
// Extract never fails; markup without matching tags yields empty lists.
func Extract(markup string) Manifest {
	var m Manifest
	z := html.NewTokenizer(strings.NewReader(markup))

	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			return m
		}
		if tt != html.StartTagToken && tt != html.SelfClosingTagToken {
			continue
		}

		name, hasAttr := z.TagName()
		switch string(name) {
		case "script":
			attrs := tagAttrs(z, hasAttr)
			if src := attrs["src"]; src != "" {
				m.Scripts = append(m.Scripts, PathRef(src))
				continue
			}
			if tt == html.SelfClosingTagToken {
				m.Scripts = append(m.Scripts, InlineRef(""))
				continue
			}
			m.Scripts = append(m.Scripts, InlineRef(scriptBody(z)))
		case "link":
			attrs := tagAttrs(z, hasAttr)
			if strings.EqualFold(attrs["rel"], "stylesheet") && attrs["href"] != "" {
				m.Styles = append(m.Styles, PathRef(attrs["href"]))
			}
		}
	}
}

// scriptBody consumes tokens up to the closing script tag and returns the
// raw body text. Script content is raw text to the tokenizer, so markup-like
// body content arrives as text tokens.
func scriptBody(z *html.Tokenizer) string {
	var b strings.Builder
	for {
		switch z.Next() {
		case html.TextToken:
			b.Write(z.Text())
		default:
			return b.String()
		}
	}
}

func tagAttrs(z *html.Tokenizer, hasAttr bool) map[string]string {
	if !hasAttr {
		return nil
	}
	attrs := make(map[string]string, 4)
	for {
		k, v, more := z.TagAttr()
		attrs[string(k)] = string(v)
		if !more {
			break
		}
	}
	return attrs
}
