package build

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"text/template"
	"unicode"

	"github.com/loom-dev/loom/pkg/bundler"
	"github.com/loom-dev/loom/pkg/target"
)

// ServerModule is the name of the generated module at the output root.
const ServerModule = "server.js"

// moduleTemplate is the source of the generated server module. The module
// imports every compiled handler by its final output filename, embeds the
// asset manifest, and re-exports the ssr handler raw, pre-bound, and the
// context itself, plus each API handler under its registered name.
var moduleTemplate = template.Must(template.New("server").
	Funcs(template.FuncMap{"quote": strconv.Quote}).
	Parse(`// Generated by loom build. Do not edit.
import ssr from {{quote .SSRImport}};
{{range .APIs}}import {{.Ident}} from {{quote .Import}};
{{end}}
export const context = {
  assets: {
    js: [{{range $i, $p := .JS}}{{if $i}}, {{end}}{{quote $p}}{{end}}],
    css: [{{range $i, $p := .CSS}}{{if $i}}, {{end}}{{quote $p}}{{end}}]
  },
  apis: {{if .APIs}}{
{{range .APIs}}    {{.Key}}: {{.Ident}},
{{end}}  }{{else}}{}{{end}}
};

export const ssrHandler = ssr;

export function ssrWithContext(request) {
  return ssr(request, context);
}
{{if .APIs}}
export { {{range $i, $a := .APIs}}{{if $i}}, {{end}}{{$a.Ident}} as {{$a.Export}}{{end}} };
{{end}}
export default ssrWithContext;
`))

type moduleData struct {
	SSRImport string
	APIs      []moduleAPI
	JS        []string
	CSS       []string
}

type moduleAPI struct {
	Ident  string
	Key    string
	Export string
	Import string
}

// Synthesize generates the server module source from the completed build
// outputs, keyed by target name. API entries are ordered by name, so the
// output is byte-identical across syntheses of the same build.
func Synthesize(reg *target.Registry, outputs map[string]*bundler.Output) (string, error) {
	data := moduleData{}

	ssrOut, err := entryOutput(reg.SSR(), outputs)
	if err != nil {
		return "", err
	}
	data.SSRImport = "./" + reg.SSR().Name + "/" + ssrOut.EntryFile

	client := reg.Client()
	clientOut, err := entryOutput(client, outputs)
	if err != nil {
		return "", err
	}
	data.JS = []string{"/" + client.Name + "/" + clientOut.EntryFile}
	data.CSS = make([]string, 0, len(clientOut.Styles))
	for _, s := range clientOut.Styles {
		data.CSS = append(data.CSS, "/"+client.Name+"/"+s)
	}

	apis := reg.APIs()
	sort.Slice(apis, func(i, j int) bool { return apis[i].Name < apis[j].Name })

	taken := make(map[string]bool)
	for _, d := range apis {
		out, err := entryOutput(d, outputs)
		if err != nil {
			return "", err
		}
		data.APIs = append(data.APIs, moduleAPI{
			Ident:  importIdent(d.Name, taken),
			Key:    strconv.Quote(d.Name),
			Export: exportName(d.Name),
			Import: "./" + d.Name + "/" + out.EntryFile,
		})
	}

	var buf bytes.Buffer
	if err := moduleTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func entryOutput(d target.Descriptor, outputs map[string]*bundler.Output) (*bundler.Output, error) {
	out := outputs[d.Name]
	if out == nil {
		return nil, fmt.Errorf("target %q has no build output", d.Name)
	}
	if out.EntryFile == "" {
		return nil, fmt.Errorf("target %q reported no entry output", d.Name)
	}
	return out, nil
}

// importIdent derives a collision-free module-local identifier from a
// target name.
func importIdent(name string, taken map[string]bool) string {
	var b strings.Builder
	b.WriteString("api$")
	for _, r := range name {
		if r == '_' || r == '$' || unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	ident := b.String()
	for i := 2; taken[ident]; i++ {
		ident = fmt.Sprintf("%s%d", b.String(), i)
	}
	taken[ident] = true
	return ident
}

// exportName renders a target name for an export clause. Names that are
// not plain identifiers use the string form, which module syntax allows.
func exportName(name string) string {
	if jsIdentifier(name) {
		return name
	}
	return strconv.Quote(name)
}

func jsIdentifier(s string) bool {
	if s == "" || jsReserved[s] {
		return false
	}
	for i, r := range s {
		if r == '_' || r == '$' || unicode.IsLetter(r) {
			continue
		}
		if i > 0 && unicode.IsDigit(r) {
			continue
		}
		return false
	}
	return true
}

var jsReserved = map[string]bool{
	"await": true, "break": true, "case": true, "catch": true,
	"class": true, "const": true, "continue": true, "debugger": true,
	"default": true, "delete": true, "do": true, "else": true,
	"enum": true, "export": true, "extends": true, "false": true,
	"finally": true, "for": true, "function": true, "if": true,
	"import": true, "in": true, "instanceof": true, "new": true,
	"null": true, "return": true, "super": true, "switch": true,
	"this": true, "throw": true, "true": true, "typeof": true,
	"var": true, "void": true, "while": true, "with": true, "yield": true,
}
