package templates

import (
	"bytes"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/template"

	"github.com/loom-dev/loom/internal/errors"
)

// Config carries the values substituted into scaffold files.
type Config struct {
	// ProjectName is the new project's name.
	ProjectName string

	// Description is a short project description.
	Description string
}

// Template is one project scaffold.
type Template struct {
	// Name is the template name.
	Name string

	// Description describes the template.
	Description string

	// Files maps relative paths to file contents. Contents may use
	// text/template actions over Config.
	Files map[string]string
}

var templates = map[string]*Template{
	"minimal": minimalTemplate(),
	"full":    fullTemplate(),
}

// Get returns a template by name.
func Get(name string) (*Template, error) {
	tmpl, ok := templates[name]
	if !ok {
		return nil, errors.Newf(errors.CategoryCLI, "unknown template %q", name).
			WithSuggestion("Available templates: " + strings.Join(List(), ", "))
	}
	return tmpl, nil
}

// List returns the available template names, sorted.
func List() []string {
	names := make([]string, 0, len(templates))
	for name := range templates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Create writes the template's files under dir, substituting cfg.
func (t *Template) Create(dir string, cfg Config) error {
	for relPath, content := range t.Files {
		tmpl, err := template.New(relPath).Parse(content)
		if err != nil {
			return errors.Newf(errors.CategoryCLI, "invalid template file %s: %v", relPath, err)
		}

		var buf bytes.Buffer
		if err := tmpl.Execute(&buf, cfg); err != nil {
			return errors.Newf(errors.CategoryCLI, "render template file %s: %v", relPath, err)
		}

		fullPath := filepath.Join(dir, filepath.FromSlash(relPath))
		if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
			return err
		}
		if err := os.WriteFile(fullPath, buf.Bytes(), 0644); err != nil {
			return err
		}
	}
	return nil
}

// minimalTemplate scaffolds a client and ssr pair with no API targets.
func minimalTemplate() *Template {
	return &Template{
		Name:        "minimal",
		Description: "Client and server render only",
		Files: map[string]string{
			"loom.json": `{
  "name": "{{.ProjectName}}",
  "client": "src/entry-client.ts",
  "ssr": "src/entry-server.ts",
  "template": "index.html",
  "dev": {
    "port": 3000,
    "watch": ["src", "public"]
  },
  "build": {
    "output": "dist",
    "minify": true
  }
}
`,
			"index.html":          indexHTML,
			"src/entry-client.ts": minimalClientEntry,
			"src/entry-server.ts": serverEntry,
			"public/favicon.svg":  faviconSVG,
			"package.json":        packageJSON,
			"tsconfig.json":       tsconfigJSON,
			".gitignore":          gitignore,
			"README.md":           readmeMD,
		},
	}
}

// fullTemplate adds an API target and a client that calls it.
func fullTemplate() *Template {
	return &Template{
		Name:        "full",
		Description: "Client, server render, and an API target",
		Files: map[string]string{
			"loom.json": `{
  "name": "{{.ProjectName}}",
  "client": "src/entry-client.ts",
  "ssr": "src/entry-server.ts",
  "apis": {
    "api": "src/api/main.ts"
  },
  "template": "index.html",
  "dev": {
    "port": 3000,
    "watch": ["src", "public"]
  },
  "build": {
    "output": "dist",
    "minify": true
  }
}
`,
			"index.html":          indexHTML,
			"src/entry-client.ts": fullClientEntry,
			"src/entry-server.ts": serverEntry,
			"src/api/main.ts":     apiEntry,
			"public/favicon.svg":  faviconSVG,
			"package.json":        packageJSON,
			"tsconfig.json":       tsconfigJSON,
			".gitignore":          gitignore,
			"README.md":           readmeMD,
		},
	}
}

const indexHTML = `<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8" />
    <meta name="viewport" content="width=device-width, initial-scale=1" />
    <link rel="icon" href="/favicon.svg" />
    <title>{{.ProjectName}}</title>
  </head>
  <body>
    <div id="app"></div>
    <script type="module" src="/src/entry-client.ts"></script>
  </body>
</html>
`

const serverEntry = `type AssetRef = string | { path?: string; inline?: string };

interface RenderContext {
  assets: { js: AssetRef[]; css: AssetRef[] };
  apis: Record<string, (request: object) => Promise<object>>;
}

interface Request {
  method: string;
  url: string;
}

function styleTag(ref: AssetRef): string {
  if (typeof ref === "string") return '<link rel="stylesheet" href="' + ref + '">';
  if (ref.path) return '<link rel="stylesheet" href="' + ref.path + '">';
  return "";
}

function scriptTag(ref: AssetRef): string {
  if (typeof ref === "string") return '<script type="module" src="' + ref + '"></script>';
  if (ref.path) return '<script type="module" src="' + ref.path + '"></script>';
  return '<script type="module">' + (ref.inline ?? "") + "</script>";
}

export default async function render(request: Request, context: RenderContext) {
  const styles = context.assets.css.map(styleTag).join("\n    ");
  const scripts = context.assets.js.map(scriptTag).join("\n    ");

  const page = [
    "<!doctype html>",
    '<html lang="en">',
    "  <head>",
    '    <meta charset="utf-8" />',
    "    <title>{{.ProjectName}}</title>",
    "    " + styles,
    "  </head>",
    "  <body>",
    '    <div id="app">',
    "      <h1>{{.ProjectName}}</h1>",
    "      <p>Rendered on the server for " + request.url + ".</p>",
    "    </div>",
    "    " + scripts,
    "  </body>",
    "</html>",
  ].join("\n");

  return {
    status: 200,
    headers: { "content-type": "text/html; charset=utf-8" },
    body: page,
  };
}
`

const minimalClientEntry = `const app = document.getElementById("app");

if (app) {
  const note = document.createElement("p");
  note.textContent = "Hydrated on the client.";
  app.appendChild(note);
}
`

const fullClientEntry = `const app = document.getElementById("app");

async function hello(): Promise<string> {
  const res = await fetch("/api/hello");
  if (!res.ok) return "api unavailable";
  const data = (await res.json()) as { message: string };
  return data.message;
}

if (app) {
  hello().then((message) => {
    const note = document.createElement("p");
    note.textContent = message;
    app.appendChild(note);
  });
}
`

const apiEntry = `interface Request {
  method: string;
  url: string;
}

export default async function handler(request: Request) {
  const path = request.url.startsWith("/api") ? request.url.slice(4) : request.url;

  if (path === "/hello" || path === "/hello/") {
    return {
      status: 200,
      headers: { "content-type": "application/json" },
      body: JSON.stringify({ message: "Hello from {{.ProjectName}}!" }),
    };
  }

  return { status: 404, body: "not found" };
}
`

const faviconSVG = `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 32 32">
  <rect width="32" height="32" rx="6" fill="#4f46e5" />
  <path d="M9 7v14a4 4 0 0 0 4 4h10" fill="none" stroke="#fff" stroke-width="3" stroke-linecap="round" />
</svg>
`

const packageJSON = `{
  "name": "{{.ProjectName}}",
  "private": true,
  "type": "module",
  "devDependencies": {
    "esbuild": "^0.25.0",
    "typescript": "^5.6.0"
  }
}
`

const tsconfigJSON = `{
  "compilerOptions": {
    "target": "ES2022",
    "module": "ESNext",
    "moduleResolution": "bundler",
    "strict": true,
    "noEmit": true,
    "lib": ["ES2022", "DOM"]
  },
  "include": ["src"]
}
`

const gitignore = `dist/
node_modules/
.loom/
`

const readmeMD = `# {{.ProjectName}}

{{.Description}}

## Development

    loom dev

Starts the development server with hot reload.

## Production

    loom build

Builds every target into dist/ and generates dist/server.js, the module
that serves the built app.

## Deploy

    loom deploy

Publishes dist/ to the S3 bucket configured in loom.json.
`
