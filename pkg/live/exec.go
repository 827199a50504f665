package live

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/loom-dev/loom/pkg/bundler"
	"github.com/loom-dev/loom/pkg/resolve"
	"github.com/loom-dev/loom/pkg/wire"
)

const defaultCacheSize = 32

// harnessJS runs one compiled handler module for one request. It reads a
// JSON envelope from stdin ({"request": ..., "context": ...}) and writes
// either a JSON response or a tagged error to stdout. When the envelope
// carries a context, the handler receives it as a second argument with the
// asset manifest and each registered API bound to a handler-shaped
// loopback call.
const harnessJS = `// loom dev harness. Executes a compiled handler module for one request.
import { pathToFileURL } from "node:url";

const modulePath = process.argv[2];

function fail(phase, err) {
  const message = err && err.message ? String(err.message) : String(err);
  const stack = err && err.stack ? String(err.stack) : "";
  process.stdout.write(JSON.stringify({ error: { phase: phase, message: message, stack: stack } }));
  process.exit(1);
}

function normalizeHeaders(h) {
  const out = {};
  if (!h) return out;
  for (const k of Object.keys(h)) {
    const v = h[k];
    out[k] = Array.isArray(v) ? v.map(String) : [String(v)];
  }
  return out;
}

// Each bound API takes a request-like value and resolves to a
// response-like value, the same shape a compiled handler has in
// production. Calls loop back through the dev server, which reloads the
// handler on every request.
function bindAPIs(info) {
  const out = {};
  if (!info || !Array.isArray(info.apis) || !info.base) return out;
  for (const entry of info.apis) {
    out[entry.name] = (function (route) {
      return async function (request) {
        request = request || {};
        let suffix = request.url == null ? "" : String(request.url);
        if (suffix && !suffix.startsWith("/")) suffix = "/" + suffix;
        const res = await fetch(info.base + route + suffix, {
          method: request.method || "GET",
          headers: request.headers,
          body: request.body,
        });
        const headers = {};
        res.headers.forEach(function (v, k) { headers[k] = v; });
        return {
          status: res.status,
          headers: headers,
          body: Buffer.from(await res.arrayBuffer()),
        };
      };
    })(entry.route);
  }
  return out;
}

async function main() {
  const chunks = [];
  for await (const chunk of process.stdin) chunks.push(chunk);
  const payload = JSON.parse(Buffer.concat(chunks).toString("utf8") || "{}");
  const request = payload.request || {};
  if (request.body) request.body = Buffer.from(request.body, "base64");

  let context;
  if (payload.context) {
    context = { assets: payload.context.assets, apis: bindAPIs(payload.context) };
  }

  let handler;
  try {
    const mod = await import(pathToFileURL(modulePath).href);
    handler = mod.default;
    if (typeof handler !== "function") {
      throw new Error("module does not export a default handler function");
    }
  } catch (err) {
    return fail("load", err);
  }

  try {
    const response = (await handler(request, context)) || {};
    let body;
    if (response.body != null) {
      body = Buffer.from(response.body).toString("base64");
    }
    process.stdout.write(JSON.stringify({
      status: response.status || 200,
      headers: normalizeHeaders(response.headers),
      body: body,
    }));
  } catch (err) {
    return fail("invoke", err);
  }
}

main().catch(function (err) { fail("invoke", err); });
`

// ExecConfig configures the exec transformer.
type ExecConfig struct {
	// Runtime is the JavaScript runtime executable. Default "node".
	Runtime string

	// Root is the project root directory.
	Root string

	// CacheDir is where compiled modules land. Default
	// <root>/.loom/dev.
	CacheDir string

	// CacheSize bounds the compiled-module cache. Default 32 entries.
	CacheSize int

	// Bundler compiles entries. Default is the exec bundler with its
	// defaults.
	Bundler bundler.Bundler

	// Resolver answers self-referential imports during compilation.
	// Optional; without it, marker imports fail to resolve.
	Resolver resolve.SelfRefResolver

	// Entries lists the registered entry paths eligible for marker
	// resolution.
	Entries []string

	// Logger receives compile and cache events. Default slog.Default().
	Logger *slog.Logger
}

// compiled is one cached build of an entry.
type compiled struct {
	path   string
	inputs map[string]struct{}
}

// ExecTransformer is the reference Transformer. Compiled modules are
// cached until a change notification touches their graph; every
// invocation runs the configured runtime once.
type ExecTransformer struct {
	cfg     ExecConfig
	logger  *slog.Logger
	harness string
	cache   *lru.Cache[string, *compiled]
	changes chan Change

	mu     sync.Mutex
	closed bool
}

// NewExecTransformer verifies the runtime is available, prepares the
// cache directory, and writes the invocation harness.
func NewExecTransformer(cfg ExecConfig) (*ExecTransformer, error) {
	if cfg.Runtime == "" {
		cfg.Runtime = "node"
	}
	if cfg.CacheDir == "" {
		cfg.CacheDir = filepath.Join(cfg.Root, ".loom", "dev")
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = defaultCacheSize
	}
	if cfg.Bundler == nil {
		cfg.Bundler = bundler.NewExec(bundler.ExecConfig{})
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	runtime, err := exec.LookPath(cfg.Runtime)
	if err != nil {
		return nil, fmt.Errorf("runtime %q: %w", cfg.Runtime, err)
	}
	cfg.Runtime = runtime

	if err := os.MkdirAll(cfg.CacheDir, 0755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	harness := filepath.Join(cfg.CacheDir, "harness.mjs")
	if err := os.WriteFile(harness, []byte(harnessJS), 0644); err != nil {
		return nil, fmt.Errorf("write harness: %w", err)
	}

	cache, err := lru.New[string, *compiled](cfg.CacheSize)
	if err != nil {
		return nil, err
	}

	return &ExecTransformer{
		cfg:     cfg,
		logger:  cfg.Logger.With("component", "live"),
		harness: harness,
		cache:   cache,
		changes: make(chan Change, 256),
	}, nil
}

// TransformHTML is the identity under the exec pipeline: it injects
// nothing into pages, so a template holds exactly what it declares.
func (t *ExecTransformer) TransformHTML(ctx context.Context, markup string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return markup, nil
}

// Load compiles the entry if no valid cached build exists and returns a
// handler executing the compiled module.
func (t *ExecTransformer) Load(ctx context.Context, entry string) (wire.Handler, error) {
	entry = normalizePath(entry)

	t.mu.Lock()
	defer t.mu.Unlock()

	c, ok := t.cache.Get(entry)
	if !ok {
		built, err := t.compile(ctx, entry)
		if err != nil {
			return nil, err
		}
		t.cache.Add(entry, built)
		c = built
	}

	return &execHandler{
		runtime: t.cfg.Runtime,
		harness: t.harness,
		module:  c.path,
		dir:     t.cfg.Root,
		logger:  t.logger,
	}, nil
}

func (t *ExecTransformer) compile(ctx context.Context, entry string) (*compiled, error) {
	start := time.Now()
	outDir := filepath.Join(t.cfg.CacheDir, "modules", mangle(entry))

	out, err := t.cfg.Bundler.Build(ctx, bundler.Job{
		Name:         "live:" + bundler.EntryBase(entry),
		Entry:        entry,
		Root:         t.cfg.Root,
		OutDir:       outDir,
		Naming:       bundler.DefaultNaming(),
		Mode:         bundler.ModeDevelopment,
		Environment:  bundler.BaseEnvironment(bundler.ModeDevelopment),
		Platform:     "node",
		SourceMaps:   true,
		Aliases:      t.markerAliases(entry),
		OutExtension: map[string]string{".js": ".mjs"},
	})
	if err != nil {
		return nil, fmt.Errorf("compile %s: %w", entry, err)
	}

	inputs := make(map[string]struct{}, len(out.Inputs))
	for _, in := range out.Inputs {
		inputs[normalizePath(in)] = struct{}{}
	}
	inputs[entry] = struct{}{}

	t.logger.Debug("compiled entry",
		"entry", entry,
		"inputs", len(inputs),
		"elapsed", time.Since(start))

	return &compiled{
		path:   filepath.Join(outDir, filepath.FromSlash(out.EntryFile)),
		inputs: inputs,
	}, nil
}

// markerAliases maps each registered entry's marker form to its dev
// resolution, so compiled code reaches sibling targets through their
// source paths. Virtual resolutions have no file to alias and are left to
// the browser-side pipeline.
func (t *ExecTransformer) markerAliases(forEntry string) map[string]string {
	if t.cfg.Resolver == nil || len(t.cfg.Entries) == 0 {
		return nil
	}
	aliases := make(map[string]string)
	for _, e := range t.cfg.Entries {
		res, ok := t.cfg.Resolver.ResolveSelfReference(forEntry, e)
		if !ok || res.Virtual {
			continue
		}
		aliases[resolve.SelfRef(e)] = relativeSpecifier(res.Path)
	}
	if len(aliases) == 0 {
		return nil
	}
	return aliases
}

// InGraph reports graph membership per the entry's last successful build.
func (t *ExecTransformer) InGraph(entry, p string) bool {
	entry = normalizePath(entry)
	p = t.relToRoot(p)

	if p == entry {
		return true
	}
	c, ok := t.cache.Peek(entry)
	if !ok {
		return false
	}
	_, in := c.inputs[p]
	return in
}

// Notify feeds a batch of changed paths into the transformer: cached
// builds whose graphs are touched get dropped, then the batch goes out on
// Changes. Paths may be absolute or root-relative.
func (t *ExecTransformer) Notify(paths []string) {
	if len(paths) == 0 {
		return
	}

	rel := make([]string, 0, len(paths))
	for _, p := range paths {
		rel = append(rel, t.relToRoot(p))
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	invalidated := 0
	for _, key := range t.cache.Keys() {
		c, ok := t.cache.Peek(key)
		if !ok {
			continue
		}
		for _, p := range rel {
			if _, in := c.inputs[p]; in || p == key {
				t.cache.Remove(key)
				invalidated++
				break
			}
		}
	}
	if invalidated > 0 {
		t.logger.Debug("invalidated cached builds", "count", invalidated, "changed", len(rel))
	}

	if t.closed {
		return
	}
	select {
	case t.changes <- Change{Paths: rel}:
	default:
		t.logger.Warn("change stream full, dropping batch", "paths", len(rel))
	}
}

// Changes delivers the change batches fed through Notify.
func (t *ExecTransformer) Changes() <-chan Change {
	return t.changes
}

// Close shuts the change stream down. Safe to call twice.
func (t *ExecTransformer) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.closed {
		t.closed = true
		close(t.changes)
	}
	return nil
}

// relToRoot normalizes a possibly absolute path to slash form relative to
// the project root.
func (t *ExecTransformer) relToRoot(p string) string {
	if filepath.IsAbs(p) {
		if rel, err := filepath.Rel(t.cfg.Root, p); err == nil && !strings.HasPrefix(rel, "..") {
			p = rel
		}
	}
	return normalizePath(p)
}

func normalizePath(p string) string {
	return path.Clean(filepath.ToSlash(p))
}

// mangle turns an entry path into a directory name.
func mangle(entry string) string {
	return strings.NewReplacer("/", "_", "\\", "_", ":", "_", ".", "_").Replace(entry)
}

// relativeSpecifier makes a path usable as an import specifier by giving
// bare paths an explicit ./ prefix.
func relativeSpecifier(p string) string {
	if strings.HasPrefix(p, "./") || strings.HasPrefix(p, "../") || strings.HasPrefix(p, "/") {
		return p
	}
	return "./" + p
}

// execHandler runs one compiled module through the harness per request.
type execHandler struct {
	runtime string
	harness string
	module  string
	dir     string
	logger  *slog.Logger
}

// execPayload is the stdin envelope. Context rides along only for SSR
// requests; API handlers receive none.
type execPayload struct {
	Request *wire.Request `json:"request"`
	Context *SSRInfo      `json:"context,omitempty"`
}

type procError struct {
	Phase   string `json:"phase"`
	Message string `json:"message"`
	Stack   string `json:"stack"`
}

type procResponse struct {
	Status  int                 `json:"status"`
	Headers map[string][]string `json:"headers"`
	Body    []byte              `json:"body"`
	Error   *procError          `json:"error"`
}

func (h *execHandler) Serve(ctx context.Context, req *wire.Request) (*wire.Response, error) {
	payload, err := json.Marshal(execPayload{Request: req, Context: SSRInfoFrom(ctx)})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	cmd := exec.CommandContext(ctx, h.runtime, h.harness, h.module)
	cmd.Dir = h.dir
	cmd.Stdin = bytes.NewReader(payload)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()

	var proc procResponse
	if err := json.Unmarshal(stdout.Bytes(), &proc); err != nil {
		detail := strings.TrimSpace(stderr.String())
		if detail == "" {
			detail = strings.TrimSpace(stdout.String())
		}
		if runErr != nil {
			return nil, &RuntimeError{Phase: PhaseInvoke, Message: firstLine(detail, runErr.Error()), Stack: detail}
		}
		return nil, fmt.Errorf("decode runtime response: %w", err)
	}

	if proc.Error != nil {
		phase := Phase(proc.Error.Phase)
		if phase != PhaseLoad {
			phase = PhaseInvoke
		}
		return nil, &RuntimeError{Phase: phase, Message: proc.Error.Message, Stack: proc.Error.Stack}
	}

	if msg := strings.TrimSpace(stderr.String()); msg != "" {
		h.logger.Debug("runtime stderr", "module", filepath.Base(h.module), "output", msg)
	}

	return &wire.Response{
		Status: proc.Status,
		Header: http.Header(proc.Headers),
		Body:   proc.Body,
	}, nil
}

func firstLine(s, fallback string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return fallback
	}
	if i := strings.IndexByte(s, '\n'); i > 0 {
		return s[:i]
	}
	return s
}
