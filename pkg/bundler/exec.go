package bundler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// ErrNoEntryOutput is returned when a build succeeds but the bundler's
// result does not contain a compiled module for the job's entry point.
var ErrNoEntryOutput = errors.New("bundler: no output for entry point")

// Diagnostic is one error reported by the bundler, with a source location
// when one could be parsed from the output.
type Diagnostic struct {
	Message string
	File    string
	Line    int
	Column  int
}

// BuildError carries the parsed diagnostics and raw log of a failed build.
type BuildError struct {
	Diagnostics []Diagnostic
	Log         string
	Err         error
}

func (e *BuildError) Error() string {
	if len(e.Diagnostics) > 0 {
		d := e.Diagnostics[0]
		if d.File != "" {
			return fmt.Sprintf("%s:%d:%d: %s", d.File, d.Line, d.Column, d.Message)
		}
		return d.Message
	}
	return fmt.Sprintf("bundler failed: %v", e.Err)
}

func (e *BuildError) Unwrap() error {
	return e.Err
}

// ExecConfig configures the exec bundler.
type ExecConfig struct {
	// Command is the bundler executable. Default "esbuild".
	Command string

	// Args are extra arguments appended to every invocation.
	Args []string
}

// Exec runs an esbuild-compatible command line per job. It is the
// reference Bundler implementation.
type Exec struct {
	config ExecConfig
}

// NewExec creates an exec bundler.
func NewExec(config ExecConfig) *Exec {
	if config.Command == "" {
		config.Command = "esbuild"
	}
	return &Exec{config: config}
}

// Command returns the configured executable name.
func (e *Exec) Command() string {
	return e.config.Command
}

// Build compiles the job by invoking the bundler command. The bundler is
// asked for a metafile, which is parsed to learn the emitted files and the
// stylesheet bundle associated with the entry.
func (e *Exec) Build(ctx context.Context, job Job) (*Output, error) {
	start := time.Now()

	command, err := exec.LookPath(e.config.Command)
	if err != nil {
		return nil, fmt.Errorf("bundler command %q: %w", e.config.Command, err)
	}

	outDir := job.OutDir
	if !filepath.IsAbs(outDir) {
		outDir = filepath.Join(job.Root, outDir)
	}
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	meta, err := os.CreateTemp("", "loom-meta-*.json")
	if err != nil {
		return nil, fmt.Errorf("create metafile: %w", err)
	}
	metaPath := meta.Name()
	meta.Close()
	defer os.Remove(metaPath)

	args := buildArgs(job, outDir, metaPath)
	args = append(args, e.config.Args...)

	cmd := exec.CommandContext(ctx, command, args...)
	cmd.Dir = job.Root

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	duration := time.Since(start)

	log := stderr.String()
	if log == "" {
		log = stdout.String()
	}

	if runErr != nil {
		return nil, &BuildError{
			Diagnostics: parseDiagnostics(log),
			Log:         log,
			Err:         runErr,
		}
	}

	data, err := os.ReadFile(metaPath)
	if err != nil {
		return nil, fmt.Errorf("read metafile: %w", err)
	}
	out, err := parseMetafile(data, job, outDir)
	if err != nil {
		return nil, err
	}
	out.Duration = duration
	out.Log = log
	return out, nil
}

// buildArgs constructs the command line for a job. Defines are emitted in
// sorted key order so invocations are reproducible.
func buildArgs(job Job, outDir, metaPath string) []string {
	naming := job.Naming
	if naming.Entry == "" {
		naming = DefaultNaming()
	}

	args := []string{
		job.Entry,
		"--bundle",
		"--format=esm",
		"--color=false",
		"--outdir=" + outDir,
		"--metafile=" + metaPath,
		"--entry-names=" + esbuildPattern(naming.Entry),
		"--chunk-names=" + esbuildPattern(naming.Chunk),
		"--asset-names=" + esbuildPattern(naming.Asset),
	}

	platform := job.Platform
	if platform == "" {
		platform = "browser"
	}
	args = append(args, "--platform="+platform)

	if job.Minify {
		args = append(args, "--minify")
	}
	if job.SourceMaps {
		args = append(args, "--sourcemap")
	}

	keys := make([]string, 0, len(job.Environment))
	for k := range job.Environment {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		args = append(args, "--define:"+k+"="+defineValue(job.Environment[k]))
	}

	for _, ext := range job.External {
		args = append(args, "--external:"+ext)
	}

	aliases := make([]string, 0, len(job.Aliases))
	for k := range job.Aliases {
		aliases = append(aliases, k)
	}
	sort.Strings(aliases)
	for _, k := range aliases {
		args = append(args, "--alias:"+k+"="+job.Aliases[k])
	}

	exts := make([]string, 0, len(job.OutExtension))
	for k := range job.OutExtension {
		exts = append(exts, k)
	}
	sort.Strings(exts)
	for _, k := range exts {
		args = append(args, "--out-extension:"+k+"="+job.OutExtension[k])
	}

	return args
}

// esbuildPattern converts a naming pattern to the bundler's form: the
// bundler appends the extension itself, so a trailing ".js" or "[ext]" is
// stripped.
func esbuildPattern(pattern string) string {
	pattern = strings.TrimSuffix(pattern, "[ext]")
	pattern = strings.TrimSuffix(pattern, ".js")
	return pattern
}

// defineValue encodes an environment value for a --define flag. Values
// that already parse as JSON pass through untouched; everything else is
// quoted as a JSON string.
func defineValue(v string) string {
	if json.Valid([]byte(v)) {
		return v
	}
	return strconv.Quote(v)
}

type metafile struct {
	Inputs  map[string]json.RawMessage `json:"inputs"`
	Outputs map[string]metaOutput      `json:"outputs"`
}

type metaOutput struct {
	Bytes      int64  `json:"bytes"`
	EntryPoint string `json:"entryPoint"`
	CSSBundle  string `json:"cssBundle"`
}

// parseMetafile turns the bundler's metafile into an Output. Metafile
// paths are relative to the job root; they are rewritten relative to the
// output directory. Files are listed in sorted path order.
func parseMetafile(data []byte, job Job, outDir string) (*Output, error) {
	var meta metafile
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("parse metafile: %w", err)
	}

	rel := func(p string) string {
		abs := p
		if !filepath.IsAbs(abs) {
			abs = filepath.Join(job.Root, filepath.FromSlash(p))
		}
		r, err := filepath.Rel(outDir, abs)
		if err != nil || strings.HasPrefix(r, "..") {
			return filepath.ToSlash(p)
		}
		return filepath.ToSlash(r)
	}

	entrySource := filepath.ToSlash(job.Entry)

	out := &Output{}
	paths := make([]string, 0, len(meta.Outputs))
	for p := range meta.Outputs {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	for _, p := range paths {
		mo := meta.Outputs[p]
		out.Files = append(out.Files, File{Path: rel(p), Size: mo.Bytes})
		if mo.EntryPoint != "" && filepath.ToSlash(mo.EntryPoint) == entrySource {
			out.EntryFile = rel(p)
			if mo.CSSBundle != "" {
				out.Styles = append(out.Styles, rel(mo.CSSBundle))
			}
		}
	}

	for p := range meta.Inputs {
		out.Inputs = append(out.Inputs, filepath.ToSlash(p))
	}
	sort.Strings(out.Inputs)

	if out.EntryFile == "" {
		return nil, ErrNoEntryOutput
	}
	return out, nil
}

var (
	// Matches block-form diagnostics: a severity header line followed
	// somewhere below by an indented "path:line:col:" location line.
	diagHeadRe = regexp.MustCompile(`(?m)^[^\s\[]? ?\[(ERROR|WARNING)\] (.+)$`)
	diagLocRe  = regexp.MustCompile(`(?m)^\s{2,}([^\s:][^:\n]*):(\d+):(\d+):?\s*$`)

	// Matches single-line diagnostics of the form
	// " > path:line:col: error: message".
	diagInlineRe = regexp.MustCompile(`(?m)^ ?> ([^\s:][^:\n]*):(\d+):(\d+): (?:ERROR|error): (.+)$`)
)

// parseDiagnostics extracts error locations from bundler output. Both the
// block format and the older single-line format are recognized; warnings
// are skipped. An empty slice means the log carried no parseable errors.
func parseDiagnostics(log string) []Diagnostic {
	var diags []Diagnostic

	heads := diagHeadRe.FindAllStringSubmatchIndex(log, -1)
	for i, head := range heads {
		if log[head[2]:head[3]] != "ERROR" {
			continue
		}
		d := Diagnostic{Message: strings.TrimSpace(log[head[4]:head[5]])}
		end := len(log)
		if i+1 < len(heads) {
			end = heads[i+1][0]
		}
		if loc := diagLocRe.FindStringSubmatch(log[head[1]:end]); loc != nil {
			d.File = loc[1]
			d.Line, _ = strconv.Atoi(loc[2])
			d.Column, _ = strconv.Atoi(loc[3])
		}
		diags = append(diags, d)
	}

	for _, m := range diagInlineRe.FindAllStringSubmatch(log, -1) {
		d := Diagnostic{File: m[1], Message: strings.TrimSpace(m[4])}
		d.Line, _ = strconv.Atoi(m[2])
		d.Column, _ = strconv.Atoi(m[3])
		diags = append(diags, d)
	}

	return diags
}
