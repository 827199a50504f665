// Package bundler defines the contract between loom and the JavaScript
// bundler that compiles target entry modules. The orchestration layer never
// bundles anything itself; it describes each compilation as a Job and hands
// it to a Bundler implementation.
//
// The package ships Exec, a reference implementation that shells out to an
// esbuild-compatible command line. Alternative bundlers plug in by
// implementing the one-method Bundler interface.
package bundler

import (
	"context"
	"strings"
	"time"
)

// Mode selects the build profile for a job.
type Mode string

const (
	// ModeDevelopment compiles for the dev server: no minification,
	// inline-friendly output, development define values.
	ModeDevelopment Mode = "development"

	// ModeProduction compiles for deployment.
	ModeProduction Mode = "production"
)

// Bundler compiles one target entry module into an output directory.
// Implementations must be safe for concurrent Build calls with disjoint
// output directories.
type Bundler interface {
	Build(ctx context.Context, job Job) (*Output, error)
}

// Job describes a single target compilation. Entry is resolved relative to
// Root; OutDir is where this job's files land and is never shared between
// concurrent jobs.
type Job struct {
	// Name identifies the target in logs and diagnostics.
	Name string

	// Entry is the source entry module, relative to Root.
	Entry string

	// Root is the project root directory.
	Root string

	// OutDir is the output directory for this job.
	OutDir string

	// Naming controls output file names.
	Naming NamingRule

	// Mode selects development or production output.
	Mode Mode

	// Environment holds compile-time define values, e.g.
	// "process.env.NODE_ENV" -> "production".
	Environment map[string]string

	// Platform is "browser" or "node". Empty means browser.
	Platform string

	// External lists import specifiers the bundler must leave unresolved.
	External []string

	// Aliases maps import specifiers to replacement paths before
	// resolution.
	Aliases map[string]string

	// OutExtension remaps output extensions, e.g. ".js" to ".mjs".
	OutExtension map[string]string

	// Minify enables minification.
	Minify bool

	// SourceMaps enables source map emission.
	SourceMaps bool
}

// File is one emitted output file, with its path relative to the job's
// output directory.
type File struct {
	Path string `json:"path"`
	Size int64  `json:"size"`
}

// Output is the result of a successful build.
type Output struct {
	// Files lists every emitted file.
	Files []File

	// EntryFile is the compiled entry module, relative to OutDir.
	EntryFile string

	// Styles lists the stylesheet files the entry pulls in, in emission
	// order, relative to OutDir.
	Styles []string

	// Inputs lists every source module that fed the build, relative to
	// the job root, sorted. It is the entry's module graph.
	Inputs []string

	// Duration is how long the build took.
	Duration time.Duration

	// Log is the raw bundler output, kept for reporting.
	Log string
}

// NamingRule controls how a target's output files are named. Patterns use
// the placeholders [name], [hash] and [ext]. The Entry pattern must not use
// [hash]: entry output names are computed before any build runs, so they
// can only depend on the entry's base name.
type NamingRule struct {
	// Entry names the compiled entry module. Default "[name].js".
	Entry string

	// Chunk names shared code-split chunks. Default
	// "chunks/[name]-[hash].js".
	Chunk string

	// Asset names other emitted files. Default "assets/[name]-[hash][ext]".
	Asset string
}

// DefaultNaming returns the naming rule used when a target does not
// configure one.
func DefaultNaming() NamingRule {
	return NamingRule{
		Entry: "[name].js",
		Chunk: "chunks/[name]-[hash].js",
		Asset: "assets/[name]-[hash][ext]",
	}
}

// Deterministic reports whether the rule's entry pattern is free of the
// [hash] placeholder. Only deterministic rules allow the compiled entry
// path to be predicted before the build runs.
func (r NamingRule) Deterministic() bool {
	return !strings.Contains(r.Entry, "[hash]")
}

// EntryFile returns the output file name for the entry with the given base
// name (extension already stripped).
func (r NamingRule) EntryFile(name string) string {
	pattern := r.Entry
	if pattern == "" {
		pattern = DefaultNaming().Entry
	}
	return strings.ReplaceAll(pattern, "[name]", name)
}

// EntryBase strips the directory and extension from an entry path, giving
// the [name] value for naming patterns. "src/entry-client.ts" yields
// "entry-client".
func EntryBase(entry string) string {
	base := entry
	if i := strings.LastIndexAny(base, "/\\"); i >= 0 {
		base = base[i+1:]
	}
	if i := strings.LastIndex(base, "."); i > 0 {
		base = base[:i]
	}
	return base
}

// EnvironmentFunc produces the define set for a build mode. The registry
// composes one per target from the mode defaults and the target's
// configured overrides.
type EnvironmentFunc func(mode Mode) map[string]string

// BaseEnvironment returns the defines every build receives: NODE_ENV
// matching the mode, plus import.meta.env.DEV / PROD flags.
func BaseEnvironment(mode Mode) map[string]string {
	dev := "false"
	prod := "true"
	if mode == ModeDevelopment {
		dev = "true"
		prod = "false"
	}
	return map[string]string{
		"process.env.NODE_ENV": string(mode),
		"import.meta.env.DEV":  dev,
		"import.meta.env.PROD": prod,
	}
}

// MergedEnvironment builds an EnvironmentFunc layering the given overrides
// on top of BaseEnvironment. Overrides win.
func MergedEnvironment(overrides map[string]string) EnvironmentFunc {
	return func(mode Mode) map[string]string {
		env := BaseEnvironment(mode)
		for k, v := range overrides {
			env[k] = v
		}
		return env
	}
}
