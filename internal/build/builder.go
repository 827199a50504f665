package build

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/loom-dev/loom/internal/config"
	"github.com/loom-dev/loom/internal/errors"
	"github.com/loom-dev/loom/pkg/assets"
	"github.com/loom-dev/loom/pkg/bundler"
	"github.com/loom-dev/loom/pkg/middleware"
	"github.com/loom-dev/loom/pkg/resolve"
	"github.com/loom-dev/loom/pkg/target"
)

// ManifestFile is the name-map file written next to the build outputs.
const ManifestFile = "manifest.json"

// TargetResult describes one target's completed compilation.
type TargetResult struct {
	// Target is the descriptor the job was built from.
	Target target.Descriptor

	// Output is the bundler's report for the job.
	Output *bundler.Output

	// Size is the total size of the emitted files in bytes.
	Size int64
}

// Result contains the production build output.
type Result struct {
	// Duration is how long the whole build took.
	Duration time.Duration

	// Targets lists the per-target results in registry order: client,
	// ssr, then APIs in registration order.
	Targets []TargetResult

	// Module is the path of the generated server module.
	Module string

	// Manifest is the path of the name-map manifest file.
	Manifest string
}

// Options configures the builder.
type Options struct {
	// Minify enables minification.
	Minify bool

	// SourceMaps enables source map generation.
	SourceMaps bool

	// Verbose enables per-target progress output.
	Verbose bool

	// OnProgress is called with progress updates. Calls are serialized
	// even while targets build concurrently.
	OnProgress func(step string)
}

// Builder runs production builds: every target compiles concurrently into
// its own directory under the output root, and the server module is
// synthesized once all of them have succeeded.
type Builder struct {
	config  *config.Config
	options Options
	bundler bundler.Bundler

	progressMu sync.Mutex
}

// New creates a builder. Unset options fall back to the config's build
// section.
func New(cfg *config.Config, options Options) *Builder {
	if !options.Minify && cfg.Build.Minify {
		options.Minify = true
	}
	if !options.SourceMaps && cfg.Build.SourceMaps {
		options.SourceMaps = true
	}

	return &Builder{
		config:  cfg,
		options: options,
		bundler: bundler.NewExec(bundler.ExecConfig{Command: cfg.Bundler.Command}),
	}
}

// Build performs a production build.
//
// The output root is emptied first, then every target builds as an
// independent job with a disjoint output directory. Completion is awaited
// jointly; the first failure aborts the wait and fails the build, and
// whatever other jobs already produced stays on disk for the next run to
// clean. The server module and the manifest are written strictly after
// all jobs succeed.
func (b *Builder) Build(ctx context.Context) (*Result, error) {
	start := time.Now()

	reg, err := b.config.Registry()
	if err != nil {
		return nil, err
	}
	targets := reg.All()
	outputRoot := b.config.OutputPath()

	b.progress("Cleaning output root...")
	if err := os.RemoveAll(outputRoot); err != nil {
		return nil, errors.New("E203").WithDetail(err.Error()).Wrap(err)
	}
	if err := os.MkdirAll(outputRoot, 0755); err != nil {
		return nil, errors.New("E203").WithDetail(err.Error()).Wrap(err)
	}

	b.progress(fmt.Sprintf("Building %d targets...", len(targets)))

	outputs := make([]*bundler.Output, len(targets))
	g, gctx := errgroup.WithContext(ctx)
	for i, d := range targets {
		g.Go(func() error {
			out, err := b.buildTarget(gctx, reg, d)
			if err != nil {
				return err
			}
			outputs[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	byName := make(map[string]*bundler.Output, len(targets))
	results := make([]TargetResult, len(targets))
	for i, d := range targets {
		byName[d.Name] = outputs[i]
		results[i] = TargetResult{Target: d, Output: outputs[i], Size: totalSize(outputs[i])}
	}

	b.progress("Synthesizing server module...")
	modulePath := filepath.Join(outputRoot, ServerModule)
	src, err := Synthesize(reg, byName)
	if err != nil {
		return nil, errors.New("E204").WithDetail(err.Error()).Wrap(err)
	}
	if err := os.WriteFile(modulePath, []byte(src), 0644); err != nil {
		return nil, errors.New("E204").WithDetail(err.Error()).Wrap(err)
	}

	b.progress("Writing manifest...")
	manifestPath := filepath.Join(outputRoot, ManifestFile)
	if err := writeNameMap(manifestPath, targets, byName); err != nil {
		return nil, errors.New("E204").WithDetail(err.Error()).Wrap(err)
	}

	return &Result{
		Duration: time.Since(start),
		Targets:  results,
		Module:   modulePath,
		Manifest: manifestPath,
	}, nil
}

// buildTarget runs one bundler job and maps its failure modes onto coded
// errors carrying the target name.
func (b *Builder) buildTarget(ctx context.Context, reg *target.Registry, d target.Descriptor) (*bundler.Output, error) {
	started := time.Now()

	if b.options.Verbose {
		b.progress(fmt.Sprintf("  %s: compiling %s", d.Name, d.Entry))
	}

	aliases, external := selfRefAliases(reg, d)
	job := bundler.Job{
		Name:        d.Name,
		Entry:       d.Entry,
		Root:        b.config.Dir(),
		OutDir:      filepath.Join(b.config.OutputPath(), d.Name),
		Naming:      d.Naming,
		Mode:        bundler.ModeProduction,
		Environment: d.Environment(bundler.ModeProduction),
		Platform:    platformFor(d),
		Aliases:     aliases,
		External:    external,
		Minify:      b.options.Minify,
		SourceMaps:  b.options.SourceMaps,
	}

	out, err := b.bundler.Build(ctx, job)
	if err != nil {
		middleware.RecordBuild(d.Name, "error", time.Since(started).Seconds())
		return nil, codeBuildError(err, d)
	}
	middleware.RecordBuild(d.Name, "success", time.Since(started).Seconds())

	if b.options.Verbose {
		b.progress(fmt.Sprintf("  %s: %s (%s)", d.Name, out.EntryFile, out.Duration.Round(time.Millisecond)))
	}
	return out, nil
}

// selfRefAliases precomputes every self-reference marker for the job: the
// marker aliases to the final output path the production resolver assigns,
// and that path is listed as external so the bundler rewrites the
// specifier without trying to read the not-yet-built file.
func selfRefAliases(reg *target.Registry, d target.Descriptor) (map[string]string, []string) {
	res := resolve.NewProdResolver(reg)
	all := reg.All()

	aliases := make(map[string]string, len(all))
	external := make([]string, 0, len(all))
	for _, t := range all {
		r, ok := res.ResolveSelfReference(d.Entry, t.Entry)
		if !ok {
			continue
		}
		aliases[resolve.SelfRef(t.Entry)] = r.Path
		external = append(external, r.Path)
	}
	sort.Strings(external)
	return aliases, external
}

// codeBuildError classifies a bundler failure.
func codeBuildError(err error, d target.Descriptor) error {
	if stderrors.Is(err, exec.ErrNotFound) {
		return errors.New("E202").WithDetail(err.Error()).Wrap(err)
	}
	if stderrors.Is(err, bundler.ErrNoEntryOutput) {
		return errors.New("E205").WithTarget(d.Name).WithDetail(err.Error()).Wrap(err)
	}

	le := errors.New("E201").WithTarget(d.Name).WithDetail(err.Error()).Wrap(err)
	var be *bundler.BuildError
	if stderrors.As(err, &be) && len(be.Diagnostics) > 0 {
		if diag := be.Diagnostics[0]; diag.File != "" {
			le = le.WithLocation(diag.File, diag.Line, diag.Column)
		}
	}
	return le
}

// writeNameMap records each target's source entry against its compiled
// output path, relative to the output root. Map keys marshal sorted, so
// the file is deterministic.
func writeNameMap(path string, targets []target.Descriptor, outputs map[string]*bundler.Output) error {
	nm := assets.NewNameMap()
	for _, d := range targets {
		out := outputs[d.Name]
		if out == nil || out.EntryFile == "" {
			return fmt.Errorf("no entry output recorded for target %q", d.Name)
		}
		nm.Set(d.Entry, d.Name+"/"+out.EntryFile)
	}

	data, err := json.MarshalIndent(nm.All(), "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0644)
}

func platformFor(d target.Descriptor) string {
	if d.Kind == target.KindClient {
		return "browser"
	}
	return "node"
}

func totalSize(out *bundler.Output) int64 {
	var n int64
	for _, f := range out.Files {
		n += f.Size
	}
	return n
}

// progress reports build progress.
func (b *Builder) progress(step string) {
	if b.options.OnProgress == nil {
		return
	}
	b.progressMu.Lock()
	defer b.progressMu.Unlock()
	b.options.OnProgress(step)
}
