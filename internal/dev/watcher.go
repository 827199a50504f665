package dev

import (
	"context"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// ChangeType classifies a changed file by what it can affect.
type ChangeType int

const (
	// ChangeScript is a module source change (may touch target graphs).
	ChangeScript ChangeType = iota

	// ChangeCSS is a stylesheet change (reloadable without navigation).
	ChangeCSS

	// ChangeTemplate is a change to the HTML page template.
	ChangeTemplate

	// ChangeAsset is anything else under a watched path.
	ChangeAsset
)

// WatchChange is one detected file change.
type WatchChange struct {
	Path string
	Type ChangeType
}

// WatcherConfig configures the file watcher.
type WatcherConfig struct {
	// Paths are the files and directories to watch.
	Paths []string

	// Ignore patterns to skip (globs, names, or path segments).
	Ignore []string

	// Interval is the polling interval.
	Interval time.Duration
}

// DefaultIgnore contains default patterns to ignore.
var DefaultIgnore = []string{
	".git",
	"node_modules",
	"dist",
	".loom",
	"*.tmp",
	"*.swp",
	"*~",
}

// Watcher polls the watched paths and reports changes in batches: every
// poll tick that finds modified files produces one callback with all of
// them, so a save touching several files arrives as a single batch.
type Watcher struct {
	config WatcherConfig

	mu          sync.Mutex
	onChanges   func([]WatchChange)
	running     bool
	initialized bool
	stopCh      chan struct{}
	timestamps  map[string]time.Time
}

// NewWatcher creates a new file watcher.
func NewWatcher(config WatcherConfig) *Watcher {
	if config.Interval == 0 {
		config.Interval = 100 * time.Millisecond
	}
	if len(config.Ignore) == 0 {
		config.Ignore = DefaultIgnore
	}

	return &Watcher{
		config:     config,
		timestamps: make(map[string]time.Time),
	}
}

// OnChanges sets the callback invoked with each batch of changes.
func (w *Watcher) OnChanges(fn func([]WatchChange)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onChanges = fn
}

// Start begins watching. It blocks until ctx is done or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.stopCh = make(chan struct{})
	w.mu.Unlock()

	w.scanInitial()

	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stopCh:
			return nil
		case <-ticker.C:
			w.poll()
		}
	}
}

// Stop stops the watcher.
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		close(w.stopCh)
		w.running = false
	}
}

// IsRunning reports whether the watcher is running.
func (w *Watcher) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// scanInitial builds the initial timestamp map without reporting.
func (w *Watcher) scanInitial() {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.walk(func(p string, mod time.Time) {
		w.timestamps[p] = mod
	})
	w.initialized = true
}

// poll scans for modified or deleted files and reports one batch.
func (w *Watcher) poll() {
	w.mu.Lock()
	callback := w.onChanges
	initialized := w.initialized
	w.mu.Unlock()

	var batch []WatchChange
	seen := make(map[string]bool)

	w.walk(func(p string, mod time.Time) {
		seen[p] = true

		w.mu.Lock()
		last, known := w.timestamps[p]
		if !known || mod.After(last) {
			w.timestamps[p] = mod
		}
		w.mu.Unlock()

		if (known && mod.After(last)) || (!known && initialized) {
			batch = append(batch, WatchChange{Path: p, Type: Classify(p)})
		}
	})

	// Deleted files still count as changes; their modules must be
	// invalidated too.
	w.mu.Lock()
	for p := range w.timestamps {
		if !seen[p] {
			delete(w.timestamps, p)
			batch = append(batch, WatchChange{Path: p, Type: Classify(p)})
		}
	}
	w.mu.Unlock()

	if len(batch) == 0 || callback == nil {
		return
	}
	sort.Slice(batch, func(i, j int) bool { return batch[i].Path < batch[j].Path })
	callback(batch)
}

// walk visits every watched, non-ignored file.
func (w *Watcher) walk(visit func(p string, mod time.Time)) {
	for _, root := range w.config.Paths {
		filepath.Walk(root, func(p string, info os.FileInfo, err error) error {
			if err != nil {
				return nil
			}
			if info.IsDir() {
				if p != root && w.ignored(p) {
					return filepath.SkipDir
				}
				return nil
			}
			if !w.ignored(p) {
				visit(p, info.ModTime())
			}
			return nil
		})
	}
}

// ignored checks a path against the ignore patterns. A pattern matches
// the base name, a path segment, or (with glob metacharacters) either of
// those via glob rules.
func (w *Watcher) ignored(fullPath string) bool {
	name := filepath.Base(fullPath)
	normalized := filepath.ToSlash(fullPath)

	for _, pattern := range w.config.Ignore {
		pattern = strings.TrimSpace(pattern)
		if pattern == "" {
			continue
		}
		if matchIgnore(pattern, name, normalized) {
			return true
		}
	}
	return false
}

func matchIgnore(pattern, name, normalized string) bool {
	if name == pattern {
		return true
	}

	slashed := strings.Contains(pattern, "/") || strings.Contains(pattern, "\\")
	globbed := strings.ContainsAny(pattern, "*?[")

	switch {
	case globbed && slashed:
		ok, _ := path.Match(filepath.ToSlash(pattern), normalized)
		return ok
	case globbed:
		ok, _ := filepath.Match(pattern, name)
		return ok
	case slashed:
		return segmentsContain(normalized, filepath.ToSlash(pattern))
	default:
		return hasSegment(normalized, pattern)
	}
}

// hasSegment reports whether any path segment equals the given name.
func hasSegment(p, segment string) bool {
	for _, part := range splitSegments(p) {
		if part == segment {
			return true
		}
	}
	return false
}

// segmentsContain reports whether the pattern's segment run appears
// contiguously anywhere in the path.
func segmentsContain(p, pattern string) bool {
	pathParts := splitSegments(p)
	patternParts := splitSegments(pattern)
	if len(patternParts) == 0 || len(patternParts) > len(pathParts) {
		return false
	}

	for i := 0; i <= len(pathParts)-len(patternParts); i++ {
		match := true
		for j := range patternParts {
			if pathParts[i+j] != patternParts[j] {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

func splitSegments(p string) []string {
	if p == "" {
		return nil
	}
	parts := strings.Split(p, "/")
	out := parts[:0]
	for _, part := range parts {
		if part != "" && part != "." {
			out = append(out, part)
		}
	}
	return out
}

// Classify determines the change type from the file extension.
func Classify(p string) ChangeType {
	switch strings.ToLower(filepath.Ext(p)) {
	case ".ts", ".tsx", ".js", ".jsx", ".mjs", ".cjs":
		return ChangeScript
	case ".css", ".scss", ".sass", ".less":
		return ChangeCSS
	case ".html":
		return ChangeTemplate
	default:
		return ChangeAsset
	}
}
