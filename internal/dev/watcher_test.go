package dev

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		path string
		want ChangeType
	}{
		{"src/entry-server.ts", ChangeScript},
		{"src/App.tsx", ChangeScript},
		{"lib/util.js", ChangeScript},
		{"lib/Widget.jsx", ChangeScript},
		{"lib/mod.mjs", ChangeScript},
		{"lib/mod.cjs", ChangeScript},
		{"styles/app.css", ChangeCSS},
		{"styles/app.scss", ChangeCSS},
		{"styles/app.less", ChangeCSS},
		{"index.html", ChangeTemplate},
		{"public/logo.svg", ChangeAsset},
		{"data.json", ChangeAsset},
		{"README.md", ChangeAsset},
	}
	for _, c := range cases {
		if got := Classify(c.path); got != c.want {
			t.Errorf("Classify(%q) = %v, want %v", c.path, got, c.want)
		}
	}
}

func TestWatcherIgnorePatterns(t *testing.T) {
	w := NewWatcher(WatcherConfig{
		Ignore: []string{"node_modules", "*.tmp", "dist/assets", ".git", "*.swp"},
	})

	cases := []struct {
		path string
		want bool
	}{
		{"/p/node_modules/pkg/index.js", true},
		{"/p/src/app.ts", false},
		{"/p/build.tmp", true},
		{"/p/.app.ts.swp", true},
		{"/p/dist/assets/app.js", true},
		{"/p/dist/other.js", false},
		{"/p/.git/HEAD", true},
		{"/p/src/distance.ts", false},
	}
	for _, c := range cases {
		if got := w.ignored(c.path); got != c.want {
			t.Errorf("ignored(%q) = %v, want %v", c.path, got, c.want)
		}
	}
}

func TestWatcher_ReportsChangeBatches(t *testing.T) {
	dir := t.TempDir()
	script := filepath.Join(dir, "a.ts")
	style := filepath.Join(dir, "style.css")
	for _, p := range []string{script, style} {
		if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	w := NewWatcher(WatcherConfig{
		Paths:    []string{dir},
		Interval: 10 * time.Millisecond,
	})

	var mu sync.Mutex
	var batches [][]WatchChange
	w.OnChanges(func(b []WatchChange) {
		mu.Lock()
		batches = append(batches, b)
		mu.Unlock()
	})
	batchCount := func() int {
		mu.Lock()
		defer mu.Unlock()
		return len(batches)
	}
	lastBatch := func() []WatchChange {
		mu.Lock()
		defer mu.Unlock()
		return batches[len(batches)-1]
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Start(ctx)
	waitFor(t, w.IsRunning)

	// Give the initial scan a few poll intervals to settle.
	time.Sleep(50 * time.Millisecond)

	// Modify. Bumping the mtime explicitly sidesteps filesystem
	// timestamp granularity.
	future := time.Now().Add(2 * time.Second)
	if err := os.Chtimes(script, future, future); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return batchCount() >= 1 })
	found := false
	for _, c := range lastBatch() {
		if c.Path == script && c.Type == ChangeScript {
			found = true
		}
	}
	if !found {
		t.Fatalf("batch %+v missing modified script", lastBatch())
	}

	// Create.
	before := batchCount()
	created := filepath.Join(dir, "b.ts")
	if err := os.WriteFile(created, []byte("y"), 0o644); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return batchCount() > before })
	found = false
	for _, c := range lastBatch() {
		if c.Path == created {
			found = true
		}
	}
	if !found {
		t.Fatalf("batch %+v missing created file", lastBatch())
	}

	// Delete.
	before = batchCount()
	if err := os.Remove(style); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return batchCount() > before })
	found = false
	for _, c := range lastBatch() {
		if c.Path == style && c.Type == ChangeCSS {
			found = true
		}
	}
	if !found {
		t.Fatalf("batch %+v missing deleted stylesheet", lastBatch())
	}
}

func TestWatcher_StopEndsStart(t *testing.T) {
	w := NewWatcher(WatcherConfig{
		Paths:    []string{t.TempDir()},
		Interval: 10 * time.Millisecond,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- w.Start(context.Background())
	}()
	waitFor(t, w.IsRunning)

	w.Stop()
	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("Start returned %v after Stop", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Start did not return after Stop")
	}
	if w.IsRunning() {
		t.Fatal("watcher still reports running")
	}
}
