package dev

import (
	"context"

	"github.com/loom-dev/loom/pkg/live"
)

// Bridge connects the transformer's change stream to the browser reload
// channel. Server-render output only affects the initial HTML of a page,
// so a change in the server-render module graph cannot be patched into a
// running page; the bridge answers every such batch with exactly one
// full-reload signal. Batches that never touch the server-render graph
// produce no signal from here.
type Bridge struct {
	session *Session
	notify  func()

	// OnReload, when set, is called after each reload signal with the
	// batch that caused it.
	OnReload func(live.Change)
}

// NewBridge creates a bridge that signals through the reload server.
func NewBridge(session *Session, reload *ReloadServer) *Bridge {
	return &Bridge{
		session: session,
		notify:  reload.NotifyReload,
	}
}

// Run consumes change batches until the stream closes or ctx is done.
func (b *Bridge) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case change, ok := <-b.session.Changes():
			if !ok {
				return
			}
			b.handle(change)
		}
	}
}

// handle signals at most once per batch, however many changed paths the
// batch holds.
func (b *Bridge) handle(change live.Change) {
	ssr := b.session.Registry().SSR()
	for _, p := range change.Paths {
		if b.session.InGraph(ssr.Entry, p) {
			b.notify()
			if b.OnReload != nil {
				b.OnReload(change)
			}
			return
		}
	}
}
