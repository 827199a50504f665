// Package dev implements the loom development server.
//
// A development session holds one immutable snapshot: the target
// registry, the asset references extracted from the page template, and
// the marker import resolver built over them. Requests are dispatched
// by route prefix to API targets or to the server-render target, and
// every dispatch loads the handler through the live transformer, so
// edited source is recompiled on the next request without a restart.
//
// A filesystem watcher feeds change batches to the transformer and to
// the reload channel. Changes that touch the server-render module graph
// reload connected browsers once per batch; stylesheet-only changes
// refresh styles in place; compile and runtime failures appear on an
// in-page overlay and as 500 responses carrying the full trace.
package dev
