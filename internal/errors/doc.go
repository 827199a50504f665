// Package errors provides structured, actionable error messages for loom.
//
// Every error carries a unique code (e.g., "E104") that maps to a category,
// a short message, a detailed explanation, and a documentation URL.
//
// # Error Categories
//
// Errors are organized into categories matching the phases of the tool:
//   - config: configuration errors, fatal at startup (duplicate target
//     names, colliding route prefixes, undeclared references)
//   - build: production build errors, abort the whole build
//   - runtime-load: a target's current module cannot be loaded during
//     development; recoverable per request
//   - handler: errors raised by a target's handler during invocation
//   - cli: command-level errors (missing project, bad scaffold target)
//
// # Usage
//
//	err := errors.New("E104").
//	    WithTarget("admin").
//	    WithDetail(`route "/api" is already owned by target "api"`).
//	    WithSuggestion(`give the "admin" target its own route prefix`)
//
//	fmt.Println(err.Format())
//
// Config and build errors must abort their phase. Runtime-load and handler
// errors are caught by the dev router and converted to HTTP 500 responses
// carrying Trace() output; production never intercepts them.
package errors
