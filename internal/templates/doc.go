// Package templates scaffolds new loom projects.
//
// A template is a named set of files rendered through text/template with
// the project's name and description. The minimal template carries just a
// client and ssr pair; full adds an API target the client calls.
package templates
