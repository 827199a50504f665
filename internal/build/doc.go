// Package build runs production builds.
//
// Every registered target compiles concurrently as an independent bundler
// job with its own directory under the output root, which is emptied
// before the jobs start. Any failure fails the whole build; outputs that
// finished stay on disk until the next run cleans them. After all jobs
// succeed the package synthesizes the server module, a single generated
// file at the output root that imports the compiled handlers, embeds the
// asset manifest, and exports the ready-to-call render function.
package build
