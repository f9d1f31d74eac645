// Package version exposes build metadata injected via ldflags and attaches
// a `version` subcommand to the setup binaries.
package version
