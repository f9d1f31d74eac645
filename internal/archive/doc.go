// Package archive extracts release artifacts. Archives are tar.gz files
// produced by the release pipeline; member paths are sanitized so a
// malicious archive cannot write outside the destination directory.
package archive
