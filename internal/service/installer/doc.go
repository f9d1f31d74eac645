// Package installer downloads and installs the SiteKeeper release binary.
//
// It resolves the host platform and the requested version, downloads the
// release archive to a temporary directory, verifies its checksum when the
// release publishes one, atomically installs the extracted binary together
// with its alias symlink, and reports on the host's runtime dependencies.
// The run is a strict sequence; the first failing step terminates the whole
// procedure, with the temporary directory removed on every exit path.
package installer
