// Package release talks to the GitHub release surface: it resolves the
// "latest" sentinel to a concrete version, constructs deterministic
// per-version artifact URLs, and downloads release assets.
//
// Every query is a single best-effort HTTPS GET. There is no caching and no
// retrying; a failed lookup or transfer is reported to the caller, which
// treats it as fatal.
package release
