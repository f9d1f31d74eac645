package platform

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
)

var (
	// errUnsupportedOS is returned for operating systems outside the allow-list.
	errUnsupportedOS = errors.New("operating system is not supported")
	// errUnsupportedArch is returned for architectures outside the allow-list.
	errUnsupportedArch = errors.New("architecture is not supported")
)

// supported enumerates the allowed architectures per operating system.
//
//nolint:gochecknoglobals // Fixed lookup table, never mutated.
var supported = map[string][]string{
	"linux":  {"amd64", "arm64", "arm"},
	"darwin": {"amd64", "arm64", "arm"},
}

// Platform is the canonical (OS, architecture) pair of the host.
type Platform struct {
	// OS is the normalized operating system name (linux, darwin).
	OS string
	// Arch is the normalized architecture name (amd64, arm64, arm).
	Arch string
}

// Detect resolves the current runtime environment.
func Detect() (Platform, error) {
	return Resolve(runtime.GOOS, runtime.GOARCH)
}

// Resolve normalizes the raw OS and architecture strings and validates them
// against the allow-list.
func Resolve(rawOS, rawArch string) (Platform, error) {
	p := Platform{
		OS:   strings.ToLower(strings.TrimSpace(rawOS)),
		Arch: strings.ToLower(strings.TrimSpace(rawArch)),
	}

	arches, ok := supported[p.OS]
	if !ok {
		return Platform{}, fmt.Errorf("%s: %w", rawOS, errUnsupportedOS)
	}

	for _, arch := range arches {
		if p.Arch == arch {
			return p, nil
		}
	}

	return Platform{}, fmt.Errorf("%s/%s: %w", p.OS, rawArch, errUnsupportedArch)
}

// Tag returns the canonical "{os}_{arch}" artifact selector.
func (p Platform) Tag() string {
	return p.OS + "_" + p.Arch
}

// String implements fmt.Stringer.
func (p Platform) String() string {
	return p.Tag()
}
