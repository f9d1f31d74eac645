package deps

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/sitekeeper/sitekeeper-setup/internal/logger"
)

// ErrHardDependencyMissing is returned when a tool required by the
// installation procedure itself is absent from PATH.
var ErrHardDependencyMissing = errors.New("required tool is missing")

// Dependency describes one external executable to probe.
type Dependency struct {
	// Name is the executable looked up on PATH.
	Name string
	// Purpose says what the tool is needed for.
	Purpose string
	// Hard marks tools whose absence aborts the installation.
	Hard bool
	// Remedy is the suggested package-manager command for soft dependencies.
	Remedy string
}

// Result is the outcome of probing a single dependency.
type Result struct {
	Dependency

	// Present reports whether the executable was found.
	Present bool
	// Path is the resolved location when present.
	Path string
}

// Defaults returns the dependency set of the SiteKeeper installation.
func Defaults() []Dependency {
	return []Dependency{
		{
			Name:    "tar",
			Purpose: "unpacking release archives",
			Hard:    true,
		},
		{
			Name:    "gzip",
			Purpose: "decompressing release archives",
			Hard:    true,
		},
		{
			Name:    "mysqldump",
			Purpose: "database backup and restore",
			Remedy:  "apt-get install mysql-client (Debian/Ubuntu) or brew install mysql-client (macOS)",
		},
		{
			Name:    "aws",
			Purpose: "uploading backups to cloud storage",
			Remedy:  "apt-get install awscli (Debian/Ubuntu) or brew install awscli (macOS)",
		},
	}
}

// Checker probes PATH for dependencies.
type Checker struct {
	// lookPath resolves an executable name; replaceable in tests.
	lookPath func(string) (string, error)
}

// NewChecker returns a Checker probing the real PATH.
func NewChecker() *Checker {
	return &Checker{lookPath: exec.LookPath}
}

// Check probes every dependency and returns all results. The returned error
// is non-nil when any hard dependency is absent; the results are still
// complete so callers can report soft warnings either way.
func (c *Checker) Check(ctx context.Context, dependencies []Dependency) ([]Result, error) {
	results := make([]Result, 0, len(dependencies))

	var missingHard []string

	for _, dep := range dependencies {
		path, err := c.lookPath(dep.Name)
		result := Result{
			Dependency: dep,
			Present:    err == nil,
			Path:       path,
		}
		results = append(results, result)

		switch {
		case result.Present:
			logger.DebugKV(ctx, "Dependency found", "name", dep.Name, "path", path)
		case dep.Hard:
			missingHard = append(missingHard, dep.Name)
		default:
			logger.WarnKV(ctx, "Optional tool not found",
				"name", dep.Name, "needed_for", dep.Purpose, "remedy", dep.Remedy)
		}
	}

	if len(missingHard) > 0 {
		return results, fmt.Errorf("%s: %w", strings.Join(missingHard, ", "), ErrHardDependencyMissing)
	}

	return results, nil
}

// MissingSoft filters results down to absent soft dependencies.
func MissingSoft(results []Result) []Result {
	var missing []Result

	for _, r := range results {
		if !r.Present && !r.Hard {
			missing = append(missing, r)
		}
	}

	return missing
}
