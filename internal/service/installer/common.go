package installer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/mitchellh/go-ps"

	"github.com/sitekeeper/sitekeeper-setup/internal/config"
	"github.com/sitekeeper/sitekeeper-setup/internal/logger"
)

const (
	// BinaryFileMode is applied to the installed binary.
	BinaryFileMode os.FileMode = 0o755

	// workDirPattern names the temporary download directory.
	workDirPattern = "sitekeeper-install-"

	// versionCommandTimeout bounds the query of an already-installed binary.
	versionCommandTimeout = 10 * time.Second
)

// Install flow states, logged as each transition completes.
const (
	statePlatformResolved    = "platform_resolved"
	stateVersionResolved     = "version_resolved"
	stateDownloaded          = "downloaded"
	stateExtracted           = "extracted"
	stateInstalled           = "installed"
	stateDependenciesChecked = "dependencies_checked"
	stateDone                = "done"
)

// advance records a completed state transition of the install flow.
func advance(ctx context.Context, state string) {
	logger.DebugKV(ctx, "State reached", "state", state)
}

// fileSHA256 returns the lowercase hex SHA-256 digest of the file at path.
func fileSHA256(path string) (string, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return "", fmt.Errorf("open for checksum: %w", err)
	}

	defer func() {
		_ = f.Close()
	}()

	hasher := sha256.New()
	if _, err = io.Copy(hasher, f); err != nil {
		return "", fmt.Errorf("calculate checksum: %w", err)
	}

	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// isBinaryRunning reports whether a process named after the installed binary
// is currently running (excluding this process).
func isBinaryRunning(processes func() ([]ps.Process, error)) (bool, error) {
	processList, err := processes()
	if err != nil {
		return false, err
	}

	thisProcessID := os.Getpid()

	for _, process := range processList {
		if process.Pid() == thisProcessID {
			continue
		}

		if process.Executable() == config.BinaryName {
			return true, nil
		}
	}

	return false, nil
}

// installedVersion asks an existing binary for its version. An empty string
// means no usable version could be determined, which is not an error — the
// binary may predate the --version flag or be a different build entirely.
func installedVersion(ctx context.Context, binaryPath string) string {
	cmdCtx, cancel := context.WithTimeout(ctx, versionCommandTimeout)
	defer cancel()

	output, err := exec.CommandContext(cmdCtx, binaryPath, "--version").Output()
	if err != nil {
		logger.DebugKV(ctx, "Could not query installed version", "path", binaryPath, "error", err)
		return ""
	}

	return parseVersionToken(string(output))
}

// parseVersionToken extracts the first semver-parsable token from the output
// of a --version invocation, with any leading "v" stripped.
func parseVersionToken(output string) string {
	for _, field := range strings.Fields(output) {
		candidate := strings.TrimPrefix(strings.Trim(field, ","), "v")
		if _, err := semver.NewVersion(candidate); err == nil {
			return candidate
		}
	}

	return ""
}
