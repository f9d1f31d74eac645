package installer

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/mitchellh/go-ps"
	"github.com/stretchr/testify/require"

	"github.com/sitekeeper/sitekeeper-setup/internal/config"
	"github.com/sitekeeper/sitekeeper-setup/internal/deps"
	"github.com/sitekeeper/sitekeeper-setup/internal/platform"
	"github.com/sitekeeper/sitekeeper-setup/internal/release"
)

const testVersion = "2.4.1"

// hostTag resolves the platform of the machine running the tests,
// skipping when it is off the allow-list.
func hostTag(t *testing.T) string {
	t.Helper()

	p, err := platform.Detect()
	if err != nil {
		t.Skipf("test host is not on the allow-list: %v", err)
	}

	return p.Tag()
}

// buildArchive produces an in-memory release tar.gz holding the binary payload.
func buildArchive(t *testing.T, payload string) []byte {
	t.Helper()

	var buf bytes.Buffer

	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)

	require.NoError(t, tw.WriteHeader(&tar.Header{
		Name:     config.BinaryName,
		Mode:     0o755,
		Size:     int64(len(payload)),
		Typeflag: tar.TypeReg,
	}))

	_, err := tw.Write([]byte(payload))
	require.NoError(t, err)
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())

	return buf.Bytes()
}

// releaseServer fakes the metadata and download endpoints of one release.
type releaseServer struct {
	*httptest.Server

	archive      []byte
	badChecksum  bool
	noChecksums  bool
	missingAsset bool
	downloads    atomic.Int64
}

// newReleaseServer serves version testVersion for the given platform tag.
func newReleaseServer(t *testing.T, tag string, payload string) *releaseServer {
	t.Helper()

	rs := &releaseServer{archive: buildArchive(t, payload)}

	archivePath := fmt.Sprintf("/acme/sitekeeper/releases/download/v%s/%s",
		testVersion, release.ArchiveName(testVersion, tag))
	checksumsPath := fmt.Sprintf("/acme/sitekeeper/releases/download/v%s/%s",
		testVersion, release.ChecksumsName(testVersion))

	rs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/repos/acme/sitekeeper/releases/latest":
			_, _ = fmt.Fprintf(w, `{"tag_name": "v%s"}`, testVersion)
		case archivePath:
			rs.downloads.Add(1)

			if rs.missingAsset {
				http.NotFound(w, r)
				return
			}

			_, _ = w.Write(rs.archive)
		case checksumsPath:
			if rs.noChecksums {
				http.NotFound(w, r)
				return
			}

			sum := sha256.Sum256(rs.archive)
			digest := hex.EncodeToString(sum[:])

			if rs.badChecksum {
				digest = strings.Repeat("0", len(digest))
			}

			_, _ = fmt.Fprintf(w, "%s  %s\n", digest, release.ArchiveName(testVersion, tag))
		default:
			http.NotFound(w, r)
		}
	}))

	t.Cleanup(rs.Server.Close)

	return rs
}

// newTestRunner wires a runner against the fake release server with the
// privilege requirement relaxed and the init prompt disabled.
func newTestRunner(t *testing.T, server *releaseServer, installDir, version string) *runner {
	t.Helper()

	cfg := &config.Config{
		Version:    version,
		InstallDir: installDir,
		Repository: "acme/sitekeeper",
		SkipInit:   true,
	}
	require.NoError(t, config.Validate(cfg))

	client := release.NewClient("acme", "sitekeeper")
	client.APIBaseURL = server.URL
	client.DownloadBaseURL = server.URL
	client.HTTPClient = server.Client()

	return &runner{
		cfg:          cfg,
		client:       client,
		checker:      deps.NewChecker(),
		dependencies: nil, // No host tools required by default in tests.
		requireRoot:  false,
		euid:         func() int { return 0 },
		processes:    func() ([]ps.Process, error) { return nil, nil },
		promptIn:     strings.NewReader(""),
		promptOut:    &bytes.Buffer{},
		runInit: func(context.Context, string) error {
			t.Fatal("init must not run unless requested")
			return nil
		},
	}
}

// runAndCleanup mirrors the public entry point: Run followed by cleanup.
func runAndCleanup(ctx context.Context, r *runner) error {
	defer r.cleanup(ctx)
	return r.Run(ctx)
}

// TestRunInstallsBinaryAndAlias drives the whole flow against a fake release.
func TestRunInstallsBinaryAndAlias(t *testing.T) {
	t.Parallel()

	tag := hostTag(t)
	server := newReleaseServer(t, tag, "#!payload-v1")
	installDir := t.TempDir()

	r := newTestRunner(t, server, installDir, "latest")
	require.NoError(t, runAndCleanup(context.Background(), r))
	require.Equal(t, testVersion, r.version)

	contents, err := os.ReadFile(r.cfg.BinaryPath())
	require.NoError(t, err)
	require.Equal(t, "#!payload-v1", string(contents))

	info, err := os.Stat(r.cfg.BinaryPath())
	require.NoError(t, err)
	require.NotZero(t, info.Mode()&0o111)

	target, err := os.Readlink(r.cfg.AliasPath())
	require.NoError(t, err)
	require.Equal(t, r.cfg.BinaryPath(), target)

	// Temporary working directory is gone.
	_, err = os.Stat(r.workDir)
	require.True(t, os.IsNotExist(err))
}

// TestRunTwiceIsIdempotent leaves exactly one binary and one alias behind.
func TestRunTwiceIsIdempotent(t *testing.T) {
	t.Parallel()

	tag := hostTag(t)
	installDir := t.TempDir()

	first := newReleaseServer(t, tag, "#!payload-v1")
	require.NoError(t, runAndCleanup(context.Background(), newTestRunner(t, first, installDir, testVersion)))

	second := newReleaseServer(t, tag, "#!payload-v2")
	r := newTestRunner(t, second, installDir, testVersion)
	require.NoError(t, runAndCleanup(context.Background(), r))

	entries, err := os.ReadDir(installDir)
	require.NoError(t, err)
	require.Len(t, entries, 2, "exactly one binary and one alias")

	contents, err := os.ReadFile(r.cfg.BinaryPath())
	require.NoError(t, err)
	require.Equal(t, "#!payload-v2", string(contents), "overwrite in place")
}

// TestRunDownloadFailure leaves no artifact behind when the archive 404s.
func TestRunDownloadFailure(t *testing.T) {
	t.Parallel()

	tag := hostTag(t)
	server := newReleaseServer(t, tag, "#!payload")
	server.missingAsset = true

	installDir := t.TempDir()
	r := newTestRunner(t, server, installDir, testVersion)

	require.Error(t, runAndCleanup(context.Background(), r))

	entries, err := os.ReadDir(installDir)
	require.NoError(t, err)
	require.Empty(t, entries, "nothing may reach the install target")

	_, err = os.Stat(r.workDir)
	require.True(t, os.IsNotExist(err), "temporary directory must be removed")
}

// TestRunHardDependencyMissing aborts before anything is downloaded.
func TestRunHardDependencyMissing(t *testing.T) {
	t.Parallel()

	tag := hostTag(t)
	server := newReleaseServer(t, tag, "#!payload")

	r := newTestRunner(t, server, t.TempDir(), testVersion)
	r.dependencies = []deps.Dependency{
		{Name: "sitekeeper-test-no-such-tool", Purpose: "unpacking release archives", Hard: true},
	}

	err := runAndCleanup(context.Background(), r)
	require.ErrorIs(t, err, deps.ErrHardDependencyMissing)
	require.Zero(t, server.downloads.Load(), "no download may happen")
}

// TestRunChecksumMismatch rejects a tampered archive.
func TestRunChecksumMismatch(t *testing.T) {
	t.Parallel()

	tag := hostTag(t)
	server := newReleaseServer(t, tag, "#!payload")
	server.badChecksum = true

	installDir := t.TempDir()
	r := newTestRunner(t, server, installDir, testVersion)

	err := runAndCleanup(context.Background(), r)
	require.ErrorIs(t, err, errChecksumMismatch)

	entries, readErr := os.ReadDir(installDir)
	require.NoError(t, readErr)
	require.Empty(t, entries)
}

// TestRunWithoutChecksumsAsset accepts releases that never published one.
func TestRunWithoutChecksumsAsset(t *testing.T) {
	t.Parallel()

	tag := hostTag(t)
	server := newReleaseServer(t, tag, "#!payload")
	server.noChecksums = true

	r := newTestRunner(t, server, t.TempDir(), testVersion)
	require.NoError(t, runAndCleanup(context.Background(), r))
}

// TestRunRootRequired enforces the privilege policy.
func TestRunRootRequired(t *testing.T) {
	t.Parallel()

	tag := hostTag(t)
	server := newReleaseServer(t, tag, "#!payload")

	r := newTestRunner(t, server, t.TempDir(), testVersion)
	r.requireRoot = true
	r.euid = func() int { return 1000 }

	require.ErrorIs(t, runAndCleanup(context.Background(), r), errRootRequired)
}

// TestRunInstallDirMissing refuses to invent the target directory.
func TestRunInstallDirMissing(t *testing.T) {
	t.Parallel()

	tag := hostTag(t)
	server := newReleaseServer(t, tag, "#!payload")

	r := newTestRunner(t, server, t.TempDir(), testVersion)
	r.cfg.InstallDir = r.cfg.InstallDir + "/does-not-exist"

	require.ErrorIs(t, runAndCleanup(context.Background(), r), errInstallDirMissing)
}

// TestOfferInit covers accepting, declining and configuration skip.
func TestOfferInit(t *testing.T) {
	t.Parallel()

	tag := hostTag(t)

	cases := []struct {
		name     string
		skipInit bool
		input    string
		wantRun  bool
	}{
		{name: "accepted", input: "y\n", wantRun: true},
		{name: "accepted verbose", input: "YES\n", wantRun: true},
		{name: "declined", input: "n\n", wantRun: false},
		{name: "empty answer declines", input: "\n", wantRun: false},
		{name: "skipped by configuration", skipInit: true, input: "y\n", wantRun: false},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			server := newReleaseServer(t, tag, "#!payload")
			r := newTestRunner(t, server, t.TempDir(), testVersion)
			r.cfg.SkipInit = tc.skipInit
			r.promptIn = strings.NewReader(tc.input)

			var initRan bool

			r.runInit = func(_ context.Context, binaryPath string) error {
				initRan = true
				require.Equal(t, r.cfg.BinaryPath(), binaryPath)

				return nil
			}

			require.NoError(t, runAndCleanup(context.Background(), r))
			require.Equal(t, tc.wantRun, initRan)
		})
	}
}

// TestParseVersionToken extracts versions from assorted --version outputs.
func TestParseVersionToken(t *testing.T) {
	t.Parallel()

	cases := []struct {
		output string
		want   string
	}{
		{"sitekeeper version 2.4.1", "2.4.1"},
		{"sitekeeper v2.4.1 (linux_amd64)", "2.4.1"},
		{"version: 1.0.0, commit: abc123", "1.0.0"},
		{"no version here", ""},
		{"", ""},
	}

	for _, tc := range cases {
		require.Equal(t, tc.want, parseVersionToken(tc.output), "output %q", tc.output)
	}
}
