package archive

import (
	"archive/tar"
	"compress/gzip"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// writeArchive builds a tar.gz holding the provided name->content members.
func writeArchive(t *testing.T, path string, members map[string]string) {
	t.Helper()

	f, err := os.Create(path)
	require.NoError(t, err)

	gz := gzip.NewWriter(f)
	tw := tar.NewWriter(gz)

	for name, content := range members {
		require.NoError(t, tw.WriteHeader(&tar.Header{
			Name:     name,
			Mode:     0o755,
			Size:     int64(len(content)),
			Typeflag: tar.TypeReg,
		}))

		_, err = tw.Write([]byte(content))
		require.NoError(t, err)
	}

	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
	require.NoError(t, f.Close())
}

// TestExtractFile pulls a named member out of a well-formed archive.
func TestExtractFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	archivePath := filepath.Join(dir, "release.tar.gz")
	writeArchive(t, archivePath, map[string]string{
		"README.md":  "docs",
		"sitekeeper": "#!binary",
	})

	dest := t.TempDir()

	extracted, err := ExtractFile(archivePath, "sitekeeper", dest)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dest, "sitekeeper"), extracted)

	contents, err := os.ReadFile(extracted)
	require.NoError(t, err)
	require.Equal(t, "#!binary", string(contents))

	info, err := os.Stat(extracted)
	require.NoError(t, err)
	require.NotZero(t, info.Mode()&0o111, "extracted binary must be executable")
}

// TestExtractFileNested finds the member regardless of its directory prefix.
func TestExtractFileNested(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	archivePath := filepath.Join(dir, "release.tar.gz")
	writeArchive(t, archivePath, map[string]string{
		"sitekeeper_2.4.1_linux_amd64/sitekeeper": "nested",
	})

	extracted, err := ExtractFile(archivePath, "sitekeeper", t.TempDir())
	require.NoError(t, err)

	contents, err := os.ReadFile(extracted)
	require.NoError(t, err)
	require.Equal(t, "nested", string(contents))
}

// TestExtractFileMissingMember reports archives that lack the binary.
func TestExtractFileMissingMember(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	archivePath := filepath.Join(dir, "release.tar.gz")
	writeArchive(t, archivePath, map[string]string{"README.md": "docs"})

	_, err := ExtractFile(archivePath, "sitekeeper", t.TempDir())
	require.ErrorIs(t, err, errMemberNotFound)
}

// TestExtractFileRejectsTraversal refuses member paths escaping the destination.
func TestExtractFileRejectsTraversal(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	archivePath := filepath.Join(dir, "release.tar.gz")
	writeArchive(t, archivePath, map[string]string{
		"../../sitekeeper": "escape",
	})

	_, err := ExtractFile(archivePath, "sitekeeper", t.TempDir())
	require.ErrorIs(t, err, errUnsafePath)
}

// TestExtractFileCorruptArchive reports non-gzip input.
func TestExtractFileCorruptArchive(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	archivePath := filepath.Join(dir, "broken.tar.gz")
	require.NoError(t, os.WriteFile(archivePath, []byte("not a gzip stream"), 0o600))

	_, err := ExtractFile(archivePath, "sitekeeper", t.TempDir())
	require.Error(t, err)
}
