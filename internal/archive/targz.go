package archive

import (
	"archive/tar"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

const (
	// extractedFileMode is applied to extracted executables.
	extractedFileMode os.FileMode = 0o755

	// maxMemberSize caps a single extracted member to keep a corrupt or
	// hostile archive from filling the disk.
	maxMemberSize = 1 << 30
)

var (
	// errMemberNotFound is returned when the requested file is absent from the archive.
	errMemberNotFound = errors.New("file not found in archive")
	// errUnsafePath is returned for member paths escaping the destination directory.
	errUnsafePath = errors.New("archive member path escapes destination")
	// errMemberTooLarge is returned when a member exceeds maxMemberSize.
	errMemberTooLarge = errors.New("archive member exceeds size limit")
)

// ExtractFile extracts the member whose base name equals name from the
// tar.gz archive at archivePath into destDir, returning the extracted path.
// Only regular files are considered; the first match wins.
func ExtractFile(archivePath, name, destDir string) (string, error) {
	f, err := os.Open(filepath.Clean(archivePath))
	if err != nil {
		return "", fmt.Errorf("open archive: %w", err)
	}

	defer func() {
		_ = f.Close()
	}()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return "", fmt.Errorf("decompress archive: %w", err)
	}

	defer func() {
		_ = gz.Close()
	}()

	reader := tar.NewReader(gz)

	for {
		header, err := reader.Next()
		if errors.Is(err, io.EOF) {
			return "", fmt.Errorf("%q: %w", name, errMemberNotFound)
		}

		if err != nil {
			return "", fmt.Errorf("read archive: %w", err)
		}

		if header.Typeflag != tar.TypeReg || filepath.Base(header.Name) != name {
			continue
		}

		if _, err = sanitizePath(destDir, header.Name); err != nil {
			return "", err
		}

		return writeMember(reader, filepath.Join(destDir, name))
	}
}

// writeMember copies a bounded member body into dst with executable permissions.
func writeMember(r io.Reader, dst string) (string, error) {
	out, err := os.OpenFile(filepath.Clean(dst), os.O_WRONLY|os.O_CREATE|os.O_TRUNC, extractedFileMode)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", dst, err)
	}

	written, err := io.Copy(out, io.LimitReader(r, maxMemberSize+1))
	if err != nil {
		_ = out.Close()
		_ = os.Remove(dst)

		return "", fmt.Errorf("extract %s: %w", dst, err)
	}

	if written > maxMemberSize {
		_ = out.Close()
		_ = os.Remove(dst)

		return "", errMemberTooLarge
	}

	if err = out.Close(); err != nil {
		return "", err
	}

	return dst, nil
}

// sanitizePath joins member under destDir and rejects traversal outside it.
func sanitizePath(destDir, member string) (string, error) {
	joined := filepath.Join(destDir, member)

	cleanDest := filepath.Clean(destDir) + string(os.PathSeparator)
	if !strings.HasPrefix(joined, cleanDest) {
		return "", fmt.Errorf("%q: %w", member, errUnsafePath)
	}

	return joined, nil
}
