package release

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"

	"github.com/sitekeeper/sitekeeper-setup/internal/config"
	"github.com/sitekeeper/sitekeeper-setup/internal/logger"
)

const (
	// VersionLatest is the sentinel resolved against the release metadata endpoint.
	VersionLatest = "latest"

	// defaultAPIBaseURL is the GitHub REST endpoint serving release metadata.
	defaultAPIBaseURL = "https://api.github.com"

	// defaultDownloadBaseURL hosts the per-version artifact archives.
	defaultDownloadBaseURL = "https://github.com"

	// requestTimeout bounds each individual HTTPS GET.
	requestTimeout = 30 * time.Second
)

var (
	// errEmptyTag is returned when the metadata endpoint resolves to nothing installable.
	errEmptyTag = errors.New("release lookup returned an empty tag")
	// errBadVersion is returned when a resolved version is not a semantic version.
	errBadVersion = errors.New("version is not a semantic version")
	// errBadStatus is returned for any non-OK HTTP response.
	errBadStatus = errors.New("unexpected http status")

	// ErrAssetNotFound is returned when an optional asset (the checksums
	// file) is not published for a release.
	ErrAssetNotFound = errors.New("release asset not found")
)

// latestRelease is the slice of the GitHub release payload we consume.
type latestRelease struct {
	// TagName is the published tag, conventionally "v"-prefixed.
	TagName string `json:"tag_name"`
}

// Client fetches release metadata and artifacts for one repository.
type Client struct {
	// Owner is the repository owner.
	Owner string
	// Repo is the repository name.
	Repo string
	// APIBaseURL is the metadata endpoint; overridable for tests.
	APIBaseURL string
	// DownloadBaseURL hosts the artifact archives; overridable for tests.
	DownloadBaseURL string
	// HTTPClient performs the requests.
	HTTPClient *http.Client
}

// NewClient returns a Client for the given repository with production endpoints.
func NewClient(owner, repo string) *Client {
	return &Client{
		Owner:           owner,
		Repo:            repo,
		APIBaseURL:      defaultAPIBaseURL,
		DownloadBaseURL: defaultDownloadBaseURL,
		HTTPClient:      &http.Client{Timeout: requestTimeout},
	}
}

// ResolveVersion turns the requested version into a concrete bare version
// string. The "latest" sentinel queries the metadata endpoint; anything else
// passes through with its leading "v" stripped. The result is validated as a
// semantic version so a garbage tag fails here instead of as a 404 later.
func (c *Client) ResolveVersion(ctx context.Context, requested string) (string, error) {
	version := strings.TrimSpace(requested)

	if strings.EqualFold(version, VersionLatest) {
		resolved, err := c.latestVersion(ctx)
		if err != nil {
			return "", err
		}

		version = resolved
		logger.InfoKV(ctx, "Resolved latest release", "version", version)
	}

	version = strings.TrimPrefix(version, "v")
	if version == "" {
		return "", errEmptyTag
	}

	if _, err := semver.NewVersion(version); err != nil {
		return "", fmt.Errorf("%q: %w", version, errBadVersion)
	}

	return version, nil
}

// latestVersion queries the release metadata endpoint for the newest tag.
func (c *Client) latestVersion(ctx context.Context) (string, error) {
	endpoint := fmt.Sprintf("%s/repos/%s/%s/releases/latest", c.APIBaseURL, c.Owner, c.Repo)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return "", err
	}

	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("query release metadata: %w", err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%s, %s: %w", endpoint, resp.Status, errBadStatus)
	}

	var release latestRelease
	if err = json.NewDecoder(resp.Body).Decode(&release); err != nil {
		return "", fmt.Errorf("decode release metadata: %w", err)
	}

	if strings.TrimSpace(release.TagName) == "" {
		return "", errEmptyTag
	}

	return release.TagName, nil
}

// ArchiveName returns the artifact filename for a version and platform tag.
func ArchiveName(version, platformTag string) string {
	return fmt.Sprintf("%s_%s_%s.tar.gz", config.BinaryName, version, platformTag)
}

// ChecksumsName returns the checksums asset filename for a version.
func ChecksumsName(version string) string {
	return fmt.Sprintf("%s_%s_checksums.txt", config.BinaryName, version)
}

// ArchiveURL returns the deterministic download URL for a version and platform tag.
func (c *Client) ArchiveURL(version, platformTag string) string {
	return fmt.Sprintf("%s/%s/%s/releases/download/v%s/%s",
		c.DownloadBaseURL, c.Owner, c.Repo, version, ArchiveName(version, platformTag))
}

// ChecksumsURL returns the download URL of the checksums asset for a version.
func (c *Client) ChecksumsURL(version string) string {
	return fmt.Sprintf("%s/%s/%s/releases/download/v%s/%s",
		c.DownloadBaseURL, c.Owner, c.Repo, version, ChecksumsName(version))
}

// FetchToFile downloads url into dst with a single attempt.
// The partially written file is removed when the transfer fails.
func (c *Client) FetchToFile(ctx context.Context, url, dst string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return err
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("download %s: %w", url, err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s, %s: %w", url, resp.Status, errBadStatus)
	}

	out, err := os.Create(filepath.Clean(dst))
	if err != nil {
		return err
	}

	if _, err = io.Copy(out, resp.Body); err != nil {
		_ = out.Close()
		_ = os.Remove(dst)

		return fmt.Errorf("write %s: %w", dst, err)
	}

	return out.Close()
}

// FetchChecksums downloads and parses the checksums asset of a version.
// It returns ErrAssetNotFound for releases that never published one, so the
// caller can downgrade verification instead of failing the install.
func (c *Client) FetchChecksums(ctx context.Context, version string) (map[string]string, error) {
	url := c.ChecksumsURL(version)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, err
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", url, err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%s: %w", url, ErrAssetNotFound)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s, %s: %w", url, resp.Status, errBadStatus)
	}

	return parseChecksums(resp.Body)
}

// parseChecksums reads "<hex>  <filename>" lines into a filename-keyed map.
func parseChecksums(r io.Reader) (map[string]string, error) {
	sums := make(map[string]string)

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) != 2 {
			continue
		}

		sums[fields[1]] = fields[0]
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("parse checksums: %w", err)
	}

	return sums, nil
}
