package installer

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/Masterminds/semver/v3"
	goupdate "github.com/doitdistributed/go-update"
	"github.com/mitchellh/go-ps"

	"github.com/sitekeeper/sitekeeper-setup/internal/archive"
	"github.com/sitekeeper/sitekeeper-setup/internal/config"
	"github.com/sitekeeper/sitekeeper-setup/internal/deps"
	"github.com/sitekeeper/sitekeeper-setup/internal/logger"
	"github.com/sitekeeper/sitekeeper-setup/internal/platform"
	"github.com/sitekeeper/sitekeeper-setup/internal/release"
	"github.com/sitekeeper/sitekeeper-setup/internal/ui"
)

var (
	errRootRequired      = errors.New("installation requires root privileges")
	errInstallDirMissing = errors.New("install directory does not exist")
	errChecksumMismatch  = errors.New("archive checksum mismatch")
)

// Options are inputs accepted by the installer entry point.
type Options struct {
	// ConfigPath is the optional path to the settings YAML file.
	ConfigPath string
}

// runner holds the mutable state and helpers for a single install execution.
// It is intentionally unexported — call Run(ctx, Options) from callers.
type runner struct {
	cfg          *config.Config    // Effective settings (file + environment).
	client       *release.Client   // Release metadata and artifact transfers.
	checker      *deps.Checker     // External tool probing.
	dependencies []deps.Dependency // Tool set probed before downloading.

	// Seams replaced by tests: privilege policy, process listing,
	// prompt wiring and the init launcher.
	requireRoot bool
	euid        func() int
	processes   func() ([]ps.Process, error)
	promptIn    io.Reader
	promptOut   io.Writer
	runInit     func(context.Context, string) error

	platform    platform.Platform // Resolved host platform.
	version     string            // Resolved bare version.
	workDir     string            // Temporary download directory.
	archivePath string            // Downloaded archive inside workDir.
	results     []deps.Result     // Dependency probe results.
}

// Run executes the installer lifecycle and is the public entry point for the CLI.
func Run(ctx context.Context, opts *Options) error {
	// Set context with logger name for tracking.
	ctx = logger.WithName(ctx, "sitekeeper-install")

	r, err := newRunner(opts)
	if err != nil {
		logger.ErrorKV(ctx, "Installer setup failed", "error", err)
		return err
	}

	defer r.cleanup(ctx)

	if err = r.Run(ctx); err != nil {
		logger.ErrorKV(ctx, "Installation failed", "error", err)
		return err
	}

	logger.Info(ctx, "Installation completed")

	return nil
}

// newRunner loads settings and wires the production collaborators.
func newRunner(opts *Options) (*runner, error) {
	configPath := ""
	if opts != nil {
		configPath = opts.ConfigPath
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	// Validated by config.Load.
	owner, name, _ := cfg.OwnerAndName()

	return &runner{
		cfg:          cfg,
		client:       release.NewClient(owner, name),
		checker:      deps.NewChecker(),
		dependencies: deps.Defaults(),
		requireRoot:  true,
		euid:         os.Geteuid,
		processes:    ps.Processes,
		promptIn:     os.Stdin,
		promptOut:    os.Stdout,
		runInit:      launchInit,
	}, nil
}

// Run executes the install flow for this runner instance:
// 1) Verify privileges and the install directory.
// 2) Resolve the host platform.
// 3) Resolve the requested version.
// 4) Probe dependencies (hard tools abort here, before any download).
// 5) Download the release archive into a temporary directory.
// 6) Verify its checksum when the release publishes one.
// 7) Extract the binary and install it atomically, alias included.
// 8) Report missing optional tools and offer the init step.
func (r *runner) Run(ctx context.Context) error {
	if err := r.ensurePrivileges(); err != nil {
		return err
	}

	if err := r.resolvePlatform(ctx); err != nil {
		return err
	}

	if err := r.resolveVersion(ctx); err != nil {
		return err
	}

	r.inspectExistingInstall(ctx)

	if err := r.checkDependencies(ctx); err != nil {
		return err
	}

	if err := r.download(ctx); err != nil {
		return err
	}

	if err := r.verifyChecksum(ctx); err != nil {
		return err
	}

	binaryPath, err := r.extract(ctx)
	if err != nil {
		return err
	}

	if err = r.install(ctx, binaryPath); err != nil {
		return err
	}

	r.reportDependencies(ctx)

	if err = r.offerInit(ctx); err != nil {
		return err
	}

	advance(ctx, stateDone)

	return nil
}

// ensurePrivileges enforces the root requirement and checks that the install
// target directory already exists. Nothing is created on the caller's behalf.
func (r *runner) ensurePrivileges() error {
	if r.requireRoot && r.euid() != 0 {
		return errRootRequired
	}

	info, err := os.Stat(r.cfg.InstallDir)
	if err != nil || !info.IsDir() {
		return fmt.Errorf("%q: %w", r.cfg.InstallDir, errInstallDirMissing)
	}

	return nil
}

// resolvePlatform maps the runtime environment to a canonical platform tag.
func (r *runner) resolvePlatform(ctx context.Context) error {
	p, err := platform.Detect()
	if err != nil {
		return err
	}

	r.platform = p
	logger.InfoKV(ctx, "Platform resolved", "platform", p.Tag())
	advance(ctx, statePlatformResolved)

	return nil
}

// resolveVersion turns the configured version (possibly "latest") into a
// concrete release version.
func (r *runner) resolveVersion(ctx context.Context) error {
	version, err := r.client.ResolveVersion(ctx, r.cfg.Version)
	if err != nil {
		return fmt.Errorf("resolve version: %w", err)
	}

	r.version = version
	logger.InfoKV(ctx, "Version resolved", "version", version)
	advance(ctx, stateVersionResolved)

	return nil
}

// inspectExistingInstall logs what is about to be overwritten and warns when
// the binary is currently running. Neither condition stops the install:
// upgrade is an in-place overwrite.
func (r *runner) inspectExistingInstall(ctx context.Context) {
	binaryPath := r.cfg.BinaryPath()
	if _, err := os.Stat(binaryPath); err != nil {
		return
	}

	current := installedVersion(ctx, binaryPath)

	switch {
	case current == "":
		logger.Info(ctx, "Existing installation found, proceeding with overwrite")
	case current == r.version:
		logger.InfoKV(ctx, "Requested version is already installed, proceeding with overwrite", "version", current)
	default:
		direction := "Upgrading"

		currentVer, err1 := semver.NewVersion(current)
		requestedVer, err2 := semver.NewVersion(r.version)
		if err1 == nil && err2 == nil && requestedVer.LessThan(currentVer) {
			direction = "Downgrading"
		}

		logger.InfoKV(ctx, direction+" existing installation", "from", current, "to", r.version)
	}

	running, err := isBinaryRunning(r.processes)
	if err != nil {
		logger.DebugKV(ctx, "Could not inspect process list", "error", err)
		return
	}

	if running {
		logger.Warn(ctx, "SiteKeeper is currently running; it will keep the old binary until restarted")
	}
}

// checkDependencies probes the host tools. Missing hard tools abort the
// install here, before anything is downloaded.
func (r *runner) checkDependencies(ctx context.Context) error {
	logger.Info(ctx, "Checking host dependencies")

	results, err := r.checker.Check(ctx, r.dependencies)
	r.results = results

	if err != nil {
		return err
	}

	return nil
}

// download fetches the release archive into a fresh temporary directory.
func (r *runner) download(ctx context.Context) error {
	workDir, err := os.MkdirTemp("", workDirPattern)
	if err != nil {
		return err
	}

	r.workDir = workDir

	url := r.client.ArchiveURL(r.version, r.platform.Tag())
	r.archivePath = filepath.Join(workDir, release.ArchiveName(r.version, r.platform.Tag()))

	logger.InfoKV(ctx, "Downloading release archive", "url", url)

	if err = r.client.FetchToFile(ctx, url, r.archivePath); err != nil {
		return err
	}

	advance(ctx, stateDownloaded)

	return nil
}

// verifyChecksum compares the downloaded archive against the release's
// published checksums. Releases without a checksums asset are accepted as is.
func (r *runner) verifyChecksum(ctx context.Context) error {
	sums, err := r.client.FetchChecksums(ctx, r.version)
	if err != nil {
		if errors.Is(err, release.ErrAssetNotFound) {
			logger.Debug(ctx, "Release publishes no checksums, skipping verification")
			return nil
		}

		return err
	}

	want, ok := sums[release.ArchiveName(r.version, r.platform.Tag())]
	if !ok {
		logger.Warn(ctx, "Checksums asset has no entry for this artifact, skipping verification")
		return nil
	}

	got, err := fileSHA256(r.archivePath)
	if err != nil {
		return err
	}

	if !strings.EqualFold(got, want) {
		return fmt.Errorf("expected %s, got %s: %w", want, got, errChecksumMismatch)
	}

	logger.Debug(ctx, "Archive checksum verified")

	return nil
}

// extract pulls the binary out of the downloaded archive.
func (r *runner) extract(ctx context.Context) (string, error) {
	binaryPath, err := archive.ExtractFile(r.archivePath, config.BinaryName, r.workDir)
	if err != nil {
		return "", err
	}

	advance(ctx, stateExtracted)

	return binaryPath, nil
}

// install atomically applies the extracted binary over the target path and
// (re)creates the alias symlink. Re-running overwrites in place: there are no
// versioned side-by-side installs.
func (r *runner) install(ctx context.Context, extractedPath string) error {
	targetPath := r.cfg.BinaryPath()

	f, err := os.Open(filepath.Clean(extractedPath))
	if err != nil {
		return err
	}

	applyErr := goupdate.Apply(f, goupdate.Options{
		TargetPath: targetPath,
		TargetMode: BinaryFileMode,
	})

	_ = f.Close()

	if applyErr != nil {
		return fmt.Errorf("install binary: %w", applyErr)
	}

	// go-update keeps the previous binary around; one generation is enough.
	oldPath := targetPath + ".old"
	if _, err = os.Stat(oldPath); err == nil {
		_ = os.Remove(oldPath)
	}

	logger.InfoKV(ctx, "Binary installed", "path", targetPath)

	if err = r.refreshAlias(ctx, targetPath); err != nil {
		return err
	}

	advance(ctx, stateInstalled)

	return nil
}

// refreshAlias replaces the alias symlink unconditionally.
func (r *runner) refreshAlias(ctx context.Context, targetPath string) error {
	aliasPath := r.cfg.AliasPath()

	if err := os.Remove(aliasPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("replace alias: %w", err)
	}

	if err := os.Symlink(targetPath, aliasPath); err != nil {
		return fmt.Errorf("create alias: %w", err)
	}

	logger.InfoKV(ctx, "Alias updated", "alias", aliasPath, "target", targetPath)

	return nil
}

// reportDependencies prints the install summary with any soft-dependency warnings.
func (r *runner) reportDependencies(ctx context.Context) {
	missing := deps.MissingSoft(r.results)

	warnings := make([]ui.SoftWarning, 0, len(missing))
	for _, m := range missing {
		warnings = append(warnings, ui.SoftWarning{
			Tool:    m.Name,
			Purpose: m.Purpose,
			Remedy:  m.Remedy,
		})
	}

	_, _ = fmt.Fprint(r.promptOut, ui.InstallSummary(r.version, r.cfg.BinaryPath(), r.cfg.AliasPath(), warnings))

	advance(ctx, stateDependenciesChecked)
}

// offerInit asks whether to run the installed program's initialization step.
// Declining, skipping via configuration and non-interactive input all leave
// the install successful.
func (r *runner) offerInit(ctx context.Context) error {
	if r.cfg.SkipInit {
		logger.Debug(ctx, "Initialization prompt skipped by configuration")
		return nil
	}

	_, _ = fmt.Fprintf(r.promptOut, "Run '%s init' to configure backups now? [y/N]: ", config.BinaryName)

	answer, err := bufio.NewReader(r.promptIn).ReadString('\n')
	if err != nil {
		// Non-interactive stdin: treat as a declined prompt.
		logger.Debug(ctx, "No interactive input, skipping initialization")
		return nil
	}

	answer = strings.ToLower(strings.TrimSpace(answer))
	if answer != "y" && answer != "yes" {
		logger.Info(ctx, "Initialization skipped")
		return nil
	}

	logger.Info(ctx, "Running initialization")

	if err = r.runInit(ctx, r.cfg.BinaryPath()); err != nil {
		return fmt.Errorf("initialization: %w", err)
	}

	return nil
}

// launchInit runs `sitekeeper init` with the operator's terminal attached.
func launchInit(ctx context.Context, binaryPath string) error {
	cmd := exec.CommandContext(ctx, binaryPath, "init")
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	return cmd.Run()
}

// cleanup removes the temporary download directory.
func (r *runner) cleanup(ctx context.Context) {
	if r.workDir == "" {
		return
	}

	if _, err := os.Stat(r.workDir); err == nil {
		_ = os.RemoveAll(r.workDir)
	}

	logger.Debug(ctx, "Temporary working directory removed")
}
