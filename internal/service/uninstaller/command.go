package uninstaller

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/mitchellh/go-ps"

	"github.com/sitekeeper/sitekeeper-setup/internal/config"
	"github.com/sitekeeper/sitekeeper-setup/internal/logger"
	"github.com/sitekeeper/sitekeeper-setup/internal/systemd"
	"github.com/sitekeeper/sitekeeper-setup/internal/ui"
)

var errRootRequired = errors.New("uninstallation requires root privileges")

// Options are inputs accepted by the uninstaller entry point.
type Options struct {
	// ConfigPath is the optional path to the settings YAML file.
	ConfigPath string
}

// scheduler removes the scheduled-backup registration from the host's
// service manager.
type scheduler interface {
	RemoveScheduledBackup(ctx context.Context) (bool, error)
}

// runner holds the collaborators for a single uninstall execution.
type runner struct {
	cfg       *config.Config
	scheduler scheduler

	// Seams replaced by tests: privilege policy, process listing and
	// the summary destination.
	requireRoot bool
	euid        func() int
	processes   func() ([]ps.Process, error)
	out         io.Writer
}

// Run executes the uninstaller lifecycle and is the public entry point
// for the CLI.
func Run(ctx context.Context, opts *Options) error {
	// Set context with logger name for tracking.
	ctx = logger.WithName(ctx, "sitekeeper-uninstall")

	r, err := newRunner(opts)
	if err != nil {
		logger.ErrorKV(ctx, "Uninstaller setup failed", "error", err)
		return err
	}

	if err = r.Run(ctx); err != nil {
		logger.ErrorKV(ctx, "Uninstallation failed", "error", err)
		return err
	}

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

	return &runner{
		cfg:         cfg,
		scheduler:   systemd.NewManager(),
		requireRoot: true,
		euid:        os.Geteuid,
		processes:   ps.Processes,
		out:         os.Stdout,
	}, nil
}

// Run executes the uninstall flow for this runner instance:
// 1) A missing binary is a successful no-op: nothing is touched.
// 2) Warn when the program is still running; removal proceeds regardless.
// 3) Remove the binary, then the alias when present.
// 4) Remove the scheduled-backup registration when one exists.
// 5) List the state that is deliberately retained.
func (r *runner) Run(ctx context.Context) error {
	binaryPath := r.cfg.BinaryPath()

	if _, err := os.Lstat(binaryPath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logger.InfoKV(ctx, "SiteKeeper is not installed, nothing to do", "path", binaryPath)
			return nil
		}

		return fmt.Errorf("inspect %q: %w", binaryPath, err)
	}

	if r.requireRoot && r.euid() != 0 {
		return errRootRequired
	}

	r.warnIfRunning(ctx)

	if err := os.Remove(binaryPath); err != nil {
		return fmt.Errorf("remove binary: %w", err)
	}

	logger.InfoKV(ctx, "Binary removed", "path", binaryPath)

	if err := r.removeAlias(ctx); err != nil {
		return err
	}

	scheduledTaskRemoved, err := r.scheduler.RemoveScheduledBackup(ctx)
	if err != nil {
		return fmt.Errorf("remove scheduled backup: %w", err)
	}

	_, _ = fmt.Fprint(r.out, ui.UninstallSummary(binaryPath, scheduledTaskRemoved))
	_, _ = fmt.Fprint(r.out, ui.RetainedStateNotice())

	logger.Info(ctx, "Uninstallation completed")

	return nil
}

// warnIfRunning tells the operator when the program still has a live process.
// A running process keeps its binary image, so removal is safe either way.
func (r *runner) warnIfRunning(ctx context.Context) {
	processList, err := r.processes()
	if err != nil {
		logger.DebugKV(ctx, "Could not inspect process list", "error", err)
		return
	}

	for _, process := range processList {
		if process.Executable() == config.BinaryName {
			logger.Warn(ctx, "SiteKeeper is currently running; the process survives until it exits")
			return
		}
	}
}

// removeAlias deletes the alias symlink, tolerating its absence.
func (r *runner) removeAlias(ctx context.Context) error {
	aliasPath := r.cfg.AliasPath()

	err := os.Remove(aliasPath)
	if err == nil {
		logger.InfoKV(ctx, "Alias removed", "path", aliasPath)
		return nil
	}

	if errors.Is(err, os.ErrNotExist) {
		return nil
	}

	return fmt.Errorf("remove alias: %w", err)
}
