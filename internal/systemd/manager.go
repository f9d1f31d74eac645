package systemd

import (
	"context"
	"errors"
	"os"
	"path/filepath"

	"github.com/coreos/go-systemd/v22/dbus"

	"github.com/sitekeeper/sitekeeper-setup/internal/logger"
)

const (
	// ServiceUnit runs one backup pass.
	ServiceUnit = "sitekeeper-backup.service"

	// TimerUnit schedules the periodic backup runs.
	TimerUnit = "sitekeeper-backup.timer"

	// UnitPattern matches every unit belonging to the scheduled backup.
	UnitPattern = "sitekeeper-backup.*"

	// DefaultUnitFileDir is where the unit definitions live on the host.
	DefaultUnitFileDir = "/etc/systemd/system"

	// stopMode is the systemd job mode used when stopping units.
	stopMode = "replace"
)

// Conn is the slice of the systemd D-Bus API the uninstaller consumes.
type Conn interface {
	ListUnitFilesByPatternsContext(ctx context.Context, states []string, patterns []string) ([]dbus.UnitFile, error)
	StopUnitContext(ctx context.Context, name string, mode string, ch chan<- string) (int, error)
	DisableUnitFilesContext(ctx context.Context, files []string, runtime bool) ([]dbus.DisableUnitFileChange, error)
	ReloadContext(ctx context.Context) error
	Close()
}

// Manager drives the removal of the scheduled-backup units.
type Manager struct {
	// connect opens the system bus; replaceable in tests.
	connect func(ctx context.Context) (Conn, error)
	// unitFileDir is where unit definition files are deleted from.
	unitFileDir string
}

// NewManager returns a Manager talking to the real system bus.
func NewManager() *Manager {
	return &Manager{
		connect: func(ctx context.Context) (Conn, error) {
			conn, err := dbus.NewWithContext(ctx)
			if err != nil {
				return nil, err
			}

			return conn, nil
		},
		unitFileDir: DefaultUnitFileDir,
	}
}

// RemoveScheduledBackup stops and disables the backup timer and service,
// deletes their unit files and reloads the manager configuration — but only
// when a matching unit is registered. It reports whether anything was found.
//
// Hosts without systemd, units that are already stopped and unit files that
// are already gone are all tolerated: uninstall must not fail over state
// that is already absent.
func (m *Manager) RemoveScheduledBackup(ctx context.Context) (bool, error) {
	conn, err := m.connect(ctx)
	if err != nil {
		logger.DebugKV(ctx, "Service manager unavailable, skipping scheduled-task cleanup", "error", err)
		return false, nil
	}

	defer conn.Close()

	files, err := conn.ListUnitFilesByPatternsContext(ctx, nil, []string{UnitPattern})
	if err != nil {
		logger.WarnKV(ctx, "Could not list unit files, skipping scheduled-task cleanup", "error", err)
		return false, nil
	}

	if len(files) == 0 {
		logger.Info(ctx, "No scheduled backup registration found")
		return false, nil
	}

	// Timer first so no new backup run starts while the service unit goes away.
	for _, unit := range []string{TimerUnit, ServiceUnit} {
		if _, err = conn.StopUnitContext(ctx, unit, stopMode, nil); err != nil {
			// The unit may not be running or even loaded.
			logger.DebugKV(ctx, "Stop unit failed", "unit", unit, "error", err)
		}

		if _, err = conn.DisableUnitFilesContext(ctx, []string{unit}, false); err != nil {
			logger.DebugKV(ctx, "Disable unit failed", "unit", unit, "error", err)
		}

		if err = m.removeUnitFile(ctx, unit); err != nil {
			return true, err
		}
	}

	if err = conn.ReloadContext(ctx); err != nil {
		logger.WarnKV(ctx, "Service manager reload failed", "error", err)
	}

	logger.Info(ctx, "Scheduled backup registration removed")

	return true, nil
}

// removeUnitFile deletes one unit definition, tolerating its absence.
func (m *Manager) removeUnitFile(ctx context.Context, unit string) error {
	path := filepath.Join(m.unitFileDir, unit)

	err := os.Remove(path)
	if err == nil {
		logger.InfoKV(ctx, "Removed unit file", "path", path)
		return nil
	}

	if errors.Is(err, os.ErrNotExist) {
		return nil
	}

	return err
}
