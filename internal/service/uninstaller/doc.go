// Package uninstaller removes an installed SiteKeeper binary, its alias
// symlink and the scheduled-backup registration. User data, logs, off-host
// backups and stored credentials are deliberately retained and listed for
// manual removal.
package uninstaller
