package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Styles shared by the summary blocks.
//
//nolint:gochecknoglobals // Render-only styles, never mutated.
var (
	titleStyle   = lipgloss.NewStyle().Bold(true)
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	mutedStyle   = lipgloss.NewStyle().Faint(true)
)

// SoftWarning is one missing optional tool surfaced to the operator.
type SoftWarning struct {
	// Tool is the executable that was not found.
	Tool string
	// Purpose says which runtime feature needs it.
	Purpose string
	// Remedy is the suggested package-manager command.
	Remedy string
}

// InstallSummary renders the closing block of a successful installation.
func InstallSummary(version, binaryPath, aliasPath string, warnings []SoftWarning) string {
	var b strings.Builder

	b.WriteString(successStyle.Render(fmt.Sprintf("SiteKeeper %s installed", version)))
	b.WriteString("\n")
	b.WriteString(fmt.Sprintf("  binary: %s\n", binaryPath))
	b.WriteString(fmt.Sprintf("  alias:  %s\n", aliasPath))

	if len(warnings) == 0 {
		return b.String()
	}

	b.WriteString("\n")
	b.WriteString(warningStyle.Render("Optional tools missing (backup features will need them):"))
	b.WriteString("\n")

	for _, w := range warnings {
		b.WriteString(fmt.Sprintf("  %s — %s\n", w.Tool, w.Purpose))
		b.WriteString(mutedStyle.Render(fmt.Sprintf("    install with: %s", w.Remedy)))
		b.WriteString("\n")
	}

	return b.String()
}

// UninstallSummary renders the closing block of an uninstall run.
func UninstallSummary(binaryPath string, scheduledTaskRemoved bool) string {
	var b strings.Builder

	b.WriteString(successStyle.Render("SiteKeeper uninstalled"))
	b.WriteString("\n")
	b.WriteString(fmt.Sprintf("  removed: %s\n", binaryPath))

	if scheduledTaskRemoved {
		b.WriteString("  removed: scheduled backup timer and service\n")
	}

	return b.String()
}

// RetainedStateNotice lists what uninstall deliberately leaves behind.
// Removing user data is never done automatically.
func RetainedStateNotice() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("The following was NOT removed:"))
	b.WriteString("\n")

	items := []struct {
		what   string
		remedy string
	}{
		{"data directory (/var/lib/sitekeeper)", "rm -rf /var/lib/sitekeeper"},
		{"backups already uploaded to cloud storage", "remove them with your storage provider's tooling"},
		{"log files (/var/log/sitekeeper)", "rm -rf /var/log/sitekeeper"},
		{"stored cloud credentials (~/.aws)", "remove the sitekeeper profile from your credentials file"},
	}

	for _, item := range items {
		b.WriteString(fmt.Sprintf("  - %s\n", item.what))
		b.WriteString(mutedStyle.Render(fmt.Sprintf("      to remove manually: %s", item.remedy)))
		b.WriteString("\n")
	}

	return b.String()
}
