// Package deps probes the host for external executables the installed
// program relies on. Probing returns a structured present/absent result per
// dependency instead of ad-hoc shell checks.
//
// Hard dependencies are required by the installation procedure itself and
// their absence is fatal; soft dependencies only matter for the installed
// program's later runtime features (backup, restore, upload) and their
// absence is surfaced as a warning with a remedy.
package deps
