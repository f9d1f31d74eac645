// Package ui renders the operator-facing summary blocks the setup binaries
// print at the end of a run: the install summary, soft-dependency warnings
// and the retained-state notice. Diagnostics go through the logger; this
// package only styles the final human-readable output.
package ui
