// Package platform maps the host operating system and machine architecture
// to the canonical tag used to select release artifacts.
//
// Only combinations on the fixed allow-list resolve; anything else is an
// error, never a silent fallback.
package platform
