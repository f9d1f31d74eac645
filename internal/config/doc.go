// Package config defines the settings used by the setup binaries and
// provides helpers to load, validate and save them.
//
// Settings come from an optional YAML file and from environment variables;
// the environment always wins, since that is the surface operators script
// against. The Config type holds the requested version, the install
// directory, the source repository and the init-prompt switch.
package config
