package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the settings shared by the setup binaries.
type Config struct {
	// Version is the release to install, or the sentinel "latest".
	Version string `yaml:"version"`
	// InstallDir is the directory receiving the binary and its alias.
	InstallDir string `yaml:"install_dir"`
	// Repository is the GitHub source in "owner/name" form.
	Repository string `yaml:"repository"`
	// SkipInit disables the post-install initialization prompt.
	SkipInit bool `yaml:"skip_init"`
}

const (
	// DefaultConfigFilename is the optional settings file consulted before
	// the environment.
	DefaultConfigFilename = "/etc/sitekeeper/setup.yaml"

	// DefaultVersion installs the newest published release.
	DefaultVersion = "latest"

	// DefaultInstallDir is the standard binary directory on the supported platforms.
	DefaultInstallDir = "/usr/local/bin"

	// DefaultRepository is the canonical release source.
	DefaultRepository = "sitekeeper/sitekeeper"

	// BinaryName is the installed artifact's filename.
	BinaryName = "sitekeeper"

	// AliasName is the convenience symlink created next to the binary.
	AliasName = "sk"

	// Environment variables overriding the settings above.
	EnvVersion    = "SITEKEEPER_VERSION"
	EnvInstallDir = "SITEKEEPER_INSTALL_DIR"
	EnvRepository = "SITEKEEPER_REPO"
	EnvSkipInit   = "SITEKEEPER_SKIP_INIT"
	EnvLogLevel   = "SITEKEEPER_LOG_LEVEL"

	// DefaultFilePermissions is the default file permission for config files.
	DefaultFilePermissions = 0o600
)

var (
	// errConfigIsNotSet is returned when a nil configuration is provided.
	errConfigIsNotSet = errors.New("configuration is not set")
	// errBadRepository is returned when the repository is not "owner/name".
	errBadRepository = errors.New("repository must be in owner/name form")
	// errRelativeInstallDir is returned when the install directory is not absolute.
	errRelativeInstallDir = errors.New("install directory must be an absolute path")
)

// Load builds the effective configuration: defaults, then the optional YAML
// settings file, then environment overrides. A missing settings file is not
// an error.
func Load(path string) (*Config, error) {
	cfg := &Config{
		Version:    DefaultVersion,
		InstallDir: DefaultInstallDir,
		Repository: DefaultRepository,
	}

	if path == "" {
		path = DefaultConfigFilename
	}

	contents, err := os.ReadFile(filepath.Clean(path))
	if err == nil {
		if err = yaml.Unmarshal(contents, cfg); err != nil {
			return nil, fmt.Errorf("unmarshal settings: %w", err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("read settings: %w", err)
	}

	cfg.applyEnvironment()

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save writes the configuration to the provided path.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if path == "" {
		path = DefaultConfigFilename
	}

	if err := Validate(cfg); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	// Restrict permissions.
	if err := os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}

	return nil
}

// Validate checks the provided settings for required fields and formatting,
// filling defaults for anything left empty.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if cfg.Version == "" {
		cfg.Version = DefaultVersion
	}

	if cfg.InstallDir == "" {
		cfg.InstallDir = DefaultInstallDir
	}

	if !filepath.IsAbs(cfg.InstallDir) {
		return fmt.Errorf("%q: %w", cfg.InstallDir, errRelativeInstallDir)
	}

	if cfg.Repository == "" {
		cfg.Repository = DefaultRepository
	}

	if _, _, err := cfg.OwnerAndName(); err != nil {
		return err
	}

	return nil
}

// applyEnvironment overlays the SITEKEEPER_* environment variables onto cfg.
func (c *Config) applyEnvironment() {
	if v := strings.TrimSpace(os.Getenv(EnvVersion)); v != "" {
		c.Version = v
	}

	if v := strings.TrimSpace(os.Getenv(EnvInstallDir)); v != "" {
		c.InstallDir = v
	}

	if v := strings.TrimSpace(os.Getenv(EnvRepository)); v != "" {
		c.Repository = v
	}

	if v := strings.TrimSpace(os.Getenv(EnvSkipInit)); v != "" {
		c.SkipInit = true
	}
}

// OwnerAndName splits Repository into its owner and name parts.
func (c *Config) OwnerAndName() (string, string, error) {
	owner, name, found := strings.Cut(c.Repository, "/")
	if !found || owner == "" || name == "" {
		return "", "", fmt.Errorf("%q: %w", c.Repository, errBadRepository)
	}

	return owner, name, nil
}

// BinaryPath returns the full path of the installed binary.
func (c *Config) BinaryPath() string {
	return filepath.Join(c.InstallDir, BinaryName)
}

// AliasPath returns the full path of the alias symlink.
func (c *Config) AliasPath() string {
	return filepath.Join(c.InstallDir, AliasName)
}
