package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sitekeeper/sitekeeper-setup/internal/config"
	"github.com/sitekeeper/sitekeeper-setup/internal/logger"
	"github.com/sitekeeper/sitekeeper-setup/internal/service/installer"
	"github.com/sitekeeper/sitekeeper-setup/internal/version"
)

var (
	// configPath to the configuration YAML file.
	configPath string

	// rootCmd represents the base command for installing SiteKeeper.
	rootCmd = &cobra.Command{
		Use:   "sitekeeper-install",
		Short: "Download and install the SiteKeeper backup agent",
		Long: "Detects the host platform, resolves the requested release, " +
			"downloads and verifies the archive, installs the binary with its " +
			"'sk' alias and checks that the host tools SiteKeeper needs are present.",
		Args: cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			options := &installer.Options{
				ConfigPath: configPath,
			}

			return installer.Run(ctx, options)
		},
	}
)

// Execute runs the sitekeeper-install CLI and exits with non-zero status on error.
func Execute() {
	if level, ok := logger.ParseLogLevel(os.Getenv(config.EnvLogLevel)); ok {
		logger.SetLevel(level)
	}

	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	// Setup command flags with consistent naming and descriptions.
	rootCmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultConfigFilename, "path to configuration file")
}
