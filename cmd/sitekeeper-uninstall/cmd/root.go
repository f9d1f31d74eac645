package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sitekeeper/sitekeeper-setup/internal/config"
	"github.com/sitekeeper/sitekeeper-setup/internal/logger"
	"github.com/sitekeeper/sitekeeper-setup/internal/service/uninstaller"
	"github.com/sitekeeper/sitekeeper-setup/internal/version"
)

var (
	// configPath to the configuration YAML file.
	configPath string

	// rootCmd represents the base command for uninstalling SiteKeeper.
	rootCmd = &cobra.Command{
		Use:   "sitekeeper-uninstall",
		Short: "Remove the SiteKeeper backup agent from this host",
		Long: "Removes the installed binary, its 'sk' alias and the scheduled " +
			"backup registration. Data, logs, off-host backups and stored " +
			"credentials are kept and listed for manual removal.",
		Args: cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			options := &uninstaller.Options{
				ConfigPath: configPath,
			}

			return uninstaller.Run(ctx, options)
		},
	}
)

// Execute runs the sitekeeper-uninstall CLI and exits with non-zero status on error.
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
