package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tabladeV/manager.tabla-sub002/cmd/agent"
	"github.com/tabladeV/manager.tabla-sub002/cmd/inbox"
	"github.com/tabladeV/manager.tabla-sub002/cmd/notify"
	"github.com/tabladeV/manager.tabla-sub002/cmd/session"
	"github.com/tabladeV/manager.tabla-sub002/cmd/status"
	"github.com/tabladeV/manager.tabla-sub002/cmd/worker"
	"github.com/tabladeV/manager.tabla-sub002/internal/buildinfo"
	"github.com/tabladeV/manager.tabla-sub002/internal/conf"
	"github.com/tabladeV/manager.tabla-sub002/internal/logger"
)

// RootCommand creates and returns the root command. Subcommands share one
// Settings value that is filled in by PersistentPreRunE.
func RootCommand(build *buildinfo.Context) *cobra.Command {
	settings := conf.Defaults()
	var centralLogger *logger.CentralLogger

	rootCmd := &cobra.Command{
		Use:          "tabla-push",
		Short:        "Tabla back-office push notification agent",
		SilenceUsage: true,
	}

	// Set up the global flags for the root command.
	if err := setupFlags(rootCmd); err != nil {
		fmt.Fprintf(os.Stderr, "error setting up flags: %v\n", err)
		os.Exit(1)
	}

	versionCmd := versionCommand(build)

	subcommands := []*cobra.Command{
		agent.Command(settings, build),
		session.Command(settings),
		worker.Command(settings),
		notify.Command(settings),
		inbox.Command(settings),
		status.Command(settings),
		versionCmd,
	}

	rootCmd.AddCommand(subcommands...)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		// Skip setup for the version command
		if cmd.Name() == versionCmd.Name() {
			return nil
		}

		cl, err := initialize(cmd, settings)
		if err != nil {
			return err
		}
		centralLogger = cl
		return nil
	}

	rootCmd.PersistentPostRunE = func(cmd *cobra.Command, args []string) error {
		if centralLogger == nil {
			return nil
		}
		return centralLogger.Close()
	}

	return rootCmd
}

// initialize loads the configuration, applies command line overrides and
// installs the global logger
func initialize(cmd *cobra.Command, settings *conf.Settings) (*logger.CentralLogger, error) {
	loaded, err := conf.Load(viper.GetString("config"))
	if err != nil {
		return nil, err
	}

	// Command line arguments take precedence over file and environment
	flags := cmd.Flags()
	if flags.Changed("debug") {
		loaded.Debug = viper.GetBool("debug")
	}
	if flags.Changed("platform") {
		loaded.Platform.Name = viper.GetString("platform")
	}
	if err := conf.ValidateSettings(loaded); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}

	if loaded.Debug {
		loaded.Logging.DefaultLevel = "debug"
		if loaded.Logging.Console != nil {
			loaded.Logging.Console.Level = "debug"
		}
	}

	*settings = *loaded

	cl, err := logger.NewCentralLogger(&settings.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logging: %w", err)
	}
	logger.SetGlobal(cl)

	return cl, nil
}

// setupFlags defines flags that are global to the command line interface
func setupFlags(rootCmd *cobra.Command) error {
	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to the config file (default: search the standard locations)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug output")
	rootCmd.PersistentFlags().String("platform", "", "Platform to run as: auto, web, ios or android")

	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		return fmt.Errorf("error binding flags: %w", err)
	}

	return nil
}

func versionCommand(build *buildinfo.Context) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), build.String())
			return err
		},
	}
}
