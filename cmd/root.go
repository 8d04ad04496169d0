// Package cmd defines the homeaudio command line.
package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/deeplyinc/homeaudio-go/cmd/devices"
	"github.com/deeplyinc/homeaudio-go/cmd/file"
	"github.com/deeplyinc/homeaudio-go/cmd/realtime"
	"github.com/deeplyinc/homeaudio-go/internal/buildinfo"
	"github.com/deeplyinc/homeaudio-go/internal/conf"
	"github.com/deeplyinc/homeaudio-go/internal/errors"
	"github.com/deeplyinc/homeaudio-go/internal/logger"
)

const sentryFlushTimeout = 2 * time.Second

// RootCommand creates and returns the root command. settings is filled in
// before any subcommand runs.
func RootCommand(settings *conf.Settings, build *buildinfo.Context) *cobra.Command {
	var configFile string
	var central *logger.CentralLogger

	rootCmd := &cobra.Command{
		Use:           "homeaudio",
		Short:         "Home audio event detector",
		Long:          "Detects coughs, sneezes and other household sound events in a 16 kHz audio stream.",
		Version:       build.String(),
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	// Set up the global flags for the root command.
	setupFlags(rootCmd, &configFile)

	devicesCmd := devices.Command()
	rootCmd.AddCommand(
		realtime.Command(settings),
		file.Command(settings),
		devicesCmd,
	)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		// Bind only the running command's flags; subcommands may map
		// different flags to the same key.
		if err := conf.BindFlags(viper.GetViper(), cmd.Flags()); err != nil {
			return err
		}

		loaded, err := conf.Load(configFile)
		if err != nil {
			return err
		}
		// Keep values subcommands set from their arguments.
		loaded.InputFile, loaded.UseStub = settings.InputFile, settings.UseStub
		*settings = *loaded

		central, err = initLogging(settings)
		if err != nil {
			return err
		}

		if cmd.Name() != devicesCmd.Name() {
			return initSentry(settings, build)
		}
		return nil
	}

	rootCmd.PersistentPostRunE = func(cmd *cobra.Command, args []string) error {
		if settings.Sentry.Enabled {
			errors.FlushSentry(sentryFlushTimeout)
		}
		if central != nil {
			return central.Close()
		}
		return nil
	}

	return rootCmd
}

// setupFlags defines flags that are global to the command line interface.
func setupFlags(rootCmd *cobra.Command, configFile *string) {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(configFile, "config", "c", "", "Path to config file (default searches standard locations)")
	flags.BoolP("debug", "d", false, "Enable debug output")
	flags.String("model", conf.DefaultModelPath, "Path to the .tflite event model")
	flags.Float64P("threshold", "t", conf.DefaultThreshold, "Confidence threshold for reported detections, between 0.0 and 1.0")
	flags.Int("threads", 0, "Interpreter threads, 0 picks a value from the CPU")
	flags.String("node", "", "Node name used in API responses and MQTT payloads")

	conf.MarkFlag(flags, "debug", "debug")
	conf.MarkFlag(flags, "model", "model.path")
	conf.MarkFlag(flags, "threshold", "detector.threshold")
	conf.MarkFlag(flags, "threads", "model.threads")
	conf.MarkFlag(flags, "node", "main.name")
}

// initLogging installs the global logger described by the settings.
func initLogging(settings *conf.Settings) (*logger.CentralLogger, error) {
	cfg := settings.Logging
	if settings.Debug {
		cfg.DefaultLevel = "debug"
		console := logger.ConsoleOutput{Enabled: true, Level: "debug"}
		cfg.Console = &console
	}

	central, err := logger.NewCentralLogger(&cfg)
	if err != nil {
		return nil, fmt.Errorf("error initializing logger: %w", err)
	}
	logger.SetGlobal(central)
	return central, nil
}

// initSentry enables error telemetry when configured.
func initSentry(settings *conf.Settings, build *buildinfo.Context) error {
	if !settings.Sentry.Enabled {
		return nil
	}
	if _, err := errors.InitSentry(settings.Sentry.DSN, build.Release(), settings.Debug); err != nil {
		return err
	}
	logger.Global().Module("main").Info("Error telemetry enabled", logger.String("release", build.Release()))
	return nil
}
