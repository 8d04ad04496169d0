package file

import (
	"github.com/spf13/cobra"

	"github.com/deeplyinc/homeaudio-go/internal/analysis"
	"github.com/deeplyinc/homeaudio-go/internal/conf"
)

// Command creates a new file command for analyzing a single audio file.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "file [input.wav|input.flac]",
		Short: "Analyze an audio file",
		Long:  "Analyze a 16 kHz mono 16-bit WAV or FLAC file and print the detected events.",
		Args:  cobra.ExactArgs(1), // the command expects exactly one argument
		RunE: func(cmd *cobra.Command, args []string) error {
			settings.InputFile = args[0]
			return analysis.FileAnalysis(cmd.Context(), settings, cmd.OutOrStdout())
		},
	}

	// Set up flags specific to the 'file' command
	cmd.Flags().Bool("realtime", false, "Pace playback at real time")
	cmd.Flags().Bool("mqtt", false, "Publish detections to MQTT")
	cmd.Flags().BoolVar(&settings.UseStub, "stub", false, "Use the fixed-score stub detector instead of the model")

	conf.MarkFlag(cmd.Flags(), "realtime", "audio.realtime")
	conf.MarkFlag(cmd.Flags(), "mqtt", "mqtt.enabled")

	return cmd
}
