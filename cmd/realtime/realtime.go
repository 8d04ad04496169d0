package realtime

import (
	"github.com/spf13/cobra"

	"github.com/deeplyinc/homeaudio-go/internal/analysis"
	"github.com/deeplyinc/homeaudio-go/internal/conf"
)

// Command creates a new command for real-time audio analysis.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "realtime",
		Short: "Analyze audio in realtime mode",
		Long:  "Capture from a sound card and run the detector until interrupted.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return analysis.RealtimeAnalysis(cmd.Context(), settings)
		},
	}

	setupFlags(cmd, settings)

	return cmd
}

// setupFlags configures flags specific to the realtime command.
func setupFlags(cmd *cobra.Command, settings *conf.Settings) {
	cmd.Flags().String("source", "", "Audio capture source name or id substring (\"sysdefault\", \"USB Audio\", etc.)")
	cmd.Flags().Bool("api", false, "Enable the HTTP query API")
	cmd.Flags().String("listen", "", "Listen address of the HTTP query API")
	cmd.Flags().Bool("telemetry", false, "Enable the Prometheus metrics endpoint")
	cmd.Flags().Bool("mqtt", false, "Publish detections to MQTT")
	cmd.Flags().BoolVar(&settings.UseStub, "stub", false, "Use the fixed-score stub detector instead of the model")

	conf.MarkFlag(cmd.Flags(), "source", "audio.source")
	conf.MarkFlag(cmd.Flags(), "api", "webserver.enabled")
	conf.MarkFlag(cmd.Flags(), "listen", "webserver.listen")
	conf.MarkFlag(cmd.Flags(), "telemetry", "telemetry.enabled")
	conf.MarkFlag(cmd.Flags(), "mqtt", "mqtt.enabled")
}
