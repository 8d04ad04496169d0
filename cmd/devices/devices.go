package devices

import (
	"github.com/spf13/cobra"

	"github.com/deeplyinc/homeaudio-go/internal/analysis"
)

// Command creates a command that lists audio capture devices.
func Command() *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List audio capture devices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return analysis.ListAudioDevices(cmd.OutOrStdout())
		},
	}
}
