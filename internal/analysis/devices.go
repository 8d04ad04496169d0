package analysis

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/deeplyinc/homeaudio-go/internal/audiocore/sources"
)

// ListAudioDevices writes the available capture devices to out. The name
// column is what the audio.source setting matches against.
func ListAudioDevices(out io.Writer) error {
	devices, err := sources.ListDevices()
	if err != nil {
		return err
	}
	if len(devices) == 0 {
		_, err := fmt.Fprintln(out, "No capture devices found")
		return err
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "INDEX\tNAME\tID\tDEFAULT")
	for _, d := range devices {
		def := ""
		if d.IsDefault {
			def = "*"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", d.Index, d.Name, d.ID, def)
	}
	return tw.Flush()
}
