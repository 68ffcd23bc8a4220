package listen

import (
	"github.com/spf13/cobra"

	"github.com/tonelab/pitchtrack/internal/analysis"
	"github.com/tonelab/pitchtrack/internal/conf"
)

// Command creates the listen command, which runs pitch detection on live
// microphone input until interrupted.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "listen",
		Short: "Detect pitch and note events from the microphone in real time",
		RunE: func(cmd *cobra.Command, args []string) error {
			return analysis.Realtime(settings)
		},
	}
	return cmd
}
