package file

import (
	"github.com/spf13/cobra"

	"github.com/tonelab/pitchtrack/internal/analysis"
	"github.com/tonelab/pitchtrack/internal/conf"
)

// Command creates the file command, which runs pitch detection over a
// WAV file instead of live capture.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "file [wav file]",
		Short: "Detect pitch and note events in a WAV file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return analysis.File(settings, args[0])
		},
	}
	return cmd
}
