package devices

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tonelab/pitchtrack/internal/pitch"
)

// Command creates the devices command, which lists available capture
// devices.
func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "devices",
		Short: "List available audio capture devices",
		RunE: func(cmd *cobra.Command, args []string) error {
			infos := pitch.ListInputDevices()
			if len(infos) == 0 {
				fmt.Println("No capture devices found")
				return nil
			}
			for _, info := range infos {
				marker := " "
				if info.IsDefault {
					marker = "*"
				}
				fmt.Printf("%s %d: %s [%s]\n", marker, info.Index, info.Name, info.ID)
			}
			return nil
		},
	}
	return cmd
}
