package config

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/tonelab/pitchtrack/internal/conf"
)

// Command creates the config command, which prints the effective
// settings and can write them to the user config file.
func Command(settings *conf.Settings) *cobra.Command {
	var save bool

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show the effective configuration, optionally saving it",
		RunE: func(cmd *cobra.Command, args []string) error {
			if save {
				path, err := conf.DefaultConfigPath()
				if err != nil {
					return err
				}
				if err := conf.Save(settings, path); err != nil {
					return err
				}
				fmt.Printf("Configuration written to %s\n", path)
				return nil
			}

			data, err := yaml.Marshal(settings)
			if err != nil {
				return err
			}
			fmt.Print(string(data))
			return nil
		},
	}
	cmd.Flags().BoolVar(&save, "save", false, "Write the effective configuration to the user config file")
	return cmd
}
