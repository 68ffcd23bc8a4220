package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/tonelab/pitchtrack/cmd"
	"github.com/tonelab/pitchtrack/internal/conf"
	"github.com/tonelab/pitchtrack/internal/logging"
)

func main() {
	logging.Init(slog.LevelInfo)

	settings, err := conf.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading configuration: %v\n", err)
		os.Exit(1)
	}

	rootCmd := cmd.RootCommand(settings)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
