// Command notouch runs the face-touch alert device: an HTTP API over a
// camera-fed KNN classifier that fires an alert when a hand nears the face.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const version = "0.1.0"

var configPath string

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "notouch",
		Short: "Face-touch alert device",
		Long: `notouch classifies camera frames against labeled examples and fires an
alert while a face touch is detected.

Train it with a few dozen frames per label, then start monitoring through
the HTTP API. Without a subcommand, notouch serves the API.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runServe,
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", os.Getenv("NOTOUCH_CONFIG"), "Path to YAML configuration file")

	rootCmd.AddCommand(newServeCmd(), newExamplesCmd())
	return rootCmd
}
