// SPDX-License-Identifier: MIT
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"beatlight/internal/build"
	"beatlight/internal/config"
)

// ParseArgs parses the command line and returns a Config ready for either a
// one-off Command (e.g. "list") or the main pipeline run. Grounded on the
// teacher's ParseArgs: a cobra root command carrying the pipeline flags plus
// a "list" subcommand, built from the same buildInfo/NewConfig pattern.
func ParseArgs() (*config.Config, error) {
	buildInfo := build.GetBuildFlags()

	var configPath string
	options := config.NewConfig()

	rootCmd := &cobra.Command{
		Use:           buildInfo.Name + " [output_snapshot_path]",
		Short:         "Real-time percussive onset detection and lighting prediction",
		Version:       buildInfo.Version,
		Args:          cobra.MaximumNArgs(1),
		SilenceErrors: true,
		SilenceUsage:  true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd:   true,
			DisableDescriptions: true,
			DisableNoDescFlag:   true,
			HiddenDefaultCmd:    true,
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if configPath != "" {
				loaded, err := config.Load(configPath)
				if err != nil {
					return err
				}
				loaded.Command = options.Command
				loaded.OutputSnapshotPath = options.OutputSnapshotPath
				loaded.TimeoutSeconds = options.TimeoutSeconds
				*options = *loaded
				options.Validate()
			} else {
				options.Validate()
			}
			if len(args) == 1 {
				options.OutputSnapshotPath = args[0]
			}
			return nil
		},
	}

	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List available capture devices",
		RunE: func(cmd *cobra.Command, args []string) error {
			options.Command = "list"
			return nil
		},
	}
	rootCmd.AddCommand(listCmd)

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "", "",
		"Path to a YAML config file overlaying the built-in defaults")
	rootCmd.PersistentFlags().StringVarP(&options.Audio.DeviceSubstring, "device", "d", options.Audio.DeviceSubstring,
		"Substring matching the input device name (empty selects the system default)")
	rootCmd.PersistentFlags().Float64VarP(&options.Audio.SampleRate, "sample-rate", "s", options.Audio.SampleRate,
		"Capture sample rate in Hertz")
	rootCmd.PersistentFlags().IntVarP(&options.Audio.HopSize, "frames-per-buffer", "b", options.Audio.HopSize,
		"Frames per capture buffer / hop size (affects latency)")
	rootCmd.PersistentFlags().IntVarP(&options.Audio.FrameSize, "fft-size", "f", options.Audio.FrameSize,
		"FFT/window frame size, must be a power of two")
	rootCmd.PersistentFlags().Float64VarP(&options.Audio.RMSGate, "rms-gate", "", options.Audio.RMSGate,
		"RMS amplitude below which a hop is dropped as silence before reaching the graph")
	rootCmd.PersistentFlags().IntVarP(&options.DSP.MelBands, "mel-bands", "m", options.DSP.MelBands,
		"Number of mel filterbank bands")
	rootCmd.PersistentFlags().StringVarP(&options.Logging.Dir, "log-dir", "", options.Logging.Dir,
		"Directory for the hit/prediction JSON-lines log")
	rootCmd.PersistentFlags().IntVarP(&options.TimeoutSeconds, "timeout", "t", options.TimeoutSeconds,
		"Seconds the pipeline runs before a clean stop (must be > 0; otherwise reset to 20)")

	rootCmd.SetArgs(os.Args[1:])
	if err := rootCmd.Execute(); err != nil {
		return nil, fmt.Errorf("cmd: %w", err)
	}

	return options, nil
}
