package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"vizbridge/internal/config"
	applog "vizbridge/internal/log"
	"vizbridge/pkg/bitint"
	"vizbridge/pkg/build"
)

// ParseArgs builds the CLI, executes it against os.Args, and returns the
// resolved configuration. The root command runs the capture agent; "view"
// attaches a render surface to a running agent; "list" prints the available
// input devices. Precedence: defaults < config file < environment < flags.
func ParseArgs() (*config.Config, error) {
	buildInfo := build.GetBuildFlags()

	// The config file must load before flag binding so flags can default to
	// (and override) file values, so --config is scanned out ahead of cobra.
	options, err := config.Load(configPathFromArgs(os.Args[1:]))
	if err != nil {
		return nil, err
	}

	rootCmd := &cobra.Command{
		Use:           buildInfo.Name,
		Short:         buildInfo.Description,
		Version:       buildInfo.Version,
		SilenceErrors: true,
		SilenceUsage:  true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd:   true,
			DisableDescriptions: true,
			DisableNoDescFlag:   true,
			HiddenDefaultCmd:    true,
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			options.Command = ""
			return nil
		},
	}

	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List available audio input devices",
		Run: func(cmd *cobra.Command, args []string) {
			options.Command = "list"
		},
	}
	rootCmd.AddCommand(listCmd)

	viewCmd := &cobra.Command{
		Use:   "view",
		Short: "Attach a render surface to a running capture agent",
		Run: func(cmd *cobra.Command, args []string) {
			options.Command = "view"
		},
	}
	viewCmd.Flags().StringVarP(&options.Session.PeerURL, "url", "u", options.Session.PeerURL,
		"Capture agent WebSocket URL, e.g. ws://127.0.0.1:8765/session")
	rootCmd.AddCommand(viewCmd)

	// Capture configuration
	rootCmd.PersistentFlags().IntVarP(&options.Audio.InputDevice, "device", "d", options.Audio.InputDevice,
		"Input device ID. Use the 'list' command to see available devices.")
	rootCmd.PersistentFlags().IntVarP(&options.Audio.Channels, "channels", "c", options.Audio.Channels,
		"Number of channels to capture (1=mono, 2=stereo)")
	rootCmd.PersistentFlags().Float64VarP(&options.Audio.SampleRate, "sample-rate", "s", options.Audio.SampleRate,
		"Sample rate, measured in Hertz (Hz)")
	rootCmd.PersistentFlags().IntVarP(&options.Audio.FFTSize, "fft-size", "f", options.Audio.FFTSize,
		"Analysis window length in samples (power of two)")
	rootCmd.PersistentFlags().BoolVarP(&options.Audio.LowLatency, "low-latency", "l", options.Audio.LowLatency,
		"Use low latency mode for real-time processing")
	rootCmd.PersistentFlags().BoolVar(&options.Demo, "demo", options.Demo,
		"Serve synthetic frames instead of capturing a live device")

	// Session configuration
	rootCmd.PersistentFlags().StringVarP(&options.Session.ListenAddr, "addr", "a", options.Session.ListenAddr,
		"WebSocket listen address for render surfaces")

	// Recording configuration
	rootCmd.PersistentFlags().BoolVarP(&options.Recording.Enabled, "record", "r", options.Recording.Enabled,
		"Record captured input to a WAV file")
	rootCmd.PersistentFlags().StringVarP(&options.Recording.OutputFile, "output", "o", options.Recording.OutputFile,
		"Recording file name. Default is recording-MM-DD-YYYY-HHMMSS.wav")

	// Debug configuration
	rootCmd.PersistentFlags().BoolVarP(&options.Debug, "verbose", "v", options.Debug,
		"Show verbose output")
	rootCmd.PersistentFlags().String("config", "", "Path to a YAML configuration file")

	rootCmd.SetArgs(os.Args[1:])
	if err := rootCmd.Execute(); err != nil {
		return nil, err
	}

	// A flag-supplied FFT size bypasses config validation, so normalize it
	// here rather than failing deep in the capture path.
	if !bitint.IsPowerOfTwo(options.Audio.FFTSize) {
		rounded := bitint.NextPowerOfTwo(options.Audio.FFTSize)
		applog.Warnf("CLI: Rounding fft-size %d up to %d", options.Audio.FFTSize, rounded)
		options.Audio.FFTSize = rounded
	}

	return options, nil
}

func configPathFromArgs(args []string) string {
	for i, a := range args {
		if a == "--config" && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}
