// SPDX-License-Identifier: MIT
// Package cmd parses the command line into a resolved configuration.
// Precedence: built-in defaults, then the YAML file, then SPECTRA_*
// environment variables, then flags.
package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"spectra/internal/config"
	"spectra/pkg/build"
)

// ParseArgs loads the configuration and applies command-line flags on
// top. The returned Command field selects what main should do: "run",
// "list", "analyze", or empty for help/version output.
func ParseArgs() (*config.Config, error) {
	buildInfo := build.GetBuildFlags()

	cfg, err := config.LoadConfig(os.Getenv("SPECTRA_CONFIG"))
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
			cfg.Command = "run"
			return nil
		},
	}
	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List available capture devices",
		Run: func(cmd *cobra.Command, args []string) {
			cfg.Command = "list"
		},
	}
	rootCmd.AddCommand(listCmd)

	analyzeCmd := &cobra.Command{
		Use:   "analyze <file>",
		Short: "Analyze a WAV file offline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg.Command = "analyze"
			cfg.AnalyzeFile = args[0]
			return nil
		},
	}
	rootCmd.AddCommand(analyzeCmd)

	pf := rootCmd.PersistentFlags()

	// Capture.
	pf.IntVarP(&cfg.Capture.InputDevice, "device", "d", cfg.Capture.InputDevice,
		"Input device ID; use the list command to see available devices")
	pf.Float64VarP(&cfg.Capture.SampleRate, "sample-rate", "s", cfg.Capture.SampleRate,
		"Sample rate in Hertz (Hz)")
	pf.IntVarP(&cfg.Capture.InputChannels, "channels", "c", cfg.Capture.InputChannels,
		"Input channels to capture; more than one is averaged to mono")
	pf.IntVarP(&cfg.Capture.FramesPerBuffer, "frames-per-buffer", "b", cfg.Capture.FramesPerBuffer,
		"Capture buffer size in frames (affects latency)")
	pf.BoolVarP(&cfg.Capture.LowLatency, "low-latency", "l", cfg.Capture.LowLatency,
		"Request the device's low-latency setting")

	// Analysis.
	pf.IntVarP(&cfg.Analysis.FFTSize, "fft-size", "f", cfg.Analysis.FFTSize,
		"FFT size: 512, 1024, 2048 or 4096")
	pf.StringVarP(&cfg.Analysis.WindowFunction, "window", "w", cfg.Analysis.WindowFunction,
		"Window function: hann, hamming, blackman or rectangular")
	pf.Float64Var(&cfg.Analysis.SmoothingFactor, "smoothing", cfg.Analysis.SmoothingFactor,
		"Smoothing factor in [0, 1]; higher tracks slower")
	pf.IntVar(&cfg.Analysis.DownsampleBins, "downsample", cfg.Analysis.DownsampleBins,
		"Average the spectrum into this many buckets (0 keeps native bins)")
	pf.IntVar(&cfg.Analysis.EmitRateHz, "emit-rate", cfg.Analysis.EmitRateHz,
		"Result emissions per second")

	// Recording.
	pf.BoolVarP(&cfg.Recording.Enabled, "record", "r", cfg.Recording.Enabled,
		"Record the capture session to a WAV file")
	pf.StringVarP(&cfg.Recording.OutputFile, "output", "o", cfg.Recording.OutputFile,
		"Recording path; default is recording-DD-MM-YYYY-HHMMSS.wav")

	// Transports.
	pf.BoolVar(&cfg.Transport.WebSocketEnabled, "ws", cfg.Transport.WebSocketEnabled,
		"Serve analysis results over WebSocket")
	pf.StringVar(&cfg.Transport.WebSocketAddr, "ws-addr", cfg.Transport.WebSocketAddr,
		"WebSocket listen address")
	pf.BoolVar(&cfg.Transport.UDPEnabled, "udp", cfg.Transport.UDPEnabled,
		"Publish binary result packets over UDP")
	pf.StringVar(&cfg.Transport.UDPTargetAddress, "udp-target", cfg.Transport.UDPTargetAddress,
		"UDP target host:port")

	// Telemetry and debugging.
	pf.BoolVar(&cfg.Telemetry.Enabled, "telemetry", cfg.Telemetry.Enabled,
		"Export engine metrics on /metrics (served from the WebSocket listener)")
	pf.BoolVarP(&cfg.Debug, "verbose", "v", cfg.Debug,
		"Show verbose output")

	rootCmd.SetArgs(os.Args[1:])
	if err := rootCmd.Execute(); err != nil {
		return nil, err
	}

	// Flags can introduce values the file and env validation never saw.
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}
