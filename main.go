// SPDX-License-Identifier: MIT
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"spectra/cmd"
	"spectra/internal/capture"
	"spectra/internal/config"
	"spectra/internal/engine"
	applog "spectra/internal/log"
	"spectra/internal/offline"
	"spectra/internal/telemetry"
	"spectra/internal/transport"
	"spectra/internal/transport/udp"
	"spectra/pkg/build"
)

func main() {
	if err := run(); err != nil {
		applog.Fatalf("%v", err)
	}
}

func run() error {
	if err := build.Initialize(); err != nil {
		return err
	}

	// One thread for the capture callback, one for dispatch and I/O.
	runtime.GOMAXPROCS(2)

	cfg, err := cmd.ParseArgs()
	if err != nil {
		return err
	}

	if cfg.Debug {
		applog.SetLevel(applog.LevelDebug)
	} else if level, ok := applog.ParseLevel(cfg.LogLevel); ok {
		applog.SetLevel(level)
	}

	switch cfg.Command {
	case "list":
		if err := capture.Initialize(); err != nil {
			return err
		}
		defer capture.Terminate()
		return capture.ListDevices(os.Stdout)

	case "analyze":
		summary, err := offline.Analyze(cfg.AnalyzeFile, offline.Options{
			FFTSize: cfg.Analysis.FFTSize,
			Window:  cfg.Analysis.WindowFunction,
		})
		if err != nil {
			return err
		}
		summary.WriteText(os.Stdout)
		return nil

	case "run":
		return runAnalysis(cfg)
	}

	// Help and version output land here with no command set.
	return nil
}

// runAnalysis owns the live pipeline: capture, engine, transports and
// shutdown ordering. Deferred teardown runs in reverse, so transports
// stop before the engine and the engine before PortAudio terminates.
func runAnalysis(cfg *config.Config) error {
	info := build.GetBuildFlags()
	applog.Infof("%s %s (%s)", info.Name, info.Version, info.Commit)

	if err := capture.Initialize(); err != nil {
		return err
	}
	defer capture.Terminate()

	// Telemetry binds the global meter provider, so it must be up
	// before the engine creates its instruments.
	var metricsHandler http.Handler
	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.Init(info.Name, info.Version)
		if err != nil {
			return err
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := shutdown(ctx); err != nil {
				applog.Warnf("telemetry shutdown failed: %v", err)
			}
		}()
		metricsHandler = telemetry.Handler()
	}

	eng := engine.New(capture.NewPortAudio())
	defer eng.Close()

	var sinks []transport.Transport
	if cfg.Transport.WebSocketEnabled {
		ws, err := transport.NewWebSocket(cfg.Transport.WebSocketAddr, metricsHandler)
		if err != nil {
			return err
		}
		defer ws.Close()
		sinks = append(sinks, ws)
	}
	if cfg.Debug {
		sinks = append(sinks, transport.NewLoggingTransport())
	}

	for _, sink := range sinks {
		sub := eng.Subscribe(func(r engine.Result) {
			if err := sink.Send(r); err != nil {
				applog.Warnf("transport send failed: %v", err)
			}
		})
		defer sub.Cancel()
	}

	// Fatal engine errors (device disconnect) end the run.
	engineFailed := make(chan error, 1)
	errSub := eng.SubscribeErrors(func(err error) {
		applog.Errorf("engine error: %v", err)
		select {
		case engineFailed <- err:
		default:
		}
	})
	defer errSub.Cancel()

	var publisher *udp.Publisher
	if cfg.Transport.UDPEnabled {
		sender, err := udp.NewSender(cfg.Transport.UDPTargetAddress)
		if err != nil {
			return err
		}
		defer sender.Close()

		publisher, err = udp.NewPublisher(cfg.Transport.UDPSendInterval, sender, eng)
		if err != nil {
			return err
		}
	}

	if err := eng.Start(engineConfig(cfg)); err != nil {
		return err
	}
	defer func() {
		if err := eng.Stop(); err != nil {
			applog.Warnf("engine stop failed: %v", err)
		}
	}()

	if publisher != nil {
		publisher.Start()
		defer publisher.Stop()
	}

	if cfg.Recording.Enabled {
		if err := eng.StartRecording(cfg.Recording.OutputFile); err != nil {
			return err
		}
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)
	applog.Infof("analyzing; press ctrl+c to stop")

	select {
	case <-done:
	case err := <-engineFailed:
		return fmt.Errorf("analysis failed: %w", err)
	}

	if cfg.Recording.Enabled {
		if err := eng.StopRecording(); err != nil {
			applog.Warnf("failed to finalize recording: %v", err)
		} else {
			fmt.Printf("\nRecording saved to: %s\n", cfg.Recording.OutputFile)
		}
	}
	return nil
}

// engineConfig maps the application configuration onto one session.
func engineConfig(cfg *config.Config) engine.Config {
	return engine.Config{
		DeviceID:         cfg.Capture.InputDevice,
		SampleRate:       cfg.Capture.SampleRate,
		FramesPerBuffer:  cfg.Capture.FramesPerBuffer,
		Channels:         cfg.Capture.InputChannels,
		LowLatency:       cfg.Capture.LowLatency,
		FFTSize:          cfg.Analysis.FFTSize,
		WindowFunction:   cfg.Analysis.WindowFunction,
		SmoothingEnabled: cfg.Analysis.SmoothingEnabled,
		SmoothingFactor:  cfg.Analysis.SmoothingFactor,
		DownsampleBins:   cfg.Analysis.DownsampleBins,
		EmitInterval:     time.Second / time.Duration(cfg.Analysis.EmitRateHz),
		RingFrames:       cfg.Analysis.RingFrames,
	}
}
