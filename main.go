package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"vizbridge/cmd"
	"vizbridge/internal/config"
	"vizbridge/internal/feature"
	applog "vizbridge/internal/log"
	"vizbridge/internal/session"
	"vizbridge/internal/source"
	"vizbridge/internal/transport"
	"vizbridge/internal/tui"
	"vizbridge/pkg/build"
)

// main dispatches between the three run modes:
//
//   - no command: run the capture agent. It serves the WebSocket session
//     endpoint, owns the sample source, and pushes frames to any attached
//     render surface.
//   - "view": attach a render surface to a running agent and draw the
//     terminal visualizer.
//   - "list": print the available audio input devices and exit.
func main() {
	build.Initialize()

	cfg, err := cmd.ParseArgs()
	if err != nil {
		applog.Fatalf("Main: %v", err)
	}
	applyLogLevel(cfg)

	switch cfg.Command {
	case "list":
		if err := source.Initialize(); err != nil {
			applog.Fatalf("Main: %v", err)
		}
		defer source.Terminate()
		if err := source.ListDevices(); err != nil {
			applog.Fatalf("Main: %v", err)
		}

	case "view":
		if err := runSurface(cfg); err != nil {
			applog.Fatalf("Main: %v", err)
		}

	default:
		if err := runAgent(cfg); err != nil {
			applog.Fatalf("Main: %v", err)
		}
	}
}

func applyLogLevel(cfg *config.Config) {
	if cfg.Debug {
		applog.SetLevel(applog.LevelDebug)
		return
	}
	if level, ok := applog.ParseLevel(cfg.LogLevel); ok {
		applog.SetLevel(level)
	}
}

// runAgent runs the capture agent until interrupted.
func runAgent(cfg *config.Config) error {
	if err := source.Initialize(); err != nil {
		return err
	}
	defer source.Terminate()

	hub := transport.NewHub()
	defer hub.Close()
	hub.Listen(cfg.Session.ListenAddr)

	coordinator := session.NewCapture(hub, session.CaptureConfig{
		Version:          build.GetBuildFlags().Version,
		OpenSource:       sourceOpener(cfg),
		FrameInterval:    cfg.Session.FrameInterval,
		AnnounceInterval: cfg.Session.AnnounceInterval,
		Extractor:        extractorConfig(cfg),
	})
	defer coordinator.Close()
	coordinator.Start()

	if cfg.Transport.UDPEnabled {
		sender, err := transport.NewUDPSender(cfg.Transport.UDPTargetAddress)
		if err != nil {
			return err
		}
		defer sender.Close()

		publisher, err := transport.NewFeaturePublisher(cfg.Transport.UDPSendInterval, sender, coordinator.LatestFeatures)
		if err != nil {
			return err
		}
		publisher.Start()
		defer publisher.Stop()
	}

	applog.Infof("Main: Capture agent listening on %s", cfg.Session.ListenAddr)

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)
	<-done

	applog.Infof("Main: Shutting down")
	return nil
}

// sourceOpener builds the coordinator's source factory. Demo mode serves
// synthetic frames; otherwise a live device is opened, with the recording tap
// attached when enabled.
func sourceOpener(cfg *config.Config) func() (source.Source, error) {
	return func() (source.Source, error) {
		if cfg.Demo {
			return source.NewSynthetic(cfg.Audio.FFTSize / 2), nil
		}

		src, err := source.OpenCapture(source.CaptureConfig{
			DeviceID:   cfg.Audio.InputDevice,
			SampleRate: cfg.Audio.SampleRate,
			FFTSize:    cfg.Audio.FFTSize,
			Channels:   cfg.Audio.Channels,
			LowLatency: cfg.Audio.LowLatency,
			Smoothing:  cfg.Audio.Smoothing,
		})
		if err != nil {
			return nil, err
		}

		if cfg.Recording.Enabled {
			filename := cfg.Recording.OutputFile
			if filename == "" {
				filename = "recording-" + time.Now().UTC().Format("02-01-2006-150405") + ".wav"
			}
			if err := src.StartRecording(filename); err != nil {
				applog.Warnf("Main: Recording disabled: %v", err)
			} else {
				applog.Infof("Main: Recording input to %s", filename)
			}
		}
		return src, nil
	}
}

// runSurface attaches a render surface to a running agent and blocks in the
// visualizer until the user quits.
func runSurface(cfg *config.Config) error {
	url := cfg.Session.PeerURL
	if url == "" {
		url = "ws://127.0.0.1:8765/session"
	}

	client, err := transport.Dial(url)
	if err != nil {
		return err
	}
	defer client.Close()

	bridge := session.NewBridge(client, session.BridgeConfig{
		ReadyInterval: cfg.Session.AnnounceInterval,
		AckTimeout:    cfg.Session.AckTimeout,
		Extractor:     extractorConfig(cfg),
	})
	defer bridge.Close()
	bridge.Start()

	return tui.StartVisualizer(bridge)
}

func extractorConfig(cfg *config.Config) feature.Config {
	return feature.Config{
		BassSplit:     cfg.Feature.BassSplit,
		MidSplit:      cfg.Feature.MidSplit,
		VolumeGain:    cfg.Feature.VolumeGain,
		BeatDecay:     cfg.Feature.BeatDecay,
		BeatThreshold: cfg.Feature.BeatThreshold,
		HistorySize:   cfg.Feature.HistorySize,
	}
}
