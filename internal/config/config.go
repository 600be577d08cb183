// SPDX-License-Identifier: MIT
//
// Package config loads the application configuration: built-in defaults,
// optionally overridden by a YAML file, then by VIZBRIDGE_* environment
// variables, then validated. CLI flags are applied on top by the cmd layer.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	applog "vizbridge/internal/log"
	"vizbridge/pkg/bitint"
)

// Default tunables. Session timing defaults follow the protocol cadences:
// 2s presence re-announce and a 50ms (~20Hz) frame push.
const (
	DefaultListenAddr       = ":8765"
	DefaultSampleRate       = 44100
	DefaultFFTSize          = 1024
	DefaultChannels         = 1
	DefaultSmoothing        = 0.8
	DefaultFrameInterval    = 50 * time.Millisecond
	DefaultAnnounceInterval = 2 * time.Second
	DefaultAckTimeout       = 2 * time.Second
	DefaultUDPTarget        = "127.0.0.1:9090"
	DefaultUDPSendInterval  = 50 * time.Millisecond

	MinSampleRate = 8000
	MaxSampleRate = 192000
	MaxFFTSize    = 8192
)

// Config is the full runtime configuration.
type Config struct {
	Debug    bool   `yaml:"debug"`             // Verbose logging and debug features.
	LogLevel string `yaml:"log_level"`         // "debug", "info", "warn", "error".
	Command  string `yaml:"command,omitempty"` // One-off command ("list") or mode ("view"); empty runs the capture agent.
	Demo     bool   `yaml:"demo"`              // Use the synthetic source instead of live capture.

	Audio     AudioConfig     `yaml:"audio"`     // Capture device and analysis window settings.
	Feature   FeatureConfig   `yaml:"feature"`   // Perceptual feature extraction tunables.
	Session   SessionConfig   `yaml:"session"`   // Handshake and frame cadence settings.
	Transport TransportConfig `yaml:"transport"` // UDP side channel settings.
	Recording RecordingConfig `yaml:"recording"` // Raw input recording settings.
}

// AudioConfig holds capture device and analysis window settings.
type AudioConfig struct {
	InputDevice int     `yaml:"input_device"` // PortAudio device index, -1 for the system default.
	SampleRate  float64 `yaml:"sample_rate"`  // Hz.
	FFTSize     int     `yaml:"fft_size"`     // Analysis window length; must be a power of two.
	Channels    int     `yaml:"channels"`     // Input channels to capture.
	LowLatency  bool    `yaml:"low_latency"`  // Request low latency settings from the device.
	Smoothing   float64 `yaml:"smoothing"`    // Temporal smoothing of frequency bins, [0,1).
}

// FeatureConfig holds the extraction tunables. Zero values fall back to the
// feature package defaults.
type FeatureConfig struct {
	BassSplit     float64 `yaml:"bass_split"`     // Fraction of bins treated as bass.
	MidSplit      float64 `yaml:"mid_split"`      // Fraction where mid ends and treble begins.
	VolumeGain    float64 `yaml:"volume_gain"`    // Gain applied to the RMS volume.
	BeatDecay     float64 `yaml:"beat_decay"`     // Per-tick decay of the beat cutoff envelope.
	BeatThreshold float64 `yaml:"beat_threshold"` // Cutoff floor as a fraction of average energy.
	HistorySize   int     `yaml:"history_size"`   // Energy history capacity in ticks.
}

// SessionConfig holds handshake and frame cadence settings.
type SessionConfig struct {
	ListenAddr       string        `yaml:"listen_addr"`       // Capture agent WebSocket listen address.
	PeerURL          string        `yaml:"peer_url"`          // Render surface dial target (e.g. "ws://127.0.0.1:8765/session").
	FrameInterval    time.Duration `yaml:"frame_interval"`    // Push cadence while capturing.
	AnnounceInterval time.Duration `yaml:"announce_interval"` // Presence re-announce cadence.
	AckTimeout       time.Duration `yaml:"ack_timeout"`       // How long one announce waits for an ack.
}

// TransportConfig holds the UDP side channel settings.
type TransportConfig struct {
	UDPEnabled       bool          `yaml:"udp_enabled"`        // Publish feature packets over UDP.
	UDPTargetAddress string        `yaml:"udp_target_address"` // e.g. "127.0.0.1:9090".
	UDPSendInterval  time.Duration `yaml:"udp_send_interval"`  // Interval between packets.
}

// RecordingConfig holds raw input recording settings.
type RecordingConfig struct {
	Enabled    bool   `yaml:"enabled"`     // Record captured input to a WAV file.
	OutputFile string `yaml:"output_file"` // Target path; empty derives a timestamped name.
}

// Load reads configuration from the YAML file at path. An empty path searches
// the default location ("vizbridge.yaml") and falls back to built-in defaults
// when no file exists. Environment overrides apply after the file, validation
// last.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if path == "" {
		if _, err := os.Stat("vizbridge.yaml"); err == nil {
			path = "vizbridge.yaml"
		} else {
			cfg.applyEnvOverrides()
			if err := cfg.Validate(); err != nil {
				return nil, fmt.Errorf("invalid default configuration: %w", err)
			}
			return cfg, nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		LogLevel: "info",
		Audio: AudioConfig{
			InputDevice: -1,
			SampleRate:  DefaultSampleRate,
			FFTSize:     DefaultFFTSize,
			Channels:    DefaultChannels,
			Smoothing:   DefaultSmoothing,
		},
		Session: SessionConfig{
			ListenAddr:       DefaultListenAddr,
			FrameInterval:    DefaultFrameInterval,
			AnnounceInterval: DefaultAnnounceInterval,
			AckTimeout:       DefaultAckTimeout,
		},
		Transport: TransportConfig{
			UDPTargetAddress: DefaultUDPTarget,
			UDPSendInterval:  DefaultUDPSendInterval,
		},
	}
}

// Validate checks the final configuration for values the engine cannot run
// with. Feature tunables are not checked here; the feature package defaults
// any zero value.
func (c *Config) Validate() error {
	if c.Audio.SampleRate < MinSampleRate || c.Audio.SampleRate > MaxSampleRate {
		return fmt.Errorf("audio.sample_rate %v outside [%d, %d]", c.Audio.SampleRate, MinSampleRate, MaxSampleRate)
	}
	if !bitint.IsPowerOfTwo(c.Audio.FFTSize) || c.Audio.FFTSize > MaxFFTSize {
		return fmt.Errorf("audio.fft_size %d must be a power of two <= %d", c.Audio.FFTSize, MaxFFTSize)
	}
	if c.Audio.Channels < 1 {
		return fmt.Errorf("audio.channels %d must be at least 1", c.Audio.Channels)
	}
	if c.Audio.Smoothing < 0 || c.Audio.Smoothing >= 1 {
		return fmt.Errorf("audio.smoothing %v outside [0, 1)", c.Audio.Smoothing)
	}
	if f := c.Feature; f.BassSplit != 0 && f.MidSplit != 0 && f.BassSplit >= f.MidSplit {
		return fmt.Errorf("feature.bass_split %v must be below feature.mid_split %v", f.BassSplit, f.MidSplit)
	}
	if c.Session.FrameInterval <= 0 {
		return fmt.Errorf("session.frame_interval must be positive")
	}
	if c.Session.AnnounceInterval <= 0 {
		return fmt.Errorf("session.announce_interval must be positive")
	}
	if c.Transport.UDPEnabled {
		if c.Transport.UDPTargetAddress == "" {
			return fmt.Errorf("transport.udp_target_address must be set when UDP is enabled")
		}
		if c.Transport.UDPSendInterval <= 0 {
			return fmt.Errorf("transport.udp_send_interval must be positive when UDP is enabled")
		}
	}
	return nil
}

// applyEnvOverrides layers VIZBRIDGE_* environment variables over the loaded
// values. Malformed values are ignored.
func (c *Config) applyEnvOverrides() {
	if val, ok := os.LookupEnv("VIZBRIDGE_DEBUG"); ok {
		if b, err := strconv.ParseBool(val); err == nil {
			c.Debug = b
			applog.Infof("Config: Overriding debug from env: %v", b)
		}
	}
	if val, ok := os.LookupEnv("VIZBRIDGE_LOG_LEVEL"); ok {
		c.LogLevel = val
		applog.Infof("Config: Overriding log_level from env: %s", val)
	}
	if val, ok := os.LookupEnv("VIZBRIDGE_LISTEN_ADDR"); ok {
		c.Session.ListenAddr = val
		applog.Infof("Config: Overriding session.listen_addr from env: %s", val)
	}
	if val, ok := os.LookupEnv("VIZBRIDGE_PEER_URL"); ok {
		c.Session.PeerURL = val
		applog.Infof("Config: Overriding session.peer_url from env: %s", val)
	}
	if val, ok := os.LookupEnv("VIZBRIDGE_UDP_ENABLED"); ok {
		if b, err := strconv.ParseBool(val); err == nil {
			c.Transport.UDPEnabled = b
			applog.Infof("Config: Overriding transport.udp_enabled from env: %v", b)
		}
	}
	if val, ok := os.LookupEnv("VIZBRIDGE_UDP_TARGET_ADDRESS"); ok {
		c.Transport.UDPTargetAddress = val
		applog.Infof("Config: Overriding transport.udp_target_address from env: %s", val)
	}
	if val, ok := os.LookupEnv("VIZBRIDGE_UDP_SEND_INTERVAL"); ok {
		if dur, err := time.ParseDuration(val); err == nil {
			c.Transport.UDPSendInterval = dur
			applog.Infof("Config: Overriding transport.udp_send_interval from env: %s", dur)
		}
	}
}
