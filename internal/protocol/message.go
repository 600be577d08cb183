// SPDX-License-Identifier: MIT
//
// Package protocol defines the wire schema exchanged between the capture
// agent and the render surface. Messages are a closed tagged variant: the
// Kind field determines which payload fields are meaningful. Receivers must
// tolerate kinds they do not recognize (log and ignore, never fail the
// session).
package protocol

import (
	"encoding/json"
	"fmt"
)

// Kind tags a Message variant.
type Kind string

const (
	KindReady            Kind = "ready"              // render -> capture: surface present, awaiting peer
	KindConnected        Kind = "connected"          // capture -> render: agent present, carries version
	KindReadyAck         Kind = "ready-ack"          // capture -> render: ack of a ready announce
	KindStartCapture     Kind = "start-capture"      // render -> capture: begin capture
	KindStopCapture      Kind = "stop-capture"       // render -> capture: end capture
	KindCaptureStatus    Kind = "capture-status"     // capture -> render: authoritative capture state
	KindRequestAudioData Kind = "request-audio-data" // render -> capture: poll for the latest frame
	KindAudioData        Kind = "audio-data"         // capture -> render: one audio frame
	KindAudioDataError   Kind = "audio-data-error"   // capture -> render: frame could not be produced
	KindCaptureError     Kind = "capture-error"      // capture -> render: capture-level fatal condition
	KindProcessingReady  Kind = "processing-ready"   // capture -> render: feature pipeline initialized
	KindProcessingError  Kind = "processing-error"   // capture -> render: feature pipeline failed
)

// Features is the perceptual summary attached to an audio-data message.
// All scalar fields are normalized to [0,1].
type Features struct {
	Bass   float64 `json:"bass"`
	Mid    float64 `json:"mid"`
	Treble float64 `json:"treble"`
	Volume float64 `json:"volume"`
	Beat   bool    `json:"beat"`
}

// Message is the wire unit. Audio payloads are sent as plain numeric arrays
// rather than a packed binary format; frames are small (a few KB) and sent at
// ~20Hz, so simplicity wins over compactness here.
type Message struct {
	Kind Kind `json:"kind"`

	// connected
	Version string `json:"version,omitempty"`

	// capture-status
	IsCapturing *bool `json:"isCapturing,omitempty"`
	DemoMode    *bool `json:"demoMode,omitempty"`

	// audio-data
	FrequencyData []int     `json:"frequencyData,omitempty"`
	TimeData      []int     `json:"timeData,omitempty"`
	Timestamp     int64     `json:"timestamp"`
	Features      *Features `json:"features,omitempty"`

	// audio-data-error, capture-error, processing-error
	Error    string `json:"error,omitempty"`
	Category string `json:"category,omitempty"`
}

// Ready builds a render-side presence announce.
func Ready() Message {
	return Message{Kind: KindReady}
}

// Connected builds a capture-side presence announce carrying the agent version.
func Connected(version string) Message {
	return Message{Kind: KindConnected, Version: version}
}

// ReadyAck builds the capture-side acknowledgment of a ready announce.
func ReadyAck() Message {
	return Message{Kind: KindReadyAck}
}

// StartCapture builds the capture start command.
func StartCapture() Message {
	return Message{Kind: KindStartCapture}
}

// StopCapture builds the capture stop command.
func StopCapture() Message {
	return Message{Kind: KindStopCapture}
}

// CaptureStatus builds the authoritative capture state message.
func CaptureStatus(capturing, demo bool) Message {
	return Message{Kind: KindCaptureStatus, IsCapturing: &capturing, DemoMode: &demo}
}

// RequestAudioData builds a render-side poll for the latest frame.
func RequestAudioData() Message {
	return Message{Kind: KindRequestAudioData}
}

// AudioData builds a frame message from byte sample arrays. The arrays are
// widened to plain ints for the JSON encoding.
func AudioData(freq, timeSamples []byte, timestampMillis int64, feat *Features) Message {
	m := Message{
		Kind:          KindAudioData,
		FrequencyData: widen(freq),
		TimeData:      widen(timeSamples),
		Timestamp:     timestampMillis,
		Features:      feat,
	}
	return m
}

// AudioDataError reports a frame that could not be produced.
func AudioDataError(err error) Message {
	return Message{Kind: KindAudioDataError, Error: err.Error()}
}

// CaptureError reports a capture-level fatal condition with its category tag.
func CaptureError(category, text string) Message {
	return Message{Kind: KindCaptureError, Category: category, Error: text}
}

// ProcessingReady signals that the feature pipeline is initialized.
func ProcessingReady() Message {
	return Message{Kind: KindProcessingReady}
}

// ProcessingError reports a feature pipeline initialization failure.
func ProcessingError(err error) Message {
	return Message{Kind: KindProcessingError, Error: err.Error()}
}

// Capturing reports the capture-status payload, defaulting to false when the
// field is absent.
func (m Message) Capturing() bool {
	return m.IsCapturing != nil && *m.IsCapturing
}

// Demo reports the demoMode payload, defaulting to false when absent.
func (m Message) Demo() bool {
	return m.DemoMode != nil && *m.DemoMode
}

// FrequencyBytes narrows the frequency payload back to bytes, clamping any
// out-of-range value. Returns nil when the payload is absent.
func (m Message) FrequencyBytes() []byte {
	return narrow(m.FrequencyData)
}

// TimeBytes narrows the time-domain payload back to bytes.
func (m Message) TimeBytes() []byte {
	return narrow(m.TimeData)
}

// Encode serializes a message to its JSON wire form.
func Encode(m Message) ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("protocol: encode %q: %w", m.Kind, err)
	}
	return data, nil
}

// Decode parses a wire message. Unknown kinds decode successfully and are left
// for the receiver's default arm; only malformed JSON or a missing kind tag is
// an error.
func Decode(data []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return Message{}, fmt.Errorf("protocol: decode: %w", err)
	}
	if m.Kind == "" {
		return Message{}, fmt.Errorf("protocol: decode: missing kind tag")
	}
	return m, nil
}

func widen(b []byte) []int {
	if b == nil {
		return nil
	}
	out := make([]int, len(b))
	for i, v := range b {
		out[i] = int(v)
	}
	return out
}

func narrow(v []int) []byte {
	if v == nil {
		return nil
	}
	out := make([]byte, len(v))
	for i, n := range v {
		switch {
		case n < 0:
			out[i] = 0
		case n > 255:
			out[i] = 255
		default:
			out[i] = byte(n)
		}
	}
	return out
}
