// SPDX-License-Identifier: MIT
package source

import (
	"fmt"

	"github.com/gordonklaus/portaudio"
)

// DefaultDeviceID selects the system default input device.
const DefaultDeviceID = -1

// Initialize sets up the PortAudio subsystem. Must be called before any
// capture operation and paired with Terminate.
func Initialize() error {
	if err := portaudio.Initialize(); err != nil {
		return captureErr(CategoryUnsupported, "failed to initialize PortAudio", err)
	}
	return nil
}

// Terminate shuts down the PortAudio subsystem.
func Terminate() error {
	if err := portaudio.Terminate(); err != nil {
		return fmt.Errorf("failed to terminate PortAudio: %w", err)
	}
	return nil
}

// InputDevice retrieves the input device for the given ID, or the system
// default for DefaultDeviceID.
func InputDevice(deviceID int) (*portaudio.DeviceInfo, error) {
	if deviceID == DefaultDeviceID {
		return portaudio.DefaultInputDevice()
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, err
	}
	if deviceID < 0 || deviceID >= len(devices) {
		return nil, fmt.Errorf("invalid device ID: %d", deviceID)
	}
	return devices[deviceID], nil
}

// ListDevices prints the audio devices PortAudio can see, flagging the
// system default input so the device-id flag has an obvious starting point.
func ListDevices() error {
	devices, err := portaudio.Devices()
	if err != nil {
		return err
	}
	defaultInput, _ := portaudio.DefaultInputDevice()

	fmt.Printf("Audio devices (%d found):\n", len(devices))
	for i, device := range devices {
		marker := " "
		// portaudio caches the device slice, so the default shares a pointer.
		if device == defaultInput {
			marker = "*"
		}
		fmt.Printf("%s %2d  %s\n", marker, i, device.Name)
		fmt.Printf("      %d in / %d out, %.0f Hz, input latency %.1f-%.1f ms\n",
			device.MaxInputChannels, device.MaxOutputChannels,
			device.DefaultSampleRate,
			device.DefaultLowInputLatency.Seconds()*1000,
			device.DefaultHighInputLatency.Seconds()*1000)
	}
	if defaultInput != nil {
		fmt.Println("\n* default input device")
	}
	return nil
}
