package audio

import (
	"fmt"
	"math"
	"sync"

	"github.com/gen2brain/malgo"
)

// MicSource captures the default or a named input device and delivers
// mono 16kHz float32 chunks, resampling and downmixing as needed.
//
// Grounded on _examples/askidmobile-AIWisper/backend/audio/capture.go's
// startMicrophoneCapture: same malgo device config shape, same raw
// little-endian float32 frame decoding, generalized to the spec's
// always-mono-16kHz delivery contract via Resample/Downmix.
type MicSource struct {
	ctx      *malgo.AllocatedContext
	deviceID string

	mu      sync.Mutex
	device  *malgo.Device
	running bool
}

// NewMicSource opens a malgo context for microphone capture. deviceID
// selects a specific input device by its string ID; empty selects the
// system default.
func NewMicSource(deviceID string) (*MicSource, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("audio: init capture context: %w", err)
	}
	return &MicSource{ctx: ctx, deviceID: deviceID}, nil
}

func (m *MicSource) Start(onData DataFunc, onError ErrorFunc) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return ErrAlreadyRunning
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatF32
	deviceConfig.Capture.Channels = 1
	deviceConfig.Alsa.NoMMap = 1

	if m.deviceID != "" {
		id, err := stringToDeviceID(m.deviceID)
		if err != nil {
			return fmt.Errorf("audio: invalid mic device id: %w", err)
		}
		deviceConfig.Capture.DeviceID = id.Pointer()
	}

	nativeRate := int(deviceConfig.SampleRate)
	channels := int(deviceConfig.Capture.Channels)

	onRecv := func(_, input []byte, frameCount uint32) {
		sampleCount := int(frameCount) * channels
		if len(input) != sampleCount*4 {
			return
		}

		raw := make([]float32, sampleCount)
		for i := 0; i < sampleCount; i++ {
			bits := uint32(input[i*4]) | uint32(input[i*4+1])<<8 | uint32(input[i*4+2])<<16 | uint32(input[i*4+3])<<24
			raw[i] = math.Float32frombits(bits)
		}

		mono := Downmix(raw, channels)
		if nativeRate != 0 && nativeRate != SampleRate {
			mono = Resample(mono, nativeRate, SampleRate)
		}
		if len(mono) > 0 {
			onData(mono)
		}
	}

	onStop := func() {
		m.mu.Lock()
		wasRunning := m.running
		m.running = false
		m.mu.Unlock()
		if wasRunning && onError != nil {
			onError(fmt.Errorf("audio: microphone stream stopped unexpectedly"))
		}
	}

	device, err := malgo.InitDevice(m.ctx.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: onRecv,
		Stop: onStop,
	})
	if err != nil {
		return fmt.Errorf("audio: init mic device: %w", err)
	}

	if err := device.Start(); err != nil {
		device.Uninit()
		return fmt.Errorf("audio: start mic device: %w", err)
	}

	m.device = device
	m.running = true
	return nil
}

func (m *MicSource) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running || m.device == nil {
		return nil
	}
	m.device.Uninit()
	m.device = nil
	m.running = false
	return nil
}

// Close releases the capture context. Call once the source is no longer
// needed (process shutdown or device re-selection).
func (m *MicSource) Close() {
	_ = m.Stop()
	if m.ctx != nil {
		m.ctx.Uninit()
		m.ctx.Free()
	}
}

// ListDevices enumerates available capture devices.
func (m *MicSource) ListDevices() ([]Device, error) {
	devices, err := m.ctx.Devices(malgo.Capture)
	if err != nil {
		return nil, fmt.Errorf("audio: enumerate capture devices: %w", err)
	}
	out := make([]Device, 0, len(devices))
	for _, d := range devices {
		out = append(out, Device{ID: deviceIDToString(d.ID), Name: d.Name()})
	}
	return out, nil
}

// Device describes an enumerable audio input device.
type Device struct {
	ID   string
	Name string
}

func deviceIDToString(id malgo.DeviceID) string {
	n := 0
	for n < len(id) && id[n] != 0 {
		n++
	}
	return string(id[:n])
}

func stringToDeviceID(s string) (*malgo.DeviceID, error) {
	if len(s) > 32 {
		return nil, fmt.Errorf("device id too long")
	}
	var id malgo.DeviceID
	copy(id[:], []byte(s))
	return &id, nil
}
