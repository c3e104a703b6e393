package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"
	"unsafe"

	"github.com/gen2brain/malgo"
	"github.com/sirupsen/logrus"
)

// ErrNoSuchDevice is returned for a device index that does not exist.
var ErrNoSuchDevice = errors.New("no such audio device")

// MalgoBackend implements Backend with miniaudio.
type MalgoBackend struct {
	mu  sync.Mutex
	ctx *malgo.AllocatedContext
}

// NewMalgoBackend initializes a miniaudio context.
func NewMalgoBackend() (*MalgoBackend, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		logrus.WithFields(logrus.Fields{
			"function": "MalgoBackend",
		}).Debug(message)
	})
	if err != nil {
		return nil, fmt.Errorf("init audio context: %w", err)
	}
	return &MalgoBackend{ctx: ctx}, nil
}

// InputDevices implements Backend.
func (b *MalgoBackend) InputDevices() ([]DeviceInfo, error) {
	return b.devices(malgo.Capture)
}

// OutputDevices implements Backend.
func (b *MalgoBackend) OutputDevices() ([]DeviceInfo, error) {
	return b.devices(malgo.Playback)
}

func (b *MalgoBackend) devices(kind malgo.DeviceType) ([]DeviceInfo, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.ctx == nil {
		return nil, errors.New("audio context closed")
	}
	infos, err := b.ctx.Devices(kind)
	if err != nil {
		return nil, fmt.Errorf("list audio devices: %w", err)
	}

	result := make([]DeviceInfo, 0, len(infos))
	for i := range infos {
		info := &infos[i]
		d := DeviceInfo{Index: i, Name: info.Name()}

		formats := info.Formats
		if full, err := b.ctx.DeviceInfo(kind, info.ID, malgo.Shared); err == nil {
			formats = full.Formats
		}
		channels := 0
		for _, f := range formats {
			channels = max(channels, int(f.Channels))
			if d.DefaultSampleRate == 0 && f.SampleRate != 0 {
				d.DefaultSampleRate = float64(f.SampleRate)
			}
		}

		// miniaudio does not report latencies; use its default period
		// (10 ms low latency, 3 periods for the high bound).
		low, high := 10*time.Millisecond, 30*time.Millisecond
		if kind == malgo.Capture {
			d.MaxInputChannels = channels
			d.DefaultLowInputLatency, d.DefaultHighInputLatency = low, high
			d.IsDefaultInput = info.IsDefault != 0
		} else {
			d.MaxOutputChannels = channels
			d.DefaultLowOutputLatency, d.DefaultHighOutputLatency = low, high
			d.IsDefaultOutput = info.IsDefault != 0
		}
		result = append(result, d)
	}
	return result, nil
}

// deviceID resolves a device index, returning nil for DefaultDevice.
func (b *MalgoBackend) deviceID(kind malgo.DeviceType, index int) (unsafe.Pointer, error) {
	if index == DefaultDevice {
		return nil, nil
	}
	infos, err := b.ctx.Devices(kind)
	if err != nil {
		return nil, fmt.Errorf("list audio devices: %w", err)
	}
	if index < 0 || index >= len(infos) {
		return nil, fmt.Errorf("%w: index %d", ErrNoSuchDevice, index)
	}
	id := infos[index].ID
	return id.Pointer(), nil
}

// OpenStream implements Backend. Samples are exchanged as f32.
func (b *MalgoBackend) OpenStream(params StreamParams, cb StreamCallback) (Stream, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.ctx == nil {
		return nil, errors.New("audio context closed")
	}
	inID, err := b.deviceID(malgo.Capture, params.InputDevice)
	if err != nil {
		return nil, err
	}
	outID, err := b.deviceID(malgo.Playback, params.OutputDevice)
	if err != nil {
		return nil, err
	}

	cfg := malgo.DefaultDeviceConfig(malgo.Duplex)
	cfg.Capture.Format = malgo.FormatF32
	cfg.Capture.Channels = uint32(params.Channels)
	cfg.Capture.DeviceID = inID
	cfg.Playback.Format = malgo.FormatF32
	cfg.Playback.Channels = uint32(params.Channels)
	cfg.Playback.DeviceID = outID
	cfg.SampleRate = uint32(params.SampleRate)
	cfg.PeriodSizeInFrames = uint32(params.FramesPerBuffer)
	cfg.Alsa.NoMMap = 1

	s := &malgoStream{cb: cb}
	device, err := malgo.InitDevice(b.ctx.Context, cfg, malgo.DeviceCallbacks{
		Data: s.onData,
	})
	if err != nil {
		return nil, fmt.Errorf("init audio device: %w", err)
	}
	s.device = device

	logrus.WithFields(logrus.Fields{
		"function":      "MalgoBackend.OpenStream",
		"input_device":  params.InputDevice,
		"output_device": params.OutputDevice,
		"sample_rate":   params.SampleRate,
		"period":        params.FramesPerBuffer,
	}).Info("Audio stream opened")
	return s, nil
}

// Close implements Backend.
func (b *MalgoBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.ctx == nil {
		return nil
	}
	err := b.ctx.Uninit()
	b.ctx.Free()
	b.ctx = nil
	return err
}

type malgoStream struct {
	device *malgo.Device
	cb     StreamCallback
	in     []float32
	out    []float32
}

// onData converts the byte buffers to float32 views and runs the callback.
// The scratch slices grow once and are reused afterwards.
func (s *malgoStream) onData(pOutput, pInput []byte, _ uint32) {
	nIn := len(pInput) / 4
	if cap(s.in) < nIn {
		s.in = make([]float32, nIn)
	}
	in := s.in[:nIn]
	for i := range in {
		in[i] = math.Float32frombits(binary.LittleEndian.Uint32(pInput[4*i:]))
	}

	nOut := len(pOutput) / 4
	if cap(s.out) < nOut {
		s.out = make([]float32, nOut)
	}
	out := s.out[:nOut]

	s.cb(out, in)

	for i, v := range out {
		binary.LittleEndian.PutUint32(pOutput[4*i:], math.Float32bits(v))
	}
}

func (s *malgoStream) Start() error { return s.device.Start() }

func (s *malgoStream) Stop() error { return s.device.Stop() }

func (s *malgoStream) Close() error {
	s.device.Uninit()
	return nil
}
