package callcore

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/opd-ai/callcore/audio"
	"github.com/opd-ai/callcore/interfaces"
	"github.com/opd-ai/callcore/operation"
	"github.com/opd-ai/callcore/reconnect"
	"github.com/opd-ai/callcore/signaling"
	"github.com/opd-ai/callcore/transport"
)

// Options contains the configuration of a Core.
type Options struct {
	// Transport replaces the TCP/UDP network controller. Start then ignores
	// its host and port arguments.
	Transport interfaces.Transport

	// Audio replaces the engine built from AudioConfig on the default device
	// backend.
	Audio AudioEngine

	AudioConfig audio.Config

	// Registerer receives the handler and audio metrics. nil keeps them in a
	// private registry.
	Registerer prometheus.Registerer

	DialTimeout       time.Duration
	KeepaliveTimeout  time.Duration
	ReconnectInterval time.Duration
	OperationTimeout  time.Duration
	KeyWait           time.Duration

	// DeviceWatchInterval is how often audio devices are polled for changes
	// while started. Zero disables polling.
	DeviceWatchInterval time.Duration

	// PrivateKeyHex loads a fixed identity. Empty generates one on the first
	// authorization.
	PrivateKeyHex string
}

// NewOptions returns the default options.
func NewOptions() *Options {
	return &Options{
		AudioConfig:         audio.DefaultConfig(),
		DialTimeout:         transport.DefaultDialTimeout,
		KeepaliveTimeout:    transport.DefaultKeepaliveTimeout,
		ReconnectInterval:   reconnect.DefaultIdleInterval,
		OperationTimeout:    operation.DefaultTimeout,
		KeyWait:             signaling.DefaultKeyWait,
		DeviceWatchInterval: 2 * time.Second,
	}
}

// AudioEngine is the part of audio.Engine the core drives.
type AudioEngine interface {
	SetEncodedCallback(cb audio.EncodedCallback)
	StartStream() error
	StopStream()
	IsStreamRunning() bool
	PlayAudio(data []byte)
	DrainQueue()

	MuteMicrophone(muted bool)
	MuteSpeaker(muted bool)
	SetInputVolume(v float32)
	SetOutputVolume(v float32)
	InputVolume() float32
	OutputVolume() float32

	InputDevices() ([]audio.DeviceInfo, error)
	OutputDevices() ([]audio.DeviceInfo, error)
	SetInputDevice(index int) error
	SetOutputDevice(index int) error
	RefreshAudioDevices() error
	WatchDevices(ctx context.Context, interval time.Duration)

	Close() error
}

var _ AudioEngine = (*audio.Engine)(nil)
