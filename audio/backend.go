package audio

import "time"

// DeviceInfo describes an audio device. It is produced on demand and is not
// meant to be kept.
type DeviceInfo struct {
	Index                    int
	Name                     string
	MaxInputChannels         int
	MaxOutputChannels        int
	DefaultLowInputLatency   time.Duration
	DefaultLowOutputLatency  time.Duration
	DefaultHighInputLatency  time.Duration
	DefaultHighOutputLatency time.Duration
	DefaultSampleRate        float64
	IsDefaultInput           bool
	IsDefaultOutput          bool
}

// StreamParams describes a duplex stream.
type StreamParams struct {
	InputDevice     int
	OutputDevice    int
	SampleRate      int
	Channels        int
	FramesPerBuffer int
}

// StreamCallback is invoked on the audio thread for every hardware block.
// in holds captured samples and out must be filled with playback samples,
// both interleaved float32.
type StreamCallback func(out, in []float32)

// Stream is an opened duplex stream.
type Stream interface {
	Start() error
	Stop() error
	Close() error
}

// Backend abstracts the audio device library.
type Backend interface {
	InputDevices() ([]DeviceInfo, error)
	OutputDevices() ([]DeviceInfo, error)
	OpenStream(params StreamParams, cb StreamCallback) (Stream, error)
	Close() error
}
