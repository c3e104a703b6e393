package audio

import (
	"errors"
	"fmt"
)

// DecoderKind selects the voice decoder implementation.
type DecoderKind string

const (
	// DecoderOpus decodes with libopus.
	DecoderOpus DecoderKind = "opus"
	// DecoderSILK decodes with the pure-Go SILK decoder. The encoder is then
	// capped to wideband so the remote side produces SILK frames.
	DecoderSILK DecoderKind = "silk"
)

// DefaultDevice selects the system default device.
const DefaultDevice = -1

// MaxVolume is the upper bound of the volume gain.
const MaxVolume = 2.0

// Config configures the Engine.
type Config struct {
	SampleRate      int
	Channels        int
	FrameSize       int
	Bitrate         int
	MaxQueuedFrames int
	Decoder         DecoderKind
	InputDevice     int
	OutputDevice    int
	InputVolume     float32
	OutputVolume    float32
}

// DefaultConfig returns the configuration used by the call core: 20 ms mono
// frames at 48 kHz.
func DefaultConfig() Config {
	return Config{
		SampleRate:      48000,
		Channels:        1,
		FrameSize:       960,
		Bitrate:         32000,
		MaxQueuedFrames: 8,
		Decoder:         DecoderOpus,
		InputDevice:     DefaultDevice,
		OutputDevice:    DefaultDevice,
		InputVolume:     1,
		OutputVolume:    1,
	}
}

// ErrInvalidConfig is returned for configurations the engine cannot run.
var ErrInvalidConfig = errors.New("invalid audio config")

// Validate checks the configuration.
func (c Config) Validate() error {
	switch c.SampleRate {
	case 8000, 12000, 16000, 24000, 48000:
	default:
		return fmt.Errorf("%w: unsupported sample rate %d", ErrInvalidConfig, c.SampleRate)
	}
	if c.Channels != 1 && c.Channels != 2 {
		return fmt.Errorf("%w: channels must be 1 or 2, got %d", ErrInvalidConfig, c.Channels)
	}
	if c.FrameSize <= 0 || c.FrameSize*1000%c.SampleRate != 0 {
		return fmt.Errorf("%w: frame size %d is not a whole number of milliseconds", ErrInvalidConfig, c.FrameSize)
	}
	if c.Bitrate < 6000 || c.Bitrate > 510000 {
		return fmt.Errorf("%w: bitrate %d out of range", ErrInvalidConfig, c.Bitrate)
	}
	if c.MaxQueuedFrames <= 0 {
		return fmt.Errorf("%w: max queued frames must be positive", ErrInvalidConfig)
	}
	if c.Decoder != DecoderOpus && c.Decoder != DecoderSILK {
		return fmt.Errorf("%w: unknown decoder %q", ErrInvalidConfig, c.Decoder)
	}
	if c.Decoder == DecoderSILK && c.Channels != 1 {
		return fmt.Errorf("%w: silk decoder is mono only", ErrInvalidConfig)
	}
	return nil
}
