// Package config loads the client configuration from .env files and
// CALLCORE_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cast"

	"github.com/opd-ai/callcore/audio"
	"github.com/opd-ai/callcore/logging"
	"github.com/opd-ai/callcore/operation"
	"github.com/opd-ai/callcore/reconnect"
	"github.com/opd-ai/callcore/transport"
)

// EnvPrefix prefixes every variable read by Load.
const EnvPrefix = "CALLCORE_"

// ErrInvalid is wrapped by every Validate failure.
var ErrInvalid = errors.New("invalid configuration")

// Config is the complete client configuration.
type Config struct {
	TCPHost string
	TCPPort uint16
	UDPHost string
	UDPPort uint16

	DialTimeout       time.Duration
	KeepaliveTimeout  time.Duration
	ReconnectInterval time.Duration
	OperationTimeout  time.Duration

	Bitrate         int
	FrameSize       int
	MaxQueuedFrames int
	// InputVolume and OutputVolume are percentages in [0, 200].
	InputVolume  int
	OutputVolume int
	InputDevice  int
	OutputDevice int
	Decoder      audio.DecoderKind

	// PrivateKeyHex is an optional 32-byte key. Empty generates one on
	// first authorization.
	PrivateKeyHex string

	Log logging.Config
}

// Default returns the built-in configuration.
func Default() Config {
	a := audio.DefaultConfig()
	return Config{
		TCPHost:           "127.0.0.1",
		TCPPort:           8081,
		UDPHost:           "127.0.0.1",
		UDPPort:           8082,
		DialTimeout:       transport.DefaultDialTimeout,
		KeepaliveTimeout:  transport.DefaultKeepaliveTimeout,
		ReconnectInterval: reconnect.DefaultIdleInterval,
		OperationTimeout:  operation.DefaultTimeout,
		Bitrate:           a.Bitrate,
		FrameSize:         a.FrameSize,
		MaxQueuedFrames:   a.MaxQueuedFrames,
		InputVolume:       100,
		OutputVolume:      100,
		InputDevice:       audio.DefaultDevice,
		OutputDevice:      audio.DefaultDevice,
		Decoder:           a.Decoder,
		Log:               logging.DefaultConfig(),
	}
}

// Load reads envFiles (default ".env") into the environment, skipping files
// that do not exist, then overlays CALLCORE_* variables on Default.
// Variables already set in the environment win over file values.
func Load(envFiles ...string) (Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, file := range envFiles {
		if err := godotenv.Load(file); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", file, err)
		}
	}

	cfg := Default()
	l := loader{}
	l.str("TCP_HOST", &cfg.TCPHost)
	l.uint16("TCP_PORT", &cfg.TCPPort)
	l.str("UDP_HOST", &cfg.UDPHost)
	l.uint16("UDP_PORT", &cfg.UDPPort)
	l.duration("DIAL_TIMEOUT", &cfg.DialTimeout)
	l.duration("KEEPALIVE_TIMEOUT", &cfg.KeepaliveTimeout)
	l.duration("RECONNECT_INTERVAL", &cfg.ReconnectInterval)
	l.duration("OPERATION_TIMEOUT", &cfg.OperationTimeout)
	l.int("AUDIO_BITRATE", &cfg.Bitrate)
	l.int("AUDIO_FRAME_SIZE", &cfg.FrameSize)
	l.int("AUDIO_QUEUE_FRAMES", &cfg.MaxQueuedFrames)
	l.int("INPUT_VOLUME", &cfg.InputVolume)
	l.int("OUTPUT_VOLUME", &cfg.OutputVolume)
	l.int("INPUT_DEVICE", &cfg.InputDevice)
	l.int("OUTPUT_DEVICE", &cfg.OutputDevice)
	var decoder string
	if l.str("AUDIO_DECODER", &decoder) {
		cfg.Decoder = audio.DecoderKind(decoder)
	}
	l.str("PRIVATE_KEY", &cfg.PrivateKeyHex)
	l.str("LOG_LEVEL", &cfg.Log.Level)
	l.str("LOG_FORMAT", &cfg.Log.Format)
	l.str("LOG_FILE", &cfg.Log.File)
	l.int("LOG_MAX_SIZE_MB", &cfg.Log.MaxSizeMB)
	l.int("LOG_MAX_BACKUPS", &cfg.Log.MaxBackups)
	l.int("LOG_MAX_AGE_DAYS", &cfg.Log.MaxAgeDays)

	if l.err != nil {
		return Config{}, l.err
	}
	return cfg, nil
}

// loader reads prefixed variables and keeps the first conversion error.
type loader struct {
	err error
}

func (l *loader) lookup(key string) (string, bool) {
	if l.err != nil {
		return "", false
	}
	v, ok := os.LookupEnv(EnvPrefix + key)
	return v, ok && v != ""
}

func (l *loader) fail(key string, err error) {
	l.err = fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
}

func (l *loader) str(key string, dst *string) bool {
	v, ok := l.lookup(key)
	if ok {
		*dst = v
	}
	return ok
}

func (l *loader) int(key string, dst *int) {
	if v, ok := l.lookup(key); ok {
		n, err := cast.ToIntE(v)
		if err != nil {
			l.fail(key, err)
			return
		}
		*dst = n
	}
}

func (l *loader) uint16(key string, dst *uint16) {
	if v, ok := l.lookup(key); ok {
		n, err := cast.ToUint16E(v)
		if err != nil {
			l.fail(key, err)
			return
		}
		*dst = n
	}
}

func (l *loader) duration(key string, dst *time.Duration) {
	if v, ok := l.lookup(key); ok {
		d, err := cast.ToDurationE(v)
		if err != nil {
			l.fail(key, err)
			return
		}
		*dst = d
	}
}

// Validate checks ranges and the audio settings.
func (c Config) Validate() error {
	if c.TCPHost == "" || c.UDPHost == "" {
		return fmt.Errorf("%w: server host is empty", ErrInvalid)
	}
	if c.TCPPort == 0 || c.UDPPort == 0 {
		return fmt.Errorf("%w: server port is zero", ErrInvalid)
	}
	for name, d := range map[string]time.Duration{
		"dial timeout":       c.DialTimeout,
		"keepalive timeout":  c.KeepaliveTimeout,
		"reconnect interval": c.ReconnectInterval,
		"operation timeout":  c.OperationTimeout,
	} {
		if d <= 0 {
			return fmt.Errorf("%w: %s must be positive", ErrInvalid, name)
		}
	}
	for name, v := range map[string]int{"input volume": c.InputVolume, "output volume": c.OutputVolume} {
		if v < 0 || v > 200 {
			return fmt.Errorf("%w: %s %d outside [0, 200]", ErrInvalid, name, v)
		}
	}
	if c.PrivateKeyHex != "" && len(c.PrivateKeyHex) != 64 {
		return fmt.Errorf("%w: private key must be 64 hex characters", ErrInvalid)
	}
	if err := c.Audio().Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	switch c.Decoder {
	case audio.DecoderOpus, audio.DecoderSILK:
	default:
		return fmt.Errorf("%w: unknown decoder %q", ErrInvalid, c.Decoder)
	}
	return nil
}

// TCPAddr returns the signaling server address.
func (c Config) TCPAddr() string {
	return net.JoinHostPort(c.TCPHost, strconv.Itoa(int(c.TCPPort)))
}

// UDPAddr returns the media relay address.
func (c Config) UDPAddr() string {
	return net.JoinHostPort(c.UDPHost, strconv.Itoa(int(c.UDPPort)))
}

// Transport returns the network controller configuration.
func (c Config) Transport() transport.Config {
	return transport.Config{
		TCPAddr:          c.TCPAddr(),
		UDPAddr:          c.UDPAddr(),
		DialTimeout:      c.DialTimeout,
		KeepaliveTimeout: c.KeepaliveTimeout,
	}
}

// Audio returns the audio engine configuration.
func (c Config) Audio() audio.Config {
	a := audio.DefaultConfig()
	a.Bitrate = c.Bitrate
	a.FrameSize = c.FrameSize
	a.MaxQueuedFrames = c.MaxQueuedFrames
	a.Decoder = c.Decoder
	a.InputDevice = c.InputDevice
	a.OutputDevice = c.OutputDevice
	a.InputVolume = float32(c.InputVolume) / 100
	a.OutputVolume = float32(c.OutputVolume) / 100
	return a
}
