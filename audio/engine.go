// Package audio implements the real-time voice pipeline.
//
// One duplex hardware callback drives two paths. Captured samples are scaled,
// soft clipped, accumulated into whole codec frames, encoded and handed to an
// injected callback. Received packets are decoded on the caller's goroutine
// into a bounded queue that the callback drains one frame at a time.
//
// The callback never blocks on network I/O. It only takes the volume mutex
// and the queue mutex, both held for a few instructions.
package audio

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

// EncodedCallback receives one encoded frame. data is only valid during the
// call.
type EncodedCallback func(data []byte)

// ErrEngineClosed is returned after Close.
var ErrEngineClosed = errors.New("audio engine closed")

// Engine is the AudioEngine.
type Engine struct {
	cfg     Config
	backend Backend
	encoder Encoder
	metrics *engineMetrics

	decMu   sync.Mutex
	decoder Decoder
	decBuf  []float32

	volMu        sync.Mutex
	inputVolume  float32
	outputVolume float32
	micMuted     bool
	speakerMuted bool

	cbMu      sync.RWMutex
	onEncoded EncodedCallback

	queue *frameQueue

	// Owned by the audio callback.
	capture   []float32
	captured  int
	encodeBuf []byte
	playing   *AudioPacket
	playPos   int

	streamMu     sync.Mutex
	stream       Stream
	running      bool
	closed       bool
	inputDevice  int
	outputDevice int
}

// Option configures an Engine.
type Option func(*Engine)

// WithCodec overrides the encoder and decoder built from the config.
func WithCodec(enc Encoder, dec Decoder) Option {
	return func(e *Engine) {
		e.encoder = enc
		e.decoder = dec
	}
}

// WithRegisterer registers the engine metrics on reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(e *Engine) {
		e.metrics = newEngineMetrics(reg)
	}
}

// NewEngine creates an Engine on backend. The stream is not opened until
// StartStream.
func NewEngine(cfg Config, backend Backend, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:          cfg,
		backend:      backend,
		inputVolume:  clampVolume(cfg.InputVolume),
		outputVolume: clampVolume(cfg.OutputVolume),
		queue:        newFrameQueue(cfg.MaxQueuedFrames),
		capture:      make([]float32, cfg.FrameSize*cfg.Channels),
		encodeBuf:    make([]byte, maxPacketSize),
		decBuf:       make([]float32, cfg.FrameSize*cfg.Channels*6),
		inputDevice:  cfg.InputDevice,
		outputDevice: cfg.OutputDevice,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.metrics == nil {
		e.metrics = newEngineMetrics(nil)
	}

	if e.encoder == nil {
		enc, err := NewOpusEncoder(cfg, cfg.Decoder == DecoderSILK)
		if err != nil {
			return nil, err
		}
		e.encoder = enc
	}
	if e.decoder == nil {
		if cfg.Decoder == DecoderSILK {
			e.decoder = NewSILKDecoder(cfg.SampleRate)
		} else {
			dec, err := NewOpusDecoder(cfg)
			if err != nil {
				return nil, err
			}
			e.decoder = dec
		}
	}

	logrus.WithFields(logrus.Fields{
		"function":    "NewEngine",
		"sample_rate": cfg.SampleRate,
		"frame_size":  cfg.FrameSize,
		"decoder":     string(cfg.Decoder),
		"queue_limit": cfg.MaxQueuedFrames,
	}).Info("Audio engine created")
	return e, nil
}

// SetEncodedCallback sets where encoded capture frames go.
func (e *Engine) SetEncodedCallback(cb EncodedCallback) {
	e.cbMu.Lock()
	e.onEncoded = cb
	e.cbMu.Unlock()
}

// StartStream opens and starts the duplex stream. A failed start is retried
// once with a freshly opened stream.
func (e *Engine) StartStream() error {
	e.streamMu.Lock()
	defer e.streamMu.Unlock()
	return e.startStreamLocked()
}

func (e *Engine) startStreamLocked() error {
	if e.closed {
		return ErrEngineClosed
	}
	if e.running {
		return nil
	}

	var err error
	for attempt := 1; attempt <= 2; attempt++ {
		if err = e.openStreamLocked(); err == nil {
			if err = e.stream.Start(); err == nil {
				e.running = true
				logrus.WithFields(logrus.Fields{
					"function": "Engine.StartStream",
					"attempt":  attempt,
				}).Info("Audio stream started")
				return nil
			}
		}
		logrus.WithFields(logrus.Fields{
			"function": "Engine.StartStream",
			"attempt":  attempt,
			"error":    err.Error(),
		}).Warn("Audio stream failed to start")
		e.closeStreamLocked()
	}
	return fmt.Errorf("start audio stream: %w", err)
}

func (e *Engine) openStreamLocked() error {
	if e.stream != nil {
		return nil
	}
	e.resetCallbackState()
	stream, err := e.backend.OpenStream(StreamParams{
		InputDevice:     e.inputDevice,
		OutputDevice:    e.outputDevice,
		SampleRate:      e.cfg.SampleRate,
		Channels:        e.cfg.Channels,
		FramesPerBuffer: e.cfg.FrameSize,
	}, e.process)
	if err != nil {
		return err
	}
	e.stream = stream
	return nil
}

func (e *Engine) closeStreamLocked() {
	if e.stream == nil {
		return
	}
	if e.running {
		if err := e.stream.Stop(); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "Engine.closeStream",
				"error":    err.Error(),
			}).Warn("Failed to stop audio stream")
		}
	}
	if err := e.stream.Close(); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Engine.closeStream",
			"error":    err.Error(),
		}).Warn("Failed to close audio stream")
	}
	e.stream = nil
	e.running = false
}

// resetCallbackState clears the capture accumulator and the partially played
// frame. Only called while no stream is running.
func (e *Engine) resetCallbackState() {
	e.captured = 0
	if e.playing != nil {
		e.queue.recycle(e.playing)
		e.playing = nil
	}
	e.playPos = 0
}

// StopStream stops and closes the stream. Queued frames are kept.
func (e *Engine) StopStream() {
	e.streamMu.Lock()
	defer e.streamMu.Unlock()

	if e.stream != nil {
		e.closeStreamLocked()
		logrus.WithFields(logrus.Fields{
			"function": "Engine.StopStream",
		}).Info("Audio stream stopped")
	}
}

// IsStreamRunning reports whether the stream is started.
func (e *Engine) IsStreamRunning() bool {
	e.streamMu.Lock()
	defer e.streamMu.Unlock()
	return e.running
}

// PlayAudio decodes one received packet and queues it for playback.
// Empty and undecodable packets are dropped.
func (e *Engine) PlayAudio(data []byte) {
	if len(data) == 0 {
		return
	}

	e.decMu.Lock()
	n, err := e.decoder.Decode(data, e.decBuf)
	if err != nil || n <= 0 {
		e.decMu.Unlock()
		e.metrics.decodeErr.Inc()
		if logrus.IsLevelEnabled(logrus.DebugLevel) {
			logrus.WithFields(logrus.Fields{
				"function":  "Engine.PlayAudio",
				"data_size": len(data),
				"error":     fmt.Sprint(err),
			}).Debug("Dropping undecodable audio packet")
		}
		return
	}
	samples := n * e.cfg.Channels
	p := e.queue.get(samples)
	copy(p.Samples, e.decBuf[:samples])
	p.Count = n
	e.decMu.Unlock()

	e.metrics.decoded.Inc()
	if e.queue.push(p) {
		e.metrics.dropped.Inc()
	}
}

// process is the hardware callback.
func (e *Engine) process(out, in []float32) {
	e.volMu.Lock()
	inVol, outVol := e.inputVolume, e.outputVolume
	micMuted, speakerMuted := e.micMuted, e.speakerMuted
	e.volMu.Unlock()

	e.processCapture(in, inVol, micMuted)
	e.processPlayback(out, outVol, speakerMuted)
}

func (e *Engine) processCapture(in []float32, volume float32, muted bool) {
	if muted {
		e.captured = 0
		return
	}

	for len(in) > 0 {
		n := copy(e.capture[e.captured:], in)
		for i := e.captured; i < e.captured+n; i++ {
			e.capture[i] = softClip(e.capture[i], volume)
		}
		e.captured += n
		in = in[n:]

		if e.captured == len(e.capture) {
			e.captured = 0
			e.encodeFrame()
		}
	}
}

func (e *Engine) encodeFrame() {
	n, err := e.encoder.Encode(e.capture, e.encodeBuf)
	if err != nil || n <= 0 {
		if logrus.IsLevelEnabled(logrus.DebugLevel) {
			logrus.WithFields(logrus.Fields{
				"function": "Engine.encodeFrame",
				"error":    fmt.Sprint(err),
			}).Debug("Audio frame encoding failed")
		}
		return
	}

	e.cbMu.RLock()
	cb := e.onEncoded
	e.cbMu.RUnlock()
	e.metrics.encoded.Inc()
	if cb != nil {
		cb(e.encodeBuf[:n])
	}
}

// processPlayback fills out from the current frame, popping at most one new
// frame per invocation. Missing samples are zero-filled.
func (e *Engine) processPlayback(out []float32, volume float32, muted bool) {
	written := 0
	popped := false
	for written < len(out) {
		if e.playing == nil || e.playPos >= e.playing.Count*e.cfg.Channels {
			if e.playing != nil {
				e.queue.recycle(e.playing)
				e.playing = nil
			}
			if popped {
				break
			}
			e.playing = e.queue.pop()
			e.playPos = 0
			popped = true
			if e.playing == nil {
				e.metrics.underruns.Inc()
				break
			}
		}

		src := e.playing.Samples[e.playPos : e.playing.Count*e.cfg.Channels]
		n := min(len(src), len(out)-written)
		if muted {
			clear(out[written : written+n])
		} else {
			for i := 0; i < n; i++ {
				out[written+i] = softClip(src[i], volume)
			}
		}
		written += n
		e.playPos += n
	}
	clear(out[written:])
}

// QueuedFrames returns the number of decoded frames awaiting playback.
func (e *Engine) QueuedFrames() int {
	return e.queue.len()
}

// DrainQueue drops every queued frame.
func (e *Engine) DrainQueue() {
	if n := e.queue.drain(); n > 0 {
		logrus.WithFields(logrus.Fields{
			"function": "Engine.DrainQueue",
			"frames":   n,
		}).Debug("Playback queue drained")
	}
}

// MuteMicrophone enables or disables capture.
func (e *Engine) MuteMicrophone(muted bool) {
	e.volMu.Lock()
	e.micMuted = muted
	e.volMu.Unlock()
}

// MuteSpeaker enables or disables playback. Frames keep being consumed while
// muted.
func (e *Engine) MuteSpeaker(muted bool) {
	e.volMu.Lock()
	e.speakerMuted = muted
	e.volMu.Unlock()
}

// IsMicrophoneMuted reports whether capture is muted.
func (e *Engine) IsMicrophoneMuted() bool {
	e.volMu.Lock()
	defer e.volMu.Unlock()
	return e.micMuted
}

// IsSpeakerMuted reports whether playback is muted.
func (e *Engine) IsSpeakerMuted() bool {
	e.volMu.Lock()
	defer e.volMu.Unlock()
	return e.speakerMuted
}

// SetInputVolume sets the capture gain, clamped to [0, MaxVolume].
func (e *Engine) SetInputVolume(v float32) {
	e.volMu.Lock()
	e.inputVolume = clampVolume(v)
	e.volMu.Unlock()
}

// SetOutputVolume sets the playback gain, clamped to [0, MaxVolume].
func (e *Engine) SetOutputVolume(v float32) {
	e.volMu.Lock()
	e.outputVolume = clampVolume(v)
	e.volMu.Unlock()
}

// InputVolume returns the capture gain.
func (e *Engine) InputVolume() float32 {
	e.volMu.Lock()
	defer e.volMu.Unlock()
	return e.inputVolume
}

// OutputVolume returns the playback gain.
func (e *Engine) OutputVolume() float32 {
	e.volMu.Lock()
	defer e.volMu.Unlock()
	return e.outputVolume
}

// InputDevices lists capture devices.
func (e *Engine) InputDevices() ([]DeviceInfo, error) {
	return e.backend.InputDevices()
}

// OutputDevices lists playback devices.
func (e *Engine) OutputDevices() ([]DeviceInfo, error) {
	return e.backend.OutputDevices()
}

// CurrentDevices returns the selected input and output device indices.
func (e *Engine) CurrentDevices() (input, output int) {
	e.streamMu.Lock()
	defer e.streamMu.Unlock()
	return e.inputDevice, e.outputDevice
}

// SetInputDevice switches the capture device. If the stream cannot be
// reinitialized on the new device, the previous selection is restored.
func (e *Engine) SetInputDevice(index int) error {
	return e.switchDevice(&e.inputDevice, index, "input")
}

// SetOutputDevice switches the playback device, like SetInputDevice.
func (e *Engine) SetOutputDevice(index int) error {
	return e.switchDevice(&e.outputDevice, index, "output")
}

func (e *Engine) switchDevice(selected *int, index int, kind string) error {
	e.streamMu.Lock()
	defer e.streamMu.Unlock()

	if e.closed {
		return ErrEngineClosed
	}
	previous := *selected
	if previous == index {
		return nil
	}
	*selected = index

	wasRunning := e.running
	if err := e.reinitLocked(wasRunning); err != nil {
		*selected = previous
		if rerr := e.reinitLocked(wasRunning); rerr != nil {
			logrus.WithFields(logrus.Fields{
				"function": "Engine.switchDevice",
				"kind":     kind,
				"error":    rerr.Error(),
			}).Error("Failed to restore previous audio device")
		}
		return fmt.Errorf("switch %s device to %d: %w", kind, index, err)
	}

	logrus.WithFields(logrus.Fields{
		"function": "Engine.switchDevice",
		"kind":     kind,
		"device":   index,
	}).Info("Audio device switched")
	return nil
}

// reinitLocked tears the stream down and brings it back, started if run is
// set. Opening is validated even when the stream stays stopped.
func (e *Engine) reinitLocked(run bool) error {
	e.closeStreamLocked()
	e.queue.drain()

	if run {
		return e.startStreamLocked()
	}
	if err := e.openStreamLocked(); err != nil {
		return err
	}
	e.closeStreamLocked()
	return nil
}

// RefreshAudioDevices rebuilds the stream after the device set changed, so
// decoded audio is never fed with stale device parameters.
func (e *Engine) RefreshAudioDevices() error {
	e.streamMu.Lock()
	defer e.streamMu.Unlock()

	if e.closed {
		return ErrEngineClosed
	}
	wasRunning := e.running
	e.closeStreamLocked()
	e.queue.drain()

	logrus.WithFields(logrus.Fields{
		"function":    "Engine.RefreshAudioDevices",
		"was_running": wasRunning,
	}).Info("Refreshing audio devices")

	if wasRunning {
		return e.startStreamLocked()
	}
	return nil
}

// WatchDevices polls the device lists every interval and calls
// RefreshAudioDevices when they change. It returns when ctx is done.
func (e *Engine) WatchDevices(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	last := e.deviceSnapshot()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			current := e.deviceSnapshot()
			if reflect.DeepEqual(current, last) {
				continue
			}
			last = current
			if err := e.RefreshAudioDevices(); err != nil {
				logrus.WithFields(logrus.Fields{
					"function": "Engine.WatchDevices",
					"error":    err.Error(),
				}).Warn("Audio device refresh failed")
			}
		}
	}
}

type deviceSnapshot struct {
	inputs  []DeviceInfo
	outputs []DeviceInfo
}

func (e *Engine) deviceSnapshot() deviceSnapshot {
	in, _ := e.backend.InputDevices()
	out, _ := e.backend.OutputDevices()
	return deviceSnapshot{inputs: in, outputs: out}
}

// Close stops the stream and releases the backend.
func (e *Engine) Close() error {
	e.streamMu.Lock()
	defer e.streamMu.Unlock()

	if e.closed {
		return nil
	}
	e.closeStreamLocked()
	e.queue.drain()
	e.closed = true
	return e.backend.Close()
}
