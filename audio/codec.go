package audio

import (
	"errors"
	"fmt"
	"math"

	hopus "github.com/hraban/opus"
	popus "github.com/pion/opus"
	"github.com/sirupsen/logrus"
)

// maxPacketSize is the largest Opus packet the encoder may produce.
const maxPacketSize = 4000

// Encoder compresses one frame of interleaved float32 samples.
type Encoder interface {
	// Encode writes the packet for pcm into out and returns its length.
	Encode(pcm []float32, out []byte) (int, error)
}

// Decoder expands one packet into interleaved float32 samples.
type Decoder interface {
	// Decode writes the samples of data into pcm and returns the number of
	// samples per channel.
	Decode(data []byte, pcm []float32) (int, error)
}

// ErrEmptyPacket is returned when decoding zero bytes.
var ErrEmptyPacket = errors.New("empty audio packet")

// OpusEncoder is a libopus VoIP encoder.
type OpusEncoder struct {
	enc *hopus.Encoder
}

// NewOpusEncoder creates an encoder for cfg. When wideband is set the encoded
// bandwidth is capped at 8 kHz.
func NewOpusEncoder(cfg Config, wideband bool) (*OpusEncoder, error) {
	enc, err := hopus.NewEncoder(cfg.SampleRate, cfg.Channels, hopus.AppVoIP)
	if err != nil {
		return nil, fmt.Errorf("create opus encoder: %w", err)
	}
	if err := enc.SetBitrate(cfg.Bitrate); err != nil {
		return nil, fmt.Errorf("set opus bitrate: %w", err)
	}
	if wideband {
		if err := enc.SetMaxBandwidth(hopus.Wideband); err != nil {
			return nil, fmt.Errorf("cap opus bandwidth: %w", err)
		}
	}

	logrus.WithFields(logrus.Fields{
		"function":    "NewOpusEncoder",
		"sample_rate": cfg.SampleRate,
		"channels":    cfg.Channels,
		"bitrate":     cfg.Bitrate,
		"wideband":    wideband,
	}).Info("Opus encoder created")
	return &OpusEncoder{enc: enc}, nil
}

// Encode implements Encoder.
func (e *OpusEncoder) Encode(pcm []float32, out []byte) (int, error) {
	return e.enc.EncodeFloat32(pcm, out)
}

// OpusDecoder is a libopus decoder.
type OpusDecoder struct {
	dec *hopus.Decoder
}

// NewOpusDecoder creates a decoder for cfg.
func NewOpusDecoder(cfg Config) (*OpusDecoder, error) {
	dec, err := hopus.NewDecoder(cfg.SampleRate, cfg.Channels)
	if err != nil {
		return nil, fmt.Errorf("create opus decoder: %w", err)
	}
	return &OpusDecoder{dec: dec}, nil
}

// Decode implements Decoder.
func (d *OpusDecoder) Decode(data []byte, pcm []float32) (int, error) {
	if len(data) == 0 {
		return 0, ErrEmptyPacket
	}
	return d.dec.DecodeFloat32(data, pcm)
}

// SILKDecoder decodes SILK-mode Opus packets in pure Go and resamples them to
// the engine rate. CELT and hybrid packets are rejected.
type SILKDecoder struct {
	dec       popus.Decoder
	raw       []byte
	pcm16     []int16
	outputHz  int
	resampler *Resampler
}

// NewSILKDecoder creates a mono SILK decoder producing samples at outputHz.
func NewSILKDecoder(outputHz int) *SILKDecoder {
	return &SILKDecoder{
		dec: popus.NewDecoder(),
		// 60 ms at 16 kHz, the largest SILK frame.
		raw:      make([]byte, 960*2),
		pcm16:    make([]int16, 960),
		outputHz: outputHz,
	}
}

// Decode implements Decoder.
func (d *SILKDecoder) Decode(data []byte, pcm []float32) (int, error) {
	if len(data) == 0 {
		return 0, ErrEmptyPacket
	}
	ms, err := silkFrameMillis(data[0])
	if err != nil {
		return 0, err
	}

	bandwidth, isStereo, err := d.dec.Decode(data, d.raw)
	if err != nil {
		return 0, fmt.Errorf("silk decode failed: %w", err)
	}
	if isStereo {
		return 0, errors.New("silk decode: stereo packets are not supported")
	}

	inputHz := bandwidth.SampleRate()
	n := inputHz * ms / 1000
	if n > len(d.pcm16) {
		return 0, fmt.Errorf("silk decode: frame of %d samples exceeds buffer", n)
	}
	for i := 0; i < n; i++ {
		d.pcm16[i] = int16(uint16(d.raw[2*i]) | uint16(d.raw[2*i+1])<<8)
	}

	if d.resampler == nil || d.resampler.InputRate() != inputHz {
		d.resampler = NewResampler(inputHz, d.outputHz)
	}
	out := d.resampler.Resample(d.pcm16[:n])
	if len(out) > len(pcm) {
		out = out[:len(pcm)]
	}
	for i, s := range out {
		pcm[i] = float32(s) / math.MaxInt16
	}
	return len(out), nil
}

// silkFrameMillis returns the frame duration of a SILK-only packet from its
// TOC byte. Configurations 0-11 are SILK-only, cycling through 10, 20, 40 and
// 60 ms.
func silkFrameMillis(toc byte) (int, error) {
	config := toc >> 3
	if config > 11 {
		return 0, fmt.Errorf("silk decode: configuration %d is not SILK-only", config)
	}
	if toc&0x03 != 0 {
		return 0, errors.New("silk decode: multi-frame packets are not supported")
	}
	return [...]int{10, 20, 40, 60}[config%4], nil
}
