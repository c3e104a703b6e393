package audio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSILKFrameMillis(t *testing.T) {
	tests := []struct {
		name    string
		toc     byte
		want    int
		wantErr bool
	}{
		{"narrowband 10ms", 0 << 3, 10, false},
		{"narrowband 20ms", 1 << 3, 20, false},
		{"mediumband 40ms", 6 << 3, 40, false},
		{"wideband 60ms", 11 << 3, 60, false},
		{"hybrid", 12 << 3, 0, true},
		{"celt", 20 << 3, 0, true},
		{"two frames", 1<<3 | 0x01, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := silkFrameMillis(tt.toc)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSILKDecoderRejectsInvalidPackets(t *testing.T) {
	dec := NewSILKDecoder(48000)
	pcm := make([]float32, 2880)

	_, err := dec.Decode(nil, pcm)
	assert.ErrorIs(t, err, ErrEmptyPacket)

	_, err = dec.Decode([]byte{20 << 3, 0x00}, pcm)
	assert.Error(t, err)
}

func TestResamplerRatios(t *testing.T) {
	up := NewResampler(8000, 16000)
	in := make([]int16, 160)
	for i := range in {
		in[i] = 1000
	}
	out := up.Resample(in)
	assert.Len(t, out, 320)
	assert.Equal(t, int16(1000), out[len(out)-1])

	down := NewResampler(16000, 8000)
	assert.Len(t, down.Resample(make([]int16, 320)), 160)
}

func TestResamplerJoinsBlocks(t *testing.T) {
	r := NewResampler(8000, 16000)
	r.Resample([]int16{0, 100})

	// The first output of the next block interpolates from the carried sample.
	out := r.Resample([]int16{300, 300})
	require.NotEmpty(t, out)
	assert.Equal(t, int16(100), out[0])
	assert.Equal(t, int16(200), out[1])

	r.Reset()
	out = r.Resample([]int16{400})
	assert.Equal(t, int16(0), out[0])
}

func TestResamplerPassthrough(t *testing.T) {
	r := NewResampler(48000, 48000)
	assert.Equal(t, []int16{1, 2, 3}, r.Resample([]int16{1, 2, 3}))
	assert.Empty(t, r.Resample(nil))
}

func TestFrameQueueRecyclesPackets(t *testing.T) {
	q := newFrameQueue(2)

	a := q.get(4)
	assert.Len(t, a.Samples, 4)
	assert.False(t, q.push(a))
	assert.False(t, q.push(q.get(4)))
	assert.True(t, q.push(q.get(4)))
	assert.Equal(t, 2, q.len())

	// The dropped packet is reused by the next get.
	assert.Same(t, a, q.get(2))

	assert.Equal(t, 2, q.drain())
	assert.Nil(t, q.pop())
}
