package packet

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/callcore/limits"
)

func TestSerializeHeaderLayout(t *testing.T) {
	p := New(TypeStartOutgoingCall, []byte{0xAA, 0xBB, 0xCC})

	data, err := p.Serialize()
	require.NoError(t, err)

	// type 10 and size 3, both little-endian, no padding
	assert.Equal(t, []byte{10, 0, 0, 0, 3, 0, 0, 0, 0xAA, 0xBB, 0xCC}, data)
}

func TestParse(t *testing.T) {
	t.Run("round trip keeps type and body", func(t *testing.T) {
		data, err := New(TypeIncomingCall, []byte("hello")).Serialize()
		require.NoError(t, err)

		p, err := Parse(data)
		require.NoError(t, err)
		assert.Equal(t, TypeIncomingCall, p.Type)
		assert.Equal(t, []byte("hello"), p.Body)
	})

	t.Run("empty body", func(t *testing.T) {
		data, err := New(TypePing, nil).Serialize()
		require.NoError(t, err)
		assert.Len(t, data, limits.HeaderSize)

		p, err := Parse(data)
		require.NoError(t, err)
		assert.Empty(t, p.Body)
	})

	t.Run("short header", func(t *testing.T) {
		_, err := Parse([]byte{1, 0, 0})
		assert.ErrorIs(t, err, ErrShortPacket)
	})

	t.Run("truncated body", func(t *testing.T) {
		data, err := New(TypeVoice, []byte{1, 2, 3, 4}).Serialize()
		require.NoError(t, err)

		_, err = Parse(data[:len(data)-1])
		assert.ErrorIs(t, err, ErrShortPacket)
	})

	t.Run("oversized declared body", func(t *testing.T) {
		data := []byte{1, 0, 0, 0, 0xFF, 0xFF, 0xFF, 0xFF}
		_, err := Parse(data)
		assert.ErrorIs(t, err, ErrBodyTooLarge)
	})
}

// oneByteReader delivers one byte per Read call to exercise reassembly.
type oneByteReader struct {
	data []byte
}

func (r *oneByteReader) Read(p []byte) (int, error) {
	if len(r.data) == 0 {
		return 0, io.EOF
	}
	p[0] = r.data[0]
	r.data = r.data[1:]
	return 1, nil
}

func TestReaderReassemblesPartialReads(t *testing.T) {
	var stream bytes.Buffer
	require.NoError(t, WritePacket(&stream, New(TypeAuthorizationResult, []byte(`{"status":"success"}`))))
	require.NoError(t, WritePacket(&stream, New(TypePing, nil)))

	r := NewReader(&oneByteReader{data: stream.Bytes()})

	first, err := r.ReadPacket()
	require.NoError(t, err)
	assert.Equal(t, TypeAuthorizationResult, first.Type)
	assert.Equal(t, `{"status":"success"}`, string(first.Body))

	second, err := r.ReadPacket()
	require.NoError(t, err)
	assert.Equal(t, TypePing, second.Type)

	_, err = r.ReadPacket()
	assert.True(t, errors.Is(err, io.EOF))
}

func TestReaderTruncatedBody(t *testing.T) {
	data, err := New(TypeVoice, []byte{1, 2, 3, 4}).Serialize()
	require.NoError(t, err)

	r := NewReader(bytes.NewReader(data[:len(data)-2]))
	_, err = r.ReadPacket()
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestTypeString(t *testing.T) {
	assert.Equal(t, "ACCEPT_CALL", TypeAcceptCall.String())
	assert.Equal(t, "UNKNOWN(9999)", Type(9999).String())
	assert.True(t, TypeCallEndedByRemote.Known())
	assert.False(t, Type(9999).Known())
	assert.True(t, TypeVoice.IsMedia())
	assert.False(t, TypePing.IsMedia())
}

func TestBodies(t *testing.T) {
	p, err := Encode(TypeAuthorize, &AuthorizationRequest{
		Version:   ProtocolVersion,
		Nickname:  "alice",
		PublicKey: []byte{1, 2, 3},
		UDPPort:   40000,
	})
	require.NoError(t, err)
	assert.Equal(t, TypeAuthorize, p.Type)

	var req AuthorizationRequest
	require.NoError(t, DecodeBody(p.Body, &req))
	assert.Equal(t, "alice", req.Nickname)
	assert.Equal(t, []byte{1, 2, 3}, req.PublicKey)
	assert.Equal(t, uint16(40000), req.UDPPort)

	var result Result
	require.NoError(t, DecodeBody([]byte(`{"status":"success","token":"AQI="}`), &result))
	assert.True(t, result.Succeeded())
	assert.Equal(t, []byte{1, 2}, result.Token)

	assert.Error(t, DecodeBody(nil, &result))
	assert.Error(t, DecodeBody([]byte("{not json"), &result))
}
