package packet

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/opd-ai/callcore/limits"
)

var (
	// ErrShortPacket indicates fewer bytes than the header declares.
	ErrShortPacket = errors.New("packet too short")

	// ErrBodyTooLarge indicates a declared body size above limits.MaxPacketBody.
	ErrBodyTooLarge = errors.New("packet body too large")
)

// Header is the fixed packet header.
type Header struct {
	Type     Type
	BodySize uint32
}

// Packet is a single framed protocol unit.
type Packet struct {
	Type Type
	Body []byte
}

// New creates a packet carrying the given body.
func New(t Type, body []byte) *Packet {
	return &Packet{Type: t, Body: body}
}

// Serialize converts a packet to a byte slice for transmission.
func (p *Packet) Serialize() ([]byte, error) {
	if p == nil {
		return nil, errors.New("packet is nil")
	}
	if len(p.Body) > limits.MaxPacketBody {
		return nil, fmt.Errorf("%w: %d bytes", ErrBodyTooLarge, len(p.Body))
	}

	result := make([]byte, limits.HeaderSize+len(p.Body))
	putHeader(result, Header{Type: p.Type, BodySize: uint32(len(p.Body))})
	copy(result[limits.HeaderSize:], p.Body)

	return result, nil
}

// Parse converts a byte slice holding exactly one packet to a Packet.
// Trailing bytes beyond the declared body size are ignored.
func Parse(data []byte) (*Packet, error) {
	header, err := ParseHeader(data)
	if err != nil {
		return nil, err
	}

	end := limits.HeaderSize + int(header.BodySize)
	if len(data) < end {
		return nil, fmt.Errorf("%w: have %d bytes, need %d", ErrShortPacket, len(data), end)
	}

	body := make([]byte, header.BodySize)
	copy(body, data[limits.HeaderSize:end])

	return &Packet{Type: header.Type, Body: body}, nil
}

// ParseHeader decodes the fixed header at the start of data.
func ParseHeader(data []byte) (Header, error) {
	if len(data) < limits.HeaderSize {
		return Header{}, fmt.Errorf("%w: header needs %d bytes, have %d", ErrShortPacket, limits.HeaderSize, len(data))
	}

	header := Header{
		Type:     Type(binary.LittleEndian.Uint32(data[0:4])),
		BodySize: binary.LittleEndian.Uint32(data[4:8]),
	}
	if err := limits.ValidateBodySize(header.BodySize); err != nil {
		return Header{}, fmt.Errorf("%w: %v", ErrBodyTooLarge, err)
	}

	return header, nil
}

func putHeader(dst []byte, h Header) {
	binary.LittleEndian.PutUint32(dst[0:4], uint32(h.Type))
	binary.LittleEndian.PutUint32(dst[4:8], h.BodySize)
}

// Reader decodes consecutive packets from a byte stream.
// It is not safe for concurrent use.
type Reader struct {
	r      io.Reader
	header [limits.HeaderSize]byte
}

// NewReader creates a packet reader over a stream.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

// ReadPacket blocks until one complete packet has been read.
// Partial reads are retried until the declared size is reached, so a packet
// split across several TCP segments is reassembled transparently.
func (r *Reader) ReadPacket() (*Packet, error) {
	if _, err := io.ReadFull(r.r, r.header[:]); err != nil {
		return nil, err
	}

	header, err := ParseHeader(r.header[:])
	if err != nil {
		return nil, err
	}

	body := make([]byte, header.BodySize)
	if _, err := io.ReadFull(r.r, body); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}

	return &Packet{Type: header.Type, Body: body}, nil
}

// WritePacket serializes a packet and writes it to w in a single call.
func WritePacket(w io.Writer, p *Packet) error {
	data, err := p.Serialize()
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}
