package transport

import (
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/opd-ai/callcore/packet"
)

// signalConn is one generation of the signaling connection. A new one is
// created on every successful dial, so a stale read loop can tell that its
// connection has been replaced.
type signalConn struct {
	conn    net.Conn
	id      string
	writeMu sync.Mutex
}

func newSignalConn(conn net.Conn) *signalConn {
	return &signalConn{conn: conn, id: uuid.NewString()}
}

// write sends one packet. Writes from different goroutines never interleave.
func (s *signalConn) write(p *packet.Packet) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return packet.WritePacket(s.conn, p)
}

// readLoop reads packets in order until the connection fails. PING is
// answered here and never dispatched. Each read must complete within
// keepalive.
func (s *signalConn) readLoop(keepalive time.Duration, dispatch func(p *packet.Packet)) error {
	reader := packet.NewReader(s.conn)
	for {
		if err := s.conn.SetReadDeadline(time.Now().Add(keepalive)); err != nil {
			return err
		}
		p, err := reader.ReadPacket()
		if err != nil {
			return err
		}

		if p.Type == packet.TypePing {
			if err := s.write(packet.New(packet.TypePong, nil)); err != nil {
				return err
			}
			continue
		}
		dispatch(p)
	}
}

func (s *signalConn) close() error {
	return s.conn.Close()
}
