package transport

import (
	"errors"
	"net"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/callcore/limits"
	"github.com/opd-ai/callcore/packet"
)

// mediaSocket carries voice, screen and camera packets, one per datagram.
type mediaSocket struct {
	conn   *net.UDPConn
	remote *net.UDPAddr
}

func listenMedia(localAddr, remoteAddr string) (*mediaSocket, error) {
	remote, err := net.ResolveUDPAddr("udp", remoteAddr)
	if err != nil {
		return nil, err
	}
	local, err := net.ResolveUDPAddr("udp", localAddr)
	if err != nil {
		return nil, err
	}
	conn, err := net.ListenUDP("udp", local)
	if err != nil {
		return nil, err
	}
	return &mediaSocket{conn: conn, remote: remote}, nil
}

func (m *mediaSocket) send(body []byte, t packet.Type) error {
	if err := limits.ValidateMediaBody(body); err != nil {
		return err
	}
	data, err := packet.New(t, body).Serialize()
	if err != nil {
		return err
	}
	_, err = m.conn.WriteToUDP(data, m.remote)
	return err
}

func (m *mediaSocket) port() uint16 {
	addr, ok := m.conn.LocalAddr().(*net.UDPAddr)
	if !ok {
		return 0
	}
	return uint16(addr.Port)
}

// receive reads datagrams until the socket is closed. Malformed datagrams
// and non-media types are dropped.
func (m *mediaSocket) receive(handle func(p *packet.Packet)) {
	buffer := make([]byte, limits.MaxDatagram)

	for {
		n, _, err := m.conn.ReadFromUDP(buffer)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			logrus.WithFields(logrus.Fields{
				"function": "mediaSocket.receive",
				"error":    err.Error(),
			}).Debug("UDP read failed")
			continue
		}

		p, err := packet.Parse(buffer[:n])
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "mediaSocket.receive",
				"size":     n,
				"error":    err.Error(),
			}).Debug("Dropping malformed datagram")
			continue
		}
		if !p.Type.IsMedia() {
			continue
		}
		if handle != nil {
			handle(p)
		}
	}
}

func (m *mediaSocket) close() error {
	return m.conn.Close()
}
