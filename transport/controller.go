// Package transport connects the call core to the signaling server.
//
// Signaling packets travel over one TCP connection and are dispatched in
// arrival order on its read goroutine. Media packets travel over a UDP socket
// that survives reconnections, so the port announced to the server stays
// valid. The server's PING is answered with PONG internally.
package transport

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/callcore/interfaces"
	"github.com/opd-ai/callcore/packet"
)

var _ interfaces.Transport = (*Controller)(nil)

// Controller is the network controller.
type Controller struct {
	cfg Config

	mu       sync.RWMutex
	handlers interfaces.Handlers
	sig      *signalConn
	media    *mediaSocket
	closed   bool

	wg sync.WaitGroup
}

// New creates a Controller. Nothing is opened until Connect.
func New(cfg Config) *Controller {
	return &Controller{cfg: cfg.withDefaults()}
}

// SetHandlers installs the inbound handlers.
func (c *Controller) SetHandlers(h interfaces.Handlers) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers = h
}

// Connect binds the media socket and dials the signaling server.
func (c *Controller) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.sig != nil {
		c.mu.Unlock()
		return nil
	}
	if c.media == nil {
		media, err := listenMedia(c.cfg.LocalUDPAddr, c.cfg.UDPAddr)
		if err != nil {
			c.mu.Unlock()
			return fmt.Errorf("bind media socket: %w", err)
		}
		c.media = media
		c.wg.Add(1)
		go c.serveMedia(media)
	}
	c.mu.Unlock()

	sig, err := c.dial(ctx)
	if err != nil {
		return err
	}
	if err := c.install(sig); err != nil {
		return err
	}

	logrus.WithFields(logrus.Fields{
		"function":   "Controller.Connect",
		"tcp_addr":   c.cfg.TCPAddr,
		"udp_addr":   c.cfg.UDPAddr,
		"udp_port":   c.LocalUDPPort(),
		"generation": sig.id,
	}).Info("Connected to signaling server")
	return nil
}

func (c *Controller) dial(ctx context.Context) (*signalConn, error) {
	dialer := net.Dialer{Timeout: c.cfg.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", c.cfg.TCPAddr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", c.cfg.TCPAddr, err)
	}
	return newSignalConn(conn), nil
}

func (c *Controller) install(sig *signalConn) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		_ = sig.close()
		return ErrClosed
	}
	c.sig = sig
	c.wg.Add(1)
	go c.serve(sig)
	return nil
}

func (c *Controller) serve(sig *signalConn) {
	defer c.wg.Done()
	err := sig.readLoop(c.cfg.KeepaliveTimeout, c.dispatch)
	c.lost(sig, err)
}

func (c *Controller) dispatch(p *packet.Packet) {
	c.mu.RLock()
	handle := c.handlers.Packet
	c.mu.RUnlock()
	if handle != nil {
		handle(p)
	}
}

func (c *Controller) serveMedia(media *mediaSocket) {
	defer c.wg.Done()
	media.receive(func(p *packet.Packet) {
		c.mu.RLock()
		handle := c.handlers.Media
		c.mu.RUnlock()
		if handle != nil {
			handle(p)
		}
	})
}

// lost reports the end of a connection generation. Replaced or deliberately
// closed generations are not reported.
func (c *Controller) lost(sig *signalConn, err error) {
	c.mu.Lock()
	if c.sig != sig {
		c.mu.Unlock()
		_ = sig.close()
		return
	}
	c.sig = nil
	handle := c.handlers.Disconnect
	c.mu.Unlock()
	_ = sig.close()

	logrus.WithFields(logrus.Fields{
		"function":   "Controller.lost",
		"generation": sig.id,
		"error":      err.Error(),
	}).Warn("Signaling connection lost")

	if handle != nil {
		handle(err)
	}
}

// SendPacket implements interfaces.PacketSender. A failed write closes the
// connection, which is then reported through the disconnect handler.
func (c *Controller) SendPacket(body []byte, packetType packet.Type) error {
	c.mu.RLock()
	sig, closed := c.sig, c.closed
	c.mu.RUnlock()

	if closed {
		return ErrClosed
	}
	if sig == nil {
		return ErrNotConnected
	}
	if err := sig.write(packet.New(packetType, body)); err != nil {
		_ = sig.close()
		return fmt.Errorf("send %s: %w", packetType, err)
	}
	return nil
}

// SendMedia implements interfaces.MediaSender.
func (c *Controller) SendMedia(body []byte, packetType packet.Type) error {
	c.mu.RLock()
	media, closed := c.media, c.closed
	c.mu.RUnlock()

	if closed {
		return ErrClosed
	}
	if media == nil {
		return ErrNotConnected
	}
	return media.send(body, packetType)
}

// LocalUDPPort implements interfaces.PortProvider.
func (c *Controller) LocalUDPPort() uint16 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.media == nil {
		return 0
	}
	return c.media.port()
}

// AttemptEstablishConnection drops the current signaling connection, if any,
// and dials again within the dial timeout. The media socket is kept.
func (c *Controller) AttemptEstablishConnection() bool {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false
	}
	old := c.sig
	c.sig = nil
	c.mu.Unlock()
	if old != nil {
		_ = old.close()
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.DialTimeout)
	defer cancel()

	sig, err := c.dial(ctx)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Controller.AttemptEstablishConnection",
			"error":    err.Error(),
		}).Debug("Reconnect attempt failed")
		return false
	}
	if err := c.install(sig); err != nil {
		return false
	}

	logrus.WithFields(logrus.Fields{
		"function":   "Controller.AttemptEstablishConnection",
		"generation": sig.id,
	}).Info("Signaling connection re-established")
	return true
}

// Close closes both sockets and waits for the read loops. It is safe to call
// more than once.
func (c *Controller) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	sig, media := c.sig, c.media
	c.sig = nil
	c.mu.Unlock()

	if sig != nil {
		_ = sig.close()
	}
	var err error
	if media != nil {
		err = media.close()
	}
	c.wg.Wait()
	return err
}
