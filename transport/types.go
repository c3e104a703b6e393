package transport

import (
	"errors"
	"time"
)

const (
	// DefaultDialTimeout bounds one TCP dial.
	DefaultDialTimeout = 3 * time.Second

	// DefaultKeepaliveTimeout is how long the connection may stay silent.
	// The server pings more often than this.
	DefaultKeepaliveTimeout = 15 * time.Second

	writeTimeout = 5 * time.Second
)

var (
	// ErrNotConnected is returned by sends while no connection is open.
	ErrNotConnected = errors.New("transport not connected")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("transport closed")
)

// Config holds the server endpoints and timeouts.
type Config struct {
	// TCPAddr is the signaling server address, host:port.
	TCPAddr string
	// UDPAddr is the media relay address, host:port.
	UDPAddr string
	// LocalUDPAddr is where the media socket binds. Empty picks any port.
	LocalUDPAddr     string
	DialTimeout      time.Duration
	KeepaliveTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.DialTimeout <= 0 {
		c.DialTimeout = DefaultDialTimeout
	}
	if c.KeepaliveTimeout <= 0 {
		c.KeepaliveTimeout = DefaultKeepaliveTimeout
	}
	if c.LocalUDPAddr == "" {
		c.LocalUDPAddr = ":0"
	}
	return c
}
