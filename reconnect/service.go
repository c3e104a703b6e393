// Package reconnect restores the signaling session after a transport loss.
//
// The Service runs one background goroutine for its whole lifetime. While
// idle it polls in fixed intervals; while attempting it repeatedly calls the
// injected ConnectionAttempter, which blocks for a bounded interval per call.
// Failed attempts are expected and simply retried.
package reconnect

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/callcore/interfaces"
	"github.com/opd-ai/callcore/packet"
	"github.com/opd-ai/callcore/state"
)

// DefaultIdleInterval is how long the loop sleeps between checks while idle.
const DefaultIdleInterval = time.Second

// DefaultRetryDelay is the pause after a failed attempt, for attempters that
// fail without blocking.
const DefaultRetryDelay = 250 * time.Millisecond

// Option configures a Service.
type Option func(*Service)

// WithIdleInterval overrides DefaultIdleInterval.
func WithIdleInterval(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.idleInterval = d
		}
	}
}

// WithRetryDelay overrides DefaultRetryDelay.
func WithRetryDelay(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.retryDelay = d
		}
	}
}

// WithAuthorizationNeeded sets the callback run when connectivity returns for
// a session that was never authorized.
func WithAuthorizationNeeded(fn func()) Option {
	return func(s *Service) {
		s.onAuthorizationNeeded = fn
	}
}

// Service is the ReconnectionService.
type Service struct {
	state     *state.Manager
	attempter interfaces.ConnectionAttempter
	sender    interfaces.PacketSender
	ports     interfaces.PortProvider

	idleInterval          time.Duration
	retryDelay            time.Duration
	onAuthorizationNeeded func()

	running      atomic.Bool
	reconnecting atomic.Bool
	attempts     atomic.Int64

	stopChan  chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// NewService creates a Service and starts its background loop.
func NewService(st *state.Manager, attempter interfaces.ConnectionAttempter,
	sender interfaces.PacketSender, ports interfaces.PortProvider, opts ...Option,
) *Service {
	s := &Service{
		state:        st,
		attempter:    attempter,
		sender:       sender,
		ports:        ports,
		idleInterval: DefaultIdleInterval,
		retryDelay:   DefaultRetryDelay,
		stopChan:     make(chan struct{}),
		done:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.running.Store(true)
	go s.loop()
	return s
}

// StartReconnectionAttempts moves the service from idle to attempting.
func (s *Service) StartReconnectionAttempts() {
	if s.reconnecting.CompareAndSwap(false, true) {
		logrus.WithFields(logrus.Fields{
			"function": "Service.StartReconnectionAttempts",
		}).Info("Reconnection attempts started")
	}
}

// StopReconnectionAttempts moves the service back to idle.
func (s *Service) StopReconnectionAttempts() {
	if s.reconnecting.CompareAndSwap(true, false) {
		logrus.WithFields(logrus.Fields{
			"function": "Service.StopReconnectionAttempts",
		}).Info("Reconnection attempts stopped")
	}
}

// IsReconnecting reports whether the service is attempting.
func (s *Service) IsReconnecting() bool {
	return s.reconnecting.Load()
}

// Attempts returns the number of connection attempts made so far.
func (s *Service) Attempts() int64 {
	return s.attempts.Load()
}

// Close stops the loop and waits for it to exit. An attempt already in
// progress is allowed to finish.
func (s *Service) Close() {
	s.closeOnce.Do(func() {
		s.reconnecting.Store(false)
		s.running.Store(false)
		close(s.stopChan)
	})
	<-s.done
}

func (s *Service) loop() {
	defer close(s.done)

	for s.running.Load() {
		if s.reconnecting.Load() {
			if !s.state.IsConnectionDown() {
				// Restored by other means; nothing left to do.
				s.reconnecting.Store(false)
				continue
			}
			s.attempt()
			continue
		}

		select {
		case <-s.stopChan:
			return
		case <-time.After(s.idleInterval):
		}
	}
}

func (s *Service) attempt() {
	n := s.attempts.Add(1)
	if !s.attempter.AttemptEstablishConnection() {
		logrus.WithFields(logrus.Fields{
			"function": "Service.attempt",
			"attempt":  n,
		}).Debug("Server still unreachable")
		select {
		case <-s.stopChan:
		case <-time.After(s.retryDelay):
		}
		return
	}

	if !s.reconnecting.CompareAndSwap(true, false) {
		// Stopped while the attempt was blocking.
		return
	}

	logrus.WithFields(logrus.Fields{
		"function": "Service.attempt",
		"attempt":  n,
	}).Info("Server reachable again")
	s.handleReconnect()
}

// handleReconnect resumes the session with the existing token, or hands the
// caller back to authorization when there was no session.
func (s *Service) handleReconnect() {
	nickname, token, authorized := s.state.Credentials()
	if !authorized {
		s.state.SetConnectionDown(false)
		logrus.WithFields(logrus.Fields{
			"function": "Service.handleReconnect",
		}).Info("Connection restored, authorization needed")
		if s.onAuthorizationNeeded != nil {
			s.onAuthorizationNeeded()
		}
		return
	}

	req := packet.ReconnectRequest{
		Version:  packet.ProtocolVersion,
		Nickname: nickname,
		Token:    token,
		UDPPort:  s.ports.LocalUDPPort(),
	}
	body, err := packet.EncodeBody(&req)
	if err == nil {
		err = s.sender.SendPacket(body, packet.TypeReconnect)
	}
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Service.handleReconnect",
			"error":    err.Error(),
		}).Warn("Failed to send reconnect request, retrying")
		if s.running.Load() {
			s.reconnecting.Store(true)
		}
		return
	}

	logrus.WithFields(logrus.Fields{
		"function": "Service.handleReconnect",
		"nickname": nickname,
		"udp_port": req.UDPPort,
	}).Info("Reconnect request sent")
}
