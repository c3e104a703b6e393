package testing

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/callcore/interfaces"
	"github.com/opd-ai/callcore/packet"
)

var _ interfaces.Transport = (*SimulatedNetwork)(nil)

// ErrSimulatedFailure is returned by sends while failure mode is enabled.
var ErrSimulatedFailure = errors.New("simulated network failure")

// SimulatedNetwork implements interfaces.Transport in memory for testing.
type SimulatedNetwork struct {
	handlers      interfaces.Handlers
	connectErr    error
	connected     bool
	closed        bool
	deliveryLog   []DeliveryRecord
	failErr       error
	udpPort       uint16
	attemptResult bool
	attempts      int
	onSend        func(DeliveryRecord)
	mu            sync.RWMutex
}

// DeliveryRecord represents one send for testing verification.
type DeliveryRecord struct {
	Type      packet.Type
	Body      []byte
	Media     bool
	Timestamp int64
	Success   bool
	Error     error
}

// NetworkStats summarizes the delivery log.
type NetworkStats struct {
	TotalDeliveries      int
	SuccessfulDeliveries int
	FailedDeliveries     int
	MediaDeliveries      int
	ConnectionAttempts   int
}

// NewSimulatedNetwork creates a network double bound to udpPort.
func NewSimulatedNetwork(udpPort uint16) *SimulatedNetwork {
	logrus.WithFields(logrus.Fields{
		"function": "NewSimulatedNetwork",
		"udp_port": udpPort,
	}).Debug("Creating simulated network for testing")

	return &SimulatedNetwork{
		deliveryLog: make([]DeliveryRecord, 0),
		udpPort:     udpPort,
	}
}

// SendPacket implements interfaces.PacketSender.
func (s *SimulatedNetwork) SendPacket(body []byte, packetType packet.Type) error {
	return s.record(body, packetType, false)
}

// SendMedia implements interfaces.MediaSender.
func (s *SimulatedNetwork) SendMedia(body []byte, packetType packet.Type) error {
	return s.record(body, packetType, true)
}

func (s *SimulatedNetwork) record(body []byte, packetType packet.Type, media bool) error {
	s.mu.Lock()
	rec := DeliveryRecord{
		Type:      packetType,
		Body:      append([]byte(nil), body...),
		Media:     media,
		Timestamp: time.Now().UnixNano(),
		Success:   s.failErr == nil,
		Error:     s.failErr,
	}
	s.deliveryLog = append(s.deliveryLog, rec)
	hook := s.onSend
	s.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function":    "SimulatedNetwork.record",
		"packet_type": packetType.String(),
		"body_size":   len(body),
		"success":     rec.Success,
	}).Debug("Simulated delivery")

	if hook != nil && rec.Success {
		hook(rec)
	}
	return rec.Error
}

// LocalUDPPort implements interfaces.PortProvider.
func (s *SimulatedNetwork) LocalUDPPort() uint16 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.udpPort
}

// AttemptEstablishConnection implements interfaces.ConnectionAttempter.
func (s *SimulatedNetwork) AttemptEstablishConnection() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts++
	if s.attemptResult {
		s.connected = true
	}
	return s.attemptResult
}

// SetFailure makes every following send fail with err. A nil err restores
// successful delivery.
func (s *SimulatedNetwork) SetFailure(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failErr = err
}

// SetAttemptResult sets what AttemptEstablishConnection reports.
func (s *SimulatedNetwork) SetAttemptResult(ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attemptResult = ok
}

// SetUDPPort changes the reported local UDP port.
func (s *SimulatedNetwork) SetUDPPort(port uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.udpPort = port
}

// OnSend registers a hook called after every successful send, outside the
// lock. Tests use it to play the server side.
func (s *SimulatedNetwork) OnSend(hook func(DeliveryRecord)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onSend = hook
}

// Attempts returns how many connection attempts were made.
func (s *SimulatedNetwork) Attempts() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.attempts
}

// GetDeliveryLog returns a copy of the delivery log.
func (s *SimulatedNetwork) GetDeliveryLog() []DeliveryRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	log := make([]DeliveryRecord, len(s.deliveryLog))
	copy(log, s.deliveryLog)
	return log
}

// Sent returns the successful deliveries of the given type, in order.
func (s *SimulatedNetwork) Sent(packetType packet.Type) []DeliveryRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []DeliveryRecord
	for _, rec := range s.deliveryLog {
		if rec.Type == packetType && rec.Success {
			out = append(out, rec)
		}
	}
	return out
}

// Last returns the most recent delivery.
func (s *SimulatedNetwork) Last() (DeliveryRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.deliveryLog) == 0 {
		return DeliveryRecord{}, false
	}
	return s.deliveryLog[len(s.deliveryLog)-1], true
}

// ClearDeliveryLog clears the delivery log.
func (s *SimulatedNetwork) ClearDeliveryLog() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deliveryLog = make([]DeliveryRecord, 0)
}

// GetStats returns statistics about the simulation.
func (s *SimulatedNetwork) GetStats() NetworkStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := NetworkStats{
		TotalDeliveries:    len(s.deliveryLog),
		ConnectionAttempts: s.attempts,
	}
	for _, rec := range s.deliveryLog {
		if rec.Success {
			stats.SuccessfulDeliveries++
		} else {
			stats.FailedDeliveries++
		}
		if rec.Media {
			stats.MediaDeliveries++
		}
	}
	return stats
}

// SetHandlers implements interfaces.Transport.
func (s *SimulatedNetwork) SetHandlers(h interfaces.Handlers) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers = h
}

// Connect implements interfaces.Transport. It fails with the error set by
// SetConnectError.
func (s *SimulatedNetwork) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.connectErr != nil {
		return s.connectErr
	}
	s.connected = true
	return nil
}

// Close implements interfaces.Transport.
func (s *SimulatedNetwork) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = false
	s.closed = true
	return nil
}

// SetConnectError makes Connect fail with err. nil restores success.
func (s *SimulatedNetwork) SetConnectError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connectErr = err
}

// Connected reports whether Connect succeeded and Close was not called.
func (s *SimulatedNetwork) Connected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}

// Closed reports whether Close was called.
func (s *SimulatedNetwork) Closed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

// Deliver encodes v as the body of a packet of type t and hands it to the
// packet handler, as if the server had sent it.
func (s *SimulatedNetwork) Deliver(t packet.Type, v interface{}) error {
	p, err := packet.Encode(t, v)
	if err != nil {
		return err
	}
	s.mu.RLock()
	handle := s.handlers.Packet
	s.mu.RUnlock()
	if handle != nil {
		handle(p)
	}
	return nil
}

// DeliverMedia hands a media packet to the media handler.
func (s *SimulatedNetwork) DeliverMedia(t packet.Type, body []byte) {
	s.mu.RLock()
	handle := s.handlers.Media
	s.mu.RUnlock()
	if handle != nil {
		handle(packet.New(t, append([]byte(nil), body...)))
	}
}

// Disconnect simulates a lost connection.
func (s *SimulatedNetwork) Disconnect(err error) {
	s.mu.Lock()
	s.connected = false
	handle := s.handlers.Disconnect
	s.mu.Unlock()
	if handle != nil {
		handle(err)
	}
}
