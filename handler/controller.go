// Package handler demultiplexes inbound packets by type, applies peer-driven
// state transitions and raises EventListener callbacks.
//
// The controller is the only writer of transitions that originate at the
// remote side. It also reconciles the optimistic transitions the signaling
// services apply before the server answers. Unknown packet types, malformed
// bodies and notifications about a peer we are no longer dealing with are
// dropped without touching state.
package handler

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/callcore/operation"
	"github.com/opd-ai/callcore/packet"
	"github.com/opd-ai/callcore/signaling"
	"github.com/opd-ai/callcore/state"
)

// handlerFunc processes one packet body. It returns false when the packet was
// dropped as stale.
type handlerFunc func(body []byte) (bool, error)

// Controller is the PacketHandleController.
type Controller struct {
	state    *state.Manager
	ops      *operation.Tracker
	handlers map[packet.Type]handlerFunc
	metrics  *handlerMetrics

	mu       sync.RWMutex
	listener EventListener
	audio    AudioSink
}

// NewController creates a Controller. Metrics are registered on reg, or on a
// private registry when reg is nil.
func NewController(st *state.Manager, ops *operation.Tracker, reg prometheus.Registerer) *Controller {
	c := &Controller{
		state:    st,
		ops:      ops,
		metrics:  newMetrics(reg),
		listener: NopEventListener{},
	}
	c.handlers = map[packet.Type]handlerFunc{
		packet.TypeAuthorizationResult:               c.handleAuthorizationResult,
		packet.TypeLogoutResult:                      c.handleLogoutResult,
		packet.TypeReconnectResult:                   c.handleReconnectResult,
		packet.TypeStartOutgoingCallResult:           c.handleStartOutgoingCallResult,
		packet.TypeAcceptCallResult:                  c.handleAcceptCallResult,
		packet.TypeIncomingCall:                      c.handleIncomingCall,
		packet.TypeIncomingCallExpired:               c.handleIncomingCallExpired,
		packet.TypeOutgoingCallAccepted:              c.handleOutgoingCallAccepted,
		packet.TypeOutgoingCallDeclined:              c.handleOutgoingCallDeclined,
		packet.TypeOutgoingCallTimeout:               c.handleOutgoingCallTimeout,
		packet.TypeCallEndedByRemote:                 c.handleCallEndedByRemote,
		packet.TypeCallParticipantConnectionDown:     c.handleParticipantDown,
		packet.TypeCallParticipantConnectionRestored: c.handleParticipantRestored,
		packet.TypeStartScreenSharingResult:          c.handleStartScreenSharingResult,
		packet.TypeIncomingScreenSharingStarted:      c.handleRemoteScreen(true),
		packet.TypeIncomingScreenSharingStopped:      c.handleRemoteScreen(false),
		packet.TypeStartCameraSharingResult:          c.handleStartCameraSharingResult,
		packet.TypeIncomingCameraSharingStarted:      c.handleRemoteCamera(true),
		packet.TypeIncomingCameraSharingStopped:      c.handleRemoteCamera(false),
	}
	return c
}

// SetListener replaces the event listener. A nil listener discards events.
func (c *Controller) SetListener(l EventListener) {
	if l == nil {
		l = NopEventListener{}
	}
	c.mu.Lock()
	c.listener = l
	c.mu.Unlock()
}

// SetAudioSink sets where voice frames are delivered.
func (c *Controller) SetAudioSink(s AudioSink) {
	c.mu.Lock()
	c.audio = s
	c.mu.Unlock()
}

func (c *Controller) events() EventListener {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.listener
}

// Handle dispatches one signaling packet.
func (c *Controller) Handle(p *packet.Packet) {
	h, ok := c.handlers[p.Type]
	if !ok {
		c.metrics.dropped.WithLabelValues("unknown_type").Inc()
		logrus.WithFields(logrus.Fields{
			"function":    "Controller.Handle",
			"packet_type": p.Type.String(),
		}).Debug("Dropping packet without handler")
		return
	}

	handled, err := h(p.Body)
	if err != nil {
		c.metrics.dropped.WithLabelValues("malformed").Inc()
		logrus.WithFields(logrus.Fields{
			"function":    "Controller.Handle",
			"packet_type": p.Type.String(),
			"error":       err.Error(),
		}).Warn("Dropping malformed packet")
		return
	}
	if !handled {
		c.metrics.dropped.WithLabelValues("stale").Inc()
		logrus.WithFields(logrus.Fields{
			"function":    "Controller.Handle",
			"packet_type": p.Type.String(),
		}).Debug("Dropping stale notification")
		return
	}
	c.metrics.handled.WithLabelValues(p.Type.String()).Inc()
}

// HandleMedia routes one media packet received over the datagram channel.
func (c *Controller) HandleMedia(p *packet.Packet) {
	if len(p.Body) == 0 {
		c.metrics.dropped.WithLabelValues("empty_media").Inc()
		return
	}

	switch p.Type {
	case packet.TypeVoice:
		c.mu.RLock()
		sink := c.audio
		c.mu.RUnlock()
		if sink == nil || !c.state.IsActiveCall() {
			c.metrics.dropped.WithLabelValues("stale").Inc()
			return
		}
		sink.PlayAudio(p.Body)
	case packet.TypeScreen:
		if !c.state.IsViewingRemoteScreen() {
			c.metrics.dropped.WithLabelValues("stale").Inc()
			return
		}
		c.events().OnIncomingScreen(p.Body)
	case packet.TypeCamera:
		if !c.state.IsViewingRemoteCamera() {
			c.metrics.dropped.WithLabelValues("stale").Inc()
			return
		}
		c.events().OnIncomingCamera(p.Body)
	default:
		c.metrics.dropped.WithLabelValues("unknown_type").Inc()
		return
	}
	c.metrics.handled.WithLabelValues(p.Type.String()).Inc()
}

func decodeResult(body []byte) (*packet.Result, error) {
	var r packet.Result
	if err := packet.DecodeBody(body, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func decodeNickname(body []byte) (string, error) {
	var b packet.NicknameBody
	if err := packet.DecodeBody(body, &b); err != nil {
		return "", err
	}
	if err := signaling.ValidateNickname(b.Nickname); err != nil {
		return "", err
	}
	return b.Nickname, nil
}

func (c *Controller) handleAuthorizationResult(body []byte) (bool, error) {
	r, err := decodeResult(body)
	if err != nil {
		return false, err
	}
	pending := c.ops.RemoveType(operation.Authorize)
	if len(pending) == 0 {
		return false, nil
	}
	nickname := pending[0].Nickname

	err = signaling.StatusError(r.Status)
	if err == nil {
		c.state.SetAuthorized(nickname, r.Token)
	}

	logrus.WithFields(logrus.Fields{
		"function": "Controller.handleAuthorizationResult",
		"nickname": nickname,
		"status":   r.Status,
	}).Info("Authorization result received")

	c.events().OnAuthorizationResult(err, nickname)
	return true, nil
}

func (c *Controller) handleLogoutResult(body []byte) (bool, error) {
	r, err := decodeResult(body)
	if err != nil {
		return false, err
	}
	if len(c.ops.RemoveType(operation.Logout)) == 0 {
		return false, nil
	}

	// The local session was already reset when LOGOUT was sent. A rejection
	// means the server may still hold it; the listener decides whether to
	// authorize again.
	err = signaling.StatusError(r.Status)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Controller.handleLogoutResult",
			"status":   r.Status,
		}).Warn("Logout rejected by server")
	} else {
		logrus.WithFields(logrus.Fields{
			"function": "Controller.handleLogoutResult",
		}).Debug("Logout acknowledged")
	}
	c.events().OnLogoutResult(err)
	return true, nil
}

func (c *Controller) handleReconnectResult(body []byte) (bool, error) {
	r, err := decodeResult(body)
	if err != nil {
		return false, err
	}
	if !c.state.IsConnectionDown() {
		return false, nil
	}

	if r.Succeeded() {
		c.state.SetConnectionDown(false)
		logrus.WithFields(logrus.Fields{
			"function": "Controller.handleReconnectResult",
		}).Info("Session restored")
		c.events().OnConnectionRestored()
		return true, nil
	}

	// The server no longer knows our token; start over from authorization.
	c.state.Reset()
	c.ops.Clear()
	c.state.SetConnectionDown(false)
	logrus.WithFields(logrus.Fields{
		"function": "Controller.handleReconnectResult",
		"status":   r.Status,
	}).Warn("Session lost, authorization needed")
	c.events().OnConnectionRestoredAuthorizationNeeded()
	return true, nil
}

func (c *Controller) handleStartOutgoingCallResult(body []byte) (bool, error) {
	r, err := decodeResult(body)
	if err != nil {
		return false, err
	}
	nickname := r.Nickname
	if nickname == "" {
		nickname, _ = c.state.OutgoingCall()
	}
	if !c.ops.Remove(operation.New(operation.StartOutgoingCall, nickname)) {
		return false, nil
	}

	err = signaling.StatusError(r.Status)
	if err != nil {
		c.state.ClearOutgoingCallIf(nickname)
	}
	c.events().OnStartOutgoingCallResult(err, nickname)
	return true, nil
}

func (c *Controller) handleAcceptCallResult(body []byte) (bool, error) {
	r, err := decodeResult(body)
	if err != nil {
		return false, err
	}
	nickname := r.Nickname
	if nickname == "" {
		nickname, _ = c.state.InCallWith()
	}
	if !c.ops.Remove(operation.New(operation.AcceptCall, nickname)) {
		return false, nil
	}

	err = signaling.StatusError(r.Status)
	if err != nil {
		if partner, ok := c.state.InCallWith(); ok && partner == nickname {
			c.state.ChangeStateOnEndCall()
		}
	}
	c.events().OnAcceptCallResult(err, nickname)
	return true, nil
}

func (c *Controller) handleIncomingCall(body []byte) (bool, error) {
	var b packet.IncomingCall
	if err := packet.DecodeBody(body, &b); err != nil {
		return false, err
	}
	if err := signaling.ValidateNickname(b.Nickname); err != nil {
		return false, err
	}
	if b.Nickname == c.state.Nickname() {
		return false, nil
	}

	c.state.AddIncomingCall(b.Nickname)
	logrus.WithFields(logrus.Fields{
		"function": "Controller.handleIncomingCall",
		"nickname": b.Nickname,
	}).Info("Incoming call")
	c.events().OnIncomingCall(b.Nickname)
	return true, nil
}

func (c *Controller) handleIncomingCallExpired(body []byte) (bool, error) {
	nickname, err := decodeNickname(body)
	if err != nil {
		return false, err
	}
	if !c.state.RemoveIncomingCall(nickname) {
		return false, nil
	}
	c.events().OnIncomingCallExpired(nickname)
	return true, nil
}

func (c *Controller) handleOutgoingCallAccepted(body []byte) (bool, error) {
	nickname, err := decodeNickname(body)
	if err != nil {
		return false, err
	}
	if target, ok := c.state.OutgoingCall(); !ok || target != nickname {
		return false, nil
	}

	c.state.SetInCallWith(nickname)
	c.ops.Remove(operation.New(operation.StartOutgoingCall, nickname))
	logrus.WithFields(logrus.Fields{
		"function": "Controller.handleOutgoingCallAccepted",
		"nickname": nickname,
	}).Info("Outgoing call accepted")
	c.events().OnOutgoingCallAccepted(nickname)
	return true, nil
}

// endOutgoing clears a ringing outgoing call that the remote side or the
// server terminated.
func (c *Controller) endOutgoing(body []byte, notify func(EventListener, string)) (bool, error) {
	nickname, err := decodeNickname(body)
	if err != nil {
		return false, err
	}
	if !c.state.ClearOutgoingCallIf(nickname) {
		return false, nil
	}
	c.ops.Remove(operation.New(operation.StartOutgoingCall, nickname))
	notify(c.events(), nickname)
	return true, nil
}

func (c *Controller) handleOutgoingCallDeclined(body []byte) (bool, error) {
	return c.endOutgoing(body, EventListener.OnOutgoingCallDeclined)
}

func (c *Controller) handleOutgoingCallTimeout(body []byte) (bool, error) {
	return c.endOutgoing(body, EventListener.OnOutgoingCallTimeout)
}

// partnerEvent runs fn when body names the current call partner.
func (c *Controller) partnerEvent(body []byte, fn func(nickname string)) (bool, error) {
	nickname, err := decodeNickname(body)
	if err != nil {
		return false, err
	}
	if partner, ok := c.state.InCallWith(); !ok || partner != nickname {
		return false, nil
	}
	fn(nickname)
	return true, nil
}

func (c *Controller) handleCallEndedByRemote(body []byte) (bool, error) {
	return c.partnerEvent(body, func(nickname string) {
		c.state.ChangeStateOnEndCall()
		c.ops.Remove(operation.New(operation.AcceptCall, nickname))
		logrus.WithFields(logrus.Fields{
			"function": "Controller.handleCallEndedByRemote",
			"nickname": nickname,
		}).Info("Call ended by remote")
		c.events().OnCallEndedByRemote(nickname)
	})
}

func (c *Controller) handleParticipantDown(body []byte) (bool, error) {
	return c.partnerEvent(body, c.events().OnCallParticipantConnectionDown)
}

func (c *Controller) handleParticipantRestored(body []byte) (bool, error) {
	return c.partnerEvent(body, c.events().OnCallParticipantConnectionRestored)
}

// sharingResult completes a pending start-sharing operation.
func (c *Controller) sharingResult(body []byte, opType operation.Type, set func(bool), notify func(EventListener, error)) (bool, error) {
	r, err := decodeResult(body)
	if err != nil {
		return false, err
	}
	if len(c.ops.RemoveType(opType)) == 0 {
		return false, nil
	}

	err = signaling.StatusError(r.Status)
	if err == nil && c.state.IsActiveCall() {
		set(true)
	}
	notify(c.events(), err)
	return true, nil
}

func (c *Controller) handleStartScreenSharingResult(body []byte) (bool, error) {
	return c.sharingResult(body, operation.StartScreenSharing,
		c.state.SetScreenSharing, EventListener.OnStartScreenSharingResult)
}

func (c *Controller) handleStartCameraSharingResult(body []byte) (bool, error) {
	return c.sharingResult(body, operation.StartCameraSharing,
		c.state.SetCameraSharing, EventListener.OnStartCameraSharingResult)
}

func (c *Controller) handleRemoteScreen(started bool) handlerFunc {
	return func(body []byte) (bool, error) {
		return c.partnerEvent(body, func(nickname string) {
			c.state.SetViewingRemoteScreen(started)
			if started {
				c.events().OnIncomingScreenSharingStarted(nickname)
			} else {
				c.events().OnIncomingScreenSharingStopped(nickname)
			}
		})
	}
}

func (c *Controller) handleRemoteCamera(started bool) handlerFunc {
	return func(body []byte) (bool, error) {
		return c.partnerEvent(body, func(nickname string) {
			c.state.SetViewingRemoteCamera(started)
			if started {
				c.events().OnIncomingCameraSharingStarted(nickname)
			} else {
				c.events().OnIncomingCameraSharingStopped(nickname)
			}
		})
	}
}
