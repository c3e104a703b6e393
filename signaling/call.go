package signaling

import (
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/callcore/interfaces"
	"github.com/opd-ai/callcore/operation"
	"github.com/opd-ai/callcore/packet"
	"github.com/opd-ai/callcore/state"
)

// CallService drives the one-to-one call lifecycle.
//
// The client represents at most one outgoing call and one active call at a
// time. Several incoming offers may be pending at once.
type CallService struct {
	base
}

// NewCallService creates a CallService.
func NewCallService(st *state.Manager, ops *operation.Tracker, sender interfaces.PacketSender) *CallService {
	return &CallService{base: base{state: st, ops: ops, sender: sender}}
}

// StartOutgoingCall calls nickname.
//
// It returns ErrAcceptCallInsteadOfStart when nickname already has a pending
// offer to us, so the two peers never create two independent calls.
func (s *CallService) StartOutgoingCall(nickname string) error {
	if err := s.checkSession(); err != nil {
		return err
	}
	if err := ValidateNickname(nickname); err != nil {
		return err
	}
	if nickname == s.state.Nickname() {
		return ErrSelfCall
	}
	if s.state.IsActiveCall() {
		return ErrActiveCall
	}
	if s.state.IsOutgoingCall() {
		return ErrOutgoingCall
	}
	if s.state.HasIncomingCall(nickname) {
		return ErrAcceptCallInsteadOfStart
	}

	// Reserve the target before sending: the answer may be dispatched before
	// SendPacket returns.
	op := operation.New(operation.StartOutgoingCall, nickname)
	if !s.ops.Add(op) {
		return ErrOperationInProgress
	}
	if !s.state.SetOutgoingCall(nickname) {
		// A peer-driven transition made us busy after the checks.
		s.ops.Remove(op)
		return ErrActiveCall
	}

	if err := s.send("CallService.StartOutgoingCall", packet.TypeStartOutgoingCall, &packet.NicknameBody{Nickname: nickname}); err != nil {
		s.state.ClearOutgoingCallIf(nickname)
		s.ops.Remove(op)
		return err
	}

	logrus.WithFields(logrus.Fields{
		"function": "CallService.StartOutgoingCall",
		"nickname": nickname,
	}).Info("Outgoing call started")
	return nil
}

// StopOutgoingCall cancels the ringing outgoing call.
func (s *CallService) StopOutgoingCall() error {
	if err := s.checkSession(); err != nil {
		return err
	}
	nickname, ok := s.state.OutgoingCall()
	if !ok {
		return ErrNoOutgoingCall
	}

	if err := s.send("CallService.StopOutgoingCall", packet.TypeStopOutgoingCall, &packet.NicknameBody{Nickname: nickname}); err != nil {
		return err
	}

	s.state.ClearOutgoingCallIf(nickname)
	s.ops.Remove(operation.New(operation.StartOutgoingCall, nickname))

	logrus.WithFields(logrus.Fields{
		"function": "CallService.StopOutgoingCall",
		"nickname": nickname,
	}).Info("Outgoing call stopped")
	return nil
}

// AcceptCall accepts the pending offer from nickname. A ringing outgoing call
// is cancelled first.
func (s *CallService) AcceptCall(nickname string) error {
	if err := s.checkSession(); err != nil {
		return err
	}
	if s.state.IsActiveCall() {
		return ErrActiveCall
	}
	if !s.state.HasIncomingCall(nickname) {
		return ErrNoIncomingCall
	}
	op := operation.New(operation.AcceptCall, nickname)
	if s.ops.Contains(op) {
		return ErrOperationInProgress
	}

	if outgoing, ok := s.state.OutgoingCall(); ok {
		if err := s.StopOutgoingCall(); err != nil {
			return err
		}
		logrus.WithFields(logrus.Fields{
			"function": "CallService.AcceptCall",
			"outgoing": outgoing,
		}).Debug("Cancelled outgoing call before accepting")
	}

	if !s.ops.Add(op) {
		return ErrOperationInProgress
	}
	s.state.SetInCallWith(nickname)

	if err := s.send("CallService.AcceptCall", packet.TypeAcceptCall, &packet.NicknameBody{Nickname: nickname}); err != nil {
		s.state.ChangeStateOnEndCall()
		s.state.AddIncomingCall(nickname)
		s.ops.Remove(op)
		return err
	}

	logrus.WithFields(logrus.Fields{
		"function": "CallService.AcceptCall",
		"nickname": nickname,
	}).Info("Call accepted")
	return nil
}

// DeclineCall declines the pending offer from nickname.
func (s *CallService) DeclineCall(nickname string) error {
	if err := s.checkSession(); err != nil {
		return err
	}
	if !s.state.HasIncomingCall(nickname) {
		return ErrNoIncomingCall
	}

	if err := s.send("CallService.DeclineCall", packet.TypeDeclineCall, &packet.NicknameBody{Nickname: nickname}); err != nil {
		return err
	}

	s.state.RemoveIncomingCall(nickname)

	logrus.WithFields(logrus.Fields{
		"function": "CallService.DeclineCall",
		"nickname": nickname,
	}).Info("Call declined")
	return nil
}

// EndCall hangs up the active call.
func (s *CallService) EndCall() error {
	if err := s.checkSession(); err != nil {
		return err
	}
	partner, ok := s.state.InCallWith()
	if !ok {
		return ErrNoActiveCall
	}

	if err := s.send("CallService.EndCall", packet.TypeEndCall, &packet.NicknameBody{Nickname: partner}); err != nil {
		return err
	}

	s.state.ChangeStateOnEndCall()
	s.ops.Remove(operation.New(operation.AcceptCall, partner))

	logrus.WithFields(logrus.Fields{
		"function": "CallService.EndCall",
		"nickname": partner,
	}).Info("Call ended")
	return nil
}
