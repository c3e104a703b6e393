package signaling

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/callcore/interfaces"
	"github.com/opd-ai/callcore/operation"
	"github.com/opd-ai/callcore/packet"
	"github.com/opd-ai/callcore/state"
)

// DefaultKeyWait bounds how long Authorize blocks on key generation.
const DefaultKeyWait = 30 * time.Second

// KeySource provides the local public key, generating it on demand.
type KeySource interface {
	HasKeys() bool
	GenerateAsync()
	AwaitKeys(ctx context.Context) error
	PublicKey() []byte
}

// AuthorizationService opens and closes the signaling session.
type AuthorizationService struct {
	base
	keys    KeySource
	ports   interfaces.PortProvider
	keyWait time.Duration
}

// NewAuthorizationService creates an AuthorizationService.
func NewAuthorizationService(st *state.Manager, ops *operation.Tracker, keys KeySource,
	sender interfaces.PacketSender, ports interfaces.PortProvider,
) *AuthorizationService {
	return &AuthorizationService{
		base:    base{state: st, ops: ops, sender: sender},
		keys:    keys,
		ports:   ports,
		keyWait: DefaultKeyWait,
	}
}

// SetKeyWait changes how long Authorize waits for key generation.
func (s *AuthorizationService) SetKeyWait(d time.Duration) {
	if d > 0 {
		s.keyWait = d
	}
}

// Authorize sends an AUTHORIZE request for nickname.
//
// If no key material exists yet, key generation is started and the calling
// goroutine blocks until it completes. The session only becomes authorized
// once the server's AUTHORIZATION_RESULT arrives.
func (s *AuthorizationService) Authorize(nickname string) error {
	if s.state.IsConnectionDown() {
		return ErrConnectionDown
	}
	if s.state.IsAuthorized() {
		return ErrAlreadyAuthorized
	}
	if s.ops.ContainsType(operation.Authorize) {
		return ErrOperationInProgress
	}
	if err := ValidateNickname(nickname); err != nil {
		return err
	}

	if !s.keys.HasKeys() {
		logrus.WithFields(logrus.Fields{
			"function": "AuthorizationService.Authorize",
		}).Info("No key material, waiting for key generation")

		s.keys.GenerateAsync()
		ctx, cancel := context.WithTimeout(context.Background(), s.keyWait)
		defer cancel()
		if err := s.keys.AwaitKeys(ctx); err != nil {
			return fmt.Errorf("key generation: %w", err)
		}
	}

	req := packet.AuthorizationRequest{
		Version:   packet.ProtocolVersion,
		Nickname:  nickname,
		PublicKey: s.keys.PublicKey(),
		UDPPort:   s.ports.LocalUDPPort(),
	}
	// The result may be dispatched before SendPacket returns.
	op := operation.New(operation.Authorize, nickname)
	if !s.ops.Add(op) {
		return ErrOperationInProgress
	}
	if err := s.send("AuthorizationService.Authorize", packet.TypeAuthorize, &req); err != nil {
		s.ops.Remove(op)
		return err
	}

	logrus.WithFields(logrus.Fields{
		"function": "AuthorizationService.Authorize",
		"nickname": nickname,
		"udp_port": req.UDPPort,
	}).Info("Authorization requested")
	return nil
}

// Logout sends a LOGOUT request and resets the local session without waiting
// for the server acknowledgment. A rejection is reported later through
// OnLogoutResult.
func (s *AuthorizationService) Logout() error {
	if err := s.checkSession(); err != nil {
		return err
	}

	nickname := s.state.Nickname()
	op := operation.New(operation.Logout, nickname)
	added := s.ops.Add(op)
	if err := s.send("AuthorizationService.Logout", packet.TypeLogout, &packet.NicknameBody{Nickname: nickname}); err != nil {
		if added {
			s.ops.Remove(op)
		}
		return err
	}

	s.state.Reset()
	s.ops.ClearExcept(op)

	logrus.WithFields(logrus.Fields{
		"function": "AuthorizationService.Logout",
		"nickname": nickname,
	}).Info("Logged out")
	return nil
}
