package signaling

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/callcore/interfaces"
	"github.com/opd-ai/callcore/limits"
	"github.com/opd-ai/callcore/operation"
	"github.com/opd-ai/callcore/packet"
	"github.com/opd-ai/callcore/state"
)

// MediaService negotiates screen and camera sharing within the active call and
// forwards already-encoded frames over the media channel.
type MediaService struct {
	base
	media interfaces.MediaSender
}

// NewMediaService creates a MediaService.
func NewMediaService(st *state.Manager, ops *operation.Tracker,
	sender interfaces.PacketSender, media interfaces.MediaSender,
) *MediaService {
	return &MediaService{base: base{state: st, ops: ops, sender: sender}, media: media}
}

// source describes one shareable media source.
type source struct {
	name      string
	startOp   operation.Type
	startType packet.Type
	stopType  packet.Type
	mediaType packet.Type
	sharing   func(*state.Manager) bool
	setShare  func(*state.Manager, bool)
}

var (
	screenSource = source{
		name:      "screen",
		startOp:   operation.StartScreenSharing,
		startType: packet.TypeStartScreenSharing,
		stopType:  packet.TypeStopScreenSharing,
		mediaType: packet.TypeScreen,
		sharing:   (*state.Manager).IsScreenSharing,
		setShare:  (*state.Manager).SetScreenSharing,
	}
	cameraSource = source{
		name:      "camera",
		startOp:   operation.StartCameraSharing,
		startType: packet.TypeStartCameraSharing,
		stopType:  packet.TypeStopCameraSharing,
		mediaType: packet.TypeCamera,
		sharing:   (*state.Manager).IsCameraSharing,
		setShare:  (*state.Manager).SetCameraSharing,
	}
)

// StartScreenSharing asks the server to relay our screen to the call partner.
// The sharing flag is set when the result arrives.
func (s *MediaService) StartScreenSharing() error { return s.start(screenSource) }

// StopScreenSharing stops sharing the screen.
func (s *MediaService) StopScreenSharing() error { return s.stop(screenSource) }

// StartCameraSharing asks the server to relay our camera to the call partner.
func (s *MediaService) StartCameraSharing() error { return s.start(cameraSource) }

// StopCameraSharing stops sharing the camera.
func (s *MediaService) StopCameraSharing() error { return s.stop(cameraSource) }

// SendScreen sends one encoded screen frame.
func (s *MediaService) SendScreen(frame []byte) error { return s.sendFrame(screenSource, frame) }

// SendCamera sends one encoded camera frame.
func (s *MediaService) SendCamera(frame []byte) error { return s.sendFrame(cameraSource, frame) }

func (s *MediaService) start(src source) error {
	if err := s.checkSession(); err != nil {
		return err
	}
	partner, ok := s.state.InCallWith()
	if !ok {
		return ErrNoActiveCall
	}
	if src.sharing(s.state) {
		return ErrAlreadySharing
	}
	op := operation.New(src.startOp, partner)
	if s.ops.Contains(op) {
		return ErrOperationInProgress
	}

	if !s.ops.Add(op) {
		return ErrOperationInProgress
	}
	if err := s.send("MediaService.start", src.startType, &packet.NicknameBody{Nickname: partner}); err != nil {
		s.ops.Remove(op)
		return err
	}

	logrus.WithFields(logrus.Fields{
		"function": "MediaService.start",
		"source":   src.name,
		"nickname": partner,
	}).Info("Sharing requested")
	return nil
}

func (s *MediaService) stop(src source) error {
	if err := s.checkSession(); err != nil {
		return err
	}
	partner, ok := s.state.InCallWith()
	if !ok {
		return ErrNoActiveCall
	}
	if !src.sharing(s.state) {
		return ErrNotSharing
	}

	if err := s.send("MediaService.stop", src.stopType, &packet.NicknameBody{Nickname: partner}); err != nil {
		return err
	}
	src.setShare(s.state, false)

	logrus.WithFields(logrus.Fields{
		"function": "MediaService.stop",
		"source":   src.name,
		"nickname": partner,
	}).Info("Sharing stopped")
	return nil
}

func (s *MediaService) sendFrame(src source, frame []byte) error {
	if s.state.IsConnectionDown() {
		return ErrConnectionDown
	}
	if !src.sharing(s.state) {
		return ErrNotSharing
	}
	if err := limits.ValidateMediaBody(frame); err != nil {
		return err
	}
	if err := s.media.SendMedia(frame, src.mediaType); err != nil {
		return fmt.Errorf("%w: %v", ErrNetworkError, err)
	}
	return nil
}
