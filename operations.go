package callcore

import (
	"math"

	"github.com/opd-ai/callcore/audio"
	"github.com/opd-ai/callcore/state"
)

// MaxVolumePercent is the upper bound of the volume setters.
const MaxVolumePercent = 200

// Authorize requests a session for nickname. The outcome arrives through
// OnAuthorizationResult.
func (c *Core) Authorize(nickname string) error {
	p, err := c.current()
	if err != nil {
		return err
	}
	return p.auth.Authorize(nickname)
}

// Logout ends the session. Local state is reset as soon as the request is
// sent.
func (c *Core) Logout() error {
	p, err := c.current()
	if err != nil {
		return err
	}
	if err := p.auth.Logout(); err != nil {
		return err
	}
	c.stopAudio()
	return nil
}

// StartOutgoingCall calls nickname.
func (c *Core) StartOutgoingCall(nickname string) error {
	p, err := c.current()
	if err != nil {
		return err
	}
	return p.calls.StartOutgoingCall(nickname)
}

// StopOutgoingCall cancels the outgoing call.
func (c *Core) StopOutgoingCall() error {
	p, err := c.current()
	if err != nil {
		return err
	}
	return p.calls.StopOutgoingCall()
}

// AcceptCall answers the incoming call from nickname and starts audio.
func (c *Core) AcceptCall(nickname string) error {
	p, err := c.current()
	if err != nil {
		return err
	}
	if err := p.calls.AcceptCall(nickname); err != nil {
		return err
	}
	c.startAudio()
	return nil
}

// DeclineCall rejects the incoming call from nickname.
func (c *Core) DeclineCall(nickname string) error {
	p, err := c.current()
	if err != nil {
		return err
	}
	return p.calls.DeclineCall(nickname)
}

// EndCall hangs up the active call and stops audio.
func (c *Core) EndCall() error {
	p, err := c.current()
	if err != nil {
		return err
	}
	if err := p.calls.EndCall(); err != nil {
		return err
	}
	c.stopAudio()
	return nil
}

// StartScreenSharing asks the server to relay screen frames to the partner.
func (c *Core) StartScreenSharing() error {
	p, err := c.current()
	if err != nil {
		return err
	}
	return p.media.StartScreenSharing()
}

// StopScreenSharing stops relaying screen frames.
func (c *Core) StopScreenSharing() error {
	p, err := c.current()
	if err != nil {
		return err
	}
	return p.media.StopScreenSharing()
}

// StartCameraSharing asks the server to relay camera frames to the partner.
func (c *Core) StartCameraSharing() error {
	p, err := c.current()
	if err != nil {
		return err
	}
	return p.media.StartCameraSharing()
}

// StopCameraSharing stops relaying camera frames.
func (c *Core) StopCameraSharing() error {
	p, err := c.current()
	if err != nil {
		return err
	}
	return p.media.StopCameraSharing()
}

// SendScreen sends one encoded screen frame.
func (c *Core) SendScreen(frame []byte) error {
	p, err := c.current()
	if err != nil {
		return err
	}
	return p.media.SendScreen(frame)
}

// SendCamera sends one encoded camera frame.
func (c *Core) SendCamera(frame []byte) error {
	p, err := c.current()
	if err != nil {
		return err
	}
	return p.media.SendCamera(frame)
}

// PendingOperations lists requests still waiting for a result.
func (c *Core) PendingOperations() []UserOperation {
	return c.ops.Pending()
}

// State queries.

func (c *Core) IsAuthorized() bool          { return c.state.IsAuthorized() }
func (c *Core) IsConnectionDown() bool      { return c.state.IsConnectionDown() }
func (c *Core) IsActiveCall() bool          { return c.state.IsActiveCall() }
func (c *Core) IsOutgoingCall() bool        { return c.state.IsOutgoingCall() }
func (c *Core) IsScreenSharing() bool       { return c.state.IsScreenSharing() }
func (c *Core) IsCameraSharing() bool       { return c.state.IsCameraSharing() }
func (c *Core) IsViewingRemoteScreen() bool { return c.state.IsViewingRemoteScreen() }
func (c *Core) IsViewingRemoteCamera() bool { return c.state.IsViewingRemoteCamera() }
func (c *Core) IsMicrophoneMuted() bool     { return c.state.IsMicrophoneMuted() }
func (c *Core) IsSpeakerMuted() bool        { return c.state.IsSpeakerMuted() }
func (c *Core) Nickname() string            { return c.state.Nickname() }
func (c *Core) IncomingCalls() []string     { return c.state.IncomingCalls() }
func (c *Core) Snapshot() state.Snapshot    { return c.state.Snapshot() }

// OutgoingCallNickname returns the callee of the outgoing call.
func (c *Core) OutgoingCallNickname() (string, bool) { return c.state.OutgoingCall() }

// CallPartner returns the partner of the active call.
func (c *Core) CallPartner() (string, bool) { return c.state.InCallWith() }

// Audio controls.

// MuteMicrophone stops sending captured audio.
func (c *Core) MuteMicrophone(muted bool) {
	c.state.SetMicrophoneMuted(muted)
	c.audio.MuteMicrophone(muted)
}

// MuteSpeaker silences playback.
func (c *Core) MuteSpeaker(muted bool) {
	c.state.SetSpeakerMuted(muted)
	c.audio.MuteSpeaker(muted)
}

// SetInputVolume sets the microphone volume in percent, clamped to
// [0, MaxVolumePercent].
func (c *Core) SetInputVolume(percent int) {
	c.audio.SetInputVolume(percentToGain(percent))
}

// SetOutputVolume sets the speaker volume in percent, clamped to
// [0, MaxVolumePercent].
func (c *Core) SetOutputVolume(percent int) {
	c.audio.SetOutputVolume(percentToGain(percent))
}

// InputVolume returns the microphone volume in percent.
func (c *Core) InputVolume() int { return gainToPercent(c.audio.InputVolume()) }

// OutputVolume returns the speaker volume in percent.
func (c *Core) OutputVolume() int { return gainToPercent(c.audio.OutputVolume()) }

func percentToGain(percent int) float32 {
	percent = min(max(percent, 0), MaxVolumePercent)
	return float32(percent) / 100
}

func gainToPercent(gain float32) int {
	return int(math.Round(float64(gain) * 100))
}

// InputDevices lists capture devices.
func (c *Core) InputDevices() ([]audio.DeviceInfo, error) { return c.audio.InputDevices() }

// OutputDevices lists playback devices.
func (c *Core) OutputDevices() ([]audio.DeviceInfo, error) { return c.audio.OutputDevices() }

// SetInputDevice switches the capture device.
func (c *Core) SetInputDevice(index int) error { return c.audio.SetInputDevice(index) }

// SetOutputDevice switches the playback device.
func (c *Core) SetOutputDevice(index int) error { return c.audio.SetOutputDevice(index) }

// RefreshAudioDevices rebuilds the audio stream after a device change.
func (c *Core) RefreshAudioDevices() error { return c.audio.RefreshAudioDevices() }
