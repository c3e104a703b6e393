package callcore

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/callcore/audio"
	"github.com/opd-ai/callcore/crypto"
	"github.com/opd-ai/callcore/handler"
	"github.com/opd-ai/callcore/interfaces"
	"github.com/opd-ai/callcore/operation"
	"github.com/opd-ai/callcore/reconnect"
	"github.com/opd-ai/callcore/signaling"
	"github.com/opd-ai/callcore/state"
	"github.com/opd-ai/callcore/transport"
)

var (
	// ErrNotStarted is returned by operations before Start or after Stop.
	ErrNotStarted = errors.New("core not started")

	// ErrAlreadyStarted is returned by a second Start.
	ErrAlreadyStarted = errors.New("core already started")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("core closed")
)

// UserOperation identifies a pending user-initiated request.
type UserOperation = operation.UserOperation

// Core composes the call client: session state, signaling services, the
// inbound packet handler, reconnection and the audio engine.
type Core struct {
	opts    Options
	session string

	state *state.Manager
	ops   *operation.Tracker
	keys  *crypto.KeyManager
	audio AudioEngine

	mu     sync.RWMutex
	parts  *parts
	closed bool

	audioMu sync.Mutex
}

// parts are the components that live from Start to Stop.
type parts struct {
	listener  EventListener
	network   interfaces.Transport
	auth      *signaling.AuthorizationService
	calls     *signaling.CallService
	media     *signaling.MediaService
	handler   *handler.Controller
	reconnect *reconnect.Service
	voice     *voicePump
	stopWatch context.CancelFunc
}

// New creates a Core. A nil opts uses NewOptions.
func New(opts *Options) (*Core, error) {
	if opts == nil {
		opts = NewOptions()
	}

	c := &Core{
		opts:    *opts,
		session: uuid.NewString(),
		state:   state.NewManager(),
		ops:     operation.NewTracker(opts.OperationTimeout),
		keys:    crypto.NewKeyManager(),
	}

	if opts.PrivateKeyHex != "" {
		if err := c.keys.LoadPrivateKey(opts.PrivateKeyHex); err != nil {
			return nil, fmt.Errorf("load private key: %w", err)
		}
	}

	c.audio = opts.Audio
	if c.audio == nil {
		backend, err := audio.NewMalgoBackend()
		if err != nil {
			return nil, fmt.Errorf("open audio backend: %w", err)
		}
		engine, err := audio.NewEngine(opts.AudioConfig, backend, audio.WithRegisterer(opts.Registerer))
		if err != nil {
			_ = backend.Close()
			return nil, fmt.Errorf("create audio engine: %w", err)
		}
		c.audio = engine
	}

	c.ops.OnTimeout(c.onOperationTimeout)

	c.log("New").Info("Call core created")
	return c, nil
}

func (c *Core) log(function string) *logrus.Entry {
	return logrus.WithFields(logrus.Fields{
		"function": "Core." + function,
		"session":  c.session,
	})
}

// Session returns the identifier carried in this core's log lines.
func (c *Core) Session() string {
	return c.session
}

// current returns the started components.
func (c *Core) current() (*parts, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.parts == nil {
		return nil, ErrNotStarted
	}
	return c.parts, nil
}

// Start connects to the server and begins dispatching events to l.
// If the first connection fails, everything is torn down and the error is
// returned wrapped in signaling.ErrNetworkError.
func (c *Core) Start(tcpHost, udpHost string, tcpPort, udpPort uint16, l EventListener) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.parts != nil {
		c.mu.Unlock()
		return ErrAlreadyStarted
	}
	p := c.assemble(tcpHost, udpHost, tcpPort, udpPort, l)
	c.parts = p
	c.mu.Unlock()

	if err := p.network.Connect(context.Background()); err != nil {
		c.log("Start").WithField("error", err.Error()).Error("Failed to connect to server")
		c.detach(p)
		c.teardown(p)
		return fmt.Errorf("%w: %v", signaling.ErrNetworkError, err)
	}

	if c.opts.DeviceWatchInterval > 0 {
		ctx, cancel := context.WithCancel(context.Background())
		c.mu.Lock()
		if c.parts == p {
			p.stopWatch = cancel
			go c.audio.WatchDevices(ctx, c.opts.DeviceWatchInterval)
		} else {
			cancel()
		}
		c.mu.Unlock()
	}

	c.log("Start").WithFields(logrus.Fields{
		"tcp_host":  tcpHost,
		"tcp_port":  tcpPort,
		"udp_host":  udpHost,
		"udp_port":  udpPort,
		"local_udp": p.network.LocalUDPPort(),
	}).Info("Call core started")
	return nil
}

func (c *Core) assemble(tcpHost, udpHost string, tcpPort, udpPort uint16, l EventListener) *parts {
	if l == nil {
		l = NopEventListener{}
	}

	network := c.opts.Transport
	if network == nil {
		network = transport.New(transport.Config{
			TCPAddr:          net.JoinHostPort(tcpHost, strconv.Itoa(int(tcpPort))),
			UDPAddr:          net.JoinHostPort(udpHost, strconv.Itoa(int(udpPort))),
			DialTimeout:      c.opts.DialTimeout,
			KeepaliveTimeout: c.opts.KeepaliveTimeout,
		})
	}

	watcher := &callWatcher{EventListener: l, core: c}
	h := handler.NewController(c.state, c.ops, c.opts.Registerer)
	h.SetListener(watcher)
	h.SetAudioSink(c.audio)

	network.SetHandlers(interfaces.Handlers{
		Packet:     h.Handle,
		Media:      h.HandleMedia,
		Disconnect: c.onDisconnect,
	})

	auth := signaling.NewAuthorizationService(c.state, c.ops, c.keys, network, network)
	auth.SetKeyWait(c.opts.KeyWait)

	p := &parts{
		listener: l,
		network:  network,
		handler:  h,
		auth:     auth,
		calls:    signaling.NewCallService(c.state, c.ops, network),
		media:    signaling.NewMediaService(c.state, c.ops, network, network),
		reconnect: reconnect.NewService(c.state, network, network, network,
			reconnect.WithIdleInterval(c.opts.ReconnectInterval),
			reconnect.WithAuthorizationNeeded(watcher.OnConnectionRestoredAuthorizationNeeded),
		),
		voice: newVoicePump(network, func() bool {
			return c.state.IsActiveCall() && !c.state.IsConnectionDown()
		}),
	}
	c.audio.SetEncodedCallback(p.voice.push)
	return p
}

// Stop disconnects and resets the session. The core can be started again.
func (c *Core) Stop() {
	c.mu.RLock()
	p := c.parts
	c.mu.RUnlock()
	if p == nil || !c.detach(p) {
		return
	}
	c.teardown(p)
	c.log("Stop").Info("Call core stopped")
}

// detach clears p from the core. It reports false if p was already gone.
func (c *Core) detach(p *parts) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.parts != p {
		return false
	}
	c.parts = nil
	return true
}

// teardown runs without c.mu held: closing the transport waits for its read
// loops, which may be inside listener callbacks that call back into the core.
func (c *Core) teardown(p *parts) {
	if p.stopWatch != nil {
		p.stopWatch()
	}
	p.reconnect.Close()
	_ = p.network.Close()
	c.audio.SetEncodedCallback(nil)
	p.voice.close()
	c.stopAudio()

	c.ops.Clear()
	c.state.Reset()
	c.state.SetConnectionDown(false)
}

// Close stops the core and releases the audio engine.
func (c *Core) Close() error {
	c.Stop()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.audio.Close()
}

// IsRunning reports whether Start succeeded and Stop has not been called.
func (c *Core) IsRunning() bool {
	_, err := c.current()
	return err == nil
}

// onDisconnect is called by the transport when the signaling connection
// is lost.
func (c *Core) onDisconnect(err error) {
	p, cerr := c.current()
	if cerr != nil {
		return
	}
	if c.state.IsConnectionDown() {
		// Lost again before RECONNECT_RESULT arrived.
		p.reconnect.StartReconnectionAttempts()
		return
	}

	c.log("onDisconnect").WithField("error", err.Error()).Warn("Connection to server lost")

	c.state.SetConnectionDown(true)
	c.stopAudio()
	p.listener.OnConnectionDown()
	p.reconnect.StartReconnectionAttempts()
}

// onOperationTimeout reports an unanswered request as a failed result.
func (c *Core) onOperationTimeout(op UserOperation) {
	p, cerr := c.current()
	if cerr != nil {
		return
	}
	l := p.listener

	err := signaling.ErrNetworkError
	switch op.Type {
	case operation.Authorize:
		l.OnAuthorizationResult(err, op.Nickname)
	case operation.Logout:
		l.OnLogoutResult(err)
	case operation.StartOutgoingCall:
		c.state.ClearOutgoingCallIf(op.Nickname)
		l.OnStartOutgoingCallResult(err, op.Nickname)
	case operation.AcceptCall:
		if partner, ok := c.state.InCallWith(); ok && partner == op.Nickname {
			c.state.ChangeStateOnEndCall()
			c.stopAudio()
		}
		l.OnAcceptCallResult(err, op.Nickname)
	case operation.StartScreenSharing:
		l.OnStartScreenSharingResult(err)
	case operation.StartCameraSharing:
		l.OnStartCameraSharingResult(err)
	}
}

// startAudio starts the stream for an active call. Failures are logged; the
// call continues without audio.
func (c *Core) startAudio() {
	c.audioMu.Lock()
	defer c.audioMu.Unlock()

	if c.audio.IsStreamRunning() {
		return
	}
	c.audio.MuteMicrophone(c.state.IsMicrophoneMuted())
	c.audio.MuteSpeaker(c.state.IsSpeakerMuted())
	if err := c.audio.StartStream(); err != nil {
		c.log("startAudio").WithField("error", err.Error()).Error("Audio stream failed to start")
	}
}

// stopAudio stops the stream and drops queued playback.
func (c *Core) stopAudio() {
	c.audioMu.Lock()
	defer c.audioMu.Unlock()

	c.audio.StopStream()
	c.audio.DrainQueue()
}
