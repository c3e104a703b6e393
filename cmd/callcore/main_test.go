package main

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/opd-ai/callcore"
	"github.com/opd-ai/callcore/audio"
	"github.com/opd-ai/callcore/config"
	"github.com/opd-ai/callcore/operation"
	"github.com/opd-ai/callcore/signaling"
)

type fakeCommander struct {
	calls     []string
	micMuted  bool
	inVolume  int
	outVolume int
	err       error
}

func (f *fakeCommander) record(s string) error {
	f.calls = append(f.calls, s)
	return f.err
}

func (f *fakeCommander) Authorize(n string) error         { return f.record("auth " + n) }
func (f *fakeCommander) Logout() error                    { return f.record("logout") }
func (f *fakeCommander) StartOutgoingCall(n string) error { return f.record("call " + n) }
func (f *fakeCommander) StopOutgoingCall() error          { return f.record("cancel") }
func (f *fakeCommander) AcceptCall(n string) error        { return f.record("accept " + n) }
func (f *fakeCommander) DeclineCall(n string) error       { return f.record("decline " + n) }
func (f *fakeCommander) EndCall() error                   { return f.record("end") }
func (f *fakeCommander) MuteMicrophone(m bool)            { f.micMuted = m }
func (f *fakeCommander) MuteSpeaker(bool)                 {}
func (f *fakeCommander) SetInputVolume(p int)             { f.inVolume = min(max(p, 0), 200) }
func (f *fakeCommander) SetOutputVolume(p int)            { f.outVolume = p }
func (f *fakeCommander) InputVolume() int                 { return f.inVolume }
func (f *fakeCommander) OutputVolume() int                { return f.outVolume }

func (f *fakeCommander) InputDevices() ([]audio.DeviceInfo, error) {
	return []audio.DeviceInfo{{Index: 0, Name: "Built-in Mic", IsDefaultInput: true}}, nil
}

func (f *fakeCommander) OutputDevices() ([]audio.DeviceInfo, error) {
	return []audio.DeviceInfo{{Index: 1, Name: "Headphones"}}, nil
}

func (f *fakeCommander) PendingOperations() []callcore.UserOperation {
	return []callcore.UserOperation{operation.New(operation.StartOutgoingCall, "bob")}
}

func TestExecuteDispatchesCommands(t *testing.T) {
	tests := []struct {
		line string
		want string
	}{
		{"auth alice", "auth alice"},
		{"logout", "logout"},
		{"call bob", "call bob"},
		{"cancel", "cancel"},
		{"accept carol", "accept carol"},
		{"decline carol", "decline carol"},
		{"end", "end"},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			f := &fakeCommander{}
			var out bytes.Buffer
			if quit := execute(f, tt.line, &out); quit {
				t.Fatal("unexpected quit")
			}
			if len(f.calls) != 1 || f.calls[0] != tt.want {
				t.Errorf("calls = %v, want [%s]", f.calls, tt.want)
			}
			if !strings.Contains(out.String(), "sent") {
				t.Errorf("output = %q", out.String())
			}
		})
	}
}

func TestExecuteReportsErrors(t *testing.T) {
	f := &fakeCommander{err: signaling.ErrNotAuthorized}
	var out bytes.Buffer
	execute(f, "call bob", &out)
	if !strings.Contains(out.String(), signaling.ErrNotAuthorized.Error()) {
		t.Errorf("output = %q", out.String())
	}

	out.Reset()
	execute(f, "call", &out)
	if !strings.Contains(out.String(), "expected one argument") {
		t.Errorf("output = %q", out.String())
	}
}

func TestExecuteAudioControls(t *testing.T) {
	f := &fakeCommander{}
	var out bytes.Buffer

	execute(f, "mute-mic on", &out)
	if !f.micMuted {
		t.Error("microphone should be muted")
	}
	execute(f, "mute-mic maybe", &out)
	if !strings.Contains(out.String(), "expected on or off") {
		t.Errorf("output = %q", out.String())
	}

	out.Reset()
	execute(f, "volume-in 250", &out)
	if got := strings.TrimSpace(out.String()); got != "volume-in: 200%" {
		t.Errorf("output = %q", got)
	}
	execute(f, "volume-out loud", &out)
	if !strings.Contains(out.String(), "not a number") {
		t.Errorf("output = %q", out.String())
	}
}

func TestExecuteListings(t *testing.T) {
	f := &fakeCommander{}
	var out bytes.Buffer

	execute(f, "devices", &out)
	if !strings.Contains(out.String(), "input  0 Built-in Mic (default)") ||
		!strings.Contains(out.String(), "output 1 Headphones") {
		t.Errorf("output = %q", out.String())
	}

	out.Reset()
	execute(f, "pending", &out)
	if !strings.Contains(out.String(), "START_OUTGOING_CALL(bob)") {
		t.Errorf("output = %q", out.String())
	}
}

func TestExecuteQuitAndUnknown(t *testing.T) {
	var out bytes.Buffer
	if !execute(&fakeCommander{}, "quit", &out) {
		t.Error("quit should stop the loop")
	}
	if execute(&fakeCommander{}, "dance", &out) {
		t.Error("unknown command should not quit")
	}
	if !strings.Contains(out.String(), "unknown command") {
		t.Errorf("output = %q", out.String())
	}
	if execute(&fakeCommander{}, "   ", &out) {
		t.Error("blank line should not quit")
	}
}

func TestApplyFlags(t *testing.T) {
	cfg := config.Default()
	applyFlags(&cfg, "signal.example.net", "", 9000, 0, "debug", "", "silk")

	if cfg.TCPHost != "signal.example.net" || cfg.TCPPort != 9000 {
		t.Errorf("tcp = %s:%d", cfg.TCPHost, cfg.TCPPort)
	}
	if cfg.UDPHost != config.Default().UDPHost || cfg.UDPPort != config.Default().UDPPort {
		t.Error("unset flags must keep config values")
	}
	if cfg.Log.Level != "debug" || cfg.Decoder != audio.DecoderSILK {
		t.Errorf("log level %q decoder %q", cfg.Log.Level, cfg.Decoder)
	}
}

func TestPrinterFormatsEvents(t *testing.T) {
	var out bytes.Buffer
	p := &printer{out: &out}

	p.OnAuthorizationResult(nil, "alice")
	p.OnStartOutgoingCallResult(errors.New("busy"), "bob")
	p.OnIncomingCall("carol")
	p.OnConnectionDown()

	want := []string{
		"authorization alice: ok",
		"call bob: busy",
		"incoming call from carol (accept carol / decline carol)",
		"connection lost, reconnecting",
	}
	got := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(got) != len(want) {
		t.Fatalf("got %d lines: %q", len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestPortFlag(t *testing.T) {
	if p, err := portFlag("tcp-port", 65535); err != nil || p != 65535 {
		t.Errorf("portFlag(65535) = %d, %v", p, err)
	}
	if p, err := portFlag("tcp-port", 0); err != nil || p != 0 {
		t.Errorf("portFlag(0) = %d, %v", p, err)
	}
	if _, err := portFlag("tcp-port", 70000); err == nil || !strings.Contains(err.Error(), "tcp-port") {
		t.Errorf("portFlag(70000) error = %v", err)
	}
}
