package main

import (
	"fmt"
	"io"
	"sync"

	"github.com/opd-ai/callcore"
)

// printer writes every event as one line.
type printer struct {
	callcore.NopEventListener
	mu  sync.Mutex
	out io.Writer
}

func (p *printer) printf(format string, args ...interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.out, format+"\n", args...)
}

func (p *printer) result(what string, err error, nickname string) {
	if err != nil {
		p.printf("%s %s: %v", what, nickname, err)
		return
	}
	p.printf("%s %s: ok", what, nickname)
}

func (p *printer) OnAuthorizationResult(err error, nickname string) {
	p.result("authorization", err, nickname)
}

func (p *printer) OnLogoutResult(err error) {
	if err != nil {
		p.printf("logout rejected: %v", err)
	}
}

func (p *printer) OnStartOutgoingCallResult(err error, nickname string) {
	p.result("call", err, nickname)
}

func (p *printer) OnAcceptCallResult(err error, nickname string) {
	p.result("accept", err, nickname)
}

func (p *printer) OnIncomingCall(nickname string) {
	p.printf("incoming call from %s (accept %s / decline %s)", nickname, nickname, nickname)
}

func (p *printer) OnIncomingCallExpired(nickname string) { p.printf("missed call from %s", nickname) }
func (p *printer) OnOutgoingCallAccepted(nickname string) {
	p.printf("%s answered", nickname)
}
func (p *printer) OnOutgoingCallDeclined(nickname string) { p.printf("%s declined", nickname) }
func (p *printer) OnOutgoingCallTimeout(nickname string)  { p.printf("%s did not answer", nickname) }
func (p *printer) OnCallEndedByRemote(nickname string)    { p.printf("%s hung up", nickname) }

func (p *printer) OnCallParticipantConnectionDown(nickname string) {
	p.printf("%s lost connection", nickname)
}

func (p *printer) OnCallParticipantConnectionRestored(nickname string) {
	p.printf("%s is back", nickname)
}

func (p *printer) OnIncomingScreenSharingStarted(nickname string) {
	p.printf("%s started sharing the screen", nickname)
}

func (p *printer) OnIncomingCameraSharingStarted(nickname string) {
	p.printf("%s turned the camera on", nickname)
}

func (p *printer) OnConnectionDown()     { p.printf("connection lost, reconnecting") }
func (p *printer) OnConnectionRestored() { p.printf("connection restored") }
func (p *printer) OnConnectionRestoredAuthorizationNeeded() {
	p.printf("connection restored, authorize again")
}
