package callcore

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/callcore/interfaces"
	"github.com/opd-ai/callcore/packet"
)

const (
	voiceSlots    = 16
	voiceSlotSize = 4000
)

// voicePump moves encoded frames from the audio callback to the network.
// The callback side only copies into a preallocated slot and never blocks.
// When every slot is in flight the frame is dropped.
type voicePump struct {
	sender interfaces.MediaSender
	active func() bool

	free    chan []byte
	pending chan []byte
	quit    chan struct{}
	wg      sync.WaitGroup
}

func newVoicePump(sender interfaces.MediaSender, active func() bool) *voicePump {
	p := &voicePump{
		sender:  sender,
		active:  active,
		free:    make(chan []byte, voiceSlots),
		pending: make(chan []byte, voiceSlots),
		quit:    make(chan struct{}),
	}
	for i := 0; i < voiceSlots; i++ {
		p.free <- make([]byte, 0, voiceSlotSize)
	}
	p.wg.Add(1)
	go p.run()
	return p
}

// push is the audio engine's encoded callback.
func (p *voicePump) push(data []byte) {
	if len(data) == 0 || len(data) > voiceSlotSize {
		return
	}
	var slot []byte
	select {
	case slot = <-p.free:
	default:
		return
	}
	slot = append(slot[:0], data...)
	select {
	case p.pending <- slot:
	default:
		p.free <- slot
	}
}

func (p *voicePump) run() {
	defer p.wg.Done()
	for {
		select {
		case <-p.quit:
			return
		case slot := <-p.pending:
			if p.active() {
				if err := p.sender.SendMedia(slot, packet.TypeVoice); err != nil {
					logrus.WithFields(logrus.Fields{
						"function": "voicePump.run",
						"error":    err.Error(),
					}).Debug("Voice frame not sent")
				}
			}
			p.free <- slot
		}
	}
}

func (p *voicePump) close() {
	close(p.quit)
	p.wg.Wait()
}
