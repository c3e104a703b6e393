package audio

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/opd-ai/callcore/metrics"
)

type engineMetrics struct {
	encoded   prometheus.Counter
	decoded   prometheus.Counter
	decodeErr prometheus.Counter
	underruns prometheus.Counter
	dropped   prometheus.Counter
}

func newEngineMetrics(reg prometheus.Registerer) *engineMetrics {
	reg = metrics.OrPrivate(reg)
	counter := func(name, help string) prometheus.Counter {
		return metrics.Register(reg, prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: "audio",
			Name:      name,
			Help:      help,
		}))
	}
	return &engineMetrics{
		encoded:   counter("frames_encoded_total", "Captured frames encoded and handed to the network."),
		decoded:   counter("frames_decoded_total", "Received frames decoded and queued for playback."),
		decodeErr: counter("decode_errors_total", "Received frames that failed to decode."),
		underruns: counter("playback_underruns_total", "Playback callbacks with no decoded frame available."),
		dropped:   counter("queue_dropped_frames_total", "Decoded frames dropped because the playback queue was full."),
	}
}
