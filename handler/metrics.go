package handler

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/opd-ai/callcore/metrics"
)

type handlerMetrics struct {
	handled *prometheus.CounterVec
	dropped *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer) *handlerMetrics {
	reg = metrics.OrPrivate(reg)
	return &handlerMetrics{
		handled: metrics.Register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: "handler",
			Name:      "packets_handled_total",
			Help:      "Inbound packets dispatched to a handler, by packet type.",
		}, []string{"type"})),
		dropped: metrics.Register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: "handler",
			Name:      "packets_dropped_total",
			Help:      "Inbound packets dropped, by reason.",
		}, []string{"reason"})),
	}
}
