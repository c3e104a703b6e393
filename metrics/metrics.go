// Package metrics holds the Prometheus registration helpers shared by the
// packet handler and the audio engine.
package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

// Namespace prefixes every metric name.
const Namespace = "callcore"

// OrPrivate returns reg, or a fresh private registry when reg is nil.
func OrPrivate(reg prometheus.Registerer) prometheus.Registerer {
	if reg == nil {
		return prometheus.NewRegistry()
	}
	return reg
}

// Register adds c to reg. If an identical collector is already registered
// there, that collector is returned instead so several instances can share
// one registry.
func Register[T prometheus.Collector](reg prometheus.Registerer, c T) T {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing
			}
		}
		logrus.WithFields(logrus.Fields{
			"function": "metrics.Register",
			"error":    err.Error(),
		}).Warn("Failed to register metric, continuing unregistered")
	}
	return c
}
