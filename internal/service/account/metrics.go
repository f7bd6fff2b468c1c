package account

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	registrations *prometheus.CounterVec
	verifications *prometheus.CounterVec
	notifications *prometheus.CounterVec
}

var (
	metricsOnce   sync.Once
	sharedMetrics *metrics
)

func defaultMetrics() *metrics {
	metricsOnce.Do(func() {
		m := &metrics{
			registrations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "accounts",
				Name:      "registrations_total",
				Help:      "Registration attempts by outcome",
			}, []string{"outcome"}),
			verifications: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "accounts",
				Name:      "verifications_total",
				Help:      "Email verification attempts by outcome",
			}, []string{"outcome"}),
			notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "accounts",
				Name:      "notifications_total",
				Help:      "Verification notifications by outcome",
			}, []string{"outcome"}),
		}
		m.registrations = register(m.registrations)
		m.verifications = register(m.verifications)
		m.notifications = register(m.notifications)
		sharedMetrics = m
	})
	return sharedMetrics
}

func register(c *prometheus.CounterVec) *prometheus.CounterVec {
	if err := prometheus.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing
			}
		}
	}
	return c
}

func (m *metrics) registration(outcome string) {
	if m == nil {
		return
	}
	m.registrations.WithLabelValues(outcome).Inc()
}

func (m *metrics) verification(outcome string) {
	if m == nil {
		return
	}
	m.verifications.WithLabelValues(outcome).Inc()
}

func (m *metrics) notification(outcome string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(outcome).Inc()
}
