// Package metrics instruments the ingestion pipeline for Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "weatherstation"

// Metrics holds the pipeline collectors on a private registry so that
// several instances can coexist in tests.
type Metrics struct {
	registry *prometheus.Registry

	messages          *prometheus.CounterVec
	unknownTopics     prometheus.Counter
	malformedPayloads *prometheus.CounterVec
	saves             *prometheus.CounterVec
	saveFailures      *prometheus.CounterVec
	connectAttempts   prometheus.Counter
	connectFailures   prometheus.Counter
	connectionLost    prometheus.Counter
	connected         prometheus.Gauge
}

// New creates and registers the collectors, including the Go runtime and
// process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_total",
			Help:      "Messages received, by topic.",
		}, []string{"topic"}),
		unknownTopics: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "unknown_topic_messages_total",
			Help:      "Messages received on topics that map to no location.",
		}),
		malformedPayloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "malformed_payloads_total",
			Help:      "Messages dropped because the payload was not a number.",
		}, []string{"location"}),
		saves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "saves_total",
			Help:      "Readings persisted, by location.",
		}, []string{"location"}),
		saveFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "save_failures_total",
			Help:      "Failed reading inserts, by location.",
		}, []string{"location"}),
		connectAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connect_attempts_total",
			Help:      "Broker connection attempts.",
		}),
		connectFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connect_failures_total",
			Help:      "Failed broker connection attempts.",
		}),
		connectionLost: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connection_lost_total",
			Help:      "Unexpected broker session drops.",
		}),
		connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connected",
			Help:      "1 while a broker session is established.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.messages,
		m.unknownTopics,
		m.malformedPayloads,
		m.saves,
		m.saveFailures,
		m.connectAttempts,
		m.connectFailures,
		m.connectionLost,
		m.connected,
	)
	return m
}

// Registry returns the registry backing m.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Message(topic string) {
	m.messages.WithLabelValues(topic).Inc()
}

func (m *Metrics) UnknownTopic() {
	m.unknownTopics.Inc()
}

func (m *Metrics) MalformedPayload(location string) {
	m.malformedPayloads.WithLabelValues(location).Inc()
}

func (m *Metrics) Saved(location string) {
	m.saves.WithLabelValues(location).Inc()
}

func (m *Metrics) SaveFailed(location string) {
	m.saveFailures.WithLabelValues(location).Inc()
}

// ConnectAttempt records the outcome of one connection attempt.
func (m *Metrics) ConnectAttempt(err error) {
	m.connectAttempts.Inc()
	if err != nil {
		m.connectFailures.Inc()
	}
}

func (m *Metrics) ConnectionLost() {
	m.connectionLost.Inc()
}

func (m *Metrics) SetConnected(up bool) {
	if up {
		m.connected.Set(1)
		return
	}
	m.connected.Set(0)
}
