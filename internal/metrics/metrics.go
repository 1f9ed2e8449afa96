// Package metrics exposes session counters and request latencies to
// Prometheus.
package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/starx-project/starx/internal/connector"
	"github.com/starx-project/starx/internal/events"
)

const namespace = "starx"

// StatsSource returns a snapshot of the session counters.
type StatsSource func() connector.Stats

type counterDesc struct {
	desc  *prometheus.Desc
	value func(connector.Stats) float64
}

// Collector reads session counters on every scrape and records request
// latencies from the event bus.
type Collector struct {
	source   StatsSource
	counters []counterDesc
	gauges   []counterDesc
	state    *prometheus.Desc

	requestDuration *prometheus.HistogramVec
	pushesByRoute   *prometheus.CounterVec
}

// NewCollector registers session metrics on reg.
func NewCollector(reg prometheus.Registerer, source StatsSource) *Collector {
	c := &Collector{
		source: source,
		state: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "session", "state"),
			"Current session state, 1 for the active state.",
			[]string{"state"}, nil,
		),
	}

	counter := func(name, help string, value func(connector.Stats) float64) {
		c.counters = append(c.counters, counterDesc{
			desc:  prometheus.NewDesc(prometheus.BuildFQName(namespace, "session", name), help, nil, nil),
			value: value,
		})
	}
	gauge := func(name, help string, value func(connector.Stats) float64) {
		c.gauges = append(c.gauges, counterDesc{
			desc:  prometheus.NewDesc(prometheus.BuildFQName(namespace, "session", name), help, nil, nil),
			value: value,
		})
	}

	counter("connects_total", "Successful handshakes.", func(s connector.Stats) float64 { return float64(s.Connects) })
	counter("reconnects_total", "Reconnect attempts.", func(s connector.Stats) float64 { return float64(s.Reconnects) })
	counter("frames_in_total", "Frames received.", func(s connector.Stats) float64 { return float64(s.FramesIn) })
	counter("frames_out_total", "Frames sent.", func(s connector.Stats) float64 { return float64(s.FramesOut) })
	counter("bytes_in_total", "Bytes received.", func(s connector.Stats) float64 { return float64(s.BytesIn) })
	counter("bytes_out_total", "Bytes sent.", func(s connector.Stats) float64 { return float64(s.BytesOut) })
	counter("requests_total", "Requests sent.", func(s connector.Stats) float64 { return float64(s.Requests) })
	counter("responses_total", "Responses matched to a pending request.", func(s connector.Stats) float64 { return float64(s.Responses) })
	counter("notifies_total", "Notifies sent.", func(s connector.Stats) float64 { return float64(s.Notifies) })
	counter("pushes_total", "Server pushes received.", func(s connector.Stats) float64 { return float64(s.Pushes) })
	counter("heartbeats_in_total", "Heartbeats received.", func(s connector.Stats) float64 { return float64(s.HeartbeatsIn) })
	counter("heartbeats_out_total", "Heartbeats sent.", func(s connector.Stats) float64 { return float64(s.HeartbeatsOut) })
	counter("decode_errors_total", "Inbound messages that failed to decode.", func(s connector.Stats) float64 { return float64(s.DecodeErrors) })
	counter("request_timeouts_total", "Requests that timed out.", func(s connector.Stats) float64 { return float64(s.RequestTimeouts) })
	gauge("pending_requests", "Requests awaiting a response.", func(s connector.Stats) float64 { return float64(s.Pending) })
	gauge("mailbox_depth", "Operations queued for the session loop.", func(s connector.Stats) float64 { return float64(s.Queued) })

	factory := promauto.With(reg)
	c.requestDuration = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "request_duration_seconds",
		Help:      "Time from sending a request to its outcome.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route", "outcome"})
	c.pushesByRoute = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "pushes_by_route_total",
		Help:      "Server pushes by route.",
	}, []string{"route"})

	reg.MustRegister(c)
	return c
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range c.counters {
		ch <- d.desc
	}
	for _, d := range c.gauges {
		ch <- d.desc
	}
	ch <- c.state
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.source()
	for _, d := range c.counters {
		ch <- prometheus.MustNewConstMetric(d.desc, prometheus.CounterValue, d.value(s))
	}
	for _, d := range c.gauges {
		ch <- prometheus.MustNewConstMetric(d.desc, prometheus.GaugeValue, d.value(s))
	}
	for _, st := range []connector.State{
		connector.StateDisconnected,
		connector.StateConnecting,
		connector.StateAwaitingHandshakeAck,
		connector.StateConnected,
		connector.StateReconnecting,
	} {
		v := 0.0
		if st == s.State {
			v = 1
		}
		ch <- prometheus.MustNewConstMetric(c.state, prometheus.GaugeValue, v, st.String())
	}
}

// Attach records request outcomes and pushes published on bus.
func (c *Collector) Attach(bus *events.EventBus) {
	bus.Subscribe(events.EventRequestDone, "metrics.request", c.onRequestDone)
	bus.Subscribe(events.EventPush, "metrics.push", c.onPush)
}

func (c *Collector) onRequestDone(_ context.Context, ev events.Event) error {
	p, ok := ev.Payload.(events.RequestPayload)
	if !ok {
		return nil
	}
	outcome := "ok"
	if p.Error != "" {
		outcome = "error"
	}
	c.requestDuration.WithLabelValues(p.Route, outcome).Observe(p.Duration.Seconds())
	return nil
}

func (c *Collector) onPush(_ context.Context, ev events.Event) error {
	if p, ok := ev.Payload.(events.PushPayload); ok {
		c.pushesByRoute.WithLabelValues(p.Route).Inc()
	}
	return nil
}
