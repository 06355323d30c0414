// Package metrics carries the server's Prometheus collectors. They live on
// a private registry and are rendered to the text exposition format
// directly; promhttp wants a net/http stack, and this server does not have
// one.
package metrics

import (
	"bytes"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

type Metrics struct {
	registry *prometheus.Registry

	requests     *prometheus.CounterVec
	tokenHits    prometheus.Counter
	storeReloads *prometheus.CounterVec
	storeLinks   prometheus.Gauge
}

// New builds the collector set. A nil *Metrics is a valid no-op receiver
// for all observe methods, so callers with metrics disabled just pass nil
// around instead of branching.
func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.requests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lisho_requests_total",
		Help: "Connections handled, by response outcome.",
	}, []string{"outcome"})
	m.tokenHits = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "lisho_token_hits_total",
		Help: "Lookups that resolved to a redirect.",
	})
	m.storeReloads = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lisho_store_reloads_total",
		Help: "Store refresh attempts, by result.",
	}, []string{"result"})
	m.storeLinks = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "lisho_store_links",
		Help: "Links in the snapshot currently being served.",
	})

	m.registry.MustRegister(m.requests, m.tokenHits, m.storeReloads, m.storeLinks)
	return m
}

// ObserveRequest counts one finished connection. outcome is a response
// kind's name, or "abandoned" for connections that got no response.
func (m *Metrics) ObserveRequest(outcome string) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(outcome).Inc()
}

// ObserveHit counts a token that resolved to a redirect.
func (m *Metrics) ObserveHit() {
	if m == nil {
		return
	}
	m.tokenHits.Inc()
}

// ObserveReload records a refresh attempt and, when it succeeded, the new
// snapshot size.
func (m *Metrics) ObserveReload(ok bool, links int) {
	if m == nil {
		return
	}
	if !ok {
		m.storeReloads.WithLabelValues("error").Inc()
		return
	}
	m.storeReloads.WithLabelValues("ok").Inc()
	m.storeLinks.Set(float64(links))
}

// SetLinks records the snapshot size outside of a reload, i.e. at startup.
func (m *Metrics) SetLinks(links int) {
	if m == nil {
		return
	}
	m.storeLinks.Set(float64(links))
}

// Render gathers the registry into the Prometheus text exposition format.
func (m *Metrics) Render() ([]byte, error) {
	fams, err := m.registry.Gather()
	if err != nil {
		return nil, fmt.Errorf("gather metrics: %w", err)
	}

	var buf bytes.Buffer
	enc := expfmt.NewEncoder(&buf, expfmt.FmtText)
	for _, fam := range fams {
		if err := enc.Encode(fam); err != nil {
			return nil, fmt.Errorf("encode metric family %s: %w", fam.GetName(), err)
		}
	}
	return buf.Bytes(), nil
}

// ContentType is the MIME type of Render's output.
func ContentType() string {
	return string(expfmt.FmtText)
}
