// Package rmetrics carries the Prometheus counters the client core emits,
// in the shape of the teacher's core/prometheus_counters.go: a struct of
// *prometheus.CounterVec fields built once against a Registerer and
// exposed through package-level recording functions, so callers never
// touch a *prometheus.CounterVec directly.
package rmetrics

import "github.com/prometheus/client_golang/prometheus"

// ClientMetrics mirrors the shape of the teacher's RadiusPrometheusMetrics,
// scoped to the client side of the protocol (this module has no server).
type ClientMetrics struct {
	Requests         *prometheus.CounterVec
	Responses        *prometheus.CounterVec
	Timeouts         *prometheus.CounterVec
	Retries          *prometheus.CounterVec
	Reconnects       *prometheus.CounterVec
	ResponsesDropped *prometheus.CounterVec
	DecodeErrors     *prometheus.CounterVec
}

var m *ClientMetrics

func init() {
	m = newClientMetrics(prometheus.DefaultRegisterer)
}

func newClientMetrics(reg prometheus.Registerer) *ClientMetrics {
	cm := &ClientMetrics{
		Requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "radius_client_requests_total",
				Help: "Radius client requests sent, per endpoint and code",
			},
			[]string{"endpoint", "code"}),

		Responses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "radius_client_responses_total",
				Help: "Radius client responses received, per endpoint and code",
			},
			[]string{"endpoint", "code"}),

		Timeouts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "radius_client_timeouts_total",
				Help: "Radius client per-attempt timeouts, per endpoint",
			},
			[]string{"endpoint"}),

		Retries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "radius_client_retries_total",
				Help: "Radius client retransmission attempts beyond the first, per endpoint",
			},
			[]string{"endpoint"}),

		Reconnects: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "radius_client_reconnects_total",
				Help: "Radius client stream transport reconnect attempts, per endpoint",
			},
			[]string{"endpoint"}),

		ResponsesDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "radius_client_responses_dropped_total",
				Help: "Radius client responses dropped as unsolicited or late, per endpoint",
			},
			[]string{"endpoint"}),

		DecodeErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "radius_client_decode_errors_total",
				Help: "Radius client response decode failures, per endpoint",
			},
			[]string{"endpoint"}),
	}

	for _, c := range []*prometheus.CounterVec{
		cm.Requests, cm.Responses, cm.Timeouts, cm.Retries,
		cm.Reconnects, cm.ResponsesDropped, cm.DecodeErrors,
	} {
		if reg != nil {
			// Registration may legitimately fail if the caller's process
			// already registered the same collector (e.g. package
			// re-initialized in tests); that is not a fatal condition for
			// a metrics side-channel.
			_ = reg.Register(c)
		}
	}

	return cm
}

// Use installs a ClientMetrics built against reg as the package-wide
// recorder, so an application embedding this module can aggregate into
// its own registry instead of the global default one.
func Use(reg prometheus.Registerer) {
	m = newClientMetrics(reg)
}

func RecordRequest(endpoint, code string)  { m.Requests.WithLabelValues(endpoint, code).Inc() }
func RecordResponse(endpoint, code string) { m.Responses.WithLabelValues(endpoint, code).Inc() }
func RecordTimeout(endpoint string)        { m.Timeouts.WithLabelValues(endpoint).Inc() }
func RecordRetry(endpoint string)          { m.Retries.WithLabelValues(endpoint).Inc() }
func RecordReconnect(endpoint string)      { m.Reconnects.WithLabelValues(endpoint).Inc() }
func RecordDropped(endpoint string)        { m.ResponsesDropped.WithLabelValues(endpoint).Inc() }
func RecordDecodeError(endpoint string)    { m.DecodeErrors.WithLabelValues(endpoint).Inc() }
