package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the collectors of one robot process. A nil *Metrics is valid
// and records nothing, so components take it unconditionally.
type Metrics struct {
	framesReceived  *prometheus.CounterVec
	framesSent      *prometheus.CounterVec
	protocolErrors  *prometheus.CounterVec
	pendingRequests prometheus.Gauge
	transferBytes   *prometheus.CounterVec
	transfers       *prometheus.CounterVec
}

// New creates the collectors and registers them with r. A nil registerer
// leaves the collectors unregistered.
func New(r prometheus.Registerer) *Metrics {
	m := &Metrics{
		framesReceived: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "eywa_robot_frames_received_total",
				Help: "Inbound frames by kind",
			},
			[]string{"kind"},
		),
		framesSent: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "eywa_robot_frames_sent_total",
				Help: "Outbound frames by kind",
			},
			[]string{"kind"},
		),
		protocolErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "eywa_robot_protocol_errors_total",
				Help: "Recovered protocol errors by kind",
			},
			[]string{"kind"},
		),
		pendingRequests: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "eywa_robot_pending_requests",
				Help: "Outbound requests awaiting a response",
			},
		),
		transferBytes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "eywa_robot_transfer_bytes_total",
				Help: "Bytes moved to or from the object store",
			},
			[]string{"direction"},
		),
		transfers: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "eywa_robot_transfers_total",
				Help: "Finished file transfers by direction and final state",
			},
			[]string{"direction", "state"},
		),
	}
	if r != nil {
		r.MustRegister(m.framesReceived, m.framesSent, m.protocolErrors, m.pendingRequests, m.transferBytes, m.transfers)
	}
	return m
}

func (m *Metrics) FrameReceived(kind string) {
	if m == nil {
		return
	}
	m.framesReceived.WithLabelValues(kind).Inc()
}

func (m *Metrics) FrameSent(kind string) {
	if m == nil {
		return
	}
	m.framesSent.WithLabelValues(kind).Inc()
}

func (m *Metrics) ProtocolError(kind string) {
	if m == nil {
		return
	}
	m.protocolErrors.WithLabelValues(kind).Inc()
}

func (m *Metrics) SetPending(n int) {
	if m == nil {
		return
	}
	m.pendingRequests.Set(float64(n))
}

func (m *Metrics) TransferBytes(direction string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.transferBytes.WithLabelValues(direction).Add(float64(n))
}

func (m *Metrics) TransferFinished(direction, state string) {
	if m == nil {
		return
	}
	m.transfers.WithLabelValues(direction, state).Inc()
}
