package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsRecordNothing(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.FrameReceived("request")
		m.FrameSent("response")
		m.ProtocolError("malformed_frame")
		m.SetPending(3)
		m.TransferBytes("upload", 10)
		m.TransferFinished("upload", "DONE")
	})
}

func TestMetricsAreRegistered(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := New(registry)

	m.FrameReceived("request")
	m.FrameReceived("request")
	m.SetPending(2)
	m.TransferBytes("download", 512)
	m.TransferBytes("download", 0)
	m.TransferFinished("download", "FAILED")

	families, err := registry.Gather()
	require.NoError(t, err)
	values := make(map[string]float64)
	for _, family := range families {
		for _, metric := range family.GetMetric() {
			switch {
			case metric.GetCounter() != nil:
				values[family.GetName()] += metric.GetCounter().GetValue()
			case metric.GetGauge() != nil:
				values[family.GetName()] += metric.GetGauge().GetValue()
			}
		}
	}
	assert.Equal(t, 2.0, values["eywa_robot_frames_received_total"])
	assert.Equal(t, 2.0, values["eywa_robot_pending_requests"])
	assert.Equal(t, 512.0, values["eywa_robot_transfer_bytes_total"])
	assert.Equal(t, 1.0, values["eywa_robot_transfers_total"])

	assert.Panics(t, func() { New(registry) }, "collectors register once per registry")
}
