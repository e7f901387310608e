package nlsock

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the prometheus instrumentation for a Conn. All Conn methods
// tolerate a nil Metrics, so instrumentation stays opt-in.
type Metrics struct {
	MessagesSent  prometheus.Counter
	BatchesSent   prometheus.Counter
	SendErrors    prometheus.Counter
	ReceiveErrors prometheus.Counter
}

// NewMetrics registers the nlsock counters with reg and returns them.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		MessagesSent: factory.NewCounter(prometheus.CounterOpts{
			Name: "nftwire_messages_sent_total",
			Help: "Netlink messages handed to the kernel.",
		}),
		BatchesSent: factory.NewCounter(prometheus.CounterOpts{
			Name: "nftwire_batches_sent_total",
			Help: "Batches fully acknowledged by the kernel.",
		}),
		SendErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "nftwire_send_errors_total",
			Help: "Socket-level send failures.",
		}),
		ReceiveErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "nftwire_receive_errors_total",
			Help: "Receive failures, including kernel-reported errors.",
		}),
	}
}

func (m *Metrics) countSent(n int) {
	if m == nil {
		return
	}
	m.MessagesSent.Add(float64(n))
}

func (m *Metrics) countBatch() {
	if m == nil {
		return
	}
	m.BatchesSent.Inc()
}

func (m *Metrics) countSendError() {
	if m == nil {
		return
	}
	m.SendErrors.Inc()
}

func (m *Metrics) countRecvError() {
	if m == nil {
		return
	}
	m.ReceiveErrors.Inc()
}
