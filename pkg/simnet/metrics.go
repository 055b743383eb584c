package simnet

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics counts what the venue accepted and refused. Each server owns its
// registry so several simulators can run in one process.
type Metrics struct {
	registry   *prometheus.Registry
	orders     *prometheus.CounterVec
	rejections *prometheus.CounterVec
	faults     prometheus.Counter
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		orders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "simnet_orders_total",
			Help: "Orders accepted by the simulator",
		}, []string{"symbol", "type", "status"}),
		rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "simnet_rejections_total",
			Help: "Requests refused with an exchange error code",
		}, []string{"code"}),
		faults: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "simnet_injected_faults_total",
			Help: "Order requests failed on purpose",
		}),
	}
	m.registry.MustRegister(m.orders, m.rejections, m.faults)
	return m
}

func (m *Metrics) orderAccepted(o Order) {
	m.orders.WithLabelValues(o.Symbol, o.Type, o.Status).Inc()
}

func (m *Metrics) rejected(code int) {
	m.rejections.WithLabelValues(strconv.Itoa(code)).Inc()
}

func (m *Metrics) faultInjected() { m.faults.Inc() }

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
