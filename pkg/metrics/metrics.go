package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "mesh"

// Install results used as the "result" label of InstallsTotal.
const (
	ResultOK           = "ok"
	ResultNotFound     = "not_found"
	ResultUnauthorized = "unauthorized"
	ResultInstalled    = "already_installed"
	ResultDowngrade    = "downgrade"
	ResultError        = "error"
)

// Metrics groups the collectors exported by a running device. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	PagePrograms  prometheus.Counter
	Erases        prometheus.Counter
	InstallsTotal *prometheus.CounterVec
	Uninstalls    prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		PagePrograms: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "flash",
			Name:      "page_programs_total",
			Help:      "Number of whole-page erase+program cycles issued to the flash medium.",
		}),
		Erases: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "flash",
			Name:      "erases_total",
			Help:      "Number of erase operations issued to the flash medium.",
		}),
		InstallsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "installs_total",
			Help:      "Install requests by result.",
		}, []string{"result"}),
		Uninstalls: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uninstalls_total",
			Help:      "Number of records tombstoned by uninstall.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.PagePrograms, m.Erases, m.InstallsTotal, m.Uninstalls)
	}
	return m
}

func (m *Metrics) PageProgrammed() {
	if m == nil {
		return
	}
	m.PagePrograms.Inc()
}

func (m *Metrics) Erased() {
	if m == nil {
		return
	}
	m.Erases.Inc()
}

func (m *Metrics) Install(result string) {
	if m == nil {
		return
	}
	m.InstallsTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) Uninstalled() {
	if m == nil {
		return
	}
	m.Uninstalls.Inc()
}
