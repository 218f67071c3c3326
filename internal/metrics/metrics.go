// Package metrics exports syscall and message metrics to prometheus.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/Prajjawalk/ipc/abi"
	"github.com/Prajjawalk/ipc/internal/gas"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	DefaultNamespace = "ipc"

	SubsystemSyscall = "syscall"
	SubsystemMessage = "message"

	LabelModule  = "module"
	LabelName    = "name"
	LabelErrno   = "errno"
	LabelOutcome = "outcome"
	LabelExit    = "exit_code"
)

// Syscall outcomes.
const (
	OutcomeOK      = "ok"
	OutcomeErrno   = "errno"
	OutcomeAborted = "aborted"
)

// Metrics owns a registry with the host's collectors. It implements
// syscalls.Observer and machine.Observer.
type Metrics struct {
	registry *prom.Registry

	syscalls       *prom.CounterVec
	syscallSeconds *prom.HistogramVec
	messages       *prom.CounterVec
	messageGas     prom.Histogram
	messageSeconds prom.Histogram
}

// New registers the collectors on a fresh registry.
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	m := &Metrics{
		registry: prom.NewRegistry(),
		syscalls: prom.NewCounterVec(
			prom.CounterOpts{
				Namespace: namespace,
				Subsystem: SubsystemSyscall,
				Name:      "calls_total",
				Help:      "Total number of syscalls by outcome.",
			},
			[]string{LabelModule, LabelName, LabelOutcome, LabelErrno}),
		syscallSeconds: prom.NewHistogramVec(
			prom.HistogramOpts{
				Namespace: namespace,
				Subsystem: SubsystemSyscall,
				Name:      "duration_seconds",
				Help:      "Histogram of syscall latency.",
				Buckets:   prom.ExponentialBuckets(1e-6, 4, 12),
			},
			[]string{LabelModule, LabelName}),
		messages: prom.NewCounterVec(
			prom.CounterOpts{
				Namespace: namespace,
				Subsystem: SubsystemMessage,
				Name:      "applied_total",
				Help:      "Total number of applied messages by exit code.",
			},
			[]string{LabelExit}),
		messageGas: prom.NewHistogram(prom.HistogramOpts{
			Namespace: namespace,
			Subsystem: SubsystemMessage,
			Name:      "gas_used",
			Help:      "Histogram of gas used per message.",
			Buckets:   prom.ExponentialBuckets(1e4, 4, 10),
		}),
		messageSeconds: prom.NewHistogram(prom.HistogramOpts{
			Namespace: namespace,
			Subsystem: SubsystemMessage,
			Name:      "duration_seconds",
			Help:      "Histogram of message apply latency.",
			Buckets:   prom.DefBuckets,
		}),
	}
	m.registry.MustRegister(m.syscalls, m.syscallSeconds, m.messages, m.messageGas, m.messageSeconds)
	return m
}

// ObserveSyscall implements syscalls.Observer.
func (m *Metrics) ObserveSyscall(module, name string, errno abi.ErrorNumber, aborted bool, elapsed time.Duration) {
	outcome := OutcomeOK
	switch {
	case aborted:
		outcome = OutcomeAborted
	case errno != abi.ErrOK:
		outcome = OutcomeErrno
	}
	m.syscalls.WithLabelValues(module, name, outcome, strconv.FormatUint(uint64(errno), 10)).Inc()
	m.syscallSeconds.WithLabelValues(module, name).Observe(elapsed.Seconds())
}

// ObserveMessage implements machine.Observer.
func (m *Metrics) ObserveMessage(exit abi.ExitCode, gasUsed gas.Gas, elapsed time.Duration) {
	m.messages.WithLabelValues(exit.String()).Inc()
	m.messageGas.Observe(float64(gasUsed))
	m.messageSeconds.Observe(elapsed.Seconds())
}

// Registry returns the registry holding the collectors.
func (m *Metrics) Registry() *prom.Registry {
	return m.registry
}

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
